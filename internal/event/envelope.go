package event

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeDepositRequested
	EventTypeWithdrawalRequested
	EventTypeBorrowRequested
	EventTypeRequestProcessed
	EventTypeBatchProcessed
	EventTypeWithdrawalExecuted
	EventTypeEmergencyWithdrawal
	EventTypeUserRegistered
	EventTypeRegistrationUpdated
	EventTypeEpochCreated
	EventTypeEpochClosed
	EventTypeValidationFailed
	EventTypeParamUpdated
)

func (et EventType) String() string {
	switch et {
	case EventTypeDepositRequested:
		return "DepositRequested"
	case EventTypeWithdrawalRequested:
		return "WithdrawalRequested"
	case EventTypeBorrowRequested:
		return "BorrowRequested"
	case EventTypeRequestProcessed:
		return "RequestProcessed"
	case EventTypeBatchProcessed:
		return "BatchProcessed"
	case EventTypeWithdrawalExecuted:
		return "WithdrawalExecuted"
	case EventTypeEmergencyWithdrawal:
		return "EmergencyWithdrawal"
	case EventTypeUserRegistered:
		return "UserRegistered"
	case EventTypeRegistrationUpdated:
		return "RegistrationUpdated"
	case EventTypeEpochCreated:
		return "EpochCreated"
	case EventTypeEpochClosed:
		return "EpochClosed"
	case EventTypeValidationFailed:
		return "ValidationFailed"
	case EventTypeParamUpdated:
		return "ParamUpdated"
	default:
		return "Unknown"
	}
}

// ParseEventType maps the wire name back to an EventType.
func ParseEventType(s string) EventType {
	switch s {
	case "DepositRequested":
		return EventTypeDepositRequested
	case "WithdrawalRequested":
		return EventTypeWithdrawalRequested
	case "BorrowRequested":
		return EventTypeBorrowRequested
	case "RequestProcessed":
		return EventTypeRequestProcessed
	case "BatchProcessed":
		return EventTypeBatchProcessed
	case "WithdrawalExecuted":
		return EventTypeWithdrawalExecuted
	case "EmergencyWithdrawal":
		return EventTypeEmergencyWithdrawal
	case "UserRegistered":
		return EventTypeUserRegistered
	case "RegistrationUpdated":
		return EventTypeRegistrationUpdated
	case "EpochCreated":
		return EventTypeEpochCreated
	case "EpochClosed":
		return EventTypeEpochClosed
	case "ValidationFailed":
		return EventTypeValidationFailed
	case "ParamUpdated":
		return EventTypeParamUpdated
	default:
		return EventTypeUnknown
	}
}

// Envelope wraps every emitted event in the log. The core assigns a
// strictly increasing sequence; tx hash and block come from the caller
// context and key the downstream mirror's dedup.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64 `json:"sequence"`

	// Event type discriminator
	EventType EventType `json:"event_type"`

	// Host transaction context
	TxHash string `json:"tx_hash"`
	Block  uint64 `json:"block"`

	// Caller-supplied timestamp in Unix ms (NOT wall-clock)
	Timestamp int64 `json:"timestamp"`

	// Event-specific payload, JSON-encoded at the persistence boundary
	Payload any `json:"payload"`
}
