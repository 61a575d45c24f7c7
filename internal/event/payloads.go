package event

// Request lifecycle payloads. Amounts are in the asset's smallest unit.

type DepositRequested struct {
	RequestID uint64 `json:"request_id"`
	Account   string `json:"account"`
	Amount    uint64 `json:"amount"`
}

type WithdrawalRequested struct {
	RequestID uint64 `json:"request_id"`
	Account   string `json:"account"`
	Amount    uint64 `json:"amount"`
}

type BorrowRequested struct {
	RequestID  uint64 `json:"request_id"`
	Account    string `json:"account"`
	Amount     uint64 `json:"amount"`
	Collateral uint64 `json:"collateral"`
}

// RequestProcessed records one settlement, attributed to the epoch
// active at settlement time.
type RequestProcessed struct {
	RequestID   uint64 `json:"request_id"`
	RequestType string `json:"request_type"`
	Account     string `json:"account"`
	Amount      uint64 `json:"amount"`
	EpochID     uint64 `json:"epoch_id"`
}

// Batch item statuses.
const (
	BatchItemProcessed = "processed"
	BatchItemFailed    = "failed"
)

// BatchItem is one id's outcome inside a batch settlement.
type BatchItem struct {
	RequestID uint64 `json:"request_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"` // Failed items only
}

// BatchProcessed summarizes one batch settlement with its per-item
// partial-failure outcome. Items preserve the submitted order, so an
// operator can see exactly which ids failed and why.
type BatchProcessed struct {
	BatchID     string      `json:"batch_id"`
	RequestType string      `json:"request_type"`
	EpochID     uint64      `json:"epoch_id"`
	Items       []BatchItem `json:"items"`
	Processed   int         `json:"processed"`
	Failed      int         `json:"failed"`
}

type WithdrawalExecuted struct {
	RequestID uint64 `json:"request_id"`
	Account   string `json:"account"`
	Amount    uint64 `json:"amount"`
}

type EmergencyWithdrawal struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

type UserRegistered struct {
	Account  string `json:"account"`
	Approved bool   `json:"approved"`
}

type RegistrationUpdated struct {
	Account  string `json:"account"`
	Approved bool   `json:"approved"`
}

type EpochCreated struct {
	EpochID        uint64 `json:"epoch_id"`
	StartTimestamp int64  `json:"start_timestamp"`
}

type EpochClosed struct {
	EpochID              uint64 `json:"epoch_id"`
	EndTimestamp         int64  `json:"end_timestamp"`
	ProcessedDeposits    uint64 `json:"processed_deposits"`
	ProcessedWithdrawals uint64 `json:"processed_withdrawals"`
	ProcessedBorrows     uint64 `json:"processed_borrows"`
}

// ValidationFailed is the audit record for a rejected request: no Request
// is created but the rejection is still observable downstream.
type ValidationFailed struct {
	Account     string `json:"account"`
	RequestType string `json:"request_type"`
	Amount      uint64 `json:"amount"`
	Outcome     string `json:"outcome"`
}

type ParamUpdated struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}
