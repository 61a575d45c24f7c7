package ledger

// Account is an opaque caller-supplied identity. The ledger never
// interprets it beyond equality.
type Account string

// RequestType discriminates the three request kinds sharing one id space.
type RequestType int32

const (
	RequestTypeDeposit RequestType = iota + 1
	RequestTypeWithdrawal
	RequestTypeBorrow
)

func (rt RequestType) String() string {
	switch rt {
	case RequestTypeDeposit:
		return "deposit"
	case RequestTypeWithdrawal:
		return "withdrawal"
	case RequestTypeBorrow:
		return "borrow"
	default:
		return "unknown"
	}
}

// ParseRequestType maps the wire name back to a RequestType.
func ParseRequestType(s string) (RequestType, bool) {
	switch s {
	case "deposit":
		return RequestTypeDeposit, true
	case "withdrawal":
		return RequestTypeWithdrawal, true
	case "borrow":
		return RequestTypeBorrow, true
	default:
		return 0, false
	}
}

// Request is an append-only record of a deposit, withdrawal, or borrow
// intent. Ids are strictly increasing and shared across all three types.
// IsProcessed flips false to true exactly once, at settlement.
type Request struct {
	ID         uint64      `json:"id"`
	Type       RequestType `json:"type"`
	Account    Account     `json:"account"`
	Amount     uint64      `json:"amount"`
	Collateral uint64      `json:"collateral,omitempty"` // Borrow only

	CreatedAt int64  `json:"created_at"` // Unix ms, from caller context
	TxHash    string `json:"tx_hash"`
	Block     uint64 `json:"block"`

	IsProcessed bool   `json:"is_processed"`
	ProcessedAt int64  `json:"processed_at,omitempty"`
	EpochID     uint64 `json:"epoch_id,omitempty"` // Epoch active at settlement

	// Withdrawal payout record. IsExecuted flips false to true exactly
	// once; a second execute call is rejected, not retried.
	IsExecuted bool  `json:"is_executed,omitempty"`
	ExecutedAt int64 `json:"executed_at,omitempty"`
}

// User carries the registration flag and the three balance sub-accounts.
// Balances only move via request creation and settlement; there is no
// direct mutation entry point.
type User struct {
	Account            Account `json:"account"`
	IsRegistered       bool    `json:"is_registered"`
	ActiveBalance      uint64  `json:"active_balance"`
	PendingDeposits    uint64  `json:"pending_deposits"`
	PendingWithdrawals uint64  `json:"pending_withdrawals"`
	TotalRewards       uint64  `json:"total_rewards"`
	RegisteredAt       int64   `json:"registered_at"`
}

// EpochStatus is a two-state machine: Active then Completed (terminal).
type EpochStatus int32

const (
	EpochStatusActive EpochStatus = iota + 1
	EpochStatusCompleted
)

func (es EpochStatus) String() string {
	switch es {
	case EpochStatusActive:
		return "active"
	case EpochStatusCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Epoch is one settlement period. Counters increment only while Active,
// attributed at settlement time.
type Epoch struct {
	ID             uint64      `json:"id"`
	StartTimestamp int64       `json:"start_timestamp"`
	EndTimestamp   int64       `json:"end_timestamp,omitempty"`
	Status         EpochStatus `json:"status"`

	ProcessedDeposits    uint64 `json:"processed_deposits"`
	ProcessedWithdrawals uint64 `json:"processed_withdrawals"`
	ProcessedBorrows     uint64 `json:"processed_borrows"`
}
