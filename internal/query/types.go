package query

import "encoding/json"

// RequestRow is one mirrored request.
type RequestRow struct {
	ID          int64  `json:"id"`
	RequestType string `json:"request_type"`
	Account     string `json:"account"`
	Amount      int64  `json:"amount"`
	Collateral  int64  `json:"collateral"`
	CreatedAt   int64  `json:"created_at"`
	IsProcessed bool   `json:"is_processed"`
	ProcessedAt *int64 `json:"processed_at,omitempty"`
	EpochID     *int64 `json:"epoch_id,omitempty"`
	IsExecuted  bool   `json:"is_executed"`
	ExecutedAt  *int64 `json:"executed_at,omitempty"`
}

// UserRow is one mirrored user registration.
type UserRow struct {
	Account      string `json:"account"`
	IsRegistered bool   `json:"is_registered"`
	RegisteredAt int64  `json:"registered_at"`
}

// EpochRow is one mirrored settlement epoch.
type EpochRow struct {
	ID                   int64  `json:"id"`
	StartTimestamp       int64  `json:"start_timestamp"`
	EndTimestamp         *int64 `json:"end_timestamp,omitempty"`
	Status               string `json:"status"`
	ProcessedDeposits    int64  `json:"processed_deposits"`
	ProcessedWithdrawals int64  `json:"processed_withdrawals"`
	ProcessedBorrows     int64  `json:"processed_borrows"`
}

// ProcessingEventRow is one mirrored operational event (batch results,
// executed and emergency withdrawals, param changes).
type ProcessingEventRow struct {
	ID        int64           `json:"id"`
	Kind      string          `json:"kind"`
	RequestID *int64          `json:"request_id,omitempty"`
	BatchID   *string         `json:"batch_id,omitempty"`
	Account   *string         `json:"account,omitempty"`
	Amount    *int64          `json:"amount,omitempty"`
	EpochID   *int64          `json:"epoch_id,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	TxHash    string          `json:"tx_hash"`
	Block     int64           `json:"block"`
	Timestamp int64           `json:"timestamp"`
}

// ValidationFailureRow is one mirrored rejection audit record.
type ValidationFailureRow struct {
	ID          int64  `json:"id"`
	Account     string `json:"account"`
	RequestType string `json:"request_type"`
	Amount      int64  `json:"amount"`
	Outcome     string `json:"outcome"`
	TxHash      string `json:"tx_hash"`
	Block       int64  `json:"block"`
	Timestamp   int64  `json:"timestamp"`
}
