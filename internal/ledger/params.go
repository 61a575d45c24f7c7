package ledger

// Params holds the owner-mutable validation parameters. Injected into the
// engine at construction, never ambient.
type Params struct {
	MinDepositAmount     uint64 `json:"min_deposit_amount"`
	MinWithdrawalAmount  uint64 `json:"min_withdrawal_amount"`
	MinBorrowAmount      uint64 `json:"min_borrow_amount"`
	MaxPendingRequests   uint64 `json:"max_pending_requests"`
	DailyWithdrawalLimit uint64 `json:"daily_withdrawal_limit"`
	CollateralRatioBps   uint64 `json:"collateral_ratio_bps"`
}

// DefaultParams returns the production parameter set. Amounts are in the
// asset's smallest unit (8 decimals).
func DefaultParams() Params {
	return Params{
		MinDepositAmount:     100_000_000,
		MinWithdrawalAmount:  100_000_000,
		MinBorrowAmount:      1_000_000_000,
		MaxPendingRequests:   10,
		DailyWithdrawalLimit: 10_000_000_000,
		CollateralRatioBps:   15_000,
	}
}

// MinAmountFor returns the creation minimum for a request type.
func (p Params) MinAmountFor(rt RequestType) uint64 {
	switch rt {
	case RequestTypeDeposit:
		return p.MinDepositAmount
	case RequestTypeWithdrawal:
		return p.MinWithdrawalAmount
	case RequestTypeBorrow:
		return p.MinBorrowAmount
	default:
		return 0
	}
}
