package ledger

import umath "RwaLedger/internal/math"

// Outcome classifies a validation result for the audit trail. Every
// non-Valid outcome maps to exactly one sentinel error.
type Outcome int32

const (
	OutcomeValid Outcome = iota
	OutcomeInvalidAmount
	OutcomeInsufficientBalance
	OutcomeUserNotRegistered
	OutcomeDailyLimitExceeded
	OutcomeRequestLimitExceeded
	OutcomeInsufficientCollateral
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeInvalidAmount:
		return "invalid_amount"
	case OutcomeInsufficientBalance:
		return "insufficient_balance"
	case OutcomeUserNotRegistered:
		return "user_not_registered"
	case OutcomeDailyLimitExceeded:
		return "daily_limit_exceeded"
	case OutcomeRequestLimitExceeded:
		return "request_limit_exceeded"
	case OutcomeInsufficientCollateral:
		return "insufficient_collateral"
	default:
		return "unknown"
	}
}

// Validator evaluates admission rules against the registry, request book,
// and rate-limit state. It never mutates: the daily window check returns
// the prospective window for the caller to commit after the request is
// admitted.
type Validator struct {
	users   *UserRegistry
	book    *RequestBook
	limiter *RateLimiter
	params  *Params
}

func NewValidator(users *UserRegistry, book *RequestBook, limiter *RateLimiter, params *Params) *Validator {
	return &Validator{
		users:   users,
		book:    book,
		limiter: limiter,
		params:  params,
	}
}

// ValidateDeposit admits a deposit request. Deposits require no
// registration; first deposit auto-registers.
func (v *Validator) ValidateDeposit(account Account, amount uint64) (Outcome, error) {
	if amount == 0 {
		return OutcomeInvalidAmount, ErrAmountZero
	}
	if amount < v.params.MinDepositAmount {
		return OutcomeInvalidAmount, ErrAmountTooLow
	}
	if v.book.PendingCount(account, RequestTypeDeposit) >= v.params.MaxPendingRequests {
		return OutcomeRequestLimitExceeded, ErrRequestLimitExceeded
	}
	return OutcomeValid, nil
}

// ValidateWithdrawal admits a withdrawal request. Check order is fixed:
// registration, minimum amount, balance sufficiency, pending-request cap,
// daily cap. The returned window is committed by the caller only on
// admission.
func (v *Validator) ValidateWithdrawal(account Account, amount uint64, now int64) (Outcome, Window, error) {
	u := v.users.Get(account)
	if u == nil || !u.IsRegistered {
		return OutcomeUserNotRegistered, Window{}, ErrUserNotRegistered
	}
	if amount == 0 {
		return OutcomeInvalidAmount, Window{}, ErrAmountZero
	}
	if amount < v.params.MinWithdrawalAmount {
		return OutcomeInvalidAmount, Window{}, ErrAmountTooLow
	}
	if u.ActiveBalance < amount {
		return OutcomeInsufficientBalance, Window{}, ErrInsufficientBalance
	}
	if v.book.PendingCount(account, RequestTypeWithdrawal) >= v.params.MaxPendingRequests {
		return OutcomeRequestLimitExceeded, Window{}, ErrRequestLimitExceeded
	}

	w := v.limiter.Prospective(account, amount, now)
	if w.Accumulated > v.params.DailyWithdrawalLimit {
		return OutcomeDailyLimitExceeded, Window{}, ErrDailyLimitExceeded
	}
	return OutcomeValid, w, nil
}

// ValidateBorrow admits a borrow request. Collateral is a checked ratio
// only; the ledger never takes custody of it.
func (v *Validator) ValidateBorrow(account Account, amount, collateral uint64) (Outcome, error) {
	u := v.users.Get(account)
	if u == nil || !u.IsRegistered {
		return OutcomeUserNotRegistered, ErrUserNotRegistered
	}
	if amount == 0 {
		return OutcomeInvalidAmount, ErrAmountZero
	}
	if amount < v.params.MinBorrowAmount {
		return OutcomeInvalidAmount, ErrAmountTooLow
	}
	// Required collateral floor in 128-bit space; an unrepresentable
	// floor is unsatisfiable by definition.
	required, ok := umath.MulBps(amount, v.params.CollateralRatioBps)
	if !ok || collateral < required {
		return OutcomeInsufficientCollateral, ErrInsufficientCollateral
	}
	return OutcomeValid, nil
}
