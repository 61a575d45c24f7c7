package ledger

import "errors"

// Sentinel errors returned by ledger operations. The HTTP layer maps these
// to status codes; batch processing counts them without propagating.
var (
	// Authorization
	ErrNotOwner        = errors.New("caller is not the owner")
	ErrNotAdmin        = errors.New("caller is not owner or admin")
	ErrNotRequestOwner = errors.New("caller does not own this request")

	// Input validation
	ErrAmountZero             = errors.New("amount must be greater than zero")
	ErrAmountTooLow           = errors.New("amount is below the configured minimum")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrInsufficientCollateral = errors.New("insufficient collateral for requested amount")

	// State conflicts
	ErrUserNotFound           = errors.New("user not found")
	ErrUserNotRegistered      = errors.New("user is not registered")
	ErrRequestNotFound        = errors.New("request not found")
	ErrAlreadyProcessed       = errors.New("request already processed")
	ErrNotDepositRequest      = errors.New("request is not a deposit request")
	ErrNotWithdrawalRequest   = errors.New("request is not a withdrawal request")
	ErrNotBorrowRequest       = errors.New("request is not a borrow request")
	ErrNoActiveEpoch          = errors.New("no active epoch")
	ErrEpochNotFound          = errors.New("epoch not found")
	ErrWithdrawalNotProcessed = errors.New("withdrawal has not been processed")
	ErrAlreadyExecuted        = errors.New("withdrawal already executed")

	// Rate limits
	ErrRequestLimitExceeded = errors.New("pending request limit exceeded")
	ErrDailyLimitExceeded   = errors.New("daily withdrawal limit exceeded")

	// Batch
	ErrEmptyBatch = errors.New("batch contains no request ids")

	// External transfer
	ErrTransferFailed = errors.New("external transfer failed")
)
