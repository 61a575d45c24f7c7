package ledger_test

import (
	"errors"
	"math"
	"testing"

	"RwaLedger/internal/ledger"
)

// ============================================================================
// Test: RequestBook
// ============================================================================

func TestRequestBook_IDsStrictlyIncreasingAcrossTypes(t *testing.T) {
	rb := ledger.NewRequestBook()

	id1 := rb.Append(&ledger.Request{Type: ledger.RequestTypeDeposit, Account: "alice", Amount: 100})
	id2 := rb.Append(&ledger.Request{Type: ledger.RequestTypeWithdrawal, Account: "bob", Amount: 200})
	id3 := rb.Append(&ledger.Request{Type: ledger.RequestTypeBorrow, Account: "alice", Amount: 300})

	if id1 != 1 || id2 != 2 || id3 != 3 {
		t.Errorf("ids not sequential: got %d, %d, %d", id1, id2, id3)
	}
}

func TestRequestBook_PerUserIndex(t *testing.T) {
	rb := ledger.NewRequestBook()

	rb.Append(&ledger.Request{Type: ledger.RequestTypeDeposit, Account: "alice", Amount: 100})
	rb.Append(&ledger.Request{Type: ledger.RequestTypeDeposit, Account: "bob", Amount: 200})
	rb.Append(&ledger.Request{Type: ledger.RequestTypeDeposit, Account: "alice", Amount: 300})

	ids := rb.IDsFor("alice", ledger.RequestTypeDeposit)
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 3 {
		t.Errorf("alice deposit ids: got %v, want [1 3]", ids)
	}
	if got := rb.CountByType(ledger.RequestTypeDeposit); got != 3 {
		t.Errorf("deposit count: got %d, want 3", got)
	}
}

func TestRequestBook_PendingCountExcludesProcessed(t *testing.T) {
	rb := ledger.NewRequestBook()

	id := rb.Append(&ledger.Request{Type: ledger.RequestTypeDeposit, Account: "alice", Amount: 100})
	rb.Append(&ledger.Request{Type: ledger.RequestTypeDeposit, Account: "alice", Amount: 200})

	if got := rb.PendingCount("alice", ledger.RequestTypeDeposit); got != 2 {
		t.Fatalf("pending before settle: got %d, want 2", got)
	}

	rb.Get(id).IsProcessed = true

	if got := rb.PendingCount("alice", ledger.RequestTypeDeposit); got != 1 {
		t.Errorf("pending after settle: got %d, want 1", got)
	}
}

func TestRequestBook_SnapshotRestore(t *testing.T) {
	rb := ledger.NewRequestBook()
	rb.Append(&ledger.Request{Type: ledger.RequestTypeDeposit, Account: "alice", Amount: 100})
	rb.Append(&ledger.Request{Type: ledger.RequestTypeWithdrawal, Account: "alice", Amount: 50})

	restored := ledger.NewRequestBook()
	restored.Restore(rb.Snapshot(), rb.NextID())

	if restored.NextID() != 3 {
		t.Errorf("next id after restore: got %d, want 3", restored.NextID())
	}
	ids := restored.IDsFor("alice", ledger.RequestTypeDeposit)
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("restored index: got %v, want [1]", ids)
	}
}

// ============================================================================
// Test: RateLimiter
// ============================================================================

func TestRateLimiter_AccumulatesWithinWindow(t *testing.T) {
	rl := ledger.NewRateLimiter()

	w := rl.Prospective("alice", 5_000, 1_000)
	rl.Commit(w)

	w2 := rl.Prospective("alice", 3_000, 2_000)
	if w2.Accumulated != 8_000 {
		t.Errorf("accumulated: got %d, want 8000", w2.Accumulated)
	}
	if w2.WindowStart != 1_000 {
		t.Errorf("window start moved within window: got %d", w2.WindowStart)
	}
}

func TestRateLimiter_ResetsAfterOneDay(t *testing.T) {
	rl := ledger.NewRateLimiter()

	rl.Commit(rl.Prospective("alice", 5_000, 1_000))

	later := int64(1_000 + ledger.WindowMillis + 1)
	w := rl.Prospective("alice", 2_000, later)
	if w.Accumulated != 2_000 {
		t.Errorf("accumulated after reset: got %d, want 2000", w.Accumulated)
	}
	if w.WindowStart != later {
		t.Errorf("window start after reset: got %d, want %d", w.WindowStart, later)
	}
}

func TestRateLimiter_ProspectiveDoesNotMutate(t *testing.T) {
	rl := ledger.NewRateLimiter()

	rl.Prospective("alice", 5_000, 1_000)

	if _, ok := rl.Get("alice"); ok {
		t.Error("Prospective must not store a window")
	}
}

// ============================================================================
// Test: EpochManager
// ============================================================================

func TestEpochManager_InitOpensEpochOne(t *testing.T) {
	em := ledger.NewEpochManager()
	e := em.Init(42)

	if e.ID != 1 || e.Status != ledger.EpochStatusActive || e.StartTimestamp != 42 {
		t.Errorf("unexpected initial epoch: %+v", e)
	}
}

func TestEpochManager_CloseArchivesAndOpensNext(t *testing.T) {
	em := ledger.NewEpochManager()
	em.Init(1)

	em.CountSettlement(ledger.RequestTypeDeposit)
	em.CountSettlement(ledger.RequestTypeDeposit)
	em.CountSettlement(ledger.RequestTypeWithdrawal)

	closed, opened, err := em.Close(100)
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	if closed.Status != ledger.EpochStatusCompleted || closed.EndTimestamp != 100 {
		t.Errorf("closed epoch not completed: %+v", closed)
	}
	if closed.ProcessedDeposits != 2 || closed.ProcessedWithdrawals != 1 {
		t.Errorf("counters not frozen: %+v", closed)
	}
	if opened.ID != 2 || opened.Status != ledger.EpochStatusActive {
		t.Errorf("opened epoch wrong: %+v", opened)
	}
	if opened.ProcessedDeposits != 0 {
		t.Errorf("new epoch counters not zero: %+v", opened)
	}

	// Archived epoch stays reachable
	if got := em.Get(1); got == nil || got.Status != ledger.EpochStatusCompleted {
		t.Error("archived epoch 1 not reachable")
	}
	if em.Current().ID != 2 {
		t.Errorf("current epoch: got %d, want 2", em.Current().ID)
	}
}

func TestEpochManager_SettlementAttributedToActiveEpoch(t *testing.T) {
	em := ledger.NewEpochManager()
	em.Init(1)
	em.Close(10)

	em.CountSettlement(ledger.RequestTypeBorrow)

	if got := em.Get(1).ProcessedBorrows; got != 0 {
		t.Errorf("completed epoch counter moved: %d", got)
	}
	if got := em.Current().ProcessedBorrows; got != 1 {
		t.Errorf("active epoch counter: got %d, want 1", got)
	}
}

// ============================================================================
// Test: Validator
// ============================================================================

func testValidator() (*ledger.Validator, *ledger.UserRegistry, *ledger.RequestBook, *ledger.RateLimiter, *ledger.Params) {
	users := ledger.NewUserRegistry()
	book := ledger.NewRequestBook()
	limiter := ledger.NewRateLimiter()
	params := &ledger.Params{
		MinDepositAmount:     100,
		MinWithdrawalAmount:  100,
		MinBorrowAmount:      1_000,
		MaxPendingRequests:   5,
		DailyWithdrawalLimit: 10_000,
		CollateralRatioBps:   15_000,
	}
	return ledger.NewValidator(users, book, limiter, params), users, book, limiter, params
}

func TestValidator_DepositZeroAmount(t *testing.T) {
	v, _, _, _, _ := testValidator()

	outcome, err := v.ValidateDeposit("alice", 0)
	if outcome != ledger.OutcomeInvalidAmount || !errors.Is(err, ledger.ErrAmountZero) {
		t.Errorf("got outcome=%s err=%v", outcome, err)
	}
}

func TestValidator_DepositBelowMinimum(t *testing.T) {
	v, _, _, _, _ := testValidator()

	outcome, err := v.ValidateDeposit("alice", 99)
	if outcome != ledger.OutcomeInvalidAmount || !errors.Is(err, ledger.ErrAmountTooLow) {
		t.Errorf("got outcome=%s err=%v", outcome, err)
	}
}

func TestValidator_DepositPendingCap(t *testing.T) {
	v, _, book, _, _ := testValidator()

	for i := 0; i < 5; i++ {
		book.Append(&ledger.Request{Type: ledger.RequestTypeDeposit, Account: "alice", Amount: 100})
	}

	outcome, err := v.ValidateDeposit("alice", 100)
	if outcome != ledger.OutcomeRequestLimitExceeded || !errors.Is(err, ledger.ErrRequestLimitExceeded) {
		t.Errorf("got outcome=%s err=%v", outcome, err)
	}
}

// Withdrawal checks run in a fixed order: registration first, then amount,
// balance, pending cap, daily cap.
func TestValidator_WithdrawalPrecedence(t *testing.T) {
	v, users, book, _, _ := testValidator()

	// Unregistered caller with every other rule violated: registration wins.
	outcome, _, err := v.ValidateWithdrawal("ghost", 0, 1_000)
	if outcome != ledger.OutcomeUserNotRegistered || !errors.Is(err, ledger.ErrUserNotRegistered) {
		t.Fatalf("registration precedence: got outcome=%s err=%v", outcome, err)
	}

	u, _ := users.RegisterOrTouch("alice", 1)
	u.ActiveBalance = 500

	// Zero amount beats balance.
	outcome, _, err = v.ValidateWithdrawal("alice", 0, 1_000)
	if outcome != ledger.OutcomeInvalidAmount || !errors.Is(err, ledger.ErrAmountZero) {
		t.Fatalf("zero amount: got outcome=%s err=%v", outcome, err)
	}

	// Below minimum.
	outcome, _, err = v.ValidateWithdrawal("alice", 50, 1_000)
	if outcome != ledger.OutcomeInvalidAmount || !errors.Is(err, ledger.ErrAmountTooLow) {
		t.Fatalf("below minimum: got outcome=%s err=%v", outcome, err)
	}

	// Balance beats pending cap.
	outcome, _, err = v.ValidateWithdrawal("alice", 600, 1_000)
	if outcome != ledger.OutcomeInsufficientBalance || !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("balance: got outcome=%s err=%v", outcome, err)
	}

	// Pending cap beats daily cap.
	u.ActiveBalance = 100_000
	for i := 0; i < 5; i++ {
		book.Append(&ledger.Request{Type: ledger.RequestTypeWithdrawal, Account: "alice", Amount: 100})
	}
	outcome, _, err = v.ValidateWithdrawal("alice", 100_000, 1_000)
	if outcome != ledger.OutcomeRequestLimitExceeded || !errors.Is(err, ledger.ErrRequestLimitExceeded) {
		t.Fatalf("pending cap: got outcome=%s err=%v", outcome, err)
	}
}

func TestValidator_WithdrawalDailyCap(t *testing.T) {
	v, users, _, limiter, _ := testValidator()

	u, _ := users.RegisterOrTouch("alice", 1)
	u.ActiveBalance = 100_000

	outcome, w, err := v.ValidateWithdrawal("alice", 10_000, 1_000)
	if outcome != ledger.OutcomeValid || err != nil {
		t.Fatalf("first withdrawal should pass: outcome=%s err=%v", outcome, err)
	}
	limiter.Commit(w)

	outcome, _, err = v.ValidateWithdrawal("alice", 100, 2_000)
	if outcome != ledger.OutcomeDailyLimitExceeded || !errors.Is(err, ledger.ErrDailyLimitExceeded) {
		t.Fatalf("second withdrawal should hit daily cap: outcome=%s err=%v", outcome, err)
	}

	// Failed check must leave the committed window untouched.
	stored, ok := limiter.Get("alice")
	if !ok || stored.Accumulated != 10_000 {
		t.Errorf("window mutated by failed check: %+v", stored)
	}

	// After a simulated day the cap applies afresh.
	later := int64(1_000 + ledger.WindowMillis + 1)
	outcome, _, err = v.ValidateWithdrawal("alice", 10_000, later)
	if outcome != ledger.OutcomeValid || err != nil {
		t.Errorf("withdrawal after window reset: outcome=%s err=%v", outcome, err)
	}
}

func TestValidator_BorrowCollateralRatio(t *testing.T) {
	v, users, _, _, _ := testValidator()
	users.RegisterOrTouch("alice", 1)

	// ratio 15000 bps: borrow 1000 needs collateral >= 1500
	outcome, err := v.ValidateBorrow("alice", 1_000, 1_499)
	if outcome != ledger.OutcomeInsufficientCollateral || !errors.Is(err, ledger.ErrInsufficientCollateral) {
		t.Errorf("under-collateralized: outcome=%s err=%v", outcome, err)
	}

	outcome, err = v.ValidateBorrow("alice", 1_000, 1_500)
	if outcome != ledger.OutcomeValid || err != nil {
		t.Errorf("exactly at floor: outcome=%s err=%v", outcome, err)
	}
}

func TestValidator_BorrowRequiresRegistration(t *testing.T) {
	v, _, _, _, _ := testValidator()

	outcome, err := v.ValidateBorrow("ghost", 1_000, 10_000)
	if outcome != ledger.OutcomeUserNotRegistered || !errors.Is(err, ledger.ErrUserNotRegistered) {
		t.Errorf("got outcome=%s err=%v", outcome, err)
	}
}

func TestValidator_BorrowCollateralFloorOverflow(t *testing.T) {
	v, users, _, _, _ := testValidator()
	users.RegisterOrTouch("alice", 1)

	// amount * ratio overflows uint64: requirement is unsatisfiable, so
	// even max collateral must be rejected.
	outcome, err := v.ValidateBorrow("alice", math.MaxUint64, math.MaxUint64)
	if outcome != ledger.OutcomeInsufficientCollateral || !errors.Is(err, ledger.ErrInsufficientCollateral) {
		t.Errorf("overflowing floor: outcome=%s err=%v", outcome, err)
	}
}

// ============================================================================
// Test: UserRegistry
// ============================================================================

func TestUserRegistry_RegisterOrTouch(t *testing.T) {
	ur := ledger.NewUserRegistry()

	u, created := ur.RegisterOrTouch("alice", 7)
	if !created || !u.IsRegistered || u.RegisteredAt != 7 {
		t.Errorf("first touch: created=%v user=%+v", created, u)
	}

	u2, created := ur.RegisterOrTouch("alice", 99)
	if created || u2 != u {
		t.Error("second touch must return the existing user")
	}
}

func TestUserRegistry_SetRegistrationUnknownUser(t *testing.T) {
	ur := ledger.NewUserRegistry()

	err := ur.SetRegistration("ghost", true)
	if !errors.Is(err, ledger.ErrUserNotFound) {
		t.Errorf("got %v, want ErrUserNotFound", err)
	}
}

func TestUserRegistry_SetRegistrationTogglesFlag(t *testing.T) {
	ur := ledger.NewUserRegistry()
	ur.RegisterOrTouch("alice", 1)

	if err := ur.SetRegistration("alice", false); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ur.Get("alice").IsRegistered {
		t.Error("registration should be revoked")
	}

	if err := ur.SetRegistration("alice", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !ur.Get("alice").IsRegistered {
		t.Error("registration should be approved")
	}
}
