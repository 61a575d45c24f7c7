package core_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"RwaLedger/internal/core"
	"RwaLedger/internal/event"
	"RwaLedger/internal/ledger"
	"RwaLedger/internal/observability"

	"github.com/rs/zerolog"
)

func testParams() ledger.Params {
	return ledger.Params{
		MinDepositAmount:     1,
		MinWithdrawalAmount:  1,
		MinBorrowAmount:      1,
		MaxPendingRequests:   5,
		DailyWithdrawalLimit: 10_000,
		CollateralRatioBps:   15_000,
	}
}

// newTestEngine builds an engine with a buffered persist channel large
// enough that emits never block in tests.
func newTestEngine(t *testing.T, params ledger.Params) (*core.Engine, chan core.Output) {
	t.Helper()
	out := make(chan core.Output, 1024)
	e := core.NewEngine(core.EngineConfig{
		Owner:       "owner",
		Admins:      []ledger.Account{"admin"},
		Params:      params,
		PersistChan: out,
		Logger:      observability.NewLoggerWithLevel("engine-test", zerolog.Disabled),
	})
	e.Genesis(cc("owner", 1))
	return e, out
}

var txCounter int

func cc(caller ledger.Account, now int64) core.CallContext {
	txCounter++
	return core.CallContext{
		Caller: caller,
		Now:    now,
		TxHash: fmt.Sprintf("0x%08x", txCounter),
		Block:  uint64(txCounter),
	}
}

// drainTypes empties the persist channel and returns emitted event types.
func drainTypes(out chan core.Output) []event.EventType {
	var types []event.EventType
	for {
		select {
		case o := <-out:
			types = append(types, o.Envelope.EventType)
		default:
			return types
		}
	}
}

// ============================================================================
// Test: Scenario walkthroughs
// ============================================================================

// Deposit lifecycle: request id 1, auto-registration, pending then active
// balance, epoch counter.
func TestEngine_DepositLifecycle(t *testing.T) {
	e, out := newTestEngine(t, testParams())
	drainTypes(out)

	id, err := e.CreateDepositRequest(cc("alice", 10), 1_000)
	if err != nil {
		t.Fatalf("create deposit: %v", err)
	}
	if id != 1 {
		t.Errorf("first request id: got %d, want 1", id)
	}

	u, ok := e.GetUser("alice")
	if !ok || !u.IsRegistered {
		t.Fatal("alice should be auto-registered")
	}
	if u.PendingDeposits != 1_000 || u.ActiveBalance != 0 {
		t.Errorf("after create: pending=%d active=%d", u.PendingDeposits, u.ActiveBalance)
	}

	types := drainTypes(out)
	if len(types) != 2 || types[0] != event.EventTypeUserRegistered || types[1] != event.EventTypeDepositRequested {
		t.Errorf("emitted types: %v", types)
	}

	if err := e.ProcessDepositRequest(cc("admin", 20), 1); err != nil {
		t.Fatalf("process deposit: %v", err)
	}

	u, _ = e.GetUser("alice")
	if u.ActiveBalance != 1_000 || u.PendingDeposits != 0 {
		t.Errorf("after settle: active=%d pending=%d", u.ActiveBalance, u.PendingDeposits)
	}
	ep, _ := e.GetCurrentEpoch()
	if ep.ProcessedDeposits != 1 {
		t.Errorf("epoch deposit counter: got %d, want 1", ep.ProcessedDeposits)
	}
	req, _ := e.GetRequest(1)
	if !req.IsProcessed || req.EpochID != ep.ID {
		t.Errorf("request after settle: %+v", req)
	}
}

// Withdrawal above balance: rejected, no request, audit event emitted.
func TestEngine_WithdrawalInsufficientBalance(t *testing.T) {
	e, out := newTestEngine(t, testParams())

	e.CreateDepositRequest(cc("alice", 10), 1_000)
	e.ProcessDepositRequest(cc("admin", 20), 1)
	drainTypes(out)

	_, err := e.CreateWithdrawalRequest(cc("alice", 30), 1_500)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	if got := e.RequestCount(ledger.RequestTypeWithdrawal); got != 0 {
		t.Errorf("withdrawal count: got %d, want 0", got)
	}
	u, _ := e.GetUser("alice")
	if u.ActiveBalance != 1_000 {
		t.Errorf("balance mutated by rejected request: %d", u.ActiveBalance)
	}

	types := drainTypes(out)
	if len(types) != 1 || types[0] != event.EventTypeValidationFailed {
		t.Errorf("emitted types: %v", types)
	}
}

// Pending-request cap: 5 admitted, 6th rejected, freed slot reusable.
func TestEngine_PendingRequestCap(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	for i := 0; i < 5; i++ {
		if _, err := e.CreateDepositRequest(cc("alice", 10), 100); err != nil {
			t.Fatalf("deposit %d: %v", i+1, err)
		}
	}

	_, err := e.CreateDepositRequest(cc("alice", 11), 100)
	if !errors.Is(err, ledger.ErrRequestLimitExceeded) {
		t.Fatalf("6th deposit: got %v, want ErrRequestLimitExceeded", err)
	}

	if err := e.ProcessDepositRequest(cc("admin", 20), 1); err != nil {
		t.Fatalf("process: %v", err)
	}

	if _, err := e.CreateDepositRequest(cc("alice", 30), 100); err != nil {
		t.Errorf("deposit after freed slot: %v", err)
	}
}

// Daily withdrawal cap: limit consumed, immediate retry rejected, window
// reset after a simulated day.
func TestEngine_DailyWithdrawalCap(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	e.CreateDepositRequest(cc("alice", 10), 20_000)
	e.ProcessDepositRequest(cc("admin", 20), 1)

	if _, err := e.CreateWithdrawalRequest(cc("alice", 100), 10_000); err != nil {
		t.Fatalf("first withdrawal: %v", err)
	}

	_, err := e.CreateWithdrawalRequest(cc("alice", 101), 1)
	if !errors.Is(err, ledger.ErrDailyLimitExceeded) {
		t.Fatalf("second withdrawal: got %v, want ErrDailyLimitExceeded", err)
	}

	later := int64(100 + ledger.WindowMillis + 1)
	if _, err := e.CreateWithdrawalRequest(cc("alice", later), 10_000); err != nil {
		t.Errorf("withdrawal after window reset: %v", err)
	}
}

// Batch with one valid, one already-processed, one nonexistent id:
// counts 1/2, no error, valid item settles normally.
func TestEngine_BatchPartialFailure(t *testing.T) {
	e, out := newTestEngine(t, testParams())

	e.CreateDepositRequest(cc("alice", 10), 500) // id 1
	e.CreateDepositRequest(cc("alice", 10), 700) // id 2
	e.ProcessDepositRequest(cc("admin", 20), 1)
	drainTypes(out)

	res, err := e.BatchProcessRequests(cc("admin", 30), ledger.RequestTypeDeposit, []uint64{2, 1, 999})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if res.Processed != 1 || res.Failed != 2 {
		t.Errorf("batch result: processed=%d failed=%d", res.Processed, res.Failed)
	}

	// Per-item outcomes in submitted order, so a caller can tell which
	// ids failed and why.
	if len(res.Items) != 3 {
		t.Fatalf("items: got %d, want 3", len(res.Items))
	}
	if res.Items[0].RequestID != 2 || res.Items[0].Status != event.BatchItemProcessed {
		t.Errorf("item 0: %+v", res.Items[0])
	}
	if res.Items[1].RequestID != 1 || res.Items[1].Status != event.BatchItemFailed || res.Items[1].Reason == "" {
		t.Errorf("item 1: %+v", res.Items[1])
	}
	if res.Items[2].RequestID != 999 || res.Items[2].Status != event.BatchItemFailed {
		t.Errorf("item 2: %+v", res.Items[2])
	}

	u, _ := e.GetUser("alice")
	if u.ActiveBalance != 1_200 || u.PendingDeposits != 0 {
		t.Errorf("after batch: active=%d pending=%d", u.ActiveBalance, u.PendingDeposits)
	}

	types := drainTypes(out)
	if len(types) != 2 || types[0] != event.EventTypeRequestProcessed || types[1] != event.EventTypeBatchProcessed {
		t.Errorf("emitted types: %v", types)
	}
}

func TestEngine_BatchEmptyRejected(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	_, err := e.BatchProcessRequests(cc("admin", 10), ledger.RequestTypeDeposit, nil)
	if !errors.Is(err, ledger.ErrEmptyBatch) {
		t.Errorf("got %v, want ErrEmptyBatch", err)
	}
}

// Epoch rollover: counters archived frozen, new epoch counts from zero,
// subsequent settlement attributed to the new epoch.
func TestEngine_EpochRollover(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	for i := 0; i < 3; i++ {
		e.CreateDepositRequest(cc("alice", 10), 100)
	}
	e.BatchProcessRequests(cc("admin", 20), ledger.RequestTypeDeposit, []uint64{1, 2, 3})

	newID, err := e.CloseCurrentEpoch(cc("owner", 30))
	if err != nil {
		t.Fatalf("close epoch: %v", err)
	}
	if newID != 2 {
		t.Errorf("new epoch id: got %d, want 2", newID)
	}

	ep1, _ := e.GetEpoch(1)
	if ep1.Status != ledger.EpochStatusCompleted || ep1.ProcessedDeposits != 3 {
		t.Errorf("archived epoch 1: %+v", ep1)
	}
	ep2, _ := e.GetCurrentEpoch()
	if ep2.ID != 2 || ep2.ProcessedDeposits != 0 {
		t.Errorf("active epoch 2: %+v", ep2)
	}

	// Request created under epoch 1, settled under epoch 2: attribution
	// follows settlement time.
	e.CreateDepositRequest(cc("alice", 40), 100)
	e.ProcessDepositRequest(cc("admin", 50), 4)

	ep1, _ = e.GetEpoch(1)
	ep2, _ = e.GetCurrentEpoch()
	if ep1.ProcessedDeposits != 3 || ep2.ProcessedDeposits != 1 {
		t.Errorf("attribution: epoch1=%d epoch2=%d", ep1.ProcessedDeposits, ep2.ProcessedDeposits)
	}
}

// ============================================================================
// Test: invariants
// ============================================================================

func TestEngine_ReprocessingRejected(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	e.CreateDepositRequest(cc("alice", 10), 1_000)
	e.ProcessDepositRequest(cc("admin", 20), 1)

	err := e.ProcessDepositRequest(cc("admin", 30), 1)
	if !errors.Is(err, ledger.ErrAlreadyProcessed) {
		t.Fatalf("got %v, want ErrAlreadyProcessed", err)
	}

	u, _ := e.GetUser("alice")
	if u.ActiveBalance != 1_000 {
		t.Errorf("reprocess mutated balance: %d", u.ActiveBalance)
	}
}

func TestEngine_SettleTypeMismatch(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	e.CreateDepositRequest(cc("alice", 10), 1_000)

	err := e.ProcessWithdrawalRequest(cc("admin", 20), 1)
	if !errors.Is(err, ledger.ErrNotWithdrawalRequest) {
		t.Errorf("got %v, want ErrNotWithdrawalRequest", err)
	}
	err = e.ProcessBorrowRequest(cc("admin", 20), 1)
	if !errors.Is(err, ledger.ErrNotBorrowRequest) {
		t.Errorf("got %v, want ErrNotBorrowRequest", err)
	}
}

// Conservation: active + pending_withdrawals == settled deposits minus
// executed settled withdrawals, across an arbitrary call sequence.
func TestEngine_BalanceConservation(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	e.CreateDepositRequest(cc("alice", 10), 5_000) // id 1
	e.CreateDepositRequest(cc("alice", 10), 3_000) // id 2
	e.ProcessDepositRequest(cc("admin", 20), 1)
	e.ProcessDepositRequest(cc("admin", 20), 2)

	e.CreateWithdrawalRequest(cc("alice", 30), 2_000) // id 3
	e.ProcessWithdrawalRequest(cc("admin", 40), 3)

	u, _ := e.GetUser("alice")
	settledDeposits := uint64(8_000)
	settledWithdrawals := uint64(2_000)
	if u.ActiveBalance+u.PendingWithdrawals != settledDeposits-settledWithdrawals {
		t.Errorf("conservation broken: active=%d pendingW=%d", u.ActiveBalance, u.PendingWithdrawals)
	}

	// Mid-flight withdrawal holds the reservation on the pending side.
	e.CreateWithdrawalRequest(cc("alice", 50), 1_000)
	u, _ = e.GetUser("alice")
	if u.ActiveBalance+u.PendingWithdrawals != settledDeposits-settledWithdrawals {
		t.Errorf("conservation broken mid-flight: active=%d pendingW=%d", u.ActiveBalance, u.PendingWithdrawals)
	}
}

func TestEngine_SequenceStrictlyIncreasing(t *testing.T) {
	e, out := newTestEngine(t, testParams())

	e.CreateDepositRequest(cc("alice", 10), 1_000)
	e.CreateWithdrawalRequest(cc("alice", 20), 500) // rejected: unsettled deposit
	e.ProcessDepositRequest(cc("admin", 30), 1)
	e.CloseCurrentEpoch(cc("owner", 40))

	var last int64 = -1
	for {
		select {
		case o := <-out:
			if o.Envelope.Sequence != last+1 {
				t.Fatalf("sequence gap: %d after %d", o.Envelope.Sequence, last)
			}
			last = o.Envelope.Sequence
		default:
			return
		}
	}
}

// ============================================================================
// Test: authorization
// ============================================================================

func TestEngine_ProcessRequiresAdmin(t *testing.T) {
	e, _ := newTestEngine(t, testParams())
	e.CreateDepositRequest(cc("alice", 10), 1_000)

	err := e.ProcessDepositRequest(cc("alice", 20), 1)
	if !errors.Is(err, ledger.ErrNotAdmin) {
		t.Errorf("got %v, want ErrNotAdmin", err)
	}
}

func TestEngine_CloseEpochRequiresOwner(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	_, err := e.CloseCurrentEpoch(cc("admin", 10))
	if !errors.Is(err, ledger.ErrNotOwner) {
		t.Errorf("got %v, want ErrNotOwner", err)
	}
}

func TestEngine_ParamSettersRequireOwner(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	if err := e.SetDailyWithdrawalLimit(cc("admin", 10), 1); !errors.Is(err, ledger.ErrNotOwner) {
		t.Errorf("got %v, want ErrNotOwner", err)
	}
	if err := e.SetDailyWithdrawalLimit(cc("owner", 20), 99_999); err != nil {
		t.Fatalf("owner set param: %v", err)
	}
	if got := e.Params().DailyWithdrawalLimit; got != 99_999 {
		t.Errorf("param not applied: %d", got)
	}
}

// ============================================================================
// Test: execution gateway
// ============================================================================

func setupProcessedWithdrawal(t *testing.T, e *core.Engine) uint64 {
	t.Helper()
	e.CreateDepositRequest(cc("alice", 10), 5_000) // id 1
	e.ProcessDepositRequest(cc("admin", 20), 1)
	id, err := e.CreateWithdrawalRequest(cc("alice", 30), 2_000) // id 2
	if err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}
	if err := e.ProcessWithdrawalRequest(cc("admin", 40), id); err != nil {
		t.Fatalf("process withdrawal: %v", err)
	}
	return id
}

func TestEngine_ExecuteWithdrawal(t *testing.T) {
	e, out := newTestEngine(t, testParams())
	id := setupProcessedWithdrawal(t, e)
	drainTypes(out)

	before := e.TreasuryBalance()
	if err := e.ExecuteWithdrawal(cc("alice", 50), id); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := e.TreasuryBalance(); got != before-2_000 {
		t.Errorf("treasury: got %d, want %d", got, before-2_000)
	}

	types := drainTypes(out)
	if len(types) != 1 || types[0] != event.EventTypeWithdrawalExecuted {
		t.Errorf("emitted types: %v", types)
	}
}

// A settled withdrawal pays out exactly once. The treasury pools every
// depositor's custody, so a repeated execute would spend other users'
// funds.
func TestEngine_ExecuteWithdrawalOnlyOnce(t *testing.T) {
	e, out := newTestEngine(t, testParams())

	e.CreateDepositRequest(cc("alice", 10), 2_000) // id 1
	e.CreateDepositRequest(cc("bob", 10), 2_000)   // id 2
	e.ProcessDepositRequest(cc("admin", 20), 1)
	e.ProcessDepositRequest(cc("admin", 20), 2)
	id, err := e.CreateWithdrawalRequest(cc("alice", 30), 2_000) // id 3
	if err != nil {
		t.Fatalf("create withdrawal: %v", err)
	}
	if err := e.ProcessWithdrawalRequest(cc("admin", 40), id); err != nil {
		t.Fatalf("process withdrawal: %v", err)
	}
	drainTypes(out)

	if err := e.ExecuteWithdrawal(cc("alice", 50), id); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if got := e.TreasuryBalance(); got != 2_000 {
		t.Fatalf("treasury after payout: got %d, want 2000", got)
	}
	drainTypes(out)

	if err := e.ExecuteWithdrawal(cc("alice", 60), id); !errors.Is(err, ledger.ErrAlreadyExecuted) {
		t.Errorf("second execute: got %v, want ErrAlreadyExecuted", err)
	}
	// Bob's custody stays intact.
	if got := e.TreasuryBalance(); got != 2_000 {
		t.Errorf("treasury after repeat: got %d, want 2000", got)
	}
	if types := drainTypes(out); len(types) != 0 {
		t.Errorf("events emitted on rejected repeat: %v", types)
	}

	req, _ := e.GetRequest(id)
	if !req.IsExecuted || req.ExecutedAt != 50 {
		t.Errorf("execution marker: executed=%v at=%d", req.IsExecuted, req.ExecutedAt)
	}
}

func TestEngine_ExecuteWithdrawalChecks(t *testing.T) {
	e, _ := newTestEngine(t, testParams())
	id := setupProcessedWithdrawal(t, e)

	if err := e.ExecuteWithdrawal(cc("bob", 50), id); !errors.Is(err, ledger.ErrNotRequestOwner) {
		t.Errorf("foreign caller: got %v, want ErrNotRequestOwner", err)
	}
	if err := e.ExecuteWithdrawal(cc("alice", 50), 999); !errors.Is(err, ledger.ErrRequestNotFound) {
		t.Errorf("missing id: got %v, want ErrRequestNotFound", err)
	}
	if err := e.ExecuteWithdrawal(cc("alice", 50), 1); !errors.Is(err, ledger.ErrNotWithdrawalRequest) {
		t.Errorf("deposit id: got %v, want ErrNotWithdrawalRequest", err)
	}

	// Unprocessed withdrawal cannot execute.
	unproc, _ := e.CreateWithdrawalRequest(cc("alice", 60), 1_000)
	if err := e.ExecuteWithdrawal(cc("alice", 70), unproc); !errors.Is(err, ledger.ErrWithdrawalNotProcessed) {
		t.Errorf("unprocessed: got %v, want ErrWithdrawalNotProcessed", err)
	}
}

func TestEngine_ExecuteWithdrawalTransferFailureLeavesState(t *testing.T) {
	out := make(chan core.Output, 1024)
	e := core.NewEngine(core.EngineConfig{
		Owner:       "owner",
		Admins:      []ledger.Account{"admin"},
		Params:      testParams(),
		PersistChan: out,
		Transfer: func(account ledger.Account, amount uint64) error {
			return errors.New("rpc unavailable")
		},
		Logger: observability.NewLoggerWithLevel("engine-test", zerolog.Disabled),
	})
	e.Genesis(cc("owner", 1))
	id := setupProcessedWithdrawal(t, e)
	drainTypes(out)

	before := e.TreasuryBalance()
	err := e.ExecuteWithdrawal(cc("alice", 50), id)
	if !errors.Is(err, ledger.ErrTransferFailed) {
		t.Fatalf("got %v, want ErrTransferFailed", err)
	}
	if e.TreasuryBalance() != before {
		t.Error("treasury mutated despite failed transfer")
	}
	if types := drainTypes(out); len(types) != 0 {
		t.Errorf("events emitted despite failed transfer: %v", types)
	}
}

func TestEngine_EmergencyWithdraw(t *testing.T) {
	e, _ := newTestEngine(t, testParams())
	e.CreateDepositRequest(cc("alice", 10), 5_000)

	if err := e.EmergencyWithdraw(cc("admin", 20), 100); !errors.Is(err, ledger.ErrNotOwner) {
		t.Errorf("admin caller: got %v, want ErrNotOwner", err)
	}
	if err := e.EmergencyWithdraw(cc("owner", 20), 0); !errors.Is(err, ledger.ErrAmountZero) {
		t.Errorf("zero amount: got %v, want ErrAmountZero", err)
	}
	if err := e.EmergencyWithdraw(cc("owner", 20), 10_000); !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Errorf("over treasury: got %v, want ErrInsufficientBalance", err)
	}

	if err := e.EmergencyWithdraw(cc("owner", 20), 5_000); err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if got := e.TreasuryBalance(); got != 0 {
		t.Errorf("treasury: got %d, want 0", got)
	}
	// Per-user ledgers untouched by the escape hatch.
	u, _ := e.GetUser("alice")
	if u.PendingDeposits != 5_000 {
		t.Errorf("user ledger touched: %+v", u)
	}
}

// ============================================================================
// Test: registration lifecycle
// ============================================================================

func TestEngine_RegistrationLifecycle(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	err := e.SetRegistrationStatus(cc("admin", 10), "ghost", true)
	if !errors.Is(err, ledger.ErrUserNotFound) {
		t.Fatalf("unknown account: got %v, want ErrUserNotFound", err)
	}

	e.CreateDepositRequest(cc("bob", 20), 1_000) // id 1, auto-registers

	if err := e.SetRegistrationStatus(cc("admin", 30), "bob", false); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	// Revoked users cannot settle.
	err = e.ProcessDepositRequest(cc("admin", 40), 1)
	if !errors.Is(err, ledger.ErrUserNotRegistered) {
		t.Errorf("settle for revoked user: got %v, want ErrUserNotRegistered", err)
	}

	if err := e.SetRegistrationStatus(cc("admin", 50), "bob", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := e.ProcessDepositRequest(cc("admin", 60), 1); err != nil {
		t.Errorf("settle after approval: %v", err)
	}
}

// ============================================================================
// Test: snapshot round trip
// ============================================================================

func TestEngine_SnapshotRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	e.CreateDepositRequest(cc("alice", 10), 15_000)
	e.ProcessDepositRequest(cc("admin", 20), 1)
	e.CreateWithdrawalRequest(cc("alice", 30), 9_000)
	e.CloseCurrentEpoch(cc("owner", 40))

	snap := e.CreateSnapshotState()

	restored := core.NewEngine(core.EngineConfig{
		Owner:  "owner",
		Admins: []ledger.Account{"admin"},
		Params: testParams(),
		Logger: observability.NewLoggerWithLevel("engine-test", zerolog.Disabled),
	})
	restored.RestoreFromSnapshot(snap)

	if restored.Sequence() != e.Sequence() {
		t.Errorf("sequence: got %d, want %d", restored.Sequence(), e.Sequence())
	}
	if restored.TreasuryBalance() != e.TreasuryBalance() {
		t.Errorf("treasury: got %d, want %d", restored.TreasuryBalance(), e.TreasuryBalance())
	}
	u, ok := restored.GetUser("alice")
	if !ok || u.ActiveBalance != 6_000 || u.PendingWithdrawals != 9_000 {
		t.Errorf("restored user: %+v", u)
	}
	ep, ok := restored.GetCurrentEpoch()
	if !ok || ep.ID != 2 {
		t.Errorf("restored epoch: %+v", ep)
	}

	// Restored engine continues the id sequence.
	id, err := restored.CreateDepositRequest(cc("alice", 50), 100)
	if err != nil {
		t.Fatalf("deposit on restored engine: %v", err)
	}
	if id != 3 {
		t.Errorf("next id after restore: got %d, want 3", id)
	}

	// Daily window survives the restore: 9_000 already accumulated, so
	// another 2_000 breaches the 10_000 cap even with balance to spare.
	_, err = restored.CreateWithdrawalRequest(cc("alice", 60), 2_000)
	if !errors.Is(err, ledger.ErrDailyLimitExceeded) {
		t.Errorf("window lost in restore: %v", err)
	}
}

// A captured snapshot is a point-in-time copy. Serialization happens
// outside the command loop, so later mutations must not bleed into a
// snapshot already taken.
func TestEngine_SnapshotDetachedFromLiveState(t *testing.T) {
	e, _ := newTestEngine(t, testParams())

	e.CreateDepositRequest(cc("alice", 10), 1_000) // id 1
	snap := e.CreateSnapshotState()

	// Mutate after capture.
	if err := e.ProcessDepositRequest(cc("admin", 20), 1); err != nil {
		t.Fatalf("process: %v", err)
	}

	var u *ledger.User
	for _, s := range snap.Users {
		if s.Account == "alice" {
			u = s
		}
	}
	if u == nil {
		t.Fatal("alice missing from snapshot")
	}
	if u.ActiveBalance != 0 || u.PendingDeposits != 1_000 {
		t.Errorf("snapshot user mutated: active=%d pending=%d", u.ActiveBalance, u.PendingDeposits)
	}

	var req *ledger.Request
	for _, s := range snap.Requests {
		if s.ID == 1 {
			req = s
		}
	}
	if req == nil {
		t.Fatal("request 1 missing from snapshot")
	}
	if req.IsProcessed {
		t.Error("snapshot request carries post-capture settlement")
	}

	for _, ep := range snap.Epochs {
		if ep.ProcessedDeposits != 0 {
			t.Errorf("snapshot epoch %d counted post-capture settlement: %d", ep.ID, ep.ProcessedDeposits)
		}
	}
}

// ============================================================================
// Test: command loop
// ============================================================================

func TestLoop_SerializesCommands(t *testing.T) {
	e, _ := newTestEngine(t, testParams())
	loop := core.NewLoop(e, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	var id uint64
	err := loop.Do(ctx, func(e *core.Engine) error {
		var err error
		id, err = e.CreateDepositRequest(cc("alice", 10), 1_000)
		return err
	})
	if err != nil {
		t.Fatalf("loop create: %v", err)
	}
	if id != 1 {
		t.Errorf("id: got %d, want 1", id)
	}

	err = loop.Do(ctx, func(e *core.Engine) error {
		return e.ProcessDepositRequest(cc("admin", 20), id)
	})
	if err != nil {
		t.Fatalf("loop process: %v", err)
	}

	var u ledger.User
	loop.Do(ctx, func(e *core.Engine) error {
		u, _ = e.GetUser("alice")
		return nil
	})
	if u.ActiveBalance != 1_000 {
		t.Errorf("balance via loop: %d", u.ActiveBalance)
	}
}

func TestLoop_DoAfterCancel(t *testing.T) {
	e, _ := newTestEngine(t, testParams())
	loop := core.NewLoop(e, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	err := loop.Do(context.Background(), func(*core.Engine) error { return nil })
	if !errors.Is(err, core.ErrLoopClosed) {
		t.Errorf("got %v, want ErrLoopClosed", err)
	}
}
