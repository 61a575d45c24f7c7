package core

import (
	"fmt"

	"RwaLedger/internal/event"
	"RwaLedger/internal/ledger"
	"RwaLedger/internal/observability"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TransferFunc performs the external payout for executed and emergency
// withdrawals. A nil func means the payout succeeds unconditionally
// (payouts handled out of band). A returned error aborts the call with
// ledger state unchanged.
type TransferFunc func(account ledger.Account, amount uint64) error

// Output is one emitted event on its way to the persistence and publish
// pipelines.
type Output struct {
	Envelope *event.Envelope
}

// Engine is the single-writer custody ledger. Every entry point runs to
// completion with no interleaving; all mutation is serialized through the
// command Loop. The engine never reads the wall clock; timestamps come
// from the CallContext.
type Engine struct {
	owner  ledger.Account
	admins map[ledger.Account]bool

	params    ledger.Params
	users     *ledger.UserRegistry
	book      *ledger.RequestBook
	limiter   *ledger.RateLimiter
	epochs    *ledger.EpochManager
	validator *ledger.Validator

	// treasury is the custodial pool: credited when deposits enter
	// custody at request creation, debited by executed and emergency
	// withdrawals.
	treasury uint64

	sequence int64
	transfer TransferFunc

	persistChan chan<- Output
	publishChan chan<- Output
	metrics     *observability.Metrics
	log         zerolog.Logger
}

// EngineConfig wires the engine's collaborators. Channels and metrics
// may be nil in unit tests.
type EngineConfig struct {
	Owner       ledger.Account
	Admins      []ledger.Account
	Params      ledger.Params
	Transfer    TransferFunc
	PersistChan chan<- Output
	PublishChan chan<- Output
	Metrics     *observability.Metrics
	Logger      zerolog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	admins := make(map[ledger.Account]bool, len(cfg.Admins))
	for _, a := range cfg.Admins {
		admins[a] = true
	}

	users := ledger.NewUserRegistry()
	book := ledger.NewRequestBook()
	limiter := ledger.NewRateLimiter()

	e := &Engine{
		owner:       cfg.Owner,
		admins:      admins,
		params:      cfg.Params,
		users:       users,
		book:        book,
		limiter:     limiter,
		epochs:      ledger.NewEpochManager(),
		transfer:    cfg.Transfer,
		persistChan: cfg.PersistChan,
		publishChan: cfg.PublishChan,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
	}
	e.validator = ledger.NewValidator(users, book, limiter, &e.params)
	return e
}

// Genesis opens epoch 1. Called once on cold start; restored engines
// carry their epoch state in the snapshot.
func (e *Engine) Genesis(cc CallContext) {
	if e.epochs.Current() != nil {
		return
	}
	opened := e.epochs.Init(cc.Now)
	e.emit(cc, event.EventTypeEpochCreated, event.EpochCreated{
		EpochID:        opened.ID,
		StartTimestamp: opened.StartTimestamp,
	})
	if e.metrics != nil {
		e.metrics.CurrentEpoch.Set(float64(opened.ID))
	}
}

// ----------------------------------------------------------------------------
// Request creation
// ----------------------------------------------------------------------------

// CreateDepositRequest admits a deposit intent and takes custody of the
// funds. The first deposit auto-registers the caller.
func (e *Engine) CreateDepositRequest(cc CallContext, amount uint64) (uint64, error) {
	if err := e.authorize(cc, RoleAny); err != nil {
		return 0, err
	}

	outcome, err := e.validator.ValidateDeposit(cc.Caller, amount)
	if err != nil {
		e.rejectRequest(cc, ledger.RequestTypeDeposit, amount, outcome)
		return 0, fmt.Errorf("create deposit request: %w", err)
	}

	user, created := e.users.RegisterOrTouch(cc.Caller, cc.Now)

	req := &ledger.Request{
		Type:      ledger.RequestTypeDeposit,
		Account:   cc.Caller,
		Amount:    amount,
		CreatedAt: cc.Now,
		TxHash:    cc.TxHash,
		Block:     cc.Block,
	}
	id := e.book.Append(req)

	user.PendingDeposits += amount
	e.treasury += amount

	if created {
		e.emit(cc, event.EventTypeUserRegistered, event.UserRegistered{
			Account:  string(cc.Caller),
			Approved: true,
		})
		if e.metrics != nil {
			e.metrics.UsersRegistered.Inc()
		}
	}
	e.emit(cc, event.EventTypeDepositRequested, event.DepositRequested{
		RequestID: id,
		Account:   string(cc.Caller),
		Amount:    amount,
	})
	e.noteCreated(ledger.RequestTypeDeposit)
	return id, nil
}

// CreateWithdrawalRequest admits a withdrawal intent, reserving the
// amount immediately: active balance is debited at creation, settled
// later by the operator.
func (e *Engine) CreateWithdrawalRequest(cc CallContext, amount uint64) (uint64, error) {
	if err := e.authorize(cc, RoleAny); err != nil {
		return 0, err
	}

	outcome, window, err := e.validator.ValidateWithdrawal(cc.Caller, amount, cc.Now)
	if err != nil {
		e.rejectRequest(cc, ledger.RequestTypeWithdrawal, amount, outcome)
		return 0, fmt.Errorf("create withdrawal request: %w", err)
	}

	user := e.users.Get(cc.Caller)

	req := &ledger.Request{
		Type:      ledger.RequestTypeWithdrawal,
		Account:   cc.Caller,
		Amount:    amount,
		CreatedAt: cc.Now,
		TxHash:    cc.TxHash,
		Block:     cc.Block,
	}
	id := e.book.Append(req)

	// Window committed only after admission; a rejected request leaves
	// the daily accounting untouched.
	e.limiter.Commit(window)
	user.ActiveBalance -= amount
	user.PendingWithdrawals += amount

	e.emit(cc, event.EventTypeWithdrawalRequested, event.WithdrawalRequested{
		RequestID: id,
		Account:   string(cc.Caller),
		Amount:    amount,
	})
	e.noteCreated(ledger.RequestTypeWithdrawal)
	return id, nil
}

// CreateBorrowRequest admits a borrow intent. Collateral is checked as a
// ratio only, never custodied; no balance moves until settlement.
func (e *Engine) CreateBorrowRequest(cc CallContext, amount, collateral uint64) (uint64, error) {
	if err := e.authorize(cc, RoleAny); err != nil {
		return 0, err
	}

	outcome, err := e.validator.ValidateBorrow(cc.Caller, amount, collateral)
	if err != nil {
		e.rejectRequest(cc, ledger.RequestTypeBorrow, amount, outcome)
		return 0, fmt.Errorf("create borrow request: %w", err)
	}

	req := &ledger.Request{
		Type:       ledger.RequestTypeBorrow,
		Account:    cc.Caller,
		Amount:     amount,
		Collateral: collateral,
		CreatedAt:  cc.Now,
		TxHash:     cc.TxHash,
		Block:      cc.Block,
	}
	id := e.book.Append(req)

	e.emit(cc, event.EventTypeBorrowRequested, event.BorrowRequested{
		RequestID:  id,
		Account:    string(cc.Caller),
		Amount:     amount,
		Collateral: collateral,
	})
	e.noteCreated(ledger.RequestTypeBorrow)
	return id, nil
}

// rejectRequest emits the audit event for a rejected creation. No
// Request is created but the rejection stays observable downstream.
func (e *Engine) rejectRequest(cc CallContext, rt ledger.RequestType, amount uint64, outcome ledger.Outcome) {
	e.log.Warn().
		Str("account", string(cc.Caller)).
		Str("request_type", rt.String()).
		Uint64("amount", amount).
		Str("outcome", outcome.String()).
		Msg("request rejected")

	e.emit(cc, event.EventTypeValidationFailed, event.ValidationFailed{
		Account:     string(cc.Caller),
		RequestType: rt.String(),
		Amount:      amount,
		Outcome:     outcome.String(),
	})
	if e.metrics != nil {
		e.metrics.RequestsRejected.WithLabelValues(rt.String(), outcome.String()).Inc()
	}
}

func (e *Engine) noteCreated(rt ledger.RequestType) {
	if e.metrics != nil {
		e.metrics.RequestsCreated.WithLabelValues(rt.String()).Inc()
		e.metrics.TreasuryBalance.Set(float64(e.treasury))
	}
}

// ----------------------------------------------------------------------------
// Settlement
// ----------------------------------------------------------------------------

// settlements maps each request type to its balance transition. The
// three process operations share one settlement path so the transitions
// cannot drift apart.
var settlements = map[ledger.RequestType]func(u *ledger.User, r *ledger.Request){
	ledger.RequestTypeDeposit: func(u *ledger.User, r *ledger.Request) {
		u.ActiveBalance += r.Amount
		u.PendingDeposits -= r.Amount
	},
	ledger.RequestTypeWithdrawal: func(u *ledger.User, r *ledger.Request) {
		// Active balance was debited at creation; only the reservation
		// clears here.
		u.PendingWithdrawals -= r.Amount
	},
	ledger.RequestTypeBorrow: func(u *ledger.User, r *ledger.Request) {
		u.ActiveBalance += r.Amount
	},
}

func typeMismatchErr(want ledger.RequestType) error {
	switch want {
	case ledger.RequestTypeDeposit:
		return ledger.ErrNotDepositRequest
	case ledger.RequestTypeWithdrawal:
		return ledger.ErrNotWithdrawalRequest
	default:
		return ledger.ErrNotBorrowRequest
	}
}

// settle applies one settlement: precondition checks, the per-type
// balance transition, the processed flip, and the epoch counter, as one
// atomic unit. Attribution goes to the epoch active now, not at
// creation.
func (e *Engine) settle(cc CallContext, id uint64, want ledger.RequestType) error {
	req := e.book.Get(id)
	if req == nil {
		return fmt.Errorf("settle request %d: %w", id, ledger.ErrRequestNotFound)
	}
	if req.Type != want {
		return fmt.Errorf("settle request %d: %w", id, typeMismatchErr(want))
	}
	if req.IsProcessed {
		return fmt.Errorf("settle request %d: %w", id, ledger.ErrAlreadyProcessed)
	}
	user := e.users.Get(req.Account)
	if user == nil {
		return fmt.Errorf("settle request %d: %w", id, ledger.ErrUserNotFound)
	}
	if !user.IsRegistered {
		return fmt.Errorf("settle request %d: %w", id, ledger.ErrUserNotRegistered)
	}
	epoch := e.epochs.Current()
	if epoch == nil {
		return fmt.Errorf("settle request %d: %w", id, ledger.ErrNoActiveEpoch)
	}

	settlements[want](user, req)
	req.IsProcessed = true
	req.ProcessedAt = cc.Now
	req.EpochID = epoch.ID
	e.epochs.CountSettlement(want)

	e.emit(cc, event.EventTypeRequestProcessed, event.RequestProcessed{
		RequestID:   id,
		RequestType: want.String(),
		Account:     string(req.Account),
		Amount:      req.Amount,
		EpochID:     epoch.ID,
	})
	if e.metrics != nil {
		e.metrics.RequestsSettled.WithLabelValues(want.String()).Inc()
	}
	return nil
}

// ProcessDepositRequest settles one deposit request.
func (e *Engine) ProcessDepositRequest(cc CallContext, id uint64) error {
	if err := e.authorize(cc, RoleAdmin); err != nil {
		return err
	}
	return e.settle(cc, id, ledger.RequestTypeDeposit)
}

// ProcessWithdrawalRequest settles one withdrawal request.
func (e *Engine) ProcessWithdrawalRequest(cc CallContext, id uint64) error {
	if err := e.authorize(cc, RoleAdmin); err != nil {
		return err
	}
	return e.settle(cc, id, ledger.RequestTypeWithdrawal)
}

// ProcessBorrowRequest settles one borrow request.
func (e *Engine) ProcessBorrowRequest(cc CallContext, id uint64) error {
	if err := e.authorize(cc, RoleAdmin); err != nil {
		return err
	}
	return e.settle(cc, id, ledger.RequestTypeBorrow)
}

// BatchResult reports per-item outcomes of one batch settlement. Items
// preserve the submitted id order.
type BatchResult struct {
	BatchID   string            `json:"batch_id"`
	Processed int               `json:"processed"`
	Failed    int               `json:"failed"`
	Items     []event.BatchItem `json:"items"`
}

// BatchProcessRequests settles a caller-supplied id list with per-item
// partial failure. Individual errors are counted, not propagated:
// batches are assembled from snapshots that may race manual single-item
// settlement, and the loser of that race sees AlreadyProcessed here.
// Only an empty id list rejects the whole call.
func (e *Engine) BatchProcessRequests(cc CallContext, rt ledger.RequestType, ids []uint64) (BatchResult, error) {
	if err := e.authorize(cc, RoleAdmin); err != nil {
		return BatchResult{}, err
	}
	if len(ids) == 0 {
		return BatchResult{}, fmt.Errorf("batch process %s: %w", rt, ledger.ErrEmptyBatch)
	}

	result := BatchResult{
		BatchID: uuid.NewString(),
		Items:   make([]event.BatchItem, 0, len(ids)),
	}
	for _, id := range ids {
		if err := e.settle(cc, id, rt); err != nil {
			e.log.Debug().Uint64("request_id", id).Err(err).Msg("batch item failed")
			result.Items = append(result.Items, event.BatchItem{
				RequestID: id,
				Status:    event.BatchItemFailed,
				Reason:    err.Error(),
			})
			result.Failed++
			continue
		}
		result.Items = append(result.Items, event.BatchItem{
			RequestID: id,
			Status:    event.BatchItemProcessed,
		})
		result.Processed++
	}

	var epochID uint64
	if cur := e.epochs.Current(); cur != nil {
		epochID = cur.ID
	}
	e.emit(cc, event.EventTypeBatchProcessed, event.BatchProcessed{
		BatchID:     result.BatchID,
		RequestType: rt.String(),
		EpochID:     epochID,
		Items:       result.Items,
		Processed:   result.Processed,
		Failed:      result.Failed,
	})
	if e.metrics != nil {
		e.metrics.BatchSize.Observe(float64(len(ids)))
		e.metrics.BatchItemsFailed.Add(float64(result.Failed))
	}
	return result, nil
}

// ----------------------------------------------------------------------------
// Registration & epochs
// ----------------------------------------------------------------------------

// SetRegistrationStatus approves or revokes a user's registration.
func (e *Engine) SetRegistrationStatus(cc CallContext, account ledger.Account, approved bool) error {
	if err := e.authorize(cc, RoleAdmin); err != nil {
		return err
	}
	if err := e.users.SetRegistration(account, approved); err != nil {
		return err
	}
	e.emit(cc, event.EventTypeRegistrationUpdated, event.RegistrationUpdated{
		Account:  string(account),
		Approved: approved,
	})
	return nil
}

// CloseCurrentEpoch completes the active epoch and opens the next one.
// Returns the new epoch id.
func (e *Engine) CloseCurrentEpoch(cc CallContext) (uint64, error) {
	if err := e.authorize(cc, RoleOwner); err != nil {
		return 0, err
	}

	closed, opened, err := e.epochs.Close(cc.Now)
	if err != nil {
		return 0, fmt.Errorf("close epoch: %w", err)
	}

	e.emit(cc, event.EventTypeEpochClosed, event.EpochClosed{
		EpochID:              closed.ID,
		EndTimestamp:         closed.EndTimestamp,
		ProcessedDeposits:    closed.ProcessedDeposits,
		ProcessedWithdrawals: closed.ProcessedWithdrawals,
		ProcessedBorrows:     closed.ProcessedBorrows,
	})
	e.emit(cc, event.EventTypeEpochCreated, event.EpochCreated{
		EpochID:        opened.ID,
		StartTimestamp: opened.StartTimestamp,
	})
	if e.metrics != nil {
		e.metrics.EpochsClosed.Inc()
		e.metrics.CurrentEpoch.Set(float64(opened.ID))
	}
	return opened.ID, nil
}

// ----------------------------------------------------------------------------
// Execution gateway
// ----------------------------------------------------------------------------

// ExecuteWithdrawal pays out a settled withdrawal to its owner. The
// payout is decoupled from settlement so a failed transfer can be
// retried (it leaves the ledger unchanged); a successful payout marks
// the request executed and can never run twice.
func (e *Engine) ExecuteWithdrawal(cc CallContext, id uint64) error {
	if err := e.authorize(cc, RoleAny); err != nil {
		return err
	}
	req := e.book.Get(id)
	if req == nil {
		return fmt.Errorf("execute withdrawal %d: %w", id, ledger.ErrRequestNotFound)
	}
	if req.Type != ledger.RequestTypeWithdrawal {
		return fmt.Errorf("execute withdrawal %d: %w", id, ledger.ErrNotWithdrawalRequest)
	}
	if req.Account != cc.Caller {
		return fmt.Errorf("execute withdrawal %d: %w", id, ledger.ErrNotRequestOwner)
	}
	if !req.IsProcessed {
		return fmt.Errorf("execute withdrawal %d: %w", id, ledger.ErrWithdrawalNotProcessed)
	}
	if req.IsExecuted {
		return fmt.Errorf("execute withdrawal %d: %w", id, ledger.ErrAlreadyExecuted)
	}
	if e.treasury < req.Amount {
		return fmt.Errorf("execute withdrawal %d: treasury short: %w", id, ledger.ErrTransferFailed)
	}
	if e.transfer != nil {
		if err := e.transfer(req.Account, req.Amount); err != nil {
			return fmt.Errorf("execute withdrawal %d: %v: %w", id, err, ledger.ErrTransferFailed)
		}
	}

	req.IsExecuted = true
	req.ExecutedAt = cc.Now
	e.treasury -= req.Amount
	e.emit(cc, event.EventTypeWithdrawalExecuted, event.WithdrawalExecuted{
		RequestID: id,
		Account:   string(req.Account),
		Amount:    req.Amount,
	})
	if e.metrics != nil {
		e.metrics.WithdrawalsExecuted.Inc()
		e.metrics.TreasuryBalance.Set(float64(e.treasury))
	}
	return nil
}

// EmergencyWithdraw moves funds straight out of the treasury, bypassing
// per-user ledgers. Owner-only escape hatch, outside ledger invariants.
func (e *Engine) EmergencyWithdraw(cc CallContext, amount uint64) error {
	if err := e.authorize(cc, RoleOwner); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("emergency withdraw: %w", ledger.ErrAmountZero)
	}
	if e.treasury < amount {
		return fmt.Errorf("emergency withdraw: %w", ledger.ErrInsufficientBalance)
	}
	if e.transfer != nil {
		if err := e.transfer(cc.Caller, amount); err != nil {
			return fmt.Errorf("emergency withdraw: %v: %w", err, ledger.ErrTransferFailed)
		}
	}

	e.treasury -= amount
	e.emit(cc, event.EventTypeEmergencyWithdrawal, event.EmergencyWithdrawal{
		Account: string(cc.Caller),
		Amount:  amount,
	})
	if e.metrics != nil {
		e.metrics.TreasuryBalance.Set(float64(e.treasury))
	}
	return nil
}

// ----------------------------------------------------------------------------
// Parameters
// ----------------------------------------------------------------------------

func (e *Engine) setParam(cc CallContext, name string, value uint64, apply func(*ledger.Params)) error {
	if err := e.authorize(cc, RoleOwner); err != nil {
		return err
	}
	apply(&e.params)
	e.emit(cc, event.EventTypeParamUpdated, event.ParamUpdated{Name: name, Value: value})
	e.log.Info().Str("param", name).Uint64("value", value).Msg("parameter updated")
	return nil
}

func (e *Engine) SetDailyWithdrawalLimit(cc CallContext, v uint64) error {
	return e.setParam(cc, "daily_withdrawal_limit", v, func(p *ledger.Params) { p.DailyWithdrawalLimit = v })
}

func (e *Engine) SetMaxPendingRequests(cc CallContext, v uint64) error {
	return e.setParam(cc, "max_pending_requests", v, func(p *ledger.Params) { p.MaxPendingRequests = v })
}

func (e *Engine) SetMinDepositAmount(cc CallContext, v uint64) error {
	return e.setParam(cc, "min_deposit_amount", v, func(p *ledger.Params) { p.MinDepositAmount = v })
}

func (e *Engine) SetMinWithdrawalAmount(cc CallContext, v uint64) error {
	return e.setParam(cc, "min_withdrawal_amount", v, func(p *ledger.Params) { p.MinWithdrawalAmount = v })
}

func (e *Engine) SetMinBorrowAmount(cc CallContext, v uint64) error {
	return e.setParam(cc, "min_borrow_amount", v, func(p *ledger.Params) { p.MinBorrowAmount = v })
}

func (e *Engine) SetCollateralRatioBps(cc CallContext, v uint64) error {
	return e.setParam(cc, "collateral_ratio_bps", v, func(p *ledger.Params) { p.CollateralRatioBps = v })
}

// ----------------------------------------------------------------------------
// Reads
// ----------------------------------------------------------------------------

// Reads return copies: callers outside the command loop must never hold
// references into live state.

func (e *Engine) GetUser(account ledger.Account) (ledger.User, bool) {
	u := e.users.Get(account)
	if u == nil {
		return ledger.User{}, false
	}
	return *u, true
}

func (e *Engine) GetRequest(id uint64) (ledger.Request, bool) {
	r := e.book.Get(id)
	if r == nil {
		return ledger.Request{}, false
	}
	return *r, true
}

func (e *Engine) GetCurrentEpoch() (ledger.Epoch, bool) {
	ep := e.epochs.Current()
	if ep == nil {
		return ledger.Epoch{}, false
	}
	return *ep, true
}

func (e *Engine) GetEpoch(id uint64) (ledger.Epoch, bool) {
	ep := e.epochs.Get(id)
	if ep == nil {
		return ledger.Epoch{}, false
	}
	return *ep, true
}

func (e *Engine) RequestIDs(account ledger.Account, rt ledger.RequestType) []uint64 {
	return e.book.IDsFor(account, rt)
}

func (e *Engine) RequestCount(rt ledger.RequestType) uint64 {
	return e.book.CountByType(rt)
}

func (e *Engine) Owner() ledger.Account {
	return e.owner
}

func (e *Engine) TreasuryBalance() uint64 {
	return e.treasury
}

func (e *Engine) Params() ledger.Params {
	return e.params
}

func (e *Engine) Sequence() int64 {
	return e.sequence
}

// ----------------------------------------------------------------------------
// Event emission
// ----------------------------------------------------------------------------

// emit assigns the next sequence and hands the envelope to both
// pipelines. Persist channel blocks (backpressure, no event lost);
// publish channel drops on full; downstream consumers can rebuild from
// the event log.
func (e *Engine) emit(cc CallContext, et event.EventType, payload any) {
	env := &event.Envelope{
		Sequence:  e.sequence,
		EventType: et,
		TxHash:    cc.TxHash,
		Block:     cc.Block,
		Timestamp: cc.Now,
		Payload:   payload,
	}
	e.sequence++

	out := Output{Envelope: env}
	if e.persistChan != nil {
		e.persistChan <- out
	}
	if e.publishChan != nil {
		select {
		case e.publishChan <- out:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
	if e.metrics != nil {
		e.metrics.EventsEmitted.WithLabelValues(et.String()).Inc()
		e.metrics.CoreSequence.Set(float64(e.sequence))
	}
}
