package core

import "RwaLedger/internal/ledger"

// SnapshotState is the engine's full serializable in-memory state. A
// restored snapshot reproduces balances, requests, epochs, and the
// daily-withdrawal windows exactly.
type SnapshotState struct {
	Sequence      int64             `json:"sequence"`
	Treasury      uint64            `json:"treasury"`
	Params        ledger.Params     `json:"params"`
	Users         []*ledger.User    `json:"users"`
	Requests      []*ledger.Request `json:"requests"`
	NextRequestID uint64            `json:"next_request_id"`
	Epochs        []*ledger.Epoch   `json:"epochs"`
	Windows       []ledger.Window   `json:"windows"`
}

// CreateSnapshotState captures the current in-memory state for
// persistence. The captured state holds copies, never references into
// live objects: the caller may serialize it outside the command loop
// while the engine keeps mutating.
func (e *Engine) CreateSnapshotState() *SnapshotState {
	return &SnapshotState{
		Sequence:      e.sequence,
		Treasury:      e.treasury,
		Params:        e.params,
		Users:         e.users.Snapshot(),
		Requests:      e.book.Snapshot(),
		NextRequestID: e.book.NextID(),
		Epochs:        e.epochs.Snapshot(),
		Windows:       e.limiter.Snapshot(),
	}
}

// RestoreFromSnapshot replaces the engine's in-memory state. Called
// before the command loop starts; never during operation.
func (e *Engine) RestoreFromSnapshot(snap *SnapshotState) {
	e.sequence = snap.Sequence
	e.treasury = snap.Treasury
	e.params = snap.Params
	e.users.Restore(snap.Users)
	e.book.Restore(snap.Requests, snap.NextRequestID)
	e.epochs.Restore(snap.Epochs)
	e.limiter.Restore(snap.Windows)

	if e.metrics != nil {
		e.metrics.CoreSequence.Set(float64(e.sequence))
		e.metrics.TreasuryBalance.Set(float64(e.treasury))
		if cur := e.epochs.Current(); cur != nil {
			e.metrics.CurrentEpoch.Set(float64(cur.ID))
		}
	}
}
