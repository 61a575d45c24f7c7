package ledger

import "fmt"

// EpochManager owns the current settlement period and the archive of
// completed ones. Exactly one epoch is Active at any time after Init.
type EpochManager struct {
	current  *Epoch
	archived map[uint64]*Epoch
	nextID   uint64
}

func NewEpochManager() *EpochManager {
	return &EpochManager{
		archived: make(map[uint64]*Epoch),
		nextID:   1,
	}
}

// Init opens epoch 1. Called once at ledger construction.
func (em *EpochManager) Init(now int64) *Epoch {
	em.current = &Epoch{
		ID:             em.nextID,
		StartTimestamp: now,
		Status:         EpochStatusActive,
	}
	em.nextID++
	return em.current
}

// Current returns the active epoch, or nil before Init.
func (em *EpochManager) Current() *Epoch {
	return em.current
}

// Get returns the epoch by id, active or archived.
func (em *EpochManager) Get(id uint64) *Epoch {
	if em.current != nil && em.current.ID == id {
		return em.current
	}
	return em.archived[id]
}

// CountSettlement increments the current epoch's counter for a request
// type. Counters are frozen once the epoch completes.
func (em *EpochManager) CountSettlement(rt RequestType) error {
	if em.current == nil {
		return ErrNoActiveEpoch
	}
	switch rt {
	case RequestTypeDeposit:
		em.current.ProcessedDeposits++
	case RequestTypeWithdrawal:
		em.current.ProcessedWithdrawals++
	case RequestTypeBorrow:
		em.current.ProcessedBorrows++
	default:
		return fmt.Errorf("count settlement: unknown request type %d", rt)
	}
	return nil
}

// Close stamps the current epoch Completed, archives it, and opens the
// next Active epoch with zero counters. Returns closed and opened epochs.
func (em *EpochManager) Close(now int64) (*Epoch, *Epoch, error) {
	if em.current == nil {
		return nil, nil, ErrNoActiveEpoch
	}

	closed := em.current
	closed.EndTimestamp = now
	closed.Status = EpochStatusCompleted
	em.archived[closed.ID] = closed

	opened := &Epoch{
		ID:             em.nextID,
		StartTimestamp: now,
		Status:         EpochStatusActive,
	}
	em.nextID++
	em.current = opened

	return closed, opened, nil
}

// Snapshot returns copies of all epochs (current last) for snapshot
// serialization. Copies keep the snapshot stable while live counters
// keep advancing.
func (em *EpochManager) Snapshot() []*Epoch {
	out := make([]*Epoch, 0, len(em.archived)+1)
	for _, e := range em.archived {
		c := *e
		out = append(out, &c)
	}
	if em.current != nil {
		c := *em.current
		out = append(out, &c)
	}
	return out
}

// Restore rebuilds the manager from snapshot epochs.
func (em *EpochManager) Restore(epochs []*Epoch) {
	em.archived = make(map[uint64]*Epoch, len(epochs))
	em.current = nil
	em.nextID = 1
	for _, e := range epochs {
		if e.Status == EpochStatusActive {
			em.current = e
		} else {
			em.archived[e.ID] = e
		}
		if e.ID >= em.nextID {
			em.nextID = e.ID + 1
		}
	}
}
