package ledger

// RequestBook is the append-only request ledger. One id sequence is
// shared across all three request types; per-user per-type indices bound
// the pending-request cap and serve the id-list queries.
type RequestBook struct {
	nextID      uint64
	requests    map[uint64]*Request
	byUser      map[Account]map[RequestType][]uint64
	countByType map[RequestType]uint64
}

func NewRequestBook() *RequestBook {
	return &RequestBook{
		nextID:      1,
		requests:    make(map[uint64]*Request),
		byUser:      make(map[Account]map[RequestType][]uint64),
		countByType: make(map[RequestType]uint64),
	}
}

// Append stores a new request, assigns the next sequential id, and
// updates the per-user index. The caller has already validated.
func (rb *RequestBook) Append(req *Request) uint64 {
	req.ID = rb.nextID
	rb.nextID++

	rb.requests[req.ID] = req
	rb.countByType[req.Type]++

	idx, ok := rb.byUser[req.Account]
	if !ok {
		idx = make(map[RequestType][]uint64)
		rb.byUser[req.Account] = idx
	}
	idx[req.Type] = append(idx[req.Type], req.ID)

	return req.ID
}

// Get returns the request by id, or nil.
func (rb *RequestBook) Get(id uint64) *Request {
	return rb.requests[id]
}

// IDsFor returns the ordered request ids for (account, type).
func (rb *RequestBook) IDsFor(account Account, rt RequestType) []uint64 {
	idx, ok := rb.byUser[account]
	if !ok {
		return nil
	}
	ids := idx[rt]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// PendingCount returns the number of unprocessed requests for
// (account, type). Bounds the per-user pending-request cap.
func (rb *RequestBook) PendingCount(account Account, rt RequestType) uint64 {
	idx, ok := rb.byUser[account]
	if !ok {
		return 0
	}
	var n uint64
	for _, id := range idx[rt] {
		if req := rb.requests[id]; req != nil && !req.IsProcessed {
			n++
		}
	}
	return n
}

// CountByType returns the total number of requests ever created for a type.
func (rb *RequestBook) CountByType(rt RequestType) uint64 {
	return rb.countByType[rt]
}

// NextID returns the id the next appended request will receive.
func (rb *RequestBook) NextID() uint64 {
	return rb.nextID
}

// Snapshot returns copies of all requests for snapshot serialization.
// The per-user index and counters are rebuilt on restore; copies keep
// the snapshot stable while live state keeps mutating.
func (rb *RequestBook) Snapshot() []*Request {
	out := make([]*Request, 0, len(rb.requests))
	for _, r := range rb.requests {
		c := *r
		out = append(out, &c)
	}
	return out
}

// Restore rebuilds the book from snapshot requests. Indices are
// reconstructed in id order so per-user sequences stay ordered.
func (rb *RequestBook) Restore(requests []*Request, nextID uint64) {
	rb.nextID = nextID
	rb.requests = make(map[uint64]*Request, len(requests))
	rb.byUser = make(map[Account]map[RequestType][]uint64)
	rb.countByType = make(map[RequestType]uint64)

	var maxID uint64
	for _, r := range requests {
		rb.requests[r.ID] = r
		if r.ID > maxID {
			maxID = r.ID
		}
	}
	for id := uint64(1); id <= maxID; id++ {
		r, ok := rb.requests[id]
		if !ok {
			continue
		}
		rb.countByType[r.Type]++
		idx, ok := rb.byUser[r.Account]
		if !ok {
			idx = make(map[RequestType][]uint64)
			rb.byUser[r.Account] = idx
		}
		idx[r.Type] = append(idx[r.Type], r.ID)
	}
	if rb.nextID <= maxID {
		rb.nextID = maxID + 1
	}
}
