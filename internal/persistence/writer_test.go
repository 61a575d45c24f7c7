package persistence

import (
	"context"
	"testing"

	"RwaLedger/internal/observability"
	"RwaLedger/internal/testutil"

	"github.com/rs/zerolog"
)

func setupWriter(t *testing.T) *EventLogWriter {
	t.Helper()
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	mig := NewMigrator(db, "../../migrations",
		observability.NewLoggerWithLevel("persistence-test", zerolog.Disabled))
	if err := mig.Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewEventLogWriter(db)
}

// ============================================================================
// Test: event log round-trip
// ============================================================================

func TestEventLogWriter_LoadEventsFrom(t *testing.T) {
	w := setupWriter(t)
	ctx := context.Background()

	batch := []EventRow{
		{Sequence: 1, EventType: "DepositRequested", TxHash: "0x01", Block: 1, Timestamp: 10, Payload: []byte(`{"request_id":1}`)},
		{Sequence: 2, EventType: "RequestProcessed", TxHash: "0x02", Block: 2, Timestamp: 20, Payload: []byte(`{"request_id":1}`)},
		{Sequence: 3, EventType: "WithdrawalExecuted", TxHash: "0x03", Block: 3, Timestamp: 30, Payload: []byte(`{"request_id":2}`)},
	}
	if err := w.WriteEventBatch(ctx, batch); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	rows, err := w.LoadEventsFrom(ctx, 2, 10)
	if err != nil {
		t.Fatalf("load from 2: %v", err)
	}
	if len(rows) != 2 || rows[0].Sequence != 2 || rows[1].Sequence != 3 {
		t.Fatalf("rows from 2: %+v", rows)
	}
	if rows[0].EventType != "RequestProcessed" || rows[0].TxHash != "0x02" || rows[0].Block != 2 {
		t.Errorf("row 0: %+v", rows[0])
	}

	// Limit pages the log in sequence order.
	rows, err = w.LoadEventsFrom(ctx, 1, 2)
	if err != nil {
		t.Fatalf("load limited: %v", err)
	}
	if len(rows) != 2 || rows[0].Sequence != 1 || rows[1].Sequence != 2 {
		t.Errorf("limited rows: %+v", rows)
	}

	// Replaying a batch is a no-op on conflicting sequences.
	if err := w.WriteEventBatch(ctx, batch[:1]); err != nil {
		t.Fatalf("replay batch: %v", err)
	}
	seq, err := w.LatestSequence(ctx)
	if err != nil || seq != 3 {
		t.Errorf("latest sequence: got %d err=%v, want 3", seq, err)
	}
}
