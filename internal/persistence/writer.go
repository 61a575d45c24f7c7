package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// EventRow represents a row in event_log.events.
type EventRow struct {
	Sequence  int64
	EventType string
	TxHash    string
	Block     int64
	Timestamp int64
	Payload   []byte // JSON-encoded event payload
}

// EventLogWriter writes event batches to Postgres using multi-row INSERT.
// Writes are idempotent on sequence, so a replayed batch after a crash is
// a no-op.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// WriteEventBatch writes a batch of events to event_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, tx_hash, block_number, timestamp, payload)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*6)

	for i, e := range events {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, e.Sequence, e.EventType, e.TxHash, e.Block, e.Timestamp, e.Payload)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := w.db.ExecContext(ctx, query, args...)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay.
func (w *EventLogWriter) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT sequence, event_type, tx_hash, block_number, timestamp, payload
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(&e.Sequence, &e.EventType, &e.TxHash, &e.Block, &e.Timestamp, &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// LatestSequence returns the highest sequence in the event log, or -1 when
// the log is empty.
func (w *EventLogWriter) LatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM event_log.events`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return -1, nil
	}
	return seq.Int64, nil
}

// MarshalPayload JSON-encodes an event payload for storage.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
