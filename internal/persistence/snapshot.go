package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"RwaLedger/internal/core"

	"github.com/google/uuid"
)

// SnapshotManager stores and loads engine state snapshots. A snapshot
// plus a replay of events after its sequence reconstructs the full
// in-memory state on restart.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot to Postgres.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *core.SnapshotState) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	snapshotID := uuid.New()
	formatVersion := int32(1) // v1: JSON-encoded core.SnapshotState

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, size_bytes = $5
	`, snapshotID, snap.Sequence, data, formatVersion, len(data), time.Now())

	return err
}

// LoadLatestSnapshot loads the most recent verified snapshot. Returns
// nil with no error when none exists (cold start).
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.SnapshotState, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	return &snap, nil
}

// MarkVerified marks a snapshot as usable for recovery.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}
