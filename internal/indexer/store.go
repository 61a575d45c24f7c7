package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"RwaLedger/internal/event"
)

// PostgresMirror applies events to the mirror schema. Every apply first
// claims the (event_type, tx_hash, block_number) key in
// mirror.indexed_events; a conflict means the event was already mirrored
// and the rest of the transaction is skipped.
type PostgresMirror struct {
	db *sql.DB
}

func NewPostgresMirror(db *sql.DB) *PostgresMirror {
	return &PostgresMirror{db: db}
}

func (m *PostgresMirror) Apply(ctx context.Context, task *Task) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO mirror.indexed_events (event_type, tx_hash, block_number, sequence, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_type, tx_hash, block_number) DO NOTHING
	`, task.Key.EventType.String(), task.Key.TxHash, int64(task.Key.Block), task.Sequence, task.Timestamp)
	if err != nil {
		return fmt.Errorf("claim event key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already mirrored by an earlier delivery.
		return nil
	}

	if err := m.applyPayload(ctx, tx, task); err != nil {
		return err
	}

	return tx.Commit()
}

func (m *PostgresMirror) applyPayload(ctx context.Context, tx *sql.Tx, task *Task) error {
	switch task.Key.EventType {
	case event.EventTypeDepositRequested:
		var p event.DepositRequested
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return m.insertRequest(ctx, tx, p.RequestID, "deposit", p.Account, p.Amount, 0, task.Timestamp)

	case event.EventTypeWithdrawalRequested:
		var p event.WithdrawalRequested
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return m.insertRequest(ctx, tx, p.RequestID, "withdrawal", p.Account, p.Amount, 0, task.Timestamp)

	case event.EventTypeBorrowRequested:
		var p event.BorrowRequested
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return m.insertRequest(ctx, tx, p.RequestID, "borrow", p.Account, p.Amount, p.Collateral, task.Timestamp)

	case event.EventTypeRequestProcessed:
		var p event.RequestProcessed
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE mirror.requests
			SET is_processed = TRUE, processed_at = $2, epoch_id = $3
			WHERE id = $1
		`, int64(p.RequestID), task.Timestamp, int64(p.EpochID))
		return err

	case event.EventTypeBatchProcessed:
		var p event.BatchProcessed
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mirror.processing_events (kind, batch_id, request_type, epoch_id, detail, tx_hash, block_number, timestamp)
			VALUES ('batch_processed', $1, $2, $3, $4, $5, $6, $7)
		`, p.BatchID, p.RequestType, int64(p.EpochID), task.Payload, task.Key.TxHash, int64(task.Key.Block), task.Timestamp)
		return err

	case event.EventTypeWithdrawalExecuted:
		var p event.WithdrawalExecuted
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE mirror.requests
			SET is_executed = TRUE, executed_at = $2
			WHERE id = $1
		`, int64(p.RequestID), task.Timestamp); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mirror.processing_events (kind, request_id, account, amount, detail, tx_hash, block_number, timestamp)
			VALUES ('withdrawal_executed', $1, $2, $3, $4, $5, $6, $7)
		`, int64(p.RequestID), p.Account, int64(p.Amount), task.Payload, task.Key.TxHash, int64(task.Key.Block), task.Timestamp)
		return err

	case event.EventTypeEmergencyWithdrawal:
		var p event.EmergencyWithdrawal
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mirror.processing_events (kind, account, amount, detail, tx_hash, block_number, timestamp)
			VALUES ('emergency_withdrawal', $1, $2, $3, $4, $5, $6)
		`, p.Account, int64(p.Amount), task.Payload, task.Key.TxHash, int64(task.Key.Block), task.Timestamp)
		return err

	case event.EventTypeUserRegistered, event.EventTypeRegistrationUpdated:
		var p event.RegistrationUpdated
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mirror.users (account, is_registered, registered_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (account) DO UPDATE SET is_registered = $2
		`, p.Account, p.Approved, task.Timestamp)
		return err

	case event.EventTypeEpochCreated:
		var p event.EpochCreated
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mirror.epochs (id, start_timestamp, status)
			VALUES ($1, $2, 'active')
			ON CONFLICT (id) DO NOTHING
		`, int64(p.EpochID), p.StartTimestamp)
		return err

	case event.EventTypeEpochClosed:
		var p event.EpochClosed
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mirror.epochs (id, start_timestamp, end_timestamp, status, processed_deposits, processed_withdrawals, processed_borrows)
			VALUES ($1, 0, $2, 'completed', $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				end_timestamp = $2,
				status = 'completed',
				processed_deposits = $3,
				processed_withdrawals = $4,
				processed_borrows = $5
		`, int64(p.EpochID), p.EndTimestamp, int64(p.ProcessedDeposits), int64(p.ProcessedWithdrawals), int64(p.ProcessedBorrows))
		return err

	case event.EventTypeValidationFailed:
		var p event.ValidationFailed
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mirror.validation_failures (account, request_type, amount, outcome, tx_hash, block_number, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, p.Account, p.RequestType, int64(p.Amount), p.Outcome, task.Key.TxHash, int64(task.Key.Block), task.Timestamp)
		return err

	case event.EventTypeParamUpdated:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO mirror.processing_events (kind, detail, tx_hash, block_number, timestamp)
			VALUES ('param_updated', $1, $2, $3, $4)
		`, task.Payload, task.Key.TxHash, int64(task.Key.Block), task.Timestamp)
		return err

	default:
		// Unknown types are claimed and skipped so they don't churn the
		// retry queue.
		return nil
	}
}

func (m *PostgresMirror) insertRequest(
	ctx context.Context,
	tx *sql.Tx,
	id uint64,
	requestType, account string,
	amount, collateral uint64,
	createdAt int64,
) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO mirror.requests (id, request_type, account, amount, collateral, created_at, is_processed)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		ON CONFLICT (id) DO NOTHING
	`, int64(id), requestType, account, int64(amount), int64(collateral), createdAt)
	return err
}
