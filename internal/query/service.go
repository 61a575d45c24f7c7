package query

import (
	"context"
	"database/sql"
	"strconv"
)

// Service provides read-only access to the relational mirror. The mirror
// is eventually consistent with the engine: it trails the event stream by
// the indexer's lag, so reads here are audit/history surfaces, not the
// authoritative balances.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// RequestsByAccount returns an account's mirrored requests, optionally
// filtered by type, newest first.
func (s *Service) RequestsByAccount(ctx context.Context, account, requestType string, limit int) ([]RequestRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, request_type, account, amount, collateral, created_at,
		       is_processed, processed_at, epoch_id, is_executed, executed_at
		FROM mirror.requests
		WHERE account = $1`
	args := []interface{}{account}

	if requestType != "" {
		query += ` AND request_type = $2`
		args = append(args, requestType)
	}
	query += ` ORDER BY id DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RequestRow
	for rows.Next() {
		var r RequestRow
		if err := rows.Scan(
			&r.ID, &r.RequestType, &r.Account, &r.Amount, &r.Collateral,
			&r.CreatedAt, &r.IsProcessed, &r.ProcessedAt, &r.EpochID,
			&r.IsExecuted, &r.ExecutedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UnprocessedRequests returns pending requests of a type, oldest first,
// for operator batch building.
func (s *Service) UnprocessedRequests(ctx context.Context, requestType string, limit int) ([]RequestRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_type, account, amount, collateral, created_at,
		       is_processed, processed_at, epoch_id, is_executed, executed_at
		FROM mirror.requests
		WHERE request_type = $1 AND is_processed = FALSE
		ORDER BY id ASC
		LIMIT $2
	`, requestType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RequestRow
	for rows.Next() {
		var r RequestRow
		if err := rows.Scan(
			&r.ID, &r.RequestType, &r.Account, &r.Amount, &r.Collateral,
			&r.CreatedAt, &r.IsProcessed, &r.ProcessedAt, &r.EpochID,
			&r.IsExecuted, &r.ExecutedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetUser returns a mirrored registration record, or nil when unseen.
func (s *Service) GetUser(ctx context.Context, account string) (*UserRow, error) {
	var u UserRow
	err := s.db.QueryRowContext(ctx, `
		SELECT account, is_registered, registered_at
		FROM mirror.users
		WHERE account = $1
	`, account).Scan(&u.Account, &u.IsRegistered, &u.RegisteredAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Epochs returns mirrored epochs, newest first.
func (s *Service) Epochs(ctx context.Context, limit int) ([]EpochRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_timestamp, end_timestamp, status,
		       processed_deposits, processed_withdrawals, processed_borrows
		FROM mirror.epochs
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EpochRow
	for rows.Next() {
		var e EpochRow
		if err := rows.Scan(
			&e.ID, &e.StartTimestamp, &e.EndTimestamp, &e.Status,
			&e.ProcessedDeposits, &e.ProcessedWithdrawals, &e.ProcessedBorrows,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ProcessingEvents returns recent operational events, newest first.
func (s *Service) ProcessingEvents(ctx context.Context, limit int) ([]ProcessingEventRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, request_id, batch_id, account, amount, epoch_id,
		       detail, tx_hash, block_number, timestamp
		FROM mirror.processing_events
		ORDER BY id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProcessingEventRow
	for rows.Next() {
		var e ProcessingEventRow
		if err := rows.Scan(
			&e.ID, &e.Kind, &e.RequestID, &e.BatchID, &e.Account, &e.Amount,
			&e.EpochID, &e.Detail, &e.TxHash, &e.Block, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ValidationFailures returns an account's rejection audit trail, newest
// first. Empty account returns failures across all accounts.
func (s *Service) ValidationFailures(ctx context.Context, account string, limit int) ([]ValidationFailureRow, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id, account, request_type, amount, outcome, tx_hash, block_number, timestamp
		FROM mirror.validation_failures`
	args := []interface{}{}

	if account != "" {
		query += ` WHERE account = $1`
		args = append(args, account)
	}
	query += ` ORDER BY id DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ValidationFailureRow
	for rows.Next() {
		var v ValidationFailureRow
		if err := rows.Scan(
			&v.ID, &v.Account, &v.RequestType, &v.Amount, &v.Outcome,
			&v.TxHash, &v.Block, &v.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
