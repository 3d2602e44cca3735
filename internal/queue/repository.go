package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore persists queue items.
//
// Assumed table: queue_items with a partial unique index enforcing
// de-duplication of live items:
//   UNIQUE (broadcast_id, phone) WHERE status NOT IN
//   ('transferred','callback','dnc','completed','failed','cancelled')
// which also backs the one-non-terminal-item-per-lead invariant.
//
// ClaimBatch uses FOR UPDATE SKIP LOCKED so concurrent pacers (or engine
// replicas) never double-claim an item.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const itemColumns = `
id, workspace_id, broadcast_id, lead_id, phone, status, attempts,
digit, callback_at, provider_call_id, last_error, version, created_at, updated_at`

func (s *PostgresStore) InsertBatch(ctx context.Context, items []QueueItem) (int, error) {
	const q = `
INSERT INTO queue_items (` + itemColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (broadcast_id, phone) WHERE status NOT IN ('transferred','callback','dnc','completed','failed','cancelled')
DO NOTHING
`
	inserted := 0
	for _, it := range items {
		res, err := s.db.ExecContext(ctx, q,
			it.ID, it.WorkspaceID, it.BroadcastID, it.LeadID, it.Phone,
			it.Status, it.Attempts, nullable(it.Digit), it.CallbackAt,
			nullable(it.ProviderCallID), nullable(it.LastError),
			it.Version, it.CreatedAt, it.UpdatedAt,
		)
		if err != nil {
			return inserted, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		inserted += int(n)
	}
	return inserted, nil
}

func (s *PostgresStore) Get(ctx context.Context, workspaceID, itemID string) (QueueItem, error) {
	const q = `
SELECT ` + itemColumns + `
FROM queue_items
WHERE workspace_id = $1 AND id = $2
`
	return scanItem(s.db.QueryRowContext(ctx, q, workspaceID, itemID))
}

func (s *PostgresStore) GetByProviderCallID(ctx context.Context, providerCallID string) (QueueItem, error) {
	const q = `
SELECT ` + itemColumns + `
FROM queue_items
WHERE provider_call_id = $1
ORDER BY updated_at DESC
LIMIT 1
`
	return scanItem(s.db.QueryRowContext(ctx, q, providerCallID))
}

func (s *PostgresStore) ClaimBatch(ctx context.Context, workspaceID, broadcastID string, n int, now time.Time) ([]QueueItem, error) {
	// Single statement: select-and-update with SKIP LOCKED keeps the
	// claim atomic and concurrency-safe without an explicit transaction.
	const q = `
UPDATE queue_items
SET status = 'calling', version = version + 1, updated_at = $4
WHERE id IN (
  SELECT id FROM queue_items
  WHERE workspace_id = $1 AND broadcast_id = $2 AND status = 'pending'
  ORDER BY created_at
  LIMIT $3
  FOR UPDATE SKIP LOCKED
)
RETURNING ` + itemColumns + `
`
	rows, err := s.db.QueryContext(ctx, q, workspaceID, broadcastID, n, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, item QueueItem, expectVersion int64) error {
	const q = `
UPDATE queue_items
SET status = $3, attempts = $4, digit = $5, callback_at = $6,
    provider_call_id = $7, last_error = $8, version = $9, updated_at = $10
WHERE workspace_id = $1 AND id = $2 AND version = $11
`
	res, err := s.db.ExecContext(ctx, q,
		item.WorkspaceID, item.ID, item.Status, item.Attempts,
		nullable(item.Digit), item.CallbackAt,
		nullable(item.ProviderCallID), nullable(item.LastError),
		item.Version, item.UpdatedAt, expectVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Either gone or the version moved underneath us.
		if _, gerr := s.Get(ctx, item.WorkspaceID, item.ID); errors.Is(gerr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func (s *PostgresStore) Reset(ctx context.Context, workspaceID, broadcastID string, now time.Time) (int, error) {
	const q = `
UPDATE queue_items
SET status = 'pending', attempts = 0, digit = NULL, callback_at = NULL,
    provider_call_id = NULL, last_error = NULL, version = version + 1, updated_at = $3
WHERE workspace_id = $1 AND broadcast_id = $2 AND status <> 'pending'
`
	return execCount(ctx, s.db, q, workspaceID, broadcastID, now)
}

func (s *PostgresStore) CancelPending(ctx context.Context, workspaceID, broadcastID string, now time.Time) (int, error) {
	const q = `
UPDATE queue_items
SET status = 'cancelled', version = version + 1, updated_at = $3
WHERE workspace_id = $1 AND broadcast_id = $2 AND status = 'pending'
`
	return execCount(ctx, s.db, q, workspaceID, broadcastID, now)
}

func (s *PostgresStore) RetryFailed(ctx context.Context, workspaceID, broadcastID string, maxAttempts int, now time.Time) (int, error) {
	const q = `
UPDATE queue_items
SET status = 'pending', provider_call_id = NULL, version = version + 1, updated_at = $4
WHERE workspace_id = $1 AND broadcast_id = $2 AND status = 'failed' AND attempts < $3
`
	res, err := s.db.ExecContext(ctx, q, workspaceID, broadcastID, maxAttempts, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PostgresStore) Stats(ctx context.Context, workspaceID, broadcastID string) (Stats, error) {
	const q = `
SELECT status, count(*)
FROM queue_items
WHERE workspace_id = $1 AND broadcast_id = $2
GROUP BY status
`
	rows, err := s.db.QueryContext(ctx, q, workspaceID, broadcastID)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()

	st := Stats{BroadcastID: broadcastID, Counts: map[Status]int{}}
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		st.Counts[status] = count
	}
	return st, rows.Err()
}

func (s *PostgresStore) ListByStatus(ctx context.Context, workspaceID, broadcastID string, status Status) ([]QueueItem, error) {
	const q = `
SELECT ` + itemColumns + `
FROM queue_items
WHERE workspace_id = $1 AND broadcast_id = $2 AND status = $3
ORDER BY created_at
`
	return s.list(ctx, q, workspaceID, broadcastID, status)
}

func (s *PostgresStore) ListStuck(ctx context.Context, workspaceID, broadcastID string, before time.Time) ([]QueueItem, error) {
	const q = `
SELECT ` + itemColumns + `
FROM queue_items
WHERE workspace_id = $1 AND broadcast_id = $2
  AND status IN ('calling','answered')
  AND updated_at < $3
ORDER BY updated_at
`
	return s.list(ctx, q, workspaceID, broadcastID, before)
}

func (s *PostgresStore) list(ctx context.Context, q string, args ...any) ([]QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (QueueItem, error) {
	var it QueueItem
	var digit, providerCallID, lastError sql.NullString
	err := r.Scan(
		&it.ID, &it.WorkspaceID, &it.BroadcastID, &it.LeadID, &it.Phone,
		&it.Status, &it.Attempts, &digit, &it.CallbackAt,
		&providerCallID, &lastError, &it.Version, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return QueueItem{}, ErrNotFound
		}
		return QueueItem{}, err
	}
	it.Digit = digit.String
	it.ProviderCallID = providerCallID.String
	it.LastError = lastError.String
	return it, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func execCount(ctx context.Context, db *sql.DB, q string, args ...any) (int, error) {
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
