package broadcast

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"dialer-platform/pkg/utils"
)

// PostgresStore persists broadcasts.
//
// Assumed table: broadcasts with scalar columns for status/pacing/counters
// and JSONB columns for the structured policies (dtmf_actions,
// calling_hours, caller_id, amd, route, transfer).
//
// Counters are plain INT columns updated with atomic increments so the
// pacer and the outcome handler never read-modify-write them.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const broadcastColumns = `
id, workspace_id, name, status, message_text, audio_url, ivr_mode,
dtmf_actions, calls_per_minute, max_attempts, calling_hours, caller_id,
amd, route, transfer,
leads_total, calls_placed, answered, transferred, callbacks, dnc,
deleted_at, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, b Broadcast) error {
	const q = `
INSERT INTO broadcasts (` + broadcastColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
`
	actions, hours, cid, amd, route, transfer, err := marshalPolicies(b)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, q,
		b.ID, b.WorkspaceID, b.Name, b.Status, b.MessageText, b.AudioURL, b.IVRMode,
		actions, b.CallsPerMinute, b.MaxAttempts, hours, cid,
		amd, route, transfer,
		b.Counters.LeadsTotal, b.Counters.CallsPlaced, b.Counters.Answered,
		b.Counters.Transferred, b.Counters.Callbacks, b.Counters.DNC,
		b.DeletedAt, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, workspaceID, id string) (Broadcast, error) {
	const q = `
SELECT ` + broadcastColumns + `
FROM broadcasts
WHERE workspace_id = $1 AND id = $2 AND deleted_at IS NULL
`
	return scanBroadcast(s.db.QueryRowContext(ctx, q, workspaceID, id))
}

func (s *PostgresStore) List(ctx context.Context, workspaceID string) ([]Broadcast, error) {
	const q = `
SELECT ` + broadcastColumns + `
FROM broadcasts
WHERE workspace_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC
`
	rows, err := s.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, b Broadcast) error {
	const q = `
UPDATE broadcasts
SET name = $3, message_text = $4, audio_url = $5, ivr_mode = $6,
    dtmf_actions = $7, calls_per_minute = $8, max_attempts = $9,
    calling_hours = $10, caller_id = $11, amd = $12, route = $13,
    transfer = $14, updated_at = $15
WHERE workspace_id = $1 AND id = $2 AND deleted_at IS NULL
`
	actions, hours, cid, amd, route, transfer, err := marshalPolicies(b)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, q,
		b.WorkspaceID, b.ID, b.Name, b.MessageText, b.AudioURL, b.IVRMode,
		actions, b.CallsPerMinute, b.MaxAttempts,
		hours, cid, amd, route, transfer, b.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) SetStatus(ctx context.Context, workspaceID, id string, to Status, now time.Time) (Broadcast, error) {
	var out Broadcast
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row to serialize concurrent status changes.
		const lockQ = `
SELECT status FROM broadcasts
WHERE workspace_id = $1 AND id = $2 AND deleted_at IS NULL
FOR UPDATE
`
		var cur Status
		if err := tx.QueryRowContext(ctx, lockQ, workspaceID, id).Scan(&cur); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if cur == to {
			// Idempotent: pause of a paused broadcast is a no-op.
		} else if !cur.CanTransition(to) {
			return ErrBadTransition
		}

		const updQ = `
UPDATE broadcasts SET status = $3, updated_at = $4
WHERE workspace_id = $1 AND id = $2
`
		if _, err := tx.ExecContext(ctx, updQ, workspaceID, id, to, now); err != nil {
			return err
		}

		const getQ = `
SELECT ` + broadcastColumns + `
FROM broadcasts
WHERE workspace_id = $1 AND id = $2
`
		b, err := scanBroadcast(tx.QueryRowContext(ctx, getQ, workspaceID, id))
		if err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

func (s *PostgresStore) ApplyCounterDelta(ctx context.Context, workspaceID, id string, d CounterDelta) error {
	const q = `
UPDATE broadcasts
SET leads_total = leads_total + $3,
    calls_placed = calls_placed + $4,
    answered = answered + $5,
    transferred = transferred + $6,
    callbacks = callbacks + $7,
    dnc = dnc + $8,
    updated_at = now()
WHERE workspace_id = $1 AND id = $2 AND deleted_at IS NULL
`
	res, err := s.db.ExecContext(ctx, q, workspaceID, id,
		d.LeadsTotal, d.CallsPlaced, d.Answered, d.Transferred, d.Callbacks, d.DNC)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PostgresStore) SoftDelete(ctx context.Context, workspaceID, id string, now time.Time) error {
	const q = `
UPDATE broadcasts SET deleted_at = $3, updated_at = $3
WHERE workspace_id = $1 AND id = $2 AND deleted_at IS NULL
`
	res, err := s.db.ExecContext(ctx, q, workspaceID, id, now)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBroadcast(r rowScanner) (Broadcast, error) {
	var b Broadcast
	var actions, hours, cid, amd, route, transfer []byte
	err := r.Scan(
		&b.ID, &b.WorkspaceID, &b.Name, &b.Status, &b.MessageText, &b.AudioURL, &b.IVRMode,
		&actions, &b.CallsPerMinute, &b.MaxAttempts, &hours, &cid,
		&amd, &route, &transfer,
		&b.Counters.LeadsTotal, &b.Counters.CallsPlaced, &b.Counters.Answered,
		&b.Counters.Transferred, &b.Counters.Callbacks, &b.Counters.DNC,
		&b.DeletedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Broadcast{}, ErrNotFound
		}
		return Broadcast{}, err
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &b.DTMFActions); err != nil {
			return Broadcast{}, err
		}
	}
	if err := json.Unmarshal(hours, &b.CallingHours); err != nil {
		return Broadcast{}, err
	}
	if err := json.Unmarshal(cid, &b.CallerID); err != nil {
		return Broadcast{}, err
	}
	if err := json.Unmarshal(amd, &b.AMD); err != nil {
		return Broadcast{}, err
	}
	if err := json.Unmarshal(route, &b.Route); err != nil {
		return Broadcast{}, err
	}
	if err := json.Unmarshal(transfer, &b.Transfer); err != nil {
		return Broadcast{}, err
	}
	return b, nil
}

func marshalPolicies(b Broadcast) (actions, hours, cid, amd, route, transfer []byte, err error) {
	if actions, err = json.Marshal(b.DTMFActions); err != nil {
		return
	}
	if hours, err = json.Marshal(b.CallingHours); err != nil {
		return
	}
	if cid, err = json.Marshal(b.CallerID); err != nil {
		return
	}
	if amd, err = json.Marshal(b.AMD); err != nil {
		return
	}
	if route, err = json.Marshal(b.Route); err != nil {
		return
	}
	transfer, err = json.Marshal(b.Transfer)
	return
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
