package callerid

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresDirectory stores the caller-id pool in the caller_id_pool table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const poolColumns = `id, workspace_id, number, healthy, reserved, trunk_member, rotation_eligible, created_at, updated_at`

func (d *PostgresDirectory) List(ctx context.Context, workspaceID string) ([]PoolEntry, error) {
	const q = `
SELECT ` + poolColumns + `
FROM caller_id_pool
WHERE workspace_id = $1
ORDER BY number
`
	rows, err := d.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PoolEntry
	for rows.Next() {
		var e PoolEntry
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.Number, &e.Healthy, &e.Reserved, &e.TrunkMember, &e.RotationEligible, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *PostgresDirectory) GetByNumber(ctx context.Context, workspaceID, number string) (PoolEntry, error) {
	const q = `
SELECT ` + poolColumns + `
FROM caller_id_pool
WHERE workspace_id = $1 AND number = $2
`
	var e PoolEntry
	err := d.db.QueryRowContext(ctx, q, workspaceID, number).
		Scan(&e.ID, &e.WorkspaceID, &e.Number, &e.Healthy, &e.Reserved, &e.TrunkMember, &e.RotationEligible, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PoolEntry{}, ErrNotFound
		}
		return PoolEntry{}, err
	}
	return e, nil
}

func (d *PostgresDirectory) Upsert(ctx context.Context, entry PoolEntry) error {
	if entry.WorkspaceID == "" || entry.Number == "" {
		return ErrInvalidInput
	}
	const q = `
INSERT INTO caller_id_pool (` + poolColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (workspace_id, number) DO UPDATE
SET healthy = EXCLUDED.healthy, reserved = EXCLUDED.reserved, trunk_member = EXCLUDED.trunk_member,
    rotation_eligible = EXCLUDED.rotation_eligible, updated_at = EXCLUDED.updated_at
`
	_, err := d.db.ExecContext(ctx, q,
		entry.ID, entry.WorkspaceID, entry.Number,
		entry.Healthy, entry.Reserved, entry.TrunkMember, entry.RotationEligible, entry.CreatedAt, entry.UpdatedAt,
	)
	return err
}

func (d *PostgresDirectory) SetHealth(ctx context.Context, workspaceID, number string, healthy bool) error {
	const q = `
UPDATE caller_id_pool
SET healthy = $3, updated_at = now()
WHERE workspace_id = $1 AND number = $2
`
	res, err := d.db.ExecContext(ctx, q, workspaceID, number, healthy)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
