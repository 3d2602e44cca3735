package leads

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresDirectory stores leads in the leads table.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const leadColumns = `id, workspace_id, phone, name, dnc, created_at, updated_at`

func (d *PostgresDirectory) Get(ctx context.Context, workspaceID, leadID string) (Lead, error) {
	const q = `
SELECT ` + leadColumns + `
FROM leads
WHERE workspace_id = $1 AND id = $2
`
	var l Lead
	err := d.db.QueryRowContext(ctx, q, workspaceID, leadID).
		Scan(&l.ID, &l.WorkspaceID, &l.Phone, &l.Name, &l.DNC, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
}

func (d *PostgresDirectory) Upsert(ctx context.Context, l Lead) error {
	if l.ID == "" || l.WorkspaceID == "" {
		return ErrInvalidInput
	}
	const q = `
INSERT INTO leads (` + leadColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE
SET phone = EXCLUDED.phone, name = EXCLUDED.name, dnc = EXCLUDED.dnc, updated_at = EXCLUDED.updated_at
`
	_, err := d.db.ExecContext(ctx, q, l.ID, l.WorkspaceID, l.Phone, l.Name, l.DNC, l.CreatedAt, l.UpdatedAt)
	return err
}

func (d *PostgresDirectory) SetDNC(ctx context.Context, workspaceID, leadID string) error {
	const q = `
UPDATE leads
SET dnc = true, updated_at = now()
WHERE workspace_id = $1 AND id = $2
`
	res, err := d.db.ExecContext(ctx, q, workspaceID, leadID)
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

func (d *PostgresDirectory) ListCallable(ctx context.Context, workspaceID string) ([]Lead, error) {
	const q = `
SELECT ` + leadColumns + `
FROM leads
WHERE workspace_id = $1 AND dnc = false
ORDER BY id
`
	rows, err := d.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		var l Lead
		if err := rows.Scan(&l.ID, &l.WorkspaceID, &l.Phone, &l.Name, &l.DNC, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
