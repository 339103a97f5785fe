package mappings

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Repository stores per-deployment role overrides.
type Repository interface {
	RoleAccount(ctx context.Context, role string) (int64, error)
}

// PGRepository reads and writes account_role_mappings.
type PGRepository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: db}
}

// RoleAccount returns the overriding account id for role.
func (r *PGRepository) RoleAccount(ctx context.Context, role string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT account_id FROM account_role_mappings WHERE role=$1`, role).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.NotFound("account role", role)
		}
		return 0, shared.Storage("load account role", err)
	}
	return id, nil
}

// Set upserts an override.
func (r *PGRepository) Set(ctx context.Context, role Role, accountID int64) error {
	_, err := r.db.Exec(ctx, `INSERT INTO account_role_mappings (role, account_id, updated_at) VALUES ($1,$2,NOW())
ON CONFLICT (role) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()`, string(role), accountID)
	return shared.Storage("set account role", err)
}

// List returns every override.
func (r *PGRepository) List(ctx context.Context) ([]RoleMapping, error) {
	rows, err := r.db.Query(ctx, `SELECT role, account_id, updated_at FROM account_role_mappings ORDER BY role`)
	if err != nil {
		return nil, shared.Storage("list account roles", err)
	}
	defer rows.Close()
	var out []RoleMapping
	for rows.Next() {
		var m RoleMapping
		if err := rows.Scan(&m.Role, &m.AccountID, &m.UpdatedAt); err != nil {
			return nil, shared.Storage("scan account role", err)
		}
		out = append(out, m)
	}
	return out, shared.Storage("list account roles", rows.Err())
}
