// account_repository.go implements AccountRepository, the durable side of the account mirror.
package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/projectns/projectns/internal/accounts"
	"github.com/projectns/projectns/internal/db/models"
)

// AccountRepository handles database operations for mirrored accounts.
// It satisfies accounts.Store.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// ListAccounts returns every mirrored account ordered by name
func (r *AccountRepository) ListAccounts(ctx context.Context) ([]accounts.Ref, error) {
	var rows []models.Account
	err := r.db.SelectContext(ctx, &rows, `SELECT id, name, created_at, updated_at FROM accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	refs := make([]accounts.Ref, 0, len(rows))
	for _, a := range rows {
		refs = append(refs, accounts.Ref{ID: a.ID, Name: a.Name})
	}
	return refs, nil
}

// UpsertAccount inserts an account or updates its name
func (r *AccountRepository) UpsertAccount(ctx context.Context, ref accounts.Ref) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, updated_at = EXCLUDED.updated_at`,
		ref.ID, ref.Name, now,
	)
	return err
}

// DeleteAccount removes an account
func (r *AccountRepository) DeleteAccount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return err
}
