package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// AccountingStore implements domain.AccountingStore using PostgreSQL. The
// vault_accounting table holds exactly one row, seeded by the migration.
type AccountingStore struct {
	pool *pgxpool.Pool
}

// NewAccountingStore creates a new AccountingStore backed by the given
// connection pool.
func NewAccountingStore(pool *pgxpool.Pool) *AccountingStore {
	return &AccountingStore{pool: pool}
}

// Get reads the accounting row.
func (s *AccountingStore) Get(ctx context.Context) (domain.VaultAccounting, error) {
	const query = `
		SELECT subscriptions_collected, par_minted, par_redeemed, currently_lent,
			repo_revenue, default_count, defaulted_units
		FROM vault_accounting WHERE id = 1`

	var acc domain.VaultAccounting
	err := s.pool.QueryRow(ctx, query).Scan(
		&acc.SubscriptionsCollected, &acc.ParMinted, &acc.ParRedeemed,
		&acc.CurrentlyLent, &acc.RepoRevenue, &acc.DefaultCount, &acc.DefaultedUnits,
	)
	if err != nil {
		return domain.VaultAccounting{}, fmt.Errorf("postgres: get accounting: %w", err)
	}
	return acc, nil
}

// Put rewrites the accounting row.
func (s *AccountingStore) Put(ctx context.Context, acc domain.VaultAccounting) error {
	const query = `
		UPDATE vault_accounting SET
			subscriptions_collected = $1, par_minted = $2, par_redeemed = $3,
			currently_lent = $4, repo_revenue = $5, default_count = $6, defaulted_units = $7
		WHERE id = 1`

	_, err := s.pool.Exec(ctx, query,
		acc.SubscriptionsCollected, acc.ParMinted, acc.ParRedeemed,
		acc.CurrentlyLent, acc.RepoRevenue, acc.DefaultCount, acc.DefaultedUnits,
	)
	if err != nil {
		return fmt.Errorf("postgres: put accounting: %w", err)
	}
	return nil
}
