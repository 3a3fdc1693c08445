package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// HolderPositionStore implements domain.HolderPositionStore using PostgreSQL.
type HolderPositionStore struct {
	pool *pgxpool.Pool
}

// NewHolderPositionStore creates a new HolderPositionStore backed by the given
// connection pool.
func NewHolderPositionStore(pool *pgxpool.Pool) *HolderPositionStore {
	return &HolderPositionStore{pool: pool}
}

// Get returns the cap counter for one holder in one series. A holder with no
// row has never subscribed and reports a zero-valued position.
func (s *HolderPositionStore) Get(ctx context.Context, seriesID uint32, holder domain.Principal) (domain.HolderPosition, error) {
	const query = `
		SELECT subscribed_units, updated_at
		FROM holder_positions
		WHERE series_id = $1 AND holder = $2`

	pos := domain.HolderPosition{SeriesID: seriesID, Holder: holder}
	err := s.pool.QueryRow(ctx, query, int64(seriesID), string(holder)).
		Scan(&pos.SubscribedUnits, &pos.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.HolderPosition{SeriesID: seriesID, Holder: holder}, nil
		}
		return domain.HolderPosition{}, fmt.Errorf("postgres: get holder position %d/%s: %w", seriesID, holder, err)
	}
	return pos, nil
}

// Upsert writes the cap counter, creating the row on first subscription.
func (s *HolderPositionStore) Upsert(ctx context.Context, pos domain.HolderPosition) error {
	const query = `
		INSERT INTO holder_positions (series_id, holder, subscribed_units, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (series_id, holder)
		DO UPDATE SET subscribed_units = EXCLUDED.subscribed_units, updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		int64(pos.SeriesID), string(pos.Holder), pos.SubscribedUnits, pos.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert holder position %d/%s: %w", pos.SeriesID, pos.Holder, err)
	}
	return nil
}
