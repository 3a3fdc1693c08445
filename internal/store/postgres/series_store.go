package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// SeriesStore implements domain.SeriesStore using PostgreSQL.
type SeriesStore struct {
	pool *pgxpool.Pool
}

// NewSeriesStore creates a new SeriesStore backed by the given connection pool.
func NewSeriesStore(pool *pgxpool.Pool) *SeriesStore {
	return &SeriesStore{pool: pool}
}

const seriesColumns = `id, issue_date, maturity_date, par_unit, issue_price,
	cap_total, cap_per_holder, minted_total, subscriptions_collected, status, created_at`

// Create inserts a new series row. Series ids are never reused, so a unique
// violation maps to ErrSeriesExists.
func (s *SeriesStore) Create(ctx context.Context, sr domain.Series) error {
	const query = `
		INSERT INTO series (id, issue_date, maturity_date, par_unit, issue_price,
			cap_total, cap_per_holder, minted_total, subscriptions_collected, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		int64(sr.ID), sr.IssueDate, sr.MaturityDate, sr.ParUnit, sr.IssuePrice,
		sr.CapTotal, sr.CapPerHolder, sr.MintedTotal, sr.SubscriptionsCollected,
		string(sr.Status), sr.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrSeriesExists
		}
		return fmt.Errorf("postgres: create series %d: %w", sr.ID, err)
	}
	return nil
}

// Get looks up a series by id.
func (s *SeriesStore) Get(ctx context.Context, id uint32) (domain.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series WHERE id = $1`

	sr, err := scanSeries(s.pool.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Series{}, domain.ErrSeriesNotFound
		}
		return domain.Series{}, fmt.Errorf("postgres: get series %d: %w", id, err)
	}
	return sr, nil
}

// Update rewrites a series row.
func (s *SeriesStore) Update(ctx context.Context, sr domain.Series) error {
	const query = `
		UPDATE series SET
			issue_date = $2, maturity_date = $3, par_unit = $4, issue_price = $5,
			cap_total = $6, cap_per_holder = $7, minted_total = $8,
			subscriptions_collected = $9, status = $10
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		int64(sr.ID), sr.IssueDate, sr.MaturityDate, sr.ParUnit, sr.IssuePrice,
		sr.CapTotal, sr.CapPerHolder, sr.MintedTotal, sr.SubscriptionsCollected,
		string(sr.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: update series %d: %w", sr.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSeriesNotFound
	}
	return nil
}

// List returns series ordered by id with pagination.
func (s *SeriesStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series ORDER BY id`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list series: %w", err)
	}
	defer rows.Close()

	var out []domain.Series
	for rows.Next() {
		sr, err := scanSeries(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan series: %w", err)
		}
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list series rows: %w", err)
	}
	return out, nil
}

func scanSeries(row pgx.Row) (domain.Series, error) {
	var sr domain.Series
	var id int64
	var status string

	err := row.Scan(
		&id, &sr.IssueDate, &sr.MaturityDate, &sr.ParUnit, &sr.IssuePrice,
		&sr.CapTotal, &sr.CapPerHolder, &sr.MintedTotal, &sr.SubscriptionsCollected,
		&status, &sr.CreatedAt,
	)
	if err != nil {
		return domain.Series{}, err
	}
	sr.ID = uint32(id)
	sr.Status = domain.SeriesStatus(status)
	return sr, nil
}
