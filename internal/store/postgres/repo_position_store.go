package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// RepoPositionStore implements domain.RepoPositionStore using PostgreSQL. The
// monotonic position counter is the table's BIGSERIAL primary key.
type RepoPositionStore struct {
	pool *pgxpool.Pool
}

// NewRepoPositionStore creates a new RepoPositionStore backed by the given
// connection pool.
func NewRepoPositionStore(pool *pgxpool.Pool) *RepoPositionStore {
	return &RepoPositionStore{pool: pool}
}

const repoColumns = `id, borrower, series_id, collateral_units, cash_out,
	repurchase_amount, start_time, deadline, status, settled_at`

// Create inserts a new position and returns the assigned id.
func (s *RepoPositionStore) Create(ctx context.Context, pos domain.RepoPosition) (uint64, error) {
	const query = `
		INSERT INTO repo_positions (borrower, series_id, collateral_units, cash_out,
			repurchase_amount, start_time, deadline, status, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		string(pos.Borrower), int64(pos.SeriesID), pos.CollateralUnits, pos.CashOut,
		pos.RepurchaseAmount, pos.StartTime, pos.Deadline, string(pos.Status), pos.SettledAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create repo position: %w", err)
	}
	return uint64(id), nil
}

// Get looks up a position by id.
func (s *RepoPositionStore) Get(ctx context.Context, id uint64) (domain.RepoPosition, error) {
	query := `SELECT ` + repoColumns + ` FROM repo_positions WHERE id = $1`

	pos, err := scanRepoPosition(s.pool.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RepoPosition{}, domain.ErrPositionNotFound
		}
		return domain.RepoPosition{}, fmt.Errorf("postgres: get repo position %d: %w", id, err)
	}
	return pos, nil
}

// Update rewrites the mutable fields of a position.
func (s *RepoPositionStore) Update(ctx context.Context, pos domain.RepoPosition) error {
	const query = `
		UPDATE repo_positions SET status = $2, settled_at = $3
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, int64(pos.ID), string(pos.Status), pos.SettledAt)
	if err != nil {
		return fmt.Errorf("postgres: update repo position %d: %w", pos.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPositionNotFound
	}
	return nil
}

// ListByBorrower returns a borrower's positions, newest first.
func (s *RepoPositionStore) ListByBorrower(ctx context.Context, borrower domain.Principal, opts domain.ListOpts) ([]domain.RepoPosition, error) {
	query := `SELECT ` + repoColumns + ` FROM repo_positions WHERE borrower = $1 ORDER BY id DESC`
	args := []any{string(borrower)}
	argIdx := 2

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
		return nil, fmt.Errorf("postgres: list repo positions for %s: %w", borrower, err)
	}
	defer rows.Close()

	return collectRepoPositions(rows)
}

// ListOpen returns every open position, oldest first.
func (s *RepoPositionStore) ListOpen(ctx context.Context) ([]domain.RepoPosition, error) {
	query := `SELECT ` + repoColumns + ` FROM repo_positions WHERE status = $1 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, string(domain.RepoOpen))
	if err != nil {
		return nil, fmt.Errorf("postgres: list open repo positions: %w", err)
	}
	defer rows.Close()

	return collectRepoPositions(rows)
}

func collectRepoPositions(rows pgx.Rows) ([]domain.RepoPosition, error) {
	var out []domain.RepoPosition
	for rows.Next() {
		pos, err := scanRepoPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan repo position: %w", err)
		}
		out = append(out, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: repo position rows: %w", err)
	}
	return out, nil
}

func scanRepoPosition(row pgx.Row) (domain.RepoPosition, error) {
	var pos domain.RepoPosition
	var id, seriesID int64
	var borrower, status string

	err := row.Scan(
		&id, &borrower, &seriesID, &pos.CollateralUnits, &pos.CashOut,
		&pos.RepurchaseAmount, &pos.StartTime, &pos.Deadline, &status, &pos.SettledAt,
	)
	if err != nil {
		return domain.RepoPosition{}, err
	}
	pos.ID = uint64(id)
	pos.Borrower = domain.Principal(borrower)
	pos.SeriesID = uint32(seriesID)
	pos.Status = domain.RepoStatus(status)
	return pos, nil
}
