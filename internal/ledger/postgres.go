package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// PGClaimLedger is the PostgreSQL-backed claim-token ledger. Balances live in
// the claim_balances table keyed (series_id, holder); escrowed units are held
// under the reserved escrow holder row per series.
type PGClaimLedger struct {
	pool      *pgxpool.Pool
	operators map[string]bool
}

// NewPGClaimLedger creates a PGClaimLedger with the given registered
// operators.
func NewPGClaimLedger(pool *pgxpool.Pool, operators ...string) *PGClaimLedger {
	ops := make(map[string]bool, len(operators))
	for _, op := range operators {
		ops[op] = true
	}
	return &PGClaimLedger{pool: pool, operators: ops}
}

// Operator returns a domain.BalanceLedger handle acting as the named
// operator.
func (l *PGClaimLedger) Operator(name string) domain.BalanceLedger {
	return &pgClaimOperator{ledger: l, name: name}
}

// BalanceOf returns the live claim balance of a holder in a series.
func (l *PGClaimLedger) BalanceOf(ctx context.Context, seriesID uint32, holder domain.Principal) (int64, error) {
	const query = `SELECT amount FROM claim_balances WHERE series_id = $1 AND holder = $2`
	var amount int64
	err := l.pool.QueryRow(ctx, query, int64(seriesID), holder.String()).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: balance of series %d holder %s: %w", seriesID, holder, err)
	}
	return amount, nil
}

func (l *PGClaimLedger) authorize(name string) error {
	if !l.operators[name] {
		return fmt.Errorf("ledger: operator %q: %w", name, domain.ErrOperatorRequired)
	}
	return nil
}

// credit upserts a balance row inside tx.
func credit(ctx context.Context, tx pgx.Tx, seriesID uint32, holder domain.Principal, units int64) error {
	const query = `
		INSERT INTO claim_balances (series_id, holder, amount)
		VALUES ($1, $2, $3)
		ON CONFLICT (series_id, holder) DO UPDATE SET amount = claim_balances.amount + $3`
	_, err := tx.Exec(ctx, query, int64(seriesID), holder.String(), units)
	return err
}

// debit decrements a balance row inside tx, failing when the balance is
// insufficient.
func debit(ctx context.Context, tx pgx.Tx, seriesID uint32, holder domain.Principal, units int64) error {
	const query = `
		UPDATE claim_balances SET amount = amount - $3
		WHERE series_id = $1 AND holder = $2 AND amount >= $3`
	tag, err := tx.Exec(ctx, query, int64(seriesID), holder.String(), units)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: series %d holder %s: %w", seriesID, holder, domain.ErrInsufficientBalance)
	}
	return nil
}

type pgClaimOperator struct {
	ledger *PGClaimLedger
	name   string
}

func (o *pgClaimOperator) inTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	if err := o.ledger.authorize(o.name); err != nil {
		return err
	}
	tx, err := o.ledger.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("ledger: %s: begin: %w", op, err)
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: %s: commit: %w", op, err)
	}
	return nil
}

func (o *pgClaimOperator) Mint(ctx context.Context, seriesID uint32, to domain.Principal, units int64) error {
	if units <= 0 {
		return fmt.Errorf("ledger: mint %d: %w", units, domain.ErrInvalidAmount)
	}
	return o.inTx(ctx, "mint", func(tx pgx.Tx) error {
		return credit(ctx, tx, seriesID, to, units)
	})
}

func (o *pgClaimOperator) Burn(ctx context.Context, seriesID uint32, from domain.Principal, units int64) error {
	if units <= 0 {
		return fmt.Errorf("ledger: burn %d: %w", units, domain.ErrInvalidAmount)
	}
	return o.inTx(ctx, "burn", func(tx pgx.Tx) error {
		return debit(ctx, tx, seriesID, from, units)
	})
}

func (o *pgClaimOperator) BalanceOf(ctx context.Context, seriesID uint32, holder domain.Principal) (int64, error) {
	return o.ledger.BalanceOf(ctx, seriesID, holder)
}

func (o *pgClaimOperator) Escrow(ctx context.Context, seriesID uint32, from domain.Principal, units int64) error {
	if units <= 0 {
		return fmt.Errorf("ledger: escrow %d: %w", units, domain.ErrInvalidAmount)
	}
	return o.inTx(ctx, "escrow", func(tx pgx.Tx) error {
		if err := debit(ctx, tx, seriesID, from, units); err != nil {
			return err
		}
		return credit(ctx, tx, seriesID, escrowHolder, units)
	})
}

func (o *pgClaimOperator) Release(ctx context.Context, seriesID uint32, to domain.Principal, units int64) error {
	if units <= 0 {
		return fmt.Errorf("ledger: release %d: %w", units, domain.ErrInvalidAmount)
	}
	return o.inTx(ctx, "release", func(tx pgx.Tx) error {
		if err := debit(ctx, tx, seriesID, escrowHolder, units); err != nil {
			return err
		}
		return credit(ctx, tx, seriesID, to, units)
	})
}

// PGCashAccounts is the PostgreSQL-backed domain.CashLedger.
type PGCashAccounts struct {
	pool *pgxpool.Pool
}

// NewPGCashAccounts creates a PGCashAccounts ledger.
func NewPGCashAccounts(pool *pgxpool.Pool) *PGCashAccounts {
	return &PGCashAccounts{pool: pool}
}

// Transfer atomically moves amount between two accounts, failing when the
// source balance is insufficient.
func (c *PGCashAccounts) Transfer(ctx context.Context, from, to domain.Principal, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: transfer %d: %w", amount, domain.ErrInvalidAmount)
	}
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("ledger: transfer: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const debitQuery = `
		UPDATE cash_accounts SET amount = amount - $2
		WHERE account = $1 AND amount >= $2`
	tag, err := tx.Exec(ctx, debitQuery, from.String(), amount)
	if err != nil {
		return fmt.Errorf("ledger: transfer from %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ledger: transfer from %s: %w", from, domain.ErrInsufficientFunds)
	}

	const creditQuery = `
		INSERT INTO cash_accounts (account, amount)
		VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET amount = cash_accounts.amount + $2`
	if _, err := tx.Exec(ctx, creditQuery, to.String(), amount); err != nil {
		return fmt.Errorf("ledger: transfer to %s: %w", to, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: transfer: commit: %w", err)
	}
	return nil
}

// BalanceOf returns the cash balance of an account.
func (c *PGCashAccounts) BalanceOf(ctx context.Context, account domain.Principal) (int64, error) {
	const query = `SELECT amount FROM cash_accounts WHERE account = $1`
	var amount int64
	err := c.pool.QueryRow(ctx, query, account.String()).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger: balance of %s: %w", account, err)
	}
	return amount, nil
}
