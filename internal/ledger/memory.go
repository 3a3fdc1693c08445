// Package ledger provides the external collaborators the vault instructs:
// the claim-token balance ledger (per-series balances with an operator
// allowlist and an escrow bucket) and the cash ledger (principal-to-principal
// value transfer). The vault core never holds balances itself; it issues
// synchronous instructions against these and trusts the result.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// escrowHolder is the reserved principal under which escrowed claim units are
// held per series.
const escrowHolder domain.Principal = "escrow"

// ClaimLedger is an in-memory claim-token ledger. Mint, burn, and escrow
// movement require the caller to hold an operator handle, mirroring the
// token contract's operator allowlist.
type ClaimLedger struct {
	mu        sync.RWMutex
	balances  map[string]int64
	operators map[string]bool
}

// NewClaimLedger creates a ClaimLedger with the given registered operators.
func NewClaimLedger(operators ...string) *ClaimLedger {
	ops := make(map[string]bool, len(operators))
	for _, op := range operators {
		ops[op] = true
	}
	return &ClaimLedger{
		balances:  make(map[string]int64),
		operators: ops,
	}
}

func balanceKey(seriesID uint32, holder domain.Principal) string {
	return fmt.Sprintf("%d/%s", seriesID, holder)
}

// Operator returns a domain.BalanceLedger handle acting as the named
// operator. Calls through a handle whose operator is not registered fail with
// ErrOperatorRequired.
func (l *ClaimLedger) Operator(name string) domain.BalanceLedger {
	return &claimOperator{ledger: l, name: name}
}

// BalanceOf returns the live claim balance of a holder in a series.
func (l *ClaimLedger) BalanceOf(_ context.Context, seriesID uint32, holder domain.Principal) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey(seriesID, holder)], nil
}

func (l *ClaimLedger) authorize(name string) error {
	if !l.operators[name] {
		return fmt.Errorf("ledger: operator %q: %w", name, domain.ErrOperatorRequired)
	}
	return nil
}

func (l *ClaimLedger) credit(seriesID uint32, holder domain.Principal, units int64) {
	l.balances[balanceKey(seriesID, holder)] += units
}

func (l *ClaimLedger) debit(seriesID uint32, holder domain.Principal, units int64) error {
	key := balanceKey(seriesID, holder)
	if l.balances[key] < units {
		return fmt.Errorf("ledger: series %d holder %s: %w", seriesID, holder, domain.ErrInsufficientBalance)
	}
	l.balances[key] -= units
	return nil
}

// claimOperator is an operator-scoped view of a ClaimLedger.
type claimOperator struct {
	ledger *ClaimLedger
	name   string
}

func (o *claimOperator) Mint(_ context.Context, seriesID uint32, to domain.Principal, units int64) error {
	if units <= 0 {
		return fmt.Errorf("ledger: mint %d: %w", units, domain.ErrInvalidAmount)
	}
	o.ledger.mu.Lock()
	defer o.ledger.mu.Unlock()
	if err := o.ledger.authorize(o.name); err != nil {
		return err
	}
	o.ledger.credit(seriesID, to, units)
	return nil
}

func (o *claimOperator) Burn(_ context.Context, seriesID uint32, from domain.Principal, units int64) error {
	if units <= 0 {
		return fmt.Errorf("ledger: burn %d: %w", units, domain.ErrInvalidAmount)
	}
	o.ledger.mu.Lock()
	defer o.ledger.mu.Unlock()
	if err := o.ledger.authorize(o.name); err != nil {
		return err
	}
	return o.ledger.debit(seriesID, from, units)
}

func (o *claimOperator) BalanceOf(ctx context.Context, seriesID uint32, holder domain.Principal) (int64, error) {
	return o.ledger.BalanceOf(ctx, seriesID, holder)
}

func (o *claimOperator) Escrow(_ context.Context, seriesID uint32, from domain.Principal, units int64) error {
	if units <= 0 {
		return fmt.Errorf("ledger: escrow %d: %w", units, domain.ErrInvalidAmount)
	}
	o.ledger.mu.Lock()
	defer o.ledger.mu.Unlock()
	if err := o.ledger.authorize(o.name); err != nil {
		return err
	}
	if err := o.ledger.debit(seriesID, from, units); err != nil {
		return err
	}
	o.ledger.credit(seriesID, escrowHolder, units)
	return nil
}

func (o *claimOperator) Release(_ context.Context, seriesID uint32, to domain.Principal, units int64) error {
	if units <= 0 {
		return fmt.Errorf("ledger: release %d: %w", units, domain.ErrInvalidAmount)
	}
	o.ledger.mu.Lock()
	defer o.ledger.mu.Unlock()
	if err := o.ledger.authorize(o.name); err != nil {
		return err
	}
	if err := o.ledger.debit(seriesID, escrowHolder, units); err != nil {
		return err
	}
	o.ledger.credit(seriesID, to, units)
	return nil
}

// CashAccounts is an in-memory domain.CashLedger.
type CashAccounts struct {
	mu       sync.RWMutex
	balances map[domain.Principal]int64
}

// NewCashAccounts creates an empty CashAccounts ledger.
func NewCashAccounts() *CashAccounts {
	return &CashAccounts{balances: make(map[domain.Principal]int64)}
}

// Deposit credits an account directly. It exists for seeding paper-mode and
// test balances; the vault itself only ever calls Transfer.
func (c *CashAccounts) Deposit(account domain.Principal, amount int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[account] += amount
}

// Transfer moves amount from one account to another, failing when the source
// balance is insufficient.
func (c *CashAccounts) Transfer(_ context.Context, from, to domain.Principal, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("ledger: transfer %d: %w", amount, domain.ErrInvalidAmount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.balances[from] < amount {
		return fmt.Errorf("ledger: transfer from %s: %w", from, domain.ErrInsufficientFunds)
	}
	c.balances[from] -= amount
	c.balances[to] += amount
	return nil
}

// BalanceOf returns the cash balance of an account.
func (c *CashAccounts) BalanceOf(_ context.Context, account domain.Principal) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.balances[account], nil
}
