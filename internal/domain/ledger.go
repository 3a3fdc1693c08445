package domain

import "context"

// BalanceLedger is the external claim-token ledger. Balances are keyed by
// (series, holder); mint, burn, and escrow movement are gated by an operator
// allowlist inside the ledger. The vault only issues instructions and trusts
// the synchronous result; it never holds claim balances itself.
type BalanceLedger interface {
	Mint(ctx context.Context, seriesID uint32, to Principal, units int64) error
	Burn(ctx context.Context, seriesID uint32, from Principal, units int64) error
	BalanceOf(ctx context.Context, seriesID uint32, holder Principal) (int64, error)
	// Escrow moves units from the holder into the ledger's escrow bucket for
	// that series.
	Escrow(ctx context.Context, seriesID uint32, from Principal, units int64) error
	// Release moves escrowed units to the given recipient (the borrower on
	// repay, the treasury on default).
	Release(ctx context.Context, seriesID uint32, to Principal, units int64) error
}

// CashLedger is the external cash ledger: an arbitrary-principal value
// transfer capability with a synchronous success/fail result.
type CashLedger interface {
	Transfer(ctx context.Context, from, to Principal, amount int64) error
	BalanceOf(ctx context.Context, account Principal) (int64, error)
}
