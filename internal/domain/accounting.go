package domain

// VaultAccounting is the running record of aggregate cash and claim flows.
// It is bookkeeping only: the per-operation invariants are the contract, and
// Profit can legitimately be negative before maturity.
type VaultAccounting struct {
	SubscriptionsCollected int64
	ParMinted              int64
	ParRedeemed            int64
	CurrentlyLent          int64
	RepoRevenue            int64
	DefaultCount           int64
	DefaultedUnits         int64
}

// Profit returns revenue (subscriptions plus repo spread revenue) minus the
// outstanding par redemption liability. Unrealized until maturity.
func (a VaultAccounting) Profit() int64 {
	return a.SubscriptionsCollected + a.RepoRevenue - (a.ParMinted - a.ParRedeemed)
}

// AvailableForLending returns cash on hand not currently lent out. The vault
// lends from its full cash balance; safety comes from the per-position
// haircut, not from a reserve ratio.
func (a VaultAccounting) AvailableForLending() int64 {
	avail := a.SubscriptionsCollected + a.RepoRevenue - a.CurrentlyLent
	if avail < 0 {
		return 0
	}
	return avail
}
