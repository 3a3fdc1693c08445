package domain

import "time"

// RepoStatus is the state of a repo position. Both non-open states are
// terminal.
type RepoStatus string

const (
	RepoOpen      RepoStatus = "open"
	RepoClosed    RepoStatus = "closed"
	RepoDefaulted RepoStatus = "defaulted"
)

// RepoPosition is a collateralized loan of vault cash against escrowed claim
// units. The outcome is binary: the borrower repays RepurchaseAmount by the
// deadline and recovers the collateral, or the treasury claims the collateral
// after the deadline.
type RepoPosition struct {
	ID              uint64
	Borrower        Principal
	SeriesID        uint32
	CollateralUnits int64
	CashOut         int64
	// RepurchaseAmount = CashOut * (BasisPoints + spread) / BasisPoints,
	// fixed at open.
	RepurchaseAmount int64
	StartTime        time.Time
	Deadline         time.Time
	Status           RepoStatus
	SettledAt        *time.Time
}
