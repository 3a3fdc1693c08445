package domain

import "time"

// SeriesStatus is the lifecycle state of a T-Bill series.
type SeriesStatus string

const (
	// SeriesUpcoming means the series exists but subscriptions are not open yet.
	SeriesUpcoming SeriesStatus = "upcoming"
	// SeriesActive means the series is open for subscriptions.
	SeriesActive SeriesStatus = "active"
	// SeriesMatured means the maturity date has passed and redemptions are open.
	SeriesMatured SeriesStatus = "matured"
	// SeriesClosed is the optional terminal administrative state.
	SeriesClosed SeriesStatus = "closed"
)

// Series is one issuance batch of bill claims with shared pricing parameters.
// All monetary fields are scaled integers (see fixedpoint.Scale).
type Series struct {
	ID           uint32
	IssueDate    time.Time
	MaturityDate time.Time
	ParUnit      int64
	IssuePrice   int64
	CapTotal     int64
	CapPerHolder int64
	// MintedTotal is the running sum of claim units issued. It never
	// decreases while the series is open and never exceeds CapTotal.
	MintedTotal int64
	// SubscriptionsCollected is the cumulative cash taken in by subscriptions.
	SubscriptionsCollected int64
	Status                 SeriesStatus
	CreatedAt              time.Time
}

// StatusAt derives the effective status at time t. An Active series whose
// maturity date has passed reports Matured even before the stored row is
// advanced, so permission checks never depend on an explicit transition
// having been recorded.
func (s Series) StatusAt(t time.Time) SeriesStatus {
	if s.Status == SeriesActive && !t.Before(s.MaturityDate) {
		return SeriesMatured
	}
	return s.Status
}

// HolderPosition tracks the lifetime subscribed units of one holder in one
// series. It is a cap counter, not a live balance: redemptions do not
// decrease it. The live balance lives in the BalanceLedger.
type HolderPosition struct {
	SeriesID        uint32
	Holder          Principal
	SubscribedUnits int64
	UpdatedAt       time.Time
}
