package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/billvault/internal/domain"
	"github.com/alanyoungcy/billvault/internal/fixedpoint"
)

// TestSubscribe verifies the discounted mint at the issue-date price.
func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t)
	f.createActiveSeries(t, defaultSeriesParams(1, 9_800_000))
	f.cash.Deposit(testHolder, 2_000_000_000)

	res, err := f.subSvc.Subscribe(ctx, testHolder, 1, 1_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, int64(9_800_000), res.Price)
	assert.Equal(t, int64(1_020_408_163), res.MintedUnits)

	assert.Equal(t, int64(1_020_408_163), f.claimBalance(t, 1, testHolder))
	assert.Equal(t, int64(1_000_000_000), f.cashBalance(t, testTreasury))
	assert.Equal(t, int64(1_000_000_000), f.cashBalance(t, testHolder))

	row, err := f.seriesSvc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1_020_408_163), row.MintedTotal)
	assert.Equal(t, int64(1_000_000_000), row.SubscriptionsCollected)

	pos, balance, err := f.subSvc.Position(ctx, 1, testHolder)
	require.NoError(t, err)
	assert.Equal(t, int64(1_020_408_163), pos.SubscribedUnits)
	assert.Equal(t, int64(1_020_408_163), balance)

	acc, err := f.accounting.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000_000), acc.SubscriptionsCollected)
	assert.Equal(t, int64(1_020_408_163), acc.ParMinted)
}

// TestSubscribeStatusGuards verifies that only an effectively Active series
// accepts subscriptions.
func TestSubscribeStatusGuards(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t)
	require.NoError(t, f.seriesSvc.CreateSeries(ctx, testIssuer, defaultSeriesParams(1, 9_800_000)))
	f.cash.Deposit(testHolder, 1_000_000_000)

	// Upcoming.
	_, err := f.subSvc.Subscribe(ctx, testHolder, 1, 100_000_000)
	assert.ErrorIs(t, err, domain.ErrSeriesNotActive)

	require.NoError(t, f.seriesSvc.ActivateSeries(ctx, testIssuer, 1))

	// Past maturity the stored status is still Active but the effective
	// status is Matured, so subscription is refused.
	f.clock.Set(time.Unix(2_000_000, 0).UTC())
	_, err = f.subSvc.Subscribe(ctx, testHolder, 1, 100_000_000)
	assert.ErrorIs(t, err, domain.ErrSeriesNotActive)

	_, err = f.subSvc.Subscribe(ctx, testHolder, 1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.subSvc.Subscribe(ctx, testHolder, 99, 100_000_000)
	assert.ErrorIs(t, err, domain.ErrSeriesNotFound)
}

// TestSubscribeCaps verifies both cap tiers and that a refused subscription
// leaves no trace.
func TestSubscribeCaps(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t)

	params := defaultSeriesParams(1, fixedpoint.Par)
	params.CapTotal = 1_000
	params.CapPerHolder = 600
	f.createActiveSeries(t, params)
	f.cash.Deposit(testHolder, 10_000)
	f.cash.Deposit(testBorrower, 10_000)

	// At par price units mint 1:1 with cash.
	_, err := f.subSvc.Subscribe(ctx, testHolder, 1, 500)
	require.NoError(t, err)

	// 500 + 200 exceeds the 600 per-holder cap.
	_, err = f.subSvc.Subscribe(ctx, testHolder, 1, 200)
	assert.ErrorIs(t, err, domain.ErrExceedsHolderCap)

	// A second holder has its own cap, but 500 + 600 exceeds the series cap.
	_, err = f.subSvc.Subscribe(ctx, testBorrower, 1, 600)
	assert.ErrorIs(t, err, domain.ErrExceedsSeriesCap)

	// The refused subscriptions moved nothing.
	row, err := f.seriesSvc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(500), row.MintedTotal)
	assert.Equal(t, int64(500), f.claimBalance(t, 1, testHolder))
	assert.Zero(t, f.claimBalance(t, 1, testBorrower))
	assert.Equal(t, int64(10_000), f.cashBalance(t, testBorrower))

	// Redeeming does not free per-holder cap: the counter is lifetime.
	f.clock.Set(time.Unix(2_000_000, 0).UTC())
	_, err = f.subSvc.Redeem(ctx, testHolder, 1, 500)
	require.NoError(t, err)
	pos, _, err := f.subSvc.Position(ctx, 1, testHolder)
	require.NoError(t, err)
	assert.Equal(t, int64(500), pos.SubscribedUnits)
}

// TestSubscribeCompensation verifies that a failed payment rolls back the cap
// consumption committed before the ledger call.
func TestSubscribeCompensation(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t)
	f.createActiveSeries(t, defaultSeriesParams(1, 9_800_000))

	// Holder has no cash, so the transfer to the treasury fails after the
	// series and position rows were updated.
	_, err := f.subSvc.Subscribe(ctx, testHolder, 1, 1_000_000_000)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	row, err := f.seriesSvc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, row.MintedTotal)
	assert.Zero(t, row.SubscriptionsCollected)

	pos, balance, err := f.subSvc.Position(ctx, 1, testHolder)
	require.NoError(t, err)
	assert.Zero(t, pos.SubscribedUnits)
	assert.Zero(t, balance)
}

// TestRedeem verifies par redemption after maturity.
func TestRedeem(t *testing.T) {
	ctx := context.Background()
	f := newVaultFixture(t)
	f.createActiveSeries(t, defaultSeriesParams(1, 9_800_000))
	f.cash.Deposit(testHolder, 1_000_000_000)

	res, err := f.subSvc.Subscribe(ctx, testHolder, 1, 1_000_000_000)
	require.NoError(t, err)

	// Not matured yet.
	_, err = f.subSvc.Redeem(ctx, testHolder, 1, res.MintedUnits)
	assert.ErrorIs(t, err, domain.ErrSeriesNotMatured)

	// Maturity passed; no explicit mature call is needed.
	f.clock.Set(time.Unix(2_000_000, 0).UTC())

	// Cannot redeem more than held.
	_, err = f.subSvc.Redeem(ctx, testHolder, 1, res.MintedUnits+1)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	// The treasury owes par on every minted unit, more than it collected.
	// Top it up to cover the accretion gain.
	f.cash.Deposit(testTreasury, res.MintedUnits-res.PayAmount)

	payout, err := f.subSvc.Redeem(ctx, testHolder, 1, res.MintedUnits)
	require.NoError(t, err)
	assert.Equal(t, res.MintedUnits, payout)

	assert.Zero(t, f.claimBalance(t, 1, testHolder))
	assert.Equal(t, res.MintedUnits, f.cashBalance(t, testHolder))
	assert.Zero(t, f.cashBalance(t, testTreasury))

	acc, err := f.accounting.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.MintedUnits, acc.ParRedeemed)

	_, err = f.subSvc.Redeem(ctx, testHolder, 1, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}
