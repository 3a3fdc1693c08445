package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/billvault/internal/domain"
	"github.com/alanyoungcy/billvault/internal/fixedpoint"
)

// repoFixture sets up an active series in which the borrower holds collateral
// and the treasury holds lendable cash.
func repoFixture(t *testing.T) *vaultFixture {
	t.Helper()
	ctx := context.Background()

	f := newVaultFixture(t)
	f.createActiveSeries(t, defaultSeriesParams(1, 9_900_000))

	// The borrower subscribes for 10_000 units of collateral at the issue
	// price of 0.99.
	f.cash.Deposit(testBorrower, 9_900*fixedpoint.Scale)
	res, err := f.subSvc.Subscribe(ctx, testBorrower, 1, 9_900*fixedpoint.Scale)
	require.NoError(t, err)
	require.Equal(t, 10_000*fixedpoint.Scale, res.MintedUnits)

	return f
}

// TestOpenRepo verifies the haircut loan-to-value limit and the escrow and
// disbursement effects.
func TestOpenRepo(t *testing.T) {
	ctx := context.Background()
	f := repoFixture(t)
	deadline := time.Unix(1_500_000, 0).UTC()

	// units * price / par * (10000 - 300) / 10000 at the issue-date price.
	maxCash := int64(9_603) * fixedpoint.Scale

	// One stroop over the limit is refused with no side effects.
	_, err := f.repoSvc.OpenRepo(ctx, testBorrower, 1, 10_000*fixedpoint.Scale, maxCash+1, deadline)
	assert.ErrorIs(t, err, domain.ErrExceedsMaxCash)
	assert.Equal(t, 10_000*fixedpoint.Scale, f.claimBalance(t, 1, testBorrower))
	assert.Zero(t, f.cashBalance(t, testBorrower))

	id, err := f.repoSvc.OpenRepo(ctx, testBorrower, 1, 10_000*fixedpoint.Scale, maxCash, deadline)
	require.NoError(t, err)

	pos, err := f.repoSvc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RepoOpen, pos.Status)
	assert.Equal(t, maxCash, pos.CashOut)
	// repurchase = cash * (10000 + 200) / 10000
	assert.Equal(t, maxCash*10_200/10_000, pos.RepurchaseAmount)

	// Collateral left the borrower, cash arrived.
	assert.Zero(t, f.claimBalance(t, 1, testBorrower))
	assert.Equal(t, maxCash, f.cashBalance(t, testBorrower))

	acc, err := f.accounting.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, maxCash, acc.CurrentlyLent)
}

// TestOpenRepoDeadline verifies that the deadline may reach but not exceed the
// series maturity date.
func TestOpenRepoDeadline(t *testing.T) {
	ctx := context.Background()
	f := repoFixture(t)
	maturity := time.Unix(2_000_000, 0).UTC()

	_, err := f.repoSvc.OpenRepo(ctx, testBorrower, 1, 1_000*fixedpoint.Scale, 100*fixedpoint.Scale, maturity.Add(time.Second))
	assert.ErrorIs(t, err, domain.ErrInvalidDeadline)

	// Deadline equal to maturity is allowed.
	_, err = f.repoSvc.OpenRepo(ctx, testBorrower, 1, 1_000*fixedpoint.Scale, 100*fixedpoint.Scale, maturity)
	require.NoError(t, err)
}

// TestOpenRepoGuards verifies amount and status validation.
func TestOpenRepoGuards(t *testing.T) {
	ctx := context.Background()
	f := repoFixture(t)
	deadline := time.Unix(1_500_000, 0).UTC()

	_, err := f.repoSvc.OpenRepo(ctx, testBorrower, 1, 0, 100, deadline)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.repoSvc.OpenRepo(ctx, testBorrower, 1, 100, 0, deadline)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.repoSvc.OpenRepo(ctx, testBorrower, 99, 100, 100, deadline)
	assert.ErrorIs(t, err, domain.ErrSeriesNotFound)

	// Escrowing more than held fails before any cash moves.
	_, err = f.repoSvc.OpenRepo(ctx, testBorrower, 1, 20_000*fixedpoint.Scale, 100, deadline)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Zero(t, f.cashBalance(t, testBorrower))

	// A matured series cannot collateralize new repos.
	f.clock.Set(time.Unix(2_000_000, 0).UTC())
	_, err = f.repoSvc.OpenRepo(ctx, testBorrower, 1, 1_000*fixedpoint.Scale, 100, time.Unix(2_000_000, 0).UTC())
	assert.ErrorIs(t, err, domain.ErrSeriesNotActive)
}

// TestCloseRepo verifies repayment, the deadline boundary, and that any payer
// may repay on the borrower's behalf.
func TestCloseRepo(t *testing.T) {
	ctx := context.Background()
	f := repoFixture(t)
	deadline := time.Unix(1_500_000, 0).UTC()
	cashOut := int64(9_000) * fixedpoint.Scale
	repurchase := int64(9_180) * fixedpoint.Scale

	id, err := f.repoSvc.OpenRepo(ctx, testBorrower, 1, 10_000*fixedpoint.Scale, cashOut, deadline)
	require.NoError(t, err)

	// The borrower cannot cover the spread without more cash.
	err = f.repoSvc.CloseRepo(ctx, id, testBorrower)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Exactly at the deadline is still repayable. A third party pays.
	f.clock.Set(deadline)
	f.cash.Deposit(testHolder, repurchase)
	require.NoError(t, f.repoSvc.CloseRepo(ctx, id, testHolder))

	pos, err := f.repoSvc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RepoClosed, pos.Status)
	require.NotNil(t, pos.SettledAt)
	assert.Equal(t, deadline, *pos.SettledAt)

	// Collateral returned to the borrower, not the payer.
	assert.Equal(t, 10_000*fixedpoint.Scale, f.claimBalance(t, 1, testBorrower))
	assert.Zero(t, f.claimBalance(t, 1, testHolder))

	acc, err := f.accounting.Get(ctx)
	require.NoError(t, err)
	assert.Zero(t, acc.CurrentlyLent)
	assert.Equal(t, repurchase-cashOut, acc.RepoRevenue)

	// Terminal states stay terminal.
	err = f.repoSvc.CloseRepo(ctx, id, testHolder)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

// TestCloseRepoAfterDeadline verifies that repayment is refused once the
// deadline has passed.
func TestCloseRepoAfterDeadline(t *testing.T) {
	ctx := context.Background()
	f := repoFixture(t)
	deadline := time.Unix(1_500_000, 0).UTC()

	id, err := f.repoSvc.OpenRepo(ctx, testBorrower, 1, 10_000*fixedpoint.Scale, 9_000*fixedpoint.Scale, deadline)
	require.NoError(t, err)

	f.clock.Set(deadline.Add(time.Second))
	f.cash.Deposit(testBorrower, 1_000*fixedpoint.Scale)
	err = f.repoSvc.CloseRepo(ctx, id, testBorrower)
	assert.ErrorIs(t, err, domain.ErrDeadlinePassed)
}

// TestClaimDefault verifies the treasury-only collateral claim strictly after
// the deadline.
func TestClaimDefault(t *testing.T) {
	ctx := context.Background()
	f := repoFixture(t)
	deadline := time.Unix(1_500_000, 0).UTC()
	cashOut := int64(9_000) * fixedpoint.Scale

	id, err := f.repoSvc.OpenRepo(ctx, testBorrower, 1, 10_000*fixedpoint.Scale, cashOut, deadline)
	require.NoError(t, err)

	err = f.repoSvc.ClaimDefault(ctx, id, testBorrower)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	// At the deadline the borrower can still repay, so no default yet.
	f.clock.Set(deadline)
	err = f.repoSvc.ClaimDefault(ctx, id, testTreasury)
	assert.ErrorIs(t, err, domain.ErrDeadlineNotPassed)

	f.clock.Set(deadline.Add(time.Second))
	require.NoError(t, f.repoSvc.ClaimDefault(ctx, id, testTreasury))

	pos, err := f.repoSvc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RepoDefaulted, pos.Status)

	// Collateral went to the treasury; the borrower keeps the cash.
	assert.Equal(t, 10_000*fixedpoint.Scale, f.claimBalance(t, 1, testTreasury))
	assert.Zero(t, f.claimBalance(t, 1, testBorrower))
	assert.Equal(t, cashOut, f.cashBalance(t, testBorrower))

	acc, err := f.accounting.Get(ctx)
	require.NoError(t, err)
	assert.Zero(t, acc.CurrentlyLent)
	assert.Equal(t, int64(1), acc.DefaultCount)
	assert.Equal(t, 10_000*fixedpoint.Scale, acc.DefaultedUnits)

	err = f.repoSvc.ClaimDefault(ctx, id, testTreasury)
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

// faultingRepoStore wraps a RepoPositionStore and fails a set number of
// Update calls before delegating.
type faultingRepoStore struct {
	domain.RepoPositionStore
	failUpdates int
}

var errStoreDown = errors.New("store unavailable")

func (s *faultingRepoStore) Update(ctx context.Context, pos domain.RepoPosition) error {
	if s.failUpdates > 0 {
		s.failUpdates--
		return errStoreDown
	}
	return s.RepoPositionStore.Update(ctx, pos)
}

// settleFixture opens a repo with the shared fixture and returns a second repo
// service whose store fails its next Update call.
func settleFixture(t *testing.T) (*vaultFixture, *RepoService, uint64) {
	t.Helper()
	ctx := context.Background()
	f := repoFixture(t)

	id, err := f.repoSvc.OpenRepo(ctx, testBorrower, 1, 10_000*fixedpoint.Scale, 9_000*fixedpoint.Scale, time.Unix(1_500_000, 0).UTC())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	faulting := NewRepoService(
		f.series, &faultingRepoStore{RepoPositionStore: f.repos, failUpdates: 1},
		f.claims.Operator("vault"), f.cash, f.accounting,
		testTreasury, 300, 200, f.clock, NewLocalLocker(), nil, nil, logger,
	)
	return f, faulting, id
}

// TestCloseRepoVoidOnStoreFailure verifies that a failed settlement write
// leaves the position open with no ledger movement, and that the position can
// still be settled afterwards.
func TestCloseRepoVoidOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	f, faulting, id := settleFixture(t)
	repurchase := int64(9_180) * fixedpoint.Scale

	f.cash.Deposit(testHolder, repurchase)
	err := faulting.CloseRepo(ctx, id, testHolder)
	require.ErrorIs(t, err, errStoreDown)

	// The operation is void: no repayment taken, collateral still escrowed.
	pos, err := f.repoSvc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RepoOpen, pos.Status)
	assert.Equal(t, repurchase, f.cashBalance(t, testHolder))
	assert.Zero(t, f.claimBalance(t, 1, testBorrower))

	// The position settles normally once the store recovers.
	require.NoError(t, f.repoSvc.CloseRepo(ctx, id, testHolder))
	assert.Equal(t, 10_000*fixedpoint.Scale, f.claimBalance(t, 1, testBorrower))
	assert.Zero(t, f.cashBalance(t, testHolder))
}

// TestCloseRepoVoidOnLedgerFailure verifies that a repayment the payer cannot
// fund reverts the persisted status flip.
func TestCloseRepoVoidOnLedgerFailure(t *testing.T) {
	ctx := context.Background()
	f := repoFixture(t)

	id, err := f.repoSvc.OpenRepo(ctx, testBorrower, 1, 10_000*fixedpoint.Scale, 9_000*fixedpoint.Scale, time.Unix(1_500_000, 0).UTC())
	require.NoError(t, err)

	err = f.repoSvc.CloseRepo(ctx, id, testHolder)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	pos, err := f.repoSvc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RepoOpen, pos.Status)
	assert.Nil(t, pos.SettledAt)
	assert.Zero(t, f.claimBalance(t, 1, testBorrower))
}

// TestClaimDefaultVoidOnStoreFailure verifies the same void guarantee on the
// default path: a failed status write claims no collateral.
func TestClaimDefaultVoidOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	f, faulting, id := settleFixture(t)

	f.clock.Set(time.Unix(1_500_001, 0).UTC())
	err := faulting.ClaimDefault(ctx, id, testTreasury)
	require.ErrorIs(t, err, errStoreDown)

	pos, err := f.repoSvc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.RepoOpen, pos.Status)
	assert.Zero(t, f.claimBalance(t, 1, testTreasury))

	require.NoError(t, f.repoSvc.ClaimDefault(ctx, id, testTreasury))
	assert.Equal(t, 10_000*fixedpoint.Scale, f.claimBalance(t, 1, testTreasury))
}

// TestListByBorrower verifies borrower-scoped listing, newest first.
func TestListByBorrower(t *testing.T) {
	ctx := context.Background()
	f := repoFixture(t)
	deadline := time.Unix(1_500_000, 0).UTC()

	first, err := f.repoSvc.OpenRepo(ctx, testBorrower, 1, 1_000*fixedpoint.Scale, 100*fixedpoint.Scale, deadline)
	require.NoError(t, err)
	second, err := f.repoSvc.OpenRepo(ctx, testBorrower, 1, 2_000*fixedpoint.Scale, 200*fixedpoint.Scale, deadline)
	require.NoError(t, err)

	list, err := f.repoSvc.ListByBorrower(ctx, testBorrower, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].ID)
	assert.Equal(t, first, list[1].ID)

	list, err = f.repoSvc.ListByBorrower(ctx, testHolder, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, list)
}
