package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/billvault/internal/domain"
	"github.com/alanyoungcy/billvault/internal/fixedpoint"
	"github.com/alanyoungcy/billvault/internal/ledger"
	"github.com/alanyoungcy/billvault/internal/store/memory"
)

var (
	testIssuer   = domain.MustPrincipal("0x1111111111111111111111111111111111111111")
	testTreasury = domain.MustPrincipal("0x2222222222222222222222222222222222222222")
	testHolder   = domain.MustPrincipal("0x3333333333333333333333333333333333333333")
	testBorrower = domain.MustPrincipal("0x4444444444444444444444444444444444444444")
)

// stubClock is a pinned Clock that tests advance explicitly.
type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }

func (c *stubClock) Set(t time.Time) { c.now = t }

// vaultFixture wires the three services against in-memory stores and ledgers.
type vaultFixture struct {
	clock      *stubClock
	series     *memory.SeriesStore
	positions  *memory.HolderPositionStore
	repos      *memory.RepoPositionStore
	accounting *memory.AccountingStore
	claims     *ledger.ClaimLedger
	cash       *ledger.CashAccounts

	seriesSvc *SeriesService
	subSvc    *SubscriptionService
	repoSvc   *RepoService
}

func newVaultFixture(t *testing.T) *vaultFixture {
	t.Helper()

	clock := &stubClock{now: time.Unix(1_000_000, 0).UTC()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locker := NewLocalLocker()

	claims := ledger.NewClaimLedger("vault")
	balances := claims.Operator("vault")
	cash := ledger.NewCashAccounts()

	f := &vaultFixture{
		clock:      clock,
		series:     memory.NewSeriesStore(),
		positions:  memory.NewHolderPositionStore(),
		repos:      memory.NewRepoPositionStore(),
		accounting: memory.NewAccountingStore(),
		claims:     claims,
		cash:       cash,
	}

	f.seriesSvc = NewSeriesService(f.series, testIssuer, clock, locker, nil, nil, logger)
	f.subSvc = NewSubscriptionService(
		f.series, f.positions, balances, cash, f.accounting,
		testTreasury, clock, locker, nil, nil, logger,
	)
	f.repoSvc = NewRepoService(
		f.series, f.repos, balances, cash, f.accounting,
		testTreasury, 300, 200, clock, locker, nil, nil, logger,
	)
	return f
}

// defaultSeriesParams returns a series issued at the fixture's starting clock
// with a one million second tenor.
func defaultSeriesParams(id uint32, issuePrice int64) CreateSeriesParams {
	return CreateSeriesParams{
		SeriesID:     id,
		IssueDate:    time.Unix(1_000_000, 0).UTC(),
		MaturityDate: time.Unix(2_000_000, 0).UTC(),
		IssuePrice:   issuePrice,
		CapTotal:     1_000_000 * fixedpoint.Scale,
		CapPerHolder: 100_000 * fixedpoint.Scale,
	}
}

// createActiveSeries creates and activates a series as the issuer.
func (f *vaultFixture) createActiveSeries(t *testing.T, p CreateSeriesParams) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.seriesSvc.CreateSeries(ctx, testIssuer, p))
	require.NoError(t, f.seriesSvc.ActivateSeries(ctx, testIssuer, p.SeriesID))
}

func (f *vaultFixture) claimBalance(t *testing.T, seriesID uint32, holder domain.Principal) int64 {
	t.Helper()
	bal, err := f.claims.BalanceOf(context.Background(), seriesID, holder)
	require.NoError(t, err)
	return bal
}

func (f *vaultFixture) cashBalance(t *testing.T, account domain.Principal) int64 {
	t.Helper()
	bal, err := f.cash.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return bal
}
