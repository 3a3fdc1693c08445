package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/billvault/internal/domain"
)

var (
	holderA = domain.MustPrincipal("0x3333333333333333333333333333333333333333")
	holderB = domain.MustPrincipal("0x4444444444444444444444444444444444444444")
)

func TestSeriesStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewSeriesStore()

	row := domain.Series{ID: 7, Status: domain.SeriesUpcoming}
	require.NoError(t, store.Create(ctx, row))

	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, row, got)

	err = store.Create(ctx, row)
	require.ErrorIs(t, err, domain.ErrSeriesExists)

	_, err = store.Get(ctx, 8)
	require.ErrorIs(t, err, domain.ErrSeriesNotFound)

	err = store.Update(ctx, domain.Series{ID: 8})
	require.ErrorIs(t, err, domain.ErrSeriesNotFound)
}

func TestSeriesStoreListOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	store := NewSeriesStore()
	for _, id := range []uint32{3, 1, 2} {
		require.NoError(t, store.Create(ctx, domain.Series{ID: id}))
	}

	all, err := store.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint32(1), all[0].ID)
	require.Equal(t, uint32(3), all[2].ID)

	page, err := store.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, uint32(2), page[0].ID)

	empty, err := store.List(ctx, domain.ListOpts{Offset: 5})
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestHolderPositionStoreZeroValue(t *testing.T) {
	ctx := context.Background()
	store := NewHolderPositionStore()

	pos, err := store.Get(ctx, 1, holderA)
	require.NoError(t, err)
	require.Equal(t, uint32(1), pos.SeriesID)
	require.Equal(t, holderA, pos.Holder)
	require.Zero(t, pos.SubscribedUnits)

	pos.SubscribedUnits = 500
	require.NoError(t, store.Upsert(ctx, pos))

	got, err := store.Get(ctx, 1, holderA)
	require.NoError(t, err)
	require.Equal(t, int64(500), got.SubscribedUnits)

	other, err := store.Get(ctx, 1, holderB)
	require.NoError(t, err)
	require.Zero(t, other.SubscribedUnits)
}

func TestRepoPositionStoreIDsAndListing(t *testing.T) {
	ctx := context.Background()
	store := NewRepoPositionStore()

	first, err := store.Create(ctx, domain.RepoPosition{Borrower: holderA, Status: domain.RepoOpen})
	require.NoError(t, err)
	second, err := store.Create(ctx, domain.RepoPosition{Borrower: holderA, Status: domain.RepoOpen})
	require.NoError(t, err)
	require.Equal(t, first+1, second)

	_, err = store.Create(ctx, domain.RepoPosition{Borrower: holderB, Status: domain.RepoOpen})
	require.NoError(t, err)

	list, err := store.ListByBorrower(ctx, holderA, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second, list[0].ID)
	require.Equal(t, first, list[1].ID)

	_, err = store.Get(ctx, 99)
	require.ErrorIs(t, err, domain.ErrPositionNotFound)

	err = store.Update(ctx, domain.RepoPosition{ID: 99})
	require.ErrorIs(t, err, domain.ErrPositionNotFound)
}

func TestRepoPositionStoreListOpen(t *testing.T) {
	ctx := context.Background()
	store := NewRepoPositionStore()

	base := time.Unix(1_000_000, 0).UTC()
	late, err := store.Create(ctx, domain.RepoPosition{Borrower: holderA, Status: domain.RepoOpen, Deadline: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	early, err := store.Create(ctx, domain.RepoPosition{Borrower: holderA, Status: domain.RepoOpen, Deadline: base.Add(time.Hour)})
	require.NoError(t, err)
	_, err = store.Create(ctx, domain.RepoPosition{Borrower: holderA, Status: domain.RepoClosed, Deadline: base})
	require.NoError(t, err)

	open, err := store.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	require.Equal(t, early, open[0].ID)
	require.Equal(t, late, open[1].ID)
}

func TestAccountingStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewAccountingStore()

	acc, err := store.Get(ctx)
	require.NoError(t, err)
	require.Zero(t, acc.SubscriptionsCollected)

	acc.SubscriptionsCollected = 1_000
	acc.CurrentlyLent = 400
	require.NoError(t, store.Put(ctx, acc))

	got, err := store.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, acc, got)
}

func TestAuditStoreListAndArchiveCuts(t *testing.T) {
	ctx := context.Background()
	store := NewAuditStore()

	base := time.Unix(1_000_000, 0).UTC()
	now := base
	store.clock = func() time.Time { return now }

	require.NoError(t, store.Log(ctx, "series.create", map[string]any{"series_id": 1}))
	now = base.Add(time.Minute)
	require.NoError(t, store.Log(ctx, "series.activate", nil))
	now = base.Add(2 * time.Minute)
	require.NoError(t, store.Log(ctx, "subscription.subscribe", nil))

	list, err := store.List(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "subscription.subscribe", list[0].Event)
	require.Equal(t, "series.activate", list[1].Event)

	cutoff := base.Add(2 * time.Minute)
	old, err := store.ListBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, old, 2)
	require.Equal(t, "series.create", old[0].Event)

	deleted, err := store.DeleteBefore(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	rest, err := store.List(ctx, domain.ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	require.Equal(t, "subscription.subscribe", rest[0].Event)
}
