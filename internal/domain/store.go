package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// SeriesStore persists series rows. Create fails with ErrSeriesExists when
// the id is already used; ids are never reused.
type SeriesStore interface {
	Create(ctx context.Context, s Series) error
	Get(ctx context.Context, id uint32) (Series, error)
	Update(ctx context.Context, s Series) error
	List(ctx context.Context, opts ListOpts) ([]Series, error)
}

// HolderPositionStore persists per-(series, holder) cap counters. Get returns
// a zero-valued position (not an error) when the holder has never subscribed;
// rows are created lazily by Upsert and never deleted.
type HolderPositionStore interface {
	Get(ctx context.Context, seriesID uint32, holder Principal) (HolderPosition, error)
	Upsert(ctx context.Context, pos HolderPosition) error
}

// RepoPositionStore persists repo positions. Create assigns the next value of
// a monotonically increasing position counter and returns it.
type RepoPositionStore interface {
	Create(ctx context.Context, pos RepoPosition) (uint64, error)
	Get(ctx context.Context, id uint64) (RepoPosition, error)
	Update(ctx context.Context, pos RepoPosition) error
	ListByBorrower(ctx context.Context, borrower Principal, opts ListOpts) ([]RepoPosition, error)
	ListOpen(ctx context.Context) ([]RepoPosition, error)
}

// AccountingStore persists the single vault accounting row.
type AccountingStore interface {
	Get(ctx context.Context) (VaultAccounting, error)
	Put(ctx context.Context, acc VaultAccounting) error
}

// AuditEntry is a single append-only audit row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of every completed operation.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	// ListBefore returns entries created strictly before the cutoff, oldest
	// first. Used by the S3 archiver.
	ListBefore(ctx context.Context, before time.Time) ([]AuditEntry, error)
	// DeleteBefore removes entries created strictly before the cutoff and
	// returns the number deleted. Called only after a verified archive.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
