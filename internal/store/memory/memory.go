// Package memory implements the domain store interfaces with in-process maps.
// It backs paper mode and the test suites; semantics (missing-row sentinels,
// lazily created holder positions, the monotonic repo position counter) match
// the PostgreSQL implementations.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// SeriesStore is an in-memory domain.SeriesStore.
type SeriesStore struct {
	mu   sync.RWMutex
	rows map[uint32]domain.Series
}

// NewSeriesStore creates an empty SeriesStore.
func NewSeriesStore() *SeriesStore {
	return &SeriesStore{rows: make(map[uint32]domain.Series)}
}

// Create stores a new series, failing when the id is already used.
func (s *SeriesStore) Create(_ context.Context, row domain.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[row.ID]; ok {
		return fmt.Errorf("memory: create series %d: %w", row.ID, domain.ErrSeriesExists)
	}
	s.rows[row.ID] = row
	return nil
}

// Get returns a series by id.
func (s *SeriesStore) Get(_ context.Context, id uint32) (domain.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return domain.Series{}, fmt.Errorf("memory: get series %d: %w", id, domain.ErrSeriesNotFound)
	}
	return row, nil
}

// Update overwrites an existing series row.
func (s *SeriesStore) Update(_ context.Context, row domain.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[row.ID]; !ok {
		return fmt.Errorf("memory: update series %d: %w", row.ID, domain.ErrSeriesNotFound)
	}
	s.rows[row.ID] = row
	return nil
}

// List returns series rows ordered by id.
func (s *SeriesStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]domain.Series, 0, len(s.rows))
	for _, row := range s.rows {
		all = append(all, row)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, opts), nil
}

// HolderPositionStore is an in-memory domain.HolderPositionStore.
type HolderPositionStore struct {
	mu   sync.RWMutex
	rows map[string]domain.HolderPosition
}

// NewHolderPositionStore creates an empty HolderPositionStore.
func NewHolderPositionStore() *HolderPositionStore {
	return &HolderPositionStore{rows: make(map[string]domain.HolderPosition)}
}

func positionKey(seriesID uint32, holder domain.Principal) string {
	return fmt.Sprintf("%d/%s", seriesID, holder)
}

// Get returns the holder's position, or a zero-valued one when the holder has
// never subscribed.
func (s *HolderPositionStore) Get(_ context.Context, seriesID uint32, holder domain.Principal) (domain.HolderPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if row, ok := s.rows[positionKey(seriesID, holder)]; ok {
		return row, nil
	}
	return domain.HolderPosition{SeriesID: seriesID, Holder: holder}, nil
}

// Upsert creates or overwrites the holder's position row.
func (s *HolderPositionStore) Upsert(_ context.Context, pos domain.HolderPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[positionKey(pos.SeriesID, pos.Holder)] = pos
	return nil
}

// RepoPositionStore is an in-memory domain.RepoPositionStore.
type RepoPositionStore struct {
	mu     sync.RWMutex
	rows   map[uint64]domain.RepoPosition
	nextID uint64
}

// NewRepoPositionStore creates an empty RepoPositionStore.
func NewRepoPositionStore() *RepoPositionStore {
	return &RepoPositionStore{rows: make(map[uint64]domain.RepoPosition)}
}

// Create assigns the next position id and stores the row.
func (s *RepoPositionStore) Create(_ context.Context, pos domain.RepoPosition) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	pos.ID = s.nextID
	s.rows[pos.ID] = pos
	return pos.ID, nil
}

// Get returns a repo position by id.
func (s *RepoPositionStore) Get(_ context.Context, id uint64) (domain.RepoPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return domain.RepoPosition{}, fmt.Errorf("memory: get repo position %d: %w", id, domain.ErrPositionNotFound)
	}
	return row, nil
}

// Update overwrites an existing repo position.
func (s *RepoPositionStore) Update(_ context.Context, pos domain.RepoPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[pos.ID]; !ok {
		return fmt.Errorf("memory: update repo position %d: %w", pos.ID, domain.ErrPositionNotFound)
	}
	s.rows[pos.ID] = pos
	return nil
}

// ListByBorrower returns the borrower's positions, newest first.
func (s *RepoPositionStore) ListByBorrower(_ context.Context, borrower domain.Principal, opts domain.ListOpts) ([]domain.RepoPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []domain.RepoPosition
	for _, row := range s.rows {
		if row.Borrower == borrower {
			list = append(list, row)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
	return paginate(list, opts), nil
}

// ListOpen returns all open positions ordered by deadline.
func (s *RepoPositionStore) ListOpen(_ context.Context) ([]domain.RepoPosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []domain.RepoPosition
	for _, row := range s.rows {
		if row.Status == domain.RepoOpen {
			list = append(list, row)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Deadline.Before(list[j].Deadline) })
	return list, nil
}

// AccountingStore is an in-memory domain.AccountingStore.
type AccountingStore struct {
	mu  sync.RWMutex
	acc domain.VaultAccounting
}

// NewAccountingStore creates an AccountingStore with zeroed counters.
func NewAccountingStore() *AccountingStore { return &AccountingStore{} }

// Get returns the accounting row.
func (s *AccountingStore) Get(_ context.Context) (domain.VaultAccounting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acc, nil
}

// Put overwrites the accounting row.
func (s *AccountingStore) Put(_ context.Context, acc domain.VaultAccounting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acc = acc
	return nil
}

// AuditStore is an in-memory domain.AuditStore.
type AuditStore struct {
	mu     sync.RWMutex
	rows   []domain.AuditEntry
	nextID int64
	clock  func() time.Time
}

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{clock: func() time.Time { return time.Now().UTC() }}
}

// Log appends an audit entry.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.rows = append(s.rows, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: s.clock(),
	})
	return nil
}

// List returns audit entries, newest first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rev := make([]domain.AuditEntry, len(s.rows))
	for i, row := range s.rows {
		rev[len(s.rows)-1-i] = row
	}
	return paginate(rev, opts), nil
}

// ListBefore returns entries created strictly before the cutoff, oldest first.
func (s *AuditStore) ListBefore(_ context.Context, before time.Time) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []domain.AuditEntry
	for _, row := range s.rows {
		if row.CreatedAt.Before(before) {
			list = append(list, row)
		}
	}
	return list, nil
}

// DeleteBefore removes entries created strictly before the cutoff.
func (s *AuditStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.AuditEntry
	var deleted int64
	for _, row := range s.rows {
		if row.CreatedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	s.rows = kept
	return deleted, nil
}

func paginate[T any](list []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(list) {
			return nil
		}
		list = list[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(list) {
		list = list[:opts.Limit]
	}
	return list
}
