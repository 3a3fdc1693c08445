// Package service implements the vault's core operations: series lifecycle
// and pricing, subscription and redemption, and the collateralized repo
// engine. Services orchestrate the domain stores and the external balance and
// cash ledgers; each public operation runs as a single serialized unit under
// the operation lock, validates everything before its first side effect, and
// compensates already-applied effects when a ledger call fails so a failed
// operation is observed as void.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/billvault/internal/domain"
)

const (
	// opLockKey serializes every state-mutating vault operation across all
	// replicas sharing the lock backend.
	opLockKey = "vault:ops"
	opLockTTL = 15 * time.Second
)

// Clock supplies the current time to the services. Operations never call
// time.Now directly so tests can pin the clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// localLocker is the in-process OpLocker used when no distributed lock
// backend is wired (paper mode, tests).
type localLocker struct {
	mu sync.Mutex
}

func (l *localLocker) Acquire(_ context.Context, _ string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}

// NewLocalLocker returns a process-local OpLocker.
func NewLocalLocker() domain.OpLocker { return &localLocker{} }

// withOpLock runs fn while holding the vault operation lock.
func withOpLock(ctx context.Context, locker domain.OpLocker, fn func() error) error {
	unlock, err := locker.Acquire(ctx, opLockKey, opLockTTL)
	if err != nil {
		return fmt.Errorf("service: acquire op lock: %w", err)
	}
	defer unlock()
	return fn()
}

// emitter bundles the best-effort audit and event side channel shared by the
// services. Failures are logged, never propagated: the operation that
// produced the record has already committed.
type emitter struct {
	bus    domain.EventBus
	audit  domain.AuditStore
	clock  Clock
	logger *slog.Logger
}

func (e *emitter) emit(ctx context.Context, evType string, payload map[string]any) {
	if e.audit != nil {
		if err := e.audit.Log(ctx, evType, payload); err != nil {
			e.logger.ErrorContext(ctx, "audit log failed",
				slog.String("event", evType),
				slog.String("error", err.Error()),
			)
		}
	}
	if e.bus != nil {
		ev := domain.Event{
			ID:      uuid.New().String(),
			Type:    evType,
			At:      e.clock.Now(),
			Payload: payload,
		}
		if err := e.bus.Publish(ctx, ev); err != nil {
			e.logger.ErrorContext(ctx, "event publish failed",
				slog.String("event", evType),
				slog.String("error", err.Error()),
			)
		}
	}
}
