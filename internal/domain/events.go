package domain

import (
	"context"
	"time"
)

// Event types published by the vault services.
const (
	EventSeriesCreated   = "series_created"
	EventSeriesActivated = "series_activated"
	EventSeriesMatured   = "series_matured"
	EventSeriesClosed    = "series_closed"
	EventSubscribed      = "subscribed"
	EventRedeemed        = "redeemed"
	EventRepoOpened      = "repo_opened"
	EventRepoClosed      = "repo_closed"
	EventRepoDefaulted   = "repo_defaulted"
)

// Event is a record of a completed vault operation, published after the
// operation's state is committed. Delivery is best-effort; a publish failure
// never fails the operation that produced it.
type Event struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload"`
}

// EventBus publishes vault events to interested consumers (websocket hub,
// notifier, archival stream).
type EventBus interface {
	Publish(ctx context.Context, ev Event) error
}

// EventSource is implemented by buses that also support tailing events, used
// by the websocket hub.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// StreamMessage is one durable event record read back from the event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// OpLocker serializes state-mutating vault operations. Acquire returns an
// unlock function on success and ErrLockHeld when another operation holds the
// lock.
type OpLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter limits request rates per key.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
