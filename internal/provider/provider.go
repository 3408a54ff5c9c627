// Package provider is the translation layer to the external calendar.
// It exposes single-event CRUD plus an incremental change feed keyed by an
// opaque cursor, and owns retry/backoff for transient provider errors.
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the provider does not know the event.
	// Callers treat a not-found on delete or update as already-deleted,
	// not as a failure.
	ErrNotFound = errors.New("event not found at provider")

	// ErrAuth marks authentication/authorization failures. These are fatal
	// for the whole cycle: nothing useful can be written.
	ErrAuth = errors.New("provider authentication failed")

	// ErrUnavailable marks transient transport failures after retries were
	// exhausted. The affected event is retried on the next cycle.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrCursorExpired signals that the incremental cursor is no longer
	// valid and a bounded full pull is required.
	ErrCursorExpired = errors.New("sync cursor expired")
)

// Event is the provider-neutral representation of a calendar event.
type Event struct {
	ID          string // provider-assigned id; empty before first export
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	IsAllDay    bool
	Cancelled   bool
	Updated     time.Time // last provider-side modification, zero if unknown
}

// Change is one entry in the incremental change feed. For deletions the
// Event may carry only its ID.
type Change struct {
	Event   Event
	Deleted bool
}

// ChangeSet is the result of one pull from the change feed.
type ChangeSet struct {
	Changes   []Change
	NewCursor string
	// FullSync is true when the cursor was absent or expired and the
	// provider was scanned over a bounded window instead.
	FullSync bool
}

// Window bounds a full pull when no valid cursor exists. Full pulls never
// scan unbounded history.
type Window struct {
	Start time.Time
	End   time.Time
}

// Provider is the boundary to the external calendar.
type Provider interface {
	// CreateEvent creates the event and returns the provider-assigned id.
	CreateEvent(ctx context.Context, event *Event) (string, error)

	// UpdateEvent overwrites the provider event identified by event.ID.
	UpdateEvent(ctx context.Context, event *Event) error

	// DeleteEvent removes the event. Deleting an unknown id returns
	// ErrNotFound.
	DeleteEvent(ctx context.Context, id string) error

	// ChangesSince returns events changed since the cursor, with a new
	// cursor. An empty or expired cursor triggers a full pull bounded by
	// the window.
	ChangesSince(ctx context.Context, cursor string, window Window) (*ChangeSet, error)
}

// IsNotFound reports whether err means the provider does not know the event.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuth reports whether err is a fatal authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}
