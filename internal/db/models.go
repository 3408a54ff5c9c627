package db

import (
	"time"
)

// EventType classifies a calendar event. Booking, blocker and staff
// assignment events are mutually exclusive in meaning but share the same
// storage. An empty type marks an externally-created event that has not
// been classified yet.
type EventType string

const (
	EventTypeRaw        EventType = ""
	EventTypeBooking    EventType = "booking"
	EventTypeBlocker    EventType = "blocker"
	EventTypeAssignment EventType = "assignment"
)

// ValidEventTypes contains all valid event type values.
var ValidEventTypes = map[EventType]bool{
	EventTypeRaw:        true,
	EventTypeBooking:    true,
	EventTypeBlocker:    true,
	EventTypeAssignment: true,
}

// IsValid returns true if the event type is a known valid value.
func (et EventType) IsValid() bool {
	return ValidEventTypes[et]
}

// EventStatus represents the lifecycle state of an event.
// Cancelled is terminal: a cancelled event is never un-cancelled, only
// superseded by a new event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusConfirmed EventStatus = "confirmed"
	EventStatusCancelled EventStatus = "cancelled"
)

// ValidEventStatuses contains all valid event status values.
var ValidEventStatuses = map[EventStatus]bool{
	EventStatusPending:   true,
	EventStatusConfirmed: true,
	EventStatusCancelled: true,
}

// IsValid returns true if the event status is a known valid value.
func (es EventStatus) IsValid() bool {
	return ValidEventStatuses[es]
}

// SyncStatus tracks whether an event row agrees with the provider.
type SyncStatus string

const (
	// SyncStatusPending means the row has a local mutation not yet
	// reflected at the provider.
	SyncStatusPending SyncStatus = "pending"
	// SyncStatusSynced means local and remote agreed as of the last
	// successful reconciliation.
	SyncStatusSynced SyncStatus = "synced"
	// SyncStatusError means the last export attempt failed; the row is
	// retried on the next cycle.
	SyncStatusError SyncStatus = "error"
)

// CycleStatus represents the outcome of a reconciliation cycle.
type CycleStatus string

const (
	CycleStatusSuccess CycleStatus = "success"
	CycleStatusPartial CycleStatus = "partial" // Completed with per-event errors
	CycleStatusFailed  CycleStatus = "failed"  // Aborted before any writes
)

// CalendarEvent is the central entity: one row per calendar event with
// sync metadata. Start and End are always stored in UTC; display and slot
// computation happen in the business's fixed local timezone.
type CalendarEvent struct {
	ID            string      `json:"id"`
	ProviderID    string      `json:"provider_id"` // empty until first successful export
	EventType     EventType   `json:"event_type"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Start         time.Time   `json:"start"`
	End           time.Time   `json:"end"`
	IsAllDay      bool        `json:"is_all_day"`
	Status        EventStatus `json:"status"`
	CancelReason  string      `json:"cancel_reason,omitempty"`
	CancelledBy   string      `json:"cancelled_by,omitempty"`
	CancelledAt   *time.Time  `json:"cancelled_at,omitempty"`
	SyncStatus    SyncStatus  `json:"sync_status"`
	SyncError     string      `json:"sync_error,omitempty"`
	CustomerName  string      `json:"customer_name,omitempty"`
	CustomerEmail string      `json:"customer_email,omitempty"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	Deleted       bool        `json:"-"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// IsCancelled reports whether the event is in its terminal cancelled state.
func (e *CalendarEvent) IsCancelled() bool {
	return e.Status == EventStatusCancelled
}

// BlocksAvailability reports whether the event occupies calendar time.
// Cancelled and deleted events never block, regardless of sync status.
func (e *CalendarEvent) BlocksAvailability() bool {
	return !e.IsCancelled() && !e.Deleted
}

// SyncState holds the opaque incremental-sync cursor for a provider
// calendar. The cursor is stored and replayed verbatim; its internal
// format is provider-defined.
type SyncState struct {
	ID         string    `json:"id"`
	CalendarID string    `json:"calendar_id"`
	Cursor     string    `json:"cursor"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SyncLog is one audit trail entry per reconciliation cycle.
type SyncLog struct {
	ID          string        `json:"id"`
	CalendarID  string        `json:"calendar_id"`
	Status      CycleStatus   `json:"status"`
	Message     string        `json:"message"`
	Details     string        `json:"details"`
	Imported    int           `json:"imported"`
	Exported    int           `json:"exported"`
	Updated     int           `json:"updated"`
	ErrorCount  int           `json:"error_count"`
	Duration    time.Duration `json:"duration"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at"`
	CreatedAt   time.Time     `json:"created_at"`
}
