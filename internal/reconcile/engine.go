// Package reconcile drives the bidirectional sync cycle between the
// local event store and the external calendar provider: pull remote
// changes, merge them into local rows, push pending local mutations, and
// persist the checkpoint plus one audit row per cycle.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/studiobook/studiobook/internal/db"
	"github.com/studiobook/studiobook/internal/parser"
	"github.com/studiobook/studiobook/internal/provider"
)

const pushWorkers = 4

// EventError records one non-fatal per-event failure during a cycle.
type EventError struct {
	EventID string `json:"event_id"`
	Message string `json:"message"`
}

// Result summarizes one reconciliation cycle.
type Result struct {
	Imported   int           `json:"imported"`
	Exported   int           `json:"exported"`
	Updated    int           `json:"updated"`
	Errors     []EventError  `json:"errors,omitempty"`
	Checkpoint string        `json:"-"`
	FullSync   bool          `json:"full_sync,omitempty"`
	Duration   time.Duration `json:"-"`
}

// Engine reconciles one local store against one provider calendar.
type Engine struct {
	db         *db.DB
	provider   provider.Provider
	calendarID string
	loc        *time.Location
	pastDays   int
	futureDays int
}

// New creates a reconciliation engine. loc is the business timezone used
// to anchor all-day events; pastDays/futureDays bound full pulls when no
// valid cursor exists.
func New(database *db.DB, prov provider.Provider, calendarID string, loc *time.Location, pastDays, futureDays int) *Engine {
	return &Engine{
		db:         database,
		provider:   prov,
		calendarID: calendarID,
		loc:        loc,
		pastDays:   pastDays,
		futureDays: futureDays,
	}
}

// Sync runs one full reconciliation cycle: pull, merge, push, checkpoint.
// Per-event failures are recorded in the result and do not stop the
// cycle. Failures before any local write (checkpoint read, provider
// unreachable, authentication) abort the cycle; the checkpoint does not
// advance and the cycle is logged as failed. Sync is idempotent: a repeat
// run against an unchanged provider and store performs no writes.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	started := time.Now().UTC()

	cursor := ""
	state, err := e.db.GetSyncState(e.calendarID)
	switch {
	case err == nil:
		cursor = state.Cursor
	case errors.Is(err, db.ErrNotFound):
		// First cycle: bounded full pull.
	default:
		err = fmt.Errorf("failed to read sync checkpoint: %w", err)
		e.logCycle(started, db.CycleStatusFailed, err.Error(), &Result{})
		return nil, err
	}

	window := provider.Window{
		Start: started.AddDate(0, 0, -e.pastDays),
		End:   started.AddDate(0, 0, e.futureDays),
	}

	set, err := e.provider.ChangesSince(ctx, cursor, window)
	if err != nil {
		err = fmt.Errorf("pull failed: %w", err)
		e.logCycle(started, db.CycleStatusFailed, err.Error(), &Result{})
		return nil, err
	}

	res := &Result{FullSync: set.FullSync}
	touched := make(map[string]bool)

	for _, change := range set.Changes {
		if err := e.applyChange(change, res, touched); err != nil {
			res.Errors = append(res.Errors, EventError{
				EventID: change.Event.ID,
				Message: err.Error(),
			})
			log.Printf("[reconcile] apply failed for provider event %s: %v", change.Event.ID, err)
		}
	}

	e.push(ctx, touched, res)

	// The checkpoint advances even when individual events failed: failed
	// rows stay marked error and are retried next cycle without replaying
	// the whole feed.
	if set.NewCursor != "" {
		if err := e.db.UpsertSyncState(e.calendarID, set.NewCursor); err != nil {
			res.Errors = append(res.Errors, EventError{Message: fmt.Sprintf("failed to persist checkpoint: %v", err)})
		} else {
			res.Checkpoint = set.NewCursor
		}
	}

	res.Duration = time.Since(started)

	status := db.CycleStatusSuccess
	message := "sync completed"
	if len(res.Errors) > 0 {
		status = db.CycleStatusPartial
		message = fmt.Sprintf("sync completed with %d error(s)", len(res.Errors))
	}
	e.logCycle(started, status, message, res)

	return res, nil
}

// applyChange merges one entry from the provider change feed into the
// local store.
func (e *Engine) applyChange(change provider.Change, res *Result, touched map[string]bool) error {
	if change.Deleted {
		return e.applyRemoteDeletion(change.Event.ID, res, touched)
	}

	ev := change.Event
	if !ev.IsAllDay && !ev.End.After(ev.Start) {
		return fmt.Errorf("invalid time range: end %s not after start %s",
			ev.End.Format(time.RFC3339), ev.Start.Format(time.RFC3339))
	}
	if ev.IsAllDay {
		e.anchorAllDay(&ev)
	}

	local, err := e.db.GetEventByProviderID(ev.ID)
	if errors.Is(err, db.ErrNotFound) {
		return e.importEvent(&ev, res)
	}
	if err != nil {
		return err
	}

	// Cancelled is terminal; later provider edits to a locally cancelled
	// event are ignored. Such rows are deliberately not marked touched: a
	// pending local cancellation or tombstone must still reach the provider
	// in this cycle's push phase.
	if local.IsCancelled() || local.Deleted {
		return nil
	}
	touched[local.ID] = true

	if ev.Cancelled {
		if err := e.db.CancelEvent(local.ID, "cancelled at provider", "provider", db.SyncStatusSynced); err != nil {
			return err
		}
		res.Updated++
		return nil
	}

	changed := applyRemote(local, &ev)
	if backfillCustomer(local, parseCustomer(&ev)) {
		changed = true
	}
	if !changed {
		return nil
	}

	local.SyncStatus = db.SyncStatusSynced
	local.SyncError = ""
	if err := e.db.UpdateEvent(local); err != nil {
		return err
	}
	res.Updated++
	return nil
}

// applyRemoteDeletion cascade-cancels the local row for an event deleted
// at the provider. Unknown ids are ignored: the event was never imported
// or already removed.
func (e *Engine) applyRemoteDeletion(providerID string, res *Result, touched map[string]bool) error {
	local, err := e.db.GetEventByProviderID(providerID)
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if local.IsCancelled() || local.Deleted {
		return nil
	}
	touched[local.ID] = true

	if err := e.db.CancelEvent(local.ID, "deleted at provider", "provider", db.SyncStatusSynced); err != nil {
		return err
	}
	res.Updated++
	return nil
}

// importEvent stores a provider event seen for the first time. Imported
// events are unclassified until an operator or a later local edit assigns
// a type; customer details are backfilled from free text where the fields
// are empty.
func (e *Engine) importEvent(ev *provider.Event, res *Result) error {
	if ev.Cancelled {
		// Never imported, already cancelled: nothing worth storing.
		return nil
	}

	event := &db.CalendarEvent{
		ProviderID:  ev.ID,
		EventType:   db.EventTypeRaw,
		Title:       ev.Title,
		Description: ev.Description,
		Start:       ev.Start,
		End:         ev.End,
		IsAllDay:    ev.IsAllDay,
		Status:      db.EventStatusConfirmed,
		SyncStatus:  db.SyncStatusSynced,
	}
	backfillCustomer(event, parseCustomer(ev))

	if err := e.db.CreateEvent(event); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			// Raced with another import of the same provider event.
			return nil
		}
		return err
	}
	res.Imported++
	return nil
}

// push exports pending local mutations through a bounded worker pool.
// Rows the pull phase already touched this cycle are skipped: the
// provider's version took precedence and the row is in sync.
func (e *Engine) push(ctx context.Context, touched map[string]bool, res *Result) {
	pending, err := e.db.ListPendingSync()
	if err != nil {
		res.Errors = append(res.Errors, EventError{Message: fmt.Sprintf("failed to list pending events: %v", err)})
		return
	}

	jobs := make(chan *db.CalendarEvent)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i := 0; i < pushWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range jobs {
				exported, err := e.pushEvent(ctx, event)
				mu.Lock()
				if err != nil {
					res.Errors = append(res.Errors, EventError{EventID: event.ID, Message: err.Error()})
				} else if exported {
					res.Exported++
				}
				mu.Unlock()
			}
		}()
	}

	for _, event := range pending {
		if touched[event.ID] {
			continue
		}
		jobs <- event
	}
	close(jobs)
	wg.Wait()
}

// pushEvent exports one pending row. It reports whether an export
// actually happened; rows with nothing to do (a tombstone that never
// reached the provider) resolve without counting.
func (e *Engine) pushEvent(ctx context.Context, event *db.CalendarEvent) (bool, error) {
	if event.Deleted {
		return e.pushDeletion(ctx, event)
	}

	if event.Start.IsZero() || !event.End.After(event.Start) {
		log.Printf("[reconcile] skipping export of event %s: invalid time range %s..%s",
			event.ID, event.Start.Format(time.RFC3339), event.End.Format(time.RFC3339))
		return false, nil
	}

	ev := &provider.Event{
		ID:          event.ProviderID,
		Title:       event.Title,
		Description: event.Description,
		Start:       event.Start,
		End:         event.End,
		IsAllDay:    event.IsAllDay,
		Cancelled:   event.IsCancelled(),
	}

	if event.ProviderID == "" {
		providerID, err := e.provider.CreateEvent(ctx, ev)
		if err != nil {
			return false, e.recordPushError(event.ID, err)
		}
		if err := e.db.MarkSynced(event.ID, providerID); err != nil {
			return false, err
		}
		return true, nil
	}

	err := e.provider.UpdateEvent(ctx, ev)
	if provider.IsNotFound(err) {
		// The provider-side copy is gone. A pending cancellation has
		// reached its desired end state; anything else mirrors the
		// deletion instead of resurrecting it.
		if event.IsCancelled() {
			if err := e.db.MarkSynced(event.ID, ""); err != nil {
				return false, err
			}
			return true, nil
		}
		if err := e.db.CancelEvent(event.ID, "deleted at provider", "provider", db.SyncStatusSynced); err != nil {
			return false, err
		}
		return true, nil
	}
	if err != nil {
		return false, e.recordPushError(event.ID, err)
	}
	if err := e.db.MarkSynced(event.ID, ""); err != nil {
		return false, err
	}
	return true, nil
}

// pushDeletion propagates a local tombstone, then drops the row.
func (e *Engine) pushDeletion(ctx context.Context, event *db.CalendarEvent) (bool, error) {
	if event.ProviderID != "" {
		err := e.provider.DeleteEvent(ctx, event.ProviderID)
		if err != nil && !provider.IsNotFound(err) {
			return false, e.recordPushError(event.ID, err)
		}
	}
	if err := e.db.RemoveEvent(event.ID); err != nil {
		return false, err
	}
	return event.ProviderID != "", nil
}

// recordPushError marks the row for retry on the next cycle and returns
// the original error for the cycle result.
func (e *Engine) recordPushError(id string, pushErr error) error {
	if err := e.db.MarkSyncError(id, pushErr.Error()); err != nil {
		log.Printf("[reconcile] failed to record sync error for %s: %v", id, err)
	}
	return pushErr
}

// anchorAllDay re-anchors a date-only event to the business day's local
// midnight. Providers deliver date-only values pinned to UTC midnight;
// without re-anchoring, buffer and overlap arithmetic would drift by the
// timezone offset.
func (e *Engine) anchorAllDay(ev *provider.Event) {
	y, m, d := ev.Start.UTC().Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, e.loc)

	y, m, d = ev.End.UTC().Date()
	end := time.Date(y, m, d, 0, 0, 0, 0, e.loc)
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}

	ev.Start = start.UTC()
	ev.End = end.UTC()
}

// parseCustomer extracts customer details from the event's free text,
// preferring the description over the title.
func parseCustomer(ev *provider.Event) parser.Result {
	result := parser.Parse(ev.Description)
	if result.IsEmpty() {
		result = parser.Parse(ev.Title)
	}
	return result
}

// logCycle persists the audit row for a cycle. Audit failures are logged
// but never fail the cycle itself.
func (e *Engine) logCycle(started time.Time, status db.CycleStatus, message string, res *Result) {
	completed := time.Now().UTC()
	entry := &db.SyncLog{
		CalendarID:  e.calendarID,
		Status:      status,
		Message:     message,
		Imported:    res.Imported,
		Exported:    res.Exported,
		Updated:     res.Updated,
		ErrorCount:  len(res.Errors),
		Duration:    completed.Sub(started),
		StartedAt:   started,
		CompletedAt: &completed,
	}
	if len(res.Errors) > 0 {
		entry.Details = formatErrors(res.Errors)
	}
	if err := e.db.CreateSyncLog(entry); err != nil {
		log.Printf("[reconcile] failed to write sync log: %v", err)
	}
}

func formatErrors(errs []EventError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.EventID != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", e.EventID, e.Message))
		} else {
			parts = append(parts, e.Message)
		}
	}
	return strings.Join(parts, "; ")
}
