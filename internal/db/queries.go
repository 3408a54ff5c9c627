package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const eventColumns = `id, provider_id, event_type, title, description, start_time, end_time,
	is_all_day, status, cancel_reason, cancelled_by, cancelled_at,
	sync_status, sync_error, customer_name, customer_email, customer_phone,
	deleted, created_at, updated_at`

// CreateEvent inserts a new calendar event. A locally created event starts
// with sync_status pending so the next reconciliation cycle exports it.
func (db *DB) CreateEvent(event *CalendarEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	if event.Status == "" {
		event.Status = EventStatusPending
	}
	if event.SyncStatus == "" {
		event.SyncStatus = SyncStatusPending
	}
	event.Start = event.Start.UTC()
	event.End = event.End.UTC()

	query := `INSERT INTO calendar_events (
		id, provider_id, event_type, title, description, start_time, end_time,
		is_all_day, status, cancel_reason, cancelled_by, cancelled_at,
		sync_status, sync_error, customer_name, customer_email, customer_phone,
		deleted, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(query,
		event.ID, nullString(event.ProviderID), event.EventType, event.Title, event.Description,
		event.Start, event.End, event.IsAllDay, event.Status,
		nullString(event.CancelReason), nullString(event.CancelledBy), event.CancelledAt,
		event.SyncStatus, nullString(event.SyncError),
		nullString(event.CustomerName), nullString(event.CustomerEmail), nullString(event.CustomerPhone),
		event.Deleted, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: provider id %s", ErrDuplicate, event.ProviderID)
		}
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// GetEventByID returns an event by its local ID.
func (db *DB) GetEventByID(id string) (*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE id = ?`
	return scanEvent(db.conn.QueryRow(query, id))
}

// GetEventByProviderID returns an event by its provider-assigned ID.
func (db *DB) GetEventByProviderID(providerID string) (*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE provider_id = ?`
	return scanEvent(db.conn.QueryRow(query, providerID))
}

// UpdateEvent updates an existing event's mutable fields. The caller is
// responsible for setting SyncStatus to pending when the mutation is local.
func (db *DB) UpdateEvent(event *CalendarEvent) error {
	event.UpdatedAt = time.Now().UTC()
	event.Start = event.Start.UTC()
	event.End = event.End.UTC()

	query := `UPDATE calendar_events SET
		provider_id = ?, event_type = ?, title = ?, description = ?,
		start_time = ?, end_time = ?, is_all_day = ?, status = ?,
		cancel_reason = ?, cancelled_by = ?, cancelled_at = ?,
		sync_status = ?, sync_error = ?,
		customer_name = ?, customer_email = ?, customer_phone = ?,
		deleted = ?, updated_at = ?
		WHERE id = ?`

	result, err := db.conn.Exec(query,
		nullString(event.ProviderID), event.EventType, event.Title, event.Description,
		event.Start, event.End, event.IsAllDay, event.Status,
		nullString(event.CancelReason), nullString(event.CancelledBy), event.CancelledAt,
		event.SyncStatus, nullString(event.SyncError),
		nullString(event.CustomerName), nullString(event.CustomerEmail), nullString(event.CustomerPhone),
		event.Deleted, event.UpdatedAt, event.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// CancelEvent transitions an event to its terminal cancelled state.
// Already-cancelled events are left untouched: cancellation is monotonic.
// syncStatus distinguishes a local cancellation (pending, to be pushed)
// from a cascade-cancel driven by the provider (synced).
func (db *DB) CancelEvent(id, reason, actor string, syncStatus SyncStatus) error {
	now := time.Now().UTC()

	query := `UPDATE calendar_events SET
		status = ?, cancel_reason = ?, cancelled_by = ?, cancelled_at = ?,
		sync_status = ?, updated_at = ?
		WHERE id = ? AND status != ?`

	result, err := db.conn.Exec(query,
		EventStatusCancelled, reason, actor, now, syncStatus, now,
		id, EventStatusCancelled,
	)
	if err != nil {
		return fmt.Errorf("failed to cancel event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Either missing or already cancelled; only the former is an error.
		if _, err := db.GetEventByID(id); err != nil {
			return err
		}
	}

	return nil
}

// MarkSynced records a successful export: assigns the provider id (if one
// was returned) and clears any previous sync error.
func (db *DB) MarkSynced(id, providerID string) error {
	now := time.Now().UTC()

	query := `UPDATE calendar_events SET
		provider_id = COALESCE(?, provider_id), sync_status = ?, sync_error = NULL, updated_at = ?
		WHERE id = ?`

	result, err := db.conn.Exec(query, nullString(providerID), SyncStatusSynced, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark event synced: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkSyncError records a failed export attempt. The row keeps its local
// state and is retried on the next cycle's push phase.
func (db *DB) MarkSyncError(id, message string) error {
	now := time.Now().UTC()

	query := `UPDATE calendar_events SET sync_status = ?, sync_error = ?, updated_at = ? WHERE id = ?`

	result, err := db.conn.Exec(query, SyncStatusError, message, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark event sync error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkDeleted tombstones an event for deletion. The row stays until the
// provider-side delete has been confirmed, never the reverse, to avoid
// orphaned provider events.
func (db *DB) MarkDeleted(id string) error {
	now := time.Now().UTC()

	query := `UPDATE calendar_events SET deleted = 1, sync_status = ?, updated_at = ? WHERE id = ?`

	result, err := db.conn.Exec(query, SyncStatusPending, now, id)
	if err != nil {
		return fmt.Errorf("failed to mark event deleted: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// RemoveEvent hard-deletes an event row after provider-side deletion has
// been confirmed.
func (db *DB) RemoveEvent(id string) error {
	result, err := db.conn.Exec(`DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// ListEventsBetween returns all non-deleted events overlapping the
// half-open interval [from, to), ordered by start time.
func (db *DB) ListEventsBetween(from, to time.Time) ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE deleted = 0 AND start_time < ? AND end_time > ?
		ORDER BY start_time`

	rows, err := db.conn.Query(query, to.UTC(), from.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListActiveEventsBetween returns non-deleted, non-cancelled events
// overlapping [from, to). This is the snapshot availability computes over.
func (db *DB) ListActiveEventsBetween(from, to time.Time) ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE deleted = 0 AND status != ? AND start_time < ? AND end_time > ?
		ORDER BY start_time`

	rows, err := db.conn.Query(query, EventStatusCancelled, to.UTC(), from.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query active events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListPendingSync returns events whose local state has not been confirmed
// at the provider: fresh local mutations plus previous export failures.
func (db *DB) ListPendingSync() ([]*CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
		WHERE sync_status IN (?, ?)
		ORDER BY updated_at`

	rows, err := db.conn.Query(query, SyncStatusPending, SyncStatusError)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// GetSyncState returns the stored cursor for a provider calendar.
func (db *DB) GetSyncState(calendarID string) (*SyncState, error) {
	query := `SELECT id, calendar_id, cursor, updated_at FROM sync_state WHERE calendar_id = ?`
	row := db.conn.QueryRow(query, calendarID)

	state := &SyncState{}
	var cursor sql.NullString
	err := row.Scan(&state.ID, &state.CalendarID, &cursor, &state.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	state.Cursor = cursor.String
	state.UpdatedAt = state.UpdatedAt.UTC()

	return state, nil
}

// UpsertSyncState stores the cursor for a provider calendar verbatim.
func (db *DB) UpsertSyncState(calendarID, cursor string) error {
	now := time.Now().UTC()

	query := `UPDATE sync_state SET cursor = ?, updated_at = ? WHERE calendar_id = ?`

	result, err := db.conn.Exec(query, cursor, now, calendarID)
	if err != nil {
		return fmt.Errorf("failed to update sync state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		insertQuery := `INSERT INTO sync_state (id, calendar_id, cursor, updated_at) VALUES (?, ?, ?, ?)`
		_, err = db.conn.Exec(insertQuery, uuid.New().String(), calendarID, cursor, now)
		if err != nil {
			return fmt.Errorf("failed to insert sync state: %w", err)
		}
	}

	return nil
}

// CreateSyncLog creates a new audit trail entry for a reconciliation cycle.
func (db *DB) CreateSyncLog(log *SyncLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	log.CreatedAt = time.Now().UTC()

	query := `INSERT INTO sync_logs (id, calendar_id, status, message, details,
		imported, exported, updated, error_count, duration_ms, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.conn.Exec(query, log.ID, log.CalendarID, log.Status, log.Message, log.Details,
		log.Imported, log.Exported, log.Updated, log.ErrorCount, log.Duration.Milliseconds(),
		log.StartedAt.UTC(), log.CompletedAt, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync log: %w", err)
	}

	return nil
}

// GetSyncLogs returns the most recent reconciliation cycles.
func (db *DB) GetSyncLogs(limit int) ([]*SyncLog, error) {
	query := `SELECT id, calendar_id, status, message, details,
		imported, exported, updated, error_count, duration_ms, started_at, completed_at, created_at
		FROM sync_logs ORDER BY created_at DESC LIMIT ?`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync logs: %w", err)
	}
	defer rows.Close()

	var logs []*SyncLog
	for rows.Next() {
		log := &SyncLog{}
		var message, details sql.NullString
		var completedAt sql.NullTime
		var durationMs int64
		err := rows.Scan(&log.ID, &log.CalendarID, &log.Status, &message, &details,
			&log.Imported, &log.Exported, &log.Updated, &log.ErrorCount, &durationMs,
			&log.StartedAt, &completedAt, &log.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		log.Message = message.String
		log.Details = details.String
		log.Duration = time.Duration(durationMs) * time.Millisecond
		log.StartedAt = log.StartedAt.UTC()
		if completedAt.Valid {
			t := completedAt.Time.UTC()
			log.CompletedAt = &t
		}
		logs = append(logs, log)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync logs: %w", err)
	}

	return logs, nil
}

// CountSyncLogsSince returns total and failed cycle counts since the given time.
func (db *DB) CountSyncLogsSince(since time.Time) (total, failed int, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM sync_logs WHERE created_at >= ?`

	row := db.conn.QueryRow(query, CycleStatusFailed, since.UTC())
	if err := row.Scan(&total, &failed); err != nil {
		return 0, 0, fmt.Errorf("failed to count sync logs: %w", err)
	}

	return total, failed, nil
}

// CleanOldSyncLogs deletes sync logs older than the given time.
func (db *DB) CleanOldSyncLogs(olderThan time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM sync_logs WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to clean old sync logs: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected, nil
}

// scanner abstracts *sql.Row and *sql.Rows for event scanning.
type scanner interface {
	Scan(dest ...any) error
}

// scanEvent scans a single row into a CalendarEvent.
func scanEvent(row scanner) (*CalendarEvent, error) {
	event := &CalendarEvent{}
	var providerID, cancelReason, cancelledBy, syncError sql.NullString
	var customerName, customerEmail, customerPhone sql.NullString
	var cancelledAt sql.NullTime

	err := row.Scan(
		&event.ID, &providerID, &event.EventType, &event.Title, &event.Description,
		&event.Start, &event.End, &event.IsAllDay, &event.Status,
		&cancelReason, &cancelledBy, &cancelledAt,
		&event.SyncStatus, &syncError,
		&customerName, &customerEmail, &customerPhone,
		&event.Deleted, &event.CreatedAt, &event.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.ProviderID = providerID.String
	event.CancelReason = cancelReason.String
	event.CancelledBy = cancelledBy.String
	event.SyncError = syncError.String
	event.CustomerName = customerName.String
	event.CustomerEmail = customerEmail.String
	event.CustomerPhone = customerPhone.String
	if cancelledAt.Valid {
		t := cancelledAt.Time.UTC()
		event.CancelledAt = &t
	}

	// Times are stored in UTC; normalize on the way out so round-trips
	// preserve the instant exactly.
	event.Start = event.Start.UTC()
	event.End = event.End.UTC()
	event.CreatedAt = event.CreatedAt.UTC()
	event.UpdatedAt = event.UpdatedAt.UTC()

	return event, nil
}

// collectEvents drains sql.Rows into a slice of events.
func collectEvents(rows *sql.Rows) ([]*CalendarEvent, error) {
	var events []*CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// nullString converts an empty string to NULL for nullable columns.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueConstraintError checks for SQLite unique constraint violations.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
