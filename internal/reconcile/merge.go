package reconcile

import (
	"github.com/studiobook/studiobook/internal/db"
	"github.com/studiobook/studiobook/internal/parser"
	"github.com/studiobook/studiobook/internal/provider"
)

// authority says which side of the sync wins a field when both changed
// between checkpoints.
type authority int

const (
	// providerWins: the provider is the calendar of record visible to
	// external actors; its value replaces the local one.
	providerWins authority = iota
	// localWins: only the internal system solicits and edits the field;
	// an incoming value fills the field when empty, never overwrites.
	localWins
)

// mergePolicy is the per-field tie-break table. Temporal and status
// fields follow the provider; customer contact fields stay local. Keeping
// this in one table avoids scattering the policy through the engine.
var mergePolicy = map[string]authority{
	"title":          providerWins,
	"description":    providerWins,
	"start":          providerWins,
	"end":            providerWins,
	"is_all_day":     providerWins,
	"status":         providerWins,
	"customer_name":  localWins,
	"customer_email": localWins,
	"customer_phone": localWins,
}

// applyRemote merges a provider event into the local row according to the
// policy table. It reports whether anything changed, so a no-op merge
// causes no write and keeps reconciliation idempotent.
func applyRemote(local *db.CalendarEvent, remote *provider.Event) bool {
	changed := false

	if mergePolicy["title"] == providerWins && local.Title != remote.Title {
		local.Title = remote.Title
		changed = true
	}
	if mergePolicy["description"] == providerWins && local.Description != remote.Description {
		local.Description = remote.Description
		changed = true
	}
	if mergePolicy["start"] == providerWins && !local.Start.Equal(remote.Start) {
		local.Start = remote.Start
		changed = true
	}
	if mergePolicy["end"] == providerWins && !local.End.Equal(remote.End) {
		local.End = remote.End
		changed = true
	}
	if mergePolicy["is_all_day"] == providerWins && local.IsAllDay != remote.IsAllDay {
		local.IsAllDay = remote.IsAllDay
		changed = true
	}

	return changed
}

// backfillCustomer fills empty customer fields from parsed free text.
// Populated fields are never clobbered regardless of what was parsed.
func backfillCustomer(local *db.CalendarEvent, parsed parser.Result) bool {
	if parsed.IsEmpty() {
		return false
	}

	changed := false

	name := parsed.FirstName
	if parsed.LastName != "" {
		if name != "" {
			name += " "
		}
		name += parsed.LastName
	}

	if local.CustomerName == "" && name != "" {
		local.CustomerName = name
		changed = true
	}
	if local.CustomerPhone == "" && parsed.Phone != "" {
		local.CustomerPhone = parsed.Phone
		changed = true
	}

	return changed
}
