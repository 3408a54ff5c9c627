// Package availability computes bookable time slots from a snapshot of
// calendar events. It is a pure function over its inputs: no clock, no
// database, no provider calls, safe for unbounded concurrent use.
package availability

import (
	"time"

	"github.com/studiobook/studiobook/internal/db"
)

// ReasonDayBlocked is returned when an all-day blocker covers the
// requested date.
const ReasonDayBlocked = "day_blocked"

// Rules are the business constraints slots are computed under.
type Rules struct {
	Timezone      *time.Location
	OpenMinutes   int // minutes since local midnight
	CloseMinutes  int
	BufferMinutes int // idle time appended after each booking
	GridMinutes   int // candidate start time spacing
}

// Slot is one candidate start time on the grid.
type Slot struct {
	Start     time.Time `json:"start"`
	Available bool      `json:"available"`
}

// Result is the availability computation output: the day-level flag, the
// filtered list of bookable start times, and the full grid for calendar
// rendering.
type Result struct {
	Available bool
	Reason    string
	Slots     []time.Time
	Grid      []Slot
}

// interval is a half-open busy interval [Start, End).
type interval struct {
	Start time.Time
	End   time.Time
}

// overlaps is the open-interval overlap test.
func (iv interval) overlaps(start, end time.Time) bool {
	return start.Before(iv.End) && end.After(iv.Start)
}

// Slots computes bookable start times for one calendar day. The date is
// interpreted in the business timezone; events are the non-cancelled
// bookings and blockers overlapping that day.
//
// Busy intervals carry the post-booking buffer; the candidate itself is
// tested at its bare duration but must leave room for its own buffer
// before closing time. The close boundary is exclusive: a slot whose end
// plus buffer exceeds it is excluded, never rounded.
func Slots(events []*db.CalendarEvent, date time.Time, durationMinutes int, rules Rules) Result {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, rules.Timezone)
	dayEnd := dayStart.AddDate(0, 0, 1)

	// An all-day blocker short-circuits the whole day.
	for _, event := range events {
		if !event.BlocksAvailability() {
			continue
		}
		if event.IsAllDay && event.EventType == db.EventTypeBlocker &&
			event.Start.Before(dayEnd) && event.End.After(dayStart) {
			return Result{Available: false, Reason: ReasonDayBlocked}
		}
	}

	busy := busyIntervals(events, rules)

	open := dayStart.Add(time.Duration(rules.OpenMinutes) * time.Minute)
	closeAt := dayStart.Add(time.Duration(rules.CloseMinutes) * time.Minute)
	duration := time.Duration(durationMinutes) * time.Minute
	buffer := time.Duration(rules.BufferMinutes) * time.Minute
	grid := time.Duration(rules.GridMinutes) * time.Minute

	result := Result{
		Slots: make([]time.Time, 0),
		Grid:  make([]Slot, 0),
	}

	for start := open; start.Before(closeAt); start = start.Add(grid) {
		// The slot plus its own trailing buffer must finish by close. Late
		// starts stay on the grid, flagged unavailable, so calendar
		// rendering sees the full day.
		available := !start.Add(duration + buffer).After(closeAt)

		if available {
			end := start.Add(duration)
			for _, iv := range busy {
				if iv.overlaps(start, end) {
					available = false
					break
				}
			}
		}

		result.Grid = append(result.Grid, Slot{Start: start, Available: available})
		if available {
			result.Slots = append(result.Slots, start)
		}
	}

	result.Available = len(result.Slots) > 0

	return result
}

// busyIntervals builds the occupied intervals: bookings (including
// unclassified external events, which are treated as raw bookings) are
// extended by the post-event buffer; blockers count as-is; staff
// assignments do not occupy bookable time.
func busyIntervals(events []*db.CalendarEvent, rules Rules) []interval {
	buffer := time.Duration(rules.BufferMinutes) * time.Minute

	intervals := make([]interval, 0, len(events))
	for _, event := range events {
		if !event.BlocksAvailability() {
			continue
		}

		switch event.EventType {
		case db.EventTypeBooking, db.EventTypeRaw:
			intervals = append(intervals, interval{
				Start: event.Start,
				End:   event.End.Add(buffer),
			})
		case db.EventTypeBlocker:
			intervals = append(intervals, interval{
				Start: event.Start,
				End:   event.End,
			})
		}
	}

	return intervals
}
