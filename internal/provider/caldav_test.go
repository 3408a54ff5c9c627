package provider

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
)

func sampleICS(uid, summary string) string {
	return strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:" + uid,
		"SUMMARY:" + summary,
		"DTSTAMP:20260301T000000Z",
		"DTSTART:20260310T130000Z",
		"DTEND:20260310T140000Z",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
}

func TestParseSyncResponse(t *testing.T) {
	body := fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/calendars/studio/abc.ics</D:href>
    <D:propstat>
      <D:prop>
        <D:getetag>"etag-1"</D:getetag>
        <C:calendar-data>%s</C:calendar-data>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:response>
    <D:href>/calendars/studio/gone.ics</D:href>
    <D:status>HTTP/1.1 404 Not Found</D:status>
  </D:response>
  <D:sync-token>http://cal.example.com/sync/42</D:sync-token>
</D:multistatus>`, sampleICS("abc", "Rehearsal"))

	set, err := parseSyncResponse([]byte(body))
	if err != nil {
		t.Fatalf("parseSyncResponse: %v", err)
	}

	if set.NewCursor != "http://cal.example.com/sync/42" {
		t.Errorf("cursor = %q", set.NewCursor)
	}
	if len(set.Changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(set.Changes))
	}

	upd := set.Changes[0]
	if upd.Deleted {
		t.Error("first change should not be a deletion")
	}
	if upd.Event.ID != "/calendars/studio/abc.ics" {
		t.Errorf("id = %q", upd.Event.ID)
	}
	if upd.Event.Title != "Rehearsal" {
		t.Errorf("title = %q", upd.Event.Title)
	}
	wantStart := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	if !upd.Event.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", upd.Event.Start, wantStart)
	}
	if upd.Event.IsAllDay {
		t.Error("timed event flagged all-day")
	}

	del := set.Changes[1]
	if !del.Deleted {
		t.Error("404 response should be a deletion")
	}
	if del.Event.ID != "/calendars/studio/gone.ics" {
		t.Errorf("deleted id = %q", del.Event.ID)
	}
}

func TestParseSyncResponseSkipsMalformed(t *testing.T) {
	body := `<?xml version="1.0" encoding="utf-8"?>
<D:multistatus xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <D:response>
    <D:href>/calendars/studio/bad.ics</D:href>
    <D:propstat>
      <D:prop>
        <C:calendar-data>not an icalendar object</C:calendar-data>
      </D:prop>
      <D:status>HTTP/1.1 200 OK</D:status>
    </D:propstat>
  </D:response>
  <D:sync-token>tok</D:sync-token>
</D:multistatus>`

	set, err := parseSyncResponse([]byte(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(set.Changes) != 0 {
		t.Errorf("malformed object produced %d changes", len(set.Changes))
	}
	if set.NewCursor != "tok" {
		t.Errorf("cursor = %q", set.NewCursor)
	}
}

func TestBuildCalendarRoundTrip(t *testing.T) {
	t.Run("timed event", func(t *testing.T) {
		event := &Event{
			Title:       "Booking: Anna Schmidt",
			Description: "Name: Anna Schmidt\nPhone: +49 151 2345678",
			Start:       time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC),
			End:         time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		}

		cal := buildCalendar("uid-1", event)
		changes := calendarToChanges("/cal/uid-1.ics", cal)
		if len(changes) != 1 {
			t.Fatalf("got %d changes", len(changes))
		}

		got := changes[0].Event
		if got.Title != event.Title {
			t.Errorf("title = %q", got.Title)
		}
		if got.Description != event.Description {
			t.Errorf("description = %q", got.Description)
		}
		if !got.Start.Equal(event.Start) || !got.End.Equal(event.End) {
			t.Errorf("times = %v..%v", got.Start, got.End)
		}
		if got.IsAllDay {
			t.Error("timed event flagged all-day")
		}
		if changes[0].Deleted {
			t.Error("active event marked deleted")
		}
	})

	t.Run("all-day event", func(t *testing.T) {
		event := &Event{
			Title:    "Closed for maintenance",
			Start:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			End:      time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
			IsAllDay: true,
		}

		cal := buildCalendar("uid-2", event)
		changes := calendarToChanges("/cal/uid-2.ics", cal)
		if len(changes) != 1 {
			t.Fatalf("got %d changes", len(changes))
		}

		got := changes[0].Event
		if !got.IsAllDay {
			t.Error("all-day flag lost in round trip")
		}
		if !got.Start.Equal(event.Start) || !got.End.Equal(event.End) {
			t.Errorf("times = %v..%v", got.Start, got.End)
		}
	})

	t.Run("cancelled event maps to deletion", func(t *testing.T) {
		event := &Event{
			Title:     "Booking: gone",
			Start:     time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC),
			End:       time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
			Cancelled: true,
		}

		cal := buildCalendar("uid-3", event)
		changes := calendarToChanges("/cal/uid-3.ics", cal)
		if len(changes) != 1 {
			t.Fatalf("got %d changes", len(changes))
		}
		if !changes[0].Deleted {
			t.Error("cancelled event should surface as deletion")
		}
		if !changes[0].Event.Cancelled {
			t.Error("cancelled flag lost")
		}
	})
}

func TestParseICalTime(t *testing.T) {
	t.Run("date-time value", func(t *testing.T) {
		prop := ical.NewProp(ical.PropDateTimeStart)
		prop.Value = "20260310T130000Z"

		got, allDay, err := parseICalTime(prop)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if allDay {
			t.Error("date-time flagged all-day")
		}
		want := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("date value", func(t *testing.T) {
		prop := ical.NewProp(ical.PropDateTimeStart)
		prop.SetValueType(ical.ValueDate)
		prop.Value = "20260310"

		got, allDay, err := parseICalTime(prop)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allDay {
			t.Error("date value not flagged all-day")
		}
		want := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("garbage value", func(t *testing.T) {
		prop := ical.NewProp(ical.PropDateTimeStart)
		prop.Value = "next tuesday"

		if _, _, err := parseICalTime(prop); err == nil {
			t.Error("expected error")
		}
	})
}

func TestUIDFromPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/calendars/studio/abc-123.ics", "abc-123"},
		{"abc.ics", "abc"},
		{"/calendars/studio/noext", "noext"},
	}
	for _, tt := range tests {
		if got := uidFromPath(tt.in); got != tt.want {
			t.Errorf("uidFromPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassifyCalDAVError(t *testing.T) {
	if err := classifyCalDAVError(nil); err != nil {
		t.Errorf("nil should stay nil, got %v", err)
	}

	if err := classifyCalDAVError(errors.New("HTTP 404 Not Found")); !errors.Is(err, ErrNotFound) {
		t.Errorf("404 not classified as ErrNotFound: %v", err)
	}
	if err := classifyCalDAVError(errors.New("HTTP 401 Unauthorized")); !errors.Is(err, ErrAuth) {
		t.Errorf("401 not classified as ErrAuth: %v", err)
	}
	if err := classifyCalDAVError(errors.New("HTTP 403 Forbidden")); !errors.Is(err, ErrAuth) {
		t.Errorf("403 not classified as ErrAuth: %v", err)
	}

	plain := errors.New("connection reset")
	if err := classifyCalDAVError(plain); err != plain {
		t.Errorf("unclassified error rewritten: %v", err)
	}
}

func TestBuildSyncCollectionRequest(t *testing.T) {
	t.Run("empty token", func(t *testing.T) {
		body := buildSyncCollectionRequest("")
		if !strings.Contains(body, "<D:sync-token/>") {
			t.Error("missing empty sync-token element")
		}
	})

	t.Run("token is escaped", func(t *testing.T) {
		body := buildSyncCollectionRequest(`tok<&>"'`)
		if strings.Contains(body, "tok<&>") {
			t.Error("token not escaped")
		}
		if !strings.Contains(body, "tok&lt;&amp;&gt;&quot;&apos;") {
			t.Errorf("unexpected escaping: %s", body)
		}
	})
}
