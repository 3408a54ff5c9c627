package reconcile

import (
	"testing"
	"time"

	"github.com/studiobook/studiobook/internal/db"
	"github.com/studiobook/studiobook/internal/parser"
	"github.com/studiobook/studiobook/internal/provider"
)

func TestApplyRemote(t *testing.T) {
	start := time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC)

	t.Run("no change reports false", func(t *testing.T) {
		local := &db.CalendarEvent{Title: "Session", Start: start, End: start.Add(time.Hour)}
		remote := &provider.Event{Title: "Session", Start: start, End: start.Add(time.Hour)}
		if applyRemote(local, remote) {
			t.Error("identical events reported as changed")
		}
	})

	t.Run("temporal fields follow the provider", func(t *testing.T) {
		local := &db.CalendarEvent{Title: "Session", Start: start, End: start.Add(time.Hour)}
		remote := &provider.Event{
			Title: "Session",
			Start: start.Add(30 * time.Minute),
			End:   start.Add(90 * time.Minute),
		}
		if !applyRemote(local, remote) {
			t.Fatal("time change not detected")
		}
		if !local.Start.Equal(remote.Start) || !local.End.Equal(remote.End) {
			t.Errorf("times not taken from provider: %v..%v", local.Start, local.End)
		}
	})

	t.Run("equal instants in different zones are not a change", func(t *testing.T) {
		berlin, err := time.LoadLocation("Europe/Berlin")
		if err != nil {
			t.Fatalf("failed to load timezone: %v", err)
		}
		local := &db.CalendarEvent{Start: start, End: start.Add(time.Hour)}
		remote := &provider.Event{Start: start.In(berlin), End: start.Add(time.Hour).In(berlin)}
		if applyRemote(local, remote) {
			t.Error("zone representation treated as a change")
		}
	})
}

func TestBackfillCustomer(t *testing.T) {
	t.Run("fills empty fields", func(t *testing.T) {
		local := &db.CalendarEvent{}
		changed := backfillCustomer(local, parser.Result{
			FirstName: "Anna", LastName: "Schmidt", Phone: "+491512345678",
		})
		if !changed {
			t.Fatal("backfill not reported as change")
		}
		if local.CustomerName != "Anna Schmidt" {
			t.Errorf("name not joined: %q", local.CustomerName)
		}
		if local.CustomerPhone != "+491512345678" {
			t.Errorf("phone not filled: %q", local.CustomerPhone)
		}
	})

	t.Run("never overwrites populated fields", func(t *testing.T) {
		local := &db.CalendarEvent{CustomerName: "Anna Schmidt", CustomerPhone: "+491512345678"}
		changed := backfillCustomer(local, parser.Result{
			FirstName: "Peter", LastName: "Maier", Phone: "0151999999",
		})
		if changed {
			t.Error("populated fields reported as changed")
		}
		if local.CustomerName != "Anna Schmidt" || local.CustomerPhone != "+491512345678" {
			t.Errorf("populated fields clobbered: %q %q", local.CustomerName, local.CustomerPhone)
		}
	})

	t.Run("partial backfill", func(t *testing.T) {
		local := &db.CalendarEvent{CustomerName: "Anna Schmidt"}
		changed := backfillCustomer(local, parser.Result{
			FirstName: "Peter", Phone: "0151999999",
		})
		if !changed {
			t.Fatal("phone backfill not reported")
		}
		if local.CustomerName != "Anna Schmidt" {
			t.Errorf("name clobbered: %q", local.CustomerName)
		}
		if local.CustomerPhone != "0151999999" {
			t.Errorf("phone not filled: %q", local.CustomerPhone)
		}
	})

	t.Run("empty parse is a no-op", func(t *testing.T) {
		local := &db.CalendarEvent{}
		if backfillCustomer(local, parser.Result{}) {
			t.Error("empty result reported as change")
		}
	})
}
