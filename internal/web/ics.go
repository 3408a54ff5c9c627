package web

import (
	"bytes"
	"net/http"
	"time"

	"github.com/emersion/go-ical"
	"github.com/gin-gonic/gin"

	"github.com/studiobook/studiobook/internal/db"
)

// ExportICS serves the active events of the sync window as an iCalendar
// feed, for subscription from external calendar apps.
func (h *Handlers) ExportICS(c *gin.Context) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -h.cfg.Sync.WindowPastDays)
	to := now.AddDate(0, 0, h.cfg.Sync.WindowFutureDays)

	events, err := h.db.ListActiveEventsBetween(from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to export calendar"),
		})
		return
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//studiobook//EN")
	for _, event := range events {
		cal.Children = append(cal.Children, eventToComponent(event))
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to encode calendar"),
		})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="studiobook.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", buf.Bytes())
}

// eventToComponent builds a VEVENT from a stored event. Customer contact
// details deliberately stay out of the feed; only title and times are
// published.
func eventToComponent(event *db.CalendarEvent) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, event.ID)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, event.UpdatedAt.UTC())

	if event.IsAllDay {
		start := ical.NewProp(ical.PropDateTimeStart)
		start.SetValueType(ical.ValueDate)
		start.Value = event.Start.UTC().Format("20060102")
		ve.Props.Set(start)

		end := ical.NewProp(ical.PropDateTimeEnd)
		end.SetValueType(ical.ValueDate)
		end.Value = event.End.UTC().Format("20060102")
		ve.Props.Set(end)
	} else {
		ve.Props.SetDateTime(ical.PropDateTimeStart, event.Start.UTC())
		ve.Props.SetDateTime(ical.PropDateTimeEnd, event.End.UTC())
	}

	return ve
}
