package provider

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

const minTLSVersion = tls.VersionTLS12

// CalDAVProvider adapts a CalDAV server to the Provider interface. The
// incremental-sync cursor is the WebDAV sync-token (RFC 6578), stored
// verbatim. Provider event ids are the calendar object paths.
type CalDAVProvider struct {
	baseURL      string
	username     string
	password     string
	calendarPath string
	httpClient   *http.Client
	caldavClient *caldav.Client
}

// NewCalDAV creates a CalDAV provider for a single calendar collection.
func NewCalDAV(baseURL, username, password, calendarPath string) (*CalDAVProvider, error) {
	if baseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if calendarPath == "" {
		return nil, errors.New("calendar path is required")
	}
	if !strings.HasSuffix(calendarPath, "/") {
		calendarPath += "/"
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: minTLSVersion,
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     30 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	httpClient := &http.Client{
		Timeout:   callTimeout,
		Transport: transport,
	}

	caldavClient, err := caldav.NewClient(
		webdav.HTTPClientWithBasicAuth(httpClient, username, password),
		baseURL,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CalDAV client: %w", err)
	}

	return &CalDAVProvider{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		username:     username,
		password:     password,
		calendarPath: calendarPath,
		httpClient:   httpClient,
		caldavClient: caldavClient,
	}, nil
}

// CreateEvent writes a new calendar object and returns its path as the
// provider id.
func (p *CalDAVProvider) CreateEvent(ctx context.Context, event *Event) (string, error) {
	uid := uuid.New().String()
	path := p.calendarPath + uid + ".ics"

	cal := buildCalendar(uid, event)

	err := withRetry(ctx, func(ctx context.Context) error {
		_, err := p.caldavClient.PutCalendarObject(ctx, path, cal)
		return classifyCalDAVError(err)
	})
	if err != nil {
		return "", err
	}

	return path, nil
}

// UpdateEvent overwrites the calendar object at event.ID.
func (p *CalDAVProvider) UpdateEvent(ctx context.Context, event *Event) error {
	uid := uidFromPath(event.ID)

	cal := buildCalendar(uid, event)

	return withRetry(ctx, func(ctx context.Context) error {
		_, err := p.caldavClient.PutCalendarObject(ctx, event.ID, cal)
		return classifyCalDAVError(err)
	})
}

// DeleteEvent removes the calendar object.
func (p *CalDAVProvider) DeleteEvent(ctx context.Context, id string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		err := p.caldavClient.RemoveAll(ctx, id)
		return classifyCalDAVError(err)
	})
}

// ChangesSince performs a sync-collection REPORT when a cursor exists,
// falling back to a bounded time-range query otherwise.
func (p *CalDAVProvider) ChangesSince(ctx context.Context, cursor string, window Window) (*ChangeSet, error) {
	if cursor != "" {
		set, err := p.syncCollection(ctx, cursor)
		if err == nil {
			return set, nil
		}
		if !errors.Is(err, ErrCursorExpired) {
			return nil, err
		}
		// Invalid or expired token: degrade to the bounded full pull.
	}

	return p.fullPull(ctx, window)
}

// fullPull queries the calendar over the bounded window via a
// calendar-query REPORT, then attempts to obtain a fresh sync token for
// the next cycle.
func (p *CalDAVProvider) fullPull(ctx context.Context, window Window) (*ChangeSet, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{
				{Name: "VEVENT"},
			},
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{
				{
					Name:  "VEVENT",
					Start: window.Start.UTC(),
					End:   window.End.UTC(),
				},
			},
		},
	}

	var objects []caldav.CalendarObject
	err := withRetry(ctx, func(ctx context.Context) error {
		var err error
		objects, err = p.caldavClient.QueryCalendar(ctx, p.calendarPath, query)
		return classifyCalDAVError(err)
	})
	if err != nil {
		return nil, err
	}

	set := &ChangeSet{
		Changes:  make([]Change, 0, len(objects)),
		FullSync: true,
	}
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		set.Changes = append(set.Changes, calendarToChanges(obj.Path, obj.Data)...)
	}

	// An initial sync-collection with an empty token yields the token
	// without re-listing what we already have; failure just means the next
	// cycle does another bounded full pull.
	if token, err := p.currentSyncToken(ctx); err == nil {
		set.NewCursor = token
	}

	return set, nil
}

// syncCollection performs a WebDAV-Sync (RFC 6578) REPORT.
func (p *CalDAVProvider) syncCollection(ctx context.Context, syncToken string) (*ChangeSet, error) {
	reqBody := buildSyncCollectionRequest(syncToken)

	var body []byte
	err := withRetry(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, "REPORT", p.baseURL+p.calendarPath, strings.NewReader(reqBody))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.SetBasicAuth(p.username, p.password)
		req.Header.Set("Content-Type", "application/xml; charset=utf-8")
		req.Header.Set("Depth", "1")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusMultiStatus:
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: status %d", ErrAuth, resp.StatusCode)
		case http.StatusForbidden, http.StatusNotImplemented, http.StatusConflict:
			// Token rejected or sync-collection unsupported.
			return fmt.Errorf("%w: status %d", ErrCursorExpired, resp.StatusCode)
		default:
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return parseSyncResponse(body)
}

// currentSyncToken fetches the collection's sync token via an empty
// sync-collection REPORT, discarding the change list.
func (p *CalDAVProvider) currentSyncToken(ctx context.Context) (string, error) {
	set, err := p.syncCollection(ctx, "")
	if err != nil {
		return "", err
	}
	return set.NewCursor, nil
}

// XML structures for parsing WebDAV-Sync responses
type multistatus struct {
	XMLName   xml.Name      `xml:"DAV: multistatus"`
	Responses []davResponse `xml:"response"`
	SyncToken string        `xml:"sync-token"`
}

type davResponse struct {
	Href     string       `xml:"href"`
	PropStat *davPropstat `xml:"propstat"`
	Status   string       `xml:"status"`
}

type davPropstat struct {
	Prop   davProp `xml:"prop"`
	Status string  `xml:"status"`
}

type davProp struct {
	GetETag      string `xml:"getetag"`
	CalendarData string `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
}

func buildSyncCollectionRequest(syncToken string) string {
	var tokenElement string
	if syncToken != "" {
		tokenElement = fmt.Sprintf("<D:sync-token>%s</D:sync-token>", xmlEscape(syncToken))
	} else {
		tokenElement = "<D:sync-token/>"
	}

	return fmt.Sprintf(`<?xml version="1.0" encoding="utf-8" ?>
<D:sync-collection xmlns:D="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  %s
  <D:sync-level>1</D:sync-level>
  <D:prop>
    <D:getetag/>
    <C:calendar-data/>
  </D:prop>
</D:sync-collection>`, tokenElement)
}

func parseSyncResponse(body []byte) (*ChangeSet, error) {
	var ms multistatus
	if err := xml.Unmarshal(body, &ms); err != nil {
		return nil, fmt.Errorf("failed to parse sync response: %w", err)
	}

	set := &ChangeSet{
		NewCursor: ms.SyncToken,
		Changes:   make([]Change, 0),
	}

	for _, resp := range ms.Responses {
		// 404 status marks a deleted item
		if strings.Contains(resp.Status, "404") {
			set.Changes = append(set.Changes, Change{
				Event:   Event{ID: resp.Href},
				Deleted: true,
			})
			continue
		}

		if resp.PropStat == nil || !strings.Contains(resp.PropStat.Status, "200") {
			continue
		}
		if resp.PropStat.Prop.CalendarData == "" {
			continue
		}

		cal, err := parseICalendar(resp.PropStat.Prop.CalendarData)
		if err != nil {
			// Malformed objects are skipped, not fatal.
			continue
		}
		set.Changes = append(set.Changes, calendarToChanges(resp.Href, cal)...)
	}

	return set, nil
}

// calendarToChanges extracts feed changes from a parsed calendar object.
func calendarToChanges(path string, cal *ical.Calendar) []Change {
	changes := make([]Change, 0, 1)
	for _, evt := range cal.Events() {
		event := Event{ID: path}

		if summary, err := evt.Props.Text(ical.PropSummary); err == nil {
			event.Title = summary
		}
		if desc, err := evt.Props.Text(ical.PropDescription); err == nil {
			event.Description = desc
		}
		if status, err := evt.Props.Text(ical.PropStatus); err == nil {
			event.Cancelled = strings.EqualFold(status, "CANCELLED")
		}

		startProp := evt.Props.Get(ical.PropDateTimeStart)
		endProp := evt.Props.Get(ical.PropDateTimeEnd)
		if startProp == nil || endProp == nil {
			continue
		}
		start, allDay, err := parseICalTime(startProp)
		if err != nil {
			continue
		}
		end, _, err := parseICalTime(endProp)
		if err != nil {
			continue
		}

		event.Start = start
		event.End = end
		event.IsAllDay = allDay

		if lastMod := evt.Props.Get(ical.PropLastModified); lastMod != nil {
			if t, err := lastMod.DateTime(time.UTC); err == nil {
				event.Updated = t.UTC()
			}
		}

		changes = append(changes, Change{Event: event, Deleted: event.Cancelled})
	}
	return changes
}

// parseICalTime handles both DATE-TIME and all-day DATE property values.
func parseICalTime(prop *ical.Prop) (time.Time, bool, error) {
	if prop.ValueType() == ical.ValueDate {
		t, err := time.Parse("20060102", prop.Value)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.UTC(), true, nil
	}

	t, err := prop.DateTime(time.UTC)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

// buildCalendar renders an event as a single-VEVENT calendar object.
func buildCalendar(uid string, event *Event) *ical.Calendar {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, event.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())

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

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Cancelled {
		ve.Props.SetText(ical.PropStatus, "CANCELLED")
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//studiobook//EN")
	cal.Children = append(cal.Children, ve)

	return cal
}

// parseICalendar parses iCalendar data into a calendar object.
func parseICalendar(data string) (*ical.Calendar, error) {
	dec := ical.NewDecoder(strings.NewReader(data))
	cal, err := dec.Decode()
	if err != nil {
		return nil, err
	}
	return cal, nil
}

// uidFromPath derives the event UID from a calendar object path.
func uidFromPath(path string) string {
	base := path
	if idx := strings.LastIndex(base, "/"); idx != -1 {
		base = base[idx+1:]
	}
	return strings.TrimSuffix(base, ".ics")
}

// classifyCalDAVError maps HTTP-level errors onto the provider taxonomy.
func classifyCalDAVError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "404"), strings.Contains(errStr, "Not Found"):
		return fmt.Errorf("%w: %s", ErrNotFound, errStr)
	case strings.Contains(errStr, "401"), strings.Contains(errStr, "Unauthorized"),
		strings.Contains(errStr, "403"), strings.Contains(errStr, "Forbidden"):
		return fmt.Errorf("%w: %s", ErrAuth, errStr)
	}
	return err
}

func xmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	return s
}
