package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const listPageSize = 250

// GoogleProvider adapts the Google Calendar API to the Provider interface.
// The incremental-sync cursor is Google's nextSyncToken, stored verbatim.
type GoogleProvider struct {
	service    *calendar.Service
	calendarID string
}

// NewGoogle creates a Google Calendar provider. Credentials follow the
// standard OAuth installed-app flow: a credentials file plus a previously
// obtained token file.
func NewGoogle(ctx context.Context, calendarID, credentialsFile, tokenFile string) (*GoogleProvider, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(b, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load token (run the auth flow first): %w", err)
	}

	client := oauthCfg.Client(ctx, token)
	service, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	return &GoogleProvider{
		service:    service,
		calendarID: calendarID,
	}, nil
}

// tokenFromFile loads an OAuth2 token from a file.
func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return token, nil
}

// CreateEvent creates the event and returns the provider-assigned id.
func (g *GoogleProvider) CreateEvent(ctx context.Context, event *Event) (string, error) {
	var created *calendar.Event

	err := withRetry(ctx, func(ctx context.Context) error {
		var err error
		created, err = g.service.Events.Insert(g.calendarID, toGoogleEvent(event)).Context(ctx).Do()
		return classifyGoogleError(err)
	})
	if err != nil {
		return "", err
	}

	return created.Id, nil
}

// UpdateEvent overwrites the provider event identified by event.ID.
func (g *GoogleProvider) UpdateEvent(ctx context.Context, event *Event) error {
	return withRetry(ctx, func(ctx context.Context) error {
		_, err := g.service.Events.Update(g.calendarID, event.ID, toGoogleEvent(event)).Context(ctx).Do()
		return classifyGoogleError(err)
	})
}

// DeleteEvent removes the event from the provider calendar.
func (g *GoogleProvider) DeleteEvent(ctx context.Context, id string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		err := g.service.Events.Delete(g.calendarID, id).Context(ctx).Do()
		return classifyGoogleError(err)
	})
}

// ChangesSince returns events changed since the cursor. An empty or
// expired cursor degrades to a full pull bounded by the window.
func (g *GoogleProvider) ChangesSince(ctx context.Context, cursor string, window Window) (*ChangeSet, error) {
	set, err := g.pull(ctx, cursor, window)
	if errors.Is(err, ErrCursorExpired) && cursor != "" {
		// Google invalidates sync tokens after a while (HTTP 410); fall
		// back to the bounded window pull and hand back a fresh token.
		return g.pull(ctx, "", window)
	}
	return set, err
}

// pull pages through the change feed until a nextSyncToken arrives.
func (g *GoogleProvider) pull(ctx context.Context, cursor string, window Window) (*ChangeSet, error) {
	set := &ChangeSet{
		Changes:  make([]Change, 0),
		FullSync: cursor == "",
	}

	pageToken := ""
	for {
		var page *calendar.Events

		err := withRetry(ctx, func(ctx context.Context) error {
			call := g.service.Events.List(g.calendarID).
				ShowDeleted(true).
				SingleEvents(true).
				MaxResults(listPageSize).
				Context(ctx)
			if cursor != "" {
				call = call.SyncToken(cursor)
			} else {
				call = call.
					TimeMin(window.Start.UTC().Format(time.RFC3339)).
					TimeMax(window.End.UTC().Format(time.RFC3339))
			}
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}

			var err error
			page, err = call.Do()
			return classifyGoogleError(err)
		})
		if err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			change, err := toChange(item)
			if err != nil {
				// Malformed provider payloads are skipped, not fatal.
				continue
			}
			set.Changes = append(set.Changes, change)
		}

		if page.NextPageToken != "" {
			pageToken = page.NextPageToken
			continue
		}
		set.NewCursor = page.NextSyncToken
		return set, nil
	}
}

// toChange converts a Google event item into a feed change.
func toChange(item *calendar.Event) (Change, error) {
	if item.Status == "cancelled" {
		// Cancelled items in the feed may carry nothing but the id.
		return Change{Event: Event{ID: item.Id, Cancelled: true}, Deleted: true}, nil
	}

	event := Event{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
	}

	if item.Updated != "" {
		if t, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			event.Updated = t.UTC()
		}
	}

	start, allDay, err := parseGoogleTime(item.Start)
	if err != nil {
		return Change{}, fmt.Errorf("event %s: bad start: %w", item.Id, err)
	}
	end, _, err := parseGoogleTime(item.End)
	if err != nil {
		return Change{}, fmt.Errorf("event %s: bad end: %w", item.Id, err)
	}

	event.Start = start
	event.End = end
	event.IsAllDay = allDay

	return Change{Event: event}, nil
}

// parseGoogleTime handles both timed (dateTime) and all-day (date) values.
func parseGoogleTime(edt *calendar.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, errors.New("missing time")
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.UTC(), false, nil
	}
	if edt.Date != "" {
		t, err := time.Parse("2006-01-02", edt.Date)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.UTC(), true, nil
	}
	return time.Time{}, false, errors.New("empty time")
}

// toGoogleEvent converts a provider-neutral event for export.
func toGoogleEvent(event *Event) *calendar.Event {
	ge := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
	}
	if event.IsAllDay {
		ge.Start = &calendar.EventDateTime{Date: event.Start.UTC().Format("2006-01-02")}
		ge.End = &calendar.EventDateTime{Date: event.End.UTC().Format("2006-01-02")}
	} else {
		ge.Start = &calendar.EventDateTime{DateTime: event.Start.UTC().Format(time.RFC3339)}
		ge.End = &calendar.EventDateTime{DateTime: event.End.UTC().Format(time.RFC3339)}
	}
	if event.Cancelled {
		ge.Status = "cancelled"
	}
	return ge
}

// classifyGoogleError maps Google API errors onto the provider taxonomy.
func classifyGoogleError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
		case http.StatusGone:
			return fmt.Errorf("%w: %s", ErrCursorExpired, apiErr.Message)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAuth, apiErr.Message)
		case http.StatusForbidden:
			// 403 is either a rate limit (retryable) or a permission
			// problem (fatal); the reason disambiguates.
			for _, item := range apiErr.Errors {
				if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
					return fmt.Errorf("rate limit: %w", err)
				}
			}
			return fmt.Errorf("%w: %s", ErrAuth, apiErr.Message)
		}
	}

	return err
}
