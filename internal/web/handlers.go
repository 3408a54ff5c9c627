package web

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studiobook/studiobook/internal/availability"
	"github.com/studiobook/studiobook/internal/config"
	"github.com/studiobook/studiobook/internal/db"
	"github.com/studiobook/studiobook/internal/scheduler"
	"github.com/studiobook/studiobook/internal/validator"
)

// Handlers bundles the HTTP handlers with their dependencies.
type Handlers struct {
	cfg   *config.Config
	db    *db.DB
	sched *scheduler.Scheduler
	val   *validator.Validator

	// bookMu serializes the availability check and insert in
	// CreateBooking; without it two concurrent requests could both see
	// the same slot as free and both be stored.
	bookMu sync.Mutex
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg *config.Config, database *db.DB, sched *scheduler.Scheduler, val *validator.Validator) *Handlers {
	return &Handlers{
		cfg:   cfg,
		db:    database,
		sched: sched,
		val:   val,
	}
}

// sanitizeError returns a user-safe message and logs the internal error
// server-side.
func sanitizeError(err error, userMessage string) string {
	if err != nil {
		log.Printf("Error: %s - Details: %v", userMessage, err)
	}
	return userMessage
}

func (h *Handlers) rules() availability.Rules {
	return availability.Rules{
		Timezone:      h.cfg.Booking.Timezone,
		OpenMinutes:   h.cfg.Booking.OpenMinutes,
		CloseMinutes:  h.cfg.Booking.CloseMinutes,
		BufferMinutes: h.cfg.Booking.BufferMinutes,
		GridMinutes:   h.cfg.Booking.SlotGridMinutes,
	}
}

// HealthCheck returns a health report covering the database and the last
// sync cycle.
func (h *Handlers) HealthCheck(c *gin.Context) {
	report := gin.H{
		"status":   "ok",
		"database": "ok",
	}
	status := http.StatusOK

	if err := h.db.Ping(); err != nil {
		report["status"] = "unhealthy"
		report["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if last, lastRun := h.sched.LastResult(); last != nil {
		report["last_sync"] = gin.H{
			"at":       lastRun.Format(time.RFC3339),
			"imported": last.Imported,
			"exported": last.Exported,
			"updated":  last.Updated,
			"errors":   len(last.Errors),
		}
	}

	c.JSON(status, report)
}

// Liveness returns a simple liveness check.
func (h *Handlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Readiness checks the database dependency.
func (h *Handlers) Readiness(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// availabilityResponse is the slot listing for one day.
type availabilityResponse struct {
	Date            string              `json:"date"`
	DurationMinutes int                 `json:"duration_minutes"`
	Available       bool                `json:"available"`
	Reason          string              `json:"reason,omitempty"`
	Slots           []string            `json:"slots"`
	Grid            []availability.Slot `json:"grid"`
}

// Availability lists bookable start times for a date and duration.
func (h *Handlers) Availability(c *gin.Context) {
	date, err := h.val.Date(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	duration, err := strconv.Atoi(c.DefaultQuery("duration", "60"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid duration"})
		return
	}
	if err := h.val.Duration(duration); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.computeAvailability(date, duration)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to compute availability"),
		})
		return
	}

	resp := availabilityResponse{
		Date:            date.Format("2006-01-02"),
		DurationMinutes: duration,
		Available:       result.Available,
		Reason:          result.Reason,
		Slots:           make([]string, 0, len(result.Slots)),
		Grid:            result.Grid,
	}
	for _, slot := range result.Slots {
		resp.Slots = append(resp.Slots, slot.In(h.cfg.Booking.Timezone).Format(time.RFC3339))
	}

	c.JSON(http.StatusOK, resp)
}

// computeAvailability loads the day's events and runs the slot engine.
// date must be midnight in the business timezone.
func (h *Handlers) computeAvailability(date time.Time, durationMinutes int) (availability.Result, error) {
	dayEnd := date.AddDate(0, 0, 1)
	events, err := h.db.ListActiveEventsBetween(date.UTC(), dayEnd.UTC())
	if err != nil {
		return availability.Result{}, err
	}
	return availability.Slots(events, date, durationMinutes, h.rules()), nil
}

// createBookingRequest is the payload for creating a booking.
type createBookingRequest struct {
	Start           string `json:"start" binding:"required"`
	DurationMinutes int    `json:"duration_minutes" binding:"required"`
	CustomerName    string `json:"customer_name" binding:"required"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone"`
	Notes           string `json:"notes"`
}

// CreateBooking creates a booking on an offered slot. The booking is
// stored pending and exported to the provider on the next cycle, which is
// kicked off immediately in the background.
func (h *Handlers) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start, expected RFC 3339"})
		return
	}
	start = start.UTC()

	if err := h.val.BookingStart(start, req.DurationMinutes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.val.Customer(req.CustomerName, req.CustomerEmail, req.CustomerPhone); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	localDay := start.In(h.cfg.Booking.Timezone)
	date := time.Date(localDay.Year(), localDay.Month(), localDay.Day(), 0, 0, 0, 0, h.cfg.Booking.Timezone)

	h.bookMu.Lock()
	defer h.bookMu.Unlock()

	result, err := h.computeAvailability(date, req.DurationMinutes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to check availability"),
		})
		return
	}
	if !slotOffered(result.Slots, start) {
		c.JSON(http.StatusConflict, gin.H{"error": "slot not available"})
		return
	}

	event := &db.CalendarEvent{
		EventType:     db.EventTypeBooking,
		Title:         "Booking: " + req.CustomerName,
		Description:   bookingDescription(&req),
		Start:         start,
		End:           start.Add(time.Duration(req.DurationMinutes) * time.Minute),
		Status:        db.EventStatusConfirmed,
		SyncStatus:    db.SyncStatusPending,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
	}
	if err := h.db.CreateEvent(event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to create booking"),
		})
		return
	}

	h.triggerBackgroundSync()
	c.JSON(http.StatusCreated, event)
}

// cancelBookingRequest is the optional payload for cancelling a booking.
type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

// CancelBooking cancels a booking. Cancelling an already-cancelled
// booking succeeds without changing anything.
func (h *Handlers) CancelBooking(c *gin.Context) {
	id := c.Param("id")

	var req cancelBookingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}

	if _, err := h.db.GetEventByID(id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "booking not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to load booking"),
		})
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "cancelled via portal"
	}
	if err := h.db.CancelEvent(id, reason, "portal", db.SyncStatusPending); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to cancel booking"),
		})
		return
	}

	event, err := h.db.GetEventByID(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to load booking"),
		})
		return
	}

	h.triggerBackgroundSync()
	c.JSON(http.StatusOK, event)
}

// ListBookings lists bookings in a date range (defaulting to the next 30
// days).
func (h *Handlers) ListBookings(c *gin.Context) {
	from, to, err := h.parseRange(c, 30)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.db.ListEventsBetween(from.UTC(), to.UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to list bookings"),
		})
		return
	}

	bookings := make([]*db.CalendarEvent, 0, len(events))
	for _, event := range events {
		if event.EventType == db.EventTypeBooking && !event.Deleted {
			bookings = append(bookings, event)
		}
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// ListEvents lists all calendar events in a date range, including
// blockers, assignments and unclassified imports.
func (h *Handlers) ListEvents(c *gin.Context) {
	from, to, err := h.parseRange(c, 30)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	events, err := h.db.ListEventsBetween(from.UTC(), to.UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to list events"),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// classifyRequest assigns a type to an unclassified event.
type classifyRequest struct {
	EventType string `json:"event_type" binding:"required"`
}

// ClassifyEvent assigns an event type to an imported event. Type changes
// are local metadata and do not mark the event for export.
func (h *Handlers) ClassifyEvent(c *gin.Context) {
	id := c.Param("id")

	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	eventType := db.EventType(strings.ToLower(req.EventType))
	if eventType == db.EventTypeRaw || !eventType.IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_type must be booking, blocker or assignment"})
		return
	}

	event, err := h.db.GetEventByID(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to load event"),
		})
		return
	}

	event.EventType = eventType
	if err := h.db.UpdateEvent(event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to update event"),
		})
		return
	}
	c.JSON(http.StatusOK, event)
}

// TriggerSync runs a reconciliation cycle now. A cycle already in flight
// is reported as a conflict rather than queued.
func (h *Handlers) TriggerSync(c *gin.Context) {
	result, err := h.sched.TriggerSync(c.Request.Context())
	if errors.Is(err, scheduler.ErrSyncInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error": sanitizeError(err, "Sync failed"),
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// SyncLogs returns the most recent audit trail entries.
func (h *Handlers) SyncLogs(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
		return
	}

	logs, err := h.db.GetSyncLogs(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to load sync logs"),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// DashboardStats returns aggregate counts for the dashboard.
func (h *Handlers) DashboardStats(c *gin.Context) {
	now := time.Now().In(h.cfg.Booking.Timezone)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.cfg.Booking.Timezone)

	syncsToday, failedToday, err := h.db.CountSyncLogsSince(midnight.UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to load stats"),
		})
		return
	}

	horizon := now.AddDate(0, 0, h.cfg.Sync.WindowFutureDays)
	events, err := h.db.ListActiveEventsBetween(now.UTC(), horizon.UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": sanitizeError(err, "Failed to load stats"),
		})
		return
	}
	upcoming := 0
	pending := 0
	for _, event := range events {
		if event.EventType == db.EventTypeBooking {
			upcoming++
		}
		if event.SyncStatus != db.SyncStatusSynced {
			pending++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"upcoming_bookings": upcoming,
		"pending_sync":      pending,
		"syncs_today":       syncsToday,
		"failed_syncs":      failedToday,
	})
}

// parseRange reads from/to query dates, defaulting to today through
// today+defaultDays in the business timezone.
func (h *Handlers) parseRange(c *gin.Context, defaultDays int) (time.Time, time.Time, error) {
	now := time.Now().In(h.cfg.Booking.Timezone)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.cfg.Booking.Timezone)
	to := from.AddDate(0, 0, defaultDays)

	if v := c.Query("from"); v != "" {
		parsed, err := h.val.Date(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if v := c.Query("to"); v != "" {
		parsed, err := h.val.Date(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed.AddDate(0, 0, 1) // inclusive end date
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}

// triggerBackgroundSync kicks off an export cycle without blocking the
// request. A cycle already in flight will pick the change up anyway.
func (h *Handlers) triggerBackgroundSync() {
	go func() {
		if _, err := h.sched.TriggerSync(context.Background()); err != nil && !errors.Is(err, scheduler.ErrSyncInProgress) {
			log.Printf("Background sync failed: %v", err)
		}
	}()
}

func slotOffered(slots []time.Time, start time.Time) bool {
	for _, slot := range slots {
		if slot.Equal(start) {
			return true
		}
	}
	return false
}

func bookingDescription(req *createBookingRequest) string {
	var b strings.Builder
	b.WriteString("Name: " + req.CustomerName)
	if req.CustomerPhone != "" {
		b.WriteString("\nPhone: " + req.CustomerPhone)
	}
	if req.CustomerEmail != "" {
		b.WriteString("\nEmail: " + req.CustomerEmail)
	}
	if req.Notes != "" {
		b.WriteString("\n\n" + req.Notes)
	}
	return b.String()
}
