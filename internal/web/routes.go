package web

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all application routes.
func SetupRoutes(r *gin.Engine, h *Handlers, rps float64, burst int) {
	// Health endpoints (no rate limit)
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.Liveness)
	r.GET("/ready", h.Readiness)

	// Calendar feed
	r.GET("/calendar.ics", h.ExportICS)

	apiRateLimiter := RateLimiter(rps, burst)
	api := r.Group("/api")
	api.Use(apiRateLimiter)
	api.Use(RequireJSONContentType())
	{
		api.GET("/availability", h.Availability)
		api.GET("/bookings", h.ListBookings)
		api.POST("/bookings", h.CreateBooking)
		api.POST("/bookings/:id/cancel", h.CancelBooking)
		api.GET("/events", h.ListEvents)
		api.PUT("/events/:id/classify", h.ClassifyEvent)
		api.GET("/sync/logs", h.SyncLogs)
		api.GET("/dashboard/stats", h.DashboardStats)
	}

	// Sync trigger drives provider calls; limit it harder.
	syncRateLimiter := RateLimiter(2, 5)
	syncAPI := r.Group("/api")
	syncAPI.Use(syncRateLimiter)
	{
		syncAPI.POST("/sync", h.TriggerSync)
	}
}
