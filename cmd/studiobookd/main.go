package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/studiobook/studiobook/internal/config"
	"github.com/studiobook/studiobook/internal/db"
	"github.com/studiobook/studiobook/internal/provider"
	"github.com/studiobook/studiobook/internal/reconcile"
	"github.com/studiobook/studiobook/internal/scheduler"
	"github.com/studiobook/studiobook/internal/validator"
	"github.com/studiobook/studiobook/internal/web"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 120 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting StudioBook...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set Gin mode
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Initialize calendar provider
	prov, err := newProvider(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize calendar provider: %v", err)
	}

	// Initialize reconciliation engine
	engine := reconcile.New(
		database,
		prov,
		cfg.Provider.CalendarID(),
		cfg.Booking.Timezone,
		cfg.Sync.WindowPastDays,
		cfg.Sync.WindowFutureDays,
	)

	// Initialize scheduler
	sched := scheduler.New(database, engine, time.Duration(cfg.Sync.IntervalSeconds)*time.Second)

	// Initialize handlers
	handlers := web.NewHandlers(cfg, database, sched, validator.New(cfg.Booking))

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(web.RequestLogger())
	router.Use(web.SecurityHeaders())

	web.SetupRoutes(router, handlers, cfg.RateLimiting.RPS, cfg.RateLimiting.Burst)

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	// Start scheduler
	sched.Start()

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop scheduler
	sched.Stop()

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// newProvider builds the configured calendar provider.
func newProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	switch cfg.Provider.Type {
	case config.ProviderGoogle:
		return provider.NewGoogle(
			ctx,
			cfg.Provider.GoogleCalendarID,
			cfg.Provider.GoogleCredentialsFile,
			cfg.Provider.GoogleTokenFile,
		)
	case config.ProviderCalDAV:
		return provider.NewCalDAV(
			cfg.Provider.CalDAVURL,
			cfg.Provider.CalDAVUsername,
			cfg.Provider.CalDAVPassword,
			cfg.Provider.CalDAVCalendarPath,
		)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Provider.Type)
	}
}
