package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var (
	ErrMissingConfig = errors.New("missing required configuration")
	ErrInvalidConfig = errors.New("invalid configuration value")
)

// Environment represents the deployment environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// ProviderType selects the external calendar backend.
type ProviderType string

const (
	ProviderGoogle ProviderType = "google"
	ProviderCalDAV ProviderType = "caldav"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Provider     ProviderConfig
	Booking      BookingConfig
	Sync         SyncConfig
	RateLimiting RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port        int
	BaseURL     string
	Environment Environment
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string
}

// ProviderConfig holds external calendar provider configuration.
type ProviderConfig struct {
	Type ProviderType

	// Google Calendar
	GoogleCalendarID      string
	GoogleCredentialsFile string
	GoogleTokenFile       string

	// CalDAV
	CalDAVURL          string
	CalDAVUsername     string
	CalDAVPassword     string
	CalDAVCalendarPath string
}

// CalendarID returns the identifier of the synced calendar, used to key
// the sync cursor and audit trail.
func (p *ProviderConfig) CalendarID() string {
	if p.Type == ProviderCalDAV {
		return p.CalDAVCalendarPath
	}
	return p.GoogleCalendarID
}

// BookingConfig holds availability and slot computation configuration.
// Business hours are minutes since local midnight in the business timezone.
type BookingConfig struct {
	Timezone         *time.Location
	OpenMinutes      int
	CloseMinutes     int
	BufferMinutes    int
	SlotGridMinutes  int
	AllowedDurations []int
}

// SyncConfig holds reconciliation configuration.
type SyncConfig struct {
	IntervalSeconds  int
	WindowPastDays   int
	WindowFutureDays int
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load loads configuration from environment variables.
// It attempts to load from .env file first, but continues if not found.
func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional

	cfg := &Config{}

	// Server configuration
	port, err := getEnvInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%w: PORT: %w", ErrInvalidConfig, err)
	}
	cfg.Server.Port = port
	cfg.Server.BaseURL = getEnv("BASE_URL", "http://localhost:8080")
	cfg.Server.Environment = Environment(strings.ToLower(getEnv("ENVIRONMENT", "production")))

	// Database configuration
	cfg.Database.Path = getEnv("DATABASE_PATH", "./data/studiobook.db")

	// Provider configuration
	cfg.Provider.Type = ProviderType(strings.ToLower(getEnv("PROVIDER", string(ProviderGoogle))))
	cfg.Provider.GoogleCalendarID = os.Getenv("GOOGLE_CALENDAR_ID")
	cfg.Provider.GoogleCredentialsFile = getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json")
	cfg.Provider.GoogleTokenFile = getEnv("GOOGLE_TOKEN_FILE", "token.json")
	cfg.Provider.CalDAVURL = os.Getenv("CALDAV_URL")
	cfg.Provider.CalDAVUsername = os.Getenv("CALDAV_USERNAME")
	cfg.Provider.CalDAVPassword = os.Getenv("CALDAV_PASSWORD")
	cfg.Provider.CalDAVCalendarPath = os.Getenv("CALDAV_CALENDAR_PATH")

	// Booking configuration
	tzName := getEnv("BUSINESS_TIMEZONE", "Europe/Berlin")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("%w: BUSINESS_TIMEZONE: %w", ErrInvalidConfig, err)
	}
	cfg.Booking.Timezone = loc

	open, err := parseClock(getEnv("BUSINESS_OPEN", "10:00"))
	if err != nil {
		return nil, fmt.Errorf("%w: BUSINESS_OPEN: %w", ErrInvalidConfig, err)
	}
	cfg.Booking.OpenMinutes = open

	closeAt, err := parseClock(getEnv("BUSINESS_CLOSE", "22:00"))
	if err != nil {
		return nil, fmt.Errorf("%w: BUSINESS_CLOSE: %w", ErrInvalidConfig, err)
	}
	cfg.Booking.CloseMinutes = closeAt

	if cfg.Booking.CloseMinutes <= cfg.Booking.OpenMinutes {
		return nil, fmt.Errorf("%w: BUSINESS_CLOSE must be after BUSINESS_OPEN", ErrInvalidConfig)
	}

	buffer, err := getEnvInt("BOOKING_BUFFER_MINUTES", 15)
	if err != nil {
		return nil, fmt.Errorf("%w: BOOKING_BUFFER_MINUTES: %w", ErrInvalidConfig, err)
	}
	cfg.Booking.BufferMinutes = buffer

	grid, err := getEnvInt("SLOT_GRID_MINUTES", 15)
	if err != nil {
		return nil, fmt.Errorf("%w: SLOT_GRID_MINUTES: %w", ErrInvalidConfig, err)
	}
	if grid <= 0 {
		return nil, fmt.Errorf("%w: SLOT_GRID_MINUTES must be positive", ErrInvalidConfig)
	}
	cfg.Booking.SlotGridMinutes = grid

	durations, err := parseDurations(getEnv("ALLOWED_DURATIONS", "30,60,90,120"))
	if err != nil {
		return nil, fmt.Errorf("%w: ALLOWED_DURATIONS: %w", ErrInvalidConfig, err)
	}
	cfg.Booking.AllowedDurations = durations

	// Sync configuration
	interval, err := getEnvInt("SYNC_INTERVAL_SECONDS", 300)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_INTERVAL_SECONDS: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.IntervalSeconds = interval

	pastDays, err := getEnvInt("SYNC_WINDOW_PAST_DAYS", 30)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_WINDOW_PAST_DAYS: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.WindowPastDays = pastDays

	futureDays, err := getEnvInt("SYNC_WINDOW_FUTURE_DAYS", 90)
	if err != nil {
		return nil, fmt.Errorf("%w: SYNC_WINDOW_FUTURE_DAYS: %w", ErrInvalidConfig, err)
	}
	cfg.Sync.WindowFutureDays = futureDays

	// Rate limiting configuration
	rps, err := getEnvFloat("RATE_LIMIT_RPS", 10.0)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_RPS: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.RPS = rps

	burst, err := getEnvInt("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("%w: RATE_LIMIT_BURST: %w", ErrInvalidConfig, err)
	}
	cfg.RateLimiting.Burst = burst

	missing := cfg.getMissingRequired()
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}

	return cfg, nil
}

// getMissingRequired returns a list of missing required configuration values.
func (c *Config) getMissingRequired() []string {
	var missing []string

	switch c.Provider.Type {
	case ProviderGoogle:
		if c.Provider.GoogleCalendarID == "" {
			missing = append(missing, "GOOGLE_CALENDAR_ID")
		}
	case ProviderCalDAV:
		if c.Provider.CalDAVURL == "" {
			missing = append(missing, "CALDAV_URL")
		}
		if c.Provider.CalDAVUsername == "" {
			missing = append(missing, "CALDAV_USERNAME")
		}
		if c.Provider.CalDAVPassword == "" {
			missing = append(missing, "CALDAV_PASSWORD")
		}
	default:
		missing = append(missing, "PROVIDER (must be google or caldav)")
	}

	return missing
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// IsAllowedDuration reports whether a requested duration is in the
// configured allowed set.
func (c *Config) IsAllowedDuration(minutes int) bool {
	for _, d := range c.Booking.AllowedDurations {
		if d == minutes {
			return true
		}
	}
	return false
}

// parseClock parses "HH:MM" into minutes since midnight.
func parseClock(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %w", err)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %w", err)
	}
	if hours < 0 || hours > 24 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("out of range: %q", value)
	}
	return hours*60 + minutes, nil
}

// parseDurations parses a comma-separated list of minute durations.
func parseDurations(value string) ([]int, error) {
	parts := strings.Split(value, ",")
	durations := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q: %w", p, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("duration must be positive, got %d", d)
		}
		durations = append(durations, d)
	}
	if len(durations) == 0 {
		return nil, errors.New("at least one duration required")
	}
	return durations, nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	return parsed, nil
}

// getEnvFloat returns the float value of an environment variable or a default.
func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float: %w", err)
	}
	return parsed, nil
}
