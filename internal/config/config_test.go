package config

import (
	"errors"
	"testing"
)

// clearProviderEnv resets all provider-related variables so tests control
// them exactly.
func clearProviderEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"PROVIDER", "GOOGLE_CALENDAR_ID", "GOOGLE_CREDENTIALS_FILE", "GOOGLE_TOKEN_FILE",
		"CALDAV_URL", "CALDAV_USERNAME", "CALDAV_PASSWORD", "CALDAV_CALENDAR_PATH",
		"BUSINESS_TIMEZONE", "BUSINESS_OPEN", "BUSINESS_CLOSE",
		"BOOKING_BUFFER_MINUTES", "SLOT_GRID_MINUTES", "ALLOWED_DURATIONS",
		"SYNC_INTERVAL_SECONDS", "PORT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults with google provider", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("GOOGLE_CALENDAR_ID", "primary")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("default port = %d", cfg.Server.Port)
		}
		if cfg.Provider.Type != ProviderGoogle {
			t.Errorf("default provider = %q", cfg.Provider.Type)
		}
		if cfg.Provider.CalendarID() != "primary" {
			t.Errorf("calendar id = %q", cfg.Provider.CalendarID())
		}
		if cfg.Booking.Timezone.String() != "Europe/Berlin" {
			t.Errorf("default timezone = %v", cfg.Booking.Timezone)
		}
		if cfg.Booking.OpenMinutes != 10*60 || cfg.Booking.CloseMinutes != 22*60 {
			t.Errorf("default hours = %d..%d", cfg.Booking.OpenMinutes, cfg.Booking.CloseMinutes)
		}
		if cfg.Booking.BufferMinutes != 15 {
			t.Errorf("default buffer = %d", cfg.Booking.BufferMinutes)
		}
		if len(cfg.Booking.AllowedDurations) != 4 || cfg.Booking.AllowedDurations[0] != 30 {
			t.Errorf("default durations = %v", cfg.Booking.AllowedDurations)
		}
		if cfg.Sync.IntervalSeconds != 300 {
			t.Errorf("default sync interval = %d", cfg.Sync.IntervalSeconds)
		}
	})

	t.Run("missing google calendar id", func(t *testing.T) {
		clearProviderEnv(t)

		if _, err := Load(); !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("caldav requires credentials", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("PROVIDER", "caldav")
		t.Setenv("CALDAV_URL", "https://cal.example.com")

		if _, err := Load(); !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}

		t.Setenv("CALDAV_USERNAME", "studio")
		t.Setenv("CALDAV_PASSWORD", "secret")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Provider.Type != ProviderCalDAV {
			t.Errorf("provider = %q", cfg.Provider.Type)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("PROVIDER", "exchange")

		if _, err := Load(); !errors.Is(err, ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("invalid business hours", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("GOOGLE_CALENDAR_ID", "primary")
		t.Setenv("BUSINESS_OPEN", "noon")

		if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("close before open", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("GOOGLE_CALENDAR_ID", "primary")
		t.Setenv("BUSINESS_OPEN", "22:00")
		t.Setenv("BUSINESS_CLOSE", "10:00")

		if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("invalid timezone", func(t *testing.T) {
		clearProviderEnv(t)
		t.Setenv("GOOGLE_CALENDAR_ID", "primary")
		t.Setenv("BUSINESS_TIMEZONE", "Mars/Olympus")

		if _, err := Load(); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"10:00", 600, false},
		{"22:30", 1350, false},
		{"00:00", 0, false},
		{"24:00", 1440, false},
		{"10", 0, true},
		{"25:00", 0, true},
		{"10:61", 0, true},
		{"ten:00", 0, true},
	}
	for _, tt := range tests {
		got, err := parseClock(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseClock(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseClock(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseDurations(t *testing.T) {
	t.Run("parses list", func(t *testing.T) {
		got, err := parseDurations("30, 60,90")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 3 || got[0] != 30 || got[2] != 90 {
			t.Errorf("parseDurations = %v", got)
		}
	})

	t.Run("rejects non-positive", func(t *testing.T) {
		if _, err := parseDurations("30,0"); err == nil {
			t.Error("expected error for zero duration")
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := parseDurations("thirty"); err == nil {
			t.Error("expected error for non-numeric duration")
		}
	})
}

func TestIsAllowedDuration(t *testing.T) {
	cfg := &Config{}
	cfg.Booking.AllowedDurations = []int{30, 60}

	if !cfg.IsAllowedDuration(60) {
		t.Error("60 should be allowed")
	}
	if cfg.IsAllowedDuration(45) {
		t.Error("45 should not be allowed")
	}
}
