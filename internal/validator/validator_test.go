package validator

import (
	"errors"
	"testing"
	"time"

	"github.com/studiobook/studiobook/internal/config"
)

func testValidator(t *testing.T) *Validator {
	t.Helper()

	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("failed to load timezone: %v", err)
	}
	return New(config.BookingConfig{
		Timezone:         loc,
		OpenMinutes:      10 * 60,
		CloseMinutes:     22 * 60,
		BufferMinutes:    15,
		SlotGridMinutes:  15,
		AllowedDurations: []int{30, 60, 90, 120},
	})
}

func TestDate(t *testing.T) {
	v := testValidator(t)

	t.Run("valid date", func(t *testing.T) {
		date, err := v.Date("2026-09-01")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if date.Year() != 2026 || date.Month() != time.September || date.Day() != 1 {
			t.Errorf("wrong date parsed: %v", date)
		}
		if date.Location().String() != "Europe/Berlin" {
			t.Errorf("date not anchored in business timezone: %v", date.Location())
		}
	})

	t.Run("rejects other layouts", func(t *testing.T) {
		for _, input := range []string{"01.09.2026", "2026/09/01", "2026-9-1", "tomorrow", ""} {
			if _, err := v.Date(input); !errors.Is(err, ErrInvalidDate) {
				t.Errorf("expected ErrInvalidDate for %q, got %v", input, err)
			}
		}
	})
}

func TestDuration(t *testing.T) {
	v := testValidator(t)

	for _, d := range []int{30, 60, 90, 120} {
		if err := v.Duration(d); err != nil {
			t.Errorf("offered duration %d rejected: %v", d, err)
		}
	}
	for _, d := range []int{0, 15, 45, 121, -60} {
		if err := v.Duration(d); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("expected ErrInvalidDuration for %d, got %v", d, err)
		}
	}
}

func TestBookingStart(t *testing.T) {
	v := testValidator(t)
	day := time.Now().In(v.loc).AddDate(0, 0, 7)
	at := func(hour, min int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, v.loc)
	}

	t.Run("fits inside business hours", func(t *testing.T) {
		if err := v.BookingStart(at(14, 0), 60); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("buffer must fit before close", func(t *testing.T) {
		// 21:00 + 60min + 15min buffer ends 22:15, past close.
		if err := v.BookingStart(at(21, 0), 60); !errors.Is(err, ErrOutsideHours) {
			t.Errorf("expected ErrOutsideHours, got %v", err)
		}
		// 20:45 + 60 + 15 ends exactly at close.
		if err := v.BookingStart(at(20, 45), 60); err != nil {
			t.Errorf("slot ending exactly at close rejected: %v", err)
		}
	})

	t.Run("before opening", func(t *testing.T) {
		if err := v.BookingStart(at(9, 30), 30); !errors.Is(err, ErrOutsideHours) {
			t.Errorf("expected ErrOutsideHours, got %v", err)
		}
	})

	t.Run("past start", func(t *testing.T) {
		past := time.Now().In(v.loc).Add(-24 * time.Hour)
		start := time.Date(past.Year(), past.Month(), past.Day(), 14, 0, 0, 0, v.loc)
		if err := v.BookingStart(start, 60); !errors.Is(err, ErrPastStart) {
			t.Errorf("expected ErrPastStart, got %v", err)
		}
	})

	t.Run("unoffered duration", func(t *testing.T) {
		if err := v.BookingStart(at(14, 0), 45); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("expected ErrInvalidDuration, got %v", err)
		}
	})
}

func TestCustomer(t *testing.T) {
	v := testValidator(t)

	t.Run("valid with phone only", func(t *testing.T) {
		if err := v.Customer("Anna Schmidt", "", "+49 151 2345678"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("valid with email only", func(t *testing.T) {
		if err := v.Customer("Anna Schmidt", "anna@example.com", ""); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("name required", func(t *testing.T) {
		if err := v.Customer("  ", "anna@example.com", ""); !errors.Is(err, ErrMissingField) {
			t.Errorf("expected ErrMissingField, got %v", err)
		}
	})

	t.Run("contact required", func(t *testing.T) {
		if err := v.Customer("Anna Schmidt", "", ""); !errors.Is(err, ErrMissingField) {
			t.Errorf("expected ErrMissingField, got %v", err)
		}
	})

	t.Run("bad email", func(t *testing.T) {
		if err := v.Customer("Anna Schmidt", "not-an-email", ""); !errors.Is(err, ErrInvalidEmail) {
			t.Errorf("expected ErrInvalidEmail, got %v", err)
		}
	})

	t.Run("bad phone", func(t *testing.T) {
		if err := v.Customer("Anna Schmidt", "", "abc"); !errors.Is(err, ErrInvalidPhone) {
			t.Errorf("expected ErrInvalidPhone, got %v", err)
		}
	})
}
