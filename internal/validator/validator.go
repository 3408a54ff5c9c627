// Package validator checks booking-facing input before it reaches the
// event store: dates, durations, business-hours fit and customer contact
// details. Validation errors are sentinel-based so handlers can map them
// to client responses.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/studiobook/studiobook/internal/config"
)

var (
	ErrInvalidDate     = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidDuration = errors.New("duration not offered")
	ErrOutsideHours    = errors.New("outside business hours")
	ErrPastStart       = errors.New("start time is in the past")
	ErrMissingField    = errors.New("missing required field")
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrInvalidPhone    = errors.New("invalid phone number")
)

const dateLayout = "2006-01-02"

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9 ()/\-]{5,25}$`)
)

// Validator validates booking requests against the configured business
// rules.
type Validator struct {
	loc           *time.Location
	openMinutes   int
	closeMinutes  int
	bufferMinutes int
	allowed       []int
}

// New creates a validator from the booking configuration.
func New(booking config.BookingConfig) *Validator {
	return &Validator{
		loc:           booking.Timezone,
		openMinutes:   booking.OpenMinutes,
		closeMinutes:  booking.CloseMinutes,
		bufferMinutes: booking.BufferMinutes,
		allowed:       booking.AllowedDurations,
	}
}

// Date parses a YYYY-MM-DD date in the business timezone.
func (v *Validator) Date(value string) (time.Time, error) {
	date, err := time.ParseInLocation(dateLayout, strings.TrimSpace(value), v.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return date, nil
}

// Duration checks that the requested duration is one the business offers.
func (v *Validator) Duration(minutes int) error {
	for _, d := range v.allowed {
		if d == minutes {
			return nil
		}
	}
	return fmt.Errorf("%w: %d minutes", ErrInvalidDuration, minutes)
}

// BookingStart validates a concrete slot request: the booking plus its
// buffer must fit inside business hours, and the start must not be in the
// past.
func (v *Validator) BookingStart(start time.Time, durationMinutes int) error {
	if err := v.Duration(durationMinutes); err != nil {
		return err
	}
	if start.Before(time.Now()) {
		return ErrPastStart
	}

	local := start.In(v.loc)
	startMinutes := local.Hour()*60 + local.Minute()
	endMinutes := startMinutes + durationMinutes + v.bufferMinutes

	if startMinutes < v.openMinutes || endMinutes > v.closeMinutes {
		return fmt.Errorf("%w: %s for %d minutes", ErrOutsideHours,
			local.Format("15:04"), durationMinutes)
	}
	return nil
}

// Customer validates the customer contact block of a booking request.
// Name is required; email and phone are validated only when present, and
// at least one of them must be given.
func (v *Validator) Customer(name, email, phone string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: customer name", ErrMissingField)
	}
	if strings.TrimSpace(email) == "" && strings.TrimSpace(phone) == "" {
		return fmt.Errorf("%w: email or phone", ErrMissingField)
	}
	if email != "" && !emailRe.MatchString(email) {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	if phone != "" && !phoneRe.MatchString(phone) {
		return fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	return nil
}
