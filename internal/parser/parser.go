// Package parser extracts structured customer fields from the free-text
// descriptions of externally-created calendar events. The description
// format has changed several times over the years, so the parser is an
// ordered list of pattern matchers tried in sequence; text matching none
// of them yields an empty result, which is not an error.
package parser

import (
	"regexp"
	"strings"
)

// Result holds the fields extracted from an event description. Any or all
// fields may be empty.
type Result struct {
	FirstName string
	LastName  string
	Phone     string
}

// IsEmpty reports whether nothing was extracted.
func (r Result) IsEmpty() bool {
	return r.FirstName == "" && r.LastName == "" && r.Phone == ""
}

// matcher is one recognized description format.
type matcher struct {
	name    string
	extract func(text string) (Result, bool)
}

var (
	// "Name: John Smith" / "Phone: +49 170 1234567" labeled lines,
	// the current portal format. Tel/Telefon appear in older entries.
	labeledNameRe  = regexp.MustCompile(`(?im)^\s*name\s*:\s*(.+?)\s*$`)
	labeledPhoneRe = regexp.MustCompile(`(?im)^\s*(?:phone|tel(?:efon)?)\s*:\s*([+0-9][0-9 ()/\-.]{4,})\s*$`)

	// "Booking for John Smith - 0170 1234567" single-line format used by
	// the first widget release. The separator drifted between "-" and "–".
	bookingLineRe = regexp.MustCompile(`(?i)^\s*(?:booking|appointment)\s+for\s+(.+?)\s*[-–]\s*([+0-9][0-9 ()/\-.]{4,})\s*$`)

	// "John Smith 01701234567" bare name with a trailing phone number,
	// the oldest hand-entered format.
	trailingPhoneRe = regexp.MustCompile(`^\s*([\p{L}][\p{L}'.-]*(?:\s+[\p{L}][\p{L}'.-]*)+)\s+(\+?[0-9][0-9 /\-]{6,})\s*$`)
)

// matchers are tried in order; the first one that extracts anything wins.
// New formats are appended, never spliced, so old formats keep working.
var matchers = []matcher{
	{name: "labeled", extract: extractLabeled},
	{name: "booking_line", extract: extractBookingLine},
	{name: "trailing_phone", extract: extractTrailingPhone},
}

// Parse extracts customer fields from free text. It is pure and total:
// unrecognized input returns an empty Result, never an error.
func Parse(text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}
	}

	for _, m := range matchers {
		if result, ok := m.extract(text); ok && !result.IsEmpty() {
			return result
		}
	}

	return Result{}
}

func extractLabeled(text string) (Result, bool) {
	var result Result
	matched := false

	if m := labeledNameRe.FindStringSubmatch(text); m != nil {
		result.FirstName, result.LastName = splitName(m[1])
		matched = true
	}
	if m := labeledPhoneRe.FindStringSubmatch(text); m != nil {
		result.Phone = normalizePhone(m[1])
		matched = true
	}

	return result, matched
}

func extractBookingLine(text string) (Result, bool) {
	m := bookingLineRe.FindStringSubmatch(text)
	if m == nil {
		return Result{}, false
	}

	var result Result
	result.FirstName, result.LastName = splitName(m[1])
	result.Phone = normalizePhone(m[2])
	return result, true
}

func extractTrailingPhone(text string) (Result, bool) {
	m := trailingPhoneRe.FindStringSubmatch(text)
	if m == nil {
		return Result{}, false
	}

	var result Result
	result.FirstName, result.LastName = splitName(m[1])
	result.Phone = normalizePhone(m[2])
	return result, true
}

// splitName splits a display name into first and last name. A single
// token is treated as a first name only.
func splitName(name string) (first, last string) {
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// normalizePhone strips formatting noise but keeps a leading plus.
func normalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for i, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if b.Len() < 5 {
		return ""
	}
	return b.String()
}
