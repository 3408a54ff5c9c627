package parser

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Result
	}{
		{
			name: "labeled format",
			text: "Name: Anna Schmidt\nPhone: +49 151 2345678",
			want: Result{FirstName: "Anna", LastName: "Schmidt", Phone: "+491512345678"},
		},
		{
			name: "labeled with telefon",
			text: "Name: Anna Schmidt\nTelefon: 0151/234 56 78",
			want: Result{FirstName: "Anna", LastName: "Schmidt", Phone: "01512345678"},
		},
		{
			name: "labeled name only",
			text: "Name: Anna Schmidt\nSome other note",
			want: Result{FirstName: "Anna", LastName: "Schmidt"},
		},
		{
			name: "labeled case insensitive amid other lines",
			text: "Confirmed by staff\nNAME: Peter Maier\nroom 2\ntel: 0170-1234567",
			want: Result{FirstName: "Peter", LastName: "Maier", Phone: "01701234567"},
		},
		{
			name: "booking line format",
			text: "Booking for John Smith - 0170 1234567",
			want: Result{FirstName: "John", LastName: "Smith", Phone: "01701234567"},
		},
		{
			name: "appointment with en dash",
			text: "Appointment for Marie Curie – +33 1 23 45 67 89",
			want: Result{FirstName: "Marie", LastName: "Curie", Phone: "+33123456789"},
		},
		{
			name: "trailing phone format",
			text: "John Smith 01701234567",
			want: Result{FirstName: "John", LastName: "Smith", Phone: "01701234567"},
		},
		{
			name: "trailing phone with plus",
			text: "Anna Müller-Lüdenscheidt +49 151 234 5678",
			want: Result{FirstName: "Anna", LastName: "Müller-Lüdenscheidt", Phone: "+491512345678"},
		},
		{
			name: "three-part name",
			text: "Name: Juan Carlos Reyes",
			want: Result{FirstName: "Juan", LastName: "Carlos Reyes"},
		},
		{
			name: "single name",
			text: "Name: Anna",
			want: Result{FirstName: "Anna"},
		},
		{
			name: "unrecognized text",
			text: "Band rehearsal, bring own cables",
			want: Result{},
		},
		{
			name: "empty text",
			text: "",
			want: Result{},
		},
		{
			name: "whitespace only",
			text: "  \n\t ",
			want: Result{},
		},
		{
			name: "bare number is not a customer",
			text: "Room 20571",
			want: Result{},
		},
		{
			name: "labeled wins over trailing phone",
			text: "Name: Anna Schmidt\nPhone: 0151 2345678\nJohn Smith 0170 999",
			want: Result{FirstName: "Anna", LastName: "Schmidt", Phone: "01512345678"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text)
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+49 151 2345678", "+491512345678"},
		{"0151/234-56.78", "01512345678"},
		{"(030) 1234567", "0301234567"},
		{"12 34", ""}, // too short after stripping
		{"49+151", "49151"},
	}
	for _, tt := range tests {
		if got := normalizePhone(tt.in); got != tt.want {
			t.Errorf("normalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSplitName(t *testing.T) {
	first, last := splitName("  Anna   Maria  Schmidt ")
	if first != "Anna" || last != "Maria Schmidt" {
		t.Errorf("splitName = %q/%q", first, last)
	}
}
