package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"12,345", "12.35", true}, // rounds half away from zero
		{" 2.50 ", "2.5", true},
		{"1 234,56", "1234.56", true},
		{"1.234,56", "1234.56", true},
		{"1,234.56", "1234.56", true},
		{"-40", "-40", true},
		{"0", "0", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
		{"1e400", "", false},
		{"1E3", "", false},
		{"1e10000000", "", false},
		{"2,5e-3", "", false},
		{"123456789012345678", "123456789012345678", true},
		{"1234567890123456789", "", false},
		{"0." + strings.Repeat("0", 40) + "1", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			want := decimal.RequireFromString(tc.out)
			if err != nil || !got.Equal(want) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, want, got, err)
			}
		} else if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
	}
}

func TestParseOptionalDate(t *testing.T) {
	d, err := ParseOptionalDate("")
	if err != nil || d != nil {
		t.Fatalf("empty date should be nil, got %v (err=%v)", d, err)
	}

	d, err = ParseOptionalDate("2024-03-09")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2024 || d.Month() != 3 || d.Day() != 9 {
		t.Fatalf("unexpected date %v", d)
	}

	if _, err := ParseOptionalDate("09/03/2024"); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func TestFormatEuros(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "€0,00"},
		{"12.34", "€12,34"},
		{"1234.5", "€1.234,50"},
		{"1234567.891", "€1.234.567,89"},
		{"-600", "-€600,00"},
	}
	for _, tc := range cases {
		if got := FormatEuros(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Errorf("FormatEuros(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
