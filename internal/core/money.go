// Package core provides money and date parsing utilities.
//
// This file contains functions for parsing monetary amounts and dates from
// form strings and formatting amounts for display.
package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the form and storage layout for calendar dates.
const DateLayout = "2006-01-02"

// maxAmountDigits bounds the digits of a parsed amount, sign and separator
// excluded.
const maxAmountDigits = 18

// ParseAmount converts a decimal string to an amount rounded to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, ignores
// spaces used as thousands separators, and when both separators appear the
// last one is the decimal separator ("1.234,56" and "1,234.56" both parse).
// Negative values are allowed (refunds); validation of sign belongs to callers.
// Exponent notation and amounts over maxAmountDigits digits are rejected.
//
// Examples:
//
//	ParseAmount("12.34")    -> 12.34
//	ParseAmount("12,345")   -> 12.35 (half away from zero)
//	ParseAmount("1 234,5")  -> 1234.50
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if s == "" || strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0 && lastComma > lastDot:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case lastDot >= 0 && lastComma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	default:
		s = strings.ReplaceAll(s, ",", ".")
	}
	if strings.Count(s, ".") > 1 || countDigits(s) > maxAmountDigits {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// ParseOptionalDate parses a YYYY-MM-DD date. An empty string yields nil.
func ParseOptionalDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, ErrInvalidDate
	}
	return &t, nil
}

// FormatEuros formats an amount as a Euro string (e.g., "€1.234,56").
func FormatEuros(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	out := "€" + b.String() + "," + frac
	if neg {
		return "-" + out
	}
	return out
}

// FormatDate renders an optional date for display; nil renders as "".
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("02/01/2006")
}
