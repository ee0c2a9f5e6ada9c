package http

import (
	"errors"
	"net/url"
	"testing"

	"github.com/shopspring/decimal"

	"chantier/internal/core"
)

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Cuisine  ", "Cuisine"},
		{"a\x00b\x07c", "abc"},
		{"ligne\nsuivante", "ligne\nsuivante"},
		{"tab\there", "tab\there"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeInput(tt.in); got != tt.want {
			t.Errorf("sanitizeInput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name   string
		query  url.Values
		search string
		tag    int64
		active bool
	}{
		{"empty", url.Values{}, "", 0, false},
		{"search only", url.Values{"q": {"  toit "}}, "toit", 0, true},
		{"tag only", url.Values{"tag": {"3"}}, "", 3, true},
		{"bad tag ignored", url.Values{"tag": {"abc"}}, "", 0, false},
		{"negative tag ignored", url.Values{"tag": {"-2"}}, "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := ParseFilter(tt.query)
			if f.Search != tt.search || f.TagID != tt.tag || f.Active() != tt.active {
				t.Errorf("ParseFilter = %+v (active %v)", f, f.Active())
			}
		})
	}
}

func TestParseQuoteForm(t *testing.T) {
	in, err := ParseQuoteForm(url.Values{
		"company":      {"  Toitures Martin "},
		"need":         {"Réfection toiture"},
		"price":        {"12 500,50"},
		"is_estimated": {"on"},
		"date":         {"2024-03-15"},
		"tags":         {"2", "", "x", "5"},
	})
	if err != nil {
		t.Fatalf("ParseQuoteForm: %v", err)
	}
	if in.Company == nil || *in.Company != "Toitures Martin" {
		t.Errorf("Company = %v", in.Company)
	}
	if !in.Price.Equal(decimal.RequireFromString("12500.50")) {
		t.Errorf("Price = %s", in.Price)
	}
	if !in.IsEstimated || in.IsAccepted {
		t.Errorf("flags = %v/%v", in.IsEstimated, in.IsAccepted)
	}
	if in.Date == nil || in.Date.Format(core.DateLayout) != "2024-03-15" {
		t.Errorf("Date = %v", in.Date)
	}
	if len(in.TagIDs) != 2 || in.TagIDs[0] != 2 || in.TagIDs[1] != 5 {
		t.Errorf("TagIDs = %v", in.TagIDs)
	}
}

func TestParseQuoteForm_Errors(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want error
	}{
		{"bad price", url.Values{"need": {"x"}, "price": {"abc"}}, core.ErrInvalidAmount},
		{"missing price", url.Values{"need": {"x"}}, core.ErrInvalidAmount},
		{"bad date", url.Values{"need": {"x"}, "price": {"1"}, "date": {"15/03/2024"}}, core.ErrInvalidDate},
		{"empty need", url.Values{"need": {"  "}, "price": {"1"}}, core.ErrEmptyNeed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseQuoteForm(tt.form); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseExpenseForm(t *testing.T) {
	in, newPayer, err := ParseExpenseForm(url.Values{
		"payer_id": {"4"},
		"amount":   {"99,9"},
		"purpose":  {"Acompte"},
		"label":    {""},
		"quote_id": {"7"},
		"tags":     {"1"},
	})
	if err != nil {
		t.Fatalf("ParseExpenseForm: %v", err)
	}
	if newPayer != "" || in.PayerID != 4 || in.QuoteID == nil || *in.QuoteID != 7 {
		t.Errorf("unexpected input: %+v, newPayer %q", in, newPayer)
	}
	if in.Label != nil || in.Date != nil {
		t.Errorf("blank label and date must be nil: %+v", in)
	}
	if !in.Amount.Equal(decimal.RequireFromString("99.90")) {
		t.Errorf("Amount = %s", in.Amount)
	}
	if err := in.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	in, newPayer, err = ParseExpenseForm(url.Values{
		"new_payer": {" Anna "},
		"amount":    {"10"},
		"purpose":   {"Peinture"},
		"quote_id":  {""},
	})
	if err != nil || newPayer != "Anna" || in.PayerID != 0 || in.QuoteID != nil {
		t.Fatalf("new payer form: %+v %q %v", in, newPayer, err)
	}
}

func TestParseExpenseForm_Errors(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want error
	}{
		{"missing payer", url.Values{"amount": {"1"}, "purpose": {"x"}}, core.ErrMissingPayer},
		{"bad payer", url.Values{"payer_id": {"zero"}, "amount": {"1"}, "purpose": {"x"}}, core.ErrMissingPayer},
		{"bad quote", url.Values{"payer_id": {"1"}, "amount": {"1"}, "purpose": {"x"}, "quote_id": {"-1"}}, core.ErrInvalidQuoteRef},
		{"bad amount", url.Values{"payer_id": {"1"}, "amount": {"1,2,3"}, "purpose": {"x"}}, core.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseExpenseForm(tt.form); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseIncomeForm(t *testing.T) {
	in, _, err := ParseIncomeForm(url.Values{
		"payer_id": {"2"},
		"amount":   {"-50"},
		"purpose":  {"Remboursement"},
		"date":     {"2024-01-02"},
	})
	if err != nil {
		t.Fatalf("ParseIncomeForm: %v", err)
	}
	if !in.Amount.Equal(decimal.NewFromInt(-50)) {
		t.Errorf("negative amounts must round-trip, got %s", in.Amount)
	}
	if err := in.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "on", "TRUE", "oui"} {
		if !parseBool(v) {
			t.Errorf("parseBool(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "off", "false", "non"} {
		if parseBool(v) {
			t.Errorf("parseBool(%q) = true", v)
		}
	}
}

func TestParseEditID(t *testing.T) {
	if got := ParseEditID(url.Values{"edit": {"12"}}); got != 12 {
		t.Errorf("ParseEditID = %d", got)
	}
	if got := ParseEditID(url.Values{"edit": {"x"}}); got != 0 {
		t.Errorf("ParseEditID = %d", got)
	}
}
