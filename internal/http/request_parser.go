// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Form values are sanitized and converted into the core write inputs.

package http

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"chantier/internal/budget"
	"chantier/internal/core"
)

// sanitizeInput removes control characters except tab and newlines, and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// optionalText returns nil for a blank value.
func optionalText(s string) *string {
	s = sanitizeInput(s)
	if s == "" {
		return nil
	}
	return &s
}

// parseBool accepts the values HTML checkboxes and selects send.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "on", "true", "yes", "oui":
		return true
	}
	return false
}

// parseTagIDs reads the repeated "tags" field, skipping blanks and
// non-numeric values.
func parseTagIDs(form url.Values) []int64 {
	ids := []int64{}
	for _, v := range form["tags"] {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err == nil && id > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// parseOptionalID reads an optional positive id; blank means nil.
func parseOptionalID(s string) (*int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, core.ErrInvalidQuoteRef
	}
	return &id, nil
}

// pathID reads the {id} route parameter.
func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ParseFilter builds the per-request list filter from ?q= and ?tag=.
func ParseFilter(query url.Values) budget.Filter {
	f := budget.Filter{Search: sanitizeInput(query.Get("q"))}
	if id, err := strconv.ParseInt(strings.TrimSpace(query.Get("tag")), 10, 64); err == nil && id > 0 {
		f.TagID = id
	}
	return f
}

// ParseEditID reads the ?edit= row to render in edit mode; 0 means none.
func ParseEditID(query url.Values) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(query.Get("edit")), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}

// ParseQuoteForm converts a quote form into a validated input.
func ParseQuoteForm(form url.Values) (core.QuoteInput, error) {
	price, err := core.ParseAmount(form.Get("price"))
	if err != nil {
		return core.QuoteInput{}, err
	}
	date, err := core.ParseOptionalDate(form.Get("date"))
	if err != nil {
		return core.QuoteInput{}, err
	}

	in := core.QuoteInput{
		Company:     optionalText(form.Get("company")),
		Need:        sanitizeInput(form.Get("need")),
		Price:       price,
		IsEstimated: parseBool(form.Get("is_estimated")),
		IsAccepted:  parseBool(form.Get("is_accepted")),
		Date:        date,
		TagIDs:      parseTagIDs(form),
	}
	return in, in.Validate()
}

// ParseExpenseForm converts an expense form into an input. When payer_id is
// empty, newPayer carries the name of a payer to create on demand; the input
// is then validated by the caller once the payer id is known.
func ParseExpenseForm(form url.Values) (in core.ExpenseInput, newPayer string, err error) {
	amount, err := core.ParseAmount(form.Get("amount"))
	if err != nil {
		return core.ExpenseInput{}, "", err
	}
	date, err := core.ParseOptionalDate(form.Get("date"))
	if err != nil {
		return core.ExpenseInput{}, "", err
	}
	quoteID, err := parseOptionalID(form.Get("quote_id"))
	if err != nil {
		return core.ExpenseInput{}, "", err
	}
	payerID, newPayer, err := parsePayer(form)
	if err != nil {
		return core.ExpenseInput{}, "", err
	}

	in = core.ExpenseInput{
		PayerID: payerID,
		Amount:  amount,
		Purpose: sanitizeInput(form.Get("purpose")),
		Label:   optionalText(form.Get("label")),
		Date:    date,
		QuoteID: quoteID,
		TagIDs:  parseTagIDs(form),
	}
	return in, newPayer, nil
}

// ParseIncomeForm is ParseExpenseForm without the quote link.
func ParseIncomeForm(form url.Values) (in core.IncomeInput, newPayer string, err error) {
	amount, err := core.ParseAmount(form.Get("amount"))
	if err != nil {
		return core.IncomeInput{}, "", err
	}
	date, err := core.ParseOptionalDate(form.Get("date"))
	if err != nil {
		return core.IncomeInput{}, "", err
	}
	payerID, newPayer, err := parsePayer(form)
	if err != nil {
		return core.IncomeInput{}, "", err
	}

	in = core.IncomeInput{
		PayerID: payerID,
		Amount:  amount,
		Purpose: sanitizeInput(form.Get("purpose")),
		Label:   optionalText(form.Get("label")),
		Date:    date,
		TagIDs:  parseTagIDs(form),
	}
	return in, newPayer, nil
}

func parsePayer(form url.Values) (int64, string, error) {
	if name := sanitizeInput(form.Get("new_payer")); name != "" {
		return 0, name, core.ValidateName(name)
	}
	raw := strings.TrimSpace(form.Get("payer_id"))
	if raw == "" {
		return 0, "", core.ErrMissingPayer
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", core.ErrMissingPayer
	}
	return id, "", nil
}
