package budget

import (
	"strings"

	"chantier/internal/core"
)

// Filter is the per-request list filter: a case-insensitive search term and
// an optional tag id (zero means any tag).
type Filter struct {
	Search string
	TagID  int64
}

// Active reports whether the filter restricts anything.
func (f Filter) Active() bool {
	return strings.TrimSpace(f.Search) != "" || f.TagID != 0
}

func (f Filter) matches(tags []core.Tag, fields ...string) bool {
	if f.TagID != 0 && !core.HasTag(tags, f.TagID) {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(f.Search))
	if term == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// Quotes keeps quotes whose need or company matches.
func (f Filter) Quotes(quotes []core.Quote) []core.Quote {
	out := []core.Quote{}
	for _, q := range quotes {
		if f.matches(q.Tags, q.Need, q.CompanyName()) {
			out = append(out, q)
		}
	}
	return out
}

// Remaining keeps remaining-view rows whose quote matches.
func (f Filter) Remaining(rows []QuoteRemaining) []QuoteRemaining {
	out := []QuoteRemaining{}
	for _, r := range rows {
		if f.matches(r.Quote.Tags, r.Quote.Need, r.Quote.CompanyName()) {
			out = append(out, r)
		}
	}
	return out
}

// Expenses keeps expenses whose purpose, label or payer name matches.
func (f Filter) Expenses(expenses []core.Expense) []core.Expense {
	out := []core.Expense{}
	for _, e := range expenses {
		if f.matches(e.Tags, e.Purpose, e.LabelText(), e.PayerName) {
			out = append(out, e)
		}
	}
	return out
}

// Incomes keeps incomes whose purpose, label or payer name matches.
func (f Filter) Incomes(incomes []core.Income) []core.Income {
	out := []core.Income{}
	for _, i := range incomes {
		if f.matches(i.Tags, i.Purpose, i.LabelText(), i.PayerName) {
			out = append(out, i)
		}
	}
	return out
}
