package budget

import (
	"sort"

	"github.com/shopspring/decimal"

	"chantier/internal/core"
)

// RemainingEpsilon absorbs rounding: quotes with at most this much left are paid.
var RemainingEpsilon = decimal.New(1, -2)

// QuoteRemaining is one row of the remaining-to-pay view.
type QuoteRemaining struct {
	Quote     core.Quote
	Paid      decimal.Decimal
	Remaining decimal.Decimal
	// Progress is Paid/Price in percent, clamped to [0, 100] for display.
	Progress decimal.Decimal
}

// RemainingByQuote lists accepted quotes that still have more than
// RemainingEpsilon to pay, largest remainder first. Paid only counts expenses
// linked to that specific quote.
func RemainingByQuote(s Snapshot) []QuoteRemaining {
	paid := make(map[int64]decimal.Decimal)
	for _, e := range s.Expenses {
		if e.QuoteID != nil {
			paid[*e.QuoteID] = paid[*e.QuoteID].Add(e.Amount)
		}
	}

	rows := []QuoteRemaining{}
	for _, q := range s.Quotes {
		if !q.IsAccepted {
			continue
		}
		p := paid[q.ID]
		remaining := q.Price.Sub(p)
		if remaining.LessThanOrEqual(RemainingEpsilon) {
			continue
		}
		rows = append(rows, QuoteRemaining{
			Quote:     q,
			Paid:      p,
			Remaining: remaining,
			Progress:  Progress(p, q.Price),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Remaining.GreaterThan(rows[j].Remaining)
	})
	return rows
}

// TotalRemaining sums the Remaining column of rows.
func TotalRemaining(rows []QuoteRemaining) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.Remaining)
	}
	return total
}

// Progress returns paid/price in percent clamped to [0, 100]; zero when price <= 0.
func Progress(paid, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	pct := paid.Mul(hundred).Div(price)
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// PlannedQuotes returns the quotes not yet accepted, most expensive first.
func PlannedQuotes(s Snapshot) []core.Quote {
	planned := []core.Quote{}
	for _, q := range s.Quotes {
		if !q.IsAccepted {
			planned = append(planned, q)
		}
	}
	sort.SliceStable(planned, func(i, j int) bool {
		return planned[i].Price.GreaterThan(planned[j].Price)
	})
	return planned
}

// AcceptedQuotes returns accepted quotes in snapshot order. The expense form
// offers only these for linking.
func AcceptedQuotes(s Snapshot) []core.Quote {
	accepted := []core.Quote{}
	for _, q := range s.Quotes {
		if q.IsAccepted {
			accepted = append(accepted, q)
		}
	}
	return accepted
}

// TotalPrice sums the price of quotes.
func TotalPrice(quotes []core.Quote) decimal.Decimal {
	total := decimal.Zero
	for _, q := range quotes {
		total = total.Add(q.Price)
	}
	return total
}

// Slice is one segment of the dashboard pie chart.
type Slice struct {
	Label  string
	Amount decimal.Decimal
}

// Chart labels.
const (
	SliceUnlinked  = "Dépensé hors devis"
	SlicePaid      = "Payé sur devis"
	SliceRemaining = "Reste à payer"
)

// ChartSlices splits the project cost for the pie chart. The remaining slice
// is clamped at zero and empty slices are dropped.
func ChartSlices(sum Summary) []Slice {
	remaining := sum.RemainingToPay
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	candidates := []Slice{
		{Label: SliceUnlinked, Amount: sum.ExpensesOutsideQuotes},
		{Label: SlicePaid, Amount: sum.SpentOnAcceptedQuotes},
		{Label: SliceRemaining, Amount: remaining},
	}
	slices := []Slice{}
	for _, c := range candidates {
		if c.Amount.IsPositive() {
			slices = append(slices, c)
		}
	}
	return slices
}
