// Package budget turns a ledger snapshot into the dashboard figures.
//
// Every function here is pure: it reads the snapshot, never mutates it,
// performs no I/O and never returns nil slices. Amounts are decimals and
// negative values propagate arithmetically without validation.
//
// Tag breakdowns fan out: a row carrying N tags adds its full amount to each
// of the N buckets. Bucket totals therefore measure exposure per category and
// may sum to more than the overall total. Do not split amounts across tags.
package budget

import (
	"github.com/shopspring/decimal"

	"chantier/internal/core"
)

var hundred = decimal.NewFromInt(100)

// Snapshot is the full hydrated ledger as read from the store.
type Snapshot struct {
	Payers   []core.Payer
	Tags     []core.Tag
	Quotes   []core.Quote
	Expenses []core.Expense
	Incomes  []core.Income
}

// Summary holds the scalar dashboard metrics and the tag breakdowns.
type Summary struct {
	TotalSpent            decimal.Decimal
	TotalIncome           decimal.Decimal
	TotalAcceptedQuotes   decimal.Decimal
	SpentOnAcceptedQuotes decimal.Decimal
	RemainingToPay        decimal.Decimal
	ExpensesOutsideQuotes decimal.Decimal
	NetBalance            decimal.Decimal
	ProjectedBalance      decimal.Decimal
	BudgetExecutionRate   decimal.Decimal
	TotalProjectCost      decimal.Decimal

	ExpensesByTag TagTotals
	QuotesByTag   TagTotals
}

// Compute derives every dashboard metric from s.
func Compute(s Snapshot) Summary {
	spent := TotalSpent(s)
	income := TotalIncome(s)
	accepted := TotalAcceptedQuotes(s)
	linked := SpentOnAcceptedQuotes(s)

	remaining := accepted.Sub(linked)
	unlinked := spent.Sub(linked)

	return Summary{
		TotalSpent:            spent,
		TotalIncome:           income,
		TotalAcceptedQuotes:   accepted,
		SpentOnAcceptedQuotes: linked,
		RemainingToPay:        remaining,
		ExpensesOutsideQuotes: unlinked,
		NetBalance:            income.Sub(spent),
		ProjectedBalance:      income.Sub(unlinked.Add(accepted)),
		BudgetExecutionRate:   ExecutionRate(linked, accepted),
		TotalProjectCost:      spent.Add(remaining),
		ExpensesByTag:         ExpensesByTag(s),
		QuotesByTag:           QuotesByTag(s),
	}
}

// TotalSpent sums every expense, linked or not.
func TotalSpent(s Snapshot) decimal.Decimal {
	total := decimal.Zero
	for _, e := range s.Expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// TotalIncome sums every income.
func TotalIncome(s Snapshot) decimal.Decimal {
	total := decimal.Zero
	for _, i := range s.Incomes {
		total = total.Add(i.Amount)
	}
	return total
}

// TotalAcceptedQuotes sums the price of accepted quotes.
func TotalAcceptedQuotes(s Snapshot) decimal.Decimal {
	total := decimal.Zero
	for _, q := range s.Quotes {
		if q.IsAccepted {
			total = total.Add(q.Price)
		}
	}
	return total
}

// SpentOnAcceptedQuotes sums every expense linked to a quote.
//
// The referenced quote's acceptance is not checked: an expense linked to a
// quote that was later un-accepted still counts here while the quote's price
// no longer counts in TotalAcceptedQuotes, which can drive RemainingToPay
// negative. This mirrors the established ledger semantics.
func SpentOnAcceptedQuotes(s Snapshot) decimal.Decimal {
	total := decimal.Zero
	for _, e := range s.Expenses {
		if e.QuoteID != nil {
			total = total.Add(e.Amount)
		}
	}
	return total
}

// ExecutionRate returns 100*spent/accepted, or zero when accepted is not positive.
func ExecutionRate(spent, accepted decimal.Decimal) decimal.Decimal {
	if !accepted.IsPositive() {
		return decimal.Zero
	}
	return spent.Mul(hundred).Div(accepted)
}
