package budget

import (
	"github.com/shopspring/decimal"

	"chantier/internal/core"
)

// TagTotal is one bucket of a tag breakdown.
type TagTotal struct {
	Tag    string
	Amount decimal.Decimal
}

// TagTotals is an ordered tag breakdown; order is first encounter.
type TagTotals []TagTotal

// Get returns the bucket amount for tag.
func (t TagTotals) Get(tag string) (decimal.Decimal, bool) {
	for _, tt := range t {
		if tt.Tag == tag {
			return tt.Amount, true
		}
	}
	return decimal.Zero, false
}

// Sum adds every bucket. With fan-out this can exceed the underlying total.
func (t TagTotals) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, tt := range t {
		total = total.Add(tt.Amount)
	}
	return total
}

// Max returns the largest bucket amount, zero when empty.
func (t TagTotals) Max() decimal.Decimal {
	largest := decimal.Zero
	for _, tt := range t {
		if tt.Amount.GreaterThan(largest) {
			largest = tt.Amount
		}
	}
	return largest
}

type tagAccumulator struct {
	index  map[string]int
	totals TagTotals
}

func newTagAccumulator() *tagAccumulator {
	return &tagAccumulator{index: make(map[string]int), totals: TagTotals{}}
}

func (a *tagAccumulator) add(tags []core.Tag, amount decimal.Decimal) {
	for _, tag := range tags {
		i, ok := a.index[tag.Name]
		if !ok {
			i = len(a.totals)
			a.index[tag.Name] = i
			a.totals = append(a.totals, TagTotal{Tag: tag.Name, Amount: decimal.Zero})
		}
		a.totals[i].Amount = a.totals[i].Amount.Add(amount)
	}
}

// ExpensesByTag credits each expense's full amount to every one of its tags.
func ExpensesByTag(s Snapshot) TagTotals {
	acc := newTagAccumulator()
	for _, e := range s.Expenses {
		acc.add(e.Tags, e.Amount)
	}
	return acc.totals
}

// QuotesByTag credits each accepted quote's full price to every one of its tags.
func QuotesByTag(s Snapshot) TagTotals {
	acc := newTagAccumulator()
	for _, q := range s.Quotes {
		if q.IsAccepted {
			acc.add(q.Tags, q.Price)
		}
	}
	return acc.totals
}
