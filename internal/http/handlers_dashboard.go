package http

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"chantier/internal/budget"
	"chantier/internal/core"
	"chantier/internal/services"
)

// sliceColors gives every pie segment a fixed color so the legend stays stable.
var sliceColors = map[string]string{
	budget.SliceUnlinked:  "#f59e0b",
	budget.SlicePaid:      "#10b981",
	budget.SliceRemaining: "#3b82f6",
}

type legendRow struct {
	Label   string
	Amount  decimal.Decimal
	Percent decimal.Decimal
	Color   template.CSS
}

type tagBar struct {
	Tag    string
	Amount decimal.Decimal
	Width  decimal.Decimal
}

type dashboardView struct {
	Page
	Data        services.DashboardData
	Pie         template.CSS
	Legend      []legendRow
	ExpenseTags []tagBar
	QuoteTags   []tagBar
	Tags        []core.Tag
	Payers      []core.Payer
}

type plannedView struct {
	Page
	Quotes []core.Quote
	Total  decimal.Decimal
}

type remainingView struct {
	Page
	Rows   []budget.QuoteRemaining
	Total  decimal.Decimal
	Filter budget.Filter
	Tags   []core.Tag
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	data := services.NewDashboardData(snap)
	pie, legend := pieChart(data.Slices)

	s.render(w, r, http.StatusOK, "dashboard.html", dashboardView{
		Page:        Page{Title: "Tableau de bord", Active: "dashboard"},
		Data:        data,
		Pie:         pie,
		Legend:      legend,
		ExpenseTags: tagBars(data.Summary.ExpensesByTag),
		QuoteTags:   tagBars(data.Summary.QuotesByTag),
		Tags:        snap.Tags,
		Payers:      snap.Payers,
	})
}

func (s *Server) handlePlanned(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	planned := budget.PlannedQuotes(snap)
	s.render(w, r, http.StatusOK, "planned.html", plannedView{
		Page:   Page{Title: "Devis en attente", Active: "planned"},
		Quotes: planned,
		Total:  budget.TotalPrice(planned),
	})
}

func (s *Server) handleRemaining(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	filter := ParseFilter(r.URL.Query())
	rows := filter.Remaining(budget.RemainingByQuote(snap))
	s.render(w, r, http.StatusOK, "remaining.html", remainingView{
		Page:   Page{Title: "Reste à payer", Active: "remaining"},
		Rows:   rows,
		Total:  budget.TotalRemaining(rows),
		Filter: filter,
		Tags:   snap.Tags,
	})
}

// pieChart renders the slices as a conic-gradient. Only numbers and fixed
// colors reach the style, so it is safe to mark as CSS.
func pieChart(slices []budget.Slice) (template.CSS, []legendRow) {
	total := decimal.Zero
	for _, sl := range slices {
		total = total.Add(sl.Amount)
	}
	if !total.IsPositive() {
		return template.CSS("background: #e5e7eb"), []legendRow{}
	}

	legend := make([]legendRow, 0, len(slices))
	stops := make([]string, 0, len(slices))
	start := decimal.Zero
	for i, sl := range slices {
		share := sl.Amount.Div(total).Mul(decimal.NewFromInt(100))
		end := start.Add(share)
		if i == len(slices)-1 {
			end = decimal.NewFromInt(100)
		}
		color := sliceColors[sl.Label]
		if color == "" {
			color = "#9ca3af"
		}
		stops = append(stops, fmt.Sprintf("%s %s%% %s%%", color, start.StringFixed(2), end.StringFixed(2)))
		legend = append(legend, legendRow{Label: sl.Label, Amount: sl.Amount, Percent: share, Color: template.CSS(color)})
		start = end
	}
	return template.CSS("background: conic-gradient(" + strings.Join(stops, ", ") + ")"), legend
}

// tagBars scales each bucket against the largest one. Negative buckets get
// an empty bar.
func tagBars(totals budget.TagTotals) []tagBar {
	largest := totals.Max()
	bars := make([]tagBar, 0, len(totals))
	for _, t := range totals {
		width := decimal.Zero
		if largest.IsPositive() && t.Amount.IsPositive() {
			width = t.Amount.Div(largest).Mul(decimal.NewFromInt(100)).Round(1)
		}
		bars = append(bars, tagBar{Tag: t.Tag, Amount: t.Amount, Width: width})
	}
	return bars
}
