package export

import (
	"time"

	"github.com/shopspring/decimal"

	"chantier/internal/budget"
	"chantier/internal/services"
)

// SummaryRows lays out the metrics block: a header, one row per indicator,
// then the export timestamp.
func SummaryRows(data services.DashboardData, at time.Time) [][]interface{} {
	s := data.Summary
	rows := [][]interface{}{
		{"Indicateur", "Montant"},
		{"Total dépensé", num(s.TotalSpent)},
		{"Total revenus", num(s.TotalIncome)},
		{"Devis acceptés", num(s.TotalAcceptedQuotes)},
		{"Payé sur devis", num(s.SpentOnAcceptedQuotes)},
		{"Reste à payer", num(s.RemainingToPay)},
		{"Dépensé hors devis", num(s.ExpensesOutsideQuotes)},
		{"Solde", num(s.NetBalance)},
		{"Solde prévisionnel", num(s.ProjectedBalance)},
		{"Exécution budget (%)", num(s.BudgetExecutionRate.Round(1))},
		{"Coût total projet", num(s.TotalProjectCost)},
		{"Devis prévus", num(data.TotalPlanned)},
		{"Mis à jour", at.Format("2006-01-02 15:04:05")},
	}
	return rows
}

// TagRows lays out the per-tag table. Tags appear in expense first-encounter
// order, then tags only present on accepted quotes.
func TagRows(s budget.Summary) [][]interface{} {
	rows := [][]interface{}{{"Pôle", "Dépenses", "Devis acceptés"}}

	seen := make(map[string]bool)
	for _, t := range s.ExpensesByTag {
		seen[t.Tag] = true
		quoted, _ := s.QuotesByTag.Get(t.Tag)
		rows = append(rows, []interface{}{t.Tag, num(t.Amount), num(quoted)})
	}
	for _, t := range s.QuotesByTag {
		if seen[t.Tag] {
			continue
		}
		rows = append(rows, []interface{}{t.Tag, num(decimal.Zero), num(t.Amount)})
	}
	return rows
}

func num(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
