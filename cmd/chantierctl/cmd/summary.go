package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chantier/internal/budget"
	"chantier/internal/core"
	"chantier/internal/services"
	"chantier/internal/storage"
)

var outputFormat string

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the dashboard summary",
	Long: `Recompute the dashboard from the ledger and print it.

Example:
  chantierctl summary
  chantierctl summary --output yaml`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		repo := openRepo()
		defer repo.Close()

		ctx := context.Background()
		data, err := services.NewLedgerService(repo, nil, nil).Dashboard(ctx)
		exitOnError(err, "failed to load ledger")
		stats, err := repo.Stats(ctx)
		exitOnError(err, "failed to count rows")
		exitOnError(writeSummary(cmd.OutOrStdout(), outputFormat, newSummaryReport(data, stats, time.Now())), "failed to print summary")
	},
}

func init() {
	summaryCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "output format: text, json or yaml")
}

// summaryReport is the printable dashboard. Amounts are fixed two-decimal
// strings so JSON and YAML never go through floats.
type summaryReport struct {
	GeneratedAt           string          `json:"generated_at" yaml:"generated_at"`
	TotalSpent            string          `json:"total_spent" yaml:"total_spent"`
	TotalIncome           string          `json:"total_income" yaml:"total_income"`
	NetBalance            string          `json:"net_balance" yaml:"net_balance"`
	TotalAcceptedQuotes   string          `json:"total_accepted_quotes" yaml:"total_accepted_quotes"`
	SpentOnAcceptedQuotes string          `json:"spent_on_accepted_quotes" yaml:"spent_on_accepted_quotes"`
	RemainingToPay        string          `json:"remaining_to_pay" yaml:"remaining_to_pay"`
	ExpensesOutsideQuotes string          `json:"expenses_outside_quotes" yaml:"expenses_outside_quotes"`
	ProjectedBalance      string          `json:"projected_balance" yaml:"projected_balance"`
	TotalProjectCost      string          `json:"total_project_cost" yaml:"total_project_cost"`
	BudgetExecutionRate   string          `json:"budget_execution_rate" yaml:"budget_execution_rate"`
	TotalPlanned          string          `json:"total_planned" yaml:"total_planned"`
	ExpensesByTag         []tagAmount     `json:"expenses_by_tag" yaml:"expenses_by_tag"`
	QuotesByTag           []tagAmount     `json:"quotes_by_tag" yaml:"quotes_by_tag"`
	Remaining             []remainingLine `json:"remaining" yaml:"remaining"`
	Rows                  storage.Stats   `json:"rows" yaml:"rows"`
}

type tagAmount struct {
	Tag    string `json:"tag" yaml:"tag"`
	Amount string `json:"amount" yaml:"amount"`
}

type remainingLine struct {
	QuoteID   int64  `json:"quote_id" yaml:"quote_id"`
	Company   string `json:"company" yaml:"company"`
	Need      string `json:"need" yaml:"need"`
	Price     string `json:"price" yaml:"price"`
	Paid      string `json:"paid" yaml:"paid"`
	Remaining string `json:"remaining" yaml:"remaining"`
	Progress  string `json:"progress" yaml:"progress"`
}

func amount(d decimal.Decimal) string { return d.StringFixed(2) }

func tagAmounts(totals budget.TagTotals) []tagAmount {
	out := make([]tagAmount, 0, len(totals))
	for _, t := range totals {
		out = append(out, tagAmount{Tag: t.Tag, Amount: amount(t.Amount)})
	}
	return out
}

func newSummaryReport(data services.DashboardData, stats storage.Stats, at time.Time) summaryReport {
	s := data.Summary
	r := summaryReport{
		GeneratedAt:           at.Format(time.RFC3339),
		TotalSpent:            amount(s.TotalSpent),
		TotalIncome:           amount(s.TotalIncome),
		NetBalance:            amount(s.NetBalance),
		TotalAcceptedQuotes:   amount(s.TotalAcceptedQuotes),
		SpentOnAcceptedQuotes: amount(s.SpentOnAcceptedQuotes),
		RemainingToPay:        amount(s.RemainingToPay),
		ExpensesOutsideQuotes: amount(s.ExpensesOutsideQuotes),
		ProjectedBalance:      amount(s.ProjectedBalance),
		TotalProjectCost:      amount(s.TotalProjectCost),
		BudgetExecutionRate:   s.BudgetExecutionRate.StringFixed(1),
		TotalPlanned:          amount(data.TotalPlanned),
		ExpensesByTag:         tagAmounts(s.ExpensesByTag),
		QuotesByTag:           tagAmounts(s.QuotesByTag),
		Remaining:             make([]remainingLine, 0, len(data.Remaining)),
		Rows:                  stats,
	}
	for _, row := range data.Remaining {
		r.Remaining = append(r.Remaining, remainingLine{
			QuoteID:   row.Quote.ID,
			Company:   row.Quote.CompanyName(),
			Need:      row.Quote.Need,
			Price:     amount(row.Quote.Price),
			Paid:      amount(row.Paid),
			Remaining: amount(row.Remaining),
			Progress:  row.Progress.StringFixed(1),
		})
	}
	return r
}

func writeSummary(w io.Writer, format string, r summaryReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		return writeSummaryText(w, r)
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}

func writeSummaryText(w io.Writer, r summaryReport) error {
	euros := func(s string) string { return core.FormatEuros(decimal.RequireFromString(s)) }

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "=== Budget ===")
	for _, line := range []struct{ label, value string }{
		{"Total dépensé", euros(r.TotalSpent)},
		{"Total des apports", euros(r.TotalIncome)},
		{"Solde", euros(r.NetBalance)},
		{"Devis acceptés", euros(r.TotalAcceptedQuotes)},
		{"Payé sur devis", euros(r.SpentOnAcceptedQuotes)},
		{"Reste à payer", euros(r.RemainingToPay)},
		{"Dépenses hors devis", euros(r.ExpensesOutsideQuotes)},
		{"Solde projeté", euros(r.ProjectedBalance)},
		{"Coût total du projet", euros(r.TotalProjectCost)},
		{"Exécution du budget", r.BudgetExecutionRate + " %"},
		{"Devis en attente", euros(r.TotalPlanned)},
	} {
		fmt.Fprintf(tw, "%s\t%s\n", line.label, line.value)
	}

	if len(r.ExpensesByTag) > 0 {
		fmt.Fprintln(tw, "\n=== Dépenses par pôle ===")
		for _, t := range r.ExpensesByTag {
			fmt.Fprintf(tw, "%s\t%s\n", t.Tag, euros(t.Amount))
		}
	}
	if len(r.Remaining) > 0 {
		fmt.Fprintln(tw, "\n=== Reste à payer par devis ===")
		for _, row := range r.Remaining {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s %%\n", row.Company, row.Need, euros(row.Remaining), row.Progress)
		}
	}

	fmt.Fprintln(tw, "\n=== Lignes ===")
	for _, c := range []struct {
		label string
		n     int64
	}{
		{"Payeurs", r.Rows.Payers},
		{"Pôles", r.Rows.Tags},
		{"Devis", r.Rows.Quotes},
		{"Dépenses", r.Rows.Expenses},
		{"Apports", r.Rows.Incomes},
		{"Fichiers", r.Rows.QuoteFiles},
	} {
		fmt.Fprintf(tw, "%s\t%d\n", c.label, c.n)
	}
	return tw.Flush()
}
