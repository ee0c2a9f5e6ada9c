package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"chantier/internal/budget"
	"chantier/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func mustPayer(t *testing.T, repo *SQLiteRepository, name string) core.Payer {
	t.Helper()
	p, err := repo.CreatePayer(context.Background(), name)
	if err != nil {
		t.Fatalf("CreatePayer(%q): %v", name, err)
	}
	return p
}

func mustTag(t *testing.T, repo *SQLiteRepository, name string) core.Tag {
	t.Helper()
	tag, err := repo.CreateTag(context.Background(), name)
	if err != nil {
		t.Fatalf("CreateTag(%q): %v", name, err)
	}
	return tag
}

func TestPayersAndTags_UniqueNames(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	mustPayer(t, repo, "Alice")
	if _, err := repo.CreatePayer(ctx, "Alice"); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate payer: got %v, want ErrConflict", err)
	}

	mustTag(t, repo, "Cuisine")
	if _, err := repo.CreateTag(ctx, " Cuisine "); !errors.Is(err, core.ErrConflict) {
		t.Fatalf("duplicate tag: got %v, want ErrConflict", err)
	}
	if _, err := repo.CreateTag(ctx, "  "); !errors.Is(err, core.ErrEmptyName) {
		t.Fatalf("blank tag: got %v, want ErrEmptyName", err)
	}
}

func TestNewPayer_CreatedWithRowOrNotAtAll(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := mustPayer(t, repo, "Alice")
	missingQuote := int64(99)

	if _, err := repo.CreateExpense(ctx, core.ExpenseInput{
		NewPayer: "Lou", Amount: amount("5"), Purpose: "x", QuoteID: &missingQuote,
	}); !errors.Is(err, core.ErrUnknownReference) {
		t.Fatalf("unknown quote: got %v, want ErrUnknownReference", err)
	}
	if _, err := repo.CreateIncome(ctx, core.IncomeInput{
		NewPayer: "Lou", Amount: amount("5"), Purpose: "x", TagIDs: []int64{99},
	}); !errors.Is(err, core.ErrUnknownReference) {
		t.Fatalf("unknown tag: got %v, want ErrUnknownReference", err)
	}
	if err := repo.UpdateIncome(ctx, 42, core.IncomeInput{NewPayer: "Lou", Amount: amount("5"), Purpose: "x"}); err != nil {
		t.Fatalf("update of a missing income: %v", err)
	}
	if payers, _ := repo.ListPayers(ctx); len(payers) != 1 {
		t.Fatalf("payers = %+v, want only Alice", payers)
	}

	id, err := repo.CreateExpense(ctx, core.ExpenseInput{NewPayer: " Lou ", Amount: amount("5"), Purpose: "x"})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if _, err := repo.CreateIncome(ctx, core.IncomeInput{NewPayer: "Alice", Amount: amount("5"), Purpose: "x"}); err != nil {
		t.Fatalf("CreateIncome with an existing name: %v", err)
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(snap.Payers) != 2 {
		t.Fatalf("payers = %+v, want Alice and Lou", snap.Payers)
	}
	if snap.Expenses[0].ID != id || snap.Expenses[0].PayerName != "Lou" {
		t.Errorf("expense = %+v", snap.Expenses[0])
	}
	if snap.Incomes[0].PayerID != alice.ID {
		t.Errorf("income payer = %d, want existing Alice %d", snap.Incomes[0].PayerID, alice.ID)
	}
}

func TestQuote_CreateUpdateReplacesTags(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	roof := mustTag(t, repo, "Toit")
	kitchen := mustTag(t, repo, "Cuisine")
	paint := mustTag(t, repo, "Peinture")

	company := "Toitures Martin"
	date := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	id, err := repo.CreateQuote(ctx, core.QuoteInput{
		Company: &company,
		Need:    "Réfection toiture",
		Price:   amount("12500.50"),
		Date:    &date,
		TagIDs:  []int64{roof.ID, kitchen.ID, roof.ID},
	})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}

	q, err := repo.GetQuote(ctx, id)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if !q.Price.Equal(amount("12500.50")) || q.CompanyName() != company || q.IsAccepted {
		t.Fatalf("unexpected quote: %+v", q)
	}
	if q.Date == nil || !q.Date.Equal(date) {
		t.Fatalf("date not round-tripped: %v", q.Date)
	}
	if got := core.TagNames(q.Tags); len(got) != 2 || got[0] != "Toit" || got[1] != "Cuisine" {
		t.Fatalf("tags = %v", got)
	}

	err = repo.UpdateQuote(ctx, id, core.QuoteInput{
		Need:       "Réfection toiture complète",
		Price:      amount("13000"),
		IsAccepted: true,
		TagIDs:     []int64{paint.ID},
	})
	if err != nil {
		t.Fatalf("UpdateQuote: %v", err)
	}
	q, _ = repo.GetQuote(ctx, id)
	if q.Company != nil || q.Date != nil || !q.IsAccepted {
		t.Fatalf("fields not replaced: %+v", q)
	}
	if got := core.TagNames(q.Tags); len(got) != 1 || got[0] != "Peinture" {
		t.Fatalf("tags not replaced: %v", got)
	}
}

func TestQuote_UpdateWithUnknownTagRollsBack(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	roof := mustTag(t, repo, "Toit")

	id, err := repo.CreateQuote(ctx, core.QuoteInput{Need: "Toiture", Price: amount("100"), TagIDs: []int64{roof.ID}})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}

	err = repo.UpdateQuote(ctx, id, core.QuoteInput{Need: "Autre", Price: amount("200"), TagIDs: []int64{999}})
	if !errors.Is(err, core.ErrUnknownReference) {
		t.Fatalf("got %v, want ErrUnknownReference", err)
	}

	q, _ := repo.GetQuote(ctx, id)
	if q.Need != "Toiture" || !q.Price.Equal(amount("100")) || len(q.Tags) != 1 {
		t.Fatalf("failed update must leave the quote untouched: %+v", q)
	}
}

func TestUpdateAndDelete_MissingIDIsNoop(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := mustPayer(t, repo, "Alice")

	if err := repo.UpdateQuote(ctx, 42, core.QuoteInput{Need: "x", Price: amount("1")}); err != nil {
		t.Fatalf("UpdateQuote missing: %v", err)
	}
	if err := repo.SetQuoteAccepted(ctx, 42, true); err != nil {
		t.Fatalf("SetQuoteAccepted missing: %v", err)
	}
	if err := repo.DeleteQuote(ctx, 42); err != nil {
		t.Fatalf("DeleteQuote missing: %v", err)
	}
	in := core.ExpenseInput{PayerID: alice.ID, Amount: amount("1"), Purpose: "x"}
	if err := repo.UpdateExpense(ctx, 42, in); err != nil {
		t.Fatalf("UpdateExpense missing: %v", err)
	}
	if err := repo.DeleteIncome(ctx, 42); err != nil {
		t.Fatalf("DeleteIncome missing: %v", err)
	}
	if err := repo.DeleteTag(ctx, 42); err != nil {
		t.Fatalf("DeleteTag missing: %v", err)
	}
}

func TestDeleteTag_KeepsParents(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := mustPayer(t, repo, "Alice")
	roof := mustTag(t, repo, "Toit")
	kitchen := mustTag(t, repo, "Cuisine")

	if _, err := repo.CreateQuote(ctx, core.QuoteInput{Need: "Toiture", Price: amount("1000"), TagIDs: []int64{roof.ID}}); err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if _, err := repo.CreateExpense(ctx, core.ExpenseInput{
		PayerID: alice.ID, Amount: amount("50"), Purpose: "Tuiles", TagIDs: []int64{roof.ID, kitchen.ID},
	}); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if _, err := repo.CreateIncome(ctx, core.IncomeInput{
		PayerID: alice.ID, Amount: amount("500"), Purpose: "Prêt", TagIDs: []int64{roof.ID},
	}); err != nil {
		t.Fatalf("CreateIncome: %v", err)
	}

	if err := repo.DeleteTag(ctx, roof.ID); err != nil {
		t.Fatalf("DeleteTag: %v", err)
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(snap.Quotes) != 1 || len(snap.Expenses) != 1 || len(snap.Incomes) != 1 {
		t.Fatalf("parents must survive tag deletion: %d quotes, %d expenses, %d incomes",
			len(snap.Quotes), len(snap.Expenses), len(snap.Incomes))
	}
	if len(snap.Quotes[0].Tags) != 0 || len(snap.Incomes[0].Tags) != 0 {
		t.Fatal("deleted tag still associated")
	}
	if got := core.TagNames(snap.Expenses[0].Tags); len(got) != 1 || got[0] != "Cuisine" {
		t.Fatalf("expense tags = %v", got)
	}
	if len(snap.Tags) != 1 {
		t.Fatalf("tags = %+v", snap.Tags)
	}
}

func TestDeleteQuote_UnlinksExpenses(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := mustPayer(t, repo, "Alice")

	quoteID, err := repo.CreateQuote(ctx, core.QuoteInput{Need: "Toiture", Price: amount("1000"), IsAccepted: true})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if _, err := repo.CreateQuoteFile(ctx, core.QuoteFile{
		QuoteID: quoteID, Name: "devis.pdf", StoragePath: "1-devis.pdf", MimeType: "application/pdf", Size: 3,
	}); err != nil {
		t.Fatalf("CreateQuoteFile: %v", err)
	}
	if _, err := repo.CreateExpense(ctx, core.ExpenseInput{
		PayerID: alice.ID, Amount: amount("400"), Purpose: "Acompte", QuoteID: &quoteID,
	}); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}

	snap, _ := repo.LoadSnapshot(ctx)
	if !snap.Expenses[0].IsLinked() || snap.Expenses[0].QuoteNeed != "Toiture" {
		t.Fatalf("expense not linked: %+v", snap.Expenses[0])
	}
	if len(snap.Quotes[0].Files) != 1 {
		t.Fatalf("quote files not hydrated: %+v", snap.Quotes[0].Files)
	}

	if err := repo.DeleteQuote(ctx, quoteID); err != nil {
		t.Fatalf("DeleteQuote: %v", err)
	}

	snap, _ = repo.LoadSnapshot(ctx)
	if len(snap.Expenses) != 1 || snap.Expenses[0].IsLinked() {
		t.Fatalf("expense must survive unlinked: %+v", snap.Expenses)
	}
	if _, err := repo.GetQuoteFileByStoragePath(ctx, "1-devis.pdf"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("file record must cascade, got %v", err)
	}

	sum := budget.Compute(snap)
	if !sum.ExpensesOutsideQuotes.Equal(amount("400")) || !sum.SpentOnAcceptedQuotes.IsZero() {
		t.Fatalf("unexpected summary after unlink: %+v", sum)
	}
}

func TestCreateExpense_UnknownReferences(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := mustPayer(t, repo, "Alice")
	missingQuote := int64(77)

	cases := []struct {
		name string
		in   core.ExpenseInput
	}{
		{"unknown payer", core.ExpenseInput{PayerID: 99, Amount: amount("1"), Purpose: "x"}},
		{"unknown quote", core.ExpenseInput{PayerID: alice.ID, Amount: amount("1"), Purpose: "x", QuoteID: &missingQuote}},
		{"unknown tag", core.ExpenseInput{PayerID: alice.ID, Amount: amount("1"), Purpose: "x", TagIDs: []int64{5}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := repo.CreateExpense(ctx, tc.in)
			if !errors.Is(err, core.ErrUnknownReference) {
				t.Fatalf("got %v, want ErrUnknownReference", err)
			}
		})
	}

	snap, _ := repo.LoadSnapshot(ctx)
	if len(snap.Expenses) != 0 {
		t.Fatalf("failed inserts must roll back, got %d expenses", len(snap.Expenses))
	}
}

func TestLoadSnapshot_ScenarioSummary(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := mustPayer(t, repo, "Alice")
	bob := mustPayer(t, repo, "Bob")

	accepted, _ := repo.CreateQuote(ctx, core.QuoteInput{Need: "Cuisine", Price: amount("1000"), IsAccepted: true})
	if _, err := repo.CreateQuote(ctx, core.QuoteInput{Need: "Salle de bain", Price: amount("800")}); err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}
	if _, err := repo.CreateExpense(ctx, core.ExpenseInput{PayerID: alice.ID, Amount: amount("300"), Purpose: "Acompte", QuoteID: &accepted}); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if _, err := repo.CreateExpense(ctx, core.ExpenseInput{PayerID: bob.ID, Amount: amount("50.25"), Purpose: "Vis"}); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if _, err := repo.CreateIncome(ctx, core.IncomeInput{PayerID: bob.ID, Amount: amount("2000"), Purpose: "Épargne"}); err != nil {
		t.Fatalf("CreateIncome: %v", err)
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	sum := budget.Compute(snap)

	checks := []struct {
		name      string
		got, want decimal.Decimal
	}{
		{"TotalSpent", sum.TotalSpent, amount("350.25")},
		{"TotalAcceptedQuotes", sum.TotalAcceptedQuotes, amount("1000")},
		{"RemainingToPay", sum.RemainingToPay, amount("700")},
		{"ExpensesOutsideQuotes", sum.ExpensesOutsideQuotes, amount("50.25")},
		{"NetBalance", sum.NetBalance, amount("1649.75")},
		{"BudgetExecutionRate", sum.BudgetExecutionRate, amount("30")},
	}
	for _, c := range checks {
		if !c.got.Equal(c.want) {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if len(budget.PlannedQuotes(snap)) != 1 {
		t.Fatal("expected one planned quote")
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Payers != 2 || stats.Quotes != 2 || stats.Expenses != 2 || stats.Incomes != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestListExpenses_OrderByDate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	alice := mustPayer(t, repo, "Alice")

	older := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	for _, in := range []core.ExpenseInput{
		{PayerID: alice.ID, Amount: amount("1"), Purpose: "undated"},
		{PayerID: alice.ID, Amount: amount("2"), Purpose: "older", Date: &older},
		{PayerID: alice.ID, Amount: amount("3"), Purpose: "newer", Date: &newer},
	} {
		if _, err := repo.CreateExpense(ctx, in); err != nil {
			t.Fatalf("CreateExpense: %v", err)
		}
	}

	expenses, err := repo.ListExpenses(ctx)
	if err != nil {
		t.Fatalf("ListExpenses: %v", err)
	}
	want := []string{"newer", "older", "undated"}
	for i, e := range expenses {
		if e.Purpose != want[i] {
			t.Fatalf("position %d = %q, want %q", i, e.Purpose, want[i])
		}
	}
}

func TestListQuotes_OrderByDate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	older := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	// Created newest-dated first so creation order alone would give the wrong answer.
	for _, in := range []core.QuoteInput{
		{Need: "newer", Price: amount("1"), Date: &newer},
		{Need: "undated", Price: amount("2")},
		{Need: "older", Price: amount("3"), Date: &older},
	} {
		if _, err := repo.CreateQuote(ctx, in); err != nil {
			t.Fatalf("CreateQuote: %v", err)
		}
	}

	quotes, err := repo.ListQuotes(ctx)
	if err != nil {
		t.Fatalf("ListQuotes: %v", err)
	}
	want := []string{"newer", "older", "undated"}
	if len(quotes) != len(want) {
		t.Fatalf("got %d quotes, want %d", len(quotes), len(want))
	}
	for i, q := range quotes {
		if q.Need != want[i] {
			t.Fatalf("position %d = %q, want %q", i, q.Need, want[i])
		}
	}
}

func TestWrites_LogAmountAndTags(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx := context.Background()
	repo := newTestRepo(t)
	alice := mustPayer(t, repo, "Alice")
	roof := mustTag(t, repo, "Toiture")

	id, err := repo.CreateExpense(ctx, core.ExpenseInput{
		PayerID: alice.ID, Amount: amount("250"), Purpose: "Tuiles", TagIDs: []int64{roof.ID},
	})
	if err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if err := repo.UpdateExpense(ctx, id, core.ExpenseInput{
		PayerID: alice.ID, Amount: amount("300"), Purpose: "Tuiles",
	}); err != nil {
		t.Fatalf("UpdateExpense: %v", err)
	}

	want := map[string]string{"Expense created": "250", "Expense updated": "300"}
	for _, line := range bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n")) {
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			t.Fatalf("log line is not JSON: %s", line)
		}
		msg, _ := rec["msg"].(string)
		amt, ok := want[msg]
		if !ok {
			continue
		}
		delete(want, msg)
		if rec["amount"] != amt {
			t.Errorf("%s: amount = %v, want %s", msg, rec["amount"], amt)
		}
		if _, ok := rec["tags"]; !ok {
			t.Errorf("%s: tags missing: %v", msg, rec)
		}
	}
	if len(want) != 0 {
		t.Errorf("missing log lines: %v", want)
	}
}

func TestSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	version, dirty, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("version = %d dirty = %v", version, dirty)
	}
}
