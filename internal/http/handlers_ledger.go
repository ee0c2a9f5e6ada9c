package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"chantier/internal/amqp"
	"chantier/internal/budget"
	"chantier/internal/core"
	applog "chantier/internal/log"
)

type expensesView struct {
	Page
	Expenses []core.Expense
	Payers   []core.Payer
	Tags     []core.Tag
	Quotes   []core.Quote
	Filter   budget.Filter
	EditID   int64
	Total    decimal.Decimal
}

type incomesView struct {
	Page
	Incomes []core.Income
	Payers  []core.Payer
	Tags    []core.Tag
	Filter  budget.Filter
	EditID  int64
	Total   decimal.Decimal
}

func (s *Server) handleExpenses(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := ParseFilter(query)
	expenses := filter.Expenses(snap.Expenses)
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	s.render(w, r, http.StatusOK, "expenses.html", expensesView{
		Page:     Page{Title: "Dépenses", Active: "expenses"},
		Expenses: expenses,
		Payers:   snap.Payers,
		Tags:     snap.Tags,
		Quotes:   budget.AcceptedQuotes(snap),
		Filter:   filter,
		EditID:   ParseEditID(query),
		Total:    total,
	})
}

func (s *Server) handleIncomes(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := ParseFilter(query)
	incomes := filter.Incomes(snap.Incomes)
	total := decimal.Zero
	for _, i := range incomes {
		total = total.Add(i.Amount)
	}
	s.render(w, r, http.StatusOK, "incomes.html", incomesView{
		Page:    Page{Title: "Apports", Active: "incomes"},
		Incomes: incomes,
		Payers:  snap.Payers,
		Tags:    snap.Tags,
		Filter:  filter,
		EditID:  ParseEditID(query),
		Total:   total,
	})
}

// parseExpense reads the form. A typed payer name is created by the store in
// the same transaction as the row, so a rejected row leaves no payer behind.
func (s *Server) parseExpense(r *http.Request) (core.ExpenseInput, error) {
	in, newPayer, err := ParseExpenseForm(r.PostForm)
	in.NewPayer = newPayer
	return in, err
}

func (s *Server) parseIncome(r *http.Request) (core.IncomeInput, error) {
	in, newPayer, err := ParseIncomeForm(r.PostForm)
	in.NewPayer = newPayer
	return in, err
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrFail(w, r) {
		return
	}
	in, err := s.parseExpense(r)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	id, err := s.ledger.CreateExpense(r.Context(), in)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	s.done(w, r, "/expenses", amqp.EntityExpense, amqp.OpCreate, id, "Dépense enregistrée")
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError("Dépense introuvable").Write(w)
		return
	}
	if !parseFormOrFail(w, r) {
		return
	}
	in, err := s.parseExpense(r)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	if err := s.ledger.UpdateExpense(r.Context(), id, in); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	s.done(w, r, "/expenses", amqp.EntityExpense, amqp.OpUpdate, id, "Dépense mise à jour")
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError("Dépense introuvable").Write(w)
		return
	}
	if err := s.ledger.DeleteExpense(r.Context(), id); err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}
	s.done(w, r, "/expenses", amqp.EntityExpense, amqp.OpDelete, id, "Dépense supprimée")
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrFail(w, r) {
		return
	}
	in, err := s.parseIncome(r)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	id, err := s.ledger.CreateIncome(r.Context(), in)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	s.done(w, r, "/incomes", amqp.EntityIncome, amqp.OpCreate, id, "Apport enregistré")
}

func (s *Server) handleUpdateIncome(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError("Apport introuvable").Write(w)
		return
	}
	if !parseFormOrFail(w, r) {
		return
	}
	in, err := s.parseIncome(r)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	if err := s.ledger.UpdateIncome(r.Context(), id, in); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	s.done(w, r, "/incomes", amqp.EntityIncome, amqp.OpUpdate, id, "Apport mis à jour")
}

func (s *Server) handleDeleteIncome(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError("Apport introuvable").Write(w)
		return
	}
	if err := s.ledger.DeleteIncome(r.Context(), id); err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}
	s.done(w, r, "/incomes", amqp.EntityIncome, amqp.OpDelete, id, "Apport supprimé")
}

func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrFail(w, r) {
		return
	}
	t, err := s.ledger.CreateTag(r.Context(), sanitizeInput(r.PostForm.Get("name")))
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	s.done(w, r, safeRedirect(r.PostForm.Get("next"), "/"), amqp.EntityTag, amqp.OpCreate, t.ID, "Pôle ajouté")
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError("Pôle introuvable").Write(w)
		return
	}
	if err := s.ledger.DeleteTag(r.Context(), id); err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}
	s.done(w, r, "/", amqp.EntityTag, amqp.OpDelete, id, "Pôle supprimé")
}

func (s *Server) handleCreatePayer(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrFail(w, r) {
		return
	}
	p, err := s.ledger.CreatePayer(r.Context(), sanitizeInput(r.PostForm.Get("name")))
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	s.done(w, r, safeRedirect(r.PostForm.Get("next"), "/"), amqp.EntityPayer, amqp.OpCreate, p.ID, "Payeur ajouté")
}
