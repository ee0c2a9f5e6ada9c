package http

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"chantier/internal/core"
	applog "chantier/internal/log"
)

// pages lists the page templates; each is rendered inside layout.html.
var pages = []string{
	"dashboard.html",
	"quotes.html",
	"planned.html",
	"remaining.html",
	"expenses.html",
	"incomes.html",
	"login.html",
}

var templateFuncs = template.FuncMap{
	"euros":     core.FormatEuros,
	"date":      core.FormatDate,
	"dateInput": dateInput,
	"percent":   func(d decimal.Decimal) string { return d.StringFixed(1) },
	"tagNames":  func(tags []core.Tag) string { return strings.Join(core.TagNames(tags), ", ") },
	"hasTag":    core.HasTag,
	"idEq": func(p *int64, id int64) bool {
		return p != nil && *p == id
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"amountInput": func(d decimal.Decimal) string { return d.StringFixed(2) },

	"newQuoteForm":  func(tags []core.Tag) quoteForm { return quoteForm{Tags: tags} },
	"editQuoteForm": func(q core.Quote, tags []core.Tag) quoteForm { return quoteForm{Quote: &q, Tags: tags} },
	"newExpenseForm": func(payers []core.Payer, tags []core.Tag, quotes []core.Quote) entryForm {
		return entryForm{Payers: payers, Tags: tags, Quotes: quotes, WithQuote: true}
	},
	"editExpenseForm": func(e core.Expense, payers []core.Payer, tags []core.Tag, quotes []core.Quote) entryForm {
		return entryForm{
			Entry:  &entryFields{PayerID: e.PayerID, Amount: e.Amount, Purpose: e.Purpose, Label: e.Label, Date: e.Date, QuoteID: e.QuoteID, Tags: e.Tags},
			Payers: payers, Tags: tags, Quotes: quotes, WithQuote: true,
		}
	},
	"newIncomeForm": func(payers []core.Payer, tags []core.Tag) entryForm {
		return entryForm{Payers: payers, Tags: tags}
	},
	"editIncomeForm": func(i core.Income, payers []core.Payer, tags []core.Tag) entryForm {
		return entryForm{
			Entry:  &entryFields{PayerID: i.PayerID, Amount: i.Amount, Purpose: i.Purpose, Label: i.Label, Date: i.Date, Tags: i.Tags},
			Payers: payers, Tags: tags,
		}
	},
}

// quoteForm feeds the shared quote fields; Quote is nil on the create form.
type quoteForm struct {
	Quote *core.Quote
	Tags  []core.Tag
}

// entryForm feeds the shared expense and income fields; Entry is nil on the
// create form.
type entryForm struct {
	Entry     *entryFields
	Payers    []core.Payer
	Tags      []core.Tag
	Quotes    []core.Quote
	WithQuote bool
}

type entryFields struct {
	PayerID int64
	Amount  decimal.Decimal
	Purpose string
	Label   *string
	Date    *time.Time
	QuoteID *int64
	Tags    []core.Tag
}

func dateInput(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(core.DateLayout)
}

// parseTemplates clones the layout once per page so every page can define
// its own "content" block.
func parseTemplates(fsys fs.FS) (map[string]*template.Template, error) {
	base, err := template.New("layout.html").Funcs(templateFuncs).ParseFS(fsys, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}

	out := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		t, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout for %s: %w", page, err)
		}
		if _, err := t.ParseFS(fsys, "templates/"+page); err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		out[page] = t
	}
	return out, nil
}

// Page is the data every page shares.
type Page struct {
	Title  string
	Active string
	Error  string
}

// render executes a page into a buffer first so template errors never
// produce half-written responses.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page string, data interface{}) {
	t, ok := s.templates[page]
	if !ok {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).
			ErrorContext(r.Context(), "Unknown template", "template", page)
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout.html", data); err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).
			ErrorContext(r.Context(), "Template execution failed",
				applog.FieldError, err, "template", page, applog.FieldOperation, applog.OpRender)
		http.Error(w, "Erreur d'affichage", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
