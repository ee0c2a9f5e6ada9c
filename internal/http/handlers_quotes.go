package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"chantier/internal/amqp"
	"chantier/internal/attachments"
	"chantier/internal/budget"
	"chantier/internal/core"
	applog "chantier/internal/log"
)

type quotesView struct {
	Page
	Quotes []core.Quote
	Tags   []core.Tag
	Filter budget.Filter
	EditID int64
	Total  decimal.Decimal
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.loadSnapshot(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	filter := ParseFilter(query)
	quotes := filter.Quotes(snap.Quotes)
	s.render(w, r, http.StatusOK, "quotes.html", quotesView{
		Page:   Page{Title: "Devis", Active: "quotes"},
		Quotes: quotes,
		Tags:   snap.Tags,
		Filter: filter,
		EditID: ParseEditID(query),
		Total:  budget.TotalPrice(quotes),
	})
}

func (s *Server) handleCreateQuote(w http.ResponseWriter, r *http.Request) {
	if !parseFormOrFail(w, r) {
		return
	}
	in, err := ParseQuoteForm(r.PostForm)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	id, err := s.ledger.CreateQuote(r.Context(), in)
	if err != nil {
		s.fail(w, r, applog.OpCreate, err)
		return
	}
	s.done(w, r, "/quotes", amqp.EntityQuote, amqp.OpCreate, id, "Devis enregistré")
}

func (s *Server) handleUpdateQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError("Devis introuvable").Write(w)
		return
	}
	if !parseFormOrFail(w, r) {
		return
	}
	in, err := ParseQuoteForm(r.PostForm)
	if err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	if err := s.ledger.UpdateQuote(r.Context(), id, in); err != nil {
		s.fail(w, r, applog.OpUpdate, err)
		return
	}
	s.done(w, r, "/quotes", amqp.EntityQuote, amqp.OpUpdate, id, "Devis mis à jour")
}

func (s *Server) handleAcceptQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError("Devis introuvable").Write(w)
		return
	}
	if !parseFormOrFail(w, r) {
		return
	}
	accepted := parseBool(r.PostForm.Get("accepted"))
	if err := s.ledger.SetQuoteAccepted(r.Context(), id, accepted); err != nil {
		s.fail(w, r, applog.OpAccept, err)
		return
	}
	message := "Devis accepté"
	if !accepted {
		message = "Devis remis en attente"
	}
	s.done(w, r, safeRedirect(r.PostForm.Get("next"), "/quotes"), amqp.EntityQuote, amqp.OpAccept, id, message)
}

// handleDeleteQuote is idempotent: a missing quote still redirects.
func (s *Server) handleDeleteQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError("Devis introuvable").Write(w)
		return
	}
	if err := s.ledger.DeleteQuote(r.Context(), id); err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}
	s.done(w, r, "/quotes", amqp.EntityQuote, amqp.OpDelete, id, "Devis supprimé")
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	quoteID, ok := pathID(r)
	if !ok {
		NotFoundError("Devis introuvable").Write(w)
		return
	}

	tooLarge := ErrorResponse(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Fichier trop volumineux (max %d Mo)", s.maxUploadBytes>>20))
	if r.ContentLength > s.maxUploadBytes {
		tooLarge.Write(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			tooLarge.Write(w)
			return
		}
		BadRequestError("Formulaire d'envoi invalide").Write(w)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		UnprocessableEntityError("Aucun fichier sélectionné").Write(w)
		return
	}
	defer file.Close()

	qf, err := s.ledger.AttachFile(r.Context(), quoteID, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		if errors.Is(err, attachments.ErrInvalidName) {
			UnprocessableEntityError("Nom de fichier invalide").Write(w)
			return
		}
		s.fail(w, r, applog.OpUpload, err)
		return
	}
	applog.FromContext(r.Context()).WithComponent(applog.ComponentFiles).InfoContext(r.Context(), "Attachment stored",
		"quote_id", quoteID, "name", qf.Name, "size", qf.Size)
	s.done(w, r, "/quotes", amqp.EntityQuoteFile, amqp.OpCreate, qf.ID, "Fichier ajouté")
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		NotFoundError("Fichier introuvable").Write(w)
		return
	}
	if err := s.ledger.DeleteFile(r.Context(), id); err != nil {
		s.fail(w, r, applog.OpDelete, err)
		return
	}
	s.done(w, r, "/quotes", amqp.EntityQuoteFile, amqp.OpDelete, id, "Fichier supprimé")
}

// handleServeFile streams an attachment by its stored name. ?download=1
// switches the disposition to attachment.
func (s *Server) handleServeFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || attachments.SanitizeName(name) != name {
		http.NotFound(w, r)
		return
	}

	_, f, err := s.ledger.OpenFile(r.Context(), name)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) || errors.Is(err, attachments.ErrInvalidName) {
			http.NotFound(w, r)
			return
		}
		applog.FromContext(r.Context()).WithComponent(applog.ComponentFiles).ErrorContext(r.Context(),
			"Failed to open attachment", applog.FieldError, err, "name", name)
		http.Error(w, "Erreur de lecture du fichier", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "Erreur de lecture du fichier", http.StatusInternalServerError)
		return
	}

	disposition := "inline"
	if r.URL.Query().Get("download") == "1" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", attachments.ContentTypeFor(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`%s; filename="%s"`, disposition, name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// safeRedirect keeps redirects on this site.
func safeRedirect(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return fallback
	}
	return next
}
