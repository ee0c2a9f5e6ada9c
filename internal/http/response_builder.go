package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"chantier/internal/core"
)

// HTMXResponse accumulates the HX-* headers, status and body of a reply to
// an htmx request. Build it with the chained setters, then call Write once.
type HTMXResponse struct {
	status   int
	headers  http.Header
	triggers map[string]any
	body     []byte
}

func NewHTMXResponse() *HTMXResponse {
	return &HTMXResponse{
		status:   http.StatusOK,
		headers:  make(http.Header),
		triggers: make(map[string]any),
	}
}

func (b *HTMXResponse) Status(code int) *HTMXResponse {
	b.status = code
	return b
}

// Trigger adds one event to the HX-Trigger header. Later calls with the same
// name overwrite the payload.
func (b *HTMXResponse) Trigger(name string, payload any) *HTMXResponse {
	b.triggers[name] = payload
	return b
}

// TriggerLedgerChanged tells listening fragments which row changed.
func (b *HTMXResponse) TriggerLedgerChanged(entity string, id int64) *HTMXResponse {
	return b.Trigger("ledger:changed", map[string]any{"entity": entity, "id": id})
}

func (b *HTMXResponse) TriggerFormReset() *HTMXResponse {
	return b.Trigger("form:reset", struct{}{})
}

// NotificationKind selects the toast style in static/app.js.
type NotificationKind string

const (
	NotificationSuccess NotificationKind = "success"
	NotificationError   NotificationKind = "error"
)

func (b *HTMXResponse) TriggerNotification(kind NotificationKind, message string, durationMs int) *HTMXResponse {
	return b.Trigger("show-notification", map[string]any{
		"type":     string(kind),
		"message":  message,
		"duration": durationMs,
	})
}

func (b *HTMXResponse) TriggerSuccessNotification(message string) *HTMXResponse {
	return b.TriggerNotification(NotificationSuccess, message, 3000)
}

// Refresh makes htmx reload the page so every aggregate is recomputed.
func (b *HTMXResponse) Refresh() *HTMXResponse {
	return b.Header("HX-Refresh", "true")
}

func (b *HTMXResponse) Redirect(path string) *HTMXResponse {
	return b.Header("HX-Redirect", path)
}

func (b *HTMXResponse) Header(name, value string) *HTMXResponse {
	b.headers.Set(name, value)
	return b
}

// HTML sets an already escaped fragment as the body.
func (b *HTMXResponse) HTML(fragment string) *HTMXResponse {
	b.headers.Set("Content-Type", "text/html; charset=utf-8")
	b.body = []byte(fragment)
	return b
}

func (b *HTMXResponse) Write(w http.ResponseWriter) {
	for name, values := range b.headers {
		w.Header()[name] = values
	}
	if len(b.triggers) > 0 {
		if raw, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(raw))
		}
	}
	w.WriteHeader(b.status)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message as an escaped alert fragment. static/app.js
// turns it into an error toast on htmx:responseError.
func ErrorResponse(status int, message string) *HTMXResponse {
	return NewHTMXResponse().
		Status(status).
		HTML(`<div class="error" role="alert">` + template.HTMLEscapeString(message) + `</div>`)
}

func BadRequestError(message string) *HTMXResponse {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnauthorizedError(message string) *HTMXResponse {
	return ErrorResponse(http.StatusUnauthorized, message)
}

func NotFoundError(message string) *HTMXResponse {
	return ErrorResponse(http.StatusNotFound, message)
}

func UnprocessableEntityError(message string) *HTMXResponse {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *HTMXResponse {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// ErrorFor maps a service error onto the response a form submission gets:
// validation is 422, uniqueness is 409, a missing row is 404 and anything
// else is a generic 500.
func ErrorFor(err error) *HTMXResponse {
	switch {
	case errors.Is(err, core.ErrConflict):
		return ErrorResponse(http.StatusConflict, "Ce nom existe déjà")
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError("Élément introuvable")
	case core.IsValidationError(err):
		return UnprocessableEntityError(validationMessage(err))
	default:
		return InternalServerError("Erreur lors de l'enregistrement")
	}
}

var validationMessages = []struct {
	err error
	msg string
}{
	{core.ErrInvalidAmount, "Montant invalide"},
	{core.ErrInvalidDate, "Date invalide (AAAA-MM-JJ)"},
	{core.ErrEmptyPurpose, "L'objet est obligatoire"},
	{core.ErrEmptyNeed, "Le besoin est obligatoire"},
	{core.ErrEmptyName, "Le nom est obligatoire"},
	{core.ErrMissingPayer, "Le payeur est obligatoire"},
	{core.ErrTextTooLong, "Texte trop long (200 caractères max)"},
	{core.ErrInvalidQuoteRef, "Devis invalide"},
	{core.ErrUnknownReference, "Payeur, devis ou pôle inconnu"},
}

func validationMessage(err error) string {
	for _, m := range validationMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Données invalides"
}
