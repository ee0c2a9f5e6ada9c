package http

import (
	"context"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"chantier/internal/auth"
	"chantier/internal/budget"
	"chantier/internal/core"
	applog "chantier/internal/log"
	"chantier/internal/metrics"
	"chantier/internal/middleware/ratelimit"
	"chantier/internal/middleware/security"
	"chantier/internal/middleware/trace"
	appweb "chantier/web"
)

// Ledger is what the handlers need from the ledger service.
type Ledger interface {
	Snapshot(ctx context.Context) (budget.Snapshot, error)

	CreatePayer(ctx context.Context, name string) (core.Payer, error)
	CreateTag(ctx context.Context, name string) (core.Tag, error)
	DeleteTag(ctx context.Context, id int64) error

	CreateQuote(ctx context.Context, in core.QuoteInput) (int64, error)
	UpdateQuote(ctx context.Context, id int64, in core.QuoteInput) error
	SetQuoteAccepted(ctx context.Context, id int64, accepted bool) error
	DeleteQuote(ctx context.Context, id int64) error

	AttachFile(ctx context.Context, quoteID int64, name, mimeType string, r io.Reader) (core.QuoteFile, error)
	DeleteFile(ctx context.Context, id int64) error
	OpenFile(ctx context.Context, storedName string) (core.QuoteFile, *os.File, error)

	CreateExpense(ctx context.Context, in core.ExpenseInput) (int64, error)
	UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) error
	DeleteExpense(ctx context.Context, id int64) error

	CreateIncome(ctx context.Context, in core.IncomeInput) (int64, error)
	UpdateIncome(ctx context.Context, id int64, in core.IncomeInput) error
	DeleteIncome(ctx context.Context, id int64) error
}

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the web server.
type Deps struct {
	Ledger   Ledger
	DB       Pinger
	Sessions *auth.Sessions
	Password *auth.Password
	Logger   *applog.Logger
	Metrics  *metrics.Metrics

	RateLimitPerMinute int
	MaxUploadBytes     int64

	// Templates and Static default to the embedded web assets.
	Templates fs.FS
	Static    fs.FS
}

type Server struct {
	http.Server

	ledger   Ledger
	db       Pinger
	sessions *auth.Sessions
	password *auth.Password
	logger   *applog.Logger
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	detector *security.Detector

	templates      map[string]*template.Template
	maxUploadBytes int64

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, deps Deps) (*Server, error) {
	if deps.Ledger == nil || deps.Sessions == nil || deps.Password == nil {
		return nil, fmt.Errorf("new server: ledger, sessions and password are required")
	}
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig())
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 32 << 20
	}
	if deps.Templates == nil {
		deps.Templates = appweb.TemplatesFS
	}
	if deps.Static == nil {
		deps.Static = appweb.StaticFS
	}

	templates, err := parseTemplates(deps.Templates)
	if err != nil {
		return nil, err
	}

	s := &Server{
		ledger:         deps.Ledger,
		db:             deps.DB,
		sessions:       deps.Sessions,
		password:       deps.Password,
		logger:         deps.Logger,
		metrics:        deps.Metrics,
		limiter:        ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector:       security.NewDetector(),
		templates:      templates,
		maxUploadBytes: deps.MaxUploadBytes,
	}

	router, err := s.routes(deps.Static)
	if err != nil {
		s.limiter.Stop()
		return nil, err
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(static fs.FS) (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(trace.Middleware)
	r.Use(applog.Middleware(s.logger, trace.FromRequest))
	r.Use(middleware.Recoverer)
	r.Use(s.detector.Middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.metrics.Middleware(routePattern))
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited))
	r.Use(s.sessions.Require)

	staticSub, err := fs.Sub(static, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	r.With(security.StaticAssetMiddleware(3600)).
		Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Get("/api/auth", s.handleAuthCheck)
	r.Get("/logout", s.handleLogout)

	r.Get("/", s.handleDashboard)
	r.Get("/planned", s.handlePlanned)
	r.Get("/remaining", s.handleRemaining)

	r.Route("/quotes", func(r chi.Router) {
		r.Get("/", s.handleQuotes)
		r.Post("/", s.handleCreateQuote)
		r.Post("/{id}", s.handleUpdateQuote)
		r.Post("/{id}/accept", s.handleAcceptQuote)
		r.Post("/{id}/delete", s.handleDeleteQuote)
		r.Post("/{id}/files", s.handleUploadFile)
	})
	r.Post("/quote-files/{id}/delete", s.handleDeleteFile)
	r.Get("/files/{name}", s.handleServeFile)

	r.Route("/expenses", func(r chi.Router) {
		r.Get("/", s.handleExpenses)
		r.Post("/", s.handleCreateExpense)
		r.Post("/{id}", s.handleUpdateExpense)
		r.Post("/{id}/delete", s.handleDeleteExpense)
	})
	r.Route("/incomes", func(r chi.Router) {
		r.Get("/", s.handleIncomes)
		r.Post("/", s.handleCreateIncome)
		r.Post("/{id}", s.handleUpdateIncome)
		r.Post("/{id}/delete", s.handleDeleteIncome)
	})

	r.Post("/tags", s.handleCreateTag)
	r.Post("/tags/{id}/delete", s.handleDeleteTag)
	r.Post("/payers", s.handleCreatePayer)

	return r, nil
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited.Inc()
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r), applog.FieldMethod, r.Method, applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Trop de requêtes, réessayez dans une minute").Write(w)
}

// Shutdown stops the rate limiter and drains the HTTP server. Safe to call
// more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// isHTMX reports whether the request came from htmx.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// done answers a successful form submission: htmx clients get a
// notification and a page refresh, plain forms a 303 back to redirect.
func (s *Server) done(w http.ResponseWriter, r *http.Request, redirect, entity, op string, id int64, message string) {
	s.metrics.RecordWrite(entity, op)
	applog.FromContext(r.Context()).WithComponent(applog.ComponentLedger).InfoContext(r.Context(), message,
		applog.NewFields().WithEntity(entity, id).WithOperation(op).ToSlice()...)

	if isHTMX(r) {
		NewHTMXResponse().
			TriggerLedgerChanged(entity, id).
			TriggerSuccessNotification(message).
			Refresh().
			Write(w)
		return
	}
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// fail answers a failed submission through the HTMX error builder.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := ErrorFor(err)
	if resp.status >= http.StatusInternalServerError {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentLedger).ErrorContext(r.Context(), "Ledger write failed",
			applog.FieldOperation, op, applog.FieldPath, r.URL.Path, applog.FieldError, err)
	} else {
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Rejected submission",
			applog.FieldOperation, op, applog.FieldError, err)
	}
	resp.Write(w)
}

// parseFormOrFail parses the body and answers 400 when it is malformed.
func parseFormOrFail(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		BadRequestError("Format de requête invalide").Write(w)
		return false
	}
	return true
}

// loadSnapshot fetches the ledger for a page, answering 500 on failure.
func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request) (budget.Snapshot, bool) {
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentStorage).ErrorContext(r.Context(),
			"Failed to load ledger", applog.FieldError, err, applog.FieldPath, r.URL.Path)
		InternalServerError("Impossible de charger les données").Write(w)
		return budget.Snapshot{}, false
	}
	return snap, true
}
