package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"chantier/internal/attachments"
	"chantier/internal/auth"
	"chantier/internal/core"
	applog "chantier/internal/log"
	"chantier/internal/metrics"
	"chantier/internal/services"
	"chantier/internal/storage"
)

const testPassword = "maison-2024"

type testEnv struct {
	srv    *Server
	svc    *services.LedgerService
	repo   *storage.SQLiteRepository
	cookie *http.Cookie
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "chantier.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	files, err := attachments.NewStore(filepath.Join(dir, "uploads"), repo)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	svc := services.NewLedgerService(repo, files, nil)

	password, err := auth.NewPassword(testPassword, "")
	if err != nil {
		t.Fatalf("NewPassword: %v", err)
	}

	srv, err := NewServer(":0", Deps{
		Ledger:             svc,
		DB:                 repo,
		Sessions:           auth.NewSessions("0123456789abcdef0123", 0, false),
		Password:           password,
		Logger:             applog.New(applog.Config{Level: applog.ParseLevel("error"), Format: "text", Output: io.Discard}),
		Metrics:            metrics.New(),
		RateLimitPerMinute: 1000,
		MaxUploadBytes:     1 << 20,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	env := &testEnv{srv: srv, svc: svc, repo: repo}
	env.cookie = env.login(t)
	return env
}

func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	rr := e.post(t, "/login", url.Values{"password": {testPassword}}, nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d, body %s", rr.Code, rr.Body.String())
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("login did not set the session cookie")
	return nil
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) post(t *testing.T, path string, form url.Values, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header[k] = v
	}
	return e.do(req)
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t)
	env.cookie = nil

	for path, body := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		rr := env.get(t, path)
		if rr.Code != http.StatusOK || rr.Body.String() != body {
			t.Errorf("%s = %d %q", path, rr.Code, rr.Body.String())
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: missing X-Request-ID", path)
		}
	}
}

func TestReadinessFailsWhenDatabaseClosed(t *testing.T) {
	env := newTestEnv(t)
	_ = env.repo.Close()

	if rr := env.get(t, "/readyz"); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", rr.Code)
	}
}

func TestAuthGate(t *testing.T) {
	env := newTestEnv(t)
	env.cookie = nil

	rr := env.get(t, "/")
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != auth.LoginPath {
		t.Errorf("unauthenticated GET / = %d to %q", rr.Code, rr.Header().Get("Location"))
	}

	rr = env.post(t, "/expenses", url.Values{"amount": {"1"}}, http.Header{"Hx-Request": {"true"}})
	if rr.Code != http.StatusUnauthorized || rr.Header().Get("HX-Redirect") != auth.LoginPath {
		t.Errorf("unauthenticated htmx POST = %d, HX-Redirect %q", rr.Code, rr.Header().Get("HX-Redirect"))
	}

	rr = env.get(t, "/login")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `name="password"`) {
		t.Errorf("login page = %d", rr.Code)
	}

	rr = env.get(t, "/static/style.css")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("static asset = %d, Cache-Control %q", rr.Code, rr.Header().Get("Cache-Control"))
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	env.cookie = nil

	rr := env.post(t, "/login", url.Values{"password": {"wrong"}}, nil)
	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), "Mot de passe incorrect") {
		t.Errorf("bad password = %d", rr.Code)
	}
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName {
			t.Error("bad password must not set a cookie")
		}
	}

	rr = env.post(t, "/login", url.Values{"password": {testPassword}}, http.Header{"Hx-Request": {"true"}})
	if rr.Header().Get("HX-Redirect") != "/" {
		t.Errorf("htmx login HX-Redirect = %q", rr.Header().Get("HX-Redirect"))
	}

	env.cookie = env.login(t)
	if rr := env.get(t, "/login"); rr.Code != http.StatusSeeOther {
		t.Errorf("login page with session = %d, want redirect", rr.Code)
	}

	var status map[string]bool
	if err := json.Unmarshal(env.get(t, "/api/auth").Body.Bytes(), &status); err != nil || !status["authenticated"] {
		t.Errorf("api/auth = %v, %v", status, err)
	}

	rr = env.get(t, "/logout")
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Errorf("logout = %d to %q", rr.Code, rr.Header().Get("Location"))
	}
	cleared := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.CookieName && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("logout must expire the session cookie")
	}
}

func TestQuoteExpenseIncomeFlow(t *testing.T) {
	env := newTestEnv(t)

	rr := env.post(t, "/tags", url.Values{"name": {"Cuisine"}}, nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("create tag = %d %s", rr.Code, rr.Body.String())
	}

	rr = env.post(t, "/quotes", url.Values{
		"company": {"Menuiserie Bois"}, "need": {"Meubles cuisine"}, "price": {"1000"},
		"is_accepted": {"on"}, "tags": {"1"},
	}, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/quotes" {
		t.Fatalf("create quote = %d %s", rr.Code, rr.Body.String())
	}

	rr = env.post(t, "/expenses", url.Values{
		"new_payer": {"Camille"}, "amount": {"400"}, "purpose": {"Acompte"}, "quote_id": {"1"},
	}, nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("create expense = %d %s", rr.Code, rr.Body.String())
	}

	rr = env.post(t, "/incomes", url.Values{"payer_id": {"1"}, "amount": {"2000"}, "purpose": {"Épargne"}}, nil)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("create income = %d %s", rr.Code, rr.Body.String())
	}

	body := env.get(t, "/").Body.String()
	for _, want := range []string{"Camille", "Cuisine", "conic-gradient", "€600,00", "€1.600,00"} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}

	remaining := env.get(t, "/remaining").Body.String()
	if !strings.Contains(remaining, "Meubles cuisine") || !strings.Contains(remaining, "€600,00") {
		t.Error("remaining view missing the accepted quote")
	}

	if rr := env.get(t, "/expenses?edit=1"); !strings.Contains(rr.Body.String(), `action="/expenses/1"`) {
		t.Error("edit mode form missing")
	}
	if rr := env.get(t, "/expenses?q=nothing-matches"); strings.Contains(rr.Body.String(), "Acompte") {
		t.Error("filter did not hide the expense")
	}
}

func TestPlannedAndAccept(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.svc.CreateQuote(context.Background(), core.QuoteInput{Need: "Toiture", Price: mustAmount(t, "8000")})
	if err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}

	if body := env.get(t, "/planned").Body.String(); !strings.Contains(body, "Toiture") {
		t.Fatal("planned view missing the pending quote")
	}

	rr := env.post(t, "/quotes/1/accept", url.Values{"accepted": {"true"}, "next": {"/planned"}}, nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/planned" {
		t.Fatalf("accept = %d to %q", rr.Code, rr.Header().Get("Location"))
	}
	snap, _ := env.svc.Snapshot(context.Background())
	if len(snap.Quotes) != 1 || snap.Quotes[0].ID != id || !snap.Quotes[0].IsAccepted {
		t.Errorf("quote not accepted: %+v", snap.Quotes)
	}

	rr = env.post(t, "/quotes/1/accept", url.Values{"accepted": {"true"}, "next": {"//evil.example"}}, nil)
	if rr.Header().Get("Location") != "/quotes" {
		t.Errorf("off-site next must fall back, got %q", rr.Header().Get("Location"))
	}
}

func TestSubmissionErrors(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.CreateTag(context.Background(), "Salle de bain"); err != nil {
		t.Fatalf("CreateTag: %v", err)
	}

	tests := []struct {
		name string
		path string
		form url.Values
		code int
	}{
		{"bad amount", "/expenses", url.Values{"payer_id": {"1"}, "amount": {"abc"}, "purpose": {"x"}}, http.StatusUnprocessableEntity},
		{"zero amount", "/incomes", url.Values{"new_payer": {"Lou"}, "amount": {"0"}, "purpose": {"x"}}, http.StatusUnprocessableEntity},
		{"missing payer", "/expenses", url.Values{"amount": {"5"}, "purpose": {"x"}}, http.StatusUnprocessableEntity},
		{"unknown payer", "/expenses", url.Values{"payer_id": {"99"}, "amount": {"5"}, "purpose": {"x"}}, http.StatusUnprocessableEntity},
		{"new payer with unknown quote", "/expenses", url.Values{"new_payer": {"Lou"}, "amount": {"5"}, "purpose": {"x"}, "quote_id": {"99"}}, http.StatusUnprocessableEntity},
		{"new payer with unknown tag", "/incomes", url.Values{"new_payer": {"Lou"}, "amount": {"5"}, "purpose": {"x"}, "tags": {"99"}}, http.StatusUnprocessableEntity},
		{"empty need", "/quotes", url.Values{"need": {" "}, "price": {"10"}}, http.StatusUnprocessableEntity},
		{"duplicate tag", "/tags", url.Values{"name": {"Salle de bain"}}, http.StatusConflict},
		{"bad date", "/quotes", url.Values{"need": {"x"}, "price": {"1"}, "date": {"31/12/2024"}}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.post(t, tt.path, tt.form, http.Header{"Hx-Request": {"true"}})
			if rr.Code != tt.code {
				t.Errorf("status = %d, want %d (%s)", rr.Code, tt.code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), `class="error"`) {
				t.Errorf("body is not an error fragment: %s", rr.Body.String())
			}
		})
	}

	// A rejected row must not leave a half-created payer behind.
	snap, _ := env.svc.Snapshot(context.Background())
	if len(snap.Payers) != 0 {
		t.Errorf("payers = %+v, want none", snap.Payers)
	}
}

func TestHTMXSuccessTriggers(t *testing.T) {
	env := newTestEnv(t)

	rr := env.post(t, "/payers", url.Values{"name": {"Sacha"}}, http.Header{"Hx-Request": {"true"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "ledger:changed") {
		t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}
	if rr.Header().Get("HX-Refresh") != "true" {
		t.Error("HX-Refresh missing")
	}
}

func TestDeleteMissingIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/quotes/7/delete", "/expenses/7/delete", "/incomes/7/delete", "/tags/7/delete", "/quote-files/7/delete"} {
		if rr := env.post(t, path, url.Values{}, nil); rr.Code != http.StatusSeeOther {
			t.Errorf("%s = %d, want 303", path, rr.Code)
		}
	}
}

func TestUploadAndServeFile(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.CreateQuote(context.Background(), core.QuoteInput{Need: "Plomberie", Price: mustAmount(t, "900")}); err != nil {
		t.Fatalf("CreateQuote: %v", err)
	}

	upload := func(path, name string, content []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write(content)
		_ = mw.Close()
		req := httptest.NewRequest(http.MethodPost, path, &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return env.do(req)
	}

	if rr := upload("/quotes/9/files", "devis.pdf", []byte("%PDF")); rr.Code != http.StatusNotFound {
		t.Errorf("upload to missing quote = %d, want 404", rr.Code)
	}
	if rr := upload("/quotes/1/files", "big.pdf", bytes.Repeat([]byte("x"), 2<<20)); rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized upload = %d, want 413", rr.Code)
	}

	rr := upload("/quotes/1/files", "devis plombier.pdf", []byte("%PDF-1.4 test"))
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("upload = %d %s", rr.Code, rr.Body.String())
	}

	page := env.get(t, "/quotes").Body.String()
	m := regexp.MustCompile(`href="/files/([^"?]+)"`).FindStringSubmatch(page)
	if m == nil {
		t.Fatalf("quotes page has no file link")
	}

	rr = env.get(t, "/files/"+m[1])
	if rr.Code != http.StatusOK || rr.Body.String() != "%PDF-1.4 test" {
		t.Fatalf("serve = %d %q", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "application/pdf" {
		t.Errorf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Disposition"), "inline") {
		t.Errorf("Content-Disposition = %q", rr.Header().Get("Content-Disposition"))
	}
	if rr := env.get(t, "/files/"+m[1]+"?download=1"); !strings.HasPrefix(rr.Header().Get("Content-Disposition"), "attachment") {
		t.Errorf("download disposition = %q", rr.Header().Get("Content-Disposition"))
	}

	for _, bad := range []string{"/files/nope.pdf", "/files/..%2Fchantier.db"} {
		if rr := env.get(t, bad); rr.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", bad, rr.Code)
		}
	}
}

func TestSecurityHeadersAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get(t, "/")
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if !strings.Contains(rr.Header().Get("Content-Security-Policy"), "unpkg.com") {
		t.Errorf("CSP = %q", rr.Header().Get("Content-Security-Policy"))
	}

	env.post(t, "/payers", url.Values{"name": {"Noa"}}, nil)

	body := env.get(t, "/metrics").Body.String()
	for _, want := range []string{"chantier_http_requests_total", `entity="payer"`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRateLimitOnlyMutations(t *testing.T) {
	dir := t.TempDir()
	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "rl.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()
	password, _ := auth.NewPassword(testPassword, "")
	srv, err := NewServer(":0", Deps{
		Ledger:             services.NewLedgerService(repo, nil, nil),
		Sessions:           auth.NewSessions("0123456789abcdef0123", 0, false),
		Password:           password,
		Logger:             applog.New(applog.Config{Level: applog.ParseLevel("error"), Output: io.Discard}),
		RateLimitPerMinute: 2,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	defer srv.Shutdown(context.Background())

	codes := []int{}
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("password=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	if codes[2] != http.StatusTooManyRequests {
		t.Errorf("third POST = %d, want 429 (codes %v)", codes[2], codes)
	}

	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("GET after limit = %d, want 200", rr.Code)
	}
}

func mustAmount(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := core.ParseAmount(s)
	if err != nil {
		t.Fatalf("ParseAmount(%q): %v", s, err)
	}
	return v
}
