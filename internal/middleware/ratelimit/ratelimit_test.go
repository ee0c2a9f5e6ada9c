package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *time.Time) {
	t.Helper()
	l := NewLimiter(Config{RequestsPerMinute: perMinute, CleanupInterval: time.Hour})
	t.Cleanup(l.Stop)

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestLimiter_Allow(t *testing.T) {
	l, clock := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}

	*clock = clock.Add(20 * time.Second)
	ok, wait := l.Allow("10.0.0.1")
	if ok {
		t.Fatal("4th request in the window should be rejected")
	}
	if wait != 40*time.Second {
		t.Errorf("wait = %v, want 40s", wait)
	}
	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Fatal("other clients have their own budget")
	}

	*clock = clock.Add(40 * time.Second)
	if ok, _ := l.Allow("10.0.0.1"); !ok {
		t.Fatal("a new window should reset the counter")
	}
}

func TestLimiter_Sweep(t *testing.T) {
	l, clock := newTestLimiter(t, 3)
	l.Allow("a")
	*clock = clock.Add(11 * time.Minute)
	l.Allow("b")

	l.sweep()

	if got := l.Tracked(); got != 1 {
		t.Fatalf("Tracked = %d, want 1", got)
	}
}

func TestLimiter_Middleware(t *testing.T) {
	l, _ := newTestLimiter(t, 1)
	limited := 0
	h := l.Middleware(
		func(*http.Request) string { return "client" },
		func(w http.ResponseWriter, r *http.Request) {
			limited++
			w.WriteHeader(http.StatusTooManyRequests)
		},
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodPost, http.StatusOK},
		{http.MethodPost, http.StatusTooManyRequests},
		{http.MethodGet, http.StatusOK},
		{http.MethodDelete, http.StatusTooManyRequests},
		{http.MethodHead, http.StatusOK},
	}
	for i, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tt.method, "/expenses", nil))
		if rec.Code != tt.want {
			t.Errorf("#%d %s: status %d, want %d", i, tt.method, rec.Code, tt.want)
		}
		if rec.Code == http.StatusTooManyRequests && rec.Header().Get("Retry-After") != "60" {
			t.Errorf("#%d: Retry-After = %q, want 60", i, rec.Header().Get("Retry-After"))
		}
	}
	if limited != 2 {
		t.Errorf("onLimit called %d times, want 2", limited)
	}
}

func TestRetrySeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tt := range tests {
		if got := retrySeconds(tt.in); got != tt.want {
			t.Errorf("retrySeconds(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestNewLimiter_Defaults(t *testing.T) {
	l := NewLimiter(Config{})
	defer l.Stop()
	l.Stop()

	if l.cfg != DefaultConfig() {
		t.Fatalf("unexpected defaults: %+v", l.cfg)
	}
}
