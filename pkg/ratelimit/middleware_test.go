package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		MaxAttempts: 2,
		Window:      time.Minute,
	})

	handled := 0
	handler := RateLimitMiddleware(limiter, IPBasedKeyFunc("test_action"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handled++
			w.WriteHeader(http.StatusOK)
		}))

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.RemoteAddr = "203.0.113.7:50000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// First two requests pass.
	for i := 0; i < 2; i++ {
		if rec := do(); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}
	if handled != 2 {
		t.Fatalf("handler ran %d times, want 2", handled)
	}

	// Third request is over the limit; handler must not run.
	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if handled != 2 {
		t.Errorf("handler ran %d times after limit, want 2", handled)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header on limited response")
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want \"2\"", got)
	}
}

func TestRateLimitMiddlewareSeparateIPs(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		MaxAttempts: 1,
		Window:      time.Minute,
	})

	handler := RateLimitMiddleware(limiter, IPBasedKeyFunc("test_action"))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/resource", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do("203.0.113.8:1000"); code != http.StatusOK {
		t.Fatalf("first IP first request: status = %d, want 200", code)
	}
	if code := do("203.0.113.8:1001"); code != http.StatusTooManyRequests {
		t.Errorf("first IP second request: status = %d, want 429", code)
	}
	// A different IP has its own allowance.
	if code := do("203.0.113.9:1000"); code != http.StatusOK {
		t.Errorf("second IP first request: status = %d, want 200", code)
	}
}
