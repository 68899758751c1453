package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRateLimiterAllowsBurstThenRejects(t *testing.T) {
	rl := newRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !rl.allow("10.0.0.1") {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	if rl.allow("10.0.0.1") {
		t.Fatalf("request beyond burst should be rejected")
	}
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := newRateLimiter(1, 1)

	if !rl.allow("10.0.0.1") {
		t.Fatalf("first client should be allowed")
	}
	if rl.allow("10.0.0.1") {
		t.Fatalf("first client should have exhausted its burst")
	}
	if !rl.allow("10.0.0.2") {
		t.Fatalf("second client must have its own bucket")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := RateLimit(1, 2)

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/visits/queue", nil)
		req.Header.Set("X-Real-Ip", ip)
		rec := httptest.NewRecorder()
		mw(handler).ServeHTTP(rec, req)
		return rec.Code
	}

	if got := send("10.0.0.1"); got != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, got)
	}
	if got := send("10.0.0.1"); got != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, got)
	}
	if got := send("10.0.0.1"); got != http.StatusTooManyRequests {
		t.Fatalf("expected status %d, got %d", http.StatusTooManyRequests, got)
	}
	if got := send("10.0.0.9"); got != http.StatusOK {
		t.Fatalf("other clients should be unaffected, got %d", got)
	}
}

func TestClientIPPrefersRealIPHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:51000"
	if got := clientIP(req); got != "192.0.2.1:51000" {
		t.Fatalf("expected remote addr fallback, got %q", got)
	}
	req.Header.Set("X-Real-Ip", "203.0.113.7")
	if got := clientIP(req); got != "203.0.113.7" {
		t.Fatalf("expected header value, got %q", got)
	}
}
