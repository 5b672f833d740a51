package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSecureHeaders(t *testing.T) {
	handler := SecureHeaders(true)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/performance/fy2026/employees/emp-1", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected nosniff header")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatal("expected api responses to be uncacheable")
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("expected HSTS in production")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Header().Get("Cache-Control") != "" {
		t.Fatalf("health checks keep default caching, got %q", rec.Header().Get("Cache-Control"))
	}

	dev := SecureHeaders(false)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	rec = httptest.NewRecorder()
	dev.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/audit", nil))
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("did not expect HSTS outside production")
	}
}
