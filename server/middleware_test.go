package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		cfg            AuthConfig
		reqUsername    string
		reqPassword    string
		reqToken       string
		reqBearer      string
		expectedStatus int
	}{
		{
			name:           "no auth configured - allows request",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "valid basic auth",
			cfg:            AuthConfig{Username: "admin", Password: "secret123"},
			reqUsername:    "admin",
			reqPassword:    "secret123",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid basic auth password",
			cfg:            AuthConfig{Username: "admin", Password: "secret123"},
			reqUsername:    "admin",
			reqPassword:    "wrong",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "valid X-Admin-Token",
			cfg:            AuthConfig{Token: "test-token-12345"},
			reqToken:       "test-token-12345",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "valid bearer token",
			cfg:            AuthConfig{Token: "test-token-12345"},
			reqBearer:      "test-token-12345",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid bearer token",
			cfg:            AuthConfig{Token: "test-token-12345"},
			reqBearer:      "nope",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing credentials",
			cfg:            AuthConfig{Token: "test-token-12345"},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := adminAuth(okHandler(), tt.cfg)
			req := httptest.NewRequest(http.MethodGet, "/admin/test", nil)
			if tt.reqUsername != "" || tt.reqPassword != "" {
				req.SetBasicAuth(tt.reqUsername, tt.reqPassword)
			}
			if tt.reqToken != "" {
				req.Header.Set("X-Admin-Token", tt.reqToken)
			}
			if tt.reqBearer != "" {
				req.Header.Set("Authorization", "Bearer "+tt.reqBearer)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if tt.expectedStatus == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header on 401 response")
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, RateLimitConfig{Enabled: true, RequestsPerIP: 3, Window: time.Minute})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if !limiter.allow("192.168.1.1", now) {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if limiter.allow("192.168.1.1", now) {
		t.Error("request 4 should be denied (rate limit exceeded)")
	}
	if !limiter.allow("192.168.1.2", now) {
		t.Error("a different IP has its own budget")
	}
	if !limiter.allow("192.168.1.1", now.Add(61*time.Second)) {
		t.Error("request after window expiry should be allowed")
	}

	limiter.cleanup(now.Add(10 * time.Minute))
	if len(limiter.visitors) != 0 {
		t.Errorf("idle visitors should be dropped, have %d", len(limiter.visitors))
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, RateLimitConfig{Enabled: false, RequestsPerIP: 1})
	for i := 0; i < 100; i++ {
		if !limiter.allow("192.168.1.1", time.Now()) {
			t.Fatalf("request %d should be allowed when rate limiter is disabled", i+1)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"ipv4 with port", "10.0.0.1:5555", "", "10.0.0.1"},
		{"ipv4 without port", "10.0.0.1", "", "10.0.0.1"},
		{"ipv6 with port", "[2001:db8::1]:443", "", "2001:db8::1"},
		{"ipv6 without port", "2001:db8::1", "", "2001:db8::1"},
		{"forwarded list", "10.0.0.1:5555", "203.0.113.7, 10.0.0.2", "203.0.113.7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin/x", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := rateLimitMiddleware(okHandler(), newIPRateLimiter(ctx, RateLimitConfig{Enabled: true, RequestsPerIP: 1, Window: time.Minute}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/admin/x", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request: got %d", first.Code)
	}
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/admin/x", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestCORS(t *testing.T) {
	restricted := withCORS(okHandler(), CORSConfig{AllowedOrigins: []string{"https://admin.example.com", "*.cult.dev"}})

	tests := []struct {
		origin string
		want   string
	}{
		{"https://admin.example.com", "https://admin.example.com"},
		{"https://ops.cult.dev", "https://ops.cult.dev"},
		{"https://evil.example.org", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/status", nil)
		req.Header.Set("Origin", tt.origin)
		rr := httptest.NewRecorder()
		restricted.ServeHTTP(rr, req)
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: allow-origin = %q, want %q", tt.origin, got, tt.want)
		}
	}

	permissive := withCORS(okHandler(), CORSConfig{Permissive: true})
	req := httptest.NewRequest(http.MethodOptions, "/status", nil)
	rr := httptest.NewRecorder()
	permissive.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight: got %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("permissive mode should allow every origin")
	}
}
