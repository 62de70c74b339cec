package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAdminAuthMiddleware(t *testing.T) {
	tests := []struct {
		name           string
		cfg            authConfig
		reqUsername    string
		reqPassword    string
		reqToken       string
		expectedStatus int
	}{
		{name: "no auth configured - allows request", expectedStatus: http.StatusOK},
		{
			name:           "valid basic auth",
			cfg:            authConfig{username: "admin", password: "secret123"},
			reqUsername:    "admin",
			reqPassword:    "secret123",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid basic auth username",
			cfg:            authConfig{username: "admin", password: "secret123"},
			reqUsername:    "wrong",
			reqPassword:    "secret123",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid basic auth password",
			cfg:            authConfig{username: "admin", password: "secret123"},
			reqUsername:    "admin",
			reqPassword:    "wrong",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "valid token auth",
			cfg:            authConfig{token: "test-token-12345"},
			reqToken:       "test-token-12345",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "invalid token auth",
			cfg:            authConfig{token: "test-token-12345"},
			reqToken:       "wrong-token",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "token accepted despite bad basic auth",
			cfg:            authConfig{username: "admin", password: "secret123", token: "test-token-12345"},
			reqToken:       "test-token-12345",
			reqUsername:    "wrong",
			reqPassword:    "wrong",
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing credentials",
			cfg:            authConfig{token: "test-token-12345"},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			handler := adminAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}), &cfg)

			req := httptest.NewRequest(http.MethodGet, "/admin/follows", nil)
			if tt.reqUsername != "" || tt.reqPassword != "" {
				req.SetBasicAuth(tt.reqUsername, tt.reqPassword)
			}
			if tt.reqToken != "" {
				req.Header.Set("X-Admin-Token", tt.reqToken)
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
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, requestsPerIP: 3, window: time.Minute})
	limiter.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if limiter.allow("192.168.1.1") {
		t.Error("request 4 should be denied (rate limit exceeded)")
	}
	if !limiter.allow("192.168.1.2") {
		t.Error("other IP should have its own budget")
	}

	// One token refills every window/requestsPerIP.
	now = now.Add(21 * time.Second)
	if !limiter.allow("192.168.1.1") {
		t.Error("request after one refill interval should be allowed")
	}
	if limiter.allow("192.168.1.1") {
		t.Error("only one token should have refilled")
	}

	now = now.Add(61 * time.Second)
	for i := 0; i < 3; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Errorf("request %d after a full window should be allowed", i+1)
		}
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, requestsPerIP: 1, window: time.Minute})
	limiter.now = func() time.Time { return now }

	limiter.allow("192.168.1.1")
	now = now.Add(45 * time.Second)
	limiter.allow("192.168.1.2")
	now = now.Add(30 * time.Second)
	limiter.cleanup()

	limiter.mu.Lock()
	_, idle := limiter.visitors["192.168.1.1"]
	_, recent := limiter.visitors["192.168.1.2"]
	limiter.mu.Unlock()
	if idle {
		t.Error("cleanup kept a visitor idle for longer than the window")
	}
	if !recent {
		t.Error("cleanup dropped a visitor seen inside the window")
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: false, requestsPerIP: 1, window: time.Second})
	for i := 0; i < 100; i++ {
		if !limiter.allow("192.168.1.1") {
			t.Fatalf("request %d should be allowed when rate limiter is disabled", i+1)
		}
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote, forwarded, want string
	}{
		{"192.168.1.1:12345", "", "192.168.1.1"},
		{"[2001:db8::1]:12345", "", "2001:db8::1"},
		{"10.0.0.1:12345", "203.0.113.1, 10.0.0.2", "203.0.113.1"},
		{"10.0.0.1:8080", "2001:db8::42", "2001:db8::42"},
		{"10.0.0.1:8080", "192.0.2.1", "192.0.2.1"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/link", nil)
		req.RemoteAddr = tt.remote
		if tt.forwarded != "" {
			req.Header.Set("X-Forwarded-For", tt.forwarded)
		}
		if got := clientIP(req); got != tt.want {
			t.Errorf("clientIP(%q, %q) = %q, want %q", tt.remote, tt.forwarded, got, tt.want)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := newIPRateLimiter(ctx, &rateLimiterConfig{enabled: true, requestsPerIP: 2, window: time.Minute})
	handler := rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), limiter)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		req.RemoteAddr = "[2001:db8::1]:" + []string{"1111", "2222", "3333"}[i]
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		if rr.Code != want {
			t.Errorf("request %d: expected %d, got %d", i+1, want, rr.Code)
		}
		if i == 2 && rr.Header().Get("Retry-After") != "30" {
			t.Errorf("Retry-After = %q, want 30", rr.Header().Get("Retry-After"))
		}
	}
}

func TestLoadRateLimiterConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_ENABLED", "0")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_IP", "5")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")
	cfg := loadRateLimiterConfig()
	if cfg.enabled || cfg.requestsPerIP != 5 || cfg.window != 30*time.Second {
		t.Errorf("loadRateLimiterConfig() = %+v", *cfg)
	}

	t.Setenv("RATE_LIMIT_ENABLED", "")
	t.Setenv("RATE_LIMIT_REQUESTS_PER_IP", "lots")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "-1")
	cfg = loadRateLimiterConfig()
	if !cfg.enabled || cfg.requestsPerIP != 10 || cfg.window != time.Minute {
		t.Errorf("defaults = %+v", *cfg)
	}
}
