package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Volcyy/nerodia/apierr"
)

func TestMain(m *testing.M) {
	apierr.DefaultPolicy = apierr.Policy{Attempts: 3, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond, MaxJitter: time.Millisecond}
	os.Exit(m.Run())
}

func newTestClient(serverURL string) *HelixClient {
	rewrite := &http.Client{Transport: &rewriteTransport{Transport: http.DefaultTransport, host: serverURL}}
	ts := &TokenSource{ClientID: "test-client-id", ClientSecret: "test-secret", HTTPClient: rewrite}
	ts.SetToken("test-token", time.Now().Add(time.Hour))
	return &HelixClient{AppTokenSource: ts, ClientID: "test-client-id", HTTPClient: rewrite}
}

func TestHelixClient_GetUserID(t *testing.T) {
	tests := []struct {
		response    interface{}
		name        string
		login       string
		wantUserID  string
		errContains string
		statusCode  int
		wantErr     bool
	}{
		{
			name:  "successful user lookup",
			login: "TestUser",
			response: map[string]interface{}{
				"data": []map[string]string{{"id": "12345", "login": "testuser"}},
			},
			statusCode: http.StatusOK,
			wantUserID: "12345",
		},
		{
			name:        "user not found",
			login:       "nonexistent",
			response:    map[string]interface{}{"data": []map[string]string{}},
			statusCode:  http.StatusOK,
			wantErr:     true,
			errContains: "user not found",
		},
		{
			name:        "empty login",
			login:       "",
			wantErr:     true,
			errContains: "login empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Client-Id") != "test-client-id" {
					t.Errorf("missing or wrong Client-Id header")
				}
				if r.Header.Get("Authorization") != "Bearer test-token" {
					t.Errorf("missing or wrong Authorization header")
				}
				if got, want := r.URL.Query().Get("login"), strings.ToLower(tt.login); got != want {
					t.Errorf("login query param = %s, want %s", got, want)
				}
				w.WriteHeader(tt.statusCode)
				if tt.response != nil {
					_ = json.NewEncoder(w).Encode(tt.response)
				}
			}))
			defer server.Close()

			userID, err := newTestClient(server.URL).GetUserID(context.Background(), tt.login)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("GetUserID() error = nil, want error containing %q", tt.errContains)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("GetUserID() error = %v, want error containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetUserID() unexpected error = %v", err)
			}
			if userID != tt.wantUserID {
				t.Errorf("GetUserID() = %s, want %s", userID, tt.wantUserID)
			}
		})
	}
}

func TestHelixClient_GetUserIDNotFoundIsSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).GetUserID(context.Background(), "ghost")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("GetUserID() error = %v, want ErrUserNotFound", err)
	}
}

func TestHelixClient_GetStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/helix/streams" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.URL.Query().Get("user_login"); got != "livechannel" {
			t.Errorf("user_login=%q want livechannel", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{{
				"user_login": "livechannel",
				"type":       "live",
				"title":      "Live Now",
				"started_at": "2024-10-15T14:30:00Z",
			}},
		})
	}))
	defer server.Close()

	streams, err := newTestClient(server.URL).GetStreams(context.Background(), "LiveChannel")
	if err != nil {
		t.Fatalf("GetStreams() error = %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(streams))
	}
	if streams[0].Title != "Live Now" {
		t.Errorf("stream title=%q want Live Now", streams[0].Title)
	}
	if !streams[0].StartedAt.Equal(time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC)) {
		t.Errorf("started_at = %v", streams[0].StartedAt)
	}
}

func TestHelixClient_IsOnline(t *testing.T) {
	tests := []struct {
		name string
		data []map[string]string
		want bool
	}{
		{"offline", []map[string]string{}, false},
		{"live", []map[string]string{{"type": "live"}}, true},
		{"rerun", []map[string]string{{"type": ""}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": tt.data})
			}))
			defer server.Close()

			got, err := newTestClient(server.URL).IsOnline(context.Background(), "somebody")
			if err != nil {
				t.Fatalf("IsOnline() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("IsOnline() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHelixClient_GetStreams5xxRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": "bad gateway"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{{"type": "live"}}})
	}))
	defer server.Close()

	online, err := newTestClient(server.URL).IsOnline(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("IsOnline() error = %v", err)
	}
	if !online {
		t.Errorf("IsOnline() = false after recovery, want true")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestHelixClient_GetStreamsGivesUpAfterPolicy(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	if _, err := newTestClient(server.URL).IsOnline(context.Background(), "down"); err == nil {
		t.Fatal("IsOnline() error = nil, want failure after retries")
	}
	if attempts != int(apierr.DefaultPolicy.Attempts) {
		t.Errorf("attempts = %d, want %d", attempts, apierr.DefaultPolicy.Attempts)
	}
}

func TestHelixClient_401RefreshesToken(t *testing.T) {
	streamAttempts := 0
	tokenRequests := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			tokenRequests++
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "fresh-token",
				"token_type":   "bearer",
				"expires_in":   3600,
			})
		case "/helix/streams":
			streamAttempts++
			if r.Header.Get("Authorization") == "Bearer stale-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if got := r.Header.Get("Authorization"); got != "Bearer fresh-token" {
				t.Errorf("post-refresh auth = %q, want fresh token", got)
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": []map[string]string{}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.AppTokenSource.SetToken("stale-token", time.Now().Add(time.Hour))

	online, err := client.IsOnline(context.Background(), "someone")
	if err != nil {
		t.Fatalf("IsOnline() error = %v", err)
	}
	if online {
		t.Errorf("IsOnline() = true, want false")
	}
	if tokenRequests != 1 {
		t.Errorf("token requests = %d, want 1", tokenRequests)
	}
	if streamAttempts != 2 {
		t.Errorf("stream attempts = %d, want 2", streamAttempts)
	}
}

type rewriteTransport struct {
	Transport http.RoundTripper
	host      string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Rewrite URL to point to test server
	req.URL.Scheme = "http"
	if t.host != "" {
		host := strings.TrimPrefix(t.host, "http://")
		host = strings.TrimPrefix(host, "https://")
		req.URL.Host = host
	}
	return t.Transport.RoundTrip(req)
}
