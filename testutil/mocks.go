package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockTwitchServer is a fake Twitch API serving the app token endpoint and
// /helix/streams from a mutable set of live logins.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu   sync.Mutex
	live map[string]bool
	fail map[string]int
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
		live:     make(map[string]bool),
		fail:     make(map[string]int),
	}
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{
			"access_token": "mock-app-token",
			"expires_in":   3600,
			"token_type":   "bearer",
		})
	}
	m.Handlers["/helix/streams"] = m.serveStreams
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// SetLive marks login as broadcasting or not.
func (m *MockTwitchServer) SetLive(login string, live bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[strings.ToLower(login)] = live
}

// FailNext makes the next n stream lookups of login answer 500.
func (m *MockTwitchServer) FailNext(login string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[strings.ToLower(login)] = n
}

func (m *MockTwitchServer) serveStreams(w http.ResponseWriter, r *http.Request) {
	login := strings.ToLower(r.URL.Query().Get("user_login"))
	m.mu.Lock()
	failing := m.fail[login] > 0
	if failing {
		m.fail[login]--
	}
	live := m.live[login]
	m.mu.Unlock()

	if failing {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	data := []map[string]interface{}{}
	if live {
		data = append(data, map[string]interface{}{"user_login": login, "type": "live", "title": "live now"})
	}
	writeJSON(w, map[string]interface{}{"data": data})
}

// Client returns an HTTP client that sends every request to the mock
// server, whatever host the request names.
func (m *MockTwitchServer) Client() *http.Client {
	return &http.Client{Transport: RewriteTransport{Target: m.URL}}
}

// RewriteTransport redirects requests to Target, keeping path and query.
type RewriteTransport struct {
	Target string
	Base   http.RoundTripper
}

func (t RewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = "http"
	r.URL.Host = strings.TrimPrefix(strings.TrimPrefix(t.Target, "http://"), "https://")
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
