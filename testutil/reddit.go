package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Volcyy/nerodia/reddit"
)

// Reply is a reply the bot posted through MockRedditServer.
type Reply struct {
	ThingID string
	Text    string
}

// MockRedditServer is a fake Reddit API: the token endpoint, the inbox,
// comment replies, moderator invites and the sidebar wiki page.
type MockRedditServer struct {
	*httptest.Server

	mu       sync.Mutex
	unread   []reddit.Message
	read     map[string]bool
	replies  []Reply
	invites  []string
	sidebars map[string]string
	writes   map[string]int
}

// NewMockRedditServer creates a new mock Reddit API server for the account
// named "nerodia-bot".
func NewMockRedditServer(t *testing.T) *MockRedditServer {
	t.Helper()
	m := &MockRedditServer{
		read:     make(map[string]bool),
		sidebars: make(map[string]string),
		writes:   make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"access_token": "mock-reddit-token", "token_type": "bearer", "expires_in": 3600})
	})
	mux.HandleFunc("GET /api/v1/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"name": "nerodia-bot"})
	})
	mux.HandleFunc("GET /message/unread", m.serveUnread)
	mux.HandleFunc("POST /api/read_message", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		for _, id := range strings.Split(r.FormValue("id"), ",") {
			m.read[id] = true
		}
		m.mu.Unlock()
		writeJSON(w, map[string]interface{}{})
	})
	mux.HandleFunc("POST /api/comment", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.replies = append(m.replies, Reply{ThingID: r.FormValue("thing_id"), Text: r.FormValue("text")})
		m.mu.Unlock()
		writeJSON(w, map[string]interface{}{"json": map[string]interface{}{"errors": []interface{}{}}})
	})
	mux.HandleFunc("POST /r/{sub}/api/accept_moderator_invite", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.invites = append(m.invites, r.PathValue("sub"))
		m.mu.Unlock()
		writeJSON(w, map[string]interface{}{"json": map[string]interface{}{"errors": []interface{}{}}})
	})
	mux.HandleFunc("GET /r/{sub}/wiki/config/sidebar", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		doc, ok := m.sidebars[r.PathValue("sub")]
		m.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]interface{}{"kind": "wikipage", "data": map[string]string{"content_md": doc}})
	})
	mux.HandleFunc("POST /r/{sub}/api/wiki/edit", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("page") != "config/sidebar" {
			http.Error(w, "unexpected page", http.StatusBadRequest)
			return
		}
		m.mu.Lock()
		m.sidebars[r.PathValue("sub")] = r.FormValue("content")
		m.writes[r.PathValue("sub")]++
		m.mu.Unlock()
		writeJSON(w, map[string]interface{}{})
	})
	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

func (m *MockRedditServer) serveUnread(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	children := []map[string]interface{}{}
	for _, msg := range m.unread {
		if !m.read[msg.Name] {
			children = append(children, map[string]interface{}{"kind": "t4", "data": msg})
		}
	}
	m.mu.Unlock()
	writeJSON(w, map[string]interface{}{"kind": "Listing", "data": map[string]interface{}{"children": children}})
}

// Config returns client settings pointing at the mock.
func (m *MockRedditServer) Config() reddit.Config {
	return reddit.Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		Username:     "nerodia-bot",
		Password:     "pw",
		UserAgent:    "test:nerodia:v1",
		TokenURL:     m.URL + "/api/v1/access_token",
		APIBase:      m.URL,
	}
}

// Deliver puts msg into the unread inbox.
func (m *MockRedditServer) Deliver(msg reddit.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unread = append(m.unread, msg)
}

// IsRead reports whether the bot marked the message with fullname name read.
func (m *MockRedditServer) IsRead(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.read[name]
}

// Replies returns the replies posted so far.
func (m *MockRedditServer) Replies() []Reply {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reply(nil), m.replies...)
}

// Invites returns the subreddits whose moderator invite was accepted.
func (m *MockRedditServer) Invites() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.invites...)
}

// SetSidebar stores the sidebar markdown of sub.
func (m *MockRedditServer) SetSidebar(sub, doc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sidebars[sub] = doc
}

// Sidebar returns the sidebar markdown of sub and how often the bot wrote it.
func (m *MockRedditServer) Sidebar(sub string) (doc string, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sidebars[sub], m.writes[sub]
}
