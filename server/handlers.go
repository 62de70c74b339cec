// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Volcyy/nerodia/events"
	"github.com/Volcyy/nerodia/linking"
	"github.com/Volcyy/nerodia/streams"
)

// Pinger reports database connectivity.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HeartbeatReader returns when a background job last completed a round.
type HeartbeatReader interface {
	LastTouched(ctx context.Context, key string) (time.Time, bool, error)
}

// FollowStore is the subscriber registry behind the admin endpoints.
type FollowStore interface {
	AllFollows(ctx context.Context) ([]string, error)
	SubredditFollows(ctx context.Context, subreddit string) ([]string, error)
	AddFollow(ctx context.Context, subreddit, stream string) (bool, error)
	RemoveFollow(ctx context.Context, subreddit, stream string) (bool, error)
}

// SidebarSyncer rewrites one subreddit's sidebar from the current state.
type SidebarSyncer interface {
	Sync(ctx context.Context, subreddit string) error
}

// Deps are the collaborators the handlers read from. Nil fields disable the
// endpoints or checks that need them.
type Deps struct {
	DB         Pinger
	Heartbeats HeartbeatReader
	Follows    FollowStore
	Sidebars   SidebarSyncer
	States     *streams.StateStore
	Queue      *events.Queue
	Links      *linking.Registry

	// BotName is the Reddit account verification messages are sent to.
	BotName string
	// HeartbeatKeys are checked by /readyz against MaxHeartbeatAge.
	HeartbeatKeys   []string
	MaxHeartbeatAge time.Duration
	// LinkPollInterval is how often a waiting /link request looks for a result.
	LinkPollInterval time.Duration
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps Deps
	now  func() time.Time
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps, now: time.Now}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
