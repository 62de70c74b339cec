package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"
)

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.deps.DB != nil {
		if err := h.deps.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests: the database must answer
// and every poller must have finished a round recently.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	type check struct {
		name string
		fn   func() error
	}
	var checks []check
	if h.deps.DB != nil {
		checks = append(checks, check{"database", func() error { return h.deps.DB.PingContext(r.Context()) }})
	}
	if h.deps.Heartbeats != nil && h.deps.MaxHeartbeatAge > 0 {
		for _, key := range h.deps.HeartbeatKeys {
			checks = append(checks, check{key, func() error {
				at, ok, err := h.deps.Heartbeats.LastTouched(r.Context(), key)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no round completed yet")
				}
				if age := h.now().Sub(at); age > h.deps.MaxHeartbeatAge {
					return fmt.Errorf("last round %s ago", age.Round(time.Second))
				}
				return nil
			}})
		}
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type streamStatus struct {
	Stream string `json:"stream"`
	Online bool   `json:"online"`
}

type statusResponse struct {
	Streams      []streamStatus `json:"streams"`
	Online       int            `json:"online"`
	QueueDepth   int            `json:"queue_depth"`
	PendingLinks int            `json:"pending_links"`
}

// HandleStatus reports the last observed state of every stream together
// with the event backlog.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Streams: []streamStatus{}}
	if h.deps.States != nil {
		for stream, online := range h.deps.States.Snapshot() {
			resp.Streams = append(resp.Streams, streamStatus{Stream: stream, Online: online})
			if online {
				resp.Online++
			}
		}
		sort.Slice(resp.Streams, func(i, j int) bool { return resp.Streams[i].Stream < resp.Streams[j].Stream })
	}
	if h.deps.Queue != nil {
		resp.QueueDepth = h.deps.Queue.Len()
	}
	if h.deps.Links != nil {
		resp.PendingLinks = h.deps.Links.Pending()
	}
	writeJSON(w, http.StatusOK, resp)
}
