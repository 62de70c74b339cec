package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Volcyy/nerodia/telemetry"
)

type followRequest struct {
	Subreddit string `json:"subreddit"`
	Stream    string `json:"stream"`
}

// HandleAdminFollowsList lists the streams a subreddit follows, or every
// followed stream when no subreddit is given.
func (h *Handlers) HandleAdminFollowsList(w http.ResponseWriter, r *http.Request) {
	if h.deps.Follows == nil {
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return
	}
	var (
		follows []string
		err     error
	)
	subreddit := strings.TrimSpace(r.URL.Query().Get("subreddit"))
	if subreddit != "" {
		follows, err = h.deps.Follows.SubredditFollows(r.Context(), subreddit)
	} else {
		follows, err = h.deps.Follows.AllFollows(r.Context())
	}
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list follows failed", slog.String("component", "http"), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "list follows failed")
		return
	}
	if follows == nil {
		follows = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"subreddit": subreddit, "streams": follows})
}

// HandleAdminFollowAdd registers a follow and resyncs the subreddit's sidebar.
func (h *Handlers) HandleAdminFollowAdd(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeFollow(w, r)
	if !ok {
		return
	}
	added, err := h.deps.Follows.AddFollow(r.Context(), req.Subreddit, req.Stream)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("add follow failed", slog.String("component", "http"), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "add follow failed")
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
		h.resync(r, req.Subreddit)
	}
	writeJSON(w, status, map[string]any{"subreddit": req.Subreddit, "stream": req.Stream, "added": added})
}

// HandleAdminFollowRemove drops a follow and resyncs the subreddit's sidebar.
func (h *Handlers) HandleAdminFollowRemove(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeFollow(w, r)
	if !ok {
		return
	}
	removed, err := h.deps.Follows.RemoveFollow(r.Context(), req.Subreddit, req.Stream)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("remove follow failed", slog.String("component", "http"), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "remove follow failed")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "follow not found")
		return
	}
	h.resync(r, req.Subreddit)
	writeJSON(w, http.StatusOK, map[string]any{"subreddit": req.Subreddit, "stream": req.Stream, "removed": true})
}

func (h *Handlers) decodeFollow(w http.ResponseWriter, r *http.Request) (followRequest, bool) {
	var req followRequest
	if h.deps.Follows == nil {
		writeError(w, http.StatusServiceUnavailable, "registry unavailable")
		return req, false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return req, false
	}
	req.Subreddit = strings.TrimSpace(req.Subreddit)
	req.Stream = strings.TrimSpace(req.Stream)
	if req.Subreddit == "" || req.Stream == "" {
		writeError(w, http.StatusBadRequest, "subreddit and stream are required")
		return req, false
	}
	return req, true
}

// resync failures are logged only; the next status change retries the sync.
func (h *Handlers) resync(r *http.Request, subreddit string) {
	if h.deps.Sidebars == nil {
		return
	}
	if err := h.deps.Sidebars.Sync(r.Context(), subreddit); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("sidebar resync failed",
			slog.String("component", "http"), slog.String("subreddit", subreddit), slog.Any("err", err))
	}
}
