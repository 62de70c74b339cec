package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Volcyy/nerodia/linking"
	"github.com/Volcyy/nerodia/telemetry"
)

// maxLinkWait caps the long-poll of GET /link/{user_id}.
const maxLinkWait = 60 * time.Second

type linkRequest struct {
	UserID string `json:"user_id"`
}

type linkResponse struct {
	Token      string `json:"token"`
	Bot        string `json:"bot"`
	ComposeURL string `json:"compose_url"`
}

// HandleLinkStart issues a verification token. The user proves ownership of
// a Reddit account by messaging the token to the bot with subject
// "verification".
func (h *Handlers) HandleLinkStart(w http.ResponseWriter, r *http.Request) {
	if h.deps.Links == nil {
		writeError(w, http.StatusServiceUnavailable, "linking disabled")
		return
	}
	var req linkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	token := h.deps.Links.Issue(req.UserID)
	telemetry.LoggerWithCorr(r.Context()).Info("link token issued",
		slog.String("component", "http"), slog.String("user_id", req.UserID))
	writeJSON(w, http.StatusCreated, linkResponse{
		Token:      token,
		Bot:        h.deps.BotName,
		ComposeURL: composeURL(h.deps.BotName, token),
	})
}

func composeURL(bot, token string) string {
	q := url.Values{}
	q.Set("to", bot)
	q.Set("subject", "verification")
	q.Set("message", token)
	return "https://www.reddit.com/message/compose?" + q.Encode()
}

// HandleLinkWait reports whether a user's token has been verified, waiting
// up to ?wait= for the verification message to arrive.
func (h *Handlers) HandleLinkWait(w http.ResponseWriter, r *http.Request) {
	if h.deps.Links == nil {
		writeError(w, http.StatusServiceUnavailable, "linking disabled")
		return
	}
	userID := r.PathValue("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	var wait time.Duration
	if v := r.URL.Query().Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid wait duration")
			return
		}
		wait = min(d, maxLinkWait)
	}

	ctx, cancel := context.WithTimeout(r.Context(), wait)
	defer cancel()
	name, err := h.deps.Links.WaitForVerification(ctx, userID, h.deps.LinkPollInterval)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "verified", "reddit_name": name})
	case errors.Is(err, linking.ErrTimeout):
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
	default:
		// client went away
		telemetry.LoggerWithCorr(r.Context()).Debug("link wait aborted",
			slog.String("component", "http"), slog.Any("err", err))
	}
}
