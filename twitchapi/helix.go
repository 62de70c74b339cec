// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for user id resolution and live status checks, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Volcyy/nerodia/apierr"
)

const helixBaseURL = "https://api.twitch.tv/helix"

// ErrUserNotFound is returned by GetUserID when Helix knows no such login.
var ErrUserNotFound = errors.New("user not found")

// HelixClient provides the Helix calls the stream poller needs.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
}

// Stream is the subset of a Helix stream object that is kept.
type Stream struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	UserLogin   string    `json:"user_login"`
	UserName    string    `json:"user_name"`
	GameName    string    `json:"game_name"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	ViewerCount int       `json:"viewer_count"`
	StartedAt   time.Time `json:"started_at"`
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

// get performs an authenticated Helix GET and decodes the JSON body into out.
// 5xx and network failures are retried; a 401 drops the cached app token and
// the request is retried once with a fresh one.
func (hc *HelixClient) get(ctx context.Context, path string, q url.Values, out any) error {
	refreshed := false
	return apierr.Retry(ctx, "helix "+path, func() error {
		err := hc.getOnce(ctx, path, q, out)
		if err != nil && !refreshed && apierr.IsStatus(err, http.StatusUnauthorized) {
			refreshed = true
			hc.AppTokenSource.Invalidate()
			slog.Info("helix rejected app token; refreshing", slog.String("path", path))
			err = hc.getOnce(ctx, path, q, out)
		}
		return err
	})
}

func (hc *HelixClient) getOnce(ctx context.Context, path string, q url.Values, out any) error {
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return fmt.Errorf("app token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helixBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if err := apierr.CheckResponse("twitch helix", resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode helix %s: %w", path, err)
	}
	return nil
}

// GetUserID resolves a login name to its user ID.
func (hc *HelixClient) GetUserID(ctx context.Context, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	q := url.Values{}
	q.Set("login", strings.ToLower(login))
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := hc.get(ctx, "/users", q, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, login)
	}
	return body.Data[0].ID, nil
}

// GetStreams returns the live streams of the given login. An offline (or
// unknown) login yields an empty slice.
func (hc *HelixClient) GetStreams(ctx context.Context, login string) ([]Stream, error) {
	if login == "" {
		return nil, fmt.Errorf("login empty")
	}
	q := url.Values{}
	q.Set("user_login", strings.ToLower(login))
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := hc.get(ctx, "/streams", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// IsOnline reports whether login is currently broadcasting.
func (hc *HelixClient) IsOnline(ctx context.Context, login string) (bool, error) {
	streams, err := hc.GetStreams(ctx, login)
	if err != nil {
		return false, err
	}
	for _, s := range streams {
		if s.Type == "" || s.Type == "live" {
			return true, nil
		}
	}
	return false, nil
}
