// Package reddit is a small client for the parts of the Reddit OAuth API the
// bot uses: the inbox, moderator invites and the sidebar wiki page.
package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/Volcyy/nerodia/apierr"
)

// APIBase is the OAuth API host all authenticated calls go to.
const APIBase = "https://oauth.reddit.com"

// sidebarPage is the wiki page that holds a subreddit's sidebar markdown.
const sidebarPage = "config/sidebar"

// DefaultTimeout bounds each HTTP exchange when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Config carries the script-app credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string

	// Timeout bounds every API and token request. Zero means DefaultTimeout.
	Timeout time.Duration

	// TokenURL and APIBase override the Reddit endpoints (tests).
	TokenURL string
	APIBase  string
}

// Message is a private message (or comment reply) from the inbox.
type Message struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	Author     string `json:"author"`
	Subreddit  string `json:"subreddit"`
	WasComment bool   `json:"was_comment"`
}

// Client talks to the Reddit API as the configured bot account.
type Client struct {
	base string
	http *http.Client
}

// New returns a client authenticating with the password grant. base is the
// transport used for both token and API requests; nil means
// http.DefaultTransport.
func New(cfg Config, base http.RoundTripper) *Client {
	if base == nil {
		base = http.DefaultTransport
	}
	agent := cfg.UserAgent
	if agent == "" {
		agent = "nerodia (by /u/" + cfg.Username + ")"
	}
	ua := &userAgentTransport{agent: agent, base: base}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = APIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		base: strings.TrimRight(apiBase, "/"),
		http: &http.Client{
			Transport: &oauth2.Transport{Source: newTokenSource(cfg, ua), Base: ua},
			Timeout:   cfg.Timeout,
		},
	}
}

// do sends one request and decodes a JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if err := apierr.CheckResponse("reddit", resp); err != nil {
		return err
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode reddit %s: %w", path, err)
	}
	return nil
}

// call is do under the shared retry policy.
func (c *Client) call(ctx context.Context, method, path string, form url.Values, out any) error {
	return apierr.Retry(ctx, "reddit "+path, func() error {
		return c.do(ctx, method, path, form, out)
	})
}

// jsonErrors is the envelope api_type=json POST endpoints answer with.
type jsonErrors struct {
	JSON struct {
		Errors [][]any `json:"errors"`
	} `json:"json"`
}

func (e jsonErrors) err(op string) error {
	if len(e.JSON.Errors) == 0 {
		return nil
	}
	parts := make([]string, 0, len(e.JSON.Errors))
	for _, item := range e.JSON.Errors {
		fields := make([]string, 0, len(item))
		for _, f := range item {
			fields = append(fields, fmt.Sprint(f))
		}
		parts = append(parts, strings.Join(fields, ": "))
	}
	return fmt.Errorf("reddit %s: %s", op, strings.Join(parts, "; "))
}

// Me returns the name of the authenticated account. Used as a startup check
// of the credentials.
func (c *Client) Me(ctx context.Context) (string, error) {
	var me struct {
		Name string `json:"name"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/me", nil, &me); err != nil {
		return "", err
	}
	if me.Name == "" {
		return "", errors.New("reddit: empty account name")
	}
	return me.Name, nil
}

// FetchUnread returns the unread inbox items in the order Reddit lists them.
func (c *Client) FetchUnread(ctx context.Context) ([]Message, error) {
	var listing struct {
		Data struct {
			Children []struct {
				Kind string  `json:"kind"`
				Data Message `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/message/unread?raw_json=1&limit=100", nil, &listing); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		msgs = append(msgs, child.Data)
	}
	return msgs, nil
}

// MarkRead marks the given messages as read.
func (c *Client) MarkRead(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	names := make([]string, 0, len(msgs))
	for _, m := range msgs {
		names = append(names, m.Name)
	}
	form := url.Values{}
	form.Set("id", strings.Join(names, ","))
	return c.call(ctx, http.MethodPost, "/api/read_message", form, nil)
}

// Reply answers msg with a markdown text. Replies are not retried: a request
// that failed after Reddit accepted it would post twice.
func (c *Client) Reply(ctx context.Context, msg Message, text string) error {
	form := url.Values{}
	form.Set("api_type", "json")
	form.Set("thing_id", msg.Name)
	form.Set("text", text)
	var resp jsonErrors
	if err := c.do(ctx, http.MethodPost, "/api/comment", form, &resp); err != nil {
		return err
	}
	return resp.err("reply")
}

// AcceptModInvite accepts a pending moderator invite for subreddit.
func (c *Client) AcceptModInvite(ctx context.Context, subreddit string) error {
	if subreddit == "" {
		return errors.New("reddit: accept invite: subreddit empty")
	}
	form := url.Values{}
	form.Set("api_type", "json")
	var resp jsonErrors
	if err := c.call(ctx, http.MethodPost, "/r/"+url.PathEscape(subreddit)+"/api/accept_moderator_invite", form, &resp); err != nil {
		return err
	}
	return resp.err("accept moderator invite")
}

// ReadSidebar returns the sidebar markdown of subreddit.
func (c *Client) ReadSidebar(ctx context.Context, subreddit string) (string, error) {
	var page struct {
		Data struct {
			ContentMD string `json:"content_md"`
		} `json:"data"`
	}
	path := "/r/" + url.PathEscape(subreddit) + "/wiki/" + sidebarPage + "?raw_json=1"
	if err := c.call(ctx, http.MethodGet, path, nil, &page); err != nil {
		return "", err
	}
	return page.Data.ContentMD, nil
}

// WriteSidebar replaces the sidebar markdown of subreddit.
func (c *Client) WriteSidebar(ctx context.Context, subreddit, text string) error {
	form := url.Values{}
	form.Set("page", sidebarPage)
	form.Set("content", text)
	form.Set("reason", "Update stream list")
	return c.call(ctx, http.MethodPost, "/r/"+url.PathEscape(subreddit)+"/api/wiki/edit", form, nil)
}
