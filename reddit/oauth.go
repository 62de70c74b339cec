package reddit

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// TokenURL is Reddit's OAuth token endpoint.
const TokenURL = "https://www.reddit.com/api/v1/access_token"

// passwordSource fetches a new token with the script-app password grant each
// time it is asked. Reddit issues no refresh token for this grant, so the
// source is wrapped in oauth2.ReuseTokenSource which caches until expiry.
type passwordSource struct {
	ctx      context.Context
	conf     *oauth2.Config
	username string
	password string
}

func (s *passwordSource) Token() (*oauth2.Token, error) {
	return s.conf.PasswordCredentialsToken(s.ctx, s.username, s.password)
}

// userAgentTransport stamps every request with the configured User-Agent.
// Reddit throttles requests carrying a generic one.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(r)
}

// newTokenSource builds the cached password-grant token source. Token requests
// go through base (with the User-Agent applied) and give up after cfg.Timeout.
func newTokenSource(cfg Config, base http.RoundTripper) oauth2.TokenSource {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = TokenURL
	}
	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
		Scopes: []string{"identity", "privatemessages", "modself", "wikiread", "wikiedit", "read", "submit"},
	}
	// The token source outlives any single request, so it gets its own
	// background context carrying the HTTP client.
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: base, Timeout: cfg.Timeout})
	return oauth2.ReuseTokenSource(nil, &passwordSource{
		ctx:      ctx,
		conf:     conf,
		username: cfg.Username,
		password: cfg.Password,
	})
}
