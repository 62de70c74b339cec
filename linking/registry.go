// Package linking holds the short-lived state of account linking: the token
// handed to a user and, once a Reddit message carrying that token arrives,
// the Reddit name it came from.
package linking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTimeout is returned by WaitForVerification when no matching message
// arrived in time.
var ErrTimeout = errors.New("verification timed out")

// DefaultPollInterval is how often WaitForVerification checks for a result.
const DefaultPollInterval = 5 * time.Second

type pendingToken struct {
	token  string
	issued time.Time
}

// Registry maps user ids to pending tokens and to verified Reddit names.
// The two maps have separate locks; no method holds both at once.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	tokenMu sync.Mutex
	tokens  map[string]pendingToken // user id -> token

	verifiedMu sync.Mutex
	verified   map[string]string // user id -> reddit name
}

// NewRegistry returns an empty registry whose tokens expire after ttl.
// A ttl of zero keeps tokens until revoked.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		ttl:      ttl,
		now:      time.Now,
		tokens:   make(map[string]pendingToken),
		verified: make(map[string]string),
	}
}

// Issue creates a fresh token for userID, replacing any earlier one.
func (r *Registry) Issue(userID string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	r.tokenMu.Lock()
	r.pruneLocked()
	r.tokens[userID] = pendingToken{token: token, issued: r.now()}
	r.tokenMu.Unlock()
	return token
}

// pruneLocked drops expired tokens. tokenMu must be held.
func (r *Registry) pruneLocked() {
	if r.ttl <= 0 {
		return
	}
	cutoff := r.now().Add(-r.ttl)
	for user, p := range r.tokens {
		if p.issued.Before(cutoff) {
			delete(r.tokens, user)
		}
	}
}

// Revoke drops the pending token of userID.
func (r *Registry) Revoke(userID string) {
	r.tokenMu.Lock()
	delete(r.tokens, userID)
	r.tokenMu.Unlock()
}

// MatchToken returns the user a pending token was issued to.
func (r *Registry) MatchToken(token string) (userID string, ok bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	r.tokenMu.Lock()
	defer r.tokenMu.Unlock()
	r.pruneLocked()
	for user, p := range r.tokens {
		if p.token == token {
			return user, true
		}
	}
	return "", false
}

// Pending returns the number of outstanding tokens.
func (r *Registry) Pending() int {
	r.tokenMu.Lock()
	defer r.tokenMu.Unlock()
	r.pruneLocked()
	return len(r.tokens)
}

// MarkVerified records that userID proved ownership of redditName.
func (r *Registry) MarkVerified(userID, redditName string) {
	r.verifiedMu.Lock()
	r.verified[userID] = redditName
	r.verifiedMu.Unlock()
}

// TakeVerified returns and removes the verified Reddit name of userID.
func (r *Registry) TakeVerified(userID string) (redditName string, ok bool) {
	r.verifiedMu.Lock()
	defer r.verifiedMu.Unlock()
	redditName, ok = r.verified[userID]
	if ok {
		delete(r.verified, userID)
	}
	return redditName, ok
}

// WaitForVerification polls every interval until userID is verified or ctx
// ends. A successful verification consumes the pending token. On timeout it
// returns ErrTimeout and the token stays valid until its own expiry; on
// cancellation it returns ctx.Err().
func (r *Registry) WaitForVerification(ctx context.Context, userID string, every time.Duration) (string, error) {
	if every <= 0 {
		every = DefaultPollInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if name, ok := r.TakeVerified(userID); ok {
			r.Revoke(userID)
			return name, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
