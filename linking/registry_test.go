package linking

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIssueAndMatch(t *testing.T) {
	r := NewRegistry(0)
	tok := r.Issue("user-1")
	if len(tok) != 32 {
		t.Errorf("token %q has length %d, want 32", tok, len(tok))
	}
	if user, ok := r.MatchToken(tok); !ok || user != "user-1" {
		t.Errorf("MatchToken() = %q,%v", user, ok)
	}
	if user, ok := r.MatchToken("  " + tok + "\n"); !ok || user != "user-1" {
		t.Errorf("MatchToken(padded) = %q,%v", user, ok)
	}
	if _, ok := r.MatchToken("nope"); ok {
		t.Error("unknown token matched")
	}
	if _, ok := r.MatchToken(""); ok {
		t.Error("empty token matched")
	}

	second := r.Issue("user-1")
	if second == tok {
		t.Error("re-issued token is identical")
	}
	if _, ok := r.MatchToken(tok); ok {
		t.Error("replaced token still matches")
	}
	if r.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", r.Pending())
	}

	r.Revoke("user-1")
	if _, ok := r.MatchToken(second); ok {
		t.Error("revoked token still matches")
	}
}

func TestTakeVerified(t *testing.T) {
	r := NewRegistry(0)
	if _, ok := r.TakeVerified("u"); ok {
		t.Fatal("TakeVerified on empty registry succeeded")
	}
	r.MarkVerified("u", "reddit_name")
	if name, ok := r.TakeVerified("u"); !ok || name != "reddit_name" {
		t.Fatalf("TakeVerified() = %q,%v", name, ok)
	}
	if _, ok := r.TakeVerified("u"); ok {
		t.Error("TakeVerified returned the same entry twice")
	}
}

func TestWaitForVerification(t *testing.T) {
	r := NewRegistry(0)
	r.Issue("u")
	go func() {
		time.Sleep(5 * time.Millisecond)
		r.MarkVerified("u", "alice")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	name, err := r.WaitForVerification(ctx, "u", time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForVerification() error = %v", err)
	}
	if name != "alice" {
		t.Errorf("name = %q, want alice", name)
	}
	if r.Pending() != 0 {
		t.Error("token not revoked after verification")
	}
}

func TestWaitForVerificationTimeout(t *testing.T) {
	r := NewRegistry(0)
	r.Issue("u")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.WaitForVerification(ctx, "u", time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("WaitForVerification() error = %v, want ErrTimeout", err)
	}
	if r.Pending() != 1 {
		t.Error("timeout revoked the still valid token")
	}

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if _, err := r.WaitForVerification(ctx, "u", time.Millisecond); !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitForVerification() error = %v, want context.Canceled", err)
	}
}

func TestTokensExpire(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewRegistry(5 * time.Minute)
	r.now = func() time.Time { return now }

	tok := r.Issue("u")
	now = now.Add(4 * time.Minute)
	if _, ok := r.MatchToken(tok); !ok {
		t.Fatal("token expired early")
	}
	now = now.Add(2 * time.Minute)
	if _, ok := r.MatchToken(tok); ok {
		t.Error("expired token still matches")
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after expiry", r.Pending())
	}
}
