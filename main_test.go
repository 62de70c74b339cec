package main

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeTokens struct {
	token string
	err   error
}

func (f fakeTokens) Get(context.Context) (string, error) { return f.token, f.err }

type fakeIdentity struct {
	name  string
	err   error
	calls int
}

func (f *fakeIdentity) Me(context.Context) (string, error) {
	f.calls++
	return f.name, f.err
}

func TestCheckCredentials(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		tokens    fakeTokens
		reddit    *fakeIdentity
		want      string
		wantErr   string
		wantCalls int
	}{
		{"both valid", fakeTokens{token: "app-token-123456"}, &fakeIdentity{name: "nerodia-bot"}, "nerodia-bot", "", 1},
		{"twitch rejected", fakeTokens{err: boom}, &fakeIdentity{name: "nerodia-bot"}, "", "twitch app token fetch", 0},
		{"reddit rejected", fakeTokens{token: "tok"}, &fakeIdentity{err: boom}, "", "reddit login", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := checkCredentials(context.Background(), tt.tokens, tt.reddit)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) || !errors.Is(err, boom) {
					t.Fatalf("checkCredentials() error = %v, want %q wrapping boom", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("checkCredentials() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("checkCredentials() = %q, want %q", got, tt.want)
			}
			if tt.reddit.calls != tt.wantCalls {
				t.Errorf("reddit Me calls = %d, want %d", tt.reddit.calls, tt.wantCalls)
			}
		})
	}
}
