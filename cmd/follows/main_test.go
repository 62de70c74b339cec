package main

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
)

type memStore struct {
	follows map[string]map[string]bool
}

func (m *memStore) AllFollows(context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, streams := range m.follows {
		for s := range streams {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) SubredditFollows(_ context.Context, sub string) ([]string, error) {
	var out []string
	for s := range m.follows[sub] {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) AddFollow(_ context.Context, sub, stream string) (bool, error) {
	if m.follows[sub] == nil {
		m.follows[sub] = map[string]bool{}
	}
	if m.follows[sub][stream] {
		return false, nil
	}
	m.follows[sub][stream] = true
	return true, nil
}

func (m *memStore) RemoveFollow(_ context.Context, sub, stream string) (bool, error) {
	if !m.follows[sub][stream] {
		return false, nil
	}
	delete(m.follows[sub], stream)
	return true, nil
}

func TestRun(t *testing.T) {
	store := &memStore{follows: map[string]map[string]bool{}}
	ctx := context.Background()

	steps := []struct {
		args    string
		want    string
		wantErr bool
	}{
		{args: "add games zed", want: "/r/games now follows zed\n"},
		{args: "add games amy", want: "/r/games now follows amy\n"},
		{args: "add art amy", want: "/r/art now follows amy\n"},
		{args: "add games zed", want: "/r/games already follows zed\n"},
		{args: "list games", want: "amy\nzed\n"},
		{args: "list", want: "amy\nzed\n"},
		{args: "remove games zed", want: "/r/games no longer follows zed\n"},
		{args: "remove games zed", wantErr: true},
		{args: "list games", want: "amy\n"},
		{args: "list nobody", want: ""},
	}
	for _, s := range steps {
		var out bytes.Buffer
		err := run(ctx, store, strings.Fields(s.args), &out)
		if (err != nil) != s.wantErr {
			t.Fatalf("run(%q) error = %v, wantErr %v", s.args, err, s.wantErr)
		}
		if got := out.String(); got != s.want {
			t.Errorf("run(%q) output = %q, want %q", s.args, got, s.want)
		}
	}
}

func TestRunUsage(t *testing.T) {
	store := &memStore{follows: map[string]map[string]bool{}}
	for _, args := range []string{"", "add games", "remove", "list a b", "frobnicate"} {
		err := run(context.Background(), store, strings.Fields(args), &bytes.Buffer{})
		if !errors.Is(err, errUsage) {
			t.Errorf("run(%q) error = %v, want usage error", args, err)
		}
	}
}
