// Package streams tracks the online state of followed streams and polls the
// streaming platform for transitions.
package streams

import (
	"sort"
	"sync"
)

// StateStore maps a stream to its last observed online state. Entries are
// created on first observation and never removed.
type StateStore struct {
	mu     sync.Mutex
	online map[string]bool
}

// NewStateStore returns an empty store.
func NewStateStore() *StateStore {
	return &StateStore{online: make(map[string]bool)}
}

// Observe records the state seen for stream and reports whether it differs
// from the previous observation. The first observation of a stream is a
// baseline and never counts as a change.
func (s *StateStore) Observe(stream string, online bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, seen := s.online[stream]
	s.online[stream] = online
	return seen && prev != online
}

// Get returns the stored state of stream and whether it was ever observed.
func (s *StateStore) Get(stream string) (online, known bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	online, known = s.online[stream]
	return online, known
}

// OnlineSubset returns the members of streams that are currently online, in
// the order given. Streams never observed count as offline.
func (s *StateStore) OnlineSubset(streams []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, name := range streams {
		if s.online[name] {
			out = append(out, name)
		}
	}
	return out
}

// Snapshot returns a copy of every entry.
func (s *StateStore) Snapshot() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.online))
	for k, v := range s.online {
		out[k] = v
	}
	return out
}

// Online returns the sorted names of all streams currently online.
func (s *StateStore) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k, v := range s.online {
		if v {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
