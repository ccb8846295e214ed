package trigger

import (
	"context"
	"time"
)

// StateEntry records one observed log entry identity. FirstSeen anchors TTL
// eviction: it is set when the identity first fires and never refreshed,
// so a recurring identical entry ages out on schedule regardless of how
// often it is re-seen.
type StateEntry struct {
	Identity  string    `json:"identity"`
	Timestamp string    `json:"timestamp"`
	FirstSeen time.Time `json:"firstSeen"`
}

// State is the dedup memory for one recurring trigger, keyed by entry
// identity. It is owned by a single poll cycle at a time and persisted in
// full at the end of a cycle that fired.
type State struct {
	Entries map[string]StateEntry `json:"entries"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Entries: make(map[string]StateEntry)}
}

// Evaluate decides whether an entry identity should fire. An identity fires
// if and only if it is absent from the state; on fire it is inserted with
// FirstSeen = now. A re-seen identity neither fires nor has its FirstSeen
// refreshed.
func (s *State) Evaluate(identity, timestamp string, now time.Time) bool {
	if _, seen := s.Entries[identity]; seen {
		return false
	}
	s.Entries[identity] = StateEntry{
		Identity:  identity,
		Timestamp: timestamp,
		FirstSeen: now,
	}
	return true
}

// Prune drops entries whose age exceeds ttl. A ttl of zero or less disables
// eviction.
func (s *State) Prune(ttl time.Duration, now time.Time) {
	if ttl <= 0 {
		return
	}
	cutoff := now.Add(-ttl)
	for id, entry := range s.Entries {
		if entry.FirstSeen.Before(cutoff) {
			delete(s.Entries, id)
		}
	}
}

// Store persists trigger state between poll cycles. Load applies TTL pruning
// before returning, so expired identities are treated as never seen. Save
// replaces the whole state for the key.
type Store interface {
	Load(ctx context.Context, key string, ttl time.Duration) (*State, error)
	Save(ctx context.Context, key string, state *State, ttl time.Duration) error
	Close() error
}
