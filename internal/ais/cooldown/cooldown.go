// Package cooldown implements the per-(MMSI, rule type) suppression window
// that keeps a noisy rule from flooding alerts for the same vessel.
package cooldown

import (
	"sync"
	"time"

	"github.com/aegisais/detector/internal/ais/model"
)

// DefaultCooldown is the default suppression window.
const DefaultCooldown = 300 * time.Second

type key struct {
	mmsi string
	rule model.RuleType
}

// Store is a process-wide (mmsi, rule type) -> last-fired-timestamp table.
// Its update is idempotent on timestamp monotone growth ("update if
// newer"), so it is safe to share across concurrent sessions even though
// only one session is expected to write to it at a time in practice.
type Store struct {
	mu      sync.Mutex
	entries map[key]time.Time
	window  time.Duration
}

// NewStore returns an empty Store with the given cooldown window.
func NewStore(window time.Duration) *Store {
	if window <= 0 {
		window = DefaultCooldown
	}
	return &Store{entries: make(map[key]time.Time), window: window}
}

// Allow reports whether an alert of ruleType for mmsi at event time t may
// fire, and records t as the new last-fired time when it does. t is event
// time, not wall time: the comparison is against the previous alert's
// timestamp, exactly as the detection rules see it during replay.
func (s *Store) Allow(mmsi string, ruleType model.RuleType, t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{mmsi, ruleType}
	prev, ok := s.entries[k]
	if !ok {
		s.entries[k] = t
		return true
	}
	if t.Sub(prev) < s.window {
		return false
	}
	if t.After(prev) {
		s.entries[k] = t
	}
	return true
}

// Lookup returns the current AlertCooldown row for (mmsi, ruleType), if any.
func (s *Store) Lookup(mmsi string, ruleType model.RuleType) (model.AlertCooldown, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.entries[key{mmsi, ruleType}]
	if !ok {
		return model.AlertCooldown{}, false
	}
	return model.AlertCooldown{MMSI: mmsi, RuleType: ruleType, LastAlertTimestamp: t}, true
}

// PurgeOlderThan removes entries whose last-fired timestamp is older than
// cutoff, returning the number of rows removed. Intended to be called by a
// periodic maintenance task, mirroring the 7-day retention window.
func (s *Store) PurgeOlderThan(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, t := range s.entries {
		if t.Before(cutoff) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked (mmsi, rule type) pairs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
