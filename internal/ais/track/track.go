// Package track implements the per-vessel bounded position history the
// detection rules evaluate against: a bounded FIFO window per MMSI (a slice
// trimmed back to its capacity on each push, not a ring buffer), held in a
// map that one writer owns for the lifetime of a replay session.
package track

import "github.com/aegisais/detector/internal/ais/model"

// DefaultWindowSize is the default number of points retained per vessel.
const DefaultWindowSize = 5

// Window is an ordered FIFO buffer of the most recent points for one MMSI.
// It never mutates a stored point; Push appends a new one and drops the
// oldest once the window exceeds its capacity.
type Window struct {
	capacity int
	points   []model.AisPoint
}

// NewWindow returns an empty Window with the given capacity.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = DefaultWindowSize
	}
	return &Window{capacity: capacity}
}

// Push appends a point, dropping the oldest entry once len > capacity.
// A point whose timestamp is not strictly after the current tail is an
// ignored no-op: the pipeline assumes monotonically non-decreasing
// per-vessel timestamps, and rules cannot evaluate a non-positive Δt.
func (w *Window) Push(p model.AisPoint) (accepted bool) {
	if n := len(w.points); n > 0 && !p.Timestamp.After(w.points[n-1].Timestamp) {
		return false
	}
	w.points = append(w.points, p)
	if len(w.points) > w.capacity {
		w.points = w.points[len(w.points)-w.capacity:]
	}
	return true
}

// Len returns the number of points currently held.
func (w *Window) Len() int {
	return len(w.points)
}

// Last2 returns (second-to-last, last) as value copies. ok is false when
// fewer than two points have been pushed.
func (w *Window) Last2() (p1, p2 model.AisPoint, ok bool) {
	n := len(w.points)
	if n < 2 {
		return model.AisPoint{}, model.AisPoint{}, false
	}
	return w.points[n-2], w.points[n-1], true
}

// Snapshot returns a copy of all points currently held, oldest first.
func (w *Window) Snapshot() []model.AisPoint {
	out := make([]model.AisPoint, len(w.points))
	copy(out, w.points)
	return out
}

// Store is a per-session map from MMSI to that vessel's Window. It is not
// safe for concurrent use from multiple goroutines: the replay driver is
// the single writer for the lifetime of a session (see the concurrency
// model this pipeline follows).
type Store struct {
	windowSize int
	windows    map[string]*Window
}

// NewStore returns an empty Store whose windows have the given capacity.
func NewStore(windowSize int) *Store {
	if windowSize < 1 {
		windowSize = DefaultWindowSize
	}
	return &Store{windowSize: windowSize, windows: make(map[string]*Window)}
}

// Push appends p to the window for p.MMSI, creating the window on first
// sighting of that vessel, and returns the (possibly unchanged) window.
func (s *Store) Push(p model.AisPoint) *Window {
	w, ok := s.windows[p.MMSI]
	if !ok {
		w = NewWindow(s.windowSize)
		s.windows[p.MMSI] = w
	}
	w.Push(p)
	return w
}

// Get returns the window for mmsi, or nil if that vessel has never been seen.
func (s *Store) Get(mmsi string) *Window {
	return s.windows[mmsi]
}

// Len returns the number of tracked vessels.
func (s *Store) Len() int {
	return len(s.windows)
}
