// Package reconcile holds the identity-reconciliation rules: signup
// deduplication, contact indexing and matching, withdrawal filtering,
// identity carry-forward, status computation and duplicate-contact detection.
//
// Everything here is side-effect free. Per-record problems never become
// errors; they are recorded as model.Conflict values in a Sink.
package reconcile

import (
	"sync"
	"time"

	"github.com/sells-group/mentor-sync/internal/model"
)

// Sink is an ordered, append-only conflict collector. It is safe for
// concurrent use, but callers that need deterministic output should append
// from a single goroutine.
type Sink struct {
	mu        sync.Mutex
	at        time.Time
	conflicts []model.Conflict
}

// NewSink returns a Sink that stamps every conflict with at.
func NewSink(at time.Time) *Sink {
	return &Sink{at: at}
}

// Add appends c, filling CreatedAt when unset.
func (s *Sink) Add(c model.Conflict) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.at
	}
	s.mu.Lock()
	s.conflicts = append(s.conflicts, c)
	s.mu.Unlock()
}

// AddAll appends cs in order.
func (s *Sink) AddAll(cs []model.Conflict) {
	for _, c := range cs {
		s.Add(c)
	}
}

// Conflicts returns a copy of everything recorded so far.
func (s *Sink) Conflicts() []model.Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Conflict, len(s.conflicts))
	copy(out, s.conflicts)
	return out
}

// Len returns the number of recorded conflicts.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conflicts)
}

// CountBySeverity tallies recorded conflicts per severity.
func (s *Sink) CountBySeverity() map[model.Severity]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[model.Severity]int)
	for _, c := range s.conflicts {
		counts[c.Severity]++
	}
	return counts
}
