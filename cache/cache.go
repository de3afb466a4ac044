// Package cache defines the deduplicating answer cache contract: a
// persistent map from (template, data, worker kind) to an ordered list of
// answers, with reservation semantics so repeated asks of the same inputs
// receive distinct cached answers within a session.
package cache

import (
	"context"
	"sync"

	"github.com/qaorchestrator/haio/question"
)

// Record is one historical answer stored under a cache entry's id.
type Record struct {
	ID     string
	Worker string
	Answer string
}

// Reservations is the per-session "used_cache" set from spec.md §4.3/§5: a
// strictly additive set of cache record ids this session has already
// claimed, so find_unused/reserve never hand out the same id twice to the
// same session.
type Reservations struct {
	mu   sync.Mutex
	used map[string]struct{}
}

// NewReservations builds an empty reservation set. One instance belongs to
// exactly one session.
func NewReservations() *Reservations {
	return &Reservations{used: make(map[string]struct{})}
}

// Contains reports whether id has already been reserved in this session.
func (r *Reservations) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.used[id]
	return ok
}

// Add marks id as reserved. Reservations are never removed (Invariant 3:
// cache consumption monotonicity).
func (r *Reservations) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used[id] = struct{}{}
}

// Cache is the deduplicating answer store C4 consults. Implementations:
// cache/local (file-backed, one JSON file per template fingerprint) and
// cache/inmemory (a fake for tests).
type Cache interface {
	// Reserve mints a new Record id for (t, d, worker) and adds it to
	// reservations, or — if a free (unreserved) record already exists —
	// returns that record's id instead, still adding it to reservations.
	// existing reports which case occurred.
	Reserve(ctx context.Context, t question.Template, d question.Data, worker string, reservations *Reservations) (id string, existing bool, err error)

	// FindUnused returns the first Record for (t, d, worker) whose id is
	// not already in reservations, without reserving it.
	FindUnused(t question.Template, d question.Data, worker string, reservations *Reservations) (Record, bool, error)

	// Store persists a newly produced answer under id, which must have come
	// from a prior Reserve call.
	Store(ctx context.Context, t question.Template, d question.Data, worker, id, answer string) error
}
