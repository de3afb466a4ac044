// Package router resolves one logical "ask" into either a cache hit
// (reservation) or a worker call, and binds later retrieval to the same
// slot — the C5 component of the orchestrator.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/qaorchestrator/haio/cache"
	"github.com/qaorchestrator/haio/log"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/worker"
)

// DefaultPollInterval is the inter-poll delay Collect waits between
// IsDone checks while awaiting an asynchronous worker (the human
// marketplace), mirroring check_frequency in
// original_source/haio/common.py. It is the only named suspension point
// in the engine (spec.md §5).
const DefaultPollInterval = 5 * time.Second

// RequestedQuestion is the record Route produces and Collect consumes.
type RequestedQuestion struct {
	Template question.Template
	Data     question.Data
	CacheID  string
	Handle   string // empty when CacheID was satisfied by a cache hit
	Worker   string
}

// Route implements the C5 routing algorithm of spec.md §4.4: it reserves
// a cache slot (reusing a free cached record if one exists) and, only on a
// miss, dispatches the instantiated question to w.
func Route(ctx context.Context, t question.Template, d question.Data, workerKind string, w worker.Worker, c cache.Cache, reservations *cache.Reservations) (RequestedQuestion, error) {
	id, existing, err := c.Reserve(ctx, t, d, workerKind, reservations)
	if err != nil {
		log.Warnf("router: reserve cache slot for worker %s failed: %v", workerKind, err)
		return RequestedQuestion{}, fmt.Errorf("reserve cache slot: %w", err)
	}

	rq := RequestedQuestion{Template: t, Data: d, CacheID: id, Worker: workerKind}
	if existing {
		log.Debugf("router: cache reservation %s for worker %s reused an existing record", id, workerKind)
		return rq, nil
	}
	log.Debugf("router: cache reservation %s for worker %s is a miss, dispatching", id, workerKind)

	qc, err := question.InsertData(t, d)
	if err != nil {
		return RequestedQuestion{}, err
	}
	handle, err := w.Submit(ctx, qc)
	if err != nil {
		log.Warnf("router: submit to worker %s failed: %v", workerKind, err)
		return RequestedQuestion{}, fmt.Errorf("submit to worker %s: %w", workerKind, err)
	}
	rq.Handle = handle
	return rq, nil
}

// Collect implements the C5 collection algorithm of spec.md §4.4: a cache
// hit reads straight from the cache (the record is guaranteed to exist by
// invariant); otherwise it polls IsDone at pollInterval until true, takes
// the result, normalizes it against the template's answer type, persists
// it, and returns it.
func Collect(ctx context.Context, rq RequestedQuestion, w worker.Worker, c cache.Cache, reservations *cache.Reservations, pollInterval time.Duration) (string, error) {
	if rq.Handle == "" {
		rec, found, err := findByID(rq.Template, rq.Data, rq.Worker, rq.CacheID, c, reservations)
		if err != nil {
			return "", err
		}
		if !found {
			return "", fmt.Errorf("cache record %s for worker %s not found despite reservation", rq.CacheID, rq.Worker)
		}
		return rec.Answer, nil
	}

	for {
		done, err := w.IsDone(ctx, rq.Handle)
		if err != nil {
			log.Warnf("router: poll worker %s failed: %v", rq.Worker, err)
			return "", fmt.Errorf("poll worker %s: %w", rq.Worker, err)
		}
		if done {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	raw, err := w.Take(ctx, rq.Handle)
	if err != nil {
		log.Errorf("router: take from worker %s failed: %v", rq.Worker, err)
		return "", fmt.Errorf("take from worker %s: %w", rq.Worker, err)
	}
	answer, err := worker.Normalize(raw, rq.Template.Answer)
	if err != nil {
		log.Warnf("router: normalize response from worker %s failed: %v", rq.Worker, err)
		return "", err
	}
	if err := c.Store(ctx, rq.Template, rq.Data, rq.Worker, rq.CacheID, answer); err != nil {
		log.Errorf("router: store answer for cache reservation %s failed: %v", rq.CacheID, err)
		return "", fmt.Errorf("store answer: %w", err)
	}
	log.Debugf("router: cache reservation %s for worker %s stored answer %q", rq.CacheID, rq.Worker, answer)
	return answer, nil
}

// findByID scans FindUnused-visible records for the one id Route already
// reserved; it exists because cache.Cache doesn't expose an id-keyed
// lookup directly, only the reservation-aware scan.
func findByID(t question.Template, d question.Data, workerKind, id string, c cache.Cache, reservations *cache.Reservations) (cache.Record, bool, error) {
	// The record behind id is, by construction, already in reservations
	// (Route added it via Reserve), so FindUnused itself won't see it —
	// we need a reservation-agnostic peek. cache.Cache doesn't expose one
	// directly, so local/inmemory implementations are relied on to also
	// satisfy this lookup by scanning with an empty probe set.
	probe := cache.NewReservations()
	for {
		rec, found, err := c.FindUnused(t, d, workerKind, probe)
		if err != nil {
			return cache.Record{}, false, err
		}
		if !found {
			return cache.Record{}, false, nil
		}
		if rec.ID == id {
			return rec, true, nil
		}
		probe.Add(rec.ID)
	}
}
