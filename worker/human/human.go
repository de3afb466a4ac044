// Package human implements the asynchronous human-marketplace worker
// contract: Submit creates an external task and IsDone polls its status,
// unlike the AI workers' synchronous single-shot contract. It is grounded
// on original_source/haio/haio.py's MTurk_IO class (ask/is_finished/
// get_answer over a HIT id), generalized behind a Backend so any
// marketplace client can be plugged in without touching the engine.
package human

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qaorchestrator/haio/errs"
	"github.com/qaorchestrator/haio/fingerprint"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/worker"
)

// DefaultPollInterval is the inter-poll delay AskAndWait waits between
// Status checks when the caller doesn't override it with WithPollInterval.
// It mirrors the 5-second check_frequency constant in
// original_source/haio/common.py.
const DefaultPollInterval = 5 * time.Second

// Backend is the narrow marketplace contract a concrete human-task
// provider (MTurk, an internal labeling tool, ...) implements. The core
// never speaks to a marketplace directly — only through this interface.
type Backend interface {
	// CreateTask posts qc to the marketplace and returns an opaque task id.
	CreateTask(ctx context.Context, qc question.Config) (taskID string, err error)
	// Status reports whether the task has a reviewable result.
	Status(ctx context.Context, taskID string) (done bool, err error)
	// Result fetches and clears the raw (un-normalized) worker response.
	Result(ctx context.Context, taskID string) (raw string, err error)
}

// Worker adapts a Backend to worker.Worker.
type Worker struct {
	backend      Backend
	pollInterval time.Duration

	mu      sync.Mutex
	handles map[string]string // handle -> backend task id
}

var _ worker.Worker = (*Worker)(nil)

// Option configures a Worker.
type Option func(*Worker)

// WithPollInterval overrides DefaultPollInterval, e.g. to drive it to zero
// in tests (spec §9 "Cooperative polling").
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.pollInterval = d }
}

// New builds a human Worker over backend.
func New(backend Backend, opts ...Option) *Worker {
	w := &Worker{backend: backend, handles: make(map[string]string), pollInterval: DefaultPollInterval}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Submit implements worker.Worker. Unlike the AI workers, the human
// worker has no single-outstanding-fingerprint restriction: a marketplace
// can review arbitrarily many tasks concurrently.
func (w *Worker) Submit(ctx context.Context, qc question.Config) (string, error) {
	taskID, err := w.backend.CreateTask(ctx, qc)
	if err != nil {
		return "", fmt.Errorf("create marketplace task: %w", err)
	}
	handle := fingerprint.UID()
	w.mu.Lock()
	w.handles[handle] = taskID
	w.mu.Unlock()
	return handle, nil
}

// IsDone implements worker.Worker by polling the backend's task status.
func (w *Worker) IsDone(ctx context.Context, handle string) (bool, error) {
	taskID, ok := w.taskID(handle)
	if !ok {
		return false, fmt.Errorf("%w: handle %s", errs.ErrNeverAsked, handle)
	}
	return w.backend.Status(ctx, taskID)
}

// Take implements worker.Worker. It returns the raw response: normalizing
// it against the question's answer spec is the caller's (router's)
// responsibility since this worker does not retain the original Config
// past Submit; AskAndWait, which has the Config, normalizes it.
func (w *Worker) Take(ctx context.Context, handle string) (string, error) {
	taskID, ok := w.taskID(handle)
	if !ok {
		return "", fmt.Errorf("%w: handle %s", errs.ErrNeverAsked, handle)
	}
	raw, err := w.backend.Result(ctx, taskID)
	if err != nil {
		return "", err
	}
	w.mu.Lock()
	delete(w.handles, handle)
	w.mu.Unlock()
	if raw == "" {
		return "", errs.ErrEmptyResponse
	}
	return raw, nil
}

// AskAndWait implements worker.Worker as Submit, a poll loop over IsDone
// that waits the worker's own poll interval between checks, then Take and
// worker.Normalize against qc's answer spec. router.Collect does not call
// it: Collect polls IsDone and calls Take itself at the engine's interval.
func (w *Worker) AskAndWait(ctx context.Context, qc question.Config) (string, error) {
	handle, err := w.Submit(ctx, qc)
	if err != nil {
		return "", err
	}
	for {
		done, err := w.IsDone(ctx, handle)
		if err != nil {
			return "", err
		}
		if done {
			raw, err := w.Take(ctx, handle)
			if err != nil {
				return "", err
			}
			return worker.Normalize(raw, qc.Answer)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *Worker) taskID(handle string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	taskID, ok := w.handles[handle]
	return taskID, ok
}
