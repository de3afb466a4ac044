// Package testworker provides a deterministic in-memory Worker fake for
// engine tests, grounded on the teacher's in-memory evaluation-service test
// fakes (evaluation/evalresult/inmemory/inmemory.go's sync.Map-backed
// approach, adapted here to a scripted-answer worker instead of a result
// store).
package testworker

import (
	"context"
	"fmt"
	"sync"

	"github.com/qaorchestrator/haio/errs"
	"github.com/qaorchestrator/haio/fingerprint"
	"github.com/qaorchestrator/haio/question"
)

// AnswerFunc computes an answer for a question config. It is called once
// per Submit.
type AnswerFunc func(qc question.Config) (string, error)

// Worker is a synchronous, single-shot fake: Submit immediately computes
// the answer via Fn and stores it under the handle, matching the AI-worker
// contract described in spec §4.2. It also enforces the AlreadyAsking
// invariant so engine tests can exercise it.
type Worker struct {
	// Fn computes the answer for each submitted question. If nil, Const is
	// returned for every ask.
	Fn AnswerFunc
	// Const is used when Fn is nil: a fixed constant answer for every ask.
	Const string

	mu      sync.Mutex
	pending map[string]string // fp(qc) -> handle, while outstanding
	results map[string]string // handle -> answer, until taken
}

// New builds a Worker that always answers with constant.
func New(constant string) *Worker {
	return &Worker{Const: constant}
}

// NewFunc builds a Worker whose answers are computed by fn.
func NewFunc(fn AnswerFunc) *Worker {
	return &Worker{Fn: fn}
}

func (w *Worker) ensure() {
	if w.pending == nil {
		w.pending = make(map[string]string)
	}
	if w.results == nil {
		w.results = make(map[string]string)
	}
}

// Submit implements worker.Worker.
func (w *Worker) Submit(_ context.Context, qc question.Config) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensure()

	fp, err := fingerprint.FP(qc)
	if err != nil {
		return "", fmt.Errorf("fingerprint question config: %w", err)
	}
	if _, outstanding := w.pending[fp]; outstanding {
		return "", fmt.Errorf("%w: fingerprint %s already outstanding", errs.ErrAlreadyAsking, fp)
	}

	answer := w.Const
	if w.Fn != nil {
		answer, err = w.Fn(qc)
		if err != nil {
			return "", err
		}
	}

	handle := fingerprint.UID()
	w.pending[fp] = handle
	w.results[handle] = answer
	return handle, nil
}

// IsDone implements worker.Worker; testworker is always synchronously done.
func (w *Worker) IsDone(_ context.Context, handle string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensure()
	if _, ok := w.results[handle]; !ok {
		return false, fmt.Errorf("%w: handle %s", errs.ErrNeverAsked, handle)
	}
	return true, nil
}

// Take implements worker.Worker.
func (w *Worker) Take(_ context.Context, handle string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ensure()

	answer, ok := w.results[handle]
	if !ok {
		return "", fmt.Errorf("%w: handle %s", errs.ErrNeverAsked, handle)
	}
	delete(w.results, handle)
	for fp, h := range w.pending {
		if h == handle {
			delete(w.pending, fp)
			break
		}
	}
	return answer, nil
}

// AskAndWait implements worker.Worker as the Submit+Take composition.
func (w *Worker) AskAndWait(ctx context.Context, qc question.Config) (string, error) {
	handle, err := w.Submit(ctx, qc)
	if err != nil {
		return "", err
	}
	return w.Take(ctx, handle)
}
