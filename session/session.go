// Package session implements the façade (C7) that application code talks
// to: make_ask, submit_one, and wait, dispatching wait's batch form to the
// named assign.Engine policy.
package session

import (
	"context"
	"fmt"

	"github.com/qaorchestrator/haio/assign"
	"github.com/qaorchestrator/haio/errs"
	"github.com/qaorchestrator/haio/fingerprint"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/router"
)

// AskedQuestion pairs a template with the data to render it, pending
// dispatch. MakeAsk is pure: it never touches the cache or a worker.
type AskedQuestion struct {
	Template question.Template
	Data     question.Data
}

// MakeAsk builds an AskedQuestion record without dispatching it.
func MakeAsk(t question.Template, d question.Data) AskedQuestion {
	return AskedQuestion{Template: t, Data: d}
}

// Session wraps an assign.Engine with the single-ask and batch entry
// points application code calls directly.
type Session struct {
	Engine *assign.Engine
}

// New builds a Session over an already-configured engine.
func New(e *assign.Engine) *Session {
	return &Session{Engine: e}
}

// SubmitOne routes and collects a single ask against the named worker kind.
// workerKind "human" dispatches to the engine's human worker; any other
// name must be a registered AI worker kind.
func (s *Session) SubmitOne(ctx context.Context, t question.Template, d question.Data, workerKind string) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	w, err := s.Engine.ResolveWorker(workerKind)
	if err != nil {
		return "", err
	}
	rq, err := router.Route(ctx, t, d, workerKind, w, s.Engine.Cache, s.Engine.Reservations)
	if err != nil {
		return "", err
	}
	return router.Collect(ctx, rq, w, s.Engine.Cache, s.Engine.Reservations, s.Engine.PollInterval())
}

// Wait implements the batch form of wait(asks, config): every ask must
// share the same template and the named policy runs over the full batch,
// regardless of batch length — a one-element list still goes through
// config.Method (matching haio_client.py's isinstance(list) branch, which
// never special-cases length). Callers wanting the bare single-record
// path (haio_client.py's isinstance(dict) branch) use SubmitOne directly.
func (s *Session) Wait(ctx context.Context, asks []AskedQuestion, config Config) ([]string, error) {
	if len(asks) == 0 {
		return nil, nil
	}

	first := asks[0].Template
	firstFP, err := fingerprint.FP(first)
	if err != nil {
		return nil, fmt.Errorf("fingerprint template: %w", err)
	}
	data := make([]question.Data, len(asks))
	for i, a := range asks {
		afp, err := fingerprint.FP(a.Template)
		if err != nil {
			return nil, fmt.Errorf("fingerprint template: %w", err)
		}
		if afp != firstFP {
			return nil, fmt.Errorf("%w: ask %d has a different template than ask 0", errs.ErrMixedTemplates, i)
		}
		data[i] = a.Data
	}

	return config.dispatch(ctx, s.Engine, first, data)
}
