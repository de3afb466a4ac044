package assign

import (
	"context"
	"fmt"
	"sync"

	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/router"
	"github.com/qaorchestrator/haio/worker"
)

// Simple implements the `simple` policy (spec.md §4.5.1): every ask is
// routed immediately (concurrent dispatch at the interface level through
// a bounded pool), then collected serially in registration order.
func (e *Engine) Simple(ctx context.Context, tmpl question.Template, data []question.Data, workerKind string) ([]string, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	w, err := e.resolveSimpleWorker(workerKind)
	if err != nil {
		return nil, err
	}

	n := len(data)
	rqs := make([]router.RequestedQuestion, n)
	errsOut := make([]error, n)

	var wg sync.WaitGroup
	wg.Add(n)
	p, err := e.pool(func(i int) {
		defer wg.Done()
		rq, routeErr := router.Route(ctx, tmpl, data[i], workerKind, w, e.Cache, e.Reservations)
		rqs[i] = rq
		errsOut[i] = routeErr
	})
	if err != nil {
		return nil, err
	}
	defer p.Release()

	for i := 0; i < n; i++ {
		if err := p.Invoke(i); err != nil {
			return nil, fmt.Errorf("dispatch route task %d: %w", i, err)
		}
	}
	wg.Wait()

	for i, err := range errsOut {
		if err != nil {
			return nil, fmt.Errorf("route ask %d: %w", i, err)
		}
	}

	out := make([]string, n)
	for i, rq := range rqs {
		answer, err := router.Collect(ctx, rq, w, e.Cache, e.Reservations, e.pollInterval)
		if err != nil {
			return nil, fmt.Errorf("collect ask %d: %w", i, err)
		}
		out[i] = answer
	}
	return out, nil
}

// resolveSimpleWorker resolves workerKind to a Worker instance: "human" is
// always the registered human worker, anything else must be a registered
// AI kind.
func (e *Engine) resolveSimpleWorker(workerKind string) (worker.Worker, error) {
	if workerKind == "human" {
		return e.Human, nil
	}
	return e.aiWorker(workerKind)
}
