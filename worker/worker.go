// Package worker defines the uniform asynchronous contract every answer
// back-end implements, whether it is a human crowdsourcing marketplace or
// a single-shot AI model client.
package worker

import (
	"context"

	"github.com/qaorchestrator/haio/question"
)

// Worker is the capability object a session holds one of per registered
// worker kind (one required human worker, plus zero or more named AI
// workers). Implementations differ in how they suspend: a human worker's
// IsDone polls external state; an AI worker's Submit typically completes
// the query synchronously and IsDone trivially returns true.
type Worker interface {
	// Submit validates qc, dispatches a task, and returns an opaque handle.
	// A single-query-at-a-time worker rejects with errs.ErrAlreadyAsking if
	// a prior submission with the same fingerprint is still outstanding.
	Submit(ctx context.Context, qc question.Config) (handle string, err error)

	// IsDone reports whether handle's task has a retrievable answer.
	IsDone(ctx context.Context, handle string) (bool, error)

	// Take removes and returns the result for handle. Calling Take twice on
	// the same handle fails with errs.ErrNeverAsked.
	Take(ctx context.Context, handle string) (string, error)

	// AskAndWait is the convenience composition of Submit, a poll loop
	// until IsDone, and Take.
	AskAndWait(ctx context.Context, qc question.Config) (string, error)
}
