// Package errs defines the sentinel errors raised by the worker, cache,
// router, assign, and session packages. Callers use errors.Is against
// these values; call sites wrap them with context via fmt.Errorf("...: %w").
package errs

import "errors"

var (
	// ErrInvalidClient is raised when a config's client/worker kind is not
	// among the workers registered for the chosen method.
	ErrInvalidClient = errors.New("invalid client")

	// ErrMixedTemplates is raised when a batch of asks does not share one
	// template fingerprint.
	ErrMixedTemplates = errors.New("mixed templates")

	// ErrInvalidMethod is raised for an unrecognized execution policy method.
	ErrInvalidMethod = errors.New("invalid method")

	// ErrInvalidParameter is raised when q/alpha fall outside [0,1],
	// iteration/sample_size is not positive, or a non-Select answer type is
	// used with cta/gta/sequential_*.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrAlreadyAsking is raised by a single-shot worker when a second
	// submit arrives for a question fingerprint with an answer not yet taken.
	ErrAlreadyAsking = errors.New("already asking")

	// ErrNeverAsked is raised when take or is_done is called with an
	// unknown handle.
	ErrNeverAsked = errors.New("never asked")

	// ErrEmptyResponse is raised when a worker returns no content.
	ErrEmptyResponse = errors.New("empty response")

	// ErrMissingAnswer is raised when a human delivery parses but carries
	// no answer field.
	ErrMissingAnswer = errors.New("missing answer")

	// ErrInvalidAnswer is raised when a worker's raw response is non-empty
	// but does not parse into the shape its answer spec requires (e.g. a
	// Number answer that isn't a finite decimal).
	ErrInvalidAnswer = errors.New("invalid answer")
)
