// Package assign implements the adaptive assignment engine (C6): the
// simple, cta, gta, and sequential_cta_1/2/3 policies that decide, per
// task, whether an AI answer may stand in for a costly human answer.
package assign

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/qaorchestrator/haio/cache"
	"github.com/qaorchestrator/haio/errs"
	"github.com/qaorchestrator/haio/fingerprint"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/router"
	"github.com/qaorchestrator/haio/worker"
)

// DefaultPollInterval mirrors router.DefaultPollInterval: the engine never
// introduces its own suspension points beyond the single poll loop inside
// router.Collect (spec.md §5), so this is a re-export for callers that
// configure the engine without importing router directly.
const DefaultPollInterval = router.DefaultPollInterval

// DefaultSignificanceLevel is used when a policy config omits alpha.
const DefaultSignificanceLevel = 0.05

// DefaultIterations is used when a gta config omits iteration count.
const DefaultIterations = 1000

// Cluster is a task cluster (TC): the set of task indices whose AI answers
// agreed, tracked per (worker, answer) pair.
type Cluster struct {
	TaskIndexes map[int]struct{}
	Worker      string
	Answer      string
	Approved    bool
	Checked     bool
	Correct     int
	Incorrect   int

	// humanVotes tallies human answers observed while sampling this
	// cluster, used only to compute a majority answer under
	// WithHumanMajorityOverride; the default cluster-key propagation never
	// consults it.
	humanVotes map[string]int
}

func newCluster(workerKind, answer string) *Cluster {
	return &Cluster{TaskIndexes: make(map[int]struct{}), Worker: workerKind, Answer: answer, humanVotes: make(map[string]int)}
}

// majorityHumanAnswer returns the human answer with the most votes seen so
// far for this cluster; ties resolve arbitrarily.
func (c *Cluster) majorityHumanAnswer(fallback string) string {
	best := fallback
	bestCount := -1
	for a, n := range c.humanVotes {
		if n > bestCount {
			bestCount = n
			best = a
		}
	}
	return best
}

func (c *Cluster) size() int { return len(c.TaskIndexes) }

// Engine bundles everything the assignment policies need: the cache, the
// human and AI workers, and the tunables for concurrency and polling.
type Engine struct {
	Cache        cache.Cache
	Human        worker.Worker
	AI           map[string]worker.Worker
	Reservations *cache.Reservations
	Sequential   *StateRegistry

	concurrency   int
	pollInterval  time.Duration
	humanMajority bool
	rng           *rand.Rand
}

// Option configures an Engine.
type Option func(*Engine)

// WithConcurrency overrides the pool size used for simple's concurrent
// route dispatch and cta/gta's Phase-1 concurrent AI polling. Defaults to
// the number of registered AI workers.
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithPollInterval overrides DefaultPollInterval, e.g. to drive it to zero
// in tests.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

// WithHumanMajorityOverride enables the extension flag spec.md §9
// describes: propagating a cluster's human-majority answer on approval
// instead of the cluster's own (key) answer. Default false, matching the
// spec's "MUST keep cluster-key propagation as default."
func WithHumanMajorityOverride(enabled bool) Option {
	return func(e *Engine) { e.humanMajority = enabled }
}

// WithRand overrides the engine's source of randomness for permutations
// and variant-3's random candidate choice, so tests can make outcomes
// reproducible.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// New builds an Engine over c (the deduplicating answer cache), human (the
// one required human worker) and ai (zero or more named AI workers).
// Reservations are created fresh, one per Engine, matching the
// per-session Reservations lifetime spec.md §5 describes.
func New(c cache.Cache, human worker.Worker, ai map[string]worker.Worker, opts ...Option) *Engine {
	e := &Engine{
		Cache:        c,
		Human:        human,
		AI:           ai,
		Reservations: cache.NewReservations(),
		Sequential:   NewStateRegistry(),
		concurrency:  len(ai),
		pollInterval: DefaultPollInterval,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.concurrency < 1 {
		e.concurrency = 1
	}
	return e
}

func validateSelectOnly(tmpl question.Template) error {
	if tmpl.Answer.Tag != question.AnswerSelect {
		return fmt.Errorf("%w: method requires a Select answer type", errs.ErrInvalidParameter)
	}
	return nil
}

func validateUnitInterval(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %s must be in [0,1], got %v", errs.ErrInvalidParameter, name, v)
	}
	return nil
}

func validatePositive(name string, v int) error {
	if v <= 0 {
		return fmt.Errorf("%w: %s must be positive, got %d", errs.ErrInvalidParameter, name, v)
	}
	return nil
}

// aiWorker resolves kind to a registered AI worker, failing InvalidClient
// if unregistered.
func (e *Engine) aiWorker(kind string) (worker.Worker, error) {
	w, ok := e.AI[kind]
	if !ok {
		return nil, fmt.Errorf("%w: AI worker kind %q is not registered", errs.ErrInvalidClient, kind)
	}
	return w, nil
}

// PollInterval exposes the engine's inter-poll interval to callers outside
// the package (the session façade's single-ask path).
func (e *Engine) PollInterval() time.Duration { return e.pollInterval }

// ResolveWorker resolves a worker-kind label to the concrete worker.Worker
// it names: "human" for the engine's human worker, anything else for a
// registered AI worker kind.
func (e *Engine) ResolveWorker(kind string) (worker.Worker, error) {
	if kind == "human" {
		if e.Human == nil {
			return nil, fmt.Errorf("%w: no human worker registered", errs.ErrInvalidClient)
		}
		return e.Human, nil
	}
	return e.aiWorker(kind)
}

// askAI routes and collects a single AI answer for task i.
func (e *Engine) askAI(ctx context.Context, tmpl question.Template, d question.Data, kind string) (string, error) {
	w, err := e.aiWorker(kind)
	if err != nil {
		return "", err
	}
	rq, err := router.Route(ctx, tmpl, d, kind, w, e.Cache, e.Reservations)
	if err != nil {
		return "", err
	}
	return router.Collect(ctx, rq, w, e.Cache, e.Reservations, e.pollInterval)
}

// askHuman routes and collects a single human answer for task i.
func (e *Engine) askHuman(ctx context.Context, tmpl question.Template, d question.Data) (string, error) {
	rq, err := router.Route(ctx, tmpl, d, "human", e.Human, e.Cache, e.Reservations)
	if err != nil {
		return "", err
	}
	return router.Collect(ctx, rq, e.Human, e.Cache, e.Reservations, e.pollInterval)
}

// pool builds a bounded ants.PoolWithFunc for the concurrent route-dispatch
// phases of simple and cta/gta's cluster-building phase, grounded on the
// teacher's evaluation/service/local/pool.go pool-dispatch shape.
func (e *Engine) pool(run func(i int)) (*ants.PoolWithFunc, error) {
	p, err := ants.NewPoolWithFunc(e.concurrency, func(arg any) {
		run(arg.(int))
	})
	if err != nil {
		return nil, fmt.Errorf("build worker pool: %w", err)
	}
	return p, nil
}

// permutation returns a uniformly random permutation of 0..n-1, the
// source of non-determinism cta/gta's sampling phase requires (spec.md
// §4.5.4 "Tie-breaking and determinism").
func (e *Engine) permutation(n int) []int {
	return e.rng.Perm(n)
}

// sequentialKey derives the (method, template-fp, parameters) key a
// sequential policy's persistent state is held under (spec.md §5).
func sequentialKey(method string, tmpl question.Template, params any) (string, error) {
	tfp, err := fingerprint.FP(tmpl)
	if err != nil {
		return "", fmt.Errorf("fingerprint template: %w", err)
	}
	pfp, err := fingerprint.FP(params)
	if err != nil {
		return "", fmt.Errorf("fingerprint parameters: %w", err)
	}
	return method + ":" + tfp + ":" + pfp, nil
}
