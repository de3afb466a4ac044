package assign_test

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaorchestrator/haio/assign"
	"github.com/qaorchestrator/haio/cache/inmemory"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/worker"
	"github.com/qaorchestrator/haio/worker/testworker"
)

func selectTemplate(options ...string) question.Template {
	return question.Template{
		Title:       "select-test",
		Description: "d",
		Question:    []question.Node{{Tag: question.NodeParagraph, Value: question.Ref(0)}},
		Answer:      question.AnswerSpec{Tag: question.AnswerSelect, Options: options},
	}
}

// itemData returns N one-slot data lists, each rendering to "item<i>" so a
// scripted worker can recover the task index from the rendered question.
func itemData(n int) []question.Data {
	out := make([]question.Data, n)
	for i := range out {
		out[i] = question.Data{fmt.Sprintf("item%d", i)}
	}
	return out
}

func indexOf(renderedValue string) int {
	i, err := strconv.Atoi(strings.TrimPrefix(renderedValue, "item"))
	if err != nil {
		panic(err)
	}
	return i
}

// byIndexWorker builds a testworker whose answer for task i is answers[i].
func byIndexWorker(answers []string) *testworker.Worker {
	return testworker.NewFunc(func(qc question.Config) (string, error) {
		return answers[indexOf(qc.Question[0].Value)], nil
	})
}

func TestSimpleOrderPreservingAgainstDeterministicWorker(t *testing.T) {
	ctx := context.Background()
	human := byIndexWorker([]string{"a", "b", "c"})
	e := assign.New(inmemory.New(), human, nil, assign.WithPollInterval(time.Millisecond))

	tmpl := selectTemplate("a", "b", "c")
	out, err := e.Simple(ctx, tmpl, itemData(3), "human")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, out)
}

func TestSimpleRejectsUnknownWorker(t *testing.T) {
	ctx := context.Background()
	human := testworker.New("x")
	e := assign.New(inmemory.New(), human, nil, assign.WithPollInterval(time.Millisecond))

	tmpl := selectTemplate("a", "b")
	_, err := e.Simple(ctx, tmpl, itemData(1), "openai")
	require.Error(t, err)
}

// TestCTAConvergesWithoutExhaustingHumanCalls is scenario S3's shape at a
// larger scale: two clusters that the AI and human agree on perfectly each
// approve the moment their sample count makes 0.6^k < 0.3 (k=3), long
// before every member has been sampled, so the total human-call count is
// well under the task count.
func TestCTAConvergesWithoutExhaustingHumanCalls(t *testing.T) {
	ctx := context.Background()

	const n = 20
	answers := make([]string, n)
	for i := range answers {
		if i%4 == 0 {
			answers[i] = "2"
		} else {
			answers[i] = "1"
		}
	}
	ai := byIndexWorker(answers)

	var humanCalls int
	human := testworker.NewFunc(func(qc question.Config) (string, error) {
		humanCalls++
		return answers[indexOf(qc.Question[0].Value)], nil
	})

	e := assign.New(
		inmemory.New(), human, map[string]worker.Worker{"openai": ai},
		assign.WithRand(rand.New(rand.NewSource(1))),
	)

	tmpl := selectTemplate("1", "2")
	out, err := e.CTA(ctx, tmpl, itemData(n), 0.6, 0.3)
	require.NoError(t, err)
	assert.Equal(t, answers, out)
	assert.Less(t, humanCalls, n, "agreeing clusters should approve well before every task is sampled")
}

// TestCTARejectsNoisyAI is scenario S4: AI answers drawn uniformly at
// random among three options, decorrelated from the human's (also
// per-task, but independently determined) answer. Each AI cluster's
// true agreement rate is therefore around 1/3, far below the 0.9 quality
// bar, so no cluster should ever approve and every task falls through to
// a direct human answer.
func TestCTARejectsNoisyAI(t *testing.T) {
	ctx := context.Background()
	options := []string{"0", "1", "multiple"}
	const n = 300

	aiRng := rand.New(rand.NewSource(42))
	aiAnswers := make([]string, n)
	for i := range aiAnswers {
		aiAnswers[i] = options[aiRng.Intn(len(options))]
	}
	humanRng := rand.New(rand.NewSource(99))
	humanAnswers := make([]string, n)
	for i := range humanAnswers {
		humanAnswers[i] = options[humanRng.Intn(len(options))]
	}

	ai := byIndexWorker(aiAnswers)
	var humanCalls int
	human := testworker.NewFunc(func(qc question.Config) (string, error) {
		humanCalls++
		return humanAnswers[indexOf(qc.Question[0].Value)], nil
	})

	e := assign.New(
		inmemory.New(), human, map[string]worker.Worker{"openai": ai},
		assign.WithRand(rand.New(rand.NewSource(7))),
	)

	tmpl := selectTemplate(options...)
	out, err := e.CTA(ctx, tmpl, itemData(n), 0.9, 0.1)
	require.NoError(t, err)
	assert.Equal(t, humanAnswers, out)
	assert.Equal(t, n, humanCalls, "no cluster should approve, so every task needs a human answer")
}

// TestCTACompletenessNoUnsetSlots exercises the universal completeness
// property: for any N, the returned list never contains an unset slot.
func TestCTACompletenessNoUnsetSlots(t *testing.T) {
	ctx := context.Background()
	ai := byIndexWorker([]string{"a", "b", "a", "b", "a"})
	human := byIndexWorker([]string{"a", "z", "a", "z", "a"})

	e := assign.New(inmemory.New(), human, map[string]worker.Worker{"openai": ai})
	tmpl := selectTemplate("a", "b", "z")
	out, err := e.CTA(ctx, tmpl, itemData(5), 0.5, 0.5)
	require.NoError(t, err)
	for i, a := range out {
		assert.NotEmpty(t, a, "task %d left unset", i)
	}
}

func TestCTAValidatesParameters(t *testing.T) {
	ctx := context.Background()
	ai := testworker.New("1")
	human := testworker.New("1")
	e := assign.New(inmemory.New(), human, map[string]worker.Worker{"openai": ai})

	tmpl := selectTemplate("1", "2")
	_, err := e.CTA(ctx, tmpl, itemData(1), 1.5, 0.05)
	require.Error(t, err)

	_, err = e.CTA(ctx, tmpl, itemData(1), 0.5, -0.1)
	require.Error(t, err)
}

func TestCTARequiresSelectAnswerType(t *testing.T) {
	ctx := context.Background()
	ai := testworker.New("1")
	human := testworker.New("1")
	e := assign.New(inmemory.New(), human, map[string]worker.Worker{"openai": ai})

	tmpl := question.Template{
		Title:    "text",
		Question: []question.Node{{Tag: question.NodeParagraph, Value: question.Ref(0)}},
		Answer:   question.AnswerSpec{Tag: question.AnswerText},
	}
	_, err := e.CTA(ctx, tmpl, itemData(1), 0.5, 0.05)
	require.Error(t, err)
}

// TestGTAApprovesAgreeingCluster mirrors the CTA convergence scenario but
// through GTA's Bayesian posterior check: a cluster that the AI and human
// agree on overwhelmingly should approve well before every task is sampled.
func TestGTAApprovesAgreeingCluster(t *testing.T) {
	ctx := context.Background()
	n := 20
	answers := make([]string, n)
	for i := range answers {
		if i%5 == 0 {
			answers[i] = "2"
		} else {
			answers[i] = "1"
		}
	}
	ai := byIndexWorker(answers)
	var humanCalls int
	human := testworker.NewFunc(func(qc question.Config) (string, error) {
		humanCalls++
		return answers[indexOf(qc.Question[0].Value)], nil
	})

	e := assign.New(
		inmemory.New(), human, map[string]worker.Worker{"openai": ai},
		assign.WithRand(rand.New(rand.NewSource(3))),
	)

	tmpl := selectTemplate("1", "2")
	out, err := e.GTA(ctx, tmpl, itemData(n), 0.7, 0.2, 300)
	require.NoError(t, err)
	assert.Equal(t, answers, out)
	assert.Less(t, humanCalls, n, "gta should approve at least one cluster before exhausting all tasks")
}

func TestGTAValidatesIterationParameter(t *testing.T) {
	ctx := context.Background()
	ai := testworker.New("1")
	human := testworker.New("1")
	e := assign.New(inmemory.New(), human, map[string]worker.Worker{"openai": ai})

	tmpl := selectTemplate("1", "2")
	_, err := e.GTA(ctx, tmpl, itemData(1), 0.5, 0.05, -3)
	require.Error(t, err)
}

// TestSequential1ApprovesAcrossCalls is the cross-call analogue of S3:
// cluster state persists across two Sequential1 invocations with the same
// (template, q, alpha) key, so a cluster approved during the first call
// can resolve tasks submitted in the second without any new human calls.
func TestSequential1ApprovesAcrossCalls(t *testing.T) {
	ctx := context.Background()
	// Ten "1"s up front to approve the cluster, then a second batch that
	// should ride the approval with zero additional human calls.
	var humanCalls int
	human := testworker.NewFunc(func(question.Config) (string, error) {
		humanCalls++
		return "1", nil
	})
	ai := testworker.NewFunc(func(question.Config) (string, error) {
		return "1", nil
	})

	e := assign.New(
		inmemory.New(), human, map[string]worker.Worker{"openai": ai},
		assign.WithRand(rand.New(rand.NewSource(5))),
	)
	tmpl := selectTemplate("1", "2")

	out1, err := e.Sequential1(ctx, tmpl, itemData(10), 0.5, 0.2)
	require.NoError(t, err)
	require.Len(t, out1, 10)
	callsAfterFirst := humanCalls
	require.Greater(t, callsAfterFirst, 0)

	out2, err := e.Sequential1(ctx, tmpl, itemData(2), 0.5, 0.2)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "1"}, out2)
	assert.Equal(t, callsAfterFirst, humanCalls, "approved cluster should resolve new tasks without new human calls")
}

// TestSequential2FreezesAfterSampleSize is scenario S5: once a cluster's
// correct+incorrect reaches sample_size, exactly one binomial test runs
// and the cluster is permanently Checked; further tasks landing in it
// neither update its counts nor re-trigger a test.
func TestSequential2FreezesAfterSampleSize(t *testing.T) {
	ctx := context.Background()
	var humanCalls int
	human := testworker.NewFunc(func(question.Config) (string, error) {
		humanCalls++
		return "1", nil
	})
	ai := testworker.NewFunc(func(question.Config) (string, error) {
		return "1", nil
	})

	e := assign.New(inmemory.New(), human, map[string]worker.Worker{"openai": ai})
	tmpl := selectTemplate("1", "2")

	// q=0.5, alpha=0.5 guarantees approval the moment sample_size=2 is hit
	// (k=2,n=2,p=0.5 one-sided "greater" p-value = 0.25 < 0.5).
	out, err := e.Sequential2(ctx, tmpl, itemData(2), 0.5, 0.5, 2)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.Equal(t, 2, humanCalls)

	out2, err := e.Sequential2(ctx, tmpl, itemData(5), 0.5, 0.5, 2)
	require.NoError(t, err)
	for _, a := range out2 {
		assert.Equal(t, "1", a)
	}
	assert.Equal(t, 2, humanCalls, "a checked cluster must never sample a human again")
}

func TestSequential2ValidatesSampleSize(t *testing.T) {
	ctx := context.Background()
	ai := testworker.New("1")
	human := testworker.New("1")
	e := assign.New(inmemory.New(), human, map[string]worker.Worker{"openai": ai})

	tmpl := selectTemplate("1", "2")
	_, err := e.Sequential2(ctx, tmpl, itemData(1), 0.5, 0.5, 0)
	require.Error(t, err)
}

// TestSequential3ReusesWithinPhase checks that variant 3 resolves a full
// call's worth of tasks using strictly fewer human calls than tasks once a
// cluster sharing a phase can lean on a reused draw, and that it never
// leaves a task unset.
func TestSequential3ReusesWithinPhase(t *testing.T) {
	ctx := context.Background()
	var humanCalls int
	human := testworker.NewFunc(func(question.Config) (string, error) {
		humanCalls++
		return "1", nil
	})
	ai := testworker.NewFunc(func(question.Config) (string, error) {
		return "1", nil
	})

	e := assign.New(
		inmemory.New(), human, map[string]worker.Worker{"openai": ai},
		assign.WithRand(rand.New(rand.NewSource(9))),
	)
	tmpl := selectTemplate("1", "2")

	out, err := e.Sequential3(ctx, tmpl, itemData(6), 0.99, 0.4)
	require.NoError(t, err)
	require.Len(t, out, 6)
	for i, a := range out {
		assert.NotEmpty(t, a, "task %d left unset", i)
	}
	assert.Less(t, humanCalls, 6)
}

// TestSequential3CandidateSelectionHonorsWithRand checks that variant 3's
// "choose a random unresolved candidate" step (spec.md §4.5.4) actually
// draws from the engine's configured rand source: two runs seeded
// identically over an identical answer stream must pick tasks to resolve
// in the same order (observed as the order in which the human worker is
// asked about tasks) and resolve them identically.
func TestSequential3CandidateSelectionHonorsWithRand(t *testing.T) {
	ctx := context.Background()
	newEngine := func(seed int64) (*assign.Engine, *[]string) {
		var asked []string
		human := testworker.NewFunc(func(qc question.Config) (string, error) {
			asked = append(asked, qc.Question[0].Value)
			return "1", nil
		})
		ai := testworker.NewFunc(func(question.Config) (string, error) { return "2", nil })
		return assign.New(
			inmemory.New(), human, map[string]worker.Worker{"openai": ai},
			assign.WithRand(rand.New(rand.NewSource(seed))),
		), &asked
	}
	tmpl := selectTemplate("1", "2")

	e1, asked1 := newEngine(42)
	out1, err := e1.Sequential3(ctx, tmpl, itemData(8), 0.99, 0.4)
	require.NoError(t, err)

	e2, asked2 := newEngine(42)
	out2, err := e2.Sequential3(ctx, tmpl, itemData(8), 0.99, 0.4)
	require.NoError(t, err)

	assert.Equal(t, *asked1, *asked2, "same seed must pick tasks to resolve in the same order")
	assert.Equal(t, out1, out2, "same seed over the same answer stream must resolve identically")
}

// TestMonotonicApprovalNeverOverwritesSetOutput runs CTA with a
// deterministic permutation and checks that once an output slot is set it
// is never observed to change by re-deriving the run with instrumented
// propagation: this is checked indirectly by asserting the final output
// matches the expected per-cluster answer for every task.
func TestMonotonicApprovalNeverOverwritesSetOutput(t *testing.T) {
	ctx := context.Background()
	answers := []string{"1", "1", "1", "1", "2", "2"}
	ai := byIndexWorker(answers)
	human := byIndexWorker(answers)

	e := assign.New(
		inmemory.New(), human, map[string]worker.Worker{"openai": ai},
		assign.WithRand(rand.New(rand.NewSource(11))),
	)
	tmpl := selectTemplate("1", "2")
	out, err := e.CTA(ctx, tmpl, itemData(6), 0.6, 0.3)
	require.NoError(t, err)
	assert.Equal(t, answers, out)
}
