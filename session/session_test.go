package session_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaorchestrator/haio/assign"
	"github.com/qaorchestrator/haio/cache/inmemory"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/session"
	"github.com/qaorchestrator/haio/worker"
	"github.com/qaorchestrator/haio/worker/testworker"
)

func helloTemplate() question.Template {
	return question.Template{
		Title:       "t",
		Description: "d",
		Question:    []question.Node{{Tag: question.NodeHeading, Level: 2, Value: question.Ref(0)}},
		Answer:      question.AnswerSpec{Tag: question.AnswerText},
	}
}

func newSession(ai map[string]worker.Worker, human worker.Worker) *session.Session {
	e := assign.New(inmemory.New(), human, ai, assign.WithPollInterval(time.Millisecond))
	return session.New(e)
}

// S1: single-ask routing against a human worker only.
func TestSubmitOneDispatchesToHumanWorker(t *testing.T) {
	ctx := context.Background()
	human := testworker.NewFunc(func(qc question.Config) (string, error) {
		rendered := qc.Question[0].Value
		require.True(t, strings.Contains(rendered, "Hi"))
		return "human-said-hi", nil
	})
	s := newSession(nil, human)

	answer, err := s.SubmitOne(ctx, helloTemplate(), question.Data{"Hi"}, "human")
	require.NoError(t, err)
	assert.Equal(t, "human-said-hi", answer)
}

func TestWaitSimpleSingleElementBatchMatchesSubmitOne(t *testing.T) {
	ctx := context.Background()
	human := testworker.New("answer")
	s := newSession(nil, human)

	asks := []session.AskedQuestion{session.MakeAsk(helloTemplate(), question.Data{"Hi"})}
	out, err := s.Wait(ctx, asks, session.Config{Method: session.MethodSimple, Worker: "human"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "answer", out[0])
}

func TestWaitSimpleIsOrderPreserving(t *testing.T) {
	ctx := context.Background()
	human := testworker.NewFunc(func(qc question.Config) (string, error) {
		return qc.Question[0].Value, nil
	})
	s := newSession(nil, human)

	tmpl := helloTemplate()
	asks := []session.AskedQuestion{
		session.MakeAsk(tmpl, question.Data{"one"}),
		session.MakeAsk(tmpl, question.Data{"two"}),
		session.MakeAsk(tmpl, question.Data{"three"}),
	}
	out, err := s.Wait(ctx, asks, session.Config{Method: session.MethodSimple, Worker: "human"})
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two", "three"}, out)
}

func TestWaitRejectsMixedTemplates(t *testing.T) {
	ctx := context.Background()
	human := testworker.New("x")
	s := newSession(nil, human)

	t1 := helloTemplate()
	t2 := helloTemplate()
	t2.Title = "different"

	asks := []session.AskedQuestion{
		session.MakeAsk(t1, question.Data{"a"}),
		session.MakeAsk(t2, question.Data{"b"}),
	}
	_, err := s.Wait(ctx, asks, session.Config{Method: session.MethodSimple, Worker: "human"})
	require.Error(t, err)
}

// A one-element batch must still dispatch through config.Method: the
// original haio_client.py's wait() picks its branch on the argument's
// *type* (dict vs list), not the list's length, so a single-element list
// given to cta/gta/sequential_* must run that policy, not silently fall
// back to a worker lookup meant for "simple".
func TestWaitSingleElementBatchDispatchesToConfiguredMethod(t *testing.T) {
	ctx := context.Background()
	ai := map[string]worker.Worker{"openai": testworker.New("yes")}
	human := testworker.New("yes")
	s := newSession(ai, human)

	selectTmpl := question.Template{
		Title:       "t",
		Description: "d",
		Question:    []question.Node{{Tag: question.NodeHeading, Level: 2, Value: question.Ref(0)}},
		Answer:      question.AnswerSpec{Tag: question.AnswerSelect, Options: []string{"yes", "no"}},
	}
	asks := []session.AskedQuestion{session.MakeAsk(selectTmpl, question.Data{"Hi"})}

	out, err := s.Wait(ctx, asks, session.Config{Method: session.MethodCTA, QualityRequirement: 0.5, SignificanceLevel: 0.5})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "yes", out[0])
}

func TestWaitRejectsUnknownMethod(t *testing.T) {
	ctx := context.Background()
	human := testworker.New("x")
	s := newSession(nil, human)

	tmpl := helloTemplate()
	asks := []session.AskedQuestion{
		session.MakeAsk(tmpl, question.Data{"a"}),
		session.MakeAsk(tmpl, question.Data{"b"}),
	}
	_, err := s.Wait(ctx, asks, session.Config{Method: "not-a-method"})
	require.Error(t, err)
}
