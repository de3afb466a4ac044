package router_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaorchestrator/haio/cache"
	"github.com/qaorchestrator/haio/cache/inmemory"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/router"
	"github.com/qaorchestrator/haio/worker/testworker"
)

func textTemplate() question.Template {
	return question.Template{
		Title:    "t",
		Question: []question.Node{{Tag: question.NodeParagraph, Value: question.Ref(0)}},
		Answer:   question.AnswerSpec{Tag: question.AnswerText},
	}
}

func TestRouteAndCollectOnCacheMiss(t *testing.T) {
	ctx := context.Background()
	c := inmemory.New()
	w := testworker.New("hello")
	reservations := cache.NewReservations()
	tmpl := textTemplate()
	data := question.Data{"ignored"}

	rq, err := router.Route(ctx, tmpl, data, "ai", w, c, reservations)
	require.NoError(t, err)
	assert.NotEmpty(t, rq.Handle)

	answer, err := router.Collect(ctx, rq, w, c, reservations, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "hello", answer)

	// The answer must now be persisted.
	rec, found, err := c.FindUnused(tmpl, data, "ai", cache.NewReservations())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "hello", rec.Answer)
}

func TestRouteReturnsCacheHitWithoutCallingWorker(t *testing.T) {
	ctx := context.Background()
	c := inmemory.New()
	tmpl := textTemplate()
	data := question.Data{"ignored"}

	id, _, err := c.Reserve(ctx, tmpl, data, "ai", cache.NewReservations())
	require.NoError(t, err)
	require.NoError(t, c.Store(ctx, tmpl, data, "ai", id, "cached"))

	reservations := cache.NewReservations()
	rq, err := router.Route(ctx, tmpl, data, "ai", nil, c, reservations)
	require.NoError(t, err)
	assert.Empty(t, rq.Handle)

	answer, err := router.Collect(ctx, rq, nil, c, reservations, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "cached", answer)
}
