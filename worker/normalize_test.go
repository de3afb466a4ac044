package worker_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaorchestrator/haio/errs"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/worker"
)

func TestNormalizeNumberAcceptsFiniteDecimal(t *testing.T) {
	got, err := worker.Normalize(" 42.5 ", question.AnswerSpec{Tag: question.AnswerNumber})
	require.NoError(t, err)
	assert.Equal(t, "42.5", got)
}

func TestNormalizeNumberRejectsInfinityAndNaN(t *testing.T) {
	for _, raw := range []string{"Inf", "+Inf", "-Infinity", "NaN"} {
		_, err := worker.Normalize(raw, question.AnswerSpec{Tag: question.AnswerNumber})
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, errs.ErrInvalidAnswer), raw)
	}
}

func TestNormalizeNumberRejectsNonNumeric(t *testing.T) {
	_, err := worker.Normalize("banana", question.AnswerSpec{Tag: question.AnswerNumber})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrInvalidAnswer))
}

func TestNormalizeEmptyResponseFails(t *testing.T) {
	_, err := worker.Normalize("   ", question.AnswerSpec{Tag: question.AnswerText})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrEmptyResponse))
}
