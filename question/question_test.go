package question_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaorchestrator/haio/question"
)

func numberTemplate() question.Template {
	return question.Template{
		Title: "arithmetic",
		Question: []question.Node{
			{Tag: question.NodeHeading, Level: 1, Value: question.Lit("Quick sum")},
			{Tag: question.NodeParagraph, Value: question.Ref(0)},
		},
		Answer: question.AnswerSpec{Tag: question.AnswerNumber},
	}
}

func TestInsertDataDoesNotMutateTemplate(t *testing.T) {
	tmpl := numberTemplate()
	before, err := question.InsertData(tmpl, question.Data{"2 + 2"})
	require.NoError(t, err)
	assert.Equal(t, "2 + 2", before.Question[1].Value)

	// Instantiate again with different data; the template's own slots must
	// still be unresolved references, proving the first call left it alone.
	after, err := question.InsertData(tmpl, question.Data{"3 + 3"})
	require.NoError(t, err)
	assert.Equal(t, "3 + 3", after.Question[1].Value)
	assert.NotNil(t, tmpl.Question[1].Value.SlotIndex)
}

func TestInsertDataResolvesLiteralsAndSlots(t *testing.T) {
	tmpl := numberTemplate()
	cfg, err := question.InsertData(tmpl, question.Data{"41 + 1"})
	require.NoError(t, err)
	require.Len(t, cfg.Question, 2)
	assert.Equal(t, "Quick sum", cfg.Question[0].Value)
	assert.Equal(t, 1, cfg.Question[0].Level)
	assert.Equal(t, "41 + 1", cfg.Question[1].Value)
}

func TestInsertDataSlotOutOfRange(t *testing.T) {
	tmpl := numberTemplate()
	_, err := question.InsertData(tmpl, question.Data{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, question.ErrInvalidQuestion))
}

func TestValidateRejectsBadHeadingLevel(t *testing.T) {
	tmpl := question.Template{
		Question: []question.Node{{Tag: question.NodeHeading, Level: 7, Value: question.Lit("x")}},
		Answer:   question.AnswerSpec{Tag: question.AnswerText},
	}
	err := tmpl.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, question.ErrInvalidQuestion))
}

func TestValidateRejectsEmptySelectOptions(t *testing.T) {
	tmpl := question.Template{
		Answer: question.AnswerSpec{Tag: question.AnswerSelect},
	}
	err := tmpl.Validate()
	require.Error(t, err)
}

func TestValidateRejectsDuplicateSelectOptions(t *testing.T) {
	tmpl := question.Template{
		Answer: question.AnswerSpec{Tag: question.AnswerSelect, Options: []string{"a", "a"}},
	}
	err := tmpl.Validate()
	require.Error(t, err)
}

func TestValidateRejectsOptionsOnNonSelect(t *testing.T) {
	tmpl := question.Template{
		Answer: question.AnswerSpec{Tag: question.AnswerText, Options: []string{"a"}},
	}
	err := tmpl.Validate()
	require.Error(t, err)
}

func TestImageNodeResolvesSrc(t *testing.T) {
	tmpl := question.Template{
		Question: []question.Node{{Tag: question.NodeImage, Src: question.Ref(0)}},
		Answer:   question.AnswerSpec{Tag: question.AnswerText},
	}
	cfg, err := question.InsertData(tmpl, question.Data{"https://example.com/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.png", cfg.Question[0].Src)
}
