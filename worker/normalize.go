package worker

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/qaorchestrator/haio/errs"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/worker/internal/fuzzy"
)

// Normalize applies the answer-normalization rules of §4.2 to a raw worker
// response before it is published: Select answers are coerced to the
// nearest option, Number answers must parse as a finite decimal, and Text
// answers pass through unchanged. Empty raw output always fails with
// errs.ErrEmptyResponse.
func Normalize(raw string, spec question.AnswerSpec) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errs.ErrEmptyResponse
	}
	switch spec.Tag {
	case question.AnswerSelect:
		closest, _ := fuzzy.Closest(trimmed, spec.Options)
		return closest, nil
	case question.AnswerNumber:
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return "", fmt.Errorf("%w: %q is not a finite decimal", errs.ErrInvalidAnswer, trimmed)
		}
		return trimmed, nil
	case question.AnswerText:
		return raw, nil
	default:
		return "", fmt.Errorf("%w: unknown answer type %v", question.ErrInvalidQuestion, spec.Tag)
	}
}
