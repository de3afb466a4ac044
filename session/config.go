package session

import (
	"context"
	"fmt"

	"github.com/qaorchestrator/haio/assign"
	"github.com/qaorchestrator/haio/errs"
	"github.com/qaorchestrator/haio/question"
)

// Config is wait's execution-policy argument: exactly one of Method's
// six recognised values, with the parameters that method requires.
type Config struct {
	Method string

	// Worker/Client name the worker kind for "simple". Worker wins if both
	// are set.
	Worker string
	Client string

	QualityRequirement float64
	SignificanceLevel  float64
	Iteration          int
	SampleSize         int
}

const (
	MethodSimple          = "simple"
	MethodCTA             = "cta"
	MethodGTA             = "gta"
	MethodSequentialCTA1  = "sequential_cta_1"
	MethodSequentialCTA2  = "sequential_cta_2"
	MethodSequentialCTA3  = "sequential_cta_3"
)

// dispatch invokes the engine method Config.Method names over the batch.
func (c Config) dispatch(ctx context.Context, e *assign.Engine, tmpl question.Template, data []question.Data) ([]string, error) {
	switch c.Method {
	case MethodSimple:
		worker := c.Worker
		if worker == "" {
			worker = c.Client
		}
		return e.Simple(ctx, tmpl, data, worker)
	case MethodCTA:
		return e.CTA(ctx, tmpl, data, c.QualityRequirement, c.SignificanceLevel)
	case MethodGTA:
		return e.GTA(ctx, tmpl, data, c.QualityRequirement, c.SignificanceLevel, c.Iteration)
	case MethodSequentialCTA1:
		return e.Sequential1(ctx, tmpl, data, c.QualityRequirement, c.SignificanceLevel)
	case MethodSequentialCTA2:
		return e.Sequential2(ctx, tmpl, data, c.QualityRequirement, c.SignificanceLevel, c.SampleSize)
	case MethodSequentialCTA3:
		return e.Sequential3(ctx, tmpl, data, c.QualityRequirement, c.SignificanceLevel)
	default:
		return nil, fmt.Errorf("%w: %q", errs.ErrInvalidMethod, c.Method)
	}
}
