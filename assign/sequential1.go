package assign

import (
	"context"
	"fmt"

	"github.com/qaorchestrator/haio/assign/stat"
	"github.com/qaorchestrator/haio/log"
	"github.com/qaorchestrator/haio/question"
)

// SequentialParams is the parameter tuple a sequential policy's state key
// is derived from, per spec.md §5 ("per (method, template-fp,
// parameters)").
type SequentialParams struct {
	QualityRequirement float64
	SignificanceLevel  float64
}

// Sequential1 implements the approve-as-you-go variant (spec.md §4.5.4
// variant 1): each newly submitted task is processed in order against the
// persistent cluster state from all prior calls with the same key.
func (e *Engine) Sequential1(ctx context.Context, tmpl question.Template, newData []question.Data, q, alpha float64) ([]string, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	if err := validateSelectOnly(tmpl); err != nil {
		return nil, err
	}
	if alpha == 0 {
		alpha = DefaultSignificanceLevel
	}
	if err := validateUnitInterval("quality_requirement", q); err != nil {
		return nil, err
	}
	if err := validateUnitInterval("significance_level", alpha); err != nil {
		return nil, err
	}

	key, err := sequentialKey("sequential_cta_1", tmpl, SequentialParams{q, alpha})
	if err != nil {
		return nil, err
	}
	state := e.Sequential.Get(key)
	state.mu.Lock()
	defer state.mu.Unlock()

	kinds := e.aiKinds()
	if len(kinds) == 0 {
		return nil, fmt.Errorf("sequential_cta_1 requires at least one registered AI worker")
	}

	start, end := state.appendTasks(newData)
	for i := start; i < end; i++ {
		d := state.dataLists[i]
		for _, kind := range kinds {
			a, err := e.askAI(ctx, tmpl, d, kind)
			if err != nil {
				return nil, fmt.Errorf("ask AI for task %d: %w", i, err)
			}
			state.answerCandidates[kind] = append(state.answerCandidates[kind], a)

			c := state.clusterFor(kind, a)
			if c.Approved {
				if !state.set[i] {
					state.output[i] = c.Answer
					state.set[i] = true
				}
				continue
			}
			c.TaskIndexes[i] = struct{}{}
		}

		if state.set[i] {
			continue
		}
		h, err := e.askHuman(ctx, tmpl, d)
		if err != nil {
			log.Warnf("sequential_cta_1: human sample for task %d failed: %v", i, err)
			return nil, fmt.Errorf("ask human for task %d: %w", i, err)
		}
		log.Debugf("sequential_cta_1: human sample for task %d returned %q", i, h)
		state.output[i] = h
		state.set[i] = true

		for key, c := range state.clusters {
			if c.Approved {
				continue
			}
			if _, member := c.TaskIndexes[i]; !member {
				continue
			}
			c.humanVotes[h]++
			if c.Answer == h {
				c.Correct++
			} else {
				c.Incorrect++
			}
			pValue := stat.OneSidedBinomialTest(c.Correct, c.Correct+c.Incorrect, q)
			if pValue < alpha {
				c.Approved = true
				log.Infof("sequential_cta_1: cluster %s (size %d) approved at p=%.4g", key, c.size(), pValue)
				e.propagate(c, state.output, state.set)
			}
		}
	}

	return append([]string(nil), state.output[start:end]...), nil
}
