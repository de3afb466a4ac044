package assign

import (
	"context"
	"fmt"

	"github.com/qaorchestrator/haio/assign/stat"
	"github.com/qaorchestrator/haio/log"
	"github.com/qaorchestrator/haio/question"
)

// SequentialSampleParams is the parameter tuple for the fixed-sample-size
// sequential variant, keyed alongside SequentialParams (spec.md §5).
type SequentialSampleParams struct {
	QualityRequirement float64
	SignificanceLevel  float64
	SampleSize         int
}

// Sequential2 implements the delayed-approval variant (spec.md §4.5.4
// variant 2): a cluster accumulates human votes but is tested only once,
// the moment correct+incorrect first reaches sampleSize. From then on it
// is permanently Checked — approved if that single test passed, otherwise
// frozen unapproved forever, and never updated or re-tested again.
func (e *Engine) Sequential2(ctx context.Context, tmpl question.Template, newData []question.Data, q, alpha float64, sampleSize int) ([]string, error) {
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
	if err := validatePositive("sample_size", sampleSize); err != nil {
		return nil, err
	}

	key, err := sequentialKey("sequential_cta_2", tmpl, SequentialSampleParams{q, alpha, sampleSize})
	if err != nil {
		return nil, err
	}
	state := e.Sequential.Get(key)
	state.mu.Lock()
	defer state.mu.Unlock()

	kinds := e.aiKinds()
	if len(kinds) == 0 {
		return nil, fmt.Errorf("sequential_cta_2 requires at least one registered AI worker")
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
			if c.Checked {
				if c.Approved && !state.set[i] {
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
			log.Warnf("sequential_cta_2: human sample for task %d failed: %v", i, err)
			return nil, fmt.Errorf("ask human for task %d: %w", i, err)
		}
		log.Debugf("sequential_cta_2: human sample for task %d returned %q", i, h)
		state.output[i] = h
		state.set[i] = true

		for key, c := range state.clusters {
			if c.Checked {
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
			if c.Correct+c.Incorrect < sampleSize {
				continue
			}
			c.Checked = true
			pValue := stat.OneSidedBinomialTest(c.Correct, c.Correct+c.Incorrect, q)
			if pValue < alpha {
				c.Approved = true
				log.Infof("sequential_cta_2: cluster %s (size %d) approved at p=%.4g after reaching sample size %d", key, c.size(), pValue, sampleSize)
				e.propagate(c, state.output, state.set)
			} else {
				log.Debugf("sequential_cta_2: cluster %s (size %d) frozen unapproved at p=%.4g", key, c.size(), pValue)
			}
		}
	}

	return append([]string(nil), state.output[start:end]...), nil
}
