package assign

import (
	"context"
	"fmt"

	"github.com/qaorchestrator/haio/assign/stat"
	"github.com/qaorchestrator/haio/log"
	"github.com/qaorchestrator/haio/question"
)

// Sequential3 implements the phase-aware reuse variant (spec.md §4.5.4
// variant 3, resolved per SPEC_FULL.md §10): each call introduces one
// phase covering the half-open range of global indices it contributes.
// Each unset task resolved within the current call's range either reuses
// an entry of the phase's pool or gets a fresh human draw: a fresh draw
// is stored in the pool, and the next task resolved in that phase takes
// that stored answer as its own and removes it from the pool (destructive
// reuse), so a fresh draw is made only while the pool is empty.
func (e *Engine) Sequential3(ctx context.Context, tmpl question.Template, newData []question.Data, q, alpha float64) ([]string, error) {
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

	key, err := sequentialKey("sequential_cta_3", tmpl, SequentialParams{q, alpha})
	if err != nil {
		return nil, err
	}
	state := e.Sequential.Get(key)
	state.mu.Lock()
	defer state.mu.Unlock()

	kinds := e.aiKinds()
	if len(kinds) == 0 {
		return nil, fmt.Errorf("sequential_cta_3 requires at least one registered AI worker")
	}

	start, end := state.appendTasks(newData)
	ph := &phase{start: start, end: end, reuse: make(map[int]string)}
	state.phases = append(state.phases, ph)

	for i := start; i < end; i++ {
		d := state.dataLists[i]
		for _, kind := range kinds {
			a, err := e.askAI(ctx, tmpl, d, kind)
			if err != nil {
				return nil, fmt.Errorf("ask AI for task %d: %w", i, err)
			}
			state.answerCandidates[kind] = append(state.answerCandidates[kind], a)

			c := state.clusterFor(kind, a)
			c.TaskIndexes[i] = struct{}{}
			if c.Approved && !state.set[i] {
				state.output[i] = c.Answer
				state.set[i] = true
			}
		}
	}

	// Resolve every still-unset task in this call's range, picking a
	// random unresolved candidate each iteration per spec.md §4.5.4
	// variant 3 ("choose a random unresolved candidate c"). Each
	// iteration either consumes an existing phase pool entry or draws a
	// fresh one, and always resolves exactly one previously-unset global
	// index, so the loop strictly shrinks toward termination.
	for {
		candidates := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			if !state.set[i] {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			break
		}
		target := candidates[e.permutation(len(candidates))[0]]

		var h string
		var drawnFor int
		if len(ph.reuse) > 0 {
			for idx, a := range ph.reuse {
				drawnFor = idx
				h = a
				break
			}
			delete(ph.reuse, drawnFor)
		} else {
			var err error
			h, err = e.askHuman(ctx, tmpl, state.dataLists[target])
			if err != nil {
				log.Warnf("sequential_cta_3: human sample for task %d failed: %v", target, err)
				return nil, fmt.Errorf("ask human for task %d: %w", target, err)
			}
			log.Debugf("sequential_cta_3: human sample for task %d returned %q", target, h)
			drawnFor = target
			ph.reuse[target] = h
		}

		if !state.set[target] {
			state.output[target] = h
			state.set[target] = true
		}
		if drawnFor != target && !state.set[drawnFor] && ph.contains(drawnFor) {
			state.output[drawnFor] = h
			state.set[drawnFor] = true
		}

		for key, c := range state.clusters {
			if c.Approved {
				continue
			}
			if _, member := c.TaskIndexes[target]; !member {
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
				log.Infof("sequential_cta_3: cluster %s (size %d) approved at p=%.4g", key, c.size(), pValue)
				e.propagate(c, state.output, state.set)
			}
		}
	}

	return append([]string(nil), state.output[start:end]...), nil
}
