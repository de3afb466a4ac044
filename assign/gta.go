package assign

import (
	"context"
	"fmt"

	"github.com/qaorchestrator/haio/assign/stat"
	"github.com/qaorchestrator/haio/log"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/telemetry"
)

// GTA implements the Bayesian generalization of cta (spec.md §4.5.3): a
// Monte-Carlo posterior check replaces the exact binomial test, run over
// the already-approved cluster set plus each unapproved candidate in turn.
func (e *Engine) GTA(ctx context.Context, tmpl question.Template, data []question.Data, q, alpha float64, iterations int) ([]string, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	if err := validateSelectOnly(tmpl); err != nil {
		return nil, err
	}
	if alpha == 0 {
		alpha = DefaultSignificanceLevel
	}
	if iterations == 0 {
		iterations = DefaultIterations
	}
	if err := validateUnitInterval("quality_requirement", q); err != nil {
		return nil, err
	}
	if err := validateUnitInterval("significance_level", alpha); err != nil {
		return nil, err
	}
	if err := validatePositive("iteration", iterations); err != nil {
		return nil, err
	}

	n := len(data)
	ctx, span := telemetry.StartRun(ctx, "gta", q, alpha, n)
	defer span.End()

	clustersByKey, err := e.buildClusters(ctx, tmpl, data)
	if err != nil {
		return nil, err
	}

	approved := make(map[string]*Cluster)
	unapproved := make(map[string]*Cluster)
	for key, c := range clustersByKey {
		unapproved[key] = c
	}

	output := make([]string, n)
	set := make([]bool, n)

	perm := e.permutation(n)
	for _, i := range perm {
		if set[i] {
			continue
		}
		sampleCtx, sampleSpan := telemetry.StartHumanSample(ctx, "gta", i)
		h, err := e.askHuman(sampleCtx, tmpl, data[i])
		sampleSpan.End()
		if err != nil {
			log.Warnf("gta: human sample for task %d failed: %v", i, err)
			return nil, fmt.Errorf("ask human for task %d: %w", i, err)
		}
		log.Debugf("gta: human sample for task %d returned %q", i, h)
		output[i] = h
		set[i] = true

		// Update every cluster containing i, approved and unapproved alike.
		for _, c := range clustersByKey {
			if _, member := c.TaskIndexes[i]; !member {
				continue
			}
			c.humanVotes[h]++
			if c.Answer == h {
				c.Correct++
			} else {
				c.Incorrect++
			}
		}

		// Re-check every still-unapproved cluster against approved ∪ {U}.
		for key, u := range unapproved {
			candidateSet := make([]stat.ClusterStat, 0, len(approved)+1)
			for _, a := range approved {
				candidateSet = append(candidateSet, stat.ClusterStat{Correct: a.Correct, Incorrect: a.Incorrect, Size: a.size()})
			}
			candidateSet = append(candidateSet, stat.ClusterStat{Correct: u.Correct, Incorrect: u.Incorrect, Size: u.size()})

			posteriorApproved := stat.GTAPosteriorCheck(candidateSet, q, alpha, iterations)
			telemetry.RecordPosteriorCheck(span, key, u.size(), q, posteriorApproved)
			if posteriorApproved {
				u.Approved = true
				delete(unapproved, key)
				approved[key] = u
				log.Infof("gta: cluster %s (size %d) approved after posterior check over %d candidate cluster(s)", key, u.size(), len(candidateSet))
				e.propagate(u, output, set)
			}
		}
	}

	return output, nil
}
