package assign

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/qaorchestrator/haio/assign/stat"
	"github.com/qaorchestrator/haio/fingerprint"
	"github.com/qaorchestrator/haio/log"
	"github.com/qaorchestrator/haio/question"
	"github.com/qaorchestrator/haio/telemetry"
)

// clusterKey uniquely identifies a task cluster by (worker, answer), per
// Invariant 5 (cluster disjointness).
func clusterKey(workerKind, answer string) string {
	return workerKind + "\x00" + answer
}

// buildClusters runs CTA/GTA's Phase 1 (spec.md §4.5.2/4.5.3): for every
// task and every registered AI worker, fetch the AI's answer (bounded by
// the engine's pool), then assemble clusters serially so cluster
// membership order is deterministic given the answer stream.
//
// Tasks sharing an identical data fingerprint are dispatched within the
// same pool slot and asked sequentially rather than across slots:
// router.Route mints a fresh cache reservation per call, so two tasks
// with equal (template, data) would otherwise both reach a single-shot
// AI worker's Submit concurrently and race its AlreadyAsking guard
// (worker/openai, worker/gemini). Distinct data fingerprints still run
// concurrently against each other.
func (e *Engine) buildClusters(ctx context.Context, tmpl question.Template, data []question.Data) (map[string]*Cluster, error) {
	ctx, span := telemetry.StartClusterBuild(ctx, "cta", len(data))
	defer span.End()

	n := len(data)
	kinds := e.aiKinds()
	if len(kinds) == 0 {
		return nil, fmt.Errorf("cta/gta requires at least one registered AI worker")
	}

	groups, order, err := groupByDataFingerprint(data)
	if err != nil {
		return nil, err
	}

	answers := make([][]string, n)
	for i := range answers {
		answers[i] = make([]string, len(kinds))
	}
	groupErrs := make([]error, len(order))

	var wg sync.WaitGroup
	wg.Add(len(order))
	p, err := e.pool(func(gi int) {
		defer wg.Done()
		for _, i := range groups[order[gi]] {
			for ki, kind := range kinds {
				a, err := e.askAI(ctx, tmpl, data[i], kind)
				if err != nil {
					groupErrs[gi] = err
					return
				}
				answers[i][ki] = a
			}
		}
	})
	if err != nil {
		return nil, err
	}
	defer p.Release()

	for gi := range order {
		if err := p.Invoke(gi); err != nil {
			return nil, fmt.Errorf("dispatch cluster-build group %d: %w", gi, err)
		}
	}
	wg.Wait()

	for gi, err := range groupErrs {
		if err != nil {
			log.Warnf("cta: ask AI for data group %d failed: %v", gi, err)
			return nil, fmt.Errorf("ask AI for data group %d: %w", gi, err)
		}
	}

	clusters := make(map[string]*Cluster)
	for i := 0; i < n; i++ {
		for ki, kind := range kinds {
			a := answers[i][ki]
			key := clusterKey(kind, a)
			c, ok := clusters[key]
			if !ok {
				c = newCluster(kind, a)
				clusters[key] = c
			}
			c.TaskIndexes[i] = struct{}{}
		}
	}
	log.Debugf("cta: built %d clusters from %d tasks across %d AI worker(s)", len(clusters), n, len(kinds))
	return clusters, nil
}

// groupByDataFingerprint buckets task indices by fp(data[i]), preserving
// each group's first-seen order so dispatch order stays deterministic.
func groupByDataFingerprint(data []question.Data) (map[string][]int, []string, error) {
	groups := make(map[string][]int)
	order := make([]string, 0, len(data))
	for i, d := range data {
		dfp, err := fingerprint.FP(d)
		if err != nil {
			return nil, nil, fmt.Errorf("fingerprint data for task %d: %w", i, err)
		}
		if _, seen := groups[dfp]; !seen {
			order = append(order, dfp)
		}
		groups[dfp] = append(groups[dfp], i)
	}
	return groups, order, nil
}

func (e *Engine) aiKinds() []string {
	kinds := make([]string, 0, len(e.AI))
	for k := range e.AI {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// CTA implements the classical task-cluster approval policy (spec.md
// §4.5.2). The template's answer type must be Select.
func (e *Engine) CTA(ctx context.Context, tmpl question.Template, data []question.Data, q float64, alpha float64) ([]string, error) {
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

	n := len(data)
	ctx, span := telemetry.StartRun(ctx, "cta", q, alpha, n)
	defer span.End()

	clusters, err := e.buildClusters(ctx, tmpl, data)
	if err != nil {
		return nil, err
	}

	output := make([]string, n)
	set := make([]bool, n)

	perm := e.permutation(n)
	for _, i := range perm {
		if set[i] {
			continue
		}
		sampleCtx, sampleSpan := telemetry.StartHumanSample(ctx, "cta", i)
		h, err := e.askHuman(sampleCtx, tmpl, data[i])
		sampleSpan.End()
		if err != nil {
			log.Warnf("cta: human sample for task %d failed: %v", i, err)
			return nil, fmt.Errorf("ask human for task %d: %w", i, err)
		}
		log.Debugf("cta: human sample for task %d returned %q", i, h)
		output[i] = h
		set[i] = true

		for key, c := range clusters {
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
			approved := pValue < alpha
			telemetry.RecordApprovalTest(span, key, c.size(), q, pValue, approved)
			if approved {
				c.Approved = true
				log.Infof("cta: cluster %s (size %d) approved at p=%.4g after %d correct/%d incorrect", key, c.size(), pValue, c.Correct, c.Incorrect)
				e.propagate(c, output, set)
			}
		}
	}

	return output, nil
}

// propagate fills every unset output in c's membership with c's approved
// answer — the cluster's own (key) answer by default, or the human-majority
// answer under WithHumanMajorityOverride (spec.md §9's extension flag).
func (e *Engine) propagate(c *Cluster, output []string, set []bool) {
	answer := c.Answer
	if e.humanMajority {
		answer = c.majorityHumanAnswer(c.Answer)
	}
	for j := range c.TaskIndexes {
		if !set[j] {
			output[j] = answer
			set[j] = true
		}
	}
}
