// Package stat implements the statistical decision rules the assignment
// engine uses to approve task clusters: the one-sided exact binomial test
// behind cta and the sequential variants, and the Beta-sampling
// Monte-Carlo posterior check behind gta. Both are grounded on the
// teacher's evaluation/pass.go precedent of hand-rolled but numerically
// careful statistics over small samples, generalized here to lean on
// gonum.org/v1/gonum/stat/distuv instead of reimplementing the
// combinatorics by hand.
package stat

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// OneSidedBinomialTest returns the p-value for testing the null hypothesis
// that the true success probability equals p against the one-sided
// alternative that it is greater, given k successes out of n trials. This
// is the exact binomial test ("greater" alternative) spec.md §4.5.2
// requires: p_value = 1 - CDF(k-1 | n, p).
func OneSidedBinomialTest(k, n int, p float64) float64 {
	if n <= 0 || k <= 0 {
		return 1
	}
	b := distuv.Binomial{N: float64(n), P: p}
	return 1 - b.CDF(float64(k-1))
}

// ClusterStat is the minimal shape GTAPosteriorCheck needs from a cluster:
// its accumulated agreement counts and its size (number of member tasks).
type ClusterStat struct {
	Correct, Incorrect, Size int
}

// GTAPosteriorCheck implements the Monte-Carlo posterior check of spec.md
// §4.5.3: for `iterations` independent draws, sample each cluster's
// quality from Beta(correct+1, incorrect+1), compute the size-weighted
// mean quality across clusters, and let phat be the fraction of draws
// whose weighted mean meets q. It reports whether 1 - phat < alpha, i.e.
// whether the cluster set (an approved set plus one unapproved candidate)
// may be approved.
func GTAPosteriorCheck(clusters []ClusterStat, q, alpha float64, iterations int) bool {
	if len(clusters) == 0 || iterations <= 0 {
		return false
	}
	totalSize := 0
	for _, c := range clusters {
		totalSize += c.Size
	}
	if totalSize == 0 {
		return false
	}

	betas := make([]distuv.Beta, len(clusters))
	for i, c := range clusters {
		betas[i] = distuv.Beta{Alpha: float64(c.Correct + 1), Beta: float64(c.Incorrect + 1)}
	}

	meets := 0
	for m := 0; m < iterations; m++ {
		weighted := 0.0
		for i, c := range clusters {
			weighted += betas[i].Rand() * float64(c.Size)
		}
		mu := weighted / float64(totalSize)
		if mu >= q {
			meets++
		}
	}
	phat := float64(meets) / float64(iterations)
	return 1-phat < alpha
}
