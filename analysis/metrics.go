package analysis

import "math"

// ConcentrationRatio is the ratio of a category's observed rate within a
// location to its expected rate study-wide. 1.0 means exactly as expected,
// >1 over-represented, <1 under-represented. Zero totals are legitimate
// empty-data states and yield 0.0 rather than an error.
func ConcentrationRatio(cellCount, rowTotal, colTotal, grandTotal int) float64 {
	if grandTotal == 0 || rowTotal == 0 || colTotal == 0 {
		return 0.0
	}
	expected := float64(colTotal) / float64(grandTotal)
	if expected == 0 {
		return 0.0
	}
	observed := float64(cellCount) / float64(rowTotal)
	return observed / expected
}

// SimpsonsNeff is the unbiased effective number of distinct voices behind a
// set of contributions: N(N-1) / sum(n_i(n_i-1)) over per-participant counts.
// N <= 1 returns N exactly. A zero denominator means every participant
// contributed exactly once (maximal diversity), which also returns N.
func SimpsonsNeff(counts []int) float64 {
	n := 0
	for _, c := range counts {
		n += c
	}
	if n <= 1 {
		return float64(n)
	}

	den := 0
	for _, c := range counts {
		den += c * (c - 1)
	}
	if den == 0 {
		return float64(n)
	}
	return float64(n*(n-1)) / float64(den)
}

// MeanIntensity is the arithmetic mean of the 1-3 intensities, 0.0 when empty.
func MeanIntensity(intensities []int) float64 {
	if len(intensities) == 0 {
		return 0.0
	}
	sum := 0
	for _, v := range intensities {
		sum += v
	}
	return float64(sum) / float64(len(intensities))
}

// CompositeSignal combines concentration, voice diversity and intensity into
// one ranking score: concentration * (nEff / totalParticipants) * (mean / 3).
// The multiplicative form penalizes signals that are concentrated but driven
// by a single voice, or concentrated but emotionally flat.
func CompositeSignal(concentration, nEff float64, totalParticipants int, meanIntensity float64) float64 {
	if totalParticipants == 0 {
		return 0.0
	}
	return concentration * (nEff / float64(totalParticipants)) * (meanIntensity / 3.0)
}

// AdjustedResidual is the standardized residual of a cell under the
// independence null hypothesis. Returns 0.0 whenever any total is zero, the
// expected count is zero, or the variance term vanishes (row or column equal
// to the grand total).
func AdjustedResidual(observed, rowTotal, colTotal, grandTotal int) float64 {
	if grandTotal == 0 || rowTotal == 0 || colTotal == 0 {
		return 0.0
	}
	expected := float64(rowTotal) * float64(colTotal) / float64(grandTotal)
	if expected == 0 {
		return 0.0
	}
	variance := expected *
		(1.0 - float64(rowTotal)/float64(grandTotal)) *
		(1.0 - float64(colTotal)/float64(grandTotal))
	if variance <= 0 {
		return 0.0
	}
	return (float64(observed) - expected) / math.Sqrt(variance)
}
