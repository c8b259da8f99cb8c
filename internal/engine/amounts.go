package engine

import "math"

const (
	toleranceLeniency   = 1.5 // widens the base tolerance band
	secondChanceFactor  = 2.0 // borderline groups within 2x tolerance still pass
	singleOccurScore    = 0.7
	minConsistentScore  = 0.4
	borderlineScore     = 0.3
	scoreVarianceDivide = 3.0
)

// CheckAmountConsistency measures how stable the charge magnitudes are
// around their median. tolerancePercent and toleranceFixed define the base
// band; the band is deliberately widened by 1.5x, and groups that only fit
// within twice the band still count as consistent at a reduced score.
func CheckAmountConsistency(amounts []float64, tolerancePercent, toleranceFixed float64) AmountConsistency {
	switch len(amounts) {
	case 0:
		return AmountConsistency{}
	case 1:
		// A single charge is consistent by assumption.
		return AmountConsistency{
			MedianAmount: amounts[0],
			IsConsistent: true,
			Score:        singleOccurScore,
		}
	}

	median := medianFloat(amounts)

	var maxDeviation float64
	for _, a := range amounts {
		if d := math.Abs(a - median); d > maxDeviation {
			maxDeviation = d
		}
	}

	variancePct := 0.0
	if median != 0 {
		variancePct = maxDeviation / median
	}

	tolerance := math.Max(median*tolerancePercent*toleranceLeniency, toleranceFixed*toleranceLeniency)
	withinBand := maxDeviation <= tolerance
	withinSecondChance := maxDeviation <= secondChanceFactor*tolerance

	score := 0.0
	if withinBand {
		score = math.Max(minConsistentScore, 1-variancePct/(tolerancePercent*scoreVarianceDivide))
	} else if withinSecondChance {
		score = borderlineScore
	}

	return AmountConsistency{
		MedianAmount:       median,
		MaxDeviation:       maxDeviation,
		VariancePercentage: variancePct,
		IsConsistent:       withinBand || withinSecondChance,
		Score:              score,
	}
}
