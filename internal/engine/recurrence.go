package engine

import (
	"math"
	"sort"
)

const (
	minRecurrenceConsistency = 0.4
	hoursPerDay              = 24
)

// frequencyWindow classifies a median gap into a billing cadence. Windows
// are inclusive and intentionally overlap; they are evaluated in order and
// the first match wins, which biases ambiguous gaps toward the
// earlier-listed cadence. The trailing approximate window catches loose
// monthly patterns that the strict window misses.
type frequencyWindow struct {
	frequency Frequency
	min, max  int
}

var frequencyWindows = []frequencyWindow{
	{FrequencyWeekly, 4, 12},
	{FrequencyBiWeekly, 10, 20},
	{FrequencyMonthly, 20, 45},
	{FrequencyQuarterly, 80, 100},
	{FrequencyAnnual, 340, 390},
}

const (
	approxMonthlyMin = 15
	approxMonthlyMax = 50
)

// DetectRecurrence infers a periodic pattern from a date-sorted merchant
// group. Returns nil when there are fewer than two dated transactions, no
// positive gaps, the gaps are too erratic, or the median gap fits no
// cadence window.
func DetectRecurrence(group []Transaction) *RecurrencePattern {
	if len(group) < 2 {
		return nil
	}

	var gaps []int
	for i := 1; i < len(group); i++ {
		days := int(math.Round(group[i].Date.Sub(group[i-1].Date).Hours() / hoursPerDay))
		if days > 0 {
			gaps = append(gaps, days)
		}
	}
	if len(gaps) == 0 {
		return nil
	}

	medianGap := medianInt(gaps)

	var deviationSum float64
	for _, g := range gaps {
		deviationSum += math.Abs(float64(g - medianGap))
	}
	meanDeviation := deviationSum / float64(len(gaps))
	consistency := math.Max(0, 1-meanDeviation/float64(medianGap))
	if consistency < minRecurrenceConsistency {
		return nil
	}

	for _, w := range frequencyWindows {
		if medianGap >= w.min && medianGap <= w.max {
			return &RecurrencePattern{
				Frequency:     w.frequency,
				MedianGapDays: medianGap,
				Consistency:   consistency,
				Gaps:          gaps,
			}
		}
	}
	if medianGap >= approxMonthlyMin && medianGap <= approxMonthlyMax {
		return &RecurrencePattern{
			Frequency:     FrequencyMonthly,
			MedianGapDays: medianGap,
			Consistency:   consistency,
			Gaps:          gaps,
			Approximate:   true,
		}
	}
	return nil
}

// medianInt returns the lower-middle element for even-length input.
func medianInt(values []int) int {
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	return sorted[(len(sorted)-1)/2]
}

// medianFloat returns the lower-middle element for even-length input.
func medianFloat(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return sorted[(len(sorted)-1)/2]
}
