package engine

import (
	"fmt"
	"sort"
	"strings"
)

const maxSampleTransactions = 3

// buildCandidate packages one positive decision into the output record.
func buildCandidate(g *groupContext, d *decision) Candidate {
	first := g.group[0]
	last := g.group[len(g.group)-1]

	ids := make([]string, len(g.group))
	var total float64
	for i, tx := range g.group {
		ids[i] = tx.ID
		total += tx.Amount
	}

	perCharge := g.amounts.MedianAmount
	if len(g.group) == 1 {
		perCharge = first.Amount
	}

	nextGap := typicalGapDays(d.frequency)
	switch {
	case g.recurrence != nil:
		nextGap = g.recurrence.MedianGapDays
	case g.known != nil:
		// keep the cadence-typical gap
	default:
		nextGap = typicalGapDays(FrequencyMonthly)
	}

	samples := make([]SampleTransaction, 0, maxSampleTransactions)
	for _, tx := range g.group {
		if len(samples) == maxSampleTransactions {
			break
		}
		samples = append(samples, SampleTransaction{ID: tx.ID, Date: tx.Date, Amount: tx.Amount})
	}

	signals := Signals{
		AmountConsistencyScore: g.amounts.Score,
	}
	if g.recurrence != nil {
		signals.RecurrenceScore = g.recurrence.Consistency
	}
	if g.known != nil {
		signals.KeywordScore = 0.9
	}
	if g.categoryMatch {
		signals.CategoryScore = 0.9
	}

	return Candidate{
		MerchantKey:                g.merchantKey,
		Merchant:                   g.merchant,
		CategoryID:                 mostFrequentCategory(g.group),
		EstimatedMonthlyAmount:     normalizeToMonthly(perCharge, d.frequency),
		Frequency:                  d.frequency,
		FirstDetectedDate:          first.Date,
		LastChargeDate:             last.Date,
		NextExpectedDate:           last.Date.AddDate(0, 0, nextGap),
		ConfidenceScore:            clampConfidence(d.confidence),
		ContributingTransactionIDs: ids,
		OccurrenceCount:            len(g.group),
		AverageAmount:              total / float64(len(g.group)),
		VariancePercentage:         g.amounts.VariancePercentage,
		Signals:                    signals,
		DetectionMethod:            d.method,
		PatternType:                patternType(g, d),
		Reason:                     buildReason(g, d),
		SampleTransactions:         samples,
	}
}

func clampConfidence(c float64) float64 {
	if c > 1.0 {
		return 1.0
	}
	return c
}

func patternType(g *groupContext, d *decision) string {
	if g.recurrence != nil {
		if g.recurrence.Approximate {
			return string(g.recurrence.Frequency) + "-approximate"
		}
		return string(g.recurrence.Frequency)
	}
	if d.method == MethodKnownService {
		return "known-service"
	}
	return string(d.frequency)
}

// buildReason produces the human-readable explanation attached to each
// candidate, one clause per contributing signal.
func buildReason(g *groupContext, d *decision) string {
	var parts []string

	switch d.method {
	case MethodCategory:
		parts = append(parts, "category indicates a subscription")
	case MethodKnownService:
		parts = append(parts, fmt.Sprintf("matches known service %s", g.known.Name))
	case MethodRecurrence:
		if g.recurrence != nil {
			parts = append(parts, fmt.Sprintf("charges recur every ~%d days (consistency %.2f)",
				g.recurrence.MedianGapDays, g.recurrence.Consistency))
		} else {
			parts = append(parts, "repeated charges over 30+ days, assumed monthly")
		}
	}

	if d.method == MethodCategory && g.known != nil {
		parts = append(parts, fmt.Sprintf("also matches known service %s", g.known.Name))
	}
	if d.method != MethodRecurrence && g.recurrence != nil {
		parts = append(parts, fmt.Sprintf("%s cadence observed", g.recurrence.Frequency))
	}

	if len(g.group) > 1 {
		if g.amounts.IsConsistent {
			parts = append(parts, fmt.Sprintf("amounts steady around %.2f", g.amounts.MedianAmount))
		} else {
			parts = append(parts, fmt.Sprintf("amounts vary by %.0f%%", g.amounts.VariancePercentage*100))
		}
	}

	if len(parts) == 0 {
		return "recurring charge pattern detected"
	}
	return strings.Join(parts, "; ")
}

// sortCandidates orders by descending confidence. The sort is stable so
// equal-confidence candidates keep their merchant-group encounter order.
func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].ConfidenceScore > candidates[j].ConfidenceScore
	})
}
