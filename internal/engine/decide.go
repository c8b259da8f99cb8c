package engine

import (
	"math"
	"time"
)

const (
	categoryBaseConfidence   = 0.85
	knownServiceConfidence   = 0.85
	categoryKnownConfidence  = 0.90
	recurrenceBoost          = 0.10
	boostedConfidenceCeiling = 0.95
	recurrenceBaseConfidence = 0.4
	consistencyWeight        = 0.3
	amountScoreWeight        = 0.2
	inconsistencyPenalty     = 0.1
	fallbackConfidence       = 0.4
	fallbackMinSpanDays      = 30
)

// groupContext carries everything known about one merchant group once all
// signal components have run.
type groupContext struct {
	merchantKey   string
	merchant      string
	group         []Transaction // sorted ascending by date
	categoryMatch bool
	rentExcluded  bool
	known         *KnownServiceMatch
	recurrence    *RecurrencePattern
	amounts       AmountConsistency
	exceedsMaxVar bool
}

// decision is the tagged outcome of the rule list.
type decision struct {
	method     DetectionMethod
	frequency  Frequency
	confidence float64
}

// decisionRule evaluates one branch of the detection policy. Returning nil
// passes control to the next rule.
type decisionRule struct {
	name string
	eval func(g *groupContext, opts Options) *decision
}

// decisionRules is the detection policy as data: rules run top to bottom
// and the first non-nil decision wins. Rent-excluded groups are blocked
// from the pattern-based rules but not from category or known-service
// detection.
var decisionRules = []decisionRule{
	{name: "category-match", eval: decideByCategory},
	{name: "known-service", eval: decideByKnownService},
	{name: "recurrence", eval: decideByRecurrence},
	{name: "fallback", eval: decideByFallback},
}

func decide(g *groupContext, opts Options) (*decision, string) {
	for _, rule := range decisionRules {
		if d := rule.eval(g, opts); d != nil {
			return d, rule.name
		}
	}
	return nil, ""
}

func decideByCategory(g *groupContext, _ Options) *decision {
	if !g.categoryMatch {
		return nil
	}
	d := &decision{
		method:     MethodCategory,
		frequency:  FrequencyMonthly,
		confidence: categoryBaseConfidence,
	}
	switch {
	case g.recurrence != nil:
		d.frequency = g.recurrence.Frequency
		d.confidence = math.Min(boostedConfidenceCeiling, d.confidence+recurrenceBoost)
	case g.known != nil:
		d.frequency = g.known.TypicalFrequency
		d.confidence = categoryKnownConfidence
	}
	return d
}

func decideByKnownService(g *groupContext, _ Options) *decision {
	if g.known == nil {
		return nil
	}
	freq := g.known.TypicalFrequency
	if freq == "" {
		freq = FrequencyMonthly
	}
	d := &decision{
		method:     MethodKnownService,
		frequency:  freq,
		confidence: knownServiceConfidence,
	}
	if g.recurrence != nil {
		// An observed cadence overrides the service's typical one.
		d.confidence = math.Min(boostedConfidenceCeiling, d.confidence+recurrenceBoost)
		d.frequency = g.recurrence.Frequency
	}
	return d
}

func decideByRecurrence(g *groupContext, opts Options) *decision {
	if g.recurrence == nil || len(g.group) < opts.MinOccurrences || g.rentExcluded || g.exceedsMaxVar {
		return nil
	}
	confidence := recurrenceBaseConfidence + g.recurrence.Consistency*consistencyWeight
	if g.amounts.IsConsistent {
		confidence += g.amounts.Score * amountScoreWeight
	} else {
		confidence = math.Max(recurrenceBaseConfidence, confidence-inconsistencyPenalty)
	}
	return &decision{
		method:     MethodRecurrence,
		frequency:  g.recurrence.Frequency,
		confidence: confidence,
	}
}

func decideByFallback(g *groupContext, opts Options) *decision {
	if len(g.group) < opts.MinOccurrences || len(g.group) < 2 || g.rentExcluded || g.exceedsMaxVar {
		return nil
	}
	span := g.group[len(g.group)-1].Date.Sub(g.group[0].Date)
	if span < fallbackMinSpanDays*24*time.Hour {
		return nil
	}
	return &decision{
		method:     MethodRecurrence,
		frequency:  FrequencyMonthly,
		confidence: fallbackConfidence,
	}
}

// normalizeToMonthly converts a per-charge amount at the given cadence into
// an estimated monthly cost.
func normalizeToMonthly(amount float64, freq Frequency) float64 {
	switch freq {
	case FrequencyWeekly:
		return amount * 4.33
	case FrequencyBiWeekly:
		return amount * 2.17
	case FrequencyQuarterly:
		return amount / 3
	case FrequencyAnnual:
		return amount / 12
	default:
		return amount
	}
}

// typicalGapDays is the expected days between charges for a cadence, used
// for next-expected-date projection when no observed gap is available.
func typicalGapDays(freq Frequency) int {
	switch freq {
	case FrequencyWeekly:
		return 7
	case FrequencyBiWeekly:
		return 14
	case FrequencyQuarterly:
		return 90
	case FrequencyAnnual:
		return 365
	default:
		return 30
	}
}

// mostFrequentCategory picks the most common non-empty category in the
// group; the first-seen category wins ties.
func mostFrequentCategory(group []Transaction) string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, tx := range group {
		if tx.Category == "" {
			continue
		}
		if _, ok := firstSeen[tx.Category]; !ok {
			firstSeen[tx.Category] = i
		}
		counts[tx.Category]++
	}

	best := ""
	for cat, count := range counts {
		if best == "" {
			best = cat
			continue
		}
		if count > counts[best] || (count == counts[best] && firstSeen[cat] < firstSeen[best]) {
			best = cat
		}
	}
	return best
}
