// Package engine implements the recurring-charge detection engine: it
// normalizes heterogeneous transaction records, groups them by a canonical
// merchant key, evaluates recurrence, amount-consistency, category and
// known-service signals per group, and emits ranked subscription candidates.
//
// Detect is a pure, synchronous batch function with no shared mutable
// state, so one Engine can serve concurrent callers.
package engine

import (
	"fmt"
	"sort"
)

// Engine holds the immutable reference tables and the tracer. Construct
// once at startup and reuse.
type Engine struct {
	ref    *Reference
	tracer Tracer
}

// New creates an Engine. A nil reference falls back to the built-in tables
// and a nil tracer disables tracing.
func New(ref *Reference, tracer Tracer) *Engine {
	if ref == nil {
		ref = DefaultReference()
	}
	if tracer == nil {
		tracer = NopTracer{}
	}
	return &Engine{ref: ref, tracer: tracer}
}

// Reference exposes the engine's reference tables, for callers that need
// to evaluate individual signals (e.g. diagnostics endpoints).
func (e *Engine) Reference() *Reference {
	return e.ref
}

// Detect runs one detection pass over raw records and returns candidates
// sorted by descending confidence. Malformed rows degrade via defaults and
// filtering; the call never fails.
func (e *Engine) Detect(records []RawRecord, opts Options) []Candidate {
	opts = opts.withDefaults()
	e.tracer.Event("detect.start", map[string]any{"records": len(records)})

	groups, order := e.groupTransactions(records)

	var candidates []Candidate
	for _, key := range order {
		g := e.evaluateGroup(key, groups[key], opts)
		d, rule := decide(g, opts)
		if d == nil {
			e.tracer.Event("detect.group.skipped", map[string]any{
				"merchantKey": key,
				"occurrences": len(g.group),
			})
			continue
		}
		c := buildCandidate(g, d)
		e.tracer.Event("detect.group.detected", map[string]any{
			"merchantKey": key,
			"rule":        rule,
			"method":      string(c.DetectionMethod),
			"frequency":   string(c.Frequency),
			"confidence":  c.ConfidenceScore,
		})
		candidates = append(candidates, c)
	}

	sortCandidates(candidates)
	e.tracer.Event("detect.done", map[string]any{"candidates": len(candidates)})
	return candidates
}

// groupTransactions normalizes, filters and clusters records by merchant
// key. Income rows and rows without a parseable date are excluded; rows
// whose key resolved to the unknown sentinel get one recovery attempt from
// the merchant display field, and are dropped only when the merchant field
// is "Unknown" too. Returned order is first-seen group order, which keeps
// downstream tie-breaking deterministic.
func (e *Engine) groupTransactions(records []RawRecord) (map[string][]Transaction, []string) {
	groups := make(map[string][]Transaction)
	var order []string

	for i, raw := range records {
		tx := Normalize(raw, fmt.Sprintf("txn-%d", i+1))
		if tx.Direction != DirectionExpense || tx.Date.IsZero() {
			continue
		}
		if tx.MerchantKey == UnknownKey {
			tx.MerchantKey = RecoverMerchantKey(tx.Merchant)
			if tx.MerchantKey == UnknownKey && tx.Merchant == unknownMerchant {
				continue
			}
		}
		if _, seen := groups[tx.MerchantKey]; !seen {
			order = append(order, tx.MerchantKey)
		}
		groups[tx.MerchantKey] = append(groups[tx.MerchantKey], tx)
	}

	for _, key := range order {
		sortByDate(groups[key])
	}
	return groups, order
}

// evaluateGroup computes every signal for one merchant group.
func (e *Engine) evaluateGroup(key string, group []Transaction, opts Options) *groupContext {
	g := &groupContext{
		merchantKey: key,
		merchant:    group[len(group)-1].Merchant, // most recent display form
		group:       group,
	}

	g.rentExcluded = e.ref.isRentExcluded(key, group)
	for _, tx := range group {
		if e.ref.IsSubscriptionCategory(tx.Category) {
			g.categoryMatch = true
			break
		}
	}
	if g.rentExcluded {
		g.categoryMatch = false
	}

	last := group[len(group)-1]
	g.known = e.ref.MatchKnownService(key, last.Merchant, last.Description)

	if len(group) >= 2 {
		g.recurrence = DetectRecurrence(group)
	}

	amounts := make([]float64, len(group))
	for i, tx := range group {
		amounts[i] = tx.Amount
	}
	g.amounts = CheckAmountConsistency(amounts, opts.AmountVarianceTolerance, opts.AmountVarianceFixed)

	if opts.MaxVarianceThreshold != nil && g.amounts.VariancePercentage > *opts.MaxVarianceThreshold {
		g.exceedsMaxVar = true
	}

	return g
}

func sortByDate(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.Before(txs[j].Date)
	})
}
