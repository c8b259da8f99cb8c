package engine

import (
	"math"
	"testing"
)

func record(dateStr, merchant string, amount float64) RawRecord {
	return RawRecord{
		"date":     dateStr,
		"merchant": merchant,
		"amount":   amount,
	}
}

func newTestEngine() *Engine {
	return New(nil, nil)
}

func TestDetectKnownServiceMonthlyPattern(t *testing.T) {
	e := newTestEngine()

	records := []RawRecord{
		record("2024-01-10", "Netflix", 15.49),
		record("2024-02-09", "Netflix", 15.49),
		record("2024-03-10", "Netflix", 15.49),
	}

	candidates := e.Detect(records, Options{})

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.Frequency != FrequencyMonthly {
		t.Errorf("Frequency = %s, want monthly", c.Frequency)
	}
	if c.ConfidenceScore <= 0.4 {
		t.Errorf("ConfidenceScore = %f, want > 0.4", c.ConfidenceScore)
	}
	if c.EstimatedMonthlyAmount != 15.49 {
		t.Errorf("EstimatedMonthlyAmount = %f, want 15.49", c.EstimatedMonthlyAmount)
	}
	if c.OccurrenceCount != 3 {
		t.Errorf("OccurrenceCount = %d, want 3", c.OccurrenceCount)
	}
	if len(c.ContributingTransactionIDs) != c.OccurrenceCount {
		t.Errorf("len(ContributingTransactionIDs) = %d, want %d",
			len(c.ContributingTransactionIDs), c.OccurrenceCount)
	}
}

func TestDetectSingleKnownServiceOccurrence(t *testing.T) {
	e := newTestEngine()

	candidates := e.Detect([]RawRecord{
		record("2024-01-15", "Netflix.com", 9.99),
	}, Options{})

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.DetectionMethod != MethodKnownService {
		t.Errorf("DetectionMethod = %s, want %s", c.DetectionMethod, MethodKnownService)
	}
	if c.Frequency != FrequencyMonthly {
		t.Errorf("Frequency = %s, want monthly", c.Frequency)
	}
	if c.ConfidenceScore <= 0.8 {
		t.Errorf("ConfidenceScore = %f, want > 0.8", c.ConfidenceScore)
	}
	if c.PatternType != "known-service" {
		t.Errorf("PatternType = %q, want known-service", c.PatternType)
	}
	if c.EstimatedMonthlyAmount != 9.99 {
		t.Errorf("EstimatedMonthlyAmount = %f, want 9.99", c.EstimatedMonthlyAmount)
	}
}

func TestDetectBelowMinOccurrences(t *testing.T) {
	e := newTestEngine()

	candidates := e.Detect([]RawRecord{
		record("2024-01-15", "Corner Bakery", 4.50),
	}, Options{})

	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
}

func TestDetectBiWeeklyPattern(t *testing.T) {
	e := newTestEngine()

	candidates := e.Detect([]RawRecord{
		record("2024-01-01", "Fresh Box", 40.00),
		record("2024-01-15", "Fresh Box", 40.00),
		record("2024-01-29", "Fresh Box", 40.00),
	}, Options{})

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.Frequency != FrequencyBiWeekly {
		t.Errorf("Frequency = %s, want bi-weekly", c.Frequency)
	}
	want := 40.00 * 2.17
	if math.Abs(c.EstimatedMonthlyAmount-want) > 1e-9 {
		t.Errorf("EstimatedMonthlyAmount = %f, want %f", c.EstimatedMonthlyAmount, want)
	}
	if c.NextExpectedDate.Format("2006-01-02") != "2024-02-12" {
		t.Errorf("NextExpectedDate = %s, want 2024-02-12", c.NextExpectedDate.Format("2006-01-02"))
	}
}

func TestDetectQuarterlyPattern(t *testing.T) {
	e := newTestEngine()

	candidates := e.Detect([]RawRecord{
		record("2024-01-01", "City Insurance", 300.00),
		record("2024-03-31", "City Insurance", 300.00),
		record("2024-06-29", "City Insurance", 300.00),
	}, Options{})

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.Frequency != FrequencyQuarterly {
		t.Errorf("Frequency = %s, want quarterly", c.Frequency)
	}
	if math.Abs(c.EstimatedMonthlyAmount-100.00) > 1e-9 {
		t.Errorf("EstimatedMonthlyAmount = %f, want 100", c.EstimatedMonthlyAmount)
	}
}

func TestDetectGroupsMerchantVariants(t *testing.T) {
	e := newTestEngine()

	candidates := e.Detect([]RawRecord{
		record("2024-01-10", "Netflix Inc", 15.49),
		record("2024-02-09", "Netflix", 15.49),
		record("2024-03-10", "NETFLIX", 15.49),
	}, Options{})

	if len(candidates) != 1 {
		t.Fatalf("expected variants to group into 1 candidate, got %d", len(candidates))
	}
	if candidates[0].OccurrenceCount != 3 {
		t.Errorf("OccurrenceCount = %d, want 3", candidates[0].OccurrenceCount)
	}
	if candidates[0].MerchantKey != "netflix" {
		t.Errorf("MerchantKey = %q, want netflix", candidates[0].MerchantKey)
	}
}

func TestDetectMaxVarianceThresholdBlocksPatternPaths(t *testing.T) {
	e := newTestEngine()
	threshold := 0.2

	candidates := e.Detect([]RawRecord{
		record("2024-01-01", "Corner Store", 10.00),
		record("2024-01-31", "Corner Store", 90.00),
		record("2024-03-01", "Corner Store", 45.00),
	}, Options{MaxVarianceThreshold: &threshold})

	if len(candidates) != 0 {
		t.Fatalf("expected variance gate to suppress detection, got %d candidates", len(candidates))
	}
}

func TestDetectSortedByConfidenceWithStableTies(t *testing.T) {
	e := newTestEngine()

	// Two unknown merchants with identical fallback-quality patterns, plus a
	// known service that must rank first.
	records := []RawRecord{
		record("2024-01-03", "Alpha Window Cleaning", 35.00),
		record("2024-02-14", "Alpha Window Cleaning", 52.00),
		record("2024-01-05", "Beta Lawn Care", 28.00),
		record("2024-02-18", "Beta Lawn Care", 44.00),
		record("2024-01-10", "Spotify", 10.99),
		record("2024-02-09", "Spotify", 10.99),
	}

	candidates := e.Detect(records, Options{})

	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].ConfidenceScore > candidates[i-1].ConfidenceScore {
			t.Fatalf("candidates not sorted by descending confidence: %f before %f",
				candidates[i-1].ConfidenceScore, candidates[i].ConfidenceScore)
		}
	}
	if candidates[0].MerchantKey != "spotify" {
		t.Errorf("expected spotify first, got %s", candidates[0].MerchantKey)
	}
	// Equal-confidence fallback candidates keep encounter order.
	if candidates[1].MerchantKey != "alpha window cleaning" || candidates[2].MerchantKey != "beta lawn care" {
		t.Errorf("tie order = %s, %s; want alpha window cleaning, beta lawn care",
			candidates[1].MerchantKey, candidates[2].MerchantKey)
	}
}

func TestDetectEmptyInput(t *testing.T) {
	e := newTestEngine()

	if got := e.Detect(nil, Options{}); len(got) != 0 {
		t.Errorf("expected empty result for nil input, got %d", len(got))
	}
	if got := e.Detect([]RawRecord{}, Options{}); len(got) != 0 {
		t.Errorf("expected empty result for empty input, got %d", len(got))
	}
}

func TestDetectRentExclusion(t *testing.T) {
	e := newTestEngine()

	// Perfect monthly pattern, flat amount, but rent-keyed: no candidate.
	candidates := e.Detect([]RawRecord{
		record("2024-01-01", "Apartment Rent", 1500.00),
		record("2024-01-31", "Apartment Rent", 1500.00),
		record("2024-03-01", "Apartment Rent", 1500.00),
	}, Options{})

	if len(candidates) != 0 {
		t.Fatalf("expected rent exclusion to suppress detection, got %d", len(candidates))
	}
}

func TestDetectRentCategoryStillAllowsCategorySignal(t *testing.T) {
	e := newTestEngine()

	// Explicit subscription category wins even for a rent-keyed merchant
	// is NOT the case: rent exclusion clears the category match. But a
	// known service with a housing-sounding description must still pass
	// through the known-service path.
	candidates := e.Detect([]RawRecord{
		{"date": "2024-01-01", "merchant": "Netflix Rental Plan", "amount": 9.99},
		{"date": "2024-01-31", "merchant": "Netflix Rental Plan", "amount": 9.99},
	}, Options{})

	if len(candidates) != 1 {
		t.Fatalf("expected known-service detection, got %d candidates", len(candidates))
	}
	if candidates[0].DetectionMethod != MethodKnownService {
		t.Errorf("DetectionMethod = %s, want %s", candidates[0].DetectionMethod, MethodKnownService)
	}
}

func TestDetectCategorySignal(t *testing.T) {
	e := newTestEngine()

	candidates := e.Detect([]RawRecord{
		{"date": "2024-01-05", "merchant": "Local Paper", "amount": 7.00, "category": "Subscription"},
		{"date": "2024-02-04", "merchant": "Local Paper", "amount": 7.00, "category": "Subscription"},
	}, Options{})

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.DetectionMethod != MethodCategory {
		t.Errorf("DetectionMethod = %s, want %s", c.DetectionMethod, MethodCategory)
	}
	// Recurrence present (30-day gap) boosts confidence to the ceiling.
	if c.ConfidenceScore != 0.95 {
		t.Errorf("ConfidenceScore = %f, want 0.95", c.ConfidenceScore)
	}
	if c.CategoryID != "subscription" {
		t.Errorf("CategoryID = %q, want subscription", c.CategoryID)
	}
	if c.Signals.CategoryScore != 0.9 {
		t.Errorf("Signals.CategoryScore = %f, want 0.9", c.Signals.CategoryScore)
	}
}

func TestDetectIncomeAndUndatedRowsExcluded(t *testing.T) {
	e := newTestEngine()

	candidates := e.Detect([]RawRecord{
		{"date": "2024-01-10", "merchant": "Payroll", "amount": 5000.0, "type": "income"},
		{"date": "2024-02-09", "merchant": "Payroll", "amount": 5000.0, "type": "income"},
		{"date": "garbage", "merchant": "Spotify", "amount": 10.99},
	}, Options{})

	if len(candidates) != 0 {
		t.Fatalf("expected income and undated rows to be excluded, got %d candidates", len(candidates))
	}
}

func TestDetectFallbackPath(t *testing.T) {
	e := newTestEngine()

	// Gaps too erratic for recurrence (consistency below threshold) but
	// spanning over 30 days with enough occurrences: assumed monthly.
	candidates := e.Detect([]RawRecord{
		record("2024-01-01", "Odd Utility", 60.00),
		record("2024-01-04", "Odd Utility", 60.00),
		record("2024-03-01", "Odd Utility", 60.00),
		record("2024-03-03", "Odd Utility", 60.00),
	}, Options{})

	if len(candidates) != 1 {
		t.Fatalf("expected fallback detection, got %d candidates", len(candidates))
	}
	c := candidates[0]
	if c.DetectionMethod != MethodRecurrence {
		t.Errorf("DetectionMethod = %s, want %s", c.DetectionMethod, MethodRecurrence)
	}
	if c.Frequency != FrequencyMonthly {
		t.Errorf("Frequency = %s, want monthly", c.Frequency)
	}
	if c.ConfidenceScore != 0.4 {
		t.Errorf("ConfidenceScore = %f, want 0.4", c.ConfidenceScore)
	}
}

func TestDetectDropsFullyUnknownRows(t *testing.T) {
	e := newTestEngine()

	// No merchant, no description: the key stays unresolved and the display
	// name is "Unknown", so the rows are dropped before grouping.
	candidates := e.Detect([]RawRecord{
		{"date": "2024-01-10", "amount": 10.99},
		{"date": "2024-02-09", "amount": 10.99},
		{"date": "2024-03-10", "amount": 10.99},
	}, Options{})

	if len(candidates) != 0 {
		t.Fatalf("expected unresolved rows to be dropped, got %d candidates", len(candidates))
	}
}

func TestDetectKeepsUnresolvedButNamedRows(t *testing.T) {
	e := newTestEngine()

	// The merchant text normalizes to nothing usable, but it is a real
	// display name, so the rows stay grouped under the sentinel key.
	candidates := e.Detect([]RawRecord{
		{"date": "2024-01-01", "merchant": "#1", "amount": 25.00},
		{"date": "2024-01-31", "merchant": "#1", "amount": 25.00},
		{"date": "2024-03-01", "merchant": "#1", "amount": 25.00},
	}, Options{})

	if len(candidates) != 1 {
		t.Fatalf("expected sentinel group to survive, got %d candidates", len(candidates))
	}
	if candidates[0].MerchantKey != UnknownKey {
		t.Errorf("MerchantKey = %q, want %q", candidates[0].MerchantKey, UnknownKey)
	}
}

func TestDetectSampleTransactionsCapped(t *testing.T) {
	e := newTestEngine()

	candidates := e.Detect([]RawRecord{
		record("2024-01-10", "Netflix", 15.49),
		record("2024-02-09", "Netflix", 15.49),
		record("2024-03-10", "Netflix", 15.49),
		record("2024-04-09", "Netflix", 15.49),
		record("2024-05-09", "Netflix", 15.49),
	}, Options{})

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if len(c.SampleTransactions) != 3 {
		t.Errorf("len(SampleTransactions) = %d, want 3", len(c.SampleTransactions))
	}
	if c.OccurrenceCount != 5 {
		t.Errorf("OccurrenceCount = %d, want 5", c.OccurrenceCount)
	}
	if c.FirstDetectedDate.Format("2006-01-02") != "2024-01-10" {
		t.Errorf("FirstDetectedDate = %s", c.FirstDetectedDate.Format("2006-01-02"))
	}
	if c.LastChargeDate.Format("2006-01-02") != "2024-05-09" {
		t.Errorf("LastChargeDate = %s", c.LastChargeDate.Format("2006-01-02"))
	}
}
