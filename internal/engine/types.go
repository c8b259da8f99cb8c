package engine

import "time"

// RawRecord is a transaction record as it arrives from an import or API
// caller. Field names vary by source; the normalizer resolves them through
// alias lists and never fails on missing or malformed values.
type RawRecord map[string]any

// Direction marks a transaction as money in or money out.
type Direction string

const (
	DirectionExpense Direction = "expense"
	DirectionIncome  Direction = "income"
)

// Frequency is the billing cadence of a recurring charge.
type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyBiWeekly  Frequency = "bi-weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyAnnual    Frequency = "annual"
)

// DetectionMethod names the decision branch that produced a candidate.
type DetectionMethod string

const (
	MethodCategory     DetectionMethod = "category"
	MethodKnownService DetectionMethod = "known_subscription"
	MethodRecurrence   DetectionMethod = "recurrence"
)

// Transaction is the canonical shape produced by the normalizer. Instances
// live only for the duration of one Detect call.
type Transaction struct {
	ID          string
	Date        time.Time // zero if the source date was unparseable
	Amount      float64   // magnitude, always >= 0
	Direction   Direction
	Merchant    string
	Description string
	MerchantKey string
	Category    string // lowercased, "" if absent
}

// RecurrencePattern describes a periodic charge pattern inferred from the
// day gaps between consecutive same-merchant transactions.
type RecurrencePattern struct {
	Frequency     Frequency
	MedianGapDays int
	Consistency   float64 // [0,1], how tightly gaps cluster around the median
	Gaps          []int
	Approximate   bool // matched only the wider approximate-monthly window
}

// AmountConsistency measures how stable the charge amount is across
// occurrences of a merchant group.
type AmountConsistency struct {
	MedianAmount       float64
	MaxDeviation       float64
	VariancePercentage float64
	IsConsistent       bool
	Score              float64
}

// KnownServiceMatch is a hit against the curated recurring-service table.
type KnownServiceMatch struct {
	Name             string
	Category         string
	TypicalFrequency Frequency
	Confidence       float64
}

// Signals records the individual scores that fed a candidate's confidence.
type Signals struct {
	RecurrenceScore        float64 `json:"recurrenceScore"`
	AmountConsistencyScore float64 `json:"amountConsistencyScore"`
	KeywordScore           float64 `json:"keywordScore"`
	CategoryScore          float64 `json:"categoryScore"`
}

// SampleTransaction is a compact view of a contributing transaction,
// included on candidates for explainability.
type SampleTransaction struct {
	ID     string    `json:"id"`
	Date   time.Time `json:"date"`
	Amount float64   `json:"amount"`
}

// Candidate is one detected recurring charge, ready for persistence and
// review by the user.
type Candidate struct {
	MerchantKey                string              `json:"merchantKey"`
	Merchant                   string              `json:"merchant"`
	CategoryID                 string              `json:"categoryId,omitempty"`
	EstimatedMonthlyAmount     float64             `json:"estimatedMonthlyAmount"`
	Frequency                  Frequency           `json:"frequency"`
	FirstDetectedDate          time.Time           `json:"firstDetectedDate"`
	LastChargeDate             time.Time           `json:"lastChargeDate"`
	NextExpectedDate           time.Time           `json:"nextExpectedDate"`
	ConfidenceScore            float64             `json:"confidenceScore"`
	ContributingTransactionIDs []string            `json:"contributingTransactionIds"`
	OccurrenceCount            int                 `json:"occurrenceCount"`
	AverageAmount              float64             `json:"averageAmount"`
	VariancePercentage         float64             `json:"variancePercentage"`
	Signals                    Signals             `json:"signals"`
	DetectionMethod            DetectionMethod     `json:"detectionMethod"`
	PatternType                string              `json:"patternType"`
	Reason                     string              `json:"reason"`
	SampleTransactions         []SampleTransaction `json:"sampleTransactions"`
}

// Options tunes one detection run. The zero value is usable; withDefaults
// fills in unset fields.
type Options struct {
	MinOccurrences          int
	AmountVarianceTolerance float64
	AmountVarianceFixed     float64
	MaxVarianceThreshold    *float64
}

const (
	defaultMinOccurrences    = 2
	defaultVarianceTolerance = 0.05
	defaultVarianceFixed     = 2.0
	maxVarianceTolerance     = 0.5
)

func (o Options) withDefaults() Options {
	if o.MinOccurrences < defaultMinOccurrences {
		o.MinOccurrences = defaultMinOccurrences
	}
	if o.AmountVarianceTolerance <= 0 || o.AmountVarianceTolerance > maxVarianceTolerance {
		o.AmountVarianceTolerance = defaultVarianceTolerance
	}
	if o.AmountVarianceFixed <= 0 {
		o.AmountVarianceFixed = defaultVarianceFixed
	}
	return o
}
