package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/subwatch/subwatch/internal/engine"
)

func TestGetCurrencyFormat(t *testing.T) {
	tests := []struct {
		code     string
		amount   float64
		expected string
	}{
		{"USD", 9.99, "$9.99"},
		{"SEK", 99, "99,00 kr"},
		{"ZZZ", 5, "5.00 ZZZ"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			c := GetCurrency(tt.code)
			if got := c.Format(tt.amount); got != tt.expected {
				t.Errorf("Format(%f) = %q, want %q", tt.amount, got, tt.expected)
			}
		})
	}
}

func testCandidates() []engine.Candidate {
	return []engine.Candidate{
		{
			Merchant:               "Netflix",
			MerchantKey:            "netflix",
			EstimatedMonthlyAmount: 9.99,
			Frequency:              engine.FrequencyMonthly,
			ConfidenceScore:        0.95,
			DetectionMethod:        engine.MethodKnownService,
			NextExpectedDate:       time.Date(2024, 4, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			Merchant:               "Local Gym",
			MerchantKey:            "local gym",
			EstimatedMonthlyAmount: 35,
			Frequency:              engine.FrequencyMonthly,
			ConfidenceScore:        0.9,
			DetectionMethod:        engine.MethodRecurrence,
		},
	}
}

func TestPrintCandidatesJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintCandidatesJSON(&buf, testCandidates(), GetCurrency("USD")); err != nil {
		t.Fatalf("PrintCandidatesJSON() failed: %v", err)
	}

	var out JSONOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if out.Summary.Count != 2 {
		t.Errorf("Count = %d, want 2", out.Summary.Count)
	}
	if out.Summary.MonthlyTotal != 44.99 {
		t.Errorf("MonthlyTotal = %f, want 44.99", out.Summary.MonthlyTotal)
	}
	if out.Summary.YearlyTotal != 44.99*12 {
		t.Errorf("YearlyTotal = %f, want %f", out.Summary.YearlyTotal, 44.99*12)
	}
	if out.Summary.Currency != "USD" {
		t.Errorf("Currency = %s, want USD", out.Summary.Currency)
	}
	if out.Candidates[0].Merchant != "Netflix" {
		t.Errorf("first candidate = %s, want Netflix", out.Candidates[0].Merchant)
	}
}

func TestPrintCandidatesJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintCandidatesJSON(&buf, nil, GetCurrency("USD")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"candidates": []`) {
		t.Errorf("expected empty array, got %s", buf.String())
	}
}

func TestPrintCandidatesTable(t *testing.T) {
	var buf bytes.Buffer
	PrintCandidatesTable(&buf, testCandidates(), GetCurrency("USD"))

	out := buf.String()
	for _, want := range []string{"Found 2 recurring charge candidates", "Netflix", "Local Gym", "known_subscription", "2024-04-14", "Total"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}
