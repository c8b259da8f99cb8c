// Package output renders detection results for the terminal and for JSON
// consumers.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/subwatch/subwatch/internal/engine"
)

// JSONOutput is the root JSON output object
type JSONOutput struct {
	Candidates []engine.Candidate `json:"candidates"`
	Summary    JSONSummary        `json:"summary"`
}

// JSONSummary contains aggregate statistics
type JSONSummary struct {
	Count        int     `json:"count"`
	MonthlyTotal float64 `json:"monthly_total"`
	YearlyTotal  float64 `json:"yearly_total"`
	Currency     string  `json:"currency"`
}

// PrintCandidatesJSON outputs candidates in JSON format
func PrintCandidatesJSON(w io.Writer, candidates []engine.Candidate, currency Currency) error {
	var monthlyTotal float64
	for _, c := range candidates {
		monthlyTotal += c.EstimatedMonthlyAmount
	}
	if candidates == nil {
		candidates = []engine.Candidate{}
	}

	output := JSONOutput{
		Candidates: candidates,
		Summary: JSONSummary{
			Count:        len(candidates),
			MonthlyTotal: monthlyTotal,
			YearlyTotal:  monthlyTotal * 12,
			Currency:     currency.Code,
		},
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// PrintCandidatesTable outputs candidates as a formatted table, highest
// confidence first (the engine already sorts them that way).
func PrintCandidatesTable(w io.Writer, candidates []engine.Candidate, currency Currency) {
	var monthlyTotal float64
	for _, c := range candidates {
		monthlyTotal += c.EstimatedMonthlyAmount
	}

	fmt.Fprintf(w, "Found %d recurring charge candidates\n\n", len(candidates))

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Merchant", "Confidence", "Frequency", "Method", "Monthly", "Next Expected"})

	for _, c := range candidates {
		confidence := fmt.Sprintf("%.0f%%", c.ConfidenceScore*100)
		switch {
		case c.ConfidenceScore >= 0.8:
			confidence = text.FgGreen.Sprint(confidence)
		case c.ConfidenceScore >= 0.5:
			confidence = text.FgYellow.Sprint(confidence)
		default:
			confidence = text.FgRed.Sprint(confidence)
		}

		nextStr := "-"
		if !c.NextExpectedDate.IsZero() {
			nextStr = c.NextExpectedDate.Format("2006-01-02")
		}

		t.AppendRow(table.Row{
			c.Merchant,
			confidence,
			string(c.Frequency),
			string(c.DetectionMethod),
			currency.Format(c.EstimatedMonthlyAmount),
			nextStr,
		})
	}

	t.AppendSeparator()
	t.AppendFooter(table.Row{
		"", "", "", text.Bold.Sprint("Total"),
		text.Bold.Sprint(currency.Format(monthlyTotal)),
		text.Bold.Sprint(currency.Format(monthlyTotal*12) + "/yr"),
	})

	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	t.Render()
}
