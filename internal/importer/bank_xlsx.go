package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/subwatch/subwatch/internal/engine"
)

// Column header names recognized when sniffing a bank export sheet. Matched
// case-insensitively; the first hit per concern wins.
var (
	xlsxDateHeaders   = []string{"date", "transaction date", "booking date", "posted date"}
	xlsxTextHeaders   = []string{"description", "text", "merchant", "payee", "details"}
	xlsxAmountHeaders = []string{"amount", "value", "debit"}
)

// ParseBankXLSX reads transactions from a generic bank Excel export. The
// first sheet is scanned for a header row containing a date, a text and an
// amount column; everything below it becomes one raw record per row.
func ParseBankXLSX(path string) ([]engine.RawRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in file")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}

	dateCol, textCol, amountCol := -1, -1, -1
	dataStartRow := -1
	for i, row := range rows {
		for j, cell := range row {
			cell = strings.ToLower(strings.TrimSpace(cell))
			switch {
			case dateCol < 0 && containsHeader(xlsxDateHeaders, cell):
				dateCol = j
			case textCol < 0 && containsHeader(xlsxTextHeaders, cell):
				textCol = j
			case amountCol < 0 && containsHeader(xlsxAmountHeaders, cell):
				amountCol = j
			}
		}
		if dateCol >= 0 && textCol >= 0 && amountCol >= 0 {
			dataStartRow = i + 1
			break
		}
		// Header columns must all come from the same row.
		dateCol, textCol, amountCol = -1, -1, -1
	}

	if dataStartRow < 0 {
		return nil, fmt.Errorf("could not find header row with date, text and amount columns")
	}

	var records []engine.RawRecord
	for i := dataStartRow; i < len(rows); i++ {
		row := rows[i]
		maxCol := max(dateCol, textCol, amountCol)
		if len(row) <= maxCol {
			continue
		}

		dateStr := strings.TrimSpace(row[dateCol])
		text := strings.TrimSpace(row[textCol])
		amountStr := strings.TrimSpace(row[amountCol])
		if dateStr == "" || text == "" || amountStr == "" {
			continue
		}

		record := engine.RawRecord{
			"date":        dateStr,
			"description": text,
		}
		// Decimal commas are common in European exports.
		amountStr = strings.ReplaceAll(strings.ReplaceAll(amountStr, " ", ""), ",", ".")
		if amount, err := strconv.ParseFloat(amountStr, 64); err == nil {
			record["amount"] = amount
		} else {
			record["amount"] = row[amountCol]
		}
		records = append(records, record)
	}

	return records, nil
}

func containsHeader(headers []string, cell string) bool {
	for _, h := range headers {
		if cell == h {
			return true
		}
	}
	return false
}
