package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const unknownMerchant = "Unknown"

// Field aliases accepted on raw records. First present wins.
var (
	idAliases          = []string{"id", "transaction_id", "transactionId", "txn_id", "reference"}
	dateAliases        = []string{"date", "transaction_date", "transactionDate", "posted_at", "postedAt", "booking_date", "timestamp"}
	amountAliases      = []string{"amount", "value", "transaction_amount", "transactionAmount", "total"}
	typeAliases        = []string{"type", "direction", "transaction_type", "transactionType", "flow"}
	merchantAliases    = []string{"merchant", "merchant_name", "merchantName", "payee", "vendor", "name"}
	descriptionAliases = []string{"description", "text", "memo", "details", "narrative"}
	categoryAliases    = []string{"category", "category_name", "categoryName", "category_id", "categoryId"}
)

// dateLayouts are tried in order. Unparseable dates resolve to the zero
// time and the row is excluded before grouping.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

var (
	incomeTerms  = []string{"income", "credit", "deposit"}
	expenseTerms = []string{"expense", "debit", "withdrawal", "payment"}
)

// Normalize converts one raw record into the canonical transaction shape.
// It never fails: missing or malformed fields degrade to defaults and the
// filtering stage decides whether the row is usable. fallbackID is used
// when the record carries no id of its own.
func Normalize(raw RawRecord, fallbackID string) Transaction {
	tx := Transaction{
		ID:          firstString(raw, idAliases),
		Merchant:    strings.TrimSpace(firstString(raw, merchantAliases)),
		Description: strings.TrimSpace(firstString(raw, descriptionAliases)),
	}
	if tx.ID == "" {
		tx.ID = fallbackID
	}

	tx.Date = parseDate(firstString(raw, dateAliases))

	amount := coerceAmount(firstValue(raw, amountAliases))
	tx.Direction = resolveDirection(firstString(raw, typeAliases), amount)
	if amount < 0 {
		amount = -amount
	}
	tx.Amount = amount

	if tx.Merchant == "" {
		tx.Merchant = tx.Description
	}
	if tx.Merchant == "" {
		tx.Merchant = unknownMerchant
	}

	keySource := tx.Merchant
	if keySource == unknownMerchant && tx.Description != "" {
		keySource = tx.Description
	}
	tx.MerchantKey = ExtractMerchantKey(keySource)

	tx.Category = strings.ToLower(strings.TrimSpace(firstString(raw, categoryAliases)))

	return tx
}

func firstValue(raw RawRecord, aliases []string) any {
	for _, key := range aliases {
		if v, ok := raw[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(raw RawRecord, aliases []string) string {
	v := firstValue(raw, aliases)
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case json.Number:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// coerceAmount accepts numbers and numeric-looking strings. String input is
// stripped down to digits, dot and minus before parsing; anything else
// resolves to 0 rather than an error.
func coerceAmount(v any) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		var b strings.Builder
		for _, r := range n {
			if (r >= '0' && r <= '9') || r == '.' || r == '-' {
				b.WriteRune(r)
			}
		}
		f, err := strconv.ParseFloat(b.String(), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// resolveDirection prefers an explicit type field; absent one, the sign of
// the amount decides. Unlabeled positive amounts stay expenses so that
// positively-signed bank exports are not silently dropped.
func resolveDirection(typeField string, amount float64) Direction {
	t := strings.ToLower(strings.TrimSpace(typeField))
	if t != "" {
		for _, term := range incomeTerms {
			if strings.Contains(t, term) {
				return DirectionIncome
			}
		}
		for _, term := range expenseTerms {
			if strings.Contains(t, term) {
				return DirectionExpense
			}
		}
	}
	return DirectionExpense
}
