package engine

import (
	"regexp"
	"strings"
)

// UnknownKey is the sentinel grouping key for text that normalizes to
// nothing usable.
const UnknownKey = "unknown"

// keyRule is one pure text transform in the merchant-key pipeline. Rules run
// in declaration order; each is independently testable.
type keyRule struct {
	name  string
	apply func(string) string
}

var (
	reInvoiceMarker = regexp.MustCompile(`(?:#|\b(?:inv|invoice|txn|ref))\s*\d+`)
	reLongDigitRun  = regexp.MustCompile(`\b\d{6,}\b`)
	reDomainSuffix  = regexp.MustCompile(`\.(?:com|net|org|io|co|se|de|uk|us|tv|app|ai)\b`)
	reCompanySuffix = regexp.MustCompile(`\b(?:inc|llc|ltd|corp|co|gmbh|pty|limited|usa|ab)\b\.?`)
	rePunctuation   = regexp.MustCompile(`[^a-z0-9 ]`)
	reWhitespace    = regexp.MustCompile(`\s+`)
)

// keyPipeline normalizes free-text merchant names into stable grouping keys.
// Order matters: reference stripping must run before punctuation removal or
// the "#1234" style markers lose their anchor.
var keyPipeline = []keyRule{
	{"lowercase", func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }},
	{"strip-references", func(s string) string {
		s = reInvoiceMarker.ReplaceAllString(s, " ")
		return reLongDigitRun.ReplaceAllString(s, " ")
	}},
	{"strip-domains", func(s string) string { return reDomainSuffix.ReplaceAllString(s, "") }},
	{"strip-company-suffixes", func(s string) string { return reCompanySuffix.ReplaceAllString(s, " ") }},
	{"normalize-symbols", func(s string) string {
		s = strings.ReplaceAll(s, "+", " plus ")
		s = strings.ReplaceAll(s, "&", " and ")
		return strings.ReplaceAll(s, "-", " ")
	}},
	{"strip-punctuation", func(s string) string { return rePunctuation.ReplaceAllString(s, "") }},
	{"collapse-whitespace", func(s string) string {
		return strings.TrimSpace(reWhitespace.ReplaceAllString(s, " "))
	}},
}

// ExtractMerchantKey derives a lowercase, whitespace-collapsed grouping key
// from free text. Inputs that are empty or shorter than two characters after
// trimming, or that normalize down to nothing, yield UnknownKey.
func ExtractMerchantKey(text string) string {
	if len(strings.TrimSpace(text)) < 2 {
		return UnknownKey
	}
	out := text
	for _, rule := range keyPipeline {
		out = rule.apply(out)
	}
	if len(out) < 2 {
		return UnknownKey
	}
	return out
}

// RecoverMerchantKey is the named fallback step for rows whose key resolved
// to UnknownKey: it re-runs the pipeline on the merchant display field.
// Returns the recovered key, or UnknownKey if the merchant field cannot
// help either.
func RecoverMerchantKey(merchant string) string {
	if merchant == "" || merchant == unknownMerchant {
		return UnknownKey
	}
	return ExtractMerchantKey(merchant)
}
