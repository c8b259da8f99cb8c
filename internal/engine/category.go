package engine

import "strings"

// IsSubscriptionCategory reports whether a category label implies a
// subscription. Exact allowlist entries win outright; otherwise any keyword
// appearing as a substring counts. Empty categories never match.
func (r *Reference) IsSubscriptionCategory(category string) bool {
	c := strings.ToLower(strings.TrimSpace(category))
	if c == "" {
		return false
	}
	for _, exact := range r.exactCategories {
		if c == exact {
			return true
		}
	}
	for _, keyword := range r.keywords {
		if strings.Contains(c, keyword) {
			return true
		}
	}
	return false
}

// isRentExcluded blocks obviously non-subscription housing costs from the
// pattern-based detection paths. Category-based and known-service detection
// still apply to these groups.
func (r *Reference) isRentExcluded(merchantKey string, group []Transaction) bool {
	for _, term := range r.rentKeyTerms {
		if strings.Contains(merchantKey, term) {
			return true
		}
	}
	for _, tx := range group {
		if tx.Category == "" {
			continue
		}
		for _, term := range r.rentCategories {
			if strings.Contains(tx.Category, term) {
				return true
			}
		}
	}
	return false
}
