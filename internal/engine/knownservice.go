package engine

import "strings"

const (
	strongMatchConfidence  = 0.95
	overlapMatchConfidence = 0.9
	wordOverlapRatio       = 0.7
	minSubstringLength     = 3
)

// MatchKnownService tries each candidate text against the service table.
// Match tiers run in order of strength across the whole table: exact alias
// equality, then substring containment in either direction, then word
// overlap. Within a tier the earliest table entry wins, so results are
// deterministic for a given reference set.
func (r *Reference) MatchKnownService(texts ...string) *KnownServiceMatch {
	for _, text := range texts {
		t := strings.ToLower(strings.TrimSpace(text))
		if t == "" || t == UnknownKey {
			continue
		}
		if m := r.matchText(t); m != nil {
			return m
		}
	}
	return nil
}

func (r *Reference) matchText(t string) *KnownServiceMatch {
	for _, svc := range r.services {
		for _, alias := range svc.Aliases {
			if t == alias {
				return newServiceMatch(svc, strongMatchConfidence)
			}
		}
	}
	for _, svc := range r.services {
		for _, alias := range svc.Aliases {
			if containsEitherWay(t, alias) {
				return newServiceMatch(svc, strongMatchConfidence)
			}
		}
	}
	for _, svc := range r.services {
		for _, alias := range svc.Aliases {
			if wordsOverlap(t, alias) {
				return newServiceMatch(svc, overlapMatchConfidence)
			}
		}
	}
	return nil
}

func newServiceMatch(svc KnownService, confidence float64) *KnownServiceMatch {
	return &KnownServiceMatch{
		Name:             svc.Name,
		Category:         svc.Category,
		TypicalFrequency: svc.TypicalFrequency,
		Confidence:       confidence,
	}
}

// containsEitherWay checks substring containment in both directions, gated
// on a minimum length so two-character fragments cannot produce spurious
// hits.
func containsEitherWay(a, b string) bool {
	if len(a) < minSubstringLength || len(b) < minSubstringLength {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// wordsOverlap reports whether at least 70% of the shorter word set has a
// containment match in the other text's words.
func wordsOverlap(a, b string) bool {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return false
	}

	shorter, longer := wordsA, wordsB
	if len(wordsB) < len(wordsA) {
		shorter, longer = wordsB, wordsA
	}

	matched := 0
	for _, sw := range shorter {
		for _, lw := range longer {
			if len(sw) >= minSubstringLength && len(lw) >= minSubstringLength &&
				(strings.Contains(sw, lw) || strings.Contains(lw, sw)) {
				matched++
				break
			}
		}
	}
	return float64(matched)/float64(len(shorter)) >= wordOverlapRatio
}
