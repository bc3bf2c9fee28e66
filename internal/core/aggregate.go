package core

import (
	"strings"

	"triage-advisor/pkg"
)

// MaxDifferential bounds the number of differential items in any result.
const MaxDifferential = 5

// Aggregate turns a raw candidate pool into a ranked differential.
// Duplicates are dropped keeping the first occurrence, the list is cut to
// MaxDifferential, and the first candidate is graded high and the rest
// medium.  Rationale is left empty for the caller to fill in.
func Aggregate(pool []string) ([]pkg.DifferentialItem, error) {
	seen := make(map[string]bool, len(pool))
	items := make([]pkg.DifferentialItem, 0, MaxDifferential)
	for _, c := range pool {
		c = strings.TrimSpace(c)
		key := strings.ToLower(c)
		if c == "" || seen[key] {
			continue
		}
		seen[key] = true
		likelihood := pkg.LikelihoodMedium
		if len(items) == 0 {
			likelihood = pkg.LikelihoodHigh
		}
		items = append(items, pkg.DifferentialItem{Condition: c, Likelihood: likelihood})
		if len(items) == MaxDifferential {
			break
		}
	}
	if len(items) == 0 {
		return nil, ErrEmptyDifferential
	}
	return items, nil
}
