package pkg

import "strings"

var levelRank = map[TriageLevel]int{
	LevelHomeCare:     0,
	LevelPrimaryCare:  1,
	LevelUrgentCare:   2,
	LevelEmergencyNow: 3,
}

// Valid reports whether l is one of the four defined levels.
func (l TriageLevel) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// Rank returns the position of l in the urgency order, or -1 for an
// undefined level.
func (l TriageLevel) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return -1
}

// MaxLevel returns the more urgent of a and b.
func MaxLevel(a, b TriageLevel) TriageLevel {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// levelAliases maps the vocabulary used by older clients and by loosely
// behaved backends onto the canonical levels.
var levelAliases = map[string]TriageLevel{
	"home_care":         LevelHomeCare,
	"home":              LevelHomeCare,
	"self_care":         LevelHomeCare,
	"see_primary_care":  LevelPrimaryCare,
	"primary_care":      LevelPrimaryCare,
	"doctor_visit":      LevelPrimaryCare,
	"urgent_care_today": LevelUrgentCare,
	"urgent_care":       LevelUrgentCare,
	"urgent":            LevelUrgentCare,
	"emergency_now":     LevelEmergencyNow,
	"emergency":         LevelEmergencyNow,
}

// ParseTriageLevel normalises s (case, spaces, hyphens) and resolves it to a
// canonical level.
func ParseTriageLevel(s string) (TriageLevel, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	l, ok := levelAliases[key]
	return l, ok
}

var likelihoodRank = map[Likelihood]int{
	LikelihoodLow:    0,
	LikelihoodMedium: 1,
	LikelihoodHigh:   2,
}

// Rank returns the ordering weight of a likelihood, -1 if undefined.
func (l Likelihood) Rank() int {
	if r, ok := likelihoodRank[l]; ok {
		return r
	}
	return -1
}

// ParseLikelihood resolves a case-insensitive likelihood name.
func ParseLikelihood(s string) (Likelihood, bool) {
	l := Likelihood(strings.ToLower(strings.TrimSpace(s)))
	_, ok := likelihoodRank[l]
	return l, ok
}
