package core

import (
	"errors"
	"sort"
	"strings"

	"triage-advisor/pkg"
)

// UnknownCondition is the placeholder differential entry of a degraded
// result.
const UnknownCondition = "condition unknown — consult a healthcare provider"

const lexiconSource = "Built-in symptom lexicon"

// Request is one classification request.  History holds prior condition
// names or earlier complaints supplied by the caller.
type Request struct {
	SymptomText string
	Profile     *pkg.Profile
	History     []string
}

// RuleClassifier matches symptom text against a Lexicon.  It is a pure
// function of its inputs and the lexicon.
type RuleClassifier struct {
	lexicon *Lexicon
}

// NewRuleClassifier constructs a rule classifier over lexicon.
func NewRuleClassifier(lexicon *Lexicon) *RuleClassifier {
	return &RuleClassifier{lexicon: lexicon}
}

// Classify produces a rule-based assessment.  Unrecognised text yields the
// degraded result at see_primary_care.
func (c *RuleClassifier) Classify(req Request) (pkg.Assessment, error) {
	return c.classify(req, pkg.LevelHomeCare)
}

// classify is Classify with a lower bound on the triage level.  A raised
// level is reported in the summary like any other escalation.
func (c *RuleClassifier) classify(req Request, floor pkg.TriageLevel) (pkg.Assessment, error) {
	if strings.TrimSpace(req.SymptomText) == "" {
		return pkg.Assessment{}, ErrInvalidInput
	}
	matches := c.lexicon.Lookup(req.SymptomText)

	// Most severe symptoms lead the candidate pool; ties keep table order.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Severity.Level().Rank() > matches[j].Severity.Level().Rank()
	})

	var pool []string
	origin := make(map[string]string)
	for _, m := range matches {
		for _, cond := range m.Conditions {
			pool = append(pool, cond)
			if _, ok := origin[strings.ToLower(cond)]; !ok {
				origin[strings.ToLower(cond)] = m.Keyword
			}
		}
	}

	differential, err := Aggregate(pool)
	if errors.Is(err, ErrEmptyDifferential) {
		return pkg.Assessment{Result: degradedResult(req), Strategy: pkg.StrategyRules, Degraded: true}, nil
	}
	for i := range differential {
		differential[i].Rationale = "Commonly associated with " + origin[strings.ToLower(differential[i].Condition)]
	}

	level, reasons := c.level(matches, req)
	if floor.Rank() > level.Rank() {
		level = floor
		reasons = append(reasons, "an incomplete detailed assessment")
	}
	g := GuidanceFor(level)
	res := pkg.TriageResult{
		Summary:           summarize(matches, level, reasons),
		Differential:      differential,
		TriageLevel:       level,
		NextSteps:         copyList(g.NextSteps),
		SelfCare:          copyList(g.SelfCare),
		RedFlagsTriggered: []string{},
		WhatToWatch:       []string{},
		FollowUpQuestions: followUps(g, req.Profile),
		Sources:           []string{lexiconSource},
	}
	for _, m := range matches {
		if m.RedFlag != "" {
			res.RedFlagsTriggered = appendUnique(res.RedFlagsTriggered, m.RedFlag)
		}
		res.WhatToWatch = appendUnique(res.WhatToWatch, m.Watch...)
	}
	res.WhatToWatch = appendUnique(res.WhatToWatch, g.WhatToWatch...)
	if level == pkg.LevelEmergencyNow {
		res.SelfCare = []string{}
	}
	return pkg.Assessment{Result: res, Strategy: pkg.StrategyRules}, nil
}

// level takes the maximum base level over matches and applies the
// primary-care escalation rules.  It returns the reasons for escalation.
func (c *RuleClassifier) level(matches []LexiconEntry, req Request) (pkg.TriageLevel, []string) {
	level := pkg.LevelHomeCare
	moderate := 0
	candidates := make(map[string]bool)
	for _, m := range matches {
		level = pkg.MaxLevel(level, m.Severity.Level())
		if m.Severity == SeverityModerate {
			moderate++
		}
		for _, cond := range m.Conditions {
			candidates[strings.ToLower(cond)] = true
		}
	}
	if level != pkg.LevelPrimaryCare {
		return level, nil
	}

	var reasons []string
	if p := req.Profile; p != nil {
		switch {
		case p.Age >= 65:
			reasons = append(reasons, "age 65 or over")
		case p.Age > 0 && p.Age < 2:
			reasons = append(reasons, "age under 2")
		}
		if p.Pregnant {
			reasons = append(reasons, "pregnancy")
		}
	}
	for _, h := range req.History {
		if candidates[normalize(h)] {
			reasons = append(reasons, "history of "+strings.TrimSpace(h))
			break
		}
	}
	if moderate >= 2 {
		reasons = append(reasons, "several moderate symptoms together")
	}
	if len(reasons) > 0 {
		level = pkg.LevelUrgentCare
	}
	return level, reasons
}

func degradedResult(req Request) pkg.TriageResult {
	g := GuidanceFor(pkg.LevelPrimaryCare)
	return pkg.TriageResult{
		Summary:           summarize(nil, pkg.LevelPrimaryCare, nil),
		Differential:      []pkg.DifferentialItem{{Condition: UnknownCondition, Likelihood: pkg.LikelihoodMedium}},
		TriageLevel:       pkg.LevelPrimaryCare,
		NextSteps:         copyList(g.NextSteps),
		SelfCare:          copyList(g.SelfCare),
		RedFlagsTriggered: []string{},
		WhatToWatch:       copyList(g.WhatToWatch),
		FollowUpQuestions: append(followUps(g, req.Profile), "Can you describe the symptoms in more detail?"),
		Sources:           []string{lexiconSource},
	}
}

func followUps(g Guidance, p *pkg.Profile) []string {
	out := copyList(g.FollowUps)
	if p == nil || p.Age == 0 {
		out = append(out, "How old is the person with these symptoms?")
	}
	return out
}

func copyList(in []string) []string {
	return append(make([]string, 0, len(in)), in...)
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		dup := false
		for _, existing := range list {
			if strings.EqualFold(existing, it) {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, it)
		}
	}
	return list
}
