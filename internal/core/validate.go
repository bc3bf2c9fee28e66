package core

import (
	"encoding/json"
	"sort"
	"strings"

	"triage-advisor/pkg"
)

// UnspecifiedCondition names the item synthesised when a differential is
// empty after coercion.
const UnspecifiedCondition = "unspecified"

// Validate coerces raw into a well-formed TriageResult.  It never fails.
//
// raw may be JSON ([]byte, json.RawMessage or string, optionally wrapped in
// a markdown code fence), an already decoded map, or a TriageResult.
// Missing or wrongly typed fields take their defaults: "" for the summary,
// empty lists, and home_care for the triage level.  Unparseable input is
// treated as an empty object.
func Validate(raw any) pkg.TriageResult {
	obj := toObject(raw)
	res := pkg.TriageResult{
		Summary:           strings.TrimSpace(stringField(obj, "summary")),
		Differential:      coerceDifferential(field(obj, "differential")),
		TriageLevel:       pkg.LevelHomeCare,
		NextSteps:         stringList(field(obj, "next_steps", "nextSteps")),
		SelfCare:          stringList(field(obj, "self_care", "selfCare")),
		RedFlagsTriggered: stringList(field(obj, "red_flags_triggered", "redFlagsTriggered", "red_flags")),
		WhatToWatch:       stringList(field(obj, "what_to_watch", "whatToWatch")),
		FollowUpQuestions: stringList(field(obj, "follow_up_questions", "followUpQuestions")),
		Sources:           stringList(field(obj, "sources")),
	}
	if s, ok := field(obj, "triage_level", "triageLevel").(string); ok {
		if level, ok := pkg.ParseTriageLevel(s); ok {
			res.TriageLevel = level
		}
	}
	return res
}

func toObject(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		return v
	case []byte:
		return decodeObject(v)
	case json.RawMessage:
		return decodeObject(v)
	case string:
		return decodeObject([]byte(v))
	case pkg.TriageResult, *pkg.TriageResult:
		data, err := json.Marshal(v)
		if err != nil {
			return map[string]any{}
		}
		return decodeObject(data)
	default:
		return map[string]any{}
	}
}

func decodeObject(data []byte) map[string]any {
	var obj map[string]any
	// Decode reads the first value only, so trailing prose or a closing
	// fence is ignored.
	if err := json.NewDecoder(strings.NewReader(cleanJSON(string(data)))).Decode(&obj); err != nil || obj == nil {
		return map[string]any{}
	}
	return obj
}

// cleanJSON drops a markdown code fence or any prose before the first JSON
// object.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start >= 0 {
		s = s[start:]
	}
	return s
}

// field returns the first present value among keys.
func field(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	return nil
}

func stringField(obj map[string]any, keys ...string) string {
	s, _ := field(obj, keys...).(string)
	return s
}

// stringList keeps the non-blank string elements of a JSON array.
func stringList(v any) []string {
	arr, ok := v.([]any)
	out := make([]string, 0, len(arr))
	if !ok {
		return out
	}
	for _, e := range arr {
		if s, ok := e.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func coerceDifferential(v any) []pkg.DifferentialItem {
	arr, _ := v.([]any)
	seen := make(map[string]bool, len(arr))
	items := make([]pkg.DifferentialItem, 0, len(arr))
	for _, e := range arr {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		cond := strings.TrimSpace(stringField(obj, "condition"))
		key := strings.ToLower(cond)
		if cond == "" || seen[key] {
			continue
		}
		seen[key] = true
		likelihood, ok := pkg.ParseLikelihood(stringField(obj, "likelihood"))
		if !ok {
			likelihood = pkg.LikelihoodMedium
		}
		items = append(items, pkg.DifferentialItem{
			Condition:  cond,
			Likelihood: likelihood,
			Rationale:  strings.TrimSpace(stringField(obj, "rationale")),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Likelihood.Rank() > items[j].Likelihood.Rank()
	})
	if len(items) > MaxDifferential {
		items = items[:MaxDifferential]
	}
	if len(items) == 0 {
		items = append(items, pkg.DifferentialItem{
			Condition:  UnspecifiedCondition,
			Likelihood: pkg.LikelihoodMedium,
		})
	}
	return items
}
