package core

import (
	"fmt"
	"strings"

	"triage-advisor/pkg"
)

var levelPhrases = map[pkg.TriageLevel]string{
	pkg.LevelHomeCare:     "care at home",
	pkg.LevelPrimaryCare:  "a visit to your primary care provider",
	pkg.LevelUrgentCare:   "urgent care today",
	pkg.LevelEmergencyNow: "emergency care now",
}

// summarize writes the one-paragraph summary of a rule-based result.  The
// matched symptoms are listed in the order they were ranked.
func summarize(matches []LexiconEntry, level pkg.TriageLevel, reasons []string) string {
	var b strings.Builder
	if len(matches) == 0 {
		b.WriteString("None of the described symptoms could be recognised, so they cannot be ruled out as minor. ")
	} else {
		keywords := make([]string, 0, len(matches))
		for _, m := range matches {
			keywords = append(keywords, m.Keyword)
		}
		fmt.Fprintf(&b, "Recognised symptoms: %s. ", strings.Join(keywords, ", "))
	}
	fmt.Fprintf(&b, "Recommended: %s", levelPhrases[level])
	if len(reasons) > 0 {
		fmt.Fprintf(&b, " (raised because of %s)", strings.Join(reasons, ", "))
	}
	b.WriteString(". This is not a diagnosis.")
	return b.String()
}
