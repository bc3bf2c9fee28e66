package core

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"triage-advisor/pkg"
)

// Severity is the intrinsic seriousness of a symptom.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
)

// severityLevels is the one severity to triage table.  Escalation to
// urgent_care_today happens in the rule classifier, never here.
var severityLevels = map[Severity]pkg.TriageLevel{
	SeverityLow:      pkg.LevelHomeCare,
	SeverityModerate: pkg.LevelPrimaryCare,
	SeverityHigh:     pkg.LevelEmergencyNow,
}

// Level maps the severity onto its base triage level.
func (s Severity) Level() pkg.TriageLevel {
	return severityLevels[s]
}

// LexiconEntry ties a symptom phrase to the conditions it suggests.
type LexiconEntry struct {
	Keyword    string   `json:"keyword"`
	Conditions []string `json:"conditions"`
	Severity   Severity `json:"severity"`
	// RedFlag is shown to the user whenever the keyword matches.
	RedFlag string `json:"red_flag,omitempty"`
	// Watch lists changes worth monitoring for this symptom.
	Watch []string `json:"watch,omitempty"`
}

// Lexicon is an immutable keyword table.  It is built once at start-up and
// is safe for concurrent use.
type Lexicon struct {
	entries []LexiconEntry
}

// NewLexicon validates entries and returns a Lexicon holding private copies
// of them.  Keywords are normalised to lower case with single spaces.
func NewLexicon(entries []LexiconEntry) (*Lexicon, error) {
	seen := make(map[string]bool, len(entries))
	out := make([]LexiconEntry, 0, len(entries))
	for i, e := range entries {
		kw := normalize(e.Keyword)
		if kw == "" {
			return nil, fmt.Errorf("lexicon entry %d: empty keyword", i)
		}
		if seen[kw] {
			return nil, fmt.Errorf("lexicon entry %d: duplicate keyword %q", i, kw)
		}
		if _, ok := severityLevels[e.Severity]; !ok {
			return nil, fmt.Errorf("lexicon entry %q: unknown severity %q", kw, e.Severity)
		}
		conds := make([]string, 0, len(e.Conditions))
		for _, c := range e.Conditions {
			if c = strings.TrimSpace(c); c != "" {
				conds = append(conds, c)
			}
		}
		if len(conds) == 0 {
			return nil, fmt.Errorf("lexicon entry %q: no candidate conditions", kw)
		}
		seen[kw] = true
		out = append(out, LexiconEntry{
			Keyword:    kw,
			Conditions: conds,
			Severity:   e.Severity,
			RedFlag:    strings.TrimSpace(e.RedFlag),
			Watch:      append([]string(nil), e.Watch...),
		})
	}
	return &Lexicon{entries: out}, nil
}

// LoadLexicon reads a JSON array of entries from path.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	var entries []LexiconEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return NewLexicon(entries)
}

// Lookup returns every entry whose keyword occurs in text, in table order.
// A keyword must start a word ("rash" matches "rashes" but not "crash").
// An empty result means no symptom was recognised.
func (l *Lexicon) Lookup(text string) []LexiconEntry {
	norm := normalize(text)
	if norm == "" {
		return nil
	}
	var matches []LexiconEntry
	for _, e := range l.entries {
		if containsWord(norm, e.Keyword) {
			matches = append(matches, e)
		}
	}
	return matches
}

// containsWord reports whether kw occurs in s at the start of a word.
func containsWord(s, kw string) bool {
	for offset := 0; offset <= len(s); {
		i := strings.Index(s[offset:], kw)
		if i < 0 {
			return false
		}
		i += offset
		prev, _ := utf8.DecodeLastRuneInString(s[:i])
		if i == 0 || !(unicode.IsLetter(prev) || unicode.IsDigit(prev)) {
			return true
		}
		offset = i + 1
	}
	return false
}

// Len returns the number of entries.
func (l *Lexicon) Len() int { return len(l.entries) }

// normalize lower-cases s and collapses runs of whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// DefaultLexicon returns the built-in symptom table.
func DefaultLexicon() *Lexicon {
	l, err := NewLexicon(defaultEntries)
	if err != nil {
		panic("core: invalid built-in lexicon: " + err.Error())
	}
	return l
}

var defaultEntries = []LexiconEntry{
	{
		Keyword:    "chest pain",
		Conditions: []string{"Heart Attack", "Anxiety", "Muscle Strain", "Acid Reflux"},
		Severity:   SeverityHigh,
		RedFlag:    "Chest pain can be a sign of a heart attack",
		Watch:      []string{"Pain spreading to the arm, jaw or back", "Sweating or light-headedness"},
	},
	{
		Keyword:    "shortness of breath",
		Conditions: []string{"Asthma", "Pneumonia", "Heart Disease", "Anxiety"},
		Severity:   SeverityHigh,
		RedFlag:    "Shortness of breath may mean the body is not getting enough oxygen",
		Watch:      []string{"Blue lips or fingertips", "Breathing that gets harder at rest"},
	},
	{
		Keyword:    "difficulty breathing",
		Conditions: []string{"Asthma", "Allergic Reaction", "Pneumonia"},
		Severity:   SeverityHigh,
		RedFlag:    "Difficulty breathing needs immediate assessment",
	},
	{
		Keyword:    "unconscious",
		Conditions: []string{"Head Injury", "Stroke", "Low Blood Sugar"},
		Severity:   SeverityHigh,
		RedFlag:    "Loss of consciousness is a medical emergency",
	},
	{
		Keyword:    "severe bleeding",
		Conditions: []string{"Traumatic Injury", "Bleeding Disorder"},
		Severity:   SeverityHigh,
		RedFlag:    "Bleeding that does not stop with pressure is an emergency",
	},
	{
		Keyword:    "fever",
		Conditions: []string{"Common Cold", "Flu", "Bacterial Infection", "COVID-19"},
		Severity:   SeverityModerate,
		Watch:      []string{"Temperature above 39.4°C (103°F)", "Fever lasting more than three days"},
	},
	{
		Keyword:    "cough",
		Conditions: []string{"Common Cold", "Bronchitis", "Pneumonia", "Allergies"},
		Severity:   SeverityModerate,
		Watch:      []string{"Coughing up blood", "Cough lasting more than three weeks"},
	},
	{
		Keyword:    "fatigue",
		Conditions: []string{"Sleep Deprivation", "Anemia", "Depression", "Thyroid Issues"},
		Severity:   SeverityModerate,
		Watch:      []string{"Unexplained weight loss"},
	},
	{
		Keyword:    "vomiting",
		Conditions: []string{"Stomach Bug", "Food Poisoning", "Migraine"},
		Severity:   SeverityModerate,
		Watch:      []string{"Signs of dehydration such as little or dark urine", "Blood in vomit"},
	},
	{
		Keyword:    "headache",
		Conditions: []string{"Tension Headache", "Migraine", "Sinus Infection", "Dehydration"},
		Severity:   SeverityLow,
		Watch:      []string{"Sudden, severe headache unlike any before", "Stiff neck or confusion"},
	},
	{
		Keyword:    "nausea",
		Conditions: []string{"Food Poisoning", "Stomach Bug", "Motion Sickness", "Pregnancy"},
		Severity:   SeverityLow,
		Watch:      []string{"Unable to keep fluids down for 24 hours"},
	},
	{
		Keyword:    "sore throat",
		Conditions: []string{"Common Cold", "Strep Throat", "Tonsillitis"},
		Severity:   SeverityLow,
		Watch:      []string{"Trouble swallowing or drooling"},
	},
	{
		Keyword:    "rash",
		Conditions: []string{"Contact Dermatitis", "Eczema", "Viral Rash"},
		Severity:   SeverityLow,
		Watch:      []string{"Rash that does not fade when pressed", "Swelling of the face or lips"},
	},
}
