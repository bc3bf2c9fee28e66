package core

import "triage-advisor/pkg"

// Guidance is the level-specific advice attached to every rule-based result.
type Guidance struct {
	NextSteps   []string
	SelfCare    []string
	WhatToWatch []string
	FollowUps   []string
}

var guidanceByLevel = map[pkg.TriageLevel]Guidance{
	pkg.LevelEmergencyNow: {
		NextSteps: []string{
			"Call 911 or your local emergency number now, or go to the nearest emergency room",
			"Do not drive yourself if you feel faint or short of breath",
			"Do not delay treatment",
		},
		WhatToWatch: []string{
			"Any worsening while you wait for help",
		},
		FollowUps: []string{
			"When exactly did the symptoms start?",
			"Are you alone right now?",
		},
	},
	pkg.LevelUrgentCare: {
		NextSteps: []string{
			"Get seen at an urgent care clinic or by your doctor today",
			"Go to the emergency room if symptoms worsen before you are seen",
		},
		SelfCare: []string{
			"Rest and stay hydrated until you are seen",
		},
		WhatToWatch: []string{
			"Symptoms that get worse over the next few hours",
		},
		FollowUps: []string{
			"How long have you had these symptoms?",
			"Do you have any long-term medical conditions?",
			"What medications are you taking?",
		},
	},
	pkg.LevelPrimaryCare: {
		NextSteps: []string{
			"Schedule an appointment with your healthcare provider",
			"Monitor symptoms closely",
			"Consider urgent care if symptoms worsen",
		},
		SelfCare: []string{
			"Rest and stay hydrated",
		},
		WhatToWatch: []string{
			"New symptoms appearing",
			"Symptoms not improving after a few days",
		},
		FollowUps: []string{
			"How long have you had these symptoms?",
			"Have you taken anything for them so far?",
		},
	},
	pkg.LevelHomeCare: {
		NextSteps: []string{
			"Manage at home and monitor symptoms for changes",
			"Contact a healthcare provider if symptoms persist or worsen",
		},
		SelfCare: []string{
			"Rest and stay hydrated",
			"Use over-the-counter remedies as directed on the label",
		},
		WhatToWatch: []string{
			"Symptoms lasting longer than a week",
		},
		FollowUps: []string{
			"How long have you had these symptoms?",
		},
	},
}

// GuidanceFor returns the advice for level.  Unknown levels get the
// primary-care advice.
func GuidanceFor(level pkg.TriageLevel) Guidance {
	if g, ok := guidanceByLevel[level]; ok {
		return g
	}
	return guidanceByLevel[pkg.LevelPrimaryCare]
}
