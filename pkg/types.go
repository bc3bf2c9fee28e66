package pkg

import "time"

// TriageLevel is the bucketed care-setting recommendation.  Levels are
// totally ordered from home_care (least urgent) to emergency_now.
type TriageLevel string

const (
	LevelHomeCare     TriageLevel = "home_care"
	LevelPrimaryCare  TriageLevel = "see_primary_care"
	LevelUrgentCare   TriageLevel = "urgent_care_today"
	LevelEmergencyNow TriageLevel = "emergency_now"
)

// Likelihood grades a differential item.
type Likelihood string

const (
	LikelihoodLow    Likelihood = "low"
	LikelihoodMedium Likelihood = "medium"
	LikelihoodHigh   Likelihood = "high"
)

// DifferentialItem is one candidate condition in a differential.
type DifferentialItem struct {
	Condition  string     `json:"condition"`
	Likelihood Likelihood `json:"likelihood"`
	Rationale  string     `json:"rationale"`
}

// TriageResult is the advisory returned for a single classification request.
// Every list field is non-nil once the result has passed validation so that
// JSON consumers always see arrays, never null.
type TriageResult struct {
	Summary           string             `json:"summary"`
	Differential      []DifferentialItem `json:"differential"`
	TriageLevel       TriageLevel        `json:"triage_level"`
	NextSteps         []string           `json:"next_steps"`
	SelfCare          []string           `json:"self_care"`
	RedFlagsTriggered []string           `json:"red_flags_triggered"`
	WhatToWatch       []string           `json:"what_to_watch"`
	FollowUpQuestions []string           `json:"follow_up_questions"`
	Sources           []string           `json:"sources"`
}

// Profile carries the optional patient context used during classification.
// Age is zero when unknown.
type Profile struct {
	Age         int      `json:"age,omitempty"`
	Sex         string   `json:"sex,omitempty"`
	Pregnant    bool     `json:"pregnant,omitempty"`
	Medications []string `json:"medications,omitempty"`
	Allergies   []string `json:"allergies,omitempty"`
}

// Strategy records which classification path produced a result.
type Strategy string

const (
	StrategyRules         Strategy = "rules"
	StrategyBackend       Strategy = "backend"
	StrategyRulesFallback Strategy = "rules_fallback"
)

// Assessment wraps a TriageResult with how it was produced.
type Assessment struct {
	Result   TriageResult `json:"result"`
	Strategy Strategy     `json:"strategy"`
	Degraded bool         `json:"degraded"`
}

// User is a stored patient profile.  There are no credentials here; account
// access is handled outside this service.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Age       int       `json:"age,omitempty"`
	Sex       string    `json:"sex,omitempty"`
	Pregnant  bool      `json:"pregnant,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile projects the stored user onto the classification profile.
func (u *User) Profile() *Profile {
	return &Profile{Age: u.Age, Sex: u.Sex, Pregnant: u.Pregnant}
}

// Condition is one entry of a user's medical history.
type Condition struct {
	ID          int64      `json:"id"`
	UserID      string     `json:"user_id"`
	Name        string     `json:"condition"`
	DiagnosedOn *time.Time `json:"diagnosed_on,omitempty"`
	Severity    string     `json:"severity,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Advisory is a persisted assessment.  Advisories are append-only.
type Advisory struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Symptoms  string       `json:"symptoms"`
	Result    TriageResult `json:"result"`
	Strategy  Strategy     `json:"strategy"`
	Degraded  bool         `json:"degraded"`
	CreatedAt time.Time    `json:"created_at"`
}

// TriageRequest is the JSON body accepted by the triage endpoints.
type TriageRequest struct {
	Symptoms string   `json:"symptoms"`
	Profile  *Profile `json:"profile,omitempty"`
	History  []string `json:"history,omitempty"`
}
