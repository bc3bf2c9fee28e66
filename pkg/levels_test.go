package pkg

import "testing"

func TestMaxLevel(t *testing.T) {
	tests := []struct {
		a, b, want TriageLevel
	}{
		{LevelHomeCare, LevelPrimaryCare, LevelPrimaryCare},
		{LevelEmergencyNow, LevelUrgentCare, LevelEmergencyNow},
		{LevelUrgentCare, LevelUrgentCare, LevelUrgentCare},
		{LevelPrimaryCare, TriageLevel("bogus"), LevelPrimaryCare},
	}
	for _, tt := range tests {
		if got := MaxLevel(tt.a, tt.b); got != tt.want {
			t.Errorf("MaxLevel(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestParseTriageLevel(t *testing.T) {
	tests := []struct {
		in   string
		want TriageLevel
		ok   bool
	}{
		{"emergency_now", LevelEmergencyNow, true},
		{"Emergency", LevelEmergencyNow, true},
		{"doctor_visit", LevelPrimaryCare, true},
		{"urgent care today", LevelUrgentCare, true},
		{"see-primary-care", LevelPrimaryCare, true},
		{"", "", false},
		{"critical", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseTriageLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseTriageLevel(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestLevelOrder(t *testing.T) {
	order := []TriageLevel{LevelHomeCare, LevelPrimaryCare, LevelUrgentCare, LevelEmergencyNow}
	for i := 1; i < len(order); i++ {
		if order[i-1].Rank() >= order[i].Rank() {
			t.Fatalf("%q should rank below %q", order[i-1], order[i])
		}
	}
	if TriageLevel("x").Valid() {
		t.Fatal("undefined level reported valid")
	}
}
