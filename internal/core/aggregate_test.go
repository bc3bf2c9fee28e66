package core

import (
	"errors"
	"testing"

	"triage-advisor/pkg"
)

func TestAggregate(t *testing.T) {
	pool := []string{"Flu", "Common Cold", "flu", " ", "COVID-19", "Asthma", "Anemia", "Migraine", "Common Cold"}
	items, err := Aggregate(pool)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	want := []string{"Flu", "Common Cold", "COVID-19", "Asthma", "Anemia"}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, it := range items {
		if it.Condition != want[i] {
			t.Errorf("item %d = %q, want %q", i, it.Condition, want[i])
		}
		wantLikelihood := pkg.LikelihoodMedium
		if i == 0 {
			wantLikelihood = pkg.LikelihoodHigh
		}
		if it.Likelihood != wantLikelihood {
			t.Errorf("item %d likelihood = %q, want %q", i, it.Likelihood, wantLikelihood)
		}
	}
}

func TestAggregateEmptyPool(t *testing.T) {
	for _, pool := range [][]string{nil, {}, {"", "  "}} {
		if _, err := Aggregate(pool); !errors.Is(err, ErrEmptyDifferential) {
			t.Errorf("Aggregate(%q) error = %v, want ErrEmptyDifferential", pool, err)
		}
	}
}
