package core

import "errors"

var (
	// ErrInvalidInput is returned when the symptom text is empty after trimming.
	ErrInvalidInput = errors.New("symptom text is required")

	// ErrClassificationUnavailable is returned when the reasoning backend
	// could not be reached and no local fallback is configured.  Callers may
	// retry.
	ErrClassificationUnavailable = errors.New("classification temporarily unavailable")

	// ErrEmptyDifferential is returned by Aggregate for an empty candidate
	// pool.  The rule classifier converts it into the degraded result.
	ErrEmptyDifferential = errors.New("empty candidate pool")
)
