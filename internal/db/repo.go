package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"triage-advisor/pkg"
)

const (
	DefaultAdvisoryLimit = 20
	MaxAdvisoryLimit     = 100
)

var (
	// ErrNotFound is returned when a user or advisory does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a username is already taken.
	ErrConflict = errors.New("already exists")
)

// Postgres error codes the repository translates.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// Repository wraps database operations for users, their medical history
// and stored advisories.  Advisories are append-only.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a new Repository from an existing sql.DB.
// The caller is responsible for managing the DB connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

// CreateUser inserts u, assigning its ID and creation time.
func (r *Repository) CreateUser(ctx context.Context, u *pkg.User) error {
	u.ID = uuid.NewString()
	err := r.DB.QueryRowContext(ctx,
		`INSERT INTO users (id, username, email, age, sex, pregnant)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING created_at`,
		u.ID, u.Username, u.Email, u.Age, u.Sex, u.Pregnant,
	).Scan(&u.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

// GetUser loads a user by ID.
func (r *Repository) GetUser(ctx context.Context, userID string) (*pkg.User, error) {
	id, err := parseID(userID)
	if err != nil {
		return nil, err
	}
	var u pkg.User
	err = r.DB.QueryRowContext(ctx,
		`SELECT id, username, email, age, sex, pregnant, created_at
         FROM users
         WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Age, &u.Sex, &u.Pregnant, &u.CreatedAt)
	if err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// AddCondition appends an entry to a user's medical history.
func (r *Repository) AddCondition(ctx context.Context, c *pkg.Condition) error {
	id, err := parseID(c.UserID)
	if err != nil {
		return err
	}
	err = r.DB.QueryRowContext(ctx,
		`INSERT INTO medical_history (user_id, condition_name, diagnosed_on, severity, notes)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING id, created_at`,
		id, c.Name, c.DiagnosedOn, c.Severity, c.Notes,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

// ListConditions returns a user's medical history, oldest first.  An
// unknown user yields ErrNotFound rather than an empty list.
func (r *Repository) ListConditions(ctx context.Context, userID string) ([]pkg.Condition, error) {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, condition_name, diagnosed_on, severity, notes, created_at
         FROM medical_history
         WHERE user_id = $1
         ORDER BY created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	conditions := []pkg.Condition{}
	for rows.Next() {
		var c pkg.Condition
		var diagnosed sql.NullTime
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &diagnosed, &c.Severity, &c.Notes, &c.CreatedAt); err != nil {
			return nil, err
		}
		if diagnosed.Valid {
			t := diagnosed.Time
			c.DiagnosedOn = &t
		}
		conditions = append(conditions, c)
	}
	return conditions, rows.Err()
}

// ConditionNames returns the distinct condition names of a user's history
// in the order they were recorded.  This is the prior history passed to
// the classifier.
func (r *Repository) ConditionNames(ctx context.Context, userID string) ([]string, error) {
	conditions, err := r.ListConditions(ctx, userID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(conditions))
	seen := make(map[string]bool, len(conditions))
	for _, c := range conditions {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, c.Name)
	}
	return names, nil
}

// AppendAdvisory stores a new advisory, assigning its ID and creation time.
func (r *Repository) AppendAdvisory(ctx context.Context, a *pkg.Advisory) error {
	id, err := parseID(a.UserID)
	if err != nil {
		return err
	}
	result, err := json.Marshal(a.Result)
	if err != nil {
		return fmt.Errorf("marshal advisory result: %w", err)
	}
	a.ID = uuid.NewString()
	err = r.DB.QueryRowContext(ctx,
		`INSERT INTO advisories (id, user_id, symptoms, triage_level, strategy, degraded, result)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         RETURNING created_at`,
		a.ID, id, a.Symptoms, string(a.Result.TriageLevel), string(a.Strategy), a.Degraded, result,
	).Scan(&a.CreatedAt)
	if err != nil {
		return translate(err)
	}
	return nil
}

// GetAdvisory loads one advisory.
func (r *Repository) GetAdvisory(ctx context.Context, advisoryID string) (*pkg.Advisory, error) {
	id, err := parseID(advisoryID)
	if err != nil {
		return nil, err
	}
	row := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, symptoms, strategy, degraded, result, created_at
         FROM advisories
         WHERE id = $1`,
		id,
	)
	a, err := scanAdvisory(row)
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// ListAdvisories returns a user's advisories, newest first.  limit is
// clamped to 1..MaxAdvisoryLimit; zero or less selects the default.
func (r *Repository) ListAdvisories(ctx context.Context, userID string, limit int) ([]pkg.Advisory, error) {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, user_id, symptoms, strategy, degraded, result, created_at
         FROM advisories
         WHERE user_id = $1
         ORDER BY created_at DESC, id
         LIMIT $2`,
		userID, ClampLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	advisories := []pkg.Advisory{}
	for rows.Next() {
		a, err := scanAdvisory(rows)
		if err != nil {
			return nil, err
		}
		advisories = append(advisories, *a)
	}
	return advisories, rows.Err()
}

// ClampLimit applies the advisory listing bounds.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultAdvisoryLimit
	case limit > MaxAdvisoryLimit:
		return MaxAdvisoryLimit
	default:
		return limit
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAdvisory(s scanner) (*pkg.Advisory, error) {
	var a pkg.Advisory
	var strategy string
	var result []byte
	if err := s.Scan(&a.ID, &a.UserID, &a.Symptoms, &strategy, &a.Degraded, &result, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Strategy = pkg.Strategy(strategy)
	if err := json.Unmarshal(result, &a.Result); err != nil {
		return nil, fmt.Errorf("unmarshal advisory %s: %w", a.ID, err)
	}
	return &a, nil
}

// parseID rejects malformed identifiers before they reach Postgres, which
// would otherwise fail the uuid cast.
func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, ErrNotFound
	}
	return id, nil
}

func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, pqErr.Detail)
		case pqForeignKeyViolation:
			return ErrNotFound
		}
	}
	return err
}
