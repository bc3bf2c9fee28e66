package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"triage-advisor/internal/core"
	"triage-advisor/internal/db"
	"triage-advisor/pkg"
)

const (
	maxBodyBytes    = 64 << 10
	retryAfter      = "30"
	streamKeepAlive = 30 * time.Second
)

// Classifier is the triage engine as seen by the handlers.
type Classifier interface {
	Classify(ctx context.Context, req core.Request) (pkg.Assessment, error)
}

// Store is the persistence the handlers need.  *db.Repository satisfies it.
type Store interface {
	CreateUser(ctx context.Context, u *pkg.User) error
	GetUser(ctx context.Context, userID string) (*pkg.User, error)
	AddCondition(ctx context.Context, c *pkg.Condition) error
	ListConditions(ctx context.Context, userID string) ([]pkg.Condition, error)
	ConditionNames(ctx context.Context, userID string) ([]string, error)
	AppendAdvisory(ctx context.Context, a *pkg.Advisory) error
	GetAdvisory(ctx context.Context, advisoryID string) (*pkg.Advisory, error)
	ListAdvisories(ctx context.Context, userID string, limit int) ([]pkg.Advisory, error)
}

// Publisher announces stored advisories.  *db.Notifier satisfies it.
type Publisher interface {
	Notify(ctx context.Context, userID, advisoryID string) error
}

// Feed delivers advisory events per user.  *db.Broadcaster satisfies it.
type Feed interface {
	Subscribe(userID string) (<-chan db.AdvisoryEvent, func())
}

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to http.Server.
type Server struct {
	Repo     Store
	Triage   Classifier
	Notifier Publisher
	Feed     Feed
	router   chi.Router
}

// NewServer constructs a Server.  notifier and feed may be nil, which
// disables advisory announcements and the advisory stream.
func NewServer(repo Store, triage Classifier, notifier Publisher, feed Feed) *Server {
	s := &Server{Repo: repo, Triage: triage, Notifier: notifier, Feed: feed}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/triage", s.handleTriage)
		r.Post("/users", s.handleCreateUser)
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Post("/conditions", s.handleAddCondition)
			r.Get("/conditions", s.handleListConditions)
			r.Post("/triage", s.handleUserTriage)
			r.Get("/advisories", s.handleListAdvisories)
			r.Get("/advisories/stream", s.handleAdvisoryStream)
		})
	})
	return r
}

// ServeHTTP dispatches to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// triageResponse is a TriageResult plus how it was produced.
type triageResponse struct {
	pkg.TriageResult
	Strategy pkg.Strategy `json:"strategy"`
	Degraded bool         `json:"degraded"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTriage classifies without storing anything.
func (s *Server) handleTriage(w http.ResponseWriter, r *http.Request) {
	var req pkg.TriageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.Triage.Classify(r.Context(), core.Request{
		SymptomText: req.Symptoms,
		Profile:     req.Profile,
		History:     req.History,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, triageResponse{TriageResult: a.Result, Strategy: a.Strategy, Degraded: a.Degraded})
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Age      int    `json:"age"`
	Sex      string `json:"sex"`
	Pregnant bool   `json:"pregnant"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}
	if req.Age < 0 || req.Age > 150 {
		writeError(w, http.StatusBadRequest, "age must be between 0 and 150")
		return
	}
	u := &pkg.User{
		Username: req.Username,
		Email:    strings.TrimSpace(req.Email),
		Age:      req.Age,
		Sex:      strings.TrimSpace(req.Sex),
		Pregnant: req.Pregnant,
	}
	if err := s.Repo.CreateUser(r.Context(), u); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.Repo.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type conditionRequest struct {
	Condition   string `json:"condition"`
	DiagnosedOn string `json:"diagnosed_on"`
	Severity    string `json:"severity"`
	Notes       string `json:"notes"`
}

func (s *Server) handleAddCondition(w http.ResponseWriter, r *http.Request) {
	var req conditionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	c := &pkg.Condition{
		UserID:   chi.URLParam(r, "userID"),
		Name:     strings.TrimSpace(req.Condition),
		Severity: strings.TrimSpace(req.Severity),
		Notes:    strings.TrimSpace(req.Notes),
	}
	if c.Name == "" {
		writeError(w, http.StatusBadRequest, "condition is required")
		return
	}
	if req.DiagnosedOn != "" {
		d, err := parseDate(req.DiagnosedOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "diagnosed_on must be a date (YYYY-MM-DD)")
			return
		}
		c.DiagnosedOn = &d
	}
	if err := s.Repo.AddCondition(r.Context(), c); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleListConditions(w http.ResponseWriter, r *http.Request) {
	conditions, err := s.Repo.ListConditions(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conditions)
}

// handleUserTriage classifies with the stored profile and condition
// history, appends the advisory and announces it.
func (s *Server) handleUserTriage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")
	var req pkg.TriageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	u, err := s.Repo.GetUser(ctx, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	history, err := s.Repo.ConditionNames(ctx, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	profile := u.Profile()
	if req.Profile != nil {
		profile.Medications = req.Profile.Medications
		profile.Allergies = req.Profile.Allergies
	}

	a, err := s.Triage.Classify(ctx, core.Request{
		SymptomText: req.Symptoms,
		Profile:     profile,
		History:     append(history, req.History...),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	adv := &pkg.Advisory{
		UserID:   u.ID,
		Symptoms: strings.TrimSpace(req.Symptoms),
		Result:   a.Result,
		Strategy: a.Strategy,
		Degraded: a.Degraded,
	}
	if err := s.Repo.AppendAdvisory(ctx, adv); err != nil {
		writeServiceError(w, err)
		return
	}
	if s.Notifier != nil {
		if err := s.Notifier.Notify(ctx, adv.UserID, adv.ID); err != nil {
			log.Println("failed to announce advisory:", err)
		}
	}
	writeJSON(w, http.StatusCreated, adv)
}

func (s *Server) handleListAdvisories(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	advisories, err := s.Repo.ListAdvisories(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, advisories)
}

// handleAdvisoryStream sends one "advisory" server-sent event per advisory
// stored for the user until the client goes away.
func (s *Server) handleAdvisoryStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")
	if s.Feed == nil {
		w.Header().Set("Retry-After", retryAfter)
		writeError(w, http.StatusServiceUnavailable, "advisory stream unavailable")
		return
	}
	if _, err := s.Repo.GetUser(ctx, userID); err != nil {
		writeServiceError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := s.Feed.Subscribe(userID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.sendAdvisoryEvent(ctx, w, ev); err != nil {
				log.Println("failed to send advisory event:", err)
				continue
			}
			flusher.Flush()
		}
	}
}

// sendAdvisoryEvent loads the advisory named by ev and writes it as an SSE
// "advisory" event.
func (s *Server) sendAdvisoryEvent(ctx context.Context, w http.ResponseWriter, ev db.AdvisoryEvent) error {
	adv, err := s.Repo.GetAdvisory(ctx, ev.AdvisoryID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(adv)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: advisory\ndata: %s\n\n", adv.ID, data)
	return err
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	if d, err := time.Parse("2006-01-02", s); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, s)
}

// writeServiceError maps engine and store errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, db.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrClassificationUnavailable):
		w.Header().Set("Retry-After", retryAfter)
		writeError(w, http.StatusServiceUnavailable, core.ErrClassificationUnavailable.Error())
	default:
		log.Println("request failed:", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("failed to encode response:", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
