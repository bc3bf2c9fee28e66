package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"triage-advisor/internal/llm"
	"triage-advisor/pkg"
)

// DefaultBackendTimeout bounds a backend classification including its retry.
const DefaultBackendTimeout = 20 * time.Second

// ResultCache stores validated backend results between identical requests.
type ResultCache interface {
	Get(ctx context.Context, key string) (*pkg.TriageResult, error)
	Set(ctx context.Context, key string, result pkg.TriageResult) error
}

// Options tunes the backend strategy.  Fallback makes the service answer
// with the rule classifier when the backend fails instead of returning
// ErrClassificationUnavailable.
type Options struct {
	Timeout  time.Duration
	Fallback bool
	Cache    ResultCache
}

// TriageService is the single classification entry point.  It always runs
// the rule classifier; when an LLM client is configured the backend result
// is used with the rule result as a lower bound on urgency.  The service
// holds no per-request state and is safe for concurrent use.
type TriageService struct {
	rules    *RuleClassifier
	LLM      llm.Client
	timeout  time.Duration
	fallback bool
	cache    ResultCache
}

// NewTriageService constructs a service.  client may be nil, in which case
// only the rule classifier is used.
func NewTriageService(rules *RuleClassifier, client llm.Client, opts Options) *TriageService {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBackendTimeout
	}
	return &TriageService{
		rules:    rules,
		LLM:      client,
		timeout:  opts.Timeout,
		fallback: opts.Fallback,
		cache:    opts.Cache,
	}
}

// Classify validates the request and produces an assessment.
func (s *TriageService) Classify(ctx context.Context, req Request) (pkg.Assessment, error) {
	req.SymptomText = strings.TrimSpace(req.SymptomText)
	if req.SymptomText == "" {
		return pkg.Assessment{}, ErrInvalidInput
	}
	req.History = append([]string(nil), req.History...)

	local, err := s.rules.Classify(req)
	if err != nil {
		return pkg.Assessment{}, err
	}
	if s.LLM == nil {
		return local, nil
	}

	key := cacheKey(req)
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, key)
		if err != nil {
			log.Println("triage cache get failed:", err)
		} else if cached != nil {
			// stored entries are untrusted
			if res := Validate(*cached); !placeholderOnly(res) {
				return backendAssessment(applyFloor(res, local.Result)), nil
			}
		}
	}

	reply, err := s.callBackend(ctx, buildMessages(req))
	if err != nil {
		if !s.fallback {
			return pkg.Assessment{}, fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
		}
		log.Printf("triage backend failed, using rules: %v", err)
		local.Strategy = pkg.StrategyRulesFallback
		return local, nil
	}

	result := Validate(reply)
	if placeholderOnly(result) {
		log.Println("triage backend reply unusable, using rules")
		a, err := s.rules.classify(req, pkg.LevelPrimaryCare)
		if err != nil {
			return pkg.Assessment{}, err
		}
		a.Strategy = pkg.StrategyRulesFallback
		a.Degraded = true
		return a, nil
	}
	result = applyFloor(result, local.Result)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result); err != nil {
			log.Println("triage cache set failed:", err)
		}
	}
	return backendAssessment(result), nil
}

// callBackend makes the backend call under the service timeout, retrying
// once when the first failure is transient.
func (s *TriageService) callBackend(ctx context.Context, msgs []llm.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		var reply string
		reply, err = s.LLM.Chat(ctx, msgs)
		if err == nil {
			return reply, nil
		}
		if !llm.IsTransient(err) || ctx.Err() != nil {
			break
		}
		log.Printf("triage backend attempt %d failed: %v", attempt, err)
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("backend call: %w", ctx.Err())
	}
	return "", err
}

func backendAssessment(res pkg.TriageResult) pkg.Assessment {
	return pkg.Assessment{Result: res, Strategy: pkg.StrategyBackend}
}

// placeholderOnly reports whether the validator had to synthesise the whole
// differential, meaning the backend named no condition at all.
func placeholderOnly(res pkg.TriageResult) bool {
	return len(res.Differential) == 1 && res.Differential[0].Condition == UnspecifiedCondition
}

// applyFloor raises the backend's level to at least the rule level and
// carries over the rule red flags.  When the level is raised the matching
// guidance leads the next steps.
func applyFloor(res, local pkg.TriageResult) pkg.TriageResult {
	if res.TriageLevel.Rank() < local.TriageLevel.Rank() {
		res.TriageLevel = local.TriageLevel
		res.NextSteps = appendUnique(copyList(GuidanceFor(local.TriageLevel).NextSteps), res.NextSteps...)
	}
	res.RedFlagsTriggered = appendUnique(res.RedFlagsTriggered, local.RedFlagsTriggered...)
	return res
}

func buildMessages(req Request) []llm.Message {
	msgs := []llm.Message{{Role: "system", Content: SystemPrompt}}
	for _, h := range req.History {
		if h = strings.TrimSpace(h); h != "" {
			msgs = append(msgs, llm.Message{Role: "user", Content: HistoryPrefix + h})
		}
	}
	if p := describeProfile(req.Profile); p != "" {
		msgs = append(msgs, llm.Message{Role: "user", Content: ProfilePrefix + p})
	}
	return append(msgs, llm.Message{Role: "user", Content: req.SymptomText})
}

func describeProfile(p *pkg.Profile) string {
	if p == nil {
		return ""
	}
	var parts []string
	if p.Age > 0 {
		parts = append(parts, fmt.Sprintf("age %d", p.Age))
	}
	if p.Sex != "" {
		parts = append(parts, "sex "+p.Sex)
	}
	if p.Pregnant {
		parts = append(parts, "pregnant")
	}
	if len(p.Medications) > 0 {
		parts = append(parts, "medications: "+strings.Join(p.Medications, ", "))
	}
	if len(p.Allergies) > 0 {
		parts = append(parts, "allergies: "+strings.Join(p.Allergies, ", "))
	}
	return strings.Join(parts, "; ")
}

// cacheKey hashes everything the backend sees about the request.
func cacheKey(req Request) string {
	data, _ := json.Marshal(struct {
		Text    string       `json:"t"`
		Profile *pkg.Profile `json:"p,omitempty"`
		History []string     `json:"h,omitempty"`
	}{normalize(req.SymptomText), req.Profile, req.History})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
