package core

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"triage-advisor/internal/llm"
	"triage-advisor/pkg"
)

type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	block   bool
	calls   int
	last    []llm.Message
}

func (f *fakeLLM) Chat(ctx context.Context, msgs []llm.Message) (string, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.last = msgs
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return f.replies[len(f.replies)-1], nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]pkg.TriageResult
}

func (c *mapCache) Get(_ context.Context, key string) (*pkg.TriageResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.data[key]; ok {
		return &r, nil
	}
	return nil, nil
}

func (c *mapCache) Set(_ context.Context, key string, r pkg.TriageResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = r
	return nil
}

const migraineReply = `{"summary":"Likely migraine.","differential":[{"condition":"Migraine","likelihood":"high","rationale":"throbbing"}],"triage_level":"home_care","next_steps":["Rest in a dark room"]}`

var transientErr = &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

func newService(client llm.Client, opts Options) *TriageService {
	return NewTriageService(NewRuleClassifier(DefaultLexicon()), client, opts)
}

func TestServiceRulesOnly(t *testing.T) {
	svc := newService(nil, Options{})
	a, err := svc.Classify(context.Background(), Request{SymptomText: "  headache  "})
	if err != nil {
		t.Fatal(err)
	}
	if a.Strategy != pkg.StrategyRules || a.Result.TriageLevel != pkg.LevelHomeCare {
		t.Fatalf("assessment = %+v", a)
	}
}

func TestServiceEmptyInput(t *testing.T) {
	fake := &fakeLLM{replies: []string{migraineReply}}
	svc := newService(fake, Options{Fallback: true})
	if _, err := svc.Classify(context.Background(), Request{SymptomText: " \n "}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("error = %v, want ErrInvalidInput", err)
	}
	if fake.callCount() != 0 {
		t.Error("backend called for empty input")
	}
}

func TestServiceBackendResult(t *testing.T) {
	fake := &fakeLLM{replies: []string{migraineReply}}
	svc := newService(fake, Options{})
	req := Request{
		SymptomText: "headache",
		Profile:     &pkg.Profile{Age: 34, Sex: "female"},
		History:     []string{"Migraine"},
	}
	a, err := svc.Classify(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	checkShape(t, a.Result)
	if a.Strategy != pkg.StrategyBackend || a.Degraded {
		t.Errorf("strategy = %q degraded = %v", a.Strategy, a.Degraded)
	}
	if a.Result.Summary != "Likely migraine." || a.Result.TriageLevel != pkg.LevelHomeCare {
		t.Errorf("result = %+v", a.Result)
	}

	msgs := fake.last
	if len(msgs) != 4 {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[0].Role != "system" || msgs[0].Content != SystemPrompt {
		t.Errorf("first message = %+v, want the system prompt", msgs[0])
	}
	if !strings.HasPrefix(msgs[1].Content, HistoryPrefix) || !strings.HasPrefix(msgs[2].Content, ProfilePrefix) {
		t.Errorf("history and profile out of order: %+v", msgs[1:3])
	}
	if !strings.Contains(msgs[2].Content, "age 34") {
		t.Errorf("profile line = %q", msgs[2].Content)
	}
	if msgs[3].Role != "user" || msgs[3].Content != "headache" {
		t.Errorf("last message = %+v, want the symptom text", msgs[3])
	}
}

func TestServiceFloorsBackendLevel(t *testing.T) {
	reply := `{"summary":"Probably reflux.","differential":[{"condition":"Acid Reflux","likelihood":"high"}],"triage_level":"home_care","next_steps":["Take an antacid"]}`
	svc := newService(&fakeLLM{replies: []string{reply}}, Options{})
	a, err := svc.Classify(context.Background(), Request{SymptomText: "chest pain after dinner"})
	if err != nil {
		t.Fatal(err)
	}
	res := a.Result
	if res.TriageLevel != pkg.LevelEmergencyNow {
		t.Fatalf("level = %q, want emergency_now", res.TriageLevel)
	}
	if !strings.Contains(res.NextSteps[0], "emergency") {
		t.Errorf("first next step = %q", res.NextSteps[0])
	}
	if len(res.RedFlagsTriggered) == 0 {
		t.Error("rule red flags not carried over")
	}
}

func TestServiceUnusableReply(t *testing.T) {
	tests := []struct {
		name      string
		reply     string
		symptoms  string
		wantFirst string
	}{
		{"prose, nothing matched", "Sorry, I cannot help with that.", "xyzzy", UnknownCondition},
		{"prose, low severity match", "Sorry, I cannot help with that.", "headache, stiff neck and confusion", "Tension Headache"},
		{"empty differential, low severity match", `{"triage_level": "home_care", "differential": []}`, "a rash on my arm", "Contact Dermatitis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := &mapCache{data: map[string]pkg.TriageResult{}}
			svc := newService(&fakeLLM{replies: []string{tt.reply}}, Options{Cache: cache})
			a, err := svc.Classify(context.Background(), Request{SymptomText: tt.symptoms})
			if err != nil {
				t.Fatal(err)
			}
			checkShape(t, a.Result)
			if !a.Degraded || a.Strategy != pkg.StrategyRulesFallback {
				t.Errorf("strategy = %q degraded = %v", a.Strategy, a.Degraded)
			}
			if a.Result.TriageLevel.Rank() < pkg.LevelPrimaryCare.Rank() {
				t.Errorf("level = %q, want at least see_primary_care", a.Result.TriageLevel)
			}
			if got := a.Result.Differential[0].Condition; got != tt.wantFirst {
				t.Errorf("first condition = %q, want %q", got, tt.wantFirst)
			}
			if len(cache.data) != 0 {
				t.Error("unusable reply was cached")
			}
		})
	}
}

func TestServiceReplyWithTrailingText(t *testing.T) {
	reply := `{"summary":"Possible meningitis.","differential":[{"condition":"Meningitis","likelihood":"high"}],"triage_level":"emergency_now","next_steps":["Call 911"]}` +
		"\nI hope this helps!"
	svc := newService(&fakeLLM{replies: []string{reply}}, Options{})
	a, err := svc.Classify(context.Background(), Request{SymptomText: "headache and stiff neck"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Strategy != pkg.StrategyBackend || a.Degraded {
		t.Errorf("strategy = %q degraded = %v", a.Strategy, a.Degraded)
	}
	if a.Result.TriageLevel != pkg.LevelEmergencyNow || a.Result.Differential[0].Condition != "Meningitis" {
		t.Errorf("result = %+v", a.Result)
	}
}

func TestServiceRetriesTransientOnce(t *testing.T) {
	fake := &fakeLLM{replies: []string{"", migraineReply}, errs: []error{transientErr}}
	svc := newService(fake, Options{})
	a, err := svc.Classify(context.Background(), Request{SymptomText: "headache"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Strategy != pkg.StrategyBackend || fake.callCount() != 2 {
		t.Fatalf("strategy = %q calls = %d", a.Strategy, fake.callCount())
	}

	fake = &fakeLLM{replies: []string{migraineReply}, errs: []error{transientErr, transientErr}}
	svc = newService(fake, Options{})
	if _, err := svc.Classify(context.Background(), Request{SymptomText: "headache"}); !errors.Is(err, ErrClassificationUnavailable) {
		t.Fatalf("error = %v, want ErrClassificationUnavailable", err)
	}
	if fake.callCount() != 2 {
		t.Errorf("calls = %d, want 2", fake.callCount())
	}
}

func TestServiceBackendFailure(t *testing.T) {
	permanent := errors.New("invalid api key")
	tests := []struct {
		name     string
		fallback bool
	}{
		{"no fallback", false},
		{"fallback", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeLLM{replies: []string{""}, errs: []error{permanent}}
			svc := newService(fake, Options{Fallback: tt.fallback})
			a, err := svc.Classify(context.Background(), Request{SymptomText: "fever"})
			if fake.callCount() != 1 {
				t.Errorf("permanent error retried: %d calls", fake.callCount())
			}
			if !tt.fallback {
				if !errors.Is(err, ErrClassificationUnavailable) {
					t.Fatalf("error = %v, want ErrClassificationUnavailable", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if a.Strategy != pkg.StrategyRulesFallback || a.Result.TriageLevel != pkg.LevelPrimaryCare {
				t.Fatalf("assessment = %+v", a)
			}
		})
	}
}

func TestServiceTimeout(t *testing.T) {
	for _, fallback := range []bool{false, true} {
		svc := newService(&fakeLLM{block: true}, Options{Timeout: 20 * time.Millisecond, Fallback: fallback})
		start := time.Now()
		a, err := svc.Classify(context.Background(), Request{SymptomText: "cough"})
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Fatalf("classification took %v", elapsed)
		}
		if fallback {
			if err != nil || a.Strategy != pkg.StrategyRulesFallback {
				t.Errorf("fallback: assessment = %+v err = %v", a, err)
			}
			continue
		}
		if !errors.Is(err, ErrClassificationUnavailable) {
			t.Errorf("error = %v, want ErrClassificationUnavailable", err)
		}
	}
}

func TestServiceCache(t *testing.T) {
	fake := &fakeLLM{replies: []string{migraineReply}}
	cache := &mapCache{data: map[string]pkg.TriageResult{}}
	svc := newService(fake, Options{Cache: cache})
	ctx := context.Background()

	first, err := svc.Classify(ctx, Request{SymptomText: "Headache"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Classify(ctx, Request{SymptomText: "  headache "})
	if err != nil {
		t.Fatal(err)
	}
	if fake.callCount() != 1 {
		t.Errorf("backend calls = %d, want 1", fake.callCount())
	}
	if first.Result.Summary != second.Result.Summary || second.Strategy != pkg.StrategyBackend {
		t.Errorf("cached assessment = %+v", second)
	}

	if _, err := svc.Classify(ctx, Request{SymptomText: "headache", Profile: &pkg.Profile{Age: 9}}); err != nil {
		t.Fatal(err)
	}
	if fake.callCount() != 2 {
		t.Errorf("different profile served from cache")
	}
}

func TestServiceConcurrentUse(t *testing.T) {
	svc := newService(nil, Options{})
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := svc.Classify(context.Background(), Request{SymptomText: "chest pain"})
			if err != nil || a.Result.TriageLevel != pkg.LevelEmergencyNow {
				t.Errorf("assessment = %+v err = %v", a, err)
			}
		}()
	}
	wg.Wait()
}

func TestServiceRevalidatesCachedEntries(t *testing.T) {
	req := Request{SymptomText: "chest pain"}
	tests := []struct {
		name      string
		entry     pkg.TriageResult
		wantCalls int
	}{
		{
			name: "invalid level and null lists",
			entry: pkg.TriageResult{
				Differential: []pkg.DifferentialItem{{Condition: "Acid Reflux", Likelihood: "certain"}},
				TriageLevel:  "whenever",
			},
			wantCalls: 0,
		},
		{
			name:      "no differential",
			entry:     pkg.TriageResult{TriageLevel: pkg.LevelEmergencyNow},
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeLLM{replies: []string{migraineReply}}
			cache := &mapCache{data: map[string]pkg.TriageResult{cacheKey(req): tt.entry}}
			svc := newService(fake, Options{Cache: cache})
			a, err := svc.Classify(context.Background(), req)
			if err != nil {
				t.Fatal(err)
			}
			checkShape(t, a.Result)
			if a.Result.TriageLevel != pkg.LevelEmergencyNow {
				t.Errorf("level = %q, want emergency_now", a.Result.TriageLevel)
			}
			if fake.callCount() != tt.wantCalls {
				t.Errorf("backend calls = %d, want %d", fake.callCount(), tt.wantCalls)
			}
		})
	}
}
