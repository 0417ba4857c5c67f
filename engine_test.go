package main

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errModelDown = errors.New("model server down")

// stubClassifier counts calls and answers p, or err when set.
type stubClassifier struct {
	p     float64
	err   error
	calls atomic.Int32
	gate  chan struct{}
}

func (s *stubClassifier) PredictProbability(ctx context.Context, features []float64) (float64, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	if err := checkFeatureLength(features); err != nil {
		return 0, err
	}
	if s.err != nil {
		return 0, s.err
	}
	return s.p, nil
}

func (s *stubClassifier) Name() string { return "stub" }

func TestEngineScenarios(t *testing.T) {
	engine := NewEngine(nil, &ConstantClassifier{P: 0.1})

	tests := []struct {
		raw        string
		verdict    Verdict
		prob       float64
		score      int
		level      RiskLevel
		findingHas string
	}{
		{"https://www.google.com", VerdictLegitimateWhitelisted, 1.0, 0, RiskLow, ""},
		{"google.com", VerdictLegitimateWhitelisted, 1.0, 0, RiskLow, ""},
		{"https://mit.edu/admissions", VerdictLegitimateEducational, 0.95, 0, RiskLow, ""},
		{"https://usa.gov", VerdictLegitimateGovernment, 0.95, 0, RiskLow, ""},
		{"https://mozilla.org", VerdictLegitimateOrganization, 0.95, 0, RiskLow, ""},
		{"http://phishing-site-123.com/login.php?redirect=bank.com", VerdictPhishing, 0.6, 33, RiskMedium, "Suspicious path pattern: login"},
		{"192.168.1.1/admin/login", VerdictPhishing, 0.6, 21, RiskMedium, "IP address used instead of domain name"},
		{"https://aaaa-bbbb1234.xyz", VerdictPhishing, 0.6, 33, RiskMedium, "Malicious domain pattern detected (random/suspicious characters)"},
		{"https://signin-apple.com", VerdictSuspicious, 0.35, 5, RiskLow, "Suspicious keyword 'signin' in domain"},
		{"https://example.com", VerdictLegitimate, 0.1, 0, RiskLow, ""},
		{"https://lİnkedin.com", VerdictSuspicious, 0.6, 10, RiskMedium, "Non-ASCII characters detected (possible homograph attack)"},
		{"https://gİthub.com/login", VerdictSuspicious, 0.6, 13, RiskMedium, "Suspicious path pattern: login"},
		{"https://[::1?x=1", VerdictPhishing, 0.6, 30, RiskMedium, "Special characters detected in URL (major security risk)"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			a, err := engine.Analyze(context.Background(), tt.raw)
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if a.URL != tt.raw || a.NormalizedURL != NormalizeURL(tt.raw) {
				t.Errorf("URL = %q, NormalizedURL = %q", a.URL, a.NormalizedURL)
			}
			if a.Verdict != tt.verdict {
				t.Errorf("verdict = %s, want %s (findings %q)", a.Verdict, tt.verdict, a.Findings)
			}
			if math.Abs(a.Probability-tt.prob) > 1e-9 {
				t.Errorf("probability = %v, want %v", a.Probability, tt.prob)
			}
			if a.RiskScore != tt.score {
				t.Errorf("score = %d, want %d", a.RiskScore, tt.score)
			}
			if a.RiskLevel != tt.level {
				t.Errorf("risk level = %s, want %s", a.RiskLevel, tt.level)
			}
			if a.Findings == nil {
				t.Error("findings must be non-nil")
			}
			if tt.findingHas == "" {
				if len(a.Findings) != 0 {
					t.Errorf("unexpected findings %q", a.Findings)
				}
				return
			}
			found := false
			for _, f := range a.Findings {
				if f == tt.findingHas {
					found = true
				}
			}
			if !found {
				t.Errorf("findings %q missing %q", a.Findings, tt.findingHas)
			}
		})
	}
}

func TestEngineShortCircuitSkipsClassifier(t *testing.T) {
	stub := &stubClassifier{err: errModelDown}
	engine := NewEngine(nil, stub)

	a, err := engine.Analyze(context.Background(), "https://www.google.com")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if a.Verdict != VerdictLegitimateWhitelisted || a.Probability != 1.0 || a.ClassifierProbability != 0 {
		t.Errorf("got %s p=%v ml=%v", a.Verdict, a.Probability, a.ClassifierProbability)
	}
	if stub.calls.Load() != 0 {
		t.Errorf("classifier called %d times for a whitelisted host", stub.calls.Load())
	}
}

func TestEngineClassifierFailure(t *testing.T) {
	stub := &stubClassifier{err: errModelDown}
	engine := NewEngine(nil, stub, WithVerdictCache(NewVerdictCache(128, time.Minute)))

	for i := 0; i < 2; i++ {
		a, err := engine.Analyze(context.Background(), "https://phishing-site-123.com")
		if !errors.Is(err, errModelDown) {
			t.Fatalf("err = %v, want %v", err, errModelDown)
		}
		if a == nil || a.Verdict != VerdictError || a.Probability != 0 || len(a.Findings) != 0 {
			t.Fatalf("got %+v, want an empty ERROR assessment", a)
		}
	}
	if stub.calls.Load() != 2 {
		t.Errorf("classifier called %d times, ERROR results must not be cached", stub.calls.Load())
	}
}

func TestEngineCache(t *testing.T) {
	stub := &stubClassifier{p: 0.2}
	engine := NewEngine(nil, stub, WithVerdictCache(NewVerdictCache(128, time.Minute)))

	first, err := engine.Analyze(context.Background(), "phishing-site-123.com/login")
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.Analyze(context.Background(), "https://phishing-site-123.com/login")
	if err != nil {
		t.Fatal(err)
	}

	if stub.calls.Load() != 1 {
		t.Errorf("classifier called %d times, want 1", stub.calls.Load())
	}
	if second.URL != "https://phishing-site-123.com/login" || first.URL != "phishing-site-123.com/login" {
		t.Errorf("cached result must carry the caller's raw URL, got %q and %q", first.URL, second.URL)
	}
	if second.Verdict != first.Verdict || second.Probability != first.Probability {
		t.Error("cached verdict differs")
	}

	// Callers own their copy
	second.Findings[0] = "tampered"
	third, _ := engine.Analyze(context.Background(), "phishing-site-123.com/login")
	if third.Findings[0] == "tampered" {
		t.Error("cache handed out shared state")
	}

	stats, ok := engine.CacheStats()
	if !ok || stats.Hits != 2 || stats.Entries != 1 {
		t.Errorf("CacheStats = %+v, %v", stats, ok)
	}

	// Swapping reference sets flushes cached verdicts
	engine.SetReferenceSets(DefaultReferenceSets())
	if _, err := engine.Analyze(context.Background(), "phishing-site-123.com/login"); err != nil {
		t.Fatal(err)
	}
	if stub.calls.Load() != 2 {
		t.Errorf("classifier called %d times after swap, want 2", stub.calls.Load())
	}
}

func TestEngineReferenceSwap(t *testing.T) {
	engine := NewEngine(nil, &ConstantClassifier{P: 0.1})
	ctx := context.Background()

	a, _ := engine.Analyze(ctx, "https://intranet.example.com")
	if a.Verdict != VerdictLegitimate {
		t.Fatalf("verdict = %s before swap", a.Verdict)
	}

	path := writeTempFile(t, "refs.yaml", "whitelist_extra: [intranet.example.com]\n")
	if err := engine.ReloadReferenceSets(path); err != nil {
		t.Fatalf("ReloadReferenceSets: %v", err)
	}
	a, _ = engine.Analyze(ctx, "https://intranet.example.com")
	if a.Verdict != VerdictLegitimateWhitelisted {
		t.Errorf("verdict = %s after swap", a.Verdict)
	}

	before := engine.ReferenceSets()
	bad := writeTempFile(t, "bad.yaml", "educational_suffixes: [edu]\n")
	if err := engine.ReloadReferenceSets(bad); err == nil {
		t.Error("bad reference file accepted")
	}
	if engine.ReferenceSets() != before {
		t.Error("failed reload replaced the current sets")
	}
}

func TestEngineSwapDuringAnalysis(t *testing.T) {
	stub := &stubClassifier{p: 0.1, gate: make(chan struct{})}
	engine := NewEngine(nil, stub, WithVerdictCache(NewVerdictCache(128, time.Minute)))
	ctx := context.Background()
	const raw = "https://intranet.example.com"

	done := make(chan *Assessment, 1)
	go func() {
		a, _ := engine.Analyze(ctx, raw)
		done <- a
	}()
	for deadline := time.Now().Add(2 * time.Second); stub.calls.Load() == 0; {
		if time.Now().After(deadline) {
			t.Fatal("analysis never reached the classifier")
		}
		time.Sleep(time.Millisecond)
	}

	// Whitelist the host while the first analysis is still blocked on the old sets
	path := writeTempFile(t, "refs.yaml", "whitelist_extra: [intranet.example.com]\n")
	if err := engine.ReloadReferenceSets(path); err != nil {
		t.Fatalf("ReloadReferenceSets: %v", err)
	}
	close(stub.gate)
	if a := <-done; a == nil || a.Verdict != VerdictLegitimate {
		t.Fatalf("in-flight result = %+v", a)
	}

	a, err := engine.Analyze(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	if a.Verdict != VerdictLegitimateWhitelisted || a.Probability != 1.0 {
		t.Errorf("verdict = %s p=%v after swap, want the new whitelist to apply", a.Verdict, a.Probability)
	}
	if stats, _ := engine.CacheStats(); stats.Hits != 0 || stats.Entries != 1 {
		t.Errorf("CacheStats = %+v, stale verdict was cached", stats)
	}
}

func TestEngineCoalescesConcurrentCalls(t *testing.T) {
	stub := &stubClassifier{p: 0.1, gate: make(chan struct{})}
	engine := NewEngine(nil, stub, WithVerdictCache(NewVerdictCache(128, time.Minute)))

	const n = 16
	var wg sync.WaitGroup
	results := make([]*Assessment, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = engine.Analyze(context.Background(), "https://example.com/shared")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(stub.gate)
	wg.Wait()

	if calls := stub.calls.Load(); calls >= n {
		t.Errorf("classifier called %d times for %d concurrent requests", calls, n)
	}
	for i, r := range results {
		if r == nil || r.Verdict != VerdictLegitimate {
			t.Fatalf("result %d = %+v", i, r)
		}
	}
}

func TestEngineWaiterCancellation(t *testing.T) {
	stub := &stubClassifier{p: 0.1, gate: make(chan struct{})}
	engine := NewEngine(nil, stub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := engine.Analyze(ctx, "https://example.com/slow")
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	close(stub.gate)
}

func TestEngineIdentityAndSummary(t *testing.T) {
	engine := NewEngine(nil, &ConstantClassifier{P: 0.1})
	a, err := engine.Analyze(context.Background(), "https://аpple.com/login")
	if err != nil {
		t.Fatal(err)
	}
	if !a.Identity.Punycode || !a.Identity.MixedScript {
		t.Errorf("identity = %+v, want punycode and mixed script", a.Identity)
	}
	if a.Summary.URLLength != 23 || a.Features[colURLLength] != 23 {
		t.Errorf("summary = %+v", a.Summary)
	}
}

func TestNewEngineDefaults(t *testing.T) {
	engine := NewEngine(nil, nil)
	if engine.ReferenceSets() == nil {
		t.Fatal("nil reference sets not defaulted")
	}
	if engine.Classifier() == nil {
		t.Fatal("nil classifier not defaulted")
	}
	if _, ok := engine.CacheStats(); ok {
		t.Error("cache reported without WithVerdictCache")
	}
	engine.SetReferenceSets(nil)
	if engine.ReferenceSets() == nil {
		t.Error("SetReferenceSets(nil) cleared the sets")
	}
}
