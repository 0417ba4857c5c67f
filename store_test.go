package main

import (
	"context"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLStore(context.Background(), StoreConfig{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("OpenSQLStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStoreRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []*DetectionRecord{
		{URL: "https://example.com", Result: "LEGITIMATE", Confidence: 0.1, RiskLevel: "LOW", CreatedAt: base},
		{URL: "http://phishing-site-123.com/login", Result: "PHISHING", Confidence: 0.9, RiskLevel: "HIGH",
			RiskFactors: []string{"Suspicious path pattern: login"}, UserAgent: "curl/8", IPAddress: "10.0.0.1",
			CreatedAt: base.Add(time.Second)},
		{URL: "https://signin-apple.com", Result: "SUSPICIOUS", Confidence: 0.35, RiskLevel: "LOW", CreatedAt: base.Add(2 * time.Second)},
	}
	for _, r := range records {
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Recent(2) returned %d rows", len(got))
	}
	if got[0].URL != "https://signin-apple.com" || got[1].URL != "http://phishing-site-123.com/login" {
		t.Errorf("order = %q, %q", got[0].URL, got[1].URL)
	}
	if got[0].ID == "" || got[0].RiskFactors == nil {
		t.Errorf("defaults not filled: %+v", got[0])
	}

	p := got[1]
	if len(p.RiskFactors) != 1 || p.RiskFactors[0] != "Suspicious path pattern: login" ||
		p.UserAgent != "curl/8" || p.IPAddress != "10.0.0.1" || !p.CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("round trip lost data: %+v", p)
	}

	all, _ := s.Recent(ctx, 0)
	if len(all) != 3 {
		t.Errorf("Recent(0) returned %d rows, want the default limit", len(all))
	}
}

func TestSQLStoreStatistics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if empty.Total != 0 || empty.LastDetection != nil || empty.AverageConfidence != 0 {
		t.Errorf("empty stats = %+v", empty)
	}

	last := time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)
	for i, r := range []struct {
		result, level string
		conf          float64
	}{
		{"PHISHING", "HIGH", 0.9},
		{"PHISHING", "MEDIUM", 0.6},
		{"LEGITIMATE", "LOW", 0.3},
	} {
		rec := &DetectionRecord{URL: "https://x.example", Result: r.result, RiskLevel: r.level, Confidence: r.conf,
			CreatedAt: last.Add(-time.Duration(i) * time.Second)}
		if err := s.Record(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := s.Statistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.ByResult["PHISHING"] != 2 || stats.ByResult["LEGITIMATE"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByRiskLevel["HIGH"] != 1 || stats.ByRiskLevel["MEDIUM"] != 1 || stats.ByRiskLevel["LOW"] != 1 {
		t.Errorf("by risk level = %v", stats.ByRiskLevel)
	}
	if d := stats.AverageConfidence - 0.6; d > 1e-9 || d < -1e-9 {
		t.Errorf("average confidence = %v", stats.AverageConfidence)
	}
	if stats.LastDetection == nil || !stats.LastDetection.Equal(last) {
		t.Errorf("last detection = %v, want %v", stats.LastDetection, last)
	}
}

func TestSQLStorePingAndDriver(t *testing.T) {
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if s.Driver() != "sqlite" {
		t.Errorf("Driver = %q", s.Driver())
	}
	if err := s.Record(context.Background(), nil); err == nil {
		t.Error("nil record accepted")
	}
}

func TestOpenSQLStoreUnknownDriver(t *testing.T) {
	if _, err := OpenSQLStore(context.Background(), StoreConfig{Driver: "mysql"}); err == nil {
		t.Error("unknown driver accepted")
	}
}

func TestNewDetectionRecord(t *testing.T) {
	engine := NewEngine(nil, &ConstantClassifier{P: 0.1})
	a, err := engine.Analyze(context.Background(), "http://phishing-site-123.com/login.php?redirect=bank.com")
	if err != nil {
		t.Fatal(err)
	}
	rec := NewDetectionRecord(a, "test-agent", "203.0.113.7")
	if rec.ID == "" || rec.Result != "PHISHING" || rec.RiskLevel != "MEDIUM" {
		t.Errorf("record = %+v", rec)
	}
	if rec.URLLength != 56 || rec.Subdomains != 2 || len(rec.RiskFactors) != len(a.Findings) {
		t.Errorf("headline features = %+v", rec)
	}

	clean := NewDetectionRecord(&Assessment{URL: "https://example.com", Verdict: VerdictLegitimate}, "", "")
	if clean.RiskFactors == nil {
		t.Error("nil findings must become an empty list")
	}
}

func TestClampLogLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{-5, defaultLogLimit}, {0, defaultLogLimit}, {1, 1}, {250, 250}, {1000, 1000}, {5000, 1000},
	}
	for _, tt := range tests {
		if got := clampLogLimit(tt.in); got != tt.want {
			t.Errorf("clampLogLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
