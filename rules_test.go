package main

import (
	"reflect"
	"testing"
)

func TestScoreRisk(t *testing.T) {
	refs := DefaultReferenceSets()

	tests := []struct {
		url      string
		score    int
		findings []string
	}{
		{
			url:   "http://phishing-site-123.com/login.php?redirect=bank.com",
			score: 33,
			findings: []string{
				"Special characters detected in URL (major security risk)",
				"Suspicious path pattern: login",
			},
		},
		{
			url:   "https://192.168.1.1/admin/login",
			score: 21,
			findings: []string{
				"Suspicious path pattern: login",
				"Unusually short domain name: 1 characters",
				"IP address used instead of domain name",
			},
		},
		{
			url:   "https://aaaa-bbbb1234.xyz",
			score: 33,
			findings: []string{
				"Malicious domain pattern detected (random/suspicious characters)",
				"Suspicious TLD '.xyz' detected",
			},
		},
		{
			url:      "https://signin-apple.com",
			score:    5,
			findings: []string{"Suspicious keyword 'signin' in domain"},
		},
		{
			url:      "https://dropbox.com.getstorage.app",
			score:    15,
			findings: []string{"Brand 'dropbox' in subdomain with different main domain"},
		},
		{
			url:   "https://www.linkedin.com-login-page-review.com",
			score: 28,
			findings: []string{
				"Brand 'linkedin' in subdomain with different main domain",
				"Suspicious keyword 'login' in domain",
				"Unusually long domain name: 21 characters",
			},
		},
		{
			url:   "https://paypal.com.login.verify.secure-banking.net",
			score: 41,
			findings: []string{
				"Brand 'paypal' in subdomain with different main domain",
				"Suspicious keyword 'login' in domain",
				"Suspicious keyword 'secure' in domain",
				"Suspicious keyword 'verify' in domain",
				"Suspicious keyword 'banking' in domain",
				"Excessive subdomain levels: 5",
			},
		},
		{
			url:   "https://secureupdate.shop",
			score: 18,
			findings: []string{
				"Suspicious TLD '.shop' detected",
				"Suspicious keyword 'secure' in domain",
				"Suspicious keyword 'update' in domain",
			},
		},
		{
			url:      "https://bit.ly/abc",
			score:    7,
			findings: []string{"URL shortener detected: bit.ly"},
		},
		{
			url:      "https://аpple.com",
			score:    10,
			findings: []string{"Non-ASCII characters detected (possible homograph attack)"},
		},
		{
			url:      "https://lİnkedin.com",
			score:    10,
			findings: []string{"Non-ASCII characters detected (possible homograph attack)"},
		},
		{
			url:   "https://gİthub.com/login",
			score: 13,
			findings: []string{
				"Non-ASCII characters detected (possible homograph attack)",
				"Suspicious path pattern: login",
			},
		},
		{
			url:      "https://example.com/LOGİN",
			score:    0,
			findings: []string{},
		},
		{
			url:      "https://ab.com",
			score:    6,
			findings: []string{"Unusually short domain name: 2 characters"},
		},
		{
			url:      "https://xn--googl-fsa.com",
			score:    0,
			findings: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got := ScoreRisk(tt.url, refs)
			if got.Score != tt.score {
				t.Errorf("score = %d, want %d (findings %q)", got.Score, tt.score, got.Findings)
			}
			if !reflect.DeepEqual(got.Findings, tt.findings) {
				t.Errorf("findings =\n  %q\nwant\n  %q", got.Findings, tt.findings)
			}
		})
	}
}

func TestScoreRiskUnsplittableURL(t *testing.T) {
	// No host survives the split, but the raw URL is still scanned for special characters.
	got := ScoreRisk("https://[::1?x=1", DefaultReferenceSets())
	want := RiskAssessment{
		Score:    30,
		Findings: []string{"Special characters detected in URL (major security risk)"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ScoreRisk = %+v, want %+v", got, want)
	}
}

func TestScoreRiskUsesGivenReferenceSets(t *testing.T) {
	refs := DefaultReferenceSets()
	refs.SuspiciousKeywords = []string{"banana"}
	refs.build()

	got := ScoreRisk("https://banana-republic.com", refs)
	if got.Score != 5 || len(got.Findings) != 1 {
		t.Errorf("ScoreRisk = %+v, want a single keyword finding", got)
	}
	if def := ScoreRisk("https://banana-republic.com", DefaultReferenceSets()); def.Score != 0 {
		t.Errorf("default sets scored %d, want 0", def.Score)
	}
}

func TestMainLabelLength(t *testing.T) {
	tests := []struct {
		host string
		n    int
		ok   bool
	}{
		{"google.com", 6, true},
		{"a.b.example.org", 7, true},
		{"localhost", 0, false},
		{"яндекс.рф", 6, true},
	}
	for _, tt := range tests {
		n, ok := mainLabelLength(tt.host)
		if n != tt.n || ok != tt.ok {
			t.Errorf("mainLabelLength(%q) = (%d, %v), want (%d, %v)", tt.host, n, ok, tt.n, tt.ok)
		}
	}
}
