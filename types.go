/*
File: types.go
Version: 1.2.0
Description: Shared types and constants for the URL risk engine.
             Verdicts, risk levels, the assessment handed to reporting consumers and
             the tuning constants of the decision blender.
*/

package main

import (
	"strings"
	"time"
)

// --- Constants ---

const (
	// Blending
	riskAdjustmentPerPoint = 0.05
	maxRiskAdjustment      = 0.5

	phishingProbability   = 0.65
	phishingRiskScore     = 20
	suspiciousProbability = 0.35
	suspiciousRiskScore   = 10

	highRiskProbability   = 0.7
	mediumRiskProbability = 0.4

	// Short-circuit probabilities of the domain classification policy
	whitelistProbability    = 1.0
	trustedTypeProbability  = 0.95
	defaultVerdictCacheSize = 16384
	verdictCacheShards      = 64
	defaultVerdictCacheTTL  = 10 * time.Minute
)

// Verdict is the final classification of a URL.
type Verdict string

const (
	VerdictLegitimate             Verdict = "LEGITIMATE"
	VerdictLegitimateWhitelisted  Verdict = "LEGITIMATE_WHITELISTED"
	VerdictLegitimateEducational  Verdict = "LEGITIMATE_EDUCATIONAL"
	VerdictLegitimateGovernment   Verdict = "LEGITIMATE_GOVERNMENT"
	VerdictLegitimateOrganization Verdict = "LEGITIMATE_ORGANIZATION"
	VerdictSuspicious             Verdict = "SUSPICIOUS"
	VerdictPhishing               Verdict = "PHISHING"
	VerdictError                  Verdict = "ERROR"
)

// IsLegitimate reports whether v is LEGITIMATE or one of its trusted variants.
func (v Verdict) IsLegitimate() bool {
	return strings.HasPrefix(string(v), string(VerdictLegitimate))
}

// Label renders the verdict the way it is shown to users, e.g. "LEGITIMATE (WHITELISTED)".
func (v Verdict) Label() string {
	if v != VerdictLegitimate && v.IsLegitimate() {
		kind := strings.TrimPrefix(string(v), string(VerdictLegitimate)+"_")
		return string(VerdictLegitimate) + " (" + kind + ")"
	}
	return string(v)
}

// RiskLevel is the presentation-only severity axis.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// --- Structs ---

// RiskAssessment is the output of one rule engine pass.
type RiskAssessment struct {
	Score    int      `json:"score"`
	Findings []string `json:"findings"`
}

// Decision is the blended outcome for a URL that was not short-circuited.
type Decision struct {
	Verdict     Verdict `json:"verdict"`
	Probability float64 `json:"probability"`
	Adjustment  float64 `json:"adjustment"`
}

// FeatureSummary is the subset of the feature vector shown to users.
type FeatureSummary struct {
	URLLength         int     `json:"url_length"`
	DomainLength      int     `json:"domain_length"`
	SpecialCharacters int     `json:"special_characters"`
	DotsInURL         int     `json:"dots_in_url"`
	HyphensInURL      int     `json:"hyphens_in_url"`
	URLEntropy        float64 `json:"url_entropy"`
	DomainEntropy     float64 `json:"domain_entropy"`
}

// HostIdentity describes the host for reporting. It never feeds the score.
type HostIdentity struct {
	ASCII             string `json:"ascii,omitempty"`
	Unicode           string `json:"unicode,omitempty"`
	RegistrableDomain string `json:"registrable_domain,omitempty"`
	PublicSuffix      string `json:"public_suffix,omitempty"`
	Punycode          bool   `json:"punycode"`
	MixedScript       bool   `json:"mixed_script"`
	ValidHostname     bool   `json:"valid_hostname"`
	IPLiteral         bool   `json:"ip_literal"`
}

// Assessment is everything a reporting consumer receives for one URL.
type Assessment struct {
	URL                   string         `json:"url"`
	NormalizedURL         string         `json:"normalized_url"`
	Verdict               Verdict        `json:"verdict"`
	Probability           float64        `json:"probability"`
	ClassifierProbability float64        `json:"classifier_probability"`
	RiskScore             int            `json:"risk_score"`
	RiskLevel             RiskLevel      `json:"risk_level"`
	Findings              []string       `json:"findings"`
	Features              FeatureVector  `json:"-"`
	Summary               FeatureSummary `json:"features"`
	Identity              HostIdentity   `json:"identity"`
	AnalyzedAt            time.Time      `json:"analyzed_at"`
}

// errorAssessment is returned alongside an error: probability 0, no findings.
func errorAssessment(raw, normalized string) *Assessment {
	return &Assessment{
		URL:           raw,
		NormalizedURL: normalized,
		Verdict:       VerdictError,
		RiskLevel:     RiskLow,
		AnalyzedAt:    time.Now().UTC(),
	}
}
