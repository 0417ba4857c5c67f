/*
File: blend.go
Version: 1.0.0
Description: Merges the classifier probability with the heuristic risk score.
*/

package main

import (
	"math"
)

// Blend turns a classifier probability and a risk score into a verdict.
func Blend(pML float64, score int) Decision {
	adj := math.Min(float64(score)*riskAdjustmentPerPoint, maxRiskAdjustment)
	if adj < 0 {
		adj = 0
	}
	final := clampProbability(pML + adj)

	var v Verdict
	switch {
	case final >= phishingProbability || score >= phishingRiskScore:
		v = VerdictPhishing
	case final >= suspiciousProbability || score >= suspiciousRiskScore:
		v = VerdictSuspicious
	default:
		v = VerdictLegitimate
	}

	return Decision{Verdict: v, Probability: final, Adjustment: adj}
}

// RiskLevelFor derives the presentation severity. Legitimate verdicts are always LOW.
func RiskLevelFor(v Verdict, p float64) RiskLevel {
	if v.IsLegitimate() {
		return RiskLow
	}
	switch {
	case p >= highRiskProbability:
		return RiskHigh
	case p >= mediumRiskProbability:
		return RiskMedium
	default:
		return RiskLow
	}
}

func clampProbability(p float64) float64 {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
