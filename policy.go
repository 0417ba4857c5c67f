/*
File: policy.go
Version: 1.0.0
Description: Domain classification policy. Trusted hosts skip scoring entirely.
             Priority: whitelist, educational, government, organization.
*/

package main

import (
	"strings"
)

// ClassifyDomain returns the short-circuit verdict for p, if any.
func ClassifyDomain(p *ParsedURL, refs *ReferenceSets) (Verdict, float64, bool) {
	if p == nil || refs == nil {
		return "", 0, false
	}
	host := p.Host

	if refs.IsWhitelisted(stripWWW(host)) {
		return VerdictLegitimateWhitelisted, whitelistProbability, true
	}
	if _, ok := refs.EducationalSuffix(host); ok {
		return VerdictLegitimateEducational, trustedTypeProbability, true
	}
	if _, ok := refs.GovernmentSuffix(host); ok {
		return VerdictLegitimateGovernment, trustedTypeProbability, true
	}
	if strings.HasSuffix(host, ".org") && !containsAny(host, refs.OrganizationBlocklist) {
		return VerdictLegitimateOrganization, trustedTypeProbability, true
	}
	return "", 0, false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
