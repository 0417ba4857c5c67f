/*
File: rules.go
Version: 1.1.0
Description: Heuristic risk rules.
             The rule table is walked in order and folded into a RiskAssessment. Each finding a
             rule returns adds the rule weight once, so keyword rules score per match. There is
             no ceiling on the score here; the blender caps its influence.
*/

package main

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const urlSpecialSet = "#@$%^&*+=<>?\\|~`!"

var reLeadingIPv4 = regexp.MustCompile(`^\p{Nd}{1,3}\.\p{Nd}{1,3}\.\p{Nd}{1,3}\.\p{Nd}{1,3}`)

// riskTarget is the per-call view the rules inspect.
type riskTarget struct {
	url   string // normalized URL
	host  string // lower-cased netloc
	clean string // host without a leading "www."
	path  string // lower-cased path
	refs  *ReferenceSets
}

type riskRule struct {
	name   string
	weight int
	match  func(t *riskTarget) []string
}

// riskRules is evaluated top to bottom. Order is part of the output contract.
var riskRules = []riskRule{
	{"malicious_domain", 25, func(t *riskTarget) []string {
		if reason, ok := MaliciousDomainReason(t.clean); ok {
			if IsDebugEnabled() {
				LogDebug("[ENGINE] Malicious domain pattern '%s' matched for %s", reason, t.clean)
			}
			return []string{"Malicious domain pattern detected (random/suspicious characters)"}
		}
		return nil
	}},
	{"special_characters", 30, func(t *riskTarget) []string {
		if strings.ContainsAny(t.url, urlSpecialSet) {
			return []string{"Special characters detected in URL (major security risk)"}
		}
		return nil
	}},
	{"brand_in_subdomain", 15, func(t *riskTarget) []string {
		parts := strings.Split(t.host, ".")
		if len(parts) < 3 {
			return nil
		}
		subdomain := strings.Join(parts[:len(parts)-2], ".")
		mainDomain := parts[len(parts)-2]

		var out []string
		for _, brand := range t.refs.BrandKeywords {
			if strings.Contains(subdomain, brand) && brand != mainDomain {
				out = append(out, fmt.Sprintf("Brand '%s' in subdomain with different main domain", brand))
			}
		}
		return out
	}},
	{"suspicious_tld", 8, func(t *riskTarget) []string {
		for _, tld := range t.refs.SuspiciousTLDs {
			if strings.HasSuffix(t.host, tld) {
				return []string{fmt.Sprintf("Suspicious TLD '%s' detected", tld)}
			}
		}
		return nil
	}},
	{"suspicious_keyword", 5, func(t *riskTarget) []string {
		var out []string
		for _, kw := range t.refs.SuspiciousKeywords {
			if strings.Contains(t.host, kw) {
				out = append(out, fmt.Sprintf("Suspicious keyword '%s' in domain", kw))
			}
		}
		return out
	}},
	{"non_ascii_host", 10, func(t *riskTarget) []string {
		if !isASCII(t.host) {
			return []string{"Non-ASCII characters detected (possible homograph attack)"}
		}
		return nil
	}},
	{"excessive_subdomains", 6, func(t *riskTarget) []string {
		if dots := strings.Count(t.host, "."); dots > 3 {
			return []string{fmt.Sprintf("Excessive subdomain levels: %d", dots)}
		}
		return nil
	}},
	{"suspicious_path", 3, func(t *riskTarget) []string {
		var out []string
		for _, kw := range t.refs.SuspiciousPaths {
			if strings.Contains(t.path, kw) {
				out = append(out, fmt.Sprintf("Suspicious path pattern: %s", kw))
			}
		}
		return out
	}},
	{"long_domain_label", 8, func(t *riskTarget) []string {
		if n, ok := mainLabelLength(t.clean); ok && n > 20 {
			return []string{fmt.Sprintf("Unusually long domain name: %d characters", n)}
		}
		return nil
	}},
	{"short_domain_label", 6, func(t *riskTarget) []string {
		if n, ok := mainLabelLength(t.clean); ok && n < 3 {
			return []string{fmt.Sprintf("Unusually short domain name: %d characters", n)}
		}
		return nil
	}},
	{"ip_literal_host", 12, func(t *riskTarget) []string {
		if reLeadingIPv4.MatchString(t.host) {
			return []string{"IP address used instead of domain name"}
		}
		return nil
	}},
	{"url_shortener", 7, func(t *riskTarget) []string {
		var out []string
		for _, s := range t.refs.URLShorteners {
			if strings.Contains(t.host, s) {
				out = append(out, fmt.Sprintf("URL shortener detected: %s", s))
			}
		}
		return out
	}},
}

// mainLabelLength returns the rune length of the second-to-last label.
func mainLabelLength(host string) (int, bool) {
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return 0, false
	}
	return utf8.RuneCountInString(parts[len(parts)-2]), true
}

// ScoreRisk runs every rule against a normalized URL.
// A URL that cannot be split is scored as if it had no host or path.
func ScoreRisk(normalized string, refs *ReferenceSets) RiskAssessment {
	p, err := parseURL(normalized)
	if err != nil {
		p = &ParsedURL{}
	}
	return scoreParsed(normalized, p, refs)
}

func scoreParsed(normalized string, p *ParsedURL, refs *ReferenceSets) RiskAssessment {
	t := &riskTarget{
		url:   normalized,
		host:  p.Host,
		clean: stripWWW(p.Host),
		path:  lowerFull(p.Path),
		refs:  refs,
	}

	ra := RiskAssessment{Findings: []string{}}
	for _, rule := range riskRules {
		for _, finding := range rule.match(t) {
			ra.Score += rule.weight
			ra.Findings = append(ra.Findings, finding)
		}
	}
	return ra
}
