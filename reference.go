/*
File: reference.go
Version: 1.3.0
Description: Immutable reference sets consumed by the policy and the rule engine.
             A set is built once (defaults, optionally overlaid by a YAML file) and then only
             read. Reloads build a fresh set and publish it with an atomic pointer swap, so
             readers never observe a half-updated set.
*/

package main

import (
	"fmt"
	"hash/fnv"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReferenceSets holds every static list the engine consults.
type ReferenceSets struct {
	Whitelist             []string
	BrandKeywords         []string
	SuspiciousTLDs        []string
	SuspiciousKeywords    []string
	SuspiciousPaths       []string
	EducationalSuffixes   []string
	GovernmentSuffixes    []string
	OrganizationBlocklist []string
	URLShorteners         []string

	whitelist   map[string]struct{}
	educational *DomainTrie[string]
	government  *DomainTrie[string]
	fingerprint string
}

// referenceFile is the on-disk overlay. Omitted lists keep their defaults.
type referenceFile struct {
	Whitelist             []string `yaml:"whitelist"`
	WhitelistExtra        []string `yaml:"whitelist_extra"`
	BrandKeywords         []string `yaml:"brand_keywords"`
	SuspiciousTLDs        []string `yaml:"suspicious_tlds"`
	SuspiciousKeywords    []string `yaml:"suspicious_keywords"`
	SuspiciousPaths       []string `yaml:"suspicious_paths"`
	EducationalSuffixes   []string `yaml:"educational_suffixes"`
	GovernmentSuffixes    []string `yaml:"government_suffixes"`
	OrganizationBlocklist []string `yaml:"organization_blocklist"`
	URLShorteners         []string `yaml:"url_shorteners"`
}

// DefaultReferenceSets returns the built-in sets.
func DefaultReferenceSets() *ReferenceSets {
	rs := &ReferenceSets{
		Whitelist:             cloneStrings(defaultWhitelist),
		BrandKeywords:         cloneStrings(defaultBrandKeywords),
		SuspiciousTLDs:        cloneStrings(defaultSuspiciousTLDs),
		SuspiciousKeywords:    cloneStrings(defaultSuspiciousKeywords),
		SuspiciousPaths:       cloneStrings(defaultSuspiciousPaths),
		EducationalSuffixes:   cloneStrings(defaultEducationalSuffixes),
		GovernmentSuffixes:    cloneStrings(defaultGovernmentSuffixes),
		OrganizationBlocklist: cloneStrings(defaultOrganizationBlocklist),
		URLShorteners:         cloneStrings(defaultURLShorteners),
	}
	rs.build()
	return rs
}

// LoadReferenceSets overlays the YAML file at path on the defaults.
// An empty path returns the defaults.
func LoadReferenceSets(path string) (*ReferenceSets, error) {
	if path == "" {
		return DefaultReferenceSets(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference file: %w", err)
	}

	var f referenceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse reference file %s: %w", path, err)
	}

	rs := DefaultReferenceSets()
	overlay := func(dst *[]string, src []string, lower bool) {
		if len(src) == 0 {
			return
		}
		out := make([]string, 0, len(src))
		for _, s := range src {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if lower {
				s = strings.ToLower(s)
			}
			out = append(out, s)
		}
		*dst = out
	}

	overlay(&rs.Whitelist, f.Whitelist, true)
	overlay(&rs.BrandKeywords, f.BrandKeywords, true)
	overlay(&rs.SuspiciousTLDs, f.SuspiciousTLDs, true)
	overlay(&rs.SuspiciousKeywords, f.SuspiciousKeywords, true)
	overlay(&rs.SuspiciousPaths, f.SuspiciousPaths, true)
	overlay(&rs.EducationalSuffixes, f.EducationalSuffixes, true)
	overlay(&rs.GovernmentSuffixes, f.GovernmentSuffixes, true)
	overlay(&rs.OrganizationBlocklist, f.OrganizationBlocklist, true)
	overlay(&rs.URLShorteners, f.URLShorteners, true)

	for _, d := range f.WhitelistExtra {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			rs.Whitelist = append(rs.Whitelist, d)
		}
	}

	for _, s := range append(cloneStrings(rs.EducationalSuffixes), rs.GovernmentSuffixes...) {
		if !strings.HasPrefix(s, ".") {
			return nil, fmt.Errorf("reference file %s: suffix %q must start with '.'", path, s)
		}
	}

	rs.build()
	LogInfo("[ENGINE] Loaded reference sets from %s (Whitelist: %d, Brands: %d, TLDs: %d, Keywords: %d)",
		path, len(rs.Whitelist), len(rs.BrandKeywords), len(rs.SuspiciousTLDs), len(rs.SuspiciousKeywords))
	return rs, nil
}

// build derives the lookup indexes. Called once before the set is published.
func (rs *ReferenceSets) build() {
	rs.whitelist = make(map[string]struct{}, len(rs.Whitelist))
	for _, d := range rs.Whitelist {
		rs.whitelist[d] = struct{}{}
	}

	rs.educational = NewDomainTrie[string]()
	for _, s := range rs.EducationalSuffixes {
		rs.educational.Insert(s, s)
	}

	rs.government = NewDomainTrie[string]()
	for _, s := range rs.GovernmentSuffixes {
		rs.government.Insert(s, s)
	}

	h := fnv.New64a()
	for _, list := range [][]string{
		rs.Whitelist, rs.BrandKeywords, rs.SuspiciousTLDs, rs.SuspiciousKeywords, rs.SuspiciousPaths,
		rs.EducationalSuffixes, rs.GovernmentSuffixes, rs.OrganizationBlocklist, rs.URLShorteners,
	} {
		for _, s := range list {
			h.Write([]byte(s))
			h.Write([]byte{0})
		}
		h.Write([]byte{1})
	}
	rs.fingerprint = fmt.Sprintf("%016x", h.Sum64())
}

// Fingerprint identifies the contents of the set. Equal lists give equal fingerprints.
func (rs *ReferenceSets) Fingerprint() string {
	return rs.fingerprint
}

// IsWhitelisted reports an exact match of an already cleaned host.
func (rs *ReferenceSets) IsWhitelisted(cleanHost string) bool {
	_, ok := rs.whitelist[cleanHost]
	return ok
}

// EducationalSuffix returns the educational suffix host ends in, if any.
func (rs *ReferenceSets) EducationalSuffix(host string) (string, bool) {
	return rs.educational.MatchSuffix(host)
}

// GovernmentSuffix returns the government suffix host ends in, if any.
func (rs *ReferenceSets) GovernmentSuffix(host string) (string, bool) {
	return rs.government.MatchSuffix(host)
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
