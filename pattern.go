/*
File: pattern.go
Version: 1.0.1
Description: Detector for algorithmically generated or keyboard-mashed domain names.
             Checks are OR-ed; the first one that fires decides. Input is expected lower-cased
             with any leading "www." removed; the mixed-case check only ever fires for callers
             that pass the original casing.
*/

package main

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const domainSpecialSet = "#@$%^&*+=<>?/\\|~`!"

var (
	reKnownTLD      = regexp.MustCompile(`\.(com|org|net|edu|gov|mil|int|co\.uk|co\.in)$`)
	reDigitRun      = regexp.MustCompile(`\p{Nd}{4,}`)
	reConsonantRun5 = regexp.MustCompile(`[bcdfghjklmnpqrstvwxyz]{5,}`)
	reMixedCase     = regexp.MustCompile(`[A-Z][a-z][A-Z][a-z]`)
)

// Shapes checked last, in order.
var suspiciousShapes = []struct {
	name string
	re   *regexp.Regexp
}{
	{"letters_then_digits", regexp.MustCompile(`[a-z]{10,}[0-9]{3,}`)},
	{"consonant_run", regexp.MustCompile(`[bcdfghjklmnpqrstvwxyz]{7,}`)},
	{"vowel_run", regexp.MustCompile(`[aeiou]{5,}`)},
	{"keyboard_qwerty", regexp.MustCompile(`[qwerty]{6,}`)},
	{"keyboard_zxcv", regexp.MustCompile(`[zxcv]{5,}`)},
}

// IsMaliciousDomain reports whether domain looks generated or mashed.
func IsMaliciousDomain(domain string) bool {
	_, ok := MaliciousDomainReason(domain)
	return ok
}

// MaliciousDomainReason returns the name of the first check that matched.
func MaliciousDomainReason(domain string) (string, bool) {
	core := reKnownTLD.ReplaceAllString(domain, "")

	if strings.ContainsAny(domain, domainSpecialSet) {
		return "special_chars", true
	}
	if reDigitRun.MatchString(core) {
		return "number_spam", true
	}
	if hasRepeatedRun(core, 4) {
		return "repeating", true
	}

	if utf8.RuneCountInString(core) > 15 {
		if len(reConsonantRun5.FindAllStringIndex(core, -1)) >= 2 {
			return "consonant_clusters", true
		}
		vowels, letters := 0, 0
		for i := 0; i < len(core); i++ {
			c := core[i]
			if c >= 'a' && c <= 'z' {
				letters++
				if strings.IndexByte("aeiou", c) >= 0 {
					vowels++
				}
			}
		}
		if letters > 0 && float64(vowels)/float64(letters) < 0.15 {
			return "low_vowel_ratio", true
		}
	}

	if reMixedCase.MatchString(domain) {
		return "mixed_case", true
	}

	for _, shape := range suspiciousShapes {
		if shape.re.MatchString(core) {
			return shape.name, true
		}
	}
	return "", false
}

// hasRepeatedRun reports a rune repeated at least n times in a row. Newlines never count.
func hasRepeatedRun(s string, n int) bool {
	var prev rune = -1
	run := 0
	for _, r := range s {
		if r == '\n' {
			prev, run = -1, 0
			continue
		}
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= n {
			return true
		}
	}
	return false
}
