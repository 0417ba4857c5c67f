/*
File: features.go
Version: 1.2.0
Description: Lexical feature extraction for the statistical classifier.
             Produces a fixed 41 column vector. Column names and order are part of the model
             contract; a model trained against another order is rejected at load time.
             Extraction never fails: a URL that cannot be split yields the zero vector.
*/

package main

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"
)

const featureCount = 41

// FeatureNames is the column order handed to classifiers.
var FeatureNames = [featureCount]string{
	"url_length",
	"number_of_dots_in_url",
	"having_repeated_digits_in_url",
	"number_of_digits_in_url",
	"number_of_special_char_in_url",
	"number_of_hyphens_in_url",
	"number_of_underline_in_url",
	"number_of_slash_in_url",
	"number_of_questionmark_in_url",
	"number_of_equal_in_url",
	"number_of_at_in_url",
	"number_of_dollar_in_url",
	"number_of_exclamation_in_url",
	"number_of_hashtag_in_url",
	"number_of_percent_in_url",
	"domain_length",
	"number_of_dots_in_domain",
	"number_of_hyphens_in_domain",
	"having_special_characters_in_domain",
	"number_of_special_characters_in_domain",
	"having_digits_in_domain",
	"number_of_digits_in_domain",
	"having_repeated_digits_in_domain",
	"number_of_subdomains",
	"having_dot_in_subdomain",
	"having_hyphen_in_subdomain",
	"average_subdomain_length",
	"average_number_of_dots_in_subdomain",
	"average_number_of_hyphens_in_subdomain",
	"having_special_characters_in_subdomain",
	"number_of_special_characters_in_subdomain",
	"having_digits_in_subdomain",
	"number_of_digits_in_subdomain",
	"having_repeated_digits_in_subdomain",
	"having_path",
	"path_length",
	"having_query",
	"having_fragment",
	"having_anchor",
	"entropy_of_url",
	"entropy_of_domain",
}

// Column indexes used outside the extractor.
const (
	colURLLength          = 0
	colDotsInURL          = 1
	colSpecialCharsInURL  = 4
	colHyphensInURL       = 5
	colDomainLength       = 15
	colNumberOfSubdomains = 23
	colURLEntropy         = 39
	colDomainEntropy      = 40
)

var featureIndex = func() map[string]int {
	m := make(map[string]int, featureCount)
	for i, name := range FeatureNames {
		m[name] = i
	}
	return m
}()

// FeatureVector holds one value per column of FeatureNames.
type FeatureVector [featureCount]float64

// ZeroFeatureVector is the fallback for URLs that cannot be split.
func ZeroFeatureVector() FeatureVector {
	return FeatureVector{}
}

// Values returns the columns in classifier order.
func (fv FeatureVector) Values() []float64 {
	out := make([]float64, featureCount)
	copy(out, fv[:])
	return out
}

// Get returns the named column.
func (fv FeatureVector) Get(name string) (float64, bool) {
	i, ok := featureIndex[name]
	if !ok {
		return 0, false
	}
	return fv[i], true
}

// Map returns the vector keyed by column name.
func (fv FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, featureCount)
	for i, name := range FeatureNames {
		m[name] = fv[i]
	}
	return m
}

// Summary extracts the columns shown to users.
func (fv FeatureVector) Summary() FeatureSummary {
	return FeatureSummary{
		URLLength:         int(fv[colURLLength]),
		DomainLength:      int(fv[colDomainLength]),
		SpecialCharacters: int(fv[colSpecialCharsInURL]),
		DotsInURL:         int(fv[colDotsInURL]),
		HyphensInURL:      int(fv[colHyphensInURL]),
		URLEntropy:        fv[colURLEntropy],
		DomainEntropy:     fv[colDomainEntropy],
	}
}

// ExtractFeatures never fails. See extractFeatures for the error-returning form.
func ExtractFeatures(url string) FeatureVector {
	fv, err := extractFeatures(url)
	if err != nil {
		if IsDebugEnabled() {
			LogDebug("[ENGINE] Feature extraction fell back to zero vector: %v", err)
		}
		return ZeroFeatureVector()
	}
	return fv
}

func extractFeatures(url string) (FeatureVector, error) {
	p, err := parseURL(url)
	if err != nil {
		return FeatureVector{}, fmt.Errorf("split url: %w", err)
	}
	return featuresFromParsed(url, p), nil
}

func featuresFromParsed(url string, p *ParsedURL) FeatureVector {
	var fv FeatureVector
	domain := p.Netloc

	urlDigits, urlRepeated := digitStats(url)
	domainDigits, domainRepeated := digitStats(domain)

	fv[0] = float64(utf8.RuneCountInString(url))
	fv[1] = float64(strings.Count(url, "."))
	fv[2] = boolFeature(urlRepeated)
	fv[3] = float64(urlDigits)
	fv[4] = float64(countOutside(url, "./-"))
	fv[5] = float64(strings.Count(url, "-"))
	fv[6] = float64(strings.Count(url, "_"))
	fv[7] = float64(strings.Count(url, "/"))
	fv[8] = float64(strings.Count(url, "?"))
	fv[9] = float64(strings.Count(url, "="))
	fv[10] = float64(strings.Count(url, "@"))
	fv[11] = float64(strings.Count(url, "$"))
	fv[12] = float64(strings.Count(url, "!"))
	fv[13] = float64(strings.Count(url, "#"))
	fv[14] = float64(strings.Count(url, "%"))

	domainSpecial := countOutside(domain, ".-")
	fv[15] = float64(utf8.RuneCountInString(domain))
	fv[16] = float64(strings.Count(domain, "."))
	fv[17] = float64(strings.Count(domain, "-"))
	fv[18] = boolFeature(domainSpecial > 0)
	fv[19] = float64(domainSpecial)
	fv[20] = boolFeature(domainDigits > 0)
	fv[21] = float64(domainDigits)
	fv[22] = boolFeature(domainRepeated)

	// Every label counts, registrable domain and TLD included.
	labels := strings.Split(domain, ".")
	var totalLen, hyphens, labelSpecial, labelDigits int
	var labelHyphen, labelRepeated bool
	for _, label := range labels {
		totalLen += utf8.RuneCountInString(label)
		h := strings.Count(label, "-")
		hyphens += h
		labelHyphen = labelHyphen || h > 0
		labelSpecial += countOutside(label, "-")
		d, rep := digitStats(label)
		labelDigits += d
		labelRepeated = labelRepeated || rep
	}
	n := float64(len(labels))

	fv[23] = n
	fv[24] = 0
	fv[25] = boolFeature(labelHyphen)
	fv[26] = float64(totalLen) / n
	fv[27] = 0
	fv[28] = float64(hyphens) / n
	fv[29] = boolFeature(labelSpecial > 0)
	fv[30] = float64(labelSpecial)
	fv[31] = boolFeature(labelDigits > 0)
	fv[32] = float64(labelDigits)
	fv[33] = boolFeature(labelRepeated)

	fv[34] = boolFeature(p.Path != "" && p.Path != "/")
	fv[35] = float64(utf8.RuneCountInString(p.Path))
	fv[36] = boolFeature(p.Query != "")
	fv[37] = boolFeature(p.Fragment != "")
	fv[38] = boolFeature(strings.Contains(url, "#"))
	fv[39] = calculateEntropy(url)
	fv[40] = calculateEntropy(domain)

	return fv
}

// countOutside counts runes that are not ASCII letters, ASCII digits or in allowed.
func countOutside(s, allowed string) int {
	n := 0
	for _, r := range s {
		if r < utf8.RuneSelf && (isASCIIAlnum(byte(r)) || strings.IndexByte(allowed, byte(r)) >= 0) {
			continue
		}
		n++
	}
	return n
}

func isASCIIAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// digitStats counts decimal digits and reports whether any digit value occurs twice.
func digitStats(s string) (count int, repeated bool) {
	var ascii [10]int
	var other map[rune]int
	for _, r := range s {
		if !unicode.IsDigit(r) {
			continue
		}
		count++
		if r >= '0' && r <= '9' {
			ascii[r-'0']++
			if ascii[r-'0'] > 1 {
				repeated = true
			}
			continue
		}
		if other == nil {
			other = make(map[rune]int)
		}
		other[r]++
		if other[r] > 1 {
			repeated = true
		}
	}
	return count, repeated
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// calculateEntropy returns the base-2 Shannon entropy over rune frequencies.
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	// Non-ASCII counts are kept in first-seen order so the sum is reproducible.
	var ascii [utf8.RuneSelf]int
	var slot map[rune]int
	var other []int
	total := 0
	for _, r := range s {
		total++
		if r < utf8.RuneSelf {
			ascii[r]++
			continue
		}
		if slot == nil {
			slot = make(map[rune]int)
		}
		i, ok := slot[r]
		if !ok {
			i = len(other)
			slot[r] = i
			other = append(other, 0)
		}
		other[i]++
	}

	var entropy float64
	n := float64(total)
	add := func(count int) {
		if count > 0 {
			p := float64(count) / n
			entropy -= p * math.Log2(p)
		}
	}
	for _, count := range ascii {
		add(count)
	}
	for _, count := range other {
		add(count)
	}
	return entropy
}
