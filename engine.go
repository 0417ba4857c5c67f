/*
File: engine.go
Version: 1.4.0
Description: The URL risk engine.
             normalize -> features -> domain policy (may short-circuit) -> rules -> classifier
             -> blend. Results are cached per normalized URL (in-process LRU, optional Redis)
             and concurrent analyses of the same URL are coalesced.
             Reference sets are swapped atomically; in-flight calls finish on the set they
             started with.
*/

package main

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

var errNoReferenceSets = errors.New("engine has no reference sets")

// Engine is safe for concurrent use.
type Engine struct {
	refs       atomic.Pointer[ReferenceSets]
	classifier Classifier
	cache      *VerdictCache
	redis      *RedisVerdictCache
	group      *ShardedGroup
	now        func() time.Time
}

type EngineOption func(*Engine)

// WithVerdictCache enables the in-process verdict cache.
func WithVerdictCache(c *VerdictCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// WithRedisCache enables the shared Redis tier.
func WithRedisCache(c *RedisVerdictCache) EngineOption {
	return func(e *Engine) { e.redis = c }
}

func NewEngine(refs *ReferenceSets, classifier Classifier, opts ...EngineOption) *Engine {
	if refs == nil {
		refs = DefaultReferenceSets()
	}
	if classifier == nil {
		classifier = &ConstantClassifier{}
	}
	e := &Engine{
		classifier: classifier,
		group:      NewShardedGroup(),
		now:        time.Now,
	}
	e.refs.Store(refs)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReferenceSets returns the sets currently in use.
func (e *Engine) ReferenceSets() *ReferenceSets {
	return e.refs.Load()
}

// SetReferenceSets publishes rs and drops every cached verdict.
func (e *Engine) SetReferenceSets(rs *ReferenceSets) {
	if rs == nil {
		return
	}
	e.refs.Store(rs)
	if e.cache != nil {
		e.cache.Flush()
	}
	LogInfo("[ENGINE] Reference sets swapped (fingerprint %s)", rs.Fingerprint())
}

// ReloadReferenceSets rebuilds the sets from path. On error the current sets stay.
func (e *Engine) ReloadReferenceSets(path string) error {
	rs, err := LoadReferenceSets(path)
	if err != nil {
		return err
	}
	e.SetReferenceSets(rs)
	return nil
}

func (e *Engine) Classifier() Classifier {
	return e.classifier
}

func (e *Engine) CacheStats() (CacheStats, bool) {
	if e.cache == nil {
		return CacheStats{}, false
	}
	return e.cache.Stats(), true
}

// Analyze classifies rawURL. On a classifier failure it returns an ERROR assessment
// together with the error.
func (e *Engine) Analyze(ctx context.Context, rawURL string) (*Assessment, error) {
	normalized := NormalizeURL(rawURL)
	refs := e.refs.Load()
	if refs == nil {
		return errorAssessment(rawURL, normalized), errNoReferenceSets
	}

	// Local entries are keyed like the shared tier so a verdict computed against
	// replaced reference sets can never answer for the current ones.
	namespace := refs.Fingerprint() + ":" + e.classifier.Name()
	key := namespace + "|" + normalized

	if e.cache != nil {
		if a, ok := e.cache.Get(key); ok {
			if IsDebugEnabled() {
				LogDebug("[CACHE] Hit for %s (%s)", normalized, a.Verdict)
			}
			a.URL = rawURL
			return a, nil
		}
	}

	if e.redis != nil {
		if a, ok := e.redis.Get(ctx, namespace, normalized); ok {
			if e.cache != nil && e.refs.Load() == refs {
				e.cache.Add(key, a)
			}
			a.URL = rawURL
			return a, nil
		}
	}

	// The shared call must not die with whichever caller started it.
	flightCtx := context.WithoutCancel(ctx)
	a, shared, err := e.group.Do(ctx, key, func() (*Assessment, error) {
		return e.analyze(flightCtx, normalized, refs)
	})
	if shared && IsDebugEnabled() {
		LogDebug("[ENGINE] Coalesced analysis for %s", normalized)
	}
	if err != nil {
		return errorAssessment(rawURL, normalized), err
	}

	// Shared results are handed to several callers; each gets its own copy.
	a = cloneAssessment(a)
	a.URL = rawURL

	// Sets swapped mid-flight: the flush already ran, do not refill it with this verdict.
	if e.cache != nil && e.refs.Load() == refs {
		e.cache.Add(key, a)
	}
	if e.redis != nil {
		e.redis.Set(ctx, namespace, normalized, a)
	}
	return a, nil
}

func (e *Engine) analyze(ctx context.Context, normalized string, refs *ReferenceSets) (*Assessment, error) {
	p, err := parseURL(normalized)
	fv := ZeroFeatureVector()
	if err != nil {
		if IsDebugEnabled() {
			LogDebug("[ENGINE] Cannot split %q, scoring without host: %v", normalized, err)
		}
		p = &ParsedURL{}
	} else {
		fv = featuresFromParsed(normalized, p)
	}

	a := &Assessment{
		URL:           normalized,
		NormalizedURL: normalized,
		Findings:      []string{},
		Features:      fv,
		Summary:       fv.Summary(),
		Identity:      DescribeHost(p.Host),
		AnalyzedAt:    e.now().UTC(),
	}

	if v, prob, ok := ClassifyDomain(p, refs); ok {
		a.Verdict = v
		a.Probability = prob
		a.RiskLevel = RiskLevelFor(v, prob)
		return a, nil
	}

	ra := scoreParsed(normalized, p, refs)

	pML, err := e.classifier.PredictProbability(ctx, fv.Values())
	if err != nil {
		LogWarn("[ENGINE] Classifier %s failed for %s: %v", e.classifier.Name(), normalized, err)
		return nil, err
	}

	d := Blend(pML, ra.Score)
	a.Verdict = d.Verdict
	a.Probability = d.Probability
	a.ClassifierProbability = pML
	a.RiskScore = ra.Score
	a.RiskLevel = RiskLevelFor(d.Verdict, d.Probability)
	a.Findings = ra.Findings

	if IsDebugEnabled() {
		LogDebug("[ENGINE] %s -> %s (p=%.3f ml=%.3f score=%d adj=%.2f)",
			normalized, d.Verdict, d.Probability, pML, ra.Score, d.Adjustment)
	}
	return a, nil
}
