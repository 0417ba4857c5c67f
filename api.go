/*
File: api.go
Version: 1.2.0
Last Update: 2026-10-19
Description: HTTP handlers and middleware for the URL risk API.
             /predict renders an Assessment for humans and logs it to the detection store.
             Classification errors are reported in the body with status 200 so browser
             clients always get JSON back.
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"
)

const serviceName = "URL Risk Engine API"

// API holds the components the handlers need. store and limiter may be nil.
type API struct {
	engine  *Engine
	store   DetectionStore
	limiter *LimiterManager
	cfg     ServerConfig
	started time.Time
}

func NewAPI(engine *Engine, store DetectionStore, limiter *LimiterManager, cfg ServerConfig) *API {
	return &API{
		engine:  engine,
		store:   store,
		limiter: limiter,
		cfg:     cfg,
		started: time.Now(),
	}
}

// Handler returns the routed mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /predict", a.handlePredict)
	mux.HandleFunc("GET /api", a.handleInfo)
	mux.HandleFunc("GET /test-samples", a.handleTestSamples)
	mux.HandleFunc("GET /logs", a.handleLogs)
	mux.HandleFunc("GET /statistics", a.handleStatistics)
	mux.HandleFunc("GET /database/status", a.handleDatabaseStatus)
	mux.HandleFunc("GET /healthz", a.handleHealth)

	if a.cfg.RobotsTxt {
		mux.HandleFunc("GET /robots.txt", handleRobotsTxt)
	}

	var h http.Handler = mux
	h = a.limitMiddleware(h)
	h = bodyLimitMiddleware(h, a.cfg.MaxBodyBytes)
	h = accessLogMiddleware(h)
	h = recoverMiddleware(h)
	return h
}

// --- Responses ---

type predictFeatures struct {
	URLLength         int     `json:"url_length"`
	DomainLength      int     `json:"domain_length"`
	SpecialCharacters int     `json:"special_characters"`
	DotsInURL         int     `json:"dots_in_url"`
	HyphensInURL      int     `json:"hyphens_in_url"`
	URLEntropy        float64 `json:"url_entropy"`
	DomainEntropy     float64 `json:"domain_entropy"`
}

type predictResponse struct {
	URL                 string          `json:"url"`
	Result              string          `json:"result"`
	PhishingProbability float64         `json:"phishing_probability"`
	RiskLevel           RiskLevel       `json:"risk_level"`
	AdvancedRiskFactors []string        `json:"advanced_risk_factors,omitempty"`
	Features            predictFeatures `json:"features"`
	Identity            HostIdentity    `json:"identity"`
	Logged              bool            `json:"logged"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Logged bool   `json:"logged"`
}

type sampleResult struct {
	URL                 string    `json:"url"`
	Result              string    `json:"result,omitempty"`
	Probability         float64   `json:"probability"`
	RiskLevel           RiskLevel `json:"risk_level,omitempty"`
	AdvancedRiskFactors []string  `json:"advanced_risk_factors"`
	Error               string    `json:"error,omitempty"`
}

func newPredictResponse(a *Assessment) predictResponse {
	s := a.Summary
	return predictResponse{
		URL:                 a.URL,
		Result:              a.Verdict.Label(),
		PhishingProbability: roundTo(a.Probability, 3),
		RiskLevel:           a.RiskLevel,
		AdvancedRiskFactors: a.Findings,
		Features: predictFeatures{
			URLLength:         s.URLLength,
			DomainLength:      s.DomainLength,
			SpecialCharacters: s.SpecialCharacters,
			DotsInURL:         s.DotsInURL,
			HyphensInURL:      s.HyphensInURL,
			URLEntropy:        roundTo(s.URLEntropy, 2),
			DomainEntropy:     roundTo(s.DomainEntropy, 2),
		},
		Identity: a.Identity,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		LogDebug("[API] Failed to write response: %v", err)
	}
}

// --- Handlers ---

func handleRobotsTxt(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("User-agent: *\nDisallow: /\n"))
}

// readURLField accepts a form field or a JSON body carrying "url".
func readURLField(r *http.Request) (string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var body struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", errors.New("invalid JSON body")
		}
		return body.URL, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", errors.New("invalid form body")
	}
	return r.PostFormValue("url"), nil
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	raw, err := readURLField(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if strings.TrimSpace(raw) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "field 'url' is required"})
		return
	}

	timeout := a.cfg.parsedTimeout
	if timeout <= 0 {
		timeout = DefaultServerTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	assessment, err := a.engine.Analyze(ctx, raw)
	if err != nil {
		LogWarn("[API] Analysis of %q failed: %v", raw, err)
		writeJSON(w, http.StatusOK, errorResponse{Error: err.Error()})
		return
	}

	resp := newPredictResponse(assessment)
	if a.store != nil {
		ip := ""
		if peer := clientIP(r, a.trusted); peer != nil {
			ip = peer.String()
		}
		rec := NewDetectionRecord(assessment, r.UserAgent(), ip)
		if err := a.store.Record(ctx, rec); err != nil {
			LogWarn("[STORE] Failed to log detection for %s: %v", raw, err)
		} else {
			resp.Logged = true
		}
	}

	LogInfo("[API] %s -> %s (p=%.3f, score=%d)", raw, resp.Result, assessment.Probability, assessment.RiskScore)
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":    serviceName,
		"classifier": a.engine.Classifier().Name(),
		"features": []string{
			"URL normalization and 41-column lexical feature extraction",
			"Domain policy for whitelisted, educational, government and organization hosts",
			"Weighted rule engine for brand impersonation, suspicious TLDs and keywords",
			"IDN/Punycode and mixed-script host reporting",
			"Pluggable classifier blended with the rule score",
		},
		"endpoints": map[string]string{
			"predict":         "/predict (POST)",
			"test_samples":    "/test-samples (GET)",
			"logs":            "/logs?limit=N (GET)",
			"statistics":      "/statistics (GET)",
			"database_status": "/database/status (GET)",
			"health":          "/healthz (GET)",
		},
	})
}

func (a *API) handleTestSamples(w http.ResponseWriter, r *http.Request) {
	samples := getTestSampleURLs()
	results := make([]sampleResult, 0, len(samples))
	for _, u := range samples {
		assessment, err := a.engine.Analyze(r.Context(), u)
		if err != nil {
			results = append(results, sampleResult{URL: u, Error: err.Error()})
			continue
		}
		findings := assessment.Findings
		if findings == nil {
			findings = []string{}
		}
		results = append(results, sampleResult{
			URL:                 u,
			Result:              assessment.Verdict.Label(),
			Probability:         roundTo(assessment.Probability, 3),
			RiskLevel:           assessment.RiskLevel,
			AdvancedRiskFactors: findings,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"test_results": results})
}

func (a *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "detection store not configured"})
		return
	}
	limit := defaultLogLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be an integer"})
			return
		}
		limit = n
	}
	logs, err := a.store.Recent(r.Context(), clampLogLimit(limit))
	if err != nil {
		LogError("[STORE] Failed to read detection logs: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to retrieve logs"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_retrieved": len(logs),
		"logs":            logs,
	})
}

func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"reference_fingerprint": a.engine.ReferenceSets().Fingerprint(),
	}
	if stats, ok := a.engine.CacheStats(); ok {
		body["cache"] = stats
	}
	if a.store == nil {
		writeJSON(w, http.StatusOK, body)
		return
	}
	stats, err := a.store.Statistics(r.Context())
	if err != nil {
		LogError("[STORE] Failed to compute statistics: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to retrieve statistics"})
		return
	}
	body["statistics"] = stats
	writeJSON(w, http.StatusOK, body)
}

func (a *API) handleDatabaseStatus(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "unavailable",
			"message":   "detection store not configured",
			"connected": false,
		})
		return
	}
	driver := ""
	if d, ok := a.store.(interface{ Driver() string }); ok {
		driver = d.Driver()
	}
	if err := a.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":        "error",
			"message":       err.Error(),
			"connected":     false,
			"database_type": driver,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "connected",
		"message":       "ok",
		"connected":     true,
		"database_type": driver,
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(a.started).Round(time.Second).String(),
	}
	if rc, ok := a.engine.Classifier().(*RemoteClassifier); ok {
		body["classifier_breaker"] = rc.State()
	}
	writeJSON(w, http.StatusOK, body)
}

// --- Middleware ---

func (a *API) trusted(ip net.IP) bool {
	return a.limiter != nil && a.limiter.IsTrusted(ip)
}

func (a *API) limitMiddleware(next http.Handler) http.Handler {
	if a.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r, a.trusted)
		action, delay, reason := a.limiter.Check(ip)

		if action == ActionDrop {
			LogWarn("[LIMIT] DROPPED request from %s | Reason: %s", ip, reason)
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many requests"})
			return
		}

		if action == ActionDelay && delay > 0 {
			if IsDebugEnabled() {
				LogDebug("[LIMIT] DELAYING request from %s by %v | Reason: %s", ip, delay, reason)
			}
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-r.Context().Done():
				t.Stop()
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func bodyLimitMiddleware(next http.Handler, limit int64) http.Handler {
	if limit <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsDebugEnabled() {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		LogDebug("[API] %s %s %s -> %d (%v)", r.RemoteAddr, r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				LogError("[API] Panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
