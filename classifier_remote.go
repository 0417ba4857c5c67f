/*
File: classifier_remote.go
Version: 1.0.0
Description: Classifier adapter for an external model server.
             POSTs the ordered columns as JSON and reads back {"probability": p}.
             Transport is HTTP/1.1+2 or HTTP/3 (QUIC). Calls go through a circuit breaker so a
             dead model server fails fast instead of tying up request goroutines.
*/

package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
	"github.com/sony/gobreaker"
)

const maxRemoteResponseBytes = 64 * 1024

type remoteRequest struct {
	Columns  []string  `json:"columns"`
	Features []float64 `json:"features"`
}

type remoteResponse struct {
	Probability *float64 `json:"probability"`
}

// RemoteClassifier calls a model server.
type RemoteClassifier struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	proto  string
}

func NewRemoteClassifier(cfg RemoteClassifierConfig) (*RemoteClassifier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote classifier url is required")
	}

	timeout := cfg.parsedTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	proto := strings.ToLower(cfg.Protocol)
	var transport http.RoundTripper
	switch proto {
	case "", "http", "https":
		proto = "http"
		transport = &http.Transport{
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: cfg.Insecure},
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        256,
			MaxIdleConnsPerHost: 64,
			IdleConnTimeout:     90 * time.Second,
		}
	case "http3", "h3":
		proto = "http3"
		transport = &http3.RoundTripper{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
			QuicConfig: &quic.Config{
				KeepAlivePeriod: 30 * time.Second,
				MaxIdleTimeout:  60 * time.Second,
			},
		}
	default:
		return nil, fmt.Errorf("unknown remote classifier protocol %q", cfg.Protocol)
	}

	return newRemoteClassifier(cfg.URL, &http.Client{Timeout: timeout, Transport: transport}, cfg.Breaker, proto), nil
}

func newRemoteClassifier(url string, client *http.Client, bc BreakerConfig, proto string) *RemoteClassifier {
	maxRequests := bc.MaxRequests
	if maxRequests == 0 {
		maxRequests = 3
	}
	minRequests := bc.MinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	ratio := bc.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	settings := gobreaker.Settings{
		Name:        "remote-classifier",
		MaxRequests: maxRequests,
		Interval:    bc.parsedInterval,
		Timeout:     bc.parsedTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= minRequests && failureRatio >= ratio)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			LogWarn("[CLASSIFIER] Circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	return &RemoteClassifier{
		url:    url,
		client: client,
		cb:     gobreaker.NewCircuitBreaker(settings),
		proto:  proto,
	}
}

func (c *RemoteClassifier) PredictProbability(ctx context.Context, features []float64) (float64, error) {
	if err := checkFeatureLength(features); err != nil {
		return 0, err
	}

	v, err := c.cb.Execute(func() (interface{}, error) {
		return c.call(ctx, features)
	})
	if err != nil {
		return 0, fmt.Errorf("remote classifier: %w", err)
	}
	return checkProbability(v.(float64))
}

func (c *RemoteClassifier) call(ctx context.Context, features []float64) (float64, error) {
	body, err := json.Marshal(remoteRequest{Columns: FeatureNames[:], Features: features})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponseBytes))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("model server returned %s", resp.Status)
	}

	var out remoteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("decode model response: %w", err)
	}
	if out.Probability == nil {
		return 0, fmt.Errorf("model response has no probability")
	}
	return *out.Probability, nil
}

func (c *RemoteClassifier) Name() string {
	return "remote(" + c.proto + " " + c.url + ")"
}

// State exposes the breaker state for /healthz.
func (c *RemoteClassifier) State() string {
	return c.cb.State().String()
}
