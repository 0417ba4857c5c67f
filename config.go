/*
File: config.go
Version: 4.0.0
Description: YAML configuration: structures, defaults and duration parsing.
             Bad durations fall back to their default with a [CONFIG] warning rather than
             failing start-up; structural errors (unknown modes, missing files) do fail.
*/

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// --- Configuration Structures ---

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Engine     EngineConfig     `yaml:"engine"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Cache      CacheConfig      `yaml:"cache"`
	Store      StoreConfig      `yaml:"store"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

type ListenerConfig struct {
	Address  StringOrSlice `yaml:"address"`
	Port     IntOrSlice    `yaml:"port"`
	Protocol string        `yaml:"protocol"` // http, https, http3
}

type ServerConfig struct {
	Listeners []ListenerConfig `yaml:"listeners"`

	TLS struct {
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
	} `yaml:"tls"`

	Timeout      string `yaml:"timeout"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
	RobotsTxt    bool   `yaml:"robots_txt"`

	parsedTimeout time.Duration
}

type LoggingConfig struct {
	Level   string        `yaml:"level"`
	Format  string        `yaml:"format"` // text or json
	Outputs StringOrSlice `yaml:"outputs"`

	File struct {
		Path        string `yaml:"path"`
		Permissions uint32 `yaml:"permissions"`
	} `yaml:"file"`

	Syslog struct {
		Network  string `yaml:"network"`
		Address  string `yaml:"address"`
		Tag      string `yaml:"tag"`
		Facility int    `yaml:"facility"`
	} `yaml:"syslog"`
}

type EngineConfig struct {
	ReferenceFile string `yaml:"reference_file"`
	ReloadSignal  bool   `yaml:"reload_signal"` // reload reference_file on SIGHUP
}

type ClassifierConfig struct {
	Mode      string                 `yaml:"mode"` // constant, logistic, remote
	Constant  float64                `yaml:"constant"`
	ModelFile string                 `yaml:"model_file"`
	Remote    RemoteClassifierConfig `yaml:"remote"`
}

type RemoteClassifierConfig struct {
	URL      string        `yaml:"url"`
	Protocol string        `yaml:"protocol"` // http or http3
	Timeout  string        `yaml:"timeout"`
	Insecure bool          `yaml:"insecure"`
	Breaker  BreakerConfig `yaml:"breaker"`

	parsedTimeout time.Duration
}

type BreakerConfig struct {
	MaxRequests  uint32  `yaml:"max_requests"`
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	FailureRatio float64 `yaml:"failure_ratio"`
	MinRequests  uint32  `yaml:"min_requests"`

	parsedInterval time.Duration
	parsedTimeout  time.Duration
}

type CacheConfig struct {
	Enabled bool        `yaml:"enabled"`
	Size    int         `yaml:"size"`
	TTL     string      `yaml:"ttl"`
	Redis   RedisConfig `yaml:"redis"`

	parsedTTL time.Duration
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type StoreConfig struct {
	Driver       string `yaml:"driver"` // none, sqlite, postgres
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	Timeout      string `yaml:"timeout"`

	parsedTimeout time.Duration
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	ClientQPS         int           `yaml:"client_qps"`
	ClientBurst       int           `yaml:"client_burst"`
	MaxGoroutines     int           `yaml:"max_goroutines"`
	HardMaxGoroutines int           `yaml:"hard_max_goroutines"`
	BaseDelay         string        `yaml:"base_delay"`
	MaxDelay          string        `yaml:"max_delay"`
	CleanupInterval   string        `yaml:"cleanup_interval"`
	ClientExpiration  string        `yaml:"client_expiration"`
	TrustedCIDRs      StringOrSlice `yaml:"trusted_cidrs"`

	parsedBaseDelay        time.Duration
	parsedMaxDelay         time.Duration
	parsedCleanupInterval  time.Duration
	parsedClientExpiration time.Duration
}

// StringOrSlice accepts either a scalar or a sequence.
type StringOrSlice []string

func (s *StringOrSlice) UnmarshalYAML(value *yaml.Node) error {
	var single string
	if err := value.Decode(&single); err == nil {
		*s = []string{single}
		return nil
	}
	var slice []string
	if err := value.Decode(&slice); err != nil {
		return err
	}
	*s = slice
	return nil
}

// IntOrSlice accepts either a scalar or a sequence.
type IntOrSlice []int

func (s *IntOrSlice) UnmarshalYAML(value *yaml.Node) error {
	var single int
	if err := value.Decode(&single); err == nil {
		*s = []int{single}
		return nil
	}
	var slice []int
	if err := value.Decode(&slice); err != nil {
		return err
	}
	*s = slice
	return nil
}

// --- Configuration Loading ---

// LoadConfig reads path and applies defaults. An empty path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	// Server
	if len(cfg.Server.Listeners) == 0 {
		cfg.Server.Listeners = []ListenerConfig{{Address: StringOrSlice{"0.0.0.0"}, Port: IntOrSlice{8000}, Protocol: "http"}}
	}
	for i := range cfg.Server.Listeners {
		l := &cfg.Server.Listeners[i]
		l.Protocol = strings.ToLower(l.Protocol)
		if l.Protocol == "" {
			l.Protocol = "http"
		}
		switch l.Protocol {
		case "http", "https", "http3":
		default:
			return fmt.Errorf("listener %d: unknown protocol %q", i, l.Protocol)
		}
		if len(l.Address) == 0 {
			l.Address = StringOrSlice{"0.0.0.0"}
		}
		if len(l.Port) == 0 {
			return fmt.Errorf("listener %d: no port configured", i)
		}
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		cfg.Server.MaxBodyBytes = 64 * 1024
	}
	cfg.Server.parsedTimeout = parseDurationDefault("server.timeout", cfg.Server.Timeout, DefaultServerTimeout)

	// Logging
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if len(cfg.Logging.Outputs) == 0 {
		cfg.Logging.Outputs = StringOrSlice{"console"}
	}

	// Classifier
	cfg.Classifier.Mode = strings.ToLower(cfg.Classifier.Mode)
	switch cfg.Classifier.Mode {
	case "":
		cfg.Classifier.Mode = "constant"
	case "constant", "logistic", "remote":
	default:
		return fmt.Errorf("unknown classifier mode %q", cfg.Classifier.Mode)
	}
	if cfg.Classifier.Mode == "logistic" && cfg.Classifier.ModelFile == "" {
		return fmt.Errorf("classifier mode logistic requires model_file")
	}
	if cfg.Classifier.Mode == "remote" && cfg.Classifier.Remote.URL == "" {
		return fmt.Errorf("classifier mode remote requires remote.url")
	}
	r := &cfg.Classifier.Remote
	r.parsedTimeout = parseDurationDefault("classifier.remote.timeout", r.Timeout, 2*time.Second)
	r.Breaker.parsedInterval = parseDurationDefault("classifier.remote.breaker.interval", r.Breaker.Interval, 60*time.Second)
	r.Breaker.parsedTimeout = parseDurationDefault("classifier.remote.breaker.timeout", r.Breaker.Timeout, 30*time.Second)

	// Cache
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Size = defaultVerdictCacheSize
	}
	cfg.Cache.parsedTTL = parseDurationDefault("cache.ttl", cfg.Cache.TTL, defaultVerdictCacheTTL)

	// Store
	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	switch cfg.Store.Driver {
	case "":
		cfg.Store.Driver = "none"
	case "none":
	case "sqlite", "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store driver %s requires dsn", cfg.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Store.MaxOpenConns <= 0 {
		cfg.Store.MaxOpenConns = 10
	}
	cfg.Store.parsedTimeout = parseDurationDefault("store.timeout", cfg.Store.Timeout, 3*time.Second)

	// Rate limit
	rl := &cfg.RateLimit
	if rl.ClientQPS <= 0 {
		rl.ClientQPS = 20
	}
	if rl.ClientBurst <= 0 {
		rl.ClientBurst = rl.ClientQPS * 2
	}
	if rl.MaxGoroutines <= 0 {
		rl.MaxGoroutines = 5000
	}
	if rl.HardMaxGoroutines <= rl.MaxGoroutines {
		rl.HardMaxGoroutines = rl.MaxGoroutines * 2
	}
	rl.parsedBaseDelay = parseDurationDefault("rate_limit.base_delay", rl.BaseDelay, 10*time.Millisecond)
	rl.parsedMaxDelay = parseDurationDefault("rate_limit.max_delay", rl.MaxDelay, 500*time.Millisecond)
	rl.parsedCleanupInterval = parseDurationDefault("rate_limit.cleanup_interval", rl.CleanupInterval, time.Minute)
	rl.parsedClientExpiration = parseDurationDefault("rate_limit.client_expiration", rl.ClientExpiration, 5*time.Minute)

	return nil
}

// parseDurationDefault parses s, or warns and returns def.
func parseDurationDefault(key, s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		LogWarn("[CONFIG] Invalid %s '%s', defaulting to %v", key, s, def)
		return def
	}
	return d
}
