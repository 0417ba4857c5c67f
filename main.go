/*
File: main.go
Version: 1.1.0
Last Update: 2026-10-19
Description: Command line entry point.
             serve    runs the HTTP API on the configured listeners.
             check    analyzes URLs given as arguments and prints JSON assessments.
             features prints the ordered feature vector of one URL.
*/

package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	cfgFile      string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "urlguard",
	Short: "Lexical URL risk engine",
	Long: `urlguard scores URLs for phishing risk from their text alone. It combines a
domain policy, a weighted rule engine and a pluggable classifier into one verdict.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRuntimeConfig()
		if err != nil {
			return err
		}
		return runServe(cfg)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <url>...",
	Short: "Analyze URLs and print JSON assessments",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRuntimeConfig()
		if err != nil {
			return err
		}
		defer ShutdownLogger()

		engine, cleanup, err := buildEngine(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		for _, u := range args {
			a, err := engine.Analyze(cmd.Context(), u)
			if err != nil {
				LogWarn("[ENGINE] %s: %v", u, err)
			}
			if err := enc.Encode(a); err != nil {
				return err
			}
		}
		return nil
	},
}

var featuresCmd = &cobra.Command{
	Use:   "features <url>",
	Short: "Print the feature vector of a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fv := ExtractFeatures(NormalizeURL(args[0]))
		out := cmd.OutOrStdout()
		for i, name := range FeatureNames {
			fmt.Fprintf(out, "%s=%g\n", name, fv[i])
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); defaults apply when empty")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override logging.level (DEBUG, INFO, WARN, ERROR)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(featuresCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		LogFatal("%v", err)
	}
}

// loadRuntimeConfig reads the config and starts the logger.
func loadRuntimeConfig() (*Config, error) {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := InitLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if logLevelFlag != "" {
		SetLogLevel(logLevelFlag)
	}
	return cfg, nil
}

// buildClassifier picks the classifier named by cfg.Mode.
func buildClassifier(cfg ClassifierConfig) (Classifier, error) {
	switch cfg.Mode {
	case "logistic":
		return LoadLogisticClassifier(cfg.ModelFile)
	case "remote":
		return NewRemoteClassifier(cfg.Remote)
	default:
		return NewConstantClassifier(cfg.Constant)
	}
}

// buildEngine wires reference sets, classifier and caches. cleanup releases the caches.
func buildEngine(cfg *Config) (*Engine, func(), error) {
	refs := DefaultReferenceSets()
	if cfg.Engine.ReferenceFile != "" {
		var err error
		if refs, err = LoadReferenceSets(cfg.Engine.ReferenceFile); err != nil {
			return nil, nil, err
		}
	}

	classifier, err := buildClassifier(cfg.Classifier)
	if err != nil {
		return nil, nil, fmt.Errorf("classifier: %w", err)
	}
	LogInfo("[CLASSIFIER] Using %s", classifier.Name())

	var opts []EngineOption
	cleanup := func() {}
	if cfg.Cache.Enabled {
		opts = append(opts, WithVerdictCache(NewVerdictCache(cfg.Cache.Size, cfg.Cache.parsedTTL)))
		LogInfo("[CACHE] Verdict cache enabled (size %d, ttl %v)", cfg.Cache.Size, cfg.Cache.parsedTTL)

		if cfg.Cache.Redis.Addr != "" {
			rc := NewRedisVerdictCache(cfg.Cache.Redis, cfg.Cache.parsedTTL)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := rc.Ping(ctx); err != nil {
				// Redis errors are misses, so an unreachable server only costs latency
				LogWarn("[CACHE] Redis at %s not reachable yet: %v", cfg.Cache.Redis.Addr, err)
			} else {
				LogInfo("[CACHE] Redis tier enabled (%s)", cfg.Cache.Redis.Addr)
			}
			cancel()
			opts = append(opts, WithRedisCache(rc))
			cleanup = func() { rc.Close() }
		}
	}

	return NewEngine(refs, classifier, opts...), cleanup, nil
}

func runServe(cfg *Config) error {
	defer ShutdownLogger()

	engine, cleanup, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store DetectionStore
	if cfg.Store.Driver != "none" {
		s, err := OpenSQLStore(ctx, cfg.Store)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		defer s.Close()
		store = s
	}

	limiter, err := NewLimiter(cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("rate_limit: %w", err)
	}
	go limiter.StartCleanupRoutine(ctx)

	var tlsConfig *tls.Config
	if needsTLS(cfg.Server.Listeners) {
		if tlsConfig, err = loadTLSConfig(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile); err != nil {
			return err
		}
	}

	api := NewAPI(engine, store, limiter, cfg.Server)

	var wg sync.WaitGroup
	servers := startServers(&wg, cfg.Server, api.Handler(), tlsConfig)
	if len(servers) == 0 {
		return fmt.Errorf("no listeners could be started")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			if !cfg.Engine.ReloadSignal || cfg.Engine.ReferenceFile == "" {
				LogInfo("[ENGINE] SIGHUP ignored (reload_signal off or no reference_file)")
				continue
			}
			if err := engine.ReloadReferenceSets(cfg.Engine.ReferenceFile); err != nil {
				LogError("[ENGINE] Reload of %s failed, keeping current sets: %v", cfg.Engine.ReferenceFile, err)
			}
			continue
		}

		LogInfo("Received %v, shutting down", sig)
		break
	}

	cancel()
	shutdownServers(servers, cfg.Server.parsedTimeout)
	wg.Wait()
	LogInfo("Shutdown complete")
	return nil
}
