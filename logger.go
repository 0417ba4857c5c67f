/*
File: logger.go
Version: 2.0.0
Description: Structured multi-output logging on log/slog.
             Records are queued to a buffered channel and written by a single goroutine, so a
             slow file or syslog target never stalls request handling. When the queue is full
             records are dropped and counted.
*/

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const logBufferSize = 65536

// logLevel is shared by every handler so the level can change after start-up.
var logLevel = new(slog.LevelVar)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

var (
	logBuffer   chan slog.Record
	logWg       sync.WaitGroup
	logDone     chan struct{}
	logDropped  atomic.Uint64
	asyncReady  bool
	logShutdown sync.Once
)

// InitLogger builds the handler chain described by cfg and switches to async writing.
func InitLogger(cfg LoggingConfig) error {
	logLevel.Set(parseLogLevel(cfg.Level))

	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = StringOrSlice{"console"}
	}

	var handlers []slog.Handler
	seen := make(map[string]bool)
	for _, output := range outputs {
		output = strings.ToLower(strings.TrimSpace(output))
		if seen[output] {
			continue
		}
		seen[output] = true

		h, err := newOutputHandler(output, cfg)
		if err != nil {
			return err
		}
		handlers = append(handlers, h)
	}

	var final slog.Handler = handlers[0]
	if len(handlers) > 1 {
		final = &MultiHandler{handlers: handlers}
	}

	logBuffer = make(chan slog.Record, logBufferSize)
	logDone = make(chan struct{})
	logWg.Add(1)
	go func() {
		defer logWg.Done()
		drainLogs(final)
	}()
	asyncReady = true

	logger = slog.New(&AsyncHandler{handler: final, buffer: logBuffer})
	slog.SetDefault(logger)
	return nil
}

func newOutputHandler(output string, cfg LoggingConfig) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: logLevel}
	noTime := &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// syslog stamps its own time
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	}

	switch output {
	case "console":
		return formatHandler(os.Stderr, cfg.Format, opts), nil

	case "file":
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("file logging enabled but no path specified")
		}
		perm := os.FileMode(0644)
		if cfg.File.Permissions > 0 {
			perm = os.FileMode(cfg.File.Permissions)
		}
		f, err := os.OpenFile(cfg.File.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return formatHandler(f, cfg.Format, opts), nil

	case "syslog":
		local := cfg.Syslog.Network == "" || cfg.Syslog.Network == "unix" ||
			cfg.Syslog.Network == "unixgram" || cfg.Syslog.Address == "/dev/log"
		if local && runtime.GOOS != "windows" {
			w, err := syslog.New(syslog.Priority(cfg.Syslog.Facility<<3)|syslog.LOG_INFO, cfg.Syslog.Tag)
			if err != nil {
				return nil, fmt.Errorf("failed to connect to local syslog: %w", err)
			}
			return slog.NewTextHandler(&localSyslog{w: w}, noTime), nil
		}
		rw := &SyslogWriter{
			Network:  cfg.Syslog.Network,
			Address:  cfg.Syslog.Address,
			Tag:      cfg.Syslog.Tag,
			Facility: cfg.Syslog.Facility,
			Hostname: "localhost",
		}
		if h, err := os.Hostname(); err == nil {
			rw.Hostname = h
		}
		return slog.NewTextHandler(rw, noTime), nil
	}
	return nil, fmt.Errorf("unknown log output %q", output)
}

func formatHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetLogLevel overrides the configured level, e.g. from a command line flag.
func SetLogLevel(level string) {
	logLevel.Set(parseLogLevel(level))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func drainLogs(h slog.Handler) {
	ctx := context.Background()
	for {
		select {
		case r := <-logBuffer:
			_ = h.Handle(ctx, r)
		case <-logDone:
			for {
				select {
				case r := <-logBuffer:
					_ = h.Handle(ctx, r)
				default:
					return
				}
			}
		}
	}
}

// ShutdownLogger flushes queued records. Safe to call more than once.
func ShutdownLogger() {
	if !asyncReady {
		return
	}
	logShutdown.Do(func() {
		close(logDone)
		logWg.Wait()
		if n := logDropped.Load(); n > 0 {
			fmt.Fprintf(os.Stderr, "[SYSTEM] %d log records dropped (buffer full)\n", n)
		}
		// Late records (exit errors) go straight to stderr
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	})
}

// AsyncHandler queues records for drainLogs.
type AsyncHandler struct {
	handler slog.Handler
	buffer  chan slog.Record
}

func (h *AsyncHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.handler.Enabled(ctx, l)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	select {
	case h.buffer <- r.Clone():
	default:
		logDropped.Add(1)
	}
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{handler: h.handler.WithAttrs(attrs), buffer: h.buffer}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{handler: h.handler.WithGroup(name), buffer: h.buffer}
}

// MultiHandler fans a record out to every enabled handler.
type MultiHandler struct {
	handlers []slog.Handler
}

func (m *MultiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithAttrs(attrs)
	}
	return &MultiHandler{handlers: out}
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		out[i] = h.WithGroup(name)
	}
	return &MultiHandler{handlers: out}
}

// --- Level checks ---

func IsDebugEnabled() bool {
	return logLevel.Level() <= slog.LevelDebug
}

// --- printf-style wrappers ---

func logWithCaller(level slog.Level, format string, v ...interface{}) {
	if !logger.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, fmt.Sprintf(format, v...), pcs[0])
	_ = logger.Handler().Handle(context.Background(), r)
}

func LogDebug(format string, v ...interface{}) {
	logWithCaller(slog.LevelDebug, format, v...)
}

func LogInfo(format string, v ...interface{}) {
	logWithCaller(slog.LevelInfo, format, v...)
}

func LogWarn(format string, v ...interface{}) {
	logWithCaller(slog.LevelWarn, format, v...)
}

func LogError(format string, v ...interface{}) {
	logWithCaller(slog.LevelError, format, v...)
}

func LogFatal(format string, v ...interface{}) {
	logWithCaller(slog.LevelError, format, v...)
	ShutdownLogger()
	os.Exit(1)
}

// --- syslog ---

// severityOf maps a text-handler line to a syslog severity and strips the level attr.
func severityOf(line string) (int, string) {
	for _, lv := range []struct {
		tag string
		sev int
	}{{"level=ERROR", 3}, {"level=WARN", 4}, {"level=INFO", 6}, {"level=DEBUG", 7}} {
		if strings.Contains(line, lv.tag) {
			return lv.sev, strings.TrimSpace(strings.Replace(line, lv.tag, "", 1))
		}
	}
	return 6, strings.TrimSpace(line)
}

type localSyslog struct {
	w *syslog.Writer
}

func (l *localSyslog) Write(p []byte) (int, error) {
	sev, msg := severityOf(string(p))
	var err error
	switch sev {
	case 3:
		err = l.w.Err(msg)
	case 4:
		err = l.w.Warning(msg)
	case 7:
		err = l.w.Debug(msg)
	default:
		err = l.w.Info(msg)
	}
	return len(p), err
}

// SyslogWriter sends RFC 3164 style lines to a remote collector, reconnecting once on failure.
type SyslogWriter struct {
	Network  string
	Address  string
	Tag      string
	Hostname string
	Facility int

	mu   sync.Mutex
	conn net.Conn
}

func (w *SyslogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sev, msg := severityOf(string(p))
	line := fmt.Sprintf("<%d>%s %s %s: %s\n", w.Facility*8+sev, time.Now().Format(time.RFC3339), w.Hostname, w.Tag, msg)

	for attempt := 0; attempt < 2; attempt++ {
		if w.conn == nil {
			conn, err := net.DialTimeout(w.Network, w.Address, time.Second)
			if err != nil {
				// Logging must never fail the caller
				return len(p), nil
			}
			w.conn = conn
		}
		if _, err := io.WriteString(w.conn, line); err == nil {
			return len(p), nil
		}
		w.conn.Close()
		w.conn = nil
	}
	return len(p), nil
}
