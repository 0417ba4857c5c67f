/*
File: store.go
Version: 1.0.0
Description: Detection log persistence.
             Every analysed URL can be recorded with its verdict, findings and headline
             features. SQLite (pure Go) for single nodes, PostgreSQL for shared deployments.
             Queries are written with '?' placeholders and rebound per driver.
*/

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DetectionStore persists assessments for /logs and /statistics.
type DetectionStore interface {
	Record(ctx context.Context, rec *DetectionRecord) error
	Recent(ctx context.Context, limit int) ([]DetectionRecord, error)
	Statistics(ctx context.Context) (*DetectionStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// DetectionRecord is one logged verdict.
type DetectionRecord struct {
	ID            string    `json:"id"`
	URL           string    `json:"url"`
	Result        string    `json:"result"`
	Confidence    float64   `json:"confidence"`
	RiskLevel     string    `json:"risk_level"`
	RiskFactors   []string  `json:"risk_factors"`
	URLLength     int       `json:"url_length"`
	DomainLength  int       `json:"domain_length"`
	SpecialChars  int       `json:"special_chars"`
	URLEntropy    float64   `json:"url_entropy"`
	DomainEntropy float64   `json:"domain_entropy"`
	Subdomains    int       `json:"subdomains"`
	UserAgent     string    `json:"user_agent"`
	IPAddress     string    `json:"ip_address"`
	CreatedAt     time.Time `json:"created_at"`
}

// DetectionStats summarises the log.
type DetectionStats struct {
	Total             int64            `json:"total_detections"`
	ByResult          map[string]int64 `json:"by_result"`
	ByRiskLevel       map[string]int64 `json:"by_risk_level"`
	AverageConfidence float64          `json:"average_confidence"`
	LastDetection     *time.Time       `json:"last_detection,omitempty"`
}

// NewDetectionRecord builds the row for a finished assessment.
func NewDetectionRecord(a *Assessment, userAgent, ip string) *DetectionRecord {
	findings := a.Findings
	if findings == nil {
		findings = []string{}
	}
	return &DetectionRecord{
		ID:            uuid.NewString(),
		URL:           a.URL,
		Result:        a.Verdict.Label(),
		Confidence:    a.Probability,
		RiskLevel:     string(a.RiskLevel),
		RiskFactors:   findings,
		URLLength:     a.Summary.URLLength,
		DomainLength:  a.Summary.DomainLength,
		SpecialChars:  a.Summary.SpecialCharacters,
		URLEntropy:    a.Summary.URLEntropy,
		DomainEntropy: a.Summary.DomainEntropy,
		Subdomains:    int(a.Features[colNumberOfSubdomains]),
		UserAgent:     userAgent,
		IPAddress:     ip,
		CreatedAt:     time.Now().UTC(),
	}
}

// detectionRow is the database shape of a DetectionRecord.
type detectionRow struct {
	ID            string         `db:"id"`
	URL           string         `db:"url"`
	Result        string         `db:"result"`
	Confidence    float64        `db:"confidence"`
	RiskLevel     string         `db:"risk_level"`
	RiskFactors   string         `db:"risk_factors"`
	URLLength     int            `db:"url_length"`
	DomainLength  int            `db:"domain_length"`
	SpecialChars  int            `db:"special_chars"`
	URLEntropy    float64        `db:"url_entropy"`
	DomainEntropy float64        `db:"domain_entropy"`
	Subdomains    int            `db:"subdomains"`
	UserAgent     sql.NullString `db:"user_agent"`
	IPAddress     sql.NullString `db:"ip_address"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r *detectionRow) toRecord() DetectionRecord {
	rec := DetectionRecord{
		ID:            r.ID,
		URL:           r.URL,
		Result:        r.Result,
		Confidence:    r.Confidence,
		RiskLevel:     r.RiskLevel,
		RiskFactors:   []string{},
		URLLength:     r.URLLength,
		DomainLength:  r.DomainLength,
		SpecialChars:  r.SpecialChars,
		URLEntropy:    r.URLEntropy,
		DomainEntropy: r.DomainEntropy,
		Subdomains:    r.Subdomains,
		UserAgent:     r.UserAgent.String,
		IPAddress:     r.IPAddress.String,
		CreatedAt:     r.CreatedAt,
	}
	if r.RiskFactors != "" {
		if err := json.Unmarshal([]byte(r.RiskFactors), &rec.RiskFactors); err != nil {
			LogWarn("[STORE] Undecodable risk_factors for %s: %v", r.ID, err)
		}
	}
	return rec
}

var schemas = map[string]string{
	"sqlite": `CREATE TABLE IF NOT EXISTS detections (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		result TEXT NOT NULL,
		confidence REAL NOT NULL,
		risk_level TEXT NOT NULL,
		risk_factors TEXT NOT NULL,
		url_length INTEGER NOT NULL,
		domain_length INTEGER NOT NULL,
		special_chars INTEGER NOT NULL,
		url_entropy REAL NOT NULL,
		domain_entropy REAL NOT NULL,
		subdomains INTEGER NOT NULL,
		user_agent TEXT,
		ip_address TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	"postgres": `CREATE TABLE IF NOT EXISTS detections (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		result TEXT NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		risk_level TEXT NOT NULL,
		risk_factors TEXT NOT NULL,
		url_length INTEGER NOT NULL,
		domain_length INTEGER NOT NULL,
		special_chars INTEGER NOT NULL,
		url_entropy DOUBLE PRECISION NOT NULL,
		domain_entropy DOUBLE PRECISION NOT NULL,
		subdomains INTEGER NOT NULL,
		user_agent TEXT,
		ip_address TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

const createdAtIndex = `CREATE INDEX IF NOT EXISTS idx_detections_created_at ON detections (created_at)`

// SQLStore implements DetectionStore on database/sql through sqlx.
type SQLStore struct {
	db      *sqlx.DB
	driver  string
	timeout time.Duration
}

// OpenSQLStore connects, applies pool limits and creates the schema.
func OpenSQLStore(ctx context.Context, cfg StoreConfig) (*SQLStore, error) {
	var driverName string
	switch cfg.Driver {
	case "sqlite":
		driverName = "sqlite"
	case "postgres":
		driverName = "pgx"
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}

	db, err := sqlx.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == "sqlite" {
		// Single writer; also keeps ":memory:" databases on one connection
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	if cfg.Driver != "sqlite" {
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	timeout := cfg.parsedTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	s := &SQLStore{db: db, driver: cfg.Driver, timeout: timeout}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	LogInfo("[STORE] Detection log ready (driver: %s)", cfg.Driver)
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, schemas[s.driver]); err != nil {
		return fmt.Errorf("create detections table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createdAtIndex); err != nil {
		return fmt.Errorf("create detections index: %w", err)
	}
	return nil
}

func (s *SQLStore) Record(ctx context.Context, rec *DetectionRecord) error {
	if rec == nil {
		return errors.New("nil detection record")
	}
	factors, err := json.Marshal(rec.RiskFactors)
	if err != nil {
		return fmt.Errorf("encode risk factors: %w", err)
	}

	row := detectionRow{
		ID:            rec.ID,
		URL:           rec.URL,
		Result:        rec.Result,
		Confidence:    rec.Confidence,
		RiskLevel:     rec.RiskLevel,
		RiskFactors:   string(factors),
		URLLength:     rec.URLLength,
		DomainLength:  rec.DomainLength,
		SpecialChars:  rec.SpecialChars,
		URLEntropy:    rec.URLEntropy,
		DomainEntropy: rec.DomainEntropy,
		Subdomains:    rec.Subdomains,
		UserAgent:     sql.NullString{String: rec.UserAgent, Valid: rec.UserAgent != ""},
		IPAddress:     sql.NullString{String: rec.IPAddress, Valid: rec.IPAddress != ""},
		CreatedAt:     rec.CreatedAt,
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err = s.db.NamedExecContext(ctx, `INSERT INTO detections
		(id, url, result, confidence, risk_level, risk_factors, url_length, domain_length,
		 special_chars, url_entropy, domain_entropy, subdomains, user_agent, ip_address, created_at)
		VALUES
		(:id, :url, :result, :confidence, :risk_level, :risk_factors, :url_length, :domain_length,
		 :special_chars, :url_entropy, :domain_entropy, :subdomains, :user_agent, :ip_address, :created_at)`, row)
	if err != nil {
		return fmt.Errorf("insert detection: %w", err)
	}
	return nil
}

// Recent returns the newest records first. limit is clamped to [1, 1000].
func (s *SQLStore) Recent(ctx context.Context, limit int) ([]DetectionRecord, error) {
	limit = clampLogLimit(limit)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []detectionRow
	query := s.db.Rebind(`SELECT * FROM detections ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("select detections: %w", err)
	}

	out := make([]DetectionRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (s *SQLStore) Statistics(ctx context.Context) (*DetectionStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stats := &DetectionStats{
		ByResult:    make(map[string]int64),
		ByRiskLevel: make(map[string]int64),
	}

	var agg struct {
		Total int64           `db:"total"`
		Avg   sql.NullFloat64 `db:"avg_confidence"`
	}
	if err := s.db.GetContext(ctx, &agg, `SELECT COUNT(*) AS total, AVG(confidence) AS avg_confidence FROM detections`); err != nil {
		return nil, fmt.Errorf("count detections: %w", err)
	}
	stats.Total = agg.Total
	stats.AverageConfidence = agg.Avg.Float64

	type bucket struct {
		Key   string `db:"k"`
		Count int64  `db:"n"`
	}
	for _, g := range []struct {
		column string
		dst    map[string]int64
	}{{"result", stats.ByResult}, {"risk_level", stats.ByRiskLevel}} {
		var buckets []bucket
		q := fmt.Sprintf(`SELECT %s AS k, COUNT(*) AS n FROM detections GROUP BY %s`, g.column, g.column)
		if err := s.db.SelectContext(ctx, &buckets, q); err != nil {
			return nil, fmt.Errorf("group detections by %s: %w", g.column, err)
		}
		for _, b := range buckets {
			g.dst[b.Key] = b.Count
		}
	}

	var last []time.Time
	if err := s.db.SelectContext(ctx, &last, `SELECT created_at FROM detections ORDER BY created_at DESC LIMIT 1`); err != nil {
		return nil, fmt.Errorf("last detection: %w", err)
	}
	if len(last) > 0 {
		t := last[0]
		stats.LastDetection = &t
	}
	return stats, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Driver() string {
	return s.driver
}

func clampLogLimit(limit int) int {
	if limit <= 0 {
		return defaultLogLimit
	}
	if limit > maxLogLimit {
		return maxLogLimit
	}
	return limit
}
