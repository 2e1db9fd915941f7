// Package history keeps finished runs in a SQLite database so that runs can
// be compared over time.
package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/wesleyorama2/stampede/internal/loadtest/engine"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// goose keeps its configuration in package state.
var migrateMu sync.Mutex

// Run is the summary row of a stored run.
type Run struct {
	ID               string
	Name             string
	StartedAt        time.Time
	Duration         time.Duration
	Iterations       int64
	FailedIterations int64
	HTTPReqs         int64
	HTTPReqFailed    float64
	P95              time.Duration
	ChecksRate       float64
	MaxVUs           int
	Passed           bool
}

// Store wraps the history database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies pending
// migrations.
func Open(ctx context.Context, path string, logger log.FieldLogger) (*Store, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB, logger log.FieldLogger) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(logger)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a finished run. Saving the same run id twice replaces it.
func (s *Store) Save(ctx context.Context, result *engine.Result) error {
	if result == nil || result.Report == nil {
		return errors.New("result has no report")
	}

	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	report := result.Report
	var reqs int64
	var failedRate, p95 float64
	if t, ok := report.Trend(metrics.HTTPReqDuration); ok {
		reqs = t.Count
		failedRate = t.FailRate()
		p95 = float64(t.P95) / float64(time.Millisecond)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (
			id, name, started_at, duration_ms, iterations, failed_iterations,
			http_reqs, http_req_failed, p95_ms, checks_rate, max_vus, passed, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RunID, result.Name, result.StartTime.UTC(), result.Duration.Milliseconds(),
		report.Iterations, report.FailedIterations, reqs, failedRate, p95,
		report.ChecksRate(), result.MaxVUs, result.Passed, string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", result.RunID, err)
	}
	return nil
}

// List returns the most recent runs first. limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, name, started_at, duration_ms, iterations, failed_iterations,
		       http_reqs, http_req_failed, p95_ms, checks_rate, max_vus, passed
		FROM runs ORDER BY started_at DESC, id`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r          Run
			durationMS int64
			p95MS      float64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.StartedAt, &durationMS, &r.Iterations, &r.FailedIterations,
			&r.HTTPReqs, &r.HTTPReqFailed, &p95MS, &r.ChecksRate, &r.MaxVUs, &r.Passed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.P95 = time.Duration(p95MS * float64(time.Millisecond))
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns the full result of a stored run.
func (s *Store) Get(ctx context.Context, id string) (*engine.Result, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM runs WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", id, err)
	}

	var result engine.Result
	if err := json.Unmarshal([]byte(doc), &result); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &result, nil
}
