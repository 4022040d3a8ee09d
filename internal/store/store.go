// Package store is the SQLite-backed audit trail: every run outcome, tool
// dispatch, and agent evaluation is recorded here so sessions can be
// reconstructed after the fact.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/AlanyTan/sweteam/pkg/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the audit database.
type Store struct {
	DB *sql.DB
}

// Open opens home/state/audit.sqlite and runs pending migrations.
func Open(home string) (*Store, error) {
	dbPath := filepath.Join(home, "state", "audit.sqlite")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{DB: db}
	if err := s.initPragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

func (s *Store) initPragmas(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// mapWriteErr surfaces busy-timeout expiry as ErrConcurrency so callers can
// tell a contended database from a broken one.
func mapWriteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") {
		return fmt.Errorf("%w: %v", models.ErrConcurrency, err)
	}
	return err
}

// RecordRun inserts or replaces one run outcome.
func (s *Store) RecordRun(ctx context.Context, out models.RunOutcome) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO runs(run_id, agent, status, message, poll_count, started_at, finished_at)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  status = excluded.status,
  message = excluded.message,
  poll_count = excluded.poll_count,
  finished_at = excluded.finished_at`,
		out.RunID, out.Agent, out.Status, out.Message, out.PollCount,
		out.StartedAt.Unix(), out.FinishedAt.Unix())
	if err != nil {
		return fmt.Errorf("record run %s: %w", out.RunID, mapWriteErr(err))
	}
	return nil
}

// RecordDispatch appends one tool dispatch under a run.
func (s *Store) RecordDispatch(ctx context.Context, runID string, call models.ToolCall, res models.ToolResult) error {
	isErr := 0
	if res.IsError {
		isErr = 1
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO tool_dispatches(run_id, call_id, tool, output, is_error, duration_ms, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?)`,
		runID, call.ID, call.Name, res.Output, isErr,
		res.Duration.Milliseconds(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record dispatch %s/%s: %w", runID, call.Name, mapWriteErr(err))
	}
	return nil
}

// RecordEvaluation appends one agent evaluation.
func (s *Store) RecordEvaluation(ctx context.Context, ev models.AgentEvaluation) error {
	at := ev.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO evaluations(agent, evaluator, score, feedback, created_at)
VALUES(?, ?, ?, ?, ?)`,
		ev.Agent, ev.Evaluator, ev.Score, ev.Feedback, at.Unix())
	if err != nil {
		return fmt.Errorf("record evaluation for %s: %w", ev.Agent, mapWriteErr(err))
	}
	return nil
}

// ListRuns returns the most recent runs, newest first, optionally filtered by
// agent. limit <= 0 means a default page of 50.
func (s *Store) ListRuns(ctx context.Context, agent string, limit int) ([]models.RunOutcome, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT run_id, agent, status, message, poll_count, started_at, finished_at
FROM runs`
	args := []any{}
	if agent != "" {
		q += ` WHERE agent = ?`
		args = append(args, agent)
	}
	q += ` ORDER BY finished_at DESC, run_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.RunOutcome
	for rows.Next() {
		var r models.RunOutcome
		var started, finished int64
		if err := rows.Scan(&r.RunID, &r.Agent, &r.Status, &r.Message, &r.PollCount, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0)
		r.FinishedAt = time.Unix(finished, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DispatchRecord is one audited tool dispatch.
type DispatchRecord struct {
	RunID     string
	CallID    string
	Tool      string
	Output    string
	IsError   bool
	Duration  time.Duration
	CreatedAt time.Time
}

// ListDispatches returns the dispatches of one run in insertion order.
func (s *Store) ListDispatches(ctx context.Context, runID string) ([]DispatchRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT run_id, call_id, tool, output, is_error, duration_ms, created_at
FROM tool_dispatches WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []DispatchRecord
	for rows.Next() {
		var d DispatchRecord
		var isErr int
		var durMS, created int64
		if err := rows.Scan(&d.RunID, &d.CallID, &d.Tool, &d.Output, &isErr, &durMS, &created); err != nil {
			return nil, err
		}
		d.IsError = isErr != 0
		d.Duration = time.Duration(durMS) * time.Millisecond
		d.CreatedAt = time.Unix(created, 0)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListEvaluations returns an agent's evaluations, newest first.
func (s *Store) ListEvaluations(ctx context.Context, agent string) ([]models.AgentEvaluation, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT agent, evaluator, score, feedback, created_at
FROM evaluations WHERE agent = ? ORDER BY id DESC`, agent)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []models.AgentEvaluation
	for rows.Next() {
		var ev models.AgentEvaluation
		var created int64
		if err := rows.Scan(&ev.Agent, &ev.Evaluator, &ev.Score, &ev.Feedback, &created); err != nil {
			return nil, err
		}
		ev.CreatedAt = time.Unix(created, 0)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RunCounts returns run totals grouped by terminal status.
func (s *Store) RunCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// Migrate applies any embedded migrations not yet recorded.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store not initialized")
	}
	if _, err := s.DB.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at INTEGER NOT NULL
);`); err != nil {
		return err
	}
	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return err
	}
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	var migs []migration
	for _, f := range files {
		name := f.Name()
		if f.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		v, err := parseMigrationVersion(name)
		if err != nil {
			return err
		}
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		migs = append(migs, migration{Version: v, Name: name, SQL: string(body)})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].Version < migs[j].Version })
	for _, m := range migs {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Name, err)
		}
	}
	return nil
}

type migration struct {
	Version int
	Name    string
	SQL     string
}

func (s *Store) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?)`, m.Version, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
}

func parseMigrationVersion(filename string) (int, error) {
	base := strings.TrimSuffix(filename, ".sql")
	parts := strings.SplitN(base, "_", 2)
	v, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid migration version in %s", filename)
	}
	return v, nil
}
