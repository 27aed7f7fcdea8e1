// Package history records run results in a local sqlite database so
// regressions and flaky cases can be spotted across runs.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"goldtest/internal/logging"
	"goldtest/internal/run"
)

// Store manages the run-history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates or opens the history database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		suite TEXT NOT NULL,
		mode INTEGER NOT NULL,
		started DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		passed INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		new INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		errors INTEGER NOT NULL,
		blessed INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS case_results (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		outcome TEXT NOT NULL,
		message TEXT,
		exit_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_case_results_run ON case_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_case_results_name ON case_results(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores a run summary and its case results in one transaction.
func (s *Store) Record(summary *run.Summary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO runs (id, suite, mode, started, duration_ms, passed, failed, new, skipped, errors, blessed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.RunID, summary.Suite, int(summary.Mode), summary.Started,
		summary.Duration.Milliseconds(), summary.Passed, summary.Failed,
		summary.New, summary.Skipped, summary.Errors, summary.Blessed,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO case_results (run_id, name, outcome, message, exit_code, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare case insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range summary.Results {
		if _, err := stmt.Exec(summary.RunID, res.Case.Name, string(res.Outcome),
			res.Message, res.ExitCode, res.Duration.Milliseconds()); err != nil {
			return fmt.Errorf("insert case result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history transaction: %w", err)
	}

	logging.History("Recorded run %s (%d cases)", summary.RunID, len(summary.Results))
	return nil
}

// RunRecord is a stored run summary row.
type RunRecord struct {
	ID       string
	Suite    string
	Started  time.Time
	Duration time.Duration
	Passed   int
	Failed   int
	New      int
	Skipped  int
	Errors   int
	Blessed  int
}

// RecentRuns returns up to n runs, newest first.
func (s *Store) RecentRuns(n int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, suite, started, duration_ms, passed, failed, new, skipped, errors, blessed
		 FROM runs ORDER BY started DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var durationMs int64
		if err := rows.Scan(&r.ID, &r.Suite, &r.Started, &durationMs,
			&r.Passed, &r.Failed, &r.New, &r.Skipped, &r.Errors, &r.Blessed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// CaseOutcome is one stored outcome of a case.
type CaseOutcome struct {
	RunID   string
	Started time.Time
	Outcome string
	Message string
}

// CaseHistory returns the outcomes of one case across recent runs,
// newest first.
func (s *Store) CaseHistory(name string, n int) ([]CaseOutcome, error) {
	rows, err := s.db.Query(
		`SELECT c.run_id, r.started, c.outcome, COALESCE(c.message, '')
		 FROM case_results c JOIN runs r ON r.id = c.run_id
		 WHERE c.name = ?
		 ORDER BY r.started DESC LIMIT ?`, name, n)
	if err != nil {
		return nil, fmt.Errorf("query case history: %w", err)
	}
	defer rows.Close()

	var out []CaseOutcome
	for rows.Next() {
		var c CaseOutcome
		if err := rows.Scan(&c.RunID, &c.Started, &c.Outcome, &c.Message); err != nil {
			return nil, fmt.Errorf("scan case outcome: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FlakyCase names a case with mixed pass/fail outcomes in the window.
type FlakyCase struct {
	Name   string
	Passes int
	Fails  int
}

// FlakyCases returns cases that both passed and failed within the last
// n runs, ordered by number of failures.
func (s *Store) FlakyCases(n int) ([]FlakyCase, error) {
	rows, err := s.db.Query(
		`SELECT name,
		        SUM(CASE WHEN outcome = 'pass' THEN 1 ELSE 0 END) AS passes,
		        SUM(CASE WHEN outcome IN ('fail', 'timeout', 'error') THEN 1 ELSE 0 END) AS fails
		 FROM case_results
		 WHERE run_id IN (SELECT id FROM runs ORDER BY started DESC LIMIT ?)
		 GROUP BY name
		 HAVING passes > 0 AND fails > 0
		 ORDER BY fails DESC, name`, n)
	if err != nil {
		return nil, fmt.Errorf("query flaky cases: %w", err)
	}
	defer rows.Close()

	var out []FlakyCase
	for rows.Next() {
		var f FlakyCase
		if err := rows.Scan(&f.Name, &f.Passes, &f.Fails); err != nil {
			return nil, fmt.Errorf("scan flaky case: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// Prune removes all but the newest keep runs. Zero keeps everything.
func (s *Store) Prune(keep int) error {
	if keep <= 0 {
		return nil
	}
	if _, err := s.db.Exec(
		`DELETE FROM case_results WHERE run_id NOT IN
		   (SELECT id FROM runs ORDER BY started DESC LIMIT ?)`, keep); err != nil {
		return fmt.Errorf("prune case results: %w", err)
	}
	if _, err := s.db.Exec(
		`DELETE FROM runs WHERE id NOT IN
		   (SELECT id FROM runs ORDER BY started DESC LIMIT ?)`, keep); err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	return nil
}
