package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arloliu/go-ivscan/logger"
	"github.com/arloliu/go-ivscan/scan"
)

// timeLayout has fixed width so that stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunRecord is a stored run.
type RunRecord struct {
	ID         string
	Plan       PlanRecord
	State      string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Points     int
}

// Finished reports whether FinishRun was recorded for the run.
func (r RunRecord) Finished() bool { return !r.FinishedAt.IsZero() }

// PlanRecord is the JSON form of scan.RampPlan kept with every run.
type PlanRecord struct {
	Voltages     []float64     `json:"voltages"`
	TestVoltage  float64       `json:"test_voltage"`
	Settle       time.Duration `json:"settle"`
	TestDuration time.Duration `json:"test_duration"`
	Repetitions  int           `json:"repetitions"`
	RampDown     bool          `json:"ramp_down"`
}

func planRecord(p scan.RampPlan) PlanRecord {
	return PlanRecord{
		Voltages:     p.Voltages,
		TestVoltage:  p.TestVoltage,
		Settle:       p.Settle,
		TestDuration: p.TestDuration,
		Repetitions:  p.Repetitions,
		RampDown:     p.RampDown,
	}
}

// RampPlan converts the record back into a plan.
func (p PlanRecord) RampPlan() scan.RampPlan {
	return scan.RampPlan{
		Voltages:     p.Voltages,
		TestVoltage:  p.TestVoltage,
		Settle:       p.Settle,
		TestDuration: p.TestDuration,
		Repetitions:  p.Repetitions,
		RampDown:     p.RampDown,
	}
}

// SQLiteStore is a scan.Sink writing to SQLite. It is safe for concurrent use.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
	closed atomic.Bool
}

var _ scan.Sink = (*SQLiteStore)(nil)

// Open opens or creates the database at path. The parent directory is
// created when missing. A nil logger selects the default logger.
func Open(path string, l logger.Logger) (*SQLiteStore, error) {
	if l == nil {
		l = logger.GetLogger()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: l.With("component", "store", "path", path)}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			plan_json TEXT NOT NULL,
			state TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS points (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			stage INTEGER NOT NULL,
			voltage REAL NOT NULL,
			mean REAL NOT NULL,
			stddev REAL NOT NULL,
			samples INTEGER NOT NULL,
			PRIMARY KEY (run_id, stage)
		);
		CREATE TABLE IF NOT EXISTS stability_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			stage INTEGER NOT NULL,
			voltage REAL NOT NULL,
			elapsed_ns INTEGER NOT NULL,
			current REAL NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_stability_run ON stability_samples(run_id);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := s.db.Exec(query)

	return err
}

func (s *SQLiteStore) check() error {
	if s.closed.Load() {
		return ErrClosed
	}

	return nil
}

// StartRun inserts the run row with state "running".
func (s *SQLiteStore) StartRun(ctx context.Context, run scan.RunInfo) error {
	if err := s.check(); err != nil {
		return err
	}

	planJSON, err := json.Marshal(planRecord(run.Plan))
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, plan_json, state, started_at) VALUES (?, ?, 'running', ?)`,
		run.ID, string(planJSON), run.StartedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to store run %s: %w", run.ID, err)
	}
	s.logger.Debug("run stored", "run_id", run.ID)

	return nil
}

// AddPoint stores one ramp point.
func (s *SQLiteStore) AddPoint(ctx context.Context, runID string, p scan.ResultPoint) error {
	if err := s.check(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO points (run_id, stage, voltage, mean, stddev, samples) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, p.Stage, p.Voltage, p.Mean, p.StdDev, p.Samples,
	)
	if err != nil {
		return fmt.Errorf("failed to store point %d of run %s: %w", p.Stage, runID, err)
	}

	return nil
}

// AddStabilitySample stores one stability sample.
func (s *SQLiteStore) AddStabilitySample(ctx context.Context, runID string, sample scan.StabilitySample) error {
	if err := s.check(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO stability_samples (run_id, stage, voltage, elapsed_ns, current, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, sample.Stage, sample.Voltage, int64(sample.Elapsed), sample.Current, int64(sample.Timestamp), //nolint:gosec
	)
	if err != nil {
		return fmt.Errorf("failed to store stability sample of run %s: %w", runID, err)
	}

	return nil
}

// FinishRun records the final state and error of the run.
func (s *SQLiteStore) FinishRun(ctx context.Context, result *scan.Result) error {
	if err := s.check(); err != nil {
		return err
	}

	errText := ""
	if result.Err != nil {
		errText = result.Err.Error()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, error = ?, finished_at = ? WHERE id = ?`,
		result.State.String(), errText, result.FinishedAt.UTC().Format(timeLayout), result.RunID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", result.RunID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, result.RunID)
	}
	s.logger.Debug("run finished", "run_id", result.RunID, "state", result.State)

	return nil
}

// Run returns the stored run with its point count.
func (s *SQLiteStore) Run(ctx context.Context, id string) (RunRecord, error) {
	if err := s.check(); err != nil {
		return RunRecord{}, err
	}

	row := s.db.QueryRowContext(ctx, runQuery+` WHERE r.id = ? GROUP BY r.id`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return rec, err
}

// Runs returns up to limit runs, most recent first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, runQuery+` GROUP BY r.id ORDER BY r.started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			s.logger.Error("failed to scan run row", "error", err)
			continue
		}
		runs = append(runs, rec)
	}

	return runs, rows.Err()
}

const runQuery = `
	SELECT r.id, r.plan_json, r.state, r.error, r.started_at, r.finished_at, COUNT(p.stage)
	FROM runs r LEFT JOIN points p ON p.run_id = r.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var (
		rec                             RunRecord
		planJSON, startedAt, finishedAt string
	)
	if err := row.Scan(&rec.ID, &planJSON, &rec.State, &rec.Error, &startedAt, &finishedAt, &rec.Points); err != nil {
		return RunRecord{}, err
	}

	if err := json.Unmarshal([]byte(planJSON), &rec.Plan); err != nil {
		return RunRecord{}, fmt.Errorf("failed to unmarshal plan of run %s: %w", rec.ID, err)
	}

	var err error
	if rec.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return RunRecord{}, fmt.Errorf("failed to parse start time of run %s: %w", rec.ID, err)
	}
	if finishedAt != "" {
		if rec.FinishedAt, err = time.Parse(timeLayout, finishedAt); err != nil {
			return RunRecord{}, fmt.Errorf("failed to parse finish time of run %s: %w", rec.ID, err)
		}
	}

	return rec, nil
}

// Points returns the ramp points of a run in stage order.
func (s *SQLiteStore) Points(ctx context.Context, runID string) ([]scan.ResultPoint, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, voltage, mean, stddev, samples FROM points WHERE run_id = ? ORDER BY stage ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	defer rows.Close()

	var points []scan.ResultPoint
	for rows.Next() {
		var p scan.ResultPoint
		if err := rows.Scan(&p.Stage, &p.Voltage, &p.Mean, &p.StdDev, &p.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan point: %w", err)
		}
		points = append(points, p)
	}

	return points, rows.Err()
}

// StabilitySamples returns the stability samples of a run in insertion order.
func (s *SQLiteStore) StabilitySamples(ctx context.Context, runID string) ([]scan.StabilitySample, error) {
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, voltage, elapsed_ns, current, timestamp FROM stability_samples WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stability samples: %w", err)
	}
	defer rows.Close()

	var samples []scan.StabilitySample
	for rows.Next() {
		var (
			sample      scan.StabilitySample
			elapsed, ts int64
		)
		if err := rows.Scan(&sample.Stage, &sample.Voltage, &elapsed, &sample.Current, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan stability sample: %w", err)
		}
		sample.Elapsed = time.Duration(elapsed)
		sample.Timestamp = uint64(ts) //nolint:gosec
		samples = append(samples, sample)
	}

	return samples, rows.Err()
}

// DeleteBefore removes runs started before cutoff together with their points
// and samples. It returns the number of runs removed.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old runs: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("old runs deleted", "count", n)
	}

	return n, nil
}

// Close closes the database. It is safe to call more than once.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	return s.db.Close()
}
