// Package store keeps a SQLite journal of triggered acquisition runs and
// feature writes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	// Pure-Go SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Run is one triggered acquisition.
type Run struct {
	ID        int64      `json:"id"`
	Camera    string     `json:"camera"`
	Trigger   string     `json:"trigger"`
	Selector  string     `json:"selector"`
	Software  bool       `json:"software"`
	Frames    int64      `json:"frames"`
	Triggers  int64      `json:"triggers"`
	Allocated int        `json:"allocated"`
	Freed     int        `json:"freed"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
}

// FeatureChange is a recorded feature write.
type FeatureChange struct {
	Camera    string    `json:"camera"`
	Feature   string    `json:"feature"`
	Value     string    `json:"value"`
	ChangedAt time.Time `json:"changed_at"`
}

// Journal is the SQLite-backed store.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Journal, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		camera TEXT NOT NULL,
		trigger TEXT NOT NULL,
		selector TEXT NOT NULL DEFAULT '',
		software INTEGER NOT NULL DEFAULT 0,
		frames INTEGER NOT NULL DEFAULT 0,
		triggers INTEGER NOT NULL DEFAULT 0,
		allocated INTEGER NOT NULL DEFAULT 0,
		freed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at DATETIME NOT NULL,
		stopped_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS feature_changes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		camera TEXT NOT NULL,
		feature TEXT NOT NULL,
		value TEXT NOT NULL,
		changed_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_camera ON runs(camera);
	CREATE INDEX IF NOT EXISTS idx_feature_changes_camera ON feature_changes(camera);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Begin records the start of a run and returns its id.
func (j *Journal) Begin(ctx context.Context, r Run) (int64, error) {
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	res, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (camera, trigger, selector, software, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.Camera, r.Trigger, r.Selector, boolToInt(r.Software), r.StartedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return res.LastInsertId()
}

// Finish records the outcome of run id. runErr may be nil.
func (j *Journal) Finish(ctx context.Context, id int64, frames, triggers int64, allocated, freed int, runErr error) error {
	var errText sql.NullString
	if runErr != nil {
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := j.db.ExecContext(ctx, `
		UPDATE runs SET frames = ?, triggers = ?, allocated = ?, freed = ?, error = ?, stopped_at = ?
		WHERE id = ?
	`, frames, triggers, allocated, freed, errText, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update run %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	return nil
}

const runColumns = `id, camera, trigger, selector, software, frames, triggers, allocated, freed, error, started_at, stopped_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r        Run
		software int64
		errText  sql.NullString
		stopped  sql.NullTime
	)
	err := s.Scan(&r.ID, &r.Camera, &r.Trigger, &r.Selector, &software, &r.Frames, &r.Triggers,
		&r.Allocated, &r.Freed, &errText, &r.StartedAt, &stopped)
	if err != nil {
		return Run{}, err
	}
	r.Software = software != 0
	if errText.Valid {
		r.Error = errText.String
	}
	if stopped.Valid {
		r.StoppedAt = &stopped.Time
	}
	return r, nil
}

// Run returns the run with id.
func (j *Journal) Run(ctx context.Context, id int64) (Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	return r, nil
}

// Runs returns up to limit runs, newest first. An empty camera matches all.
func (j *Journal) Runs(ctx context.Context, camera string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE ? = '' OR camera = ?
		ORDER BY id DESC LIMIT ?
	`, camera, camera, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// RecordFeatureChange appends a feature write.
func (j *Journal) RecordFeatureChange(ctx context.Context, c FeatureChange) error {
	if c.ChangedAt.IsZero() {
		c.ChangedAt = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO feature_changes (camera, feature, value, changed_at) VALUES (?, ?, ?, ?)
	`, c.Camera, c.Feature, c.Value, c.ChangedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert feature change: %w", err)
	}
	return nil
}

// FeatureChanges returns up to limit changes for camera, newest first.
func (j *Journal) FeatureChanges(ctx context.Context, camera string, limit int) ([]FeatureChange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT camera, feature, value, changed_at FROM feature_changes
		WHERE ? = '' OR camera = ?
		ORDER BY id DESC LIMIT ?
	`, camera, camera, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature changes: %w", err)
	}
	defer rows.Close()

	var changes []FeatureChange
	for rows.Next() {
		var c FeatureChange
		if err := rows.Scan(&c.Camera, &c.Feature, &c.Value, &c.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feature change: %w", err)
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
