// Package store persists region statistics tables in a SQLite database so
// runs over several subjects can be ranked and compared later.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mdroistats/pkg/roistats"
)

// Run describes one stored statistics table
type Run struct {
	ID        int64
	Subject   string
	CreatedAt time.Time
	NRegions  int
	NReliable int
}

// Store is a SQLite-backed archive of result tables
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	// Escape the path so '?', '#' and '%' in it are not read as URI syntax
	escaped := (&url.URL{Path: path}).EscapedPath()
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON", escaped)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			subject TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			n_regions INTEGER NOT NULL,
			n_reliable INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS regions (
			run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			label INTEGER NOT NULL,
			name TEXT NOT NULL,
			n_voxels INTEGER NOT NULL,
			n_nonfinite INTEGER NOT NULL,
			mean REAL NOT NULL,
			std REAL NOT NULL,
			winsorized_mean REAL NOT NULL,
			winsorized_std REAL NOT NULL,
			median REAL NOT NULL,
			q1 REAL NOT NULL,
			q3 REAL NOT NULL,
			iqr REAL NOT NULL,
			n_winsorized INTEGER NOT NULL,
			n_outliers INTEGER NOT NULL,
			n_extreme_outliers INTEGER NOT NULL,
			cv REAL,
			reliable INTEGER NOT NULL,
			exclusion_reason TEXT NOT NULL,
			PRIMARY KEY (run_id, label)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_subject ON runs(subject);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// nullable maps values SQLite cannot store (NaN, Inf) to NULL
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// SaveRun stores every region of table under a new run for subject and
// returns the run ID
func (s *Store) SaveRun(ctx context.Context, subject string, table *roistats.ResultTable) (int64, error) {
	summary := table.Summary()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs(subject, created_at, n_regions, n_reliable) VALUES(?,?,?,?)`,
		subject, time.Now().UTC().UnixMilli(), summary.Total, summary.Reliable)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO regions(
		run_id, label, name, n_voxels, n_nonfinite, mean, std, winsorized_mean, winsorized_std,
		median, q1, q3, iqr, n_winsorized, n_outliers, n_extreme_outliers, cv, reliable, exclusion_reason
	) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, rs := range table.AllRegions() {
		_, err := stmt.ExecContext(ctx,
			runID, rs.Label, rs.Name, rs.NVoxels, rs.NonFinite,
			rs.Mean, rs.Std, rs.WinsorizedMean, rs.WinsorizedStd,
			rs.Median, rs.Q1, rs.Q3, rs.IQR,
			rs.NWinsorized, rs.NOutliers, rs.NExtremeOutliers,
			nullable(rs.CV), rs.Reliable, string(rs.ExclusionReason))
		if err != nil {
			return 0, fmt.Errorf("failed to insert region %d: %w", rs.Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return runID, nil
}

// LoadRegions rebuilds the result table stored under runID
func (s *Store) LoadRegions(ctx context.Context, runID int64) (*roistats.ResultTable, error) {
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("run %d not found", runID)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT
		label, name, n_voxels, n_nonfinite, mean, std, winsorized_mean, winsorized_std,
		median, q1, q3, iqr, n_winsorized, n_outliers, n_extreme_outliers, cv, reliable, exclusion_reason
		FROM regions WHERE run_id = ? ORDER BY label`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []roistats.RegionStatistics
	for rows.Next() {
		var rs roistats.RegionStatistics
		var cv sql.NullFloat64
		var reason string
		if err := rows.Scan(
			&rs.Label, &rs.Name, &rs.NVoxels, &rs.NonFinite,
			&rs.Mean, &rs.Std, &rs.WinsorizedMean, &rs.WinsorizedStd,
			&rs.Median, &rs.Q1, &rs.Q3, &rs.IQR,
			&rs.NWinsorized, &rs.NOutliers, &rs.NExtremeOutliers,
			&cv, &rs.Reliable, &reason,
		); err != nil {
			return nil, err
		}
		if cv.Valid {
			rs.CV = cv.Float64
		}
		rs.ExclusionReason = roistats.ExclusionReason(reason)
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roistats.FromRows(out), nil
}

// ListRuns returns all stored runs, newest first
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject, created_at, n_regions, n_reliable FROM runs ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var created int64
		if err := rows.Scan(&r.ID, &r.Subject, &created, &r.NRegions, &r.NReliable); err != nil {
			return nil, err
		}
		r.CreatedAt = time.UnixMilli(created).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recent run for subject
func (s *Store) LatestRun(ctx context.Context, subject string) (Run, error) {
	var r Run
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, subject, created_at, n_regions, n_reliable FROM runs WHERE subject = ? ORDER BY id DESC LIMIT 1`,
		subject).Scan(&r.ID, &r.Subject, &created, &r.NRegions, &r.NReliable)
	if err == sql.ErrNoRows {
		return r, fmt.Errorf("no runs stored for subject %q", subject)
	}
	if err != nil {
		return r, err
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	return r, nil
}
