package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tatianab/photo-game/internal/models"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// RunSummary is one row of the generation history.
type RunSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	SourceImage    string    `json:"source_image"`
	CreatedAt      time.Time `json:"created_at"`
	HTMLIssues     int       `json:"html_issues"`
	CSSIssues      int       `json:"css_issues"`
	JSIssues       int       `json:"js_issues"`
	PositionIssues int       `json:"position_issues"`
	Dir            string    `json:"dir"`
}

// TotalIssues mirrors models.Issues.Total.
func (r RunSummary) TotalIssues() int {
	return r.HTMLIssues + r.CSSIssues + r.JSIssues
}

// SQLiteStore keeps the run history in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates the schema.
func (s *SQLiteStore) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source_image TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			html_issues INTEGER NOT NULL DEFAULT 0,
			css_issues INTEGER NOT NULL DEFAULT 0,
			js_issues INTEGER NOT NULL DEFAULT 0,
			position_issues INTEGER NOT NULL DEFAULT 0,
			dir TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Record stores a finished run saved under dir.
func (s *SQLiteStore) Record(ctx context.Context, run *models.Run, dir string) error {
	title := ""
	if run.Spec != nil {
		title = run.Spec.Title
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, title, source_image, created_at, html_issues, css_issues, js_issues, position_issues, dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, title, run.SourceImage, run.CreatedAt.UnixMilli(),
		len(run.Issues.HTML), len(run.Issues.CSS), len(run.Issues.JS), len(run.Issues.Positions),
		dir,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

const selectRun = `SELECT id, title, source_image, created_at, html_issues, css_issues, js_issues, position_issues, dir FROM runs`

func scanRun(row interface{ Scan(...any) error }) (RunSummary, error) {
	var r RunSummary
	var created int64
	err := row.Scan(&r.ID, &r.Title, &r.SourceImage, &created,
		&r.HTMLIssues, &r.CSSIssues, &r.JSIssues, &r.PositionIssues, &r.Dir)
	if err != nil {
		return r, err
	}
	r.CreatedAt = time.UnixMilli(created).UTC()
	return r, nil
}

// List returns the most recent runs first. A limit of zero or less means all.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]RunSummary, error) {
	query := selectRun + ` ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns the run with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (RunSummary, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

// Delete removes the run from the history. The saved files are left alone.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
