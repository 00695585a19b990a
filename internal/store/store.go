// Package store keeps a history of analysis reports in SQLite, keyed by the
// SHA-256 of the analyzed blob.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytesleuth/sleuth/internal/model"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Record is a stored report summary. Report holds the full JSON report.
type Record struct {
	ID         int64           `json:"id"`
	Path       string          `json:"path"`
	Filename   string          `json:"filename"`
	Filesize   int64           `json:"filesize"`
	SHA256     string          `json:"sha256"`
	MagicType  string          `json:"magic_type"`
	Worst      string          `json:"worst_severity,omitempty"`
	Findings   int             `json:"findings"`
	AnalyzedAt time.Time       `json:"analyzed_at"`
	Report     json.RawMessage `json:"report,omitempty"`
}

// Open opens the SQLite database and bootstraps the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save stores the report of a blob read from path.
func (s *Store) Save(ctx context.Context, path string, r model.Report) (int64, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("encoding report: %w", err)
	}
	var worst string
	if sev, ok := r.Worst(); ok {
		worst = sev.String()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO reports (path, filename, filesize, sha256, md5, magic_type, worst, findings, analyzed_at, report)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		path, r.Filename, r.Filesize, r.Digest.SHA256, r.Digest.MD5, r.TypeAnalysis.MagicType,
		worst, len(r.Findings), s.now().UTC().Format(time.RFC3339Nano), string(raw))
	if err != nil {
		return 0, fmt.Errorf("saving report: %w", err)
	}
	return res.LastInsertId()
}

// Lookup returns all reports of blobs with the given SHA-256, newest first.
func (s *Store) Lookup(ctx context.Context, sha256 string) ([]Record, error) {
	return s.query(ctx, true, `
SELECT id, path, filename, filesize, sha256, magic_type, worst, findings, analyzed_at, report
FROM reports WHERE sha256 = ? ORDER BY id DESC`, sha256)
}

// List returns summaries of the latest limit reports without the report
// bodies, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be positive")
	}
	return s.query(ctx, false, `
SELECT id, path, filename, filesize, sha256, magic_type, worst, findings, analyzed_at, ''
FROM reports ORDER BY id DESC LIMIT ?`, limit)
}

func (s *Store) query(ctx context.Context, withReport bool, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []Record
	for rows.Next() {
		var rec Record
		var at, report string
		if err := rows.Scan(&rec.ID, &rec.Path, &rec.Filename, &rec.Filesize, &rec.SHA256,
			&rec.MagicType, &rec.Worst, &rec.Findings, &at, &report); err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		rec.AnalyzedAt, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parsing analyzed_at of report %d: %w", rec.ID, err)
		}
		if withReport {
			rec.Report = json.RawMessage(report)
		}
		ret = append(ret, rec)
	}
	return ret, rows.Err()
}

func configureDB(ctx context.Context, db *sql.DB) error {
	// a single writer, the CLI saves reports sequentially
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode;").Scan(&mode); err != nil {
		return fmt.Errorf("PRAGMA journal_mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		return fmt.Errorf("PRAGMA journal_mode: expected wal, got %s", mode)
	}
	return nil
}

// sqliteDSN returns a file URI for path. The pragmas are passed as DSN
// parameters, so the driver applies them to every new connection.
func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", errors.New("db path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("db path %q: %w", path, err)
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs), RawQuery: q.Encode()}
	return u.String(), nil
}
