package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS pdf_reports (
	id             TEXT PRIMARY KEY,
	insured_name   TEXT NOT NULL,
	policy_number  TEXT NOT NULL,
	address        TEXT NOT NULL,
	date_inspected TEXT NOT NULL,
	pdf_url        TEXT NOT NULL,
	page_count     INTEGER NOT NULL,
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS pdf_reports_created ON pdf_reports(created_at);
`

// OpenDB opens an SQLite database with production pragmas and the report
// schema applied. path may be ":memory:".
func OpenDB(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("persist: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persist: open: %w", err)
	}
	if path == ":memory:" {
		// each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("persist: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: exec schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: ping: %w", err)
	}
	return db, nil
}

// SQLiteRecorder writes records to the pdf_reports table.
type SQLiteRecorder struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRecorder uses an open database, see OpenDB.
func NewSQLiteRecorder(db *sql.DB) *SQLiteRecorder {
	return &SQLiteRecorder{db: db, now: time.Now}
}

// RecordMetadata inserts rec and returns its generated id.
func (r *SQLiteRecorder) RecordMetadata(ctx context.Context, rec Record) (string, error) {
	if rec.PDFURL == "" {
		return "", fmt.Errorf("record without pdf url")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `INSERT INTO pdf_reports
		(id, insured_name, policy_number, address, date_inspected, pdf_url, page_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.InsuredName, rec.PolicyNumber, rec.Address, rec.DateInspected,
		rec.PDFURL, rec.PageCount, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", err
	}
	return id, nil
}

const recordColumns = `id, insured_name, policy_number, address, date_inspected,
		pdf_url, page_count, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var created string
	if err := row.Scan(&rec.ID, &rec.InsuredName, &rec.PolicyNumber, &rec.Address, &rec.DateInspected,
		&rec.PDFURL, &rec.PageCount, &created); err != nil {
		return Record{}, err
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Record{}, fmt.Errorf("record %s: created_at: %w", rec.ID, err)
	}
	return rec, nil
}

// Get loads one record. An unknown id yields ErrNotFound.
func (r *SQLiteRecorder) Get(ctx context.Context, id string) (Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM pdf_reports WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// List returns up to limit records, newest first.
func (r *SQLiteRecorder) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM pdf_reports ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
