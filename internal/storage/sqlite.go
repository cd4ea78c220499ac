package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hazz-dev/doiwatch/internal/health"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS identifiers (
    doi      TEXT PRIMARY KEY,
    added_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS statuses (
    doi              TEXT PRIMARY KEY,
    healthy          INTEGER NOT NULL,
    http_status      INTEGER,
    error            TEXT    NOT NULL DEFAULT '',
    last_checked_at  TEXT    NOT NULL,
    first_checked_at TEXT    NOT NULL,
    first_failure_at TEXT,
    first_success_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_identifiers_added ON identifiers(added_at);
`

// DB wraps a SQLite database.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite at %q: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// AddIdentifier adds a DOI to the monitored set.
func (d *DB) AddIdentifier(ctx context.Context, doi string) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO identifiers (doi, added_at) VALUES (?, ?)`,
		doi, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicate
		}
		return fmt.Errorf("adding identifier %q: %w", doi, err)
	}
	return nil
}

// RemoveIdentifier removes a DOI from the monitored set along with its
// status record.
func (d *DB) RemoveIdentifier(ctx context.Context, doi string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM identifiers WHERE doi = ?`, doi)
	if err != nil {
		return fmt.Errorf("removing identifier %q: %w", doi, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("removing identifier %q: %w", doi, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return d.DeleteStatus(ctx, doi)
}

// ListIdentifiers returns the monitored DOIs in insertion order.
func (d *DB) ListIdentifiers(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT doi FROM identifiers ORDER BY added_at, doi`)
	if err != nil {
		return nil, fmt.Errorf("listing identifiers: %w", err)
	}
	defer rows.Close()

	var dois []string
	for rows.Next() {
		var doi string
		if err := rows.Scan(&doi); err != nil {
			return nil, fmt.Errorf("scanning identifier: %w", err)
		}
		dois = append(dois, doi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identifiers: %w", err)
	}
	return dois, nil
}

// GetStatus returns the status record for a DOI, or nil if it has never
// been checked. A record that cannot be decoded yields
// health.ErrCorruptRecord; callers treat the identifier as never checked.
func (d *DB) GetStatus(ctx context.Context, doi string) (*health.Record, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT healthy, http_status, error, last_checked_at,
		       first_checked_at, first_failure_at, first_success_at
		FROM statuses WHERE doi = ?`, doi)

	var (
		healthy               bool
		httpStatus            sql.NullInt64
		errMsg                string
		lastChecked, firstChk string
		firstFail, firstOK    sql.NullString
	)
	err := row.Scan(&healthy, &httpStatus, &errMsg, &lastChecked, &firstChk, &firstFail, &firstOK)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying status for %q: %w", doi, err)
	}

	rec := health.Record{Healthy: &healthy, Error: errMsg}
	if httpStatus.Valid {
		s := int(httpStatus.Int64)
		rec.HTTPStatus = &s
	}
	if rec.LastCheckedAt, err = parseTimestamp(lastChecked); err != nil {
		return nil, fmt.Errorf("%w: %q last_checked_at: %v", health.ErrCorruptRecord, doi, err)
	}
	if rec.FirstCheckedAt, err = parseTimestamp(firstChk); err != nil {
		return nil, fmt.Errorf("%w: %q first_checked_at: %v", health.ErrCorruptRecord, doi, err)
	}
	if rec.FirstFailureAt, err = parseNullTimestamp(firstFail); err != nil {
		return nil, fmt.Errorf("%w: %q first_failure_at: %v", health.ErrCorruptRecord, doi, err)
	}
	if rec.FirstSuccessAt, err = parseNullTimestamp(firstOK); err != nil {
		return nil, fmt.Errorf("%w: %q first_success_at: %v", health.ErrCorruptRecord, doi, err)
	}
	return &rec, nil
}

// PutStatus upserts the status record for a DOI.
func (d *DB) PutStatus(ctx context.Context, doi string, rec health.Record) error {
	if rec.Healthy == nil {
		return fmt.Errorf("putting status for %q: record has no health state", doi)
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO statuses (doi, healthy, http_status, error, last_checked_at,
		                      first_checked_at, first_failure_at, first_success_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doi) DO UPDATE SET
		    healthy = excluded.healthy,
		    http_status = excluded.http_status,
		    error = excluded.error,
		    last_checked_at = excluded.last_checked_at,
		    first_checked_at = excluded.first_checked_at,
		    first_failure_at = excluded.first_failure_at,
		    first_success_at = excluded.first_success_at`,
		doi, *rec.Healthy, nullableInt(rec.HTTPStatus), rec.Error,
		formatTimestamp(rec.LastCheckedAt), formatTimestamp(rec.FirstCheckedAt),
		nullableTimestamp(rec.FirstFailureAt), nullableTimestamp(rec.FirstSuccessAt),
	)
	if err != nil {
		return fmt.Errorf("putting status for %q: %w", doi, err)
	}
	return nil
}

// DeleteStatus removes the status record for a DOI. Deleting a missing
// record is not an error.
func (d *DB) DeleteStatus(ctx context.Context, doi string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM statuses WHERE doi = ?`, doi); err != nil {
		return fmt.Errorf("deleting status for %q: %w", doi, err)
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTimestamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTimestamp(*t)
}

func nullableInt(n *int) any {
	if n == nil {
		return nil
	}
	return *n
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// Fallback to RFC3339 without sub-second precision.
		t, err = time.Parse(time.RFC3339, s)
	}
	return t, err
}

func parseNullTimestamp(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTimestamp(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
