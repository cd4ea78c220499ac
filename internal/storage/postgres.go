package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hazz-dev/doiwatch/internal/health"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS identifiers (
    doi      TEXT PRIMARY KEY,
    added_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS statuses (
    doi              TEXT PRIMARY KEY,
    healthy          BOOLEAN NOT NULL,
    http_status      INTEGER,
    error            TEXT    NOT NULL DEFAULT '',
    last_checked_at  TIMESTAMPTZ NOT NULL,
    first_checked_at TIMESTAMPTZ NOT NULL,
    first_failure_at TIMESTAMPTZ,
    first_success_at TIMESTAMPTZ
);
`

// PostgresStore implements the same contract as DB on a shared PostgreSQL
// database.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database at connString and applies the schema.
func OpenPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// AddIdentifier adds a DOI to the monitored set.
func (s *PostgresStore) AddIdentifier(ctx context.Context, doi string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO identifiers (doi, added_at) VALUES ($1, $2)`,
		doi, time.Now().UTC(),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("adding identifier %q: %w", doi, err)
	}
	return nil
}

// RemoveIdentifier removes a DOI and its status record.
func (s *PostgresStore) RemoveIdentifier(ctx context.Context, doi string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identifiers WHERE doi = $1`, doi)
	if err != nil {
		return fmt.Errorf("removing identifier %q: %w", doi, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return s.DeleteStatus(ctx, doi)
}

// ListIdentifiers returns the monitored DOIs in insertion order.
func (s *PostgresStore) ListIdentifiers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
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

// GetStatus returns the status record for a DOI, or nil if never checked.
func (s *PostgresStore) GetStatus(ctx context.Context, doi string) (*health.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT healthy, http_status, error, last_checked_at,
		       first_checked_at, first_failure_at, first_success_at
		FROM statuses WHERE doi = $1`, doi)

	var (
		healthy    bool
		httpStatus *int
		errMsg     string
		lastChk    time.Time
		firstChk   time.Time
		firstFail  *time.Time
		firstOK    *time.Time
	)
	err := row.Scan(&healthy, &httpStatus, &errMsg, &lastChk, &firstChk, &firstFail, &firstOK)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying status for %q: %w", doi, err)
	}

	return &health.Record{
		Healthy:        &healthy,
		HTTPStatus:     httpStatus,
		Error:          errMsg,
		LastCheckedAt:  lastChk,
		FirstCheckedAt: firstChk,
		FirstFailureAt: firstFail,
		FirstSuccessAt: firstOK,
	}, nil
}

// PutStatus upserts the status record for a DOI.
func (s *PostgresStore) PutStatus(ctx context.Context, doi string, rec health.Record) error {
	if rec.Healthy == nil {
		return fmt.Errorf("putting status for %q: record has no health state", doi)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO statuses (doi, healthy, http_status, error, last_checked_at,
		                      first_checked_at, first_failure_at, first_success_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (doi) DO UPDATE SET
		    healthy = EXCLUDED.healthy,
		    http_status = EXCLUDED.http_status,
		    error = EXCLUDED.error,
		    last_checked_at = EXCLUDED.last_checked_at,
		    first_checked_at = EXCLUDED.first_checked_at,
		    first_failure_at = EXCLUDED.first_failure_at,
		    first_success_at = EXCLUDED.first_success_at`,
		doi, *rec.Healthy, rec.HTTPStatus, rec.Error,
		rec.LastCheckedAt.UTC(), rec.FirstCheckedAt.UTC(),
		utcPtr(rec.FirstFailureAt), utcPtr(rec.FirstSuccessAt),
	)
	if err != nil {
		return fmt.Errorf("putting status for %q: %w", doi, err)
	}
	return nil
}

// DeleteStatus removes the status record for a DOI.
func (s *PostgresStore) DeleteStatus(ctx context.Context, doi string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM statuses WHERE doi = $1`, doi); err != nil {
		return fmt.Errorf("deleting status for %q: %w", doi, err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
