package storage

import "context"

// Corrupt overwrites a status row's timestamp with garbage so tests can
// exercise the corrupt-record path.
func (d *DB) Corrupt(ctx context.Context, doi string) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE statuses SET last_checked_at = 'not-a-timestamp' WHERE doi = ?`, doi)
	return err
}
