// Package storage persists the monitored-identifier list and per-identifier
// status records. Two backends are provided: SQLite for single-node
// deployments and PostgreSQL for shared ones. Both treat status records as
// independent keys: one read, one write, no cross-key transactions.
package storage

import "errors"

var (
	// ErrDuplicate is returned when adding an identifier that is already
	// monitored.
	ErrDuplicate = errors.New("identifier already monitored")
	// ErrNotFound is returned when removing an identifier that is not
	// monitored.
	ErrNotFound = errors.New("identifier not monitored")
)
