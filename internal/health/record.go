// Package health holds the per-identifier status record, the pure merge
// function that updates it, and the transition detector that decides which
// identifiers just broke.
package health

import (
	"errors"
	"time"

	"github.com/hazz-dev/doiwatch/internal/prober"
)

// ErrCorruptRecord is returned by stores when a persisted record cannot be
// decoded. Callers treat the identifier as never checked.
var ErrCorruptRecord = errors.New("corrupt status record")

// Record is the durable health state of one identifier. Healthy is nil
// until the first check. FirstCheckedAt, FirstFailureAt and FirstSuccessAt
// are milestones: each is set at most once and never changes afterwards.
type Record struct {
	Healthy        *bool      `json:"healthy"`
	HTTPStatus     *int       `json:"http_status"`
	Error          string     `json:"error,omitempty"`
	LastCheckedAt  time.Time  `json:"last_checked_at"`
	FirstCheckedAt time.Time  `json:"first_checked_at"`
	FirstFailureAt *time.Time `json:"first_failure_at"`
	FirstSuccessAt *time.Time `json:"first_success_at"`
}

// Broken reports whether the record holds a known-unhealthy state. A nil
// Healthy (never checked) is not broken.
func (r *Record) Broken() bool {
	return r != nil && r.Healthy != nil && !*r.Healthy
}

// Merge combines a probe result with the previous record for the same
// identifier. It is pure: prev is never mutated. Milestone timestamps are
// preserved once set; everything else reflects the new result. Re-merging
// an identical result against its own output changes only LastCheckedAt.
func Merge(prev *Record, result prober.Result) Record {
	healthy := result.Healthy
	rec := Record{
		Healthy:       &healthy,
		LastCheckedAt: result.CheckedAt,
	}
	if result.HTTPStatus != nil {
		s := *result.HTTPStatus
		rec.HTTPStatus = &s
	}
	if !result.Healthy {
		rec.Error = result.Error
	}

	if prev == nil {
		rec.FirstCheckedAt = result.CheckedAt
	} else {
		rec.FirstCheckedAt = prev.FirstCheckedAt
		rec.FirstFailureAt = prev.FirstFailureAt
		rec.FirstSuccessAt = prev.FirstSuccessAt
	}

	if !result.Healthy && rec.FirstFailureAt == nil {
		t := result.CheckedAt
		rec.FirstFailureAt = &t
	}
	if result.Healthy && rec.FirstSuccessAt == nil {
		t := result.CheckedAt
		rec.FirstSuccessAt = &t
	}

	return rec
}
