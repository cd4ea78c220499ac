// Package monitor ties the prober, status merge, transition detection and
// alert dispatch together into one check cycle.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazz-dev/doiwatch/internal/alert"
	"github.com/hazz-dev/doiwatch/internal/health"
	"github.com/hazz-dev/doiwatch/internal/metrics"
	"github.com/hazz-dev/doiwatch/internal/prober"
)

// Store is the persistence capability the monitor needs. GetStatus returns
// nil,nil for identifiers that have never been checked.
type Store interface {
	ListIdentifiers(ctx context.Context) ([]string, error)
	GetStatus(ctx context.Context, doi string) (*health.Record, error)
	PutStatus(ctx context.Context, doi string, rec health.Record) error
	DeleteStatus(ctx context.Context, doi string) error
}

// Dispatcher sends the newly-broken alert for a cycle.
type Dispatcher interface {
	Dispatch(ctx context.Context, newlyBroken []string) error
}

// Summary is the outcome of one cycle.
type Summary struct {
	CheckedCount     int             `json:"checked_count"`
	NewlyBrokenCount int             `json:"newly_broken_count"`
	SkippedCount     int             `json:"skipped_count"`
	Results          []prober.Result `json:"results"`
	AlertFailed      bool            `json:"alert_failed,omitempty"`
}

// Monitor runs check cycles over the monitored set.
type Monitor struct {
	store      Store
	prober     *prober.Prober
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	budget     time.Duration
	logger     *slog.Logger
}

// New creates a Monitor. Pass nil logger to use the default logger; metrics
// may be nil to disable instrumentation.
func New(store Store, p *prober.Prober, dispatcher Dispatcher, m *metrics.Metrics, budget time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:      store,
		prober:     p,
		dispatcher: dispatcher,
		metrics:    m,
		budget:     budget,
		logger:     logger,
	}
}

// RunCycle performs one full pass over the monitored set: snapshot prior
// statuses, probe, merge and persist, detect transitions, alert. Probe
// failures are data; persistence failures abort the cycle; alert failures
// are logged and noted on the Summary but never fail the cycle.
func (m *Monitor) RunCycle(ctx context.Context) (Summary, error) {
	start := time.Now()

	identifiers, err := m.store.ListIdentifiers(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("listing identifiers: %w", err)
	}
	if len(identifiers) == 0 {
		m.logger.Info("no identifiers monitored, skipping cycle")
		return Summary{Results: []prober.Result{}}, nil
	}

	// Snapshot prior statuses before any merge is written, so transition
	// detection never races against this cycle's own writes.
	prior := make(map[string]*health.Record, len(identifiers))
	for _, id := range identifiers {
		rec, err := m.store.GetStatus(ctx, id)
		if err != nil {
			if errors.Is(err, health.ErrCorruptRecord) {
				m.logger.Warn("corrupt status record, treating as never checked", "doi", id, "error", err)
				rec = nil
			} else {
				return Summary{}, fmt.Errorf("reading prior status: %w", err)
			}
		}
		prior[id] = rec
	}

	// The budget bounds probing only: merging, persistence and alerting for
	// results already gathered still run to completion.
	probeCtx := ctx
	if m.budget > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, m.budget)
		defer cancel()
	}
	results := m.prober.RunBatch(probeCtx, identifiers)

	for _, r := range results {
		if r.Skipped {
			continue
		}
		merged := health.Merge(prior[r.Identifier], r)
		if err := m.store.PutStatus(ctx, r.Identifier, merged); err != nil {
			// Skipping persistence would corrupt the next cycle's
			// transition detection, so this is fatal.
			return Summary{}, fmt.Errorf("persisting status: %w", err)
		}
	}

	report := health.DetectNewlyBroken(results, prior)

	summary := Summary{
		CheckedCount:     report.Total - report.Skipped,
		NewlyBrokenCount: len(report.NewlyBroken),
		SkippedCount:     report.Skipped,
		Results:          results,
	}

	if len(report.NewlyBroken) > 0 {
		if err := m.dispatcher.Dispatch(ctx, report.NewlyBroken); err != nil {
			var epErr *alert.EndpointError
			if !errors.As(err, &epErr) {
				m.logger.Error("unexpected alert dispatch error", "error", err)
			}
			m.logger.Warn("alert dispatch failed, cycle continues", "error", err,
				"newly_broken", len(report.NewlyBroken))
			summary.AlertFailed = true
		}
	}

	m.observe(report, summary, time.Since(start))
	m.logger.Info("cycle complete",
		"checked", summary.CheckedCount,
		"healthy", report.Healthy,
		"broken", report.Broken,
		"newly_broken", summary.NewlyBrokenCount,
		"skipped", summary.SkippedCount,
		"duration", time.Since(start),
	)
	return summary, nil
}

func (m *Monitor) observe(report health.Report, summary Summary, elapsed time.Duration) {
	if m.metrics == nil {
		return
	}
	m.metrics.CyclesTotal.Inc()
	m.metrics.CycleDuration.Observe(elapsed.Seconds())
	m.metrics.ProbesTotal.WithLabelValues("healthy").Add(float64(report.Healthy))
	m.metrics.ProbesTotal.WithLabelValues("broken").Add(float64(report.Broken))
	m.metrics.ProbesTotal.WithLabelValues("skipped").Add(float64(report.Skipped))
	m.metrics.NewlyBrokenTotal.Add(float64(summary.NewlyBrokenCount))
	if summary.NewlyBrokenCount > 0 {
		if summary.AlertFailed {
			m.metrics.AlertSendsTotal.WithLabelValues("failed").Inc()
		} else {
			m.metrics.AlertSendsTotal.WithLabelValues("sent").Inc()
		}
	}
}
