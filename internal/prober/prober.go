// Package prober performs DOI liveness checks. A probe never fails as a Go
// error: every outcome, including exhausted retries, is represented in the
// returned Result.
package prober

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hazz-dev/doiwatch/internal/doi"
	"github.com/hazz-dev/doiwatch/internal/retry"
)

// Config holds all probe tunables. It is passed in explicitly so tests can
// run fully deterministic probes.
type Config struct {
	UserAgent       string
	Timeout         time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	FollowRedirects bool
	MaxConcurrency  int

	// ResolverBase overrides the public DOI resolver, e.g. to point at a
	// handle-system mirror. Empty means https://doi.org/.
	ResolverBase string
}

// Result is the outcome of a single liveness check.
type Result struct {
	Identifier string    `json:"identifier"`
	Healthy    bool      `json:"healthy"`
	HTTPStatus *int      `json:"http_status"`
	FinalURL   string    `json:"final_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	Skipped    bool      `json:"skipped,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Prober checks whether DOIs still resolve to live resources.
type Prober struct {
	cfg    Config
	client *http.Client
}

// New builds a Prober with a single shared HTTP client.
func New(cfg Config) *Prober {
	client := &http.Client{Timeout: cfg.Timeout}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return &Prober{cfg: cfg, client: client}
}

// Probe resolves the identifier and checks its liveness. Network and timeout
// errors are retried MaxRetries additional times with a fixed delay; an HTTP
// error status is a valid outcome and is not retried. Healthy means the
// terminal status is in [200,400). A probe cut short because ctx itself
// expired returns a skipped Result, not a broken one.
func (p *Prober) Probe(ctx context.Context, identifier string) Result {
	base := p.cfg.ResolverBase
	if base == "" {
		base = doi.ResolverBase
	}
	target := doi.URLFor(base, identifier)

	var status int
	var finalURL string
	err := retry.Do(ctx, p.cfg.MaxRetries+1, p.cfg.RetryDelay, func() error {
		var attemptErr error
		status, finalURL, attemptErr = p.attempt(ctx, target)
		return attemptErr
	})

	result := Result{Identifier: identifier}
	if err != nil {
		// The cycle budget expiring mid-request says nothing about the
		// DOI. Per-probe timeouts also wrap DeadlineExceeded, so only an
		// expired ctx turns the failure into a skip.
		if ctx.Err() != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)) {
			return skippedResult(identifier)
		}
		result.Error = err.Error()
	} else {
		s := status
		result.HTTPStatus = &s
		result.FinalURL = finalURL
		result.Healthy = status >= 200 && status < 400
	}
	result.CheckedAt = time.Now().UTC()
	return result
}

// attempt issues the double probe: a HEAD request against the resolver, then
// a second HEAD against the final URL the first response landed on. The
// first hop's status can be provisional (the resolver answers before the
// landing page does), so the second request's status is the one that counts.
func (p *Prober) attempt(ctx context.Context, target string) (int, string, error) {
	first, err := p.head(ctx, target)
	if err != nil {
		return 0, "", err
	}
	finalURL := first.Request.URL.String()

	second, err := p.head(ctx, finalURL)
	if err != nil {
		return 0, "", err
	}
	return second.StatusCode, second.Request.URL.String(), nil
}

func (p *Prober) head(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if p.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", p.cfg.UserAgent)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()
	return resp, nil
}
