// Package alert formats and delivers the newly-broken notification for a
// cycle. Delivery is best-effort, at most once: a failed send is surfaced to
// the caller and never re-queued.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/hazz-dev/doiwatch/internal/doi"
	"github.com/hazz-dev/doiwatch/internal/retry"
)

// Config holds dispatcher tunables. Enabled=false is a deliberate operator
// override: the message is logged instead of sent.
type Config struct {
	Enabled          bool
	EndpointURL      string
	AuthToken        string
	MaxMessageLength int
	MaxRetries       int
	RetryDelay       time.Duration
	Timeout          time.Duration
}

// EndpointError reports that the alert endpoint rejected or never received
// the message after all retries. The cycle orchestrator catches it and
// continues; any other error class from this package is a programming error.
type EndpointError struct {
	Endpoint string
	Err      error
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("alert endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *EndpointError) Unwrap() error { return e.Err }

// Dispatcher sends one alert per cycle covering all newly-broken DOIs.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates a Dispatcher. Pass nil logger to use the default logger.
func New(cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Dispatch sends one alert for the given newly-broken identifiers. An empty
// set returns nil without any network activity. When dispatching is
// disabled the message is logged and nil returned. Exhausted retries return
// an *EndpointError.
func (d *Dispatcher) Dispatch(ctx context.Context, newlyBroken []string) error {
	if len(newlyBroken) == 0 {
		return nil
	}

	msg := d.buildMessage(newlyBroken)

	if !d.cfg.Enabled {
		d.logger.Info("alert dispatch disabled, dry run", "message", msg)
		return nil
	}

	err := retry.Do(ctx, d.cfg.MaxRetries+1, d.cfg.RetryDelay, func() error {
		return d.send(ctx, msg)
	})
	if err != nil {
		return &EndpointError{Endpoint: d.cfg.EndpointURL, Err: err}
	}

	d.logger.Info("alert sent", "newly_broken", len(newlyBroken))
	return nil
}

// buildMessage renders the alert text: a count header plus one resolver URL
// per identifier. Text longer than MaxMessageLength is cut at the last rune
// boundary at or below MaxMessageLength-3 and terminated with "...", so the
// sent message is never longer than the limit and stays valid UTF-8.
func (d *Dispatcher) buildMessage(newlyBroken []string) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%d DOI(s) stopped resolving:\n", len(newlyBroken))
	for _, id := range newlyBroken {
		fmt.Fprintf(&b, "- %s\n", doi.ResolverURL(id))
	}

	msg := b.String()
	if max := d.cfg.MaxMessageLength; max > 3 && len(msg) > max {
		cut := max - 3
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut] + "..."
	}
	return msg
}

func (d *Dispatcher) send(ctx context.Context, msg string) error {
	payload, err := json.Marshal(map[string]string{"content": msg})
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.EndpointURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.AuthToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
