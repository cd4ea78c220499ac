package prober_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazz-dev/doiwatch/internal/prober"
)

func testConfig(base string, extras ...func(*prober.Config)) prober.Config {
	cfg := prober.Config{
		UserAgent:       "doiwatch-test/1.0",
		Timeout:         5 * time.Second,
		MaxRetries:      0,
		RetryDelay:      time.Millisecond,
		FollowRedirects: true,
		ResolverBase:    base,
	}
	for _, fn := range extras {
		fn(&cfg)
	}
	return cfg
}

func TestProbe_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := prober.New(testConfig(srv.URL))
	result := p.Probe(context.Background(), "10.1000/xyz")

	if !result.Healthy {
		t.Fatalf("expected healthy, got error %q", result.Error)
	}
	if result.HTTPStatus == nil || *result.HTTPStatus != http.StatusOK {
		t.Errorf("expected status 200, got %v", result.HTTPStatus)
	}
	if result.Error != "" {
		t.Errorf("expected no error, got %q", result.Error)
	}
	if result.CheckedAt.IsZero() {
		t.Error("expected CheckedAt to be set")
	}
	if result.Identifier != "10.1000/xyz" {
		t.Errorf("unexpected identifier %q", result.Identifier)
	}
}

func TestProbe_UsesHEADAndUserAgent(t *testing.T) {
	var method, ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		ua = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := prober.New(testConfig(srv.URL))
	p.Probe(context.Background(), "10.1000/xyz")

	if method != http.MethodHead {
		t.Errorf("expected HEAD request, got %s", method)
	}
	if ua != "doiwatch-test/1.0" {
		t.Errorf("expected configured user agent, got %q", ua)
	}
}

func TestProbe_DoubleProbeFollowsRedirectTerminus(t *testing.T) {
	var landingHits int32
	landing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&landingHits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer landing.Close()

	resolver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, landing.URL+"/article", http.StatusFound)
	}))
	defer resolver.Close()

	p := prober.New(testConfig(resolver.URL))
	result := p.Probe(context.Background(), "10.1000/xyz")

	if !result.Healthy {
		t.Fatalf("expected healthy, got error %q", result.Error)
	}
	if result.HTTPStatus == nil || *result.HTTPStatus != http.StatusOK {
		t.Errorf("expected terminal status 200, got %v", result.HTTPStatus)
	}
	if result.FinalURL != landing.URL+"/article" {
		t.Errorf("expected final URL %q, got %q", landing.URL+"/article", result.FinalURL)
	}
	// First probe follows the redirect, second probe re-requests the terminus.
	if got := atomic.LoadInt32(&landingHits); got != 2 {
		t.Errorf("expected 2 hits on the landing page, got %d", got)
	}
}

func TestProbe_ErrorStatusIsUnhealthyNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := prober.New(testConfig(srv.URL, func(c *prober.Config) { c.MaxRetries = 3 }))
	result := p.Probe(context.Background(), "10.1000/gone")

	if result.Healthy {
		t.Fatal("expected unhealthy for 404")
	}
	if result.HTTPStatus == nil || *result.HTTPStatus != http.StatusNotFound {
		t.Errorf("expected status 404, got %v", result.HTTPStatus)
	}
	// Double probe = 2 requests, and an HTTP error status must not retry.
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("expected 2 requests (no retries), got %d", got)
	}
}

func TestProbe_NetworkErrorRetriesMaxRetriesPlusOne(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer does not support hijacking")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		conn.Close()
	}))
	defer srv.Close()

	p := prober.New(testConfig(srv.URL, func(c *prober.Config) { c.MaxRetries = 2 }))
	result := p.Probe(context.Background(), "10.1000/xyz")

	if result.Healthy {
		t.Fatal("expected unhealthy after exhausted retries")
	}
	if result.HTTPStatus != nil {
		t.Errorf("expected nil HTTP status, got %v", result.HTTPStatus)
	}
	if result.Error == "" {
		t.Error("expected last failure message")
	}
	// MaxRetries=2 means 3 total attempts, each one request deep (the
	// connection dies on the first hop).
	if got := atomic.LoadInt32(&attempts); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestProbe_ExpiredContextMidRequestIsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	p := prober.New(testConfig(srv.URL))
	result := p.Probe(ctx, "10.1000/slow")

	if !result.Skipped {
		t.Fatalf("expected in-flight probe to be skipped when the cycle context expires, got %+v", result)
	}
	if result.Healthy || result.Error != "" {
		t.Errorf("skipped result must carry no verdict, got %+v", result)
	}
}

func TestProbe_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := prober.New(testConfig(srv.URL, func(c *prober.Config) {
		c.Timeout = 50 * time.Millisecond
	}))
	result := p.Probe(context.Background(), "10.1000/xyz")

	if result.Healthy {
		t.Fatal("expected unhealthy on timeout")
	}
	if result.Error == "" {
		t.Error("expected timeout error message")
	}
}

func TestProbe_RedirectsNotFollowedWhenDisabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	p := prober.New(testConfig(srv.URL, func(c *prober.Config) {
		c.FollowRedirects = false
	}))
	result := p.Probe(context.Background(), "10.1000/xyz")

	// A 3xx terminal status still counts as resolving.
	if !result.Healthy {
		t.Fatalf("expected healthy for 301, got error %q", result.Error)
	}
	if result.HTTPStatus == nil || *result.HTTPStatus != http.StatusMovedPermanently {
		t.Errorf("expected status 301, got %v", result.HTTPStatus)
	}
}
