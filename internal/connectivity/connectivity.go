// Package connectivity provides the gates the sync engine consults before
// any network round-trip.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds a single probe.
	DefaultTimeout = 2 * time.Second

	// DefaultTTL is how long a probe result is reused.
	DefaultTTL = 5 * time.Second
)

// Static is a gate with a fixed answer. Static(false) backs the CLI's
// --offline mode.
type Static bool

// IsAvailable implements syncp.ConnectivityGate.
func (s Static) IsAvailable(context.Context) bool { return bool(s) }

// ProbeOption configures a [Probe].
type ProbeOption func(*Probe)

// WithTimeout bounds each health request.
func WithTimeout(d time.Duration) ProbeOption {
	return func(p *Probe) { p.timeout = d }
}

// WithTTL sets how long a probe result is cached. Zero disables caching.
func WithTTL(d time.Duration) ProbeOption {
	return func(p *Probe) { p.ttl = d }
}

// WithHTTPClient replaces the HTTP client used for probes.
func WithHTTPClient(hc *http.Client) ProbeOption {
	return func(p *Probe) { p.hc = hc }
}

// Probe checks reachability with a GET on the remote store's /health
// endpoint. Any 2xx answer counts as online. Results are cached for the TTL
// so a burst of mutations costs one request.
type Probe struct {
	url     string
	timeout time.Duration
	ttl     time.Duration
	hc      *http.Client
	now     func() time.Time
	log     *slog.Logger

	mu      sync.Mutex
	checked time.Time
	up      bool
}

// NewProbe returns a probe for the server at baseURL.
func NewProbe(baseURL string, logger *slog.Logger, opts ...ProbeOption) *Probe {
	p := &Probe{
		url:     strings.TrimRight(baseURL, "/") + "/health",
		timeout: DefaultTimeout,
		ttl:     DefaultTTL,
		hc:      &http.Client{},
		now:     time.Now,
		log:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsAvailable implements syncp.ConnectivityGate. It never blocks longer
// than the probe timeout.
func (p *Probe) IsAvailable(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.ttl > 0 && !p.checked.IsZero() && now.Sub(p.checked) < p.ttl {
		return p.up
	}

	up := p.probe(ctx)
	if up != p.up || p.checked.IsZero() {
		p.log.Info("connectivity changed", "online", up)
	}
	p.up = up
	p.checked = now
	return up
}

// Invalidate drops the cached result so the next call probes again.
func (p *Probe) Invalidate() {
	p.mu.Lock()
	p.checked = time.Time{}
	p.mu.Unlock()
}

func (p *Probe) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.log.Debug("building probe request", "error", err)
		return false
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		p.log.Debug("probe failed", "url", p.url, "error", err)
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
