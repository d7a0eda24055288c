// Package proxy routes outbound fetches through a metered unblocking proxy.
// All calls share one global, priority-ordered concurrency limiter.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/scheduler"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrMissingToken is returned when a call needs the proxy token and none is configured.
var ErrMissingToken = errors.New("proxy: SCRAPE_DO_TOKEN is not set")

// StatusError is returned for non-2xx proxy responses.
type StatusError struct {
	Label      string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status code %d", e.Label, e.StatusCode)
}

// Request describes one proxied fetch.
type Request struct {
	URL   string
	Label string
	// Priority uses the 1 (highest) to 10 (lowest) scale. Zero means 5.
	Priority int
}

// Stats are process-wide counters for the gateway.
type Stats struct {
	Total      int
	Success    int
	Failed     int
	Active     int
	PeakActive int
	Summaries  int
}

// Gateway executes proxy calls inside a global limiter.
type Gateway struct {
	config  *Config
	exec    *scheduler.Executor
	limiter *rate.Limiter
	client  *http.Client
	logger  *logrus.Logger

	mu        sync.Mutex
	stats     Stats
	idleTimer *time.Timer
	// idleGen identifies the newest idle timer; older callbacks are ignored.
	idleGen uint64
	started time.Time
}

// New creates a Gateway from config.
func New(config *Config) (*Gateway, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid proxy config: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1)
	}

	return &Gateway{
		config:  config,
		exec:    scheduler.NewExecutor(config.Concurrency),
		limiter: limiter,
		client:  config.HTTPClient,
		logger:  config.Logger,
	}, nil
}

// Get fetches req.URL through the proxy and returns the raw body.
func (g *Gateway) Get(ctx context.Context, req Request) ([]byte, error) {
	if g.config.Token == "" {
		return nil, fmt.Errorf("%s: %w", labelFor(req), ErrMissingToken)
	}

	var body []byte
	err := g.Run(ctx, req.Priority, labelFor(req), func(ctx context.Context) error {
		b, err := g.fetch(ctx, req)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// GetJSON fetches req.URL through the proxy and decodes the body into out.
func (g *Gateway) GetJSON(ctx context.Context, req Request, out any) error {
	body, err := g.Get(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: error decoding response: %w", labelFor(req), err)
	}
	return nil
}

// Run executes fn inside the gateway's limiter with the per-call timeout.
// Other metered services (render APIs) use it so they share the ceiling and stats.
func (g *Gateway) Run(ctx context.Context, priority int, label string, fn func(ctx context.Context) error) error {
	g.track(func(s *Stats) { s.Total++ })

	started := false
	err := g.exec.Do(ctx, scheduler.ToSchedulerPriority(priority), func(ctx context.Context) error {
		started = true
		g.begin()
		ok := false
		defer func() { g.finish(ok) }()

		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter: %w", label, err)
		}

		callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()

		if err := fn(callCtx); err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"label": label,
			"error": err,
		}).Warn("Proxy call failed")
		// Calls abandoned while still queued never reach finish.
		if !started {
			g.track(func(s *Stats) { s.Failed++ })
		}
	}
	return err
}

// Stats returns a snapshot of the gateway counters.
func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

func (g *Gateway) fetch(ctx context.Context, req Request) ([]byte, error) {
	label := labelFor(req)
	target := g.config.Endpoint + "?" + url.Values{
		"url":   {req.URL},
		"token": {g.config.Token},
	}.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: error creating request: %w", label, err)
	}

	g.logger.WithFields(logrus.Fields{
		"label": label,
		"url":   req.URL,
	}).Debug("Sending proxy request")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: error reading response: %w", label, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return nil, &StatusError{Label: label, StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func (g *Gateway) begin() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopIdleTimer()
	if g.stats.Active == 0 && g.started.IsZero() {
		g.started = time.Now()
	}
	g.stats.Active++
	if g.stats.Active > g.stats.PeakActive {
		g.stats.PeakActive = g.stats.Active
	}
}

func (g *Gateway) finish(ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats.Active--
	if ok {
		g.stats.Success++
	} else {
		g.stats.Failed++
	}
	if g.stats.Active == 0 && g.exec.Pending() == 0 {
		g.stopIdleTimer()
		gen := g.idleGen
		g.idleTimer = time.AfterFunc(g.config.IdleSummaryDelay, func() { g.logSummary(gen) })
	}
}

// stopIdleTimer cancels the pending idle summary. Callers hold g.mu.
func (g *Gateway) stopIdleTimer() {
	if g.idleTimer != nil {
		g.idleTimer.Stop()
		g.idleTimer = nil
	}
	g.idleGen++
}

func (g *Gateway) logSummary(gen uint64) {
	g.mu.Lock()
	if gen != g.idleGen || g.stats.Active > 0 || g.idleTimer == nil {
		g.mu.Unlock()
		return
	}
	g.idleTimer = nil
	g.stats.Summaries++
	s := g.stats
	started := g.started
	g.started = time.Time{}
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"total":       s.Total,
		"success":     s.Success,
		"failed":      s.Failed,
		"peak_active": s.PeakActive,
		"duration":    time.Since(started).String(),
	}).Info("Proxy gateway idle summary")
}

func (g *Gateway) track(fn func(*Stats)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.stats)
}

func labelFor(req Request) string {
	if req.Label != "" {
		return req.Label
	}
	return "proxy " + req.URL
}
