package proxy

import (
	"fmt"
	"net/http"
	"time"

	"github.com/lisanmuaddib/event-scraper/internal/envutil"
	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	// DefaultEndpoint is the scrape.do API endpoint
	DefaultEndpoint = "http://api.scrape.do/"
	// DefaultConcurrency is the global ceiling on in-flight proxy calls
	DefaultConcurrency = 5
	// DefaultTimeout bounds a single proxy call
	DefaultTimeout = 60 * time.Second
	// DefaultIdleSummaryDelay is how long the gateway must be idle before it logs a summary
	DefaultIdleSummaryDelay = 10 * time.Second
)

// Config holds the proxy gateway settings.
// Environment variables:
//   - SCRAPE_DO_TOKEN: API token for the unblocking proxy
//   - SCRAPE_DO_ENDPOINT: proxy endpoint (default: http://api.scrape.do/)
//   - PROXY_CONCURRENCY: global in-flight ceiling (default: 5)
//   - PROXY_TIMEOUT_SECONDS: per-call timeout (default: 60)
//   - PROXY_REQUESTS_PER_SECOND: optional pacing, 0 disables it
type Config struct {
	Token             string
	Endpoint          string
	Concurrency       int
	Timeout           time.Duration
	RequestsPerSecond float64
	IdleSummaryDelay  time.Duration
	HTTPClient        *http.Client
	Logger            *logrus.Logger
}

// NewConfig creates a Config from environment variables, loading .env when present.
func NewConfig() (*Config, error) {
	if err := envutil.LoadDotEnv(); err != nil {
		return nil, err
	}

	config := &Config{
		Token:             envutil.String("SCRAPE_DO_TOKEN", ""),
		Endpoint:          envutil.String("SCRAPE_DO_ENDPOINT", DefaultEndpoint),
		Concurrency:       envutil.Int("PROXY_CONCURRENCY", DefaultConcurrency),
		Timeout:           envutil.Seconds("PROXY_TIMEOUT_SECONDS", DefaultTimeout),
		RequestsPerSecond: envutil.Float("PROXY_REQUESTS_PER_SECOND", 0),
		IdleSummaryDelay:  DefaultIdleSummaryDelay,
		Logger:            logrus.New(),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate fills defaults and rejects unusable values. A missing token is not
// an error here; calls that need it fail individually.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("proxy: concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Timeout < 0 {
		return fmt.Errorf("proxy: timeout must be positive, got %v", c.Timeout)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("proxy: requests per second must not be negative, got %v", c.RequestsPerSecond)
	}
	if c.IdleSummaryDelay == 0 {
		c.IdleSummaryDelay = DefaultIdleSummaryDelay
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	return nil
}
