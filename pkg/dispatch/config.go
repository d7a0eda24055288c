package dispatch

import (
	"fmt"
	"time"

	"github.com/lisanmuaddib/event-scraper/internal/envutil"
	"github.com/lisanmuaddib/event-scraper/pkg/scrapers"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds one scrape attempt.
	DefaultTimeout = 60 * time.Second
	// DefaultConcurrency processes a batch strictly in order.
	DefaultConcurrency = 1
)

// Config wires a Dispatcher.
// Environment variables:
//   - SCRAPE_URL_CONCURRENCY: URLs processed at once per batch (default: 1)
//   - SCRAPE_TIMEOUT_SECONDS: per-attempt timeout (default: 60)
type Config struct {
	Registry *scrapers.Registry
	// Organizers handles Eventbrite organizer pages. Nil routes them like any other URL.
	Organizers OrganizerScraper
	// Auto handles domains without a registered scraper.
	Auto        scrapers.Func
	Logger      *logrus.Logger
	Timeout     time.Duration
	Concurrency int
}

// NewConfig reads the batch policy from the environment. Collaborators are
// left for the caller to set.
func NewConfig() (*Config, error) {
	if err := envutil.LoadDotEnv(); err != nil {
		return nil, err
	}
	config := &Config{
		Timeout:     envutil.Seconds("SCRAPE_TIMEOUT_SECONDS", DefaultTimeout),
		Concurrency: envutil.Int("SCRAPE_URL_CONCURRENCY", DefaultConcurrency),
		Logger:      logrus.New(),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate fills defaults and rejects unusable values.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.Registry == nil {
		c.Registry = scrapers.NewRegistry()
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Timeout < 0 {
		return fmt.Errorf("dispatch: timeout must be positive, got %v", c.Timeout)
	}
	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Concurrency < 0 {
		return fmt.Errorf("dispatch: concurrency must be positive, got %d", c.Concurrency)
	}
	return nil
}
