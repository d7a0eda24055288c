package jobs

import (
	"fmt"
	"time"

	"github.com/lisanmuaddib/event-scraper/internal/envutil"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTaskConcurrency is the ceiling on tasks running at once.
	DefaultTaskConcurrency = 200
	// DefaultUpsertConcurrency bounds concurrent sink calls per task.
	DefaultUpsertConcurrency = 40
)

// Config wires a Queue.
// Environment variables:
//   - SCRAPE_TASK_CONCURRENCY: tasks running at once (default: 200)
//   - SCRAPE_UPSERT_CONCURRENCY: concurrent upserts per task (default: 40)
type Config struct {
	Scraper URLScraper
	// Sink is optional; without it scraped events are only reported.
	Sink              Sink
	Store             Store
	Logger            *logrus.Logger
	TaskConcurrency   int
	UpsertConcurrency int
	Now               func() time.Time
}

// NewConfig reads concurrency settings from the environment.
func NewConfig() (*Config, error) {
	if err := envutil.LoadDotEnv(); err != nil {
		return nil, err
	}
	config := &Config{
		TaskConcurrency:   envutil.Int("SCRAPE_TASK_CONCURRENCY", DefaultTaskConcurrency),
		UpsertConcurrency: envutil.Int("SCRAPE_UPSERT_CONCURRENCY", DefaultUpsertConcurrency),
		Logger:            logrus.New(),
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate fills defaults. A missing scraper is only an error when the
// queue is built.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	if c.Store == nil {
		c.Store = NewMemoryStore()
	}
	if c.TaskConcurrency == 0 {
		c.TaskConcurrency = DefaultTaskConcurrency
	}
	if c.UpsertConcurrency == 0 {
		c.UpsertConcurrency = DefaultUpsertConcurrency
	}
	if c.TaskConcurrency < 0 || c.UpsertConcurrency < 0 {
		return fmt.Errorf("jobs: concurrency must be positive, got task=%d upsert=%d", c.TaskConcurrency, c.UpsertConcurrency)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}
