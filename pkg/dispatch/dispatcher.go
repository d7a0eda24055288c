// Package dispatch routes URLs to the scraper responsible for their domain.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/events"
	"github.com/lisanmuaddib/event-scraper/pkg/organizer"
	"github.com/lisanmuaddib/event-scraper/pkg/scrapers"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
)

// ErrTimeout marks a scrape attempt that ran past the configured timeout.
var ErrTimeout = errors.New("scrape timeout")

// OrganizerScraper pages through an organizer feed.
type OrganizerScraper interface {
	ScrapeOrganizer(ctx context.Context, organizerURL string, defaults events.NormalizedEventInput, onSkip events.SkipFunc) ([]events.NormalizedEventInput, error)
}

// URLInput is one URL to scrape with optional hints and per-URL metadata.
type URLInput struct {
	URL                 string                       `json:"url"`
	MultipleEvents      bool                         `json:"multiple_events,omitempty"`
	ExtractFromListPage bool                         `json:"extract_from_list_page,omitempty"`
	Metadata            *events.NormalizedEventInput `json:"metadata,omitempty"`
}

// Strings converts bare URLs to inputs.
func Strings(urls ...string) []URLInput {
	out := make([]URLInput, len(urls))
	for i, u := range urls {
		out[i] = URLInput{URL: u}
	}
	return out
}

// Option adjusts a single ScrapeURLs call.
type Option func(*callOptions)

type callOptions struct {
	onSkip events.SkipFunc
}

// WithOnSkip receives every skip recorded while the batch runs.
func WithOnSkip(fn events.SkipFunc) Option {
	return func(o *callOptions) { o.onSkip = fn }
}

// Dispatcher routes URL batches.
type Dispatcher struct {
	registry    *scrapers.Registry
	organizers  OrganizerScraper
	auto        scrapers.Func
	logger      *logrus.Logger
	timeout     time.Duration
	concurrency int
}

// New creates a Dispatcher.
func New(config *Config) (*Dispatcher, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatch config: %w", err)
	}
	return &Dispatcher{
		registry:    config.Registry,
		organizers:  config.Organizers,
		auto:        config.Auto,
		logger:      config.Logger,
		timeout:     config.Timeout,
		concurrency: config.Concurrency,
	}, nil
}

// ScrapeURLs scrapes every distinct URL and returns the events found, in
// input order. A failing URL is logged and recorded as a skip; it never
// fails the batch.
func (d *Dispatcher) ScrapeURLs(ctx context.Context, inputs []URLInput, defaults events.NormalizedEventInput, opts ...Option) []events.NormalizedEventInput {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	unique := dedupe(inputs)
	d.logger.WithFields(logrus.Fields{
		"inputs":      len(unique),
		"concurrency": d.concurrency,
	}).Info("Starting scrape batch")

	results := make([][]events.NormalizedEventInput, len(unique))
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i, in := range unique {
		i, in := i, in
		g.Go(func() error {
			log := d.logger.WithFields(logrus.Fields{
				"url":   in.URL,
				"index": fmt.Sprintf("%d/%d", i+1, len(unique)),
			})
			results[i] = d.scrapeOne(ctx, in, defaults, o.onSkip, log)
			return nil
		})
	}
	_ = g.Wait()

	var out []events.NormalizedEventInput
	for _, evs := range results {
		out = append(out, evs...)
	}
	return out
}

func (d *Dispatcher) scrapeOne(ctx context.Context, in URLInput, defaults events.NormalizedEventInput, onSkip events.SkipFunc, log *logrus.Entry) []events.NormalizedEventInput {
	merged, err := events.MergeDefaults(defaults, in.Metadata)
	if err != nil {
		log.WithField("error", err).Warn("Could not merge metadata, using defaults")
	}
	if merged.SourceURL = strings.TrimSpace(merged.SourceURL); merged.SourceURL == "" {
		merged.SourceURL = in.URL
	}

	domain, err := ApexDomain(in.URL)
	if err != nil {
		log.WithField("error", err).Warn("Invalid URL")
		onSkip.Emit(events.SkipReason{
			URL:    in.URL,
			Reason: "invalid url",
			Detail: err.Error(),
			Source: "dispatch",
			Stage:  events.StageScrape,
		})
		return nil
	}
	log = log.WithField("domain", domain)

	if d.organizers != nil && organizer.IsOrganizerURL(in.URL) {
		log.Info("Using organizer scraper")
		evs, err := d.attempt(ctx, func(ctx context.Context) ([]events.NormalizedEventInput, error) {
			return d.organizers.ScrapeOrganizer(ctx, in.URL, merged, onSkip)
		})
		return d.settle(in.URL, "eventbrite-organizer", evs, err, onSkip, log)
	}

	entry, ok := d.registry.Lookup(domain)
	if !ok {
		if d.auto == nil {
			onSkip.Emit(events.SkipReason{
				URL:    in.URL,
				Reason: "no scraper for domain",
				Detail: domain,
				Source: "dispatch",
				Stage:  events.StageScrape,
			})
			return nil
		}
		if merged.SourceOriginationPlatform == "" {
			merged.SourceOriginationPlatform = events.OriginationAIDiscovery
		}
		log.WithFields(logrus.Fields{
			"multiple_events":        in.MultipleEvents,
			"extract_from_list_page": in.ExtractFromListPage,
		}).Info("No explicit scraper, delegating to AI")
		evs, err := d.attempt(ctx, func(ctx context.Context) ([]events.NormalizedEventInput, error) {
			return d.auto(ctx, scrapers.Params{
				URL:                 in.URL,
				Defaults:            merged,
				MultipleEvents:      in.MultipleEvents,
				ExtractFromListPage: in.ExtractFromListPage,
				OnSkip:              onSkip,
			})
		})
		return d.settle(in.URL, "ai", evs, err, onSkip, log)
	}

	id, ok := entry.ExtractID(in.URL)
	if !ok {
		log.Warn("Could not extract event id")
		onSkip.Emit(events.SkipReason{
			URL:    in.URL,
			Reason: "could not extract event id",
			Source: domain,
			Stage:  events.StageScrape,
		})
		return nil
	}

	log.WithField("id", id).Info("Using registered scraper")
	evs, err := d.attempt(ctx, func(ctx context.Context) ([]events.NormalizedEventInput, error) {
		return entry.Scraper(ctx, scrapers.Params{
			URL:                 in.URL,
			ID:                  id,
			Defaults:            merged,
			MultipleEvents:      in.MultipleEvents,
			ExtractFromListPage: in.ExtractFromListPage,
			OnSkip:              onSkip,
		})
	})
	return d.settle(in.URL, domain, evs, err, onSkip, log)
}

// attempt runs fn under the per-attempt timeout. It returns as soon as the
// deadline passes even if fn ignores its context, and converts panics into
// errors.
func (d *Dispatcher) attempt(ctx context.Context, fn func(ctx context.Context) ([]events.NormalizedEventInput, error)) ([]events.NormalizedEventInput, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type result struct {
		evs []events.NormalizedEventInput
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("scraper panic: %v", r)}
			}
		}()
		evs, err := fn(attemptCtx)
		done <- result{evs: evs, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return r.evs, fmt.Errorf("%w: %v", ErrTimeout, r.err)
		}
		return r.evs, r.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w after %v", ErrTimeout, d.timeout)
	}
}

// settle logs the outcome of an attempt and turns errors into skips.
// Events returned alongside an error are kept.
func (d *Dispatcher) settle(rawURL, source string, evs []events.NormalizedEventInput, err error, onSkip events.SkipFunc, log *logrus.Entry) []events.NormalizedEventInput {
	switch {
	case err == nil:
		log.WithField("events", len(evs)).Info("Scraped URL")
	case errors.Is(err, ErrTimeout):
		log.WithField("error", err).Warn("Timeout scraping URL")
		onSkip.Emit(events.SkipReason{
			URL:    rawURL,
			Reason: "timeout",
			Detail: err.Error(),
			Source: source,
			Stage:  events.StageScrape,
			Level:  events.LevelWarn,
		})
	default:
		log.WithField("error", err).Error("Error scraping URL")
		onSkip.Emit(events.SkipReason{
			URL:    rawURL,
			Reason: "scrape failed",
			Detail: err.Error(),
			Source: source,
			Stage:  events.StageScrape,
			Level:  events.LevelError,
		})
	}
	return evs
}

// ApexDomain returns the registrable domain of rawURL, e.g. eventbrite.com
// for www.eventbrite.com. Hosts the public suffix list does not know fall
// back to their last two labels.
func ApexDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return "", fmt.Errorf("no host in %q", rawURL)
	}
	if apex, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return apex, nil
	}
	parts := strings.Split(host, ".")
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(parts, "."), nil
}

func dedupe(inputs []URLInput) []URLInput {
	seen := make(map[string]bool, len(inputs))
	out := make([]URLInput, 0, len(inputs))
	for _, in := range inputs {
		if in.URL == "" || seen[in.URL] {
			continue
		}
		seen[in.URL] = true
		out = append(out, in)
	}
	return out
}
