// Package organizer pages through an Eventbrite organizer's public events
// and enriches each one from its detail page.
package organizer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/lisanmuaddib/event-scraper/pkg/events"
	"github.com/lisanmuaddib/event-scraper/pkg/proxy"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxPages bounds how many API pages are read per organizer.
const DefaultMaxPages = 3

const pageURLFormat = "https://www.eventbrite.com/api/v3/organizers/%s/events/?expand=ticket_availability,organizer,venue&status=live&only_public=true&page=%d"

// ErrInvalidOrganizerURL is returned when no organizer id can be read from the URL.
var ErrInvalidOrganizerURL = errors.New("organizer: could not extract organizer id")

var (
	organizerURLPattern = regexp.MustCompile(`(^|\.)eventbrite\.[a-z.]+/o/`)
	organizerIDPattern  = regexp.MustCompile(`-(\d+)$`)
)

// JSONFetcher is the slice of the proxy gateway used for API pages.
type JSONFetcher interface {
	GetJSON(ctx context.Context, req proxy.Request, out any) error
}

// DetailScraper enriches a base event from its detail page.
type DetailScraper interface {
	ScrapeEventDetail(ctx context.Context, base events.NormalizedEventInput) (*events.NormalizedEventInput, error)
}

// Config wires a Pager.
type Config struct {
	Fetcher JSONFetcher
	Details DetailScraper
	Logger  *logrus.Logger
	// MaxPages defaults to DefaultMaxPages.
	MaxPages int
	// DetailConcurrency bounds concurrent detail scrapes per page. Zero means
	// unbounded; the gateway ceiling still applies.
	DetailConcurrency int
}

// Pager scrapes organizer feeds.
type Pager struct {
	fetcher     JSONFetcher
	details     DetailScraper
	logger      *logrus.Logger
	maxPages    int
	concurrency int
}

// New creates a Pager.
func New(config Config) *Pager {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}
	return &Pager{
		fetcher:     config.Fetcher,
		details:     config.Details,
		logger:      config.Logger,
		maxPages:    config.MaxPages,
		concurrency: config.DetailConcurrency,
	}
}

// IsOrganizerURL reports whether rawURL points at an Eventbrite organizer page.
// Only the host and path are considered.
func IsOrganizerURL(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return organizerURLPattern.MatchString(strings.ToLower(u.Host + u.Path))
}

// OrganizerID returns the trailing numeric id of an organizer URL.
func OrganizerID(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	m := organizerIDPattern.FindStringSubmatch(strings.TrimRight(u.Path, "/"))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// PageURL builds the organizer events API URL for a 1-based page.
func PageURL(organizerID string, page int) string {
	return fmt.Sprintf(pageURLFormat, organizerID, page)
}

// ScrapeOrganizer reads up to MaxPages of the organizer's live events and
// returns every event whose detail page could be scraped. Page and detail
// failures become skip records; collected events are always returned.
func (p *Pager) ScrapeOrganizer(ctx context.Context, organizerURL string, defaults events.NormalizedEventInput, onSkip events.SkipFunc) ([]events.NormalizedEventInput, error) {
	organizerID, ok := OrganizerID(organizerURL)
	if !ok {
		return nil, fmt.Errorf("%s: %w", organizerURL, ErrInvalidOrganizerURL)
	}

	log := p.logger.WithFields(logrus.Fields{
		"url":          organizerURL,
		"organizer_id": organizerID,
	})

	var all []events.NormalizedEventInput
	for page := 1; page <= p.maxPages; page++ {
		req := proxy.Request{
			URL:   PageURL(organizerID, page),
			Label: fmt.Sprintf("Get Eventbrite Organizer page %d: %s", page, organizerURL),
		}

		var resp apiPage
		if err := p.fetcher.GetJSON(ctx, req, &resp); err != nil {
			if ctx.Err() != nil {
				return all, ctx.Err()
			}
			log.WithFields(logrus.Fields{
				"page":  page,
				"error": err,
			}).Error("Error fetching organizer page")
			onSkip.Emit(events.SkipReason{
				URL:    organizerURL,
				Reason: fmt.Sprintf("organizer page %d fetch failed", page),
				Detail: err.Error(),
				Source: "eventbrite-organizer",
				Stage:  events.StageScrape,
				Level:  events.LevelError,
			})
			break
		}

		if len(resp.Events) == 0 {
			if page == 1 {
				log.Warn("No events found for organizer")
				return nil, nil
			}
			break
		}

		got := p.scrapePage(ctx, resp.Events, defaults, onSkip)
		log.WithFields(logrus.Fields{
			"page":    page,
			"listed":  len(resp.Events),
			"scraped": len(got),
		}).Info("Scraped organizer page")
		all = append(all, got...)

		if !resp.Pagination.HasMoreItems {
			break
		}
	}

	if ctx.Err() != nil {
		return all, ctx.Err()
	}
	return all, nil
}

// scrapePage partitions a page into series parents, link-less items and
// concrete events, then enriches the concrete ones concurrently. One
// failing detail never affects the others.
func (p *Pager) scrapePage(ctx context.Context, items []apiEvent, defaults events.NormalizedEventInput, onSkip events.SkipFunc) []events.NormalizedEventInput {
	var bases []events.NormalizedEventInput
	for _, item := range items {
		switch {
		case item.IsSeriesParent:
			onSkip.Emit(events.SkipReason{
				URL:       item.URL,
				Reason:    "series parent",
				Source:    "eventbrite-organizer",
				Stage:     events.StageScrape,
				EventName: item.Name.Text,
				EventID:   prefixed(item.ID),
			})
		case item.URL == "":
			onSkip.Emit(events.SkipReason{
				Reason:    "missing event url",
				Source:    "eventbrite-organizer",
				Stage:     events.StageScrape,
				EventName: item.Name.Text,
				EventID:   prefixed(item.ID),
			})
		default:
			bases = append(bases, item.toEvent().Overlay(defaults))
		}
	}

	results := make([]*events.NormalizedEventInput, len(bases))
	var g errgroup.Group
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}
	for i, base := range bases {
		i, base := i, base
		g.Go(func() error {
			ev, err := p.details.ScrapeEventDetail(ctx, base)
			switch {
			case err != nil:
				onSkip.Emit(events.SkipReason{
					URL:       base.EventURL,
					Reason:    "event detail scrape failed",
					Detail:    err.Error(),
					Source:    "eventbrite-organizer",
					Stage:     events.StageScrape,
					EventName: base.Name,
					EventID:   base.OriginalID,
				})
			case ev == nil:
				onSkip.Emit(events.SkipReason{
					URL:       base.EventURL,
					Reason:    "event detail returned nothing",
					Source:    "eventbrite-organizer",
					Stage:     events.StageScrape,
					EventName: base.Name,
					EventID:   base.OriginalID,
				})
			default:
				results[i] = ev
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []events.NormalizedEventInput
	for _, ev := range results {
		if ev != nil {
			out = append(out, *ev)
		}
	}
	return out
}
