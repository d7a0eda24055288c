// Package eventbrite scrapes Eventbrite event pages from the server data
// embedded in their HTML.
package eventbrite

import (
	"context"
	"errors"
	"fmt"

	"github.com/lisanmuaddib/event-scraper/pkg/events"
	"github.com/lisanmuaddib/event-scraper/pkg/htmlprep"
	"github.com/lisanmuaddib/event-scraper/pkg/proxy"
	"github.com/lisanmuaddib/event-scraper/pkg/scrapers"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Domain is the apex domain the scraper registers under.
const Domain = "eventbrite.com"

const defaultLocation = "To be announced"

var (
	// ErrNoServerData means the page carried no parseable __SERVER_DATA__ blob.
	ErrNoServerData = errors.New("eventbrite: no __SERVER_DATA__ found")
	// ErrMissingDates means neither the page nor the base event had start and end dates.
	ErrMissingDates = errors.New("eventbrite: missing start/end datetime")
)

// Fetcher fetches raw pages through the proxy gateway.
type Fetcher interface {
	Get(ctx context.Context, req proxy.Request) ([]byte, error)
}

// Scraper reads Eventbrite event pages.
type Scraper struct {
	fetcher Fetcher
	logger  *logrus.Logger
}

// New creates a Scraper.
func New(fetcher Fetcher, logger *logrus.Logger) *Scraper {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scraper{fetcher: fetcher, logger: logger}
}

// Register adds the scraper to reg for eventbrite.com with a catch-all id.
func Register(reg *scrapers.Registry, s *Scraper) error {
	return reg.Register(Domain, scrapers.Entry{
		Scraper:      s.Scrape,
		IDRegex:      scrapers.CatchAll,
		IDRegexIndex: 0,
	})
}

// Scrape is the registry entry point for a single event page.
func (s *Scraper) Scrape(ctx context.Context, p scrapers.Params) ([]events.NormalizedEventInput, error) {
	data, err := s.fetch(ctx, p.URL, "Eventbrite Event Page")
	if err != nil {
		return nil, err
	}
	if data == nil || data.Event == nil {
		s.logger.WithField("url", p.URL).Error("No __SERVER_DATA__ found")
		p.OnSkip.Emit(events.SkipReason{
			URL:    p.URL,
			Reason: "no __SERVER_DATA__ found",
			Source: "eventbrite",
			Stage:  events.StageScrape,
		})
		return nil, nil
	}

	start, end := normalizeDate(data.Event.Start), normalizeDate(data.Event.End)
	if start == "" || end == "" {
		s.logger.WithField("url", p.URL).Error("Missing start/end datetime")
		p.OnSkip.Emit(events.SkipReason{
			URL:       p.URL,
			Reason:    "missing start/end datetime",
			Source:    "eventbrite",
			Stage:     events.StageScrape,
			EventName: data.Event.Name,
		})
		return nil, nil
	}

	longHTML := data.longHTML()
	description := ""
	if longHTML != "" {
		description = htmlprep.Text(longHTML)
	}
	orgName, orgURL, orgID := data.organizer()
	ticketURL := firstNonEmpty(data.Event.URL, p.URL)

	ev := events.NormalizedEventInput{
		OriginalID: prefixed(data.Event.ID),
		Name:       data.Event.Name,
		StartDate:  start,
		EndDate:    end,
		Organizer: events.Organizer{
			Name:       orgName,
			URL:        orgURL,
			OriginalID: prefixed(orgID),
		},
		TicketURL:               ticketURL,
		EventURL:                ticketURL,
		ImageURL:                data.imageURL(),
		Location:                firstNonEmpty(p.Defaults.Location, data.venueName(), locationFromBody(longHTML), defaultLocation),
		Price:                   minimumPrice(data.Listing),
		Tags:                    data.tags(),
		Description:             description,
		Type:                    contentType(data.Event.Name, description),
		Recurring:               "none",
		NonNY:                   p.Defaults.NonNY,
		SourceTicketingPlatform: events.PlatformEventbrite,
	}
	return []events.NormalizedEventInput{ev.Overlay(p.Defaults)}, nil
}

// ScrapeEventDetail enriches an event mapped from the organizer API with
// the fields only its detail page carries. Base values fill whatever the
// page lacks.
func (s *Scraper) ScrapeEventDetail(ctx context.Context, base events.NormalizedEventInput) (*events.NormalizedEventInput, error) {
	pageURL := firstNonEmpty(base.EventURL, base.TicketURL)
	if pageURL == "" {
		return nil, fmt.Errorf("eventbrite: event %q has no url", base.OriginalID)
	}

	data, err := s.fetch(ctx, pageURL, "Get Eventbrite Event Page")
	if err != nil {
		return nil, err
	}
	if data == nil || data.Event == nil {
		return nil, fmt.Errorf("%s: %w", pageURL, ErrNoServerData)
	}

	start := firstNonEmpty(normalizeDate(data.Event.Start), base.StartDate)
	end := firstNonEmpty(normalizeDate(data.Event.End), base.EndDate)
	if start == "" || end == "" {
		return nil, fmt.Errorf("%s: %w", pageURL, ErrMissingDates)
	}

	longHTML := data.longHTML()
	description := ""
	if longHTML != "" {
		description = htmlprep.Text(longHTML)
	}

	ev := events.NormalizedEventInput{
		OriginalID:              prefixed(data.Event.ID),
		Name:                    data.Event.Name,
		StartDate:               start,
		EndDate:                 end,
		TicketURL:               firstNonEmpty(data.Event.URL, base.TicketURL, pageURL),
		EventURL:                firstNonEmpty(data.Event.URL, pageURL),
		ImageURL:                data.imageURL(),
		Location:                firstNonEmpty(data.venueName(), locationFromBody(longHTML)),
		Price:                   minimumPrice(data.Listing),
		Tags:                    data.tags(),
		Description:             description,
		Type:                    base.Type,
		Recurring:               "none",
		SourceTicketingPlatform: events.PlatformEventbrite,
	}
	if ev.Type == "" {
		ev.Type = contentType(data.Event.Name, description)
	}
	if orgName, orgURL, orgID := data.organizer(); orgName != "" {
		ev.Organizer = events.Organizer{Name: orgName, URL: orgURL, OriginalID: prefixed(orgID)}
	}

	out := ev.Overlay(base)
	out.NonNY = base.NonNY
	if out.Location == "" {
		out.Location = defaultLocation
	}
	return &out, nil
}

func (s *Scraper) fetch(ctx context.Context, pageURL, label string) (*serverData, error) {
	body, err := s.fetcher.Get(ctx, proxy.Request{URL: pageURL, Label: label + ": " + pageURL})
	if err != nil {
		return nil, fmt.Errorf("error fetching eventbrite page: %w", err)
	}
	return parseServerData(body)
}

func contentType(name, description string) events.EventType {
	if retreatPattern.MatchString(name + " " + description) {
		return events.TypeRetreat
	}
	return events.TypeEvent
}

func prefixed(id any) string {
	s := cast.ToString(id)
	if s == "" {
		return ""
	}
	return "eventbrite-" + s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
