package organizer

import (
	"github.com/lisanmuaddib/event-scraper/pkg/events"
	"github.com/spf13/cast"
)

type apiPage struct {
	Events     []apiEvent `json:"events"`
	Pagination struct {
		HasMoreItems bool `json:"has_more_items"`
	} `json:"pagination"`
}

type apiEvent struct {
	ID   any `json:"id"`
	Name struct {
		Text string `json:"text"`
	} `json:"name"`
	URL   string `json:"url"`
	Start struct {
		UTC string `json:"utc"`
	} `json:"start"`
	End struct {
		UTC string `json:"utc"`
	} `json:"end"`
	Logo *struct {
		URL string `json:"url"`
	} `json:"logo"`
	Organizer struct {
		ID   any    `json:"id"`
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"organizer"`
	Venue *struct {
		Address *struct {
			Region                  string `json:"region"`
			LocalizedAddressDisplay string `json:"localized_address_display"`
		} `json:"address"`
	} `json:"venue"`
	TicketAvailability *struct {
		MinimumTicketPrice *struct {
			Display string `json:"display"`
		} `json:"minimum_ticket_price"`
	} `json:"ticket_availability"`
	Category *struct {
		Name string `json:"name"`
	} `json:"category"`
	IsSeriesParent bool `json:"is_series_parent"`
}

func (e apiEvent) region() string {
	if e.Venue == nil || e.Venue.Address == nil {
		return ""
	}
	return e.Venue.Address.Region
}

// toEvent maps an API item to the base event later enriched from its page.
func (e apiEvent) toEvent() events.NormalizedEventInput {
	ev := events.NormalizedEventInput{
		OriginalID: prefixed(e.ID),
		Name:       e.Name.Text,
		StartDate:  e.Start.UTC,
		EndDate:    e.End.UTC,
		Organizer: events.Organizer{
			Name:       e.Organizer.Name,
			URL:        e.Organizer.URL,
			OriginalID: prefixed(e.Organizer.ID),
		},
		TicketURL:               e.URL,
		EventURL:                e.URL,
		Location:                "To be announced",
		Recurring:               "none",
		Type:                    events.TypeEvent,
		NonNY:                   e.region() != "NY",
		SourceTicketingPlatform: events.PlatformEventbrite,
	}
	if e.Logo != nil {
		ev.ImageURL = e.Logo.URL
	}
	if e.Venue != nil && e.Venue.Address != nil && e.Venue.Address.LocalizedAddressDisplay != "" {
		ev.Location = e.Venue.Address.LocalizedAddressDisplay
	}
	if e.TicketAvailability != nil && e.TicketAvailability.MinimumTicketPrice != nil {
		ev.Price = e.TicketAvailability.MinimumTicketPrice.Display
	}
	if e.Category != nil && e.Category.Name != "" {
		ev.Tags = []string{e.Category.Name}
	}
	if events.IsRetreatByDuration(ev.StartDate, ev.EndDate) {
		ev.Type = events.TypeRetreat
	}
	return ev
}

func prefixed(id any) string {
	s := cast.ToString(id)
	if s == "" {
		return ""
	}
	return "eventbrite-" + s
}
