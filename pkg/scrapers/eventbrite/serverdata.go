package eventbrite

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/PuerkitoBio/goquery"
	"github.com/lisanmuaddib/event-scraper/pkg/htmlprep"
	"github.com/spf13/cast"
)

var (
	serverDataPattern = regexp.MustCompile(`window\.__SERVER_DATA__\s*=\s*(\{[\s\S]*?\});`)
	nonPricePattern   = regexp.MustCompile(`[^\d.]`)
	retreatPattern    = regexp.MustCompile(`(?i)retreat|immersion`)
	bushwickPattern   = regexp.MustCompile(`(?i)bushwick`)
	brooklynPattern   = regexp.MustCompile(`(?i)\bbrooklyn\b`)
	newYorkPattern    = regexp.MustCompile(`(?i)\bnew york\b|\bnyc\b`)
)

type dateTime struct {
	UTC      string `json:"utc"`
	Local    string `json:"local"`
	Timezone string `json:"timezone"`
}

type structuredContent struct {
	Modules []struct {
		Text string `json:"text"`
	} `json:"modules"`
}

type money struct {
	Value   any    `json:"value"`
	Display string `json:"display"`
}

// serverData is the subset of window.__SERVER_DATA__ the scraper reads.
type serverData struct {
	Event *struct {
		ID          any       `json:"id"`
		Name        string    `json:"name"`
		URL         string    `json:"url"`
		Start       *dateTime `json:"start"`
		End         *dateTime `json:"end"`
		Category    string    `json:"category"`
		Subcategory string    `json:"subcategory"`
	} `json:"event"`
	Organizer *struct {
		ID                      any    `json:"id"`
		Name                    string `json:"name"`
		DisplayOrganizationName string `json:"displayOrganizationName"`
		URL                     string `json:"url"`
	} `json:"organizer"`
	Components *struct {
		EventDescription *struct {
			StructuredContent structuredContent `json:"structuredContent"`
		} `json:"eventDescription"`
		EventDetails *struct {
			Location *struct {
				VenueName string `json:"venueName"`
			} `json:"location"`
		} `json:"eventDetails"`
	} `json:"components"`
	EventHero *struct {
		Items []struct {
			CroppedLogoURL600 string `json:"croppedLogoUrl600"`
		} `json:"items"`
	} `json:"eventHero"`
	Listing *listing `json:"event_listing_response"`
}

type listing struct {
	StructuredContent *struct {
		structuredContent
		HeroCarouselWidget *struct {
			Data struct {
				Slides []struct {
					Image struct {
						URL string `json:"url"`
					} `json:"image"`
				} `json:"slides"`
			} `json:"data"`
		} `json:"heroCarouselWidget"`
	} `json:"structuredContent"`
	SchemaInfo *struct {
		SchemaImageURL string `json:"schemaImageUrl"`
	} `json:"schemaInfo"`
	Tickets *struct {
		TicketClasses []struct {
			TotalCost *money `json:"totalCost"`
		} `json:"ticketClasses"`
		Availability *struct {
			MinimumTicketPrice *money `json:"minimumTicketPrice"`
		} `json:"availability"`
	} `json:"tickets"`
	Components *struct {
		ConversionBar *struct {
			PanelDisplayPrice string `json:"panelDisplayPrice"`
		} `json:"conversionBar"`
	} `json:"components"`
}

// parseServerData finds the first script assigning window.__SERVER_DATA__
// that holds valid JSON.
func parseServerData(html []byte) (*serverData, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return nil, fmt.Errorf("error parsing event page: %w", err)
	}

	var data *serverData
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := serverDataPattern.FindStringSubmatch(s.Text())
		if m == nil {
			return true
		}
		var candidate serverData
		if err := json.Unmarshal([]byte(m[1]), &candidate); err != nil {
			return true
		}
		data = &candidate
		return false
	})
	return data, nil
}

func (d *serverData) longHTML() string {
	if d.Listing != nil && d.Listing.StructuredContent != nil && len(d.Listing.StructuredContent.Modules) > 0 {
		return d.Listing.StructuredContent.Modules[0].Text
	}
	if d.Components != nil && d.Components.EventDescription != nil && len(d.Components.EventDescription.StructuredContent.Modules) > 0 {
		return d.Components.EventDescription.StructuredContent.Modules[0].Text
	}
	return ""
}

func (d *serverData) imageURL() string {
	if d.EventHero != nil && len(d.EventHero.Items) > 0 && d.EventHero.Items[0].CroppedLogoURL600 != "" {
		return d.EventHero.Items[0].CroppedLogoURL600
	}
	if l := d.Listing; l != nil {
		if sc := l.StructuredContent; sc != nil && sc.HeroCarouselWidget != nil && len(sc.HeroCarouselWidget.Data.Slides) > 0 {
			if u := sc.HeroCarouselWidget.Data.Slides[0].Image.URL; u != "" {
				return u
			}
		}
		if l.SchemaInfo != nil {
			return l.SchemaInfo.SchemaImageURL
		}
	}
	return ""
}

func (d *serverData) venueName() string {
	if d.Components != nil && d.Components.EventDetails != nil && d.Components.EventDetails.Location != nil {
		return d.Components.EventDetails.Location.VenueName
	}
	return ""
}

func (d *serverData) tags() []string {
	if d.Event == nil {
		return nil
	}
	var out []string
	for _, t := range []string{d.Event.Category, d.Event.Subcategory} {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (d *serverData) organizer() (name, url, id string) {
	if d.Organizer == nil {
		return "", "", ""
	}
	name = strings.TrimSpace(d.Organizer.Name)
	if name == "" {
		name = strings.TrimSpace(d.Organizer.DisplayOrganizationName)
	}
	return name, d.Organizer.URL, cast.ToString(d.Organizer.ID)
}

// normalizeDate prefers the UTC timestamp and falls back to local time in
// the event's timezone.
func normalizeDate(dt *dateTime) string {
	if dt == nil {
		return ""
	}
	if dt.UTC != "" {
		return dt.UTC
	}
	if dt.Local == "" || dt.Timezone == "" {
		return ""
	}
	loc, err := time.LoadLocation(dt.Timezone)
	if err != nil {
		return ""
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", dt.Local, loc)
	if err != nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// minimumPrice returns the cheapest all-in ticket price in dollars with two
// decimals, or "" when the page has no usable price.
func minimumPrice(l *listing) string {
	if l == nil || l.Tickets == nil {
		return displayPrice(l)
	}

	cents := math.Inf(1)
	for _, tc := range l.Tickets.TicketClasses {
		if tc.TotalCost == nil {
			continue
		}
		if v, err := cast.ToFloat64E(tc.TotalCost.Value); err == nil && v > 0 && v < cents {
			cents = v
		}
	}
	if math.IsInf(cents, 1) && l.Tickets.Availability != nil && l.Tickets.Availability.MinimumTicketPrice != nil {
		if v, err := cast.ToFloat64E(l.Tickets.Availability.MinimumTicketPrice.Value); err == nil && v > 0 {
			cents = v
		}
	}
	if !math.IsInf(cents, 1) {
		return strconv.FormatFloat(cents/100, 'f', 2, 64)
	}
	return displayPrice(l)
}

func displayPrice(l *listing) string {
	if l == nil {
		return ""
	}
	display := ""
	if l.Tickets != nil && l.Tickets.Availability != nil && l.Tickets.Availability.MinimumTicketPrice != nil {
		display = l.Tickets.Availability.MinimumTicketPrice.Display
	}
	if display == "" && l.Components != nil && l.Components.ConversionBar != nil {
		display = l.Components.ConversionBar.PanelDisplayPrice
	}
	if display == "" {
		return ""
	}
	num, err := strconv.ParseFloat(nonPricePattern.ReplaceAllString(display, ""), 64)
	if err != nil {
		return ""
	}
	return strconv.FormatFloat(num, 'f', 2, 64)
}

// locationFromBody guesses a coarse location from description text for
// events that hide their venue until ticket purchase.
func locationFromBody(longHTML string) string {
	if longHTML == "" {
		return ""
	}
	text := htmlprep.Text(longHTML)
	switch {
	case bushwickPattern.MatchString(text):
		return "Bushwick, Brooklyn (TBA)"
	case brooklynPattern.MatchString(text):
		return "Brooklyn, NY (TBA)"
	case newYorkPattern.MatchString(text):
		return "New York, NY (TBA)"
	}
	return ""
}
