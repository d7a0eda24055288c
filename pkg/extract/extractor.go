// Package extract turns rendered HTML into normalized events with a
// language model. It owns the AI scrape path used for domains that have no
// dedicated scraper.
package extract

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/events"
	"github.com/lisanmuaddib/event-scraper/pkg/htmlprep"
	"github.com/lisanmuaddib/event-scraper/pkg/llm"
	templates "github.com/lisanmuaddib/event-scraper/pkg/prompts/templates"
	"github.com/lisanmuaddib/event-scraper/pkg/render"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/tmc/langchaingo/prompts"
)

// Defaults for discovery fan-out.
const (
	DefaultMaxDiscoveredEvents  = 25
	MaxDiscoveredEventsCeiling  = 500
	DefaultDiscoveryConcurrency = 4
)

// Renderer is the part of render.Picker the extractor needs.
type Renderer interface {
	Pick(ctx context.Context, url string) render.Outcome
	RenderAll(ctx context.Context, url string) []render.Result
}

// Config wires an Extractor.
type Config struct {
	Model    llm.LLM
	Renderer Renderer
	Logger   *logrus.Logger
	// MaxDiscoveredEvents caps links followed from one list page.
	MaxDiscoveredEvents int
	// DiscoveryConcurrency bounds concurrent detail scrapes during discovery.
	DiscoveryConcurrency int
	// Now is the clock used for the future-event gate.
	Now func() time.Time
}

// Extractor runs the AI scrape path.
type Extractor struct {
	model     llm.LLM
	renderer  Renderer
	logger    *logrus.Logger
	maxEvents int
	fanOut    int
	now       func() time.Time

	singlePrompt    prompts.PromptTemplate
	listPrompt      prompts.PromptTemplate
	discoveryPrompt prompts.PromptTemplate
}

// New creates an Extractor.
func New(config Config) *Extractor {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	if config.MaxDiscoveredEvents <= 0 {
		config.MaxDiscoveredEvents = DefaultMaxDiscoveredEvents
	}
	if config.MaxDiscoveredEvents > MaxDiscoveredEventsCeiling {
		config.MaxDiscoveredEvents = MaxDiscoveredEventsCeiling
	}
	if config.DiscoveryConcurrency <= 0 {
		config.DiscoveryConcurrency = DefaultDiscoveryConcurrency
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Extractor{
		model:           config.Model,
		renderer:        config.Renderer,
		logger:          config.Logger,
		maxEvents:       config.MaxDiscoveredEvents,
		fanOut:          config.DiscoveryConcurrency,
		now:             config.Now,
		singlePrompt:    templates.NewSingleEventPrompt(),
		listPrompt:      templates.NewListPagePrompt(),
		discoveryPrompt: templates.NewDiscoveryPrompt(),
	}
}

// rawEvent is the loosely typed shape models return. Every field tolerates
// null, numbers or strings.
type rawEvent struct {
	SourceURL     any `json:"source_url"`
	Name          any `json:"name"`
	StartTime     any `json:"start_time"`
	EndTime       any `json:"end_time"`
	Organizer     any `json:"organizer"`
	TicketURL     any `json:"ticket_url"`
	ImageURL      any `json:"image_url"`
	EventURL      any `json:"event_url"`
	Location      any `json:"location"`
	Price         any `json:"price"`
	Tags          any `json:"tags"`
	DescriptionMD any `json:"description_md"`
	ShortSummary  any `json:"short_summary"`
}

// ExtractEvent asks the model for exactly one event in html. A nil event
// with a nil error means nothing usable was found.
func (x *Extractor) ExtractEvent(ctx context.Context, html, pageURL string, defaults events.NormalizedEventInput) (*events.NormalizedEventInput, error) {
	cleaned, err := htmlprep.Clean(html)
	if err != nil {
		cleaned = html
	}

	prompt, err := x.singlePrompt.Format(map[string]any{
		templates.VarURL:  pageURL,
		templates.VarHTML: htmlprep.Truncate(cleaned, htmlprep.MaxBytes),
	})
	if err != nil {
		return nil, fmt.Errorf("formatting extraction prompt: %w", err)
	}

	start := time.Now()
	completion, err := x.model.Generate(ctx, prompt, llm.WithTemperature(0), llm.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	var raw rawEvent
	if err := llm.DecodeJSON(completion, &raw); err != nil {
		x.logger.WithFields(logrus.Fields{
			"url":   pageURL,
			"error": err,
		}).Debug("Extraction returned no JSON")
		return nil, nil
	}

	ev := x.toEvent(raw, pageURL, defaults)
	x.logger.WithFields(logrus.Fields{
		"url":      pageURL,
		"name":     ev.Name,
		"start":    ev.StartDate,
		"duration": time.Since(start).String(),
	}).Debug("Extraction finished")

	if ev.Name == "" && ev.StartDate == "" {
		return nil, nil
	}
	return &ev, nil
}

// ScrapeSingle renders pageURL, then walks the candidates chosen-first and
// returns the first extraction with a name and a start date not before now.
func (x *Extractor) ScrapeSingle(ctx context.Context, pageURL string, defaults events.NormalizedEventInput, now time.Time, onSkip events.SkipFunc) ([]events.NormalizedEventInput, error) {
	outcome := x.renderer.Pick(ctx, pageURL)
	if outcome.Kind == render.Unavailable {
		onSkip.Emit(events.SkipReason{
			URL:    pageURL,
			Reason: "no render provider returned HTML",
			Detail: renderErrors(outcome.Renders),
			Source: "ai",
			Stage:  events.StageScrape,
			Level:  events.LevelError,
		})
		return nil, nil
	}

	var lastReason string
	for _, c := range outcome.Ordered() {
		ev, err := x.ExtractEvent(ctx, c.HTML, pageURL, defaults)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			x.logger.WithFields(logrus.Fields{
				"url":      pageURL,
				"provider": c.Provider,
				"error":    err,
			}).Warn("Extraction failed for candidate")
			lastReason = err.Error()
			continue
		}
		switch {
		case ev == nil || ev.Name == "":
			lastReason = "no event found in " + c.Provider + " render"
		case ev.StartDate == "":
			lastReason = "missing start date"
		case !ev.StartsAtOrAfter(now):
			lastReason = "event in the past"
		default:
			x.logger.WithFields(logrus.Fields{
				"url":      pageURL,
				"provider": c.Provider,
				"kind":     outcome.Kind.String(),
				"judged":   outcome.Reason,
			}).Info("Extracted event")
			return []events.NormalizedEventInput{*ev}, nil
		}
	}

	onSkip.Emit(events.SkipReason{
		URL:    pageURL,
		Reason: "no valid event extracted",
		Detail: lastReason,
		Source: "ai",
		Stage:  events.StageScrape,
		Level:  events.LevelWarn,
	})
	return nil, nil
}

func (x *Extractor) toEvent(raw rawEvent, pageURL string, defaults events.NormalizedEventInput) events.NormalizedEventInput {
	platform := events.ClassifyPlatform(pageURL)
	orgName, orgURL := organizerFields(raw.Organizer)
	orgURL = resolveURL(pageURL, orgURL)

	ev := events.NormalizedEventInput{
		OriginalID: events.DeriveOriginalID(pageURL, platform),
		Name:       str(raw.Name),
		StartDate:  events.ToISO(raw.StartTime),
		EndDate:    events.ToISO(raw.EndTime),
		Organizer: events.Organizer{
			Name:       orgName,
			URL:        orgURL,
			OriginalID: events.DeriveOrganizerOriginalID(orgURL, platform),
		},
		TicketURL:               firstNonEmpty(resolveURL(pageURL, str(raw.TicketURL)), pageURL),
		ImageURL:                resolveURL(pageURL, str(raw.ImageURL)),
		EventURL:                firstNonEmpty(resolveURL(pageURL, str(raw.EventURL)), pageURL),
		Location:                str(raw.Location),
		Price:                   str(raw.Price),
		Tags:                    tags(raw.Tags),
		Description:             str(raw.DescriptionMD),
		Recurring:               "none",
		Type:                    events.TypeEvent,
		SourceTicketingPlatform: platform,
	}
	if events.IsRetreatByDuration(ev.StartDate, ev.EndDate) {
		ev.Type = events.TypeRetreat
	}
	return ev.Overlay(defaults)
}

func organizerFields(v any) (string, string) {
	m, ok := v.(map[string]any)
	if !ok {
		return str(v), ""
	}
	return str(m["name"]), str(m["url"])
}

func str(v any) string {
	if v == nil {
		return ""
	}
	s := strings.TrimSpace(cast.ToString(v))
	if strings.EqualFold(s, "null") {
		return ""
	}
	return s
}

func tags(v any) []string {
	values := cast.ToStringSlice(v)
	if s, ok := v.(string); ok {
		values = strings.Split(s, ",")
	}
	var out []string
	for _, t := range values {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func renderErrors(results []render.Result) string {
	var parts []string
	for _, r := range results {
		if r.Error != "" {
			parts = append(parts, r.Provider+": "+r.Error)
		} else if !r.OK {
			parts = append(parts, r.Provider+": empty")
		}
	}
	return strings.Join(parts, "; ")
}
