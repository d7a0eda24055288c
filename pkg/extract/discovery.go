package extract

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/events"
	"github.com/lisanmuaddib/event-scraper/pkg/htmlprep"
	"github.com/lisanmuaddib/event-scraper/pkg/llm"
	templates "github.com/lisanmuaddib/event-scraper/pkg/prompts/templates"
	"github.com/lisanmuaddib/event-scraper/pkg/render"
	"github.com/lisanmuaddib/event-scraper/pkg/scrapers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DiscoveredLink is one event link found on a list page.
type DiscoveredLink struct {
	URL             string `json:"url"`
	ApproxStartTime string `json:"approx_start_time,omitempty"`
	Title           string `json:"title,omitempty"`
	SourceHint      string `json:"source_hint,omitempty"`
}

// AutoScrape is the scraper used for domains without a dedicated one. It
// picks discovery, list-page extraction or single-page extraction from the
// params' hints.
func (x *Extractor) AutoScrape(ctx context.Context, p scrapers.Params) ([]events.NormalizedEventInput, error) {
	now := x.now()
	switch {
	case p.MultipleEvents:
		return x.DiscoverAndScrape(ctx, p.URL, p.Defaults, now, p.OnSkip)
	case p.ExtractFromListPage:
		return x.ExtractFromListPage(ctx, p.URL, p.Defaults, now, p.OnSkip)
	default:
		return x.ScrapeSingle(ctx, p.URL, p.Defaults, now, p.OnSkip)
	}
}

// DiscoverAndScrape finds event links on a list page and scrapes each one.
// Individual link failures never fail the page.
func (x *Extractor) DiscoverAndScrape(ctx context.Context, pageURL string, defaults events.NormalizedEventInput, now time.Time, onSkip events.SkipFunc) ([]events.NormalizedEventInput, error) {
	html, ok := render.FirstHTML(x.renderer.RenderAll(ctx, pageURL))
	if !ok {
		onSkip.Emit(events.SkipReason{
			URL:    pageURL,
			Reason: "no render provider returned HTML",
			Source: "ai-discovery",
			Stage:  events.StageScrape,
			Level:  events.LevelError,
		})
		return nil, nil
	}

	links, err := x.DiscoverLinks(ctx, html, pageURL, now)
	if err != nil {
		return nil, err
	}
	links = dedupeLinks(links)
	if len(links) > x.maxEvents {
		links = links[:x.maxEvents]
	}

	x.logger.WithFields(logrus.Fields{
		"url":   pageURL,
		"links": len(links),
	}).Info("Discovered event links")

	if len(links) == 0 {
		onSkip.Emit(events.SkipReason{
			URL:    pageURL,
			Reason: "no event links discovered",
			Source: "ai-discovery",
			Stage:  events.StageScrape,
		})
		return nil, nil
	}

	results := make([][]events.NormalizedEventInput, len(links))
	var g errgroup.Group
	g.SetLimit(x.fanOut)
	for i, link := range links {
		i, link := i, link
		g.Go(func() error {
			evs, err := x.ScrapeSingle(ctx, link.URL, defaults, now, onSkip)
			if err != nil {
				onSkip.Emit(events.SkipReason{
					URL:    link.URL,
					Reason: "detail scrape failed",
					Detail: err.Error(),
					Source: "ai-discovery",
					Stage:  events.StageScrape,
					Level:  events.LevelError,
				})
				return nil
			}
			results[i] = evs
			return nil
		})
	}
	_ = g.Wait()

	var out []events.NormalizedEventInput
	for _, evs := range results {
		for _, ev := range evs {
			if ev.StartsAtOrAfter(now) {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

// DiscoverLinks asks the model for event links in a list page's HTML.
// Links are made absolute and those known to be in the past are dropped.
func (x *Extractor) DiscoverLinks(ctx context.Context, html, pageURL string, now time.Time) ([]DiscoveredLink, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url: %w", err)
	}
	cleaned, err := htmlprep.Clean(html)
	if err != nil {
		cleaned = html
	}

	prompt, err := x.discoveryPrompt.Format(map[string]any{
		templates.VarURL:    pageURL,
		templates.VarOrigin: base.Scheme + "://" + base.Host,
		templates.VarNow:    now.UTC().Format(time.RFC3339),
		templates.VarHTML:   htmlprep.Truncate(cleaned, htmlprep.MaxBytes),
	})
	if err != nil {
		return nil, fmt.Errorf("formatting discovery prompt: %w", err)
	}

	completion, err := x.model.Generate(ctx, prompt, llm.WithTemperature(0), llm.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("discovery call failed: %w", err)
	}

	var decoded struct {
		Items []map[string]any `json:"items"`
	}
	if err := llm.DecodeJSON(completion, &decoded); err != nil {
		return nil, nil
	}

	var links []DiscoveredLink
	for _, item := range decoded.Items {
		href := str(item["url"])
		if href == "" {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		abs := base.ResolveReference(ref).String()

		approx := events.ToISO(item["approx_start_time"])
		if approx != "" && !(events.NormalizedEventInput{StartDate: approx}).StartsAtOrAfter(now) {
			continue
		}

		hint := str(item["source_hint"])
		if hint == "" {
			hint = events.ClassifyPlatform(abs)
		}
		links = append(links, DiscoveredLink{
			URL:             abs,
			ApproxStartTime: approx,
			Title:           str(item["title"]),
			SourceHint:      hint,
		})
	}
	return links, nil
}

// ExtractFromListPage pulls every event described on a list page in one
// model call, without visiting detail pages.
func (x *Extractor) ExtractFromListPage(ctx context.Context, pageURL string, defaults events.NormalizedEventInput, now time.Time, onSkip events.SkipFunc) ([]events.NormalizedEventInput, error) {
	outcome := x.renderer.Pick(ctx, pageURL)
	if outcome.Kind == render.Unavailable {
		onSkip.Emit(events.SkipReason{
			URL:    pageURL,
			Reason: "no render provider returned HTML",
			Detail: renderErrors(outcome.Renders),
			Source: "ai-list",
			Stage:  events.StageScrape,
			Level:  events.LevelError,
		})
		return nil, nil
	}

	for _, c := range outcome.Ordered() {
		evs, err := x.extractList(ctx, c.HTML, pageURL, defaults, now, onSkip)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			x.logger.WithFields(logrus.Fields{
				"url":      pageURL,
				"provider": c.Provider,
				"error":    err,
			}).Warn("List extraction failed for candidate")
			continue
		}
		if len(evs) > 0 {
			return evs, nil
		}
	}

	onSkip.Emit(events.SkipReason{
		URL:    pageURL,
		Reason: "no valid events extracted from list page",
		Source: "ai-list",
		Stage:  events.StageScrape,
	})
	return nil, nil
}

func (x *Extractor) extractList(ctx context.Context, html, pageURL string, defaults events.NormalizedEventInput, now time.Time, onSkip events.SkipFunc) ([]events.NormalizedEventInput, error) {
	cleaned, err := htmlprep.Clean(html)
	if err != nil {
		cleaned = html
	}
	prompt, err := x.listPrompt.Format(map[string]any{
		templates.VarURL:  pageURL,
		templates.VarNow:  now.UTC().Format(time.RFC3339),
		templates.VarHTML: htmlprep.Truncate(cleaned, htmlprep.MaxBytes),
	})
	if err != nil {
		return nil, fmt.Errorf("formatting list prompt: %w", err)
	}

	completion, err := x.model.Generate(ctx, prompt, llm.WithTemperature(0), llm.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("list extraction call failed: %w", err)
	}

	var decoded struct {
		Events []rawEvent `json:"events"`
	}
	if err := llm.DecodeJSON(completion, &decoded); err != nil {
		return nil, nil
	}

	seen := make(map[string]bool)
	var out []events.NormalizedEventInput
	for _, raw := range decoded.Events {
		detailURL := firstNonEmpty(resolveURL(pageURL, str(raw.EventURL)), resolveURL(pageURL, str(raw.TicketURL)))
		ev := x.toEvent(raw, firstNonEmpty(detailURL, pageURL), defaults)
		if detailURL == "" {
			// Events without their own page share the list URL, so the id
			// needs something event specific.
			ev.OriginalID = ev.OriginalID + "-" + htmlprep.StableName(ev.Name, ev.StartDate)
		}

		switch {
		case ev.Name == "":
			continue
		case !ev.StartsAtOrAfter(now):
			onSkip.Emit(events.SkipReason{
				URL:       pageURL,
				Reason:    "event in the past or missing start date",
				Source:    "ai-list",
				Stage:     events.StageScrape,
				EventName: ev.Name,
			})
			continue
		case seen[ev.OriginalID]:
			continue
		}
		seen[ev.OriginalID] = true
		out = append(out, ev)
	}
	return out, nil
}

func dedupeLinks(links []DiscoveredLink) []DiscoveredLink {
	seen := make(map[string]bool, len(links))
	out := make([]DiscoveredLink, 0, len(links))
	for _, l := range links {
		key := events.CanonicalURLKey(l.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, l)
	}
	return out
}
