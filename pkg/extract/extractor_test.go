package extract_test

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/events"
	"github.com/lisanmuaddib/event-scraper/pkg/extract"
	"github.com/lisanmuaddib/event-scraper/pkg/llm"
	"github.com/lisanmuaddib/event-scraper/pkg/render"
	"github.com/lisanmuaddib/event-scraper/pkg/scrapers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"
)

var now = time.Date(2030, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeRenderer struct {
	html map[string]string
}

func (f *fakeRenderer) RenderAll(ctx context.Context, url string) []render.Result {
	html, ok := f.html[url]
	if !ok {
		html = "<html><body><p>page " + url + "</p></body></html>"
	}
	return []render.Result{{Provider: render.ProviderScrapeIO, OK: true, HTML: html}}
}

func (f *fakeRenderer) Pick(ctx context.Context, url string) render.Outcome {
	results := f.RenderAll(ctx, url)
	c := render.Candidate{Provider: results[0].Provider, HTML: results[0].HTML}
	return render.Outcome{Kind: render.Single, Chosen: c, Candidates: []render.Candidate{c}, Renders: results}
}

type candidateRenderer struct {
	outcome render.Outcome
}

func (c *candidateRenderer) RenderAll(ctx context.Context, url string) []render.Result {
	return c.outcome.Renders
}

func (c *candidateRenderer) Pick(ctx context.Context, url string) render.Outcome {
	return c.outcome
}

var sourceURL = regexp.MustCompile(`SOURCE_URL: (\S+)`)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var _ = Describe("Extractor", func() {
	var (
		ctx   context.Context
		skips *events.SkipCollector
	)

	BeforeEach(func() {
		ctx = context.Background()
		skips = &events.SkipCollector{}
	})

	Describe("ScrapeSingle", func() {
		twoCandidates := func() *candidateRenderer {
			oxy := render.Candidate{Provider: render.ProviderOxylabs, HTML: "<html><body>OXY-PAGE</body></html>"}
			scr := render.Candidate{Provider: render.ProviderScrapeIO, HTML: "<html><body>SCRAPE-PAGE</body></html>"}
			return &candidateRenderer{outcome: render.Outcome{
				Kind:       render.Arbitrated,
				Chosen:     scr,
				Candidates: []render.Candidate{oxy, scr},
			}}
		}

		It("never accepts an event that starts before now", func() {
			model := llm.Func(func(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
				return `{"name":"Old Party","start_time":"2030-05-31T20:00:00Z","end_time":null,"tags":[]}`, nil
			})
			x := extract.New(extract.Config{Model: model, Renderer: twoCandidates(), Logger: quietLogger()})

			evs, err := x.ScrapeSingle(ctx, "https://example.org/party", events.NormalizedEventInput{}, now, skips.Add)
			Expect(err).NotTo(HaveOccurred())
			Expect(evs).To(BeEmpty())
			Expect(skips.Skips()).To(HaveLen(1))
			Expect(skips.Skips()[0].Detail).To(Equal("event in the past"))
		})

		It("tries the chosen candidate first and falls back to the runner-up", func() {
			var mu sync.Mutex
			var order []string
			model := llm.Func(func(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
				mu.Lock()
				defer mu.Unlock()
				if strings.Contains(prompt, "SCRAPE-PAGE") {
					order = append(order, "scrapeio")
					return `{"name":null,"start_time":null}`, nil
				}
				order = append(order, "oxylabs")
				return "Sure!\n```json\n{\"name\":\"Rope Jam\",\"start_time\":\"2030-07-01T23:00:00Z\",\"end_time\":\"2030-07-02T02:00:00Z\",\"organizer\":{\"name\":\"Knot Club\",\"url\":\"/o/knot-club-55555\"},\"ticket_url\":\"/tickets\",\"price\":25,\"tags\":[\"rope\",\"\"]}\n```", nil
			})
			x := extract.New(extract.Config{Model: model, Renderer: twoCandidates(), Logger: quietLogger()})

			defaults := events.NormalizedEventInput{
				SourceOriginationPlatform: events.OriginationAIDiscovery,
				Location:                  "Brooklyn",
			}
			evs, err := x.ScrapeSingle(ctx, "https://www.eventbrite.com/e/rope-jam-1234567", defaults, now, skips.Add)
			Expect(err).NotTo(HaveOccurred())
			Expect(order).To(Equal([]string{"scrapeio", "oxylabs"}))
			Expect(evs).To(HaveLen(1))

			ev := evs[0]
			Expect(ev.Name).To(Equal("Rope Jam"))
			Expect(ev.StartDate).To(Equal("2030-07-01T23:00:00Z"))
			Expect(ev.OriginalID).To(Equal("eventbrite-1234567"))
			Expect(ev.SourceTicketingPlatform).To(Equal(events.PlatformEventbrite))
			Expect(ev.SourceOriginationPlatform).To(Equal(events.OriginationAIDiscovery))
			Expect(ev.TicketURL).To(Equal("https://www.eventbrite.com/tickets"))
			Expect(ev.EventURL).To(Equal("https://www.eventbrite.com/e/rope-jam-1234567"))
			Expect(ev.Organizer.OriginalID).To(Equal("eventbrite-55555"))
			Expect(ev.Price).To(Equal("25"))
			Expect(ev.Tags).To(Equal([]string{"rope"}))
			Expect(ev.Location).To(Equal("Brooklyn"))
			Expect(skips.Skips()).To(BeEmpty())
		})

		It("records an error-level skip when no render is available", func() {
			renderer := &candidateRenderer{outcome: render.Outcome{
				Kind:    render.Unavailable,
				Renders: []render.Result{{Provider: "oxylabs", Error: "HTTP 500"}},
			}}
			x := extract.New(extract.Config{Model: llm.Func(func(context.Context, string, ...llm.Option) (string, error) {
				Fail("model should not be called")
				return "", nil
			}), Renderer: renderer, Logger: quietLogger()})

			evs, err := x.ScrapeSingle(ctx, "https://example.org/x", events.NormalizedEventInput{}, now, skips.Add)
			Expect(err).NotTo(HaveOccurred())
			Expect(evs).To(BeEmpty())
			Expect(skips.Skips()[0].Level).To(Equal(events.LevelError))
			Expect(skips.Skips()[0].Detail).To(ContainSubstring("HTTP 500"))
		})
	})

	Describe("ExtractEvent", func() {
		It("returns nil without error when the model output has no JSON", func() {
			model := llm.Func(func(context.Context, string, ...llm.Option) (string, error) {
				return "This page lists several events, so I cannot pick one.", nil
			})
			x := extract.New(extract.Config{Model: model, Renderer: &fakeRenderer{}, Logger: quietLogger()})
			ev, err := x.ExtractEvent(ctx, "<p>x</p>", "https://example.org", events.NormalizedEventInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).To(BeNil())
		})

		It("turns unparseable dates into empty strings", func() {
			model := llm.Func(func(context.Context, string, ...llm.Option) (string, error) {
				return `{"name":"Mystery","start_time":"sometime soon"}`, nil
			})
			x := extract.New(extract.Config{Model: model, Renderer: &fakeRenderer{}, Logger: quietLogger()})
			ev, err := x.ExtractEvent(ctx, "<p>x</p>", "https://example.org/m", events.NormalizedEventInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ev).NotTo(BeNil())
			Expect(ev.StartDate).To(BeEmpty())
			Expect(ev.OriginalID).To(Equal("example-org-m"))
		})

		It("propagates model call failures", func() {
			model := llm.Func(func(context.Context, string, ...llm.Option) (string, error) {
				return "", fmt.Errorf("rate limited")
			})
			x := extract.New(extract.Config{Model: model, Renderer: &fakeRenderer{}, Logger: quietLogger()})
			_, err := x.ExtractEvent(ctx, "<p>x</p>", "https://example.org", events.NormalizedEventInput{})
			Expect(err).To(MatchError(ContainSubstring("rate limited")))
		})
	})

	Describe("discovery", func() {
		listURL := "https://club.example/events"

		model := llm.Func(func(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
			if strings.Contains(prompt, "Extract ticket URLs") {
				return `{"items":[
					{"url":"/e/one","approx_start_time":"2030-07-01","title":"One"},
					{"url":"https://club.example/e/one/?utm_source=newsletter","title":"One again"},
					{"url":"/e/two","approx_start_time":null},
					{"url":"/e/old","approx_start_time":"2020-01-01"},
					{"url":""}
				]}`, nil
			}
			m := sourceURL.FindStringSubmatch(prompt)
			if m == nil {
				return "", fmt.Errorf("prompt without SOURCE_URL")
			}
			return fmt.Sprintf(`{"name":"Event at %s","start_time":"2030-07-01T20:00:00Z"}`, m[1]), nil
		})

		It("dedupes links, drops past ones and scrapes the rest", func() {
			x := extract.New(extract.Config{Model: model, Renderer: &fakeRenderer{}, Logger: quietLogger(), Now: func() time.Time { return now }})
			evs, err := x.AutoScrape(ctx, scrapers.Params{URL: listURL, MultipleEvents: true, OnSkip: skips.Add})
			Expect(err).NotTo(HaveOccurred())

			var names []string
			for _, ev := range evs {
				names = append(names, ev.Name)
			}
			Expect(names).To(ConsistOf(
				"Event at https://club.example/e/one",
				"Event at https://club.example/e/two",
			))
		})

		It("respects the discovery cap", func() {
			x := extract.New(extract.Config{Model: model, Renderer: &fakeRenderer{}, Logger: quietLogger(), MaxDiscoveredEvents: 1, Now: func() time.Time { return now }})
			evs, err := x.AutoScrape(ctx, scrapers.Params{URL: listURL, MultipleEvents: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(evs).To(HaveLen(1))
		})
	})

	Describe("list page extraction", func() {
		It("returns future events described on the page", func() {
			model := llm.Func(func(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
				Expect(prompt).To(ContainSubstring(`{ "events": [ ... ] }`))
				return `{"events":[
					{"name":"Future Munch","start_time":"2030-08-01T18:00:00Z","event_url":"/munch-123456"},
					{"name":"Workshop","start_time":"2030-08-02T18:00:00Z"},
					{"name":"Past Munch","start_time":"2020-08-01T18:00:00Z"},
					{"name":null,"start_time":"2030-08-03T18:00:00Z"}
				]}`, nil
			})
			x := extract.New(extract.Config{Model: model, Renderer: &fakeRenderer{}, Logger: quietLogger(), Now: func() time.Time { return now }})

			evs, err := x.AutoScrape(ctx, scrapers.Params{URL: "https://club.example/calendar", ExtractFromListPage: true, OnSkip: skips.Add})
			Expect(err).NotTo(HaveOccurred())
			Expect(evs).To(HaveLen(2))
			Expect(evs[0].OriginalID).To(Equal("unknown-123456"))
			Expect(evs[0].EventURL).To(Equal("https://club.example/munch-123456"))
			Expect(evs[1].OriginalID).To(HavePrefix("club-example-calendar-workshop-"))
			Expect(skips.Skips()).To(HaveLen(1))
			Expect(skips.Skips()[0].EventName).To(Equal("Past Munch"))
		})
	})
})
