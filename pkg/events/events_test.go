package events_test

import (
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/events"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MergeDefaults", func() {
	It("lets metadata override defaults and merges the organizer per field", func() {
		defaults := events.NormalizedEventInput{
			Location:  "Brooklyn",
			Tags:      []string{"default"},
			Organizer: events.Organizer{Name: "Default Org", URL: "https://default.example"},
		}
		meta := &events.NormalizedEventInput{
			Name:      "Rope Jam",
			Organizer: events.Organizer{Name: "Rope Crew"},
		}

		merged, err := events.MergeDefaults(defaults, meta)
		Expect(err).NotTo(HaveOccurred())
		Expect(merged.Name).To(Equal("Rope Jam"))
		Expect(merged.Location).To(Equal("Brooklyn"))
		Expect(merged.Organizer.Name).To(Equal("Rope Crew"))
		Expect(merged.Organizer.URL).To(Equal("https://default.example"))
		Expect(merged.Tags).To(Equal([]string{"default"}))
	})

	It("does not share tag slices with the defaults", func() {
		defaults := events.NormalizedEventInput{Tags: []string{"a"}}
		merged, err := events.MergeDefaults(defaults, nil)
		Expect(err).NotTo(HaveOccurred())
		merged.Tags[0] = "changed"
		Expect(defaults.Tags[0]).To(Equal("a"))
	})
})

var _ = Describe("Overlay", func() {
	It("only fills fields the event left empty", func() {
		ev := events.NormalizedEventInput{Name: "Scraped", Location: "Here"}
		out := ev.Overlay(events.NormalizedEventInput{Name: "Default", Price: "10.00"})
		Expect(out.Name).To(Equal("Scraped"))
		Expect(out.Price).To(Equal("10.00"))
		Expect(out.Location).To(Equal("Here"))
	})
})

var _ = Describe("normalization helpers", func() {
	DescribeTable("ClassifyPlatform",
		func(url, expected string) {
			Expect(events.ClassifyPlatform(url)).To(Equal(expected))
		},
		Entry("eventbrite", "https://www.eventbrite.com/e/foo-123", events.PlatformEventbrite),
		Entry("buytickets.at", "https://buytickets.at/org/12345", events.PlatformTicketTailor),
		Entry("luma", "https://lu.ma/abc", events.PlatformLuma),
		Entry("resident advisor", "https://ra.co/events/1", events.PlatformResidentAdvisor),
		Entry("unknown", "https://example.org/party", events.PlatformUnknown),
		Entry("garbage", "::not a url", events.PlatformUnknown),
	)

	It("prefers a long numeric id in the last path segment", func() {
		Expect(events.DeriveOriginalID("https://www.eventbrite.com/e/rope-night-1234567", "Eventbrite")).
			To(Equal("eventbrite-1234567"))
	})

	It("slugifies host and path when there is no numeric id", func() {
		Expect(events.DeriveOriginalID("https://Example.org/events/Summer-Party/", "Unknown")).
			To(Equal("example-org-events-summer-party"))
	})

	It("extracts organizer ids from /o/ urls", func() {
		Expect(events.DeriveOrganizerOriginalID("https://www.eventbrite.com/o/some-org-987654", "Eventbrite")).
			To(Equal("eventbrite-987654"))
		Expect(events.DeriveOrganizerOriginalID("https://example.org/about", "Unknown")).To(BeEmpty())
	})

	It("strips tracking params and trailing slashes from canonical keys", func() {
		a := events.CanonicalURLKey("https://example.org/e/1/?utm_source=x&fbclid=y")
		b := events.CanonicalURLKey("https://example.org/e/1")
		Expect(a).To(Equal(b))
	})

	It("coerces dates to RFC3339 UTC and turns failures into empty strings", func() {
		Expect(events.ToISO("2030-05-01T20:00:00-04:00")).To(Equal("2030-05-02T00:00:00Z"))
		Expect(events.ToISO("2030-05-01")).To(Equal("2030-05-01T00:00:00Z"))
		Expect(events.ToISO("next tuesday")).To(BeEmpty())
		Expect(events.ToISO(nil)).To(BeEmpty())
	})

	It("gates on start dates not before now", func() {
		now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		Expect(events.NormalizedEventInput{StartDate: "2030-01-01T00:00:00Z"}.StartsAtOrAfter(now)).To(BeTrue())
		Expect(events.NormalizedEventInput{StartDate: "2029-12-31T23:59:59Z"}.StartsAtOrAfter(now)).To(BeFalse())
		Expect(events.NormalizedEventInput{}.StartsAtOrAfter(now)).To(BeFalse())
	})

	It("flags events longer than a day as retreats", func() {
		Expect(events.IsRetreatByDuration("2030-01-01T00:00:00Z", "2030-01-03T00:00:00Z")).To(BeTrue())
		Expect(events.IsRetreatByDuration("2030-01-01T00:00:00Z", "2030-01-01T05:00:00Z")).To(BeFalse())
	})
})

var _ = Describe("SkipCollector", func() {
	It("defaults stage and level and prefers error-level skips", func() {
		var c events.SkipCollector
		c.Add(events.SkipReason{URL: "a", Reason: "series parent"})
		c.Add(events.SkipReason{URL: "b", Reason: "boom", Level: events.LevelError})

		first, ok := c.FirstError()
		Expect(ok).To(BeTrue())
		Expect(first.URL).To(Equal("b"))
		Expect(c.Skips()[0].Stage).To(Equal(events.StageScrape))
		Expect(c.Skips()[0].Level).To(Equal(events.LevelWarn))
	})
})
