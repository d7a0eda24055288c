// Package render fetches JavaScript-rendered HTML from two independent
// backends and decides which copy to hand to the extractor.
package render

import (
	"context"
	"time"

	"github.com/lisanmuaddib/event-scraper/pkg/htmlprep"
)

// Provider names.
const (
	ProviderOxylabs  = "oxylabs"
	ProviderScrapeIO = "scrapeio"
)

// Provider is one render backend.
type Provider interface {
	Name() string
	// RenderPage returns rendered HTML. An empty string means nothing usable.
	RenderPage(ctx context.Context, url string) (string, error)
}

// Result is the outcome of one provider's render attempt.
type Result struct {
	Provider string        `json:"provider"`
	OK       bool          `json:"ok"`
	HTML     string        `json:"-"`
	Duration time.Duration `json:"ms"`
	Error    string        `json:"error,omitempty"`
}

// Candidate is a successful render prepared for the judge and extractor.
type Candidate struct {
	Provider string
	HTML     string
	Prepped  htmlprep.Prepared
}

// Kind tags how an Outcome was reached.
type Kind int

const (
	// Unavailable means no provider returned HTML.
	Unavailable Kind = iota
	// Single means exactly one provider returned HTML and no judge was asked.
	Single
	// Arbitrated means the judge was consulted to pick between candidates.
	Arbitrated
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "single"
	case Arbitrated:
		return "arbitrated"
	default:
		return "unavailable"
	}
}

// Outcome is what Pick returns.
type Outcome struct {
	Kind   Kind
	Chosen Candidate
	// Reason is the judge's explanation for Arbitrated outcomes.
	Reason string
	// Defaulted is set when the judge failed or named an unknown provider
	// and the first candidate was used instead.
	Defaulted  bool
	Candidates []Candidate
	Renders    []Result
}

// Ordered returns the chosen candidate followed by the rest in their original order.
func (o Outcome) Ordered() []Candidate {
	if o.Kind == Unavailable {
		return nil
	}
	out := []Candidate{o.Chosen}
	for _, c := range o.Candidates {
		if c.Provider != o.Chosen.Provider {
			out = append(out, c)
		}
	}
	return out
}

// FirstHTML returns the first successful render's HTML, preferring OK results.
func FirstHTML(results []Result) (string, bool) {
	for _, r := range results {
		if r.OK && r.HTML != "" {
			return r.HTML, true
		}
	}
	for _, r := range results {
		if r.HTML != "" {
			return r.HTML, true
		}
	}
	return "", false
}
