// Package scrapers defines the per-domain scraper contract and the registry
// the dispatcher consults to route URLs.
package scrapers

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/lisanmuaddib/event-scraper/pkg/events"
)

// Params are passed to every scraper.
type Params struct {
	URL string
	// ID is the scraper-specific id pulled out of URL by the registry regex.
	ID                  string
	Defaults            events.NormalizedEventInput
	MultipleEvents      bool
	ExtractFromListPage bool
	OnSkip              events.SkipFunc
}

// Func scrapes one URL. An empty result with a nil error means nothing was
// extracted; it is not a failure.
type Func func(ctx context.Context, p Params) ([]events.NormalizedEventInput, error)

// Entry is one registered domain.
type Entry struct {
	Scraper      Func
	IDRegex      *regexp.Regexp
	IDRegexIndex int
}

// ExtractID applies the entry's regex to url.
func (e Entry) ExtractID(url string) (string, bool) {
	if e.IDRegex == nil {
		return url, true
	}
	m := e.IDRegex.FindStringSubmatch(url)
	if m == nil || e.IDRegexIndex >= len(m) {
		return "", false
	}
	return m[e.IDRegexIndex], m[e.IDRegexIndex] != ""
}

// Registry maps apex domains to scrapers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds or replaces the entry for an apex domain.
func (r *Registry) Register(domain string, entry Entry) error {
	if entry.Scraper == nil {
		return fmt.Errorf("scrapers: nil scraper for %s", domain)
	}
	if entry.IDRegexIndex < 0 {
		return fmt.Errorf("scrapers: negative capture index for %s", domain)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[strings.ToLower(domain)] = entry
	return nil
}

// Lookup returns the entry for an apex domain.
func (r *Registry) Lookup(domain string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.ToLower(domain)]
	return e, ok
}

// Domains lists registered domains in sorted order.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for d := range r.entries {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// CatchAll matches any URL; the whole URL becomes the id.
var CatchAll = regexp.MustCompile(`.*`)
