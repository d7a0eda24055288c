package events

import "sync"

// SkipStage says where in the pipeline an item was dropped.
type SkipStage string

const (
	StageScrape SkipStage = "scrape"
	StageUpsert SkipStage = "upsert"
)

// SkipLevel separates expected noise from real defects.
type SkipLevel string

const (
	LevelWarn  SkipLevel = "warn"
	LevelError SkipLevel = "error"
)

// SkipReason records an expected non-result. It is kept apart from errors
// so operators can tell structural noise from broken scrapers.
type SkipReason struct {
	URL       string    `json:"url"`
	Reason    string    `json:"reason"`
	Detail    string    `json:"detail,omitempty"`
	Source    string    `json:"source,omitempty"`
	Stage     SkipStage `json:"stage"`
	Level     SkipLevel `json:"level,omitempty"`
	EventName string    `json:"event_name,omitempty"`
	EventID   string    `json:"event_id,omitempty"`
}

// SkipFunc receives skip records. A nil SkipFunc discards them.
type SkipFunc func(SkipReason)

// Emit calls f if it is set.
func (f SkipFunc) Emit(s SkipReason) {
	if f != nil {
		f(s)
	}
}

// SkipCollector gathers skips from concurrent producers.
type SkipCollector struct {
	mu    sync.Mutex
	skips []SkipReason
}

// Add records a skip. It matches SkipFunc so it can be passed as one.
func (c *SkipCollector) Add(s SkipReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Stage == "" {
		s.Stage = StageScrape
	}
	if s.Level == "" {
		s.Level = LevelWarn
	}
	c.skips = append(c.skips, s)
}

// Skips returns a copy of everything recorded so far.
func (c *SkipCollector) Skips() []SkipReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SkipReason, len(c.skips))
	copy(out, c.skips)
	return out
}

// FirstError returns the first error-level skip, falling back to the
// first skip of any level.
func (c *SkipCollector) FirstError() (SkipReason, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.skips {
		if s.Level == LevelError {
			return s, true
		}
	}
	if len(c.skips) > 0 {
		return c.skips[0], true
	}
	return SkipReason{}, false
}
