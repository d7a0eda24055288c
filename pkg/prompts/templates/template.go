package prompts

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// Template input variable names shared by the scrape prompts.
const (
	VarURL        = "url"
	VarOrigin     = "origin"
	VarNow        = "now"
	VarHTML       = "html"
	VarCandidates = "candidates"
)

// EventFields lists the keys every extraction prompt asks the model for.
var EventFields = []string{
	"source_url",
	"name",
	"start_time (ISO 8601)",
	"end_time (ISO 8601)",
	"organizer: { name, url }",
	"ticket_url (absolute, include the domain)",
	"image_url",
	"event_url",
	"location",
	"price",
	"tags (array)",
	"description_md",
	"short_summary",
}

// NewSingleEventPrompt asks for exactly one event from a single event page.
func NewSingleEventPrompt() prompts.PromptTemplate {
	var b strings.Builder
	b.WriteString("Extract exactly ONE event from the HTML below (this is a single event page, not a list).\n")
	b.WriteString("Use context clues to infer dates and normalize them to ISO 8601.\n")
	b.WriteString("If the page describes multiple events or it is ambiguous, return all fields null or empty arrays.\n")
	b.WriteString("For \"description_md\": turn the description into markdown, including images.\n")
	b.WriteString("Return ONLY strict JSON with ALL of these keys (null or [] if unknown):\n")
	writeFields(&b, EventFields)
	b.WriteString("SOURCE_URL: {{.url}}\n")
	b.WriteString("CLEAN_HTML (truncated):\n{{.html}}")

	return prompts.NewPromptTemplate(b.String(), []string{VarURL, VarHTML})
}

// NewListPagePrompt asks for every event listed directly on a page.
func NewListPagePrompt() prompts.PromptTemplate {
	var b strings.Builder
	b.WriteString("The HTML below is a page listing several events.\n")
	b.WriteString("Extract every distinct event that is described on the page itself.\n")
	b.WriteString("Skip events that are clearly before NOW_ISO. Normalize dates to ISO 8601.\n")
	b.WriteString("Return ONLY strict JSON of the form { \"events\": [ ... ] } where each event has these keys (null or [] if unknown):\n")
	writeFields(&b, EventFields)
	b.WriteString("BASE_URL: {{.url}}\n")
	b.WriteString("NOW_ISO: {{.now}}\n")
	b.WriteString("CLEAN_HTML (truncated):\n{{.html}}")

	return prompts.NewPromptTemplate(b.String(), []string{VarURL, VarNow, VarHTML})
}

// NewDiscoveryPrompt asks for links to event detail or ticket pages on a list page.
func NewDiscoveryPrompt() prompts.PromptTemplate {
	template := `Extract ticket URLs from an HTML page that is a list of events.
Rules:
- Ignore nav, footer, socials, and non-event links.
- Treat the page as a list if it has multiple blocks with a date/time and links to ticket sites or internal event pages.
- Return only links that look like dedicated event detail pages or direct ticket pages.
- If you can infer a datetime near a link, include it as ISO 8601 in "approx_start_time", else null.
- Add "source_hint" when it is detectable from the URL.
- Prefer future events relative to NOW_ISO. Exclude items you can tell are in the past.
Output strict JSON: { "items": [ { "url": string, "approx_start_time": string|null, "title": string|null, "source_hint": string|null } ] }

BASE_URL: {{.url}}
BASE_ORIGIN: {{.origin}}
NOW_ISO: {{.now}}
CLEAN_HTML (truncated):
{{.html}}`

	return prompts.NewPromptTemplate(template, []string{VarURL, VarOrigin, VarNow, VarHTML})
}

// NewRenderJudgePrompt asks the model which rendered copy of a page is more complete.
func NewRenderJudgePrompt() prompts.PromptTemplate {
	template := `Two services rendered the same event page. Decide which rendering is more complete and
usable for extracting the event's name, date, time, location, price and ticket link.
Prefer the copy with real event content over block pages, captchas, cookie walls or empty shells.

PAGE_URL: {{.url}}

{{.candidates}}

Return ONLY strict JSON: { "provider": "<one of the provider names above>", "reason": "<short reason>" }`

	return prompts.NewPromptTemplate(template, []string{VarURL, VarCandidates})
}

// JudgeCandidate is one rendering shown to the judge.
type JudgeCandidate struct {
	Provider  string
	HTML      string
	JSONBlobs []string
}

// FormatJudgeCandidates renders candidates as labelled sections.
func FormatJudgeCandidates(candidates []JudgeCandidate) string {
	var b strings.Builder
	for i, c := range candidates {
		b.WriteString(fmt.Sprintf("=== CANDIDATE %d: provider=%q ===\n", i+1, c.Provider))
		if len(c.JSONBlobs) > 0 {
			b.WriteString("STRUCTURED_DATA:\n")
			for _, blob := range c.JSONBlobs {
				b.WriteString(blob)
				b.WriteString("\n")
			}
		}
		b.WriteString("CLEAN_HTML (truncated):\n")
		b.WriteString(c.HTML)
		b.WriteString("\n\n")
	}
	return b.String()
}

func writeFields(b *strings.Builder, fields []string) {
	for _, f := range fields {
		b.WriteString(fmt.Sprintf("  - %s\n", f))
	}
}
