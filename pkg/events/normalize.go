package events

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var platformHosts = []struct {
	needles  []string
	platform string
}{
	{[]string{"eventbrite"}, PlatformEventbrite},
	{[]string{"tickettailor", "buytickets.at"}, PlatformTicketTailor},
	{[]string{"forbiddentickets"}, PlatformForbiddenTickets},
	{[]string{"plura"}, PlatformPlura},
	{[]string{"dice.fm"}, PlatformDICE},
	{[]string{"withfriends"}, PlatformWithFriends},
	{[]string{"lu.ma"}, PlatformLuma},
	{[]string{"partiful"}, PlatformPartiful},
	{[]string{"meetup"}, PlatformMeetup},
	{[]string{"ra.co"}, PlatformResidentAdvisor},
}

var (
	longNumberPattern  = regexp.MustCompile(`\d{5,}`)
	nonWordPattern     = regexp.MustCompile(`\W+`)
	organizerIDPattern = regexp.MustCompile(`/o/.*-(\d+)$`)
)

var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"mc_cid", "mc_eid", "fbclid", "gclid",
}

// ClassifyPlatform maps a URL's hostname to a ticketing platform name.
func ClassifyPlatform(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return PlatformUnknown
	}
	host := strings.ToLower(u.Hostname())
	for _, entry := range platformHosts {
		for _, needle := range entry.needles {
			if strings.Contains(host, needle) {
				return entry.platform
			}
		}
	}
	return PlatformUnknown
}

// DeriveOriginalID builds a stable id for an event URL. A numeric id of five
// or more digits in the last path segment is preferred; otherwise the
// hostname and path are slugified.
func DeriveOriginalID(rawURL, platform string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	parts := pathParts(u.Path)
	last := ""
	if len(parts) > 0 {
		last = parts[len(parts)-1]
	}
	if num := longNumberPattern.FindString(last); num != "" {
		return strings.ToLower(platform) + "-" + num
	}
	path := strings.Join(parts, "-")
	if len(path) > 40 {
		path = path[:40]
	}
	return strings.ToLower(nonWordPattern.ReplaceAllString(u.Hostname(), "-") + "-" + path)
}

// DeriveOrganizerOriginalID extracts an organizer id from "/o/<slug>-<id>"
// style URLs. It returns "" when the URL has no such id.
func DeriveOrganizerOriginalID(rawURL, platform string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	m := organizerIDPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return ""
	}
	return strings.ToLower(platform) + "-" + m[1]
}

// CanonicalURLKey strips tracking parameters and a trailing slash so that
// links pointing at the same page compare equal.
func CanonicalURLKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	u.RawQuery = q.Encode()
	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	u.Fragment = ""
	return u.String()
}

// ToISO coerces a loosely typed date into an RFC3339 UTC string. Values that
// cannot be parsed become "".
func ToISO(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return ""
	}
	t, err := cast.ToTimeE(v)
	if err != nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ParseDate parses an RFC3339 (or otherwise cast-compatible) date.
func ParseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return cast.ToTimeE(s)
}

// StartsAtOrAfter reports whether the event has a parseable start date that
// is not before now.
func (e NormalizedEventInput) StartsAtOrAfter(now time.Time) bool {
	start, err := ParseDate(e.StartDate)
	if err != nil {
		return false
	}
	return !start.Before(now)
}

// IsRetreatByDuration reports whether an event lasts longer than a day.
func IsRetreatByDuration(start, end string) bool {
	s, err := ParseDate(start)
	if err != nil {
		return false
	}
	e, err := ParseDate(end)
	if err != nil {
		return false
	}
	return e.Sub(s) > 24*time.Hour
}

func pathParts(p string) []string {
	var parts []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			parts = append(parts, seg)
		}
	}
	return parts
}
