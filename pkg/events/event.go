// Package events defines the canonical event record produced by every
// scraper path, along with skip reasons and the helpers used to normalize
// third-party data into that record.
package events

// Platform names used for source_ticketing_platform.
const (
	PlatformEventbrite       = "Eventbrite"
	PlatformTicketTailor     = "TicketTailor"
	PlatformForbiddenTickets = "ForbiddenTickets"
	PlatformPlura            = "Plura"
	PlatformDICE             = "DICE"
	PlatformWithFriends      = "WithFriends"
	PlatformLuma             = "Luma"
	PlatformPartiful         = "Partiful"
	PlatformMeetup           = "Meetup"
	PlatformResidentAdvisor  = "ResidentAdvisor"
	PlatformUnknown          = "Unknown"
)

// OriginationAIDiscovery marks events found through the AI scrape path.
const OriginationAIDiscovery = "website-ai-discovery"

// EventType distinguishes single events from multi-day retreats.
type EventType string

const (
	TypeEvent   EventType = "event"
	TypeRetreat EventType = "retreat"
)

// Organizer identifies who runs an event.
type Organizer struct {
	Name       string `json:"name,omitempty"`
	URL        string `json:"url,omitempty"`
	OriginalID string `json:"original_id,omitempty"`
}

// NormalizedEventInput is the canonical, source-agnostic event record.
// Dates are RFC3339 strings in UTC; an empty string means unknown.
type NormalizedEventInput struct {
	OriginalID  string    `json:"original_id,omitempty"`
	Name        string    `json:"name,omitempty"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	Organizer   Organizer `json:"organizer"`
	TicketURL   string    `json:"ticket_url,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	EventURL    string    `json:"event_url,omitempty"`
	SourceURL   string    `json:"source_url,omitempty"`
	Location    string    `json:"location,omitempty"`
	Price       string    `json:"price,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Description string    `json:"description,omitempty"`
	Type        EventType `json:"type,omitempty"`
	Recurring   string    `json:"recurring,omitempty"`
	NonNY       bool      `json:"non_ny,omitempty"`

	SourceTicketingPlatform   string `json:"source_ticketing_platform,omitempty"`
	SourceOriginationPlatform string `json:"source_origination_platform,omitempty"`
}

// ResultStatus is the per-item outcome reported by a persistence sink.
type ResultStatus string

const (
	ResultInserted ResultStatus = "inserted"
	ResultUpdated  ResultStatus = "updated"
	ResultSkipped  ResultStatus = "skipped"
	ResultFailed   ResultStatus = "failed"
)

// UpsertResult describes what a sink did with one event.
type UpsertResult struct {
	Status  ResultStatus
	EventID string
	Skip    *SkipReason
}
