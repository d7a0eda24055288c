package models

import (
	"time"

	"github.com/lib/pq"
)

// Event is the stored form of a scraped event. OriginalID is the natural
// key every scraper derives; ID is ours.
type Event struct {
	ID         string     `gorm:"primaryKey;column:id;type:uuid"`
	OriginalID string     `gorm:"column:original_id;uniqueIndex;not null"`
	Name       string     `gorm:"column:name;not null"`
	StartDate  time.Time  `gorm:"column:start_date;not null"`
	EndDate    *time.Time `gorm:"column:end_date"`

	// Organizer
	OrganizerName       string `gorm:"column:organizer_name"`
	OrganizerURL        string `gorm:"column:organizer_url"`
	OrganizerOriginalID string `gorm:"column:organizer_original_id"`

	// Links
	TicketURL string `gorm:"column:ticket_url"`
	EventURL  string `gorm:"column:event_url"`
	SourceURL string `gorm:"column:source_url"`
	ImageURL  string `gorm:"column:image_url"`

	Location    string         `gorm:"column:location"`
	Price       string         `gorm:"column:price"`
	Tags        pq.StringArray `gorm:"column:tags;type:text[]"`
	Description string         `gorm:"column:description"`
	Type        string         `gorm:"column:type;default:event"`
	Recurring   string         `gorm:"column:recurring"`
	NonNY       bool           `gorm:"column:non_ny;default:false"`

	SourceTicketingPlatform   string `gorm:"column:source_ticketing_platform"`
	SourceOriginationPlatform string `gorm:"column:source_origination_platform"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName specifies the table name for the Event model
func (Event) TableName() string {
	return "events"
}
