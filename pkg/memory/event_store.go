// Package memory persists scraped events so repeated scrapes of the same
// page update one row instead of piling up duplicates.
package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/lisanmuaddib/event-scraper/pkg/db/models"
	"github.com/lisanmuaddib/event-scraper/pkg/events"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultDuration is assumed when an event has no end date.
const DefaultDuration = 3 * time.Hour

// EventStore upserts events into postgres. It satisfies jobs.Sink.
type EventStore struct {
	logger *logrus.Logger
	db     *gorm.DB
	now    func() time.Time
}

func NewEventStore(logger *logrus.Logger, db *gorm.DB) *EventStore {
	if logger == nil {
		logger = logrus.New()
	}
	return &EventStore{logger: logger, db: db, now: time.Now}
}

// UpsertEvent inserts ev or updates the row it matches. A row matches on
// original_id, or on the same start date together with the same organizer
// or the same name. Events missing a name or a usable start date are
// skipped, not failed.
func (s *EventStore) UpsertEvent(ctx context.Context, ev events.NormalizedEventInput) (events.UpsertResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"name":        ev.Name,
		"original_id": ev.OriginalID,
		"ticket_url":  ev.TicketURL,
	})

	if skip := validate(ev); skip != nil {
		log.WithField("reason", skip.Reason).Debug("Skipping event")
		return events.UpsertResult{Status: events.ResultSkipped, Skip: skip}, nil
	}
	row, err := toModel(ev)
	if err != nil {
		return events.UpsertResult{
			Status: events.ResultSkipped,
			Skip:   &events.SkipReason{Reason: "invalid start date", Detail: err.Error(), Source: "upsert"},
		}, nil
	}
	if row.OriginalID == "" {
		return events.UpsertResult{
			Status: events.ResultSkipped,
			Skip:   &events.SkipReason{Reason: "missing original id", Source: "upsert"},
		}, nil
	}

	var result events.UpsertResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findExisting(tx, row)
		if err != nil {
			return err
		}
		now := s.now()

		if existing == nil {
			row.ID = uuid.New().String()
			row.CreatedAt = now
			row.UpdatedAt = now
			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "original_id"}},
				DoNothing: true,
			}).Create(row)
			if res.Error != nil {
				return fmt.Errorf("failed to insert event: %w", res.Error)
			}
			if res.RowsAffected == 1 {
				result = events.UpsertResult{Status: events.ResultInserted, EventID: row.ID}
				return nil
			}
			// Lost a race with a concurrent insert of the same original_id.
			if existing, err = findExisting(tx, row); err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("event %s vanished after conflicting insert", row.OriginalID)
			}
		}

		updates := changes(row)
		updates["updated_at"] = now
		if err := tx.Model(&models.Event{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update event: %w", err)
		}
		result = events.UpsertResult{Status: events.ResultUpdated, EventID: existing.ID}
		return nil
	})
	if err != nil {
		log.WithField("error", err).Error("Failed to upsert event")
		return events.UpsertResult{Status: events.ResultFailed}, err
	}

	log.WithFields(logrus.Fields{
		"event_id": result.EventID,
		"status":   result.Status,
	}).Info("Upserted event")
	return result, nil
}

// FindByOriginalID returns the stored event with the given natural key.
func (s *EventStore) FindByOriginalID(ctx context.Context, originalID string) (*models.Event, error) {
	var row models.Event
	err := s.db.WithContext(ctx).Where("original_id = ?", originalID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", originalID, err)
	}
	return &row, nil
}

func findExisting(tx *gorm.DB, row *models.Event) (*models.Event, error) {
	q := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("original_id = ?", row.OriginalID)
	if row.OrganizerOriginalID != "" {
		q = q.Or("start_date = ? AND organizer_original_id = ?", row.StartDate, row.OrganizerOriginalID)
	}
	q = q.Or("start_date = ? AND name = ?", row.StartDate, row.Name)

	var found models.Event
	err := q.Order("created_at").First(&found).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing event: %w", err)
	}
	return &found, nil
}

func validate(ev events.NormalizedEventInput) *events.SkipReason {
	switch {
	case ev.Name == "":
		return &events.SkipReason{Reason: "missing name", Source: "upsert"}
	case ev.StartDate == "":
		return &events.SkipReason{Reason: "missing start date", Source: "upsert", EventName: ev.Name}
	}
	return nil
}

func toModel(ev events.NormalizedEventInput) (*models.Event, error) {
	start, err := events.ParseDate(ev.StartDate)
	if err != nil {
		return nil, err
	}
	end := start.Add(DefaultDuration)
	if ev.EndDate != "" {
		if t, err := events.ParseDate(ev.EndDate); err == nil && !t.Before(start) {
			end = t
		}
	}
	end = end.UTC()

	originalID := ev.OriginalID
	if originalID == "" {
		for _, u := range []string{ev.TicketURL, ev.EventURL} {
			if u == "" {
				continue
			}
			if originalID = events.DeriveOriginalID(u, events.ClassifyPlatform(u)); originalID != "" {
				break
			}
		}
	}

	kind := string(ev.Type)
	if kind == "" {
		kind = string(events.TypeEvent)
	}
	tags := pq.StringArray(ev.Tags)
	if tags == nil {
		tags = pq.StringArray{}
	}

	return &models.Event{
		OriginalID:                originalID,
		Name:                      ev.Name,
		StartDate:                 start.UTC(),
		EndDate:                   &end,
		OrganizerName:             ev.Organizer.Name,
		OrganizerURL:              ev.Organizer.URL,
		OrganizerOriginalID:       ev.Organizer.OriginalID,
		TicketURL:                 ev.TicketURL,
		EventURL:                  ev.EventURL,
		SourceURL:                 ev.SourceURL,
		ImageURL:                  ev.ImageURL,
		Location:                  ev.Location,
		Price:                     ev.Price,
		Tags:                      tags,
		Description:               ev.Description,
		Type:                      kind,
		Recurring:                 ev.Recurring,
		NonNY:                     ev.NonNY,
		SourceTicketingPlatform:   ev.SourceTicketingPlatform,
		SourceOriginationPlatform: ev.SourceOriginationPlatform,
	}, nil
}

// changes lists the columns an update writes. Empty scraped values never
// blank out stored ones.
func changes(row *models.Event) map[string]interface{} {
	updates := map[string]interface{}{
		"name":       row.Name,
		"start_date": row.StartDate,
		"end_date":   row.EndDate,
		"type":       row.Type,
		"non_ny":     row.NonNY,
	}
	optional := map[string]string{
		"organizer_name":              row.OrganizerName,
		"organizer_url":               row.OrganizerURL,
		"organizer_original_id":       row.OrganizerOriginalID,
		"ticket_url":                  row.TicketURL,
		"event_url":                   row.EventURL,
		"source_url":                  row.SourceURL,
		"image_url":                   row.ImageURL,
		"location":                    row.Location,
		"price":                       row.Price,
		"description":                 row.Description,
		"recurring":                   row.Recurring,
		"source_ticketing_platform":   row.SourceTicketingPlatform,
		"source_origination_platform": row.SourceOriginationPlatform,
	}
	for col, v := range optional {
		if v != "" {
			updates[col] = v
		}
	}
	if len(row.Tags) > 0 {
		updates["tags"] = row.Tags
	}
	return updates
}
