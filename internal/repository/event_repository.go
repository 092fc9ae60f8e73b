package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ops-dashboard/internal/model"
)

// EventRepository handles calendar events.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Create(ctx context.Context, event *model.Event) error {
	event.AnchorDate = utcPtr(event.AnchorDate)
	event.StartsAt = event.StartsAt.UTC()
	event.EndsAt = event.EndsAt.UTC()
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// ListBetween returns events starting in [from, to).
func (r *EventRepository) ListBetween(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	var events []model.Event
	if err := r.db.WithContext(ctx).Where("starts_at >= ? AND starts_at < ?", from.UTC(), to.UTC()).
		Order("starts_at ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

func (r *EventRepository) ListBySeries(ctx context.Context, seriesID uint) ([]model.Event, error) {
	var events []model.Event
	if err := r.db.WithContext(ctx).Where("series_id = ?", seriesID).
		Order("anchor_date ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list series events: %w", err)
	}
	return events, nil
}

func (r *EventRepository) ExistsForAnchor(ctx context.Context, seriesID uint, anchor time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("series_id = ? AND anchor_date = ?", seriesID, anchor.UTC()).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check event anchor: %w", err)
	}
	return count > 0, nil
}

func (r *EventRepository) Delete(ctx context.Context, eventID uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Event{}, eventID)
	if res.Error != nil {
		return fmt.Errorf("delete event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Orphan detaches every event from the series while keeping the events.
func (r *EventRepository) Orphan(ctx context.Context, seriesID uint) error {
	if err := r.db.WithContext(ctx).Model(&model.Event{}).Where("series_id = ?", seriesID).
		Updates(map[string]interface{}{"series_id": nil, "anchor_date": nil}).Error; err != nil {
		return fmt.Errorf("orphan events: %w", err)
	}
	return nil
}
