package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"ops-dashboard/internal/model"
	"ops-dashboard/internal/repository"
)

// EventInput represents a one-off calendar event.
type EventInput struct {
	Title       string
	Description string
	Space       string
	Attendees   string
	StartsAt    time.Time
	EndsAt      time.Time
}

// EventService handles calendar events that are not part of a series.
// Recurring events go through SeriesService.
type EventService struct {
	eventRepo *repository.EventRepository
	spaces    *SpaceService
}

func NewEventService(eventRepo *repository.EventRepository, spaces *SpaceService) *EventService {
	return &EventService{eventRepo: eventRepo, spaces: spaces}
}

func (s *EventService) CreateEvent(ctx context.Context, input EventInput) (*model.Event, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if input.StartsAt.IsZero() {
		return nil, fmt.Errorf("%w: start time is required", ErrInvalidInput)
	}
	if input.EndsAt.IsZero() {
		input.EndsAt = input.StartsAt
	}
	if input.EndsAt.Before(input.StartsAt) {
		return nil, fmt.Errorf("%w: event ends before it starts", ErrInvalidInput)
	}

	spaceID, err := s.spaces.Resolve(ctx, input.Space)
	if err != nil {
		return nil, err
	}

	event := model.Event{
		SpaceID:     spaceID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Attendees:   input.Attendees,
		StartsAt:    input.StartsAt,
		EndsAt:      input.EndsAt,
	}
	if err := s.eventRepo.Create(ctx, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Agenda lists events starting on the calendar day of day, in day's location.
func (s *EventService) Agenda(ctx context.Context, day time.Time) ([]model.Event, error) {
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return s.eventRepo.ListBetween(ctx, from, from.AddDate(0, 0, 1))
}

func (s *EventService) ListBetween(ctx context.Context, from, to time.Time) ([]model.Event, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: empty time window", ErrInvalidInput)
	}
	return s.eventRepo.ListBetween(ctx, from, to)
}

func (s *EventService) DeleteEvent(ctx context.Context, eventID uint) error {
	err := s.eventRepo.Delete(ctx, eventID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("event %d: %w", eventID, ErrEventNotFound)
	}
	return err
}
