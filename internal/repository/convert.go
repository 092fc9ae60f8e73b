package repository

import (
	"fmt"
	"time"

	"ops-dashboard/internal/backfill"
	"ops-dashboard/internal/board"
	"ops-dashboard/internal/model"
	"ops-dashboard/internal/recurrence"
)

// RuleSpecOf reads the flattened rule columns of a series row.
func RuleSpecOf(s model.Series) (recurrence.RuleSpec, error) {
	days, err := recurrence.ParseWeekdays(s.DaysOfWeek)
	if err != nil {
		return recurrence.RuleSpec{}, err
	}
	spec := recurrence.RuleSpec{
		Pattern:      recurrence.Pattern(s.Pattern),
		Interval:     s.Interval,
		DaysOfWeek:   days,
		DayOfMonth:   s.DayOfMonth,
		EndDate:      s.EndDate,
		ScheduleFrom: recurrence.ScheduleFrom(s.ScheduleFrom),
	}
	return spec, nil
}

// ApplyRule writes a validated rule into the series row.
func ApplyRule(s *model.Series, r recurrence.Rule) {
	spec := r.Spec()
	s.Pattern = string(spec.Pattern)
	s.Interval = spec.Interval
	s.DaysOfWeek = recurrence.FormatWeekdays(spec.DaysOfWeek)
	s.DayOfMonth = spec.DayOfMonth
	s.EndDate = spec.EndDate
	s.ScheduleFrom = string(spec.ScheduleFrom)
}

func toBackfillSeries(s model.Series) (*backfill.Series, error) {
	spec, err := RuleSpecOf(s)
	if err != nil {
		return nil, fmt.Errorf("series %d: %w", s.ID, err)
	}
	rule, err := recurrence.NewRule(spec)
	if err != nil {
		return nil, fmt.Errorf("series %d: %w", s.ID, err)
	}
	return &backfill.Series{
		ID:                  s.ID,
		Kind:                backfill.Kind(s.Kind),
		Title:               s.Title,
		Description:         s.Description,
		Assignee:            s.Assignee,
		Attendees:           s.Attendees,
		Priority:            s.Priority,
		SpaceID:             s.SpaceID,
		Rule:                rule,
		IsRecurring:         s.IsRecurring,
		Start:               s.StartsAt,
		Duration:            time.Duration(s.DurationMinutes) * time.Minute,
		LastGeneratedAnchor: s.LastGeneratedAnchor,
	}, nil
}

// TaskToItem converts a task row to the board's view of it.
func TaskToItem(t model.Task) board.Item {
	return board.Item{
		ID:          t.ID,
		SeriesID:    t.SeriesID,
		Title:       t.Title,
		Description: t.Description,
		Status:      board.Status(t.Status),
		Priority:    board.Priority(t.Priority),
		SpaceID:     t.SpaceID,
		Assignee:    t.Assignee,
		DueDate:     t.DueDate,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
	}
}
