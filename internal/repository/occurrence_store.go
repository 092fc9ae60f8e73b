package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ops-dashboard/internal/backfill"
	"ops-dashboard/internal/board"
	"ops-dashboard/internal/model"
)

// OccurrenceStore is the backfill engine's view of series, tasks and events.
type OccurrenceStore struct {
	series *SeriesRepository
	tasks  *TaskRepository
	events *EventRepository
}

func NewOccurrenceStore(series *SeriesRepository, tasks *TaskRepository, events *EventRepository) *OccurrenceStore {
	return &OccurrenceStore{series: series, tasks: tasks, events: events}
}

func (s *OccurrenceStore) FindSeries(ctx context.Context, seriesID uint) (*backfill.Series, error) {
	row, err := s.series.FindByID(ctx, seriesID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, backfill.ErrSeriesNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find series: %w", err)
	}
	return toBackfillSeries(*row)
}

func (s *OccurrenceStore) FindOccurrences(ctx context.Context, seriesID uint) ([]backfill.Occurrence, error) {
	tasks, err := s.tasks.ListBySeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	events, err := s.events.ListBySeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}

	occs := make([]backfill.Occurrence, 0, len(tasks)+len(events))
	for _, t := range tasks {
		occs = append(occs, backfill.Occurrence{
			ID:          t.ID,
			SeriesID:    seriesID,
			Anchor:      derefTime(t.AnchorDate),
			Completed:   t.Status == string(board.StatusCompleted),
			CompletedAt: t.CompletedAt,
		})
	}
	for _, e := range events {
		// Events have no completion; they only ever count as open.
		occs = append(occs, backfill.Occurrence{ID: e.ID, SeriesID: seriesID, Anchor: derefTime(e.AnchorDate)})
	}
	return occs, nil
}

func (s *OccurrenceStore) ExistsForAnchor(ctx context.Context, seriesID uint, anchor time.Time) (bool, error) {
	exists, err := s.tasks.ExistsForAnchor(ctx, seriesID, anchor)
	if err != nil || exists {
		return exists, err
	}
	return s.events.ExistsForAnchor(ctx, seriesID, anchor)
}

func (s *OccurrenceStore) CreateOccurrence(ctx context.Context, tpl backfill.Template) (backfill.Occurrence, error) {
	seriesID := tpl.SeriesID
	anchor := tpl.Anchor

	var (
		id  uint
		err error
	)
	switch tpl.Kind {
	case backfill.KindEvent:
		event := model.Event{
			SeriesID:    &seriesID,
			AnchorDate:  &anchor,
			SpaceID:     tpl.SpaceID,
			Title:       tpl.Title,
			Description: tpl.Description,
			Attendees:   tpl.Attendees,
			StartsAt:    tpl.Due,
			EndsAt:      tpl.End,
		}
		err = s.events.Create(ctx, &event)
		id = event.ID
	default:
		due := tpl.Due
		task := model.Task{
			SeriesID:    &seriesID,
			AnchorDate:  &anchor,
			SpaceID:     tpl.SpaceID,
			Title:       tpl.Title,
			Description: tpl.Description,
			Status:      string(board.StatusTodo),
			Priority:    defaultPriority(tpl.Priority),
			Assignee:    tpl.Assignee,
			DueDate:     &due,
		}
		err = s.tasks.Create(ctx, &task)
		id = task.ID
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return backfill.Occurrence{}, fmt.Errorf("%w: %w", backfill.ErrDuplicateOccurrence, err)
	}
	if err != nil {
		return backfill.Occurrence{}, err
	}
	return backfill.Occurrence{ID: id, SeriesID: seriesID, Anchor: tpl.Anchor}, nil
}

func (s *OccurrenceStore) UpdateSeries(ctx context.Context, seriesID uint, lastGeneratedAnchor time.Time) error {
	return s.series.SetLastGeneratedAnchor(ctx, seriesID, lastGeneratedAnchor)
}

// BoardStore is the board's mutation collaborator over the task table.
type BoardStore struct {
	tasks *TaskRepository
}

func NewBoardStore(tasks *TaskRepository) *BoardStore {
	return &BoardStore{tasks: tasks}
}

func (s *BoardStore) ListItems(ctx context.Context) ([]board.Item, error) {
	tasks, err := s.tasks.List(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]board.Item, len(tasks))
	for i, t := range tasks {
		items[i] = TaskToItem(t)
	}
	return items, nil
}

func (s *BoardStore) FindItem(ctx context.Context, id uint) (board.Item, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return board.Item{}, boardErr(id, err)
	}
	return TaskToItem(*task), nil
}

func (s *BoardStore) MutateItem(ctx context.Context, id uint, patch board.Patch) (board.Item, error) {
	updates := map[string]interface{}{}
	if patch.Status != nil {
		updates["status"] = string(*patch.Status)
	}
	if patch.Priority != nil {
		updates["priority"] = string(*patch.Priority)
	}
	if patch.CompletedAt != nil {
		updates["completed_at"] = patch.CompletedAt.UTC()
	}
	if patch.ClearCompletedAt {
		updates["completed_at"] = nil
	}
	if len(updates) == 0 {
		return s.FindItem(ctx, id)
	}

	task, err := s.tasks.Update(ctx, id, updates)
	if err != nil {
		return board.Item{}, boardErr(id, err)
	}
	return TaskToItem(*task), nil
}

func (s *BoardStore) DeleteItem(ctx context.Context, id uint) error {
	return boardErr(id, s.tasks.Delete(ctx, id))
}

func boardErr(id uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("task %d: %w", id, board.ErrItemNotFound)
	}
	return err
}

func defaultPriority(p string) string {
	if p == "" {
		return string(board.PriorityNormal)
	}
	return p
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
