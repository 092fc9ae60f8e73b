package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"ops-dashboard/internal/backfill"
	"ops-dashboard/internal/board"
	"ops-dashboard/internal/clock"
	"ops-dashboard/internal/model"
	"ops-dashboard/internal/recurrence"
	"ops-dashboard/internal/repository"
)

// TaskInput represents data required to create a task. A non-nil Rule makes
// the task the first occurrence of a new series due on DueDate.
type TaskInput struct {
	Title       string
	Description string
	Space       string
	Priority    string
	Assignee    string
	DueDate     *time.Time
	Rule        *recurrence.RuleSpec
}

// ItemLister loads every board item.
type ItemLister interface {
	ListItems(ctx context.Context) ([]board.Item, error)
}

// TaskService wraps task-related business logic.
type TaskService struct {
	taskRepo *repository.TaskRepository
	items    ItemLister
	spaces   *SpaceService
	series   *SeriesService
	board    *board.Board
	clock    clock.Clock
}

func NewTaskService(
	taskRepo *repository.TaskRepository,
	items ItemLister,
	spaces *SpaceService,
	series *SeriesService,
	b *board.Board,
	clk clock.Clock,
) *TaskService {
	return &TaskService{taskRepo: taskRepo, items: items, spaces: spaces, series: series, board: b, clock: clk}
}

func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (*model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}

	if input.Rule != nil {
		return s.createRecurring(ctx, input)
	}

	priority, err := normalizePriority(input.Priority)
	if err != nil {
		return nil, err
	}
	spaceID, err := s.spaces.Resolve(ctx, input.Space)
	if err != nil {
		return nil, err
	}

	task := model.Task{
		SpaceID:     spaceID,
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      string(board.StatusTodo),
		Priority:    string(priority),
		Assignee:    input.Assignee,
		DueDate:     input.DueDate,
	}
	if err := s.taskRepo.Create(ctx, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *TaskService) createRecurring(ctx context.Context, input TaskInput) (*model.Task, error) {
	if input.DueDate == nil {
		return nil, fmt.Errorf("%w: recurring tasks need a due date", ErrInvalidInput)
	}
	series, _, err := s.series.Create(ctx, SeriesInput{
		Kind:        backfill.KindTask,
		Title:       input.Title,
		Description: input.Description,
		Space:       input.Space,
		Priority:    input.Priority,
		Assignee:    input.Assignee,
		StartsAt:    *input.DueDate,
		Rule:        *input.Rule,
	})
	if err != nil {
		return nil, err
	}

	tasks, err := s.taskRepo.ListBySeries(ctx, series.ID)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("series %d has no first occurrence", series.ID)
	}
	return &tasks[0], nil
}

// Board returns the filtered and sorted board as of the clock's now.
func (s *TaskService) Board(ctx context.Context, f board.Filters, sort board.Sort) ([]board.View, error) {
	items, err := s.items.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	return board.Apply(items, f, sort, s.clock.Now()), nil
}

func (s *TaskService) Transition(ctx context.Context, taskID uint, to board.Status) (board.Item, error) {
	return s.board.Transition(ctx, taskID, to)
}

func (s *TaskService) Bulk(ctx context.Context, ids []uint, m board.Mutation) board.BulkResult {
	return s.board.BulkApply(ctx, ids, m)
}

// DeleteTask removes a single task, including one generated from a series.
func (s *TaskService) DeleteTask(ctx context.Context, taskID uint) error {
	err := s.taskRepo.Delete(ctx, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("task %d: %w", taskID, board.ErrItemNotFound)
	}
	return err
}
