package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ops-dashboard/internal/model"
)

// TaskRepository handles CRUD for board tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	task.AnchorDate = utcPtr(task.AnchorDate)
	task.DueDate = utcPtr(task.DueDate)
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// List returns every task, oldest first. Filtering and ordering for the
// board happen in memory.
func (r *TaskRepository) List(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) ListBySeries(ctx context.Context, seriesID uint) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("series_id = ?", seriesID).
		Order("anchor_date ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list series tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindByID(ctx context.Context, taskID uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, taskID).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) ExistsForAnchor(ctx context.Context, seriesID uint, anchor time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("series_id = ? AND anchor_date = ?", seriesID, anchor.UTC()).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check task anchor: %w", err)
	}
	return count > 0, nil
}

// Update writes the given columns and returns the fresh row.
func (r *TaskRepository) Update(ctx context.Context, taskID uint, updates map[string]interface{}) (*model.Task, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&model.Task{}).Where("id = ?", taskID).Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindByID(ctx, taskID)
}

// Delete removes a task, whether or not it belongs to a series.
func (r *TaskRepository) Delete(ctx context.Context, taskID uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Task{}, taskID)
	if res.Error != nil {
		return fmt.Errorf("delete task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Orphan detaches every task from the series while keeping the tasks.
func (r *TaskRepository) Orphan(ctx context.Context, seriesID uint) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("series_id = ?", seriesID).
		Updates(map[string]interface{}{"series_id": nil, "anchor_date": nil}).Error; err != nil {
		return fmt.Errorf("orphan tasks: %w", err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
