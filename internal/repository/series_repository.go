package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"ops-dashboard/internal/model"
)

// SeriesRepository stores recurring templates.
type SeriesRepository struct {
	db *gorm.DB
}

func NewSeriesRepository(db *gorm.DB) *SeriesRepository {
	return &SeriesRepository{db: db}
}

func (r *SeriesRepository) Create(ctx context.Context, series *model.Series) error {
	if err := r.db.WithContext(ctx).Create(series).Error; err != nil {
		return fmt.Errorf("create series: %w", err)
	}
	return nil
}

func (r *SeriesRepository) FindByID(ctx context.Context, id uint) (*model.Series, error) {
	var series model.Series
	if err := r.db.WithContext(ctx).First(&series, id).Error; err != nil {
		return nil, err
	}
	return &series, nil
}

func (r *SeriesRepository) ListRecurring(ctx context.Context) ([]model.Series, error) {
	var series []model.Series
	if err := r.db.WithContext(ctx).Where("is_recurring = ?", true).Order("id ASC").Find(&series).Error; err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	return series, nil
}

// Save writes every column of the series, including zero values.
func (r *SeriesRepository) Save(ctx context.Context, series *model.Series) error {
	if err := r.db.WithContext(ctx).Save(series).Error; err != nil {
		return fmt.Errorf("save series: %w", err)
	}
	return nil
}

// SetLastGeneratedAnchor records how far generation has progressed.
func (r *SeriesRepository) SetLastGeneratedAnchor(ctx context.Context, id uint, anchor time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Series{}).Where("id = ?", id).
		Update("last_generated_anchor", anchor.UTC())
	if res.Error != nil {
		return fmt.Errorf("update series anchor: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *SeriesRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&model.Series{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete series: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
