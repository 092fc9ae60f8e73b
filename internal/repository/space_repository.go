package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"ops-dashboard/internal/model"
)

// SpaceRepository manages board spaces.
type SpaceRepository struct {
	db *gorm.DB
}

func NewSpaceRepository(db *gorm.DB) *SpaceRepository {
	return &SpaceRepository{db: db}
}

// GetOrCreate returns the space with the given name, creating it on first use.
// An empty name yields nil.
func (r *SpaceRepository) GetOrCreate(ctx context.Context, name string) (*model.Space, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	var space model.Space
	db := r.db.WithContext(ctx)
	err := db.Where("name = ?", name).First(&space).Error
	switch {
	case err == nil:
		return &space, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		space = model.Space{Name: name}
		if err := db.Create(&space).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost a race with a concurrent create.
				if err := db.Where("name = ?", name).First(&space).Error; err != nil {
					return nil, fmt.Errorf("find space: %w", err)
				}
				return &space, nil
			}
			return nil, fmt.Errorf("create space: %w", err)
		}
		return &space, nil
	default:
		return nil, fmt.Errorf("find space: %w", err)
	}
}

func (r *SpaceRepository) List(ctx context.Context) ([]model.Space, error) {
	var spaces []model.Space
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&spaces).Error; err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	return spaces, nil
}

func (r *SpaceRepository) GetByID(ctx context.Context, id uint) (*model.Space, error) {
	var space model.Space
	if err := r.db.WithContext(ctx).First(&space, id).Error; err != nil {
		return nil, err
	}
	return &space, nil
}
