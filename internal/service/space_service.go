package service

import (
	"context"

	"ops-dashboard/internal/model"
	"ops-dashboard/internal/repository"
)

// SpaceService provides helpers around board spaces.
type SpaceService struct {
	repo *repository.SpaceRepository
}

func NewSpaceService(repo *repository.SpaceRepository) *SpaceService {
	return &SpaceService{repo: repo}
}

func (s *SpaceService) List(ctx context.Context) ([]model.Space, error) {
	return s.repo.List(ctx)
}

// Resolve maps a space name to its id, creating the space on first use.
// An empty name means no space.
func (s *SpaceService) Resolve(ctx context.Context, name string) (*uint, error) {
	space, err := s.repo.GetOrCreate(ctx, name)
	if err != nil || space == nil {
		return nil, err
	}
	return &space.ID, nil
}
