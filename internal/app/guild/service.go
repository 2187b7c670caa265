package guild

import (
	"context"
	"errors"
)

type Service struct {
	repository Repository
	defaults   Defaults
}

func NewService(repository Repository, defaults Defaults) *Service {
	return &Service{
		repository: repository,
		defaults:   defaults,
	}
}

// Stored guild config or defaults for a guild never configured.
func (s *Service) Get(ctx context.Context, id string) (Config, error) {
	config, err := s.repository.FindById(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return NewConfig(id, s.defaults), nil
	}

	return config, err
}

// Load, modify and save guild config atomically; nothing is saved when mutate fails.
func (s *Service) Update(ctx context.Context, id string, mutate func(config *Config) error) (Config, error) {
	return s.repository.Update(ctx, NewConfig(id, s.defaults), mutate)
}

func (s *Service) FindAll(ctx context.Context) ([]Config, error) {
	return s.repository.FindAll(ctx)
}

func (s *Service) Repository() Repository {
	return s.repository
}
