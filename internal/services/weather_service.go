package services

import (
	"context"

	"weather-pipeline/internal/models"
	"weather-pipeline/internal/repository"
	"weather-pipeline/pkg/logging"
)

// WeatherService exposes the read side over the observation store.
type WeatherService struct {
	repo   repository.WeatherRepository
	logger *logging.StructuredLogger
}

// NewWeatherService creates a new weather service
func NewWeatherService(repo repository.WeatherRepository, logger *logging.StructuredLogger) *WeatherService {
	return &WeatherService{
		repo:   repo,
		logger: logger,
	}
}

// GetObservations retrieves weather observations with filtering
func (s *WeatherService) GetObservations(ctx context.Context, filter repository.ObservationFilter) ([]*models.Observation, int, error) {
	return s.repo.ListObservations(ctx, filter)
}

// HealthCheck reports whether the underlying store is reachable
func (s *WeatherService) HealthCheck(ctx context.Context) error {
	return s.repo.HealthCheck(ctx)
}
