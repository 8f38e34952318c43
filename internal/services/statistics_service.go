package services

import (
	"context"
	"sort"

	"github.com/jonboulle/clockwork"

	"weather-pipeline/internal/models"
	"weather-pipeline/internal/repository"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

// StatisticsService recomputes the yearly per-station aggregate set from the
// full observation store. Every run is a full recompute; the prior set is
// replaced atomically, never patched.
type StatisticsService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	clock   clockwork.Clock
}

// NewStatisticsService creates a new statistics service
func NewStatisticsService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, clock clockwork.Clock) *StatisticsService {
	return &StatisticsService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		clock:   clock,
	}
}

// RecalculateAll rebuilds the yearly stats set from scratch and returns the
// number of station-year rows written. On failure the prior set is left
// untouched.
func (s *StatisticsService) RecalculateAll(ctx context.Context) (int, error) {
	start := s.clock.Now()

	s.logger.Info(ctx, "[STATS_RECOMPUTE_START] Starting yearly statistics recompute", logging.Fields{})

	observations, err := s.repo.AllObservations(ctx)
	if err != nil {
		return 0, err
	}

	stats := computeYearlyStats(observations)

	if err := s.repo.ReplaceYearlyStats(ctx, stats); err != nil {
		return 0, err
	}

	duration := s.clock.Since(start)
	s.metrics.StatsRecomputeDuration.Observe(duration.Seconds())

	s.logger.Info(ctx, "[STATS_RECOMPUTE_COMPLETE] Yearly statistics recompute completed", logging.Fields{
		"observations":     len(observations),
		"stat_rows":        len(stats),
		"duration_seconds": duration.Seconds(),
	})

	return len(stats), nil
}

// GetStatistics retrieves statistics with filtering
func (s *StatisticsService) GetStatistics(ctx context.Context, filter repository.StatsFilter) ([]*models.YearlyStat, int, error) {
	return s.repo.ListYearlyStats(ctx, filter)
}

type statKey struct {
	stationID string
	year      int
}

type statAccumulator struct {
	sumMax, sumMin, sumPrecip float64
	numMax, numMin, numPrecip int
}

// computeYearlyStats groups observations by (station, year) and computes the
// mean of non-missing temperatures and the sum of non-missing precipitation.
// A group with zero non-missing values for a measure yields nil, never zero.
//
// Accumulation follows input order and output is sorted by (station, year),
// so identical input always produces bit-identical rows.
func computeYearlyStats(observations []*models.Observation) []*models.YearlyStat {
	groups := make(map[statKey]*statAccumulator)

	for _, obs := range observations {
		key := statKey{stationID: obs.StationID, year: obs.RecordDate.Year()}
		acc, ok := groups[key]
		if !ok {
			acc = &statAccumulator{}
			groups[key] = acc
		}

		if obs.MaxTemp != nil {
			acc.sumMax += *obs.MaxTemp
			acc.numMax++
		}
		if obs.MinTemp != nil {
			acc.sumMin += *obs.MinTemp
			acc.numMin++
		}
		if obs.Precipitation != nil {
			acc.sumPrecip += *obs.Precipitation
			acc.numPrecip++
		}
	}

	keys := make([]statKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].stationID != keys[j].stationID {
			return keys[i].stationID < keys[j].stationID
		}
		return keys[i].year < keys[j].year
	})

	stats := make([]*models.YearlyStat, 0, len(keys))
	for _, key := range keys {
		acc := groups[key]
		stat := &models.YearlyStat{
			StationID: key.stationID,
			Year:      key.year,
		}

		if acc.numMax > 0 {
			v := acc.sumMax / float64(acc.numMax)
			stat.AvgMaxTemp = &v
		}
		if acc.numMin > 0 {
			v := acc.sumMin / float64(acc.numMin)
			stat.AvgMinTemp = &v
		}
		if acc.numPrecip > 0 {
			v := acc.sumPrecip
			stat.TotalPrecipitation = &v
		}

		stats = append(stats, stat)
	}

	return stats
}
