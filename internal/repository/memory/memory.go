// Package memory provides an in-memory WeatherRepository used in tests. It
// mirrors the store's key semantics: one observation row per
// (station_id, record_date), last write wins, and the yearly stats set is
// replaced wholesale.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"weather-pipeline/internal/models"
	"weather-pipeline/internal/repository"
)

type obsKey struct {
	stationID string
	date      time.Time
}

// Repository is an in-memory implementation of repository.WeatherRepository.
type Repository struct {
	mu           sync.Mutex
	observations map[obsKey]*models.Observation
	stats        []*models.YearlyStat
	nextID       int64

	// UpsertErr and ReplaceErr force the corresponding operations to fail.
	UpsertErr  error
	ReplaceErr error

	// UpsertBatches records the chunk sizes submitted per upsert call.
	UpsertBatches []int
}

var _ repository.WeatherRepository = (*Repository)(nil)

// New creates an empty in-memory repository.
func New() *Repository {
	return &Repository{observations: make(map[obsKey]*models.Observation)}
}

func (r *Repository) UpsertObservations(_ context.Context, observations []*models.Observation, batchSize int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if batchSize <= 0 {
		batchSize = repository.DefaultBatchSize
	}

	for start := 0; start < len(observations); start += batchSize {
		end := min(start+batchSize, len(observations))
		if r.UpsertErr != nil {
			return &repository.PersistenceError{Op: "upsert_observations", Start: start, End: end, Err: r.UpsertErr}
		}

		r.UpsertBatches = append(r.UpsertBatches, end-start)
		for _, obs := range observations[start:end] {
			key := obsKey{stationID: obs.StationID, date: obs.RecordDate}
			existing, ok := r.observations[key]
			if !ok {
				r.nextID++
				stored := *obs
				stored.ID = r.nextID
				r.observations[key] = &stored
				continue
			}
			existing.MaxTemp = obs.MaxTemp
			existing.MinTemp = obs.MinTemp
			existing.Precipitation = obs.Precipitation
		}
	}

	return nil
}

func (r *Repository) ListObservations(_ context.Context, filter repository.ObservationFilter) ([]*models.Observation, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*models.Observation, 0, len(r.observations))
	for _, obs := range r.observations {
		if filter.StationID != nil && obs.StationID != *filter.StationID {
			continue
		}
		if filter.Date != nil && !obs.RecordDate.Equal(*filter.Date) {
			continue
		}
		matched = append(matched, obs)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].RecordDate.Equal(matched[j].RecordDate) {
			return matched[i].RecordDate.Before(matched[j].RecordDate)
		}
		return matched[i].StationID < matched[j].StationID
	})

	total := len(matched)
	return page(matched, filter.Offset, filter.Limit), total, nil
}

func (r *Repository) AllObservations(_ context.Context) ([]*models.Observation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*models.Observation, 0, len(r.observations))
	for _, obs := range r.observations {
		all = append(all, obs)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].StationID != all[j].StationID {
			return all[i].StationID < all[j].StationID
		}
		return all[i].RecordDate.Before(all[j].RecordDate)
	})

	return all, nil
}

func (r *Repository) ReplaceYearlyStats(_ context.Context, stats []*models.YearlyStat) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ReplaceErr != nil {
		return &repository.PersistenceError{Op: "replace_yearly_stats", Err: r.ReplaceErr}
	}

	replacement := make([]*models.YearlyStat, len(stats))
	for i, s := range stats {
		stored := *s
		stored.ID = int64(i + 1)
		replacement[i] = &stored
	}
	r.stats = replacement

	return nil
}

func (r *Repository) ListYearlyStats(_ context.Context, filter repository.StatsFilter) ([]*models.YearlyStat, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*models.YearlyStat, 0, len(r.stats))
	for _, s := range r.stats {
		if filter.StationID != nil && s.StationID != *filter.StationID {
			continue
		}
		if filter.Year != nil && s.Year != *filter.Year {
			continue
		}
		matched = append(matched, s)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].StationID != matched[j].StationID {
			return matched[i].StationID < matched[j].StationID
		}
		return matched[i].Year < matched[j].Year
	})

	total := len(matched)
	return page(matched, filter.Offset, filter.Limit), total, nil
}

func (r *Repository) HealthCheck(context.Context) error {
	return nil
}

// ObservationCount returns the number of distinct stored rows.
func (r *Repository) ObservationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observations)
}

// StatCount returns the number of stored yearly stat rows.
func (r *Repository) StatCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stats)
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
