package repository

import (
	"context"
	"fmt"
	"time"

	"weather-pipeline/internal/models"
	"weather-pipeline/pkg/database"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

// DefaultBatchSize bounds upsert transaction size when the caller does not
// choose one. Batch boundaries affect efficiency only, never final state.
const DefaultBatchSize = 200

// WeatherRepository provides data access for observations and yearly stats.
type WeatherRepository interface {
	// UpsertObservations writes observations keyed by (station_id, record_date),
	// inserting new rows and overwriting the measurement columns of existing
	// ones. Last write wins, including writing NULL over a present value.
	UpsertObservations(ctx context.Context, observations []*models.Observation, batchSize int) error

	// ListObservations returns a filtered page of observations ordered by
	// record_date ascending, plus the total match count.
	ListObservations(ctx context.Context, filter ObservationFilter) ([]*models.Observation, int, error)

	// AllObservations returns every observation ordered by
	// (station_id, record_date). The stable order keeps aggregate
	// recomputation deterministic.
	AllObservations(ctx context.Context) ([]*models.Observation, error)

	// ReplaceYearlyStats atomically discards the current yearly stats set and
	// writes the given one in its place. Readers see the old set or the new
	// set, never a mix.
	ReplaceYearlyStats(ctx context.Context, stats []*models.YearlyStat) error

	// ListYearlyStats returns a filtered page of yearly stats ordered by
	// (station_id, year) ascending, plus the total match count.
	ListYearlyStats(ctx context.Context, filter StatsFilter) ([]*models.YearlyStat, int, error)

	HealthCheck(ctx context.Context) error
}

// ObservationFilter defines filters for querying observations
type ObservationFilter struct {
	StationID *string
	Date      *time.Time
	Limit     int
	Offset    int
}

// StatsFilter defines filters for querying yearly statistics
type StatsFilter struct {
	StationID *string
	Year      *int
	Limit     int
	Offset    int
}

// weatherRepository implements WeatherRepository over Postgres
type weatherRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewWeatherRepository creates a new weather repository
func NewWeatherRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) WeatherRepository {
	return &weatherRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

const upsertObservationSQL = `
	INSERT INTO weather_data (station_id, record_date, max_temp, min_temp, precipitation)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (station_id, record_date) DO UPDATE SET
		max_temp = EXCLUDED.max_temp,
		min_temp = EXCLUDED.min_temp,
		precipitation = EXCLUDED.precipitation
`

// UpsertObservations chunks the input and writes each chunk in its own
// transaction. A failed chunk leaves earlier chunks committed and is reported
// as a PersistenceError carrying the offending range.
func (r *weatherRepository) UpsertObservations(ctx context.Context, observations []*models.Observation, batchSize int) error {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for start := 0; start < len(observations); start += batchSize {
		end := min(start+batchSize, len(observations))
		if err := r.upsertBatch(ctx, observations[start:end]); err != nil {
			return &PersistenceError{Op: "upsert_observations", Start: start, End: end, Err: err}
		}
	}

	return nil
}

// upsertBatch writes one chunk inside a single transaction so a record's
// three measurement columns land together or not at all.
func (r *weatherRepository) upsertBatch(ctx context.Context, batch []*models.Observation) error {
	if len(batch) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		r.metrics.IngestionBatchSize.Observe(float64(len(batch)))
		r.logger.Debug(ctx, "[REPO_UPSERT_BATCH] Batch upsert completed", logging.Fields{
			"count":       len(batch),
			"duration_ms": time.Since(timer).Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertObservationSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, obs := range batch {
		_, err := stmt.ExecContext(ctx,
			obs.StationID,
			obs.RecordDate,
			obs.MaxTemp,
			obs.MinTemp,
			obs.Precipitation,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert observation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.IngestionRecordsTotal.Add(float64(len(batch)))

	return nil
}

// ListObservations retrieves observations with filtering and pagination
func (r *weatherRepository) ListObservations(ctx context.Context, filter ObservationFilter) ([]*models.Observation, int, error) {
	query := `
		SELECT id, station_id, record_date, max_temp, min_temp, precipitation
		FROM weather_data
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		query += fmt.Sprintf(" AND station_id = $%d", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.Date != nil {
		query += fmt.Sprintf(" AND record_date = $%d", argNum)
		args = append(args, *filter.Date)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_observations", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count observations: %w", err)
	}

	query += " ORDER BY record_date ASC, station_id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var observations []*models.Observation
	err = r.db.SelectContext(ctx, "list_observations", &observations, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list observations: %w", err)
	}

	return observations, totalCount, nil
}

// AllObservations retrieves the full observation set in stable order
func (r *weatherRepository) AllObservations(ctx context.Context) ([]*models.Observation, error) {
	query := `
		SELECT id, station_id, record_date, max_temp, min_temp, precipitation
		FROM weather_data
		ORDER BY station_id, record_date
	`

	var observations []*models.Observation
	err := r.db.SelectContext(ctx, "all_observations", &observations, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan observations: %w", err)
	}

	return observations, nil
}

// ReplaceYearlyStats swaps the entire stats set inside one transaction
func (r *weatherRepository) ReplaceYearlyStats(ctx context.Context, stats []*models.YearlyStat) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return &PersistenceError{Op: "replace_yearly_stats", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM weather_stats"); err != nil {
		return &PersistenceError{Op: "replace_yearly_stats", Err: fmt.Errorf("failed to clear stats: %w", err)}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO weather_stats (station_id, year, avg_max_temp, avg_min_temp, total_precipitation)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return &PersistenceError{Op: "replace_yearly_stats", Err: fmt.Errorf("failed to prepare statement: %w", err)}
	}
	defer stmt.Close()

	for i, s := range stats {
		_, err := stmt.ExecContext(ctx,
			s.StationID,
			s.Year,
			s.AvgMaxTemp,
			s.AvgMinTemp,
			s.TotalPrecipitation,
		)
		if err != nil {
			return &PersistenceError{Op: "replace_yearly_stats", Start: i, End: i + 1, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "replace_yearly_stats", Err: fmt.Errorf("failed to commit: %w", err)}
	}

	r.metrics.StatsRowsReplaced.Set(float64(len(stats)))

	return nil
}

// ListYearlyStats retrieves yearly statistics with filtering and pagination
func (r *weatherRepository) ListYearlyStats(ctx context.Context, filter StatsFilter) ([]*models.YearlyStat, int, error) {
	query := `
		SELECT id, station_id, year, avg_max_temp, avg_min_temp, total_precipitation
		FROM weather_stats
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.StationID != nil {
		query += fmt.Sprintf(" AND station_id = $%d", argNum)
		args = append(args, *filter.StationID)
		argNum++
	}

	if filter.Year != nil {
		query += fmt.Sprintf(" AND year = $%d", argNum)
		args = append(args, *filter.Year)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	err := r.db.GetContext(ctx, "count_stats", &totalCount, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count stats: %w", err)
	}

	query += " ORDER BY station_id ASC, year ASC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var stats []*models.YearlyStat
	err = r.db.SelectContext(ctx, "list_stats", &stats, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list stats: %w", err)
	}

	return stats, totalCount, nil
}

// HealthCheck performs a repository health check
func (r *weatherRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// PersistenceError reports a store write rejected outside the expected
// upsert conflict path. Start and End identify the offending input range
// when the failure happened mid-batch.
type PersistenceError struct {
	Op    string
	Start int
	End   int
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.End > e.Start {
		return fmt.Sprintf("%s failed for records [%d:%d): %v", e.Op, e.Start, e.End, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
