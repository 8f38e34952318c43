package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"weather-pipeline/internal/models"
	"weather-pipeline/internal/reader"
	"weather-pipeline/internal/repository"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

// IngestionService drives station files through the reader, normalizer and
// upsert engine. Malformed rows are skipped and counted; a store or source
// failure terminates the run.
type IngestionService struct {
	repo    repository.WeatherRepository
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	clock   clockwork.Clock
}

// IngestionResult summarizes one ingestion run.
type IngestionResult struct {
	FilesProcessed   int
	RecordsAttempted int
	RecordsUpserted  int
	RecordsSkipped   int
	Duration         time.Duration
}

// NewIngestionService creates a new ingestion service
func NewIngestionService(repo repository.WeatherRepository, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, clock clockwork.Clock) *IngestionService {
	return &IngestionService{
		repo:    repo,
		logger:  logger,
		metrics: metricsCollector,
		clock:   clock,
	}
}

// IngestDirectory ingests every station file in dataDir. Re-running over the
// same or overlapping inputs is a no-op on final store state.
func (s *IngestionService) IngestDirectory(ctx context.Context, dataDir string, batchSize int) (*IngestionResult, error) {
	start := s.clock.Now()

	s.logger.Info(ctx, "[INGEST_START] Starting data ingestion", logging.Fields{
		"data_dir":   dataDir,
		"batch_size": batchSize,
	})

	files, err := reader.StationFiles(dataDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, &reader.SourceUnavailableError{Path: dataDir, Err: errors.New("no station files found")}
	}

	result := &IngestionResult{}

	for _, file := range files {
		fileResult, err := s.ingestFile(ctx, file, batchSize)
		if err != nil {
			// Store and source failures mean the destination or source is not
			// trustworthy; stop instead of limping through remaining files.
			return nil, fmt.Errorf("ingest %s: %w", file.Path, err)
		}

		result.FilesProcessed++
		result.RecordsAttempted += fileResult.RecordsAttempted
		result.RecordsUpserted += fileResult.RecordsUpserted
		result.RecordsSkipped += fileResult.RecordsSkipped

		s.logger.Info(ctx, "[INGEST_FILE] File ingested", logging.Fields{
			"station_id":        file.StationID,
			"records_attempted": fileResult.RecordsAttempted,
			"records_upserted":  fileResult.RecordsUpserted,
			"records_skipped":   fileResult.RecordsSkipped,
		})
	}

	result.Duration = s.clock.Since(start)
	s.metrics.IngestionDuration.Observe(result.Duration.Seconds())

	s.logger.Info(ctx, "[INGEST_COMPLETE] Data ingestion completed", logging.Fields{
		"files_processed":   result.FilesProcessed,
		"records_attempted": result.RecordsAttempted,
		"records_upserted":  result.RecordsUpserted,
		"records_skipped":   result.RecordsSkipped,
		"duration_seconds":  result.Duration.Seconds(),
	})

	return result, nil
}

// FileIngestionResult contains per-file ingestion counts.
type FileIngestionResult struct {
	RecordsAttempted int
	RecordsUpserted  int
	RecordsSkipped   int
}

// ingestFile reads one station file, normalizes its rows and upserts them.
func (s *IngestionService) ingestFile(ctx context.Context, file reader.StationFile, batchSize int) (*FileIngestionResult, error) {
	sc, err := reader.Open(file.Path)
	if err != nil {
		return nil, err
	}
	defer sc.Close()

	result := &FileIngestionResult{}
	observations := make([]*models.Observation, 0, batchSize)

	for sc.Scan() {
		result.RecordsAttempted++

		obs, err := sc.Record().Normalize(file.StationID)
		if err != nil {
			result.RecordsSkipped++
			s.metrics.RecordIngestionError("malformed_date")
			continue
		}

		observations = append(observations, obs)
	}
	if err := sc.Err(); err != nil {
		return nil, &reader.SourceUnavailableError{Path: file.Path, Err: err}
	}

	// Lines the scanner dropped for wrong column counts or non-numeric fields.
	result.RecordsAttempted += sc.Skipped()
	result.RecordsSkipped += sc.Skipped()
	for i := 0; i < sc.Skipped(); i++ {
		s.metrics.RecordIngestionError("malformed_line")
	}

	if err := s.repo.UpsertObservations(ctx, observations, batchSize); err != nil {
		return nil, err
	}
	result.RecordsUpserted = len(observations)

	return result, nil
}
