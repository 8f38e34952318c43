package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-pipeline/internal/reader"
	"weather-pipeline/internal/repository"
	"weather-pipeline/internal/repository/memory"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

// One collector for the whole test binary; promauto panics on duplicate
// registration in the default registry.
var testMetrics = metrics.NewCollector("test_services")

func testLogger() *logging.StructuredLogger {
	logger := logging.NewStructuredLogger("test", "0.0.0", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	return logger
}

func writeStationFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newIngestion(repo repository.WeatherRepository) *IngestionService {
	return NewIngestionService(repo, testLogger(), testMetrics, clockwork.NewFakeClock())
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	writeStationFile(t, dir, "TEST.txt", "19850101\t10\t-10\t50\n19850102\t30\t0\t20\n")

	repo := memory.New()
	result, err := newIngestion(repo).IngestDirectory(context.Background(), dir, 200)

	require.NoError(t, err)
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 2, result.RecordsAttempted)
	assert.Equal(t, 2, result.RecordsUpserted)
	assert.Equal(t, 0, result.RecordsSkipped)
	assert.Equal(t, 2, repo.ObservationCount())

	stationID := "TEST"
	obs, total, err := repo.ListObservations(context.Background(), repository.ObservationFilter{StationID: &stationID, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.NotNil(t, obs[0].MaxTemp)
	assert.InDelta(t, 1.0, *obs[0].MaxTemp, 1e-9)
	require.NotNil(t, obs[0].Precipitation)
	assert.InDelta(t, 0.5, *obs[0].Precipitation, 1e-9)
}

func TestIngestDirectoryIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeStationFile(t, dir, "TEST.txt", "19850101\t10\t-10\t50\n19850102\t30\t0\t20\n")

	repo := memory.New()
	svc := newIngestion(repo)

	_, err := svc.IngestDirectory(context.Background(), dir, 200)
	require.NoError(t, err)
	first, err := repo.AllObservations(context.Background())
	require.NoError(t, err)

	_, err = svc.IngestDirectory(context.Background(), dir, 200)
	require.NoError(t, err)
	second, err := repo.AllObservations(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, repo.ObservationCount())
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].StationID, second[i].StationID)
		assert.True(t, first[i].RecordDate.Equal(second[i].RecordDate))
		assert.Equal(t, first[i].MaxTemp, second[i].MaxTemp)
		assert.Equal(t, first[i].MinTemp, second[i].MinTemp)
		assert.Equal(t, first[i].Precipitation, second[i].Precipitation)
	}
}

func TestIngestDirectoryOverwritesOnRerun(t *testing.T) {
	dir := t.TempDir()
	repo := memory.New()
	svc := newIngestion(repo)

	writeStationFile(t, dir, "TEST.txt", "19850101\t10\t-10\t50\n")
	_, err := svc.IngestDirectory(context.Background(), dir, 200)
	require.NoError(t, err)

	// Same key, new values; the precipitation column goes back to missing.
	writeStationFile(t, dir, "TEST.txt", "19850101\t20\t-5\t-9999\n")
	_, err = svc.IngestDirectory(context.Background(), dir, 200)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.ObservationCount())
	obs, err := repo.AllObservations(context.Background())
	require.NoError(t, err)
	require.NotNil(t, obs[0].MaxTemp)
	assert.InDelta(t, 2.0, *obs[0].MaxTemp, 1e-9)
	assert.Nil(t, obs[0].Precipitation, "missing must overwrite a present value")
}

func TestIngestDirectorySkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	content := "19850101\t10\t5\t0\n" +
		"not-a-date\t10\t5\t0\n" + // malformed date, skipped by normalizer
		"19850103\tabc\t5\t0\n" + // malformed field, skipped by reader
		"19850104\t12\t6\t1\n"
	writeStationFile(t, dir, "TEST.txt", content)

	repo := memory.New()
	result, err := newIngestion(repo).IngestDirectory(context.Background(), dir, 200)

	require.NoError(t, err)
	assert.Equal(t, 4, result.RecordsAttempted)
	assert.Equal(t, 2, result.RecordsUpserted)
	assert.Equal(t, 2, result.RecordsSkipped)
	assert.Equal(t, 2, repo.ObservationCount())
}

func TestIngestDirectoryBatchSizeDoesNotChangeState(t *testing.T) {
	dir := t.TempDir()
	content := "19850101\t10\t5\t0\n19850102\t11\t5\t0\n19850103\t12\t5\t0\n19850104\t13\t5\t0\n19850105\t14\t5\t0\n"
	writeStationFile(t, dir, "TEST.txt", content)

	small := memory.New()
	_, err := newIngestion(small).IngestDirectory(context.Background(), dir, 2)
	require.NoError(t, err)

	large := memory.New()
	_, err = newIngestion(large).IngestDirectory(context.Background(), dir, 200)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, small.UpsertBatches)
	assert.Equal(t, []int{5}, large.UpsertBatches)

	smallObs, err := small.AllObservations(context.Background())
	require.NoError(t, err)
	largeObs, err := large.AllObservations(context.Background())
	require.NoError(t, err)
	require.Len(t, largeObs, len(smallObs))
	for i := range smallObs {
		assert.True(t, smallObs[i].RecordDate.Equal(largeObs[i].RecordDate))
		assert.Equal(t, smallObs[i].MaxTemp, largeObs[i].MaxTemp)
	}
}

func TestIngestDirectoryMissingDir(t *testing.T) {
	repo := memory.New()
	_, err := newIngestion(repo).IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"), 200)

	require.Error(t, err)
	var unavailable *reader.SourceUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestIngestDirectoryEmptyDir(t *testing.T) {
	repo := memory.New()
	_, err := newIngestion(repo).IngestDirectory(context.Background(), t.TempDir(), 200)

	require.Error(t, err)
	var unavailable *reader.SourceUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestIngestDirectoryPersistenceErrorTerminatesRun(t *testing.T) {
	dir := t.TempDir()
	writeStationFile(t, dir, "TEST.txt", "19850101\t10\t5\t0\n")

	repo := memory.New()
	repo.UpsertErr = errors.New("connection reset")

	_, err := newIngestion(repo).IngestDirectory(context.Background(), dir, 200)

	require.Error(t, err)
	var persistence *repository.PersistenceError
	require.ErrorAs(t, err, &persistence)
	assert.Equal(t, 0, persistence.Start)
	assert.Equal(t, 1, persistence.End)
}
