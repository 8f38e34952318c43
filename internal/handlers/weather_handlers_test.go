package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-pipeline/internal/repository/memory"
	"weather-pipeline/internal/services"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

var testMetrics = metrics.NewCollector("test_handlers")

type observationPayload struct {
	StationID     string   `json:"station_id"`
	RecordDate    string   `json:"record_date"`
	MaxTemp       *float64 `json:"max_temp"`
	MinTemp       *float64 `json:"min_temp"`
	Precipitation *float64 `json:"precipitation"`
}

type statPayload struct {
	StationID          string   `json:"station_id"`
	Year               int      `json:"year"`
	AvgMaxTemp         *float64 `json:"avg_max_temp"`
	AvgMinTemp         *float64 `json:"avg_min_temp"`
	TotalPrecipitation *float64 `json:"total_precipitation"`
}

type pageEnvelope struct {
	Data       json.RawMessage `json:"data"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	Size       int             `json:"size"`
	TotalPages int             `json:"total_pages"`
}

// newTestServer ingests the given station files into an in-memory store,
// recomputes stats, and serves the query API over it.
func newTestServer(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()

	logger := logging.NewStructuredLogger("test", "0.0.0", logging.ErrorLevel)
	logger.SetOutput(io.Discard)
	clock := clockwork.NewFakeClock()

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	repo := memory.New()
	ingestion := services.NewIngestionService(repo, logger, testMetrics, clock)
	stats := services.NewStatisticsService(repo, logger, testMetrics, clock)

	_, err := ingestion.IngestDirectory(context.Background(), dir, 200)
	require.NoError(t, err)
	_, err = stats.RecalculateAll(context.Background())
	require.NoError(t, err)

	handler := NewWeatherHandler(
		services.NewWeatherService(repo, logger),
		stats,
		logger,
		testMetrics,
	)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func getEnvelope(t *testing.T, url string) pageEnvelope {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var envelope pageEnvelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&envelope))
	return envelope
}

func TestEndToEndQuerySurface(t *testing.T) {
	// Two-day TEST file: max values 1.0 and 3.0, precipitation 0.5 and 0.2.
	srv := newTestServer(t, map[string]string{
		"TEST.txt": "19850101\t10\t-10\t50\n19850102\t30\t0\t20\n",
	})

	t.Run("observations", func(t *testing.T) {
		envelope := getEnvelope(t, srv.URL+"/api/weather?station_id=TEST&size=10")
		assert.Equal(t, 2, envelope.Total)

		var data []observationPayload
		require.NoError(t, json.Unmarshal(envelope.Data, &data))
		require.Len(t, data, 2)
		assert.Equal(t, "TEST", data[0].StationID)
		require.NotNil(t, data[0].MaxTemp)
		assert.InDelta(t, 1.0, *data[0].MaxTemp, 1e-9)
		require.NotNil(t, data[1].MaxTemp)
		assert.InDelta(t, 3.0, *data[1].MaxTemp, 1e-9)
	})

	t.Run("stats", func(t *testing.T) {
		envelope := getEnvelope(t, srv.URL+"/api/weather/stats?station_id=TEST")
		assert.Equal(t, 1, envelope.Total)

		var data []statPayload
		require.NoError(t, json.Unmarshal(envelope.Data, &data))
		require.Len(t, data, 1)
		assert.Equal(t, "TEST", data[0].StationID)
		assert.Equal(t, 1985, data[0].Year)
		require.NotNil(t, data[0].AvgMaxTemp)
		assert.InDelta(t, 2.0, *data[0].AvgMaxTemp, 1e-9)
		require.NotNil(t, data[0].AvgMinTemp)
		assert.InDelta(t, -0.5, *data[0].AvgMinTemp, 1e-9)
		require.NotNil(t, data[0].TotalPrecipitation)
		assert.InDelta(t, 0.7, *data[0].TotalPrecipitation, 1e-9)
	})
}

func TestGetObservationsDateFilter(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"TEST.txt": "19850101\t10\t-10\t50\n19850102\t30\t0\t20\n",
	})

	envelope := getEnvelope(t, srv.URL+"/api/weather?station_id=TEST&date=1985-01-02")
	assert.Equal(t, 1, envelope.Total)

	var data []observationPayload
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Len(t, data, 1)
	require.NotNil(t, data[0].MaxTemp)
	assert.InDelta(t, 3.0, *data[0].MaxTemp, 1e-9)
}

func TestGetObservationsInvalidDate(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"TEST.txt": "19850101\t10\t-10\t50\n",
	})

	resp, err := http.Get(srv.URL + "/api/weather?date=19850101")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetStatisticsInvalidYear(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"TEST.txt": "19850101\t10\t-10\t50\n",
	})

	resp, err := http.Get(srv.URL + "/api/weather/stats?year=nineteen85")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPagination(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"TEST.txt": "19850101\t10\t0\t0\n19850102\t11\t0\t0\n19850103\t12\t0\t0\n",
	})

	envelope := getEnvelope(t, srv.URL+"/api/weather?page=2&size=2")
	assert.Equal(t, 3, envelope.Total)
	assert.Equal(t, 2, envelope.Page)
	assert.Equal(t, 2, envelope.TotalPages)

	var data []observationPayload
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Len(t, data, 1)
	assert.Equal(t, "1985-01-03T00:00:00Z", data[0].RecordDate)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, map[string]string{
		"TEST.txt": "19850101\t10\t0\t0\n",
	})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
