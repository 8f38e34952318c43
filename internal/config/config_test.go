package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, "./wx_data", cfg.Ingestion.DataDir)
	assert.Equal(t, 200, cfg.Ingestion.BatchSize)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("INGEST_DATA_DIR", "/srv/wx")
	t.Setenv("INGEST_BATCH_SIZE", "500")
	t.Setenv("SERVER_READ_TIMEOUT", "15s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "/srv/wx", cfg.Ingestion.DataDir)
	assert.Equal(t, 500, cfg.Ingestion.BatchSize)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfigInvalidInt(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-port")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PORT")
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	t.Setenv("DB_CONN_MAX_LIFETIME", "30 minutes")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_CONN_MAX_LIFETIME")
}

func TestValidateRejectsBadBatchSize(t *testing.T) {
	t.Setenv("INGEST_BATCH_SIZE", "-1")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}
