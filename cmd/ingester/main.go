package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jonboulle/clockwork"

	"weather-pipeline/internal/config"
	"weather-pipeline/internal/repository"
	"weather-pipeline/internal/services"
	"weather-pipeline/pkg/database"
	"weather-pipeline/pkg/logging"
	"weather-pipeline/pkg/metrics"
)

func main() {
	dataDir := flag.String("data-dir", "", "Directory containing station data files (overrides INGEST_DATA_DIR)")
	batchSize := flag.Int("batch-size", 0, "Records per upsert batch (overrides INGEST_BATCH_SIZE)")
	calculateStats := flag.Bool("calculate-stats", false, "Recompute yearly statistics after ingestion")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Ingestion.DataDir = *dataDir
	}
	if *batchSize > 0 {
		cfg.Ingestion.BatchSize = *batchSize
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("weather-ingester", "1.0.0", logging.ParseLevel(cfg.Logging.Level))

	ctx := context.Background()
	logger.Info(ctx, "[INGESTER_START] Starting weather data ingestion", logging.Fields{
		"data_dir":        cfg.Ingestion.DataDir,
		"batch_size":      cfg.Ingestion.BatchSize,
		"calculate_stats": *calculateStats,
	})

	metricsCollector := metrics.NewCollector("weather_ingester")

	db, err := database.NewPostgresDB(&database.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	}, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[INGESTER_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	defer db.Close()

	weatherRepo := repository.NewWeatherRepository(db, logger, metricsCollector)
	clock := clockwork.NewRealClock()
	ingestionService := services.NewIngestionService(weatherRepo, logger, metricsCollector, clock)
	statsService := services.NewStatisticsService(weatherRepo, logger, metricsCollector, clock)

	result, err := ingestionService.IngestDirectory(ctx, cfg.Ingestion.DataDir, cfg.Ingestion.BatchSize)
	if err != nil {
		logger.Fatal(ctx, "[INGESTION_ERROR] Ingestion failed", logging.Fields{}, err)
	}

	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 72))
	fmt.Printf("Files Processed:   %d\n", result.FilesProcessed)
	fmt.Printf("Records Attempted: %d\n", result.RecordsAttempted)
	fmt.Printf("Records Upserted:  %d\n", result.RecordsUpserted)
	fmt.Printf("Records Skipped:   %d\n", result.RecordsSkipped)
	fmt.Printf("Duration:          %v\n", result.Duration)

	if *calculateStats {
		rows, err := statsService.RecalculateAll(ctx)
		if err != nil {
			logger.Fatal(ctx, "[STATS_ERROR] Statistics recompute failed", logging.Fields{}, err)
		}
		fmt.Printf("Stat Rows Written: %d\n", rows)
	}

	logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion run finished", logging.Fields{
		"files_processed":   result.FilesProcessed,
		"records_attempted": result.RecordsAttempted,
		"records_upserted":  result.RecordsUpserted,
		"records_skipped":   result.RecordsSkipped,
		"duration_seconds":  result.Duration.Seconds(),
	})
}
