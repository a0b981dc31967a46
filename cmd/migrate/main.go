package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/jar-dashboard/internal/config"
	bq "github.com/dvloznov/jar-dashboard/internal/infra/bigquery"
	"github.com/dvloznov/jar-dashboard/internal/logger"
)

func main() {
	log := logger.New()

	configPath := flag.String("config", os.Getenv("JAR_CONFIG"), "Path to YAML config file")
	projectID := flag.String("project", "", "GCP project ID (defaults to config)")
	datasetID := flag.String("dataset", "", "BigQuery dataset ID (defaults to config)")
	location := flag.String("location", "US", "Location for a newly created dataset")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *projectID == "" {
		*projectID = cfg.BigQuery.ProjectID
	}
	if *datasetID == "" {
		*datasetID = cfg.BigQuery.Dataset
	}

	// Validate required flags
	if *projectID == "" {
		log.Fatal().Msg("Error: -project flag is required. Please specify your GCP project ID.")
	}
	if *datasetID == "" {
		log.Fatal().Msg("Error: -dataset flag is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	exporter, err := bq.NewExporter(ctx, *projectID, *datasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer exporter.Close()

	log.Info().Str("project", *projectID).Str("dataset", *datasetID).Msg("Connected to BigQuery")

	created, err := exporter.EnsureTables(ctx, *location)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create export tables")
	}

	if len(created) == 0 {
		fmt.Println("All export tables exist. Nothing to do.")
		return
	}
	fmt.Printf("Created %d table(s): %v\n", len(created), created)
}
