package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/jar-dashboard/internal/app"
	"github.com/dvloznov/jar-dashboard/internal/config"
	"github.com/dvloznov/jar-dashboard/internal/dashboard"
	"github.com/dvloznov/jar-dashboard/internal/jobs"
	"github.com/dvloznov/jar-dashboard/internal/jobs/inmemory"
	"github.com/dvloznov/jar-dashboard/internal/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("JAR_CONFIG"), "Path to YAML config file")
	backupEvery := flag.Duration("backup-every", 24*time.Hour, "Interval between backup uploads (0 disables)")
	exportEvery := flag.Duration("export-every", 6*time.Hour, "Interval between BigQuery exports (0 disables)")
	notionEvery := flag.Duration("notion-every", time.Hour, "Interval between Notion syncs (0 disables)")
	workers := flag.Int("workers", inmemory.DefaultWorkers, "Number of job workers")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	localCache, closeCache, err := app.OpenCache(cfg.Cache, logger.Component(log, "cache"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local cache")
	}
	defer closeCache()

	store, closeStore, cfgErr := app.OpenRemote(ctx, cfg, logger.Component(log, "remote"))
	if cfgErr != nil {
		log.Warn().Err(cfgErr).Msg("Remote sync disabled, jobs will see the local cache only")
	}
	defer closeStore()

	// The worker follows the shared document but never edits it.
	svc := dashboard.New(localCache, store, dashboard.Options{Logger: log, ConfigError: cfgErr})
	if err := svc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start dashboard")
	}

	integrations, closeIntegrations, err := app.OpenIntegrations(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open integrations")
	}
	defer closeIntegrations()

	registry := jobs.NewMux()
	app.RegisterJobs(registry, integrations, svc.State, nil)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, *workers, jobStore, logger.Component(log, "jobs"))

	log.Info().Msg("Starting worker service")

	// Start consuming jobs
	if err := jobQueue.Start(ctx, registry.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	schedule := map[jobs.JobType]time.Duration{
		jobs.JobTypeBackupUpload:   *backupEvery,
		jobs.JobTypeBigQueryExport: *exportEvery,
		jobs.JobTypeNotionSync:     *notionEvery,
	}
	for jt, every := range schedule {
		if every <= 0 || !registry.Registered(jt) {
			continue
		}
		go enqueueEvery(ctx, jobQueue, jt, every, log)
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	<-ctx.Done()

	log.Info().Msg("Shutting down worker service...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	// Close the queue
	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	if err := svc.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to close dashboard")
	}

	log.Info().Msg("Worker service exited")
}

// enqueueEvery publishes a job of type jt every interval until ctx is done.
func enqueueEvery(ctx context.Context, q jobs.Publisher, jt jobs.JobType, every time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	log.Info().Str("type", string(jt)).Dur("every", every).Msg("Scheduled job")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job := &jobs.Job{Type: jt}
			if err := q.Publish(ctx, job); err != nil {
				log.Error().Err(err).Str("type", string(jt)).Msg("Failed to enqueue scheduled job")
				continue
			}
			log.Info().Str("job_id", job.ID).Str("type", string(jt)).Msg("Enqueued scheduled job")
		}
	}
}
