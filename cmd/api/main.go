package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/jar-dashboard/internal/api"
	"github.com/dvloznov/jar-dashboard/internal/api/handlers"
	"github.com/dvloznov/jar-dashboard/internal/app"
	"github.com/dvloznov/jar-dashboard/internal/config"
	"github.com/dvloznov/jar-dashboard/internal/dashboard"
	"github.com/dvloznov/jar-dashboard/internal/jobs"
	"github.com/dvloznov/jar-dashboard/internal/jobs/inmemory"
	"github.com/dvloznov/jar-dashboard/internal/logger"
	"github.com/dvloznov/jar-dashboard/internal/rates"
	"github.com/dvloznov/jar-dashboard/internal/reconcile"
	"github.com/dvloznov/jar-dashboard/internal/state"
)

func main() {
	configPath := flag.String("config", os.Getenv("JAR_CONFIG"), "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address (overrides config)")
	workers := flag.Int("workers", inmemory.DefaultWorkers, "Number of background job workers")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := run(cfg, *workers, log); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server exited")
}

func run(cfg config.Config, workers int, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	localCache, closeCache, err := app.OpenCache(cfg.Cache, logger.Component(log, "cache"))
	if err != nil {
		return err
	}
	defer closeCache()

	store, closeStore, cfgErr := app.OpenRemote(ctx, cfg, logger.Component(log, "remote"))
	if cfgErr != nil {
		log.Warn().Err(cfgErr).Msg("Remote sync disabled, running from local cache")
	}
	defer closeStore()

	stream := handlers.NewStream(logger.Component(log, "stream"))
	svc := dashboard.New(localCache, store, dashboard.Options{
		Debounce:    cfg.Sync.Debounce,
		Logger:      log,
		ConfigError: cfgErr,
		OnStatus:    func(reconcile.Status) { stream.Notify() },
	})
	stream.Bind(svc)
	unsubscribe := svc.Subscribe(func(state.Change) { stream.Notify() })
	defer unsubscribe()

	if err := svc.Start(ctx); err != nil {
		return err
	}

	integrations, closeIntegrations, err := app.OpenIntegrations(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeIntegrations()

	registry := jobs.NewMux()
	app.RegisterJobs(registry, integrations, svc.State, nil)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, workers, jobStore, logger.Component(log, "jobs"))
	if err := jobQueue.Start(ctx, registry.Handle); err != nil {
		return err
	}

	var fetcher rates.Fetcher
	if !cfg.Rates.Disabled {
		fetcher = rates.NewClient(cfg.Rates.URL, cfg.Rates.Pair, &http.Client{Timeout: 10 * time.Second})
	}

	router := api.NewRouter(api.Handlers{
		Dashboard: handlers.NewDashboardHandler(svc, fetcher, logger.Component(log, "api")),
		Jobs:      handlers.NewJobsHandler(jobStore, jobQueue, registry, logger.Component(log, "api")),
		Stream:    stream,
	}, log)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if fetcher != nil {
		poller := rates.NewPoller(fetcher, cfg.Rates.Interval, svc.RefreshRate, log)
		g.Go(func() error {
			if err := poller.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		if err := jobQueue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
		}
		if err := jobQueue.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close job queue")
		}
		if err := svc.Close(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Final sync failed")
		}
		return nil
	})

	return g.Wait()
}
