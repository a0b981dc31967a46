package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/jar-dashboard/internal/app"
	"github.com/dvloznov/jar-dashboard/internal/config"
	"github.com/dvloznov/jar-dashboard/internal/dashboard"
	"github.com/dvloznov/jar-dashboard/internal/logger"
	"github.com/dvloznov/jar-dashboard/internal/notionsync"
	"github.com/dvloznov/jar-dashboard/internal/remote"
)

func main() {
	// Initialize structured logger
	log := logger.New()

	// Parse CLI flags
	configPath := flag.String("config", os.Getenv("JAR_CONFIG"), "Path to YAML config file")
	notionToken := flag.String("notion-token", "", "Notion API token (defaults to NOTION_TOKEN)")
	notionDBID := flag.String("notion-db-id", "", "Notion database ID (defaults to NOTION_DATABASE_ID)")
	dryRun := flag.Bool("dry-run", false, "Dry run mode - preview changes without syncing")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *notionToken != "" {
		cfg.Notion.Token = *notionToken
	}
	if *notionDBID != "" {
		cfg.Notion.DatabaseID = *notionDBID
	}

	// Validate required settings
	if cfg.Notion.Token == "" {
		log.Fatal().Msg("Error: --notion-token is required")
	}
	if cfg.Notion.DatabaseID == "" {
		log.Fatal().Msg("Error: --notion-db-id is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	localCache, closeCache, err := app.OpenCache(cfg.Cache, logger.Component(log, "cache"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local cache")
	}
	defer closeCache()

	store, closeStore, cfgErr := app.OpenRemote(ctx, cfg, logger.Component(log, "remote"))
	if cfgErr != nil {
		log.Warn().Err(cfgErr).Msg("Remote sync disabled, mirroring the local cache")
	}
	defer closeStore()

	// The service is only used to read; it never pushes.
	svc := dashboard.New(localCache, store, dashboard.Options{Logger: log, ConfigError: cfgErr})
	if err := svc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start dashboard")
	}
	defer svc.Close(ctx)
	if remote.IsConfigured(store) {
		waitForSnapshot(ctx, svc)
	}

	st := svc.State()
	log.Info().
		Int("transactions", len(st.Transactions)).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	notionClient := notionsync.NewClient(cfg.Notion.Token)

	res, err := notionsync.SyncLedger(ctx, st.Transactions, notionClient, cfg.Notion.DatabaseID, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	fmt.Printf("Sync completed: %s\n", res)
}

func waitForSnapshot(ctx context.Context, svc *dashboard.Service) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	for svc.Status().SyncedRevision == 0 && svc.Status().Error == "" {
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}
