// Package app turns configuration into the runtime components shared by the
// commands: cache, remote store and the optional integrations.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dvloznov/jar-dashboard/internal/backup"
	"github.com/dvloznov/jar-dashboard/internal/cache"
	"github.com/dvloznov/jar-dashboard/internal/config"
	bq "github.com/dvloznov/jar-dashboard/internal/infra/bigquery"
	"github.com/dvloznov/jar-dashboard/internal/notionsync"
	"github.com/dvloznov/jar-dashboard/internal/platform/clock"
	"github.com/dvloznov/jar-dashboard/internal/remote"
)

// Closer releases whatever an Open function acquired.
type Closer func() error

func noop() error { return nil }

// OpenCache builds the local cache selected by cfg.
func OpenCache(cfg config.CacheConfig, log zerolog.Logger) (cache.Cache, Closer, error) {
	switch cfg.Kind {
	case "", "file":
		return cache.NewFile(cfg.Dir, log), noop, nil
	case "sqlite":
		c, err := cache.NewSQLite(filepath.Join(cfg.Dir, "cache.db"), log)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache kind %q", cfg.Kind)
	}
}

// OpenRemote builds the remote store selected by cfg. When the remote cannot
// be used the store is remote.Unconfigured and the returned *config.Error
// says why; callers keep running from the cache.
func OpenRemote(ctx context.Context, cfg config.Config, log zerolog.Logger) (remote.Store, Closer, error) {
	if err := cfg.ValidateRemote(); err != nil {
		return remote.Unconfigured{Reason: err.Error()}, noop, err
	}

	unusable := func(err error) (remote.Store, Closer, error) {
		cfgErr := &config.Error{Reason: err.Error()}
		return remote.Unconfigured{Reason: cfgErr.Reason}, noop, cfgErr
	}

	r := cfg.Remote
	switch r.Backend {
	case config.BackendFirestore:
		fs, err := remote.NewFirestore(ctx, r.ProjectID, r.Collection, r.Document, log)
		if err != nil {
			return unusable(err)
		}
		return fs, fs.Close, nil
	case config.BackendGCS:
		g, err := remote.NewGCS(ctx, r.Bucket, r.Object, r.PollInterval, log)
		if err != nil {
			return unusable(err)
		}
		return g, g.Close, nil
	default:
		return remote.NewMemory(clock.System{}), noop, nil
	}
}

// Integrations are the optional outbound services. A nil field means the
// integration is not configured.
type Integrations struct {
	Notion   notionsync.LedgerDatabase
	NotionDB string
	Exporter bq.LedgerExporter
	Backups  backup.Store
}

// OpenIntegrations connects to every integration cfg has settings for.
func OpenIntegrations(ctx context.Context, cfg config.Config, log zerolog.Logger) (Integrations, Closer, error) {
	var in Integrations
	var closers []Closer

	if cfg.Notion.Token != "" && cfg.Notion.DatabaseID != "" {
		in.Notion = notionsync.NewClient(cfg.Notion.Token)
		in.NotionDB = cfg.Notion.DatabaseID
	}

	project := cfg.BigQuery.ProjectID
	if project == "" {
		project = cfg.Remote.ProjectID
	}
	if project != "" && cfg.BigQuery.Dataset != "" {
		exp, err := bq.NewExporter(ctx, project, cfg.BigQuery.Dataset)
		if err != nil {
			return Integrations{}, nil, err
		}
		in.Exporter = exp
		closers = append(closers, exp.Close)
	}

	if cfg.Backup.Bucket != "" {
		up, err := backup.NewUploader(ctx, cfg.Backup.Bucket)
		if err != nil {
			closeAll(closers)
			return Integrations{}, nil, err
		}
		in.Backups = up
		closers = append(closers, up.Close)
	}

	log.Info().
		Bool("notion", in.Notion != nil).
		Bool("bigquery", in.Exporter != nil).
		Bool("backups", in.Backups != nil).
		Msg("integrations")

	return in, func() error { return closeAll(closers) }, nil
}

func closeAll(closers []Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
