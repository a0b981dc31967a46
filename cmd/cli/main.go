package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/jar-dashboard/internal/app"
	"github.com/dvloznov/jar-dashboard/internal/backup"
	"github.com/dvloznov/jar-dashboard/internal/config"
	"github.com/dvloznov/jar-dashboard/internal/dashboard"
	"github.com/dvloznov/jar-dashboard/internal/logger"
	"github.com/dvloznov/jar-dashboard/internal/remote"
)

// remoteWait bounds how long a command waits for the first remote snapshot.
const remoteWait = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "help", "-h", "--help":
		printUsage()
		return
	case "export", "import", "reset", "status", "bq-export", "backup":
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", os.Getenv("JAR_CONFIG"), "Path to YAML config file")
	out := fs.String("out", "", "export: output file (default: dated name in the backup dir)")
	in := fs.String("in", "", "import: local file or gs:// URI")
	yes := fs.Bool("yes", false, "reset: skip the confirmation prompt")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	sess, err := open(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open dashboard")
	}
	defer sess.close(ctx)

	switch cmd {
	case "export":
		err = runExport(sess, cfg, *out)
	case "import":
		err = runImport(ctx, sess, *in)
	case "reset":
		err = runReset(ctx, sess, *yes)
	case "status":
		err = runStatus(sess)
	case "bq-export":
		err = runBigQueryExport(ctx, sess)
	case "backup":
		err = runBackup(ctx, sess)
	}
	if err != nil {
		sess.close(ctx)
		log.Fatal().Err(err).Str("command", cmd).Msg("Command failed")
	}
}

func printUsage() {
	fmt.Println("Jar Dashboard CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  export     Write the current state to a JSON backup")
	fmt.Println("  import     Replace the state with a backup (file or gs:// URI)")
	fmt.Println("  reset      Reset the dashboard to defaults, keeping the dollar rate")
	fmt.Println("  status     Show sync status and a summary of the state")
	fmt.Println("  bq-export  Append the ledger and daily snapshots to BigQuery")
	fmt.Println("  backup     Upload a backup to the configured bucket")
	fmt.Println("  help       Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// session is one short-lived dashboard process.
type session struct {
	svc          *dashboard.Service
	integrations app.Integrations
	closers      []app.Closer
	log          zerolog.Logger
	closed       bool
}

func open(ctx context.Context, cfg config.Config, log zerolog.Logger) (*session, error) {
	s := &session{log: log}

	c, closeCache, err := app.OpenCache(cfg.Cache, logger.Component(log, "cache"))
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, closeCache)

	store, closeStore, cfgErr := app.OpenRemote(ctx, cfg, logger.Component(log, "remote"))
	s.closers = append(s.closers, closeStore)

	s.svc = dashboard.New(c, store, dashboard.Options{
		Debounce:    cfg.Sync.Debounce,
		Logger:      log,
		ConfigError: cfgErr,
	})
	if err := s.svc.Start(ctx); err != nil {
		return nil, err
	}
	if remote.IsConfigured(store) {
		s.waitForRemote(ctx)
	}

	integrations, closeIntegrations, err := app.OpenIntegrations(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	s.integrations = integrations
	s.closers = append(s.closers, closeIntegrations)
	return s, nil
}

// waitForRemote gives the first snapshot a chance to arrive so commands see
// the shared document rather than the local cache.
func (s *session) waitForRemote(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, remoteWait)
	defer cancel()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		st := s.svc.Status()
		if st.SyncedRevision > 0 || st.Error != "" {
			return
		}
		select {
		case <-ctx.Done():
			s.log.Warn().Msg("No remote snapshot yet, using local cache")
			return
		case <-ticker.C:
		}
	}
}

func (s *session) close(ctx context.Context) {
	if s.closed {
		return
	}
	s.closed = true
	if err := s.svc.Close(ctx); err != nil {
		s.log.Error().Err(err).Msg("Final sync failed")
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.log.Warn().Err(err).Msg("Close failed")
		}
	}
}

func runExport(s *session, cfg config.Config, out string) error {
	if out == "" {
		out = filepath.Join(cfg.Backup.Dir, s.svc.ExportName())
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := s.svc.Export(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("Exported state to %s\n", out)
	return nil
}

func runImport(ctx context.Context, s *session, in string) error {
	if in == "" {
		return fmt.Errorf("-in is required")
	}

	var r io.Reader
	if strings.HasPrefix(in, "gs://") {
		if s.integrations.Backups == nil {
			return fmt.Errorf("importing from %s needs a backup bucket (JAR_BACKUP_BUCKET)", in)
		}
		data, err := s.integrations.Backups.Download(ctx, in)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	} else {
		f, err := os.Open(in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	if err := s.svc.Import(ctx, r); err != nil {
		return err
	}
	st := s.svc.State()
	fmt.Printf("Imported %s (%d transactions)\n", in, len(st.Transactions))
	return nil
}

func runReset(ctx context.Context, s *session, yes bool) error {
	if !yes {
		fmt.Print("This wipes every transaction and account for all clients. Type 'reset' to continue: ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "reset" {
			fmt.Println("Aborted.")
			return nil
		}
	}
	if err := s.svc.Reset(ctx); err != nil {
		return err
	}
	fmt.Println("Dashboard reset.")
	return nil
}

func runStatus(s *session) error {
	st := s.svc.State()
	out := map[string]interface{}{
		"status":       s.svc.Status(),
		"dollarRate":   st.DollarRate,
		"transactions": len(st.Transactions),
		"summary":      s.svc.Summary(),
	}
	if err := s.svc.ConfigError(); err != nil {
		out["configError"] = err.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runBigQueryExport(ctx context.Context, s *session) error {
	if s.integrations.Exporter == nil {
		return fmt.Errorf("BigQuery is not configured (JAR_BIGQUERY_PROJECT_ID)")
	}
	res, err := s.integrations.Exporter.Export(ctx, s.svc.State(), time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("BigQuery export: %s\n", res)
	return nil
}

func runBackup(ctx context.Context, s *session) error {
	if s.integrations.Backups == nil {
		return fmt.Errorf("backup bucket is not configured (JAR_BACKUP_BUCKET)")
	}
	uri, err := s.integrations.Backups.Upload(ctx, s.svc.State(), time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("Uploaded backup %s (%s)\n", uri, backup.BaseName(uri))
	return nil
}
