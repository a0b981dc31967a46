package app

import (
	"context"
	"strconv"

	"github.com/dvloznov/jar-dashboard/internal/domain"
	"github.com/dvloznov/jar-dashboard/internal/jobs"
	"github.com/dvloznov/jar-dashboard/internal/logger"
	"github.com/dvloznov/jar-dashboard/internal/notionsync"
	"github.com/dvloznov/jar-dashboard/internal/platform/clock"
)

// StateFunc returns the state a job should work on.
type StateFunc func() domain.ApplicationState

// RegisterJobs installs a handler for every configured integration.
func RegisterJobs(m *jobs.Mux, in Integrations, current StateFunc, clk clock.Clock) {
	if clk == nil {
		clk = clock.System{}
	}

	if in.Notion != nil {
		m.Register(jobs.JobTypeNotionSync, func(ctx context.Context, job *jobs.Job) error {
			dryRun, _ := strconv.ParseBool(job.Param("dry_run"))
			st := current()
			res, err := notionsync.SyncLedger(ctx, st.Transactions, in.Notion, in.NotionDB, dryRun)
			if err != nil {
				return err
			}
			job.Result = res.String()
			return nil
		})
	}

	if in.Exporter != nil {
		m.Register(jobs.JobTypeBigQueryExport, func(ctx context.Context, job *jobs.Job) error {
			res, err := in.Exporter.Export(ctx, current(), clk.Now())
			if err != nil {
				return err
			}
			job.Result = res.String()
			return nil
		})
	}

	if in.Backups != nil {
		m.Register(jobs.JobTypeBackupUpload, func(ctx context.Context, job *jobs.Job) error {
			uri, err := in.Backups.Upload(ctx, current(), clk.Now())
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx)
			log.Info().Str("uri", uri).Msg("backup uploaded")
			job.Result = uri
			return nil
		})
	}
}
