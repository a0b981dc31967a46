package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/jar-dashboard/internal/cache"
	"github.com/dvloznov/jar-dashboard/internal/config"
	"github.com/dvloznov/jar-dashboard/internal/domain"
	bq "github.com/dvloznov/jar-dashboard/internal/infra/bigquery"
	"github.com/dvloznov/jar-dashboard/internal/jobs"
	"github.com/dvloznov/jar-dashboard/internal/platform/clock"
	"github.com/dvloznov/jar-dashboard/internal/remote"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type fakeNotion struct {
	created int
}

func (f *fakeNotion) CreatePage(context.Context, string, notionapi.Properties) (*notionapi.Page, error) {
	f.created++
	return &notionapi.Page{ID: "p"}, nil
}

func (f *fakeNotion) UpdatePage(context.Context, string, notionapi.Properties) (*notionapi.Page, error) {
	return nil, errors.New("not expected")
}

func (f *fakeNotion) QueryDatabase(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return &notionapi.DatabaseQueryResponse{}, nil
}

func (f *fakeNotion) ArchivePage(context.Context, string) error { return nil }

type fakeExporter struct {
	err   error
	calls int
}

func (f *fakeExporter) Export(_ context.Context, st domain.ApplicationState, _ time.Time) (bq.ExportResult, error) {
	f.calls++
	return bq.ExportResult{Transactions: len(st.Transactions)}, f.err
}

func (f *fakeExporter) Close() error { return nil }

type fakeBackups struct {
	at time.Time
}

func (f *fakeBackups) Upload(_ context.Context, _ domain.ApplicationState, now time.Time) (string, error) {
	f.at = now
	return "gs://bucket/backups/x.json", nil
}

func (f *fakeBackups) Download(context.Context, string) ([]byte, error) {
	return nil, errors.New("not expected")
}

func stateWithDeposit(t *testing.T) domain.ApplicationState {
	t.Helper()
	st := domain.Defaults(testNow)
	_, err := st.AddTransaction(domain.NewTransaction{
		Type:      domain.TransactionDeposit,
		Partner:   domain.PartnerJoey,
		AmountBRL: domain.ParseCurrency("100"),
	}, testNow)
	require.NoError(t, err)
	return st
}

func TestRegisterJobs_OnlyConfigured(t *testing.T) {
	m := jobs.NewMux()
	RegisterJobs(m, Integrations{}, func() domain.ApplicationState { return domain.Defaults(testNow) }, nil)
	for _, jt := range jobs.JobTypes {
		assert.False(t, m.Registered(jt), jt)
	}
}

func TestRegisterJobs_Handlers(t *testing.T) {
	notion := &fakeNotion{}
	exp := &fakeExporter{}
	backups := &fakeBackups{}
	st := stateWithDeposit(t)

	m := jobs.NewMux()
	RegisterJobs(m, Integrations{Notion: notion, NotionDB: "db", Exporter: exp, Backups: backups},
		func() domain.ApplicationState { return st }, clock.NewFake(testNow))

	ctx := context.Background()

	job := &jobs.Job{Type: jobs.JobTypeNotionSync}
	require.NoError(t, m.Handle(ctx, job))
	assert.Equal(t, 1, notion.created)
	assert.Contains(t, job.Result, "created=1")

	dry := &jobs.Job{Type: jobs.JobTypeNotionSync, Params: map[string]string{"dry_run": "true"}}
	require.NoError(t, m.Handle(ctx, dry))
	assert.Equal(t, 1, notion.created)

	job = &jobs.Job{Type: jobs.JobTypeBigQueryExport}
	require.NoError(t, m.Handle(ctx, job))
	assert.Equal(t, "transactions=1 skipped=0 snapshots=0", job.Result)

	job = &jobs.Job{Type: jobs.JobTypeBackupUpload}
	require.NoError(t, m.Handle(ctx, job))
	assert.Equal(t, "gs://bucket/backups/x.json", job.Result)
	assert.Equal(t, testNow, backups.at)
}

func TestRegisterJobs_ExportErrorFailsJob(t *testing.T) {
	m := jobs.NewMux()
	RegisterJobs(m, Integrations{Exporter: &fakeExporter{err: errors.New("quota")}},
		func() domain.ApplicationState { return domain.Defaults(testNow) }, clock.NewFake(testNow))

	job := &jobs.Job{Type: jobs.JobTypeBigQueryExport}
	assert.EqualError(t, m.Handle(context.Background(), job), "quota")
	assert.Empty(t, job.Result)
}

func TestOpenRemote_Unconfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.ProjectID = ""

	store, closer, err := OpenRemote(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, config.IsConfigError(err))
	assert.False(t, remote.IsConfigured(store))
	assert.NoError(t, closer())
}

func TestOpenRemote_Memory(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.Backend = config.BackendMemory

	store, _, err := OpenRemote(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &remote.Memory{}, store)
}

func TestOpenCache(t *testing.T) {
	dir := t.TempDir()

	c, closer, err := OpenCache(config.CacheConfig{Kind: "file", Dir: dir}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &cache.File{}, c)
	assert.NoError(t, closer())

	c, closer, err = OpenCache(config.CacheConfig{Kind: "sqlite", Dir: dir}, zerolog.Nop())
	require.NoError(t, err)
	c.Write(domain.Defaults(testNow))
	_, ok := c.Read()
	assert.True(t, ok)
	assert.NoError(t, closer())

	_, _, err = OpenCache(config.CacheConfig{Kind: "redis"}, zerolog.Nop())
	assert.Error(t, err)
}
