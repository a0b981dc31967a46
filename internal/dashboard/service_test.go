package dashboard

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/jar-dashboard/internal/backup"
	"github.com/dvloznov/jar-dashboard/internal/cache"
	"github.com/dvloznov/jar-dashboard/internal/domain"
	"github.com/dvloznov/jar-dashboard/internal/platform/clock"
	"github.com/dvloznov/jar-dashboard/internal/reconcile"
	"github.com/dvloznov/jar-dashboard/internal/remote"
	"github.com/dvloznov/jar-dashboard/internal/state"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	clock *clock.Fake
	mem   *remote.Memory
	cache *cache.File
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake(testNow)
	mem := remote.NewMemory(clk)
	require.NoError(t, mem.Push(context.Background(), domain.Defaults(testNow)))
	return newFixtureWith(t, clk, mem)
}

func newFixtureWith(t *testing.T, clk *clock.Fake, store remote.Store) *fixture {
	t.Helper()
	f := &fixture{clock: clk, cache: cache.NewFile(t.TempDir(), zerolog.Nop())}
	f.mem, _ = store.(*remote.Memory)
	f.svc = New(f.cache, store, Options{Clock: clk, Logger: zerolog.Nop()})
	require.NoError(t, f.svc.Start(context.Background()))
	t.Cleanup(func() { f.svc.Close(context.Background()) })
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestService_LoadsFromCache(t *testing.T) {
	dir := t.TempDir()
	c := cache.NewFile(dir, zerolog.Nop())
	seed := domain.Defaults(testNow)
	seed.DollarRate = 5.55
	c.Write(seed)

	svc := New(c, remote.Unconfigured{Reason: "test"}, Options{Clock: clock.NewFake(testNow), Logger: zerolog.Nop()})
	assert.Equal(t, 5.55, svc.State().DollarRate)
}

func TestService_ExampleScenario(t *testing.T) {
	f := newFixture(t)
	base := f.mem.Pushes()

	require.NoError(t, f.svc.SetDollarRate(dec("5.20")))
	f.clock.Advance(500 * time.Millisecond)
	_, err := f.svc.AddTransaction(domain.NewTransaction{
		Type:      domain.TransactionDeposit,
		Partner:   domain.PartnerJoey,
		AmountBRL: dec("100"),
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)

	assert.Equal(t, base+1, f.mem.Pushes())
	doc, ok := f.mem.Document()
	require.True(t, ok)
	assert.Equal(t, 5.20, doc.DollarRate)
	require.Len(t, doc.Transactions, 1)
	assert.InDelta(t, 100/5.20*100, doc.Transactions[0].AmountCents, 1e-9)
}

func TestService_RefreshRateIgnoresTinyChanges(t *testing.T) {
	f := newFixture(t)
	rev := f.svc.Status().Revision

	require.NoError(t, f.svc.RefreshRate(context.Background(), dec("5.00005")))
	assert.Equal(t, rev, f.svc.Status().Revision)

	require.NoError(t, f.svc.RefreshRate(context.Background(), dec("5.1234")))
	assert.Equal(t, 5.1234, f.svc.State().DollarRate)
	assert.Error(t, f.svc.RefreshRate(context.Background(), decimal.Zero))
}

func TestService_RegisterWithdrawals(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.SetDraft(domain.DraftWithdrawals, domain.DraftRegJoey, "100,00"))
	require.NoError(t, f.svc.SetDraft(domain.DraftWithdrawals, domain.DraftRegTax, "15,00"))
	require.NoError(t, f.svc.SetDraft(domain.DraftWithdrawals, domain.DraftRegAlex, "abc"))

	booked, err := f.svc.RegisterWithdrawals()
	require.NoError(t, err)

	require.Len(t, booked, 2)
	assert.Equal(t, domain.PartnerJoey, booked[0].Partner)
	assert.Equal(t, domain.PartnerTax, booked[1].Partner)
	for _, tx := range booked {
		assert.Equal(t, domain.TransactionWithdrawal, tx.Type)
	}

	s := f.svc.State()
	assert.Len(t, s.Transactions, 2)
	for _, field := range []string{domain.DraftRegJoey, domain.DraftRegAlex, domain.DraftRegTax} {
		assert.Empty(t, s.Drafts.Get(domain.DraftWithdrawals, field))
	}

	// Empty form: nothing booked, no commit.
	rev := f.svc.Status().Revision
	booked, err = f.svc.RegisterWithdrawals()
	require.NoError(t, err)
	assert.Empty(t, booked)
	assert.Equal(t, rev, f.svc.Status().Revision)
}

func TestService_AddRoadmapDeposit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.SetDraft(domain.DraftRoadmap, "ALEX", "250,00"))
	require.NoError(t, f.svc.SetDraft(domain.DraftRoadmap, "ALEX_DATE", "2025-02-01"))

	tx, err := f.svc.AddRoadmapDeposit(domain.PartnerAlex)
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionDeposit, tx.Type)
	assert.Equal(t, 250.0, tx.AmountBRL)
	assert.Equal(t, "2025-02-01T00:00:00Z", tx.Date)
	assert.Empty(t, f.svc.State().Drafts.Get(domain.DraftRoadmap, "ALEX"))

	_, err = f.svc.AddRoadmapDeposit(domain.PartnerAlex)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = f.svc.AddRoadmapDeposit(domain.PartnerTax)
	assert.ErrorIs(t, err, domain.ErrUnknownPartner)
}

func TestService_SetDraftUnknownField(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.SetDraft("withdrawals", "nope", "1"), domain.ErrUnknownDraft)
}

func TestService_AccountFlow(t *testing.T) {
	f := newFixture(t)
	balance := 1050.0
	require.NoError(t, f.svc.UpdateAccount(domain.AccountJM, domain.AccountPatch{CurrentBalanceUSD: &balance}))
	require.NoError(t, f.svc.SetDraft(domain.ProgressDraftBucket(domain.AccountJM), domain.DraftAdditionalDeposit, "50"))

	amount, err := f.svc.AddToStartDeposit(domain.AccountJM)
	require.NoError(t, err)
	assert.Equal(t, "50", amount.String())

	rec, err := f.svc.RegisterDay(domain.AccountJM, false)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", rec.Date)

	_, err = f.svc.RegisterDay(domain.AccountJM, false)
	assert.ErrorIs(t, err, domain.ErrDailyRecordExists)
	_, err = f.svc.RegisterDay(domain.AccountJM, true)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteDailyRecord(domain.AccountJM, "2025-03-14"))
	st := f.svc.State()
	p, _ := st.Account(domain.AccountJM)
	assert.Empty(t, p.DailyHistory)
}

func TestService_ResetKeepsRateAndPushesImmediately(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.SetDollarRate(dec("5.8")))
	_, err := f.svc.AddTransaction(domain.NewTransaction{
		Type: domain.TransactionDeposit, Partner: domain.PartnerMicael, AmountBRL: dec("10"),
	})
	require.NoError(t, err)
	base := f.mem.Pushes()

	require.NoError(t, f.svc.Reset(context.Background()))

	assert.Equal(t, base+1, f.mem.Pushes())
	doc, _ := f.mem.Document()
	assert.Equal(t, 5.8, doc.DollarRate)
	assert.Empty(t, doc.Transactions)
	assert.False(t, f.svc.Status().Pending)
}

func TestService_ImportAndExport(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AddTransaction(domain.NewTransaction{
		Type: domain.TransactionDeposit, Partner: domain.PartnerRubinho, AmountBRL: dec("77"),
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export(&buf))
	exported := f.svc.State()

	require.NoError(t, f.svc.Reset(context.Background()))
	require.Empty(t, f.svc.State().Transactions)

	base := f.mem.Pushes()
	require.NoError(t, f.svc.Import(context.Background(), &buf))
	assert.Equal(t, base+1, f.mem.Pushes())
	assert.True(t, domain.Equal(exported, f.svc.State()))
	assert.Equal(t, "jar_backup_2025-03-14.json", f.svc.ExportName())
}

func TestService_ImportMalformedLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	before, rev := f.svc.State(), f.svc.Status().Revision

	err := f.svc.Import(context.Background(), strings.NewReader("{broken"))

	assert.ErrorIs(t, err, backup.ErrMalformedImport)
	assert.True(t, domain.Equal(before, f.svc.State()))
	assert.Equal(t, rev, f.svc.Status().Revision)
}

func TestService_UnconfiguredStillWorksLocally(t *testing.T) {
	clk := clock.NewFake(testNow)
	f := newFixtureWith(t, clk, remote.Unconfigured{Reason: "missing project"})

	require.NoError(t, f.svc.SetDollarRate(dec("6")))
	require.NoError(t, f.svc.Reset(context.Background()))

	assert.Equal(t, reconcile.StatusUnconfigured, f.svc.Status().State)
	cached, ok := f.cache.Read()
	require.True(t, ok)
	assert.Equal(t, 6.0, cached.DollarRate)
	assert.ErrorIs(t, f.svc.ManualSave(context.Background()), remote.ErrNotConfigured)
}

func TestService_SubscribeSeesRemoteChanges(t *testing.T) {
	f := newFixture(t)
	var origins []state.Origin
	f.svc.Subscribe(func(c state.Change) { origins = append(origins, c.Origin) })

	other := domain.Defaults(testNow)
	other.DollarRate = 4.9
	require.NoError(t, f.mem.Push(context.Background(), other))

	assert.Equal(t, []state.Origin{state.OriginRemote}, origins)
	assert.Equal(t, 4.9, f.svc.State().DollarRate)
}

func TestService_Summary(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.SetDraft(domain.DraftWithdrawals, domain.DraftCalcAmount, "100"))
	assert.Equal(t, "85", f.svc.WithdrawalQuote().Net.String())
	assert.Len(t, f.svc.Summary().Accounts, 3)
}
