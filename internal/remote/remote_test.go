package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/jar-dashboard/internal/domain"
	"github.com/dvloznov/jar-dashboard/internal/platform/clock"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type recorder struct {
	events []Event
	errs   []error
}

func (r *recorder) listener() Listener {
	return Listener{
		OnChange: func(ev Event) { r.events = append(r.events, ev) },
		OnError:  func(err error) { r.errs = append(r.errs, err) },
	}
}

func TestMemory_SubscribeToMissingDocument(t *testing.T) {
	m := NewMemory(clock.NewFake(testNow))
	var rec recorder

	unsub, err := m.Subscribe(context.Background(), rec.listener())
	require.NoError(t, err)
	defer unsub()

	require.Len(t, rec.events, 1)
	assert.False(t, rec.events[0].Exists)
	_, ok := m.Document()
	assert.False(t, ok)
}

func TestMemory_PushEchoesToEverySubscriber(t *testing.T) {
	m := NewMemory(clock.NewFake(testNow))
	var a, b recorder
	unsubA, _ := m.Subscribe(context.Background(), a.listener())
	unsubB, _ := m.Subscribe(context.Background(), b.listener())
	defer unsubA()
	defer unsubB()

	s := domain.Defaults(testNow)
	s.DollarRate = 5.2
	require.NoError(t, m.Push(context.Background(), s))

	for _, rec := range []*recorder{&a, &b} {
		require.Len(t, rec.events, 2)
		last := rec.events[1]
		assert.True(t, last.Exists)
		assert.Equal(t, 5.2, last.State.DollarRate)
	}
	assert.Equal(t, 1, m.Pushes())
	assert.Equal(t, testNow, m.UpdatedAt())
}

func TestMemory_DeliveredStatesAreIndependent(t *testing.T) {
	m := NewMemory(clock.NewFake(testNow))
	var a, b recorder
	m.Subscribe(context.Background(), a.listener())
	m.Subscribe(context.Background(), b.listener())

	s := domain.Defaults(testNow)
	_, err := s.AddTransaction(domain.NewTransaction{
		Type:      domain.TransactionDeposit,
		Partner:   domain.PartnerJoey,
		AmountBRL: domain.ParseCurrency("100"),
	}, testNow)
	require.NoError(t, err)
	require.NoError(t, m.Push(context.Background(), s))

	a.events[1].State.Transactions[0].AmountBRL = 1
	assert.Equal(t, 100.0, b.events[1].State.Transactions[0].AmountBRL)
}

func TestMemory_Unsubscribe(t *testing.T) {
	m := NewMemory(clock.NewFake(testNow))
	var rec recorder
	unsub, _ := m.Subscribe(context.Background(), rec.listener())
	unsub()
	unsub()

	require.NoError(t, m.Push(context.Background(), domain.Defaults(testNow)))
	assert.Len(t, rec.events, 1)
	assert.Equal(t, 0, m.Subscribers())
}

func TestMemory_PushFailure(t *testing.T) {
	m := NewMemory(clock.NewFake(testNow))
	boom := errors.New("permission denied")
	m.FailPushes(boom)

	err := m.Push(context.Background(), domain.Defaults(testNow))

	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Pushes())

	m.FailPushes(nil)
	assert.NoError(t, m.Push(context.Background(), domain.Defaults(testNow)))
}

func TestMemory_PushCanceledContext(t *testing.T) {
	m := NewMemory(clock.NewFake(testNow))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Push(ctx, domain.Defaults(testNow))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnconfigured(t *testing.T) {
	u := Unconfigured{Reason: "FIREBASE_PROJECT_ID is not set"}

	unsub, err := u.Subscribe(context.Background(), Listener{
		OnChange: func(Event) { t.Fatal("unexpected change") },
	})
	require.NoError(t, err)
	unsub()

	err = u.Push(context.Background(), domain.Defaults(testNow))
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Contains(t, err.Error(), "FIREBASE_PROJECT_ID")

	assert.False(t, IsConfigured(u))
	assert.True(t, IsConfigured(NewMemory(nil)))
}

func TestDocumentRoundTrip(t *testing.T) {
	s := domain.Defaults(testNow)
	s.DollarRate = 5.31

	doc, err := toDocument(s)
	require.NoError(t, err)
	assert.Contains(t, doc, "startDate_jm")
	doc[serverTimestampField] = testNow

	got, err := fromDocument(doc, testNow)
	require.NoError(t, err)
	assert.True(t, domain.Equal(s, got), domain.Diff(s, got))
}
