package remote

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/jar-dashboard/internal/domain"
	"github.com/dvloznov/jar-dashboard/internal/platform/clock"
)

// Memory is an in-process document shared by every subscriber. Deliveries
// happen synchronously on the pushing goroutine, in subscription order.
type Memory struct {
	clock clock.Clock

	mu        sync.Mutex
	doc       []byte
	updatedAt time.Time
	subs      map[int]Listener
	nextID    int
	pushes    int
	pushErr   error
}

// NewMemory returns an empty in-memory document.
func NewMemory(clk clock.Clock) *Memory {
	if clk == nil {
		clk = clock.System{}
	}
	return &Memory{clock: clk, subs: make(map[int]Listener)}
}

func (m *Memory) Push(ctx context.Context, state domain.ApplicationState) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Err: err}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return &WriteError{Err: err}
	}

	m.mu.Lock()
	if m.pushErr != nil {
		err := m.pushErr
		m.mu.Unlock()
		return &WriteError{Err: err}
	}
	m.doc = data
	m.updatedAt = m.clock.Now()
	m.pushes++
	subs := m.listenersLocked()
	m.mu.Unlock()

	for _, l := range subs {
		m.deliver(l, data)
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, l Listener) (Unsubscribe, error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = l
	doc := m.doc
	m.mu.Unlock()

	m.deliver(l, doc)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}, nil
}

func (m *Memory) deliver(l Listener, doc []byte) {
	if doc == nil {
		l.change(Event{Exists: false})
		return
	}
	s, err := domain.Decode(doc, m.clock.Now())
	if err != nil {
		l.fail(err)
		return
	}
	l.change(Event{State: s, Exists: true})
}

func (m *Memory) listenersLocked() []Listener {
	ids := make([]int, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.subs[id])
	}
	return out
}

// Document returns the stored state, if any.
func (m *Memory) Document() (domain.ApplicationState, bool) {
	m.mu.Lock()
	doc := m.doc
	m.mu.Unlock()
	if doc == nil {
		return domain.ApplicationState{}, false
	}
	s, err := domain.Decode(doc, m.clock.Now())
	if err != nil {
		return domain.ApplicationState{}, false
	}
	return s, true
}

// UpdatedAt is the server-observed time of the last successful push.
func (m *Memory) UpdatedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatedAt
}

// Pushes counts successful pushes.
func (m *Memory) Pushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pushes
}

// Subscribers counts live subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// FailPushes makes every following push fail with err until called with nil.
func (m *Memory) FailPushes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pushErr = err
}

var _ Store = (*Memory)(nil)
