// Package state holds the single in-process copy of the application state.
package state

import (
	"sort"
	"sync"

	"github.com/dvloznov/jar-dashboard/internal/domain"
	"github.com/dvloznov/jar-dashboard/internal/platform/clock"
)

// Origin tells subscribers where a committed change came from.
type Origin int

const (
	// OriginLocal is a user action in this process.
	OriginLocal Origin = iota
	// OriginRemote is a remote document applied by the reconciler.
	OriginRemote
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Change is delivered to subscribers after every commit.
type Change struct {
	State    domain.ApplicationState
	Revision uint64
	Origin   Origin
}

// Holder is an observable store for ApplicationState. Every commit bumps a
// monotonic revision. Subscribers are notified outside the state lock, one
// commit at a time and in commit order; a subscriber must not call the
// holder's mutating methods from its callback.
type Holder struct {
	clock clock.Clock

	mu    sync.Mutex
	state domain.ApplicationState
	rev   uint64

	// notifyMu keeps commit+notify atomic with respect to other commits.
	notifyMu sync.Mutex

	subsMu sync.Mutex
	subs   map[int]func(Change)
	nextID int
	closed bool
}

// New creates a holder seeded with initial at revision 0.
func New(initial domain.ApplicationState, clk clock.Clock) *Holder {
	if clk == nil {
		clk = clock.System{}
	}
	return &Holder{
		clock: clk,
		state: initial.Clone(),
		subs:  make(map[int]func(Change)),
	}
}

// Get returns a deep copy of the current state and its revision.
func (h *Holder) Get() (domain.ApplicationState, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Clone(), h.rev
}

// Revision returns the current revision.
func (h *Holder) Revision() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rev
}

// Update applies fn to a copy of the state and commits it as a local change
// stamped with the current time. An error from fn discards the copy.
func (h *Holder) Update(fn func(*domain.ApplicationState) error) (domain.ApplicationState, uint64, error) {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	next := h.state.Clone()
	if err := fn(&next); err != nil {
		h.mu.Unlock()
		return domain.ApplicationState{}, 0, err
	}
	next.LastUpdated = h.clock.Now().UnixMilli()
	ch := h.commitLocked(next, OriginLocal)
	h.mu.Unlock()

	h.notify(ch)
	return ch.State.Clone(), ch.Revision, nil
}

// Replace commits s wholesale. Local replacements are stamped with the
// current time; remote ones keep the timestamp they arrived with.
func (h *Holder) Replace(s domain.ApplicationState, origin Origin) uint64 {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	next := s.Clone()
	if origin == OriginLocal {
		next.LastUpdated = h.clock.Now().UnixMilli()
	}
	ch := h.commitLocked(next, origin)
	h.mu.Unlock()

	h.notify(ch)
	return ch.Revision
}

// CompareAndReplace lets decide inspect the current state and revision and
// optionally return a replacement, all under the state lock. When a
// replacement is committed its revision is always rev+1. decide must not
// call back into the holder.
func (h *Holder) CompareAndReplace(decide func(current domain.ApplicationState, rev uint64) (domain.ApplicationState, bool), origin Origin) (uint64, bool) {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()

	h.mu.Lock()
	next, ok := decide(h.state.Clone(), h.rev)
	if !ok {
		rev := h.rev
		h.mu.Unlock()
		return rev, false
	}
	if origin == OriginLocal {
		next.LastUpdated = h.clock.Now().UnixMilli()
	}
	ch := h.commitLocked(next.Clone(), origin)
	h.mu.Unlock()

	h.notify(ch)
	return ch.Revision, true
}

func (h *Holder) commitLocked(next domain.ApplicationState, origin Origin) Change {
	h.state = next
	h.rev++
	return Change{State: next.Clone(), Revision: h.rev, Origin: origin}
}

// Subscribe registers fn for every subsequent commit. The returned function
// removes it.
func (h *Holder) Subscribe(fn func(Change)) func() {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	if h.closed {
		return func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	return func() {
		h.subsMu.Lock()
		delete(h.subs, id)
		h.subsMu.Unlock()
	}
}

// Close drops every subscriber. Commits after Close still apply but notify nobody.
func (h *Holder) Close() {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	h.closed = true
	h.subs = make(map[int]func(Change))
}

func (h *Holder) notify(ch Change) {
	h.subsMu.Lock()
	ids := make([]int, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.subsMu.Unlock()

	for i, fn := range fns {
		c := ch
		if i > 0 {
			c.State = ch.State.Clone()
		}
		fn(c)
	}
}
