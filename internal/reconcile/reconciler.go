// Package reconcile keeps the local state, the local cache and the remote
// document converged.
//
// Every commit to the state holder carries a revision. The reconciler
// remembers the revision and content it last agreed on with the remote
// document; a local change is pushed only while its revision is newer, and a
// remote event that merely repeats the last synced or in-flight content while
// newer local edits are pending is recognised as a stale echo and dropped.
package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/jar-dashboard/internal/cache"
	"github.com/dvloznov/jar-dashboard/internal/domain"
	"github.com/dvloznov/jar-dashboard/internal/platform/clock"
	"github.com/dvloznov/jar-dashboard/internal/remote"
	"github.com/dvloznov/jar-dashboard/internal/state"
)

// DefaultDebounce is the quiet period before a local change is pushed.
const DefaultDebounce = time.Second

// Options configures a Reconciler. Zero values pick defaults.
type Options struct {
	Debounce time.Duration
	Clock    clock.Clock
	Logger   zerolog.Logger
	// OnStatus, if set, observes every status transition.
	OnStatus func(Status)
}

// Reconciler wires a state holder to a cache and a remote store.
type Reconciler struct {
	holder   *state.Holder
	cache    cache.Cache
	store    remote.Store
	clock    clock.Clock
	debounce time.Duration
	log      zerolog.Logger
	onStatus func(Status)

	// pushMu serializes pushes so revisions reach the store in order.
	pushMu sync.Mutex

	mu            sync.Mutex
	ctx           context.Context
	timer         clock.Timer
	statusTimer   clock.Timer
	syncedRev     uint64
	lastSynced    *domain.ApplicationState
	inflightRev   uint64
	inflight      *domain.ApplicationState
	remoteMissing bool
	status        SyncState
	lastErr       error
	lastSyncedAt  time.Time
	started       bool
	unsubLocal    func()
	unsubRemote   remote.Unsubscribe
}

// New creates a reconciler. Nothing happens until Start.
func New(holder *state.Holder, c cache.Cache, store remote.Store, opts Options) *Reconciler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if store == nil {
		store = remote.Unconfigured{Reason: "no remote store"}
	}
	status := StatusIdle
	if !remote.IsConfigured(store) {
		status = StatusUnconfigured
	}
	return &Reconciler{
		holder:   holder,
		cache:    c,
		store:    store,
		clock:    opts.Clock,
		debounce: opts.Debounce,
		log:      opts.Logger.With().Str("component", "reconcile").Logger(),
		onStatus: opts.OnStatus,
		status:   status,
		ctx:      context.Background(),
	}
}

// Start subscribes to local commits and to the remote document. ctx bounds
// every push made on the reconciler's behalf; cancel it or call Close to stop.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("reconciler already started")
	}
	r.started = true
	r.ctx = ctx
	r.mu.Unlock()

	unsubLocal := r.holder.Subscribe(r.onLocal)

	r.mu.Lock()
	r.unsubLocal = unsubLocal
	r.mu.Unlock()

	if !remote.IsConfigured(r.store) {
		r.log.Warn().Msg("remote store not configured, running from local cache only")
		return nil
	}

	unsub, err := r.store.Subscribe(ctx, remote.Listener{
		OnChange: r.onRemote,
		OnError:  r.onRemoteError,
	})
	if err != nil {
		r.onRemoteError(err)
		return nil
	}

	r.mu.Lock()
	r.unsubRemote = unsub
	r.mu.Unlock()
	return nil
}

// onLocal runs for every holder commit, in commit order. The cache is
// written synchronously for both origins; only local commits are pushed.
func (r *Reconciler) onLocal(ch state.Change) {
	if r.cache != nil {
		r.cache.Write(ch.State)
	}
	if ch.Origin != state.OriginLocal || !remote.IsConfigured(r.store) {
		return
	}
	r.mu.Lock()
	r.armLocked()
	r.mu.Unlock()
}

// armLocked (re)starts the debounce timer.
func (r *Reconciler) armLocked() {
	r.cancelPendingLocked()
	var t clock.Timer
	t = r.clock.AfterFunc(r.debounce, func() { r.fire(t) })
	r.timer = t
}

func (r *Reconciler) fire(t clock.Timer) {
	r.mu.Lock()
	if r.timer != t {
		// Superseded by a newer arm or canceled.
		r.mu.Unlock()
		return
	}
	r.timer = nil
	ctx := r.ctx
	r.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if err := r.push(ctx, false, false); err != nil {
		r.log.Warn().Err(err).Msg("debounced push failed")
	}
}

func (r *Reconciler) onRemote(ev remote.Event) {
	if !ev.Exists {
		r.log.Info().Msg("remote document missing, scheduling initial write")
		r.mu.Lock()
		r.remoteMissing = true
		if remote.IsConfigured(r.store) {
			r.armLocked()
		}
		r.mu.Unlock()
		return
	}

	incoming := domain.Backfill(ev.State, r.clock.Now())

	rev, applied := r.holder.CompareAndReplace(func(cur domain.ApplicationState, rev uint64) (domain.ApplicationState, bool) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.remoteMissing = false

		if domain.Equal(incoming, cur) {
			// The remote already holds exactly what we have.
			if rev >= r.syncedRev {
				r.markSyncedLocked(rev, incoming)
				r.cancelPendingLocked()
			}
			return cur, false
		}
		if r.lastSynced != nil && rev > r.syncedRev && domain.Equal(incoming, *r.lastSynced) {
			r.log.Debug().Uint64("rev", rev).Uint64("synced_rev", r.syncedRev).Msg("suppressing stale echo")
			return cur, false
		}
		// The listener may deliver our own write before Push returns.
		if r.inflight != nil && rev > r.inflightRev && domain.Equal(incoming, *r.inflight) {
			r.log.Debug().Uint64("rev", rev).Uint64("inflight_rev", r.inflightRev).Msg("suppressing in-flight echo")
			return cur, false
		}

		if e := r.log.Debug(); e.Enabled() {
			e.Str("diff", domain.Diff(cur, incoming)).Msg("applying remote change")
		}
		r.cancelPendingLocked()
		r.markSyncedLocked(rev+1, incoming)
		return incoming, true
	}, state.OriginRemote)

	if applied {
		r.log.Info().Uint64("rev", rev).Msg("remote change applied")
	}
}

func (r *Reconciler) onRemoteError(err error) {
	r.log.Error().Err(err).Msg("remote subscription failed")
	r.setStatus(StatusError, err, 0)
}

func (r *Reconciler) markSyncedLocked(rev uint64, s domain.ApplicationState) {
	if rev < r.syncedRev {
		return
	}
	r.syncedRev = rev
	snap := domain.Normalize(s.Clone())
	r.lastSynced = &snap
	r.lastSyncedAt = r.clock.Now()
}

func (r *Reconciler) cancelPendingLocked() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Flush pushes pending local changes immediately, bypassing the debounce.
// It is a no-op when everything is already synced.
func (r *Reconciler) Flush(ctx context.Context) error {
	r.mu.Lock()
	r.cancelPendingLocked()
	r.mu.Unlock()
	return r.push(ctx, false, false)
}

// ManualSave pushes the current state even if it is already synced.
func (r *Reconciler) ManualSave(ctx context.Context) error {
	r.mu.Lock()
	r.cancelPendingLocked()
	r.mu.Unlock()
	return r.push(ctx, true, true)
}

func (r *Reconciler) push(ctx context.Context, force, manual bool) error {
	if !remote.IsConfigured(r.store) {
		if force {
			return remote.ErrNotConfigured
		}
		return nil
	}

	r.pushMu.Lock()
	defer r.pushMu.Unlock()

	snap, rev := r.holder.Get()

	r.mu.Lock()
	if !force && !r.remoteMissing && rev <= r.syncedRev {
		r.mu.Unlock()
		return nil
	}
	inflight := domain.Normalize(snap.Clone())
	r.inflightRev = rev
	r.inflight = &inflight
	r.mu.Unlock()

	r.setStatus(StatusSyncing, nil, 0)
	r.log.Debug().Uint64("rev", rev).Bool("manual", manual).Msg("pushing state")

	err := r.store.Push(ctx, snap)

	r.mu.Lock()
	r.inflight = nil
	r.mu.Unlock()

	if err != nil {
		r.log.Error().Err(err).Uint64("rev", rev).Msg("push failed")
		r.setStatus(StatusError, err, 0)
		return err
	}

	r.mu.Lock()
	r.remoteMissing = false
	r.markSyncedLocked(rev, snap)
	r.mu.Unlock()

	hold := autoSuccessHold
	if manual {
		hold = manualSuccessHold
	}
	r.setStatus(StatusSuccess, nil, hold)
	return nil
}

// setStatus records a transition. A positive hold reverts success to idle
// after that long unless another transition happened first.
func (r *Reconciler) setStatus(s SyncState, err error, hold time.Duration) {
	r.mu.Lock()
	if r.statusTimer != nil {
		r.statusTimer.Stop()
		r.statusTimer = nil
	}
	r.status = s
	r.lastErr = err
	if hold > 0 {
		var t clock.Timer
		t = r.clock.AfterFunc(hold, func() {
			r.mu.Lock()
			if r.statusTimer != t || r.status != StatusSuccess {
				r.mu.Unlock()
				return
			}
			r.statusTimer = nil
			r.status = StatusIdle
			r.mu.Unlock()
			r.emitStatus()
		})
		r.statusTimer = t
	}
	r.mu.Unlock()
	r.emitStatus()
}

func (r *Reconciler) emitStatus() {
	if r.onStatus != nil {
		r.onStatus(r.Status())
	}
}

// Status reports the current sync indicator.
func (r *Reconciler) Status() Status {
	rev := r.holder.Revision()
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{
		State:          r.status,
		LastSyncedAt:   r.lastSyncedAt,
		Revision:       rev,
		SyncedRevision: r.syncedRev,
		Pending:        r.timer != nil,
	}
	if r.lastErr != nil {
		st.Error = r.lastErr.Error()
	}
	return st
}

// Close stops the debounce timer and both subscriptions. Pending changes
// are not pushed; call Flush first to keep them.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.cancelPendingLocked()
	if r.statusTimer != nil {
		r.statusTimer.Stop()
		r.statusTimer = nil
	}
	unsubLocal, unsubRemote := r.unsubLocal, r.unsubRemote
	r.unsubLocal, r.unsubRemote = nil, nil
	r.mu.Unlock()

	if unsubLocal != nil {
		unsubLocal()
	}
	if unsubRemote != nil {
		unsubRemote()
	}
}
