package reconcile

import "time"

// SyncState is the user-facing sync indicator.
type SyncState string

const (
	StatusIdle         SyncState = "idle"
	StatusSyncing      SyncState = "syncing"
	StatusError        SyncState = "error"
	StatusSuccess      SyncState = "success"
	StatusUnconfigured SyncState = "unconfigured"
)

const (
	manualSuccessHold = 2 * time.Second
	autoSuccessHold   = 500 * time.Millisecond
)

// Status is a point-in-time view of the reconciler.
type Status struct {
	State          SyncState `json:"status"`
	Error          string    `json:"error,omitempty"`
	LastSyncedAt   time.Time `json:"lastSyncedAt"`
	Revision       uint64    `json:"revision"`
	SyncedRevision uint64    `json:"syncedRevision"`
	Pending        bool      `json:"pending"`
}
