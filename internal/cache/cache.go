// Package cache keeps the last known application state on local disk so a
// restarted process can serve it before the remote document arrives.
package cache

import (
	"time"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

// StorageKey names the single cached entry. It matches the key browser
// clients use for their local storage.
const StorageKey = "JAR_DASHBOARD_V6_REALTIME"

// Cache is synchronous, best-effort key-value persistence of the full state.
// Write never fails from the caller's point of view: losing the cache is not
// fatal because the remote document is authoritative.
type Cache interface {
	Read() (domain.ApplicationState, bool)
	Write(state domain.ApplicationState)
}

// nowFunc dates the defaults a cached entry is decoded onto.
var nowFunc = func() time.Time { return time.Now().UTC() }

// decode turns a cached payload into state, backfilled onto defaults.
func decode(data []byte) (domain.ApplicationState, bool) {
	if len(data) == 0 {
		return domain.ApplicationState{}, false
	}
	s, err := domain.Decode(data, nowFunc())
	if err != nil {
		return domain.ApplicationState{}, false
	}
	return s, true
}
