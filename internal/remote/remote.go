// Package remote talks to the single shared dashboard document.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

// serverTimestampField carries the backend-observed write time. It is kept
// apart from lastUpdated, which is written by clients.
const serverTimestampField = "serverUpdatedAt"

// ErrNotConfigured is returned by the Unconfigured store.
var ErrNotConfigured = errors.New("remote store not configured")

// WriteError reports a failed push. The caller surfaces it and does not retry.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return "remote write failed: " + e.Err.Error()
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Event is one observed version of the remote document. Exists is false
// when no document has been written yet.
type Event struct {
	State  domain.ApplicationState
	Exists bool
}

// Listener receives subscription callbacks. Callbacks may run on any goroutine.
type Listener struct {
	OnChange func(Event)
	OnError  func(error)
}

func (l Listener) change(ev Event) {
	if l.OnChange != nil {
		l.OnChange(ev)
	}
}

func (l Listener) fail(err error) {
	if l.OnError != nil {
		l.OnError(err)
	}
}

// Unsubscribe tears a subscription down. It is safe to call more than once.
type Unsubscribe func()

// Store is the remote document client.
type Store interface {
	// Push overwrites the whole document with state.
	Push(ctx context.Context, state domain.ApplicationState) error
	// Subscribe delivers every observed change of the document, including
	// echoes of this client's own writes.
	Subscribe(ctx context.Context, l Listener) (Unsubscribe, error)
}

// toDocument converts state into the field map stored remotely.
func toDocument(state domain.ApplicationState) (map[string]interface{}, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return doc, nil
}

// fromDocument decodes a stored field map onto defaults.
func fromDocument(doc map[string]interface{}, now time.Time) (domain.ApplicationState, error) {
	delete(doc, serverTimestampField)
	data, err := json.Marshal(doc)
	if err != nil {
		return domain.ApplicationState{}, fmt.Errorf("decode document: %w", err)
	}
	return domain.Decode(data, now)
}
