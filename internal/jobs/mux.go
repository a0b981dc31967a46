package jobs

import (
	"context"
	"fmt"
	"sync"
)

// Mux routes jobs to the handler registered for their type.
type Mux struct {
	mu       sync.RWMutex
	handlers map[JobType]JobHandler
}

// NewMux returns an empty router.
func NewMux() *Mux {
	return &Mux{handlers: make(map[JobType]JobHandler)}
}

// Register binds h to t, replacing any earlier handler.
func (m *Mux) Register(t JobType, h JobHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[t] = h
}

// Registered reports whether t has a handler.
func (m *Mux) Registered(t JobType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.handlers[t]
	return ok
}

// Handle implements JobHandler.
func (m *Mux) Handle(ctx context.Context, job *Job) error {
	m.mu.RLock()
	h, ok := m.handlers[job.Type]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type)
	}
	return h(ctx, job)
}
