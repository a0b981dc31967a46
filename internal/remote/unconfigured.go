package remote

import (
	"context"
	"fmt"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

// Unconfigured stands in when the backend credentials are missing. Nothing
// is synchronized; the process runs off its local cache.
type Unconfigured struct {
	Reason string
}

func (u Unconfigured) Push(context.Context, domain.ApplicationState) error {
	return fmt.Errorf("%w: %s", ErrNotConfigured, u.Reason)
}

func (u Unconfigured) Subscribe(context.Context, Listener) (Unsubscribe, error) {
	return func() {}, nil
}

// IsConfigured reports whether s can actually sync.
func IsConfigured(s Store) bool {
	switch s.(type) {
	case Unconfigured, *Unconfigured, nil:
		return false
	}
	return true
}

var _ Store = Unconfigured{}
