package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

// Firestore stores the dashboard as one Firestore document and observes it
// through realtime snapshot listeners.
type Firestore struct {
	client *firestore.Client
	doc    *firestore.DocumentRef
	log    zerolog.Logger
}

// NewFirestore opens a client for projectID and binds it to
// <collection>/<document>. It uses Application Default Credentials.
func NewFirestore(ctx context.Context, projectID, collection, document string, log zerolog.Logger) (*Firestore, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return &Firestore{
		client: client,
		doc:    client.Collection(collection).Doc(document),
		log:    log.With().Str("component", "remote.firestore").Str("doc", collection+"/"+document).Logger(),
	}, nil
}

// Close releases the underlying client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) Push(ctx context.Context, state domain.ApplicationState) error {
	data, err := toDocument(state)
	if err != nil {
		return &WriteError{Err: err}
	}
	data[serverTimestampField] = firestore.ServerTimestamp

	res, err := f.doc.Set(ctx, data)
	if err != nil {
		return &WriteError{Err: err}
	}
	f.log.Debug().Time("update_time", res.UpdateTime).Msg("document written")
	return nil
}

func (f *Firestore) Subscribe(ctx context.Context, l Listener) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)
	it := f.doc.Snapshots(subCtx)

	go func() {
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if subCtx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				f.log.Error().Err(err).Msg("snapshot listener failed")
				l.fail(fmt.Errorf("listen %s: %w", f.doc.Path, err))
				return
			}
			if !snap.Exists() {
				l.change(Event{Exists: false})
				continue
			}
			state, err := fromDocument(snap.Data(), time.Now().UTC())
			if err != nil {
				f.log.Warn().Err(err).Msg("discarding undecodable snapshot")
				l.fail(err)
				continue
			}
			l.change(Event{State: state, Exists: true})
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

var _ Store = (*Firestore)(nil)
