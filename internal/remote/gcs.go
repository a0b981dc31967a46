package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"

	"github.com/dvloznov/jar-dashboard/internal/domain"
)

// GCS keeps the dashboard as a single JSON object in a bucket. Changes are
// detected by polling the object generation.
type GCS struct {
	client   *storage.Client
	obj      *storage.ObjectHandle
	interval time.Duration
	log      zerolog.Logger
}

// NewGCS creates a storage client using Application Default Credentials.
func NewGCS(ctx context.Context, bucket, object string, interval time.Duration, log zerolog.Logger) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &GCS{
		client:   client,
		obj:      client.Bucket(bucket).Object(object),
		interval: interval,
		log:      log.With().Str("component", "remote.gcs").Str("object", "gs://"+bucket+"/"+object).Logger(),
	}, nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}

func (g *GCS) Push(ctx context.Context, state domain.ApplicationState) error {
	data, err := state.MarshalJSON()
	if err != nil {
		return &WriteError{Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	w := g.obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return &WriteError{Err: fmt.Errorf("write object: %w", err)}
	}
	if err := w.Close(); err != nil {
		return &WriteError{Err: fmt.Errorf("finalize object: %w", err)}
	}
	// The object's Updated attribute is the server-observed write time.
	if attrs := w.Attrs(); attrs != nil {
		g.log.Debug().Int64("generation", attrs.Generation).Time(serverTimestampField, attrs.Updated).Msg("document written")
	}
	return nil
}

func (g *GCS) Subscribe(ctx context.Context, l Listener) (Unsubscribe, error) {
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()

		var (
			lastGen int64 = -1
			failing bool
		)
		for {
			gen, err := g.poll(subCtx, lastGen, l)
			switch {
			case subCtx.Err() != nil:
				return
			case err != nil:
				// Report once per outage; polling keeps going.
				if !failing {
					g.log.Error().Err(err).Msg("poll failed")
					l.fail(err)
				}
				failing = true
			default:
				failing = false
				lastGen = gen
			}

			select {
			case <-subCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

// poll emits an event when the object generation differs from lastGen.
// Generation 0 stands for a missing object.
func (g *GCS) poll(ctx context.Context, lastGen int64, l Listener) (int64, error) {
	attrs, err := g.obj.Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		if lastGen != 0 {
			l.change(Event{Exists: false})
		}
		return 0, nil
	}
	if err != nil {
		return lastGen, fmt.Errorf("stat object: %w", err)
	}
	if attrs.Generation == lastGen {
		return lastGen, nil
	}

	r, err := g.obj.Generation(attrs.Generation).NewReader(ctx)
	if err != nil {
		return lastGen, fmt.Errorf("open object reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return lastGen, fmt.Errorf("read object: %w", err)
	}
	state, err := domain.Decode(data, time.Now().UTC())
	if err != nil {
		return lastGen, err
	}
	l.change(Event{State: state, Exists: true})
	return attrs.Generation, nil
}

var _ Store = (*GCS)(nil)
