package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dvloznov/jar-dashboard/internal/domain"
	"github.com/dvloznov/jar-dashboard/internal/reconcile"
)

const streamWriteTimeout = 10 * time.Second

// Source is what the stream snapshots on every change.
type Source interface {
	State() domain.ApplicationState
	Status() reconcile.Status
}

// StreamMessage is one frame sent to stream clients.
type StreamMessage struct {
	State  domain.ApplicationState `json:"state"`
	Status reconcile.Status        `json:"status"`
}

// Stream pushes the state and sync status to websocket clients whenever
// Notify is called. Notifications coalesce: a slow client only ever sees
// the latest snapshot.
type Stream struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.Mutex
	src     Source
	clients map[chan struct{}]struct{}
}

// NewStream creates a stream with no source. Bind must be called before
// serving.
func NewStream(log zerolog.Logger) *Stream {
	return &Stream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     log,
		clients: make(map[chan struct{}]struct{}),
	}
}

// Bind sets the snapshot source.
func (s *Stream) Bind(src Source) {
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()
}

// Notify wakes every client. It never blocks.
func (s *Stream) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Clients returns the number of connected clients.
func (s *Stream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Stream) add() (chan struct{}, Source) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[ch] = struct{}{}
	return ch, s.src
}

func (s *Stream) remove(ch chan struct{}) {
	s.mu.Lock()
	delete(s.clients, ch)
	s.mu.Unlock()
}

// ServeHTTP handles GET /api/stream
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to upgrade stream")
		return
	}
	defer conn.Close()

	ch, src := s.add()
	defer s.remove(ch)
	if src == nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Clients never send anything meaningful; reading is how a close is noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		msg := StreamMessage{State: src.State(), Status: src.Status()}
		if err := conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout)); err != nil {
			return err
		}
		return conn.WriteJSON(msg)
	}

	if err := send(); err != nil {
		s.log.Debug().Err(err).Msg("Stream client gone")
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-ch:
			if err := send(); err != nil {
				s.log.Debug().Err(err).Msg("Stream client gone")
				return
			}
		}
	}
}
