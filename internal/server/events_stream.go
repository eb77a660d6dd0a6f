package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/voltatlas/prognos/internal/domain"
)

// EventStream broadcasts domain events to websocket clients. It is wired as
// a passive bus observer; a slow client never blocks the pipeline.
type EventStream struct {
	log    zerolog.Logger
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

// NewEventStream creates an empty stream.
func NewEventStream(log zerolog.Logger) *EventStream {
	return &EventStream{
		log:   log.With().Str("component", "event_stream").Logger(),
		conns: make(map[*websocket.Conn]struct{}),
	}
}

type eventMessage struct {
	Event      string    `json:"event"`
	LocationID string    `json:"location_id,omitempty"`
	Time       time.Time `json:"time"`
}

// Publish fans an event out to all connected clients.
func (s *EventStream) Publish(evt domain.Event) {
	msg := eventMessage{Event: evt.EventName(), Time: time.Now()}
	switch e := evt.(type) {
	case domain.LocationCreated:
		msg.LocationID = e.LocationID.String()
	case domain.HistoricDataUpdated:
		msg.LocationID = e.LocationID.String()
	case domain.PredictionsCreated:
		msg.LocationID = e.LocationID.String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			s.log.Debug().Err(err).Msg("Dropping websocket client")
			_ = conn.Close(websocket.StatusGoingAway, "write failed")
			delete(s.conns, conn)
		}
		cancel()
	}
}

// HandleWebSocket handles GET /api/events/ws
func (s *EventStream) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same permissive origin policy as the CORS layer
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.log.Info().Msg("Client connected to event stream")

	// reads are discarded; the stream is one-way
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// Close disconnects all clients.
func (s *EventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for conn := range s.conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	s.conns = map[*websocket.Conn]struct{}{}
}
