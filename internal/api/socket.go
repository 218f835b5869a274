package api

import (
	"encoding/json"
	"net/http"

	"github.com/bryanchriswhite/fremkalder/internal/logger"
	"github.com/bryanchriswhite/fremkalder/internal/project"
	"github.com/gorilla/websocket"
)

// eventMessage is pushed on /api/events after every session change.
type eventMessage struct {
	Event    *project.Event   `json:"event,omitempty"`
	Snapshot project.Snapshot `json:"snapshot"`
}

// handleEvents pushes the current snapshot, then a fresh snapshot after
// every session change, until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	updates := s.deps.Session.Subscribe()
	defer s.deps.Session.Unsubscribe(updates)

	if err := conn.WriteJSON(eventMessage{Snapshot: s.deps.Session.Snapshot()}); err != nil {
		log.Debug().Err(err).Msg("WebSocket write failed")
		return
	}

	// The read loop only notices the client closing.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case ev, ok := <-updates:
			if !ok {
				return
			}
			msg := eventMessage{Event: &ev, Snapshot: s.deps.Session.Snapshot()}
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		}
	}
}

// handlePointerSocket applies pointer events streamed by the client and
// answers each with its result.
func (s *Server) handlePointerSocket(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	defer s.deps.Session.PointerLeave()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("Pointer socket closed")
			}
			return
		}
		var (
			req pointerRequest
			res pointerResult
		)
		err = json.Unmarshal(data, &req)
		if err == nil {
			res, err = s.applyPointer(req)
		}
		if err != nil {
			if err := conn.WriteJSON(map[string]string{"error": err.Error()}); err != nil {
				return
			}
			continue
		}
		if err := conn.WriteJSON(res); err != nil {
			return
		}
	}
}
