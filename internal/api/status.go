package api

import (
	"image/png"
	"net/http"
	"time"

	"github.com/bryanchriswhite/fremkalder/internal/logger"
	"github.com/bryanchriswhite/fremkalder/internal/output"
	"github.com/gorilla/mux"
)

func (s *Server) handleBroadcastStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broadcast == nil {
		http.Error(w, "broadcast not configured", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Broadcast.Status())
}

func (s *Server) handleBroadcastStart(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broadcast == nil {
		http.Error(w, "broadcast not configured", http.StatusNotFound)
		return
	}
	if s.deps.Broadcast.IsRunning() {
		http.Error(w, "broadcast already running", http.StatusConflict)
		return
	}
	if err := s.deps.Broadcast.Start(); err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Compositor != nil {
		s.deps.Compositor.AddSink(s.deps.Broadcast)
	}
	writeJSON(w, http.StatusOK, s.deps.Broadcast.Status())
}

func (s *Server) handleBroadcastStop(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broadcast == nil {
		http.Error(w, "broadcast not configured", http.StatusNotFound)
		return
	}
	if s.deps.Compositor != nil {
		s.deps.Compositor.RemoveSink(s.deps.Broadcast)
	}
	if err := s.deps.Broadcast.Stop(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Broadcast.Status())
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.Config == nil {
		http.Error(w, "no configuration loaded", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Config.Get())
}

func (s *Server) handleGetSources(w http.ResponseWriter, r *http.Request) {
	sources := []string{}
	if s.deps.Sources != nil {
		sources = s.deps.Sources()
	}
	writeJSON(w, http.StatusOK, map[string]any{"quadrants": sources})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":  "healthy",
		"version": Version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}
	if s.deps.Compositor != nil {
		health["compositor"] = s.deps.Compositor.Stats()
	}
	if len(s.deps.Streams) > 0 {
		streams := make(map[string]output.MJPEGStats, len(s.deps.Streams))
		for name, st := range s.deps.Streams {
			streams[name] = st.Stats()
		}
		health["streams"] = streams
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) stream(r *http.Request) *output.MJPEGOutput {
	return s.deps.Streams[mux.Vars(r)["name"]]
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	st := s.stream(r)
	if st == nil {
		http.NotFound(w, r)
		return
	}
	st.HTTPHandler()(w, r)
}

func (s *Server) handleStreamFrame(w http.ResponseWriter, r *http.Request) {
	st := s.stream(r)
	if st == nil {
		http.NotFound(w, r)
		return
	}
	st.SnapshotHandler()(w, r)
}

// handleFrame returns the last clean output frame as a PNG.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if s.deps.Compositor == nil {
		http.Error(w, "compositor not running", http.StatusNotFound)
		return
	}
	frame := s.deps.Compositor.Output()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, frame); err != nil {
		logger.WithComponent("api").Debug().Err(err).Msg("Frame write failed")
	}
}
