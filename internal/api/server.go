package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/bryanchriswhite/fremkalder/internal/compositor"
	"github.com/bryanchriswhite/fremkalder/internal/config"
	"github.com/bryanchriswhite/fremkalder/internal/logger"
	"github.com/bryanchriswhite/fremkalder/internal/output"
	"github.com/bryanchriswhite/fremkalder/internal/project"
	"github.com/bryanchriswhite/fremkalder/internal/surface"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Broadcaster is the runtime control of the UDP broadcast. It is attached
// to the compositor as a sink while running.
type Broadcaster interface {
	output.Output
	Status() output.BroadcastStatus
}

// Deps wires the server to the running components. Only Session is
// required.
type Deps struct {
	Session    *project.Session
	Config     *config.Manager
	Compositor *compositor.Compositor
	Broadcast  Broadcaster
	Streams    map[string]*output.MJPEGOutput
	Sources    func() []string
}

// Server is the HTTP control surface.
type Server struct {
	router   *mux.Router
	deps     Deps
	upgrader websocket.Upgrader
	started  time.Time
}

// NewServer creates a server and registers its routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Surfaces
	api.HandleFunc("/surfaces", s.handleGetSurfaces).Methods("GET")
	api.HandleFunc("/surfaces", s.handleClearSurfaces).Methods("DELETE")
	api.HandleFunc("/surfaces/rect", s.handleAddSurface(surface.KindRect)).Methods("POST")
	api.HandleFunc("/surfaces/triangle", s.handleAddSurface(surface.KindTriangle)).Methods("POST")
	api.HandleFunc("/surfaces/{id:[0-9]+}", s.handleRemoveSurface).Methods("DELETE")
	api.HandleFunc("/surfaces/{id:[0-9]+}/lock", s.handleLockSurface).Methods("PUT")
	api.HandleFunc("/surfaces/{id:[0-9]+}/segments", s.handleSetSegments).Methods("PUT")
	api.HandleFunc("/surfaces/{id:[0-9]+}/mesh", s.handleGetMesh).Methods("GET")

	// Pointer
	api.HandleFunc("/pointer/move", s.pointerHandler("move")).Methods("POST")
	api.HandleFunc("/pointer/drag", s.pointerHandler("drag")).Methods("POST")
	api.HandleFunc("/pointer/leave", s.pointerHandler("leave")).Methods("POST")
	api.HandleFunc("/pointer", s.handlePointerSocket)

	// Project
	api.HandleFunc("/project", s.handleGetProject).Methods("GET")
	api.HandleFunc("/project", s.handlePutProject).Methods("PUT")
	api.HandleFunc("/project/save", s.handleSaveProject).Methods("POST")
	api.HandleFunc("/project/load", s.handleLoadProject).Methods("POST")

	// Mapping mode
	api.HandleFunc("/mapping", s.handleGetMapping).Methods("GET")
	api.HandleFunc("/mapping", s.handleSetMapping).Methods("PUT")

	// Broadcast
	api.HandleFunc("/broadcast", s.handleBroadcastStatus).Methods("GET")
	api.HandleFunc("/broadcast", s.handleBroadcastStart).Methods("POST")
	api.HandleFunc("/broadcast", s.handleBroadcastStop).Methods("DELETE")

	api.HandleFunc("/events", s.handleEvents)
	api.HandleFunc("/config", s.handleGetConfig).Methods("GET")
	api.HandleFunc("/sources", s.handleGetSources).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/frame.png", s.handleFrame).Methods("GET")

	// Preview streams
	s.router.HandleFunc("/stream/{name}", s.handleStream).Methods("GET")
	s.router.HandleFunc("/stream/{name}/frame.jpg", s.handleStreamFrame).Methods("GET")
}

// Handler returns the router wrapped with CORS headers.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// Start serves on port until the listener fails.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logger.WithComponent("api").Info().Str("addr", addr).Msg("HTTP server listening")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, surface.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, surface.ErrPrecondition),
		errors.Is(err, surface.ErrFormat),
		errors.Is(err, surface.ErrConfiguration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.WithComponent("api").Error().Err(err).Msg("Request failed")
	}
	http.Error(w, err.Error(), code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", surface.ErrFormat, err)
	}
	return nil
}

func surfaceID(r *http.Request) (surface.SurfaceID, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid surface id %q", surface.ErrPrecondition, raw)
	}
	return surface.SurfaceID(id), nil
}

func success(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
