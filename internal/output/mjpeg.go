package output

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"github.com/bryanchriswhite/fremkalder/internal/logger"
)

// DefaultJPEGQuality is used when MJPEGOutput is created with quality 0.
const DefaultJPEGQuality = 90

// MJPEGOutput streams frames as Motion JPEG over HTTP. The compositor runs
// one for the input preview and one for the output preview.
type MJPEGOutput struct {
	name    string
	config  Config
	quality int
	running bool
	mu      sync.RWMutex

	frameMu    sync.RWMutex
	lastFrame  []byte
	lastUpdate time.Time

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	startTime  time.Time
}

// MJPEGStats is a point-in-time view of a stream.
type MJPEGStats struct {
	Name       string    `json:"name"`
	Running    bool      `json:"running"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	TargetFPS  int       `json:"target_fps"`
	ActualFPS  float64   `json:"actual_fps"`
	Frames     uint64    `json:"frames"`
	Clients    int       `json:"clients"`
	LastUpdate time.Time `json:"last_update,omitzero"`
}

// NewMJPEGOutput creates a stream named name (used in logs and stats).
func NewMJPEGOutput(name string, config Config, quality int) *MJPEGOutput {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &MJPEGOutput{
		name:    name,
		config:  config,
		quality: quality,
		clients: make(map[chan []byte]struct{}),
	}
}

// Start marks the stream active. The HTTP handler is mounted separately via
// HTTPHandler.
func (m *MJPEGOutput) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("MJPEG output %s already running", m.name)
	}

	m.running = true
	m.startTime = time.Now()
	m.frameCount = 0

	logger.WithComponent("mjpeg").Info().
		Str("stream", m.name).
		Int("width", m.config.Width).
		Int("height", m.config.Height).
		Int("fps", m.config.FPS).
		Int("quality", m.quality).
		Msg("Stream started")
	return nil
}

// Stop ends the stream and disconnects every client.
func (m *MJPEGOutput) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false

	m.clientsMu.Lock()
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
	m.clientsMu.Unlock()

	logger.WithComponent("mjpeg").Info().
		Str("stream", m.name).
		Uint64("frames", m.frameCount).
		Msg("Stream stopped")
	return nil
}

// WriteFrame encodes frame and fans it out to connected clients. Slow
// clients skip frames. With no clients connected the frame is counted but
// not encoded.
func (m *MJPEGOutput) WriteFrame(frame *image.RGBA) error {
	if !m.IsRunning() {
		return ErrNotRunning
	}

	m.mu.Lock()
	m.frameCount++
	m.mu.Unlock()

	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	if len(m.clients) == 0 {
		return nil
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, frame, &jpeg.Options{Quality: m.quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	jpegData := buf.Bytes()

	m.frameMu.Lock()
	m.lastFrame = jpegData
	m.lastUpdate = time.Now()
	m.frameMu.Unlock()

	for ch := range m.clients {
		select {
		case ch <- jpegData:
		default:
		}
	}
	return nil
}

// Name returns the stream name.
func (m *MJPEGOutput) Name() string {
	return "mjpeg:" + m.name
}

// IsRunning reports whether the stream is active.
func (m *MJPEGOutput) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Stats reports frame and client counters.
func (m *MJPEGOutput) Stats() MJPEGStats {
	m.mu.RLock()
	running := m.running
	frames := m.frameCount
	start := m.startTime
	m.mu.RUnlock()

	m.clientsMu.RLock()
	clients := len(m.clients)
	m.clientsMu.RUnlock()

	m.frameMu.RLock()
	last := m.lastUpdate
	m.frameMu.RUnlock()

	var fps float64
	if running && !start.IsZero() {
		if elapsed := time.Since(start).Seconds(); elapsed > 0 {
			fps = float64(frames) / elapsed
		}
	}

	return MJPEGStats{
		Name:       m.name,
		Running:    running,
		Width:      m.config.Width,
		Height:     m.config.Height,
		TargetFPS:  m.config.FPS,
		ActualFPS:  fps,
		Frames:     frames,
		Clients:    clients,
		LastUpdate: last,
	}
}

// HTTPHandler serves the multipart stream. Each request is one client.
func (m *MJPEGOutput) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !m.IsRunning() {
			http.Error(w, "stream not running", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		w.Header().Set("Connection", "close")

		frameChan := make(chan []byte, 2)

		log := logger.WithComponent("mjpeg").With().Str("stream", m.name).Logger()

		m.clientsMu.Lock()
		m.clients[frameChan] = struct{}{}
		clientCount := len(m.clients)
		m.clientsMu.Unlock()

		log.Info().Int("clients", clientCount).Str("remote", r.RemoteAddr).Msg("Client connected")

		defer func() {
			m.clientsMu.Lock()
			delete(m.clients, frameChan)
			clientCount := len(m.clients)
			m.clientsMu.Unlock()
			log.Info().Int("clients", clientCount).Msg("Client disconnected")
		}()

		ctx := r.Context()
		for {
			var jpegData []byte
			select {
			case <-ctx.Done():
				return
			case data, ok := <-frameChan:
				if !ok {
					return
				}
				jpegData = data
			}

			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpegData)); err != nil {
				return
			}
			if _, err := w.Write(jpegData); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}

// SnapshotHandler serves the last frame sent to stream clients as a single
// JPEG. It is 404 until some client has received a frame.
func (m *MJPEGOutput) SnapshotHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.frameMu.RLock()
		data := m.lastFrame
		m.frameMu.RUnlock()

		if data == nil {
			http.Error(w, "no frame available", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(data)
	}
}
