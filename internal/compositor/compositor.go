// Package compositor runs the frame loop: compose the input frame, map it
// through every surface mesh into the output frame, feed the sinks, then
// draw the editing previews.
package compositor

import (
	"fmt"
	"image"
	"slices"
	"sync"
	"time"

	"github.com/bryanchriswhite/fremkalder/internal/logger"
	"github.com/bryanchriswhite/fremkalder/internal/output"
	"github.com/bryanchriswhite/fremkalder/internal/overlay"
	"github.com/bryanchriswhite/fremkalder/internal/render"
	"github.com/bryanchriswhite/fremkalder/internal/surface"
	xdraw "golang.org/x/image/draw"
)

// FrameSource fills the input frame. *source.Canvas implements it.
type FrameSource interface {
	Compose(dst *image.RGBA)
}

// Scene provides the geometry to draw. *project.Session implements it.
type Scene interface {
	Meshes() []surface.VertexBuffer
	OverlayShapes(set surface.PointSet) []overlay.Shape
}

// Config sizes the frames the compositor produces.
type Config struct {
	Width         int
	Height        int
	FPS           int
	PreviewWidth  int
	PreviewHeight int
}

// Stats reports loop counters.
type Stats struct {
	Running    bool          `json:"running"`
	FPS        int           `json:"fps"`
	Frames     uint64        `json:"frames"`
	LastRender time.Duration `json:"last_render_ns"`
	Sinks      []string      `json:"sinks"`
}

// Compositor owns the frame buffers and the sink list.
type Compositor struct {
	cfg      Config
	input    FrameSource
	scene    Scene
	renderer *overlay.Renderer

	mu            sync.Mutex
	sinks         []output.Output
	inputPreview  output.Output
	outputPreview output.Output

	// frameMu guards the frame buffers below
	frameMu  sync.Mutex
	inFrame  *image.RGBA
	outFrame *image.RGBA
	inPrev   *image.RGBA
	outPrev  *image.RGBA

	running    bool
	stopChan   chan struct{}
	done       chan struct{}
	frames     uint64
	lastRender time.Duration
}

// New creates a stopped compositor. Preview overlays are drawn with the
// default style scaled from output to preview size.
func New(cfg Config, input FrameSource, scene Scene) (*Compositor, error) {
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, fmt.Errorf("invalid output size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.PreviewWidth < 1 || cfg.PreviewHeight < 1 {
		return nil, fmt.Errorf("invalid preview size %dx%d", cfg.PreviewWidth, cfg.PreviewHeight)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = 25
	}

	scale := float64(cfg.PreviewWidth) / float64(cfg.Width)
	return &Compositor{
		cfg:      cfg,
		input:    input,
		scene:    scene,
		renderer: overlay.NewRenderer(overlay.DefaultStyle().Scaled(scale)),
		inFrame:  image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height)),
		outFrame: image.NewRGBA(image.Rect(0, 0, cfg.Width, cfg.Height)),
		inPrev:   image.NewRGBA(image.Rect(0, 0, cfg.PreviewWidth, cfg.PreviewHeight)),
		outPrev:  image.NewRGBA(image.Rect(0, 0, cfg.PreviewWidth, cfg.PreviewHeight)),
	}, nil
}

// AddSink registers a sink for clean output frames.
func (c *Compositor) AddSink(o output.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.Contains(c.sinks, o) {
		return
	}
	c.sinks = append(c.sinks, o)
}

// RemoveSink unregisters o. It does not stop it.
func (c *Compositor) RemoveSink(o output.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = slices.DeleteFunc(c.sinks, func(s output.Output) bool { return s == o })
}

// SetPreviews sets the sinks for the overlaid input and output previews.
// Either may be nil.
func (c *Compositor) SetPreviews(input, out output.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputPreview = input
	c.outputPreview = out
}

// Start runs the frame loop in a goroutine.
func (c *Compositor) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("compositor already running")
	}
	c.running = true
	c.stopChan = make(chan struct{})
	c.done = make(chan struct{})
	go c.loop(c.stopChan, c.done)
	return nil
}

// Stop ends the frame loop and waits for the frame in flight.
func (c *Compositor) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopChan)
	done := c.done
	c.mu.Unlock()
	<-done
}

func (c *Compositor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := time.Second / time.Duration(c.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := logger.WithComponent("compositor")
	log.Info().
		Int("fps", c.cfg.FPS).
		Dur("interval", interval).
		Int("width", c.cfg.Width).
		Int("height", c.cfg.Height).
		Msg("Frame loop started")

	for {
		select {
		case <-stop:
			log.Info().Msg("Frame loop stopped")
			return
		case <-ticker.C:
			c.RenderFrame()
		}
	}
}

// RenderFrame produces one frame and hands it to every running sink. Sink
// errors are logged; one failing sink does not affect the others.
func (c *Compositor) RenderFrame() {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	start := time.Now()

	c.mu.Lock()
	sinks := slices.Clone(c.sinks)
	inPreview, outPreview := c.inputPreview, c.outputPreview
	c.mu.Unlock()

	c.input.Compose(c.inFrame)
	render.Clear(c.outFrame)
	render.DrawMeshes(c.outFrame, c.inFrame, c.scene.Meshes())

	log := logger.WithComponent("compositor")
	for _, s := range sinks {
		if !s.IsRunning() {
			continue
		}
		if err := s.WriteFrame(c.outFrame); err != nil {
			log.Debug().Err(err).Str("sink", s.Name()).Msg("Sink rejected frame")
		}
	}

	c.preview(inPreview, c.inPrev, c.inFrame, surface.InputSet)
	c.preview(outPreview, c.outPrev, c.outFrame, surface.OutputSet)

	c.mu.Lock()
	c.frames++
	c.lastRender = time.Since(start)
	c.mu.Unlock()
}

func (c *Compositor) preview(sink output.Output, dst, frame *image.RGBA, set surface.PointSet) {
	if sink == nil || !sink.IsRunning() {
		return
	}
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), frame, frame.Bounds(), xdraw.Src, nil)

	log := logger.WithComponent("compositor")
	if err := c.renderer.Render(dst, c.scene.OverlayShapes(set)); err != nil {
		log.Warn().Err(err).Str("set", set.String()).Msg("Overlay render failed")
	}
	if err := sink.WriteFrame(dst); err != nil {
		log.Debug().Err(err).Str("sink", sink.Name()).Msg("Preview rejected frame")
	}
}

// Output returns a copy of the most recent output frame.
func (c *Compositor) Output() *image.RGBA {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()
	img := image.NewRGBA(c.outFrame.Rect)
	copy(img.Pix, c.outFrame.Pix)
	return img
}

// Stats reports loop counters.
func (c *Compositor) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.sinks))
	for _, s := range c.sinks {
		names = append(names, s.Name())
	}
	return Stats{
		Running:    c.running,
		FPS:        c.cfg.FPS,
		Frames:     c.frames,
		LastRender: c.lastRender,
		Sinks:      names,
	}
}
