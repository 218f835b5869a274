package source

import (
	"fmt"
	"image"
	"sync"

	"github.com/bryanchriswhite/fremkalder/internal/config"
	"github.com/bryanchriswhite/fremkalder/internal/logger"
	xdraw "golang.org/x/image/draw"
)

// Quadrants is the number of input canvas regions, numbered row-major from
// the top left.
const Quadrants = 4

// Canvas composes up to four sources into the quadrants of the input frame.
// Unbound quadrants stay transparent.
type Canvas struct {
	width, height int

	mu      sync.RWMutex
	sources [Quadrants]Source
}

// NewCanvas creates an empty canvas.
func NewCanvas(width, height int) *Canvas {
	return &Canvas{width: width, height: height}
}

// Size returns the canvas size in pixels.
func (c *Canvas) Size() (int, int) {
	return c.width, c.height
}

// QuadrantRect returns the pixel rectangle of quadrant q.
func (c *Canvas) QuadrantRect(q int) image.Rectangle {
	hw, hh := c.width/2, c.height/2
	x0 := (q % 2) * hw
	y0 := (q / 2) * hh
	x1, y1 := x0+hw, y0+hh
	if q%2 == 1 {
		x1 = c.width
	}
	if q/2 == 1 {
		y1 = c.height
	}
	return image.Rect(x0, y0, x1, y1)
}

// Bind starts src and places it in quadrant q, stopping whatever source
// held the quadrant before.
func (c *Canvas) Bind(q int, src Source) error {
	if q < 0 || q >= Quadrants {
		return fmt.Errorf("quadrant %d out of range", q)
	}
	if err := src.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", src.Name(), err)
	}

	c.mu.Lock()
	old := c.sources[q]
	c.sources[q] = src
	c.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	logger.WithComponent("canvas").Info().Int("quadrant", q).Str("source", src.Name()).Msg("Source bound")
	return nil
}

// Unbind stops and removes the source of quadrant q.
func (c *Canvas) Unbind(q int) error {
	if q < 0 || q >= Quadrants {
		return fmt.Errorf("quadrant %d out of range", q)
	}
	c.mu.Lock()
	old := c.sources[q]
	c.sources[q] = nil
	c.mu.Unlock()

	if old != nil {
		return old.Stop()
	}
	return nil
}

// Sources returns the names of the bound sources, "" for empty quadrants.
func (c *Canvas) Sources() [Quadrants]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var names [Quadrants]string
	for i, s := range c.sources {
		if s != nil {
			names[i] = s.Name()
		}
	}
	return names
}

// Compose redraws dst from the bound sources. A failing source leaves its
// quadrant transparent and is logged; it does not fail the frame.
func (c *Canvas) Compose(dst *image.RGBA) {
	clear(dst.Pix)

	c.mu.RLock()
	sources := c.sources
	c.mu.RUnlock()

	for q, src := range sources {
		if src == nil {
			continue
		}
		frame, err := src.Frame()
		if err != nil {
			logger.WithComponent("canvas").Debug().Err(err).Int("quadrant", q).Msg("Source frame unavailable")
			continue
		}
		xdraw.ApproxBiLinear.Scale(dst, c.QuadrantRect(q), frame, frame.Bounds(), xdraw.Src, nil)
	}
}

// Frame composes a new input frame.
func (c *Canvas) Frame() *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	c.Compose(dst)
	return dst
}

// Close stops every bound source.
func (c *Canvas) Close() {
	for q := 0; q < Quadrants; q++ {
		c.Unbind(q)
	}
}

// FromConfig creates a source for one configuration entry.
func FromConfig(sc config.SourceConfig) (Source, error) {
	switch sc.Kind {
	case config.SourceImage:
		return NewImageSource(sc.Path), nil
	case config.SourceX11:
		return NewX11Source(sc.X, sc.Y, sc.Width, sc.Height), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
	}
}

// BindConfig binds every configured source. Sources that fail to start are
// logged and skipped so that one missing file or display does not block the
// others.
func (c *Canvas) BindConfig(sources []config.SourceConfig) int {
	log := logger.WithComponent("canvas")
	bound := 0
	for _, sc := range sources {
		src, err := FromConfig(sc)
		if err == nil {
			err = c.Bind(sc.Quadrant, src)
		}
		if err != nil {
			log.Warn().Err(err).Int("quadrant", sc.Quadrant).Msg("Skipping source")
			continue
		}
		bound++
	}
	return bound
}
