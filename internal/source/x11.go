package source

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/fremkalder/internal/logger"
)

// X11Source grabs a fixed region of the X11 root window on every frame.
type X11Source struct {
	x, y, width, height int

	mu    sync.Mutex
	conn  *xgb.Conn
	root  xproto.Window
	depth byte
}

// NewX11Source creates a source for the given root-window region.
func NewX11Source(x, y, width, height int) *X11Source {
	return &X11Source{x: x, y: y, width: width, height: height}
}

// Start connects to the X server named by $DISPLAY.
func (s *X11Source) Start() error {
	if s.width < 1 || s.height < 1 {
		return fmt.Errorf("invalid x11 region %dx%d", s.width, s.height)
	}
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)

	s.mu.Lock()
	s.conn = conn
	s.root = screen.Root
	s.depth = screen.RootDepth
	s.mu.Unlock()

	logger.WithComponent("x11-source").Info().
		Int("x", s.x).Int("y", s.y).
		Int("width", s.width).Int("height", s.height).
		Uint8("depth", screen.RootDepth).
		Msg("X11 region source connected")
	return nil
}

// Stop closes the X connection.
func (s *X11Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}

// Frame grabs the region.
func (s *X11Source) Frame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, fmt.Errorf("x11 source not started")
	}

	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.root),
		int16(s.x), int16(s.y),
		uint16(s.width), uint16(s.height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return convertZPixmap(reply.Data, s.width, s.height, int(s.depth))
}

// Name describes the region.
func (s *X11Source) Name() string {
	return fmt.Sprintf("x11:%dx%d+%d+%d", s.width, s.height, s.x, s.y)
}

// convertZPixmap turns 24/32-bit BGRX scanlines into opaque RGBA.
func convertZPixmap(data []byte, width, height, depth int) (*image.RGBA, error) {
	if depth != 24 && depth != 32 {
		return nil, fmt.Errorf("unsupported X11 depth %d", depth)
	}
	if len(data) < width*height*4 {
		return nil, fmt.Errorf("short X11 image: %d bytes for %dx%d", len(data), width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		o := i * 4
		img.Pix[o+0] = data[o+2]
		img.Pix[o+1] = data[o+1]
		img.Pix[o+2] = data[o+0]
		img.Pix[o+3] = 255
	}
	return img, nil
}
