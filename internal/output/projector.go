package output

import (
	"fmt"
	"image"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/fremkalder/internal/logger"
)

// putImageHeader is the fixed part of a PutImage request in bytes.
const putImageHeader = 24

// Projector shows output frames in an X11 window, meant to be placed
// fullscreen on the projector's screen.
type Projector struct {
	config Config
	title  string

	mu      sync.Mutex
	running bool
	conn    *xgb.Conn
	screen  *xproto.ScreenInfo
	window  xproto.Window
	gc      xproto.Gcontext
	format  pixmapFormat
	maxReq  int
	buf     []byte
}

type pixmapFormat struct {
	depth        byte
	bitsPerPixel int
	scanlinePad  int
}

// NewProjector creates a stopped projector window of config's size.
func NewProjector(config Config) *Projector {
	return &Projector{config: config, title: "fremkalder projector"}
}

// Start connects to the X server, then creates and maps the window.
func (p *Projector) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("projector already running")
	}

	log := logger.WithComponent("projector")

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	format, err := findPixmapFormat(setup.PixmapFormats, screen.RootDepth)
	if err != nil {
		conn.Close()
		return err
	}

	window, err := xproto.NewWindowId(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create window ID: %w", err)
	}

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify,
	}
	err = xproto.CreateWindowChecked(
		conn,
		screen.RootDepth,
		window,
		screen.Root,
		0, 0,
		uint16(p.config.Width), uint16(p.config.Height),
		0,
		xproto.WindowClassInputOutput,
		screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create window: %w", err)
	}

	p.conn = conn
	p.screen = screen
	p.window = window
	p.format = format
	p.maxReq = int(setup.MaximumRequestLength) * 4

	if err := p.setWindowTitle(p.title); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := p.setWindowClass("fremkalder", "Fremkalder"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}
	if err := p.requestFullscreen(); err != nil {
		log.Warn().Err(err).Msg("Failed to request fullscreen")
	}

	if err := xproto.MapWindowChecked(conn, window).Check(); err != nil {
		p.teardown()
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(conn)
	if err != nil {
		p.teardown()
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	err = xproto.CreateGCChecked(conn, gc, xproto.Drawable(window),
		xproto.GcForeground|xproto.GcBackground,
		[]uint32{0xffffffff, 0x00000000},
	).Check()
	if err != nil {
		p.teardown()
		return fmt.Errorf("failed to create GC: %w", err)
	}
	p.gc = gc
	conn.Sync()

	p.running = true
	log.Info().
		Int("width", p.config.Width).
		Int("height", p.config.Height).
		Uint32("window_id", uint32(window)).
		Int("depth", int(format.depth)).
		Msg("Projector window created")
	return nil
}

// Stop destroys the window and closes the connection.
func (p *Projector) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}
	p.teardown()
	p.running = false
	logger.WithComponent("projector").Info().Msg("Projector window closed")
	return nil
}

func (p *Projector) teardown() {
	if p.gc != 0 {
		xproto.FreeGC(p.conn, p.gc)
		p.gc = 0
	}
	if p.window != 0 {
		xproto.DestroyWindow(p.conn, p.window)
		p.window = 0
	}
	p.conn.Sync()
	p.conn.Close()
	p.conn = nil
}

// WriteFrame uploads frame to the window, split into as many PutImage
// requests as the server's request size limit needs.
func (p *Projector) WriteFrame(frame *image.RGBA) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return ErrNotRunning
	}

	bounds := frame.Bounds()
	if bounds.Dx() != p.config.Width || bounds.Dy() != p.config.Height {
		return fmt.Errorf("image size mismatch: got %dx%d, expected %dx%d",
			bounds.Dx(), bounds.Dy(), p.config.Width, p.config.Height)
	}

	data, stride, err := packZPixmap(frame, p.format, p.buf)
	if err != nil {
		return err
	}
	p.buf = data

	rows := rowsPerRequest(p.maxReq, stride)
	height := bounds.Dy()
	for y := 0; y < height; y += rows {
		n := min(rows, height-y)
		xproto.PutImage(
			p.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(p.window),
			p.gc,
			uint16(bounds.Dx()),
			uint16(n),
			0, int16(y),
			0,
			p.format.depth,
			data[y*stride:(y+n)*stride],
		)
	}
	p.conn.Sync()
	return nil
}

// Name returns the sink name.
func (p *Projector) Name() string {
	return fmt.Sprintf("projector:%dx%d", p.config.Width, p.config.Height)
}

// IsRunning reports whether the window is up.
func (p *Projector) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func findPixmapFormat(formats []xproto.Format, depth byte) (pixmapFormat, error) {
	for _, f := range formats {
		if f.Depth == depth {
			return pixmapFormat{
				depth:        depth,
				bitsPerPixel: int(f.BitsPerPixel),
				scanlinePad:  int(f.ScanlinePad),
			}, nil
		}
	}
	return pixmapFormat{}, fmt.Errorf("no pixmap format for depth %d", depth)
}

// packZPixmap converts img into the server's Z-pixmap layout (BGRx for
// 32 bpp, BGR for 24 bpp) with scanlines padded to the format's pad. buf is
// reused when large enough.
func packZPixmap(img *image.RGBA, f pixmapFormat, buf []byte) ([]byte, int, error) {
	bytesPerPixel := f.bitsPerPixel / 8
	if bytesPerPixel != 3 && bytesPerPixel != 4 {
		return nil, 0, fmt.Errorf("unsupported bits per pixel: %d", f.bitsPerPixel)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	padBytes := max(f.scanlinePad/8, 1)
	stride := ((width*bytesPerPixel + padBytes - 1) / padBytes) * padBytes

	size := stride * height
	if cap(buf) < size {
		buf = make([]byte, size)
	}
	data := buf[:size]

	for y := 0; y < height; y++ {
		src := img.Pix[img.PixOffset(bounds.Min.X, bounds.Min.Y+y):]
		dst := data[y*stride : (y+1)*stride]
		for x := 0; x < width; x++ {
			s := src[x*4 : x*4+4]
			d := dst[x*bytesPerPixel:]
			d[0] = s[2]
			d[1] = s[1]
			d[2] = s[0]
			if bytesPerPixel == 4 {
				if f.depth == 32 {
					d[3] = s[3]
				} else {
					d[3] = 0
				}
			}
		}
		clear(dst[width*bytesPerPixel:])
	}
	return data, stride, nil
}

// rowsPerRequest is how many scanlines of stride bytes fit one PutImage
// request of at most maxReq bytes. At least one row is always sent.
func rowsPerRequest(maxReq, stride int) int {
	if stride <= 0 {
		return 1
	}
	return max((maxReq-putImageHeader)/stride, 1)
}

func (p *Projector) setWindowTitle(title string) error {
	titleAtom, err := p.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := p.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(
		p.conn,
		xproto.PropModeReplace,
		p.window,
		titleAtom,
		utf8Atom,
		8,
		uint32(len(title)),
		[]byte(title),
	).Check()
}

func (p *Projector) setWindowClass(instance, class string) error {
	classAtom, err := p.getAtom("WM_CLASS")
	if err != nil {
		return err
	}
	// WM_CLASS is instance\0class\0
	classStr := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(
		p.conn,
		xproto.PropModeReplace,
		p.window,
		classAtom,
		xproto.AtomString,
		8,
		uint32(len(classStr)),
		[]byte(classStr),
	).Check()
}

// requestFullscreen sets _NET_WM_STATE before the window is mapped, which
// EWMH window managers honor on map.
func (p *Projector) requestFullscreen() error {
	stateAtom, err := p.getAtom("_NET_WM_STATE")
	if err != nil {
		return err
	}
	fullscreenAtom, err := p.getAtom("_NET_WM_STATE_FULLSCREEN")
	if err != nil {
		return err
	}
	data := make([]byte, 4)
	xgb.Put32(data, uint32(fullscreenAtom))
	return xproto.ChangePropertyChecked(
		p.conn,
		xproto.PropModeReplace,
		p.window,
		stateAtom,
		xproto.AtomAtom,
		32,
		1,
		data,
	).Check()
}

func (p *Projector) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(p.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to intern atom %s: %w", name, err)
	}
	return reply.Atom, nil
}
