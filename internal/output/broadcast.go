package output

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/fremkalder/internal/config"
	"github.com/bryanchriswhite/fremkalder/internal/logger"
)

// ErrFrameSize is returned by Broadcast.WriteFrame when a frame does not
// encode to exactly width*height*bytesPerPixel bytes.
var ErrFrameSize = errors.New("frame size mismatch")

const stopTimeout = 3 * time.Second

// BytesPerPixel returns the raw frame stride per pixel for a broadcast pixel
// format, or 0 for an unsupported format.
func BytesPerPixel(pixelFormat string) int {
	switch pixelFormat {
	case "rgba":
		return 4
	case "rgba64le":
		return 8
	}
	return 0
}

// Broadcast pipes raw frames into ffmpeg, which encodes H.264 into MPEG-TS
// and hands it to socat for UDP broadcast. It can be started and stopped
// while the compositor keeps running.
type Broadcast struct {
	cfg    config.BroadcastConfig
	width  int
	height int

	// shell overrides the generated pipeline
	shell string

	mu      sync.RWMutex
	running bool
	cmd     *exec.Cmd
	frames  chan []byte
	done    chan struct{}
	logFile *os.File

	written uint64
	dropped uint64
}

// NewBroadcast creates a stopped broadcast for frames of width×height.
func NewBroadcast(cfg config.BroadcastConfig, width, height int) (*Broadcast, error) {
	if BytesPerPixel(cfg.PixelFormat) == 0 {
		return nil, fmt.Errorf("unsupported pixel format %q", cfg.PixelFormat)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 25
	}
	return &Broadcast{cfg: cfg, width: width, height: height}, nil
}

// Command returns the shell pipeline run by Start.
func (b *Broadcast) Command() string {
	if b.shell != "" {
		return b.shell
	}
	ffmpeg := strings.Join([]string{
		shellQuote(b.cfg.FFmpegPath),
		"-hide_banner",
		"-threads 1 -filter_threads 1",
		"-f rawvideo -vcodec rawvideo",
		fmt.Sprintf("-s %dx%d", b.width, b.height),
		"-pix_fmt " + b.cfg.PixelFormat,
		fmt.Sprintf("-r %d", b.cfg.FrameRate),
		"-i -",
		"-threads 0",
		"-frame_drop_threshold -1",
		"-g 1",
		"-fps_mode:v vfr",
		"-c:v libx264 -tune zerolatency",
		"-muxdelay 0",
		"-flags2 '+fast'",
		"-f mpegts pipe:1",
	}, " ")
	socat := fmt.Sprintf("%s - udp-sendto:%s:%d,broadcast",
		shellQuote(b.cfg.SocatPath), shellQuote(b.cfg.UDPIP), b.cfg.UDPPort)
	return ffmpeg + " | " + socat
}

// Start launches the pipeline.
func (b *Broadcast) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("broadcast already running")
	}

	log := logger.WithComponent("broadcast")

	pipeline := b.Command()
	cmd := exec.Command("sh", "-c", pipeline)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	var logFile *os.File
	if b.cfg.LogFile != "" {
		logFile, err = os.Create(b.cfg.LogFile)
		if err != nil {
			log.Warn().Err(err).Str("path", b.cfg.LogFile).Msg("Failed to open ffmpeg log file")
			logFile = nil
		}
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return fmt.Errorf("failed to start broadcast pipeline: %w", err)
	}

	b.cmd = cmd
	b.logFile = logFile
	b.frames = make(chan []byte, 1)
	b.done = make(chan struct{})
	b.written = 0
	b.dropped = 0
	b.running = true

	stderrDone := make(chan struct{})
	go b.writeFrames(b.frames, stdin)
	go b.logStderr(stderr, logFile, stderrDone)
	go b.wait(cmd, stderrDone, b.done)

	log.Info().
		Int("pid", cmd.Process.Pid).
		Str("target", fmt.Sprintf("%s:%d", b.cfg.UDPIP, b.cfg.UDPPort)).
		Str("pixel_format", b.cfg.PixelFormat).
		Msg("Broadcast started")
	log.Debug().Str("pipeline", pipeline).Msg("Broadcast pipeline")
	return nil
}

// Stop closes the pipeline's stdin and waits for it to exit, killing it if
// it does not exit in time.
func (b *Broadcast) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	close(b.frames)
	cmd := b.cmd
	done := b.done
	logFile := b.logFile
	b.logFile = nil
	written, dropped := b.written, b.dropped
	b.mu.Unlock()

	log := logger.WithComponent("broadcast")

	select {
	case <-done:
	case <-time.After(stopTimeout):
		log.Warn().Int("pid", cmd.Process.Pid).Msg("Broadcast did not exit, killing")
		cmd.Process.Kill()
		<-done
	}

	if logFile != nil {
		logFile.Close()
	}

	log.Info().Uint64("frames", written).Uint64("dropped", dropped).Msg("Broadcast stopped")
	return nil
}

// WriteFrame queues frame for the encoder. If the encoder is still busy with
// the previous frame, this one is dropped.
func (b *Broadcast) WriteFrame(frame *image.RGBA) error {
	data, err := b.encode(frame)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return ErrNotRunning
	}
	select {
	case b.frames <- data:
		b.written++
	default:
		b.dropped++
	}
	return nil
}

// Name returns the sink name.
func (b *Broadcast) Name() string {
	return fmt.Sprintf("broadcast:udp://%s:%d", b.cfg.UDPIP, b.cfg.UDPPort)
}

// IsRunning reports whether the pipeline is up.
func (b *Broadcast) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// BroadcastStatus is reported by the API.
type BroadcastStatus struct {
	Running     bool   `json:"running"`
	Target      string `json:"target"`
	PixelFormat string `json:"pixel_format"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Frames      uint64 `json:"frames"`
	Dropped     uint64 `json:"dropped"`
}

// Status reports the pipeline state.
func (b *Broadcast) Status() BroadcastStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BroadcastStatus{
		Running:     b.running,
		Target:      fmt.Sprintf("%s:%d", b.cfg.UDPIP, b.cfg.UDPPort),
		PixelFormat: b.cfg.PixelFormat,
		Width:       b.width,
		Height:      b.height,
		Frames:      b.written,
		Dropped:     b.dropped,
	}
}

// encode converts frame to the raw layout ffmpeg was told to expect.
func (b *Broadcast) encode(frame *image.RGBA) ([]byte, error) {
	bounds := frame.Bounds()
	bpp := BytesPerPixel(b.cfg.PixelFormat)
	want := b.width * b.height * bpp
	if bounds.Dx() != b.width || bounds.Dy() != b.height {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d",
			ErrFrameSize, bounds.Dx(), bounds.Dy(), b.width, b.height)
	}

	data := make([]byte, 0, want)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := frame.Pix[frame.PixOffset(bounds.Min.X, y):frame.PixOffset(bounds.Max.X, y)]
		switch bpp {
		case 4:
			data = append(data, row...)
		case 8:
			for _, v := range row {
				data = binary.LittleEndian.AppendUint16(data, uint16(v)*0x101)
			}
		}
	}
	if len(data) != want {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrFrameSize, len(data), want)
	}
	return data, nil
}

func (b *Broadcast) writeFrames(frames <-chan []byte, stdin io.WriteCloser) {
	log := logger.WithComponent("broadcast")
	failed := false
	for data := range frames {
		if failed {
			continue
		}
		if _, err := stdin.Write(data); err != nil {
			log.Error().Err(err).Msg("Failed to write frame to encoder")
			failed = true
		}
	}
	stdin.Close()
}

func (b *Broadcast) logStderr(stderr io.Reader, logFile *os.File, done chan<- struct{}) {
	defer close(done)
	log := logger.WithComponent("broadcast")
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		if logFile != nil {
			fmt.Fprintln(logFile, line)
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "error") || strings.Contains(lower, "warn") {
			log.Warn().Str("ffmpeg", line).Msg("Encoder message")
		} else {
			log.Debug().Str("ffmpeg", line).Msg("Encoder output")
		}
	}
}

// wait reaps the pipeline once its stderr is drained. If the pipeline died
// on its own, the broadcast is marked stopped and its log file closed.
func (b *Broadcast) wait(cmd *exec.Cmd, stderrDone <-chan struct{}, done chan struct{}) {
	<-stderrDone
	err := cmd.Wait()
	close(done)

	b.mu.Lock()
	stillCurrent := b.cmd == cmd && b.running
	if stillCurrent {
		b.running = false
		close(b.frames)
		if b.logFile != nil {
			b.logFile.Close()
			b.logFile = nil
		}
	}
	b.mu.Unlock()

	if stillCurrent {
		logger.WithComponent("broadcast").Error().Err(err).Msg("Broadcast pipeline exited")
	}
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
