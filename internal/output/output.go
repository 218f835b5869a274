// Package output holds the frame sinks fed by the compositor: MJPEG preview
// streams, the UDP broadcast subprocess and the X11 projector window.
package output

import (
	"errors"
	"image"
)

// ErrNotRunning is returned by WriteFrame on a sink that was never started
// or has been stopped.
var ErrNotRunning = errors.New("output not running")

// Output is a frame sink. Frames are top-down RGBA images of the size the
// sink was configured with.
type Output interface {
	// Start initializes the sink
	Start() error

	// Stop shuts the sink down. Stopping a stopped sink is a no-op.
	Stop() error

	// WriteFrame hands one frame to the sink. Sinks must not retain the
	// image after returning.
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for the sink
	Name() string

	// IsRunning reports whether the sink is active
	IsRunning() bool
}

// Config holds the frame geometry shared by all sinks.
type Config struct {
	Width  int
	Height int
	FPS    int
}
