package source

import (
	"image"
)

// Source produces frames for one quadrant of the input canvas.
type Source interface {
	// Start acquires whatever the source reads from.
	Start() error

	// Stop releases it.
	Stop() error

	// Frame returns the latest frame. The returned image must not be
	// modified by the caller.
	Frame() (*image.RGBA, error)

	// Name returns a human-readable description.
	Name() string
}
