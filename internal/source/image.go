package source

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	"github.com/bryanchriswhite/fremkalder/internal/logger"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageSource serves a still image read from disk.
type ImageSource struct {
	path string

	mu  sync.RWMutex
	img *image.RGBA
}

// NewImageSource creates a source for the image at path. The file is read
// on Start.
func NewImageSource(path string) *ImageSource {
	return &ImageSource{path: path}
}

// Start decodes the file.
func (s *ImageSource) Start() error {
	img, err := LoadImage(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.img = img
	s.mu.Unlock()

	logger.WithComponent("source").Info().
		Str("path", s.path).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("Image source loaded")
	return nil
}

// Stop drops the decoded image.
func (s *ImageSource) Stop() error {
	s.mu.Lock()
	s.img = nil
	s.mu.Unlock()
	return nil
}

// Frame returns the decoded image.
func (s *ImageSource) Frame() (*image.RGBA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.img == nil {
		return nil, fmt.Errorf("image source %s not started", s.path)
	}
	return s.img, nil
}

// Name returns the file path.
func (s *ImageSource) Name() string {
	return "image:" + s.path
}

// LoadImage decodes png, jpeg, gif, bmp, tiff or webp into RGBA.
func LoadImage(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	logger.WithComponent("source").Debug().Str("path", path).Str("format", format).Msg("Decoded image")
	return toRGBA(img), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}
