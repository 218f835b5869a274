package overlay

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/gogpu/gg"
)

// Renderer draws editing shapes over preview frames.
type Renderer struct {
	mu    sync.RWMutex
	style Style
}

// NewRenderer creates a renderer drawing with style.
func NewRenderer(style Style) *Renderer {
	return &Renderer{style: style}
}

// Style returns the current style.
func (r *Renderer) Style() Style {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.style
}

// Render draws shapes onto img. Shapes are drawn in order into a separate
// layer, which is then blended onto img with the style's opacity.
func (r *Renderer) Render(img *image.RGBA, shapes []Shape) error {
	if len(shapes) == 0 {
		return nil
	}
	style := r.Style()

	layer, err := drawShapes(img.Bounds().Dx(), img.Bounds().Dy(), shapes, style)
	if err != nil {
		return err
	}
	BlendImage(img, layer, img.Bounds().Min.X, img.Bounds().Min.Y, style.Opacity)
	return nil
}

func drawShapes(w, h int, shapes []Shape, style Style) (*image.RGBA, error) {
	dc := gg.NewContext(w, h)
	defer dc.Close()

	size := [2]float64{float64(w), float64(h)}
	for i, s := range shapes {
		if len(s.Points) == 0 {
			continue
		}
		dc.SetColor(s.Color.Color())
		dc.SetLineWidth(style.LineWidth)

		for j, p := range s.Points {
			x, y := p.X*size[0], p.Y*size[1]
			if j == 0 {
				dc.MoveTo(x, y)
			} else {
				dc.LineTo(x, y)
			}
		}
		dc.ClosePath()
		if err := dc.Stroke(); err != nil {
			return nil, fmt.Errorf("shape %d outline: %w", i, err)
		}

		for j, p := range s.Points {
			hovered := j < len(s.Hovered) && s.Hovered[j]
			dc.DrawCircle(p.X*size[0], p.Y*size[1], style.radius(hovered))
			if err := dc.Stroke(); err != nil {
				return nil, fmt.Errorf("shape %d handle %d: %w", i, j, err)
			}
		}
	}

	layer := toRGBA(dc.Image())
	if style.Labels {
		for _, s := range shapes {
			if s.Label == "" || len(s.Points) == 0 {
				continue
			}
			p := s.Points[0]
			drawLabel(layer, s.Label, int(p.X*size[0]+style.HoverRadius), int(p.Y*size[1]), s.Color)
		}
	}
	return layer, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return rgba
}
