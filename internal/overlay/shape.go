package overlay

import (
	"github.com/bryanchriswhite/fremkalder/internal/surface"
	"github.com/gogpu/gg"
)

// Shape is one surface's editing outline: a closed polygon through its
// points with a handle circle on each.
type Shape struct {
	Label   string
	Color   gg.RGBA
	Points  []surface.Vec2 // normalized [0,1]
	Hovered []bool
}

// Style holds the pixel sizes used when drawing shapes.
type Style struct {
	LineWidth    float64
	HandleRadius float64
	HoverRadius  float64
	Opacity      float64
	Labels       bool
}

// DefaultStyle returns the sizes used at full output resolution.
func DefaultStyle() Style {
	return Style{
		LineWidth:    5,
		HandleRadius: 10,
		HoverRadius:  30,
		Opacity:      1,
		Labels:       true,
	}
}

// Scaled returns s with every size multiplied by f, for drawing on frames
// smaller than the output.
func (s Style) Scaled(f float64) Style {
	s.LineWidth *= f
	s.HandleRadius *= f
	s.HoverRadius *= f
	return s
}

func (s Style) radius(hovered bool) float64 {
	if hovered {
		return s.HoverRadius
	}
	return s.HandleRadius
}
