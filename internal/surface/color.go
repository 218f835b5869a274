package surface

import (
	"math"

	"github.com/gogpu/gg"
)

// Hue returns the display hue in degrees.
func (s *Surface) Hue() float64 {
	return math.Mod(s.ordinal*31, 360)
}

// Color returns the display color used for outlines and handles.
func (s *Surface) Color() gg.RGBA {
	return OrdinalColor(s.ordinal)
}

// OrdinalColor maps a surface ordinal to its display color. Neighbouring
// ordinals land far apart on the hue wheel and vary in saturation.
func OrdinalColor(ordinal float64) gg.RGBA {
	hue := math.Mod(ordinal*31, 360)
	saturation := 1.0 - math.Mod(ordinal*71, 600)/800
	return gg.HSL(hue, saturation, 0.4)
}
