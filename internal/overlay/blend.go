package overlay

import (
	"image"
)

// BlendImage composites src over dst with its top-left corner at (x, y),
// scaling src's alpha by opacity. Both images hold premultiplied color.
// Pixels falling outside dst are clipped.
func BlendImage(dst *image.RGBA, src *image.RGBA, x, y int, opacity float64) {
	if opacity <= 0 {
		return
	}
	if opacity > 1 {
		opacity = 1
	}

	sb := src.Bounds()
	db := dst.Bounds()
	for sy := sb.Min.Y; sy < sb.Max.Y; sy++ {
		dy := y + sy - sb.Min.Y
		if dy < db.Min.Y || dy >= db.Max.Y {
			continue
		}
		for sx := sb.Min.X; sx < sb.Max.X; sx++ {
			dx := x + sx - sb.Min.X
			if dx < db.Min.X || dx >= db.Max.X {
				continue
			}

			si := src.PixOffset(sx, sy)
			sa := float64(src.Pix[si+3]) * opacity
			if sa == 0 {
				continue
			}
			inv := 1 - sa/255

			di := dst.PixOffset(dx, dy)
			for c := 0; c < 4; c++ {
				s := float64(src.Pix[si+c]) * opacity
				if c == 3 {
					s = sa
				}
				dst.Pix[di+c] = clamp8(s + float64(dst.Pix[di+c])*inv)
			}
		}
	}
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
