package overlay

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/gogpu/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const labelPadding = 3

// drawLabel writes text in white on a box of the surface color, with the
// box's top-left corner at (x, y).
func drawLabel(dst *image.RGBA, text string, x, y int, bg gg.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	width := d.MeasureString(text).Ceil()
	height := face.Metrics().Height.Ceil()

	box := image.Rect(x, y, x+width+2*labelPadding, y+height+2*labelPadding)
	draw.Draw(dst, box, image.NewUniform(bg.Color()), image.Point{}, draw.Over)

	d.Dst = dst
	d.Src = image.NewUniform(color.White)
	d.Dot = fixed.Point26_6{
		X: fixed.I(x + labelPadding),
		Y: fixed.I(y+labelPadding) + face.Metrics().Ascent,
	}
	d.DrawString(text)
}
