// Package render rasterizes surface meshes: every vertex buffer is drawn as
// a non-indexed triangle list, textured by one source frame.
package render

import (
	"image"
	"image/draw"
	"math"

	"github.com/bryanchriswhite/fremkalder/internal/surface"
)

// Clear makes every pixel of img transparent.
func Clear(img *image.RGBA) {
	clear(img.Pix)
}

// DrawMeshes draws each mesh in order into dst, sampling src with the
// vertices' texture coordinates. Later meshes are composited over earlier
// ones.
func DrawMeshes(dst *image.RGBA, src image.Image, meshes []surface.VertexBuffer) {
	tex := newTexture(src)
	for _, m := range meshes {
		for i := 0; i+2 < len(m); i += 3 {
			drawTriangle(dst, tex, m[i], m[i+1], m[i+2])
		}
	}
}

// Frame renders meshes over a transparent frame of the given size.
func Frame(width, height int, src image.Image, meshes []surface.VertexBuffer) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	DrawMeshes(dst, src, meshes)
	return dst
}

type point struct{ x, y float64 }

// edge is twice the signed area of (a, b, p).
func edge(a, b, p point) float64 {
	return (b.x-a.x)*(p.y-a.y) - (b.y-a.y)*(p.x-a.x)
}

// owns decides pixels lying exactly on edge a→b. Two triangles sharing an
// edge traverse it in opposite directions, so exactly one of them owns it.
func owns(a, b point) bool {
	return b.y > a.y || (b.y == a.y && b.x < a.x)
}

func inside(w float64, a, b point) bool {
	return w > 0 || (w == 0 && owns(a, b))
}

func drawTriangle(dst *image.RGBA, tex *texture, v0, v1, v2 surface.Vertex) {
	p0 := point{v0.Position.X, v0.Position.Y}
	p1 := point{v1.Position.X, v1.Position.Y}
	p2 := point{v2.Position.X, v2.Position.Y}

	area := edge(p0, p1, p2)
	if area == 0 || math.IsNaN(area) {
		return
	}
	if area < 0 {
		p1, p2 = p2, p1
		v1, v2 = v2, v1
		area = -area
	}

	b := dst.Bounds()
	minX := max(b.Min.X, int(math.Floor(min(p0.x, p1.x, p2.x))))
	maxX := min(b.Max.X-1, int(math.Ceil(max(p0.x, p1.x, p2.x))))
	minY := max(b.Min.Y, int(math.Floor(min(p0.y, p1.y, p2.y))))
	maxY := min(b.Max.Y-1, int(math.Ceil(max(p0.y, p1.y, p2.y))))

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			p := point{float64(x) + 0.5, float64(y) + 0.5}
			w0 := edge(p1, p2, p)
			w1 := edge(p2, p0, p)
			w2 := edge(p0, p1, p)
			if !inside(w0, p1, p2) || !inside(w1, p2, p0) || !inside(w2, p0, p1) {
				continue
			}
			w0, w1, w2 = w0/area, w1/area, w2/area
			u := w0*v0.TexCoord.X + w1*v1.TexCoord.X + w2*v2.TexCoord.X
			v := w0*v0.TexCoord.Y + w1*v1.TexCoord.Y + w2*v2.TexCoord.Y
			blendOver(dst, x, y, tex.sample(u, v))
		}
	}
}

// blendOver composites a premultiplied color over dst at (x, y).
func blendOver(dst *image.RGBA, x, y int, c [4]float64) {
	if c[3] <= 0 {
		return
	}
	i := dst.PixOffset(x, y)
	inv := 1 - c[3]/255
	for k := 0; k < 4; k++ {
		dst.Pix[i+k] = clamp8(c[k] + float64(dst.Pix[i+k])*inv)
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

// texture is a premultiplied RGBA copy of the source frame.
type texture struct {
	img  *image.RGBA
	w, h int
}

func newTexture(src image.Image) *texture {
	img, ok := src.(*image.RGBA)
	if !ok || img.Bounds().Min != (image.Point{}) {
		b := src.Bounds()
		img = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)
	}
	return &texture{img: img, w: img.Bounds().Dx(), h: img.Bounds().Dy()}
}

// sample bilinearly filters the texture at normalized (u, v). Coordinates
// outside [0,1] clamp to the edge texels. v grows downwards, matching the
// frame's row order.
func (t *texture) sample(u, v float64) [4]float64 {
	if t.w == 0 || t.h == 0 {
		return [4]float64{}
	}
	fx := u*float64(t.w) - 0.5
	fy := v*float64(t.h) - 0.5
	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	ax := fx - float64(x0)
	ay := fy - float64(y0)

	c00 := t.texel(x0, y0)
	c10 := t.texel(x0+1, y0)
	c01 := t.texel(x0, y0+1)
	c11 := t.texel(x0+1, y0+1)

	var out [4]float64
	for k := 0; k < 4; k++ {
		top := c00[k]*(1-ax) + c10[k]*ax
		bottom := c01[k]*(1-ax) + c11[k]*ax
		out[k] = top*(1-ay) + bottom*ay
	}
	return out
}

func (t *texture) texel(x, y int) [4]float64 {
	x = min(max(x, 0), t.w-1)
	y = min(max(y, 0), t.h-1)
	i := t.img.PixOffset(x, y)
	p := t.img.Pix[i : i+4 : i+4]
	return [4]float64{float64(p[0]), float64(p[1]), float64(p[2]), float64(p[3])}
}
