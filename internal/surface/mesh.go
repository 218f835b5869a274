package surface

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Vertex pairs a destination position in pixels with a source texture
// coordinate in normalized space.
type Vertex struct {
	Position Vec3 `json:"position"`
	TexCoord Vec2 `json:"texCoord"`
}

// VertexBuffer is a non-indexed triangle list.
type VertexBuffer []Vertex

// FloatsPerVertex is the stride of the packed renderer format:
// position(3) followed by texcoord(2).
const FloatsPerVertex = 5

// Triangles returns the number of triangles in the buffer.
func (b VertexBuffer) Triangles() int {
	return len(b) / 3
}

// Floats packs the buffer in renderer layout.
func (b VertexBuffer) Floats() []float32 {
	out := make([]float32, 0, len(b)*FloatsPerVertex)
	for _, v := range b {
		out = append(out,
			float32(v.Position.X), float32(v.Position.Y), float32(v.Position.Z),
			float32(v.TexCoord.X), float32(v.TexCoord.Y))
	}
	return out
}

// Bytes packs the buffer as little-endian float32 in renderer layout.
func (b VertexBuffer) Bytes() []byte {
	floats := b.Floats()
	out := make([]byte, 0, len(floats)*4)
	for _, f := range floats {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
	}
	return out
}

// CalculateMesh builds the triangle list for a surface. Output points are
// scaled into size (pixels) to form positions; input points become texture
// coordinates. Triangles emit a single triangle. Rects are split into an
// S×S grid of bilinear cells, two triangles per cell, where positions and
// texture coordinates share one parametrization.
//
// A surface whose point lists do not match its kind is a contract violation
// and panics.
func CalculateMesh(s *Surface, size Vec2) (VertexBuffer, error) {
	if !(size.X > 0 && size.Y > 0) {
		return nil, fmt.Errorf("%w: destination size %gx%g must be positive", ErrPrecondition, size.X, size.Y)
	}

	n := s.kind.PointCount()
	if n == 0 || len(s.input) != n || len(s.output) != n {
		panic(fmt.Sprintf("surface %d: %s surface with %d input and %d output points",
			s.id, s.kind, len(s.input), len(s.output)))
	}

	positions := make([]Vec2, n)
	texcoords := make([]Vec2, n)
	for i := 0; i < n; i++ {
		positions[i] = s.output[i].Position.Mul(size)
		texcoords[i] = s.input[i].Position
	}

	if s.kind == KindTriangle {
		return VertexBuffer{
			{Position: positions[0].XY0(), TexCoord: texcoords[0]},
			{Position: positions[1].XY0(), TexCoord: texcoords[1]},
			{Position: positions[2].XY0(), TexCoord: texcoords[2]},
		}, nil
	}

	segments := s.subdivisions
	if err := checkSubdivisions(segments); err != nil {
		return nil, fmt.Errorf("surface %d: %w", s.id, err)
	}

	buf := make(VertexBuffer, 0, 6*segments*segments)
	for v := 0; v < segments; v++ {
		for u := 0; u < segments; u++ {
			p := cellCorners(positions, u, v, segments)
			t := cellCorners(texcoords, u, v, segments)
			buf = append(buf,
				Vertex{Position: p[0].XY0(), TexCoord: t[0]},
				Vertex{Position: p[1].XY0(), TexCoord: t[1]},
				Vertex{Position: p[3].XY0(), TexCoord: t[3]},

				Vertex{Position: p[1].XY0(), TexCoord: t[1]},
				Vertex{Position: p[2].XY0(), TexCoord: t[2]},
				Vertex{Position: p[3].XY0(), TexCoord: t[3]},
			)
		}
	}
	return buf, nil
}

// cellCorners interpolates the corners of cell (u, v) of a bilinear patch.
// Corners 0-1 and 3-2 are the vertical edges; the result is ordered
// top-left, bottom-left, bottom-right, top-right in patch space.
func cellCorners(c []Vec2, u, v, segments int) [4]Vec2 {
	s := float64(segments)
	v0 := float64(v) / s
	v1 := float64(v+1) / s
	u0 := float64(u) / s
	u1 := float64(u+1) / s

	left0 := Mix(c[0], c[1], v0)
	right0 := Mix(c[3], c[2], v0)
	left1 := Mix(c[0], c[1], v1)
	right1 := Mix(c[3], c[2], v1)

	return [4]Vec2{
		Mix(left0, right0, u0),
		Mix(left1, right1, u0),
		Mix(left1, right1, u1),
		Mix(left0, right0, u1),
	}
}
