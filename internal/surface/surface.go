package surface

import "fmt"

// Kind is the shape of a surface.
type Kind string

const (
	KindRect     Kind = "rect"
	KindTriangle Kind = "triangle"
)

// PointCount returns the number of control points per set for the kind,
// or 0 for an unknown kind.
func (k Kind) PointCount() int {
	switch k {
	case KindRect:
		return 4
	case KindTriangle:
		return 3
	default:
		return 0
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k.PointCount() > 0
}

// SurfaceID is a stable handle to a surface within its registry.
type SurfaceID uint64

// defaultCorners is the canonical quad, listed so that 0-1 and 3-2 are the
// vertical edges of the bilinear patch. Triangles use the first three.
var defaultCorners = []Vec2{
	{X: 0.2, Y: 0.2},
	{X: 0.2, Y: 0.8},
	{X: 0.8, Y: 0.8},
	{X: 0.8, Y: 0.2},
}

// Surface maps a source polygon onto a destination polygon. The two point
// lists always have the length dictated by the kind; they are never resized.
type Surface struct {
	id           SurfaceID
	ordinal      float64
	kind         Kind
	subdivisions int
	locked       bool
	input        []ControlPoint
	output       []ControlPoint
	mesh         VertexBuffer
}

func newSurface(id SurfaceID, ordinal float64, kind Kind, subdivisions int, input, output []Vec2) (*Surface, error) {
	n := kind.PointCount()
	if n == 0 {
		return nil, fmt.Errorf("%w: unknown surface kind %q", ErrConfiguration, kind)
	}
	if len(input) != n || len(output) != n {
		return nil, fmt.Errorf("%w: %s surface needs %d input and %d output points, got %d and %d",
			ErrConfiguration, kind, n, n, len(input), len(output))
	}
	if err := checkSubdivisions(subdivisions); err != nil {
		return nil, err
	}

	s := &Surface{
		id:           id,
		ordinal:      ordinal,
		kind:         kind,
		subdivisions: subdivisions,
		input:        make([]ControlPoint, n),
		output:       make([]ControlPoint, n),
	}
	for i := 0; i < n; i++ {
		s.input[i] = ControlPoint{Position: input[i], surface: id}
		s.output[i] = ControlPoint{Position: output[i], surface: id}
	}
	return s, nil
}

// ID returns the surface handle.
func (s *Surface) ID() SurfaceID { return s.id }

// Ordinal returns the 1-based creation ordinal that drives the display color.
// It is persisted as the document "id".
func (s *Surface) Ordinal() float64 { return s.ordinal }

// Kind returns the surface shape.
func (s *Surface) Kind() Kind { return s.kind }

// Subdivisions returns the grid resolution used for rect meshes.
func (s *Surface) Subdivisions() int { return s.subdivisions }

// Locked reports whether the surface is excluded from picking.
func (s *Surface) Locked() bool { return s.locked }

// Points returns a copy of the requested point list.
func (s *Surface) Points(set PointSet) []ControlPoint {
	src := s.list(set)
	out := make([]ControlPoint, len(src))
	copy(out, src)
	return out
}

// Positions returns the positions of the requested point list.
func (s *Surface) Positions(set PointSet) []Vec2 {
	src := s.list(set)
	out := make([]Vec2, len(src))
	for i := range src {
		out[i] = src[i].Position
	}
	return out
}

// Point returns the i-th point of a set, or nil when out of range.
func (s *Surface) Point(set PointSet, i int) *ControlPoint {
	l := s.list(set)
	if i < 0 || i >= len(l) {
		return nil
	}
	return &l[i]
}

// Mesh returns the last generated vertex buffer. It is empty until the
// first RebuildMesh.
func (s *Surface) Mesh() VertexBuffer { return s.mesh }

// RebuildMesh regenerates the surface mesh for a destination extent in pixels.
func (s *Surface) RebuildMesh(size Vec2) error {
	mesh, err := CalculateMesh(s, size)
	if err != nil {
		return err
	}
	s.mesh = mesh
	return nil
}

// DiscardMesh drops the generated mesh.
func (s *Surface) DiscardMesh() { s.mesh = nil }

func (s *Surface) list(set PointSet) []ControlPoint {
	if set == OutputSet {
		return s.output
	}
	return s.input
}
