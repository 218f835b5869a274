package surface_test

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/bryanchriswhite/fremkalder/internal/surface"
)

const eps = 1e-9

func near(a, b float64) bool {
	return math.Abs(a-b) <= eps
}

func nearVec2(a, b surface.Vec2) bool {
	return near(a.X, b.X) && near(a.Y, b.Y)
}

// newRect returns a registry holding one default rect with the given
// subdivision count.
func newRect(t *testing.T, segments int) (*surface.Surfaces, *surface.Surface) {
	t.Helper()
	r := surface.New()
	id := r.AddRect()
	if err := r.SetSubdivisions(id, segments); err != nil {
		t.Fatalf("SetSubdivisions(%d): %v", segments, err)
	}
	s, err := r.Get(id)
	if err != nil {
		t.Fatalf("Get(%d): %v", id, err)
	}
	return r, s
}

// setPoints overwrites every point of one set of a surface.
func setPoints(t *testing.T, r *surface.Surfaces, id surface.SurfaceID, set surface.PointSet, pts ...surface.Vec2) {
	t.Helper()
	for i, pos := range pts {
		p, err := r.Point(surface.PointRef{Surface: id, Set: set, Index: i})
		if err != nil {
			t.Fatalf("Point(%d, %s, %d): %v", id, set, i, err)
		}
		p.Position = pos
	}
}

func TestCalculateMeshDefaultRect(t *testing.T) {
	_, s := newRect(t, 1)

	mesh, err := surface.CalculateMesh(s, surface.Vec2{X: 100, Y: 100})
	if err != nil {
		t.Fatalf("CalculateMesh: %v", err)
	}

	wantPos := []surface.Vec2{
		{X: 20, Y: 20}, {X: 20, Y: 80}, {X: 80, Y: 20},
		{X: 20, Y: 80}, {X: 80, Y: 80}, {X: 80, Y: 20},
	}
	if len(mesh) != len(wantPos) {
		t.Fatalf("got %d vertices, want %d", len(mesh), len(wantPos))
	}
	for i, v := range mesh {
		got := surface.Vec2{X: v.Position.X, Y: v.Position.Y}
		if !nearVec2(got, wantPos[i]) || v.Position.Z != 0 {
			t.Errorf("vertex %d position = %+v, want %+v", i, v.Position, wantPos[i])
		}
		wantUV := surface.Vec2{X: wantPos[i].X / 100, Y: wantPos[i].Y / 100}
		if !nearVec2(v.TexCoord, wantUV) {
			t.Errorf("vertex %d texcoord = %+v, want %+v", i, v.TexCoord, wantUV)
		}
	}
}

func TestCalculateMeshUnsubdividedQuadUsesCorners(t *testing.T) {
	r, s := newRect(t, 1)
	out := []surface.Vec2{{X: 0.1, Y: 0.05}, {X: 0.0, Y: 0.9}, {X: 0.95, Y: 1.0}, {X: 0.7, Y: 0.2}}
	in := []surface.Vec2{{X: 0.0, Y: 0.0}, {X: 0.0, Y: 0.5}, {X: 0.5, Y: 0.5}, {X: 0.5, Y: 0.0}}
	setPoints(t, r, s.ID(), surface.OutputSet, out...)
	setPoints(t, r, s.ID(), surface.InputSet, in...)

	size := surface.Vec2{X: 640, Y: 360}
	mesh, err := surface.CalculateMesh(s, size)
	if err != nil {
		t.Fatalf("CalculateMesh: %v", err)
	}

	order := []int{0, 1, 3, 1, 2, 3}
	if len(mesh) != len(order) {
		t.Fatalf("got %d vertices, want %d", len(mesh), len(order))
	}
	for i, corner := range order {
		wantPos := out[corner].Mul(size)
		got := surface.Vec2{X: mesh[i].Position.X, Y: mesh[i].Position.Y}
		if !nearVec2(got, wantPos) {
			t.Errorf("vertex %d position = %+v, want corner %d %+v", i, got, corner, wantPos)
		}
		if !nearVec2(mesh[i].TexCoord, in[corner]) {
			t.Errorf("vertex %d texcoord = %+v, want corner %d %+v", i, mesh[i].TexCoord, corner, in[corner])
		}
	}
}

func TestCalculateMeshVertexCount(t *testing.T) {
	tests := []struct {
		name     string
		kind     surface.Kind
		segments int
		want     int
	}{
		{"rect 1", surface.KindRect, 1, 6},
		{"rect 2", surface.KindRect, 2, 24},
		{"rect 3", surface.KindRect, 3, 54},
		{"rect 8", surface.KindRect, 8, 384},
		{"triangle 1", surface.KindTriangle, 1, 3},
		{"triangle 16", surface.KindTriangle, 16, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := surface.New()
			var id surface.SurfaceID
			if tt.kind == surface.KindRect {
				id = r.AddRect()
			} else {
				id = r.AddTriangle()
			}
			if err := r.SetSubdivisions(id, tt.segments); err != nil {
				t.Fatalf("SetSubdivisions: %v", err)
			}
			s, _ := r.Get(id)
			mesh, err := surface.CalculateMesh(s, surface.Vec2{X: 1920, Y: 1080})
			if err != nil {
				t.Fatalf("CalculateMesh: %v", err)
			}
			if len(mesh) != tt.want {
				t.Errorf("got %d vertices, want %d", len(mesh), tt.want)
			}
			if got := len(mesh.Floats()); got != tt.want*surface.FloatsPerVertex {
				t.Errorf("Floats() has %d values, want %d", got, tt.want*surface.FloatsPerVertex)
			}
		})
	}
}

func TestCalculateMeshTriangle(t *testing.T) {
	r := surface.New()
	id := r.AddTriangle()
	s, _ := r.Get(id)

	mesh, err := surface.CalculateMesh(s, surface.Vec2{X: 200, Y: 100})
	if err != nil {
		t.Fatalf("CalculateMesh: %v", err)
	}
	want := []surface.Vec2{{X: 40, Y: 20}, {X: 40, Y: 80}, {X: 160, Y: 80}}
	for i, v := range mesh {
		got := surface.Vec2{X: v.Position.X, Y: v.Position.Y}
		if !nearVec2(got, want[i]) {
			t.Errorf("vertex %d position = %+v, want %+v", i, got, want[i])
		}
		if !nearVec2(v.TexCoord, s.Positions(surface.InputSet)[i]) {
			t.Errorf("vertex %d texcoord = %+v, want input point %d", i, v.TexCoord, i)
		}
	}
}

func TestCalculateMeshDeterministic(t *testing.T) {
	r, s := newRect(t, 5)
	setPoints(t, r, s.ID(), surface.OutputSet,
		surface.Vec2{X: 0.13, Y: 0.07}, surface.Vec2{X: 0.02, Y: 0.91},
		surface.Vec2{X: 0.88, Y: 0.97}, surface.Vec2{X: 0.77, Y: 0.11})

	size := surface.Vec2{X: 1920, Y: 1080}
	a, err := surface.CalculateMesh(s, size)
	if err != nil {
		t.Fatalf("CalculateMesh: %v", err)
	}
	b, err := surface.CalculateMesh(s, size)
	if err != nil {
		t.Fatalf("CalculateMesh: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("repeated CalculateMesh calls produced different vertex buffers")
	}
}

func TestCalculateMeshSubdivisionKeepsPlanarMapping(t *testing.T) {
	// With identical input and output points every vertex samples the
	// texture at its own normalized position, whatever the resolution.
	_, s := newRect(t, 4)
	size := surface.Vec2{X: 400, Y: 200}
	mesh, err := surface.CalculateMesh(s, size)
	if err != nil {
		t.Fatalf("CalculateMesh: %v", err)
	}
	for i, v := range mesh {
		norm := surface.Vec2{X: v.Position.X / size.X, Y: v.Position.Y / size.Y}
		if !nearVec2(norm, v.TexCoord) {
			t.Fatalf("vertex %d: normalized position %+v != texcoord %+v", i, norm, v.TexCoord)
		}
	}
}

func TestCalculateMeshOutOfRangePoints(t *testing.T) {
	r, s := newRect(t, 3)
	setPoints(t, r, s.ID(), surface.OutputSet,
		surface.Vec2{X: -1, Y: -0.5}, surface.Vec2{X: -2, Y: 3},
		surface.Vec2{X: 4, Y: 2}, surface.Vec2{X: 1.5, Y: -1})

	mesh, err := surface.CalculateMesh(s, surface.Vec2{X: 100, Y: 100})
	if err != nil {
		t.Fatalf("CalculateMesh: %v", err)
	}
	if len(mesh) != 54 {
		t.Errorf("got %d vertices, want 54", len(mesh))
	}
	if mesh[0].Position.X != -100 || mesh[0].Position.Y != -50 {
		t.Errorf("first vertex = %+v, want (-100, -50)", mesh[0].Position)
	}
}

func TestCalculateMeshPreconditions(t *testing.T) {
	_, s := newRect(t, 2)
	sizes := []surface.Vec2{
		{X: 0, Y: 100},
		{X: 100, Y: 0},
		{X: -1, Y: 100},
		{X: math.NaN(), Y: 100},
	}
	for _, size := range sizes {
		if _, err := surface.CalculateMesh(s, size); !errors.Is(err, surface.ErrPrecondition) {
			t.Errorf("CalculateMesh(%+v) error = %v, want ErrPrecondition", size, err)
		}
	}
}

func TestRebuildMeshStoresResult(t *testing.T) {
	_, s := newRect(t, 2)
	if len(s.Mesh()) != 0 {
		t.Fatalf("fresh surface has %d mesh vertices, want 0", len(s.Mesh()))
	}
	if err := s.RebuildMesh(surface.Vec2{X: 10, Y: 10}); err != nil {
		t.Fatalf("RebuildMesh: %v", err)
	}
	if got := len(s.Mesh()); got != 24 {
		t.Errorf("mesh has %d vertices, want 24", got)
	}
	if got := s.Mesh().Triangles(); got != 8 {
		t.Errorf("mesh has %d triangles, want 8", got)
	}
}
