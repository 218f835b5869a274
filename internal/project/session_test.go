package project

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/fremkalder/internal/surface"
)

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := New(Options{Width: 100, Height: 100, ShowPolygons: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRejectsEmptyOutput(t *testing.T) {
	if _, err := New(Options{Width: 0, Height: 100}); !errors.Is(err, surface.ErrPrecondition) {
		t.Errorf("New with zero width: %v, want ErrPrecondition", err)
	}
	if _, err := New(Options{Width: 10, Height: 10, Subdivisions: -1}); !errors.Is(err, surface.ErrPrecondition) {
		t.Errorf("New with negative subdivisions: %v, want ErrPrecondition", err)
	}
}

func TestAddBuildsMesh(t *testing.T) {
	s := newSession(t)

	rect, err := s.AddRect()
	if err != nil {
		t.Fatalf("AddRect: %v", err)
	}
	if _, err := s.AddTriangle(); err != nil {
		t.Fatalf("AddTriangle: %v", err)
	}

	meshes := s.Meshes()
	if len(meshes) != 2 {
		t.Fatalf("%d meshes, want 2", len(meshes))
	}
	if got := meshes[0].Triangles(); got != 2*8*8 {
		t.Errorf("rect triangles = %d, want 128", got)
	}
	if got := meshes[1].Triangles(); got != 1 {
		t.Errorf("triangle triangles = %d, want 1", got)
	}
	if !s.Dirty() {
		t.Error("session not dirty after adding surfaces")
	}

	m, err := s.Mesh(rect)
	if err != nil || len(m) != 6*8*8 {
		t.Errorf("Mesh(%d) = %d vertices, %v", rect, len(m), err)
	}
}

func TestSubdivisionsOption(t *testing.T) {
	s, err := New(Options{Width: 10, Height: 10, Subdivisions: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id, _ := s.AddRect()
	if got := s.Meshes()[0].Triangles(); got != 8 {
		t.Errorf("triangles = %d, want 8", got)
	}
	if err := s.SetSubdivisions(id, 3); err != nil {
		t.Fatalf("SetSubdivisions: %v", err)
	}
	if got := s.Meshes()[0].Triangles(); got != 18 {
		t.Errorf("triangles after SetSubdivisions = %d, want 18", got)
	}
	if err := s.SetSubdivisions(id, 0); !errors.Is(err, surface.ErrPrecondition) {
		t.Errorf("SetSubdivisions(0): %v", err)
	}
}

func TestRejectedSubdivisionsReleaseLock(t *testing.T) {
	s := newSession(t)
	id, _ := s.AddRect()

	for _, n := range []int{surface.MaxSubdivisions + 1, 2_000_000_000, -5} {
		if err := s.SetSubdivisions(id, n); !errors.Is(err, surface.ErrPrecondition) {
			t.Errorf("SetSubdivisions(%d): %v, want ErrPrecondition", n, err)
		}
	}

	done := make(chan Snapshot)
	go func() { done <- s.Snapshot() }()
	select {
	case snap := <-done:
		if got := snap.Surfaces[0].Segments; got != surface.DefaultSubdivisions {
			t.Errorf("segments = %d after rejected changes, want %d", got, surface.DefaultSubdivisions)
		}
		if got := snap.Surfaces[0].Triangles; got != 2*8*8 {
			t.Errorf("triangles = %d, want 128", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session still locked after a rejected SetSubdivisions")
	}
	if _, err := s.AddTriangle(); err != nil {
		t.Errorf("AddTriangle after rejected SetSubdivisions: %v", err)
	}
}

func TestPointerDragRebuildsOnlyTouchedSurface(t *testing.T) {
	s := newSession(t)
	a, _ := s.AddRect()
	b, _ := s.AddRect()
	before, _ := s.Mesh(b)

	ref, ok := s.PointerMove(surface.OutputSet, surface.Vec2{X: 0.2, Y: 0.2})
	if !ok || ref.Surface != a {
		t.Fatalf("PointerMove hovered %s (ok=%v), want surface %d", ref, ok, a)
	}
	moved, ok, err := s.PointerDrag(surface.OutputSet, surface.Vec2{X: 0, Y: 0})
	if err != nil || !ok || moved != ref {
		t.Fatalf("PointerDrag = %s, %v, %v", moved, ok, err)
	}

	ma, _ := s.Mesh(a)
	if p := ma[0].Position; p.X != 0 || p.Y != 0 {
		t.Errorf("surface %d first vertex at %+v, want origin", a, p)
	}
	after, _ := s.Mesh(b)
	if !bytes.Equal(before.Bytes(), after.Bytes()) {
		t.Errorf("surface %d mesh changed by a drag on surface %d", b, a)
	}
}

func TestMappingModeGatesPointer(t *testing.T) {
	s := newSession(t)
	s.AddRect()
	s.PointerMove(surface.InputSet, surface.Vec2{})

	s.SetShowPolygons(false)
	if s.ShowPolygons() {
		t.Fatal("ShowPolygons still true")
	}
	if snap := s.Snapshot(); snap.Surfaces[0].Input[0].Hover {
		t.Error("turning mapping off kept a hover")
	}
	if _, ok := s.PointerMove(surface.InputSet, surface.Vec2{}); ok {
		t.Error("PointerMove hovered while mapping is off")
	}
	if _, ok, _ := s.PointerDrag(surface.InputSet, surface.Vec2{X: 0.5}); ok {
		t.Error("PointerDrag moved a point while mapping is off")
	}
	if shapes := s.OverlayShapes(surface.InputSet); shapes != nil {
		t.Errorf("OverlayShapes with mapping off = %v", shapes)
	}
}

func TestPointerMoveClearsOtherSet(t *testing.T) {
	s := newSession(t)
	s.AddRect()
	s.PointerMove(surface.InputSet, surface.Vec2{})
	s.PointerMove(surface.OutputSet, surface.Vec2{X: 1, Y: 1})

	snap := s.Snapshot()
	for i, p := range snap.Surfaces[0].Input {
		if p.Hover {
			t.Errorf("input[%d] still hovered after moving over the output", i)
		}
	}
	if !snap.Surfaces[0].Output[2].Hover {
		t.Error("output[2] not hovered")
	}

	s.PointerLeave()
	for _, p := range s.Snapshot().Surfaces[0].Output {
		if p.Hover {
			t.Error("hover survived PointerLeave")
		}
	}
}

func TestOverlayShapes(t *testing.T) {
	s := newSession(t)
	id, _ := s.AddTriangle()
	s.PointerMove(surface.OutputSet, surface.Vec2{X: 0.2, Y: 0.8})

	shapes := s.OverlayShapes(surface.OutputSet)
	if len(shapes) != 1 {
		t.Fatalf("%d shapes, want 1", len(shapes))
	}
	sh := shapes[0]
	if len(sh.Points) != 3 || len(sh.Hovered) != 3 {
		t.Fatalf("shape has %d points, %d hover flags", len(sh.Points), len(sh.Hovered))
	}
	if !sh.Hovered[1] || sh.Hovered[0] || sh.Hovered[2] {
		t.Errorf("hover flags = %v, want only index 1", sh.Hovered)
	}
	if sh.Label != "1" || sh.Color != surface.OrdinalColor(float64(id)) {
		t.Errorf("label %q color %+v", sh.Label, sh.Color)
	}
}

func TestRemoveAndLock(t *testing.T) {
	s := newSession(t)
	a, _ := s.AddRect()
	b, _ := s.AddRect()

	if err := s.SetLocked(a, true); err != nil {
		t.Fatalf("SetLocked: %v", err)
	}
	if ref, ok := s.PointerMove(surface.OutputSet, surface.Vec2{X: 0.2, Y: 0.2}); !ok || ref.Surface != b {
		t.Errorf("PointerMove picked %s, want surface %d", ref, b)
	}
	if err := s.Remove(a); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove(a); !errors.Is(err, surface.ErrNotFound) {
		t.Errorf("second Remove: %v, want ErrNotFound", err)
	}
	if err := s.SetLocked(a, false); !errors.Is(err, surface.ErrNotFound) {
		t.Errorf("SetLocked on removed: %v, want ErrNotFound", err)
	}
	if n := len(s.Meshes()); n != 1 {
		t.Errorf("%d meshes after remove, want 1", n)
	}
}

func TestPointerDragDirty(t *testing.T) {
	s := newSession(t)
	s.AddRect()
	if err := s.Save(io.Discard); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := s.PointerDrag(surface.OutputSet, surface.Vec2{X: 0.5, Y: 0.5}); ok || err != nil {
		t.Fatalf("drag with nothing hovered = %v, %v", ok, err)
	}
	if s.Dirty() {
		t.Error("drag with nothing hovered marked the session dirty")
	}

	ref, ok := s.PointerMove(surface.OutputSet, surface.Vec2{X: 0.2, Y: 0.2})
	if !ok {
		t.Fatal("PointerMove missed the corner")
	}
	before := s.Snapshot().Surfaces[0].Output[ref.Index]

	// an empty destination makes the rebuild fail
	s.mu.Lock()
	size := s.size
	s.size = surface.Vec2{}
	s.mu.Unlock()

	if _, _, err := s.PointerDrag(surface.OutputSet, surface.Vec2{X: 0.4, Y: 0.4}); !errors.Is(err, surface.ErrPrecondition) {
		t.Fatalf("drag with failing rebuild: %v, want ErrPrecondition", err)
	}
	if s.Dirty() {
		t.Error("failed drag marked the session dirty")
	}
	if after := s.Snapshot().Surfaces[0].Output[ref.Index]; after.X != before.X || after.Y != before.Y {
		t.Errorf("failed drag left the point at (%g,%g), want (%g,%g)", after.X, after.Y, before.X, before.Y)
	}

	s.mu.Lock()
	s.size = size
	s.mu.Unlock()
	if _, ok, err := s.PointerDrag(surface.OutputSet, surface.Vec2{X: 0.4, Y: 0.4}); !ok || err != nil {
		t.Fatalf("drag = %v, %v", ok, err)
	}
	if !s.Dirty() {
		t.Error("successful drag left the session clean")
	}
}

func TestClear(t *testing.T) {
	s := newSession(t)
	s.AddRect()
	s.AddTriangle()
	s.PointerMove(surface.InputSet, surface.Vec2{X: 0.2, Y: 0.2})
	if err := s.Save(io.Discard); err != nil {
		t.Fatal(err)
	}
	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	s.Clear()
	snap := s.Snapshot()
	if len(snap.Surfaces) != 0 || len(s.Meshes()) != 0 {
		t.Errorf("after Clear: %d surfaces, %d meshes", len(snap.Surfaces), len(s.Meshes()))
	}
	if !snap.Dirty {
		t.Error("Clear left the session clean")
	}
	if snap.HoverInput != nil {
		t.Errorf("hover survived Clear: %s", snap.HoverInput)
	}
	select {
	case ev := <-ch:
		if ev.Type != EventSurfaces {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Error("no event after Clear")
	}
}

func TestSnapshotHover(t *testing.T) {
	s := newSession(t)
	id, _ := s.AddRect()

	if snap := s.Snapshot(); snap.HoverInput != nil || snap.HoverOutput != nil {
		t.Fatalf("fresh session has hovers %v %v", snap.HoverInput, snap.HoverOutput)
	}
	ref, ok := s.PointerMove(surface.InputSet, surface.Vec2{X: 0.79, Y: 0.81})
	if !ok {
		t.Fatal("PointerMove missed")
	}
	snap := s.Snapshot()
	if snap.HoverInput == nil || *snap.HoverInput != ref || ref.Surface != id {
		t.Errorf("hover_input = %v, want %s", snap.HoverInput, ref)
	}
	if snap.HoverOutput != nil {
		t.Errorf("hover_output = %s, want none", snap.HoverOutput)
	}
	if !snap.Surfaces[0].Input[ref.Index].Hover {
		t.Error("hovered point not flagged in surface state")
	}

	s.PointerLeave()
	if snap := s.Snapshot(); snap.HoverInput != nil {
		t.Errorf("hover_input after leave = %s", snap.HoverInput)
	}
}

func TestSaveLoadFile(t *testing.T) {
	s := newSession(t)
	s.AddRect()
	id, _ := s.AddTriangle()
	s.SetLocked(id, true)
	s.SetShowPolygons(false)

	path := filepath.Join(t.TempDir(), "show.fremkalder")
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if s.Dirty() {
		t.Error("session dirty after save")
	}

	other := newSession(t)
	other.AddRect()
	if err := other.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	snap := other.Snapshot()
	if len(snap.Surfaces) != 2 {
		t.Fatalf("%d surfaces after load, want 2", len(snap.Surfaces))
	}
	if snap.ShowPolygons || snap.Dirty {
		t.Errorf("show_polygons=%v dirty=%v after load", snap.ShowPolygons, snap.Dirty)
	}
	if !snap.Surfaces[1].Locked || snap.Surfaces[1].Kind != surface.KindTriangle {
		t.Errorf("second surface = %+v", snap.Surfaces[1])
	}
	if snap.Surfaces[0].Triangles != 128 {
		t.Errorf("loaded rect has %d triangles, want 128", snap.Surfaces[0].Triangles)
	}
}

func TestLoadFailureKeepsState(t *testing.T) {
	s := newSession(t)
	s.AddRect()

	err := s.Load(strings.NewReader(`[{"kind":"rect","inputPoints":[[0,0]],"outputPoints":[[0,0]]}]`))
	if !errors.Is(err, surface.ErrFormat) {
		t.Fatalf("Load: %v, want ErrFormat", err)
	}
	if n := len(s.Snapshot().Surfaces); n != 1 {
		t.Errorf("%d surfaces after failed load, want 1", n)
	}
	if err := s.LoadFile(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile missing: %v", err)
	}
}

func TestSetOutputSize(t *testing.T) {
	s := newSession(t)
	s.AddTriangle()
	if err := s.SetOutputSize(200, 50); err != nil {
		t.Fatalf("SetOutputSize: %v", err)
	}
	if w, h := s.OutputSize(); w != 200 || h != 50 {
		t.Errorf("OutputSize = %dx%d", w, h)
	}
	p := s.Meshes()[0][0].Position
	if p.X != 40 || p.Y != 10 {
		t.Errorf("first vertex at %+v, want (40,10)", p)
	}
	if err := s.SetOutputSize(0, 10); !errors.Is(err, surface.ErrPrecondition) {
		t.Errorf("SetOutputSize(0,10): %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	s := newSession(t)
	ch := s.Subscribe()

	id, _ := s.AddRect()
	select {
	case ev := <-ch:
		if ev.Type != EventSurfaces || ev.Surface != id {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("no event after AddRect")
	}

	s.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Error("channel still open after Unsubscribe")
	}
	// must not panic on a closed subscriber
	s.AddRect()
}

func TestSnapshotColor(t *testing.T) {
	s := newSession(t)
	s.AddRect()
	c := s.Snapshot().Surfaces[0].Color
	if len(c) != 7 || c[0] != '#' {
		t.Errorf("color = %q, want #rrggbb", c)
	}
}
