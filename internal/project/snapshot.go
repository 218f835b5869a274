package project

import "github.com/bryanchriswhite/fremkalder/internal/surface"

// PointState is the externally visible state of one control point.
type PointState struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Hover bool    `json:"hover"`
}

// SurfaceState is the externally visible state of one surface.
type SurfaceState struct {
	ID        surface.SurfaceID `json:"id"`
	Ordinal   float64           `json:"ordinal"`
	Kind      surface.Kind      `json:"kind"`
	Segments  int               `json:"segments"`
	Locked    bool              `json:"locked"`
	Hue       float64           `json:"hue"`
	Color     string            `json:"color"`
	Input     []PointState      `json:"input"`
	Output    []PointState      `json:"output"`
	Triangles int               `json:"triangles"`
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Surfaces     []SurfaceState `json:"surfaces"`
	ShowPolygons bool           `json:"show_polygons"`
	Dirty        bool           `json:"dirty"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`

	// HoverInput and HoverOutput name the hovered point of each set.
	HoverInput  *surface.PointRef `json:"hover_input,omitempty"`
	HoverOutput *surface.PointRef `json:"hover_output,omitempty"`
}

// Snapshot copies the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.surfaces.All()
	snap := Snapshot{
		Surfaces:     make([]SurfaceState, 0, len(all)),
		ShowPolygons: s.showPolygons,
		Dirty:        s.dirty,
		Width:        int(s.size.X),
		Height:       int(s.size.Y),
	}
	for _, sf := range all {
		snap.Surfaces = append(snap.Surfaces, SurfaceState{
			ID:        sf.ID(),
			Ordinal:   sf.Ordinal(),
			Kind:      sf.Kind(),
			Segments:  sf.Subdivisions(),
			Locked:    sf.Locked(),
			Hue:       sf.Hue(),
			Color:     hexColor(sf),
			Input:     pointStates(sf.Points(surface.InputSet)),
			Output:    pointStates(sf.Points(surface.OutputSet)),
			Triangles: sf.Mesh().Triangles(),
		})
	}
	if ref, ok := s.surfaces.Hovered(surface.InputSet); ok {
		snap.HoverInput = &ref
	}
	if ref, ok := s.surfaces.Hovered(surface.OutputSet); ok {
		snap.HoverOutput = &ref
	}
	return snap
}

// Document returns the persisted form of the current registry.
func (s *Session) Document() surface.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return surface.Encode(s.surfaces, surface.Meta{ShowPolygons: s.showPolygons})
}

func pointStates(pts []surface.ControlPoint) []PointState {
	out := make([]PointState, len(pts))
	for i, p := range pts {
		out[i] = PointState{X: p.Position.X, Y: p.Position.Y, Hover: p.Hover}
	}
	return out
}
