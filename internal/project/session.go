package project

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/bryanchriswhite/fremkalder/internal/logger"
	"github.com/bryanchriswhite/fremkalder/internal/overlay"
	"github.com/bryanchriswhite/fremkalder/internal/surface"
	"github.com/rs/zerolog"
)

// Options configures a new Session.
type Options struct {
	Width        int
	Height       int
	Subdivisions int
	ShowPolygons bool
}

// Session owns one surface registry together with the editor state around
// it. All methods are safe for concurrent use. Every edit rebuilds the
// meshes it invalidates before returning, so Meshes never observes stale
// geometry.
type Session struct {
	mu           sync.RWMutex
	surfaces     *surface.Surfaces
	size         surface.Vec2
	showPolygons bool
	dirty        bool

	listenersMu sync.Mutex
	listeners   []chan Event

	log *zerolog.Logger
}

// New creates an empty session.
func New(opts Options) (*Session, error) {
	if opts.Width < 1 || opts.Height < 1 {
		return nil, fmt.Errorf("%w: output size %dx%d", surface.ErrPrecondition, opts.Width, opts.Height)
	}
	r := surface.New()
	if opts.Subdivisions != 0 {
		if err := r.SetDefaultSubdivisions(opts.Subdivisions); err != nil {
			return nil, err
		}
	}
	return &Session{
		surfaces:     r,
		size:         surface.Vec2{X: float64(opts.Width), Y: float64(opts.Height)},
		showPolygons: opts.ShowPolygons,
		log:          logger.WithComponent("session"),
	}, nil
}

// AddRect adds a default rect surface.
func (s *Session) AddRect() (surface.SurfaceID, error) {
	return s.add(surface.KindRect)
}

// AddTriangle adds a default triangle surface.
func (s *Session) AddTriangle() (surface.SurfaceID, error) {
	return s.add(surface.KindTriangle)
}

func (s *Session) add(kind surface.Kind) (surface.SurfaceID, error) {
	var id surface.SurfaceID
	err := s.edit(func() error {
		if kind == surface.KindRect {
			id = s.surfaces.AddRect()
		} else {
			id = s.surfaces.AddTriangle()
		}
		if err := s.rebuildLocked(id); err != nil {
			s.surfaces.Remove(id)
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().Uint64("surface", uint64(id)).Str("kind", string(kind)).Msg("Surface added")
	s.notify(Event{Type: EventSurfaces, Surface: id})
	return id, nil
}

// Remove deletes a surface.
func (s *Session) Remove(id surface.SurfaceID) error {
	if err := s.edit(func() error { return s.surfaces.Remove(id) }); err != nil {
		return err
	}

	s.log.Info().Uint64("surface", uint64(id)).Msg("Surface removed")
	s.notify(Event{Type: EventSurfaces, Surface: id})
	return nil
}

// Clear removes every surface.
func (s *Session) Clear() {
	var n int
	s.edit(func() error {
		n = s.surfaces.Len()
		s.surfaces.Clear()
		return nil
	})

	s.log.Info().Int("surfaces", n).Msg("Surfaces cleared")
	s.notify(Event{Type: EventSurfaces})
}

// SetLocked locks or unlocks a surface for picking.
func (s *Session) SetLocked(id surface.SurfaceID, locked bool) error {
	if err := s.edit(func() error { return s.surfaces.SetLocked(id, locked) }); err != nil {
		return err
	}

	s.log.Debug().Uint64("surface", uint64(id)).Bool("locked", locked).Msg("Surface lock changed")
	s.notify(Event{Type: EventSurfaces, Surface: id})
	return nil
}

// SetSubdivisions changes a surface's grid resolution. On error the
// surface keeps its previous resolution and mesh.
func (s *Session) SetSubdivisions(id surface.SurfaceID, n int) error {
	err := s.edit(func() error {
		sf, err := s.surfaces.Get(id)
		if err != nil {
			return err
		}
		prev := sf.Subdivisions()
		if err := s.surfaces.SetSubdivisions(id, n); err != nil {
			return err
		}
		if err := s.rebuildLocked(id); err != nil {
			s.surfaces.SetSubdivisions(id, prev)
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(Event{Type: EventSurfaces, Surface: id})
	return nil
}

// SetShowPolygons toggles mapping mode. With it off, pointer input is
// ignored and previews carry no overlay. Hovers are cleared either way.
func (s *Session) SetShowPolygons(show bool) {
	var changed bool
	s.locked(func() {
		changed = s.showPolygons != show
		s.showPolygons = show
		s.surfaces.ClearHovers()
		if changed {
			s.dirty = true
		}
	})

	if changed {
		s.log.Info().Bool("enabled", show).Msg("Mapping mode changed")
		s.notify(Event{Type: EventMapping})
	}
}

// ShowPolygons reports whether mapping mode is on.
func (s *Session) ShowPolygons() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.showPolygons
}

// PointerMove clears every hover, then hovers the point of set nearest to
// pos. It does nothing beyond clearing while mapping mode is off.
func (s *Session) PointerMove(set surface.PointSet, pos surface.Vec2) (surface.PointRef, bool) {
	var (
		ref surface.PointRef
		ok  bool
	)
	s.locked(func() {
		s.surfaces.ClearHovers()
		if s.showPolygons {
			ref, ok = s.surfaces.HoverNearest(set, pos)
		}
	})

	s.notify(Event{Type: EventPointer, Surface: ref.Surface})
	return ref, ok
}

// PointerLeave clears every hover, as when the pointer leaves both regions.
func (s *Session) PointerLeave() {
	s.locked(func() { s.surfaces.ClearHovers() })
	s.notify(Event{Type: EventPointer})
}

// PointerDrag moves the hovered point of set to pos and rebuilds the mesh
// of its surface. It reports false when mapping mode is off or nothing is
// hovered. If the rebuild fails the point returns to where it was.
func (s *Session) PointerDrag(set surface.PointSet, pos surface.Vec2) (surface.PointRef, bool, error) {
	var (
		ref surface.PointRef
		ok  bool
		err error
	)
	s.locked(func() {
		if !s.showPolygons {
			return
		}
		var prev surface.Vec2
		if hovered, found := s.surfaces.Hovered(set); found {
			if p, perr := s.surfaces.Point(hovered); perr == nil {
				prev = p.Position
			}
		}
		ref, ok = s.surfaces.Drag(set, pos)
		if !ok {
			return
		}
		if err = s.rebuildLocked(ref.Surface); err != nil {
			s.surfaces.Drag(set, prev)
			return
		}
		s.dirty = true
	})

	if err != nil {
		return ref, ok, err
	}
	if ok {
		s.notify(Event{Type: EventPoints, Surface: ref.Surface})
	}
	return ref, ok, nil
}

// SetOutputSize changes the destination extent and rebuilds every mesh.
func (s *Session) SetOutputSize(width, height int) error {
	if width < 1 || height < 1 {
		return fmt.Errorf("%w: output size %dx%d", surface.ErrPrecondition, width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = surface.Vec2{X: float64(width), Y: float64(height)}
	return s.surfaces.RebuildMeshes(s.size)
}

// OutputSize returns the destination extent in pixels.
func (s *Session) OutputSize() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.size.X), int(s.size.Y)
}

// Dirty reports whether there are edits since the last save or load.
func (s *Session) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// Save writes the project document to w and clears the dirty flag.
func (s *Session) Save(w io.Writer) error {
	var err error
	s.locked(func() {
		var data []byte
		data, err = surface.Save(s.surfaces, surface.Meta{ShowPolygons: s.showPolygons})
		if err == nil {
			_, err = w.Write(data)
		}
		if err == nil {
			s.dirty = false
		}
	})
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	s.notify(Event{Type: EventProject})
	return nil
}

// Load replaces the registry with the document read from r and rebuilds
// all meshes. On error the session is left unchanged.
func (s *Session) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read project: %w", err)
	}
	loaded, meta, err := surface.Load(data)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	n := loaded.Len()
	if err := s.replace(loaded, meta); err != nil {
		return err
	}

	s.log.Info().Int("surfaces", n).Bool("show_polygons", meta.ShowPolygons).Msg("Project loaded")
	s.notify(Event{Type: EventProject})
	return nil
}

// SaveFile writes the project to path.
func (s *Session) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create project file: %w", err)
	}
	if err := s.Save(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write project file: %w", err)
	}
	s.log.Info().Str("path", path).Msg("Project saved")
	return nil
}

// LoadFile reads the project at path.
func (s *Session) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open project file: %w", err)
	}
	defer f.Close()
	return s.Load(f)
}

// Meshes returns every surface's vertex buffer in draw order.
func (s *Session) Meshes() []surface.VertexBuffer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.surfaces.All()
	meshes := make([]surface.VertexBuffer, 0, len(all))
	for _, sf := range all {
		if m := sf.Mesh(); len(m) > 0 {
			meshes = append(meshes, m)
		}
	}
	return meshes
}

// Mesh returns one surface's vertex buffer.
func (s *Session) Mesh(id surface.SurfaceID) (surface.VertexBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sf, err := s.surfaces.Get(id)
	if err != nil {
		return nil, err
	}
	return sf.Mesh(), nil
}

// OverlayShapes returns the editing outline of every surface for one point
// set, or nil while mapping mode is off.
func (s *Session) OverlayShapes(set surface.PointSet) []overlay.Shape {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.showPolygons {
		return nil
	}

	all := s.surfaces.All()
	shapes := make([]overlay.Shape, 0, len(all))
	for _, sf := range all {
		pts := sf.Points(set)
		shape := overlay.Shape{
			Label:   strconv.FormatUint(uint64(sf.ID()), 10),
			Color:   sf.Color(),
			Points:  make([]surface.Vec2, len(pts)),
			Hovered: make([]bool, len(pts)),
		}
		for i, p := range pts {
			shape.Points[i] = p.Position
			shape.Hovered[i] = p.Hover
		}
		shapes = append(shapes, shape)
	}
	return shapes
}

// replace installs a freshly loaded registry once all its meshes build.
func (s *Session) replace(loaded *surface.Surfaces, meta surface.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := loaded.SetDefaultSubdivisions(s.surfaces.DefaultSubdivisionCount()); err != nil {
		return err
	}
	if err := loaded.RebuildMeshes(s.size); err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}
	s.surfaces = loaded
	s.showPolygons = meta.ShowPolygons
	s.dirty = false
	return nil
}

// edit runs fn under the write lock and marks the session dirty when fn
// succeeds.
func (s *Session) edit(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// locked runs fn under the write lock.
func (s *Session) locked(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// rebuildLocked regenerates one surface's mesh. Caller holds s.mu.
func (s *Session) rebuildLocked(id surface.SurfaceID) error {
	sf, err := s.surfaces.Get(id)
	if err != nil {
		return err
	}
	return sf.RebuildMesh(s.size)
}
