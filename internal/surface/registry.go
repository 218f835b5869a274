package surface

import (
	"fmt"
	"iter"
	"slices"
)

// DefaultSubdivisions is the grid resolution given to new rect surfaces,
// and the value assumed for documents that predate the segments field.
const DefaultSubdivisions = 8

// MaxSubdivisions bounds the grid resolution of a rect. A rect mesh holds
// 6·S² vertices, so S=256 is about 393k vertices.
const MaxSubdivisions = 256

// checkSubdivisions reports n outside [1, MaxSubdivisions] as ErrPrecondition.
func checkSubdivisions(n int) error {
	if n < 1 || n > MaxSubdivisions {
		return fmt.Errorf("%w: subdivisions must be between 1 and %d, got %d", ErrPrecondition, MaxSubdivisions, n)
	}
	return nil
}

// Surfaces is an insertion-ordered registry of surfaces. Insertion order is
// both the draw order and the order used by the flattened point views.
//
// Surfaces is not safe for concurrent use.
type Surfaces struct {
	surfaces     []*Surface
	nextID       SurfaceID
	subdivisions int
}

// New returns an empty registry using DefaultSubdivisions for new rects.
func New() *Surfaces {
	return &Surfaces{
		nextID:       1,
		subdivisions: DefaultSubdivisions,
	}
}

// DefaultSubdivisionCount returns the resolution applied to new surfaces.
func (r *Surfaces) DefaultSubdivisionCount() int {
	return r.subdivisions
}

// SetDefaultSubdivisions changes the resolution applied to surfaces added later.
func (r *Surfaces) SetDefaultSubdivisions(n int) error {
	if err := checkSubdivisions(n); err != nil {
		return err
	}
	r.subdivisions = n
	return nil
}

// AddRect appends a rect surface with the default quad for both point sets.
func (r *Surfaces) AddRect() SurfaceID {
	return r.addDefault(KindRect)
}

// AddTriangle appends a triangle surface with the default triangle for both
// point sets.
func (r *Surfaces) AddTriangle() SurfaceID {
	return r.addDefault(KindTriangle)
}

func (r *Surfaces) addDefault(kind Kind) SurfaceID {
	corners := defaultCorners[:kind.PointCount()]
	s, err := r.add(kind, float64(len(r.surfaces)+1), r.subdivisions, corners, corners)
	if err != nil {
		// the default corners always satisfy the kind's cardinality
		panic(err)
	}
	return s.id
}

func (r *Surfaces) add(kind Kind, ordinal float64, subdivisions int, input, output []Vec2) (*Surface, error) {
	s, err := newSurface(r.nextID, ordinal, kind, subdivisions, input, output)
	if err != nil {
		return nil, err
	}
	r.nextID++
	r.surfaces = append(r.surfaces, s)
	return s, nil
}

// Remove deletes a surface together with its points and mesh.
func (r *Surfaces) Remove(id SurfaceID) error {
	i := r.index(id)
	if i < 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	r.surfaces[i].DiscardMesh()
	r.surfaces = slices.Delete(r.surfaces, i, i+1)
	return nil
}

// Clear removes every surface.
func (r *Surfaces) Clear() {
	for _, s := range r.surfaces {
		s.DiscardMesh()
	}
	r.surfaces = nil
}

// Get returns the surface with the given id.
func (r *Surfaces) Get(id SurfaceID) (*Surface, error) {
	i := r.index(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return r.surfaces[i], nil
}

// SetLocked excludes (or re-includes) a surface from picking. Locked
// surfaces still render.
func (r *Surfaces) SetLocked(id SurfaceID, locked bool) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	s.locked = locked
	if locked {
		for i := range s.input {
			s.input[i].Hover = false
		}
		for i := range s.output {
			s.output[i].Hover = false
		}
	}
	return nil
}

// SetSubdivisions changes a surface's grid resolution. The caller must
// rebuild its mesh afterwards.
func (r *Surfaces) SetSubdivisions(id SurfaceID, n int) error {
	if err := checkSubdivisions(n); err != nil {
		return err
	}
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	s.subdivisions = n
	return nil
}

// Len returns the number of surfaces.
func (r *Surfaces) Len() int {
	return len(r.surfaces)
}

// All returns the surfaces in insertion order.
func (r *Surfaces) All() []*Surface {
	return slices.Clone(r.surfaces)
}

// Points iterates the flattened view of one point set: every surface's
// points, in surface insertion order.
func (r *Surfaces) Points(set PointSet) iter.Seq2[PointRef, *ControlPoint] {
	return func(yield func(PointRef, *ControlPoint) bool) {
		for _, s := range r.surfaces {
			l := s.list(set)
			for i := range l {
				if !yield(PointRef{Surface: s.id, Set: set, Index: i}, &l[i]) {
					return
				}
			}
		}
	}
}

// Point resolves a reference to its control point.
func (r *Surfaces) Point(ref PointRef) (*ControlPoint, error) {
	s, err := r.Get(ref.Surface)
	if err != nil {
		return nil, err
	}
	p := s.Point(ref.Set, ref.Index)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return p, nil
}

// RebuildMeshes regenerates every surface's mesh.
func (r *Surfaces) RebuildMeshes(size Vec2) error {
	for _, s := range r.surfaces {
		if err := s.RebuildMesh(size); err != nil {
			return fmt.Errorf("surface %d: %w", s.id, err)
		}
	}
	return nil
}

func (r *Surfaces) index(id SurfaceID) int {
	return slices.IndexFunc(r.surfaces, func(s *Surface) bool { return s.id == id })
}
