package surface

import "fmt"

// PointSet selects one of a surface's two point lists.
type PointSet int

const (
	// InputSet holds source-space points (texture coordinates).
	InputSet PointSet = iota
	// OutputSet holds destination-space points.
	OutputSet
)

func (s PointSet) String() string {
	switch s {
	case InputSet:
		return "input"
	case OutputSet:
		return "output"
	default:
		return fmt.Sprintf("PointSet(%d)", int(s))
	}
}

// ParsePointSet maps "input"/"output" to a PointSet.
func ParsePointSet(name string) (PointSet, error) {
	switch name {
	case "input":
		return InputSet, nil
	case "output":
		return OutputSet, nil
	default:
		return 0, fmt.Errorf("%w: unknown point set %q", ErrPrecondition, name)
	}
}

// MarshalText encodes the set by name.
func (s PointSet) MarshalText() ([]byte, error) {
	if s != InputSet && s != OutputSet {
		return nil, fmt.Errorf("%w: unknown point set %d", ErrPrecondition, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText decodes "input" or "output".
func (s *PointSet) UnmarshalText(text []byte) error {
	v, err := ParsePointSet(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ControlPoint is one editable coordinate owned by exactly one surface.
// Hover is UI state and is never persisted.
type ControlPoint struct {
	Position Vec2
	Hover    bool

	surface SurfaceID
}

// Surface returns the handle of the owning surface.
func (p *ControlPoint) Surface() SurfaceID {
	return p.surface
}

// PointRef addresses a control point by owning surface, set and index.
type PointRef struct {
	Surface SurfaceID `json:"surface"`
	Set     PointSet  `json:"set"`
	Index   int       `json:"index"`
}

func (r PointRef) String() string {
	return fmt.Sprintf("surface %d %s[%d]", r.Surface, r.Set, r.Index)
}
