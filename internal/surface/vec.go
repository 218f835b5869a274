package surface

import (
	"encoding/json"
	"fmt"
)

// Vec2 is a 2-D coordinate. Control points use normalized [0,1] space,
// mesh positions use destination pixel space.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Vec3 is a mesh vertex position. Z is always zero for mapped surfaces.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Mix linearly interpolates between a and b.
func Mix(a, b Vec2, t float64) Vec2 {
	return Vec2{
		X: a.X*(1-t) + b.X*t,
		Y: a.Y*(1-t) + b.Y*t,
	}
}

// Mul scales v component-wise by o.
func (v Vec2) Mul(o Vec2) Vec2 {
	return Vec2{X: v.X * o.X, Y: v.Y * o.Y}
}

// SquaredDistance returns the squared Euclidean distance between v and o.
func (v Vec2) SquaredDistance(o Vec2) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	return dx*dx + dy*dy
}

// XY0 lifts v into a vertex position.
func (v Vec2) XY0() Vec3 {
	return Vec3{X: v.X, Y: v.Y}
}

// UnmarshalJSON accepts both {"x":..,"y":..} objects and [x, y] arrays.
func (v *Vec2) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) != 2 {
			return fmt.Errorf("point must have 2 coordinates, got %d", len(pair))
		}
		v.X, v.Y = pair[0], pair[1]
		return nil
	}

	type plain Vec2
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*v = Vec2(p)
	return nil
}
