package surface

// ClearHovers resets the hover flag of every point in both sets.
func (r *Surfaces) ClearHovers() {
	for _, s := range r.surfaces {
		for i := range s.input {
			s.input[i].Hover = false
		}
		for i := range s.output {
			s.output[i].Hover = false
		}
	}
}

// HoverNearest marks the point of set closest to cursor (squared Euclidean
// distance) among unlocked surfaces. Ties go to the first point in
// flattened order. It returns false when no unlocked surface exists.
// Any previous hover in the same set is cleared.
func (r *Surfaces) HoverNearest(set PointSet, cursor Vec2) (PointRef, bool) {
	var (
		best     *ControlPoint
		bestRef  PointRef
		bestDist float64
	)
	for _, s := range r.surfaces {
		l := s.list(set)
		for i := range l {
			l[i].Hover = false
			if s.locked {
				continue
			}
			d := cursor.SquaredDistance(l[i].Position)
			if best == nil || d < bestDist {
				best, bestDist = &l[i], d
				bestRef = PointRef{Surface: s.id, Set: set, Index: i}
			}
		}
	}
	if best == nil {
		return PointRef{}, false
	}
	best.Hover = true
	return bestRef, true
}

// Hovered returns the first hovered point of set in flattened order.
func (r *Surfaces) Hovered(set PointSet) (PointRef, bool) {
	for ref, p := range r.Points(set) {
		if p.Hover {
			return ref, true
		}
	}
	return PointRef{}, false
}

// Drag moves the first hovered point of set to cursor and returns its
// reference so the caller can rebuild the owning surface's mesh. It returns
// false when nothing is hovered.
//
// Drag does not consult the locked flag: only points of unlocked surfaces
// can become hovered, so callers must route drags after a hover.
func (r *Surfaces) Drag(set PointSet, cursor Vec2) (PointRef, bool) {
	for ref, p := range r.Points(set) {
		if p.Hover {
			p.Position = cursor
			return ref, true
		}
	}
	return PointRef{}, false
}
