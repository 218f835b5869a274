package surface

import (
	"encoding/json"
	"fmt"
)

// Record is the persisted form of one surface. Hover flags and meshes are
// never persisted.
type Record struct {
	ID           float64 `json:"id"`
	Kind         Kind    `json:"kind"`
	Segments     *int    `json:"segments,omitempty"`
	Locked       bool    `json:"locked"`
	InputPoints  []Vec2  `json:"inputPoints"`
	OutputPoints []Vec2  `json:"outputPoints"`
	ShowPolygons *bool   `json:"showPolygons,omitempty"`
}

// Document is the persisted form of a registry: one record per surface in
// insertion order.
type Document []Record

// Meta carries the UI state stored alongside the surfaces.
type Meta struct {
	ShowPolygons bool
}

// Encode converts a registry into its document form.
func Encode(r *Surfaces, meta Meta) Document {
	doc := make(Document, 0, len(r.surfaces))
	for _, s := range r.surfaces {
		segments := s.subdivisions
		show := meta.ShowPolygons
		doc = append(doc, Record{
			ID:           s.ordinal,
			Kind:         s.kind,
			Segments:     &segments,
			Locked:       s.locked,
			InputPoints:  s.Positions(InputSet),
			OutputPoints: s.Positions(OutputSet),
			ShowPolygons: &show,
		})
	}
	return doc
}

// Decode rebuilds a registry from a document, preserving record order and
// point order. Meshes are not generated; callers rebuild them afterwards.
// A record missing segments gets DefaultSubdivisions.
func Decode(doc Document) (*Surfaces, Meta, error) {
	r := New()
	meta := Meta{ShowPolygons: true}

	for i, rec := range doc {
		if !rec.Kind.Valid() {
			return nil, Meta{}, fmt.Errorf("%w: record %d: unknown kind %q", ErrFormat, i, rec.Kind)
		}

		segments := DefaultSubdivisions
		if rec.Segments != nil {
			segments = *rec.Segments
		}
		if err := checkSubdivisions(segments); err != nil {
			return nil, Meta{}, fmt.Errorf("%w: record %d: %w", ErrFormat, i, err)
		}

		s, err := r.add(rec.Kind, rec.ID, segments, rec.InputPoints, rec.OutputPoints)
		if err != nil {
			return nil, Meta{}, fmt.Errorf("%w: record %d: %w", ErrFormat, i, err)
		}
		s.locked = rec.Locked

		if rec.ShowPolygons != nil {
			meta.ShowPolygons = *rec.ShowPolygons
		}
	}
	return r, meta, nil
}

// Save marshals a registry into an indented JSON document.
func Save(r *Surfaces, meta Meta) ([]byte, error) {
	data, err := json.MarshalIndent(Encode(r, meta), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal surfaces: %w", err)
	}
	return data, nil
}

// Load parses a JSON document into a new registry.
func Load(data []byte) (*Surfaces, Meta, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, Meta{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return Decode(doc)
}
