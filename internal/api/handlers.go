package api

import (
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/bryanchriswhite/fremkalder/internal/config"
	"github.com/bryanchriswhite/fremkalder/internal/surface"
)

func (s *Server) handleGetSurfaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

func (s *Server) handleAddSurface(kind surface.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			id  surface.SurfaceID
			err error
		)
		if kind == surface.KindTriangle {
			id, err = s.deps.Session.AddTriangle()
		} else {
			id, err = s.deps.Session.AddRect()
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"id": id, "kind": kind})
	}
}

func (s *Server) handleClearSurfaces(w http.ResponseWriter, r *http.Request) {
	s.deps.Session.Clear()
	success(w)
}

func (s *Server) handleRemoveSurface(w http.ResponseWriter, r *http.Request) {
	id, err := surfaceID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Session.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	success(w)
}

func (s *Server) handleLockSurface(w http.ResponseWriter, r *http.Request) {
	id, err := surfaceID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Locked bool `json:"locked"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Session.SetLocked(id, req.Locked); err != nil {
		writeError(w, err)
		return
	}
	success(w)
}

func (s *Server) handleSetSegments(w http.ResponseWriter, r *http.Request) {
	id, err := surfaceID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Segments int `json:"segments"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Session.SetSubdivisions(id, req.Segments); err != nil {
		writeError(w, err)
		return
	}
	success(w)
}

func (s *Server) handleGetMesh(w http.ResponseWriter, r *http.Request) {
	id, err := surfaceID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	mesh, err := s.deps.Session.Mesh(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"triangles": mesh.Triangles(),
		"vertices":  mesh,
	})
}

// pointerRequest is a pointer event in normalized [0,1] region space.
type pointerRequest struct {
	Type   string           `json:"type,omitempty"`
	Region surface.PointSet `json:"region"`
	X      float64          `json:"x"`
	Y      float64          `json:"y"`
}

func (p pointerRequest) pos() surface.Vec2 {
	return surface.Vec2{X: p.X, Y: p.Y}
}

// pointerResult reports which point, if any, an event affected.
type pointerResult struct {
	Type  string            `json:"type"`
	Hit   bool              `json:"hit"`
	Point *surface.PointRef `json:"point,omitempty"`
}

func newPointerResult(typ string, ref surface.PointRef, ok bool) pointerResult {
	res := pointerResult{Type: typ, Hit: ok}
	if ok {
		res.Point = &ref
	}
	return res
}

// applyPointer runs one pointer event against the session.
func (s *Server) applyPointer(req pointerRequest) (pointerResult, error) {
	switch req.Type {
	case "move":
		ref, ok := s.deps.Session.PointerMove(req.Region, req.pos())
		return newPointerResult(req.Type, ref, ok), nil
	case "drag":
		ref, ok, err := s.deps.Session.PointerDrag(req.Region, req.pos())
		if err != nil {
			return pointerResult{}, err
		}
		return newPointerResult(req.Type, ref, ok), nil
	case "leave":
		s.deps.Session.PointerLeave()
		return pointerResult{Type: req.Type}, nil
	default:
		return pointerResult{}, fmt.Errorf("%w: unknown pointer event %q", surface.ErrPrecondition, req.Type)
	}
}

func (s *Server) pointerHandler(typ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pointerRequest
		if typ != "leave" {
			if err := decode(r, &req); err != nil {
				writeError(w, err)
				return
			}
		}
		req.Type = typ
		res, err := s.applyPointer(req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Session.Document())
}

func (s *Server) handlePutProject(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Session.Load(r.Body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

// projectPath resolves the file named in a save/load request. An empty
// path means mapping.project_file. Any other path must be a relative .json
// name inside the project directory.
func (s *Server) projectPath(r *http.Request) (string, error) {
	var req struct {
		Path string `json:"path"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			return "", err
		}
	}
	var mapping config.MappingConfig
	if s.deps.Config != nil {
		mapping = s.deps.Config.Get().Mapping
	}
	if req.Path == "" {
		if mapping.ProjectFile == "" {
			return "", fmt.Errorf("%w: no project path given and mapping.project_file is unset", surface.ErrPrecondition)
		}
		return mapping.ProjectFile, nil
	}

	dir := mapping.ProjectDirectory()
	if dir == "" {
		return "", fmt.Errorf("%w: no project directory configured", surface.ErrPrecondition)
	}
	if !filepath.IsLocal(req.Path) {
		return "", fmt.Errorf("%w: project path %q must be relative to the project directory", surface.ErrPrecondition, req.Path)
	}
	if filepath.Ext(req.Path) != ".json" {
		return "", fmt.Errorf("%w: project path %q must end in .json", surface.ErrPrecondition, req.Path)
	}
	return filepath.Join(dir, req.Path), nil
}

func (s *Server) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	path, err := s.projectPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Session.SaveFile(path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "path": path})
}

func (s *Server) handleLoadProject(w http.ResponseWriter, r *http.Request) {
	path, err := s.projectPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Session.LoadFile(path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Session.Snapshot())
}

type mappingState struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleGetMapping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mappingState{Enabled: s.deps.Session.ShowPolygons()})
}

func (s *Server) handleSetMapping(w http.ResponseWriter, r *http.Request) {
	var req mappingState
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deps.Session.SetShowPolygons(req.Enabled)
	writeJSON(w, http.StatusOK, mappingState{Enabled: s.deps.Session.ShowPolygons()})
}
