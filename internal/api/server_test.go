package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bryanchriswhite/fremkalder/internal/compositor"
	"github.com/bryanchriswhite/fremkalder/internal/config"
	"github.com/bryanchriswhite/fremkalder/internal/output"
	"github.com/bryanchriswhite/fremkalder/internal/project"
	"github.com/bryanchriswhite/fremkalder/internal/source"
	"github.com/bryanchriswhite/fremkalder/internal/surface"
	"github.com/gorilla/websocket"
)

type fakeBroadcast struct {
	running  bool
	startErr error
}

func (f *fakeBroadcast) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}
func (f *fakeBroadcast) Stop() error                        { f.running = false; return nil }
func (f *fakeBroadcast) IsRunning() bool                    { return f.running }
func (f *fakeBroadcast) WriteFrame(frame *image.RGBA) error { return nil }
func (f *fakeBroadcast) Name() string                       { return "broadcast" }
func (f *fakeBroadcast) Status() output.BroadcastStatus {
	return output.BroadcastStatus{Running: f.running, Target: "127.0.0.1:12345"}
}

func newTestServer(t *testing.T) (*Server, *project.Session) {
	t.Helper()
	sess, err := project.New(project.Options{Width: 100, Height: 100, ShowPolygons: true})
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(Deps{Session: sess, Broadcast: &fakeBroadcast{}}), sess
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, r))
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", surface.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", surface.ErrPrecondition), http.StatusBadRequest},
		{fmt.Errorf("x: %w", surface.ErrFormat), http.StatusBadRequest},
		{fmt.Errorf("x: %w", surface.ErrConfiguration), http.StatusBadRequest},
		{fmt.Errorf("x: %w", os.ErrNotExist), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSurfaceLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "POST", "/api/surfaces/rect", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("add rect: %d %s", rec.Code, rec.Body)
	}
	added := decodeBody[struct {
		ID   surface.SurfaceID `json:"id"`
		Kind string            `json:"kind"`
	}](t, rec)
	if added.ID != 1 || added.Kind != "rect" {
		t.Errorf("added = %+v", added)
	}
	if rec := do(t, s, "POST", "/api/surfaces/triangle", ""); rec.Code != http.StatusCreated {
		t.Fatalf("add triangle: %d", rec.Code)
	}

	snap := decodeBody[project.Snapshot](t, do(t, s, "GET", "/api/surfaces", ""))
	if len(snap.Surfaces) != 2 || snap.Surfaces[1].Kind != surface.KindTriangle {
		t.Fatalf("snapshot = %+v", snap)
	}

	if rec := do(t, s, "PUT", "/api/surfaces/1/segments", `{"segments":2}`); rec.Code != http.StatusOK {
		t.Fatalf("segments: %d %s", rec.Code, rec.Body)
	}
	mesh := decodeBody[struct {
		Triangles int              `json:"triangles"`
		Vertices  []map[string]any `json:"vertices"`
	}](t, do(t, s, "GET", "/api/surfaces/1/mesh", ""))
	if mesh.Triangles != 8 || len(mesh.Vertices) != 24 {
		t.Errorf("mesh = %d triangles, %d vertices", mesh.Triangles, len(mesh.Vertices))
	}

	if rec := do(t, s, "PUT", "/api/surfaces/1/segments", `{"segments":0}`); rec.Code != http.StatusBadRequest {
		t.Errorf("zero segments: %d", rec.Code)
	}
	if rec := do(t, s, "PUT", "/api/surfaces/1/lock", `{"locked":true}`); rec.Code != http.StatusOK {
		t.Errorf("lock: %d", rec.Code)
	}
	if rec := do(t, s, "PUT", "/api/surfaces/1/lock", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("lock with bad body: %d", rec.Code)
	}

	if rec := do(t, s, "DELETE", "/api/surfaces/1", ""); rec.Code != http.StatusOK {
		t.Errorf("delete: %d", rec.Code)
	}
	if rec := do(t, s, "DELETE", "/api/surfaces/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("delete twice: %d", rec.Code)
	}
	if rec := do(t, s, "GET", "/api/surfaces/99/mesh", ""); rec.Code != http.StatusNotFound {
		t.Errorf("mesh of missing surface: %d", rec.Code)
	}
}

func TestSetSegmentsAboveMaximum(t *testing.T) {
	s, sess := newTestServer(t)
	sess.AddRect()

	for _, n := range []int{surface.MaxSubdivisions + 1, 1_000_000, 2_000_000_000} {
		body := fmt.Sprintf(`{"segments":%d}`, n)
		if rec := do(t, s, "PUT", "/api/surfaces/1/segments", body); rec.Code != http.StatusBadRequest {
			t.Errorf("segments %d: %d %s", n, rec.Code, rec.Body)
		}
	}

	rec := do(t, s, "GET", "/api/surfaces", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("surfaces after rejected segments: %d", rec.Code)
	}
	snap := decodeBody[project.Snapshot](t, rec)
	if len(snap.Surfaces) != 1 || snap.Surfaces[0].Segments != surface.DefaultSubdivisions {
		t.Errorf("snapshot = %+v", snap.Surfaces)
	}
}

func TestClearSurfaces(t *testing.T) {
	s, sess := newTestServer(t)
	sess.AddRect()
	sess.AddTriangle()

	if rec := do(t, s, "DELETE", "/api/surfaces", ""); rec.Code != http.StatusOK {
		t.Fatalf("clear: %d %s", rec.Code, rec.Body)
	}
	snap := sess.Snapshot()
	if len(snap.Surfaces) != 0 || !snap.Dirty {
		t.Errorf("after clear: %d surfaces, dirty %v", len(snap.Surfaces), snap.Dirty)
	}
	if rec := do(t, s, "POST", "/api/surfaces/rect", ""); rec.Code != http.StatusCreated {
		t.Fatalf("add after clear: %d", rec.Code)
	}
	if n := len(sess.Snapshot().Surfaces); n != 1 {
		t.Errorf("after add: %d surfaces", n)
	}
}

func TestPointerMoveAndDrag(t *testing.T) {
	s, sess := newTestServer(t)
	sess.AddRect()

	res := decodeBody[pointerResult](t, do(t, s, "POST", "/api/pointer/move", `{"region":"output","x":0.21,"y":0.19}`))
	if !res.Hit || res.Point == nil || res.Point.Index != 0 || res.Point.Set != surface.OutputSet {
		t.Fatalf("move = %+v", res)
	}

	res = decodeBody[pointerResult](t, do(t, s, "POST", "/api/pointer/drag", `{"region":"output","x":0.1,"y":0.1}`))
	if !res.Hit {
		t.Fatalf("drag = %+v", res)
	}
	snap := sess.Snapshot()
	if p := snap.Surfaces[0].Output[0]; p.X != 0.1 || p.Y != 0.1 {
		t.Errorf("dragged point = %+v", p)
	}
	if p := snap.Surfaces[0].Input[0]; p.X != 0.2 {
		t.Errorf("input point moved: %+v", p)
	}

	if rec := do(t, s, "POST", "/api/pointer/move", `{"region":"sideways","x":0,"y":0}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad region: %d", rec.Code)
	}
	if rec := do(t, s, "POST", "/api/pointer/leave", ""); rec.Code != http.StatusOK {
		t.Errorf("leave: %d", rec.Code)
	}
}

func TestMappingToggle(t *testing.T) {
	s, sess := newTestServer(t)
	sess.AddRect()

	state := decodeBody[mappingState](t, do(t, s, "PUT", "/api/mapping", `{"enabled":false}`))
	if state.Enabled || sess.ShowPolygons() {
		t.Fatalf("mapping still enabled")
	}
	res := decodeBody[pointerResult](t, do(t, s, "POST", "/api/pointer/drag", `{"region":"input","x":0.5,"y":0.5}`))
	if res.Hit {
		t.Error("drag applied with mapping off")
	}
	if got := decodeBody[mappingState](t, do(t, s, "GET", "/api/mapping", "")); got.Enabled {
		t.Error("GET /api/mapping reports enabled")
	}
}

func TestProjectRoutes(t *testing.T) {
	s, sess := newTestServer(t)
	sess.AddRect()
	sess.AddTriangle()

	rec := do(t, s, "GET", "/api/project", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get project: %d", rec.Code)
	}
	doc := rec.Body.String()
	if !strings.Contains(doc, `"kind"`) {
		t.Errorf("project document = %s", doc)
	}
	if !sess.Dirty() {
		t.Error("reading the document cleared the dirty flag")
	}

	sess.Remove(1)
	rec = do(t, s, "PUT", "/api/project", doc)
	if rec.Code != http.StatusOK {
		t.Fatalf("put project: %d %s", rec.Code, rec.Body)
	}
	if snap := decodeBody[project.Snapshot](t, rec); len(snap.Surfaces) != 2 || snap.Dirty {
		t.Errorf("after load: %d surfaces, dirty %v", len(snap.Surfaces), snap.Dirty)
	}

	if rec := do(t, s, "PUT", "/api/project", `[{"kind":"rect"}]`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad document: %d", rec.Code)
	}

	dir := t.TempDir()
	s.deps.Config = newTestConfig(t, config.MappingConfig{Segments: 8, ProjectDir: dir})

	if rec := do(t, s, "POST", "/api/project/save", `{"path":"project.json"}`); rec.Code != http.StatusOK {
		t.Fatalf("save: %d %s", rec.Code, rec.Body)
	}
	if _, err := os.Stat(filepath.Join(dir, "project.json")); err != nil {
		t.Fatal(err)
	}
	sess.Remove(2)
	if rec := do(t, s, "POST", "/api/project/load", `{"path":"project.json"}`); rec.Code != http.StatusOK {
		t.Fatalf("load: %d %s", rec.Code, rec.Body)
	}
	if n := len(sess.Snapshot().Surfaces); n != 2 {
		t.Errorf("after load file: %d surfaces", n)
	}

	if rec := do(t, s, "POST", "/api/project/save", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("save without path: %d", rec.Code)
	}
	if rec := do(t, s, "POST", "/api/project/load", `{"path":"missing.json"}`); rec.Code != http.StatusNotFound {
		t.Errorf("load missing file: %d", rec.Code)
	}
}

func newTestConfig(t *testing.T, mapping config.MappingConfig) *config.Manager {
	t.Helper()
	m, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := m.Get()
	cfg.Mapping = mapping
	if err := m.Update(cfg); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestProjectPathStaysInProjectDirectory(t *testing.T) {
	s, sess := newTestServer(t)
	sess.AddRect()

	root := t.TempDir()
	dir := filepath.Join(root, "shows")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	outside := filepath.Join(root, "outside.json")
	s.deps.Config = newTestConfig(t, config.MappingConfig{Segments: 8, ProjectFile: filepath.Join(dir, "stage.json")})

	for _, path := range []string{
		outside,
		"../outside.json",
		"nested/../../outside.json",
		"stage.yaml",
		"stage",
	} {
		body := fmt.Sprintf(`{"path":%q}`, path)
		if rec := do(t, s, "POST", "/api/project/save", body); rec.Code != http.StatusBadRequest {
			t.Errorf("save %q: %d %s", path, rec.Code, rec.Body)
		}
		if rec := do(t, s, "POST", "/api/project/load", body); rec.Code != http.StatusBadRequest {
			t.Errorf("load %q: %d %s", path, rec.Code, rec.Body)
		}
	}
	if _, err := os.Stat(outside); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file written outside the project directory: %v", err)
	}

	// empty path falls back to mapping.project_file
	if rec := do(t, s, "POST", "/api/project/save", ""); rec.Code != http.StatusOK {
		t.Fatalf("save to project_file: %d %s", rec.Code, rec.Body)
	}
	if _, err := os.Stat(filepath.Join(dir, "stage.json")); err != nil {
		t.Error(err)
	}
	if rec := do(t, s, "POST", "/api/project/save", `{"path":"encore.json"}`); rec.Code != http.StatusOK {
		t.Fatalf("save next to project_file: %d %s", rec.Code, rec.Body)
	}
	if _, err := os.Stat(filepath.Join(dir, "encore.json")); err != nil {
		t.Error(err)
	}

	bare := NewServer(Deps{Session: sess})
	if rec := do(t, bare, "POST", "/api/project/save", `{"path":"stage.json"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("save without a project directory: %d", rec.Code)
	}
}

func TestBroadcastRoutes(t *testing.T) {
	s, sess := newTestServer(t)
	comp, err := compositor.New(compositor.Config{
		Width: 100, Height: 100, FPS: 5, PreviewWidth: 50, PreviewHeight: 50,
	}, source.NewCanvas(100, 100), sess)
	if err != nil {
		t.Fatal(err)
	}
	s.deps.Compositor = comp

	if st := decodeBody[output.BroadcastStatus](t, do(t, s, "POST", "/api/broadcast", "")); !st.Running {
		t.Error("broadcast not running after POST")
	}
	if sinks := comp.Stats().Sinks; len(sinks) != 1 || sinks[0] != "broadcast" {
		t.Errorf("sinks after start = %v", sinks)
	}
	if rec := do(t, s, "POST", "/api/broadcast", ""); rec.Code != http.StatusConflict {
		t.Errorf("second start: %d", rec.Code)
	}
	if st := decodeBody[output.BroadcastStatus](t, do(t, s, "DELETE", "/api/broadcast", "")); st.Running {
		t.Error("broadcast running after DELETE")
	}
	if sinks := comp.Stats().Sinks; len(sinks) != 0 {
		t.Errorf("sinks after stop = %v", sinks)
	}

	failing := &fakeBroadcast{startErr: errors.New("no socat")}
	s.deps.Broadcast = failing
	if rec := do(t, s, "POST", "/api/broadcast", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("failed start: %d", rec.Code)
	}
	if sinks := comp.Stats().Sinks; len(sinks) != 0 {
		t.Errorf("failed broadcast attached as sink: %v", sinks)
	}

	bare := NewServer(Deps{Session: s.deps.Session})
	if rec := do(t, bare, "GET", "/api/broadcast", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unconfigured broadcast: %d", rec.Code)
	}
}

func TestHealthAndStreams(t *testing.T) {
	sess, _ := project.New(project.Options{Width: 10, Height: 10})
	stream := output.NewMJPEGOutput("output", output.Config{Width: 10, Height: 10, FPS: 5}, 80)
	s := NewServer(Deps{
		Session: sess,
		Streams: map[string]*output.MJPEGOutput{"output": stream},
		Sources: func() []string { return []string{"image:a.png", "", "", ""} },
	})

	health := decodeBody[map[string]any](t, do(t, s, "GET", "/api/health", ""))
	if health["status"] != "healthy" || health["streams"] == nil {
		t.Errorf("health = %v", health)
	}

	if rec := do(t, s, "GET", "/stream/input", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown stream: %d", rec.Code)
	}
	// not started yet
	if rec := do(t, s, "GET", "/stream/output", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("stopped stream: %d", rec.Code)
	}
	if rec := do(t, s, "GET", "/stream/output/frame.jpg", ""); rec.Code != http.StatusNotFound {
		t.Errorf("frame before any client: %d", rec.Code)
	}

	src := decodeBody[map[string][]string](t, do(t, s, "GET", "/api/sources", ""))
	if len(src["quadrants"]) != 4 || src["quadrants"][0] != "image:a.png" {
		t.Errorf("sources = %v", src)
	}
	if rec := do(t, s, "GET", "/api/config", ""); rec.Code != http.StatusNotFound {
		t.Errorf("config without manager: %d", rec.Code)
	}
}

func TestFramePNG(t *testing.T) {
	s, _ := newTestServer(t)
	if rec := do(t, s, "GET", "/api/frame.png", ""); rec.Code != http.StatusNotFound {
		t.Errorf("frame without compositor: %d", rec.Code)
	}

	sess, err := project.New(project.Options{Width: 100, Height: 50})
	if err != nil {
		t.Fatal(err)
	}
	sess.AddRect()
	comp, err := compositor.New(compositor.Config{
		Width: 100, Height: 50, FPS: 5, PreviewWidth: 50, PreviewHeight: 25,
	}, source.NewCanvas(100, 50), sess)
	if err != nil {
		t.Fatal(err)
	}
	comp.RenderFrame()

	s = NewServer(Deps{Session: sess, Compositor: comp})
	rec := do(t, s, "GET", "/api/frame.png", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("frame: %d %v", rec.Code, rec.Header())
	}
	cfg, err := png.DecodeConfig(rec.Body)
	if err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("frame is %dx%d, want 100x50", cfg.Width, cfg.Height)
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "OPTIONS", "/api/surfaces", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight: %d %v", rec.Code, rec.Header())
	}
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestEventsSocket(t *testing.T) {
	s, sess := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/events"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first eventMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatal(err)
	}
	if first.Event != nil || len(first.Snapshot.Surfaces) != 0 {
		t.Fatalf("initial message = %+v", first)
	}

	if _, err := sess.AddRect(); err != nil {
		t.Fatal(err)
	}
	var next eventMessage
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatal(err)
	}
	if next.Event == nil || next.Event.Type != project.EventSurfaces || len(next.Snapshot.Surfaces) != 1 {
		t.Errorf("event message = %+v", next)
	}
}

func TestPointerSocket(t *testing.T) {
	s, sess := newTestServer(t)
	sess.AddRect()
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/api/pointer"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	send := func(msg string) map[string]any {
		t.Helper()
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			t.Fatal(err)
		}
		var res map[string]any
		if err := conn.ReadJSON(&res); err != nil {
			t.Fatal(err)
		}
		return res
	}

	if res := send(`{"type":"move","region":"input","x":0.79,"y":0.81}`); res["hit"] != true {
		t.Fatalf("move = %v", res)
	}
	if res := send(`{"type":"drag","region":"input","x":0.7,"y":0.9}`); res["hit"] != true {
		t.Fatalf("drag = %v", res)
	}
	if p := sess.Snapshot().Surfaces[0].Input[2]; p.X != 0.7 || p.Y != 0.9 {
		t.Errorf("dragged input point = %+v", p)
	}
	if res := send(`{"type":"jump","region":"input","x":0,"y":0}`); res["error"] == nil {
		t.Errorf("unknown event = %v", res)
	}
	if res := send(`garbage`); res["error"] == nil {
		t.Errorf("garbage = %v", res)
	}
}
