package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vsr83/WebGLGlobeTest/internal/catalog"
	"github.com/vsr83/WebGLGlobeTest/internal/geometry"
	"github.com/vsr83/WebGLGlobeTest/internal/orbit"
	"github.com/vsr83/WebGLGlobeTest/internal/propagation"
	"github.com/vsr83/WebGLGlobeTest/internal/scene"
	"gonum.org/v1/gonum/spatial/r3"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func testStore() *catalog.Store {
	v := math.Sqrt(orbit.EarthMu / 6778)
	store := catalog.NewStore()
	store.Set(&catalog.Catalog{
		Source:   "test",
		LoadedAt: time.Now().Add(-30 * time.Minute),
		Objects: []catalog.Object{{
			ID:   25544,
			Name: "ISS",
			State: orbit.StateVector{
				R:     r3.Vec{X: 6778},
				V:     r3.Vec{Y: v * 0.62, Z: v * 0.785},
				Epoch: time.Now().Add(-time.Hour),
			},
			Mu: orbit.EarthMu,
		}},
	})
	return store
}

func testConfig() Config {
	return Config{
		MaxConcurrentPerIP: 10,
		BandwidthLimit:     1048576,
		KeepaliveInterval:  30 * time.Second,
	}
}

func testHandler(store *catalog.Store, cfg Config) *Handler {
	prop := propagation.NewPropagator(store, propagation.PropConfig{Workers: 2, Step: 5 * time.Second}, testLogger())
	builder := scene.NewBuilder(prop, nil, geometry.DefaultEllipsoid, scene.DefaultTextures, testLogger())
	return NewHandler(builder, store, cfg, testLogger())
}

// readEvents returns the decoded "data:" payloads of an SSE body.
func readEvents(t *testing.T, body string) []map[string]any {
	t.Helper()
	var events []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &msg); err != nil {
			t.Errorf("invalid JSON in SSE data line: %v", err)
			continue
		}
		events = append(events, msg)
	}
	return events
}

// TestSSEMessageFormat verifies the SSE wire format: "data: {json}\n\n",
// metadata first, then frames carrying the same session.
func TestSSEMessageFormat(t *testing.T) {
	handler := testHandler(testStore(), testConfig())

	req := httptest.NewRequest("GET", "/api/v1/stream/frames?interval=100", nil)
	req.RemoteAddr = "127.0.0.1:12345"

	ctx, cancel := context.WithTimeout(req.Context(), 450*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	resp := w.Result()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", resp.Header.Get("Cache-Control"))
	}

	body := w.Body.String()
	events := readEvents(t, body)
	if len(events) < 2 {
		t.Fatalf("got %d events, want metadata plus at least one frame", len(events))
	}

	meta := events[0]
	if meta["type"] != "metadata" {
		t.Fatalf("first event type = %v, want metadata", meta["type"])
	}
	session, _ := meta["session"].(string)
	if session == "" {
		t.Error("metadata missing session")
	}
	if meta["catalog_source"] != "test" {
		t.Errorf("catalog_source = %v, want test", meta["catalog_source"])
	}
	if meta["objects"].(float64) != 1 {
		t.Errorf("objects = %v, want 1", meta["objects"])
	}
	if meta["interval_ms"].(float64) != 100 {
		t.Errorf("interval_ms = %v, want 100", meta["interval_ms"])
	}

	var lastSeq float64
	for _, ev := range events[1:] {
		if ev["type"] != "frame" {
			t.Errorf("event type = %v, want frame", ev["type"])
			continue
		}
		if ev["session"] != session {
			t.Errorf("frame session = %v, want %s", ev["session"], session)
		}
		seq := ev["seq"].(float64)
		if seq != lastSeq+1 {
			t.Errorf("seq = %v, want %v", seq, lastSeq+1)
		}
		lastSeq = seq

		frame, ok := ev["frame"].(map[string]any)
		if !ok {
			t.Fatalf("frame payload = %T, want object", ev["frame"])
		}
		objects, _ := frame["objects"].([]any)
		if len(objects) != 1 {
			t.Errorf("frame objects = %d, want 1", len(objects))
		}
	}

	// Lines should be "data: ...", "retry: ...", ":" (keepalive) or empty.
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") && !strings.HasPrefix(line, "retry: ") && line != ":" {
			t.Errorf("unexpected SSE line: %q", line)
		}
	}
}

// TestSessionPerConnection verifies each connection gets its own session.
func TestSessionPerConnection(t *testing.T) {
	handler := testHandler(testStore(), testConfig())

	sessions := map[string]bool{}
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
		req.RemoteAddr = "127.0.0.1:12345"
		ctx, cancel := context.WithTimeout(req.Context(), 50*time.Millisecond)
		w := httptest.NewRecorder()
		handler.HandleFrames(w, req.WithContext(ctx))
		cancel()

		events := readEvents(t, w.Body.String())
		if len(events) == 0 {
			t.Fatal("no metadata event")
		}
		sessions[events[0]["session"].(string)] = true
	}
	if len(sessions) != 2 {
		t.Errorf("got %d distinct sessions, want 2", len(sessions))
	}
}

// TestStreamWithoutCatalog keeps the connection open with metadata only.
func TestStreamWithoutCatalog(t *testing.T) {
	handler := testHandler(catalog.NewStore(), testConfig())

	req := httptest.NewRequest("GET", "/api/v1/stream/frames?interval=100", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	ctx, cancel := context.WithTimeout(req.Context(), 250*time.Millisecond)
	defer cancel()
	w := httptest.NewRecorder()
	handler.HandleFrames(w, req.WithContext(ctx))

	events := readEvents(t, w.Body.String())
	if len(events) != 1 {
		t.Fatalf("got %d events, want metadata only", len(events))
	}
	if events[0]["objects"].(float64) != 0 {
		t.Errorf("objects = %v, want 0", events[0]["objects"])
	}
}

// TestAdmissionPerIP verifies per-IP concurrent stream limits.
func TestAdmissionPerIP(t *testing.T) {
	a := newAdmission(3, 1000)

	var held []*ticket
	for i := 0; i < 3; i++ {
		tk, reason := a.admit("10.0.0.1", time.Second)
		if tk == nil {
			t.Fatalf("admit %d refused: %s", i+1, reason)
		}
		held = append(held, tk)
	}

	if tk, reason := a.admit("10.0.0.1", time.Second); tk != nil || reason != refusedPerIP {
		t.Errorf("admit beyond limit = %v, %q; want refusal %q", tk, reason, refusedPerIP)
	}

	other, _ := a.admit("10.0.0.2", time.Second)
	if other == nil {
		t.Error("different IP should not be limited")
	}

	held[0].release()
	held[0].release()
	if tk, _ := a.admit("10.0.0.1", time.Second); tk == nil {
		t.Error("admit after release should succeed")
	}

	if n, _ := a.usage("10.0.0.1"); n != 3 {
		t.Errorf("10.0.0.1 streams = %d, want 3 (double release counted once)", n)
	}
	if n, _ := a.usage("10.0.0.2"); n != 1 {
		t.Errorf("10.0.0.2 streams = %d, want 1", n)
	}
}

// TestAdmissionFrameBudget verifies that fast streams use up the shared
// frame rate budget and releasing one frees its share.
func TestAdmissionFrameBudget(t *testing.T) {
	a := newAdmission(100, 25)

	fast, _ := a.admit("10.0.0.1", 100*time.Millisecond) // 10 fps
	second, _ := a.admit("10.0.0.2", 100*time.Millisecond)
	if fast == nil || second == nil {
		t.Fatal("two 10 fps streams should fit a 25 fps budget")
	}
	if tk, reason := a.admit("10.0.0.3", 100*time.Millisecond); tk != nil || reason != refusedBudget {
		t.Errorf("third fast stream = %v, %q; want refusal %q", tk, reason, refusedBudget)
	}
	if tk, _ := a.admit("10.0.0.3", time.Second); tk == nil {
		t.Error("a 1 fps stream should still fit")
	}
	if _, reserved := a.usage(""); math.Abs(reserved-21) > 1e-9 {
		t.Errorf("reserved = %f fps, want 21", reserved)
	}

	fast.release()
	if tk, _ := a.admit("10.0.0.3", 100*time.Millisecond); tk == nil {
		t.Error("released budget should admit a new fast stream")
	}
}

// TestAdmissionConcurrent verifies admission is safe for concurrent use
// and returns to zero once every stream is released.
func TestAdmissionConcurrent(t *testing.T) {
	a := newAdmission(100, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tk, _ := a.admit("10.0.0.1", 200*time.Millisecond); tk != nil {
				defer tk.release()
				time.Sleep(10 * time.Millisecond)
			}
		}()
	}
	wg.Wait()

	if n, reserved := a.usage("10.0.0.1"); n != 0 || reserved != 0 {
		t.Errorf("after release: streams = %d, reserved = %f; want 0, 0", n, reserved)
	}
}

// TestFrameBudgetHTTPResponse verifies that a stream which would exceed the
// frame rate budget gets 429 with a budget message.
func TestFrameBudgetHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFrameRate = 5
	handler := testHandler(testStore(), cfg)

	req := httptest.NewRequest("GET", "/api/v1/stream/frames?interval=100", nil)
	req.RemoteAddr = "10.0.0.9:1000"
	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if !strings.Contains(w.Body.String(), "frame rate budget") {
		t.Errorf("body = %q, want frame rate budget message", w.Body.String())
	}
}

// TestRateLimitHTTPResponse verifies 429 response when limit exceeded.
func TestRateLimitHTTPResponse(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrentPerIP = 1
	handler := testHandler(testStore(), cfg)

	// Hold the first connection open.
	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
		req.RemoteAddr = "10.0.0.1:12345"
		ctx, cancel := context.WithCancel(req.Context())
		req = req.WithContext(ctx)
		w := httptest.NewRecorder()

		go func() {
			time.Sleep(50 * time.Millisecond)
			close(ready)
			time.Sleep(200 * time.Millisecond)
			cancel()
		}()

		handler.HandleFrames(w, req)
	}()

	<-ready

	// Second connection from same IP should get 429.
	req := httptest.NewRequest("GET", "/api/v1/stream/frames", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	w := httptest.NewRecorder()
	handler.HandleFrames(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	<-done
}

// TestInvalidQueryParams verifies error responses for bad stream options.
func TestInvalidQueryParams(t *testing.T) {
	handler := testHandler(testStore(), testConfig())

	tests := []struct {
		name  string
		query string
	}{
		{"interval too small", "?interval=10"},
		{"interval too large", "?interval=60000"},
		{"interval non-numeric", "?interval=abc"},
		{"negative trail", "?trail=-1"},
		{"trail too large", "?trail=500"},
		{"zero fov", "?fov=0"},
		{"fov 180", "?fov=180"},
		{"negative distance", "?distance=-1"},
		{"non-numeric rotation", "?rot_x=up"},
		{"nan aspect", "?aspect=NaN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/stream/frames"+tt.query, nil)
			req.RemoteAddr = "127.0.0.1:12345"
			w := httptest.NewRecorder()
			handler.HandleFrames(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Errorf("body = %q, want JSON error", w.Body.String())
			}
		})
	}
}

func TestParseView(t *testing.T) {
	q := url.Values{}
	q.Set("fov", "45")
	q.Set("distance", "12")
	q.Set("rot_z", "-90")

	view, err := ParseView(q, geometry.DefaultView())
	if err != nil {
		t.Fatalf("ParseView: %v", err)
	}
	if math.Abs(view.FOV-math.Pi/4) > 1e-12 {
		t.Errorf("fov = %f rad, want π/4", view.FOV)
	}
	if view.Distance != 12 {
		t.Errorf("distance = %f, want 12", view.Distance)
	}
	if math.Abs(view.RotZ+math.Pi/2) > 1e-12 {
		t.Errorf("rot_z = %f rad, want -π/2", view.RotZ)
	}
	// Unset fields keep the base values.
	if def := geometry.DefaultView(); view.RotX != def.RotX || view.Aspect != def.Aspect {
		t.Errorf("unset fields changed: %+v", view)
	}
}

func TestBandwidthWindow(t *testing.T) {
	c := &client{bandwidthLimit: 100}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if !c.allow(60, now) {
		t.Fatal("first 60 bytes should fit")
	}
	if c.allow(60, now.Add(100*time.Millisecond)) {
		t.Error("120 bytes within one second should exceed the limit")
	}
	if !c.allow(60, now.Add(time.Second)) {
		t.Error("new window should accept 60 bytes")
	}

	unlimited := &client{}
	if !unlimited.allow(1<<30, now) {
		t.Error("zero limit should disable the check")
	}
}

// TestKeepaliveFormat verifies keep-alive is an SSE comment.
func TestKeepaliveFormat(t *testing.T) {
	w := httptest.NewRecorder()
	c := &client{
		w:       w,
		flusher: w,
		rc:      http.NewResponseController(w),
		logger:  testLogger(),
	}
	if err := c.sendKeepalive(); err != nil {
		t.Fatalf("sendKeepalive: %v", err)
	}
	if got := w.Body.String(); got != ":\n\n" {
		t.Errorf("keepalive = %q, want %q", got, ":\n\n")
	}
}
