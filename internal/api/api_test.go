package api

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/gigecam/internal/acquire"
	"github.com/smazurov/gigecam/internal/api/models"
	"github.com/smazurov/gigecam/internal/camera/sim"
	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/logging"
	"github.com/smazurov/gigecam/internal/store"
)

func newSimCamera(t *testing.T) *sim.Camera {
	t.Helper()
	p, err := sim.LoadProfile("")
	if err != nil {
		t.Fatal(err)
	}
	cam, err := sim.New(p, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cam.Close() })
	return cam
}

func newTestServer(t *testing.T, mutate func(*Options)) (*Server, *Options) {
	t.Helper()
	opts := &Options{
		Camera:     newSimCamera(t),
		CameraName: "sim",
		Bus:        events.New(),
	}
	if mutate != nil {
		mutate(opts)
	}
	return NewServer(opts), opts
}

func do(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealthAndVersion(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	health := decode[models.HealthData](t, rec)
	if health.Status != "ok" || health.Camera != "sim" || health.System != "GigEVision" {
		t.Errorf("health = %+v", health)
	}

	rec = do(t, s, http.MethodGet, "/api/version", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_version") {
		t.Errorf("version = %d %s", rec.Code, rec.Body.String())
	}
}

func TestGetFeature(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		name   string
		status int
		check  func(models.FeatureData) bool
	}{
		{"Width", http.StatusOK, func(f models.FeatureData) bool {
			return f.Type == "int" && f.Value == "640" && f.Min == "16" && f.Max == "1280"
		}},
		{"PixelFormat", http.StatusOK, func(f models.FeatureData) bool {
			return f.Type == "enum" && f.Value == "Mono8" && len(f.Entries) == 3
		}},
		{"TriggerSoftware", http.StatusOK, func(f models.FeatureData) bool {
			return f.Type == "command" && f.Value == "" && f.Error == ""
		}},
		{"Gain", http.StatusNotFound, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/features/"+tt.name, "")
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
			if tt.check != nil {
				if f := decode[models.FeatureData](t, rec); !tt.check(f) {
					t.Errorf("feature = %+v", f)
				}
			}
		})
	}
}

func TestListFeatures(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/features", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list := decode[models.FeatureListData](t, rec)
	if list.Count != len(summaryFeatures) || len(list.Features) != list.Count {
		t.Fatalf("count = %d", list.Count)
	}
	if list.Features[0].Name != "DeviceVendorName" || list.Features[0].Value != "Simulated Vision" {
		t.Errorf("first feature = %+v", list.Features[0])
	}
}

func TestSetFeature(t *testing.T) {
	s, opts := newTestServer(t, nil)
	changed := make(chan events.FeatureChangedEvent, 4)
	unsub := opts.Bus.Subscribe(func(e events.FeatureChangedEvent) { changed <- e })
	defer unsub()

	rec := do(t, s, http.MethodPut, "/api/features/Width", `{"value":"320"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if f := decode[models.FeatureData](t, rec); f.Value != "320" {
		t.Errorf("value = %q", f.Value)
	}
	select {
	case e := <-changed:
		if e.Feature != "Width" || e.Value != "320" || e.Camera != "sim" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Error("no FeatureChangedEvent")
	}

	tests := []struct {
		path, body string
		status     int
	}{
		{"/api/features/DeviceID", `{"value":"x"}`, http.StatusForbidden},
		{"/api/features/Width", `{"value":"wide"}`, http.StatusUnprocessableEntity},
		{"/api/features/Width", `{"value":"5"}`, http.StatusUnprocessableEntity},
		{"/api/features/TriggerSoftware", `{"value":""}`, http.StatusUnprocessableEntity},
		{"/api/features/Gain", `{"value":"1"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := do(t, s, http.MethodPut, tt.path, tt.body); rec.Code != tt.status {
			t.Errorf("PUT %s %s = %d, want %d", tt.path, tt.body, rec.Code, tt.status)
		}
	}
}

func TestExecuteFeature(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if rec := do(t, s, http.MethodPost, "/api/features/TriggerSoftware/execute", ""); rec.Code >= 300 {
		t.Errorf("execute status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, http.MethodPost, "/api/features/Width/execute", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("executing an int = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/features/Reset/execute", ""); rec.Code != http.StatusNotFound {
		t.Errorf("executing a missing command = %d", rec.Code)
	}
}

func TestFeatureSetRoundTrip(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/feature-set", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("capture = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"vendor":"Simulated Vision"`) {
		t.Errorf("set = %s", body)
	}

	rec = do(t, s, http.MethodPut, "/api/feature-set", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("apply = %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[models.FeatureSetApplyData](t, rec)
	if res.Applied == 0 || len(res.Errors) != 0 {
		t.Errorf("apply = %+v", res)
	}

	rec = do(t, s, http.MethodPut, "/api/feature-set", `{"version":1,"vendor":"","model":"","serial":"","saved_at":"2025-01-27T10:30:00Z","features":[{"name":"DeviceID","value":"x"}]}`)
	res = decode[models.FeatureSetApplyData](t, rec)
	if res.Applied != 0 || len(res.Errors) != 1 {
		t.Errorf("apply read-only = %+v", res)
	}
}

func TestCapabilities(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/capabilities", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	list := decode[models.CapabilityListData](t, rec)
	if len(list.Capabilities) != 7 {
		t.Fatalf("capabilities = %d", len(list.Capabilities))
	}
	if list.Capabilities[0].Key != "control_protocol" || len(list.Capabilities[0].Flags) == 0 {
		t.Errorf("control protocol = %+v", list.Capabilities[0])
	}
}

func TestTrigger(t *testing.T) {
	tests := []struct {
		name    string
		trigger func() error
		status  int
	}{
		{"unavailable", nil, http.StatusServiceUnavailable},
		{"not armed", func() error { return acquire.ErrNotArmed }, http.StatusConflict},
		{"failure", func() error { return errors.New("link down") }, http.StatusInternalServerError},
		{"ok", func() error { return nil }, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, func(o *Options) { o.Trigger = tt.trigger })
			if rec := do(t, s, http.MethodPost, "/api/trigger", ""); rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestRuns(t *testing.T) {
	s, _ := newTestServer(t, nil)
	if rec := do(t, s, http.MethodGet, "/api/runs", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("without journal = %d", rec.Code)
	}

	j, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	id, _ := j.Begin(context.Background(), store.Run{Camera: "sim", Trigger: "single_frame"})
	_, _ = j.Begin(context.Background(), store.Run{Camera: "other", Trigger: "continuous"})

	s, _ = newTestServer(t, func(o *Options) { o.Journal = j })
	rec := do(t, s, http.MethodGet, "/api/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	list := decode[models.RunListData](t, rec)
	if list.Count != 1 || list.Runs[0].ID != id {
		t.Errorf("runs = %+v", list)
	}

	if rec := do(t, s, http.MethodGet, "/api/runs/1", ""); rec.Code != http.StatusOK {
		t.Errorf("get run = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/runs/99", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing run = %d", rec.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	s, _ := newTestServer(t, func(o *Options) {
		o.AuthUsername = "admin"
		o.AuthPassword = "secret"
	})
	good := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret"))
	bad := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:wrong"))

	tests := []struct {
		name, path, auth string
		status           int
	}{
		{"health is open", "/api/health", "", http.StatusOK},
		{"missing", "/api/features/Width", "", http.StatusUnauthorized},
		{"wrong password", "/api/features/Width", bad, http.StatusUnauthorized},
		{"bearer", "/api/features/Width", "Bearer token", http.StatusUnauthorized},
		{"header", "/api/features/Width", good, http.StatusOK},
		{"query", "/api/features/Width?auth=" + base64.StdEncoding.EncodeToString([]byte("admin:secret")), "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec *httptest.ResponseRecorder
			if tt.auth != "" {
				rec = do(t, s, http.MethodGet, tt.path, "", "Authorization", tt.auth)
			} else {
				rec = do(t, s, http.MethodGet, tt.path, "")
			}
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodOptions, "/api/features/Width", "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" || !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "PUT") {
		t.Errorf("headers = %v", rec.Header())
	}
}

func TestBrowserPage(t *testing.T) {
	s, _ := newTestServer(t, nil)
	for _, path := range []string{"/", "/cameras/sim"} {
		rec := do(t, s, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", path, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "/display.mjpeg") {
			t.Errorf("%s: page does not reference the live display", path)
		}
	}
	if rec := do(t, s, http.MethodGet, "/missing.js", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing asset: status = %d", rec.Code)
	}
}

func TestListLogs(t *testing.T) {
	logging.Initialize(logging.Config{Level: "debug", Output: io.Discard})
	logging.GetLogger("acquire").Info("frame delivered")
	logging.GetLogger("acquire").Warn("buffer allocation stopped")
	logging.GetLogger("gev").Error("heartbeat lost")

	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/api/logs?module=acquire&level=warn", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		Entries []models.LogEntryData `json:"entries"`
	}](t, rec)
	if len(body.Entries) != 1 || body.Entries[0].Message != "buffer allocation stopped" {
		t.Errorf("entries = %+v", body.Entries)
	}
}

func TestEventStream(t *testing.T) {
	s, opts := newTestServer(t, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect to SSE: %v", err)
	}
	defer resp.Body.Close()
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("content type = %s", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "event:") || strings.HasPrefix(line, "data:") {
				lines <- line
			}
		}
		close(lines)
	}()

	next := func() string {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed")
			}
			return line
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for SSE line")
		}
		return ""
	}

	if line := next(); line != "event: connected" {
		t.Fatalf("first line = %q", line)
	}
	if line := next(); !strings.Contains(line, "SSE connection established") {
		t.Fatalf("connected data = %q", line)
	}

	opts.Bus.Publish(events.FrameProcessedEvent{Camera: "sim", Count: 12, Width: 640, Height: 480})
	if line := next(); line != "event: frame-processed" {
		t.Fatalf("event line = %q", line)
	}
	if line := next(); !strings.Contains(line, `"count":12`) {
		t.Errorf("frame data = %q", line)
	}
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		method string
		path   string
		status int
		want   slog.Level
	}{
		{http.MethodGet, "/api/health", 200, slog.LevelDebug},
		{http.MethodGet, "/api/features/Width", 200, slog.LevelDebug},
		{http.MethodOptions, "/api/trigger", 204, slog.LevelDebug},
		{http.MethodPost, "/api/trigger", 200, slog.LevelInfo},
		{http.MethodPut, "/api/features/Width", 204, slog.LevelInfo},
		{http.MethodGet, "/api/events", 200, slog.LevelInfo},
		{http.MethodGet, "/api/logs/stream", 200, slog.LevelInfo},
		{http.MethodPut, "/api/features/Nope", 404, slog.LevelWarn},
		{http.MethodPost, "/api/trigger", 500, slog.LevelError},
	}
	for _, tt := range tests {
		if got := requestLevel(tt.method, tt.path, tt.status); got != tt.want {
			t.Errorf("requestLevel(%s %s %d) = %v, want %v", tt.method, tt.path, tt.status, got, tt.want)
		}
	}
}

func TestRequestLogging(t *testing.T) {
	logging.Initialize(logging.Config{Level: "debug", Output: io.Discard})
	s, _ := newTestServer(t, nil)

	do(t, s, http.MethodGet, "/api/features/NoSuchFeature", "")

	entries := logging.GetBuffer().Select("http", "warn")
	if len(entries) != 1 {
		t.Fatalf("http warnings = %+v", entries)
	}
	e := entries[0]
	if e.Message != "HTTP request completed" || e.Attributes["path"] != "/api/features/NoSuchFeature" || e.Attributes["camera"] != "sim" {
		t.Errorf("entry = %+v", e)
	}
}
