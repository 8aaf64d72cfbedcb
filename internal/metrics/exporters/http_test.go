package exporters

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/smazurov/gigecam/internal/metrics"
)

func TestHTTPHandler(t *testing.T) {
	handler := HTTPHandler()
	if handler == nil {
		t.Fatal("expected non-nil handler")
	}

	metrics.SetGrabBuffers("http-test-cam", 10)
	defer metrics.DeleteAcquisitionMetrics("http-test-cam")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	body := w.Body.String()
	if !strings.Contains(body, `gigecam_grab_buffers{camera="http-test-cam"} 10`) {
		t.Errorf("expected grab buffer gauge in response:\n%s", body)
	}
}

func TestHTTPHandlerForSkipsFailingCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	frames := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_frames_total", Help: "frames"})
	frames.Add(3)
	reg.MustRegister(frames)
	failing := prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
		return nil, errors.New("camera disconnected")
	})

	var logs bytes.Buffer
	handler := HTTPHandlerFor(prometheus.Gatherers{reg, failing}, slog.New(slog.NewTextHandler(&logs, nil)))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "test_frames_total 3") {
		t.Errorf("working collector missing from scrape:\n%s", w.Body.String())
	}
	if !strings.Contains(logs.String(), "camera disconnected") {
		t.Errorf("scrape error not logged: %q", logs.String())
	}
}

func TestHTTPHandlerOpenMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_buffers", Help: "buffers"}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/openmetrics-text; version=1.0.0")
	w := httptest.NewRecorder()
	HTTPHandlerFor(reg, slog.New(slog.NewTextHandler(io.Discard, nil))).ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/openmetrics-text") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasSuffix(w.Body.String(), "# EOF\n") {
		t.Errorf("body does not end with # EOF:\n%s", w.Body.String())
	}
}
