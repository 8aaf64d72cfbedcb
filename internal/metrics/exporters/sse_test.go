package exporters

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/metrics"
)

type mockEventBus struct {
	mu        sync.Mutex
	events    []events.Event
	published chan struct{}
}

func newMockEventBus() *mockEventBus {
	return &mockEventBus{
		events:    make([]events.Event, 0),
		published: make(chan struct{}, 100),
	}
}

func (m *mockEventBus) Publish(ev events.Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	select {
	case m.published <- struct{}{}:
	default:
	}
}

func (m *mockEventBus) getEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]events.Event, len(m.events))
	copy(result, m.events)
	return result
}

func TestSSEExporterPublishesMetrics(t *testing.T) {
	camera := "sse-test-cam"
	metrics.DeleteAcquisitionMetrics(camera)

	metrics.SetAcquisitionActive(camera, true)
	metrics.RecordTrigger(camera, "FrameStart")
	metrics.AddMissingPackets(camera, 5)
	metrics.RecordFrame(camera, time.Unix(10, 0))
	metrics.RecordFrame(camera, time.Unix(10, int64(100*time.Millisecond)))

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	// Wait for at least one publish cycle
	select {
	case <-mock.published:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for metrics publish")
	}

	cancel()
	exporter.Stop()

	var found bool
	for _, ev := range mock.getEvents() {
		if ame, ok := ev.(events.AcquisitionMetricsEvent); ok && ame.Camera == camera {
			found = true
			if ame.FPS != "10.00" {
				t.Errorf("FPS = %q, want \"10.00\"", ame.FPS)
			}
			if ame.Frames != "2" || ame.Triggers != "1" || ame.Missing != "5" {
				t.Errorf("event = %+v", ame)
			}
			break
		}
	}

	if !found {
		t.Error("expected AcquisitionMetricsEvent for test camera")
	}

	metrics.DeleteAcquisitionMetrics(camera)
}

func TestSSEExporterNoMetrics(t *testing.T) {
	// An idle camera is not published.
	testCamera := "sse-idle-test"
	metrics.SetGrabBuffers(testCamera, 3)
	defer metrics.DeleteAcquisitionMetrics(testCamera)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	exporter.Start(ctx)

	// Wait for at least one publish cycle
	time.Sleep(50 * time.Millisecond)

	cancel()
	exporter.Stop()

	for _, ev := range mock.getEvents() {
		if ame, ok := ev.(events.AcquisitionMetricsEvent); ok && ame.Camera == testCamera {
			t.Error("expected no events for idle camera")
		}
	}
}

func TestSSEExporterStopIdempotent(t *testing.T) {
	camera := "sse-idempotent-test"
	metrics.SetAcquisitionActive(camera, true)
	defer metrics.DeleteAcquisitionMetrics(camera)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	ctx := context.Background()
	exporter.Start(ctx)

	// Let it run briefly
	time.Sleep(30 * time.Millisecond)

	// Stop multiple times
	exporter.Stop()
	exporter.Stop()
	exporter.Stop()

	// Record event count after stops
	countAfterStop := len(mock.getEvents())

	// Wait and verify no new events after stop
	time.Sleep(30 * time.Millisecond)
	countAfterWait := len(mock.getEvents())

	if countAfterWait != countAfterStop {
		t.Errorf("events published after stop: got %d, want %d", countAfterWait, countAfterStop)
	}
}

func TestSSEExporterStopBeforeStart(t *testing.T) {
	camera := "sse-stop-before-start-test"
	metrics.SetAcquisitionActive(camera, true)
	defer metrics.DeleteAcquisitionMetrics(camera)

	mock := newMockEventBus()
	exporter := NewSSEExporter(mock)
	exporter.interval = 10 * time.Millisecond

	// Stop before start should not panic
	exporter.Stop()

	// Should still be able to start and function normally
	ctx := t.Context()
	exporter.Start(ctx)

	// Wait for publish cycle
	time.Sleep(30 * time.Millisecond)
	exporter.Stop()

	// Verify events were published after start
	if len(mock.getEvents()) == 0 {
		t.Error("expected events after Start(), got none")
	}
}

func TestGetEventTypes(t *testing.T) {
	types := GetEventTypes()
	if _, ok := types["acquisition-metrics"]; !ok {
		t.Error("expected acquisition-metrics event type")
	}
}

func TestGetEventTypesForEndpoint(t *testing.T) {
	types := GetEventTypesForEndpoint("events")
	if _, ok := types["acquisition-metrics"]; !ok {
		t.Error("expected acquisition-metrics for events endpoint")
	}

	types = GetEventTypesForEndpoint("metrics")
	if _, ok := types["acquisition-metrics"]; !ok {
		t.Error("expected acquisition-metrics for metrics endpoint")
	}

	types = GetEventTypesForEndpoint("unknown")
	if len(types) != 0 {
		t.Error("expected empty map for unknown endpoint")
	}
}

func TestGetEventRoutes(t *testing.T) {
	routes := GetEventRoutes()
	got := routes["acquisition-metrics"]
	if len(got) != 2 || got[0] != "events" || got[1] != "metrics" {
		t.Errorf("acquisition-metrics routes = %v, want [events metrics]", got)
	}
}
