package collectors

import (
	"context"
	"testing"
	"time"

	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/metrics"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBusCollectorRecordsEvents(t *testing.T) {
	camera := "collector-cam"
	metrics.DeleteAcquisitionMetrics(camera)
	defer metrics.DeleteAcquisitionMetrics(camera)

	bus := events.New()
	c := NewBusCollector(bus)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop()

	bus.Publish(events.AcquisitionStateEvent{Camera: camera, State: events.StateStarted, Buffers: 10})
	for i := range 3 {
		bus.Publish(events.FrameProcessedEvent{
			Camera:    camera,
			Count:     int64(i + 1),
			Timestamp: time.Unix(100, int64(i)*int64(100*time.Millisecond)).Format(time.RFC3339Nano),
		})
	}
	bus.Publish(events.TriggerIssuedEvent{Camera: camera, Selector: "FrameStart", Origin: events.OriginKeyboard})

	waitFor(t, func() bool {
		m := metrics.GetAcquisitionMetrics(camera)
		return m != nil && m.Frames == 3 && m.Triggers == 1 && m.Buffers == 10 && m.Active
	})

	bus.Publish(events.AcquisitionStateEvent{Camera: camera, State: events.StateStopped})
	waitFor(t, func() bool {
		m := metrics.GetAcquisitionMetrics(camera)
		return !m.Active && m.Buffers == 0
	})
}

func TestBusCollectorStopUnsubscribes(t *testing.T) {
	camera := "collector-stop"
	metrics.DeleteAcquisitionMetrics(camera)
	defer metrics.DeleteAcquisitionMetrics(camera)

	bus := events.New()
	c := NewBusCollector(bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = c.Start(ctx)
	_ = c.Stop()
	_ = c.Stop()

	bus.Publish(events.TriggerIssuedEvent{Camera: camera, Selector: "AcquisitionStart"})
	time.Sleep(20 * time.Millisecond)
	if m := metrics.GetAcquisitionMetrics(camera); m != nil {
		t.Errorf("metrics recorded after Stop: %+v", m)
	}
}
