package exporters

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter publishes acquisition metrics for each camera once per interval.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus: eventBus,
		interval: 1 * time.Second,
	}
}

// Start begins the SSE export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run()
}

// Stop stops the SSE exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.publishMetrics()
		}
	}
}

func (s *SSEExporter) publishMetrics() {
	for camera, m := range metrics.GetAllAcquisitionMetrics() {
		if !m.Active {
			continue
		}
		s.eventBus.Publish(events.AcquisitionMetricsEvent{
			EventType: "acquisition_metrics",
			Camera:    camera,
			FPS:       strconv.FormatFloat(m.FPS, 'f', 2, 64),
			Frames:    strconv.FormatFloat(m.Frames, 'f', 0, 64),
			Triggers:  strconv.FormatFloat(m.Triggers, 'f', 0, 64),
			Missing:   strconv.FormatFloat(m.MissingPackets, 'f', 0, 64),
		})
	}
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"acquisition-metrics": events.AcquisitionMetricsEvent{},
	}
}

// GetEventTypesForEndpoint returns the event types routed to an SSE
// endpoint.
func GetEventTypesForEndpoint(endpoint string) map[string]any {
	all := GetEventTypes()
	out := map[string]any{}
	for name, endpoints := range GetEventRoutes() {
		if slices.Contains(endpoints, endpoint) {
			out[name] = all[name]
		}
	}
	return out
}

// GetEventRoutes returns the SSE endpoints each event type is sent on.
func GetEventRoutes() map[string][]string {
	return map[string][]string{
		"acquisition-metrics": {"events", "metrics"},
	}
}
