package api

import (
	"context"
	"maps"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/metrics/exporters"
)

// ConnectedEvent is the first message of every event stream.
type ConnectedEvent struct {
	Camera    string `json:"camera" example:"sim" doc:"Camera name"`
	Message   string `json:"message" example:"SSE connection established"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z"`
}

// registerSSERoutes registers the acquisition event stream.
func (s *Server) registerSSERoutes() {
	eventTypes := map[string]any{
		"connected":         ConnectedEvent{},
		"frame-processed":   events.FrameProcessedEvent{},
		"trigger-issued":    events.TriggerIssuedEvent{},
		"acquisition-state": events.AcquisitionStateEvent{},
		"feature-changed":   events.FeatureChangedEvent{},
	}
	maps.Copy(eventTypes, exporters.GetEventTypesForEndpoint("events"))

	sse.Register(s.api, huma.Operation{
		OperationID: "events-stream",
		Method:      http.MethodGet,
		Path:        "/api/events",
		Summary:     "Server-Sent Events Stream",
		Description: "Real-time stream of processed frames, software triggers, acquisition state and feature writes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, eventTypes, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		eventCh := make(chan any, 32)

		unsubscribe := events.SubscribeCamera(s.eventBus, eventCh, events.KindAll, "")
		defer unsubscribe()

		if err := send.Data(ConnectedEvent{
			Camera:    s.options.CameraName,
			Message:   "SSE connection established",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
