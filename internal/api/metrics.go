package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/metrics/exporters"
)

// MetricsStreamInput selects whose counters /api/metrics streams.
type MetricsStreamInput struct {
	Camera string `query:"camera" example:"sim" doc:"Only stream this camera's counters; all cameras when empty"`
}

// registerMetricsRoutes registers the periodic acquisition counter stream.
func (s *Server) registerMetricsRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "metrics-stream",
		Method:      http.MethodGet,
		Path:        "/api/metrics",
		Summary:     "Acquisition Metrics Stream",
		Description: "Frame rate, frame, trigger and missing packet counters, sent while a grab runs",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, exporters.GetEventTypesForEndpoint("metrics"), func(ctx context.Context, input *MetricsStreamInput, send sse.Sender) {
		counters := make(chan any, 10)
		unsubscribe := events.SubscribeCamera(s.eventBus, counters, events.KindMetrics, input.Camera)
		defer unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case m := <-counters:
				if err := send.Data(m); err != nil {
					return
				}
			}
		}
	})
}
