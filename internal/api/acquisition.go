package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/gigecam/internal/acquire"
	"github.com/smazurov/gigecam/internal/api/models"
	"github.com/smazurov/gigecam/internal/store"
)

// registerAcquisitionRoutes registers the remote trigger and run journal
// endpoints.
func (s *Server) registerAcquisitionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "software-trigger",
		Method:      http.MethodPost,
		Path:        "/api/trigger",
		Summary:     "Software Trigger",
		Description: "Fire one software trigger on the running triggered acquisition",
		Tags:        []string{"acquisition"},
		Errors:      []int{401, 409, 500, 503},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.TriggerResponse, error) {
		if s.options.Trigger == nil {
			return nil, huma.Error503ServiceUnavailable("remote triggering is not available")
		}
		if err := s.options.Trigger(); err != nil {
			if errors.Is(err, acquire.ErrNotArmed) {
				return nil, huma.Error409Conflict(err.Error(), err)
			}
			return nil, huma.Error500InternalServerError("trigger failed", err)
		}
		return &models.TriggerResponse{Body: models.TriggerData{Status: "ok"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-runs",
		Method:      http.MethodGet,
		Path:        "/api/runs",
		Summary:     "List Runs",
		Description: "Get the journal of triggered acquisition runs, newest first",
		Tags:        []string{"acquisition"},
		Errors:      []int{401, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.RunListInput) (*models.RunListResponse, error) {
		if s.options.Journal == nil {
			return nil, huma.Error503ServiceUnavailable("run journal is disabled")
		}
		runs, err := s.options.Journal.Runs(ctx, s.options.CameraName, input.Limit)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to read runs", err)
		}
		if runs == nil {
			runs = []store.Run{}
		}
		return &models.RunListResponse{Body: models.RunListData{Runs: runs, Count: len(runs)}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-run",
		Method:      http.MethodGet,
		Path:        "/api/runs/{id}",
		Summary:     "Get Run",
		Description: "Get one triggered acquisition run",
		Tags:        []string{"acquisition"},
		Errors:      []int{401, 404, 500, 503},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.RunInput) (*models.RunResponse, error) {
		if s.options.Journal == nil {
			return nil, huma.Error503ServiceUnavailable("run journal is disabled")
		}
		run, err := s.options.Journal.Run(ctx, input.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, huma.Error404NotFound(err.Error(), err)
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to read run", err)
		}
		return &models.RunResponse{Body: run}, nil
	})
}
