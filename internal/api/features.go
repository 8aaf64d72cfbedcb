package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/gigecam/internal/api/models"
	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/features"
	"github.com/smazurov/gigecam/internal/report"
	"github.com/smazurov/gigecam/pkg/genicam"
)

// summaryFeatures are the features listed by GET /api/features, in the
// order the console summary prints them.
var summaryFeatures = []string{
	genicam.DeviceVendorName, genicam.DeviceModelName, genicam.DeviceVersion,
	genicam.DeviceID, genicam.DeviceUserID, genicam.DeviceScanType,
	genicam.GevVersionMajor, genicam.GevVersionMinor, genicam.GevMACAddress,
	genicam.GevCurrentIPAddress, genicam.GevSCPSPacketSize,
	genicam.SensorWidth, genicam.SensorHeight, genicam.Width, genicam.Height,
	genicam.OffsetX, genicam.OffsetY, genicam.ReverseX, genicam.ReverseY, genicam.PixelFormat,
	genicam.AcquisitionMode, genicam.AcquisitionFrameCount, genicam.AcquisitionFrameRate,
	genicam.TriggerSelector, genicam.TriggerMode, genicam.TriggerSource,
	genicam.ExposureMode, genicam.ExposureTime,
	genicam.EventSelector, genicam.LineSelector, genicam.LineMode, genicam.LineFormat,
	genicam.CounterSelector, genicam.CounterStatus, genicam.TimerSelector, genicam.TimerStatus,
	genicam.LUTSelector,
}

// describe inspects a feature's type, value, bounds and entries.
func (s *Server) describe(name string) models.FeatureData {
	dev := s.options.Camera
	data := models.FeatureData{Name: name}

	typ, err := dev.FeatureType(name)
	if err != nil {
		data.Type = genicam.TypeUnknown.String()
		if !errors.Is(err, genicam.ErrNotFound) {
			data.Error = err.Error()
		}
		return data
	}
	data.Type = typ.String()
	data.Available = true

	if typ != genicam.TypeCommand {
		if v, _, err := features.Read(dev, name); err != nil {
			data.Error = err.Error()
		} else {
			data.Value = v
		}
	}

	switch typ {
	case genicam.TypeInt:
		if v, err := dev.Int(genicam.QueryMin, name); err == nil {
			data.Min = strconv.FormatInt(v, 10)
		}
		if v, err := dev.Int(genicam.QueryMax, name); err == nil {
			data.Max = strconv.FormatInt(v, 10)
		}
	case genicam.TypeFloat:
		if v, err := dev.Float(genicam.QueryMin, name); err == nil {
			data.Min = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if v, err := dev.Float(genicam.QueryMax, name); err == nil {
			data.Max = strconv.FormatFloat(v, 'g', -1, 64)
		}
	case genicam.TypeEnum:
		data.Entries, _ = dev.EnumEntries(name)
	}
	return data
}

// mapFeatureError maps feature errors to HTTP errors.
func (s *Server) mapFeatureError(err error) error {
	switch {
	case errors.Is(err, genicam.ErrNotFound):
		return huma.Error404NotFound(err.Error(), err)
	case errors.Is(err, genicam.ErrAccess):
		return huma.Error403Forbidden(err.Error(), err)
	case errors.Is(err, genicam.ErrType), errors.Is(err, genicam.ErrRange):
		return huma.Error422UnprocessableEntity(err.Error(), err)
	default:
		return huma.Error500InternalServerError("internal server error", err)
	}
}

func (s *Server) publishChange(name, value string) {
	s.eventBus.Publish(events.FeatureChangedEvent{
		Camera:    s.options.CameraName,
		Feature:   name,
		Value:     value,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
}

// registerFeatureRoutes registers the feature browser endpoints.
func (s *Server) registerFeatureRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-features",
		Method:      http.MethodGet,
		Path:        "/api/features",
		Summary:     "List Features",
		Description: "Get the values of the features shown in the camera summary",
		Tags:        []string{"features"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.FeatureListResponse, error) {
		list := make([]models.FeatureData, 0, len(summaryFeatures))
		for _, name := range summaryFeatures {
			list = append(list, s.describe(name))
		}
		return &models.FeatureListResponse{
			Body: models.FeatureListData{Features: list, Count: len(list)},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-feature",
		Method:      http.MethodGet,
		Path:        "/api/features/{name}",
		Summary:     "Get Feature",
		Description: "Get the type, value, bounds and entries of a feature",
		Tags:        []string{"features"},
		Errors:      []int{401, 404},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.FeatureNameInput) (*models.FeatureResponse, error) {
		data := s.describe(input.Name)
		if !data.Available {
			return nil, huma.Error404NotFound("feature not found: " + input.Name)
		}
		return &models.FeatureResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-feature",
		Method:      http.MethodPut,
		Path:        "/api/features/{name}",
		Summary:     "Set Feature",
		Description: "Write a feature value given as text",
		Tags:        []string{"features"},
		Errors:      []int{401, 403, 404, 422, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.FeatureWriteInput) (*models.FeatureResponse, error) {
		if typ, err := s.options.Camera.FeatureType(input.Name); err == nil && typ == genicam.TypeCommand {
			return nil, huma.Error422UnprocessableEntity("commands are executed with POST /api/features/{name}/execute")
		}
		if err := features.Write(s.options.Camera, input.Name, input.Body.Value); err != nil {
			return nil, s.mapFeatureError(err)
		}
		data := s.describe(input.Name)
		s.publishChange(input.Name, data.Value)
		s.logger.Info("Feature written", "feature", input.Name, "value", data.Value)
		return &models.FeatureResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "execute-feature",
		Method:      http.MethodPost,
		Path:        "/api/features/{name}/execute",
		Summary:     "Execute Command",
		Description: "Execute a command feature",
		Tags:        []string{"features"},
		Errors:      []int{401, 403, 404, 422, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.FeatureNameInput) (*struct{}, error) {
		typ, err := s.options.Camera.FeatureType(input.Name)
		if err != nil {
			return nil, s.mapFeatureError(err)
		}
		if typ != genicam.TypeCommand {
			return nil, huma.Error422UnprocessableEntity(input.Name + " is not a command")
		}
		if err := s.options.Camera.Execute(input.Name); err != nil {
			return nil, s.mapFeatureError(err)
		}
		s.publishChange(input.Name, "")
		return &struct{}{}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-feature-set",
		Method:      http.MethodGet,
		Path:        "/api/feature-set",
		Summary:     "Capture Feature Set",
		Description: "Capture the user-settable features into a feature set",
		Tags:        []string{"features"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.FeatureSetResponse, error) {
		set, err := features.Capture(s.options.Camera, features.Persistent, s.logger)
		if set == nil {
			return nil, huma.Error500InternalServerError("capture failed", err)
		}
		if err != nil {
			s.logger.Warn("Feature set captured with errors", "error", err)
		}
		return &models.FeatureSetResponse{Body: *set}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "apply-feature-set",
		Method:      http.MethodPut,
		Path:        "/api/feature-set",
		Summary:     "Apply Feature Set",
		Description: "Write every value of a feature set; failures are reported per value",
		Tags:        []string{"features"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.FeatureSetInput) (*models.FeatureSetApplyResponse, error) {
		applied, err := features.Apply(s.options.Camera, &input.Body, s.logger)
		resp := &models.FeatureSetApplyResponse{Body: models.FeatureSetApplyData{Applied: applied}}
		if err != nil {
			if joined, ok := err.(interface{ Unwrap() []error }); ok {
				for _, e := range joined.Unwrap() {
					resp.Body.Errors = append(resp.Body.Errors, e.Error())
				}
			} else {
				resp.Body.Errors = []string{err.Error()}
			}
		}
		for _, v := range input.Body.Features {
			s.publishChange(v.Key(), v.Value)
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-capabilities",
		Method:      http.MethodGet,
		Path:        "/api/capabilities",
		Summary:     "Capabilities",
		Description: "Get the decoded GigE Vision capability and configuration registers",
		Tags:        []string{"features"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.CapabilityListResponse, error) {
		return &models.CapabilityListResponse{
			Body: models.CapabilityListData{Capabilities: report.DecodeCapabilities(s.options.Camera)},
		}, nil
	})
}
