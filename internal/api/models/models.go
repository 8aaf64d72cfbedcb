// Package models holds the request and response bodies of the HTTP API.
package models

import (
	"github.com/smazurov/gigecam/internal/features"
	"github.com/smazurov/gigecam/internal/report"
	"github.com/smazurov/gigecam/internal/store"
	"github.com/smazurov/gigecam/internal/version"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
	Camera  string `json:"camera" example:"sim" doc:"Name of the open camera"`
	System  string `json:"system" example:"GigEVision" doc:"System type of the open camera"`
}

type HealthResponse struct {
	Body HealthData
}

type VersionResponse struct {
	Body version.Info
}

// Feature models
type FeatureData struct {
	Name      string   `json:"name" example:"ExposureTime" doc:"SFNC feature name"`
	Type      string   `json:"type" example:"float" doc:"Feature type: string, int, float, bool, enum or command"`
	Available bool     `json:"available" doc:"False when the camera does not implement the feature"`
	Value     string   `json:"value,omitempty" example:"10000" doc:"Current value as text"`
	Min       string   `json:"min,omitempty" example:"20" doc:"Minimum of a numeric feature"`
	Max       string   `json:"max,omitempty" example:"1000000" doc:"Maximum of a numeric feature"`
	Entries   []string `json:"entries,omitempty" doc:"Entries of an enumeration"`
	Error     string   `json:"error,omitempty" doc:"Why the value could not be read"`
}

type FeatureResponse struct {
	Body FeatureData
}

type FeatureListData struct {
	Features []FeatureData `json:"features" doc:"Features of the camera summary"`
	Count    int           `json:"count" example:"42" doc:"Number of features"`
}

type FeatureListResponse struct {
	Body FeatureListData
}

type FeatureNameInput struct {
	Name string `path:"name" example:"ExposureTime" doc:"SFNC feature name"`
}

type FeatureWriteInput struct {
	Name string `path:"name" example:"ExposureTime" doc:"SFNC feature name"`
	Body struct {
		Value string `json:"value" example:"5000" doc:"New value as text; parsed according to the feature type"`
	}
}

type FeatureSetResponse struct {
	Body features.Set
}

type FeatureSetInput struct {
	Body features.Set
}

type FeatureSetApplyData struct {
	Applied int      `json:"applied" example:"14" doc:"Number of values written"`
	Errors  []string `json:"errors,omitempty" doc:"Values that could not be written"`
}

type FeatureSetApplyResponse struct {
	Body FeatureSetApplyData
}

// Capability models
type CapabilityListData struct {
	Capabilities []report.Capability `json:"capabilities" doc:"Decoded GigE Vision capability registers"`
}

type CapabilityListResponse struct {
	Body CapabilityListData
}

// Acquisition models
type TriggerData struct {
	Status string `json:"status" example:"ok" doc:"Trigger status"`
}

type TriggerResponse struct {
	Body TriggerData
}

type RunListInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"1000" doc:"Maximum number of runs"`
}

type RunListData struct {
	Runs  []store.Run `json:"runs" doc:"Triggered acquisition runs, newest first"`
	Count int         `json:"count" example:"3" doc:"Number of runs returned"`
}

type RunListResponse struct {
	Body RunListData
}

type RunInput struct {
	ID int64 `path:"id" example:"1" doc:"Run identifier"`
}

type RunResponse struct {
	Body store.Run
}

// Log models
type LogListInput struct {
	Module string `query:"module" example:"acquire" doc:"Only entries of this module"`
	Level  string `query:"level" enum:"debug,info,warn,error," doc:"Minimum level"`
}

type LogEntryData struct {
	Timestamp  string         `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"acquire" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured attributes"`
}

type LogListResponse struct {
	Body struct {
		Entries []LogEntryData `json:"entries" doc:"Buffered log entries, oldest first"`
	}
}
