package events

// Event type constants for kelindar/event.
const (
	TypeFrameProcessed uint32 = iota + 1
	TypeTriggerIssued
	TypeAcquisitionState
	TypeFeatureChanged
	TypeAcquisitionMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Acquisition states carried by AcquisitionStateEvent.
const (
	StateStarted   = "started"
	StateRestarted = "restarted"
	StateStopped   = "stopped"
)

// FrameProcessedEvent is published by the frame hook for every completed frame.
type FrameProcessedEvent struct {
	Camera    string `json:"camera" example:"sim" doc:"Camera name"`
	Count     int64  `json:"count" example:"42" doc:"Frames processed in this acquisition"`
	Buffer    int    `json:"buffer" example:"3" doc:"Index of the grab buffer that was filled"`
	Width     int    `json:"width" example:"640" doc:"Frame width in pixels"`
	Height    int    `json:"height" example:"480" doc:"Frame height in pixels"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Processing timestamp"`
}

// Type returns the event type identifier for FrameProcessedEvent.
func (e FrameProcessedEvent) Type() uint32 { return TypeFrameProcessed }

// Trigger origins carried by TriggerIssuedEvent.
const (
	OriginKeyboard = "keyboard"
	OriginRemote   = "remote"
)

// TriggerIssuedEvent is published for every software trigger executed.
type TriggerIssuedEvent struct {
	Camera    string `json:"camera" example:"sim" doc:"Camera name"`
	Selector  string `json:"selector" example:"FrameStart" doc:"Trigger selector the trigger was issued on"`
	Origin    string `json:"origin" example:"keyboard" doc:"What issued the trigger: keyboard or remote"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Trigger timestamp"`
}

// Type returns the event type identifier for TriggerIssuedEvent.
func (e TriggerIssuedEvent) Type() uint32 { return TypeTriggerIssued }

// AcquisitionStateEvent is published when a grab starts, restarts or stops.
type AcquisitionStateEvent struct {
	Camera    string `json:"camera" example:"sim" doc:"Camera name"`
	State     string `json:"state" example:"started" doc:"started, restarted or stopped"`
	Trigger   string `json:"trigger" example:"multi_frame" doc:"Configured trigger type"`
	Buffers   int    `json:"buffers" example:"10" doc:"Number of grab buffers in use"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for AcquisitionStateEvent.
func (e AcquisitionStateEvent) Type() uint32 { return TypeAcquisitionState }

// FeatureChangedEvent is published when a feature is written through the API.
type FeatureChangedEvent struct {
	Camera    string `json:"camera" example:"sim" doc:"Camera name"`
	Feature   string `json:"feature" example:"ExposureTime" doc:"Feature name"`
	Value     string `json:"value" example:"5000" doc:"Value written"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for FeatureChangedEvent.
func (e FeatureChangedEvent) Type() uint32 { return TypeFeatureChanged }

// AcquisitionMetricsEvent carries periodic acquisition counters.
type AcquisitionMetricsEvent struct {
	EventType string `json:"type"`
	Camera    string `json:"camera"`
	FPS       string `json:"fps"`
	Frames    string `json:"frames"`
	Triggers  string `json:"triggers"`
	Missing   string `json:"missing_packets"`
}

// Type returns the event type identifier for AcquisitionMetricsEvent.
func (e AcquisitionMetricsEvent) Type() uint32 { return TypeAcquisitionMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"api" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
