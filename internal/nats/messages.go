package nats

import (
	"encoding/json"
	"fmt"
)

// Subject prefixes for NATS topics.
const (
	SubjectCamerasPrefix = "gigecam.cameras"
	SubjectControlPrefix = "gigecam.control"
)

// SubjectFrames returns the subject frame notifications of a camera go to.
func SubjectFrames(camera string) string {
	return fmt.Sprintf("%s.%s.frames", SubjectCamerasPrefix, camera)
}

// SubjectTriggers returns the subject software trigger notifications go to.
func SubjectTriggers(camera string) string {
	return fmt.Sprintf("%s.%s.triggers", SubjectCamerasPrefix, camera)
}

// SubjectState returns the subject acquisition state changes go to.
func SubjectState(camera string) string {
	return fmt.Sprintf("%s.%s.state", SubjectCamerasPrefix, camera)
}

// SubjectControlTrigger returns the subject remote trigger requests go to.
func SubjectControlTrigger(camera string) string {
	return fmt.Sprintf("%s.%s.trigger", SubjectControlPrefix, camera)
}

// FrameMessage announces a processed frame. Pixels are not sent.
type FrameMessage struct {
	Camera    string `json:"camera"`
	Timestamp string `json:"timestamp"`
	Count     int64  `json:"count"`
	Buffer    int    `json:"buffer"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// TriggerMessage announces an executed software trigger.
type TriggerMessage struct {
	Camera    string `json:"camera"`
	Timestamp string `json:"timestamp"`
	Selector  string `json:"selector"`
	Origin    string `json:"origin"` // keyboard, remote
}

// StateMessage announces an acquisition state change.
type StateMessage struct {
	Camera    string `json:"camera"`
	Timestamp string `json:"timestamp"`
	State     string `json:"state"` // started, restarted, stopped
	Trigger   string `json:"trigger"`
	Buffers   int    `json:"buffers"`
}

// ControlMessage is a command sent to a camera process.
type ControlMessage struct {
	Action    string `json:"action"` // trigger
	Camera    string `json:"camera"`
	Timestamp string `json:"timestamp"`
	Reason    string `json:"reason,omitempty"`
}

// ControlReply answers a ControlMessage sent as a request.
type ControlReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshal[T any](data []byte) (T, error) {
	var m T
	err := json.Unmarshal(data, &m)
	return m, err
}
