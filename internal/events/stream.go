package events

import "github.com/kelindar/event"

// Kind selects a family of camera events for SubscribeCamera.
type Kind uint8

// Camera event kinds.
const (
	KindFrames Kind = 1 << iota
	KindTriggers
	KindState
	KindFeatures
	KindMetrics

	KindAll = KindFrames | KindTriggers | KindState | KindFeatures | KindMetrics
)

// SubscribeToChannel forwards every event of type T to ch. Events are
// dropped while ch is full so a slow stream never blocks the publisher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return forward(bus, ch, func(T) bool { return true })
}

func forward[T Event](bus *Bus, ch chan<- any, keep func(T) bool) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		if !keep(e) {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})
}

// SubscribeCamera forwards the camera events of the given kinds to ch.
// A non-empty camera only lets that camera's events through. The returned
// func removes every subscription it made.
func SubscribeCamera(bus *Bus, ch chan<- any, kinds Kind, camera string) func() {
	match := func(name string) bool { return camera == "" || name == camera }

	var unsubs []func()
	if kinds&KindFrames != 0 {
		unsubs = append(unsubs, forward(bus, ch, func(e FrameProcessedEvent) bool { return match(e.Camera) }))
	}
	if kinds&KindTriggers != 0 {
		unsubs = append(unsubs, forward(bus, ch, func(e TriggerIssuedEvent) bool { return match(e.Camera) }))
	}
	if kinds&KindState != 0 {
		unsubs = append(unsubs, forward(bus, ch, func(e AcquisitionStateEvent) bool { return match(e.Camera) }))
	}
	if kinds&KindFeatures != 0 {
		unsubs = append(unsubs, forward(bus, ch, func(e FeatureChangedEvent) bool { return match(e.Camera) }))
	}
	if kinds&KindMetrics != 0 {
		unsubs = append(unsubs, forward(bus, ch, func(e AcquisitionMetricsEvent) bool { return match(e.Camera) }))
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// Name returns the stream name of a camera event, or "" for anything else.
func Name(ev any) string {
	switch ev.(type) {
	case FrameProcessedEvent:
		return "frame-processed"
	case TriggerIssuedEvent:
		return "trigger-issued"
	case AcquisitionStateEvent:
		return "acquisition-state"
	case FeatureChangedEvent:
		return "feature-changed"
	case AcquisitionMetricsEvent:
		return "acquisition-metrics"
	}
	return ""
}
