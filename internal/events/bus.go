package events

import (
	"github.com/kelindar/event"
)

// Bus carries camera and log events between the grab loop, the API
// streams, the NATS client and the run journal. Delivery is asynchronous.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish delivers ev to the subscribers of its concrete type. Types the
// bus does not carry are ignored.
func (b *Bus) Publish(ev Event) {
	switch e := ev.(type) {
	case FrameProcessedEvent:
		event.Publish(b.dispatcher, e)
	case TriggerIssuedEvent:
		event.Publish(b.dispatcher, e)
	case AcquisitionStateEvent:
		event.Publish(b.dispatcher, e)
	case FeatureChangedEvent:
		event.Publish(b.dispatcher, e)
	case AcquisitionMetricsEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers handler, a func taking one of the bus's event types,
// and returns the func that removes it. Any other handler is never called.
//
//	stop := bus.Subscribe(func(e TriggerIssuedEvent) { ... })
//	defer stop()
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(FrameProcessedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(TriggerIssuedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(AcquisitionStateEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(FeatureChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(AcquisitionMetricsEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	}
	return func() {}
}
