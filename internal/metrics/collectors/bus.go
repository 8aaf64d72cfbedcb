// Package collectors feeds the acquisition metrics from runtime sources.
package collectors

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/logging"
	"github.com/smazurov/gigecam/internal/metrics"
)

// Subscriber is satisfied by *events.Bus.
type Subscriber interface {
	Subscribe(handler any) func()
}

// BusCollector turns bus events into acquisition metrics.
type BusCollector struct {
	bus    Subscriber
	logger logging.Logger
	cancel context.CancelFunc
	mu     sync.Mutex
	unsubs []func()
}

// NewBusCollector creates a collector reading from bus.
func NewBusCollector(bus Subscriber) *BusCollector {
	return &BusCollector{
		bus:    bus,
		logger: logging.GetLogger("metrics"),
	}
}

// Start subscribes to frame, trigger and acquisition state events.
// The subscriptions are dropped when ctx is cancelled or Stop is called.
func (c *BusCollector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unsubs = append(c.unsubs,
		c.bus.Subscribe(c.onFrame),
		c.bus.Subscribe(c.onTrigger),
		c.bus.Subscribe(c.onState),
	)

	ctx, c.cancel = context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		c.unsubscribe()
	}()
	c.logger.Debug("Collecting acquisition metrics from event bus")
	return nil
}

// Stop removes the bus subscriptions.
func (c *BusCollector) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.unsubscribe()
	return nil
}

func (c *BusCollector) unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}

func (c *BusCollector) onFrame(e events.FrameProcessedEvent) {
	metrics.RecordFrame(e.Camera, parseTime(e.Timestamp))
}

func (c *BusCollector) onTrigger(e events.TriggerIssuedEvent) {
	metrics.RecordTrigger(e.Camera, e.Selector)
}

func (c *BusCollector) onState(e events.AcquisitionStateEvent) {
	switch e.State {
	case events.StateStarted, events.StateRestarted:
		metrics.SetAcquisitionActive(e.Camera, true)
		metrics.SetGrabBuffers(e.Camera, e.Buffers)
	case events.StateStopped:
		metrics.SetAcquisitionActive(e.Camera, false)
		metrics.SetGrabBuffers(e.Camera, 0)
	}
}

func parseTime(ts string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Now()
	}
	return t
}
