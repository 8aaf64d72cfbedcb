package nats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/gigecam/internal/events"
)

// Publisher is the part of the event bus the bridge feeds.
type Publisher interface {
	Publish(events.Event)
}

// Bridge subscribes to the camera subjects of every camera on a NATS
// server and republishes the messages as events on a local bus.
type Bridge struct {
	url    string
	bus    Publisher
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
	mu     sync.Mutex
}

// NewBridge creates a NATS-to-bus bridge.
func NewBridge(url string, bus Publisher, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		url:    url,
		bus:    bus,
		logger: logger.With("component", "nats-bridge"),
	}
}

// Start connects and subscribes to all camera subjects.
func (b *Bridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	conn, err := nats.Connect(b.url,
		nats.Name("gigecam-bridge"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn("NATS bridge disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return err
	}
	b.conn = conn

	handlers := map[string]nats.MsgHandler{
		SubjectCamerasPrefix + ".*.frames":   b.handleFrame,
		SubjectCamerasPrefix + ".*.triggers": b.handleTrigger,
		SubjectCamerasPrefix + ".*.state":    b.handleState,
	}
	for subject, h := range handlers {
		sub, err := conn.Subscribe(subject, h)
		if err != nil {
			b.cleanup()
			return err
		}
		b.subs = append(b.subs, sub)
	}
	// Subscriptions must reach the server before Start returns.
	if err := conn.Flush(); err != nil {
		b.cleanup()
		return err
	}

	b.logger.Info("NATS bridge subscribed to camera subjects", "url", b.url)
	return nil
}

func (b *Bridge) handleFrame(msg *nats.Msg) {
	m, err := unmarshal[FrameMessage](msg.Data)
	if err != nil {
		b.logger.Warn("Failed to unmarshal frame message", "error", err, "subject", msg.Subject)
		return
	}
	b.bus.Publish(events.FrameProcessedEvent{
		Camera: m.Camera, Count: m.Count, Buffer: m.Buffer,
		Width: m.Width, Height: m.Height, Timestamp: m.Timestamp,
	})
}

func (b *Bridge) handleTrigger(msg *nats.Msg) {
	m, err := unmarshal[TriggerMessage](msg.Data)
	if err != nil {
		b.logger.Warn("Failed to unmarshal trigger message", "error", err, "subject", msg.Subject)
		return
	}
	b.bus.Publish(events.TriggerIssuedEvent{
		Camera: m.Camera, Selector: m.Selector, Origin: m.Origin, Timestamp: m.Timestamp,
	})
}

func (b *Bridge) handleState(msg *nats.Msg) {
	m, err := unmarshal[StateMessage](msg.Data)
	if err != nil {
		b.logger.Warn("Failed to unmarshal state message", "error", err, "subject", msg.Subject)
		return
	}
	b.bus.Publish(events.AcquisitionStateEvent{
		Camera: m.Camera, State: m.State, Trigger: m.Trigger,
		Buffers: m.Buffers, Timestamp: m.Timestamp,
	})
}

func (b *Bridge) cleanup() {
	for _, sub := range b.subs {
		_ = sub.Unsubscribe()
	}
	b.subs = nil
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// Stop closes the bridge connection.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleanup()
}

// IsConnected reports whether the bridge is connected.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil && b.conn.IsConnected()
}
