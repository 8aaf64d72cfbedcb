package nats

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/smazurov/gigecam/internal/events"
)

// Subscriber is the part of the event bus the client forwards from.
type Subscriber interface {
	Subscribe(handler any) func()
}

// CameraClient publishes a camera's acquisition events to NATS and accepts
// remote trigger requests. It degrades to a no-op when NATS is unreachable.
type CameraClient struct {
	url       string
	camera    string
	conn      *nats.Conn
	sub       *nats.Subscription
	logger    *slog.Logger
	mu        sync.RWMutex
	onTrigger func() error
	connected bool
}

// NewCameraClient creates a client for the camera named camera.
func NewCameraClient(url, camera string, logger *slog.Logger) *CameraClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &CameraClient{
		url:    url,
		camera: camera,
		logger: logger.With("component", "nats-client", "camera", camera),
	}
}

// Connect dials the server. On failure the client stays usable offline.
func (c *CameraClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts := []nats.Option{
		nats.Name("gigecam-" + c.camera),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.mu.Lock()
			c.connected = false
			c.mu.Unlock()
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			c.mu.Lock()
			c.connected = true
			c.mu.Unlock()
			c.logger.Info("NATS reconnected")
		}),
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		c.logger.Warn("Failed to connect to NATS, running in offline mode", "error", err)
		return err
	}
	c.conn = conn
	c.connected = true
	c.logger.Info("Connected to NATS", "url", c.url)

	c.subscribeControlLocked()
	return nil
}

// subscribeControlLocked subscribes to remote triggers (must hold lock).
func (c *CameraClient) subscribeControlLocked() {
	if c.conn == nil || c.onTrigger == nil || c.sub != nil {
		return
	}
	sub, err := c.conn.Subscribe(SubjectControlTrigger(c.camera), c.handleControl)
	if err != nil {
		c.logger.Warn("Failed to subscribe to control commands", "error", err)
		return
	}
	c.sub = sub
	if err := c.conn.Flush(); err != nil {
		c.logger.Warn("Failed to flush control subscription", "error", err)
	}
}

func (c *CameraClient) handleControl(msg *nats.Msg) {
	ctrl, err := unmarshal[ControlMessage](msg.Data)
	reply := ControlReply{OK: true}
	switch {
	case err != nil:
		reply = ControlReply{Error: "malformed control message: " + err.Error()}
	case ctrl.Action != "trigger":
		reply = ControlReply{Error: fmt.Sprintf("unknown action %q", ctrl.Action)}
	default:
		c.mu.RLock()
		fn := c.onTrigger
		c.mu.RUnlock()
		if err := fn(); err != nil {
			reply = ControlReply{Error: err.Error()}
		}
		c.logger.Info("Remote trigger", "reason", ctrl.Reason, "ok", reply.OK)
	}

	if msg.Reply == "" {
		return
	}
	data, err := marshal(reply)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		c.logger.Warn("Failed to answer control request", "error", err)
	}
}

// OnTrigger sets the function run for remote trigger requests.
func (c *CameraClient) OnTrigger(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTrigger = fn
	c.subscribeControlLocked()
}

// Attach forwards frame, trigger and state events of this camera from bus
// to NATS until the returned function is called.
func (c *CameraClient) Attach(bus Subscriber) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.FrameProcessedEvent) {
			if e.Camera != c.camera {
				return
			}
			c.publish(SubjectFrames(c.camera), FrameMessage{
				Camera: e.Camera, Timestamp: e.Timestamp, Count: e.Count,
				Buffer: e.Buffer, Width: e.Width, Height: e.Height,
			})
		}),
		bus.Subscribe(func(e events.TriggerIssuedEvent) {
			if e.Camera != c.camera {
				return
			}
			c.publish(SubjectTriggers(c.camera), TriggerMessage{
				Camera: e.Camera, Timestamp: e.Timestamp, Selector: e.Selector, Origin: e.Origin,
			})
		}),
		bus.Subscribe(func(e events.AcquisitionStateEvent) {
			if e.Camera != c.camera {
				return
			}
			c.publish(SubjectState(c.camera), StateMessage{
				Camera: e.Camera, Timestamp: e.Timestamp, State: e.State,
				Trigger: e.Trigger, Buffers: e.Buffers,
			})
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// publish is a no-op while disconnected.
func (c *CameraClient) publish(subject string, msg any) {
	c.mu.RLock()
	conn, connected := c.conn, c.connected
	c.mu.RUnlock()
	if conn == nil || !connected {
		return
	}

	data, err := marshal(msg)
	if err != nil {
		c.logger.Warn("Failed to marshal message", "subject", subject, "error", err)
		return
	}
	if err := conn.Publish(subject, data); err != nil {
		c.logger.Warn("Failed to publish", "subject", subject, "error", err)
	}
}

// IsConnected reports whether the client is connected.
func (c *CameraClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.conn != nil
}

// Close unsubscribes and closes the connection.
func (c *CameraClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
		c.sub = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// ErrRejected is returned when a camera refused a remote trigger.
var ErrRejected = errors.New("trigger rejected")

// ControlPublisher sends commands to camera processes.
type ControlPublisher struct {
	conn    *nats.Conn
	timeout time.Duration
	logger  *slog.Logger
}

// NewControlPublisher connects a publisher to url.
func NewControlPublisher(url string, timeout time.Duration, logger *slog.Logger) (*ControlPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	conn, err := nats.Connect(url,
		nats.Name("gigecam-control"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(5),
	)
	if err != nil {
		return nil, err
	}
	return &ControlPublisher{
		conn:    conn,
		timeout: timeout,
		logger:  logger.With("component", "nats-control"),
	}, nil
}

// Trigger asks camera for one software trigger and waits for its answer.
func (p *ControlPublisher) Trigger(camera, reason string) error {
	data, err := marshal(ControlMessage{
		Action:    "trigger",
		Camera:    camera,
		Timestamp: time.Now().Format(time.RFC3339),
		Reason:    reason,
	})
	if err != nil {
		return err
	}

	msg, err := p.conn.Request(SubjectControlTrigger(camera), data, p.timeout)
	if err != nil {
		return fmt.Errorf("trigger %s: %w", camera, err)
	}
	reply, err := unmarshal[ControlReply](msg.Data)
	if err != nil {
		return fmt.Errorf("trigger %s: malformed reply: %w", camera, err)
	}
	if !reply.OK {
		return fmt.Errorf("trigger %s: %w: %s", camera, ErrRejected, reply.Error)
	}
	p.logger.Info("Sent trigger", "camera", camera, "reason", reason)
	return nil
}

// Close closes the publisher connection.
func (p *ControlPublisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
