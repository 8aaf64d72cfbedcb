package gev

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	defaultTimeout = 200 * time.Millisecond
	defaultRetries = 3
)

// Client is a GVCP control channel to a single device.
type Client struct {
	conn    *net.UDPConn
	remote  *net.UDPAddr
	timeout time.Duration
	retries int
	logger  *slog.Logger

	mu    sync.Mutex
	reqID uint16
	buf   []byte

	hbCancel context.CancelFunc
	hbDone   chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-attempt acknowledge timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetries sets how many times a command is sent before giving up.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.retries = n
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Dial opens a control channel to the device at addr. The port defaults to
// the GVCP control port.
func Dial(addr string, opts ...Option) (*Client, error) {
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, fmt.Sprint(ControlPort))
	}
	remote, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("open control socket: %w", err)
	}
	c := &Client{
		conn:    conn,
		remote:  remote,
		timeout: defaultTimeout,
		retries: defaultRetries,
		logger:  slog.Default(),
		buf:     make([]byte, 1500),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RemoteAddr returns the device control address.
func (c *Client) RemoteAddr() *net.UDPAddr { return c.remote }

// LocalIP returns the host address used to reach the device.
func (c *Client) LocalIP() (net.IP, error) {
	udp, err := net.DialUDP("udp4", nil, c.remote)
	if err != nil {
		return nil, err
	}
	defer udp.Close()
	return udp.LocalAddr().(*net.UDPAddr).IP, nil
}

func (c *Client) nextID() uint16 {
	c.reqID++
	if c.reqID == 0 {
		c.reqID = 1
	}
	return c.reqID
}

// transact sends a command and waits for the matching acknowledge.
func (c *Client) transact(ctx context.Context, code uint16, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := Command{Flags: flagAckNeeded, Code: code, ReqID: c.nextID(), Payload: payload}
	pkt, err := cmd.MarshalBinary()
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := c.conn.WriteToUDP(pkt, c.remote); err != nil {
			return nil, fmt.Errorf("send gvcp 0x%04x: %w", code, err)
		}
		ack, err := c.await(ctx, cmd)
		if errors.Is(err, ErrTimeout) {
			c.logger.Debug("GVCP retry", "command", fmt.Sprintf("0x%04x", code), "attempt", attempt+1)
			continue
		}
		return ack, err
	}
	return nil, fmt.Errorf("gvcp 0x%04x to %s: %w", code, c.remote, ErrTimeout)
}

// await reads acknowledges until the one matching cmd arrives. Pending
// acknowledges extend the deadline.
func (c *Client) await(ctx context.Context, cmd Command) ([]byte, error) {
	deadline := time.Now().Add(c.timeout)
	for {
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
		n, _, err := c.conn.ReadFromUDP(c.buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, ErrTimeout
			}
			return nil, err
		}
		ack, err := ParseAck(c.buf[:n])
		if err != nil || ack.AckID != cmd.ReqID {
			continue
		}
		if ack.Code == AckPending && len(ack.Payload) >= 4 {
			wait := time.Duration(binary.BigEndian.Uint16(ack.Payload[2:])) * time.Millisecond
			deadline = time.Now().Add(wait + c.timeout)
			continue
		}
		if ack.Code != cmd.Code+1 {
			continue
		}
		if ack.Status != StatusSuccess {
			return nil, &StatusError{Command: cmd.Code, Status: ack.Status}
		}
		out := make([]byte, len(ack.Payload))
		copy(out, ack.Payload)
		return out, nil
	}
}

// ReadRegisters reads several 32-bit registers in one command.
func (c *Client) ReadRegisters(ctx context.Context, addrs ...uint32) ([]uint32, error) {
	p, err := c.transact(ctx, CmdReadReg, readRegPayload(addrs))
	if err != nil {
		return nil, err
	}
	if len(p) < 4*len(addrs) {
		return nil, fmt.Errorf("%w: readreg ack of %d bytes for %d registers", ErrMalformed, len(p), len(addrs))
	}
	vals := make([]uint32, len(addrs))
	for i := range vals {
		vals[i] = binary.BigEndian.Uint32(p[4*i:])
	}
	return vals, nil
}

// ReadRegister reads one 32-bit register.
func (c *Client) ReadRegister(ctx context.Context, addr uint32) (uint32, error) {
	vals, err := c.ReadRegisters(ctx, addr)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// WriteRegister writes one 32-bit register.
func (c *Client) WriteRegister(ctx context.Context, addr, value uint32) error {
	_, err := c.transact(ctx, CmdWriteReg, writeRegPayload(addr, value))
	return err
}

// ReadMemory reads n bytes starting at addr, splitting large reads.
func (c *Client) ReadMemory(ctx context.Context, addr uint32, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		chunk := n - len(out)
		if chunk > maxReadMem {
			chunk = maxReadMem
		}
		count := (chunk + 3) &^ 3
		p, err := c.transact(ctx, CmdReadMem, readMemPayload(addr+uint32(len(out)), uint16(count)))
		if err != nil {
			return nil, err
		}
		if len(p) < 4+chunk {
			return nil, fmt.Errorf("%w: readmem ack of %d bytes", ErrMalformed, len(p))
		}
		out = append(out, p[4:4+chunk]...)
	}
	return out, nil
}

// ReadString reads a NUL-terminated string register.
func (c *Client) ReadString(ctx context.Context, addr uint32, n int) (string, error) {
	b, err := c.ReadMemory(ctx, addr, n)
	if err != nil {
		return "", err
	}
	return cString(b), nil
}

// TakeControl acquires control privilege and keeps it alive with a
// heartbeat until Close.
func (c *Client) TakeControl(ctx context.Context) error {
	if err := c.WriteRegister(ctx, RegCCP, CCPControl); err != nil {
		return fmt.Errorf("acquire control privilege: %w", err)
	}
	timeout := uint32(DefaultHeartbeatTimeoutMs)
	if v, err := c.ReadRegister(ctx, RegHeartbeatTimeout); err == nil && v > 0 {
		timeout = v
	}
	interval := time.Duration(timeout) * time.Millisecond / 3

	hbCtx, cancel := context.WithCancel(context.Background())
	c.hbCancel = cancel
	c.hbDone = make(chan struct{})
	go c.heartbeat(hbCtx, interval)
	return nil
}

func (c *Client) heartbeat(ctx context.Context, interval time.Duration) {
	defer close(c.hbDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.ReadRegister(ctx, RegCCP); err != nil && ctx.Err() == nil {
				c.logger.Warn("Heartbeat failed", "device", c.remote.String(), "error", err)
			}
		}
	}
}

// Close releases control privilege and closes the socket.
func (c *Client) Close() error {
	if c.hbCancel != nil {
		c.hbCancel()
		<-c.hbDone
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := c.WriteRegister(ctx, RegCCP, 0); err != nil {
			c.logger.Debug("Release control privilege failed", "error", err)
		}
		cancel()
		c.hbCancel = nil
	}
	return c.conn.Close()
}

// Discover broadcasts a discovery command to addr (typically the subnet
// broadcast address) and collects acknowledges until wait elapses.
func Discover(ctx context.Context, addr string, wait time.Duration) ([]DeviceInfo, error) {
	if !strings.Contains(addr, ":") {
		addr = net.JoinHostPort(addr, fmt.Sprint(ControlPort))
	}
	remote, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, fmt.Errorf("open discovery socket: %w", err)
	}
	defer conn.Close()

	pkt, _ := Command{Flags: flagAckNeeded | flagBroadcast, Code: CmdDiscovery, ReqID: 1}.MarshalBinary()
	if _, err := conn.WriteToUDP(pkt, remote); err != nil {
		return nil, fmt.Errorf("send discovery: %w", err)
	}

	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	var found []DeviceInfo
	seen := make(map[string]bool)
	buf := make([]byte, 1500)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return found, nil
			}
			return found, err
		}
		ack, err := ParseAck(buf[:n])
		if err != nil || ack.Code != AckDiscovery || ack.Status != StatusSuccess {
			continue
		}
		info, err := ParseDiscoveryAck(ack.Payload)
		if err != nil {
			continue
		}
		if info.IP == nil || info.IP.IsUnspecified() {
			info.IP = from.IP
		}
		key := info.MAC.String() + info.IP.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		found = append(found, info)
	}
}
