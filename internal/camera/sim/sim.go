// Package sim implements a simulated GigE Vision camera driven by a TOML
// profile. It renders a moving test pattern and honours the trigger
// features the demo configures.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/smazurov/gigecam/internal/camera"
	"github.com/smazurov/gigecam/internal/frame"
	"github.com/smazurov/gigecam/pkg/genicam"
)

func init() {
	camera.Register("sim", func(cfg camera.Config) (camera.Camera, error) {
		p, err := LoadProfile(cfg.Profile)
		if err != nil {
			return nil, err
		}
		return New(p, cfg.Logger)
	})
}

// Camera is a simulated device session.
type Camera struct {
	*genicam.NodeMap

	profile  *Profile
	regs     map[uint32]uint32
	logger   *slog.Logger
	triggers chan string

	mu   sync.Mutex
	grab *camera.Worker
}

// New builds a camera from a parsed profile.
func New(p *Profile, logger *slog.Logger) (*Camera, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := p.nodeMap()
	if err != nil {
		return nil, err
	}
	regs, err := p.registers()
	if err != nil {
		return nil, err
	}
	c := &Camera{
		NodeMap:  m,
		profile:  p,
		regs:     regs,
		logger:   logger,
		triggers: make(chan string, 16),
	}
	m.OnCommand(genicam.TriggerSoftware, c.softwareTrigger)
	if _, ok := m.Node(genicam.LUTValue); ok {
		m.OnRead(genicam.LUTValue, c.lutValue)
	}
	logger.Debug("Simulated camera ready", "system", p.SystemType, "features", len(m.Names()))
	return c, nil
}

func (c *Camera) softwareTrigger() error {
	sel, err := c.NodeMap.String(genicam.TriggerSelector)
	if err != nil {
		sel = genicam.SelectorAcquisitionStart
	}
	select {
	case c.triggers <- sel:
		c.logger.Debug("Software trigger", "selector", sel)
	default:
		c.logger.Warn("Software trigger dropped, queue full", "selector", sel)
	}
	return nil
}

// lutValue computes a gamma curve over the LUT index range.
func (c *Camera) lutValue() (any, error) {
	idx, err := c.NodeMap.Int(genicam.QueryValue, genicam.LUTIndex)
	if err != nil {
		return nil, err
	}
	maxIdx, _ := c.NodeMap.Int(genicam.QueryMax, genicam.LUTIndex)
	node, _ := c.NodeMap.Node(genicam.LUTValue)
	if maxIdx <= 0 || node.Max <= 0 {
		return idx, nil
	}
	v := math.Pow(float64(idx)/float64(maxIdx), c.profile.LUTGamma) * float64(node.Max)
	return int64(math.Round(v)), nil
}

// SystemType implements camera.Camera.
func (c *Camera) SystemType() string { return c.profile.SystemType }

// InterfaceName implements camera.Camera.
func (c *Camera) InterfaceName() string { return c.profile.InterfaceName }

// LocalIP implements camera.Camera.
func (c *Camera) LocalIP() string { return c.profile.LocalIP }

// Capability implements camera.Camera.
func (c *Camera) Capability(reg uint32) uint32 { return c.regs[reg] }

// ImageInfo implements camera.Camera. The geometry follows the current
// Width, Height and PixelFormat features.
func (c *Camera) ImageInfo() camera.ImageInfo {
	q := genicam.Quiet(c.NodeMap, c.logger)
	info := camera.ImageInfo{
		Bands:    1,
		Width:    int(q.Int(genicam.QueryValue, genicam.Width)),
		Height:   int(q.Int(genicam.QueryValue, genicam.Height)),
		BitDepth: 8,
	}
	pf := q.String(genicam.PixelFormat)
	switch {
	case strings.HasPrefix(pf, "RGB8"), strings.HasPrefix(pf, "BGR8"):
		info.Bands = 3
	case pf == "Mono10":
		info.BitDepth = 10
	case pf == "Mono12":
		info.BitDepth = 12
	case pf == "Mono16":
		info.BitDepth = 16
	}
	return info
}

// Process implements camera.Camera.
func (c *Camera) Process(bufs []*frame.Buffer, op camera.StartOp, hook camera.Hook) (camera.Grab, error) {
	if len(bufs) == 0 {
		return nil, fmt.Errorf("process: no grab buffers")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.grab != nil {
		select {
		case <-c.grab.Done():
		default:
			return nil, fmt.Errorf("process: grab already active")
		}
	}
	c.drainTriggers()

	g := &grabber{cam: c, bufs: bufs, hook: hook}
	c.grab = camera.StartWorker(op, g.run)
	return c.grab, nil
}

func (c *Camera) drainTriggers() {
	for {
		select {
		case <-c.triggers:
		default:
			return
		}
	}
}

// Close implements camera.Camera.
func (c *Camera) Close() error {
	c.mu.Lock()
	g := c.grab
	c.grab = nil
	c.mu.Unlock()
	if g != nil {
		return g.Stop(false)
	}
	return nil
}

type grabber struct {
	cam  *Camera
	bufs []*frame.Buffer
	hook camera.Hook

	next    int
	counter int
}

func (g *grabber) triggerMode(selector string) bool {
	v, ok := g.cam.ValueAt(genicam.TriggerMode, selector)
	return ok && v == genicam.TriggerOn
}

func (g *grabber) triggerSource(selector string) string {
	v, _ := g.cam.ValueAt(genicam.TriggerSource, selector)
	s, _ := v.(string)
	return s
}

// burst returns the number of frames an acquisition start trigger
// releases, -1 for an unbounded run.
func (g *grabber) burst() int {
	mode, _ := g.cam.NodeMap.String(genicam.AcquisitionMode)
	switch mode {
	case genicam.ModeMultiFrame:
		n, err := g.cam.NodeMap.Int(genicam.QueryValue, genicam.AcquisitionFrameCount)
		if err != nil || n <= 0 {
			return 1
		}
		return int(n)
	case genicam.ModeSingleFrame:
		return 1
	default:
		return -1
	}
}

func (g *grabber) frameInterval() time.Duration {
	fps, err := g.cam.NodeMap.Float(genicam.QueryValue, genicam.AcquisitionFrameRate)
	if err != nil || fps <= 0 {
		fps = 10
	}
	return time.Duration(float64(time.Second) / fps)
}

// waitTrigger blocks until a trigger for selector arrives. It returns
// false when ctx is cancelled first.
func (g *grabber) waitTrigger(ctx context.Context, selector string) bool {
	source := g.triggerSource(selector)
	if source == genicam.SourceSoftware || source == "" {
		for {
			select {
			case <-ctx.Done():
				return false
			case sel := <-g.cam.triggers:
				if sel == selector {
					return true
				}
				g.cam.logger.Debug("Ignoring software trigger for inactive selector", "selector", sel)
			}
		}
	}
	period := time.Duration(float64(time.Second) / g.cam.profile.HardwareTriggerHz)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(period):
		g.cam.logger.Debug("Line pulse", "source", source, "selector", selector)
		return true
	}
}

func (g *grabber) run(ctx context.Context, w *camera.Worker) error {
	pending := 0
	for {
		if g.triggerMode(genicam.SelectorAcquisitionStart) && pending == 0 {
			if !g.waitTrigger(ctx, genicam.SelectorAcquisitionStart) {
				return nil
			}
			pending = g.burst()
		}
		if g.triggerMode(genicam.SelectorFrameStart) {
			if !g.waitTrigger(ctx, genicam.SelectorFrameStart) {
				return nil
			}
		} else {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(g.frameInterval()):
			}
		}

		g.deliver()
		if pending > 0 {
			pending--
		}
		if w.Frame() {
			<-ctx.Done()
			return nil
		}
	}
}

// deliver renders the next pattern into the next buffer and runs the hook.
func (g *grabber) deliver() {
	b := g.bufs[g.next]
	g.next = (g.next + 1) % len(g.bufs)
	g.counter++

	q := genicam.Quiet(g.cam.NodeMap, g.cam.logger)
	pattern, err := frame.New(frame.Format{Width: b.Width, Height: b.Height, Bands: 1, BitDepth: 8})
	if err != nil {
		return
	}
	render(pattern, g.counter, q.Bool(genicam.ReverseX), q.Bool(genicam.ReverseY))
	b.CopyFrom(pattern)
	if g.hook != nil {
		g.hook(b)
	}
}

// render draws a diagonal gradient that moves with the frame number.
func render(b *frame.Buffer, n int, reverseX, reverseY bool) {
	for y := 0; y < b.Height; y++ {
		sy := y
		if reverseY {
			sy = b.Height - 1 - y
		}
		for x := 0; x < b.Width; x++ {
			sx := x
			if reverseX {
				sx = b.Width - 1 - x
			}
			b.Pix[y*b.Width+x] = byte(sx + sy + 4*n)
		}
	}
}
