package gevcam

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/smazurov/gigecam/internal/camera"
	"github.com/smazurov/gigecam/internal/frame"
	"github.com/smazurov/gigecam/internal/metrics"
	"github.com/smazurov/gigecam/pkg/gev"
	"github.com/smazurov/gigecam/pkg/genicam"
)

// pixelLayout maps a PFNC pixel format to bands and significant bits.
func pixelLayout(pf uint32) (bands, depth int) {
	switch pf {
	case gev.PixelMono8:
		return 1, 8
	case gev.PixelMono10:
		return 1, 10
	case gev.PixelMono12:
		return 1, 12
	case gev.PixelMono16:
		return 1, 16
	}
	if gev.BitsPerPixel(pf) == 24 {
		return 3, 8
	}
	return 1, gev.BitsPerPixel(pf)
}

// Process implements camera.Camera. It programs the first stream channel
// to a local receiver and starts acquisition on the device.
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

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	scps, err := c.client.ReadRegister(ctx, gev.RegSCPS0)
	if err != nil {
		return nil, fmt.Errorf("read stream packet size: %w", err)
	}
	payload := gev.PayloadPerPacket(int(scps & gev.SCPSPacketSizeMask))
	if payload == 0 {
		return nil, fmt.Errorf("stream packet size %d too small", scps&gev.SCPSPacketSizeMask)
	}

	host := "0.0.0.0"
	if c.localIP != nil {
		host = c.localIP.String()
	}
	recv, err := gev.Listen(net.JoinHostPort(host, "0"), payload, c.logger)
	if err != nil {
		return nil, err
	}
	recv.SetMaxBlockSize(blockLimit(bufs))
	dest := uint32(0)
	if ip := c.localIP.To4(); ip != nil {
		dest = binary.BigEndian.Uint32(ip)
	}
	if err := c.client.WriteRegister(ctx, gev.RegSCDA0, dest); err != nil {
		recv.Close()
		return nil, fmt.Errorf("set stream destination: %w", err)
	}
	if err := c.client.WriteRegister(ctx, gev.RegSCP0, uint32(recv.Port())); err != nil {
		recv.Close()
		return nil, fmt.Errorf("set stream port: %w", err)
	}

	// The socket is already bound, so packets sent before the worker
	// starts reading are queued by the kernel.
	if err := c.Execute(genicam.AcquisitionStart); err != nil {
		recv.Close()
		return nil, err
	}
	g := &grabber{cam: c, recv: recv, bufs: bufs, hook: hook}
	c.grab = camera.StartWorker(op, g.run)
	c.logger.Debug("Stream channel programmed", "port", recv.Port(), "payload", payload, "buffers", len(bufs))
	return c.grab, nil
}

// blockLimit is the largest image block the grab buffers can take at the
// widest pixel layout the copy understands (16 bits).
func blockLimit(bufs []*frame.Buffer) int {
	n := 0
	for _, b := range bufs {
		n = max(n, b.Width*b.Height*2)
	}
	return n
}

type grabber struct {
	cam  *Camera
	recv *gev.Receiver
	bufs []*frame.Buffer
	hook camera.Hook

	next     int
	complete bool
}

func (g *grabber) run(ctx context.Context, w *camera.Worker) error {
	defer g.teardown()
	return g.recv.Run(ctx, func(f *gev.Frame) {
		if g.complete {
			return
		}
		if f.Missing > 0 {
			g.cam.logger.Debug("Delivering incomplete frame", "block_id", f.BlockID, "missing", f.Missing)
			metrics.AddMissingPackets(g.cam.name, f.Missing)
		}
		bands, depth := pixelLayout(f.PixelFormat)
		src := &frame.Buffer{
			Format: frame.Format{Width: int(f.Width), Height: int(f.Height), Bands: bands, BitDepth: depth},
			Pix:    f.Data,
		}
		if !src.Valid() || len(src.Pix) < src.Size() {
			g.cam.logger.Warn("Dropping frame with unsupported layout", "pixel_format", fmt.Sprintf("0x%08x", f.PixelFormat))
			return
		}
		b := g.bufs[g.next]
		g.next = (g.next + 1) % len(g.bufs)
		b.CopyFrom(src)
		if g.hook != nil {
			g.hook(b)
		}
		g.complete = w.Frame()
	})
}

// teardown stops acquisition on the device and closes the stream channel.
func (g *grabber) teardown() {
	c := g.cam
	if err := c.Execute(genicam.AcquisitionStop); err != nil {
		c.logger.Warn("Failed to stop acquisition", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := c.client.WriteRegister(ctx, gev.RegSCP0, 0); err != nil {
		c.logger.Debug("Failed to close stream channel", "error", err)
	}
	g.recv.Close()
}
