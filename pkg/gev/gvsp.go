package gev

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// GVSP packet formats.
const (
	FormatLeader  byte = 1
	FormatTrailer byte = 2
	FormatPayload byte = 3
)

// PayloadTypeImage is the only payload type the receiver assembles.
const PayloadTypeImage uint16 = 0x0001

// Pixel formats (PFNC codes).
const (
	PixelMono8  uint32 = 0x01080001
	PixelMono10 uint32 = 0x01100003
	PixelMono12 uint32 = 0x01100005
	PixelMono16 uint32 = 0x01100007
)

const (
	leaderSize  = 36
	trailerSize = 8
)

// DefaultMaxBlockSize bounds the image bytes a leader may announce unless
// the receiver is given a limit with SetMaxBlockSize.
const DefaultMaxBlockSize = 64 << 20

// BitsPerPixel extracts the effective pixel size from a PFNC code.
func BitsPerPixel(pixelFormat uint32) int {
	return int(pixelFormat>>16) & 0xFF
}

// Frame is one image block received on a stream channel.
type Frame struct {
	BlockID     uint16
	Timestamp   uint64
	PixelFormat uint32
	Width       uint32
	Height      uint32
	OffsetX     uint32
	OffsetY     uint32
	Data        []byte

	// Missing counts payload packets that never arrived.
	Missing int
}

type packetHeader struct {
	status   uint16
	blockID  uint16
	format   byte
	packetID uint32
}

func (h packetHeader) put(b []byte) {
	binary.BigEndian.PutUint16(b[0:], h.status)
	binary.BigEndian.PutUint16(b[2:], h.blockID)
	b[4] = h.format & 0x0F
	b[5] = byte(h.packetID >> 16)
	b[6] = byte(h.packetID >> 8)
	b[7] = byte(h.packetID)
}

func parseHeader(b []byte) (packetHeader, error) {
	if len(b) < gvspHeaderSize {
		return packetHeader{}, fmt.Errorf("%w: gvsp packet of %d bytes", ErrMalformed, len(b))
	}
	return packetHeader{
		status:   binary.BigEndian.Uint16(b[0:]),
		blockID:  binary.BigEndian.Uint16(b[2:]),
		format:   b[4] & 0x0F,
		packetID: uint32(b[5])<<16 | uint32(b[6])<<8 | uint32(b[7]),
	}, nil
}

// Packetize splits f into leader, payload and trailer packets carrying at
// most payloadSize image bytes each.
func Packetize(f Frame, payloadSize int) ([][]byte, error) {
	if payloadSize <= 0 {
		return nil, fmt.Errorf("invalid gvsp payload size %d", payloadSize)
	}
	var packets [][]byte
	id := uint32(0)

	leader := make([]byte, gvspHeaderSize+leaderSize)
	packetHeader{blockID: f.BlockID, format: FormatLeader, packetID: id}.put(leader)
	p := leader[gvspHeaderSize:]
	be := binary.BigEndian
	be.PutUint16(p[2:], PayloadTypeImage)
	be.PutUint32(p[4:], uint32(f.Timestamp>>32))
	be.PutUint32(p[8:], uint32(f.Timestamp))
	be.PutUint32(p[12:], f.PixelFormat)
	be.PutUint32(p[16:], f.Width)
	be.PutUint32(p[20:], f.Height)
	be.PutUint32(p[24:], f.OffsetX)
	be.PutUint32(p[28:], f.OffsetY)
	packets = append(packets, leader)

	for off := 0; off < len(f.Data); off += payloadSize {
		id++
		end := min(off+payloadSize, len(f.Data))
		pkt := make([]byte, gvspHeaderSize+end-off)
		packetHeader{blockID: f.BlockID, format: FormatPayload, packetID: id}.put(pkt)
		copy(pkt[gvspHeaderSize:], f.Data[off:end])
		packets = append(packets, pkt)
	}

	id++
	trailer := make([]byte, gvspHeaderSize+trailerSize)
	packetHeader{blockID: f.BlockID, format: FormatTrailer, packetID: id}.put(trailer)
	be.PutUint16(trailer[gvspHeaderSize+2:], PayloadTypeImage)
	be.PutUint32(trailer[gvspHeaderSize+4:], f.Height)
	packets = append(packets, trailer)
	return packets, nil
}

// Receiver reassembles image blocks from a stream channel socket.
type Receiver struct {
	conn        *net.UDPConn
	payloadSize int
	maxBlock    int
	logger      *slog.Logger

	cur      *Frame
	received int
}

// Listen opens a stream channel socket on addr (":0" picks a free port).
// payloadSize is the image bytes per payload packet, see PayloadPerPacket.
func Listen(addr string, payloadSize int, logger *slog.Logger) (*Receiver, error) {
	if payloadSize <= 0 {
		return nil, fmt.Errorf("invalid gvsp payload size %d", payloadSize)
	}
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve stream address %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("open stream socket: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{conn: conn, payloadSize: payloadSize, logger: logger}, nil
}

// Port returns the local UDP port to program into SCP0.
func (r *Receiver) Port() int {
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// SetMaxBlockSize makes the receiver drop blocks whose leader announces
// more than n image bytes. n <= 0 restores DefaultMaxBlockSize. Call it
// before Run.
func (r *Receiver) SetMaxBlockSize(n int) { r.maxBlock = n }

func (r *Receiver) blockLimit() int {
	if r.maxBlock <= 0 {
		return DefaultMaxBlockSize
	}
	return r.maxBlock
}

// Close closes the socket, ending Run.
func (r *Receiver) Close() error { return r.conn.Close() }

// Run reads packets until ctx is cancelled or the socket is closed, calling
// handle for every completed block. handle runs on the receiving goroutine.
func (r *Receiver) Run(ctx context.Context, handle func(*Frame)) error {
	buf := make([]byte, 65536)
	for {
		if err := r.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return err
		}
		n, _, err := r.conn.ReadFromUDP(buf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read stream packet: %w", err)
		}
		if f := r.consume(buf[:n]); f != nil {
			handle(f)
		}
	}
}

// consume processes one packet and returns a block when it completes.
func (r *Receiver) consume(pkt []byte) *Frame {
	h, err := parseHeader(pkt)
	if err != nil {
		return nil
	}
	body := pkt[gvspHeaderSize:]

	switch h.format {
	case FormatLeader:
		var flushed *Frame
		if r.cur != nil {
			flushed = r.finish()
		}
		if len(body) < leaderSize || binary.BigEndian.Uint16(body[2:]) != PayloadTypeImage {
			r.logger.Debug("Ignoring non-image block", "block_id", h.blockID)
			return flushed
		}
		be := binary.BigEndian
		f := &Frame{
			BlockID:     h.blockID,
			Timestamp:   uint64(be.Uint32(body[4:]))<<32 | uint64(be.Uint32(body[8:])),
			PixelFormat: be.Uint32(body[12:]),
			Width:       be.Uint32(body[16:]),
			Height:      be.Uint32(body[20:]),
			OffsetX:     be.Uint32(body[24:]),
			OffsetY:     be.Uint32(body[28:]),
		}
		// Every supported format has at least one byte per pixel, so the
		// pixel count alone rules out most bogus leaders without overflow.
		limit := uint64(r.blockLimit())
		pixels := uint64(f.Width) * uint64(f.Height)
		bpp := uint64(max(BitsPerPixel(f.PixelFormat), 8))
		if pixels > limit || pixels*bpp/8 > limit {
			r.logger.Warn("Dropping oversized block",
				"block_id", h.blockID, "width", f.Width, "height", f.Height, "limit", limit)
			return flushed
		}
		f.Data = make([]byte, pixels*bpp/8)
		r.cur = f
		r.received = 0
		return flushed

	case FormatPayload:
		if r.cur == nil || h.blockID != r.cur.BlockID || h.packetID == 0 {
			return nil
		}
		off := int(h.packetID-1) * r.payloadSize
		if off >= len(r.cur.Data) {
			return nil
		}
		copy(r.cur.Data[off:], body)
		r.received++
		return nil

	case FormatTrailer:
		if r.cur == nil || h.blockID != r.cur.BlockID {
			return nil
		}
		return r.finish()
	}
	return nil
}

func (r *Receiver) finish() *Frame {
	f := r.cur
	expected := (len(f.Data) + r.payloadSize - 1) / r.payloadSize
	f.Missing = max(expected-r.received, 0)
	if f.Missing > 0 {
		r.logger.Debug("Incomplete block", "block_id", f.BlockID, "missing", f.Missing)
	}
	r.cur = nil
	r.received = 0
	return f
}
