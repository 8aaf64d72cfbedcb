package acquire

import (
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/frame"
)

// Overlay text position in pixels from the top-left corner.
const (
	textX = 20
	textY = 20
)

// Publisher is satisfied by *events.Bus.
type Publisher interface {
	Publish(ev events.Event)
}

// Display receives a copy of every processed frame.
type Display interface {
	Copy(b *frame.Buffer)
}

// Hook is the per-frame processing run on the grabbing goroutine. It
// numbers the frame, burns the number into it and forwards it to the
// display and the event bus.
type Hook struct {
	out     io.Writer
	camera  string
	display Display
	bus     Publisher
	count   atomic.Int64
}

// NewHook returns a hook printing progress to out. display and bus may be nil.
func NewHook(out io.Writer, camera string, display Display, bus Publisher) *Hook {
	return &Hook{out: out, camera: camera, display: display, bus: bus}
}

// Process handles one completed frame.
func (h *Hook) Process(b *frame.Buffer) {
	n := h.count.Add(1)
	fmt.Fprintf(h.out, "Processing frame #%d.\r", n)
	b.DrawText(textX, textY, strconv.FormatInt(n, 10))

	if h.display != nil {
		h.display.Copy(b)
	}
	if h.bus != nil {
		h.bus.Publish(events.FrameProcessedEvent{
			Camera:    h.camera,
			Count:     n,
			Buffer:    b.Index,
			Width:     b.Width,
			Height:    b.Height,
			Timestamp: time.Now().Format(time.RFC3339Nano),
		})
	}
}

// Count returns the number of frames processed.
func (h *Hook) Count() int64 { return h.count.Load() }
