// Package display holds the image the frame hook copies every processed
// frame into and serves it over HTTP as a JPEG snapshot or an MJPEG stream.
package display

import (
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/smazurov/gigecam/internal/frame"
)

const (
	boundary       = "frame"
	defaultQuality = 80
)

// Display is the live view of the acquisition.
type Display struct {
	mu      sync.RWMutex
	buf     *frame.Buffer
	seq     uint64
	changed chan struct{}

	quality int
	logger  *slog.Logger
}

// New allocates a display of format f cleared to 0.
func New(f frame.Format, logger *slog.Logger) (*Display, error) {
	buf, err := frame.New(f)
	if err != nil {
		return nil, fmt.Errorf("allocate display: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Display{
		buf:     buf,
		changed: make(chan struct{}),
		quality: defaultQuality,
		logger:  logger,
	}, nil
}

// Format returns the display buffer format.
func (d *Display) Format() frame.Format {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buf.Format
}

// Copy replaces the display contents with b and wakes stream clients.
func (d *Display) Copy(b *frame.Buffer) {
	d.mu.Lock()
	d.buf.CopyFrom(b)
	d.seq++
	close(d.changed)
	d.changed = make(chan struct{})
	d.mu.Unlock()
}

// Frames returns the number of frames copied into the display.
func (d *Display) Frames() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.seq
}

// Snapshot returns a grayscale copy of the display, the frame sequence
// number and a channel closed on the next Copy.
func (d *Display) Snapshot() (*image.Gray, uint64, <-chan struct{}) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	img := d.buf.Gray()
	if d.seq == 0 {
		frame.Overlay(img, 4, 4, "waiting for frames")
	}
	return img, d.seq, d.changed
}

// WriteJPEG encodes the current display to w.
func (d *Display) WriteJPEG(w io.Writer) error {
	img, _, _ := d.Snapshot()
	return jpeg.Encode(w, img, &jpeg.Options{Quality: d.quality})
}

// ServeJPEG serves a single JPEG of the display.
func (d *Display) ServeJPEG(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if err := d.WriteJPEG(w); err != nil {
		d.logger.Warn("Failed to encode display snapshot", "error", err)
	}
}

// ServeMJPEG streams the display as multipart JPEG, one part per copied
// frame, until the client goes away.
func (d *Display) ServeMJPEG(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-store")
	flusher, _ := w.(http.Flusher)

	ctx := r.Context()
	for {
		img, _, changed := d.Snapshot()
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\n\r\n", boundary); err != nil {
			return
		}
		if err := jpeg.Encode(w, img, &jpeg.Options{Quality: d.quality}); err != nil {
			d.logger.Debug("MJPEG client write failed", "error", err)
			return
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}

		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}

// Register mounts the display routes on mux.
func (d *Display) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /display.jpg", d.ServeJPEG)
	mux.HandleFunc("GET /display.mjpeg", d.ServeMJPEG)
}
