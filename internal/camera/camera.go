// Package camera defines the session a backend exposes to the demo: feature
// access, transport inquiries and asynchronous grabbing into caller-owned
// buffers.
package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/smazurov/gigecam/internal/frame"
	"github.com/smazurov/gigecam/pkg/genicam"
)

// System types reported by backends.
const (
	SystemGigEVision = "GigEVision"
	SystemGevIQ      = "GevIQ"
)

// IsGigE reports whether systemType is one of the GigE Vision systems.
func IsGigE(systemType string) bool {
	return systemType == SystemGigEVision || systemType == SystemGevIQ
}

// ErrNotGigE is returned when the opened system is not a GigE Vision system.
var ErrNotGigE = errors.New("system is not a GigE Vision system")

// ImageInfo describes the images the camera delivers.
type ImageInfo struct {
	Bands    int
	Width    int
	Height   int
	BitDepth int
}

// Format converts the image description to a buffer format.
func (i ImageInfo) Format() frame.Format {
	return frame.Format{Width: i.Width, Height: i.Height, Bands: i.Bands, BitDepth: i.BitDepth}
}

// Hook is called on the grabbing goroutine once per completed frame with
// the buffer that was filled.
type Hook func(b *frame.Buffer)

// StartOp selects how a grab runs. Count > 0 grabs a sequence of Count
// frames; otherwise the grab runs until stopped.
type StartOp struct {
	Count int
}

// Grab is a running asynchronous acquisition.
type Grab interface {
	// Stop halts the acquisition. With wait set, a sequence grab first
	// waits for its remaining frames.
	Stop(wait bool) error
	// Done is closed when the grab goroutine has exited.
	Done() <-chan struct{}
}

// Camera is an open device session.
type Camera interface {
	genicam.Device

	SystemType() string
	InterfaceName() string
	LocalIP() string

	// Capability returns the raw value of a GigE Vision capability or
	// configuration register.
	Capability(reg uint32) uint32

	ImageInfo() ImageInfo
	Process(bufs []*frame.Buffer, op StartOp, hook Hook) (Grab, error)
	Close() error
}

// Config selects and parameterises a backend.
type Config struct {
	// Name labels the camera in metrics and events.
	Name        string
	Backend     string
	Profile     string
	Address     string
	Interface   string
	RegisterMap string
	PacketSize  int
	Logger      *slog.Logger
}

// Opener opens a camera for a backend.
type Opener func(cfg Config) (Camera, error)

var (
	backendsMu sync.RWMutex
	backends   = make(map[string]Opener)
)

// Register makes a backend available by name. It panics on duplicates.
func Register(name string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if _, dup := backends[name]; dup {
		panic("camera: Register called twice for backend " + name)
	}
	backends[name] = open
}

// Backends lists the registered backend names.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open opens a session with the backend named by cfg.Backend.
func Open(cfg Config) (Camera, error) {
	backendsMu.RLock()
	open, ok := backends[cfg.Backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown camera backend %q (available: %v)", cfg.Backend, Backends())
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Backend
	}
	cam, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s camera: %w", cfg.Backend, err)
	}
	return cam, nil
}
