// Package acquire runs the triggered grab sequence: grab buffers are
// allocated, the camera is started on them and software triggers are issued
// from the keyboard until the operator stops the run.
package acquire

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/gigecam/internal/camera"
	"github.com/smazurov/gigecam/internal/console"
	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/frame"
	"github.com/smazurov/gigecam/internal/trigger"
	"github.com/smazurov/gigecam/pkg/genicam"
)

const (
	// DefaultBuffers is the grab buffer count unless a MultiFrame run asks
	// for a specific number of frames per trigger.
	DefaultBuffers = 10
	// MaxBuffers caps the grab buffers of one run. Longer sequences reuse
	// the buffers cyclically.
	MaxBuffers = 64
)

var (
	// ErrNoBuffers is returned when not a single grab buffer could be allocated.
	ErrNoBuffers = errors.New("no grab buffers could be allocated")
	// ErrNotArmed is returned by Trigger when no software-triggered run is active.
	ErrNotArmed = errors.New("no software-triggered acquisition is running")
)

// Options configures a Runner.
type Options struct {
	// Camera labels events and metrics.
	Camera    string
	Allocator frame.Allocator
	Display   Display
	Bus       Publisher
	Logger    *slog.Logger
}

// Result summarises a finished run.
type Result struct {
	Allocated int
	Freed     int
	Frames    int64
	Triggers  int
}

// Runner drives triggered acquisitions on one camera.
type Runner struct {
	cam    camera.Camera
	con    console.Console
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	armed    bool
	selector string
	triggers int
}

// New returns a runner. A nil allocator means an unbounded frame.Pool.
func New(cam camera.Camera, con console.Console, opts Options) *Runner {
	if opts.Allocator == nil {
		opts.Allocator = frame.NewPool(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{cam: cam, con: con, opts: opts, logger: opts.Logger}
}

// BufferCount returns the number of grab buffers a run with setup uses.
func BufferCount(setup trigger.Setup) int {
	if setup.Type == trigger.MultiFrame && setup.Frames > 0 {
		return int(min(setup.Frames, MaxBuffers))
	}
	return DefaultBuffers
}

// SequenceLength returns the frames each grab of a run waits for: the
// camera's frames per trigger for MultiFrame, 0 (until stopped) otherwise.
func SequenceLength(setup trigger.Setup) int {
	if setup.Type == trigger.MultiFrame && setup.Frames > 0 {
		return int(setup.Frames)
	}
	return 0
}

// allocate creates up to n buffers cleared to 0xFF. Allocation stops at
// the first failure; the failure is only logged at debug level.
func (r *Runner) allocate(n int) []*frame.Buffer {
	info := r.cam.ImageInfo()
	format := frame.Format{Width: info.Width, Height: info.Height, Bands: 1, BitDepth: 8}
	var bufs []*frame.Buffer
	for i := 0; i < n; i++ {
		b, err := r.opts.Allocator.Alloc(format)
		if err != nil {
			r.logger.Debug("Grab buffer allocation stopped", "allocated", i, "requested", n, "error", err)
			break
		}
		b.Clear(0xFF)
		b.Index = i
		bufs = append(bufs, b)
	}
	return bufs
}

// free releases bufs in reverse allocation order and returns the count.
func (r *Runner) free(bufs []*frame.Buffer) int {
	freed := 0
	for i := len(bufs) - 1; i >= 0; i-- {
		r.opts.Allocator.Free(bufs[i])
		freed++
	}
	return freed
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.con, format, args...)
}

func (r *Runner) publishState(state string, setup trigger.Setup, buffers int) {
	if r.opts.Bus == nil {
		return
	}
	r.opts.Bus.Publish(events.AcquisitionStateEvent{
		Camera:    r.opts.Camera,
		State:     state,
		Trigger:   setup.Type.String(),
		Buffers:   buffers,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
}

// Run performs one triggered acquisition with the trigger configuration in
// setup, which must already be applied to the camera. Triggers are reset
// and all buffers freed before Run returns, whatever the outcome.
func (r *Runner) Run(setup trigger.Setup) (res Result, err error) {
	n := BufferCount(setup)
	bufs := r.allocate(n)
	res.Allocated = len(bufs)

	hook := NewHook(r.con, r.opts.Camera, r.opts.Display, r.opts.Bus)
	defer func() {
		trigger.Reset(r.cam, r.logger)
		res.Freed = r.free(bufs)
		res.Frames = hook.Count()
		r.logger.Info("Triggered acquisition finished",
			"trigger", setup.Type, "frames", res.Frames, "triggers", res.Triggers,
			"allocated", res.Allocated, "freed", res.Freed)
	}()

	if len(bufs) == 0 {
		r.logger.Error("Triggered acquisition aborted", "error", ErrNoBuffers)
		return res, ErrNoBuffers
	}

	if setup.Software {
		r.printf("\n\nPress <t> to do a software trigger.\n")
	} else {
		r.printf("\n\nWaiting for a input trigger signal.\n")
	}
	r.printf("Press any other key to quit.\n\n")

	op := camera.StartOp{Count: SequenceLength(setup)}

	r.arm(setup)
	defer func() { res.Triggers = r.disarm() }()

	state := events.StateStarted
	for done := false; !done; {
		grab, err := r.cam.Process(bufs, op, hook.Process)
		if err != nil {
			r.logger.Error("Failed to start grab", "error", err)
			return res, fmt.Errorf("start grab: %w", err)
		}
		r.publishState(state, setup, len(bufs))
		state = events.StateRestarted

		var keyErr error
		done, keyErr = r.wait(setup)

		// A finished sequence is waited for so it can be restarted.
		if err := grab.Stop(!done); err != nil {
			r.logger.Error("Grab stopped with error", "error", err)
		}
		if keyErr != nil && !errors.Is(keyErr, io.EOF) {
			r.publishState(events.StateStopped, setup, len(bufs))
			return res, keyErr
		}
	}
	r.publishState(events.StateStopped, setup, len(bufs))
	return res, nil
}

// wait handles the keyboard for one grab and reports whether the operator
// asked to stop.
func (r *Runner) wait(setup trigger.Setup) (done bool, err error) {
	switch {
	case setup.Software:
		for {
			ch, err := r.con.Getch()
			if err != nil {
				return true, err
			}
			if ch != 'T' && ch != 't' {
				return true, nil
			}
			if err := r.fire(events.OriginKeyboard); err != nil {
				r.logger.Error("Software trigger failed", "error", err)
			}
			if setup.Type == trigger.MultiFrame {
				return false, nil
			}
		}
	case setup.Type != trigger.MultiFrame:
		_, err := r.con.Getch()
		return true, err
	default:
		if r.con.Kbhit() {
			_, err := r.con.Getch()
			return true, err
		}
		return false, nil
	}
}

func (r *Runner) arm(setup trigger.Setup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = setup.Software
	r.selector = setup.Selector
	r.triggers = 0
}

func (r *Runner) disarm() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = false
	return r.triggers
}

// Trigger issues a software trigger on behalf of a remote client. It fails
// with ErrNotArmed unless a software-triggered run is in progress.
func (r *Runner) Trigger() error {
	return r.fire(events.OriginRemote)
}

// fire selects the configured trigger selector and executes TriggerSoftware
// once.
func (r *Runner) fire(origin string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.armed {
		return ErrNotArmed
	}
	if err := r.cam.SetString(genicam.TriggerSelector, r.selector); err != nil {
		return fmt.Errorf("select trigger %s: %w", r.selector, err)
	}
	if err := r.cam.Execute(genicam.TriggerSoftware); err != nil {
		return fmt.Errorf("execute %s: %w", genicam.TriggerSoftware, err)
	}
	r.triggers++
	r.logger.Debug("Software trigger issued", "selector", r.selector, "origin", origin)
	if r.opts.Bus != nil {
		r.opts.Bus.Publish(events.TriggerIssuedEvent{
			Camera:    r.opts.Camera,
			Selector:  r.selector,
			Origin:    origin,
			Timestamp: time.Now().Format(time.RFC3339Nano),
		})
	}
	return nil
}
