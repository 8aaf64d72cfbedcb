// Package demo runs the interactive GigE Vision walkthrough: feature
// summary, capability pages, feature browser, continuous grab and the
// optional triggered acquisition.
package demo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/smazurov/gigecam/internal/acquire"
	"github.com/smazurov/gigecam/internal/camera"
	"github.com/smazurov/gigecam/internal/console"
	"github.com/smazurov/gigecam/internal/display"
	"github.com/smazurov/gigecam/internal/events"
	"github.com/smazurov/gigecam/internal/frame"
	"github.com/smazurov/gigecam/internal/report"
	"github.com/smazurov/gigecam/internal/store"
	"github.com/smazurov/gigecam/internal/trigger"
)

const notGigEMessage = "This example program can only be used with a GigE Vision system\n" +
	"(GigE Vision driver or GevIQ adapter).\n" +
	"Please ensure the camera backend is set accordingly.\n" +
	"-------------------------------------------------------------\n\n" +
	"Press <enter> to quit.\n"

// Options configures a Demo. Everything but Camera is optional.
type Options struct {
	// Camera labels events, metrics and journal rows.
	Camera string
	// PrintLUT pages through the lookup tables after the summary.
	PrintLUT bool
	// BrowserURL is where the feature browser is served. Empty means the
	// HTTP API is disabled.
	BrowserURL string
	Display    *display.Display
	Allocator  frame.Allocator
	Bus        *events.Bus
	Journal    *store.Journal
	Logger     *slog.Logger
}

// Demo is one interactive session on an open camera.
type Demo struct {
	cam     camera.Camera
	con     console.Console
	opts    Options
	display *display.Display
	runner  *acquire.Runner
	logger  *slog.Logger
}

// New prepares a session. The display is allocated from the camera's image
// format unless opts supplies one.
func New(cam camera.Camera, con console.Console, opts Options) (*Demo, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	d := &Demo{cam: cam, con: con, opts: opts, logger: opts.Logger}

	d.display = opts.Display
	if d.display == nil {
		disp, err := display.New(cam.ImageInfo().Format(), opts.Logger)
		if err != nil {
			return nil, err
		}
		d.display = disp
	}

	runnerOpts := acquire.Options{
		Camera:    opts.Camera,
		Allocator: opts.Allocator,
		Display:   d.display,
		Logger:    opts.Logger,
	}
	if opts.Bus != nil {
		runnerOpts.Bus = opts.Bus
	}
	d.runner = acquire.New(cam, con, runnerOpts)
	return d, nil
}

// Display returns the display the grabs are copied into.
func (d *Demo) Display() *display.Display { return d.display }

// Runner returns the triggered acquisition runner, for remote triggers.
func (d *Demo) Runner() *acquire.Runner { return d.runner }

func (d *Demo) printf(format string, args ...any) {
	fmt.Fprintf(d.con, format, args...)
}

// pause prints prompt and waits for a key.
func (d *Demo) pause(prompt string) error {
	d.printf("%s", prompt)
	_, err := d.con.Getch()
	return err
}

// Run walks through the demo. It returns camera.ErrNotGigE, after the
// operator acknowledged the message, when the camera is not a GigE Vision
// system.
func (d *Demo) Run(ctx context.Context) error {
	if !camera.IsGigE(d.cam.SystemType()) {
		d.printf("%s", notGigEMessage)
		_, _ = d.con.Getch()
		return camera.ErrNotGigE
	}

	if err := d.pause("This example showcases GigE Vision specific features.\nPress <Enter> to start.\n\n"); err != nil {
		return err
	}

	var keys report.Keys
	if d.opts.PrintLUT {
		keys = d.con
	}
	caps, err := report.New(d.con, d.cam, d.logger).Summary(keys)
	if err != nil {
		return err
	}
	if err := d.pause("\nPress <Enter> to continue.\n"); err != nil {
		return err
	}

	if err := report.CapabilityPages(d.con, d.cam, d.con); err != nil {
		return err
	}
	if err := d.pause("\nPress <Enter> to continue.\n"); err != nil {
		return err
	}

	if d.opts.BrowserURL != "" {
		d.printf("\nDisplaying the camera's feature browser at %s/docs\n", d.opts.BrowserURL)
		d.printf("Live display: %s/display.mjpeg\n", d.opts.BrowserURL)
	} else {
		d.printf("\nThe feature browser is disabled.\n")
	}
	if err := d.pause("Press <Enter> to continue.\n"); err != nil {
		return err
	}

	if err := d.grabContinuous(); err != nil {
		return err
	}

	if !caps.CanTrigger() {
		return d.pause("\nPress <Enter> to quit.\n")
	}
	d.printf("\nYour camera supports acquisition triggers.\n")
	d.printf("Do you want to test triggered acquisition (Y/N)? ")
	key, err := d.con.Getch()
	if err != nil {
		return err
	}
	d.printf("\n")
	if key != 'Y' && key != 'y' {
		return nil
	}
	return d.triggered(ctx, caps)
}

// grabContinuous grabs into the display until a key is pressed.
func (d *Demo) grabContinuous() error {
	buf, err := frame.New(d.cam.ImageInfo().Format())
	if err != nil {
		return fmt.Errorf("allocate grab buffer: %w", err)
	}
	var count atomic.Int64
	grab, err := d.cam.Process([]*frame.Buffer{buf}, camera.StartOp{}, func(b *frame.Buffer) {
		n := count.Add(1)
		d.display.Copy(b)
		if d.opts.Bus != nil {
			d.opts.Bus.Publish(events.FrameProcessedEvent{
				Camera:    d.opts.Camera,
				Count:     n,
				Buffer:    b.Index,
				Width:     b.Width,
				Height:    b.Height,
				Timestamp: time.Now().Format(time.RFC3339Nano),
			})
		}
	})
	if err != nil {
		return fmt.Errorf("start continuous grab: %w", err)
	}
	d.publishState(events.StateStarted)

	d.printf("\nContinuous image grab in progress.\nPress <Enter> to stop.\n")
	_, keyErr := d.con.Getch()

	if err := grab.Stop(false); err != nil {
		d.logger.Error("Continuous grab stopped with error", "error", err)
	}
	d.publishState(events.StateStopped)
	d.logger.Info("Continuous grab stopped", "frames", count.Load())
	return keyErr
}

func (d *Demo) publishState(state string) {
	if d.opts.Bus == nil {
		return
	}
	d.opts.Bus.Publish(events.AcquisitionStateEvent{
		Camera:    d.opts.Camera,
		State:     state,
		Trigger:   "none",
		Buffers:   1,
		Timestamp: time.Now().Format(time.RFC3339Nano),
	})
}

// triggered configures triggering and runs one triggered acquisition,
// journaling it when a journal is set.
func (d *Demo) triggered(ctx context.Context, caps report.Capabilities) error {
	setup, err := trigger.New(d.con, d.cam, d.logger).Configure(caps)
	if errors.Is(err, trigger.ErrUnsupported) {
		d.logger.Info("Triggered acquisition skipped", "reason", err)
		return nil
	}
	if err != nil {
		trigger.Reset(d.cam, d.logger)
		return err
	}

	var runID int64
	if d.opts.Journal != nil {
		runID, err = d.opts.Journal.Begin(ctx, store.Run{
			Camera:   d.opts.Camera,
			Trigger:  setup.Type.String(),
			Selector: setup.Selector,
			Software: setup.Software,
		})
		if err != nil {
			d.logger.Warn("Failed to journal run", "error", err)
		}
	}

	res, runErr := d.runner.Run(setup)

	if runID != 0 {
		if err := d.opts.Journal.Finish(ctx, runID, res.Frames, int64(res.Triggers), res.Allocated, res.Freed, runErr); err != nil {
			d.logger.Warn("Failed to finish journaled run", "id", runID, "error", err)
		}
	}
	return runErr
}
