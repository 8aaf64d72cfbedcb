// Package trigger puts a camera into triggered acquisition according to
// its capabilities and the operator's choices, and takes it out again.
package trigger

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/smazurov/gigecam/internal/console"
	"github.com/smazurov/gigecam/internal/report"
	"github.com/smazurov/gigecam/pkg/genicam"
)

// Type is the kind of triggered acquisition that was configured.
type Type int

const (
	Continuous Type = iota + 1
	MultiFrame
	SingleFrame
)

func (t Type) String() string {
	switch t {
	case Continuous:
		return "continuous"
	case MultiFrame:
		return "multi_frame"
	case SingleFrame:
		return "single_frame"
	default:
		return "none"
	}
}

// MaxFrames bounds the frames per trigger when the camera does not
// report AcquisitionFrameCount limits of its own.
const MaxFrames = 1000

// ErrUnsupported is returned when the camera can trigger neither
// AcquisitionStart nor FrameStart.
var ErrUnsupported = errors.New("camera does not support acquisition triggers")

// Setup is the trigger configuration applied to the camera.
type Setup struct {
	Type Type
	// Selector is the trigger selector software triggers are issued on.
	Selector string
	// AcquisitionMode is written before triggering is enabled. Empty
	// leaves the camera's mode unchanged.
	AcquisitionMode string
	// Software is set when the trigger source is "Software".
	Software bool
	// Frames is the number of frames per trigger for MultiFrame.
	Frames int64
}

// Choice is one entry of the trigger type menu.
type Choice struct {
	Key   byte
	Label string
	Type  Type
}

// Menu returns the trigger types offered for caps, in display order. It
// is empty unless the camera triggers AcquisitionStart and supports more
// than one acquisition mode.
func Menu(caps report.Capabilities) []Choice {
	if !caps.CanTriggerAcquisitionStart || !caps.MultipleAcquisitionModes {
		return nil
	}
	var choices []Choice
	if caps.ContinuousAM {
		choices = append(choices, Choice{'C', "Continuous acquisition", Continuous})
	}
	if caps.MultiFrameAM {
		choices = append(choices, Choice{'M', "MultiFrame acquisition", MultiFrame})
	}
	if caps.SingleFrameAM {
		choices = append(choices, Choice{'S', "SingleFrame acquisition", SingleFrame})
	}
	return choices
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// Plan maps a menu key to the setup it selects. Keys are case-insensitive;
// ok is false for keys not offered by Menu(caps).
func Plan(caps report.Capabilities, key byte) (setup Setup, ok bool) {
	key = upper(key)
	for _, c := range Menu(caps) {
		if c.Key != key {
			continue
		}
		switch c.Type {
		case Continuous:
			return Setup{Type: Continuous, Selector: genicam.SelectorAcquisitionStart, AcquisitionMode: genicam.ModeContinuous}, true
		case MultiFrame:
			return Setup{Type: MultiFrame, Selector: genicam.SelectorAcquisitionStart, AcquisitionMode: genicam.ModeMultiFrame}, true
		case SingleFrame:
			if caps.CanTriggerFrameStart {
				return Setup{Type: SingleFrame, Selector: genicam.SelectorFrameStart, AcquisitionMode: genicam.ModeContinuous}, true
			}
			return Setup{Type: SingleFrame, Selector: genicam.SelectorAcquisitionStart, AcquisitionMode: genicam.ModeSingleFrame}, true
		}
	}
	return Setup{}, false
}

var selectedMessage = map[Type]string{
	Continuous:  "Continuous acquisition trigger selected.\n",
	MultiFrame:  "Multi Frame acquisition trigger selected.\n",
	SingleFrame: "Single Frame acquisition trigger selected.\n",
}

// Configurator applies trigger setups to one camera.
type Configurator struct {
	con    console.Console
	dev    genicam.Device
	logger *slog.Logger
}

// New returns a Configurator prompting on con.
func New(con console.Console, dev genicam.Device, logger *slog.Logger) *Configurator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Configurator{con: con, dev: dev, logger: logger}
}

func (c *Configurator) printf(format string, args ...any) {
	fmt.Fprintf(c.con, format, args...)
}

// write sets a feature, logging failures. Triggering proceeds with
// whatever the camera accepted.
func (c *Configurator) write(name, value string) {
	if err := c.dev.SetString(name, value); err != nil {
		c.logger.Error("Failed to set feature", "feature", name, "value", value, "error", err)
	}
}

func (c *Configurator) enable(s Setup) {
	if s.AcquisitionMode != "" {
		c.write(genicam.AcquisitionMode, s.AcquisitionMode)
	}
	c.write(genicam.TriggerSelector, s.Selector)
	c.write(genicam.TriggerMode, genicam.TriggerOn)
}

// Configure asks the operator for a trigger type and source and applies
// them. It returns ErrUnsupported when caps allow no triggering.
func (c *Configurator) Configure(caps report.Capabilities) (Setup, error) {
	if menu := Menu(caps); menu != nil {
		return c.configureMenu(caps, menu)
	}
	if !caps.CanTriggerFrameStart {
		return Setup{}, ErrUnsupported
	}

	s := Setup{Type: SingleFrame, Selector: genicam.SelectorFrameStart}
	c.enable(s)
	c.printf("\n\nFrame start trigger will be performed.\n")
	software, err := c.SelectSource()
	if err != nil {
		return s, err
	}
	s.Software = software
	c.logger.Info("Trigger configured", "type", s.Type, "selector", s.Selector, "software", s.Software)
	return s, nil
}

func (c *Configurator) configureMenu(caps report.Capabilities, menu []Choice) (Setup, error) {
	for {
		c.printf("\n\n%-35s", "Do you want to trigger a:")
		for _, choice := range menu {
			c.printf("(%c) %-30s\n%35s", choice.Key, choice.Label, "")
		}
		c.printf("\n")

		key, err := c.con.Getch()
		if err != nil {
			return Setup{}, err
		}
		s, ok := Plan(caps, key)
		if !ok {
			c.printf("Invalid selection.")
			continue
		}

		c.enable(s)
		c.printf("%s", selectedMessage[s.Type])
		if s.Software, err = c.SelectSource(); err != nil {
			return s, err
		}
		if s.Type == MultiFrame {
			if s.Frames, err = c.frameCount(); err != nil {
				return s, err
			}
			c.printf("%d Frames will be acquired per trigger.\n", s.Frames)
		}
		c.logger.Info("Trigger configured",
			"type", s.Type, "selector", s.Selector, "mode", s.AcquisitionMode,
			"software", s.Software, "frames", s.Frames)
		return s, nil
	}
}

// SelectSource lists the trigger sources, reads the operator's choice
// and writes it. It reports whether the software source was chosen. A
// camera without TriggerSource entries leaves the source untouched.
func (c *Configurator) SelectSource() (software bool, err error) {
	c.printf("%-35s", "Please select the trigger source:")
	sources := genicam.Quiet(c.dev, c.logger).Entries(genicam.TriggerSource)
	if len(sources) == 0 {
		return false, nil
	}

	c.printf("(%d) %-30s\n", 0, sources[0])
	for i := 1; i < len(sources); i++ {
		c.printf("%-35s(%d) %-20s\n", "", i, sources[i])
	}

	sel, err := c.scanNumber(0, int64(len(sources))-1)
	if err != nil {
		return false, err
	}
	source := sources[sel]
	c.printf("%s selected\n", source)
	c.write(genicam.TriggerSource, source)
	return source == genicam.SourceSoftware, nil
}

// scanNumber reads numbers until one lies in [lo, hi]. Unparsable or out
// of range entries print "Invalid selection." and are asked for again;
// only console errors end the prompt.
func (c *Configurator) scanNumber(lo, hi int64) (int64, error) {
	for {
		v, err := c.con.ScanInt()
		switch {
		case errors.Is(err, console.ErrInvalidNumber):
		case err != nil:
			return 0, err
		case v >= lo && v <= hi:
			return v, nil
		}
		c.printf("Invalid selection.\n")
	}
}

// frameCountRange returns the AcquisitionFrameCount bounds, at least 1
// and at most MaxFrames.
func (c *Configurator) frameCountRange() (lo, hi int64) {
	lo, hi = 1, MaxFrames
	if v, err := c.dev.Int(genicam.QueryMin, genicam.AcquisitionFrameCount); err == nil && v > lo {
		lo = v
	}
	if v, err := c.dev.Int(genicam.QueryMax, genicam.AcquisitionFrameCount); err == nil && v < hi {
		hi = v
	}
	return lo, hi
}

// frameCount asks for the frames per trigger, writes it and returns the
// count the camera actually holds afterwards, which is what each
// acquisition start trigger will deliver.
func (c *Configurator) frameCount() (int64, error) {
	lo, hi := c.frameCountRange()
	c.printf("\n%-30s", "\nHow many frames per trigger?")
	frames, err := c.scanNumber(lo, hi)
	if err != nil {
		return 0, err
	}
	if err := c.dev.SetInt(genicam.AcquisitionFrameCount, frames); err != nil {
		c.logger.Error("Failed to set frame count", "frames", frames, "error", err)
	}
	if v, err := c.dev.Int(genicam.QueryValue, genicam.AcquisitionFrameCount); err == nil && v > 0 {
		if v != frames {
			c.logger.Warn("Camera kept a different frame count", "requested", frames, "frames", v)
		}
		frames = v
	}
	return frames, nil
}

// Reset turns triggering off on both selectors, ignoring selectors the
// camera does not have.
func Reset(dev genicam.Device, logger *slog.Logger) {
	q := genicam.Quiet(dev, logger)
	q.SetString(genicam.TriggerSelector, genicam.SelectorFrameStart)
	q.SetString(genicam.TriggerMode, genicam.TriggerOff)
	q.SetString(genicam.TriggerSelector, genicam.SelectorAcquisitionStart)
	q.SetString(genicam.TriggerMode, genicam.TriggerOff)
}
