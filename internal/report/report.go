// Package report prints the camera feature summary: device identity,
// transport layer, image format, acquisition, events, digital I/O,
// counters and timers, lookup tables and protocol capabilities.
//
// Every reporter reads through a genicam.Quiet window, so a feature the
// camera does not implement prints as "N/A" instead of failing.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/smazurov/gigecam/pkg/genicam"
)

const na = "N/A"

// Session is the part of a camera session the reporters read.
type Session interface {
	genicam.Device
	InterfaceName() string
	LocalIP() string
}

// Keys delivers single key presses for the paged parts of the report.
type Keys interface {
	Getch() (byte, error)
}

// Capabilities records which acquisition modes and trigger selectors the
// camera offers. It gates the trigger configuration menu.
type Capabilities struct {
	ContinuousAM               bool
	SingleFrameAM              bool
	MultiFrameAM               bool
	MultipleAcquisitionModes   bool
	CanTriggerAcquisitionStart bool
	CanTriggerFrameStart       bool
}

// CanTrigger reports whether any triggered acquisition is possible.
func (c Capabilities) CanTrigger() bool {
	return c.CanTriggerAcquisitionStart || c.CanTriggerFrameStart
}

// Printer writes reports for one camera session.
type Printer struct {
	w   io.Writer
	dev Session
	q   *genicam.Inspector
}

// New returns a Printer writing to w.
func New(w io.Writer, dev Session, logger *slog.Logger) *Printer {
	return &Printer{w: w, dev: dev, q: genicam.Quiet(dev, logger)}
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.w, format, args...)
}

func orNA(s string) string {
	if s == "" {
		return na
	}
	return s
}

func boolText(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// list prints label with the first entry and the remaining entries
// aligned beneath it.
func (p *Printer) list(label string, entries []string) {
	if len(entries) == 0 {
		p.printf("%30s %s\n", label, na)
		return
	}
	p.printf("%30s %s\n", label, entries[0])
	for _, e := range entries[1:] {
		p.printf("%30s %s\n", "", e)
	}
}

// Summary prints the banner and every feature reporter in order. The
// lookup tables are paged through keys when keys is non-nil.
func (p *Printer) Summary(keys Keys) (Capabilities, error) {
	p.printf("------------------------------------------------------------\n\n")
	p.printf("                  Camera features summary.                  \n")
	p.DeviceControls()
	p.TransportLayer()
	p.ImageFormat()
	caps := p.Acquisition()
	p.Events()
	p.DigitalIO()
	p.CountersAndTimers()
	if keys != nil {
		if err := p.LUT(keys); err != nil {
			return caps, err
		}
	}
	return caps, nil
}

// DeviceControls prints the device identity and the host interface the
// camera is reached through.
func (p *Printer) DeviceControls() {
	vendor := p.q.String(genicam.DeviceVendorName)
	model := p.q.String(genicam.DeviceModelName)
	serial := p.q.String(genicam.DeviceID)
	user := p.q.String(genicam.DeviceUserID)
	scan := p.q.String(genicam.DeviceScanType)

	p.printf("\n------------------ Camera Device Controls ------------------\n\n")
	p.printf("%30s %s %s\n", "Camera:", orNA(vendor), orNA(model))
	p.printf("%30s %s\n", "Serial number:", orNA(serial))
	p.printf("%30s %s\n", "User-defined name:", orNA(user))
	p.printf("%30s %s\n", "Device scan type:", orNA(scan))
	p.printf("%30s %s (%s)\n", "Camera is connected to:", p.dev.InterfaceName(), p.dev.LocalIP())
}

// TransportLayer prints the GigE Vision version, MAC, IP and packet size.
func (p *Printer) TransportLayer() {
	major := p.q.Int(genicam.QueryValue, genicam.GevVersionMajor)
	minor := p.q.Int(genicam.QueryValue, genicam.GevVersionMinor)
	packet := p.q.Int(genicam.QueryValue, genicam.GevSCPSPacketSize)
	mac := p.q.IntOr(genicam.QueryValue, genicam.GevMACAddress, -1)
	ip := p.q.IntOr(genicam.QueryValue, genicam.GevCurrentIPAddress, -1)

	p.printf("\n-------------- Camera Transport Layer Controls -------------\n\n")
	if major == 0 {
		p.printf("%30s N/A\n", "GigE Vision Version:")
	} else {
		p.printf("%30s %d.%d\n", "GigE Vision Version:", major, minor)
	}
	if mac == -1 {
		p.printf("%30s N/A\n", "MAC Address:")
	} else {
		p.printf("%30s %s\n", "MAC Address:", FormatMAC(mac))
	}
	if ip == -1 {
		p.printf("%30s N/A\n", "Current IP Address:")
	} else {
		p.printf("%30s %s\n", "Current IP Address:", FormatIP(ip))
	}
	p.printf("%30s %d\n", "Packet size:", packet)
}

// FormatMAC renders the low 48 bits of v as dash-separated hex octets,
// most significant first.
func FormatMAC(v int64) string {
	return fmt.Sprintf("%02X-%02X-%02X-%02X-%02X-%02X",
		byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// FormatIP renders the low 32 bits of v as a dotted quad.
func FormatIP(v int64) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// ImageFormat prints sensor size, ROI bounds, reversal and pixel formats.
func (p *Printer) ImageFormat() {
	sensorW := p.q.Int(genicam.QueryValue, genicam.SensorWidth)
	sensorH := p.q.Int(genicam.QueryValue, genicam.SensorHeight)
	w := p.q.Int(genicam.QueryValue, genicam.Width)
	h := p.q.Int(genicam.QueryValue, genicam.Height)
	reverseX := p.q.Bool(genicam.ReverseX)
	reverseY := p.q.Bool(genicam.ReverseY)
	maxW := p.q.Int(genicam.QueryMax, genicam.Width)
	maxH := p.q.Int(genicam.QueryMax, genicam.Height)
	minW := p.q.Int(genicam.QueryMin, genicam.Width)
	minH := p.q.Int(genicam.QueryMin, genicam.Height)
	formats := p.q.Entries(genicam.PixelFormat)

	if sensorW == 0 {
		sensorW = w
	}
	if sensorH == 0 {
		sensorH = h
	}

	p.printf("\n------------------- Image Format Controls ------------------\n\n")
	p.printf("%30s %4d x %-4d\n", "Sensor size:", sensorW, sensorH)
	p.printf("%30s %4d x %-4d\n", "Current ROI:", w, h)
	p.printf("%30s %4d x %-4d;%4d x %-4d\n", "Maximum and Minimum ROI:", maxW, maxH, minW, minH)
	p.printf("\n%30s %s\n", "Image Reverse X:", boolText(reverseX))
	p.printf("%30s %s\n", "Image Reverse Y:", boolText(reverseY))
	p.printf("\n")
	p.list("Supported pixel formats:", formats)
}

// Acquisition prints the acquisition, trigger and exposure controls and
// returns what the camera can do with them.
func (p *Printer) Acquisition() Capabilities {
	modes := p.q.Entries(genicam.AcquisitionMode)
	selectors := p.q.Entries(genicam.TriggerSelector)
	exposures := p.q.Entries(genicam.ExposureMode)
	exposure := p.q.Float(genicam.QueryValue, genicam.ExposureTime)

	caps := Capabilities{
		ContinuousAM:               slices.Contains(modes, genicam.ModeContinuous),
		SingleFrameAM:              slices.Contains(modes, genicam.ModeSingleFrame),
		MultiFrameAM:               slices.Contains(modes, genicam.ModeMultiFrame),
		MultipleAcquisitionModes:   len(modes) > 1,
		CanTriggerAcquisitionStart: slices.Contains(selectors, genicam.SelectorAcquisitionStart),
		CanTriggerFrameStart:       slices.Contains(selectors, genicam.SelectorFrameStart),
	}

	p.printf("\n------------------- Acquisition Controls -------------------\n\n")
	p.list("Supported acquisition modes:", modes)
	p.printf("\n")
	p.list("Supported trigger selectors:", selectors)
	p.printf("\n")
	p.list("Supported exposure modes:", exposures)
	if exposure == 0 {
		p.printf("\n%30s %s\n", "Exposure time:", na)
	} else {
		p.printf("\n%30s %.1f us\n", "Exposure time:", exposure)
	}
	return caps
}

// Events prints the event selector entries.
func (p *Printer) Events() {
	events := p.q.Entries(genicam.EventSelector)

	p.printf("\n---------------------- Event Controls ----------------------\n\n")
	p.list("Supported events:", events)
}

// DigitalIO prints the mode and format of every I/O line.
func (p *Printer) DigitalIO() {
	lines := p.q.Entries(genicam.LineSelector)
	modes := make([]string, len(lines))
	formats := make([]string, len(lines))
	for i, line := range lines {
		p.q.SetString(genicam.LineSelector, line)
		modes[i] = p.q.String(genicam.LineMode)
		formats[i] = p.q.String(genicam.LineFormat)
	}

	const row = "%7s%-18s%-18s%-18s%7s\n"
	p.printf("\n------------------- Digital I/O Controls -------------------\n\n")
	p.printf(row+"\n", "", "Name", "Mode", "Format", "")
	if len(lines) == 0 {
		p.printf(row, "", na, na, na, "")
		return
	}
	for i, line := range lines {
		p.printf(row, "", line, modes[i], formats[i], "")
	}
}

// CountersAndTimers prints the status of every counter and timer.
func (p *Printer) CountersAndTimers() {
	counters := p.q.Entries(genicam.CounterSelector)
	timers := p.q.Entries(genicam.TimerSelector)
	counterStatus := p.statuses(genicam.CounterSelector, genicam.CounterStatus, counters)
	timerStatus := p.statuses(genicam.TimerSelector, genicam.TimerStatus, timers)

	const row = "%20s%-15s%-15s%20s\n"
	p.printf("\n---------------- Counter and Timer Controls ----------------\n\n")
	p.printf(row+"\n", "", "Name", "Status", "")
	for _, group := range []struct{ names, status []string }{
		{counters, counterStatus},
		{timers, timerStatus},
	} {
		if len(group.names) == 0 {
			p.printf(row, "", na, na, "")
			continue
		}
		for i, name := range group.names {
			p.printf(row, "", name, group.status[i], "")
		}
	}
}

func (p *Printer) statuses(selector, status string, entries []string) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		p.q.SetString(selector, e)
		out[i] = p.q.String(status)
	}
	return out
}
