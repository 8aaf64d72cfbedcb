package report_test

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/smazurov/gigecam/internal/camera/sim"
	"github.com/smazurov/gigecam/internal/console"
	"github.com/smazurov/gigecam/internal/report"
	"github.com/smazurov/gigecam/pkg/gev"
	"github.com/smazurov/gigecam/pkg/genicam"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

// bare is a session with no features at all.
type bare struct {
	*genicam.NodeMap
}

func (bare) InterfaceName() string        { return "eth9" }
func (bare) LocalIP() string              { return "10.0.0.1" }
func (bare) Capability(reg uint32) uint32 { return 0 }

func simCamera(t *testing.T) *sim.Camera {
	t.Helper()
	p, err := sim.LoadProfile("")
	if err != nil {
		t.Fatal(err)
	}
	c, err := sim.New(p, quietLog)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestAbsentFeaturesPrintNA(t *testing.T) {
	var out bytes.Buffer
	p := report.New(&out, bare{genicam.NewNodeMap()}, quietLog)
	caps, err := p.Summary(nil)
	if err != nil {
		t.Fatal(err)
	}
	if caps != (report.Capabilities{}) {
		t.Errorf("capabilities = %+v, want none", caps)
	}

	want := []string{
		"                       Camera: N/A N/A\n",
		"                Serial number: N/A\n",
		"            User-defined name: N/A\n",
		"       Camera is connected to: eth9 (10.0.0.1)\n",
		"          GigE Vision Version: N/A\n",
		"                  MAC Address: N/A\n",
		"           Current IP Address: N/A\n",
		"                  Packet size: 0\n",
		"                  Sensor size:    0 x 0   \n",
		"              Image Reverse X: false\n",
		"      Supported pixel formats: N/A\n",
		"  Supported acquisition modes: N/A\n",
		"                Exposure time: N/A\n",
		"             Supported events: N/A\n",
		"       N/A               N/A               N/A                      \n",
		"                    N/A            N/A                                \n",
	}
	got := out.String()
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("output missing %q", w)
		}
	}
	if n := strings.Count(got, "                    N/A            N/A"); n != 2 {
		t.Errorf("counter/timer N/A rows = %d, want 2", n)
	}
}

func TestSummaryOfSimulatedCamera(t *testing.T) {
	c := simCamera(t)
	var out bytes.Buffer
	caps, err := report.New(&out, c, quietLog).Summary(nil)
	if err != nil {
		t.Fatal(err)
	}

	wantCaps := report.Capabilities{
		ContinuousAM:               true,
		SingleFrameAM:              true,
		MultiFrameAM:               true,
		MultipleAcquisitionModes:   true,
		CanTriggerAcquisitionStart: true,
		CanTriggerFrameStart:       true,
	}
	if caps != wantCaps {
		t.Errorf("capabilities = %+v", caps)
	}

	want := []string{
		"                       Camera: Simulated Vision SIM-GEV-1300M\n",
		"       Camera is connected to: sim0 (192.168.10.1)\n",
		"          GigE Vision Version: 2.0\n",
		"                  MAC Address: 00-30-53-0A-0B-0C\n",
		"           Current IP Address: 192.168.10.2\n",
		"                  Packet size: 1500\n",
		"                  Sensor size: 1280 x 1024\n",
		"                  Current ROI:  640 x 480 \n",
		"      Maximum and Minimum ROI: 1280 x 1024;  16 x 16  \n",
		"      Supported pixel formats: Mono8\n                               Mono10\n",
		"                Exposure time: 10000.0 us\n",
		"       Line2             Output            TTL                      \n",
		"                    Counter2       CounterActive                      \n",
		"                    Timer1         TimerIdle                          \n",
	}
	got := out.String()
	for _, w := range want {
		if !strings.Contains(got, w) {
			t.Errorf("output missing %q", w)
		}
	}
}

func TestLUTPaging(t *testing.T) {
	c := simCamera(t)
	var out bytes.Buffer
	keys := console.NewScripted("\n")
	if err := report.New(&out, c, quietLog).LUT(keys); err != nil {
		t.Fatal(err)
	}
	got := out.String()
	if !strings.HasPrefix(got, "\nPress <Enter> to print Luminance Lookup table.\n") {
		t.Errorf("missing prompt: %q", got[:min(len(got), 80)])
	}
	for _, w := range []string{
		"\n    [0] : 0     ",
		"  [255] : 4095  ",
	} {
		if !strings.Contains(got, w) {
			t.Errorf("output missing %q", w)
		}
	}
	if n := strings.Count(got, " : "); n != 256 {
		t.Errorf("printed %d entries, want 256", n)
	}
	if keys.Remaining() != "" {
		t.Error("prompt key not consumed")
	}
}

func TestCapabilityPage(t *testing.T) {
	tests := []struct {
		name  string
		set   gev.CapabilitySet
		value uint32
		want  string
	}{
		{"none", gev.MessageProtocol, 0, "Message Protocol Capabilities\n\nNone\n"},
		{"only unnamed bits", gev.MessageProtocol, 1 << 5, "Message Protocol Capabilities\n\n"},
		{"ordered flags", gev.ControlProtocol, 1<<31 | 1<<0, "Control Protocol Capabilities\n\nUser defined name\nConcatenation\n"},
		{"configuration suffix", gev.NetworkInterfaceConfig, 1 << 1, "Network Interface Configuration\n\nDHCP Enabled\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			report.CapabilityPage(&out, tt.set, tt.value)
			if out.String() != tt.want {
				t.Errorf("got %q, want %q", out.String(), tt.want)
			}
		})
	}
}

func TestCapabilityPagesWaitBetweenPages(t *testing.T) {
	var out bytes.Buffer
	keys := console.NewScripted(strings.Repeat("\n", len(gev.CapabilitySets)))
	if err := report.CapabilityPages(&out, bare{}, keys); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out.String(), "Camera capabilities."); n != len(gev.CapabilitySets) {
		t.Errorf("pages = %d", n)
	}
	if n := strings.Count(out.String(), "Press <Enter> to continue\n"); n != len(gev.CapabilitySets)-1 {
		t.Errorf("prompts = %d", n)
	}
	if keys.Remaining() != "\n" {
		t.Errorf("remaining keys = %q, want one left for the caller", keys.Remaining())
	}
}

func TestDecodeCapabilities(t *testing.T) {
	c := simCamera(t)
	caps := report.DecodeCapabilities(c)
	if len(caps) != len(gev.CapabilitySets) {
		t.Fatalf("got %d registers", len(caps))
	}
	if caps[2].Key != "message_protocol" || len(caps[2].Flags) != 0 || caps[2].Flags == nil {
		t.Errorf("message protocol = %+v", caps[2])
	}
	if caps[4].Key != "physical_link" || len(caps[4].Flags) != 1 || caps[4].Flags[0] != "Single link" {
		t.Errorf("physical link = %+v", caps[4])
	}
}

func TestFormatters(t *testing.T) {
	if got := report.FormatMAC(0x0020FC010203); got != "00-20-FC-01-02-03" {
		t.Errorf("FormatMAC = %q", got)
	}
	if got := report.FormatIP(0xC0A80001); got != "192.168.0.1" {
		t.Errorf("FormatIP = %q", got)
	}
}
