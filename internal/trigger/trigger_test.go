package trigger

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/smazurov/gigecam/internal/console"
	"github.com/smazurov/gigecam/internal/report"
	"github.com/smazurov/gigecam/pkg/genicam"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

var allCaps = report.Capabilities{
	ContinuousAM:               true,
	SingleFrameAM:              true,
	MultiFrameAM:               true,
	MultipleAcquisitionModes:   true,
	CanTriggerAcquisitionStart: true,
	CanTriggerFrameStart:       true,
}

func newDevice(t *testing.T, withSources bool) *genicam.NodeMap {
	t.Helper()
	selectors := []string{genicam.SelectorAcquisitionStart, genicam.SelectorFrameStart}
	nodes := []genicam.Node{
		{Name: genicam.AcquisitionMode, Type: genicam.TypeEnum, Entries: []string{"Continuous", "MultiFrame", "SingleFrame"}, Value: "Continuous"},
		{Name: genicam.AcquisitionFrameCount, Type: genicam.TypeInt, Min: 1, Max: 100, Value: 1},
		{Name: genicam.TriggerSelector, Type: genicam.TypeEnum, Entries: selectors, Value: genicam.SelectorAcquisitionStart},
		{
			Name: genicam.TriggerMode, Type: genicam.TypeEnum, Entries: []string{"Off", "On"}, Selector: genicam.TriggerSelector,
			Selected: map[string]any{genicam.SelectorAcquisitionStart: "Off", genicam.SelectorFrameStart: "Off"},
		},
	}
	if withSources {
		nodes = append(nodes, genicam.Node{
			Name: genicam.TriggerSource, Type: genicam.TypeEnum, Entries: []string{"Software", "Line0", "Line1"}, Selector: genicam.TriggerSelector,
			Selected: map[string]any{genicam.SelectorAcquisitionStart: "Line1", genicam.SelectorFrameStart: "Line1"},
		})
	}
	m := genicam.NewNodeMap()
	for _, n := range nodes {
		if err := m.Add(n); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func valueAt(t *testing.T, m *genicam.NodeMap, name, key string) any {
	t.Helper()
	v, ok := m.ValueAt(name, key)
	if !ok {
		t.Fatalf("%s[%s] not set", name, key)
	}
	return v
}

func TestMenu(t *testing.T) {
	tests := []struct {
		name string
		caps report.Capabilities
		want string
	}{
		{"all modes", allCaps, "CMS"},
		{"no multiframe", report.Capabilities{ContinuousAM: true, SingleFrameAM: true, MultipleAcquisitionModes: true, CanTriggerAcquisitionStart: true}, "CS"},
		{"single mode", report.Capabilities{ContinuousAM: true, CanTriggerAcquisitionStart: true}, ""},
		{"frame start only", report.Capabilities{ContinuousAM: true, MultiFrameAM: true, MultipleAcquisitionModes: true, CanTriggerFrameStart: true}, ""},
		{"nothing", report.Capabilities{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var keys []byte
			for _, c := range Menu(tt.caps) {
				keys = append(keys, c.Key)
			}
			if string(keys) != tt.want {
				t.Errorf("menu keys = %q, want %q", keys, tt.want)
			}
		})
	}
}

func TestPlan(t *testing.T) {
	noFrameStart := allCaps
	noFrameStart.CanTriggerFrameStart = false
	noMulti := allCaps
	noMulti.MultiFrameAM = false

	tests := []struct {
		name string
		caps report.Capabilities
		key  byte
		want Setup
		ok   bool
	}{
		{"continuous", allCaps, 'c', Setup{Type: Continuous, Selector: "AcquisitionStart", AcquisitionMode: "Continuous"}, true},
		{"multi frame", allCaps, 'M', Setup{Type: MultiFrame, Selector: "AcquisitionStart", AcquisitionMode: "MultiFrame"}, true},
		{"single frame via frame start", allCaps, 's', Setup{Type: SingleFrame, Selector: "FrameStart", AcquisitionMode: "Continuous"}, true},
		{"single frame mode", noFrameStart, 'S', Setup{Type: SingleFrame, Selector: "AcquisitionStart", AcquisitionMode: "SingleFrame"}, true},
		{"not offered", noMulti, 'm', Setup{}, false},
		{"invalid key", allCaps, 'x', Setup{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Plan(tt.caps, tt.key)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Plan = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestConfigureMultiFrame(t *testing.T) {
	dev := newDevice(t, true)
	con := console.NewScripted("xm1\n7\n")
	s, err := New(con, dev, quietLog).Configure(allCaps)
	if err != nil {
		t.Fatal(err)
	}
	want := Setup{Type: MultiFrame, Selector: "AcquisitionStart", AcquisitionMode: "MultiFrame", Frames: 7}
	if s != want {
		t.Errorf("setup = %+v, want %+v", s, want)
	}

	out := con.Output()
	for _, w := range []string{
		"Do you want to trigger a:          (C) Continuous acquisition        \n",
		"Invalid selection.",
		"Multi Frame acquisition trigger selected.\n",
		"Please select the trigger source:  (0) Software                      \n",
		"                                   (2) Line1               \n",
		"Line0 selected\n",
		"\n\nHow many frames per trigger? ",
		"7 Frames will be acquired per trigger.\n",
	} {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q", w)
		}
	}
	if n := strings.Count(out, "Do you want to trigger a:"); n != 2 {
		t.Errorf("menu shown %d times, want 2", n)
	}

	if v, _ := dev.Int(genicam.QueryValue, genicam.AcquisitionFrameCount); v != 7 {
		t.Errorf("AcquisitionFrameCount = %d", v)
	}
	if v, _ := dev.String(genicam.AcquisitionMode); v != "MultiFrame" {
		t.Errorf("AcquisitionMode = %q", v)
	}
	if v := valueAt(t, dev, genicam.TriggerMode, "AcquisitionStart"); v != "On" {
		t.Errorf("TriggerMode[AcquisitionStart] = %v", v)
	}
	if v := valueAt(t, dev, genicam.TriggerSource, "AcquisitionStart"); v != "Line0" {
		t.Errorf("TriggerSource[AcquisitionStart] = %v", v)
	}
}

func TestConfigureFrameCountOutOfRange(t *testing.T) {
	dev := newDevice(t, true)
	con := console.NewScripted("m0\n0\n101\n-\n12\n")
	s, err := New(con, dev, quietLog).Configure(allCaps)
	if err != nil {
		t.Fatal(err)
	}
	if s.Frames != 12 {
		t.Errorf("Frames = %d, want 12", s.Frames)
	}
	if n := strings.Count(con.Output(), "Invalid selection.\n"); n != 3 {
		t.Errorf("invalid prompts = %d, want 3", n)
	}
	if v, _ := dev.Int(genicam.QueryValue, genicam.AcquisitionFrameCount); v != 12 {
		t.Errorf("AcquisitionFrameCount = %d", v)
	}
}

// fixedFrameCount refuses AcquisitionFrameCount writes.
type fixedFrameCount struct {
	*genicam.NodeMap
}

func (d fixedFrameCount) SetInt(name string, v int64) error {
	if name == genicam.AcquisitionFrameCount {
		return &genicam.FeatureError{Op: "write", Feature: name, Err: genicam.ErrAccess}
	}
	return d.NodeMap.SetInt(name, v)
}

func TestConfigureFrameCountReadBack(t *testing.T) {
	dev := newDevice(t, true)
	if err := dev.SetInt(genicam.AcquisitionFrameCount, 4); err != nil {
		t.Fatal(err)
	}
	con := console.NewScripted("m0\n9\n")
	s, err := New(con, fixedFrameCount{dev}, quietLog).Configure(allCaps)
	if err != nil {
		t.Fatal(err)
	}
	if s.Frames != 4 {
		t.Errorf("Frames = %d, want the camera's 4", s.Frames)
	}
	if !strings.Contains(con.Output(), "4 Frames will be acquired per trigger.\n") {
		t.Errorf("output = %q", con.Output())
	}
}

func TestConfigureSoftwareSingleFrame(t *testing.T) {
	dev := newDevice(t, true)
	con := console.NewScripted("S0\n")
	s, err := New(con, dev, quietLog).Configure(allCaps)
	if err != nil {
		t.Fatal(err)
	}
	if !s.Software || s.Selector != "FrameStart" || s.Type != SingleFrame {
		t.Errorf("setup = %+v", s)
	}
	if v := valueAt(t, dev, genicam.TriggerMode, "FrameStart"); v != "On" {
		t.Errorf("TriggerMode[FrameStart] = %v", v)
	}
	if v := valueAt(t, dev, genicam.TriggerMode, "AcquisitionStart"); v != "Off" {
		t.Errorf("TriggerMode[AcquisitionStart] = %v", v)
	}
}

func TestConfigureFrameStartOnly(t *testing.T) {
	dev := newDevice(t, true)
	con := console.NewScripted("0\n")
	s, err := New(con, dev, quietLog).Configure(report.Capabilities{CanTriggerFrameStart: true})
	if err != nil {
		t.Fatal(err)
	}
	if s.Type != SingleFrame || s.Selector != "FrameStart" || !s.Software || s.AcquisitionMode != "" {
		t.Errorf("setup = %+v", s)
	}
	if !strings.Contains(con.Output(), "\n\nFrame start trigger will be performed.\n") {
		t.Errorf("output = %q", con.Output())
	}
	if strings.Contains(con.Output(), "Do you want to trigger a:") {
		t.Error("menu shown without AcquisitionStart triggering")
	}
}

func TestConfigureUnsupported(t *testing.T) {
	con := console.NewScripted("")
	_, err := New(con, newDevice(t, true), quietLog).Configure(report.Capabilities{ContinuousAM: true})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}

func TestConfigureInputExhausted(t *testing.T) {
	con := console.NewScripted("q")
	if _, err := New(con, newDevice(t, true), quietLog).Configure(allCaps); !errors.Is(err, io.EOF) {
		t.Errorf("error = %v, want EOF", err)
	}
}

func TestSelectSource(t *testing.T) {
	t.Run("out of range re-prompts", func(t *testing.T) {
		dev := newDevice(t, true)
		con := console.NewScripted("5\n2\n")
		software, err := New(con, dev, quietLog).SelectSource()
		if err != nil {
			t.Fatal(err)
		}
		if software {
			t.Error("Line1 reported as software")
		}
		if n := strings.Count(con.Output(), "Invalid selection.\n"); n != 1 {
			t.Errorf("invalid prompts = %d", n)
		}
	})

	t.Run("malformed numbers re-prompt", func(t *testing.T) {
		dev := newDevice(t, true)
		con := console.NewScripted("-\n99999999999999999999\n0\n")
		software, err := New(con, dev, quietLog).SelectSource()
		if err != nil {
			t.Fatal(err)
		}
		if !software {
			t.Error("Software source not reported")
		}
		if n := strings.Count(con.Output(), "Invalid selection.\n"); n != 2 {
			t.Errorf("invalid prompts = %d, want 2", n)
		}
	})

	t.Run("eof ends the prompt", func(t *testing.T) {
		con := console.NewScripted("-\n")
		if _, err := New(con, newDevice(t, true), quietLog).SelectSource(); !errors.Is(err, io.EOF) {
			t.Errorf("error = %v, want EOF", err)
		}
	})

	t.Run("no sources", func(t *testing.T) {
		con := console.NewScripted("1\n")
		software, err := New(con, newDevice(t, false), quietLog).SelectSource()
		if err != nil || software {
			t.Errorf("SelectSource = %v, %v", software, err)
		}
		if con.Remaining() != "1\n" {
			t.Error("input consumed without sources")
		}
	})
}

func TestResetLeavesBothSelectorsOff(t *testing.T) {
	for _, active := range []string{genicam.SelectorAcquisitionStart, genicam.SelectorFrameStart} {
		t.Run(active, func(t *testing.T) {
			dev := newDevice(t, true)
			if err := dev.SetString(genicam.TriggerSelector, active); err != nil {
				t.Fatal(err)
			}
			if err := dev.SetString(genicam.TriggerMode, genicam.TriggerOn); err != nil {
				t.Fatal(err)
			}
			Reset(dev, quietLog)
			for _, sel := range []string{genicam.SelectorAcquisitionStart, genicam.SelectorFrameStart} {
				if v := valueAt(t, dev, genicam.TriggerMode, sel); v != "Off" {
					t.Errorf("TriggerMode[%s] = %v", sel, v)
				}
			}
		})
	}

	// A camera without trigger features is reset silently.
	Reset(genicam.NewNodeMap(), quietLog)
}
