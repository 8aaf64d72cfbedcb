package features

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smazurov/gigecam/internal/camera/sim"
	"github.com/smazurov/gigecam/pkg/genicam"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newCamera(t *testing.T) *sim.Camera {
	t.Helper()
	p, err := sim.LoadProfile("")
	if err != nil {
		t.Fatal(err)
	}
	cam, err := sim.New(p, quiet)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cam.Close() })
	return cam
}

func find(set *Set, key string) (Value, bool) {
	for _, v := range set.Features {
		if v.Key() == key {
			return v, true
		}
	}
	return Value{}, false
}

func TestReadFormatsByType(t *testing.T) {
	cam := newCamera(t)
	tests := []struct {
		name string
		want string
		typ  genicam.Type
	}{
		{genicam.Width, "640", genicam.TypeInt},
		{genicam.AcquisitionFrameRate, "15", genicam.TypeFloat},
		{genicam.ReverseX, "false", genicam.TypeBool},
		{genicam.PixelFormat, "Mono8", genicam.TypeEnum},
		{genicam.DeviceUserID, "bench-cam", genicam.TypeString},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, typ, err := Read(cam, tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want || typ != tt.typ {
				t.Errorf("Read = %q (%v), want %q (%v)", got, typ, tt.want, tt.typ)
			}
		})
	}

	if _, _, err := Read(cam, genicam.TriggerSoftware); !errors.Is(err, genicam.ErrType) {
		t.Errorf("reading a command: err = %v, want ErrType", err)
	}
}

func TestWriteParsesByType(t *testing.T) {
	cam := newCamera(t)
	if err := Write(cam, genicam.Width, "0x200"); err != nil {
		t.Fatal(err)
	}
	if w, _ := cam.Int(genicam.QueryValue, genicam.Width); w != 512 {
		t.Errorf("Width = %d, want 512", w)
	}
	if err := Write(cam, genicam.ReverseY, "true"); err != nil {
		t.Fatal(err)
	}
	if err := Write(cam, genicam.ExposureTime, "2500.5"); err != nil {
		t.Fatal(err)
	}
	if v, _ := cam.Float(genicam.QueryValue, genicam.ExposureTime); v != 2500.5 {
		t.Errorf("ExposureTime = %v", v)
	}

	tests := []struct {
		name, value string
		want        error
	}{
		{genicam.Width, "wide", genicam.ErrType},
		{genicam.Width, "99999", genicam.ErrRange},
		{genicam.ReverseX, "maybe", genicam.ErrType},
		{"NoSuchFeature", "1", genicam.ErrNotFound},
	}
	for _, tt := range tests {
		if err := Write(cam, tt.name, tt.value); !errors.Is(err, tt.want) {
			t.Errorf("Write(%s, %q) = %v, want %v", tt.name, tt.value, err, tt.want)
		}
	}
}

func TestCaptureAndApply(t *testing.T) {
	src := newCamera(t)
	_ = src.SetInt(genicam.Width, 320)
	_ = src.SetString(genicam.TriggerSelector, genicam.SelectorFrameStart)
	_ = src.SetString(genicam.TriggerMode, genicam.TriggerOn)
	_ = src.SetString(genicam.TriggerSource, "Line1")
	_ = src.SetString(genicam.TriggerSelector, genicam.SelectorAcquisitionStart)

	set, err := Capture(src, Persistent, quiet)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if set.Vendor != "Simulated Vision" || set.Serial != "SIM00042" {
		t.Errorf("identity = %q %q", set.Vendor, set.Serial)
	}
	if v, ok := find(set, "TriggerSource[TriggerSelector=FrameStart]"); !ok || v.Value != "Line1" {
		t.Errorf("FrameStart source = %+v, %v", v, ok)
	}
	if sel, _ := src.String(genicam.TriggerSelector); sel != genicam.SelectorAcquisitionStart {
		t.Errorf("selector left at %s", sel)
	}

	dst := newCamera(t)
	n, err := Apply(dst, set, quiet)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if n != len(set.Features) {
		t.Errorf("applied %d of %d", n, len(set.Features))
	}
	if w, _ := dst.Int(genicam.QueryValue, genicam.Width); w != 320 {
		t.Errorf("Width = %d", w)
	}
	if v, _ := dst.ValueAt(genicam.TriggerMode, genicam.SelectorFrameStart); v != genicam.TriggerOn {
		t.Errorf("FrameStart TriggerMode = %v", v)
	}
}

func TestCaptureSkipsAbsentFeatures(t *testing.T) {
	cam := newCamera(t)
	set, err := Capture(cam, []Spec{{Name: "Gain"}, {Name: "GainAuto", Selector: "GainSelector"}, {Name: genicam.Height}}, quiet)
	if err != nil {
		t.Fatalf("absent features should be skipped: %v", err)
	}
	if len(set.Features) != 1 || set.Features[0].Name != genicam.Height {
		t.Errorf("features = %+v", set.Features)
	}
}

func TestApplyContinuesPastFailures(t *testing.T) {
	cam := newCamera(t)
	set := &Set{Features: []Value{
		{Name: genicam.DeviceID, Value: "forged"},
		{Name: genicam.LineMode, Selects: genicam.LineSelector, Selector: "Line9", Value: "Output"},
		{Name: genicam.Height, Value: "240"},
	}}
	n, err := Apply(cam, set, quiet)
	if n != 1 {
		t.Errorf("applied %d, want 1", n)
	}
	if !errors.Is(err, genicam.ErrAccess) {
		t.Errorf("err = %v, want ErrAccess among failures", err)
	}
	if err == nil || !strings.Contains(err.Error(), "LineMode[LineSelector=Line9]") {
		t.Errorf("err = %v, want the selected key named", err)
	}
	if h, _ := cam.Int(genicam.QueryValue, genicam.Height); h != 240 {
		t.Errorf("Height = %d", h)
	}
}

func TestSaveLoad(t *testing.T) {
	set := &Set{
		Vendor: "Simulated Vision",
		Model:  "SIM-GEV-1300M",
		Features: []Value{
			{Name: genicam.Width, Value: "320"},
			{Name: genicam.TriggerMode, Selects: genicam.TriggerSelector, Selector: genicam.SelectorFrameStart, Value: "On"},
		},
	}
	for _, name := range []string{"cam.toml", "cam.yaml", "cam.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			if err := Save(path, set); err != nil {
				t.Fatal(err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			if got.Version != Version || got.Model != set.Model || len(got.Features) != 2 {
				t.Fatalf("loaded %+v", got)
			}
			if got.Features[1] != set.Features[1] {
				t.Errorf("feature = %+v, want %+v", got.Features[1], set.Features[1])
			}
			if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
				t.Error("temporary file left behind")
			}
		})
	}
}

func TestSaveWritesYAMLKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cam.yaml")
	if err := Save(path, &Set{Features: []Value{{Name: genicam.Width, Value: "64"}}}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "features:") || !strings.Contains(string(data), "name: Width") {
		t.Errorf("yaml = %s", data)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name, file, content string
	}{
		{"future version", "a.toml", "version = 9\n"},
		{"unnamed", "b.toml", "version = 1\n[[feature]]\nvalue = \"1\"\n"},
		{"half selector", "c.yaml", "features:\n  - name: TriggerMode\n    selects: TriggerSelector\n    value: \"On\"\n"},
		{"garbage", "d.yaml", "features: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
