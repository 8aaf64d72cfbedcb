package gevcam

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"net"
	"testing"
	"time"

	"github.com/smazurov/gigecam/internal/camera"
	"github.com/smazurov/gigecam/internal/frame"
	"github.com/smazurov/gigecam/pkg/gev"
	"github.com/smazurov/gigecam/pkg/gev/gevtest"
	"github.com/smazurov/gigecam/pkg/genicam"
)

type fixture struct {
	srv *gevtest.Server
	cam *Camera
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv, err := gevtest.NewServer(gev.DeviceInfo{
		VersionMajor:     2,
		VersionMinor:     1,
		MAC:              net.HardwareAddr{0x00, 0x20, 0xfc, 0x01, 0x02, 0x03},
		ManufacturerName: "Acme Vision",
		ModelName:        "AV-1300",
		SerialNumber:     "SN0042",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })

	regmap, err := LoadRegisterMap("")
	if err != nil {
		t.Fatalf("default register map: %v", err)
	}
	for _, def := range regmap.Features {
		if def.Address == nil {
			continue
		}
		steps := 1
		if def.Selector != "" {
			steps = 256
		}
		for i := 0; i < steps; i++ {
			srv.SetRegister(*def.Address+uint32(i)*def.SelectorStride, 0)
		}
	}
	// Continuous, Mono8, Timed exposure, 32x8 ROI.
	srv.SetRegister(0x10040, 0)
	srv.SetRegister(0x10030, gev.PixelMono8)
	srv.SetRegister(0x10200, 1)
	srv.SetRegister(0x10010, 32)
	srv.SetRegister(0x10014, 8)
	srv.SetRegister(gev.RegSCPS0, gev.SCPSDoNotFragment|1500)
	srv.SetRegister(gev.RegGVCPCapability, 1<<31|1<<0)

	client, err := gev.Dial(srv.Addr(), gev.WithTimeout(200*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	cam, err := New(client, regmap, camera.Config{})
	if err != nil {
		client.Close()
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { cam.Close() })
	return &fixture{srv: srv, cam: cam}
}

func TestBootstrapFeatures(t *testing.T) {
	fx := newFixture(t)
	c := fx.cam

	if v, err := c.String(genicam.DeviceVendorName); err != nil || v != "Acme Vision" {
		t.Errorf("vendor = %q, %v", v, err)
	}
	if v, _ := c.Int(genicam.QueryValue, genicam.GevVersionMajor); v != 2 {
		t.Errorf("major = %d", v)
	}
	if v, _ := c.Int(genicam.QueryValue, genicam.GevVersionMinor); v != 1 {
		t.Errorf("minor = %d", v)
	}
	if v, _ := c.Int(genicam.QueryValue, genicam.GevMACAddress); v != 0x0020fc010203 {
		t.Errorf("MAC = %#x", v)
	}
	if v, _ := c.Int(genicam.QueryValue, genicam.GevSCPSPacketSize); v != 1500 {
		t.Errorf("packet size = %d", v)
	}

	if err := c.SetInt(genicam.GevSCPSPacketSize, 9000); err != nil {
		t.Fatal(err)
	}
	if got := fx.srv.Register(gev.RegSCPS0); got != gev.SCPSDoNotFragment|9000 {
		t.Errorf("SCPS0 = %#x, want flags preserved", got)
	}
	if got := fx.srv.Register(gev.RegCCP); got != gev.CCPControl {
		t.Errorf("control privilege not taken: CCP = %#x", got)
	}
	if got := c.Capability(gev.RegGVCPCapability); got != 1<<31|1<<0 {
		t.Errorf("GVCP capability = %#x", got)
	}
}

func TestSelectedEnumeration(t *testing.T) {
	fx := newFixture(t)
	c := fx.cam

	if err := c.SetString(genicam.TriggerSelector, genicam.SelectorFrameStart); err != nil {
		t.Fatal(err)
	}
	if err := c.SetString(genicam.TriggerMode, genicam.TriggerOn); err != nil {
		t.Fatal(err)
	}
	if got := fx.srv.Register(0x10110); got != 1 {
		t.Errorf("FrameStart TriggerMode register = %d, want 1", got)
	}
	if got := fx.srv.Register(0x10100); got != 0 {
		t.Errorf("AcquisitionStart TriggerMode register = %d, want 0", got)
	}
	if v, _ := c.String(genicam.TriggerMode); v != genicam.TriggerOn {
		t.Errorf("TriggerMode[FrameStart] = %q", v)
	}

	if err := c.Execute(genicam.TriggerSoftware); err != nil {
		t.Fatal(err)
	}
	if got := fx.srv.Register(0x10118); got != 1 {
		t.Errorf("FrameStart TriggerSoftware register = %d, want 1", got)
	}

	fx.srv.SetRegister(0x11000+4*10, 160)
	if err := c.SetInt(genicam.LUTIndex, 10); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Int(genicam.QueryValue, genicam.LUTValue); v != 160 {
		t.Errorf("LUTValue[10] = %d, want 160", v)
	}
}

func TestFloatAndBoolRegisters(t *testing.T) {
	fx := newFixture(t)
	c := fx.cam

	if err := c.SetFloat(genicam.ExposureTime, 5000); err != nil {
		t.Fatal(err)
	}
	if got := fx.srv.Register(0x10204); got != math.Float32bits(5000) {
		t.Errorf("ExposureTime register = %#x", got)
	}
	if v, _ := c.Float(genicam.QueryValue, genicam.ExposureTime); v != 5000 {
		t.Errorf("ExposureTime = %g", v)
	}
	if err := c.SetString(genicam.ReverseX, "true"); err != nil {
		t.Fatal(err)
	}
	if v, _ := c.Bool(genicam.ReverseX); !v {
		t.Error("ReverseX not set")
	}
}

func TestFeatureErrors(t *testing.T) {
	fx := newFixture(t)
	c := fx.cam
	fx.srv.SetRegister(0x10040, 7)

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unknown feature", func() error { _, err := c.String("Nonexistent"); return err }(), genicam.ErrNotFound},
		{"read-only write", c.SetString(genicam.DeviceVendorName, "x"), genicam.ErrAccess},
		{"out of range", c.SetInt(genicam.Width, 1), genicam.ErrRange},
		{"unknown entry", c.SetString(genicam.AcquisitionMode, "Burst"), genicam.ErrRange},
		{"unmapped register value", func() error { _, err := c.String(genicam.AcquisitionMode); return err }(), genicam.ErrRange},
		{"type mismatch", c.Execute(genicam.Width), genicam.ErrType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
			var fe *genicam.FeatureError
			if !errors.As(tt.err, &fe) {
				t.Errorf("error %v does not carry the feature name", tt.err)
			}
		})
	}
}

func TestGrabReceivesStream(t *testing.T) {
	fx := newFixture(t)
	c := fx.cam
	fx.srv.SetRegister(gev.RegSCPS0, 576)

	img := make([]byte, 32*8)
	for i := range img {
		img[i] = byte(i)
	}
	fx.srv.OnWrite(func(addr, value uint32) {
		if addr != 0x10044 {
			return
		}
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, fx.srv.Register(gev.RegSCDA0))
		dst := &net.UDPAddr{IP: ip, Port: int(fx.srv.Register(gev.RegSCP0))}
		go gevtest.Stream(dst, gev.Frame{
			BlockID: 1, PixelFormat: gev.PixelMono8, Width: 32, Height: 8, Data: img,
		}, gev.PayloadPerPacket(576))
	})

	info := c.ImageInfo()
	if info.Width != 32 || info.Height != 8 || info.BitDepth != 8 {
		t.Fatalf("image info = %+v", info)
	}
	buf, _ := frame.New(info.Format())
	got := make(chan []byte, 1)
	g, err := c.Process([]*frame.Buffer{buf}, camera.StartOp{Count: 1}, func(b *frame.Buffer) {
		got <- append([]byte(nil), b.Pix...)
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case pix := <-got:
		if !bytes.Equal(pix, img) {
			t.Error("grabbed image differs from streamed image")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame grabbed")
	}
	if err := g.Stop(true); err != nil {
		t.Fatal(err)
	}

	if fx.srv.Register(0x10048) != 1 {
		t.Error("AcquisitionStop not executed on stop")
	}
	if fx.srv.Register(gev.RegSCP0) != 0 {
		t.Error("stream channel left open")
	}
}

func TestParseRegisterMapErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unaligned", "[[feature]]\nname = \"A\"\ntype = \"int\"\naddress = 0x10001"},
		{"string without length", "[[feature]]\nname = \"A\"\ntype = \"string\"\naddress = 0x100"},
		{"enum without entries", "[[feature]]\nname = \"A\"\ntype = \"enum\"\naddress = 0x100"},
		{"host command", "[[feature]]\nname = \"A\"\ntype = \"command\""},
		{"selector without stride", "[[feature]]\nname = \"A\"\ntype = \"int\"\naddress = 0x100\nselector = \"S\""},
		{"duplicate", "[[feature]]\nname = \"A\"\ntype = \"int\"\n[[feature]]\nname = \"A\"\ntype = \"int\""},
		{"bad type", "[[feature]]\nname = \"A\"\ntype = \"blob\""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseRegisterMap([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBlockLimit(t *testing.T) {
	small := &frame.Buffer{Format: frame.Format{Width: 64, Height: 10, Bands: 1, BitDepth: 8}}
	large := &frame.Buffer{Format: frame.Format{Width: 640, Height: 480, Bands: 1, BitDepth: 8}}
	if got := blockLimit([]*frame.Buffer{small, large}); got != 640*480*2 {
		t.Errorf("blockLimit = %d, want %d", got, 640*480*2)
	}
	if got := blockLimit(nil); got != 0 {
		t.Errorf("blockLimit(nil) = %d", got)
	}
}
