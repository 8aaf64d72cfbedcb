// Package gevcam drives a network GigE Vision camera over GVCP and GVSP.
// Bootstrap registers provide device identity and transport features;
// everything else comes from a TOML register map.
package gevcam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/bits"
	"net"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/smazurov/gigecam/internal/camera"
	"github.com/smazurov/gigecam/pkg/gev"
	"github.com/smazurov/gigecam/pkg/genicam"
)

const opTimeout = 2 * time.Second

func init() {
	camera.Register("gev", func(cfg camera.Config) (camera.Camera, error) {
		if cfg.Address == "" {
			return nil, errors.New("gev backend needs a camera address")
		}
		regmap, err := LoadRegisterMap(cfg.RegisterMap)
		if err != nil {
			return nil, err
		}
		client, err := gev.Dial(cfg.Address, gev.WithLogger(cfg.Logger))
		if err != nil {
			return nil, err
		}
		cam, err := New(client, regmap, cfg)
		if err != nil {
			client.Close()
			return nil, err
		}
		return cam, nil
	})
}

// bootstrapFeatures are served from the standard bootstrap registers.
func bootstrapFeatures() []RegisterDef {
	addr := func(a uint32) *uint32 { return &a }
	return []RegisterDef{
		{Name: genicam.DeviceVendorName, Type: "string", Address: addr(gev.RegManufacturerName), Length: gev.LenManufacturerName, ReadOnly: true},
		{Name: genicam.DeviceModelName, Type: "string", Address: addr(gev.RegModelName), Length: gev.LenModelName, ReadOnly: true},
		{Name: genicam.DeviceVersion, Type: "string", Address: addr(gev.RegDeviceVersion), Length: gev.LenDeviceVersion, ReadOnly: true},
		{Name: genicam.DeviceID, Type: "string", Address: addr(gev.RegSerialNumber), Length: gev.LenSerialNumber, ReadOnly: true},
		{Name: genicam.DeviceUserID, Type: "string", Address: addr(gev.RegUserDefinedName), Length: gev.LenUserDefinedName, ReadOnly: true},
		{Name: genicam.GevVersionMajor, Type: "int", Address: addr(gev.RegVersion), Mask: 0xFFFF0000, ReadOnly: true},
		{Name: genicam.GevVersionMinor, Type: "int", Address: addr(gev.RegVersion), Mask: 0x0000FFFF, ReadOnly: true},
		{Name: genicam.GevMACAddress, Type: "int", Address: addr(gev.RegMACHigh), Length: 8, ReadOnly: true},
		{Name: genicam.GevCurrentIPAddress, Type: "int", Address: addr(gev.RegCurrentIP), ReadOnly: true},
		{Name: genicam.GevSCPSPacketSize, Type: "int", Address: addr(gev.RegSCPS0), Mask: gev.SCPSPacketSizeMask, Min: 576, Max: 9000},
	}
}

type feature struct {
	RegisterDef
	typ genicam.Type
}

// Camera is a session with a network camera holding control privilege.
type Camera struct {
	client   *gev.Client
	host     *genicam.NodeMap
	features map[string]*feature
	caps     map[uint32]uint32
	iface    string
	localIP  net.IP
	name     string
	logger   *slog.Logger

	mu   sync.Mutex
	grab *camera.Worker
}

// New takes control of the device behind client and builds the feature
// set from the bootstrap registers and regmap.
func New(client *gev.Client, regmap *RegisterMap, cfg camera.Config) (*Camera, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.TakeControl(ctx); err != nil {
		return nil, err
	}

	c := &Camera{
		client:   client,
		host:     genicam.NewNodeMap(),
		features: make(map[string]*feature),
		caps:     make(map[uint32]uint32),
		name:     cfg.Name,
		logger:   logger,
	}
	defs := append(bootstrapFeatures(), regmap.Features...)
	for _, def := range defs {
		typ, err := genicam.ParseType(def.Type)
		if err != nil {
			return nil, err
		}
		if def.Address == nil {
			node := genicam.Node{
				Name: def.Name, Type: typ, ReadOnly: def.ReadOnly,
				Min: def.Min, Max: def.Max, FMin: def.FMin, FMax: def.FMax,
				Entries: def.entryNames(), Value: def.Value,
			}
			if err := c.host.Add(node); err != nil {
				return nil, err
			}
			delete(c.features, def.Name)
			continue
		}
		c.features[def.Name] = &feature{RegisterDef: def, typ: typ}
	}

	for _, set := range gev.CapabilitySets {
		v, err := client.ReadRegister(ctx, set.Register)
		if err != nil {
			logger.Debug("Capability register unavailable", "register", set.Key, "error", err)
			continue
		}
		c.caps[set.Register] = v
	}

	if ip, err := client.LocalIP(); err == nil {
		c.localIP = ip
	}
	c.iface = cfg.Interface
	if c.iface == "" {
		c.iface = interfaceFor(c.localIP)
	}

	if cfg.PacketSize > 0 {
		if err := c.SetInt(genicam.GevSCPSPacketSize, int64(cfg.PacketSize)); err != nil {
			logger.Warn("Failed to set packet size", "size", cfg.PacketSize, "error", err)
		}
	}
	logger.Info("Camera session opened", "device", client.RemoteAddr().String(), "interface", c.iface, "features", len(c.features))
	return c, nil
}

func interfaceFor(ip net.IP) string {
	if ip == nil {
		return ""
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if n, ok := a.(*net.IPNet); ok && n.IP.Equal(ip) {
				return iface.Name
			}
		}
	}
	return ""
}

func featureErr(op, name string, err error) error {
	var fe *genicam.FeatureError
	if errors.As(err, &fe) {
		return err
	}
	return &genicam.FeatureError{Op: op, Feature: name, Err: err}
}

func (c *Camera) lookup(op, name string) (*feature, error) {
	f, ok := c.features[name]
	if !ok {
		return nil, featureErr(op, name, genicam.ErrNotFound)
	}
	return f, nil
}

func (c *Camera) isHost(name string) bool {
	_, ok := c.host.Node(name)
	return ok
}

// address resolves the register of f under the current selector value.
func (c *Camera) address(f *feature) (uint32, error) {
	addr := *f.Address
	if f.Selector == "" {
		return addr, nil
	}
	typ, err := c.FeatureType(f.Selector)
	if err != nil {
		return 0, err
	}
	var idx int
	switch typ {
	case genicam.TypeEnum:
		v, err := c.String(f.Selector)
		if err != nil {
			return 0, err
		}
		entries, err := c.EnumEntries(f.Selector)
		if err != nil {
			return 0, err
		}
		idx = slices.Index(entries, v)
		if idx < 0 {
			return 0, fmt.Errorf("selector %s value %q: %w", f.Selector, v, genicam.ErrRange)
		}
	case genicam.TypeInt:
		v, err := c.Int(genicam.QueryValue, f.Selector)
		if err != nil {
			return 0, err
		}
		idx = int(v)
	default:
		return 0, fmt.Errorf("selector %s: %w", f.Selector, genicam.ErrType)
	}
	return addr + uint32(idx)*f.SelectorStride, nil
}

// read returns the canonical Go value of a register feature.
func (c *Camera) read(f *feature) (any, error) {
	addr, err := c.address(f)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	switch f.typ {
	case genicam.TypeString:
		return c.client.ReadString(ctx, addr, f.Length)
	case genicam.TypeCommand:
		return nil, genicam.ErrType
	}

	if f.typ == genicam.TypeInt && f.Length == 8 {
		regs, err := c.client.ReadRegisters(ctx, addr, addr+4)
		if err != nil {
			return nil, err
		}
		return int64(regs[0])<<32 | int64(regs[1]), nil
	}
	reg, err := c.client.ReadRegister(ctx, addr)
	if err != nil {
		return nil, err
	}
	switch f.typ {
	case genicam.TypeInt:
		if f.Mask != 0 {
			reg = (reg & f.Mask) >> bits.TrailingZeros32(f.Mask)
		}
		return int64(reg), nil
	case genicam.TypeFloat:
		return float64(math.Float32frombits(reg)), nil
	case genicam.TypeBool:
		return reg != 0, nil
	case genicam.TypeEnum:
		for _, e := range f.Entries {
			if e.Value == reg {
				return e.Name, nil
			}
		}
		return nil, fmt.Errorf("%w: register value %d has no entry", genicam.ErrRange, reg)
	}
	return nil, genicam.ErrType
}

// write stores v, already converted to the canonical type, into f.
func (c *Camera) write(f *feature, v any) error {
	if f.ReadOnly {
		return genicam.ErrAccess
	}
	var reg uint32
	switch f.typ {
	case genicam.TypeInt:
		i := v.(int64)
		if f.Max > f.Min && (i < f.Min || i > f.Max) {
			return fmt.Errorf("%w: %d not in [%d, %d]", genicam.ErrRange, i, f.Min, f.Max)
		}
		reg = uint32(i)
	case genicam.TypeFloat:
		x := v.(float64)
		if f.FMax > f.FMin && (x < f.FMin || x > f.FMax) {
			return fmt.Errorf("%w: %g not in [%g, %g]", genicam.ErrRange, x, f.FMin, f.FMax)
		}
		reg = math.Float32bits(float32(x))
	case genicam.TypeBool:
		if v.(bool) {
			reg = 1
		}
	case genicam.TypeEnum:
		name := v.(string)
		i := slices.IndexFunc(f.Entries, func(e EntryDef) bool { return e.Name == name })
		if i < 0 {
			return fmt.Errorf("%w: %q is not an entry", genicam.ErrRange, name)
		}
		reg = f.Entries[i].Value
	default:
		return genicam.ErrAccess
	}

	addr, err := c.address(f)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if f.typ == genicam.TypeInt && f.Mask != 0 {
		cur, err := c.client.ReadRegister(ctx, addr)
		if err != nil {
			return err
		}
		reg = cur&^f.Mask | (reg<<bits.TrailingZeros32(f.Mask))&f.Mask
	}
	return c.client.WriteRegister(ctx, addr, reg)
}

// convert turns a written value into the canonical type of typ.
func convert(typ genicam.Type, v any) (any, error) {
	switch typ {
	case genicam.TypeString, genicam.TypeEnum:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case genicam.TypeInt:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			return int64(x), nil
		case string:
			i, err := strconv.ParseInt(x, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", genicam.ErrType, err)
			}
			return i, nil
		}
	case genicam.TypeFloat:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", genicam.ErrType, err)
			}
			return f, nil
		}
	case genicam.TypeBool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			b, err := strconv.ParseBool(x)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", genicam.ErrType, err)
			}
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %T for %s feature", genicam.ErrType, v, typ)
}

func (c *Camera) set(name string, v any) error {
	if c.isHost(name) {
		switch x := v.(type) {
		case string:
			return c.host.SetString(name, x)
		case int64:
			return c.host.SetInt(name, x)
		case float64:
			return c.host.SetFloat(name, x)
		case bool:
			return c.host.SetBool(name, x)
		}
	}
	f, err := c.lookup("control", name)
	if err != nil {
		return err
	}
	cv, err := convert(f.typ, v)
	if err != nil {
		return featureErr("control", name, err)
	}
	if err := c.write(f, cv); err != nil {
		return featureErr("control", name, err)
	}
	return nil
}

// FeatureType implements genicam.Inquirer.
func (c *Camera) FeatureType(name string) (genicam.Type, error) {
	if c.isHost(name) {
		return c.host.FeatureType(name)
	}
	f, err := c.lookup("type", name)
	if err != nil {
		return genicam.TypeUnknown, err
	}
	return f.typ, nil
}

// String implements genicam.Inquirer. Numeric features are formatted.
func (c *Camera) String(name string) (string, error) {
	if c.isHost(name) {
		return c.host.String(name)
	}
	f, err := c.lookup("inquire", name)
	if err != nil {
		return "", err
	}
	v, err := c.read(f)
	if err != nil {
		return "", featureErr("inquire", name, err)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return "", featureErr("inquire", name, genicam.ErrType)
}

// Int implements genicam.Inquirer.
func (c *Camera) Int(q genicam.Query, name string) (int64, error) {
	if c.isHost(name) {
		return c.host.Int(q, name)
	}
	f, err := c.lookup("inquire", name)
	if err != nil {
		return 0, err
	}
	if f.typ != genicam.TypeInt {
		return 0, featureErr("inquire", name, genicam.ErrType)
	}
	switch q {
	case genicam.QueryMin:
		return f.Min, nil
	case genicam.QueryMax:
		return f.Max, nil
	}
	v, err := c.read(f)
	if err != nil {
		return 0, featureErr("inquire", name, err)
	}
	return v.(int64), nil
}

// Float implements genicam.Inquirer. Integer features are converted.
func (c *Camera) Float(q genicam.Query, name string) (float64, error) {
	if c.isHost(name) {
		return c.host.Float(q, name)
	}
	f, err := c.lookup("inquire", name)
	if err != nil {
		return 0, err
	}
	switch f.typ {
	case genicam.TypeInt:
		i, err := c.Int(q, name)
		return float64(i), err
	case genicam.TypeFloat:
	default:
		return 0, featureErr("inquire", name, genicam.ErrType)
	}
	switch q {
	case genicam.QueryMin:
		return f.FMin, nil
	case genicam.QueryMax:
		return f.FMax, nil
	}
	v, err := c.read(f)
	if err != nil {
		return 0, featureErr("inquire", name, err)
	}
	return v.(float64), nil
}

// Bool implements genicam.Inquirer.
func (c *Camera) Bool(name string) (bool, error) {
	if c.isHost(name) {
		return c.host.Bool(name)
	}
	f, err := c.lookup("inquire", name)
	if err != nil {
		return false, err
	}
	if f.typ != genicam.TypeBool {
		return false, featureErr("inquire", name, genicam.ErrType)
	}
	v, err := c.read(f)
	if err != nil {
		return false, featureErr("inquire", name, err)
	}
	return v.(bool), nil
}

// EnumEntries implements genicam.Inquirer.
func (c *Camera) EnumEntries(name string) ([]string, error) {
	if c.isHost(name) {
		return c.host.EnumEntries(name)
	}
	f, err := c.lookup("entries", name)
	if err != nil {
		return nil, err
	}
	if f.typ != genicam.TypeEnum {
		return nil, featureErr("entries", name, genicam.ErrType)
	}
	return f.entryNames(), nil
}

// SetString implements genicam.Controller.
func (c *Camera) SetString(name, value string) error { return c.set(name, value) }

// SetInt implements genicam.Controller.
func (c *Camera) SetInt(name string, value int64) error { return c.set(name, value) }

// SetFloat implements genicam.Controller.
func (c *Camera) SetFloat(name string, value float64) error { return c.set(name, value) }

// SetBool implements genicam.Controller.
func (c *Camera) SetBool(name string, value bool) error { return c.set(name, value) }

// Execute implements genicam.Controller.
func (c *Camera) Execute(name string) error {
	if c.isHost(name) {
		return c.host.Execute(name)
	}
	f, err := c.lookup("execute", name)
	if err != nil {
		return err
	}
	if f.typ != genicam.TypeCommand {
		return featureErr("execute", name, genicam.ErrType)
	}
	addr, err := c.address(f)
	if err != nil {
		return featureErr("execute", name, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := c.client.WriteRegister(ctx, addr, f.CommandValue); err != nil {
		return featureErr("execute", name, err)
	}
	return nil
}

// Names lists every feature the session exposes, sorted.
func (c *Camera) Names() []string {
	names := c.host.Names()
	for name := range c.features {
		names = append(names, name)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// SystemType implements camera.Camera.
func (c *Camera) SystemType() string { return camera.SystemGigEVision }

// InterfaceName implements camera.Camera.
func (c *Camera) InterfaceName() string { return c.iface }

// LocalIP implements camera.Camera.
func (c *Camera) LocalIP() string {
	if c.localIP == nil {
		return ""
	}
	return c.localIP.String()
}

// Capability implements camera.Camera.
func (c *Camera) Capability(reg uint32) uint32 { return c.caps[reg] }

// ImageInfo implements camera.Camera.
func (c *Camera) ImageInfo() camera.ImageInfo {
	q := genicam.Quiet(c, c.logger)
	info := camera.ImageInfo{
		Bands:    1,
		Width:    int(q.Int(genicam.QueryValue, genicam.Width)),
		Height:   int(q.Int(genicam.QueryValue, genicam.Height)),
		BitDepth: 8,
	}
	if f, ok := c.features[genicam.PixelFormat]; ok {
		name := q.String(genicam.PixelFormat)
		for _, e := range f.Entries {
			if e.Name == name {
				info.Bands, info.BitDepth = pixelLayout(e.Value)
			}
		}
	}
	return info
}

// Close stops any grab, releases control privilege and closes the socket.
func (c *Camera) Close() error {
	c.mu.Lock()
	g := c.grab
	c.grab = nil
	c.mu.Unlock()
	if g != nil {
		if err := g.Stop(false); err != nil {
			c.logger.Warn("Grab stopped with error", "error", err)
		}
	}
	return c.client.Close()
}
