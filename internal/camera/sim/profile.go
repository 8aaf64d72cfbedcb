package sim

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/gigecam/pkg/gev"
	"github.com/smazurov/gigecam/pkg/genicam"
)

//go:embed default.toml
var defaultProfile []byte

// Profile describes a simulated camera.
type Profile struct {
	SystemType        string              `toml:"system_type"`
	InterfaceName     string              `toml:"interface_name"`
	LocalIP           string              `toml:"local_ip"`
	HardwareTriggerHz float64             `toml:"hardware_trigger_hz"`
	LUTGamma          float64             `toml:"lut_gamma"`
	Capabilities      map[string][]string `toml:"capabilities"`
	Features          []FeatureDef        `toml:"feature"`
}

// FeatureDef declares one feature of the simulated node map.
type FeatureDef struct {
	Name     string         `toml:"name"`
	Type     string         `toml:"type"`
	Value    any            `toml:"value"`
	Min      int64          `toml:"min"`
	Max      int64          `toml:"max"`
	FMin     float64        `toml:"fmin"`
	FMax     float64        `toml:"fmax"`
	Entries  []string       `toml:"entries"`
	Selector string         `toml:"selector"`
	Selected map[string]any `toml:"selected"`
	ReadOnly bool           `toml:"read_only"`
}

// LoadProfile reads a profile from path, or the built-in profile when path
// is empty.
func LoadProfile(path string) (*Profile, error) {
	data := defaultProfile
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read camera profile: %w", err)
		}
	}
	return ParseProfile(data)
}

// ParseProfile decodes and validates a TOML profile.
func ParseProfile(data []byte) (*Profile, error) {
	p := &Profile{HardwareTriggerHz: 2, LUTGamma: 1}
	if err := toml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse camera profile: %w", err)
	}
	if p.SystemType == "" {
		return nil, fmt.Errorf("camera profile: system_type is required")
	}
	if p.HardwareTriggerHz <= 0 {
		return nil, fmt.Errorf("camera profile: hardware_trigger_hz must be positive")
	}
	for key := range p.Capabilities {
		if capabilitySet(key) == nil {
			return nil, fmt.Errorf("camera profile: unknown capability register %q", key)
		}
	}
	return p, nil
}

func capabilitySet(key string) *gev.CapabilitySet {
	for i := range gev.CapabilitySets {
		if gev.CapabilitySets[i].Key == key {
			return &gev.CapabilitySets[i]
		}
	}
	return nil
}

// registers encodes the capability flag names into register values.
func (p *Profile) registers() (map[uint32]uint32, error) {
	regs := make(map[uint32]uint32, len(p.Capabilities))
	for key, names := range p.Capabilities {
		set := capabilitySet(key)
		v, err := set.Encode(names)
		if err != nil {
			return nil, fmt.Errorf("camera profile: %w", err)
		}
		regs[set.Register] = v
	}
	return regs, nil
}

// nodeMap builds the feature tree declared by the profile.
func (p *Profile) nodeMap() (*genicam.NodeMap, error) {
	m := genicam.NewNodeMap()
	for _, def := range p.Features {
		typ, err := genicam.ParseType(def.Type)
		if err != nil {
			return nil, fmt.Errorf("camera profile: feature %s: %w", def.Name, err)
		}
		node := genicam.Node{
			Name:     def.Name,
			Type:     typ,
			ReadOnly: def.ReadOnly,
			Min:      def.Min,
			Max:      def.Max,
			FMin:     def.FMin,
			FMax:     def.FMax,
			Entries:  def.Entries,
			Selector: def.Selector,
			Value:    def.Value,
			Selected: def.Selected,
		}
		if node.Selector != "" && node.Selected == nil {
			node.Selected = map[string]any{}
		}
		if err := m.Add(node); err != nil {
			return nil, fmt.Errorf("camera profile: %w", err)
		}
	}
	return m, nil
}
