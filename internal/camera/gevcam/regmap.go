package gevcam

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/smazurov/gigecam/pkg/genicam"
)

//go:embed default_regmap.toml
var defaultRegisterMap []byte

// RegisterMap declares the SFNC features a camera exposes beyond the
// bootstrap registers.
type RegisterMap struct {
	Features []RegisterDef `toml:"feature"`
}

// RegisterDef maps one feature onto device registers. Features without an
// address are held on the host, which is how selectors usually appear.
type RegisterDef struct {
	Name     string  `toml:"name"`
	Type     string  `toml:"type"`
	Address  *uint32 `toml:"address"`
	ReadOnly bool    `toml:"read_only"`

	// Length is the byte size of a string register, or 8 for an integer
	// spanning two consecutive registers.
	Length int `toml:"length"`
	// Mask restricts an integer to some bits of its register.
	Mask uint32 `toml:"mask"`

	Min  int64   `toml:"min"`
	Max  int64   `toml:"max"`
	FMin float64 `toml:"fmin"`
	FMax float64 `toml:"fmax"`

	Entries      []EntryDef `toml:"entry"`
	CommandValue uint32     `toml:"command_value"`

	// Selector names the feature whose current index offsets Address by
	// SelectorStride bytes per step.
	Selector       string `toml:"selector"`
	SelectorStride uint32 `toml:"selector_stride"`

	// Value initialises a host-side feature.
	Value any `toml:"value"`
}

// EntryDef names one register value of an enumeration.
type EntryDef struct {
	Name  string `toml:"name"`
	Value uint32 `toml:"value"`
}

// LoadRegisterMap reads a map from path, or the built-in map when path is
// empty.
func LoadRegisterMap(path string) (*RegisterMap, error) {
	data := defaultRegisterMap
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read register map: %w", err)
		}
	}
	return ParseRegisterMap(data)
}

// ParseRegisterMap decodes and validates a TOML register map.
func ParseRegisterMap(data []byte) (*RegisterMap, error) {
	var m RegisterMap
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse register map: %w", err)
	}
	seen := make(map[string]bool)
	for i := range m.Features {
		def := &m.Features[i]
		if def.Name == "" {
			return nil, fmt.Errorf("register map: feature %d has no name", i)
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("register map: duplicate feature %s", def.Name)
		}
		seen[def.Name] = true
		typ, err := genicam.ParseType(def.Type)
		if err != nil {
			return nil, fmt.Errorf("register map: feature %s: %w", def.Name, err)
		}
		if def.Address == nil {
			if typ == genicam.TypeCommand {
				return nil, fmt.Errorf("register map: command %s needs an address", def.Name)
			}
			continue
		}
		if *def.Address%4 != 0 {
			return nil, fmt.Errorf("register map: feature %s address 0x%x is not aligned", def.Name, *def.Address)
		}
		switch typ {
		case genicam.TypeString:
			if def.Length <= 0 {
				return nil, fmt.Errorf("register map: string %s needs a length", def.Name)
			}
		case genicam.TypeEnum:
			if len(def.Entries) == 0 {
				return nil, fmt.Errorf("register map: enumeration %s has no entries", def.Name)
			}
		case genicam.TypeCommand:
			if def.CommandValue == 0 {
				def.CommandValue = 1
			}
		}
		if def.Selector != "" && def.SelectorStride == 0 {
			return nil, fmt.Errorf("register map: feature %s has a selector but no stride", def.Name)
		}
	}
	return &m, nil
}

func (d *RegisterDef) entryNames() []string {
	names := make([]string, len(d.Entries))
	for i, e := range d.Entries {
		names[i] = e.Name
	}
	return names
}
