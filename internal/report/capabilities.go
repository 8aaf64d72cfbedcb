package report

import (
	"fmt"
	"io"

	"github.com/smazurov/gigecam/pkg/gev"
)

// RegisterReader returns the raw value of a capability register.
type RegisterReader interface {
	Capability(reg uint32) uint32
}

const capabilityBanner = "------------------------------------------------------------\n\n" +
	"                      Camera capabilities.                  \n\n"

// CapabilityPage prints one capability register: its title and either
// "None" when the register is zero or one line per named flag that is set.
func CapabilityPage(w io.Writer, set gev.CapabilitySet, value uint32) {
	fmt.Fprintf(w, "%s\n\n", set.Title)
	names := set.Decode(value)
	if value == 0 {
		fmt.Fprintf(w, "None\n")
		return
	}
	for _, n := range names {
		fmt.Fprintf(w, "%s\n", n)
	}
}

// CapabilityPages prints every capability register on its own page,
// waiting for a key press between pages.
func CapabilityPages(w io.Writer, dev RegisterReader, keys Keys) error {
	for i, set := range gev.CapabilitySets {
		fmt.Fprint(w, capabilityBanner)
		CapabilityPage(w, set, dev.Capability(set.Register))
		if i == len(gev.CapabilitySets)-1 {
			break
		}
		fmt.Fprintf(w, "\nPress <Enter> to continue\n")
		if _, err := keys.Getch(); err != nil {
			return err
		}
	}
	return nil
}

// Capability is a decoded capability register.
type Capability struct {
	Key      string   `json:"key" doc:"Register key"`
	Title    string   `json:"title" doc:"Register title"`
	Register uint32   `json:"register" doc:"Bootstrap register address"`
	Value    uint32   `json:"value" doc:"Raw register value"`
	Flags    []string `json:"flags" doc:"Names of the flags that are set"`
}

// DecodeCapabilities reads and decodes every capability register.
func DecodeCapabilities(dev RegisterReader) []Capability {
	out := make([]Capability, 0, len(gev.CapabilitySets))
	for _, set := range gev.CapabilitySets {
		v := dev.Capability(set.Register)
		flags := set.Decode(v)
		if flags == nil {
			flags = []string{}
		}
		out = append(out, Capability{
			Key:      set.Key,
			Title:    set.Title,
			Register: set.Register,
			Value:    v,
			Flags:    flags,
		})
	}
	return out
}
