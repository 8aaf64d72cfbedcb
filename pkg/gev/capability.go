package gev

import "fmt"

// bit converts a GigE Vision bit number (0 is the most significant bit) to
// a mask.
func bit(n uint) uint32 { return 1 << (31 - n) }

// Flag names one bit of a capability register.
type Flag struct {
	Mask uint32
	Name string
}

// CapabilitySet describes a capability or configuration register and the
// order in which its flags are listed.
type CapabilitySet struct {
	Key      string
	Title    string
	Register uint32
	Suffix   string
	Flags    []Flag
}

// Control protocol (GVCP capability register) flags.
var ControlProtocol = CapabilitySet{
	Key:      "control_protocol",
	Title:    "Control Protocol Capabilities",
	Register: RegGVCPCapability,
	Flags: []Flag{
		{bit(0), "User defined name"},
		{bit(1), "Serial number"},
		{bit(2), "Heartbeat disable"},
		{bit(3), "Link speed register"},
		{bit(4), "Port and IP register"},
		{bit(5), "Manifest table"},
		{bit(6), "Test data"},
		{bit(7), "Discovery ack delay"},
		{bit(8), "Writable discovery ack_delay"},
		{bit(9), "Extended status codes 1.1"},
		{bit(10), "Primary app switchover"},
		{bit(11), "Unconditional action"},
		{bit(12), "IEEE 1588"},
		{bit(13), "Extended status codes 2.0"},
		{bit(14), "Scheduled action"},
		{bit(25), "Action"},
		{bit(26), "Pending ack"},
		{bit(27), "Event data"},
		{bit(28), "Event"},
		{bit(29), "Packet resend"},
		{bit(30), "Write mem"},
		{bit(31), "Concatenation"},
	},
}

// StreamProtocol flags from the GVSP capability register.
var StreamProtocol = CapabilitySet{
	Key:      "stream_protocol",
	Title:    "Stream Protocol Capabilities",
	Register: RegGVSPCapability,
	Flags: []Flag{
		{bit(0), "Firewall traversal"},
		{bit(1), "Legacy 16bit block"},
	},
}

// MessageProtocol flags from the message channel capability register.
var MessageProtocol = CapabilitySet{
	Key:      "message_protocol",
	Title:    "Message Protocol Capabilities",
	Register: RegMessageChannelCapability,
	Flags: []Flag{
		{bit(0), "Firewall traversal"},
	},
}

// StreamChannel flags from the first stream channel capability register.
var StreamChannel = CapabilitySet{
	Key:      "stream_channel",
	Title:    "Stream Channel Capabilities",
	Register: RegSCC0,
	Flags: []Flag{
		{bit(0), "Big and little_endian"},
		{bit(1), "IP reassembly"},
		{bit(27), "Multi zone"},
		{bit(28), "Packet resend option"},
		{bit(29), "All in"},
		{bit(30), "Unconditional streaming"},
		{bit(31), "Extended chunk data"},
	},
}

// PhysicalLink flags from the physical link configuration capability register.
var PhysicalLink = CapabilitySet{
	Key:      "physical_link",
	Title:    "Physical Link Configuration Capabilities",
	Register: RegPhysicalLinkCapability,
	Flags: []Flag{
		{bit(31), "Single link"},
		{bit(30), "Multiple link"},
		{bit(29), "Static link aggregation"},
		{bit(28), "Dynamic link aggregation"},
	},
}

var networkInterfaceFlags = []Flag{
	{bit(0), "Pause reception"},
	{bit(1), "Pause generation"},
	{bit(29), "Link local address"},
	{bit(30), "DHCP"},
	{bit(31), "Persistent IP"},
}

// NetworkInterface lists the network interface capabilities.
var NetworkInterface = CapabilitySet{
	Key:      "network_interface",
	Title:    "Network Interface Capabilities",
	Register: RegNetworkInterfaceCapability,
	Flags:    networkInterfaceFlags,
}

// NetworkInterfaceConfig lists the enabled network interface options.
var NetworkInterfaceConfig = CapabilitySet{
	Key:      "network_interface_config",
	Title:    "Network Interface Configuration",
	Register: RegNetworkInterfaceConfig,
	Suffix:   " Enabled",
	Flags:    networkInterfaceFlags,
}

// CapabilitySets lists every capability page in display order.
var CapabilitySets = []CapabilitySet{
	ControlProtocol,
	StreamProtocol,
	MessageProtocol,
	StreamChannel,
	PhysicalLink,
	NetworkInterface,
	NetworkInterfaceConfig,
}

// Decode lists the names of the flags set in value, in register order.
func (s CapabilitySet) Decode(value uint32) []string {
	var names []string
	for _, f := range s.Flags {
		if value&f.Mask != 0 {
			names = append(names, f.Name+s.Suffix)
		}
	}
	return names
}

// Encode builds a register value from flag names.
func (s CapabilitySet) Encode(names []string) (uint32, error) {
	var v uint32
	for _, name := range names {
		found := false
		for _, f := range s.Flags {
			if f.Name == name {
				v |= f.Mask
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%s: unknown flag %q", s.Key, name)
		}
	}
	return v, nil
}
