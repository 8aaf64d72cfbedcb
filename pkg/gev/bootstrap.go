// Package gev implements the GigE Vision control (GVCP) and stream (GVSP)
// protocols: device discovery, bootstrap register access, control channel
// privilege with heartbeat, and image block reassembly.
package gev

// Ports defined by the GigE Vision standard.
const (
	ControlPort = 3956
)

// Bootstrap register addresses.
const (
	RegVersion                    uint32 = 0x0000
	RegDeviceMode                 uint32 = 0x0004
	RegMACHigh                    uint32 = 0x0008
	RegMACLow                     uint32 = 0x000C
	RegNetworkInterfaceCapability uint32 = 0x0010
	RegNetworkInterfaceConfig     uint32 = 0x0014
	RegCurrentIP                  uint32 = 0x0024
	RegCurrentSubnet              uint32 = 0x0034
	RegCurrentGateway             uint32 = 0x0044
	RegManufacturerName           uint32 = 0x0048
	RegModelName                  uint32 = 0x0068
	RegDeviceVersion              uint32 = 0x0088
	RegManufacturerInfo           uint32 = 0x00A8
	RegSerialNumber               uint32 = 0x00D8
	RegUserDefinedName            uint32 = 0x00E8
	RegFirstURL                   uint32 = 0x0200
	RegNetworkInterfaces          uint32 = 0x0600
	RegMessageChannels            uint32 = 0x0900
	RegStreamChannels             uint32 = 0x0904
	RegGVSPCapability             uint32 = 0x092C
	RegMessageChannelCapability   uint32 = 0x0930
	RegGVCPCapability             uint32 = 0x0934
	RegHeartbeatTimeout           uint32 = 0x0938
	RegGVCPConfig                 uint32 = 0x0954
	RegPendingTimeout             uint32 = 0x0958
	RegPhysicalLinkCapability     uint32 = 0x0960
	RegPhysicalLinkConfig         uint32 = 0x0964
	RegCCP                        uint32 = 0x0A00
	RegMCP                        uint32 = 0x0B00
	RegMCDA                       uint32 = 0x0B10
	RegSCP0                       uint32 = 0x0D00
	RegSCPS0                      uint32 = 0x0D04
	RegSCPD0                      uint32 = 0x0D08
	RegSCDA0                      uint32 = 0x0D18
	RegSCSP0                      uint32 = 0x0D1C
	RegSCC0                       uint32 = 0x0D20
	RegSCCFG0                     uint32 = 0x0D24
)

// String register lengths in bytes.
const (
	LenManufacturerName = 32
	LenModelName        = 32
	LenDeviceVersion    = 32
	LenManufacturerInfo = 48
	LenSerialNumber     = 16
	LenUserDefinedName  = 16
	LenURL              = 512
)

// CCP privilege bits.
const (
	CCPExclusive uint32 = 1 << 0
	CCPControl   uint32 = 1 << 1
)

// SCPS fields.
const (
	SCPSPacketSizeMask uint32 = 0xFFFF
	SCPSDoNotFragment  uint32 = 1 << 30
	SCPSFireTest       uint32 = 1 << 31
)

// DefaultHeartbeatTimeoutMs is used when the device does not report one.
const DefaultHeartbeatTimeoutMs = 3000

// Header sizes subtracted from SCPS to obtain the GVSP payload per packet.
const (
	ipHeaderSize   = 20
	udpHeaderSize  = 8
	gvspHeaderSize = 8
)

// PayloadPerPacket returns the image bytes carried by each payload packet
// for a stream channel packet size as written to SCPS.
func PayloadPerPacket(packetSize int) int {
	n := packetSize - ipHeaderSize - udpHeaderSize - gvspHeaderSize
	if n < 0 {
		return 0
	}
	return n
}
