package gev

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// GVCP command and acknowledge codes.
const (
	CmdDiscovery uint16 = 0x0002
	AckDiscovery uint16 = 0x0003
	CmdReadReg   uint16 = 0x0080
	AckReadReg   uint16 = 0x0081
	CmdWriteReg  uint16 = 0x0082
	AckWriteReg  uint16 = 0x0083
	CmdReadMem   uint16 = 0x0084
	AckReadMem   uint16 = 0x0085
	CmdWriteMem  uint16 = 0x0086
	AckWriteMem  uint16 = 0x0087
	AckPending   uint16 = 0x0089
)

const (
	gvcpKey       byte = 0x42
	flagAckNeeded byte = 0x01
	flagBroadcast byte = 0x10
)

const (
	headerSize       = 8
	maxReadMem       = 512
	discoveryAckSize = 248
)

// Status codes carried in GVCP acknowledges.
const (
	StatusSuccess          uint16 = 0x0000
	StatusNotImplemented   uint16 = 0x8001
	StatusInvalidParameter uint16 = 0x8002
	StatusInvalidAddress   uint16 = 0x8003
	StatusWriteProtect     uint16 = 0x8004
	StatusBadAlignment     uint16 = 0x8005
	StatusAccessDenied     uint16 = 0x8006
	StatusBusy             uint16 = 0x8007
	StatusMsgTimeout       uint16 = 0x800B
	StatusInvalidHeader    uint16 = 0x800E
	StatusGenericError     uint16 = 0x8FFF
)

var statusText = map[uint16]string{
	StatusNotImplemented:   "not implemented",
	StatusInvalidParameter: "invalid parameter",
	StatusInvalidAddress:   "invalid address",
	StatusWriteProtect:     "write protect",
	StatusBadAlignment:     "bad alignment",
	StatusAccessDenied:     "access denied",
	StatusBusy:             "busy",
	StatusMsgTimeout:       "message timeout",
	StatusInvalidHeader:    "invalid header",
	StatusGenericError:     "error",
}

// StatusError is a non-success GVCP acknowledge status.
type StatusError struct {
	Command uint16
	Status  uint16
}

func (e *StatusError) Error() string {
	text, ok := statusText[e.Status]
	if !ok {
		text = "unknown status"
	}
	return fmt.Sprintf("gvcp command 0x%04x: status 0x%04x (%s)", e.Command, e.Status, text)
}

var (
	ErrMalformed = errors.New("malformed gvcp packet")
	ErrTimeout   = errors.New("gvcp request timed out")
)

// Command is a GVCP command packet.
type Command struct {
	Flags   byte
	Code    uint16
	ReqID   uint16
	Payload []byte
}

// MarshalBinary encodes the command with its 8-byte header.
func (c Command) MarshalBinary() ([]byte, error) {
	if len(c.Payload) > 0xFFFF {
		return nil, fmt.Errorf("gvcp payload too large: %d", len(c.Payload))
	}
	buf := make([]byte, headerSize+len(c.Payload))
	buf[0] = gvcpKey
	buf[1] = c.Flags
	binary.BigEndian.PutUint16(buf[2:], c.Code)
	binary.BigEndian.PutUint16(buf[4:], uint16(len(c.Payload)))
	binary.BigEndian.PutUint16(buf[6:], c.ReqID)
	copy(buf[headerSize:], c.Payload)
	return buf, nil
}

// ParseCommand decodes a command packet. Used by device-side code and tests.
func ParseCommand(b []byte) (Command, error) {
	if len(b) < headerSize || b[0] != gvcpKey {
		return Command{}, ErrMalformed
	}
	n := int(binary.BigEndian.Uint16(b[4:]))
	if len(b) < headerSize+n {
		return Command{}, ErrMalformed
	}
	return Command{
		Flags:   b[1],
		Code:    binary.BigEndian.Uint16(b[2:]),
		ReqID:   binary.BigEndian.Uint16(b[6:]),
		Payload: b[headerSize : headerSize+n],
	}, nil
}

// Ack is a GVCP acknowledge packet.
type Ack struct {
	Status  uint16
	Code    uint16
	AckID   uint16
	Payload []byte
}

// MarshalBinary encodes the acknowledge with its 8-byte header.
func (a Ack) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerSize+len(a.Payload))
	binary.BigEndian.PutUint16(buf[0:], a.Status)
	binary.BigEndian.PutUint16(buf[2:], a.Code)
	binary.BigEndian.PutUint16(buf[4:], uint16(len(a.Payload)))
	binary.BigEndian.PutUint16(buf[6:], a.AckID)
	copy(buf[headerSize:], a.Payload)
	return buf, nil
}

// ParseAck decodes an acknowledge packet.
func ParseAck(b []byte) (Ack, error) {
	if len(b) < headerSize {
		return Ack{}, ErrMalformed
	}
	n := int(binary.BigEndian.Uint16(b[4:]))
	if len(b) < headerSize+n {
		return Ack{}, ErrMalformed
	}
	return Ack{
		Status:  binary.BigEndian.Uint16(b[0:]),
		Code:    binary.BigEndian.Uint16(b[2:]),
		AckID:   binary.BigEndian.Uint16(b[6:]),
		Payload: b[headerSize : headerSize+n],
	}, nil
}

func readRegPayload(addrs []uint32) []byte {
	p := make([]byte, 4*len(addrs))
	for i, a := range addrs {
		binary.BigEndian.PutUint32(p[4*i:], a)
	}
	return p
}

func writeRegPayload(addr, value uint32) []byte {
	p := make([]byte, 8)
	binary.BigEndian.PutUint32(p, addr)
	binary.BigEndian.PutUint32(p[4:], value)
	return p
}

func readMemPayload(addr uint32, count uint16) []byte {
	p := make([]byte, 8)
	binary.BigEndian.PutUint32(p, addr)
	binary.BigEndian.PutUint16(p[6:], count)
	return p
}

// DeviceInfo is the content of a discovery acknowledge.
type DeviceInfo struct {
	VersionMajor     uint16
	VersionMinor     uint16
	DeviceMode       uint32
	MAC              net.HardwareAddr
	IP               net.IP
	Subnet           net.IPMask
	Gateway          net.IP
	ManufacturerName string
	ModelName        string
	DeviceVersion    string
	ManufacturerInfo string
	SerialNumber     string
	UserDefinedName  string
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func ipv4(v uint32) net.IP {
	return net.IPv4(byte(v>>24), byte(v>>16), byte(v>>8), byte(v)).To4()
}

// ParseDiscoveryAck decodes a discovery acknowledge payload.
func ParseDiscoveryAck(p []byte) (DeviceInfo, error) {
	if len(p) < discoveryAckSize {
		return DeviceInfo{}, fmt.Errorf("%w: discovery ack of %d bytes", ErrMalformed, len(p))
	}
	be := binary.BigEndian
	mac := make(net.HardwareAddr, 6)
	copy(mac, p[10:16])
	return DeviceInfo{
		VersionMajor:     be.Uint16(p[0:]),
		VersionMinor:     be.Uint16(p[2:]),
		DeviceMode:       be.Uint32(p[4:]),
		MAC:              mac,
		IP:               ipv4(be.Uint32(p[36:])),
		Subnet:           net.IPMask(ipv4(be.Uint32(p[52:]))),
		Gateway:          ipv4(be.Uint32(p[68:])),
		ManufacturerName: cString(p[72:104]),
		ModelName:        cString(p[104:136]),
		DeviceVersion:    cString(p[136:168]),
		ManufacturerInfo: cString(p[168:216]),
		SerialNumber:     cString(p[216:232]),
		UserDefinedName:  cString(p[232:248]),
	}, nil
}

// MarshalDiscoveryAck encodes info as a discovery acknowledge payload.
func MarshalDiscoveryAck(info DeviceInfo) []byte {
	p := make([]byte, discoveryAckSize)
	be := binary.BigEndian
	be.PutUint16(p[0:], info.VersionMajor)
	be.PutUint16(p[2:], info.VersionMinor)
	be.PutUint32(p[4:], info.DeviceMode)
	copy(p[10:16], info.MAC)
	if ip := info.IP.To4(); ip != nil {
		copy(p[36:40], ip)
	}
	if len(info.Subnet) == 4 {
		copy(p[52:56], info.Subnet)
	}
	if gw := info.Gateway.To4(); gw != nil {
		copy(p[68:72], gw)
	}
	copy(p[72:104], info.ManufacturerName)
	copy(p[104:136], info.ModelName)
	copy(p[136:168], info.DeviceVersion)
	copy(p[168:216], info.ManufacturerInfo)
	copy(p[216:232], info.SerialNumber)
	copy(p[232:248], info.UserDefinedName)
	return p
}
