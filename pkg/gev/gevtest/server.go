// Package gevtest provides an in-process GigE Vision device for tests: a
// GVCP responder backed by a register table and a GVSP block sender.
package gevtest

import (
	"encoding/binary"
	"errors"
	"net"
	"sync"

	"github.com/smazurov/gigecam/pkg/gev"
)

// Server answers GVCP commands on a loopback UDP socket.
type Server struct {
	conn *net.UDPConn
	info gev.DeviceInfo

	mu      sync.Mutex
	regs    map[uint32]uint32
	writes  []Write
	drop    int
	pending bool
	onWrite func(addr, value uint32)

	done chan struct{}
}

// Write records a register write received by the server.
type Write struct {
	Addr  uint32
	Value uint32
}

// NewServer starts a device describing itself with info. All bootstrap
// registers exist and read as zero until set.
func NewServer(info gev.DeviceInfo) (*Server, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		return nil, err
	}
	s := &Server{
		conn: conn,
		info: info,
		regs: make(map[uint32]uint32),
		done: make(chan struct{}),
	}
	for addr := uint32(0); addr < 0x0A04; addr += 4 {
		s.regs[addr] = 0
	}
	for addr := gev.RegSCP0; addr <= gev.RegSCCFG0; addr += 4 {
		s.regs[addr] = 0
	}
	s.loadInfo()
	go s.serve()
	return s, nil
}

func (s *Server) loadInfo() {
	info := s.info
	s.regs[gev.RegVersion] = uint32(info.VersionMajor)<<16 | uint32(info.VersionMinor)
	if len(info.MAC) == 6 {
		m := info.MAC
		s.regs[gev.RegMACHigh] = uint32(m[0])<<8 | uint32(m[1])
		s.regs[gev.RegMACLow] = binary.BigEndian.Uint32(m[2:])
	}
	if ip := info.IP.To4(); ip != nil {
		s.regs[gev.RegCurrentIP] = binary.BigEndian.Uint32(ip)
	}
	s.setString(gev.RegManufacturerName, gev.LenManufacturerName, info.ManufacturerName)
	s.setString(gev.RegModelName, gev.LenModelName, info.ModelName)
	s.setString(gev.RegDeviceVersion, gev.LenDeviceVersion, info.DeviceVersion)
	s.setString(gev.RegManufacturerInfo, gev.LenManufacturerInfo, info.ManufacturerInfo)
	s.setString(gev.RegSerialNumber, gev.LenSerialNumber, info.SerialNumber)
	s.setString(gev.RegUserDefinedName, gev.LenUserDefinedName, info.UserDefinedName)
}

// Addr returns the control address to dial.
func (s *Server) Addr() string { return s.conn.LocalAddr().String() }

// Close stops the responder.
func (s *Server) Close() error {
	err := s.conn.Close()
	<-s.done
	return err
}

// SetRegister stores a register value.
func (s *Server) SetRegister(addr, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[addr] = value
}

// Register returns a register value.
func (s *Server) Register(addr uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[addr]
}

// SetString stores a NUL-padded string in n bytes starting at addr.
func (s *Server) SetString(addr uint32, n int, v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setString(addr, n, v)
}

func (s *Server) setString(addr uint32, n int, v string) {
	b := make([]byte, (n+3)&^3)
	copy(b[:n], v)
	for i := 0; i < len(b); i += 4 {
		s.regs[addr+uint32(i)] = binary.BigEndian.Uint32(b[i:])
	}
}

// Writes returns every register write received so far.
func (s *Server) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Write(nil), s.writes...)
}

// OnWrite installs a callback run after each register write.
func (s *Server) OnWrite(fn func(addr, value uint32)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = fn
}

// DropNext makes the server ignore the next n commands.
func (s *Server) DropNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop = n
}

// SendPending makes the server answer every command with a pending
// acknowledge before the real one.
func (s *Server) SendPending(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = on
}

func (s *Server) serve() {
	defer close(s.done)
	buf := make([]byte, 1500)
	for {
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		cmd, err := gev.ParseCommand(buf[:n])
		if err != nil {
			continue
		}
		s.handle(cmd, from)
	}
}

func (s *Server) handle(cmd gev.Command, from *net.UDPAddr) {
	s.mu.Lock()
	if s.drop > 0 {
		s.drop--
		s.mu.Unlock()
		return
	}
	pending := s.pending
	ack, hook := s.answer(cmd)
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if pending {
		p := make([]byte, 4)
		binary.BigEndian.PutUint16(p[2:], 50)
		s.send(gev.Ack{Code: gev.AckPending, AckID: cmd.ReqID, Payload: p}, from)
	}
	s.send(ack, from)
}

func (s *Server) send(ack gev.Ack, to *net.UDPAddr) {
	pkt, err := ack.MarshalBinary()
	if err != nil {
		return
	}
	_, _ = s.conn.WriteToUDP(pkt, to)
}

// answer builds the acknowledge for cmd under s.mu.
func (s *Server) answer(cmd gev.Command) (gev.Ack, func()) {
	ack := gev.Ack{Code: cmd.Code + 1, AckID: cmd.ReqID}
	be := binary.BigEndian
	p := cmd.Payload

	switch cmd.Code {
	case gev.CmdDiscovery:
		ack.Payload = gev.MarshalDiscoveryAck(s.info)

	case gev.CmdReadReg:
		out := make([]byte, len(p)/4*4)
		for i := 0; i+4 <= len(p); i += 4 {
			v, ok := s.regs[be.Uint32(p[i:])]
			if !ok {
				ack.Status = gev.StatusInvalidAddress
				return ack, nil
			}
			be.PutUint32(out[i:], v)
		}
		ack.Payload = out

	case gev.CmdWriteReg:
		var hooks []Write
		for i := 0; i+8 <= len(p); i += 8 {
			addr, v := be.Uint32(p[i:]), be.Uint32(p[i+4:])
			if _, ok := s.regs[addr]; !ok {
				ack.Status = gev.StatusInvalidAddress
				return ack, nil
			}
			s.regs[addr] = v
			s.writes = append(s.writes, Write{addr, v})
			hooks = append(hooks, Write{addr, v})
		}
		ack.Payload = make([]byte, 4)
		be.PutUint16(ack.Payload[2:], uint16(len(hooks)))
		if fn := s.onWrite; fn != nil {
			return ack, func() {
				for _, w := range hooks {
					fn(w.Addr, w.Value)
				}
			}
		}

	case gev.CmdReadMem:
		if len(p) < 8 {
			ack.Status = gev.StatusInvalidParameter
			return ack, nil
		}
		addr, count := be.Uint32(p), int(be.Uint16(p[6:]))
		if addr%4 != 0 || count%4 != 0 {
			ack.Status = gev.StatusBadAlignment
			return ack, nil
		}
		out := make([]byte, 4+count)
		be.PutUint32(out, addr)
		for i := 0; i < count; i += 4 {
			v, ok := s.regs[addr+uint32(i)]
			if !ok {
				ack.Status = gev.StatusInvalidAddress
				return ack, nil
			}
			be.PutUint32(out[4+i:], v)
		}
		ack.Payload = out

	default:
		ack.Status = gev.StatusNotImplemented
	}
	return ack, nil
}

// Stream sends f to dst as GVSP packets from a fresh socket.
func Stream(dst *net.UDPAddr, f gev.Frame, payloadSize int) error {
	packets, err := gev.Packetize(f, payloadSize)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp4", nil, dst)
	if err != nil {
		return err
	}
	defer conn.Close()
	for _, pkt := range packets {
		if _, err := conn.Write(pkt); err != nil {
			return err
		}
	}
	return nil
}
