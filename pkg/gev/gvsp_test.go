package gev

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"
)

func testFrame(w, h int) Frame {
	data := make([]byte, w*h)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return Frame{
		BlockID:     9,
		Timestamp:   0x0000000100000002,
		PixelFormat: PixelMono8,
		Width:       uint32(w),
		Height:      uint32(h),
		Data:        data,
	}
}

func TestReceiverAssemblesBlock(t *testing.T) {
	in := testFrame(64, 10)
	packets, err := Packetize(in, 100)
	if err != nil {
		t.Fatal(err)
	}
	// leader + ceil(640/100) payloads + trailer
	if len(packets) != 1+7+1 {
		t.Fatalf("got %d packets, want 9", len(packets))
	}

	r := &Receiver{payloadSize: 100, logger: discardLogger()}
	var out *Frame
	for _, p := range packets {
		if f := r.consume(p); f != nil {
			out = f
		}
	}
	if out == nil {
		t.Fatal("no frame completed")
	}
	if out.Missing != 0 {
		t.Errorf("missing = %d, want 0", out.Missing)
	}
	if out.Width != 64 || out.Height != 10 || out.Timestamp != in.Timestamp || out.BlockID != 9 {
		t.Errorf("header mismatch: %+v", out)
	}
	if !bytes.Equal(out.Data, in.Data) {
		t.Error("payload differs from sent image")
	}
}

func TestReceiverCountsMissingPackets(t *testing.T) {
	packets, _ := Packetize(testFrame(64, 10), 100)
	r := &Receiver{payloadSize: 100, logger: discardLogger()}

	var out *Frame
	for i, p := range packets {
		if i == 2 || i == 5 {
			continue
		}
		if f := r.consume(p); f != nil {
			out = f
		}
	}
	if out == nil || out.Missing != 2 {
		t.Fatalf("expected frame with 2 missing packets, got %+v", out)
	}
}

func TestReceiverFlushesOnNewLeader(t *testing.T) {
	first, _ := Packetize(testFrame(32, 4), 64)
	next := testFrame(32, 4)
	next.BlockID = 10
	second, _ := Packetize(next, 64)

	r := &Receiver{payloadSize: 64, logger: discardLogger()}
	var got []*Frame
	for _, p := range append(first[:len(first)-1], second...) {
		if f := r.consume(p); f != nil {
			got = append(got, f)
		}
	}
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if got[0].BlockID != 9 || got[0].Missing != 0 || got[1].BlockID != 10 {
		t.Errorf("unexpected blocks: %d/%d missing=%d", got[0].BlockID, got[1].BlockID, got[0].Missing)
	}
}

func TestReceiverDropsOversizedBlock(t *testing.T) {
	tests := []struct {
		name   string
		limit  int
		width  uint32
		height uint32
	}{
		{"above configured limit", 32 * 4, 64, 10},
		{"above default limit", 0, 1 << 20, 1 << 20},
		{"dimensions overflow int", 0, 0xFFFFFFFF, 0xFFFFFFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			big := testFrame(8, 2)
			packets, _ := Packetize(big, 64)
			// Patch the announced size in the leader.
			leader := packets[0][gvspHeaderSize:]
			binary.BigEndian.PutUint32(leader[16:], tt.width)
			binary.BigEndian.PutUint32(leader[20:], tt.height)

			r := &Receiver{payloadSize: 64, logger: discardLogger()}
			r.SetMaxBlockSize(tt.limit)
			for _, p := range packets {
				if f := r.consume(p); f != nil {
					t.Fatalf("oversized block delivered: %dx%d", f.Width, f.Height)
				}
			}
			if r.cur != nil {
				t.Error("oversized block left pending")
			}

			// The receiver keeps working for the next normal block.
			next, _ := Packetize(testFrame(8, 2), 64)
			var out *Frame
			for _, p := range next {
				if f := r.consume(p); f != nil {
					out = f
				}
			}
			if out == nil || out.Missing != 0 {
				t.Fatalf("following block = %+v", out)
			}
		})
	}
}

func TestReceiverOverUDP(t *testing.T) {
	r, err := Listen("127.0.0.1:0", 512, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frames := make(chan *Frame, 1)
	go r.Run(ctx, func(f *Frame) { frames <- f })

	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: r.Port()})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	packets, _ := Packetize(testFrame(40, 30), 512)
	for _, p := range packets {
		if _, err := conn.Write(p); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case f := <-frames:
		if f.Width != 40 || f.Height != 30 {
			t.Errorf("frame size %dx%d", f.Width, f.Height)
		}
	case <-ctx.Done():
		t.Fatal("no frame received")
	}
}

func TestPayloadPerPacket(t *testing.T) {
	if got := PayloadPerPacket(1500); got != 1464 {
		t.Errorf("PayloadPerPacket(1500) = %d, want 1464", got)
	}
	if got := PayloadPerPacket(10); got != 0 {
		t.Errorf("PayloadPerPacket(10) = %d, want 0", got)
	}
}
