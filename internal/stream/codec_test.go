package stream

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func samplePacket() *FramePacket {
	depth := make([]byte, 4*2*2)
	for i := 0; i < 8; i++ {
		binary.LittleEndian.PutUint16(depth[2*i:], uint16(1000*(i+1)))
	}
	return &FramePacket{
		Width:   4,
		Height:  2,
		RGB:     []byte{0xff, 0xd8, 0xff, 0xe0, 0x01, 0x02, 0x03},
		Depth:   depth,
		Fx:      500, Fy: 500, Cx: 2, Cy: 1,
		CullMin: 0.25, CullMax: 6.5, XCull: 3.0, YCull: 2.5,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := samplePacket()

	got, err := Decode(Encode(want))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// Every proper prefix of a valid message must fail with ErrTruncated and
// never produce a partial packet.
func TestDecodeTruncationSafety(t *testing.T) {
	msg := Encode(samplePacket())

	for n := 0; n < len(msg); n++ {
		p, err := Decode(msg[:n])
		if err == nil {
			t.Fatalf("Decode of %d/%d byte prefix succeeded, want ErrTruncated", n, len(msg))
		}
		if !errors.Is(err, ErrTruncated) {
			t.Fatalf("Decode of %d byte prefix: got %v, want ErrTruncated", n, err)
		}
		if p != nil {
			t.Fatalf("Decode of %d byte prefix returned a partial packet", n)
		}
	}

	if _, err := Decode(msg); err != nil {
		t.Fatalf("Decode of full message failed: %v", err)
	}
}

func TestDecodeRejectsNegativeLength(t *testing.T) {
	msg := Encode(samplePacket())
	// Corrupt rgbLen to -1; the decoder must treat it as truncation, not
	// attempt a slice.
	binary.LittleEndian.PutUint32(msg[8:], 0xffffffff)
	if _, err := Decode(msg); !errors.Is(err, ErrTruncated) {
		t.Fatalf("negative rgbLen: got %v, want ErrTruncated", err)
	}
}

func TestDecodeEndToEndScenario(t *testing.T) {
	// 4×2 frame, depth in mm as little-endian u16 pairs.
	p, err := Decode(Encode(samplePacket()))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if p.Width != 4 || p.Height != 2 {
		t.Fatalf("got %dx%d, want 4x2", p.Width, p.Height)
	}
	if p.Pixels() != 8 {
		t.Fatalf("Pixels() = %d, want 8", p.Pixels())
	}
	if p.Fx != 500 || p.Fy != 500 || p.Cx != 2 || p.Cy != 1 {
		t.Fatalf("intrinsics mismatch: fx=%v fy=%v cx=%v cy=%v", p.Fx, p.Fy, p.Cx, p.Cy)
	}
	if !p.Valid() {
		t.Fatal("expected valid packet")
	}

	samples := p.DepthSamples()
	if len(samples) != 8 {
		t.Fatalf("DepthSamples len = %d, want 8", len(samples))
	}
	for i, v := range samples {
		if want := uint32(1000 * (i + 1)); v != want {
			t.Errorf("sample %d = %d, want %d (widened, not rescaled)", i, v, want)
		}
	}
}

func TestValidity(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*FramePacket)
		want bool
	}{
		{"complete", func(p *FramePacket) {}, true},
		{"zero width", func(p *FramePacket) { p.Width = 0 }, false},
		{"negative height", func(p *FramePacket) { p.Height = -1 }, false},
		{"empty rgb", func(p *FramePacket) { p.RGB = nil }, false},
		{"empty depth", func(p *FramePacket) { p.Depth = nil }, false},
	}
	for _, tc := range cases {
		p := samplePacket()
		tc.mod(p)
		if got := p.Valid(); got != tc.want {
			t.Errorf("%s: Valid() = %v, want %v", tc.name, got, tc.want)
		}
	}

	var nilPacket *FramePacket
	if nilPacket.Valid() {
		t.Error("nil packet reported valid")
	}
}

func FuzzDecode(f *testing.F) {
	f.Add(Encode(samplePacket()))
	f.Add([]byte{})
	f.Add([]byte{0x04, 0x00, 0x00, 0x00})
	f.Fuzz(func(t *testing.T, data []byte) {
		p, err := Decode(data)
		if err != nil && p != nil {
			t.Fatal("Decode returned both packet and error")
		}
		if p != nil {
			// Lengths must always be internally consistent.
			if len(p.Depth) < 0 || len(p.RGB) < 0 {
				t.Fatal("impossible payload length")
			}
		}
	})
}
