package ifit

import (
	"encoding/hex"
	"testing"

	"github.com/imaround-world/ifit-zone-log/internal/telemetry"
)

// frameWith builds a notification buffer: prefix junk bytes, the frame
// signature, the one skipped byte, then the 8-byte telemetry block.
func frameWith(prefix int, block []byte) []byte {
	buf := make([]byte, 0, 20)
	for i := 0; i < prefix; i++ {
		buf = append(buf, 0xba)
	}
	buf = append(buf, frameSignature...)
	buf = append(buf, 0x00)
	buf = append(buf, block...)
	return buf
}

func TestDecodeFrame(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		want telemetry.Reading
	}{
		{
			name: "unit values",
			buf:  frameWith(2, []byte{0x64, 0x00, 0x0A, 0x00, 0x00, 0x00, 0xE8, 0x03}),
			want: telemetry.Reading{Speed: 1.00, Incline: 0.10, Distance: 1.000},
		},
		{
			name: "steady run",
			buf:  frameWith(0, []byte{0xE2, 0x04, 0x5E, 0x01, 0x99, 0x99, 0x29, 0x09}),
			want: telemetry.Reading{Speed: 12.5, Incline: 3.5, Distance: 2.345},
		},
		{
			name: "all zero",
			buf:  frameWith(5, []byte{0, 0, 0, 0, 0, 0, 0, 0}),
			want: telemetry.Reading{},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := decodeFrame(c.buf)
			if !ok {
				t.Fatal("decodeFrame rejected a valid frame")
			}
			if got != c.want {
				t.Errorf("decodeFrame = %+v, want %+v", got, c.want)
			}
		})
	}
}

func TestDecodeFrameRejects(t *testing.T) {
	full := frameWith(2, []byte{0x64, 0x00, 0x0A, 0x00, 0x00, 0x00, 0xE8, 0x03})
	cases := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"no signature", []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d}},
		{"signature only", frameSignature},
		{"block one byte short", full[:len(full)-1]},
		{"block missing distance", full[:len(full)-2]},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if r, ok := decodeFrame(c.buf); ok {
				t.Errorf("decodeFrame accepted %x as %+v", c.buf, r)
			}
		})
	}
}

func TestPacketBytes(t *testing.T) {
	wantInit := []string{
		"fe022c04",
		"0012020402280428900701cec4b0aaa2a8949696",
		"0112aca8a2bad0dccefe14003a52786486a6fc18",
		"ff08324aa0880200004400000000000000000000",
	}
	if len(initSequence) != len(wantInit) {
		t.Fatalf("initSequence has %d packets, want %d", len(initSequence), len(wantInit))
	}
	for i, want := range wantInit {
		if got := hex.EncodeToString(initSequence[i]); got != want {
			t.Errorf("initSequence[%d] = %s, want %s", i, got, want)
		}
	}

	wantPoll := []string{
		"fe021403",
		"001202040210041002000a1b9430000040500080",
		"ff02182700000000000000000000000000000000",
	}
	if len(pollSequence) != len(wantPoll) {
		t.Fatalf("pollSequence has %d packets, want %d", len(pollSequence), len(wantPoll))
	}
	for i, want := range wantPoll {
		if got := hex.EncodeToString(pollSequence[i]); got != want {
			t.Errorf("pollSequence[%d] = %s, want %s", i, got, want)
		}
	}

	if got := hex.EncodeToString(frameSignature); got != "2e042e02" {
		t.Errorf("frameSignature = %s, want 2e042e02", got)
	}
}
