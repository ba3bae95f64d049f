package ifit

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"tinygo.org/x/bluetooth"

	"github.com/imaround-world/ifit-zone-log/internal/telemetry"
)

// GATT endpoints of the console's proprietary session service.
var (
	// ServiceUUID advertises iFit consoles during discovery.
	ServiceUUID = bluetooth.NewUUID([16]byte{
		0x00, 0x00, 0x15, 0x33, 0x14, 0x12, 0xef, 0xde,
		0x15, 0x23, 0x78, 0x5f, 0xea, 0xbc, 0xd1, 0x23,
	})
	commandCharUUID = bluetooth.NewUUID([16]byte{
		0x00, 0x00, 0x15, 0x34, 0x14, 0x12, 0xef, 0xde,
		0x15, 0x23, 0x78, 0x5f, 0xea, 0xbc, 0xd1, 0x23,
	})
	notifyCharUUID = bluetooth.NewUUID([16]byte{
		0x00, 0x00, 0x15, 0x35, 0x14, 0x12, 0xef, 0xde,
		0x15, 0x23, 0x78, 0x5f, 0xea, 0xbc, 0xd1, 0x23,
	})
)

// Handshake and keep-alive packets captured from the stock iFit app. The
// console only streams telemetry while it receives these exact bytes; none
// of them derive from runtime parameters, so they live here as constants.
var (
	initSequence = [][]byte{
		mustHex("fe022c04"),
		mustHex("0012020402280428900701cec4b0aaa2a8949696"),
		mustHex("0112aca8a2bad0dccefe14003a52786486a6fc18"),
		mustHex("ff08324aa0880200004400000000000000000000"),
	}
	pollSequence = [][]byte{
		mustHex("fe021403"),
		mustHex("001202040210041002000a1b9430000040500080"),
		mustHex("ff02182700000000000000000000000000000000"),
	}
)

// frameSignature marks a telemetry frame among the console's notifications.
var frameSignature = mustHex("2e042e02")

// Telemetry block layout. Offsets are relative to the block, which starts
// frameDataOffset bytes past the first signature byte. Bytes 4 and 5 of the
// block are a field this logger does not use.
const (
	frameDataOffset = 5
	frameDataLen    = 8

	speedOffset    = 0
	inclineOffset  = 2
	distanceOffset = 6

	speedDivisor    = 100
	inclineDivisor  = 100
	distanceDivisor = 1000
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("ifit: bad packet constant: " + s)
	}
	return b
}

// decodeFrame extracts the telemetry triple from one notification buffer.
// Frames without the signature, or too short to hold the whole block, are
// rejected; a reading is only ever produced complete.
func decodeFrame(buf []byte) (telemetry.Reading, bool) {
	idx := bytes.Index(buf, frameSignature)
	if idx < 0 {
		return telemetry.Reading{}, false
	}
	start := idx + frameDataOffset
	if len(buf) < start+frameDataLen {
		return telemetry.Reading{}, false
	}
	blk := buf[start : start+frameDataLen]
	return telemetry.Reading{
		Speed:    float64(binary.LittleEndian.Uint16(blk[speedOffset:])) / speedDivisor,
		Incline:  float64(binary.LittleEndian.Uint16(blk[inclineOffset:])) / inclineDivisor,
		Distance: float64(binary.LittleEndian.Uint16(blk[distanceOffset:])) / distanceDivisor,
	}, true
}
