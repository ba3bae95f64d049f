package polar

import (
	"encoding/binary"

	"tinygo.org/x/bluetooth"
)

// ServiceUUID is the standard Heart Rate service straps advertise.
var ServiceUUID = bluetooth.ServiceUUIDHeartRate

// NameHint matches straps whose advertisements omit the service UUID.
const NameHint = "Polar"

var (
	hrCharUUID     = bluetooth.CharacteristicUUIDHeartRateMeasurement
	batteryService = bluetooth.New16BitUUID(0x180f)
	batteryChar    = bluetooth.New16BitUUID(0x2a19)
)

// hrValue16Bit is bit 0 of the Heart Rate Measurement flags byte: set when
// the value is uint16 little-endian instead of uint8.
const hrValue16Bit = 0x01

// decodeHeartRate pulls beats per minute out of one Heart Rate Measurement
// notification. Buffers too short for the width the flags announce are
// rejected.
func decodeHeartRate(buf []byte) (int, bool) {
	if len(buf) < 2 {
		return 0, false
	}
	if buf[0]&hrValue16Bit == 0 {
		return int(buf[1]), true
	}
	if len(buf) < 3 {
		return 0, false
	}
	return int(binary.LittleEndian.Uint16(buf[1:3])), true
}

// decodeBattery reads the Battery Level percentage byte.
func decodeBattery(buf []byte) (int, bool) {
	if len(buf) == 0 {
		return 0, false
	}
	return int(buf[0]), true
}
