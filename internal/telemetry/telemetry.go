// Package telemetry holds the data model shared by the device sessions,
// the poll loop and the sinks.
package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeFormat is the timestamp layout used in CSV rows.
const TimeFormat = "2006-01-02T15:04:05"

// Header is the fixed CSV column order. Fields renders cells in this order.
var Header = []string{"timestamp", "speed_kmh", "incline_percent", "distance_km", "hr_bpm"}

// Reading is one decoded console frame: the treadmill telemetry triple.
// A session hands these out whole, never field by field.
type Reading struct {
	Speed    float64 // km/h
	Incline  float64 // percent
	Distance float64 // km
}

// Sample is the per-tick record handed to every sink. Pointer fields are nil
// when the corresponding device was absent at startup, which is distinct
// from a present device reporting zero.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Speed     *float64  `json:"speed_kmh"`
	Incline   *float64  `json:"incline_percent"`
	Distance  *float64  `json:"distance_km"`
	HeartRate *int      `json:"hr_bpm"`
}

// Fields renders the sample as CSV cells in Header order. Absent values
// become empty cells, not zeros.
func (s Sample) Fields() []string {
	return []string{
		s.Timestamp.Format(TimeFormat),
		floatCell(s.Speed),
		floatCell(s.Incline),
		floatCell(s.Distance),
		intCell(s.HeartRate),
	}
}

// Summary is the one-line operator view of the sample, logged every tick.
func (s Sample) Summary() string {
	parts := make([]string, 0, 4)
	if s.Speed != nil {
		parts = append(parts, fmt.Sprintf("Speed: %.2f km/h", *s.Speed))
	}
	if s.Incline != nil {
		parts = append(parts, fmt.Sprintf("Incline: %.1f%%", *s.Incline))
	}
	if s.Distance != nil {
		parts = append(parts, fmt.Sprintf("Dist: %.3f km", *s.Distance))
	}
	if s.HeartRate != nil {
		parts = append(parts, fmt.Sprintf("HR: %d bpm", *s.HeartRate))
	}
	if len(parts) == 0 {
		return "no devices reporting"
	}
	return strings.Join(parts, ", ")
}

func floatCell(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func intCell(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
