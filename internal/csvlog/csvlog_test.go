package csvlog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/imaround-world/ifit-zone-log/internal/telemetry"
)

func f64(v float64) *float64 { return &v }
func i(v int) *int           { return &v }

func TestWriteSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	at := time.Date(2025, 3, 9, 18, 4, 5, 0, time.UTC)
	samples := []telemetry.Sample{
		{Timestamp: at, Speed: f64(8.5), Incline: f64(1.5), Distance: f64(0.142), HeartRate: i(128)},
		{Timestamp: at.Add(time.Second), HeartRate: i(129)},
		{Timestamp: at.Add(2 * time.Second)},
	}
	for _, s := range samples {
		if err := w.WriteSample(s); err != nil {
			t.Fatalf("WriteSample: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	want := [][]string{
		{"timestamp", "speed_kmh", "incline_percent", "distance_km", "hr_bpm"},
		{"2025-03-09T18:04:05", "8.5", "1.5", "0.142", "128"},
		{"2025-03-09T18:04:06", "", "", "", "129"},
		{"2025-03-09T18:04:07", "", "", "", ""},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestRowsAreFlushedPerWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	s := telemetry.Sample{Timestamp: time.Date(2025, 3, 9, 18, 4, 5, 0, time.UTC)}
	if err := w.WriteSample(s); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}

	// Read back without closing: the row must already be on disk.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "timestamp,speed_kmh,incline_percent,distance_km,hr_bpm\n2025-03-09T18:04:05,,,,\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", string(data), want)
	}
}

func TestCloseReportsWriteFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	w, err := Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Buffer a row, then pull the file out from under the final flush.
	if err := w.w.Write([]string{"pending"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.f.Close()

	if err := w.Close(); err == nil {
		t.Error("Close reported no error for a failed final flush")
	}
}

func TestCreateRejectsBadPath(t *testing.T) {
	if _, err := Create(filepath.Join(t.TempDir(), "missing", "run.csv")); err == nil {
		t.Error("Create succeeded on a path with a missing directory")
	}
}
