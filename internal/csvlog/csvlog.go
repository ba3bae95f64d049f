// Package csvlog appends telemetry samples to a CSV file, one row per poll
// tick, flushed as it goes so the file tails cleanly during a workout.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/imaround-world/ifit-zone-log/internal/telemetry"
)

type Writer struct {
	f *os.File
	w *csv.Writer
}

// Create opens path for writing, truncating any previous file, and emits the
// header row.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create log file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(telemetry.Header); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not write header: %w", err)
	}
	return &Writer{f: f, w: w}, nil
}

// WriteSample appends one row in telemetry.Header order.
func (w *Writer) WriteSample(s telemetry.Sample) error {
	if err := w.w.Write(s.Fields()); err != nil {
		return fmt.Errorf("could not write row: %w", err)
	}
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return fmt.Errorf("could not write row: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
