package ble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/imaround-world/ifit-zone-log/internal/linkstats"
)

// Filter selects the two device families during discovery.
type Filter struct {
	// ConsoleService advertises the treadmill console.
	ConsoleService bluetooth.UUID
	// StrapService advertises the heart rate strap.
	StrapService bluetooth.UUID
	// StrapNameHint additionally matches straps by advertised name, for
	// firmwares that do not put the service UUID in the advertisement.
	StrapNameHint string
}

// Found is one matched peripheral.
type Found struct {
	Address bluetooth.Address
	Name    string
	RSSI    int16
}

// Discovery holds at most one peripheral per family. A missing family means
// the scan window closed without a match; callers decide how to degrade.
type Discovery struct {
	Console *Found
	Strap   *Found
}

// Scan sweeps advertisements until both families are found or ctx expires.
// A partial or empty Discovery is not an error.
func Scan(ctx context.Context, adapter *bluetooth.Adapter, f Filter) (Discovery, error) {
	var (
		mu sync.Mutex
		d  Discovery
	)
	done := make(chan error, 1)
	go func() {
		done <- adapter.Scan(func(a *bluetooth.Adapter, res bluetooth.ScanResult) {
			mu.Lock()
			defer mu.Unlock()
			if d.Console == nil && res.HasServiceUUID(f.ConsoleService) {
				d.Console = report("console", res)
			}
			if d.Strap == nil && matchesStrap(f, res) {
				d.Strap = report("heart rate strap", res)
			}
			if d.Console != nil && d.Strap != nil {
				if err := a.StopScan(); err != nil {
					log.WithError(err).Debug("could not stop scan")
				}
			}
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			return d, fmt.Errorf("scan failed: %w", err)
		}
	case <-ctx.Done():
		if err := adapter.StopScan(); err != nil {
			log.WithError(err).Debug("could not stop scan")
		}
		if err := <-done; err != nil {
			return d, fmt.Errorf("scan failed: %w", err)
		}
	}
	return d, nil
}

func matchesStrap(f Filter, res bluetooth.ScanResult) bool {
	if res.HasServiceUUID(f.StrapService) {
		return true
	}
	return f.StrapNameHint != "" && strings.Contains(res.LocalName(), f.StrapNameHint)
}

func report(kind string, res bluetooth.ScanResult) *Found {
	addr := res.Address.String()
	log.WithFields(log.Fields{
		"name":   res.LocalName(),
		"addr":   addr,
		"rssi":   res.RSSI,
		"vendor": linkstats.Vendor(addr),
	}).Infof("Found %s", kind)
	return &Found{Address: res.Address, Name: res.LocalName(), RSSI: res.RSSI}
}
