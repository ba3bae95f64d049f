// ifit-zone-log records treadmill telemetry and heart rate to CSV. It keeps
// an iFit console session and a Polar strap session alive side by side,
// sampling both once per second until interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/imaround-world/ifit-zone-log/internal/ble"
	"github.com/imaround-world/ifit-zone-log/internal/csvlog"
	"github.com/imaround-world/ifit-zone-log/internal/ifit"
	"github.com/imaround-world/ifit-zone-log/internal/polar"
	"github.com/imaround-world/ifit-zone-log/internal/poll"
	"github.com/imaround-world/ifit-zone-log/internal/stream"
)

// startupSettle separates session setup from the first poll tick. Consoles
// need a beat after the handshake before they tolerate keep-alives.
const startupSettle = 3 * time.Second

func main() {
	var (
		debug      = flag.Bool("debug", false, "log raw frames and link events")
		out        = flag.String("out", "", "CSV output path (default <timestamp>.csv)")
		listen     = flag.String("listen", "", "serve the live feed on this address, e.g. :8077 (off when empty)")
		scanWindow = flag.Duration("scan-timeout", 15*time.Second, "how long to scan for devices")
	)
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	runID := uuid.New().String()
	log.WithField("run", runID).Info("iFit zone logger starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		log.WithError(err).Fatal("Could not enable the bluetooth adapter")
	}
	radio := ble.NewRadio(adapter)

	log.Info("Scanning for devices...")
	scanCtx, cancel := context.WithTimeout(ctx, *scanWindow)
	found, err := ble.Scan(scanCtx, adapter, ble.Filter{
		ConsoleService: ifit.ServiceUUID,
		StrapService:   polar.ServiceUUID,
		StrapNameHint:  polar.NameHint,
	})
	cancel()
	if err != nil {
		log.WithError(err).Fatal("Scan failed")
	}

	var console *ifit.Device
	if found.Console != nil {
		console = ifit.New(radio, found.Console.Address)
		console.Connect()
	} else {
		log.Warn("iFit device not found. Ensure the treadmill is on.")
	}

	var strap *polar.Device
	if found.Strap != nil {
		strap = polar.New(radio, found.Strap.Address)
		strap.Connect()
	} else {
		log.Warn("Polar device not found. Ensure the HR monitor is on.")
	}

	if console != nil {
		console.Setup()
	}
	if strap != nil {
		strap.Setup()
		strap.Update() // first battery read before the loop starts
		log.Infof("Polar Battery: %d%%", strap.Battery())
	}

	time.Sleep(startupSettle)

	p := poll.New(poll.DefaultInterval)
	if console != nil {
		p.Console = console
	}
	if strap != nil {
		p.Strap = strap
	}

	path := *out
	if path == "" {
		path = time.Now().Format("20060102-1504") + ".csv"
	}
	csv, err := csvlog.Create(path)
	if err != nil {
		p.Close()
		log.WithError(err).Fatal("Could not open the CSV log")
	}
	defer func() {
		if err := csv.Close(); err != nil {
			log.WithError(err).Error("Could not close the CSV log")
		}
	}()
	log.WithField("file", path).Info("Logging data")
	p.Sinks = append(p.Sinks, csv)

	if *listen != "" {
		hub := stream.NewHub(statusFunc(runID, console, strap))
		p.Sinks = append(p.Sinks, hub)
		go stream.Serve(*listen, hub)
	}

	log.Info("Starting data poll (Ctrl+C to quit)...")
	p.Run(ctx)
}

// statusFunc snapshots both sessions for the /status endpoint. Sessions that
// were never constructed stay nil in the document.
func statusFunc(runID string, console *ifit.Device, strap *polar.Device) func() stream.Status {
	started := time.Now()
	return func() stream.Status {
		st := stream.Status{RunID: runID, StartedAt: started}
		if console != nil {
			st.Console = &stream.SessionStatus{
				Address: console.Address(),
				State:   console.State().String(),
				Link:    console.Stats(),
			}
		}
		if strap != nil {
			battery := strap.Battery()
			st.Strap = &stream.SessionStatus{
				Address: strap.Address(),
				State:   strap.State().String(),
				Battery: &battery,
				Link:    strap.Stats(),
			}
			if at := strap.ConnectedAt(); !at.IsZero() {
				st.Strap.ConnectedAt = &at
			}
		}
		return st
	}
}
