// Package ifit drives the proprietary session a treadmill console expects:
// an opaque handshake at setup, keep-alive packets every poll tick, and
// telemetry frames arriving as notifications in between.
package ifit

import (
	"encoding/hex"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/imaround-world/ifit-zone-log/internal/ble"
	"github.com/imaround-world/ifit-zone-log/internal/linkstats"
	"github.com/imaround-world/ifit-zone-log/internal/telemetry"
)

// setupSettle gives the console time to switch into streaming mode after the
// handshake. Sending keep-alives earlier confuses some firmwares.
const setupSettle = 2 * time.Second

// Device is one console session. Construct with New, then Connect and Setup
// once; Update runs every poll tick. Lifecycle methods never return errors:
// failures are logged and the session degrades, the poll loop keeps going.
type Device struct {
	addr   bluetooth.Address
	dialer ble.Dialer
	log    *log.Entry
	stats  *linkstats.Monitor
	settle time.Duration

	conn ble.Conn

	mu      sync.Mutex
	state   ble.State
	reading telemetry.Reading
}

func New(dialer ble.Dialer, addr bluetooth.Address) *Device {
	return &Device{
		addr:   addr,
		dialer: dialer,
		log:    log.WithFields(log.Fields{"device": "ifit", "addr": addr.String()}),
		stats:  linkstats.NewMonitor(),
		settle: setupSettle,
	}
}

// Connect opens the link. On failure the session stays disconnected; there
// is no retry, the console is expected to be present when the run starts.
func (d *Device) Connect() {
	d.log.Info("Connecting to iFit console...")
	d.setState(ble.StateConnecting)
	conn, err := d.dialer.Dial(d.addr, ble.DialConfig{
		Services: []bluetooth.UUID{ServiceUUID},
	})
	if err != nil {
		d.log.WithError(err).Error("Could not connect to iFit console")
		d.setState(ble.StateDisconnected)
		return
	}
	d.conn = conn
	up := conn.Connected()
	if up {
		d.setState(ble.StateConnected)
	} else {
		d.setState(ble.StateDisconnected)
	}
	d.log.Infof("Connected to iFit: %v", up)
}

// Setup subscribes to telemetry notifications and plays the handshake that
// puts the console into streaming mode, then waits for it to settle.
func (d *Device) Setup() {
	if d.State() != ble.StateConnected {
		return
	}
	if err := d.conn.Subscribe(notifyCharUUID, d.handleFrame); err != nil {
		d.log.WithError(err).Error("Could not subscribe to console notifications")
		return
	}
	d.log.Info("Initializing iFit session...")
	for i, pkt := range initSequence {
		if err := d.conn.Write(commandCharUUID, pkt); err != nil {
			d.log.WithError(err).WithField("packet", i).Error("iFit handshake error")
			return
		}
	}
	time.Sleep(d.settle)
}

// Update sends the keep-alive sequence that makes the console keep pushing
// telemetry. Write failures are logged and swallowed; the link state is
// whatever the transport says it is.
func (d *Device) Update() {
	if d.State() != ble.StateConnected {
		return
	}
	for i, pkt := range pollSequence {
		if err := d.conn.Write(commandCharUUID, pkt); err != nil {
			d.log.WithError(err).WithField("packet", i).Error("iFit update error")
			return
		}
	}
}

// Close unsubscribes best-effort and drops the link. Safe to call on a
// session that never connected.
func (d *Device) Close() {
	if d.conn == nil || d.State() != ble.StateConnected {
		return
	}
	if err := d.conn.Unsubscribe(notifyCharUUID); err != nil {
		d.log.WithError(err).Debug("could not unsubscribe from console")
	}
	if err := d.conn.Disconnect(); err != nil {
		d.log.WithError(err).Warn("could not disconnect from console")
	}
	d.setState(ble.StateDisconnected)
	d.log.Info("iFit session closed")
}

func (d *Device) handleFrame(buf []byte) {
	d.log.WithField("raw", hex.EncodeToString(buf)).Debug("console frame")
	reading, ok := decodeFrame(buf)
	if !ok {
		d.stats.Reject()
		return
	}
	d.stats.Record(time.Now())
	d.mu.Lock()
	d.reading = reading
	d.mu.Unlock()
}

// Reading returns the last decoded telemetry triple. It survives link loss
// so a sample row always reflects the console's most recent known values.
func (d *Device) Reading() telemetry.Reading {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reading
}

func (d *Device) State() ble.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) setState(s ble.State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Stats reports notification health for the status endpoint.
func (d *Device) Stats() linkstats.Snapshot {
	return d.stats.Snapshot()
}

func (d *Device) Address() string {
	return d.addr.String()
}
