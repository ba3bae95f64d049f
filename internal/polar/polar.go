// Package polar maintains the heart rate strap session. Unlike the console,
// straps drop the link whenever the wearer steps away, so this session owns
// a reconnect loop driven from the poll tick, plus a battery read that
// doubles as a keep-alive.
package polar

import (
	"encoding/hex"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/imaround-world/ifit-zone-log/internal/ble"
	"github.com/imaround-world/ifit-zone-log/internal/linkstats"
)

const (
	// connectTimeout bounds each dial; straps out of range make the
	// adapter hang far longer than a poll cycle can tolerate.
	connectTimeout = 20 * time.Second
	// connectSettle lets the strap finish encryption before GATT traffic.
	connectSettle = 1 * time.Second
	// batteryPeriod throttles battery reads. One per minute is enough to
	// keep the link warm without draining the strap.
	batteryPeriod = 60 * time.Second
)

// Device is one strap session. Construct with New, then Connect and Setup
// once; Update runs every poll tick and owns all state transitions, so the
// link-down callback only posts an event for Update to consume.
type Device struct {
	addr   bluetooth.Address
	dialer ble.Dialer
	log    *log.Entry
	stats  *linkstats.Monitor
	settle time.Duration

	conn     ble.Conn
	linkDown chan struct{}

	mu          sync.Mutex
	state       ble.State
	hr          int
	battery     int
	lastBattery time.Time
	connectedAt time.Time
}

func New(dialer ble.Dialer, addr bluetooth.Address) *Device {
	return &Device{
		addr:     addr,
		dialer:   dialer,
		log:      log.WithFields(log.Fields{"device": "polar", "addr": addr.String()}),
		stats:    linkstats.NewMonitor(),
		settle:   connectSettle,
		linkDown: make(chan struct{}, 1),
	}
}

// Connect dials the strap. A zero address means no strap was discovered and
// the whole session stays inert.
func (d *Device) Connect() {
	if d.addr == (bluetooth.Address{}) {
		return
	}
	d.log.Info("Connecting to Polar strap...")
	d.setState(ble.StateConnecting)
	conn, err := d.dialer.Dial(d.addr, ble.DialConfig{
		ConnectTimeout: connectTimeout,
		Services:       []bluetooth.UUID{ServiceUUID, batteryService},
		OnDisconnect:   d.onLinkDown,
	})
	if err != nil {
		d.log.WithError(err).Error("Could not connect to Polar strap")
		d.setState(ble.StateDisconnected)
		return
	}
	d.conn = conn
	time.Sleep(d.settle)
	up := conn.Connected()
	if up {
		d.mu.Lock()
		d.state = ble.StateConnected
		d.connectedAt = time.Now()
		d.mu.Unlock()
	} else {
		d.setState(ble.StateDisconnected)
	}
	d.log.Infof("Connected to Polar: %v", up)
}

// onLinkDown runs on the adapter's event goroutine. It must not touch
// session state directly; it posts to the buffered channel Update drains.
func (d *Device) onLinkDown() {
	d.log.Warn("Polar disconnected, make sure it is PAIRED at OS level!!!")
	select {
	case d.linkDown <- struct{}{}:
	default:
	}
}

// Setup starts heart rate notifications. A failure here forces the session
// back to disconnected so the next tick retries the whole dance.
func (d *Device) Setup() {
	if d.State() != ble.StateConnected {
		return
	}
	if err := d.conn.Subscribe(hrCharUUID, d.handleMeasurement); err != nil {
		d.log.WithError(err).Error("Polar setup error")
		d.setState(ble.StateDisconnected)
		return
	}
	d.log.Info("Polar HR notifications started")
}

// Update is the per-tick strap work: reconcile the link state, reconnect if
// the link is down, otherwise keep the link warm with a throttled battery
// read. A tick spent reconnecting performs no battery read.
func (d *Device) Update() {
	d.reconcile()

	if d.State() != ble.StateConnected {
		d.Connect()
		if d.State() == ble.StateConnected {
			d.Setup()
		}
		return
	}

	if time.Since(d.lastBatteryAt()) > batteryPeriod {
		d.readBattery()
	}
}

// reconcile drains any pending link-down event, then trusts the transport's
// live view. Covers disconnects the callback saw before this tick.
func (d *Device) reconcile() {
	select {
	case <-d.linkDown:
		d.setState(ble.StateDisconnected)
	default:
	}
	if d.conn == nil {
		return
	}
	if d.conn.Connected() {
		d.setState(ble.StateConnected)
	} else {
		d.setState(ble.StateDisconnected)
	}
}

func (d *Device) readBattery() {
	buf, err := d.conn.Read(batteryChar)
	if err != nil {
		d.log.WithError(err).Error("Polar keep-alive error")
		return
	}
	pct, ok := decodeBattery(buf)
	if !ok {
		return
	}
	d.mu.Lock()
	d.battery = pct
	d.lastBattery = time.Now()
	d.mu.Unlock()
	d.log.WithField("battery", pct).Debug("Polar battery read")
}

func (d *Device) handleMeasurement(buf []byte) {
	d.log.WithField("raw", hex.EncodeToString(buf)).Debug("polar frame")
	hr, ok := decodeHeartRate(buf)
	if !ok {
		d.stats.Reject()
		return
	}
	d.stats.Record(time.Now())
	d.mu.Lock()
	d.hr = hr
	d.mu.Unlock()
}

// Close stops notifications best-effort and drops the link. A session that
// is already down has nothing to release.
func (d *Device) Close() {
	if d.conn == nil || d.State() != ble.StateConnected {
		return
	}
	if err := d.conn.Unsubscribe(hrCharUUID); err != nil {
		d.log.WithError(err).Debug("could not unsubscribe from strap")
	}
	if err := d.conn.Disconnect(); err != nil {
		d.log.WithError(err).Warn("could not disconnect from strap")
	}
	d.setState(ble.StateDisconnected)
	d.log.Info("Polar session closed")
}

// HeartRate returns the last decoded value. It survives link loss, so rows
// written during a dropout carry the most recent known pulse.
func (d *Device) HeartRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hr
}

// Battery returns the last battery percentage read from the strap.
func (d *Device) Battery() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.battery
}

// ConnectedAt returns when the current link came up, zero if it never did.
func (d *Device) ConnectedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connectedAt
}

func (d *Device) lastBatteryAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastBattery
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
