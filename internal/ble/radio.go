package ble

import (
	"fmt"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// attValueSize is the largest attribute value a read can return.
const attValueSize = 512

// Radio is the Dialer backed by the real bluetooth adapter. It owns the
// adapter's single connect handler and routes link events to the connection
// they belong to.
type Radio struct {
	adapter *bluetooth.Adapter

	mu    sync.Mutex
	conns map[string]*conn
}

func NewRadio(adapter *bluetooth.Adapter) *Radio {
	r := &Radio{adapter: adapter, conns: make(map[string]*conn)}
	adapter.SetConnectHandler(func(dev bluetooth.Device, connected bool) {
		r.route(dev.Address.String(), connected)
	})
	return r
}

func (r *Radio) route(addr string, connected bool) {
	r.mu.Lock()
	c := r.conns[addr]
	r.mu.Unlock()
	if c == nil {
		return
	}
	log.WithFields(log.Fields{"addr": addr, "connected": connected}).Debug("link event")
	c.up.Store(connected)
	if !connected && c.onDisconnect != nil {
		c.onDisconnect()
	}
}

func (r *Radio) track(c *conn) {
	r.mu.Lock()
	r.conns[c.addr] = c
	r.mu.Unlock()
}

func (r *Radio) untrack(addr string) {
	r.mu.Lock()
	delete(r.conns, addr)
	r.mu.Unlock()
}

// Dial connects to addr and resolves the characteristics of every service in
// cfg.Services. The link is torn down again if resolution fails.
func (r *Radio) Dial(addr bluetooth.Address, cfg DialConfig) (Conn, error) {
	var params bluetooth.ConnectionParams
	if cfg.ConnectTimeout > 0 {
		params.ConnectionTimeout = bluetooth.NewDuration(cfg.ConnectTimeout)
	}
	dev, err := r.adapter.Connect(addr, params)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", addr.String(), err)
	}

	c := &conn{
		radio:        r,
		dev:          dev,
		addr:         addr.String(),
		onDisconnect: cfg.OnDisconnect,
		chars:        make(map[bluetooth.UUID]bluetooth.DeviceCharacteristic),
	}
	c.up.Store(true)
	// Track before resolving so a drop during discovery still routes here.
	r.track(c)

	if err := c.resolve(cfg.Services); err != nil {
		_ = c.Disconnect()
		return nil, err
	}
	return c, nil
}

// conn is one peripheral link with a flat view of its characteristics.
type conn struct {
	radio        *Radio
	dev          bluetooth.Device
	addr         string
	onDisconnect func()
	up           atomic.Bool

	mu    sync.Mutex
	chars map[bluetooth.UUID]bluetooth.DeviceCharacteristic
}

func (c *conn) resolve(services []bluetooth.UUID) error {
	svcs, err := c.dev.DiscoverServices(services)
	if err != nil {
		return fmt.Errorf("could not discover services on %s: %w", c.addr, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, svc := range svcs {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return fmt.Errorf("could not discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		for _, ch := range chars {
			c.chars[ch.UUID()] = ch
		}
	}
	return nil
}

func (c *conn) char(u bluetooth.UUID) (bluetooth.DeviceCharacteristic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.chars[u]
	if !ok {
		return ch, fmt.Errorf("%s on %s: %w", u.String(), c.addr, ErrNotFound)
	}
	return ch, nil
}

func (c *conn) Connected() bool {
	return c.up.Load()
}

func (c *conn) Subscribe(char bluetooth.UUID, fn func([]byte)) error {
	ch, err := c.char(char)
	if err != nil {
		return err
	}
	if err := ch.EnableNotifications(fn); err != nil {
		return fmt.Errorf("could not enable notifications on %s: %w", char.String(), err)
	}
	return nil
}

func (c *conn) Unsubscribe(char bluetooth.UUID) error {
	ch, err := c.char(char)
	if err != nil {
		return err
	}
	if err := ch.EnableNotifications(nil); err != nil {
		return fmt.Errorf("could not disable notifications on %s: %w", char.String(), err)
	}
	return nil
}

func (c *conn) Write(char bluetooth.UUID, data []byte) error {
	ch, err := c.char(char)
	if err != nil {
		return err
	}
	if _, err := ch.Write(data); err != nil {
		return fmt.Errorf("could not write %d bytes to %s: %w", len(data), char.String(), err)
	}
	return nil
}

func (c *conn) WriteWithoutResponse(char bluetooth.UUID, data []byte) error {
	ch, err := c.char(char)
	if err != nil {
		return err
	}
	if _, err := ch.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("could not write %d bytes to %s: %w", len(data), char.String(), err)
	}
	return nil
}

func (c *conn) Read(char bluetooth.UUID) ([]byte, error) {
	ch, err := c.char(char)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, attValueSize)
	n, err := ch.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", char.String(), err)
	}
	return buf[:n], nil
}

func (c *conn) Disconnect() error {
	c.radio.untrack(c.addr)
	c.up.Store(false)
	if err := c.dev.Disconnect(); err != nil {
		return fmt.Errorf("could not disconnect from %s: %w", c.addr, err)
	}
	return nil
}
