// Package ble wraps the bluetooth adapter behind small interfaces so the
// device sessions can be exercised without radio hardware.
package ble

import (
	"errors"
	"time"

	"tinygo.org/x/bluetooth"
)

// ErrNotFound reports a characteristic missing from the resolved services.
var ErrNotFound = errors.New("characteristic not found")

// DialConfig carries the per-connection options a session cares about.
type DialConfig struct {
	// ConnectTimeout bounds the dial. Zero means the adapter default.
	ConnectTimeout time.Duration
	// Services to resolve after connecting. Characteristics of every listed
	// service become addressable through the Conn.
	Services []bluetooth.UUID
	// OnDisconnect fires when the adapter reports the link down. It runs on
	// the adapter's event goroutine, so it must not block.
	OnDisconnect func()
}

// Conn is one established peripheral link with its GATT table resolved.
type Conn interface {
	// Connected reports the adapter's live view of the link.
	Connected() bool
	// Subscribe starts notifications on char, delivering each value to fn.
	Subscribe(char bluetooth.UUID, fn func([]byte)) error
	// Unsubscribe stops notifications on char.
	Unsubscribe(char bluetooth.UUID) error
	// Write sends data to char with acknowledgement.
	Write(char bluetooth.UUID, data []byte) error
	// WriteWithoutResponse sends data to char without acknowledgement.
	WriteWithoutResponse(char bluetooth.UUID, data []byte) error
	// Read fetches the current value of char.
	Read(char bluetooth.UUID) ([]byte, error)
	// Disconnect tears the link down.
	Disconnect() error
}

// Dialer opens peripheral links. *Radio is the hardware implementation;
// tests substitute their own.
type Dialer interface {
	Dial(addr bluetooth.Address, cfg DialConfig) (Conn, error)
}
