package relay

import (
	"context"
	"sync"

	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
	"github.com/godbus/dbus/v5"
)

// SignalEmitter is the part of *dbus.Conn used to broadcast signals.
type SignalEmitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// DBus broadcasts SignalEmitted(name, value) from the vehicle signals object.
type DBus struct {
	conn SignalEmitter

	mu     sync.RWMutex
	closed bool
}

// NewDBus creates a relay that emits on conn. The connection is owned by the
// caller and is not closed by Close.
func NewDBus(conn SignalEmitter) *DBus {
	return &DBus{conn: conn}
}

// Name returns "dbus".
func (d *DBus) Name() string {
	return "dbus"
}

// Publish emits the SignalEmitted broadcast.
func (d *DBus) Publish(ctx context.Context, r vss.Reading) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.conn.Emit(vss.ObjectPath, vss.SignalEmittedMember(), r.Name, r.Value)
}

// Close stops further broadcasts.
func (d *DBus) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Healthy reports whether the relay is open. Connection health is tracked by
// the service owning the connection.
func (d *DBus) Healthy() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed
}
