package emitter

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

// Bus kinds accepted by NewDialer.
const (
	BusSystem  = "system"
	BusSession = "session"
	BusAddress = "address"
)

// Bus is the part of a D-Bus connection the emitter needs.
// *dbus.Conn satisfies it.
type Bus interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Close() error
}

// Dialer opens a private bus connection owned by a single emission.
type Dialer struct {
	name string
	dial func(ctx context.Context) (Bus, error)
}

// Dial opens a new connection.
func (d Dialer) Dial(ctx context.Context) (Bus, error) {
	if d.dial == nil {
		return nil, fmt.Errorf("no bus dialer configured")
	}
	return d.dial(ctx)
}

// String describes the bus being dialed, e.g. "system bus".
func (d Dialer) String() string {
	if d.name == "" {
		return "bus"
	}
	return d.name
}

// DialerFunc wraps an arbitrary connect function.
func DialerFunc(name string, fn func(ctx context.Context) (Bus, error)) Dialer {
	return Dialer{name: name, dial: fn}
}

// SystemBus dials a private connection to the system message bus.
func SystemBus() Dialer {
	return DialerFunc("system bus", func(ctx context.Context) (Bus, error) {
		conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// SessionBus dials a private connection to the session message bus.
func SessionBus() Dialer {
	return DialerFunc("session bus", func(ctx context.Context) (Bus, error) {
		conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// AtAddress dials a bus at an explicit D-Bus address such as
// "unix:path=/run/dbus/system_bus_socket".
func AtAddress(address string) Dialer {
	return DialerFunc("bus at "+address, func(ctx context.Context) (Bus, error) {
		conn, err := dbus.Connect(address, dbus.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}

// NewDialer picks a dialer by bus kind.
func NewDialer(kind, address string) (Dialer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", BusSystem:
		return SystemBus(), nil
	case BusSession:
		return SessionBus(), nil
	case BusAddress:
		if strings.TrimSpace(address) == "" {
			return Dialer{}, fmt.Errorf("bus address is required for bus type %q", BusAddress)
		}
		return AtAddress(address), nil
	default:
		return Dialer{}, fmt.Errorf("unsupported bus type: %s", kind)
	}
}
