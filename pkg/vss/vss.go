// Package vss holds the D-Bus address of the vehicle signal service and the
// reading type that flows between hardware emitters and the service.
package vss

import (
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
)

// Addressing of the vehicle signal service on the bus.
const (
	// ServiceName is the well-known bus name owned by the service.
	ServiceName = "com.vss_lib.VehicleSignals"

	// ObjectPath is the path of the exported vehicle signals object.
	ObjectPath dbus.ObjectPath = "/com/vss_lib/VehicleSignals"

	// Interface is the D-Bus interface implemented at ObjectPath.
	Interface = "com.vss_lib.VehicleSignals"

	// MethodEmitHardwareSignal is the member name of the hardware signal method.
	MethodEmitHardwareSignal = "EmitHardwareSignal"

	// SignalEmitted is the member name of the broadcast sent for every accepted reading.
	SignalEmitted = "SignalEmitted"
)

// CallTimeout bounds a single EmitHardwareSignal round trip, connection included.
const CallTimeout = 5000 * time.Millisecond

// EmitHardwareSignalMethod returns the fully qualified method name.
func EmitHardwareSignalMethod() string {
	return Interface + "." + MethodEmitHardwareSignal
}

// SignalEmittedMember returns the fully qualified broadcast signal name.
func SignalEmittedMember() string {
	return Interface + "." + SignalEmitted
}

// Reading is one named sensor measurement.
type Reading struct {
	// Name identifies the physical quantity, e.g. "Speed".
	Name string `json:"name"`

	// Value is the measurement. No unit or range is attached.
	Value float64 `json:"value"`
}

// String renders the reading as name=value.
func (r Reading) String() string {
	return fmt.Sprintf("%s=%f", r.Name, r.Value)
}
