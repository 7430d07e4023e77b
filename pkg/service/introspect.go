package service

import (
	"github.com/godbus/dbus/v5/introspect"

	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
)

// InterfaceData describes vss.Interface for introspection.
var InterfaceData = introspect.Interface{
	Name: vss.Interface,
	Methods: []introspect.Method{
		{
			Name: vss.MethodEmitHardwareSignal,
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "in"},
				{Name: "value", Type: "d", Direction: "in"},
			},
		},
	},
	Signals: []introspect.Signal{
		{
			Name: vss.SignalEmitted,
			Args: []introspect.Arg{
				{Name: "name", Type: "s"},
				{Name: "value", Type: "d"},
			},
		},
	},
}

// Node returns the introspection node of the vehicle signals object.
func Node() *introspect.Node {
	return &introspect.Node{
		Name: string(vss.ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			InterfaceData,
		},
	}
}
