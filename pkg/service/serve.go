package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
)

// ErrNameTaken is returned by Serve when another process owns vss.ServiceName.
var ErrNameTaken = errors.New("bus name already taken")

// Conn is the part of *dbus.Conn needed to publish the service.
type Conn interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	ReleaseName(name string) (dbus.ReleaseNameReply, error)
}

// Serve exports v on conn, claims vss.ServiceName and blocks until ctx is
// done. The name is released and the objects unexported before returning.
func Serve(ctx context.Context, conn Conn, v *VehicleSignals) error {
	if err := conn.Export(v, vss.ObjectPath, vss.Interface); err != nil {
		return fmt.Errorf("failed to export %s: %w", vss.ObjectPath, err)
	}
	if err := conn.Export(introspect.NewIntrospectable(Node()), vss.ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		unexport(conn)
		return fmt.Errorf("failed to export introspection data: %w", err)
	}

	reply, err := conn.RequestName(vss.ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		unexport(conn)
		return fmt.Errorf("failed to request name %s: %w", vss.ServiceName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		unexport(conn)
		return fmt.Errorf("%w: %s", ErrNameTaken, vss.ServiceName)
	}
	v.log.Info("vehicle signal service listening", "name", vss.ServiceName, "path", string(vss.ObjectPath))

	<-ctx.Done()

	if _, err := conn.ReleaseName(vss.ServiceName); err != nil {
		v.log.Warn("failed to release bus name", "name", vss.ServiceName, "error", err)
	}
	unexport(conn)
	v.log.Info("vehicle signal service stopped")
	return nil
}

func unexport(conn Conn) {
	_ = conn.Export(nil, vss.ObjectPath, vss.Interface)
	_ = conn.Export(nil, vss.ObjectPath, "org.freedesktop.DBus.Introspectable")
}
