package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autosd-vss-mw/vss-lib/pkg/emitter"
)

type fakeObject struct {
	dbus.BusObject
	method string
	args   []interface{}
	err    error
}

func (o *fakeObject) CallWithContext(_ context.Context, method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	o.method = method
	o.args = args
	return &dbus.Call{Err: o.err}
}

type fakeBus struct {
	obj *fakeObject
}

func (b *fakeBus) Object(string, dbus.ObjectPath) dbus.BusObject { return b.obj }
func (b *fakeBus) Close() error                                   { return nil }

func stubDialer(t *testing.T, obj *fakeObject) *[]string {
	t.Helper()
	orig := newDialer
	t.Cleanup(func() { newDialer = orig })

	var kinds []string
	newDialer = func(kind, address string) (emitter.Dialer, error) {
		kinds = append(kinds, kind+"|"+address)
		return emitter.DialerFunc("system bus", func(context.Context) (emitter.Bus, error) {
			return &fakeBus{obj: obj}, nil
		}), nil
	}
	return &kinds
}

func runEmitter(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_DefaultsSendSpeed(t *testing.T) {
	obj := &fakeObject{}
	kinds := stubDialer(t, obj)

	code, stdout, stderr := runEmitter(t, "-config", writeConfig(t, ""))

	assert.Equal(t, 0, code)
	assert.Equal(t, "Hardware signal 'Speed' with value 80.000000 sent to D-Bus.\n", stdout)
	assert.Empty(t, stderr)
	assert.Equal(t, "com.vss_lib.VehicleSignals.EmitHardwareSignal", obj.method)
	assert.Equal(t, []interface{}{"Speed", 80.0}, obj.args)
	assert.Equal(t, []string{"system|"}, *kinds)
}

func TestRun_FlagsOverrideReading(t *testing.T) {
	obj := &fakeObject{}
	stubDialer(t, obj)

	code, stdout, _ := runEmitter(t, "-config", writeConfig(t, ""), "-name", "EngineRPM", "-value", "3000.5")

	assert.Equal(t, 0, code)
	assert.Equal(t, "Hardware signal 'EngineRPM' with value 3000.500000 sent to D-Bus.\n", stdout)
	assert.Equal(t, []interface{}{"EngineRPM", 3000.5}, obj.args)
}

func TestRun_ConfigFileSelectsReading(t *testing.T) {
	obj := &fakeObject{}
	stubDialer(t, obj)

	path := writeConfig(t, "emitter:\n  signal_name: AmbientTemperature\n  value: -12.5\n")
	code, stdout, _ := runEmitter(t, "-config", path)

	assert.Equal(t, 0, code)
	assert.Equal(t, "Hardware signal 'AmbientTemperature' with value -12.500000 sent to D-Bus.\n", stdout)
}

func TestRun_RemoteErrorReportedExitZero(t *testing.T) {
	obj := &fakeObject{err: dbus.NewError("org.freedesktop.DBus.Error.ServiceUnknown",
		[]interface{}{"The name com.vss_lib.VehicleSignals was not provided by any .service files"})}
	stubDialer(t, obj)

	code, stdout, stderr := runEmitter(t, "-config", writeConfig(t, ""))

	assert.Equal(t, 0, code)
	assert.Empty(t, stdout)
	assert.True(t, strings.HasPrefix(stderr, "Error: Could not send the signal. Details: "), stderr)
	assert.Contains(t, stderr, "was not provided by any .service files")
	assert.Equal(t, 1, strings.Count(stderr, "\n"))
}

func TestRun_UnreachableBusAddress(t *testing.T) {
	code, stdout, stderr := runEmitter(t,
		"-config", writeConfig(t, ""),
		"-address", "unix:path=/nonexistent/vss-lib-test.sock")

	assert.Equal(t, 0, code)
	assert.Empty(t, stdout)
	assert.True(t, strings.HasPrefix(stderr,
		"Error: Could not send the signal. Details: failed to connect to the bus at unix:path=/nonexistent/vss-lib-test.sock: "), stderr)
}

func TestRun_InvalidConfigurationExitsOne(t *testing.T) {
	stubDialer(t, &fakeObject{})

	tests := []struct {
		name string
		args []string
	}{
		{"unknown bus", []string{"-bus", "carrier-pigeon"}},
		{"address bus without address", []string{"-bus", "address"}},
		{"malformed address", []string{"-address", "not-a-bus-address"}},
		{"missing config file", []string{"-config", "/nonexistent/vss.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.args
			if tt.name != "missing config file" {
				args = append([]string{"-config", writeConfig(t, "")}, args...)
			}
			code, stdout, stderr := runEmitter(t, args...)
			assert.Equal(t, 1, code)
			assert.Empty(t, stdout)
			assert.Contains(t, stderr, "Failed to load configuration")
		})
	}
}

func TestRun_BadFlagExitsTwo(t *testing.T) {
	code, _, stderr := runEmitter(t, "-value", "fast")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "invalid value")
}

func TestRun_VersionAndHelp(t *testing.T) {
	code, stdout, _ := runEmitter(t, "-version")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Version:")

	code, stdout, _ = runEmitter(t, "-help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Usage: vss-signal-emitter [options]")
	assert.Contains(t, stdout, "-name")
}

func TestBuildOverrides(t *testing.T) {
	opts, fs, err := parseFlags([]string{"-address", "unix:path=/tmp/bus", "-log-level", "debug"}, io.Discard)
	require.NoError(t, err)

	overrides := buildOverrides(opts, fs)
	assert.Equal(t, map[string]interface{}{
		"bus.address": "unix:path=/tmp/bus",
		"bus.type":    "address",
		"log.level":   "debug",
	}, overrides)

	opts, fs, err = parseFlags(nil, io.Discard)
	require.NoError(t, err)
	assert.Empty(t, buildOverrides(opts, fs), "unset flags must not override the config file")
}

func TestParseFlags_Error(t *testing.T) {
	_, _, err := parseFlags([]string{"-nope"}, io.Discard)
	require.Error(t, err)
	assert.False(t, errors.Is(err, flag.ErrHelp))
}
