package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autosd-vss-mw/vss-lib/config"
	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
	"github.com/autosd-vss-mw/vss-lib/pkg/service"
	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
)

const testSender dbus.Sender = ":1.42"

type emitted struct {
	path   dbus.ObjectPath
	name   string
	values []interface{}
}

type fakeConn struct {
	mu        sync.Mutex
	reply     dbus.RequestNameReply
	exports   map[string]interface{}
	emitted   []emitted
	released  bool
	closed    bool
	requested chan struct{}
}

func newFakeConn(reply dbus.RequestNameReply) *fakeConn {
	return &fakeConn{
		reply:     reply,
		exports:   make(map[string]interface{}),
		requested: make(chan struct{}),
	}
}

func (c *fakeConn) Export(v interface{}, _ dbus.ObjectPath, iface string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v == nil {
		delete(c.exports, iface)
		return nil
	}
	c.exports[iface] = v
	return nil
}

func (c *fakeConn) RequestName(string, dbus.RequestNameFlags) (dbus.RequestNameReply, error) {
	close(c.requested)
	return c.reply, nil
}

func (c *fakeConn) ReleaseName(string) (dbus.ReleaseNameReply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.released = true
	return dbus.ReleaseNameReplyReleased, nil
}

func (c *fakeConn) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = append(c.emitted, emitted{path: path, name: name, values: values})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) object() *service.VehicleSignals {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, _ := c.exports[vss.Interface].(*service.VehicleSignals)
	return v
}

func stubBus(t *testing.T, conn *fakeConn, dialErr error) {
	t.Helper()
	orig := dialBus
	t.Cleanup(func() { dialBus = orig })
	dialBus = func(context.Context, string, string) (busConn, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return conn, nil
	}
}

func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vss.yaml")
	content := "log:\n  level: error\n  output: discard\nservice:\n  http:\n    enabled: false\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	conn := newFakeConn(dbus.RequestNameReplyPrimaryOwner)
	stubBus(t, conn, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"-config", writeConfig(t, "")}, io.Discard, io.Discard)
	}()

	select {
	case <-conn.requested:
	case <-time.After(5 * time.Second):
		t.Fatal("service never requested its bus name")
	}

	obj := conn.object()
	require.NotNil(t, obj, "vehicle signals object not exported")
	assert.Nil(t, obj.EmitHardwareSignal(testSender, "Speed", 80.0))
	assert.NotNil(t, obj.EmitHardwareSignal(testSender, "", 1))

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop after cancellation")
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	assert.True(t, conn.released)
	assert.True(t, conn.closed)
	assert.Empty(t, conn.exports)
	require.Len(t, conn.emitted, 1)
	assert.Equal(t, vss.ObjectPath, conn.emitted[0].path)
	assert.Equal(t, vss.SignalEmittedMember(), conn.emitted[0].name)
	assert.Equal(t, []interface{}{"Speed", 80.0}, conn.emitted[0].values)
}

func TestRun_NameTakenExitsOne(t *testing.T) {
	conn := newFakeConn(dbus.RequestNameReplyExists)
	stubBus(t, conn, nil)

	code := run(context.Background(), []string{"-config", writeConfig(t, "")}, io.Discard, io.Discard)
	assert.Equal(t, 1, code)
}

func TestRun_BusUnavailableExitsOne(t *testing.T) {
	stubBus(t, nil, errors.New("no such file or directory"))

	code := run(context.Background(), []string{"-config", writeConfig(t, "")}, io.Discard, io.Discard)
	assert.Equal(t, 1, code)
}

func TestRun_InvocationErrors(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 2, run(context.Background(), []string{"-port", "http"}, io.Discard, &stderr))

	stderr.Reset()
	code := run(context.Background(), []string{"-config", writeConfig(t, ""), "-storage", "floppy"}, io.Discard, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Failed to load configuration")

	var stdout bytes.Buffer
	assert.Equal(t, 0, run(context.Background(), []string{"-version"}, &stdout, io.Discard))
	assert.Contains(t, stdout.String(), "Version:")

	stdout.Reset()
	assert.Equal(t, 0, run(context.Background(), []string{"-help"}, &stdout, io.Discard))
	assert.Contains(t, stdout.String(), "Usage: vss-dbus-service [options]")
}

func TestBuildOverrides(t *testing.T) {
	opts, fs, err := parseFlags([]string{"-storage", "badger", "-port", "9090", "-bus", "session"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"service.storage.type": "badger",
		"service.http.port":    9090,
		"bus.type":             "session",
	}, buildOverrides(opts, fs))
}

func TestOpenStore(t *testing.T) {
	log := logger.Nop()

	cfg := config.DefaultConfig()
	store, err := openStore(cfg, log)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cfg.Service.Storage.Type = "badger"
	cfg.Service.Storage.Badger.Path = t.TempDir()
	store, err = openStore(cfg, log)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	cfg.Service.Storage.Type = "floppy"
	_, err = openStore(cfg, log)
	assert.Error(t, err)
}

func TestBuildRelays(t *testing.T) {
	log := logger.Nop()
	conn := newFakeConn(dbus.RequestNameReplyPrimaryOwner)

	cfg := config.DefaultConfig()
	relays, err := buildRelays(context.Background(), cfg, conn, log)
	require.NoError(t, err)
	assert.Equal(t, 1, relays.Len())
	assert.Equal(t, map[string]bool{"dbus": true}, relays.Health())

	mr := miniredis.RunT(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Address = mr.Addr()
	relays, err = buildRelays(context.Background(), cfg, conn, log)
	require.NoError(t, err)
	defer relays.Close()
	assert.Equal(t, map[string]bool{"dbus": true, "redis": true}, relays.Health())

	mr.Close()
	_, err = buildRelays(context.Background(), cfg, conn, log)
	assert.Error(t, err)
}

func TestNewStream(t *testing.T) {
	tests := []struct {
		name        string
		httpEnabled bool
		enabled     bool
		want        bool
	}{
		{"enabled", true, true, true},
		{"stream disabled", true, false, false},
		{"http disabled", false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Service.HTTP.Enabled = tt.httpEnabled
			cfg.Service.HTTP.Stream.Enabled = tt.enabled

			stream := newStream(cfg, logger.Nop())
			if !tt.want {
				assert.Nil(t, stream)
				return
			}
			require.NotNil(t, stream)
			defer stream.Close()
			assert.Equal(t, "websocket", stream.Name())
			assert.True(t, stream.Healthy())
		})
	}
}
