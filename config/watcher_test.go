package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestNewWatcher(t *testing.T) {
	t.Run("valid config path", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "vss.yaml")
		writeConfig(t, configPath, "app:\n  name: test\n")

		watcher, err := NewWatcher(configPath, nil, WithDebounce(100*time.Millisecond))
		if err != nil {
			t.Fatalf("NewWatcher failed: %v", err)
		}
		defer watcher.Stop()

		if watcher.ConfigPath() != configPath {
			t.Errorf("expected config path %s, got %s", configPath, watcher.ConfigPath())
		}
		if watcher.debounce != 100*time.Millisecond {
			t.Errorf("expected debounce 100ms, got %v", watcher.debounce)
		}
	})

	t.Run("empty config path", func(t *testing.T) {
		if _, err := NewWatcher("", nil); err == nil {
			t.Fatal("expected error for empty config path")
		}
	})
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vss.yaml")
	writeConfig(t, configPath, "log:\n  level: info\n")

	watcher, err := NewWatcher(configPath, NewLoader(),
		WithDebounce(50*time.Millisecond),
		WithWatcherLogger(logger.Nop()),
	)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	received := make(chan *Config, 4)
	watcher.OnChange(func(cfg *Config) { received <- cfg })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() { _ = watcher.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	writeConfig(t, configPath, "log:\n  level: debug\n")

	select {
	case cfg := <-received:
		if cfg.Log.Level != "debug" {
			t.Errorf("expected log level debug, got %s", cfg.Log.Level)
		}
	case <-ctx.Done():
		t.Fatal("callback not invoked after config change")
	}
}

func TestWatcher_InvalidReloadKeepsCallbacksQuiet(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vss.yaml")
	writeConfig(t, configPath, "log:\n  level: info\n")

	watcher, err := NewWatcher(configPath, NewLoader(),
		WithDebounce(20*time.Millisecond),
		WithWatcherLogger(logger.Nop()),
	)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	var mu sync.Mutex
	calls := 0
	watcher.OnChange(func(*Config) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go func() { _ = watcher.Watch(ctx) }()

	time.Sleep(100 * time.Millisecond)
	writeConfig(t, configPath, "log:\n  level: verbose\n")
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("expected no callback for invalid config, got %d", calls)
	}
}

func TestWatcher_StopsOnContextCancel(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vss.yaml")
	writeConfig(t, configPath, "app:\n  name: test\n")

	watcher, err := NewWatcher(configPath, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	watchErr := make(chan error, 1)
	go func() { watchErr <- watcher.Watch(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if !watcher.IsRunning() {
		t.Error("expected watcher to be running")
	}
	if err := watcher.Watch(ctx); err == nil {
		t.Error("expected error when starting a second watch")
	}
	cancel()

	select {
	case err := <-watchErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop on context cancel")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vss.yaml")
	writeConfig(t, configPath, "app:\n  name: test\n")

	watcher, err := NewWatcher(configPath, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := watcher.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestHotReloadable(t *testing.T) {
	cfg := DefaultConfig()
	base := ExtractHotReloadable(cfg)
	if base.LogLevel != "info" {
		t.Fatalf("expected info, got %s", base.LogLevel)
	}

	cfg.App.Debug = true
	debug := ExtractHotReloadable(cfg)
	if debug.LogLevel != "debug" {
		t.Errorf("debug flag should force debug level, got %s", debug.LogLevel)
	}
	if !base.Changed(debug) {
		t.Error("expected change to be detected")
	}
	if base.Changed(base) {
		t.Error("identical configs must not report a change")
	}
}
