// Command vss-dbus-service owns com.vss_lib.VehicleSignals on the bus,
// records every hardware reading it receives and exposes them over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/redis/go-redis/v9"

	"github.com/autosd-vss-mw/vss-lib/config"
	"github.com/autosd-vss-mw/vss-lib/pkg/api"
	"github.com/autosd-vss-mw/vss-lib/pkg/api/handlers"
	"github.com/autosd-vss-mw/vss-lib/pkg/emitter"
	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
	"github.com/autosd-vss-mw/vss-lib/pkg/metrics"
	"github.com/autosd-vss-mw/vss-lib/pkg/relay"
	"github.com/autosd-vss-mw/vss-lib/pkg/service"
	"github.com/autosd-vss-mw/vss-lib/pkg/storage"
	"github.com/autosd-vss-mw/vss-lib/pkg/storage/badger"
	"github.com/autosd-vss-mw/vss-lib/pkg/storage/memory"
	"github.com/autosd-vss-mw/vss-lib/pkg/telemetry/tracing"
	"github.com/autosd-vss-mw/vss-lib/pkg/version"
)

const programName = "vss-dbus-service"

// busConn is the part of *dbus.Conn the service needs.
type busConn interface {
	service.Conn
	relay.SignalEmitter
	Close() error
}

// dialBus is replaced in tests.
var dialBus = func(ctx context.Context, kind, address string) (busConn, error) {
	dialer, err := emitter.NewDialer(kind, address)
	if err != nil {
		return nil, err
	}
	bus, err := dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the %s: %w", dialer, err)
	}
	conn, ok := bus.(*dbus.Conn)
	if !ok {
		_ = bus.Close()
		return nil, fmt.Errorf("unexpected connection type %T", bus)
	}
	return conn, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath string
	bus        string
	address    string
	storage    string
	httpPort   int
	logLevel   string
	debug      bool
	version    bool
	help       bool
}

func parseFlags(args []string, stderr io.Writer) (*options, *flag.FlagSet, error) {
	opts := &options{}
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.bus, "bus", "", "Bus to use: system, session or address")
	fs.StringVar(&opts.address, "address", "", "D-Bus address, implies -bus address")
	fs.StringVar(&opts.storage, "storage", "", "Override storage backend (memory, badger)")
	fs.IntVar(&opts.httpPort, "port", 0, "Override HTTP API port")
	fs.StringVar(&opts.logLevel, "log-level", "", "Override log level")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&opts.version, "version", false, "Print version information")
	fs.BoolVar(&opts.help, "help", false, "Print help information")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return opts, fs, nil
}

func buildOverrides(opts *options, fs *flag.FlagSet) map[string]interface{} {
	overrides := make(map[string]interface{})
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "bus":
			overrides["bus.type"] = opts.bus
		case "address":
			overrides["bus.address"] = opts.address
			if opts.bus == "" {
				overrides["bus.type"] = emitter.BusAddress
			}
		case "storage":
			overrides["service.storage.type"] = opts.storage
		case "port":
			overrides["service.http.port"] = opts.httpPort
		case "log-level":
			overrides["log.level"] = opts.logLevel
		case "debug":
			overrides["app.debug"] = opts.debug
		}
	})
	return overrides
}

func openStore(cfg *config.Config, log logger.Logger) (storage.Store, error) {
	switch cfg.Service.Storage.Type {
	case "badger":
		b := cfg.Service.Storage.Badger
		store, err := badger.NewStore(&badger.Config{
			Path:              b.Path,
			SyncWrites:        b.SyncWrites,
			ValueLogFileSize:  b.ValueLogFileSize,
			NumVersionsToKeep: b.NumVersionsToKeep,
		})
		if err != nil {
			return nil, err
		}
		log.Info("initialized badger storage", "path", b.Path)
		return store, nil
	case "memory", "":
		log.Info("initialized memory storage")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Service.Storage.Type)
	}
}

// buildRelays returns the relays accepted readings are forwarded to. The
// D-Bus broadcast is always on; Redis is added when enabled.
func buildRelays(ctx context.Context, cfg *config.Config, conn relay.SignalEmitter, log logger.Logger) (*relay.Multi, error) {
	relays := relay.NewMulti(relay.NewDBus(conn))
	if !cfg.Redis.Enabled {
		return relays, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Address, err)
	}
	r := relay.NewRedis(client, cfg.Redis.ChannelPrefix)
	relays.Add(r)
	log.Info("redis relay enabled", "address", cfg.Redis.Address, "channel_prefix", r.Channel(""))
	return relays, nil
}

// newStream returns the WebSocket relay behind /api/v1/signals/stream, or
// nil when the HTTP API or the stream is disabled.
func newStream(cfg *config.Config, log logger.Logger) *relay.WebSocket {
	sc := cfg.Service.HTTP.Stream
	if !cfg.Service.HTTP.Enabled || !sc.Enabled {
		return nil
	}
	log.Info("websocket stream enabled", "max_connections", sc.MaxConnections)
	return relay.NewWebSocket(log, relay.WebSocketConfig{
		AllowedOrigins: sc.AllowedOrigins,
		MaxConnections: sc.MaxConnections,
		PingInterval:   sc.PingInterval,
	})
}

// watchConfig applies log level changes from the config file until ctx is done.
func watchConfig(ctx context.Context, path string, overrides map[string]interface{}, cfg *config.Config, log logger.Logger) {
	watcher, err := config.NewWatcher(path, config.NewLoader(),
		config.WithOverrides(overrides),
		config.WithWatcherLogger(log),
	)
	if err != nil {
		log.Warn("config hot reload disabled", "error", err)
		return
	}

	current := config.ExtractHotReloadable(cfg)
	watcher.OnChange(func(next *config.Config) {
		hot := config.ExtractHotReloadable(next)
		if !hot.Changed(current) {
			return
		}
		log.Info("log level changed", "from", current.LogLevel, "to", hot.LogLevel)
		log.SetLevel(logger.ParseLevel(hot.LogLevel))
		current = hot
	})

	go func() {
		if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("config watcher stopped", "error", err)
		}
		_ = watcher.Stop()
	}()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, fs, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if opts.help {
		printHelp(stdout, fs)
		return 0
	}
	if opts.version {
		fmt.Fprint(stdout, version.Banner(programName))
		return 0
	}

	overrides := buildOverrides(opts, fs)
	cfg, err := config.Load(opts.configPath, overrides)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration:\n%s\n", err)
		return 1
	}

	logCfg := &logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	defer log.Close()
	logger.SetGlobal(log)

	log.Info("starting vehicle signal service",
		"version", version.Version,
		"gitCommit", version.GitCommit,
		"environment", cfg.App.Environment,
		"bus", cfg.Bus.Type,
	)
	log.Debug("configuration loaded", "config", cfg.String())

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, tracing.Service{
		Name:        programName,
		Version:     version.Version,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		log.Error("failed to initialize tracing", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics.Enabled
	metricsCfg.Path = cfg.Metrics.Path
	metricsManager := metrics.NewManager(metricsCfg)
	relay.SetMetricsRecorder(metricsManager)

	store, err := openStore(cfg, log)
	if err != nil {
		log.Error("failed to open storage", "error", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("error closing storage", "error", err)
		}
	}()

	// The connection outlives ctx so the bus name can be released on shutdown.
	busCtx, closeBus := context.WithCancel(context.Background())
	defer closeBus()
	conn, err := dialBus(busCtx, cfg.Bus.Type, cfg.Bus.Address)
	if err != nil {
		log.Error("failed to connect to bus", "error", err)
		return 1
	}
	defer conn.Close()

	relays, err := buildRelays(ctx, cfg, conn, log)
	if err != nil {
		log.Error("failed to set up relays", "error", err)
		return 1
	}
	defer func() {
		if err := relays.Close(); err != nil {
			log.Warn("error closing relays", "error", err)
		}
	}()
	stream := newStream(cfg, log)
	if stream != nil {
		relays.Add(stream)
	}

	serviceOpts := []service.Option{
		service.WithRelay(relays),
		service.WithLogger(log),
		service.WithMetrics(metricsManager),
	}
	if rl := cfg.Service.RateLimit; rl.Enabled {
		serviceOpts = append(serviceOpts, service.WithRateLimiter(service.NewRateLimiter(rl.PerSecond, rl.Burst)))
		log.Info("per-sender rate limit enabled", "per_second", rl.PerSecond, "burst", rl.Burst)
	}
	signals := service.New(store, serviceOpts...)

	if opts.configPath != "" {
		watchConfig(ctx, opts.configPath, overrides, cfg, log)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)

	var httpServer *api.HTTPServer
	if cfg.Service.HTTP.Enabled {
		h := &api.Handlers{
			Health:  handlers.NewHealthHandler(store, relays, version.Version),
			Signals: handlers.NewSignalHandler(store, log),
		}
		if stream != nil {
			h.Stream = stream
		}
		if metricsManager.Enabled() {
			h.Metrics = metricsManager
			h.MetricsHandler = metricsManager.Handler()
		}
		httpServer = api.NewHTTPServer(cfg, log, h)
		go func() {
			if err := httpServer.Start(); err != nil {
				errCh <- err
			}
		}()
	}

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		if err := service.Serve(runCtx, conn, signals); err != nil {
			errCh <- err
		}
	}()

	code := 0
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case err := <-errCh:
		log.Error("vehicle signal service failed", "error", err)
		code = 1
	}
	cancel()
	<-serveDone

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Service.HTTP.ShutdownTimeout)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			code = 1
		}
	}

	log.Info("vehicle signal service stopped gracefully")
	return code
}

func printHelp(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "%s - receive hardware readings on D-Bus and serve them over HTTP\n\n", programName)
	fmt.Fprintf(w, "Usage: %s [options]\n\n", programName)
	fmt.Fprintf(w, "Options:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  %s                                 # Own the name on the system bus\n", programName)
	fmt.Fprintf(w, "  %s -bus session -port 9090         # Session bus, HTTP API on 9090\n", programName)
	fmt.Fprintf(w, "  %s -config /etc/vss-lib/vss.yaml   # Use specific config file\n", programName)
}
