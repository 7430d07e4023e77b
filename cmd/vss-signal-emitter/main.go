// Command vss-signal-emitter sends one hardware reading to the vehicle
// signal service over D-Bus and reports the outcome.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autosd-vss-mw/vss-lib/config"
	"github.com/autosd-vss-mw/vss-lib/pkg/emitter"
	"github.com/autosd-vss-mw/vss-lib/pkg/logger"
	"github.com/autosd-vss-mw/vss-lib/pkg/metrics"
	"github.com/autosd-vss-mw/vss-lib/pkg/telemetry/tracing"
	"github.com/autosd-vss-mw/vss-lib/pkg/version"
)

const programName = "vss-signal-emitter"

// newDialer is replaced in tests.
var newDialer = emitter.NewDialer

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	configPath string
	name       string
	value      float64
	bus        string
	address    string
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
	fs.StringVar(&opts.name, "name", "Speed", "Signal name to send")
	fs.Float64Var(&opts.value, "value", 80.0, "Signal value to send")
	fs.StringVar(&opts.bus, "bus", "", "Bus to use: system, session or address")
	fs.StringVar(&opts.address, "address", "", "D-Bus address, implies -bus address")
	fs.StringVar(&opts.logLevel, "log-level", "", "Override log level")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&opts.version, "version", false, "Print version information")
	fs.BoolVar(&opts.help, "help", false, "Print help information")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	return opts, fs, nil
}

// buildOverrides turns explicitly set flags into config keys so that
// unset flags do not shadow the config file.
func buildOverrides(opts *options, fs *flag.FlagSet) map[string]interface{} {
	overrides := make(map[string]interface{})
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			overrides["emitter.signal_name"] = opts.name
		case "value":
			overrides["emitter.value"] = opts.value
		case "bus":
			overrides["bus.type"] = opts.bus
		case "address":
			overrides["bus.address"] = opts.address
			if opts.bus == "" {
				overrides["bus.type"] = emitter.BusAddress
			}
		case "log-level":
			overrides["log.level"] = opts.logLevel
		case "debug":
			overrides["app.debug"] = opts.debug
		}
	})
	return overrides
}

// run returns the process exit code. A failed emission is reported on
// stderr and still exits 0; only invalid invocations and configuration
// errors exit non-zero.
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

	cfg, err := config.Load(opts.configPath, buildOverrides(opts, fs))
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
	log.Debug("configuration loaded", "config", cfg.String())

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, tracing.Service{
		Name:        programName,
		Version:     version.Version,
		Environment: cfg.App.Environment,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Failed to initialize tracing: %v\n", err)
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
	metricsCfg.Enabled = cfg.Metrics.Enabled && cfg.Metrics.Pushgateway != ""
	metricsCfg.RuntimeCollectors = false
	metricsManager := metrics.NewManager(metricsCfg)

	dialer, err := newDialer(cfg.Bus.Type, cfg.Bus.Address)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid bus configuration: %v\n", err)
		return 1
	}

	em := emitter.New(dialer,
		emitter.WithOutput(stdout, stderr),
		emitter.WithLogger(log),
		emitter.WithMetrics(metricsManager),
	)
	if err := em.Emit(ctx, cfg.Emitter.SignalName, cfg.Emitter.Value); err != nil {
		log.Debug("emission failed", "stage", emitter.StageOf(err), "error", err)
	}

	if metricsManager.Enabled() {
		pushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsManager.Push(pushCtx, cfg.Metrics.Pushgateway, cfg.Metrics.Job); err != nil {
			log.Warn("metrics push failed", "error", err)
		}
	}

	return 0
}

func printHelp(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "%s - send one hardware reading to the vehicle signal service\n\n", programName)
	fmt.Fprintf(w, "Usage: %s [options]\n\n", programName)
	fmt.Fprintf(w, "Options:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nExamples:\n")
	fmt.Fprintf(w, "  %s                                      # Speed=80 on the system bus\n", programName)
	fmt.Fprintf(w, "  %s -name EngineRPM -value 3000          # Send another reading\n", programName)
	fmt.Fprintf(w, "  %s -bus session                         # Use the session bus\n", programName)
	fmt.Fprintf(w, "  %s -address unix:path=/tmp/vss.sock     # Use an explicit bus address\n", programName)
}
