package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/scenariosim/scenariosim/internal/config"
	"github.com/scenariosim/scenariosim/internal/logging"
	intOtel "github.com/scenariosim/scenariosim/internal/otel"
	"github.com/scenariosim/scenariosim/internal/simulation"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "scenariosim"
)

const usage = `usage: scenariosim [flags] [command]

commands:
  serve                       run the HTTP API (default)
  export <scenario>...        write <scenario>.json.gz with the scenario and its vehicles
  simulate <scenario> <ticks> step a scenario headlessly and print final positions
  version                     print version

flags:
`

// app holds the process-wide services shared by every command.
type app struct {
	slog    *logging.SlogManager
	logger  *slog.Logger
	infra   zerolog.Logger
	otel    *intOtel.Provider
	logFile *os.File
	started time.Time

	// set once the session manager exists, read by the log context
	sims atomic.Pointer[simulation.Manager]
}

func main() {
	flags := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	configDir := flags.String("config", ".", "directory containing "+config.FileName)
	logLevel := flags.String("log-level", "", "override logLevel from config")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if err := run(flags.Args(), *configDir, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, configDir, logLevel string) error {
	command := "serve"
	if len(args) > 0 {
		command = strings.ToLower(args[0])
		args = args[1:]
	}
	if command == "version" {
		fmt.Printf("%s %s (built %s)\n", AppName, Version, BuildDate)
		return nil
	}

	if err := config.Load(configDir); err != nil {
		// defaults and SCENARIOSIM_* still apply without a file
		fmt.Fprintln(os.Stderr, "config:", err, "- using defaults")
	}
	if logLevel != "" {
		viper.Set("logLevel", logLevel)
	}

	a, err := newApp(command == "serve")
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "serve":
		return a.serve(ctx)
	case "export":
		if len(args) == 0 {
			return fmt.Errorf("export: no scenario names provided")
		}
		return a.export(ctx, args, ".")
	case "simulate":
		if len(args) != 2 {
			return fmt.Errorf("simulate: want <scenario> <ticks>")
		}
		return a.simulate(ctx, args[0], args[1], os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// newApp sets up logging and OTel. Only the server writes a log file; the
// one-shot commands log to stdout.
func newApp(withLogFile bool) (*app, error) {
	a := &app{
		slog:    logging.NewSlogManager(),
		started: time.Now(),
	}
	level := config.GetString("logLevel")

	var logOut io.Writer
	if withLogFile {
		f, err := logging.OpenLogFile(config.GetString("logsDir"), AppName, a.started)
		if err != nil {
			return nil, err
		}
		a.logFile = f
		logOut = f
	}

	otelCfg := config.GetOTelConfig()
	otelLogWriter := logOut
	if otelLogWriter == nil {
		otelLogWriter = io.Discard
	}
	provider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    otelLogWriter,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OTel: %w", err)
	}
	a.otel = provider

	a.slog.SetContextProvider(func() []slog.Attr {
		if m := a.sims.Load(); m != nil {
			return []slog.Attr{slog.Int("sessions", m.Active())}
		}
		return nil
	})
	a.slog.Setup(logOut, level, provider.LoggerProvider())
	a.logger = a.slog.Logger()
	slog.SetDefault(a.logger)

	infraOut := io.Writer(os.Stderr)
	if logOut != nil {
		infraOut = logOut
	}
	a.infra = logging.NewZerolog(infraOut, level)

	a.logger.Info("Starting", "app", AppName, "version", Version, "build", BuildDate)
	return a, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.slog.Flush(ctx); err != nil {
		a.logger.Warn("Failed to flush logs", "error", err)
	}
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.Warn("Failed to shut down OTel", "error", err)
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}
