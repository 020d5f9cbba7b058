// Package app holds the process state shared by the command line
// subcommands: loaded settings, the configured logger, metrics and the
// audio backend.
package app

import (
	"context"
	"time"

	"github.com/spf13/pflag"

	"github.com/tphakala/shmaudio/internal/audiocore"
	"github.com/tphakala/shmaudio/internal/audiocore/backend"
	"github.com/tphakala/shmaudio/internal/buildinfo"
	"github.com/tphakala/shmaudio/internal/conf"
	"github.com/tphakala/shmaudio/internal/errors"
	"github.com/tphakala/shmaudio/internal/logger"
	"github.com/tphakala/shmaudio/internal/monitor"
	"github.com/tphakala/shmaudio/internal/observability"
	"github.com/tphakala/shmaudio/internal/observability/metrics"
)

const sentryFlushTimeout = 2 * time.Second

// Context is created once per process and initialized before a subcommand
// runs.
type Context struct {
	Build      *buildinfo.Context
	ConfigFile string
	Settings   *conf.Settings
	Metrics    *observability.Metrics

	bindings map[string]string // config key to flag name
	central  *logger.CentralLogger
	log      logger.Logger
	sentry   bool
}

// NewContext returns an uninitialized context.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{
		Build:    build,
		bindings: make(map[string]string),
		log:      logger.Global().Module("app"),
	}
}

// Bind makes the flag called name override the config key when it is set on
// the command line. Commands sharing a key use the same flag name.
func (c *Context) Bind(key, name string) {
	c.bindings[key] = name
}

// Init loads settings, binding the flags of the executing command, and sets
// up logging, error reporting and metrics.
func (c *Context) Init(flags *pflag.FlagSet) error {
	bindings := make(map[string]*pflag.Flag, len(c.bindings))
	for key, name := range c.bindings {
		if f := flags.Lookup(name); f != nil {
			bindings[key] = f
		}
	}
	settings, err := conf.Load(conf.LoadOptions{
		ConfigFile: c.ConfigFile,
		Bindings:   bindings,
	})
	if err != nil {
		return err
	}
	c.Settings = settings

	logCfg := settings.Logging
	if settings.Debug {
		logCfg.DefaultLevel = "debug"
		logCfg.Console.Level = "debug"
	}
	central, err := logger.NewCentralLogger(&logCfg)
	if err != nil {
		return errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "init_logger").
			Build()
	}
	logger.SetGlobal(central)
	c.central = central
	c.log = central.Module("app")

	if settings.Sentry.Enabled {
		if err := errors.InitSentry(settings.Sentry.DSN, c.Build.Version()); err != nil {
			c.log.Warn("error reporting disabled", logger.Error(err))
		} else {
			c.sentry = true
		}
	}

	if settings.Telemetry.Enabled {
		m, err := observability.NewMetrics()
		if err != nil {
			return err
		}
		c.Metrics = m
	}

	c.log.Debug("initialized",
		logger.String("version", c.Build.Version()),
		logger.String("backend", settings.Audio.Backend),
		logger.Int("sample_rate", settings.Audio.SampleRate))
	return nil
}

// Log returns the application logger.
func (c *Context) Log() logger.Logger { return c.log }

// Backend creates the configured audio backend.
func (c *Context) Backend() (audiocore.Backend, error) {
	return backend.New(c.Settings)
}

// StreamMetrics returns instruments for kind, or nil without telemetry.
func (c *Context) StreamMetrics(kind string) *metrics.StreamInstruments {
	if c.Metrics == nil {
		return nil
	}
	return c.Metrics.Stream.Stream(kind)
}

// MonitorMetrics returns instruments for the named monitor, or nil without
// telemetry.
func (c *Context) MonitorMetrics(name string) *metrics.MonitorInstruments {
	if c.Metrics == nil {
		return nil
	}
	return c.Metrics.Monitor.Monitor(name)
}

// LevelMonitor builds a monitor logging levels to path at the configured
// interval.
func (c *Context) LevelMonitor(name, path string) (*monitor.Monitor, error) {
	s := c.Settings
	inst := c.MonitorMetrics(name)
	handler := monitor.NewLevelMonitor(name, path, s.Monitor.Reference, inst)
	return monitor.New(monitor.Config{
		Name:      name,
		Interval:  s.Monitor.Interval,
		ChunkSize: s.ChunkSize(),
	}, handler,
		monitor.WithLogger(logger.Global().Module("monitor")),
		monitor.WithMetrics(inst))
}

// ServeTelemetry serves metrics until ctx ends. It returns at once when
// telemetry is disabled.
func (c *Context) ServeTelemetry(ctx context.Context) error {
	if c.Metrics == nil {
		return nil
	}
	endpoint, err := observability.NewEndpoint(c.Settings, c.Metrics)
	if err != nil {
		return err
	}
	return endpoint.Run(ctx)
}

// Close flushes the logger and pending error reports.
func (c *Context) Close() error {
	if c.sentry {
		errors.FlushSentry(sentryFlushTimeout)
	}
	if c.central == nil {
		return nil
	}
	return c.central.Close()
}
