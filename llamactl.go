// Package llamactl is the embeddable API of the llama-server orchestrator.
package llamactl

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/llamactl/internal/config"
	"github.com/loykin/llamactl/internal/env"
	"github.com/loykin/llamactl/internal/history"
	"github.com/loykin/llamactl/internal/history/factory"
	"github.com/loykin/llamactl/internal/logger"
	"github.com/loykin/llamactl/internal/manager"
	"github.com/loykin/llamactl/internal/metrics"
	"github.com/loykin/llamactl/internal/process"
	"github.com/loykin/llamactl/internal/resolver"
	"github.com/loykin/llamactl/internal/server"
	"github.com/loykin/llamactl/internal/settings"
	tlsx "github.com/loykin/llamactl/internal/tls"
)

// Re-exported types. These are aliases so conversions are zero-cost.

type Config = config.Config

type Manager = manager.Manager

type Options = manager.Options

type LaunchResult = manager.LaunchResult

type Output = manager.Output

type ProcessInfo = process.Info

type Status = process.Status

type HistorySink = history.Sink

type SettingsStore = settings.Store

type Resolver = resolver.Resolver

type LaunchError = manager.LaunchError

var ErrProcessNotFound = manager.ErrProcessNotFound

func LoadConfig(path string) (*Config, error) { return config.LoadConfig(path) }

func NewManager(opts Options) (*Manager, error) { return manager.New(opts) }

// NewHistorySink opens a sink for a DSN such as sqlite:///var/lib/llamactl/history.db.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// NewHTTPServer starts serving the HTTP API on addr in the background.
func NewHTTPServer(addr, basePath string, m *Manager, r *Resolver, s *SettingsStore) *http.Server {
	return server.NewServer(addr, server.NewRouter(m, r, s, basePath))
}

// ExecutableName is the llama-server binary name on this platform.
func ExecutableName() string { return process.ExecutableName() }

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

func MetricsHandler() http.Handler { return metrics.Handler() }

// Daemon is a fully wired orchestrator built from a Config.
type Daemon struct {
	Config   *Config
	Logger   *slog.Logger
	Settings *SettingsStore
	Resolver *Resolver
	Manager  *Manager

	logCloser io.Closer
}

// NewDaemon builds the logger, settings store, resolver, history sinks and
// manager described by cfg. console receives log output (os.Stderr when
// nil).
func NewDaemon(cfg *Config, console io.Writer) (*Daemon, error) {
	lg, closer, err := logger.New(cfg.LoggerConfig(), console)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	d := &Daemon{Config: cfg, Logger: lg, logCloser: closer}

	store, err := settings.Open(cfg.SettingsPath, lg)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	if err := store.EnsureDirs(); err != nil {
		lg.Warn("cannot create llama directories", "error", err)
	}
	d.Settings = store
	d.Resolver = resolver.New(store, lg)

	pairs, err := cfg.GlobalEnv()
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	var sinks []history.Sink
	for _, dsn := range cfg.History.DSNs {
		s, err := factory.NewSinkFromDSN(dsn)
		if err != nil {
			for _, open := range sinks {
				_ = open.Close()
			}
			_ = closer.Close()
			return nil, fmt.Errorf("history sink %q: %w", dsn, err)
		}
		sinks = append(sinks, s)
	}

	d.Manager, err = manager.New(manager.Options{
		Settings: store,
		Resolver: d.Resolver,
		Ports:    cfg.PortAllocator(),
		Env:      env.FromPairs(pairs),
		Output:   cfg.OutputLogConfig(),
		Logger:   lg,
		History:  sinks,
	})
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return d, nil
}

// Router returns the HTTP API for this daemon.
func (d *Daemon) Router() *server.Router {
	return server.NewRouter(d.Manager, d.Resolver, d.Settings, d.Config.Server.BasePath)
}

// Serve starts the HTTP API on the configured listen address, over HTTPS
// when [server.tls] is enabled.
func (d *Daemon) Serve() (*http.Server, error) {
	tc, err := tlsx.Setup(d.Config.Server.TLS)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	d.Logger.Info("serving API", "listen", d.Config.Server.Listen,
		"base_path", d.Config.Server.BasePath, "tls", tc != nil)
	if tc != nil {
		return server.NewTLSServer(d.Config.Server.Listen, tc, d.Router()), nil
	}
	return server.NewServer(d.Config.Server.Listen, d.Router()), nil
}

// ServeMetrics registers the collectors and starts /metrics on the
// configured address. It returns nil when metrics are disabled.
func (d *Daemon) ServeMetrics() (*http.Server, error) {
	if !d.Config.Metrics.Enabled {
		return nil, nil
	}
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              d.Config.Metrics.Listen,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.Logger.Error("metrics server stopped", "error", err)
		}
	}()
	d.Logger.Info("serving metrics", "listen", d.Config.Metrics.Listen)
	return srv, nil
}

// Close closes the manager's history sinks and the log file. Stop the
// processes first with Manager.CleanupAll or Manager.ForceCleanupAll.
func (d *Daemon) Close() error {
	return errors.Join(d.Manager.Close(), d.logCloser.Close())
}
