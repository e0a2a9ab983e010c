// Package manager launches llama-server processes, captures their output
// and tears them down.
package manager

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/llamactl/internal/env"
	"github.com/loykin/llamactl/internal/history"
	"github.com/loykin/llamactl/internal/logger"
	"github.com/loykin/llamactl/internal/metrics"
	"github.com/loykin/llamactl/internal/ports"
	"github.com/loykin/llamactl/internal/process"
	"github.com/loykin/llamactl/internal/registry"
	"github.com/loykin/llamactl/internal/settings"
)

const (
	sinkTimeout = 5 * time.Second
	reapTimeout = 5 * time.Second
)

// ConfigProvider yields the configuration a launch needs. Values are
// returned as copies.
type ConfigProvider interface {
	Global() settings.GlobalConfig
	ModelConfig(modelPath string) settings.ModelConfig
}

// ExecutableResolver picks the llama-server binary for a configuration.
type ExecutableResolver interface {
	Resolve(cfg settings.GlobalConfig) string
}

type Options struct {
	Settings ConfigProvider
	Resolver ExecutableResolver
	Ports    ports.Allocator
	// Env is layered over the OS environment of every launched process.
	Env *env.Env
	// Output mirrors process output to rotating files when its File
	// section is set.
	Output  logger.Config
	Logger  *slog.Logger
	History []history.Sink
}

// Manager is the process orchestration context. Build it with New and tear
// it down with CleanupAll (or ForceCleanupAll) followed by Close.
type Manager struct {
	reg      *registry.Registry
	cfg      ConfigProvider
	resolver ExecutableResolver
	ports    ports.Allocator
	env      *env.Env
	output   logger.Config
	logger   *slog.Logger

	histMu    sync.RWMutex
	histSinks []history.Sink

	pumps  sync.WaitGroup
	closed atomic.Bool

	terminals func(exe string, args []string) []*exec.Cmd
}

func New(opts Options) (*Manager, error) {
	if opts.Settings == nil {
		return nil, errors.New("manager: settings provider is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("manager: resolver is required")
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	e := opts.Env
	if e == nil {
		e = env.New()
	}
	return &Manager{
		reg:       registry.New(),
		cfg:       opts.Settings,
		resolver:  opts.Resolver,
		ports:     opts.Ports,
		env:       e,
		output:    opts.Output,
		logger:    lg,
		histSinks: append([]history.Sink(nil), opts.History...),
		terminals: process.TerminalCommands,
	}, nil
}

// SetHistorySinks replaces the history sinks.
func (m *Manager) SetHistorySinks(sinks ...history.Sink) {
	m.histMu.Lock()
	m.histSinks = append([]history.Sink(nil), sinks...)
	m.histMu.Unlock()
}

// List returns all known processes, oldest first.
func (m *Manager) List() []process.Info { return m.reg.List() }

func (m *Manager) Get(id string) (process.Info, bool) { return m.reg.Get(id) }

// Remove clears the record of a process that is no longer running.
func (m *Manager) Remove(id string) error {
	info, ok := m.reg.Get(id)
	if !ok {
		return ErrProcessNotFound
	}
	if info.Status.Active() {
		return ErrProcessRunning
	}
	if _, ok := m.reg.RemoveRecord(id); !ok {
		return ErrProcessNotFound
	}
	return nil
}

// Wait blocks until every output pump has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further launches and closes the history sinks. It does not
// stop running processes.
func (m *Manager) Close() error {
	m.reg.Seal()
	if m.closed.Swap(true) {
		return nil
	}
	m.histMu.Lock()
	sinks := m.histSinks
	m.histSinks = nil
	m.histMu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// rejecting reports whether new launches are refused, after Close or once
// a shutdown cleanup has started.
func (m *Manager) rejecting() bool {
	return m.closed.Load() || m.reg.Sealed()
}

func (m *Manager) transition(r *process.Record, to process.Status) {
	from := r.Status
	if r.SetStatus(to) {
		metrics.RecordStateTransition(from.String(), to.String())
	}
}

func (m *Manager) updateRunning() {
	metrics.SetRunning(m.reg.HandleCount())
}

func (m *Manager) emit(t history.EventType, info process.Info) {
	m.histMu.RLock()
	defer m.histMu.RUnlock()
	if len(m.histSinks) == 0 {
		return
	}
	evt := history.Event{
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Record: history.Record{
			ProcessID: info.ID,
			ModelPath: info.ModelPath,
			ModelName: info.ModelName,
			Host:      info.Host,
			Port:      info.Port,
			PID:       info.PID,
			Status:    info.Status.String(),
			ExitCode:  info.ExitCode,
		},
	}
	for _, s := range m.histSinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := s.Send(ctx, evt); err != nil {
			m.logger.Warn("history sink send failed", "event", string(t), "id", info.ID, "error", err)
		}
		cancel()
	}
}
