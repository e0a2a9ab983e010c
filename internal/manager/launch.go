package manager

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/loykin/llamactl/internal/history"
	"github.com/loykin/llamactl/internal/metrics"
	"github.com/loykin/llamactl/internal/ports"
	"github.com/loykin/llamactl/internal/process"
	"github.com/loykin/llamactl/internal/registry"
)

// ExternalProcessID is reported for processes launched in a terminal
// window. They are not tracked.
const ExternalProcessID = "external"

// LaunchResult describes a started llama-server.
type LaunchResult struct {
	Success    bool   `json:"success"`
	ProcessID  string `json:"process_id"`
	ModelName  string `json:"model_name"`
	ServerHost string `json:"server_host"`
	ServerPort uint16 `json:"server_port"`
	Message    string `json:"message"`
}

type ExternalResult = LaunchResult

type launchPlan struct {
	exe       string
	modelPath string
	modelName string
	host      string
	port      uint16
	args      []string
	env       []string
}

func (m *Manager) plan(modelPath string) (launchPlan, error) {
	if strings.TrimSpace(modelPath) == "" {
		return launchPlan{}, ErrEmptyModelPath
	}
	g := m.cfg.Global()
	mc := m.cfg.ModelConfig(modelPath)

	exe := m.resolver.Resolve(g)
	if fi, err := os.Stat(exe); err != nil || fi.IsDir() {
		if err == nil {
			err = fs.ErrNotExist
		}
		return launchPlan{}, &LaunchError{Kind: KindResolution, Path: exe, Err: err}
	}

	host := mc.ServerHost
	if host == "" {
		host = ports.DefaultHost
	}
	requested := ports.ParseOverride(mc.CustomArgs, mc.ServerPort)
	alloc := m.ports
	if alloc.Host == "" {
		alloc.Host = host
	}
	port := alloc.Find(requested)
	if port != requested {
		m.logger.Info("requested port busy, using next free port",
			"model", modelPath, "requested", requested, "port", port)
		metrics.IncPortReallocation()
	}

	extra := ports.StripOverride(process.SplitArgs(mc.CustomArgs))
	return launchPlan{
		exe:       exe,
		modelPath: modelPath,
		modelName: process.ModelName(modelPath),
		host:      host,
		port:      port,
		args:      process.ServerArgs(modelPath, host, port, extra),
		env:       m.env.Merge(mc.Env),
	}, nil
}

// Launch starts llama-server for modelPath and returns without waiting for
// the server to become ready.
func (m *Manager) Launch(ctx context.Context, modelPath string) (LaunchResult, error) {
	if m.rejecting() {
		return LaunchResult{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return LaunchResult{}, err
	}
	p, err := m.plan(modelPath)
	if err != nil {
		m.launchFailed(modelPath, err)
		return LaunchResult{}, err
	}

	cmd := process.Command(p.exe, p.args)
	cmd.Env = p.env
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		err = &LaunchError{Kind: KindCapture, Path: p.exe, Err: err}
		m.launchFailed(modelPath, err)
		return LaunchResult{}, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		err = &LaunchError{Kind: KindCapture, Path: p.exe, Err: err}
		m.launchFailed(modelPath, err)
		return LaunchResult{}, err
	}
	child, err := process.Start(cmd)
	if err != nil {
		err = &LaunchError{Kind: KindSpawn, Path: p.exe, Err: err}
		m.launchFailed(modelPath, err)
		return LaunchResult{}, err
	}

	id := registry.NewID()
	rec := process.NewRecord(id, p.modelPath, p.host, p.port, append([]string{p.exe}, p.args...))
	rec.PID = child.PID()
	info := rec.Info()
	if !m.reg.Insert(rec, process.NewHandle(child)) {
		// shutdown began after the spawn
		m.logger.Warn("manager shutting down, killing new llama-server", "model", p.modelName, "pid", child.PID())
		m.killAndReap(id, child, reapTimeout)
		return LaunchResult{}, ErrClosed
	}

	m.pumps.Add(1)
	go m.pump(id, p.modelName, child, stdout, stderr)

	m.logger.Info("launched llama-server",
		"id", id, "model", p.modelName, "pid", child.PID(), "host", p.host, "port", p.port, "exe", p.exe)
	metrics.IncLaunch(p.modelName)
	m.updateRunning()
	m.emit(history.EventLaunch, info)

	return LaunchResult{
		Success:    true,
		ProcessID:  id,
		ModelName:  p.modelName,
		ServerHost: p.host,
		ServerPort: p.port,
		Message:    "Model server launched successfully",
	}, nil
}

// LaunchExternal runs llama-server in a new terminal window. The process is
// not registered, so its output is not captured and it cannot be
// terminated through the manager.
func (m *Manager) LaunchExternal(ctx context.Context, modelPath string) (ExternalResult, error) {
	if m.rejecting() {
		return ExternalResult{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return ExternalResult{}, err
	}
	p, err := m.plan(modelPath)
	if err != nil {
		m.launchFailed(modelPath, err)
		return ExternalResult{}, err
	}

	var errs []error
	for _, cmd := range m.terminals(p.exe, p.args) {
		cmd.Env = p.env
		if err := cmd.Start(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cmd.Path, err))
			continue
		}
		go func() { _ = cmd.Wait() }()
		m.logger.Info("launched llama-server in external terminal",
			"model", p.modelName, "terminal", cmd.Path, "host", p.host, "port", p.port)
		return ExternalResult{
			Success:    true,
			ProcessID:  ExternalProcessID,
			ModelName:  p.modelName,
			ServerHost: p.host,
			ServerPort: p.port,
			Message:    "Model launched in external terminal",
		}, nil
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no terminal emulator available"))
	}
	err = &LaunchError{Kind: KindSpawn, Path: p.exe, Err: errors.Join(errs...)}
	m.launchFailed(modelPath, err)
	return ExternalResult{}, err
}

func (m *Manager) launchFailed(modelPath string, err error) {
	kind := "invalid"
	var le *LaunchError
	if errors.As(err, &le) {
		kind = string(le.Kind)
	}
	metrics.IncLaunchFailure(kind)
	m.logger.Error("launch failed", "model", modelPath, "kind", kind, "error", err)
}
