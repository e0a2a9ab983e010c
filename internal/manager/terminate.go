package manager

import (
	"context"
	"errors"
	"time"

	"github.com/loykin/llamactl/internal/history"
	"github.com/loykin/llamactl/internal/metrics"
	"github.com/loykin/llamactl/internal/process"
)

// Terminate kills the process and drops its record. Unknown ids are a
// no-op, so calling it twice is safe.
func (m *Manager) Terminate(id string) error {
	h, live := m.reg.TakeHandle(id)
	code := process.ExitUnknown
	if live {
		if c := h.Detach(); c != nil {
			code = m.killAndReap(id, c, reapTimeout)
		}
	}

	var info process.Info
	found := m.reg.Update(id, func(r *process.Record) {
		m.transition(r, process.StatusStopped)
		if r.ExitCode == nil {
			exit := code
			r.ExitCode = &exit
		}
		info = r.Info()
	})
	m.reg.RemoveRecord(id)
	m.updateRunning()
	if !live {
		if found {
			m.logger.Debug("removed exited llama-server record", "id", id, "model", info.ModelName)
		}
		return nil
	}
	m.logger.Info("terminated llama-server", "id", id, "model", info.ModelName, "pid", info.PID)
	metrics.IncTermination("single")
	m.emit(history.EventTerminate, info)
	return nil
}

// killAndReap kills c, falling back to a by-pid kill, and waits up to d for
// it to be reaped.
func (m *Manager) killAndReap(id string, c *process.Child, d time.Duration) int {
	if err := c.Kill(); err != nil {
		m.logger.Warn("kill failed, trying fallback", "id", id, "pid", c.PID(), "error", err)
		if err := process.FallbackKill(c.PID()); err != nil {
			m.logger.Warn("fallback kill failed", "id", id, "pid", c.PID(), "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	code, err := c.WaitContext(ctx)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		m.logger.Warn("reap failed", "id", id, "pid", c.PID(), "error", err)
	} else if err != nil {
		m.logger.Warn("process did not exit in time", "id", id, "pid", c.PID())
	}
	return code
}

// CleanupAll is the shutdown teardown: it refuses every later launch, then
// stops all processes like StopAll.
func (m *Manager) CleanupAll(ctx context.Context) int {
	m.reg.Seal()
	return m.StopAll(ctx)
}

// StopAll kills every tracked process, waits for each to be reaped
// (bounded by ctx) and clears the registry. Launches stay possible. It
// returns the number of processes that were still attached.
func (m *Manager) StopAll(ctx context.Context) int {
	handles := m.reg.DrainAll()
	children := make(map[string]*process.Child, len(handles))
	for id, h := range handles {
		if c := h.Detach(); c != nil {
			children[id] = c
		}
	}
	for id, c := range children {
		if err := c.Kill(); err != nil {
			m.logger.Warn("kill failed, trying fallback", "id", id, "pid", c.PID(), "error", err)
			if err := process.FallbackKill(c.PID()); err != nil {
				m.logger.Error("fallback kill failed", "id", id, "pid", c.PID(), "error", err)
			}
		}
		metrics.IncTermination("cleanup")
	}
	for id, c := range children {
		if _, err := c.WaitContext(ctx); err != nil {
			m.logger.Warn("process not reaped during cleanup", "id", id, "pid", c.PID(), "error", err)
		}
	}
	m.updateRunning()
	m.logger.Info("cleanup complete", "processes", len(children))
	return len(children)
}

// ForceCleanupAll is the non-blocking shutdown path. Later launches are
// refused. If another cleanup holds the registry it does nothing and
// returns false; the handles still kill their processes when they are
// collected. Otherwise every live
// process, with its descendants, is force-killed and all handles dropped.
func (m *Manager) ForceCleanupAll() bool {
	m.reg.Seal()
	handles, ok := m.reg.TryDrainAll()
	if !ok {
		m.logger.Warn("registry busy, relying on drop-implies-kill")
		return false
	}

	type victim struct {
		pid     int
		started time.Time
	}
	victims := make([]victim, 0, len(handles))
	for _, h := range handles {
		if c := h.Child(); c != nil && !c.Exited() {
			victims = append(victims, victim{pid: c.PID(), started: c.StartedAt()})
		}
	}
	for _, v := range victims {
		if !process.SameProcess(v.pid, v.started) {
			continue
		}
		if err := process.ForceKill(v.pid); err != nil {
			m.logger.Warn("force kill failed", "pid", v.pid, "error", err)
		}
		metrics.IncTermination("force")
	}
	for _, h := range handles {
		_ = h.Close()
	}
	metrics.SetRunning(0)
	m.logger.Warn("force cleanup complete", "processes", len(victims))
	return true
}
