package process

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"
)

// ExitUnknown is reported when no exit status could be obtained.
const ExitUnknown = -1

// Child is a started OS process. Wait may be called any number of times
// from any goroutine; the process is reaped exactly once.
type Child struct {
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	once sync.Once
	done chan struct{}
	code int
	err  error
}

// Start starts cmd and wraps it.
func Start(cmd *exec.Cmd) (*Child, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &Child{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}, nil
}

func (c *Child) PID() int              { return c.pid }
func (c *Child) StartedAt() time.Time  { return c.startedAt }
func (c *Child) Done() <-chan struct{} { return c.done }

// Exited reports whether the process has been reaped.
func (c *Child) Exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Kill sends a forced kill to the process and, on Unix, its process group.
// Killing an already reaped child is a no-op.
func (c *Child) Kill() error {
	if c.Exited() {
		return nil
	}
	return killGroup(c.cmd.Process)
}

// Wait reaps the process and returns its exit code. A process that exited
// on a signal reports ExitUnknown with a nil error. A non-nil error means
// the wait itself failed.
func (c *Child) Wait() (int, error) {
	c.once.Do(func() {
		c.code, c.err = exitStatus(c.cmd.Wait())
		close(c.done)
	})
	return c.code, c.err
}

// WaitContext is Wait bounded by ctx. On cancellation the child is still
// reaped in the background.
func (c *Child) WaitContext(ctx context.Context) (int, error) {
	go func() { _, _ = c.Wait() }()
	select {
	case <-c.done:
		return c.code, c.err
	case <-ctx.Done():
		return ExitUnknown, ctx.Err()
	}
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode(), nil
	}
	return ExitUnknown, err
}
