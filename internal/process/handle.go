package process

import (
	"runtime"
	"sync"
)

// Handle exclusively owns a running Child. Whoever stops holding a Handle
// must either Detach it (taking over the child) or Close it (killing the
// child). A Handle that becomes unreachable while still attached kills its
// child when collected.
type Handle struct {
	mu      sync.Mutex
	child   *Child
	cleanup runtime.Cleanup
}

func NewHandle(c *Child) *Handle {
	h := &Handle{child: c}
	h.cleanup = runtime.AddCleanup(h, dropChild, c)
	return h
}

func dropChild(c *Child) {
	_ = c.Kill()
	go func() { _, _ = c.Wait() }()
}

// Detach transfers ownership of the child to the caller. It returns nil if
// the handle was already detached or closed.
func (h *Handle) Detach() *Child {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.child
	if c != nil {
		h.child = nil
		h.cleanup.Stop()
	}
	return c
}

// PID returns the OS process id without taking ownership.
func (h *Handle) PID() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.child == nil {
		return 0, false
	}
	return h.child.PID(), true
}

// Child returns the attached child without taking ownership, or nil.
func (h *Handle) Child() *Child {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.child
}

// Close kills the child if it is still attached and reaps it in the
// background.
func (h *Handle) Close() error {
	c := h.Detach()
	if c == nil {
		return nil
	}
	err := c.Kill()
	go func() { _, _ = c.Wait() }()
	return err
}
