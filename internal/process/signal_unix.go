//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// killGroup sends SIGKILL to the child's process group, falling back to the
// process alone when the group is gone.
func killGroup(p *os.Process) error {
	if err := syscall.Kill(-p.Pid, syscall.SIGKILL); err == nil {
		return nil
	}
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// FallbackKill is used when a managed kill failed: SIGKILL by pid.
func FallbackKill(pid int) error {
	if pid <= 0 {
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// ForceKill is the emergency path: `kill -9 <pid>`, then SIGKILL to the
// process group and every descendant found before the parent died.
func ForceKill(pid int) error {
	if pid <= 0 {
		return nil
	}
	descendants := descendantPIDs(pid)
	err := exec.Command("kill", "-9", strconv.Itoa(pid)).Run()
	if err != nil {
		err = FallbackKill(pid)
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
	for _, d := range descendants {
		_ = syscall.Kill(d, syscall.SIGKILL)
	}
	return err
}

func descendantPIDs(pid int) []int {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return nil
	}
	var out []int
	var walk func(*gopsproc.Process)
	walk = func(p *gopsproc.Process) {
		kids, err := p.Children()
		if err != nil {
			return
		}
		for _, k := range kids {
			out = append(out, int(k.Pid))
			walk(k)
		}
	}
	walk(p)
	return out
}

// processExists reports whether pid refers to a live (or zombie) process.
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
