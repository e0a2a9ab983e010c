//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

const processQueryInformation = 0x0400

func killGroup(p *os.Process) error {
	if err := p.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// FallbackKill runs `taskkill /PID <pid> /F`.
func FallbackKill(pid int) error {
	if pid <= 0 {
		return nil
	}
	return taskkill(pid, false)
}

// ForceKill runs `taskkill /PID <pid> /F /T`, which also ends the process tree.
func ForceKill(pid int) error {
	if pid <= 0 {
		return nil
	}
	return taskkill(pid, true)
}

func taskkill(pid int, tree bool) error {
	args := []string{"/PID", strconv.Itoa(pid), "/F"}
	if tree {
		args = append(args, "/T")
	}
	cmd := exec.Command("taskkill", args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true, CreationFlags: CREATE_NO_WINDOW}
	return cmd.Run()
}

func processExists(pid int) bool {
	h, err := syscall.OpenProcess(processQueryInformation, false, uint32(pid))
	if err != nil {
		return false
	}
	_ = syscall.CloseHandle(h)
	return true
}
