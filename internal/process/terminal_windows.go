//go:build windows

package process

import "os/exec"

// TerminalCommands returns `cmd /c start cmd /k <exe> <args>`.
func TerminalCommands(exe string, args []string) []*exec.Cmd {
	argv := append([]string{"/c", "start", "cmd", "/k", exe}, args...)
	return []*exec.Cmd{exec.Command("cmd", argv...)}
}
