//go:build !windows

package process

import "os/exec"

var terminalLaunchers = [][]string{
	{"x-terminal-emulator", "-e"},
	{"gnome-terminal", "--"},
	{"xterm", "-e"},
}

// TerminalCommands returns commands that run exe in a new terminal window,
// in the order they should be tried.
func TerminalCommands(exe string, args []string) []*exec.Cmd {
	cmds := make([]*exec.Cmd, 0, len(terminalLaunchers))
	for _, l := range terminalLaunchers {
		argv := append(append([]string{}, l[1:]...), exe)
		argv = append(argv, args...)
		cmds = append(cmds, exec.Command(l[0], argv...))
	}
	return cmds
}
