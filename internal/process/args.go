package process

import (
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"unicode"
)

// ExecutableName is the llama-server binary name for the running platform.
func ExecutableName() string {
	if runtime.GOOS == "windows" {
		return "llama-server.exe"
	}
	return "llama-server"
}

// SplitArgs tokenizes a free-form argument string. Any Unicode whitespace
// (spaces, tabs, newlines) outside quotes separates tokens; a single or double quote toggles quoting and is
// dropped from the output. An unterminated quote does not fail: the
// remaining text forms the last token.
func SplitArgs(s string) []string {
	var (
		out      []string
		cur      strings.Builder
		inQuotes bool
	)
	for _, r := range s {
		switch {
		case r == '"' || r == '\'':
			inQuotes = !inQuotes
		case unicode.IsSpace(r) && !inQuotes:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// ServerArgs builds the llama-server argument vector (without argv[0]).
func ServerArgs(modelPath, host string, port uint16, extra []string) []string {
	args := []string{
		"-m", modelPath,
		"--host", host,
		"--port", strconv.Itoa(int(port)),
	}
	return append(args, extra...)
}

// Command builds an exec.Cmd for exe with the platform process attributes
// applied.
func Command(exe string, args []string) *exec.Cmd {
	cmd := exec.Command(exe, args...)
	configureSysProcAttr(cmd)
	return cmd
}
