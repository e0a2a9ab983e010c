// Package ports picks the TCP port a llama-server instance listens on.
package ports

import (
	"math"
	"net"
	"strconv"
	"strings"
)

const (
	DefaultHost     = "127.0.0.1"
	DefaultAttempts = 10
	overrideFlag    = "--port"
)

// ProbeFunc reports whether host:port can currently be bound.
type ProbeFunc func(host string, port uint16) bool

// Available binds host:port and immediately releases it.
func Available(host string, port uint16) bool {
	l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// Allocator probes for a free port near a requested one. The zero value
// probes DefaultHost with DefaultAttempts.
type Allocator struct {
	Host     string
	Attempts int
	Probe    ProbeFunc
}

// Find returns the first bindable port in [start, start+Attempts]. If none
// is free it returns start unchanged and the caller proceeds anyway.
// The probe is not a reservation: another process may take the port before
// llama-server binds it.
func (a Allocator) Find(start uint16) uint16 {
	host := a.Host
	if host == "" {
		host = DefaultHost
	}
	attempts := a.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	probe := a.Probe
	if probe == nil {
		probe = Available
	}
	for i := 0; i <= attempts; i++ {
		p := int(start) + i
		if p > math.MaxUint16 {
			break
		}
		if probe(host, uint16(p)) {
			return uint16(p)
		}
	}
	return start
}

// ParseOverride returns the port given by a `--port=V` or `--port V` token
// inside customArgs, or def when there is none or V is not a valid port.
func ParseOverride(customArgs string, def uint16) uint16 {
	idx := strings.Index(customArgs, overrideFlag)
	if idx < 0 {
		return def
	}
	rest := customArgs[idx+len(overrideFlag):]
	if strings.HasPrefix(rest, "=") {
		rest = rest[1:]
	} else {
		rest = strings.TrimLeft(rest, " \t")
	}
	if end := strings.IndexAny(rest, " \t"); end >= 0 {
		rest = rest[:end]
	}
	v, err := strconv.ParseUint(rest, 10, 16)
	if err != nil {
		return def
	}
	return uint16(v)
}

// StripOverride removes port flags from tokenized custom arguments so the
// launcher's own --port is the only one llama-server sees.
func StripOverride(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == overrideFlag {
			i++ // skip the value
			continue
		}
		if strings.HasPrefix(a, overrideFlag+"=") {
			continue
		}
		out = append(out, a)
	}
	return out
}
