// Package env composes the environment handed to llama-server processes.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Env holds launcher-wide variables layered over the OS environment. It is
// immutable once built; WithSet returns a modified copy.
type Env struct {
	vars Var
	base Var
}

func New() *Env {
	return &Env{vars: make(Var)}
}

// FromPairs builds an Env from "K=V" entries, skipping malformed ones.
func FromPairs(kvs []string) *Env {
	e := New()
	for k, v := range parsePairs(kvs) {
		e.vars[k] = v
	}
	return e
}

// WithSet returns a copy of e with K=V set.
func (e *Env) WithSet(k, v string) *Env {
	n := &Env{vars: make(Var, len(e.vars)+1), base: e.base}
	for kk, vv := range e.vars {
		n.vars[kk] = vv
	}
	if k != "" {
		n.vars[k] = v
	}
	return n
}

// Len is the number of launcher-wide variables.
func (e *Env) Len() int { return len(e.vars) }

func osBase() Var {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i > 0 {
			base[kv[:i]] = kv[i+1:]
		}
	}
	return base
}

// Merge composes OS env, then launcher-wide vars, then per-model "K=V"
// overrides, expanding ${VAR} references against the composed map. The
// result is sorted by key.
func (e *Env) Merge(perModel []string) []string {
	base := e.base
	if base == nil {
		base = osBase()
	}
	m := make(Var, len(base)+len(e.vars)+len(perModel))
	for k, v := range base {
		m[k] = v
	}
	for k, v := range e.vars {
		m[k] = v
	}
	for k, v := range parsePairs(perModel) {
		m[k] = v
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+expand(m[k], m))
	}
	return out
}

func parsePairs(kvs []string) Var {
	out := make(Var, len(kvs))
	for _, kv := range kvs {
		if i := strings.IndexByte(kv, '='); i > 0 {
			out[kv[:i]] = kv[i+1:]
		}
	}
	return out
}

// expand replaces ${VAR} with its value from m. Unknown references are
// left as written; there is no recursion.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		j := strings.IndexByte(s[i:], '}')
		if j < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		name := s[i+2 : i+j]
		if v, ok := m[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[i : i+j+1])
		}
		s = s[i+j+1:]
	}
}
