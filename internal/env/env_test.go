package env

import (
	"strings"
	"testing"
)

func lookup(out []string, k string) (string, bool) {
	for _, kv := range out {
		if strings.HasPrefix(kv, k+"=") {
			return kv[len(k)+1:], true
		}
	}
	return "", false
}

func TestMergeLayering(t *testing.T) {
	e := &Env{vars: Var{"CUDA_VISIBLE_DEVICES": "0", "A": "global"}, base: Var{"PATH": "/bin", "A": "os"}}
	out := e.Merge([]string{"A=model", "LLAMA_ARG_THREADS=8", "=bad", "noequals"})

	for k, want := range map[string]string{"PATH": "/bin", "A": "model", "CUDA_VISIBLE_DEVICES": "0", "LLAMA_ARG_THREADS": "8"} {
		if got, ok := lookup(out, k); !ok || got != want {
			t.Errorf("%s = %q (present %v), want %q", k, got, ok, want)
		}
	}
	for _, kv := range out {
		if strings.HasPrefix(kv, "=") || !strings.Contains(kv, "=") {
			t.Fatalf("malformed entry %q", kv)
		}
	}
	for i := 1; i < len(out); i++ {
		if out[i-1] > out[i] {
			t.Fatalf("output not sorted: %v", out)
		}
	}
}

func TestExpand(t *testing.T) {
	e := &Env{vars: Var{"HOME_DIR": "/home/u", "CACHE": "${HOME_DIR}/.cache"}, base: Var{}}
	out := e.Merge([]string{"MISSING=${NOPE}/x"})
	if got, _ := lookup(out, "CACHE"); got != "/home/u/.cache" {
		t.Fatalf("CACHE = %q", got)
	}
	if got, _ := lookup(out, "MISSING"); got != "${NOPE}/x" {
		t.Fatalf("MISSING = %q", got)
	}
}

func TestWithSetIsCopy(t *testing.T) {
	a := FromPairs([]string{"X=1"})
	b := a.WithSet("Y", "2")
	if a.Len() != 1 || b.Len() != 2 {
		t.Fatalf("lens %d %d", a.Len(), b.Len())
	}
}

func FuzzExpand(f *testing.F) {
	f.Add("A=1", "B=${A}-x")
	f.Add("X=${Y}", "Y=${X}")
	f.Add("Z=${", "W=}")
	f.Fuzz(func(t *testing.T, g, p string) {
		e := &Env{vars: parsePairs([]string{g}), base: Var{}}
		for _, kv := range e.Merge([]string{p}) {
			if !strings.Contains(kv, "=") || strings.HasPrefix(kv, "=") {
				t.Fatalf("bad pair: %q", kv)
			}
		}
	})
}
