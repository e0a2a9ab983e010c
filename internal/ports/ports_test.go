package ports

import (
	"net"
	"reflect"
	"testing"
)

func TestParseOverride(t *testing.T) {
	cases := []struct {
		args string
		def  uint16
		want uint16
	}{
		{"", 8080, 8080},
		{"--port 9001", 8080, 9001},
		{"--port=9001", 8080, 9001},
		{"-ngl 99 --port   9002 --ctx-size 2048", 8080, 9002},
		{"--port=abc", 8080, 8080},
		{"--port 70000", 8080, 8080},
		{"--port", 8080, 8080},
		{"--ctx-size 4096", 8080, 8080},
	}
	for _, c := range cases {
		if got := ParseOverride(c.args, c.def); got != c.want {
			t.Errorf("ParseOverride(%q, %d) = %d, want %d", c.args, c.def, got, c.want)
		}
	}
}

func TestStripOverride(t *testing.T) {
	in := []string{"-ngl", "99", "--port", "9001", "--port=9002", "--ctx-size", "4096"}
	want := []string{"-ngl", "99", "--ctx-size", "4096"}
	if got := StripOverride(in); !reflect.DeepEqual(got, want) {
		t.Fatalf("StripOverride = %v, want %v", got, want)
	}
}

func TestFindAllOccupiedReturnsStart(t *testing.T) {
	var probed []uint16
	a := Allocator{Probe: func(_ string, p uint16) bool {
		probed = append(probed, p)
		return false
	}}
	if got := a.Find(8080); got != 8080 {
		t.Fatalf("Find = %d, want 8080", got)
	}
	if len(probed) != DefaultAttempts+1 || probed[len(probed)-1] != 8090 {
		t.Fatalf("probed %v", probed)
	}
}

func TestFindSkipsOccupied(t *testing.T) {
	busy := map[uint16]bool{8080: true}
	a := Allocator{Probe: func(_ string, p uint16) bool { return !busy[p] }}
	if got := a.Find(8080); got != 8081 {
		t.Fatalf("Find = %d, want 8081", got)
	}
}

func TestFindDoesNotWrap(t *testing.T) {
	var probed []uint16
	a := Allocator{Probe: func(_ string, p uint16) bool {
		probed = append(probed, p)
		return false
	}}
	if got := a.Find(65530); got != 65530 {
		t.Fatalf("Find = %d", got)
	}
	for _, p := range probed {
		if p < 65530 {
			t.Fatalf("probe wrapped around to %d", p)
		}
	}
}

func TestAvailableDetectsBoundPort(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = l.Close() }()
	port := uint16(l.Addr().(*net.TCPAddr).Port)
	if Available("127.0.0.1", port) {
		t.Fatalf("port %d is bound but reported available", port)
	}
}
