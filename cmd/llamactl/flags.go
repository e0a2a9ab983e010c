package main

import "time"

// Flag structs decouple cobra from the command logic for testing.

// APIFlags select the daemon a remote command talks to.
type APIFlags struct {
	URL        string
	Timeout    time.Duration
	CACert     string
	SkipVerify bool
}

type LaunchFlags struct {
	ModelPath string
}

type LogsFlags struct {
	ID       string
	Follow   bool
	Interval time.Duration
}

type IDFlags struct {
	ID string
}

type VersionFlags struct {
	Path string
}

type ModelFlags struct {
	Path string
	Args string
	Host string
	Port uint16
	Env  []string
}

type ServeFlags struct {
	CleanupTimeout time.Duration
}
