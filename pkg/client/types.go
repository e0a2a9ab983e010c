package client

import "time"

// LaunchResult is returned by Launch and LaunchExternal.
type LaunchResult struct {
	Success    bool   `json:"success"`
	ProcessID  string `json:"process_id"`
	ModelName  string `json:"model_name"`
	ServerHost string `json:"server_host"`
	ServerPort uint16 `json:"server_port"`
	Message    string `json:"message"`
}

// ProcessInfo describes one tracked llama-server process.
type ProcessInfo struct {
	ID        string    `json:"id"`
	ModelPath string    `json:"model_path"`
	ModelName string    `json:"model_name"`
	Host      string    `json:"host"`
	Port      uint16    `json:"port"`
	Command   []string  `json:"command"`
	Status    string    `json:"status"`
	PID       int       `json:"pid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Lines     int       `json:"lines"`
	ExitCode  *int      `json:"exit_code,omitempty"`
}

// Output is one poll of a process's output.
type Output struct {
	Lines     []string `json:"output"`
	IsRunning bool     `json:"is_running"`
	ExitCode  *int     `json:"return_code,omitempty"`
}

// Version is an installed llama.cpp build.
type Version struct {
	Name      string     `json:"name"`
	Path      string     `json:"path"`
	HasServer bool       `json:"has_server"`
	Created   *time.Time `json:"created,omitempty"`
	Active    bool       `json:"is_active"`
}

// ModelSettings is the per-model launch configuration.
type ModelSettings struct {
	ModelPath  string   `json:"model_path"`
	CustomArgs string   `json:"custom_args"`
	ServerHost string   `json:"server_host"`
	ServerPort uint16   `json:"server_port"`
	Env        []string `json:"env,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

type modelPathRequest struct {
	ModelPath string `json:"model_path"`
}

type pathRequest struct {
	Path string `json:"path"`
}
