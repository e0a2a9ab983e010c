package process

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is the registry's metadata for one launched process. Records are
// owned by the registry and must only be mutated under its record lock.
type Record struct {
	ID        string
	ModelPath string
	ModelName string
	Host      string
	Port      uint16
	Command   []string
	Status    Status
	Output    *OutputLog
	CreatedAt time.Time
	Cursor    int
	ExitCode  *int
	PID       int
}

// NewRecord builds a record in the Starting state.
func NewRecord(id, modelPath, host string, port uint16, argv []string) *Record {
	cmd := make([]string, len(argv))
	copy(cmd, argv)
	return &Record{
		ID:        id,
		ModelPath: modelPath,
		ModelName: ModelName(modelPath),
		Host:      host,
		Port:      port,
		Command:   cmd,
		Status:    StatusStarting,
		Output:    NewOutputLog(MaxOutputLines),
		CreatedAt: time.Now(),
	}
}

// SetStatus applies a transition. It returns false and leaves the record
// untouched if the transition is not allowed.
func (r *Record) SetStatus(to Status) bool {
	if !r.Status.CanTransition(to) {
		return false
	}
	r.Status = to
	return true
}

// Poll returns output appended since the previous Poll and advances the cursor.
func (r *Record) Poll() []string {
	lines, next := r.Output.Since(r.Cursor)
	r.Cursor = next
	return lines
}

// Info is a read-only copy of a Record.
type Info struct {
	ID        string    `json:"id"`
	ModelPath string    `json:"model_path"`
	ModelName string    `json:"model_name"`
	Host      string    `json:"host"`
	Port      uint16    `json:"port"`
	Command   []string  `json:"command"`
	Status    Status    `json:"status"`
	PID       int       `json:"pid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Lines     int       `json:"lines"`
	ExitCode  *int      `json:"exit_code,omitempty"`
}

func (r *Record) Info() Info {
	cmd := make([]string, len(r.Command))
	copy(cmd, r.Command)
	var code *int
	if r.ExitCode != nil {
		c := *r.ExitCode
		code = &c
	}
	return Info{
		ID:        r.ID,
		ModelPath: r.ModelPath,
		ModelName: r.ModelName,
		Host:      r.Host,
		Port:      r.Port,
		Command:   cmd,
		Status:    r.Status,
		PID:       r.PID,
		CreatedAt: r.CreatedAt,
		Lines:     r.Output.Len(),
		ExitCode:  code,
	}
}

// ModelName derives a display name from a model file path: the file name
// without extension, or "unknown".
func ModelName(modelPath string) string {
	base := filepath.Base(modelPath)
	if base == "." || base == string(filepath.Separator) || base == "" {
		return "unknown"
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return "unknown"
	}
	return stem
}
