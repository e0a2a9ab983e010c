package manager

// Output is one poll of a process's output.
type Output struct {
	Lines     []string `json:"output"`
	IsRunning bool     `json:"is_running"`
	ExitCode  *int     `json:"return_code,omitempty"`
}

// Output returns the lines appended since the previous call for id.
func (m *Manager) Output(id string) (Output, error) {
	lines, status, code, ok := m.reg.Poll(id)
	if !ok {
		return Output{}, ErrProcessNotFound
	}
	if lines == nil {
		lines = []string{}
	}
	return Output{Lines: lines, IsRunning: status.Active(), ExitCode: code}, nil
}
