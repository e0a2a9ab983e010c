package manager

import (
	"errors"
	"fmt"
)

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrProcessRunning  = errors.New("process is still running")
	ErrEmptyModelPath  = errors.New("model path is required")
	ErrClosed          = errors.New("manager is closed")
)

// ErrorKind classifies launch failures.
type ErrorKind string

const (
	KindResolution ErrorKind = "resolution"
	KindSpawn      ErrorKind = "spawn"
	KindCapture    ErrorKind = "capture"
)

// LaunchError is returned when a llama-server process could not be started.
// Nothing is registered when it is returned.
type LaunchError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	switch e.Kind {
	case KindResolution:
		return fmt.Sprintf("llama-server executable not found at %s", e.Path)
	case KindCapture:
		return fmt.Sprintf("capture output of %s: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("start %s: %v", e.Path, e.Err)
	}
}

func (e *LaunchError) Unwrap() error { return e.Err }

func isKind(err error, k ErrorKind) bool {
	var le *LaunchError
	return errors.As(err, &le) && le.Kind == k
}

func IsResolutionError(err error) bool { return isKind(err, KindResolution) }
func IsSpawnError(err error) bool      { return isKind(err, KindSpawn) }
func IsCaptureError(err error) bool    { return isKind(err, KindCapture) }
