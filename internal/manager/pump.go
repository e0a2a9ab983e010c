package manager

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/loykin/llamactl/internal/history"
	"github.com/loykin/llamactl/internal/metrics"
	"github.com/loykin/llamactl/internal/process"
)

const maxLineBytes = 1 << 20

type outputLine struct {
	tag  string
	text string
}

// pump copies a process's output into its record until both streams end,
// then reaps the process and records how it exited.
func (m *Manager) pump(id, name string, c *process.Child, stdout, stderr io.ReadCloser) {
	defer m.pumps.Done()

	m.reg.Update(id, func(r *process.Record) { m.transition(r, process.StatusRunning) })

	outW, errW := m.mirrors(id, name)
	defer closeAll(outW, errW)

	lines := make(chan outputLine, 64)
	var readers sync.WaitGroup
	readers.Add(2)
	go m.readStream(id, stdout, process.TagStdout, lines, &readers)
	go m.readStream(id, stderr, process.TagStderr, lines, &readers)
	go func() {
		readers.Wait()
		close(lines)
	}()

	for l := range lines {
		m.reg.Update(id, func(r *process.Record) { r.Output.Append(l.tag + l.text) })
		w := outW
		if l.tag == process.TagStderr {
			w = errW
		}
		if w != nil {
			_, _ = io.WriteString(w, l.text+"\n")
		}
	}

	code, status := process.ExitUnknown, process.StatusStopped
	if h, ok := m.reg.TakeHandleOf(id, c); ok {
		h.Detach()
		var err error
		code, err = c.Wait()
		status = exitState(err)
		if err != nil {
			m.logger.Error("wait for llama-server failed", "id", id, "error", err)
		}
	}

	var info process.Info
	found := m.reg.Update(id, func(r *process.Record) {
		m.transition(r, status)
		r.Output.Append(fmt.Sprintf("Process exited with code: %d", code))
		exit := code
		r.ExitCode = &exit
		info = r.Info()
	})
	m.updateRunning()
	if !found {
		// terminated: the terminator records the outcome
		return
	}
	m.logger.Info("llama-server exited", "id", id, "model", name, "code", code, "status", info.Status.String())
	metrics.IncExit(name, info.Status.String())
	m.emit(history.EventExit, info)
}

// exitState maps the result of Wait to a terminal status. Exits and
// signals are Stopped; a failed wait is Failed.
func exitState(waitErr error) process.Status {
	if waitErr != nil {
		return process.StatusFailed
	}
	return process.StatusStopped
}

func (m *Manager) readStream(id string, r io.Reader, tag string, out chan<- outputLine, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for sc.Scan() {
		out <- outputLine{tag: tag, text: sc.Text()}
	}
	if err := sc.Err(); err != nil && !isClosedPipe(err) {
		m.logger.Warn("output stream read failed", "id", id, "stream", tag, "error", err)
		// keep the pipe drained so the process never blocks on a full buffer
		_, _ = io.Copy(io.Discard, r)
	}
}

func isClosedPipe(err error) bool {
	return errors.Is(err, fs.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed)
}

func (m *Manager) mirrors(id, name string) (io.WriteCloser, io.WriteCloser) {
	if !m.output.MirrorsOutput() {
		return nil, nil
	}
	outW, errW, err := m.output.ProcessWriters(fmt.Sprintf("%s-%s", name, shortID(id)))
	if err != nil {
		m.logger.Warn("cannot open output mirror files", "id", id, "error", err)
		return nil, nil
	}
	return outW, errW
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func closeAll(ws ...io.WriteCloser) {
	for _, w := range ws {
		if w != nil {
			_ = w.Close()
		}
	}
}
