package process

// MaxOutputLines bounds the number of retained output lines per process.
const MaxOutputLines = 1000

// Line tags applied by the output pump.
const (
	TagStdout = "[OUT] "
	TagStderr = "[INFO] "
)

// OutputLog is an append-only, size-bounded line buffer. Line numbers are
// absolute: the first line ever appended is 0 and numbering is unaffected
// by trimming, so cursors held by pollers stay valid.
type OutputLog struct {
	lines   []string
	dropped int // lines trimmed from the front
	limit   int
}

func NewOutputLog(limit int) *OutputLog {
	if limit <= 0 {
		limit = MaxOutputLines
	}
	return &OutputLog{limit: limit}
}

func (l *OutputLog) Append(line string) {
	l.lines = append(l.lines, line)
	if over := len(l.lines) - l.limit; over > 0 {
		// copy down so the backing array does not grow without bound
		n := copy(l.lines, l.lines[over:])
		clear(l.lines[n:])
		l.lines = l.lines[:n]
		l.dropped += over
	}
}

// Len returns the number of retained lines.
func (l *OutputLog) Len() int { return len(l.lines) }

// Total returns the absolute number of lines ever appended.
func (l *OutputLog) Total() int { return l.dropped + len(l.lines) }

// Lines returns a copy of the retained lines.
func (l *OutputLog) Lines() []string {
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

// Since returns copies of the retained lines with absolute index >= cursor
// and the cursor to use next time. A cursor pointing at trimmed lines is
// clamped to the oldest retained line.
func (l *OutputLog) Since(cursor int) ([]string, int) {
	if cursor < l.dropped {
		cursor = l.dropped
	}
	next := l.Total()
	if cursor >= next {
		return nil, next
	}
	src := l.lines[cursor-l.dropped:]
	out := make([]string, len(src))
	copy(out, src)
	return out, next
}
