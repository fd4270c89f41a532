package process

import (
	"bytes"

	"github.com/kbukum/pipegraph/logger"
)

// lineLogger logs each complete line written to it as a "step output" entry.
// Run serializes writes, so it needs no lock of its own.
type lineLogger struct {
	log      *logger.Logger
	instance string
	step     string
	pending  []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.pending = append(l.pending, p...)
	for {
		i := bytes.IndexByte(l.pending, '\n')
		if i < 0 {
			break
		}
		l.emit(l.pending[:i])
		l.pending = l.pending[i+1:]
	}
	return len(p), nil
}

// Flush logs a trailing line that had no newline.
func (l *lineLogger) Flush() {
	if len(l.pending) > 0 {
		l.emit(l.pending)
		l.pending = nil
	}
}

func (l *lineLogger) emit(line []byte) {
	l.log.Info("step output", logger.Fields(
		logger.FieldInstance, l.instance,
		logger.FieldStep, l.step,
		logger.FieldLine, string(bytes.TrimRight(line, "\r")),
	))
}
