package logging

import (
	"io"
	"sync"

	"go.uber.org/zap"
)

type LogsExporter interface {
	Export(io.Writer, bool) error
}

type logLine []byte

// memoryLogs keeps the last len(lines) log lines in a ring
type memoryLogs struct {
	mutex sync.Mutex
	lines []logLine
	w     int
	count int
}

func NewMemoryLogger(size int) zap.Sink {
	return &memoryLogs{
		lines: make([]logLine, size),
	}
}

func (m *memoryLogs) Write(p []byte) (n int, err error) {
	l := make(logLine, len(p))
	copy(l, p)
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.lines[m.w] = l
	m.w = (m.w + 1) % len(m.lines)
	if m.count < len(m.lines) {
		m.count++
	}
	return len(p), nil
}

func (m *memoryLogs) Sync() error {
	return nil
}

func (m *memoryLogs) Close() error {
	return nil
}

func (m *memoryLogs) Export(w io.Writer, revert bool) error {
	m.mutex.Lock()
	snapshot := make([]logLine, 0, m.count)
	start := (m.w - m.count + len(m.lines)) % len(m.lines)
	for i := 0; i < m.count; i++ {
		snapshot = append(snapshot, m.lines[(start+i)%len(m.lines)])
	}
	m.mutex.Unlock()

	if revert {
		for i := len(snapshot) - 1; i >= 0; i-- {
			if _, err := w.Write(snapshot[i]); err != nil {
				return err
			}
		}
		return nil
	}
	for _, l := range snapshot {
		if _, err := w.Write(l); err != nil {
			return err
		}
	}
	return nil
}
