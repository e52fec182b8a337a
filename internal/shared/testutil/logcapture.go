package testutil

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// LogRecord is a captured log entry with its attributes flattened
type LogRecord struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogCapture is a slog.Handler that keeps every record in memory
type LogCapture struct {
	mu      *sync.Mutex
	records *[]LogRecord
	attrs   []slog.Attr
	t       testing.TB
}

// NewTestLogger returns a logger whose output is captured by the handler
func NewTestLogger(t testing.TB) (*slog.Logger, *LogCapture) {
	h := &LogCapture{mu: &sync.Mutex{}, records: &[]LogRecord{}, t: t}
	return slog.New(h), h
}

// Enabled captures every level
func (h *LogCapture) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler
func (h *LogCapture) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, LogRecord{Level: r.Level, Message: r.Message, Attrs: attrs})
	h.mu.Unlock()

	h.t.Logf("[%s] %s %v", r.Level, r.Message, attrs)
	return nil
}

// WithAttrs shares the record buffer with the parent handler
func (h *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

// WithGroup is a no-op; groups are not used by the tests
func (h *LogCapture) WithGroup(string) slog.Handler { return h }

// Records returns a snapshot of the captured records
func (h *LogCapture) Records() []LogRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]LogRecord(nil), *h.records...)
}

// Find returns the first record with message, if any
func (h *LogCapture) Find(message string) (LogRecord, bool) {
	for _, r := range h.Records() {
		if r.Message == message {
			return r, true
		}
	}
	return LogRecord{}, false
}

// AssertLogged fails the test unless a record with message was logged at level
func AssertLogged(t testing.TB, h *LogCapture, level slog.Level, message string) LogRecord {
	t.Helper()
	for _, r := range h.Records() {
		if r.Message == message && r.Level == level {
			return r
		}
	}
	assert.Failf(t, "log record not found", "no %s record %q", level, message)
	return LogRecord{}
}
