package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Record is one captured log entry.
type Record struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogRecorder collects the records emitted through loggers created by
// NewLogger, so tests can assert on what a component logged. Safe for
// concurrent use.
type LogRecorder struct {
	mu      sync.Mutex
	records []Record
}

// NewLogger returns a logger whose output is captured by the returned
// recorder. All levels are enabled.
func NewLogger() (*slog.Logger, *LogRecorder) {
	rec := &LogRecorder{}
	return slog.New(&recorderHandler{rec: rec}), rec
}

func (r *LogRecorder) add(record Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
}

// Records returns a copy of everything captured so far.
func (r *LogRecorder) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Count returns the number of captured records.
func (r *LogRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Reset discards everything captured so far.
func (r *LogRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = r.records[:0]
}

// Has reports whether a record at the given level contains substr in its
// message.
func (r *LogRecorder) Has(level slog.Level, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.Level == level && strings.Contains(record.Message, substr) {
			return true
		}
	}
	return false
}

// HasAttr reports whether any record carries the given attribute. Keys
// bound inside groups are dotted, e.g. "request.id".
func (r *LogRecorder) HasAttr(key string, value any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if got, ok := record.Attrs[key]; ok && got == value {
			return true
		}
	}
	return false
}

// recorderHandler feeds records into a LogRecorder. Attributes bound
// with With and group prefixes are resolved into each record's Attrs.
type recorderHandler struct {
	rec    *LogRecorder
	prefix string
	attrs  []slog.Attr
}

func (h *recorderHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recorderHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[h.prefix+a.Key] = a.Value.Resolve().Any()
		return true
	})

	h.rec.add(Record{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
	return nil
}

func (h *recorderHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		a.Key = h.prefix + a.Key
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *recorderHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}
