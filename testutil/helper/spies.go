package helper

import (
	"sync"
	"time"
)

// LogEntry is one captured log call.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// LoggerSpy implements asofreads.Logger and records every call for
// assertions. Safe for concurrent use.
type LoggerSpy struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewLoggerSpy creates an empty logger spy.
func NewLoggerSpy() *LoggerSpy {
	return &LoggerSpy{}
}

// Debug records a debug call.
func (s *LoggerSpy) Debug(msg string, args ...any) { s.record("debug", msg, args) }

// Info records an info call.
func (s *LoggerSpy) Info(msg string, args ...any) { s.record("info", msg, args) }

// Warn records a warn call.
func (s *LoggerSpy) Warn(msg string, args ...any) { s.record("warn", msg, args) }

// Error records an error call.
func (s *LoggerSpy) Error(msg string, args ...any) { s.record("error", msg, args) }

func (s *LoggerSpy) record(level, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

// Entries returns a copy of all captured entries.
func (s *LoggerSpy) Entries() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]LogEntry, len(s.entries))
	copy(out, s.entries)

	return out
}

// HasMessage reports whether any entry carries the given message.
func (s *LoggerSpy) HasMessage(msg string) bool {
	for _, entry := range s.Entries() {
		if entry.Msg == msg {
			return true
		}
	}

	return false
}

// RecordedMetric is one captured metrics call.
type RecordedMetric struct {
	Kind     string // "duration", "counter", or "value"
	Metric   string
	Duration time.Duration
	Value    float64
	Labels   map[string]string
}

// MetricsCollectorSpy implements asofreads.MetricsCollector and records every
// call for assertions. Safe for concurrent use.
type MetricsCollectorSpy struct {
	mu       sync.Mutex
	recorded []RecordedMetric
}

// NewMetricsCollectorSpy creates an empty metrics spy.
func NewMetricsCollectorSpy() *MetricsCollectorSpy {
	return &MetricsCollectorSpy{}
}

// RecordDuration records a duration metric.
func (s *MetricsCollectorSpy) RecordDuration(metric string, duration time.Duration, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recorded = append(s.recorded, RecordedMetric{Kind: "duration", Metric: metric, Duration: duration, Labels: labels})
}

// IncrementCounter records a counter increment.
func (s *MetricsCollectorSpy) IncrementCounter(metric string, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recorded = append(s.recorded, RecordedMetric{Kind: "counter", Metric: metric, Labels: labels})
}

// RecordValue records a value metric.
func (s *MetricsCollectorSpy) RecordValue(metric string, value float64, labels map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recorded = append(s.recorded, RecordedMetric{Kind: "value", Metric: metric, Value: value, Labels: labels})
}

// Recorded returns a copy of all captured metrics.
func (s *MetricsCollectorSpy) Recorded() []RecordedMetric {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RecordedMetric, len(s.recorded))
	copy(out, s.recorded)

	return out
}

// CounterTotal returns how often the given counter metric was incremented.
func (s *MetricsCollectorSpy) CounterTotal(metric string) int {
	total := 0

	for _, m := range s.Recorded() {
		if m.Kind == "counter" && m.Metric == metric {
			total++
		}
	}

	return total
}
