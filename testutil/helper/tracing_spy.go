package helper

import (
	"context"
	"sync"

	"github.com/asofreads/mvcc-asof-reads-go/asofreads"
)

// SpanRecord is one span observed by the TracingCollectorSpy, combined from
// its start and finish calls.
type SpanRecord struct {
	Name        string
	StartAttrs  map[string]string
	Status      string
	FinishAttrs map[string]string
	Finished    bool
}

// spanHandle is the SpanContext handed out by the spy; it indexes back into
// the spy's record slice.
type spanHandle struct {
	spy   *TracingCollectorSpy
	index int
}

func (h *spanHandle) SetStatus(status string) {
	h.spy.mu.Lock()
	defer h.spy.mu.Unlock()

	h.spy.spans[h.index].Status = status
}

func (h *spanHandle) AddAttribute(key, value string) {
	h.spy.mu.Lock()
	defer h.spy.mu.Unlock()

	if h.spy.spans[h.index].FinishAttrs == nil {
		h.spy.spans[h.index].FinishAttrs = make(map[string]string)
	}
	h.spy.spans[h.index].FinishAttrs[key] = value
}

// TracingCollectorSpy implements asofreads.TracingCollector and records every
// span for assertions. Safe for concurrent use.
type TracingCollectorSpy struct {
	mu    sync.Mutex
	spans []SpanRecord
}

// NewTracingCollectorSpy creates an empty tracing spy.
func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{}
}

// StartSpan records a span start and returns a handle to it.
func (s *TracingCollectorSpy) StartSpan(
	ctx context.Context, name string, attrs map[string]string,
) (context.Context, asofreads.SpanContext) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spans = append(s.spans, SpanRecord{Name: name, StartAttrs: attrs})

	return ctx, &spanHandle{spy: s, index: len(s.spans) - 1}
}

// FinishSpan records the span's final status and attributes.
func (s *TracingCollectorSpy) FinishSpan(spanCtx asofreads.SpanContext, status string, attrs map[string]string) {
	handle, isHandle := spanCtx.(*spanHandle)
	if !isHandle {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := &s.spans[handle.index]
	record.Status = status
	record.Finished = true

	for key, value := range attrs {
		if record.FinishAttrs == nil {
			record.FinishAttrs = make(map[string]string)
		}
		record.FinishAttrs[key] = value
	}
}

// Spans returns a copy of all recorded spans.
func (s *TracingCollectorSpy) Spans() []SpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SpanRecord, len(s.spans))
	copy(out, s.spans)

	return out
}
