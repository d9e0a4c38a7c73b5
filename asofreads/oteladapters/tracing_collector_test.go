package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/asofreads/mvcc-asof-reads-go/asofreads/oteladapters"
)

func newCollectorWithExporter() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter) {
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter
}

func Test_TracingCollector_StartAndFinishSpan(t *testing.T) {
	// arrange
	collector, exporter := newCollectorWithExporter()

	// act
	ctx, spanCtx := collector.StartSpan(context.Background(), "asofreads.execute", map[string]string{
		"operation": "execute",
		"query_id":  "q-1",
	})
	assert.NotNil(t, ctx)
	assert.NotNil(t, spanCtx)

	collector.FinishSpan(spanCtx, "ok", map[string]string{"row_count": "3"})

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "asofreads.execute", span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)
	assertSpanHasAttribute(t, span, "operation", "execute")
	assertSpanHasAttribute(t, span, "query_id", "q-1")
	assertSpanHasAttribute(t, span, "row_count", "3")
}

func Test_TracingCollector_StatusMapping(t *testing.T) {
	collector, exporter := newCollectorWithExporter()

	tests := []struct {
		status              string
		expectedCode        codes.Code
		expectedDescription string
	}{
		{status: "ok", expectedCode: codes.Ok, expectedDescription: ""},
		{status: "error", expectedCode: codes.Error, expectedDescription: "operation failed"},
		{status: "canceled", expectedCode: codes.Error, expectedDescription: "operation canceled"},
	}

	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			// arrange
			exporter.Reset()

			// act
			_, spanCtx := collector.StartSpan(context.Background(), "test", nil)
			collector.FinishSpan(spanCtx, tc.status, nil)

			// assert
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.expectedCode, spans[0].Status.Code)
			assert.Equal(t, tc.expectedDescription, spans[0].Status.Description)
		})
	}
}

func Test_TracingCollector_UnknownStatusBecomesAttribute(t *testing.T) {
	// arrange
	collector, exporter := newCollectorWithExporter()

	// act
	_, spanCtx := collector.StartSpan(context.Background(), "test", nil)
	collector.FinishSpan(spanCtx, "unknown_status", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assertSpanHasAttribute(t, spans[0], "status", "unknown_status")
}

func Test_TracingCollector_ForeignSpanContextIsIgnored(t *testing.T) {
	// arrange
	collector, exporter := newCollectorWithExporter()

	// act + assert
	assert.NotPanics(t, func() {
		collector.FinishSpan(&foreignSpanContext{}, "ok", map[string]string{"test": "value"})
	})
	assert.Empty(t, exporter.GetSpans())
}

func Test_TracingCollector_ContextPropagation(t *testing.T) {
	// arrange
	exporter := tracetest.NewInMemoryExporter()
	provider := trace.NewTracerProvider(trace.WithSyncer(exporter))
	tracer := provider.Tracer("test")
	collector := oteladapters.NewTracingCollector(tracer)

	parentCtx, parentSpan := tracer.Start(context.Background(), "parent-operation")
	defer parentSpan.End()

	// act
	childCtx, childSpanCtx := collector.StartSpan(parentCtx, "child-operation", nil)
	collector.FinishSpan(childSpanCtx, "ok", nil)

	// assert
	assert.NotEqual(t, parentCtx, childCtx)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "child-operation", spans[0].Name)
	assert.Equal(t, parentSpan.SpanContext().SpanID(), spans[0].Parent.SpanID())
}

func Test_SpanContext_Methods(t *testing.T) {
	// arrange
	collector, exporter := newCollectorWithExporter()

	_, spanCtx := collector.StartSpan(context.Background(), "test-span", nil)

	// act
	spanCtx.AddAttribute("test_key", "test_value")
	spanCtx.SetStatus("ok")
	collector.FinishSpan(spanCtx, "ok", nil)

	// assert
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assertSpanHasAttribute(t, spans[0], "test_key", "test_value")
}

// foreignSpanContext implements asofreads.SpanContext without wrapping an
// OpenTelemetry span.
type foreignSpanContext struct{}

func (m *foreignSpanContext) SetStatus(_ string)       {}
func (m *foreignSpanContext) AddAttribute(_, _ string) {}

func assertSpanHasAttribute(t *testing.T, span tracetest.SpanStub, key, expectedValue string) {
	t.Helper()

	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) && attr.Value.AsString() == expectedValue {
			return
		}
	}

	assert.Fail(t, "missing span attribute", "%s=%s", key, expectedValue)
}
