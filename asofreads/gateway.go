package asofreads

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

const (
	logMsgQueryCompleted     = "as-of query completed"
	logMsgQueryRejected      = "as-of query rejected before execution"
	logMsgExecutionFailed    = "read execution failed under overlay"
	logMsgCloseSessionFailed = "failed to close read session"
	logMsgStartSessionFailed = "failed to start read session"
	logMsgBaseSnapshotFailed = "failed to fetch base snapshot"
	logAttrError             = "error"
	logAttrQueryID           = "query_id"
	logAttrRowCount          = "row_count"
	logAttrDurationMS        = "duration_ms"
	logAttrArgCount          = "arg_count"

	metricQueryDuration = "asofreads_query_duration"
	metricQueryErrors   = "asofreads_query_errors"

	spanNameExecute   = "asofreads.execute"
	spanAttrOperation = "operation"
	spanAttrQueryID   = "query_id"
	spanAttrErrorType = "error_type"
	operationExecute  = "execute"
)

// Gateway executes one read-only query under an installed historical snapshot,
// end to end: decode, classify, build and install the effective snapshot,
// execute, collect rows, and tear the overlay down unconditionally.
//
// Every call is independent: the gateway touches no global or cross-call
// state, and concurrent calls each own their session and effective snapshot.
type Gateway struct {
	engine           Engine
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

// GatewayOption defines a functional option for configuring a Gateway.
type GatewayOption func(*Gateway) error

// WithGatewayLogger sets the logger for the Gateway.
//
// Debug level: per-query timing (development use)
// Info level: completed queries with row counts (production-safe)
// Warn level: non-critical issues like session close failures
// Error level: execution failures.
func WithGatewayLogger(logger Logger) GatewayOption {
	return func(gw *Gateway) error {
		gw.logger = logger
		return nil
	}
}

// WithGatewayContextualLogger sets a context-aware logger with automatic
// trace correlation.
func WithGatewayContextualLogger(logger ContextualLogger) GatewayOption {
	return func(gw *Gateway) error {
		gw.contextualLogger = logger
		return nil
	}
}

// WithGatewayMetrics sets the metrics collector for the Gateway. It receives
// query durations and error counters.
func WithGatewayMetrics(collector MetricsCollector) GatewayOption {
	return func(gw *Gateway) error {
		gw.metricsCollector = collector
		return nil
	}
}

// WithGatewayTracing sets the tracing collector for the Gateway. Each call is
// wrapped in one span.
func WithGatewayTracing(collector TracingCollector) GatewayOption {
	return func(gw *Gateway) error {
		gw.tracingCollector = collector
		return nil
	}
}

// NewGateway creates a Gateway over the given storage engine with optional
// configuration.
func NewGateway(engine Engine, options ...GatewayOption) (Gateway, error) {
	if engine == nil {
		return Gateway{}, ErrNilEngine
	}

	gw := Gateway{engine: engine}

	for _, option := range options {
		if err := option(&gw); err != nil {
			return Gateway{}, err
		}
	}

	return gw, nil
}

// Execute runs one read-only query with the database observed exactly as it
// existed under the given historical snapshot.
//
// The snapshot text is decoded first (ErrMalformedSnapshot), the query is
// classified (ErrNotReadOnly: it must start with SELECT or WITH), then an
// effective snapshot is built from the session's ambient base and installed
// for this call only. Arguments bind positionally to $1, $2, ... placeholders,
// all as opaque text. Execution errors surface wrapped in ErrExecutionFailed,
// with the overlay guaranteed uninstalled regardless; cancellation likewise
// uninstalls before the call returns. Returns all result rows in order, an
// empty slice if there are none. No failure is ever retried: retrying under a
// silently changed snapshot would break the point-in-time contract.
func (gw Gateway) Execute(ctx context.Context, snapshotText string, sql string, args []ArgValue) (Rows, error) {
	queryID := uuid.NewString()
	start := time.Now()

	ctx, span := gw.startSpan(ctx, queryID)

	hist, decodeErr := DecodeSnapshot(snapshotText)
	if decodeErr != nil {
		gw.rejected(ctx, span, queryID, decodeErr)
		return nil, decodeErr
	}

	if !IsReadQuery(sql) {
		gw.rejected(ctx, span, queryID, ErrNotReadOnly)
		return nil, ErrNotReadOnly
	}

	rows, execErr := gw.executeUnderOverlay(ctx, queryID, hist, sql, args)

	duration := time.Since(start)
	gw.recordDuration(duration, execErr)

	if execErr != nil {
		gw.finishSpan(span, statusFor(execErr), map[string]string{spanAttrErrorType: errorType(execErr)})
		return nil, execErr
	}

	gw.logCompleted(ctx, queryID, len(rows), duration, len(args))
	gw.finishSpan(span, statusOK, nil)

	return rows, nil
}

// executeUnderOverlay is the bounded scope: session, base snapshot, overlay
// install, read, and unconditional teardown.
func (gw Gateway) executeUnderOverlay(
	ctx context.Context,
	queryID string,
	hist HistoricalSnapshot,
	sql string,
	args []ArgValue,
) (Rows, error) {

	session, startErr := gw.engine.StartReadSession(ctx)
	if startErr != nil {
		gw.logError(ctx, logMsgStartSessionFailed, startErr, logAttrQueryID, queryID)
		return nil, errors.Join(ErrExecutionFailed, startErr)
	}
	defer gw.closeSession(ctx, session)

	base, baseErr := session.BaseSnapshot(ctx)
	if baseErr != nil {
		gw.logError(ctx, logMsgBaseSnapshotFailed, baseErr, logAttrQueryID, queryID)
		return nil, errors.Join(ErrExecutionFailed, baseErr)
	}

	effective := BuildEffectiveSnapshot(base, hist)

	if installErr := session.InstallOverlay(effective); installErr != nil {
		return nil, errors.Join(ErrExecutionFailed, installErr)
	}
	// The overlay must come down on every exit path: normal return, error, or
	// cancellation. A leaked override would corrupt unrelated later queries.
	defer session.UninstallOverlay()

	rows, execErr := session.ExecuteRead(ctx, sql, args)
	if execErr != nil {
		gw.logError(ctx, logMsgExecutionFailed, execErr, logAttrQueryID, queryID)
		return nil, errors.Join(ErrExecutionFailed, execErr)
	}

	if rows == nil {
		rows = Rows{}
	}

	return rows, nil
}

func (gw Gateway) closeSession(ctx context.Context, session Session) {
	if closeErr := session.Close(ctx); closeErr != nil {
		if gw.logger != nil {
			gw.logger.Warn(logMsgCloseSessionFailed, logAttrError, closeErr.Error())
		}
	}
}

// IsReadQuery reports whether the statement, after leading whitespace,
// case-insensitively starts with a read-query token (SELECT or WITH) followed
// by whitespace or end of text.
func IsReadQuery(sql string) bool {
	trimmed := strings.TrimLeftFunc(sql, unicode.IsSpace)

	for _, token := range []string{"select", "with"} {
		if len(trimmed) < len(token) {
			continue
		}

		if !strings.EqualFold(trimmed[:len(token)], token) {
			continue
		}

		rest := trimmed[len(token):]
		if rest == "" || unicode.IsSpace(rune(rest[0])) {
			return true
		}
	}

	return false
}

func (gw Gateway) startSpan(ctx context.Context, queryID string) (context.Context, SpanContext) {
	if gw.tracingCollector == nil {
		return ctx, nil
	}

	return gw.tracingCollector.StartSpan(ctx, spanNameExecute, map[string]string{
		spanAttrOperation: operationExecute,
		spanAttrQueryID:   queryID,
	})
}

func (gw Gateway) finishSpan(span SpanContext, status string, attrs map[string]string) {
	if gw.tracingCollector != nil && span != nil {
		gw.tracingCollector.FinishSpan(span, status, attrs)
	}
}

func (gw Gateway) rejected(ctx context.Context, span SpanContext, queryID string, err error) {
	gw.logError(ctx, logMsgQueryRejected, err, logAttrQueryID, queryID)
	gw.recordError(err)
	gw.finishSpan(span, statusError, map[string]string{spanAttrErrorType: errorType(err)})
}

func (gw Gateway) recordDuration(duration time.Duration, err error) {
	if gw.metricsCollector == nil {
		return
	}

	status := statusOK
	if err != nil {
		status = statusFor(err)
	}

	gw.metricsCollector.RecordDuration(metricQueryDuration, duration, map[string]string{
		spanAttrOperation: operationExecute,
		"status":          status,
	})

	if err != nil {
		gw.recordError(err)
	}
}

func (gw Gateway) recordError(err error) {
	if gw.metricsCollector != nil {
		gw.metricsCollector.IncrementCounter(metricQueryErrors, map[string]string{
			spanAttrOperation: operationExecute,
			spanAttrErrorType: errorType(err),
		})
	}
}

func (gw Gateway) logCompleted(ctx context.Context, queryID string, rowCount int, duration time.Duration, argCount int) {
	if gw.contextualLogger != nil {
		gw.contextualLogger.InfoContext(ctx, logMsgQueryCompleted,
			logAttrQueryID, queryID,
			logAttrRowCount, rowCount,
			logAttrDurationMS, durationToMilliseconds(duration),
			logAttrArgCount, argCount)
		return
	}

	if gw.logger != nil {
		gw.logger.Info(logMsgQueryCompleted,
			logAttrQueryID, queryID,
			logAttrRowCount, rowCount,
			logAttrDurationMS, durationToMilliseconds(duration),
			logAttrArgCount, argCount)
	}
}

func (gw Gateway) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if gw.contextualLogger != nil {
		gw.contextualLogger.ErrorContext(ctx, msg, allArgs...)
		return
	}

	if gw.logger != nil {
		gw.logger.Error(msg, allArgs...)
	}
}

// statusFor maps an error to a span/metric status label.
func statusFor(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return statusCanceled
	}

	return statusError
}

// errorType maps an error to a stable label for metrics and span attributes.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrMalformedSnapshot):
		return "malformed_snapshot"
	case errors.Is(err, ErrNotReadOnly):
		return "not_read_only"
	case errors.Is(err, ErrUnexpectedResultShape):
		return "result_shape"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "execution"
	}
}

// durationToMilliseconds converts a time.Duration to float64 milliseconds with
// 3 decimal places.
func durationToMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
