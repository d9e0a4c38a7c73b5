package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // driver import
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	jsoniter "github.com/json-iterator/go"

	"github.com/asofreads/mvcc-asof-reads-go/asofreads"
	"github.com/asofreads/mvcc-asof-reads-go/asofreads/postgresengine/internal/adapters"
)

const (
	defaultFunctionName = "asof_execute"

	logMsgQueryCompleted    = "as-of query completed"
	logMsgQueryRejected     = "as-of query rejected before execution"
	logMsgDBQueryFailed     = "database query execution failed"
	logMsgCloseRowsFailed   = "failed to close database rows"
	logMsgScanRowFailed     = "failed to scan database row"
	logMsgDecodeRowsFailed  = "failed to decode jsonb result document"
	logMsgResultShapeBroken = "aggregation step returned unexpected row count"
	logMsgSQLExecuted       = "executed sql for: "
	logAttrError            = "error"
	logAttrQuery            = "query"
	logAttrSnapshot         = "snapshot"
	logAttrRowCount         = "row_count"
	logAttrDurationMS       = "duration_ms"

	metricQueryDuration = "asofreads_pg_query_duration"
	metricQueryErrors   = "asofreads_pg_query_errors"

	labelOperation   = "operation"
	labelStatus      = "status"
	labelErrorType   = "error_type"
	operationExecute = "execute"
	statusOK         = "ok"
	statusError      = "error"

	spanNameExecute = "asofreads.postgres.execute"

	dialectPostgres = "postgres"
	aggregateExpr   = "COALESCE(json_agg(row_to_json(q)), '[]'::json)::jsonb"
)

var (
	// ErrNilDatabaseConnection is returned when a gateway is constructed
	// without a database connection.
	ErrNilDatabaseConnection = errors.New("nil database connection supplied")

	// ErrEmptyFunctionName is returned when an empty server function name is
	// configured.
	ErrEmptyFunctionName = errors.New("empty server function name supplied")
)

// Gateway executes read-only queries against Postgres with the database
// observed exactly as it existed under a historical snapshot. The snapshot
// install/uninstall happens inside the server-side companion function, scoped
// to exactly one query; the gateway holds no cross-call state.
type Gateway struct {
	db               adapters.DBAdapter
	functionName     string
	logger           asofreads.Logger
	contextualLogger asofreads.ContextualLogger
	metricsCollector asofreads.MetricsCollector
	tracingCollector asofreads.TracingCollector
}

// NewGatewayFromPGXPool creates a Gateway using a pgx pool with optional
// configuration.
func NewGatewayFromPGXPool(pool *pgxpool.Pool, options ...Option) (Gateway, error) {
	if pool == nil {
		return Gateway{}, ErrNilDatabaseConnection
	}

	return buildGateway(adapters.NewPGXAdapter(pool), options)
}

// NewGatewayFromPGXPoolWithReplica creates a Gateway that routes the as-of
// reads to a replica pool. The replica must retain the historical versions
// the snapshots refer to.
func NewGatewayFromPGXPoolWithReplica(pool, replica *pgxpool.Pool, options ...Option) (Gateway, error) {
	if pool == nil || replica == nil {
		return Gateway{}, ErrNilDatabaseConnection
	}

	return buildGateway(adapters.NewPGXAdapterWithReplica(pool, replica), options)
}

// NewGatewayFromSQLDB creates a Gateway using a sql.DB with optional
// configuration.
func NewGatewayFromSQLDB(db *sql.DB, options ...Option) (Gateway, error) {
	if db == nil {
		return Gateway{}, ErrNilDatabaseConnection
	}

	return buildGateway(adapters.NewSQLAdapter(db), options)
}

// NewGatewayFromSQLX creates a Gateway using a sqlx.DB with optional
// configuration.
func NewGatewayFromSQLX(db *sqlx.DB, options ...Option) (Gateway, error) {
	if db == nil {
		return Gateway{}, ErrNilDatabaseConnection
	}

	return buildGateway(adapters.NewSQLXAdapter(db), options)
}

func buildGateway(db adapters.DBAdapter, options []Option) (Gateway, error) {
	gw := Gateway{
		db:           db,
		functionName: defaultFunctionName,
	}

	for _, option := range options {
		if err := option(&gw); err != nil {
			return Gateway{}, err
		}
	}

	return gw, nil
}

// Execute runs one read-only query under the given historical snapshot and
// returns all result rows in order, an empty slice if there are none.
//
// The snapshot text is decoded and re-encoded so only canonical text ever
// reaches the server (asofreads.ErrMalformedSnapshot on failure), and the
// query is classified before any execution attempt
// (asofreads.ErrNotReadOnly). Arguments bind positionally, all as text; a
// NULL argument stays NULL. Server-side failures surface wrapped in
// asofreads.ErrExecutionFailed; the server function uninstalls its snapshot
// on every path, so no failure leaks visibility state.
func (gw Gateway) Execute(
	ctx context.Context,
	snapshotText string,
	sqlText string,
	args []asofreads.ArgValue,
) (asofreads.Rows, error) {

	if gw.tracingCollector == nil {
		return gw.execute(ctx, snapshotText, sqlText, args)
	}

	spanCtx, span := gw.tracingCollector.StartSpan(ctx, spanNameExecute, map[string]string{
		labelOperation: operationExecute,
	})

	rows, err := gw.execute(spanCtx, snapshotText, sqlText, args)

	if err != nil {
		gw.tracingCollector.FinishSpan(span, statusError, map[string]string{labelErrorType: errorLabel(err)})
	} else {
		gw.tracingCollector.FinishSpan(span, statusOK, nil)
	}

	return rows, err
}

func (gw Gateway) execute(
	ctx context.Context,
	snapshotText string,
	sqlText string,
	args []asofreads.ArgValue,
) (asofreads.Rows, error) {

	hist, decodeErr := asofreads.DecodeSnapshot(snapshotText)
	if decodeErr != nil {
		gw.logError(ctx, logMsgQueryRejected, decodeErr, logAttrSnapshot, snapshotText)
		gw.recordError(decodeErr)

		return nil, decodeErr
	}

	if !asofreads.IsReadQuery(sqlText) {
		gw.logError(ctx, logMsgQueryRejected, asofreads.ErrNotReadOnly, logAttrQuery, sqlText)
		gw.recordError(asofreads.ErrNotReadOnly)

		return nil, asofreads.ErrNotReadOnly
	}

	wrappedSQL, buildErr := gw.buildWrappedQuery(sqlText)
	if buildErr != nil {
		return nil, buildErr
	}

	argsJSON, marshalErr := marshalArgs(args)
	if marshalErr != nil {
		return nil, marshalErr
	}

	callSQL := fmt.Sprintf("SELECT %s($1::text, $2::text, $3::jsonb)", gw.functionName)

	start := time.Now()
	document, queryErr := gw.querySingleDocument(ctx, callSQL, hist.Encode(), wrappedSQL, argsJSON)
	duration := time.Since(start)

	gw.logQueryWithDuration(callSQL, duration)
	gw.recordDuration(duration, queryErr)

	if queryErr != nil {
		return nil, queryErr
	}

	rows, decodeRowsErr := decodeRows(document)
	if decodeRowsErr != nil {
		gw.logError(ctx, logMsgDecodeRowsFailed, decodeRowsErr)
		gw.recordError(decodeRowsErr)

		return nil, decodeRowsErr
	}

	gw.logCompleted(ctx, len(rows), duration)

	return rows, nil
}

// buildWrappedQuery wraps the user query so the server aggregates all result
// rows into a single jsonb document.
func (gw Gateway) buildWrappedQuery(sqlText string) (string, error) {
	stmt := goqu.Dialect(dialectPostgres).
		From(goqu.L("(" + sqlText + ") AS q")).
		Select(goqu.L(aggregateExpr))

	wrappedSQL, _, toSQLErr := stmt.ToSQL()
	if toSQLErr != nil {
		return "", errors.Join(asofreads.ErrExecutionFailed, toSQLErr)
	}

	return wrappedSQL, nil
}

// querySingleDocument executes the server function call and returns the one
// jsonb document the aggregation step produces. Any other row count is an
// internal-invariant failure surfaced as ErrUnexpectedResultShape.
func (gw Gateway) querySingleDocument(ctx context.Context, callSQL string, callArgs ...any) ([]byte, error) {
	rows, queryErr := gw.db.Query(ctx, callSQL, callArgs...)
	if queryErr != nil {
		gw.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, callSQL)
		gw.recordError(queryErr)

		return nil, errors.Join(asofreads.ErrExecutionFailed, queryErr)
	}
	defer gw.closeRows(rows)

	var document []byte
	rowCount := 0

	for rows.Next() {
		rowCount++

		if rowCount > 1 {
			continue
		}

		if scanErr := rows.Scan(&document); scanErr != nil {
			gw.logError(ctx, logMsgScanRowFailed, scanErr)
			gw.recordError(scanErr)

			return nil, errors.Join(asofreads.ErrExecutionFailed, scanErr)
		}
	}

	if iterErr := rows.Err(); iterErr != nil {
		gw.logError(ctx, logMsgDBQueryFailed, iterErr, logAttrQuery, callSQL)
		gw.recordError(iterErr)

		return nil, errors.Join(asofreads.ErrExecutionFailed, iterErr)
	}

	if rowCount != 1 {
		shapeErr := fmt.Errorf("%w: expected 1 result row, got %d", asofreads.ErrUnexpectedResultShape, rowCount)
		gw.logError(ctx, logMsgResultShapeBroken, shapeErr)
		gw.recordError(shapeErr)

		return nil, shapeErr
	}

	return document, nil
}

// marshalArgs renders the positional arguments as the JSON array the server
// function expects: text values, with NULL arguments as JSON null.
func marshalArgs(args []asofreads.ArgValue) (string, error) {
	values := make([]any, len(args))

	for i, arg := range args {
		if arg.Null {
			continue
		}

		values[i] = arg.Text
	}

	argsJSON, marshalErr := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(values)
	if marshalErr != nil {
		return "", errors.Join(asofreads.ErrExecutionFailed, marshalErr)
	}

	return string(argsJSON), nil
}

// decodeRows decodes the aggregated jsonb document into ordered rows.
func decodeRows(document []byte) (asofreads.Rows, error) {
	var rows asofreads.Rows

	if unmarshalErr := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(document, &rows); unmarshalErr != nil {
		return nil, fmt.Errorf("%w: %v", asofreads.ErrUnexpectedResultShape, unmarshalErr)
	}

	if rows == nil {
		rows = asofreads.Rows{}
	}

	return rows, nil
}

func (gw Gateway) closeRows(rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		if gw.logger != nil {
			gw.logger.Warn(logMsgCloseRowsFailed, logAttrError, closeErr.Error())
		}
	}
}

// logQueryWithDuration logs the executed call at debug level if the logger is
// configured.
func (gw Gateway) logQueryWithDuration(callSQL string, duration time.Duration) {
	if gw.logger != nil {
		gw.logger.Debug(logMsgSQLExecuted+operationExecute,
			logAttrDurationMS, toMilliseconds(duration),
			logAttrQuery, callSQL)
	}
}

func (gw Gateway) logCompleted(ctx context.Context, rowCount int, duration time.Duration) {
	if gw.contextualLogger != nil {
		gw.contextualLogger.InfoContext(ctx, logMsgQueryCompleted,
			logAttrRowCount, rowCount,
			logAttrDurationMS, toMilliseconds(duration))
		return
	}

	if gw.logger != nil {
		gw.logger.Info(logMsgQueryCompleted,
			logAttrRowCount, rowCount,
			logAttrDurationMS, toMilliseconds(duration))
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

func (gw Gateway) recordDuration(duration time.Duration, err error) {
	if gw.metricsCollector == nil {
		return
	}

	status := statusOK
	if err != nil {
		status = statusError
	}

	gw.metricsCollector.RecordDuration(metricQueryDuration, duration, map[string]string{
		labelOperation: operationExecute,
		labelStatus:    status,
	})
}

func (gw Gateway) recordError(err error) {
	if gw.metricsCollector == nil {
		return
	}

	gw.metricsCollector.IncrementCounter(metricQueryErrors, map[string]string{
		labelOperation: operationExecute,
		labelErrorType: errorLabel(err),
	})
}

// errorLabel maps an error to a stable label for metrics.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, asofreads.ErrMalformedSnapshot):
		return "malformed_snapshot"
	case errors.Is(err, asofreads.ErrNotReadOnly):
		return "not_read_only"
	case errors.Is(err, asofreads.ErrUnexpectedResultShape):
		return "result_shape"
	default:
		return "execution"
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3
// decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
