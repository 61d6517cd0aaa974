package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shahin-grc/serialcode/internal/logger"
)

// slowQuery is the duration above which a completed query is logged at warn
const slowQuery = 250 * time.Millisecond

// TracedQuerier logs every statement with its duration and the id of the
// enclosing transaction. Arguments are not logged since metadata may carry
// caller data.
type TracedQuerier struct {
	Querier
	logger *logger.Logger
	txID   string
}

func NewTracedQuerier(q Querier, logger *logger.Logger, txID string) *TracedQuerier {
	return &TracedQuerier{
		Querier: q,
		logger:  logger,
		txID:    txID,
	}
}

func (tq *TracedQuerier) trace(query string, start time.Time, err error) {
	elapsed := time.Since(start)
	fields := []interface{}{
		"query", query,
		"duration_ms", elapsed.Milliseconds(),
	}
	if tq.txID != "" {
		fields = append(fields, "tx_id", tq.txID)
	}

	switch {
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		tq.logger.Errorw("query failed", append(fields, "error", err)...)
	case elapsed >= slowQuery:
		tq.logger.Warnw("slow query", fields...)
	default:
		tq.logger.Debugw("query completed", fields...)
	}
}

func (tq *TracedQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := tq.Querier.ExecContext(ctx, query, args...)
	tq.trace(query, start, err)
	return result, err
}

func (tq *TracedQuerier) NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := tq.Querier.NamedExecContext(ctx, query, arg)
	tq.trace(query, start, err)
	return result, err
}

func (tq *TracedQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	start := time.Now()
	rows, err := tq.Querier.QueryContext(ctx, query, args...)
	tq.trace(query, start, err)
	return rows, err
}

// QueryRowContext defers errors to Scan, so only the latency is traced
func (tq *TracedQuerier) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	start := time.Now()
	row := tq.Querier.QueryRowContext(ctx, query, args...)
	tq.trace(query, start, nil)
	return row
}

func (tq *TracedQuerier) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := tq.Querier.GetContext(ctx, dest, query, args...)
	tq.trace(query, start, err)
	return err
}

func (tq *TracedQuerier) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := tq.Querier.SelectContext(ctx, dest, query, args...)
	tq.trace(query, start, err)
	return err
}
