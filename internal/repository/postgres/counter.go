package postgres

import (
	"context"

	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/postgres"
)

type counterRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewCounterRepository(db *postgres.DB, logger *logger.Logger) serialcode.CounterRepository {
	return &counterRepository{db: db, logger: logger}
}

// IssueNext relies on the row lock taken by the upsert, so concurrent callers
// on one key serialize inside postgres and never observe the same value.
func (r *counterRepository) IssueNext(ctx context.Context, key serialcode.SequenceKey) (int, error) {
	span := StartRepositorySpan(ctx, "counter", "issue_next", map[string]interface{}{
		"key": key.String(),
	})
	defer FinishSpan(span)

	query := `
	INSERT INTO serial_code_counters (
		prefix, tenant_code, stage, year, last_issued, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, 1, NOW(), NOW()
	)
	ON CONFLICT (prefix, tenant_code, stage, year)
	DO UPDATE SET
		last_issued = serial_code_counters.last_issued + 1,
		updated_at = NOW()
	RETURNING last_issued
	`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var next int
	err := r.db.GetQuerier(ctx).GetContext(ctx, &next, query, key.Prefix, key.TenantCode, key.Stage, key.Year)
	if err != nil {
		wrappedErr := postgres.TranslateError(err, "issue next sequence")
		SetSpanError(span, wrappedErr)
		return 0, wrappedErr
	}

	SetSpanSuccess(span)
	return next, nil
}

func (r *counterRepository) PeekNext(ctx context.Context, key serialcode.SequenceKey) (int, error) {
	span := StartRepositorySpan(ctx, "counter", "peek_next", map[string]interface{}{
		"key": key.String(),
	})
	defer FinishSpan(span)

	query := `
	SELECT COALESCE((
		SELECT last_issued FROM serial_code_counters
		WHERE prefix = $1 AND tenant_code = $2 AND stage = $3 AND year = $4
	), 0) + 1
	`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var next int
	err := r.db.GetQuerier(ctx).GetContext(ctx, &next, query, key.Prefix, key.TenantCode, key.Stage, key.Year)
	if err != nil {
		wrappedErr := postgres.TranslateError(err, "peek next sequence")
		SetSpanError(span, wrappedErr)
		return 0, wrappedErr
	}

	SetSpanSuccess(span)
	return next, nil
}
