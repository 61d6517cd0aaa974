package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/postgres"
	"github.com/shahin-grc/serialcode/internal/types"
)

type auditRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewAuditRepository(db *postgres.DB, logger *logger.Logger) serialcode.AuditRepository {
	return &auditRepository{db: db, logger: logger}
}

type auditRow struct {
	ID            string         `db:"id"`
	Action        string         `db:"action"`
	Code          string         `db:"code"`
	ReservationID sql.NullString `db:"reservation_id"`
	TenantCode    string         `db:"tenant_code"`
	Actor         string         `db:"actor"`
	RequestID     string         `db:"request_id"`
	Details       types.Metadata `db:"details"`
	CreatedAt     time.Time      `db:"created_at"`
}

func (r *auditRepository) Create(ctx context.Context, e *serialcode.AuditEntry) error {
	span := StartRepositorySpan(ctx, "serial_code_audit", "create", map[string]interface{}{
		"audit_id": e.ID,
		"action":   string(e.Action),
	})
	defer FinishSpan(span)

	query := `
	INSERT INTO serial_code_audit (
		id, action, code, reservation_id, tenant_code, actor, request_id, details, created_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9
	)
	ON CONFLICT (id) DO NOTHING
	`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		e.ID,
		e.Action,
		e.Code,
		nullString(e.ReservationID),
		e.TenantCode,
		e.Actor,
		e.RequestID,
		e.Details,
		e.CreatedAt,
	)
	if err != nil {
		wrappedErr := postgres.TranslateError(err, "create audit entry")
		SetSpanError(span, wrappedErr)
		return wrappedErr
	}

	SetSpanSuccess(span)
	return nil
}

func (r *auditRepository) ListByCodes(ctx context.Context, codes []string) ([]*serialcode.AuditEntry, error) {
	if len(codes) == 0 {
		return []*serialcode.AuditEntry{}, nil
	}

	query := `
	SELECT id, action, code, reservation_id, tenant_code, actor, request_id, details, created_at
	FROM serial_code_audit
	WHERE code = ANY($1)
	ORDER BY created_at ASC, id ASC
	`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var rows []auditRow
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, pq.Array(codes)); err != nil {
		return nil, postgres.TranslateError(err, "list audit entries")
	}

	out := make([]*serialcode.AuditEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, &serialcode.AuditEntry{
			ID:            row.ID,
			Action:        types.SerialCodeAction(row.Action),
			Code:          row.Code,
			ReservationID: stringPtr(row.ReservationID),
			TenantCode:    row.TenantCode,
			Actor:         row.Actor,
			RequestID:     row.RequestID,
			Details:       row.Details,
			CreatedAt:     row.CreatedAt.UTC(),
		})
	}
	return out, nil
}
