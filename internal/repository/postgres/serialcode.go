package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/postgres"
	"github.com/shahin-grc/serialcode/internal/types"
)

type serialCodeRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewSerialCodeRepository(db *postgres.DB, logger *logger.Logger) serialcode.Repository {
	return &serialCodeRepository{db: db, logger: logger}
}

const recordColumns = `
		code, prefix, tenant_code, stage, year, sequence, entity_type, entity_id,
		status, version_number, previous_version_code, superseded_by_code,
		reservation_id, metadata, created_at, created_by, updated_at,
		voided_at, void_reason`

type recordRow struct {
	Code                string         `db:"code"`
	Prefix              string         `db:"prefix"`
	TenantCode          string         `db:"tenant_code"`
	Stage               int            `db:"stage"`
	Year                int            `db:"year"`
	Sequence            int            `db:"sequence"`
	EntityType          string         `db:"entity_type"`
	EntityID            sql.NullString `db:"entity_id"`
	Status              string         `db:"status"`
	VersionNumber       int            `db:"version_number"`
	PreviousVersionCode sql.NullString `db:"previous_version_code"`
	SupersededByCode    sql.NullString `db:"superseded_by_code"`
	ReservationID       sql.NullString `db:"reservation_id"`
	Metadata            types.Metadata `db:"metadata"`
	CreatedAt           time.Time      `db:"created_at"`
	CreatedBy           string         `db:"created_by"`
	UpdatedAt           time.Time      `db:"updated_at"`
	VoidedAt            sql.NullTime   `db:"voided_at"`
	VoidReason          sql.NullString `db:"void_reason"`
}

func (row *recordRow) toDomain() *serialcode.Record {
	rec := &serialcode.Record{
		Code: row.Code,
		SequenceKey: serialcode.SequenceKey{
			Prefix:     row.Prefix,
			TenantCode: row.TenantCode,
			Stage:      row.Stage,
			Year:       row.Year,
		},
		Sequence:            row.Sequence,
		EntityType:          row.EntityType,
		EntityID:            row.EntityID.String,
		Status:              types.SerialCodeStatus(row.Status),
		VersionNumber:       row.VersionNumber,
		PreviousVersionCode: stringPtr(row.PreviousVersionCode),
		SupersededByCode:    stringPtr(row.SupersededByCode),
		ReservationID:       stringPtr(row.ReservationID),
		Metadata:            row.Metadata,
		CreatedAt:           row.CreatedAt.UTC(),
		CreatedBy:           row.CreatedBy,
		UpdatedAt:           row.UpdatedAt.UTC(),
		VoidReason:          stringPtr(row.VoidReason),
	}
	if row.VoidedAt.Valid {
		t := row.VoidedAt.Time.UTC()
		rec.VoidedAt = &t
	}
	return rec
}

func (r *serialCodeRepository) Create(ctx context.Context, rec *serialcode.Record) error {
	span := StartRepositorySpan(ctx, "serial_code", "create", map[string]interface{}{
		"code": rec.Code,
	})
	defer FinishSpan(span)

	query := `
	INSERT INTO serial_codes (` + recordColumns + `
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
	)
	`

	var entityID sql.NullString
	if rec.EntityID != "" {
		entityID = sql.NullString{String: rec.EntityID, Valid: true}
	}
	var voidedAt sql.NullTime
	if rec.VoidedAt != nil {
		voidedAt = sql.NullTime{Time: *rec.VoidedAt, Valid: true}
	}

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		rec.Code,
		rec.Prefix,
		rec.TenantCode,
		rec.Stage,
		rec.Year,
		rec.Sequence,
		rec.EntityType,
		entityID,
		rec.Status,
		rec.VersionNumber,
		nullString(rec.PreviousVersionCode),
		nullString(rec.SupersededByCode),
		nullString(rec.ReservationID),
		rec.Metadata,
		rec.CreatedAt,
		rec.CreatedBy,
		rec.UpdatedAt,
		voidedAt,
		nullString(rec.VoidReason),
	)
	if err != nil {
		wrappedErr := postgres.TranslateError(err, "create serial code")
		SetSpanError(span, wrappedErr)
		return wrappedErr
	}

	SetSpanSuccess(span)
	return nil
}

func (r *serialCodeRepository) Get(ctx context.Context, code string) (*serialcode.Record, error) {
	span := StartRepositorySpan(ctx, "serial_code", "get", map[string]interface{}{
		"code": code,
	})
	defer FinishSpan(span)

	query := `SELECT ` + recordColumns + ` FROM serial_codes WHERE code = $1`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var row recordRow
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &row, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			notFound := ierr.WithError(err).
				WithHintf("Serial code %s was not found", code).
				WithReportableDetails(map[string]any{"code": code}).
				Mark(ierr.ErrCodeNotFound)
			SetSpanError(span, notFound)
			return nil, notFound
		}
		wrappedErr := postgres.TranslateError(err, "get serial code")
		SetSpanError(span, wrappedErr)
		return nil, wrappedErr
	}

	SetSpanSuccess(span)
	return row.toDomain(), nil
}

func (r *serialCodeRepository) Exists(ctx context.Context, code string) (bool, error) {
	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var exists bool
	err := r.db.GetQuerier(ctx).GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM serial_codes WHERE code = $1)`, code)
	if err != nil {
		return false, postgres.TranslateError(err, "check serial code")
	}
	return exists, nil
}

func (r *serialCodeRepository) ListByEntity(ctx context.Context, entityType, entityID string) ([]*serialcode.Record, error) {
	span := StartRepositorySpan(ctx, "serial_code", "list_by_entity", map[string]interface{}{
		"entity_type": entityType,
		"entity_id":   entityID,
	})
	defer FinishSpan(span)

	query := `SELECT ` + recordColumns + `
	FROM serial_codes
	WHERE entity_type = $1 AND entity_id = $2
	ORDER BY version_number DESC, created_at DESC`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var rows []recordRow
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, entityType, entityID); err != nil {
		wrappedErr := postgres.TranslateError(err, "list serial codes by entity")
		SetSpanError(span, wrappedErr)
		return nil, wrappedErr
	}

	SetSpanSuccess(span)
	return toRecords(rows), nil
}

func (r *serialCodeRepository) List(ctx context.Context, filter *types.SerialCodeFilter) ([]*serialcode.Record, error) {
	span := StartRepositorySpan(ctx, "serial_code", "list", nil)
	defer FinishSpan(span)

	if filter == nil {
		filter = types.NewDefaultSerialCodeFilter()
	}

	p := &placeholders{}
	where := buildRecordWhere(filter, p)
	query := `SELECT ` + recordColumns + ` FROM serial_codes` + where +
		` ORDER BY created_at DESC, code DESC LIMIT ` + p.add(filter.GetLimit()) +
		` OFFSET ` + p.add(filter.GetOffset())

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var rows []recordRow
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, p.args...); err != nil {
		wrappedErr := postgres.TranslateError(err, "list serial codes")
		SetSpanError(span, wrappedErr)
		return nil, wrappedErr
	}

	SetSpanSuccess(span)
	return toRecords(rows), nil
}

func (r *serialCodeRepository) Count(ctx context.Context, filter *types.SerialCodeFilter) (int, error) {
	p := &placeholders{}
	query := `SELECT COUNT(*) FROM serial_codes` + buildRecordWhere(filter, p)

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var count int
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &count, query, p.args...); err != nil {
		return 0, postgres.TranslateError(err, "count serial codes")
	}
	return count, nil
}

func (r *serialCodeRepository) MarkSuperseded(ctx context.Context, code, supersededBy string, at time.Time) error {
	span := StartRepositorySpan(ctx, "serial_code", "mark_superseded", map[string]interface{}{
		"code":          code,
		"superseded_by": supersededBy,
	})
	defer FinishSpan(span)

	query := `
	UPDATE serial_codes
	SET status = $1, superseded_by_code = $2, updated_at = $3
	WHERE code = $4 AND status = $5 AND superseded_by_code IS NULL
	`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		types.SerialCodeStatusSuperseded,
		supersededBy,
		at,
		code,
		types.SerialCodeStatusActive,
	)
	if err != nil {
		wrappedErr := postgres.TranslateError(err, "mark serial code superseded")
		SetSpanError(span, wrappedErr)
		return wrappedErr
	}
	if n, _ := result.RowsAffected(); n == 0 {
		conflict := ierr.NewError("serial code already superseded").
			WithHintf("Serial code %s already has a newer version", code).
			WithReportableDetails(map[string]any{"code": code}).
			Mark(ierr.ErrAlreadySuperseded)
		SetSpanError(span, conflict)
		return conflict
	}

	SetSpanSuccess(span)
	return nil
}

func (r *serialCodeRepository) Void(ctx context.Context, code, reason string, at time.Time) error {
	span := StartRepositorySpan(ctx, "serial_code", "void", map[string]interface{}{
		"code": code,
	})
	defer FinishSpan(span)

	query := `
	UPDATE serial_codes
	SET status = $1, voided_at = $2, void_reason = $3, updated_at = $2
	WHERE code = $4 AND status <> $1
	`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, types.SerialCodeStatusVoided, at, reason, code)
	if err != nil {
		wrappedErr := postgres.TranslateError(err, "void serial code")
		SetSpanError(span, wrappedErr)
		return wrappedErr
	}
	if n, _ := result.RowsAffected(); n == 0 {
		invalid := ierr.NewError("serial code already voided").
			WithHintf("Serial code %s is already voided", code).
			WithReportableDetails(map[string]any{"code": code}).
			Mark(ierr.ErrInvalidOperation)
		SetSpanError(span, invalid)
		return invalid
	}

	SetSpanSuccess(span)
	return nil
}

func buildRecordWhere(filter *types.SerialCodeFilter, p *placeholders) string {
	if filter == nil {
		filter = types.NewDefaultSerialCodeFilter()
	}

	var conds []string
	if filter.Prefix != "" {
		conds = append(conds, "prefix = "+p.add(filter.Prefix))
	}
	if filter.TenantCode != "" {
		conds = append(conds, "tenant_code = "+p.add(filter.TenantCode))
	}
	if filter.Stage != nil {
		conds = append(conds, "stage = "+p.add(*filter.Stage))
	}
	if filter.Year != nil {
		conds = append(conds, "year = "+p.add(*filter.Year))
	}
	if filter.Status != nil {
		conds = append(conds, "status = "+p.add(string(*filter.Status)))
	} else if filter.ExcludesVoided() {
		conds = append(conds, "status <> "+p.add(string(types.SerialCodeStatusVoided)))
	}
	if filter.EntityType != "" {
		conds = append(conds, "entity_type = "+p.add(filter.EntityType))
	}
	if filter.SequenceFrom != nil {
		conds = append(conds, "sequence >= "+p.add(*filter.SequenceFrom))
	}
	if filter.SequenceTo != nil {
		conds = append(conds, "sequence <= "+p.add(*filter.SequenceTo))
	}
	if filter.CreatedAfter != nil {
		conds = append(conds, "created_at >= "+p.add(*filter.CreatedAfter))
	}
	if filter.CreatedBefore != nil {
		conds = append(conds, "created_at < "+p.add(*filter.CreatedBefore))
	}

	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func toRecords(rows []recordRow) []*serialcode.Record {
	out := make([]*serialcode.Record, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out
}
