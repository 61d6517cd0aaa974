package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shahin-grc/serialcode/internal/domain/reservation"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/postgres"
	"github.com/shahin-grc/serialcode/internal/types"
)

type reservationRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewReservationRepository(db *postgres.DB, logger *logger.Logger) reservation.Repository {
	return &reservationRepository{db: db, logger: logger}
}

const reservationColumns = `
		id, prefix, tenant_code, stage, year, sequence, code, entity_type,
		entity_id, status, expires_at, created_at, created_by, resolved_at`

type reservationRow struct {
	ID         string         `db:"id"`
	Prefix     string         `db:"prefix"`
	TenantCode string         `db:"tenant_code"`
	Stage      int            `db:"stage"`
	Year       int            `db:"year"`
	Sequence   int            `db:"sequence"`
	Code       string         `db:"code"`
	EntityType string         `db:"entity_type"`
	EntityID   sql.NullString `db:"entity_id"`
	Status     string         `db:"status"`
	ExpiresAt  time.Time      `db:"expires_at"`
	CreatedAt  time.Time      `db:"created_at"`
	CreatedBy  string         `db:"created_by"`
	ResolvedAt sql.NullTime   `db:"resolved_at"`
}

func (row *reservationRow) toDomain() *reservation.Reservation {
	res := &reservation.Reservation{
		ID: row.ID,
		SequenceKey: serialcode.SequenceKey{
			Prefix:     row.Prefix,
			TenantCode: row.TenantCode,
			Stage:      row.Stage,
			Year:       row.Year,
		},
		Sequence:   row.Sequence,
		Code:       row.Code,
		EntityType: row.EntityType,
		EntityID:   stringPtr(row.EntityID),
		Status:     types.ReservationStatus(row.Status),
		ExpiresAt:  row.ExpiresAt.UTC(),
		CreatedAt:  row.CreatedAt.UTC(),
		CreatedBy:  row.CreatedBy,
	}
	if row.ResolvedAt.Valid {
		t := row.ResolvedAt.Time.UTC()
		res.ResolvedAt = &t
	}
	return res
}

func (r *reservationRepository) Create(ctx context.Context, res *reservation.Reservation) error {
	span := StartRepositorySpan(ctx, "reservation", "create", map[string]interface{}{
		"reservation_id": res.ID,
		"code":           res.Code,
	})
	defer FinishSpan(span)

	query := `
	INSERT INTO serial_code_reservations (` + reservationColumns + `
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
	)
	`

	var resolvedAt sql.NullTime
	if res.ResolvedAt != nil {
		resolvedAt = sql.NullTime{Time: *res.ResolvedAt, Valid: true}
	}

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		res.ID,
		res.Prefix,
		res.TenantCode,
		res.Stage,
		res.Year,
		res.Sequence,
		res.Code,
		res.EntityType,
		nullString(res.EntityID),
		res.Status,
		res.ExpiresAt,
		res.CreatedAt,
		res.CreatedBy,
		resolvedAt,
	)
	if err != nil {
		wrappedErr := postgres.TranslateError(err, "create reservation")
		SetSpanError(span, wrappedErr)
		return wrappedErr
	}

	SetSpanSuccess(span)
	return nil
}

func (r *reservationRepository) Get(ctx context.Context, id string) (*reservation.Reservation, error) {
	return r.getBy(ctx, "id", id)
}

func (r *reservationRepository) GetByCode(ctx context.Context, code string) (*reservation.Reservation, error) {
	return r.getBy(ctx, "code", code)
}

func (r *reservationRepository) getBy(ctx context.Context, column, value string) (*reservation.Reservation, error) {
	span := StartRepositorySpan(ctx, "reservation", "get_by_"+column, map[string]interface{}{
		column: value,
	})
	defer FinishSpan(span)

	query := `SELECT ` + reservationColumns + ` FROM serial_code_reservations WHERE ` + column + ` = $1`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var row reservationRow
	if err := r.db.GetQuerier(ctx).GetContext(ctx, &row, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			notFound := ierr.WithError(err).
				WithHintf("Reservation %s was not found", value).
				WithReportableDetails(map[string]any{column: value}).
				Mark(ierr.ErrReservationNotFound)
			SetSpanError(span, notFound)
			return nil, notFound
		}
		wrappedErr := postgres.TranslateError(err, "get reservation")
		SetSpanError(span, wrappedErr)
		return nil, wrappedErr
	}

	SetSpanSuccess(span)
	return row.toDomain(), nil
}

func (r *reservationRepository) Resolve(ctx context.Context, id string, status types.ReservationStatus, entityID *string, now time.Time) (bool, error) {
	span := StartRepositorySpan(ctx, "reservation", "resolve", map[string]interface{}{
		"reservation_id": id,
		"status":         string(status),
	})
	defer FinishSpan(span)

	deadline := "expires_at > $5"
	if status == types.ReservationStatusExpired {
		deadline = "expires_at <= $5"
	}

	query := `
	UPDATE serial_code_reservations
	SET status = $1, entity_id = COALESCE($2, entity_id), resolved_at = $3
	WHERE id = $4 AND status = '` + string(types.ReservationStatusPending) + `' AND ` + deadline

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	result, err := r.db.GetQuerier(ctx).ExecContext(ctx, query, status, nullString(entityID), now, id, now)
	if err != nil {
		wrappedErr := postgres.TranslateError(err, "resolve reservation")
		SetSpanError(span, wrappedErr)
		return false, wrappedErr
	}

	n, err := result.RowsAffected()
	if err != nil {
		wrappedErr := postgres.TranslateError(err, "resolve reservation")
		SetSpanError(span, wrappedErr)
		return false, wrappedErr
	}

	SetSpanSuccess(span)
	return n == 1, nil
}

func (r *reservationRepository) ListLapsed(ctx context.Context, now time.Time, limit int) ([]*reservation.Reservation, error) {
	span := StartRepositorySpan(ctx, "reservation", "list_lapsed", map[string]interface{}{
		"limit": limit,
	})
	defer FinishSpan(span)

	query := `SELECT ` + reservationColumns + `
	FROM serial_code_reservations
	WHERE status = $1 AND expires_at <= $2
	ORDER BY expires_at ASC
	LIMIT $3`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var rows []reservationRow
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, types.ReservationStatusPending, now, limit); err != nil {
		wrappedErr := postgres.TranslateError(err, "list lapsed reservations")
		SetSpanError(span, wrappedErr)
		return nil, wrappedErr
	}

	out := make([]*reservation.Reservation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}

	SetSpanSuccess(span)
	return out, nil
}
