package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/postgres"
)

type versionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

func NewVersionRepository(db *postgres.DB, logger *logger.Logger) serialcode.VersionRepository {
	return &versionRepository{db: db, logger: logger}
}

type versionRow struct {
	SerialCode       string         `db:"serial_code"`
	VersionNumber    int            `db:"version_number"`
	ChangeReason     string         `db:"change_reason"`
	SupersededByCode sql.NullString `db:"superseded_by_code"`
	CreatedAt        time.Time      `db:"created_at"`
	CreatedBy        string         `db:"created_by"`
}

func (r *versionRepository) Create(ctx context.Context, v *serialcode.Version) error {
	span := StartRepositorySpan(ctx, "serial_code_version", "create", map[string]interface{}{
		"code":           v.SerialCode,
		"version_number": v.VersionNumber,
	})
	defer FinishSpan(span)

	query := `
	INSERT INTO serial_code_versions (
		serial_code, version_number, change_reason, superseded_by_code, created_at, created_by
	) VALUES (
		$1, $2, $3, $4, $5, $6
	)
	`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	_, err := r.db.GetQuerier(ctx).ExecContext(ctx, query,
		v.SerialCode,
		v.VersionNumber,
		v.ChangeReason,
		nullString(v.SupersededByCode),
		v.CreatedAt,
		v.CreatedBy,
	)
	if err != nil {
		wrappedErr := postgres.TranslateError(err, "create serial code version")
		SetSpanError(span, wrappedErr)
		return wrappedErr
	}

	SetSpanSuccess(span)
	return nil
}

func (r *versionRepository) ListByCodes(ctx context.Context, codes []string) ([]*serialcode.Version, error) {
	if len(codes) == 0 {
		return []*serialcode.Version{}, nil
	}

	query := `
	SELECT serial_code, version_number, change_reason, superseded_by_code, created_at, created_by
	FROM serial_code_versions
	WHERE serial_code = ANY($1)
	ORDER BY version_number ASC
	`

	ctx, cancel := r.db.WithTimeout(ctx)
	defer cancel()

	var rows []versionRow
	if err := r.db.GetQuerier(ctx).SelectContext(ctx, &rows, query, pq.Array(codes)); err != nil {
		return nil, postgres.TranslateError(err, "list serial code versions")
	}

	out := make([]*serialcode.Version, 0, len(rows))
	for _, row := range rows {
		out = append(out, &serialcode.Version{
			SerialCode:       row.SerialCode,
			VersionNumber:    row.VersionNumber,
			ChangeReason:     row.ChangeReason,
			SupersededByCode: stringPtr(row.SupersededByCode),
			CreatedAt:        row.CreatedAt.UTC(),
			CreatedBy:        row.CreatedBy,
		})
	}
	return out, nil
}
