package postgres

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/lib/pq"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
)

const (
	pqUniqueViolation    = "23505"
	pqQueryCanceled      = "57014"
	pqClassConnection    = "08"
	pqClassResources     = "53"
	pqClassOperatorIntvn = "57"
)

// TranslateError maps driver failures onto the storage sentinels. It returns
// nil for nil and leaves sql.ErrNoRows for the caller to interpret.
func TranslateError(err error, op string) error {
	if err == nil || errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ierr.WithError(err).
			WithHintf("Storage did not respond in time during %s", op).
			WithReportableDetails(map[string]any{"operation": op}).
			Mark(ierr.ErrStorageTimeout)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case code == pqUniqueViolation:
			return ierr.WithError(err).
				WithHint("Record already exists").
				WithReportableDetails(map[string]any{"constraint": pqErr.Constraint}).
				Mark(ierr.ErrAlreadyExists)
		case code == pqQueryCanceled:
			return ierr.WithError(err).
				WithHintf("Storage did not respond in time during %s", op).
				Mark(ierr.ErrStorageTimeout)
		case strings.HasPrefix(code, pqClassConnection),
			strings.HasPrefix(code, pqClassResources),
			strings.HasPrefix(code, pqClassOperatorIntvn):
			return ierr.WithError(err).
				WithHint("Storage is unavailable").
				Mark(ierr.ErrStorageUnavailable)
		}
		return ierr.WithError(err).
			WithHintf("Database error during %s", op).
			Mark(ierr.ErrDatabase)
	}

	if isConnectionError(err) {
		return ierr.WithError(err).
			WithHint("Storage is unavailable").
			Mark(ierr.ErrStorageUnavailable)
	}

	return ierr.WithError(err).
		WithHintf("Database error during %s", op).
		Mark(ierr.ErrDatabase)
}

func isConnectionError(err error) bool {
	if errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return strings.Contains(err.Error(), "driver: bad connection")
}
