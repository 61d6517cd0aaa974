package router

import (
	"errors"
	"net"

	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/logger"
)

// shouldRetry separates transient failures from events that will fail the
// same way on every delivery. Unknown errors are retried.
func shouldRetry(log *logger.Logger, err error) bool {
	if err == nil {
		return false
	}

	if ierr.IsRetryable(err) {
		log.Debugw("retrying after storage transient", "error", err)
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		log.Debugw("retrying after network timeout", "error", err)
		return true
	}

	return !(ierr.IsValidation(err) ||
		ierr.IsNotFound(err) ||
		ierr.IsAlreadyExists(err) ||
		ierr.IsInvalidOperation(err))
}
