package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shahin-grc/serialcode/internal/config"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/logger"
)

// withReadRetry runs an idempotent read and retries storage transients with
// exponential backoff. Any other failure is returned on the first attempt.
// Never use it around IssueNext or a state transition.
func withReadRetry[T any](
	ctx context.Context,
	cfg config.SerialCodeConfig,
	log *logger.Logger,
	op string,
	fn func(context.Context) (T, error),
) (T, error) {
	b := backoff.NewExponentialBackOff()
	if cfg.ReadRetryInitialInterval > 0 {
		b.InitialInterval = cfg.ReadRetryInitialInterval
	}
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, cfg.ReadRetryMaxAttempts), ctx)

	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && !ierr.IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, policy, func(err error, wait time.Duration) {
		if log != nil {
			log.Warnw("retrying storage read",
				"operation", op,
				"attempt", attempt,
				"wait", wait,
				"error", err)
		}
	})
}
