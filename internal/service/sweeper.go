package service

import (
	"context"
	"sync"
	"time"

	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/sentry"
	"golang.org/x/time/rate"
)

// ReservationSweeper periodically expires lapsed pending reservations. Reads
// and transitions already apply expiry themselves, so the sweeper only keeps
// stored statuses tidy.
type ReservationSweeper struct {
	reservations ReservationService
	logger       *logger.Logger
	sentry       *sentry.Service
	interval     time.Duration
	batchSize    int
	limiter      *rate.Limiter

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewReservationSweeper(params ServiceParams, reservations ReservationService) *ReservationSweeper {
	cfg := params.settings()

	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	batchSize := cfg.SweepBatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	limit := rate.Inf
	if cfg.SweepBatchesPerSecond > 0 {
		limit = rate.Limit(cfg.SweepBatchesPerSecond)
	}

	return &ReservationSweeper{
		reservations: reservations,
		logger:       params.Logger,
		sentry:       params.Sentry,
		interval:     interval,
		batchSize:    batchSize,
		limiter:      rate.NewLimiter(limit, 1),
	}
}

// Start launches the sweep loop. It returns an error if already running.
func (s *ReservationSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ierr.NewError("reservation sweeper already running").
			Mark(ierr.ErrInvalidOperation)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.logger.Infow("starting reservation sweeper",
		"interval", s.interval,
		"batch_size", s.batchSize,
		"batches_per_second", float64(s.limiter.Limit()))

	go s.loop(ctx, s.done)
	return nil
}

// Stop cancels the loop and waits for the current sweep to finish
func (s *ReservationSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mu.Unlock()

	select {
	case <-done:
		s.logger.Info("reservation sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *ReservationSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Errorw("reservation sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce drains lapsed reservations batch by batch until a batch comes
// back short. Batches are paced by the limiter.
func (s *ReservationSweeper) SweepOnce(ctx context.Context) (int, error) {
	tx, ctx := s.sentry.StartTransaction(ctx, "reservation.sweep")
	if tx != nil {
		defer tx.Finish()
	}

	total := 0
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return total, err
		}

		n, err := s.reservations.ExpireStaleReservations(ctx, s.batchSize)
		total += n
		if err != nil {
			s.sentry.CaptureException(err)
			return total, err
		}
		if n < s.batchSize {
			break
		}
	}

	if total > 0 {
		s.sentry.AddBreadcrumb("reservation", "expired lapsed reservations", map[string]interface{}{
			"expired": total,
		})
		s.logger.Infow("reservation sweep finished", "expired", total)
	}
	return total, nil
}
