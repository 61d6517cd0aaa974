package service

import (
	"context"

	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
)

// SequenceAllocator hands out sequence numbers per key
type SequenceAllocator interface {
	// IssueNext consumes and returns a new sequence for key. It is never
	// retried here: after an ambiguous failure the caller decides.
	IssueNext(ctx context.Context, key serialcode.SequenceKey) (int, error)

	// PeekNext previews the next sequence without reserving it. The value
	// can be taken by another caller before it is issued.
	PeekNext(ctx context.Context, key serialcode.SequenceKey) (int, error)
}

type sequenceAllocator struct {
	ServiceParams
}

func NewSequenceAllocator(params ServiceParams) SequenceAllocator {
	return &sequenceAllocator{
		ServiceParams: params,
	}
}

func (s *sequenceAllocator) IssueNext(ctx context.Context, key serialcode.SequenceKey) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	seq, err := s.CounterRepo.IssueNext(ctx, key)
	if err != nil {
		s.Logger.Errorw("failed to issue sequence",
			"prefix", key.Prefix,
			"tenant_code", key.TenantCode,
			"stage", key.Stage,
			"year", key.Year,
			"retryable", ierr.IsRetryable(err),
			"error", err)
		return 0, err
	}

	if seq < 1 {
		return 0, ierr.NewError("counter returned a non positive sequence").
			WithHint("Sequence counter is in an invalid state").
			WithReportableDetails(map[string]any{"key": key.String(), "sequence": seq}).
			Mark(ierr.ErrSystem)
	}
	if seq > serialcode.MaxSequence {
		return 0, sequenceExhausted(key)
	}

	s.Logger.Debugw("issued sequence",
		"prefix", key.Prefix,
		"tenant_code", key.TenantCode,
		"stage", key.Stage,
		"year", key.Year,
		"sequence", seq)
	return seq, nil
}

func (s *sequenceAllocator) PeekNext(ctx context.Context, key serialcode.SequenceKey) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}

	return withReadRetry(ctx, s.settings(), s.Logger, "peek_next", func(ctx context.Context) (int, error) {
		return s.CounterRepo.PeekNext(ctx, key)
	})
}

func sequenceExhausted(key serialcode.SequenceKey) error {
	return ierr.NewError("sequence exhausted").
		WithHintf("No sequence numbers left for %s", key.String()).
		WithReportableDetails(map[string]any{
			"key":          key.String(),
			"max_sequence": serialcode.MaxSequence,
		}).
		Mark(ierr.ErrInvalidOperation)
}
