package service

import (
	"context"

	"github.com/samber/lo"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
)

// lineageWalker follows version links from a starting record. The store is
// durable and can be edited out of band, so every step checks both links and
// the walk is bounded by a visited set and a hop budget.
type lineageWalker struct {
	params  ServiceParams
	visited map[string]struct{}
	hops    int
	maxHops int
}

func (p ServiceParams) newLineageWalker() *lineageWalker {
	maxHops := p.settings().MaxLineageHops
	if maxHops <= 0 {
		maxHops = 1000
	}
	return &lineageWalker{
		params:  p,
		visited: make(map[string]struct{}),
		maxHops: maxHops,
	}
}

// forward returns start followed by every newer version, newest last
func (w *lineageWalker) forward(ctx context.Context, start *serialcode.Record) ([]*serialcode.Record, error) {
	w.visited[start.Code] = struct{}{}
	chain := []*serialcode.Record{start}

	cur := start
	for cur.HasSuccessor() {
		next, err := w.step(ctx, cur.Code, *cur.SupersededByCode)
		if err != nil {
			return nil, err
		}
		if lo.FromPtr(next.PreviousVersionCode) != cur.Code {
			return nil, w.params.corruptLineage(cur.Code, "successor does not link back", map[string]any{
				"successor":             next.Code,
				"previous_version_code": lo.FromPtr(next.PreviousVersionCode),
			})
		}
		chain = append(chain, next)
		cur = next
	}
	return chain, nil
}

// backward returns the ancestors of start, oldest first, without start
func (w *lineageWalker) backward(ctx context.Context, start *serialcode.Record) ([]*serialcode.Record, error) {
	w.visited[start.Code] = struct{}{}
	var ancestors []*serialcode.Record

	cur := start
	for cur.PreviousVersionCode != nil && *cur.PreviousVersionCode != "" {
		prev, err := w.step(ctx, cur.Code, *cur.PreviousVersionCode)
		if err != nil {
			return nil, err
		}
		if lo.FromPtr(prev.SupersededByCode) != cur.Code {
			return nil, w.params.corruptLineage(cur.Code, "predecessor does not link forward", map[string]any{
				"predecessor":        prev.Code,
				"superseded_by_code": lo.FromPtr(prev.SupersededByCode),
			})
		}
		ancestors = append(ancestors, prev)
		cur = prev
	}
	return lo.Reverse(ancestors), nil
}

func (w *lineageWalker) step(ctx context.Context, from, to string) (*serialcode.Record, error) {
	w.hops++
	if w.hops > w.maxHops {
		return nil, w.params.corruptLineage(from, "lineage exceeds hop limit", map[string]any{
			"max_hops": w.maxHops,
		})
	}
	if _, seen := w.visited[to]; seen {
		return nil, w.params.corruptLineage(from, "cycle detected", map[string]any{
			"revisited": to,
		})
	}
	w.visited[to] = struct{}{}

	record, err := withReadRetry(ctx, w.params.settings(), w.params.Logger, "walk_lineage", func(ctx context.Context) (*serialcode.Record, error) {
		return w.params.SerialCodeRepo.Get(ctx, to)
	})
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, w.params.corruptLineage(from, "dangling version link", map[string]any{
				"missing": to,
			})
		}
		return nil, err
	}
	return record, nil
}

// resolveLineage loads the full chain that contains code, oldest first
func (p ServiceParams) resolveLineage(ctx context.Context, start *serialcode.Record) ([]*serialcode.Record, error) {
	w := p.newLineageWalker()

	ancestors, err := w.backward(ctx, start)
	if err != nil {
		return nil, err
	}
	descendants, err := w.forward(ctx, start)
	if err != nil {
		return nil, err
	}
	return append(ancestors, descendants...), nil
}

// corruptLineage is always reported: it means a versioning invariant was
// broken outside this service
func (p ServiceParams) corruptLineage(code, reason string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	details["code"] = code
	details["reason"] = reason

	err := ierr.NewError("corrupt lineage: "+reason).
		WithHintf("The version history of %s is corrupt", code).
		WithReportableDetails(details).
		Mark(ierr.ErrCorruptLineage)

	p.Logger.Errorw("corrupt serial code lineage",
		"code", code,
		"reason", reason,
		"details", details)
	if p.Sentry != nil {
		p.Sentry.CaptureException(err)
	}
	return err
}
