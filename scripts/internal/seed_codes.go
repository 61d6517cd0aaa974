package internal

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/shahin-grc/serialcode/internal/api/dto"
	"github.com/shahin-grc/serialcode/internal/service"
	"github.com/shahin-grc/serialcode/internal/types"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"
)

// SeedSerialCodes issues opts.Count codes for one entity type and tenant
// through the service layer. It doubles as a load check of the counter.
func SeedSerialCodes(opts Options) error {
	if opts.EntityType == "" || opts.TenantCode == "" {
		return fmt.Errorf("-entity-type and -tenant-code are required")
	}
	if opts.Count <= 0 || opts.Workers <= 0 || opts.RatePerSecond <= 0 {
		return fmt.Errorf("-count, -workers and -rate must be positive")
	}
	count := opts.Count

	env, err := newScriptEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	serialCodes := service.NewSerialCodeService(env.params)
	limiter := rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)

	ctx := types.SetUserID(context.Background(), "seed_script")

	var succeeded, failed atomic.Int64
	start := time.Now()

	p := pool.New().WithMaxGoroutines(opts.Workers)
	for i := 0; i < count; i++ {
		entityID := fmt.Sprintf("seed-%d-%d", start.Unix(), i)
		p.Go(func() {
			if err := limiter.Wait(ctx); err != nil {
				failed.Add(1)
				return
			}
			_, err := serialCodes.Generate(ctx, &dto.GenerateSerialCodeRequest{
				EntityType: opts.EntityType,
				TenantCode: opts.TenantCode,
				EntityID:   entityID,
				Metadata:   types.Metadata{"source": "seed_script"},
			})
			if err != nil {
				failed.Add(1)
				env.log.Errorw("failed to seed serial code", "entity_id", entityID, "error", err)
				return
			}
			succeeded.Add(1)
		})
	}
	p.Wait()

	elapsed := time.Since(start)
	env.log.Infow("serial code seeding completed",
		"requested", count,
		"succeeded", succeeded.Load(),
		"failed", failed.Load(),
		"elapsed", elapsed,
		"per_second", float64(succeeded.Load())/elapsed.Seconds())

	if failed.Load() > 0 {
		return fmt.Errorf("%d of %d codes failed", failed.Load(), count)
	}
	return nil
}
