package internal

import (
	"context"

	"github.com/shahin-grc/serialcode/internal/service"
)

// ExpireReservations runs one full sweep of lapsed reservations
func ExpireReservations(_ Options) error {
	env, err := newScriptEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	sweeper := service.NewReservationSweeper(env.params, service.NewReservationService(env.params))

	expired, err := sweeper.SweepOnce(context.Background())
	if err != nil {
		return err
	}

	env.log.Infow("expired lapsed reservations", "count", expired)
	return nil
}
