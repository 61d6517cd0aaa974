package internal

import (
	"github.com/shahin-grc/serialcode/internal/cache"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/postgres"
	"github.com/shahin-grc/serialcode/internal/publisher"
	"github.com/shahin-grc/serialcode/internal/repository"
	"github.com/shahin-grc/serialcode/internal/service"
	"github.com/shahin-grc/serialcode/internal/types"
)

// Options carries the command line flags shared by all scripts
type Options struct {
	EntityType    string
	TenantCode    string
	Count         int
	Workers       int
	RatePerSecond int
}

// scriptEnv is the service layer wired against the configured database.
// Lifecycle events are dropped, scripts do not feed the audit consumer.
type scriptEnv struct {
	cfg    *config.Configuration
	log    *logger.Logger
	db     *postgres.DB
	params service.ServiceParams
}

func newScriptEnv() (*scriptEnv, error) {
	cfg, err := config.NewConfig()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	db, err := postgres.NewDB(cfg, log)
	if err != nil {
		return nil, err
	}

	params := service.NewServiceParams(
		log,
		cfg,
		postgres.NewClient(db),
		types.NewSystemClock(),
		nil,
		cache.NewInMemoryCache(cfg),
		repository.NewCounterRepository(db, log),
		repository.NewSerialCodeRepository(db, log),
		repository.NewVersionRepository(db, log),
		repository.NewAuditRepository(db, log),
		repository.NewReservationRepository(db, log),
		publisher.NewNoopPublisher(),
	)

	return &scriptEnv{cfg: cfg, log: log, db: db, params: params}, nil
}

func (e *scriptEnv) Close() {
	e.db.Close()
}
