package service

import (
	"github.com/shahin-grc/serialcode/internal/cache"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/domain/reservation"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/postgres"
	"github.com/shahin-grc/serialcode/internal/publisher"
	"github.com/shahin-grc/serialcode/internal/sentry"
	"github.com/shahin-grc/serialcode/internal/types"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration
	DB     postgres.IClient
	Clock  types.Clock
	Sentry *sentry.Service
	Cache  cache.Cache

	// Repositories
	CounterRepo     serialcode.CounterRepository
	SerialCodeRepo  serialcode.Repository
	VersionRepo     serialcode.VersionRepository
	AuditRepo       serialcode.AuditRepository
	ReservationRepo reservation.Repository

	// Publishers
	EventPublisher publisher.EventPublisher
}

// Common service params
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	db postgres.IClient,
	clock types.Clock,
	sentry *sentry.Service,
	cache cache.Cache,
	counterRepo serialcode.CounterRepository,
	serialCodeRepo serialcode.Repository,
	versionRepo serialcode.VersionRepository,
	auditRepo serialcode.AuditRepository,
	reservationRepo reservation.Repository,
	eventPublisher publisher.EventPublisher,
) ServiceParams {
	return ServiceParams{
		Logger:          logger,
		Config:          config,
		DB:              db,
		Clock:           clock,
		Sentry:          sentry,
		Cache:           cache,
		CounterRepo:     counterRepo,
		SerialCodeRepo:  serialCodeRepo,
		VersionRepo:     versionRepo,
		AuditRepo:       auditRepo,
		ReservationRepo: reservationRepo,
		EventPublisher:  eventPublisher,
	}
}

func (p ServiceParams) settings() config.SerialCodeConfig {
	if p.Config == nil {
		return config.DefaultSerialCodeConfig()
	}
	return p.Config.SerialCode
}
