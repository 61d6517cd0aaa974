package repository

import (
	"github.com/shahin-grc/serialcode/internal/domain/reservation"
	"github.com/shahin-grc/serialcode/internal/domain/serialcode"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/postgres"
	postgresRepo "github.com/shahin-grc/serialcode/internal/repository/postgres"
)

type RepositoryType string

const (
	PostgresRepo RepositoryType = "postgres"
)

func NewCounterRepository(db *postgres.DB, logger *logger.Logger) serialcode.CounterRepository {
	return postgresRepo.NewCounterRepository(db, logger)
}

func NewSerialCodeRepository(db *postgres.DB, logger *logger.Logger) serialcode.Repository {
	return postgresRepo.NewSerialCodeRepository(db, logger)
}

func NewVersionRepository(db *postgres.DB, logger *logger.Logger) serialcode.VersionRepository {
	return postgresRepo.NewVersionRepository(db, logger)
}

func NewAuditRepository(db *postgres.DB, logger *logger.Logger) serialcode.AuditRepository {
	return postgresRepo.NewAuditRepository(db, logger)
}

func NewReservationRepository(db *postgres.DB, logger *logger.Logger) reservation.Repository {
	return postgresRepo.NewReservationRepository(db, logger)
}
