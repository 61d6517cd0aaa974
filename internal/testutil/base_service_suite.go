package testutil

import (
	"context"
	"time"

	"github.com/shahin-grc/serialcode/internal/cache"
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/postgres"
	"github.com/shahin-grc/serialcode/internal/types"
	"github.com/shahin-grc/serialcode/internal/validator"
	"github.com/stretchr/testify/suite"
)

// Stores holds all the in-memory repositories for testing
type Stores struct {
	CounterRepo     *InMemoryCounterStore
	SerialCodeRepo  *InMemorySerialCodeStore
	VersionRepo     *InMemoryVersionStore
	AuditRepo       *InMemoryAuditStore
	ReservationRepo *InMemoryReservationStore
}

// BaseServiceTestSuite provides common functionality for all service test suites
type BaseServiceTestSuite struct {
	suite.Suite
	ctx       context.Context
	stores    Stores
	publisher *InMemoryEventPublisher
	cache     cache.Cache
	db        postgres.IClient
	logger    *logger.Logger
	config    *config.Configuration
	clock     *FakeClock
}

// SetupSuite is called once before running the tests in the suite
func (s *BaseServiceTestSuite) SetupSuite() {
	// Initialize validator
	validator.NewValidator()

	cfg := config.GetDefaultConfig()
	cfg.Logging.Level = types.LogLevelInfo
	// no backoff waits in tests
	cfg.SerialCode.ReadRetryMaxAttempts = 2
	cfg.SerialCode.ReadRetryInitialInterval = time.Millisecond

	var err error
	s.config = cfg
	s.logger, err = logger.NewLogger(cfg)
	if err != nil {
		s.T().Fatalf("failed to create logger: %v", err)
	}
}

// SetupTest is called before each test
func (s *BaseServiceTestSuite) SetupTest() {
	s.setupContext()
	s.setupStores()
	s.clock = NewFakeClock(time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC))
}

// TearDownTest is called after each test
func (s *BaseServiceTestSuite) TearDownTest() {
	s.clearStores()
}

func (s *BaseServiceTestSuite) setupContext() {
	s.ctx = SetupContext()
}

func (s *BaseServiceTestSuite) setupStores() {
	s.stores = Stores{
		CounterRepo:     NewInMemoryCounterStore(),
		SerialCodeRepo:  NewInMemorySerialCodeStore(),
		VersionRepo:     NewInMemoryVersionStore(),
		AuditRepo:       NewInMemoryAuditStore(),
		ReservationRepo: NewInMemoryReservationStore(),
	}

	s.db = NewMockPostgresClient(s.logger)
	s.publisher = NewInMemoryEventPublisher()
	s.cache = cache.NewInMemoryCache(s.config)
}

func (s *BaseServiceTestSuite) clearStores() {
	s.stores.CounterRepo.Clear()
	s.stores.SerialCodeRepo.Clear()
	s.stores.VersionRepo.Clear()
	s.stores.AuditRepo.Clear()
	s.stores.ReservationRepo.Clear()
	s.publisher.Clear()
	s.cache.Flush(context.Background())
}

func (s *BaseServiceTestSuite) ClearStores() {
	s.clearStores()
}

// GetContext returns the test context
func (s *BaseServiceTestSuite) GetContext() context.Context {
	return s.ctx
}

// GetConfig returns the test configuration
func (s *BaseServiceTestSuite) GetConfig() *config.Configuration {
	return s.config
}

// GetStores returns all test repositories
func (s *BaseServiceTestSuite) GetStores() Stores {
	return s.stores
}

// GetPublisher returns the test event publisher
func (s *BaseServiceTestSuite) GetPublisher() *InMemoryEventPublisher {
	return s.publisher
}

// GetCache returns the test cache
func (s *BaseServiceTestSuite) GetCache() cache.Cache {
	return s.cache
}

// GetDB returns the test database client
func (s *BaseServiceTestSuite) GetDB() postgres.IClient {
	return s.db
}

// GetLogger returns the test logger
func (s *BaseServiceTestSuite) GetLogger() *logger.Logger {
	return s.logger
}

// GetClock returns the fake clock driving the services under test
func (s *BaseServiceTestSuite) GetClock() *FakeClock {
	return s.clock
}

// GetNow returns the current test time
func (s *BaseServiceTestSuite) GetNow() time.Time {
	return s.clock.Now()
}
