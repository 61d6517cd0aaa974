package cache

import (
	"github.com/shahin-grc/serialcode/internal/config"
	"github.com/shahin-grc/serialcode/internal/logger"
)

// Initialize builds the process cache used for resolved reservations
func Initialize(cfg *config.Configuration, log *logger.Logger) Cache {
	log.Infow("initializing cache system",
		"default_ttl", cfg.SerialCode.ReservationCacheTTL,
	)
	return NewInMemoryCache(cfg)
}
