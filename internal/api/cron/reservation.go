package cron

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shahin-grc/serialcode/internal/api/dto"
	"github.com/shahin-grc/serialcode/internal/config"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/service"
	"github.com/shahin-grc/serialcode/internal/types"
)

type ReservationCronHandler struct {
	logger       *logger.Logger
	config       *config.Configuration
	reservations service.ReservationService
	clock        types.Clock
}

func NewReservationCronHandler(
	logger *logger.Logger,
	config *config.Configuration,
	reservations service.ReservationService,
	clock types.Clock,
) *ReservationCronHandler {
	return &ReservationCronHandler{
		logger:       logger,
		config:       config,
		reservations: reservations,
		clock:        clock,
	}
}

type expireReservationsQuery struct {
	BatchSize int `form:"batch_size" binding:"omitempty,min=1"`
}

// ExpireReservations moves one batch of lapsed pending reservations to
// expired. It is meant for an external scheduler when the in-process
// sweeper is disabled.
func (h *ReservationCronHandler) ExpireReservations(c *gin.Context) {
	var query expireReservationsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("batch_size must be a positive number").
			Mark(ierr.ErrValidation))
		return
	}

	batchSize := query.BatchSize
	if batchSize == 0 {
		batchSize = h.config.SerialCode.SweepBatchSize
	}

	ranAt := h.clock.Now()
	h.logger.Infow("starting reservation expiry cron job", "batch_size", batchSize)

	expired, err := h.reservations.ExpireStaleReservations(c.Request.Context(), batchSize)
	if err != nil {
		h.logger.Errorw("reservation expiry cron job failed", "error", err)
		c.Error(err)
		return
	}

	h.logger.Infow("completed reservation expiry cron job", "expired", expired)

	c.JSON(http.StatusOK, &dto.ExpireReservationsResponse{
		Expired: expired,
		RanAt:   ranAt,
	})
}
