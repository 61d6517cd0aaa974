package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shahin-grc/serialcode/internal/api/dto"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/service"
)

type ReservationHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewReservationHandler(service service.ReservationService, log *logger.Logger) *ReservationHandler {
	return &ReservationHandler{
		service: service,
		log:     log,
	}
}

// @Summary Reserve a serial code
// @Description Consumes the next sequence and holds the code until it is confirmed, cancelled or expires
// @Tags Reservations
// @Accept json
// @Produce json
// @Param request body dto.ReserveSerialCodeRequest true "Reserve request"
// @Success 201 {object} dto.ReservationResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /serial-codes/reservations [post]
func (h *ReservationHandler) Reserve(c *gin.Context) {
	var req dto.ReserveSerialCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Reserve(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *ReservationHandler) GetReservation(c *gin.Context) {
	resp, err := h.service.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Confirm a reservation
// @Description Binds the reserved code to an entity. Fails with 410 once the reservation lapsed.
// @Tags Reservations
// @Accept json
// @Produce json
// @Param id path string true "Reservation ID"
// @Param request body dto.ConfirmReservationRequest true "Confirm request"
// @Success 200 {object} dto.SerialCodeResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Failure 410 {object} ierr.ErrorResponse
// @Router /serial-codes/reservations/{id}/confirm [post]
func (h *ReservationHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.Confirm(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Cancel releases a pending reservation. The sequence stays consumed.
func (h *ReservationHandler) Cancel(c *gin.Context) {
	resp, err := h.service.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
