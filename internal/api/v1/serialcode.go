package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shahin-grc/serialcode/internal/api/dto"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/service"
	"github.com/shahin-grc/serialcode/internal/types"
)

type SerialCodeHandler struct {
	serialCodes  service.SerialCodeService
	versioning   service.VersioningService
	traceability service.TraceabilityService
	log          *logger.Logger
}

func NewSerialCodeHandler(
	serialCodes service.SerialCodeService,
	versioning service.VersioningService,
	traceability service.TraceabilityService,
	log *logger.Logger,
) *SerialCodeHandler {
	return &SerialCodeHandler{
		serialCodes:  serialCodes,
		versioning:   versioning,
		traceability: traceability,
		log:          log,
	}
}

// @Summary Generate a serial code
// @Description Issue the next code for an existing entity
// @Tags SerialCodes
// @Accept json
// @Produce json
// @Param request body dto.GenerateSerialCodeRequest true "Generate request"
// @Success 201 {object} dto.SerialCodeResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 503 {object} ierr.ErrorResponse
// @Router /serial-codes [post]
func (h *SerialCodeHandler) Generate(c *gin.Context) {
	var req dto.GenerateSerialCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.serialCodes.Generate(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Generate serial codes in bulk
// @Description Every item succeeds or fails on its own, results keep request order
// @Tags SerialCodes
// @Accept json
// @Produce json
// @Param request body dto.GenerateBatchRequest true "Batch request"
// @Success 200 {object} dto.GenerateBatchResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Router /serial-codes/batch [post]
func (h *SerialCodeHandler) GenerateBatch(c *gin.Context) {
	var req dto.GenerateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.serialCodes.GenerateBatch(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Validate reports whether a code is well formed and issued. It never fails
// on a bad code, the result says what is wrong with it.
func (h *SerialCodeHandler) Validate(c *gin.Context) {
	var req dto.ValidateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}
	if err := req.Validate(); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, h.serialCodes.Validate(c.Request.Context(), req.Code))
}

func (h *SerialCodeHandler) Parse(c *gin.Context) {
	resp, err := h.serialCodes.Parse(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Preview the next sequence
// @Description Returns the code the next generate would issue. Nothing is reserved.
// @Tags SerialCodes
// @Produce json
// @Param tenant_code query string true "Tenant code"
// @Param prefix query string false "Prefix"
// @Param entity_type query string false "Entity type"
// @Success 200 {object} dto.NextSequenceResponse
// @Router /serial-codes/next-sequence [get]
func (h *SerialCodeHandler) GetNextSequence(c *gin.Context) {
	var req dto.NextSequenceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.serialCodes.GetNextSequence(c.Request.Context(), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Search serial codes
// @Description Filtered and paginated listing, voided codes are hidden unless include_voided is set
// @Tags SerialCodes
// @Produce json
// @Param filter query types.SerialCodeFilter false "Filter"
// @Success 200 {object} dto.ListSerialCodesResponse
// @Router /serial-codes [get]
func (h *SerialCodeHandler) Search(c *gin.Context) {
	filter := types.NewDefaultSerialCodeFilter()
	if err := c.ShouldBindQuery(filter); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid filter parameters").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.serialCodes.Search(c.Request.Context(), filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SerialCodeHandler) ListByPrefix(c *gin.Context) {
	page, ok := bindPage(c)
	if !ok {
		return
	}

	resp, err := h.serialCodes.ListByPrefix(c.Request.Context(), c.Param("prefix"), page.Limit, page.Offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SerialCodeHandler) ListByTenant(c *gin.Context) {
	page, ok := bindPage(c)
	if !ok {
		return
	}

	resp, err := h.serialCodes.ListByTenant(c.Request.Context(), c.Param("tenant"), page.Limit, page.Offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SerialCodeHandler) ListByStage(c *gin.Context) {
	stage, err := strconv.Atoi(c.Param("stage"))
	if err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Stage must be a number").
			Mark(ierr.ErrValidation))
		return
	}

	page, ok := bindPage(c)
	if !ok {
		return
	}

	resp, err := h.serialCodes.ListByStage(c.Request.Context(), stage, page.Limit, page.Offset)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get the code of an entity
// @Description Returns the active code of the entity, or its latest one when none is active
// @Tags SerialCodes
// @Produce json
// @Param entity_type path string true "Entity type"
// @Param entity_id path string true "Entity ID"
// @Success 200 {object} dto.SerialCodeResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /serial-codes/entity/{entity_type}/{entity_id} [get]
func (h *SerialCodeHandler) GetByEntity(c *gin.Context) {
	resp, err := h.serialCodes.GetByEntity(c.Request.Context(), c.Param("entity_type"), c.Param("entity_id"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get a serial code
// @Tags SerialCodes
// @Produce json
// @Param code path string true "Serial code"
// @Success 200 {object} dto.SerialCodeResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /serial-codes/{code} [get]
func (h *SerialCodeHandler) GetByCode(c *gin.Context) {
	resp, err := h.serialCodes.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Exists answers HEAD requests with 200 or 404 and no body
func (h *SerialCodeHandler) Exists(c *gin.Context) {
	ok, err := h.serialCodes.Exists(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.Status(ierr.HTTPStatusFromErr(err))
		return
	}
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}

	c.Status(http.StatusOK)
}

// @Summary Void a serial code
// @Description Marks the code voided. The record is kept and its number is never reissued.
// @Tags SerialCodes
// @Accept json
// @Produce json
// @Param code path string true "Serial code"
// @Param request body dto.VoidSerialCodeRequest true "Void request"
// @Success 200 {object} dto.SerialCodeResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Router /serial-codes/{code}/void [post]
func (h *SerialCodeHandler) Void(c *gin.Context) {
	var req dto.VoidSerialCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.serialCodes.Void(c.Request.Context(), c.Param("code"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Create a new version
// @Description Issues a successor code under the same key and supersedes the given one
// @Tags Versioning
// @Accept json
// @Produce json
// @Param code path string true "Serial code"
// @Param request body dto.CreateVersionRequest false "Version request"
// @Success 201 {object} dto.SerialCodeResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 409 {object} ierr.ErrorResponse
// @Router /serial-codes/{code}/versions [post]
func (h *SerialCodeHandler) CreateNewVersion(c *gin.Context) {
	var req dto.CreateVersionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(ierr.WithError(err).
				WithHint("Invalid request format").
				Mark(ierr.ErrValidation))
			return
		}
	}

	resp, err := h.versioning.CreateNewVersion(c.Request.Context(), c.Param("code"), &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *SerialCodeHandler) GetLatestVersion(c *gin.Context) {
	resp, err := h.versioning.GetLatestVersion(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *SerialCodeHandler) GetHistory(c *gin.Context) {
	resp, err := h.versioning.GetHistory(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Traceability report
// @Description Lineage, reservation, audit trail and related codes of a code
// @Tags Traceability
// @Produce json
// @Param code path string true "Serial code"
// @Success 200 {object} dto.TraceabilityReport
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /serial-codes/{code}/traceability [get]
func (h *SerialCodeHandler) GetTraceabilityReport(c *gin.Context) {
	resp, err := h.traceability.GetTraceabilityReport(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func bindPage(c *gin.Context) (dto.PageRequest, bool) {
	var page dto.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		c.Error(ierr.WithError(err).
			WithHint("Invalid pagination parameters").
			Mark(ierr.ErrValidation))
		return page, false
	}
	return page, true
}
