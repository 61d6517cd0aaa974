package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	ierr "github.com/shahin-grc/serialcode/internal/errors"
	"github.com/shahin-grc/serialcode/internal/logger"
	"github.com/shahin-grc/serialcode/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware, ActorMiddleware, ErrorHandler(logger.NewNoopLogger()))
	r.GET("/test", handler)
	return r
}

func TestErrorHandlerRendersEnvelope(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		c.Error(ierr.NewError("lookup failed").
			WithHint("Serial code INC-ACME-0-2025-000042 not found").
			WithReportableDetails(map[string]any{"code": "INC-ACME-0-2025-000042"}).
			Mark(ierr.ErrCodeNotFound))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	require.Equal(t, http.StatusNotFound, w.Code)

	var resp ierr.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "code_not_found", resp.Error.Code)
	assert.Equal(t, "Serial code INC-ACME-0-2025-000042 not found", resp.Error.Display)
	assert.Equal(t, "INC-ACME-0-2025-000042", resp.Error.Details["code"])
}

func TestErrorHandlerFallbackMessage(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		c.Error(ierr.NewError("boom").Mark(ierr.ErrStorageUnavailable))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ierr.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "storage_unavailable", resp.Error.Code)
	assert.Equal(t, "An unexpected error occurred", resp.Error.Display)
}

func TestRequestAndActorHeaders(t *testing.T) {
	var requestID, userID string
	r := newEngine(func(c *gin.Context) {
		requestID = types.GetRequestID(c.Request.Context())
		userID = types.GetUserID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(types.HeaderRequestID, "req-42")
	req.Header.Set(types.HeaderUserID, "user_7")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "req-42", requestID)
	assert.Equal(t, "user_7", userID)
	assert.Equal(t, "req-42", w.Header().Get(types.HeaderRequestID))

	// generated when absent
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.NotEmpty(t, w.Header().Get(types.HeaderRequestID))
}
