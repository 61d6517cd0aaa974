package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shahin-grc/serialcode/internal/types"
)

func RequestIDMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	requestID := strings.TrimSpace(c.GetHeader(types.HeaderRequestID))
	if requestID == "" {
		requestID = uuid.New().String()
	}

	ctx = types.SetRequestID(ctx, requestID)
	c.Request = c.Request.WithContext(ctx)

	c.Header(types.HeaderRequestID, requestID)

	c.Next()
}

// ActorMiddleware copies the caller identity headers into the request context.
// Authentication is handled in front of this service, the headers are trusted.
func ActorMiddleware(c *gin.Context) {
	ctx := c.Request.Context()

	if tenantID := strings.TrimSpace(c.GetHeader(types.HeaderTenantID)); tenantID != "" {
		ctx = types.SetTenantID(ctx, tenantID)
	}
	if userID := strings.TrimSpace(c.GetHeader(types.HeaderUserID)); userID != "" {
		ctx = types.SetUserID(ctx, userID)
	}

	c.Request = c.Request.WithContext(ctx)
	c.Next()
}
