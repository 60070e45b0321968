package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/blogsphere/blogsphere/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentPrincipal returns the user and device ids placed on the context by
// the authentication middleware.
func currentPrincipal(c *gin.Context) (userID, deviceID string, ok bool) {
	userID = c.GetString(middleware.CtxUserIDKey)
	deviceID = c.GetString(middleware.CtxDeviceIDKey)
	return userID, deviceID, userID != "" && deviceID != ""
}
