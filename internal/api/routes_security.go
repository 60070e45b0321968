package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/blogsphere/blogsphere/internal/auth"
	"github.com/blogsphere/blogsphere/internal/handlers"
	"github.com/blogsphere/blogsphere/internal/middleware"
)

func registerSecurityRoutes(api *gin.RouterGroup, sessions *handlers.SessionHandler, hybrid *iauth.HybridAuthenticator) {
	devices := api.Group("/security/devices")
	devices.Use(middleware.Hybrid(hybrid))
	{
		devices.GET("", sessions.ListDevices)
		devices.DELETE("", sessions.DeleteOtherDevices)
		devices.DELETE("/:deviceId", sessions.DeleteDevice)
	}
}
