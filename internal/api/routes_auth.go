package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/blogsphere/blogsphere/internal/auth"
	"github.com/blogsphere/blogsphere/internal/handlers"
	"github.com/blogsphere/blogsphere/internal/middleware"
)

type authRouteDeps struct {
	Handler *handlers.AuthHandler
	Hybrid  *iauth.HybridAuthenticator
}

func registerAuthRoutes(api *gin.RouterGroup, deps authRouteDeps) {
	auth := api.Group("/auth")
	{
		auth.POST("/login", deps.Handler.Login)
		auth.POST("/refresh-token", middleware.RefreshCookie(deps.Hybrid), deps.Handler.Refresh)
		auth.POST("/logout", middleware.RefreshCookie(deps.Hybrid), deps.Handler.Logout)
		auth.GET("/me", middleware.Bearer(deps.Hybrid), deps.Handler.Me)
	}
}
