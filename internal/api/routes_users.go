package api

import (
	"github.com/gin-gonic/gin"

	"github.com/blogsphere/blogsphere/internal/app"
	"github.com/blogsphere/blogsphere/internal/handlers"
)

func registerAdminRoutes(api *gin.RouterGroup, handler *handlers.UserAdminHandler, admin app.AdminSettings) {
	if admin.Username == "" || admin.Password == "" {
		return
	}

	sa := api.Group("/sa", gin.BasicAuth(gin.Accounts{admin.Username: admin.Password}))
	{
		sa.GET("/users", handler.List)
		sa.POST("/users", handler.Create)
		sa.DELETE("/users/:id", handler.Delete)
	}
}
