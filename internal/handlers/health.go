package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/blogsphere/blogsphere/internal/database"
	"github.com/blogsphere/blogsphere/pkg/logger"
	"github.com/blogsphere/blogsphere/pkg/response"
)

// Health reports whether the database answers a ping.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.Ping(db); err != nil {
			logger.WithModule("http").Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, response.Response{
				Success: false,
				Error:   &response.ErrorInfo{Code: "UNAVAILABLE", Message: "database unavailable"},
			})
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
