package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	iauth "github.com/blogsphere/blogsphere/internal/auth"
	"github.com/blogsphere/blogsphere/pkg/errors"
	"github.com/blogsphere/blogsphere/pkg/response"
)

// SessionHandler exposes the caller's device sessions.
type SessionHandler struct {
	sessions *iauth.SessionService
}

func NewSessionHandler(sessions *iauth.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// GET /api/security/devices
func (h *SessionHandler) ListDevices(c *gin.Context) {
	userID, _, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	devices, err := h.sessions.ListSessions(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, devices)
}

// DELETE /api/security/devices/:deviceId
func (h *SessionHandler) DeleteDevice(c *gin.Context) {
	userID, _, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	// Device ids are always UUIDs; anything else cannot name a session.
	deviceID := c.Param("deviceId")
	if _, err := uuid.Parse(deviceID); err != nil {
		response.Error(c, errors.NewNotFound("device session not found"))
		return
	}

	if err := h.sessions.DeleteSessionByDevice(requestContext(c), userID, deviceID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DELETE /api/security/devices
func (h *SessionHandler) DeleteOtherDevices(c *gin.Context) {
	userID, deviceID, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.sessions.DeleteAllExceptCurrent(requestContext(c), userID, deviceID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
