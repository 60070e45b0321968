package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/blogsphere/blogsphere/internal/auth"
	"github.com/blogsphere/blogsphere/internal/middleware"
	"github.com/blogsphere/blogsphere/internal/models"
	"github.com/blogsphere/blogsphere/pkg/errors"
	"github.com/blogsphere/blogsphere/pkg/response"
)

const unknownDevice = "unknown"

// UserFinder loads users by id, including soft-deleted ones.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// CookieSettings controls the refresh token cookie.
type CookieSettings struct {
	Secure bool
	TTL    time.Duration
}

// AuthHandler manages authentication flows (login/refresh/logout/me).
type AuthHandler struct {
	users       UserFinder
	credentials *iauth.CredentialVerifier
	sessions    *iauth.SessionService
	cookie      CookieSettings
}

func NewAuthHandler(users UserFinder, credentials *iauth.CredentialVerifier, sessions *iauth.SessionService, cookie CookieSettings) *AuthHandler {
	if cookie.TTL <= 0 {
		cookie.TTL = iauth.DefaultRefreshTokenTTL
	}
	return &AuthHandler{users: users, credentials: credentials, sessions: sessions, cookie: cookie}
}

type loginRequest struct {
	LoginOrEmail string `json:"loginOrEmail" validate:"required,notblank"`
	Password     string `json:"password" validate:"required"`
}

type accessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type meResponse struct {
	UserID string `json:"userId"`
	Login  string `json:"login"`
	Email  string `json:"email"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	userID, err := h.credentials.Validate(ctx, req.LoginOrEmail, req.Password, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	deviceName := strings.TrimSpace(c.Request.UserAgent())
	if deviceName == "" {
		deviceName = unknownDevice
	}

	pair, err := h.sessions.Login(ctx, userID, deviceName, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	response.Success(c, http.StatusOK, accessTokenResponse{AccessToken: pair.AccessToken})
}

// POST /api/auth/refresh-token
func (h *AuthHandler) Refresh(c *gin.Context) {
	token := refreshToken(c)
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	pair, err := h.sessions.Refresh(requestContext(c), token, c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	response.Success(c, http.StatusOK, accessTokenResponse{AccessToken: pair.AccessToken})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	token := refreshToken(c)
	if token == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.sessions.Logout(requestContext(c), token); err != nil {
		response.Error(c, err)
		return
	}

	h.clearRefreshCookie(c)
	response.NoContent(c)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, _, ok := currentPrincipal(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.users.FindByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	if user == nil || user.IsDeleted() {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, meResponse{
		UserID: user.ID,
		Login:  user.Login,
		Email:  user.Email,
	})
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.RefreshCookieName, token, int(h.cookie.TTL/time.Second), "/", "", h.cookie.Secure, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.RefreshCookieName, "", -1, "/", "", h.cookie.Secure, true)
}

// refreshToken prefers the token already validated by the refresh cookie
// middleware and falls back to the raw cookie.
func refreshToken(c *gin.Context) string {
	if v, ok := c.Get(middleware.CtxRefreshTokenKey); ok {
		if token, _ := v.(string); token != "" {
			return token
		}
	}
	token, _ := c.Cookie(middleware.RefreshCookieName)
	return strings.TrimSpace(token)
}
