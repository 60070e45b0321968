package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/blogsphere/blogsphere/internal/auth"
	"github.com/blogsphere/blogsphere/pkg/errors"
	"github.com/blogsphere/blogsphere/pkg/response"
)

// RefreshCookieName is the HTTP-only cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

const (
	CtxUserIDKey       = "userID"
	CtxDeviceIDKey     = "deviceID"
	CtxSessionIDKey    = "sessionID"
	CtxRefreshTokenKey = "refreshToken"
)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}

// Bearer admits only requests with a valid access token.
func Bearer(authenticator *iauth.HybridAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := authenticator.ResolveBearer(c.Request.Context(), BearerToken(c))
		if result.Status != iauth.BearerOK {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		setPrincipal(c, result.Principal)
		c.Next()
	}
}

// Hybrid admits requests with a valid access token or, failing that, a
// refresh cookie bound to a live session.
func Hybrid(authenticator *iauth.HybridAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, _ := c.Cookie(RefreshCookieName)

		principal, err := authenticator.Authenticate(c.Request.Context(), iauth.Credentials{
			Bearer:        BearerToken(c),
			RefreshCookie: cookie,
		})
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// RefreshCookie admits requests whose refresh cookie matches a live session
// and exposes the raw token to downstream handlers.
func RefreshCookie(authenticator *iauth.HybridAuthenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, _ := c.Cookie(RefreshCookieName)

		principal, err := authenticator.RefreshOnly(c.Request.Context(), cookie)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		setPrincipal(c, principal)
		c.Set(CtxRefreshTokenKey, cookie)
		c.Next()
	}
}

func setPrincipal(c *gin.Context, principal iauth.Principal) {
	c.Set(CtxUserIDKey, principal.UserID)
	c.Set(CtxDeviceIDKey, principal.DeviceID)
	if principal.SessionID != "" {
		c.Set(CtxSessionIDKey, principal.SessionID)
	}
}
