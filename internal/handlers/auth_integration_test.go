package handlers_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blogsphere/blogsphere/internal/handlers/testutil"
)

func TestAuthHandler_LoginRefreshLogout(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("alice", "AuthPassw0rd!")

	login := env.Login("alice", "AuthPassw0rd!")
	require.True(t, login.Cookie.HttpOnly)
	require.Equal(t, http.SameSiteStrictMode, login.Cookie.SameSite)
	require.Equal(t, "/", login.Cookie.Path)
	require.Greater(t, login.Cookie.MaxAge, 0)

	me := env.Request(http.MethodGet, "/api/auth/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, me.Code, me.Body.String())
	var meData map[string]string
	testutil.DecodeInto(t, testutil.DecodeResponse(t, me).Data, &meData)
	require.Equal(t, user.ID, meData["userId"])
	require.Equal(t, "alice", meData["login"])
	require.Equal(t, user.Email, meData["email"])

	refresh := env.Request(http.MethodPost, "/api/auth/refresh-token", nil, "", login.Cookie)
	require.Equal(t, http.StatusOK, refresh.Code, refresh.Body.String())
	require.NotEmpty(t, testutil.AccessToken(t, refresh))
	rotated := testutil.RefreshCookie(t, refresh)
	require.NotEqual(t, login.Cookie.Value, rotated.Value)

	oldClaims, err := env.JWT.Verify(login.Cookie.Value)
	require.NoError(t, err)
	newClaims, err := env.JWT.Verify(rotated.Value)
	require.NoError(t, err)
	require.Greater(t, newClaims.IssuedAtUnix(), oldClaims.IssuedAtUnix())
	require.Equal(t, oldClaims.DeviceID, newClaims.DeviceID)

	logout := env.Request(http.MethodPost, "/api/auth/logout", nil, "", rotated)
	require.Equal(t, http.StatusNoContent, logout.Code, logout.Body.String())
	require.Empty(t, logout.Body.Bytes())
	cleared := testutil.RefreshCookie(t, logout)
	require.Empty(t, cleared.Value)
	require.Less(t, cleared.MaxAge, 0)

	after := env.Request(http.MethodPost, "/api/auth/refresh-token", nil, "", rotated)
	require.Equal(t, http.StatusUnauthorized, after.Code)
}

func TestAuthHandler_RefreshWithUsedTokenIsRejected(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("bob", "AuthPassw0rd!")
	login := env.Login("bob", "AuthPassw0rd!")

	first := env.Request(http.MethodPost, "/api/auth/refresh-token", nil, "", login.Cookie)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	replay := env.Request(http.MethodPost, "/api/auth/refresh-token", nil, "", login.Cookie)
	require.Equal(t, http.StatusUnauthorized, replay.Code)
	decoded := testutil.DecodeResponse(t, replay)
	require.False(t, decoded.Success)
	require.Equal(t, "UNAUTHORIZED", decoded.Error.Code)

	// The rotated token is unaffected by the rejected replay.
	next := env.Request(http.MethodPost, "/api/auth/refresh-token", nil, "", testutil.RefreshCookie(t, first))
	require.Equal(t, http.StatusOK, next.Code, next.Body.String())
}

func TestAuthHandler_RefreshRequiresCookie(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/auth/refresh-token", nil, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAuthHandler_LogoutTwice(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("carol", "AuthPassw0rd!")
	login := env.Login("carol", "AuthPassw0rd!")

	first := env.Request(http.MethodPost, "/api/auth/logout", nil, "", login.Cookie)
	require.Equal(t, http.StatusNoContent, first.Code)

	second := env.Request(http.MethodPost, "/api/auth/logout", nil, "", login.Cookie)
	require.Equal(t, http.StatusUnauthorized, second.Code)
}

func TestAuthHandler_LoginByEmailCaseInsensitive(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("dave", "AuthPassw0rd!")

	login := env.Login("DAVE@example.com", "AuthPassw0rd!")
	require.NotEmpty(t, login.AccessToken)
}

func TestAuthHandler_LoginValidation(t *testing.T) {
	env := testutil.NewEnv(t)

	resp := env.Request(http.MethodPost, "/api/auth/login", map[string]any{
		"loginOrEmail": " ",
		"password":     "",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.Code)
	decoded := testutil.DecodeResponse(t, resp)
	require.False(t, decoded.Success)
	require.NotNil(t, decoded.Error)
	require.Equal(t, "BAD_REQUEST", decoded.Error.Code)
}

func TestAuthHandler_LoginWrongPassword(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("erin", "AuthPassw0rd!")

	resp := env.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"loginOrEmail": "erin",
		"password":     "wrong",
	}, "")
	require.Equal(t, http.StatusUnauthorized, resp.Code)
	require.Equal(t, "INVALID_CREDENTIALS", testutil.DecodeResponse(t, resp).Error.Code)
	require.Empty(t, resp.Result().Cookies())
}

func TestAuthHandler_LoginRateLimitedAfterRepeatedFailures(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("frank", "AuthPassw0rd!")

	attempt := func() int {
		return env.Request(http.MethodPost, "/api/auth/login", map[string]string{
			"loginOrEmail": "frank",
			"password":     "wrong",
		}, "").Code
	}

	for i := 0; i < testutil.LoginMaxAttempts; i++ {
		require.Equal(t, http.StatusUnauthorized, attempt())
	}
	require.Equal(t, http.StatusTooManyRequests, attempt())

	require.NoError(t, env.Limiter.Clear(context.Background()))
	require.Equal(t, http.StatusUnauthorized, attempt())
}

func TestAuthHandler_LoginLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("ivan", "AuthPassw0rd!")

	codes := make([]int, 0, testutil.LoginMaxAttempts+2)
	for i := 0; i < testutil.LoginMaxAttempts+2; i++ {
		req := env.NewRequest(http.MethodPost, "/api/auth/login", map[string]string{
			"loginOrEmail": "ivan",
			"password":     "wrong",
		}, "")
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i+1))
		codes = append(codes, env.Serve(req).Code)
	}

	require.Equal(t, http.StatusUnauthorized, codes[testutil.LoginMaxAttempts-1])
	require.Equal(t, http.StatusTooManyRequests, codes[testutil.LoginMaxAttempts], "codes: %v", codes)

	limited, err := env.Limiter.IsLimited(context.Background(), "login:203.0.113.7", testutil.LoginMaxAttempts, time.Minute)
	require.NoError(t, err)
	require.True(t, limited)
}

func TestAuthHandler_LoginLimitFollowsTrustedProxy(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithTrustedProxies("203.0.113.0/24"))
	env.CreateUser("judy", "AuthPassw0rd!")

	for i := 0; i < testutil.LoginMaxAttempts+2; i++ {
		req := env.NewRequest(http.MethodPost, "/api/auth/login", map[string]string{
			"loginOrEmail": "judy",
			"password":     "wrong",
		}, "")
		req.RemoteAddr = "203.0.113.7:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i+1))
		require.Equal(t, http.StatusUnauthorized, env.Serve(req).Code, "attempt %d", i+1)
	}

	// The client address reported by the proxy is what gets stored.
	req := env.NewRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"loginOrEmail": "judy",
		"password":     "AuthPassw0rd!",
	}, "")
	req.RemoteAddr = "203.0.113.7:40000"
	req.Header.Set("X-Forwarded-For", "198.51.100.200")
	login := env.Serve(req)
	require.Equal(t, http.StatusOK, login.Code, login.Body.String())

	devices := env.Request(http.MethodGet, "/api/security/devices", nil, testutil.AccessToken(t, login))
	require.Equal(t, http.StatusOK, devices.Code, devices.Body.String())
	var views []map[string]string
	testutil.DecodeInto(t, testutil.DecodeResponse(t, devices).Data, &views)
	require.Len(t, views, 1)
	require.Equal(t, "198.51.100.200", views[0]["ip"])
}

func TestAuthHandler_MeRequiresAccessToken(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("grace", "AuthPassw0rd!")
	login := env.Login("grace", "AuthPassw0rd!")

	noAuth := env.Request(http.MethodGet, "/api/auth/me", nil, "")
	require.Equal(t, http.StatusUnauthorized, noAuth.Code)

	// A refresh cookie does not authenticate bearer-only routes.
	cookieOnly := env.Request(http.MethodGet, "/api/auth/me", nil, "", login.Cookie)
	require.Equal(t, http.StatusUnauthorized, cookieOnly.Code)

	// Nor does a refresh token presented as a bearer token.
	refreshAsBearer := env.Request(http.MethodGet, "/api/auth/me", nil, login.Cookie.Value)
	require.Equal(t, http.StatusUnauthorized, refreshAsBearer.Code)
}

func TestAuthHandler_DeletedUserIsRejected(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("heidi", "AuthPassw0rd!")
	login := env.Login("heidi", "AuthPassw0rd!")

	require.NoError(t, env.Users.SoftDelete(context.Background(), user.ID))

	me := env.Request(http.MethodGet, "/api/auth/me", nil, login.AccessToken)
	require.Equal(t, http.StatusUnauthorized, me.Code)

	refresh := env.Request(http.MethodPost, "/api/auth/refresh-token", nil, "", login.Cookie)
	require.Equal(t, http.StatusUnauthorized, refresh.Code)
}
