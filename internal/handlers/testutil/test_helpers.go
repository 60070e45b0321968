package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/blogsphere/blogsphere/internal/api"
	"github.com/blogsphere/blogsphere/internal/app"
	iauth "github.com/blogsphere/blogsphere/internal/auth"
	sharedtestutil "github.com/blogsphere/blogsphere/internal/database/testutil"
	"github.com/blogsphere/blogsphere/internal/middleware"
	"github.com/blogsphere/blogsphere/internal/models"
	"github.com/blogsphere/blogsphere/internal/ratelimit"
	"github.com/blogsphere/blogsphere/internal/users"
	"github.com/blogsphere/blogsphere/pkg/response"
)

// LoginMaxAttempts is the failed login budget per IP inside the test environment.
const LoginMaxAttempts = 3

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	JWT     *iauth.JWTService
	Users   *users.Repository
	Limiter *ratelimit.MemoryLimiter
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithTrustedProxies makes the router believe forwarding headers from proxies.
func WithTrustedProxies(proxies ...string) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.TrustedProxies = proxies
	}
}

// WithAdmin enables the basic auth protected user administration routes.
func WithAdmin(username, password string) EnvOption {
	return func(cfg *app.Config) {
		cfg.Auth.Admin = app.AdminSettings{Username: username, Password: password}
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{
			RateLimit: app.RequestLimitCfg{Requests: 1000, Window: time.Minute},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret:     "test-suite-super-secret-key-32-bytes!!",
				Issuer:     "test-suite",
				AccessTTL:  time.Hour,
				RefreshTTL: 24 * time.Hour,
			},
			RateLimit: app.RateLimitSettings{MaxAttempts: LoginMaxAttempts, Window: time.Minute},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	store, err := iauth.NewGormSessionStore(db)
	require.NoError(t, err)

	sessionSvc, err := iauth.NewSessionService(store, jwtSvc, iauth.SessionConfig{Logger: zap.NewNop()})
	require.NoError(t, err)

	repo, err := users.NewRepository(db)
	require.NoError(t, err)

	limiter := ratelimit.NewMemoryLimiter()

	credCfg := cfg.Auth.CredentialConfig()
	credCfg.Logger = zap.NewNop()
	credentials, err := iauth.NewCredentialVerifier(repo, limiter, credCfg)
	require.NoError(t, err)

	hybrid, err := iauth.NewHybridAuthenticator(jwtSvc, store, repo, zap.NewNop())
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:          db,
		Config:      cfg,
		Users:       repo,
		Sessions:    sessionSvc,
		Credentials: credentials,
		Hybrid:      hybrid,
		Limiter:     limiter,
	})
	require.NoError(t, err)

	return &Env{
		T:       t,
		DB:      db,
		Router:  router,
		JWT:     jwtSvc,
		Users:   repo,
		Limiter: limiter,
	}
}

// CreateUser inserts a confirmed user with the given login and password.
func (e *Env) CreateUser(login, password string) *models.User {
	e.T.Helper()

	user, err := e.Users.Create(context.Background(), users.CreateInput{
		Login:          login,
		Email:          login + "@example.com",
		Password:       password,
		EmailConfirmed: true,
	})
	require.NoError(e.T, err)
	return user
}

// LoginResult bundles the access token and refresh cookie issued by POST /api/auth/login.
type LoginResult struct {
	AccessToken string
	Cookie      *http.Cookie
}

type accessTokenPayload struct {
	AccessToken string `json:"accessToken"`
}

// Login authenticates and returns the issued access token and refresh cookie.
func (e *Env) Login(loginOrEmail, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"loginOrEmail": loginOrEmail,
		"password":     password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	return LoginResult{
		AccessToken: AccessToken(e.T, w),
		Cookie:      RefreshCookie(e.T, w),
	}
}

// AccessToken decodes the {accessToken} payload of a successful response.
func AccessToken(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	resp := DecodeResponse(t, w)
	require.True(t, resp.Success, w.Body.String())

	var payload accessTokenPayload
	DecodeInto(t, resp.Data, &payload)
	require.NotEmpty(t, payload.AccessToken)
	return payload.AccessToken
}

// RefreshCookie returns the refresh token cookie set by the response.
func RefreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.RefreshCookieName {
			return c
		}
	}
	t.Fatalf("response did not set the %s cookie", middleware.RefreshCookieName)
	return nil
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON
// encoding, the bearer token and any cookies.
func (e *Env) Request(method, path string, body any, token string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.Serve(e.NewRequest(method, path, body, token, cookies...))
}

// NewRequest builds the request Request would send, for tests that need to
// adjust headers or the peer address first.
func (e *Env) NewRequest(method, path string, body any, token string, cookies ...*http.Cookie) *http.Request {
	e.T.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("User-Agent", "handler-tests")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range cookies {
		if c != nil {
			req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
		}
	}

	return req
}

// Serve runs req through the router.
func (e *Env) Serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
