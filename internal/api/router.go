package api

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/blogsphere/blogsphere/internal/app"
	iauth "github.com/blogsphere/blogsphere/internal/auth"
	"github.com/blogsphere/blogsphere/internal/handlers"
	"github.com/blogsphere/blogsphere/internal/middleware"
	"github.com/blogsphere/blogsphere/internal/ratelimit"
	"github.com/blogsphere/blogsphere/internal/users"
)

// Dependencies bundles the services the HTTP API is built on.
type Dependencies struct {
	DB          *gorm.DB
	Config      *app.Config
	Users       *users.Repository
	Sessions    *iauth.SessionService
	Credentials *iauth.CredentialVerifier
	Hybrid      *iauth.HybridAuthenticator
	// Limiter throttles API requests; nil disables request throttling.
	Limiter ratelimit.Limiter
}

func (d Dependencies) validate() error {
	switch {
	case d.DB == nil:
		return errors.New("database handle must be provided")
	case d.Config == nil:
		return errors.New("config must be provided")
	case d.Users == nil:
		return errors.New("user repository must be provided")
	case d.Sessions == nil:
		return errors.New("session service must be provided")
	case d.Credentials == nil:
		return errors.New("credential verifier must be provided")
	case d.Hybrid == nil:
		return errors.New("hybrid authenticator must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg := deps.Config

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())

	registerHealthRoutes(r, deps.DB)

	api := r.Group("/api")
	api.Use(middleware.RateLimit(deps.Limiter, cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window))

	registerAuthRoutes(api, authRouteDeps{
		Handler: handlers.NewAuthHandler(deps.Users, deps.Credentials, deps.Sessions, handlers.CookieSettings{
			Secure: cfg.Server.CookieSecure,
			TTL:    cfg.Auth.JWTServiceConfig().RefreshTokenTTL,
		}),
		Hybrid: deps.Hybrid,
	})

	registerSecurityRoutes(api, handlers.NewSessionHandler(deps.Sessions), deps.Hybrid)
	registerAdminRoutes(api, handlers.NewUserAdminHandler(deps.Users), cfg.Auth.Admin)

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
