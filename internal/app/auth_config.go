package app

import (
	"strings"

	"github.com/blogsphere/blogsphere/internal/auth"
	"github.com/blogsphere/blogsphere/internal/ratelimit"
	"github.com/blogsphere/blogsphere/internal/users"
)

const (
	RateLimitBackendMemory = "memory"
	RateLimitBackendRedis  = "redis"
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	accessTTL := c.JWT.AccessTTL
	if accessTTL <= 0 {
		accessTTL = auth.DefaultAccessTokenTTL
	}
	refreshTTL := c.JWT.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = auth.DefaultRefreshTokenTTL
	}

	return auth.JWTConfig{
		Secret:          c.JWT.Secret,
		Issuer:          c.JWT.Issuer,
		AccessTokenTTL:  accessTTL,
		RefreshTokenTTL: refreshTTL,
	}
}

// CredentialConfig converts AuthConfig into CredentialVerifier parameters.
func (c AuthConfig) CredentialConfig() auth.CredentialConfig {
	maxAttempts := c.RateLimit.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = ratelimit.DefaultMaxAttempts
	}
	window := c.RateLimit.Window
	if window <= 0 {
		window = ratelimit.DefaultWindow
	}

	return auth.CredentialConfig{
		MaxAttempts: maxAttempts,
		Window:      window,
		AutoConfirm: c.Users.AutoConfirm,
	}
}

// RateLimitBackend returns the normalised limiter backend name, defaulting to memory.
func (c AuthConfig) RateLimitBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.RateLimit.Backend))
	if backend == "" {
		return RateLimitBackendMemory
	}
	return backend
}

// BootstrapUserInput returns the account to create on startup, if one is configured.
func (c AuthConfig) BootstrapUserInput() (users.CreateInput, bool) {
	b := c.Users.Bootstrap
	login := strings.TrimSpace(b.Login)
	if login == "" || b.Password == "" {
		return users.CreateInput{}, false
	}

	email := strings.TrimSpace(b.Email)
	if email == "" {
		email = login + "@localhost"
	}

	return users.CreateInput{
		Login:          login,
		Email:          email,
		Password:       b.Password,
		EmailConfirmed: true,
	}, true
}
