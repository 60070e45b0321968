package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blogsphere/blogsphere/internal/models"
	"github.com/blogsphere/blogsphere/pkg/crypto"
	apperrors "github.com/blogsphere/blogsphere/pkg/errors"
	"github.com/blogsphere/blogsphere/pkg/logger"
	"github.com/blogsphere/blogsphere/pkg/metrics"
)

const (
	DefaultLoginMaxAttempts = 5
	DefaultLoginWindow      = 10 * time.Second
)

// CredentialUsers finds users by login or e-mail address, case-insensitively.
// Absent users yield (nil, nil).
type CredentialUsers interface {
	FindByLoginOrEmail(ctx context.Context, loginOrEmail string) (*models.User, error)
}

// AttemptLimiter records an attempt for key and reports whether the key has
// exceeded max attempts inside window.
type AttemptLimiter interface {
	IsLimited(ctx context.Context, key string, max int, window time.Duration) (bool, error)
}

// CredentialConfig tunes the CredentialVerifier.
type CredentialConfig struct {
	MaxAttempts int
	Window      time.Duration
	// AutoConfirm lets users with an unconfirmed e-mail sign in.
	AutoConfirm bool
	Logger      *zap.Logger
}

// CredentialVerifier checks login credentials and throttles failed attempts per client IP.
type CredentialVerifier struct {
	users       CredentialUsers
	limiter     AttemptLimiter
	maxAttempts int
	window      time.Duration
	autoConfirm bool
	log         *zap.Logger
}

// NewCredentialVerifier builds a verifier; the limiter is required.
func NewCredentialVerifier(users CredentialUsers, limiter AttemptLimiter, cfg CredentialConfig) (*CredentialVerifier, error) {
	if users == nil {
		return nil, errors.New("credential verifier: users are required")
	}
	if limiter == nil {
		return nil, errors.New("credential verifier: rate limiter is required")
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultLoginMaxAttempts
	}
	window := cfg.Window
	if window <= 0 {
		window = DefaultLoginWindow
	}
	log := cfg.Logger
	if log == nil {
		log = logger.WithModule("auth")
	}

	return &CredentialVerifier{
		users:       users,
		limiter:     limiter,
		maxAttempts: maxAttempts,
		window:      window,
		autoConfirm: cfg.AutoConfirm,
		log:         log,
	}, nil
}

// LoginAttemptKey is the rate limiter key for login attempts from ip.
func LoginAttemptKey(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	return "login:" + ip
}

// Validate returns the id of the user identified by loginOrEmail when password
// matches. Failed attempts count against the client IP; once the limit is
// exceeded ErrRateLimit is returned instead of ErrInvalidCredentials.
func (v *CredentialVerifier) Validate(ctx context.Context, loginOrEmail, password, ip string) (string, error) {
	user, err := v.users.FindByLoginOrEmail(ctx, strings.TrimSpace(loginOrEmail))
	if err != nil {
		v.log.Error("credential lookup failed", zap.Error(err))
		return "", apperrors.ErrInternalServer.WithInternal(err)
	}

	if user == nil {
		return "", v.failedAttempt(ctx, ip)
	}

	if !user.EmailConfirmed && !v.autoConfirm {
		metrics.AuthAttempts.WithLabelValues("unconfirmed").Inc()
		return "", apperrors.ErrInvalidCredentials
	}

	if !crypto.VerifyPassword(user.PasswordHash, password) {
		return "", v.failedAttempt(ctx, ip)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return user.ID, nil
}

func (v *CredentialVerifier) failedAttempt(ctx context.Context, ip string) error {
	key := LoginAttemptKey(ip)
	limited, err := v.limiter.IsLimited(ctx, key, v.maxAttempts, v.window)
	if err != nil {
		// A broken limiter backend must not lock everyone out.
		v.log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
	}
	if limited {
		metrics.AuthAttempts.WithLabelValues("limited").Inc()
		return apperrors.ErrRateLimit
	}

	metrics.AuthAttempts.WithLabelValues("failure").Inc()
	return apperrors.ErrInvalidCredentials
}
