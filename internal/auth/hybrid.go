package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/blogsphere/blogsphere/internal/models"
	apperrors "github.com/blogsphere/blogsphere/pkg/errors"
	"github.com/blogsphere/blogsphere/pkg/logger"
	"github.com/blogsphere/blogsphere/pkg/metrics"
)

// UserLookup resolves users by id. Soft-deleted users must still be returned
// so callers can tell them apart from unknown ids; absent users yield (nil, nil).
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Credentials are the raw authentication inputs of a request.
type Credentials struct {
	Bearer        string
	RefreshCookie string
}

// Principal identifies the authenticated user and device.
type Principal struct {
	UserID    string
	DeviceID  string
	SessionID string
}

// BearerStatus tags the outcome of bearer token resolution.
type BearerStatus int

const (
	BearerAbsent BearerStatus = iota
	BearerOK
	BearerInvalid
)

func (s BearerStatus) String() string {
	switch s {
	case BearerOK:
		return "ok"
	case BearerInvalid:
		return "invalid"
	default:
		return "absent"
	}
}

// BearerResult is the outcome of ResolveBearer. Err carries the cause when
// Status is BearerInvalid.
type BearerResult struct {
	Status    BearerStatus
	Principal Principal
	Err       error
}

var (
	ErrUserNotFound = errors.New("auth: user not found")
	ErrUserDeleted  = errors.New("auth: user deleted")
	errNoCookie     = errors.New("auth: refresh cookie missing")
)

// HybridAuthenticator accepts either a bearer access token or, failing that,
// the refresh cookie of a live session.
type HybridAuthenticator struct {
	jwt      *JWTService
	sessions SessionStore
	users    UserLookup
	log      *zap.Logger
}

// NewHybridAuthenticator wires the authenticator dependencies.
func NewHybridAuthenticator(jwtService *JWTService, sessions SessionStore, users UserLookup, log *zap.Logger) (*HybridAuthenticator, error) {
	if jwtService == nil {
		return nil, errors.New("hybrid auth: jwt service is required")
	}
	if sessions == nil {
		return nil, errors.New("hybrid auth: session store is required")
	}
	if users == nil {
		return nil, errors.New("hybrid auth: user lookup is required")
	}
	if log == nil {
		log = logger.WithModule("auth")
	}
	return &HybridAuthenticator{
		jwt:      jwtService,
		sessions: sessions,
		users:    users,
		log:      log,
	}, nil
}

// Authenticate tries the bearer token first and only falls back to the
// refresh cookie when the bearer is absent or invalid. Malformed bearer tokens
// count as invalid. Every failure on the cookie path is ErrUnauthorized.
func (a *HybridAuthenticator) Authenticate(ctx context.Context, creds Credentials) (Principal, error) {
	bearer := a.ResolveBearer(ctx, creds.Bearer)
	if bearer.Status == BearerOK {
		metrics.HybridAuth.WithLabelValues("bearer").Inc()
		return bearer.Principal, nil
	}
	if bearer.Status == BearerInvalid {
		a.log.Debug("bearer rejected, trying refresh cookie", zap.Error(bearer.Err))
	}

	principal, err := a.fromRefreshToken(ctx, creds.RefreshCookie)
	if err != nil {
		metrics.HybridAuth.WithLabelValues("rejected").Inc()
		return Principal{}, a.unauthorized(err)
	}

	metrics.HybridAuth.WithLabelValues("cookie").Inc()
	return principal, nil
}

// ResolveBearer validates an access token without touching the session store.
func (a *HybridAuthenticator) ResolveBearer(ctx context.Context, token string) BearerResult {
	token = strings.TrimSpace(token)
	if token == "" {
		return BearerResult{Status: BearerAbsent}
	}

	claims, err := a.jwt.Verify(token)
	if err != nil {
		return BearerResult{Status: BearerInvalid, Err: err}
	}
	if claims.TokenType != TokenTypeAccess {
		return BearerResult{Status: BearerInvalid, Err: ErrWrongTokenType}
	}
	if claims.UserID() == "" || claims.DeviceID == "" {
		return BearerResult{Status: BearerInvalid, Err: ErrMissingClaims}
	}
	if err := a.requireActiveUser(ctx, claims.UserID()); err != nil {
		return BearerResult{Status: BearerInvalid, Err: err}
	}

	return BearerResult{
		Status:    BearerOK,
		Principal: Principal{UserID: claims.UserID(), DeviceID: claims.DeviceID},
	}
}

// RefreshOnly authenticates a request by its refresh cookie alone.
func (a *HybridAuthenticator) RefreshOnly(ctx context.Context, cookie string) (Principal, error) {
	principal, err := a.fromRefreshToken(ctx, cookie)
	if err != nil {
		return Principal{}, a.unauthorized(err)
	}
	return principal, nil
}

func (a *HybridAuthenticator) fromRefreshToken(ctx context.Context, token string) (Principal, error) {
	if strings.TrimSpace(token) == "" {
		return Principal{}, errNoCookie
	}

	claims, err := a.jwt.Verify(token)
	if err != nil {
		return Principal{}, err
	}
	if err := requireRefreshClaims(claims); err != nil {
		return Principal{}, err
	}
	if err := a.requireActiveUser(ctx, claims.UserID()); err != nil {
		return Principal{}, err
	}

	session, err := a.sessions.FindByID(ctx, claims.SessionID())
	if err != nil {
		return Principal{}, err
	}
	if session == nil {
		return Principal{}, ErrSessionNotFound
	}
	if session.IssuedAt != claims.IssuedAtUnix() {
		return Principal{}, ErrTokenReplayed
	}
	if session.DeviceID != claims.DeviceID || session.UserID != claims.UserID() {
		return Principal{}, ErrSessionMismatch
	}

	return Principal{
		UserID:    session.UserID,
		DeviceID:  session.DeviceID,
		SessionID: session.ID,
	}, nil
}

func (a *HybridAuthenticator) requireActiveUser(ctx context.Context, userID string) error {
	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.IsDeleted() {
		return ErrUserDeleted
	}
	return nil
}

func (a *HybridAuthenticator) unauthorized(cause error) error {
	if errors.Is(cause, ErrStorage) || !isAuthCause(cause) {
		a.log.Warn("authentication lookup failed", zap.Error(cause))
	} else {
		a.log.Debug("authentication rejected", zap.Error(cause))
	}
	return apperrors.ErrUnauthorized.WithInternal(cause)
}

// isAuthCause reports whether cause is an ordinary credential rejection as
// opposed to an I/O failure.
func isAuthCause(cause error) bool {
	for _, target := range []error{
		ErrInvalidToken, ErrWrongTokenType, ErrMissingClaims, ErrSessionNotFound,
		ErrTokenReplayed, ErrSessionMismatch, ErrUserNotFound, ErrUserDeleted, errNoCookie,
	} {
		if errors.Is(cause, target) {
			return true
		}
	}
	return false
}
