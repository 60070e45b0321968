package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blogsphere/blogsphere/internal/models"
	apperrors "github.com/blogsphere/blogsphere/pkg/errors"
	"github.com/blogsphere/blogsphere/pkg/logger"
	"github.com/blogsphere/blogsphere/pkg/metrics"
)

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	Clock  func() time.Time
	Logger *zap.Logger
}

// TokenPair represents an access token and refresh token pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// SessionView is the public projection of a device session.
type SessionView struct {
	IP             string `json:"ip"`
	Title          string `json:"title"`
	LastActiveDate string `json:"lastActiveDate"`
	DeviceID       string `json:"deviceId"`
}

// Causes attached to normalized Unauthorized errors. Callers only ever see
// ErrUnauthorized; these stay reachable through errors.Is for logs and tests.
var (
	ErrWrongTokenType     = errors.New("session: wrong token type")
	ErrMissingClaims      = errors.New("session: required claims missing")
	ErrSessionNotFound    = errors.New("session: not found")
	ErrTokenReplayed      = errors.New("session: refresh token already used")
	ErrSessionMismatch    = errors.New("session: token does not match session")
	ErrRotationConflict   = errors.New("session: concurrent rotation")
	errIncompleteIssuance = errors.New("session: issued refresh token lacks iat or exp")
)

// maxRotationLead caps how far back-to-back refreshes may push iat past the
// current time.
const maxRotationLead = 5 * time.Second

// SessionService manages issuance, rotation and termination of device sessions.
type SessionService struct {
	store SessionStore
	jwt   *JWTService
	now   func() time.Time
	log   *zap.Logger
}

// NewSessionService constructs a session manager backed by the provided store and JWT service.
func NewSessionService(store SessionStore, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	if store == nil {
		return nil, errors.New("session service: store is required")
	}
	if jwtService == nil {
		return nil, errors.New("session service: jwt service is required")
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	log := cfg.Logger
	if log == nil {
		log = logger.WithModule("session")
	}

	return &SessionService{
		store: store,
		jwt:   jwtService,
		now:   clock,
		log:   log,
	}, nil
}

// Login starts a new session on a fresh device for an already authenticated user.
func (s *SessionService) Login(ctx context.Context, userID, deviceName, ip string) (TokenPair, error) {
	if strings.TrimSpace(userID) == "" {
		return TokenPair{}, apperrors.NewBadRequest("user id is required")
	}

	deviceID := uuid.NewString()
	sessionID := uuid.NewString()

	pair, refreshClaims, err := s.issuePair(userID, deviceID, sessionID, time.Time{})
	if err != nil {
		return TokenPair{}, s.fail("login", err)
	}

	session := &models.Session{
		ID:         sessionID,
		UserID:     userID,
		DeviceID:   deviceID,
		DeviceName: strings.TrimSpace(deviceName),
		IP:         strings.TrimSpace(ip),
		IssuedAt:   refreshClaims.IssuedAtUnix(),
		ExpiresAt:  refreshClaims.ExpiresAtUnix(),
	}
	if err := s.store.Save(ctx, session); err != nil {
		return TokenPair{}, s.fail("login", err)
	}

	metrics.SessionEvents.WithLabelValues("login", "ok").Inc()
	s.log.Debug("session created",
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
	)
	return pair, nil
}

// Refresh rotates the session bound to refreshToken and issues a new pair.
// Every failure is reported as ErrUnauthorized.
func (s *SessionService) Refresh(ctx context.Context, refreshToken, ip string) (TokenPair, error) {
	pair, err := s.refresh(ctx, refreshToken, ip)
	if err != nil {
		return TokenPair{}, s.reject("refresh", err)
	}
	metrics.SessionEvents.WithLabelValues("refresh", "ok").Inc()
	return pair, nil
}

func (s *SessionService) refresh(ctx context.Context, refreshToken, ip string) (TokenPair, error) {
	claims, err := s.verifyRefresh(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	session, err := s.store.FindByID(ctx, claims.SessionID())
	if err != nil {
		return TokenPair{}, err
	}
	if session == nil {
		return TokenPair{}, ErrSessionNotFound
	}
	if session.IssuedAt != claims.IssuedAtUnix() {
		return TokenPair{}, ErrTokenReplayed
	}
	if session.UserID != claims.UserID() || session.DeviceID != claims.DeviceID {
		return TokenPair{}, ErrSessionMismatch
	}

	// iat has one-second resolution; a rotation within the same second must
	// still produce a strictly newer iat or the old token would stay valid.
	// The lead over wall clock is bounded by maxRotationLead.
	issuedAt := s.now().Truncate(time.Second)
	if time.Unix(session.IssuedAt, 0).Sub(issuedAt) >= maxRotationLead {
		return TokenPair{}, ErrRotationConflict
	}
	if floor := time.Unix(session.IssuedAt+1, 0); issuedAt.Before(floor) {
		issuedAt = floor
	}

	pair, next, err := s.issuePair(session.UserID, session.DeviceID, session.ID, issuedAt)
	if err != nil {
		return TokenPair{}, err
	}

	clientIP := strings.TrimSpace(ip)
	if clientIP == "" {
		clientIP = session.IP
	}

	rotated, err := s.store.Rotate(ctx, session.ID, session.IssuedAt, RotateInput{
		IssuedAt:  next.IssuedAtUnix(),
		ExpiresAt: next.ExpiresAtUnix(),
		IP:        clientIP,
	})
	if err != nil {
		return TokenPair{}, err
	}
	if !rotated {
		metrics.RefreshConflicts.Inc()
		return TokenPair{}, ErrRotationConflict
	}

	return pair, nil
}

// Logout terminates the session bound to refreshToken. A token that does not
// match the live session, including a second logout, is rejected.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.logout(ctx, refreshToken); err != nil {
		return s.reject("logout", err)
	}
	metrics.SessionEvents.WithLabelValues("logout", "ok").Inc()
	return nil
}

func (s *SessionService) logout(ctx context.Context, refreshToken string) error {
	claims, err := s.verifyRefresh(refreshToken)
	if err != nil {
		return err
	}

	session, err := s.store.FindByUserAndDevice(ctx, claims.UserID(), claims.DeviceID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if session.IssuedAt != claims.IssuedAtUnix() {
		return ErrTokenReplayed
	}

	deleted, err := s.store.DeleteByUserAndDevice(ctx, claims.UserID(), claims.DeviceID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteSessionByDevice terminates the session on deviceID if it belongs to
// requestingUserID.
func (s *SessionService) DeleteSessionByDevice(ctx context.Context, requestingUserID, deviceID string) error {
	if strings.TrimSpace(requestingUserID) == "" || strings.TrimSpace(deviceID) == "" {
		return apperrors.NewBadRequest("user id and device id are required")
	}

	session, err := s.store.FindByDevice(ctx, deviceID)
	if err != nil {
		return s.fail("terminate", err)
	}
	if session == nil {
		metrics.SessionEvents.WithLabelValues("terminate", "rejected").Inc()
		return apperrors.ErrNotFound
	}
	if session.UserID != requestingUserID {
		metrics.SessionEvents.WithLabelValues("terminate", "rejected").Inc()
		return apperrors.ErrForbidden
	}

	deleted, err := s.store.DeleteByDevice(ctx, deviceID)
	if err != nil {
		return s.fail("terminate", err)
	}
	if !deleted {
		metrics.SessionEvents.WithLabelValues("terminate", "rejected").Inc()
		return apperrors.ErrNotFound
	}

	metrics.SessionEvents.WithLabelValues("terminate", "ok").Inc()
	return nil
}

// DeleteAllExceptCurrent terminates every session of userID except the one on
// currentDeviceID.
func (s *SessionService) DeleteAllExceptCurrent(ctx context.Context, userID, currentDeviceID string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(currentDeviceID) == "" {
		return apperrors.NewBadRequest("user id and device id are required")
	}

	if err := s.store.DeleteAllExceptDevice(ctx, userID, currentDeviceID); err != nil {
		return s.fail("terminate_others", err)
	}

	metrics.SessionEvents.WithLabelValues("terminate_others", "ok").Inc()
	return nil
}

// ListSessions returns the user's active device sessions, newest first.
// Sessions whose refresh token has expired are omitted.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]SessionView, error) {
	sessions, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.ErrInternalServer.WithInternal(err)
	}

	now := s.now()
	views := make([]SessionView, 0, len(sessions))
	for i := range sessions {
		if !sessions[i].ExpiresAtTime().After(now) {
			continue
		}
		views = append(views, SessionView{
			IP:             sessions[i].IP,
			Title:          sessions[i].DeviceName,
			LastActiveDate: sessions[i].IssuedAtTime().Format(time.RFC3339),
			DeviceID:       sessions[i].DeviceID,
		})
	}
	return views, nil
}

// verifyRefresh validates a refresh token and the claims every refresh-token
// flow depends on.
func (s *SessionService) verifyRefresh(token string) (*Claims, error) {
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return nil, err
	}
	return claims, requireRefreshClaims(claims)
}

func requireRefreshClaims(claims *Claims) error {
	if claims.TokenType != TokenTypeRefresh {
		return ErrWrongTokenType
	}
	if claims.UserID() == "" || claims.SessionID() == "" || claims.DeviceID == "" || claims.IssuedAt == nil {
		return ErrMissingClaims
	}
	return nil
}

func (s *SessionService) issuePair(userID, deviceID, sessionID string, issuedAt time.Time) (TokenPair, *Claims, error) {
	if issuedAt.IsZero() {
		issuedAt = s.now()
	}

	access, _, err := s.jwt.Issue(IssueInput{
		UserID:    userID,
		DeviceID:  deviceID,
		TokenType: TokenTypeAccess,
		IssuedAt:  issuedAt,
	})
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, claims, err := s.jwt.Issue(IssueInput{
		UserID:    userID,
		DeviceID:  deviceID,
		TokenType: TokenTypeRefresh,
		SessionID: sessionID,
		IssuedAt:  issuedAt,
	})
	if err != nil {
		return TokenPair{}, nil, fmt.Errorf("issue refresh token: %w", err)
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return TokenPair{}, nil, errIncompleteIssuance
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, claims, nil
}

// reject normalizes an authentication failure to ErrUnauthorized.
func (s *SessionService) reject(event string, cause error) error {
	metrics.SessionEvents.WithLabelValues(event, "rejected").Inc()
	if errors.Is(cause, ErrStorage) {
		s.log.Error(event+" failed", zap.Error(cause))
	} else {
		s.log.Debug(event+" rejected", zap.Error(cause))
	}
	return apperrors.ErrUnauthorized.WithInternal(cause)
}

func (s *SessionService) fail(event string, cause error) error {
	metrics.SessionEvents.WithLabelValues(event, "error").Inc()
	s.log.Error(event+" failed", zap.Error(cause))
	return apperrors.ErrInternalServer.WithInternal(cause)
}
