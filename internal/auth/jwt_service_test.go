package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.Error(t, err)
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestNewJWTServiceDefaults(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)
	require.Equal(t, DefaultAccessTokenTTL, svc.AccessTTL())
	require.Equal(t, DefaultRefreshTokenTTL, svc.RefreshTTL())
}

func TestIssueAndVerifyRefreshToken(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 500, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:          "super-secret",
		Issuer:          "blogsphere",
		RefreshTokenTTL: time.Hour,
		Clock:           now,
	})
	require.NoError(t, err)

	token, issued, err := svc.Issue(IssueInput{
		UserID:    "user-123",
		DeviceID:  "device-1",
		TokenType: TokenTypeRefresh,
		SessionID: "session-456",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.Verify(token)
	require.NoError(t, err)

	require.Equal(t, "user-123", claims.UserID())
	require.Equal(t, "device-1", claims.DeviceID)
	require.Equal(t, "session-456", claims.SessionID())
	require.Equal(t, TokenTypeRefresh, claims.TokenType)
	require.Equal(t, "blogsphere", claims.Issuer)
	require.Equal(t, current.Truncate(time.Second).Unix(), claims.IssuedAtUnix())
	require.Equal(t, current.Add(time.Hour).Truncate(time.Second).Unix(), claims.ExpiresAtUnix())
	require.Equal(t, issued.IssuedAtUnix(), claims.IssuedAtUnix())
	require.Equal(t, issued.ExpiresAtUnix(), claims.ExpiresAtUnix())
}

func TestIssueAccessTokenOmitsSession(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	token, issued, err := svc.Issue(IssueInput{UserID: "user-1", DeviceID: "device-1"})
	require.NoError(t, err)
	require.Equal(t, TokenTypeAccess, issued.TokenType)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	require.Empty(t, claims.SessionID())
	require.Equal(t, TokenTypeAccess, claims.TokenType)
}

func TestIssueHonoursExplicitIssuedAtAndTTL(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewJWTService(JWTConfig{Secret: "secret", Clock: func() time.Time { return current }})
	require.NoError(t, err)

	_, claims, err := svc.Issue(IssueInput{
		UserID:   "user-1",
		IssuedAt: current.Add(time.Second),
		TTL:      time.Minute,
	})
	require.NoError(t, err)
	require.Equal(t, current.Add(time.Second).Unix(), claims.IssuedAtUnix())
	require.Equal(t, current.Add(time.Second+time.Minute).Unix(), claims.ExpiresAtUnix())
}

func TestIssueValidatesInput(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	_, _, err = svc.Issue(IssueInput{})
	require.Error(t, err)

	_, _, err = svc.Issue(IssueInput{UserID: "user-1", TokenType: "id"})
	require.Error(t, err)
}

func TestVerifyInvalidSignature(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC) }

	issuer, err := NewJWTService(JWTConfig{Secret: "issuer-secret", Clock: now})
	require.NoError(t, err)

	token, _, err := issuer.Issue(IssueInput{UserID: "user-123"})
	require.NoError(t, err)

	verifier, err := NewJWTService(JWTConfig{Secret: "other-secret", Clock: now})
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestVerifyExpired(t *testing.T) {
	current := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:         "secret",
		AccessTokenTTL: time.Minute,
		Clock:          now,
	})
	require.NoError(t, err)

	token, _, err := svc.Issue(IssueInput{UserID: "user-123"})
	require.NoError(t, err)

	// Move time forward beyond expiry.
	current = current.Add(2 * time.Minute)

	_, err = svc.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
	require.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	other, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "elsewhere"})
	require.NoError(t, err)
	token, _, err := other.Issue(IssueInput{UserID: "user-1"})
	require.NoError(t, err)

	svc, err := NewJWTService(JWTConfig{Secret: "secret", Issuer: "blogsphere"})
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRequiresExpiry(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret"})
	require.NoError(t, err)

	_, err = svc.Verify("")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestDecodeSkipsVerification(t *testing.T) {
	current := time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC)
	issuer, err := NewJWTService(JWTConfig{Secret: "one", Clock: func() time.Time { return current }})
	require.NoError(t, err)

	token, _, err := issuer.Issue(IssueInput{UserID: "user-1", DeviceID: "device-9"})
	require.NoError(t, err)

	other, err := NewJWTService(JWTConfig{Secret: "two"})
	require.NoError(t, err)

	claims, err := other.Decode(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID())
	require.Equal(t, "device-9", claims.DeviceID)

	_, err = other.Decode("garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}
