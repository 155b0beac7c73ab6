package token

import (
	"testing"
	"time"

	"chat-auth-service/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, secret string) *Service {
	t.Helper()
	svc, err := NewService(config.JWTConfig{
		Secret:    secret,
		ExpiresIn: time.Hour,
		Issuer:    "chat-auth-service",
	})
	require.NoError(t, err)
	return svc
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, "super-secret")

	tok, err := svc.Issue("acc-1", "+15551234567")
	require.NoError(t, err)

	claims, err := svc.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.AccountID)
	assert.Equal(t, "+15551234567", claims.PhoneNumber)
	assert.Equal(t, "acc-1", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, "super-secret")

	past := svc.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	tok, err := past.Issue("acc-1", "+15551234567")
	require.NoError(t, err)

	_, err = svc.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := newTestService(t, "right-secret").Issue("acc-1", "+15551234567")
	require.NoError(t, err)

	_, err = newTestService(t, "wrong-secret").Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, "k")

	for _, tok := range []string{"", "not.a.jwt", "abc"} {
		_, err := svc.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken, tok)
	}
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, "super-secret")

	claims := Claims{
		AccountID:   "acc-1",
		PhoneNumber: "+15551234567",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chat-auth-service",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("super-secret"))
	require.NoError(t, err)

	_, err = svc.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = svc.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RequiresExpiry(t *testing.T) {
	t.Parallel()
	svc := newTestService(t, "super-secret")

	claims := Claims{
		AccountID:        "acc-1",
		PhoneNumber:      "+15551234567",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "chat-auth-service"},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("super-secret"))
	require.NoError(t, err)

	_, err = svc.Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewService_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewService(config.JWTConfig{ExpiresIn: time.Hour})
	assert.Error(t, err)

	_, err = NewService(config.JWTConfig{Secret: "s"})
	assert.Error(t, err)
}
