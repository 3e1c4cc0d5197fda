package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() *Service {
	return NewService("test-issuer", []byte("test-secret"), time.Hour)
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	svc := newTestService()

	user, err := svc.Register("Trader@Example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "trader@example.com", user.Email)

	token, err := svc.Login("trader@example.com", "hunter22")
	require.NoError(t, err)

	userID, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestDuplicateEmail(t *testing.T) {
	svc := newTestService()
	_, err := svc.Register("trader@example.com", "hunter22")
	require.NoError(t, err)
	_, err = svc.Register("trader@example.com", "other")
	assert.Error(t, err)
}

func TestWrongPassword(t *testing.T) {
	svc := newTestService()
	_, err := svc.Register("trader@example.com", "hunter22")
	require.NoError(t, err)

	_, err = svc.Login("trader@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login("nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenFromOtherIssuerRejected(t *testing.T) {
	svc := newTestService()
	user, err := svc.Register("trader@example.com", "hunter22")
	require.NoError(t, err)

	other := NewService("other-issuer", []byte("test-secret"), time.Hour)
	token, err := other.signToken(user.ID)
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.Error(t, err)
}
