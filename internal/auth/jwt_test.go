package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	userID := uuid.New()

	token, err := svc.GenerateAdmin(userID, "Dana")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.SubjectID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, "Dana", claims.Name)
	assert.Nil(t, claims.SessionID)
}

func TestGuestTokenIsSessionScoped(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	guestID := uuid.New()
	sessionID := uuid.New()

	token, err := svc.GenerateGuest(guestID, sessionID, "Riley")
	require.NoError(t, err)

	claims, err := svc.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, guestID, claims.SubjectID)
	assert.Equal(t, "guest", claims.Role)
	require.NotNil(t, claims.SessionID)
	assert.Equal(t, sessionID, *claims.SessionID)
}

func TestValidateRejectsGarbage(t *testing.T) {
	svc := NewJWTService("test-secret", 1)
	_, err := svc.Validate("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService("secret-a", 1).GenerateAdmin(uuid.New(), "Dana")
	require.NoError(t, err)

	_, err = NewJWTService("secret-b", 1).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
