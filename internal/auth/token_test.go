package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	manager := NewTokenManager("test-secret", time.Hour)
	employeeID := uuid.New()

	token, err := manager.Sign(employeeID, "EMP-001", "Kim")
	require.NoError(t, err)

	parsedID, claims, err := manager.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, employeeID, parsedID)
	assert.Equal(t, "EMP-001", claims.EmployeeNumber)
	assert.Equal(t, "Kim", claims.Name)
}

func TestTokenWrongSecret(t *testing.T) {
	manager := NewTokenManager("test-secret", time.Hour)
	other := NewTokenManager("other-secret", time.Hour)

	token, err := manager.Sign(uuid.New(), "EMP-001", "Kim")
	require.NoError(t, err)

	_, _, err = other.Verify(token)
	assert.Error(t, err)
}

func TestTokenExpired(t *testing.T) {
	manager := NewTokenManager("test-secret", -time.Minute)

	token, err := manager.Sign(uuid.New(), "EMP-001", "Kim")
	require.NoError(t, err)

	_, _, err = manager.Verify(token)
	assert.Error(t, err)
}

func TestTokenGarbage(t *testing.T) {
	manager := NewTokenManager("test-secret", time.Hour)
	_, _, err := manager.Verify("not-a-token")
	assert.Error(t, err)
}
