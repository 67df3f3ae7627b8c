package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, err := m.CreateToken("u-1", RoleStaff)
	require.NoError(t, err)

	claims, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, RoleStaff, claims.Role)
}

func TestVerifyRejects(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	_, err := m.Verify("not-a-token")
	assert.Error(t, err)

	// token signed with a different secret
	other := NewManager("other-secret", time.Hour)
	token, err := other.CreateToken("u-1", RoleStaff)
	require.NoError(t, err)
	_, err = m.Verify(token)
	assert.Error(t, err)

	// expired token
	expired := NewManager("test-secret", -time.Minute)
	token, err = expired.CreateToken("u-1", RoleStaff)
	require.NoError(t, err)
	_, err = m.Verify(token)
	assert.Error(t, err)
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, (&Claims{Role: RoleAdmin}).IsAdmin())
	assert.False(t, (&Claims{Role: RoleCustomer}).IsAdmin())
	var nilClaims *Claims
	assert.False(t, nilClaims.IsAdmin())
}
