package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser(t *testing.T) {
	u, err := CreateUser("alice", "alice@example.com", "s3cret-pass")
	require.NoError(t, err)

	assert.NotEmpty(t, u.AuthUserID)
	assert.Equal(t, ROLE_USER, u.Role)
	assert.Equal(t, STATUS_ACTIVE, u.Status)
	assert.True(t, u.IsActive())
	assert.True(t, u.CheckPassword("s3cret-pass"))
	assert.False(t, u.CheckPassword("wrong"))
}

func TestCreateUserValidation(t *testing.T) {
	_, err := CreateUser("al", "alice@example.com", "s3cret-pass")
	assert.Error(t, err, "name below minimum length should fail validation")

	_, err = CreateUser("alice", "not-an-email", "s3cret-pass")
	assert.Error(t, err)
}

func TestSetPassword(t *testing.T) {
	u := &User{}
	require.NoError(t, u.SetPassword("new-password"))

	assert.NotEqual(t, "new-password", u.Password)
	assert.True(t, u.CheckPassword("new-password"))
}

func TestIsEntitlingSubscriptionStatus(t *testing.T) {
	assert.True(t, IsEntitlingSubscriptionStatus(SubscriptionStatusActive))
	assert.True(t, IsEntitlingSubscriptionStatus(SubscriptionStatusTrialing))
	assert.False(t, IsEntitlingSubscriptionStatus(SubscriptionStatusPastDue))
	assert.False(t, IsEntitlingSubscriptionStatus(SubscriptionStatusCanceled))
	assert.False(t, IsEntitlingSubscriptionStatus(SubscriptionStatusUnpaid))
	assert.False(t, IsEntitlingSubscriptionStatus(""))
}
