package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "sigil/pkg/domain"
	dErrors "sigil/pkg/domain-errors"
)

func TestIssueAndValidate(t *testing.T) {
	svc := NewService("signing-key", "sigil-test")

	signed, err := svc.IssueToken("alice", time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Account)
	assert.Equal(t, "sigil-test", claims.Issuer)

	account, err := svc.ValidateAccount(signed)
	require.NoError(t, err)
	assert.Equal(t, id.AccountID("alice"), account)
}

func TestValidate_ExpiredToken(t *testing.T) {
	svc := NewService("signing-key", "sigil-test")

	signed, err := svc.IssueToken("alice", -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func TestValidate_WrongKey(t *testing.T) {
	signed, err := NewService("key-one", "sigil-test").IssueToken("alice", time.Hour)
	require.NoError(t, err)

	_, err = NewService("key-two", "sigil-test").ValidateToken(signed)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidate_Garbage(t *testing.T) {
	svc := NewService("signing-key", "sigil-test")

	for _, raw := range []string{"", "not-a-token", "a.b.c"} {
		_, err := svc.ValidateToken(raw)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	}
}
