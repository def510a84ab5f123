package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
)

func TestIssueAndVerify(t *testing.T) {
	manager := NewManager("test-secret-key", "yunjv-crm", time.Hour)

	token, err := manager.Issue("user-1", domain.RoleAgent, domain.UserTypeAgent, "key-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, domain.RoleAgent, claims.Role)
	assert.Equal(t, domain.UserTypeAgent, claims.Type)
	assert.Equal(t, "key-1", claims.KeyID)
	assert.Equal(t, "yunjv-crm", claims.Issuer)
	assert.Equal(t, "user-1", claims.Subject)
}

func TestIssueAdminWithoutKeyID(t *testing.T) {
	manager := NewManager("test-secret-key", "yunjv-crm", time.Hour)

	token, err := manager.Issue("admin-1", domain.RoleSuperAdmin, domain.UserTypeAdmin, "")
	require.NoError(t, err)

	claims, err := manager.Verify(token)
	require.NoError(t, err)
	assert.Empty(t, claims.KeyID)
	assert.Equal(t, domain.UserTypeAdmin, claims.Type)
}

func TestVerifyExpiredToken(t *testing.T) {
	manager := NewManager("test-secret-key", "yunjv-crm", -time.Minute)

	token, err := manager.Issue("user-1", domain.RoleAgent, domain.UserTypeAgent, "")
	require.NoError(t, err)

	_, err = manager.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	issuer := NewManager("correct-secret", "yunjv-crm", time.Hour)
	verifier := NewManager("wrong-secret", "yunjv-crm", time.Hour)

	token, err := issuer.Issue("user-1", domain.RoleAgent, domain.UserTypeAgent, "")
	require.NoError(t, err)

	_, err = verifier.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyGarbageToken(t *testing.T) {
	manager := NewManager("test-secret-key", "yunjv-crm", time.Hour)

	_, err := manager.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = manager.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractUserID(t *testing.T) {
	manager := NewManager("test-secret-key", "yunjv-crm", -time.Minute)

	// ExtractUserID is the lenient path: it works even on expired tokens
	token, err := manager.Issue("user-1", domain.RoleAgent, domain.UserTypeAgent, "")
	require.NoError(t, err)

	userID, err := manager.ExtractUserID(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	_, err = manager.ExtractUserID("garbage")
	assert.Error(t, err)
}

func TestExpiry(t *testing.T) {
	manager := NewManager("test-secret-key", "yunjv-crm", 2*time.Hour)
	assert.Equal(t, 2*time.Hour, manager.Expiry())
}
