package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth(t *testing.T) (*AuthService, map[string]string) {
	t.Helper()
	codes := map[string]string{}
	cfg := DefaultConfig().Auth
	cfg.OnCode = func(email, purpose, code string) { codes[purpose+":"+email] = code }
	require.NoError(t, cfg.Validate())
	return NewAuthService(&cfg), codes
}

func TestAuthService_TokenTypes(t *testing.T) {
	auth, codes := newTestAuth(t)

	_, err := auth.Register("Alice@Example.com ", "passw0rdx", "Alice")
	require.NoError(t, err)
	require.NoError(t, auth.Confirm("alice@example.com", codes["confirm:alice@example.com"]))

	acc, tokens, err := auth.Login("ALICE@example.com", "passw0rdx")
	require.NoError(t, err)

	claims, err := auth.ValidateAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, claims.Subject)
	assert.Equal(t, "alice@example.com", claims.Email)

	_, err = auth.ValidateAccessToken(tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh tokens are signed with another secret")
	_, err = auth.ValidateAccessToken(tokens.IDToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "id tokens are not access tokens")
	_, err = auth.Refresh(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_ExpiredAccessToken(t *testing.T) {
	auth, _ := newTestAuth(t)
	auth.cfg.SkipConfirmation = true
	auth.cfg.AccessTokenExpiry = -time.Minute

	_, err := auth.Register("bob@example.com", "passw0rdx", "")
	require.NoError(t, err)
	_, tokens, err := auth.Login("bob@example.com", "passw0rdx")
	require.NoError(t, err)

	_, err = auth.ValidateAccessToken(tokens.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthService_CodesAreSingleUse(t *testing.T) {
	auth, codes := newTestAuth(t)

	_, err := auth.Register("carol@example.com", "passw0rdx", "")
	require.NoError(t, err)
	code := codes["confirm:carol@example.com"]

	require.NoError(t, auth.Confirm("carol@example.com", code))
	assert.ErrorIs(t, auth.Confirm("carol@example.com", code), ErrCodeMismatch)
	assert.ErrorIs(t, auth.Confirm("carol@example.com", "12"), ErrCodeMismatch)
}
