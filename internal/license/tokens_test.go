package license

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ext",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestTokensExpired(t *testing.T) {
	now := time.Now()

	assert.True(t, TokensExpired(Tokens{}, now), "missing tokens")
	assert.True(t, TokensExpired(Tokens{AccessToken: "a"}, now), "missing refresh token")
	assert.False(t, TokensExpired(Tokens{AccessToken: "opaque", RefreshToken: "r"}, now))

	live := Tokens{AccessToken: signedToken(t, now.Add(time.Hour)), RefreshToken: "r"}
	assert.False(t, TokensExpired(live, now))

	dead := Tokens{AccessToken: signedToken(t, now.Add(-time.Minute)), RefreshToken: "r"}
	assert.True(t, TokensExpired(dead, now))
}
