package license

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokensExpired reports whether the access token is a JWT whose exp
// claim is in the past. Opaque tokens never expire locally; the remote
// status check is the authority for those.
func TokensExpired(t Tokens, now time.Time) bool {
	if t.AccessToken == "" || t.RefreshToken == "" {
		return true
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(now)
}
