package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expired reports whether a JWT access token is past its exp claim. The
// signature is not checked; the backend stays the authority. Tokens that
// are not JWTs, or carry no exp, are treated as live.
func expired(token string, now time.Time, leeway time.Duration) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Add(leeway).Before(exp.Time)
}
