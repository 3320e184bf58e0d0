package service

import (
	"time"

	domainauth "github.com/garagebay/staffgate/internal/domain/auth"
	"github.com/golang-jwt/jwt/v5"
)

const minCredentialTTL = time.Minute

// credentialTTL picks how long a credential stays persisted. JWT credentials
// expire with their exp claim, capped at maxTTL; anything else lives for maxTTL.
// The signature is not checked here; the staff backend validates the token on
// every resolution.
func credentialTTL(cred domainauth.Credential, maxTTL time.Duration, now time.Time) time.Duration {
	if maxTTL <= 0 {
		maxTTL = defaultCredentialTTL
	}
	if cred == "" || cred.IsDemo() {
		return maxTTL
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(string(cred), claims); err != nil {
		return maxTTL
	}
	if claims.ExpiresAt == nil {
		return maxTTL
	}

	ttl := claims.ExpiresAt.Sub(now)
	switch {
	case ttl < minCredentialTTL:
		return minCredentialTTL
	case ttl > maxTTL:
		return maxTTL
	default:
		return ttl
	}
}
