package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints HS256 access tokens for locally registered accounts.
// Tokens it issues are verified by JWTMiddleware with the same signing key.
type TokenIssuer struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	TTL        time.Duration
}

// Issue creates a signed token for the given account. The account ID becomes
// the subject claim; roles and email travel as custom claims.
func (ti *TokenIssuer) Issue(accountID, email string, roles []string) (string, time.Time, error) {
	if len(ti.SigningKey) == 0 {
		return "", time.Time{}, fmt.Errorf("token issuer has no signing key")
	}

	now := time.Now()
	expiresAt := now.Add(ti.TTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    ti.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
		Roles: roles,
	}
	if ti.Audience != "" {
		claims.Audience = jwt.ClaimStrings{ti.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expiresAt, nil
}
