// Package utils mints HS256 tokens in the identity provider's format.
// Production tokens come from the provider; these are for local
// development and tests.
package utils

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

// AccessToken is a signed JWT and its expiry.
type AccessToken struct {
	Token string    `json:"token"`
	Exp   time.Time `json:"expires_at"`
}

// NewAccessToken signs a token whose sub is actorID and whose role claim
// is role.  The token expires ttl from now.
func NewAccessToken(secret string, actorID uint64, role model.Role, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  actorID,
		"role": strings.ToUpper(string(role)),
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}
