package middleware

import (
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/model"
)

// Context keys set by JWTAuth and read through ActorID and Role.
const (
	actorIDKey = "actor_id"
	roleKey    = "role"
)

// JWTAuth returns a middleware that requires a valid HS256 bearer token.
// The token's sub claim becomes the actor id and its role claim the
// route-gating role; handlers read them with ActorID and Role.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return jwtAuth(secret, false)
}

// OptionalJWT verifies a bearer token when one is sent and otherwise lets
// the request through as anonymous.  A token that is present but invalid
// is still rejected.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return jwtAuth(secret, true)
}

func jwtAuth(secret string, optional bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if auth == "" && optional {
				return next(c)
			}
			raw, ok := bearer(auth)
			if !ok {
				return apperr.Unauthorized("missing bearer token")
			}
			id, role, err := parseClaims(secret, raw)
			if err != nil {
				return err
			}
			c.Set(actorIDKey, id)
			c.Set(roleKey, role)
			return next(c)
		}
	}
}

func bearer(header string) (string, bool) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", false
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return raw, raw != ""
}

func parseClaims(secret, raw string) (uint64, model.Role, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return 0, "", apperr.Unauthorized("invalid token")
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0, "", apperr.Unauthorized("invalid claims")
	}
	id, ok := subject(claims["sub"])
	if !ok {
		return 0, "", apperr.Unauthorized("invalid subject")
	}
	role, _ := claims["role"].(string)
	r := model.Role(strings.ToUpper(role))
	if !r.Valid() {
		return 0, "", apperr.Unauthorized("invalid role claim")
	}
	return id, r, nil
}

// subject accepts sub as a JSON number or a decimal string.
func subject(v interface{}) (uint64, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 || t != float64(uint64(t)) {
			return 0, false
		}
		return uint64(t), true
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

// ActorID returns the authenticated actor id, or 0 for anonymous requests.
func ActorID(c echo.Context) uint64 {
	id, _ := c.Get(actorIDKey).(uint64)
	return id
}

// Role returns the role claim of the authenticated actor, or "".
func Role(c echo.Context) model.Role {
	r, _ := c.Get(roleKey).(model.Role)
	return r
}
