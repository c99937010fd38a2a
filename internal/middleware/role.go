package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/model"
)

// RequireRole rejects requests whose role claim is not one of roles.  It
// must run after JWTAuth.  The claim only gates the route; the services
// re-check the stored role for every write.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return apperr.Forbidden("role %q may not call this endpoint", Role(c))
			}
			return next(c)
		}
	}
}
