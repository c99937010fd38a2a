package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// actorKey identifies the caller for rate-limit buckets.  Unauthenticated
// callers share the "anon" identity and are told apart by IP.
func actorKey(c echo.Context) string {
	if id := ActorID(c); id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
