package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
)

const ingestKeyCtx = "ingest_key"

// IngestAuth requires a bearer credential on the ingestion channel and
// hands it to the handler.  Matching the credential is the intake
// service's job so every channel is authorized in one place.
func IngestAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return apperr.Unauthorized("missing ingestion credential")
			}
			c.Set(ingestKeyCtx, raw)
			return next(c)
		}
	}
}

// IngestKey returns the credential captured by IngestAuth.
func IngestKey(c echo.Context) string {
	k, _ := c.Get(ingestKeyCtx).(string)
	return k
}
