package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/logging"
	"github.com/iliyamo/dealer-syndication/internal/metrics"
	"github.com/iliyamo/dealer-syndication/internal/service"
)

// RequestContext prepares every request: it assigns a request id, binds a
// request-scoped logger and tenancy memo to the request context, and
// records the access log line and HTTP metrics once the handler returns.
// Errors are rendered here through the echo error handler so the logged
// status is the one the client sees.
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" {
				id = logging.NewRequestID()
			}
			ctx := logging.WithRequestID(req.Context(), id)
			ctx = service.WithRequestCache(ctx)
			c.SetRequest(req.WithContext(ctx))
			c.Response().Header().Set(echo.HeaderXRequestID, id)

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			elapsed := time.Since(start)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			metrics.RecordRequest(req.Method, route, status, elapsed)

			ev := logging.Ctx(ctx).Info()
			if status >= 500 {
				ev = logging.Ctx(ctx).Error().Err(err)
			}
			ev.Str("method", req.Method).
				Str("route", route).
				Int("status", status).
				Uint64("actor_id", ActorID(c)).
				Dur("elapsed", elapsed).
				Msg("request")
			return nil
		}
	}
}
