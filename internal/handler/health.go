package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Health is the liveness probe.  It returns a plain "ok".
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready reports 503 until the database answers a ping.
func Ready(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "db": err.Error()})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	}
}
