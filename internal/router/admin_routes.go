package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/handler"
	"github.com/iliyamo/dealer-syndication/internal/middleware"
	"github.com/iliyamo/dealer-syndication/internal/model"
)

// RegisterAdmin registers the review queue and admin ledger actions under
// /v1/admin.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, mw Middleware) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(mw.JWTSecret),
		middleware.RequireRole(model.RoleAdmin),
		mw.RateLimit,
	)
	g.GET("/pending-listings", a.ReviewQueue)
	g.PUT("/pending-listings/:id", a.EditListing)
	g.POST("/pending-listings/:id/decision", a.Decide)
	g.POST("/partner-listings/:id/promote", a.PromotePartnerListing)
	g.POST("/commissions/:id/pay", a.MarkCommissionPaid)
}
