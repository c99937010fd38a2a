package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/handler"
	"github.com/iliyamo/dealer-syndication/internal/middleware"
	"github.com/iliyamo/dealer-syndication/internal/model"
)

// RegisterDealer registers DEALER-scoped endpoints under /v1/dealer.
func RegisterDealer(e *echo.Echo, d *handler.DealerHandler, mw Middleware) {
	g := e.Group(
		"/v1/dealer",
		middleware.JWTAuth(mw.JWTSecret),
		middleware.RequireRole(model.RoleDealer),
		mw.RateLimit,
	)

	g.POST("/dealership", d.CreateDealership)
	g.POST("/listings", d.SubmitListing)
	g.GET("/memberships", d.ListMemberships)

	g.GET("/leads", d.ListLeads)
	g.PUT("/leads/:id/status", d.UpdateLeadStatus)

	g.POST("/transactions", d.OpenTransaction)
	g.GET("/transactions/:id", d.GetTransaction)
	g.POST("/transactions/:id/:action", d.TransitionTransaction)
}
