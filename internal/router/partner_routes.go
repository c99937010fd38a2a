package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/handler"
	"github.com/iliyamo/dealer-syndication/internal/middleware"
	"github.com/iliyamo/dealer-syndication/internal/model"
)

// RegisterPartner registers partner endpoints under /v1/partner.  Dealers
// may act as sub-dealers of other dealerships, so both TIPPER and DEALER
// are admitted.
func RegisterPartner(e *echo.Echo, p *handler.PartnerHandler, mw Middleware) {
	g := e.Group(
		"/v1/partner",
		middleware.JWTAuth(mw.JWTSecret),
		middleware.RequireRole(model.RoleTipper, model.RoleDealer),
		mw.RateLimit,
	)
	g.POST("/listings", p.SubmitListing)
	g.PATCH("/partner-listings/:id", p.UpdatePartnerListing)
	g.POST("/memberships", p.Apply)
	g.GET("/memberships", p.ListMemberships)
}
