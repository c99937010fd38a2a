package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/handler"
	"github.com/iliyamo/dealer-syndication/internal/middleware"
)

// RegisterPublic registers the marketplace browse and lead capture
// routes.  Browse routes take an optional token; anonymous reads are
// served through the response cache.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, mw Middleware) {
	g := e.Group("/v1/listings", middleware.OptionalJWT(mw.JWTSecret), mw.RateLimit)
	g.GET("", p.ListListings, mw.Cache.Middleware())
	g.GET("/:id", p.GetListing, mw.Cache.Middleware())
	g.POST("/:id/leads", p.RecordLead)
}

// RegisterIngest registers the automated ingestion channel.  It is
// authenticated by the shared ingestion credential, not by a JWT, and
// has its own rate-limit bucket.
func RegisterIngest(e *echo.Echo, p *handler.PublicHandler, mw Middleware) {
	g := e.Group("/v1/ingest", mw.IngestLimit, middleware.IngestAuth())
	g.POST("/listings", p.Ingest)
}
