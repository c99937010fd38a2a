package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/dealer-syndication/internal/config"
	"github.com/iliyamo/dealer-syndication/internal/handler"
	"github.com/iliyamo/dealer-syndication/internal/middleware"
	"github.com/iliyamo/dealer-syndication/internal/model"
)

// Handlers bundles everything the route tables need.
type Handlers struct {
	Actor   *handler.ActorHandler
	Public  *handler.PublicHandler
	Dealer  *handler.DealerHandler
	Partner *handler.PartnerHandler
	Admin   *handler.AdminHandler
	DB      handler.Pinger
}

// Middleware bundles the Redis-backed middleware built from config.
type Middleware struct {
	JWTSecret   string
	RateLimit   echo.MiddlewareFunc
	IngestLimit echo.MiddlewareFunc
	Cache       *middleware.ResponseCache
}

// New returns an echo instance with the error handler, request context
// middleware and every route registered.
func New(h Handlers, mw Middleware) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(middleware.RequestContext())

	if mw.RateLimit == nil {
		mw.RateLimit = passThrough
	}
	if mw.IngestLimit == nil {
		mw.IngestLimit = passThrough
	}
	if mw.Cache == nil {
		mw.Cache = middleware.NewResponseCache(config.CacheConfig{}, nil)
	}

	RegisterRoutes(e, h.DB)
	RegisterPublic(e, h.Public, mw)
	RegisterIngest(e, h.Public, mw)
	RegisterActor(e, h.Actor, mw)
	RegisterDealer(e, h.Dealer, mw)
	RegisterPartner(e, h.Partner, mw)
	RegisterAdmin(e, h.Admin, mw)
	RegisterShared(e, h.Dealer, h.Partner, mw)
	return e
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// RegisterRoutes registers the probes and the metrics endpoint.  None of
// them require authentication.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterActor registers the identity sync endpoints.  Any verified
// role may call them.
func RegisterActor(e *echo.Echo, a *handler.ActorHandler, mw Middleware) {
	g := e.Group("/v1/actors", middleware.JWTAuth(mw.JWTSecret), mw.RateLimit)
	g.POST("/me", a.Sync)
	g.GET("/me", a.Me)
}

// RegisterShared registers endpoints reachable by more than one role.
// The role claim only narrows who may try; the services decide per row.
func RegisterShared(e *echo.Echo, d *handler.DealerHandler, p *handler.PartnerHandler, mw Middleware) {
	auth := middleware.JWTAuth(mw.JWTSecret)
	g := e.Group("/v1")

	submitters := middleware.RequireRole(model.RoleDealer, model.RoleTipper, model.RoleAdmin)
	g.GET("/pending-listings/:id", d.GetPendingListing, auth, submitters, mw.RateLimit)
	g.PUT("/pending-listings/:id", d.UpdatePendingListing, auth, submitters, mw.RateLimit)

	managers := middleware.RequireRole(model.RoleDealer, model.RoleAdmin)
	g.PUT("/memberships/:id/approval", d.SetMembershipApproval, auth, managers, mw.RateLimit)
	g.PUT("/memberships/:id/commission-rate", d.SetCommissionRate, auth, managers, mw.RateLimit)

	earners := middleware.RequireRole(model.RoleDealer, model.RoleTipper, model.RoleAdmin)
	g.GET("/commissions", p.ListCommissions, auth, earners, mw.RateLimit)
}
