package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/middleware"
	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/service"
)

// ActorHandler syncs identity-provider claims into the actor table and
// reports the caller's tenancy.
type ActorHandler struct {
	Resolver *service.Resolver
}

func NewActorHandler(resolver *service.Resolver) *ActorHandler {
	if resolver == nil {
		panic("nil resolver passed to NewActorHandler")
	}
	return &ActorHandler{Resolver: resolver}
}

// Sync handles POST /v1/actors/me.  The id and role come from the
// verified token; only the email is taken from the body.
func (h *ActorHandler) Sync(c echo.Context) error {
	var body struct {
		Email string `json:"email"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	a, err := h.Resolver.SyncActor(c.Request().Context(), middleware.ActorID(c), body.Email, middleware.Role(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

// Me handles GET /v1/actors/me.
func (h *ActorHandler) Me(c echo.Context) error {
	ac, err := h.Resolver.ResolveActor(c.Request().Context(), middleware.ActorID(c))
	if err != nil {
		return err
	}
	memberships := ac.Memberships
	if memberships == nil {
		memberships = []model.PartnerMembership{}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"actor_id":    ac.ActorID,
		"role":        ac.Role,
		"dealership":  ac.Dealership,
		"memberships": memberships,
	})
}
