package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/middleware"
	"github.com/iliyamo/dealer-syndication/internal/service"
)

// PartnerHandler serves tippers and sub-dealers: scoped submissions,
// their own partner listings, membership applications and commissions.
type PartnerHandler struct {
	Intake      *service.Intake
	Memberships *service.Memberships
	Ledger      *service.Ledger
}

func NewPartnerHandler(intake *service.Intake, memberships *service.Memberships, ledger *service.Ledger) *PartnerHandler {
	if intake == nil || memberships == nil || ledger == nil {
		panic("nil service passed to NewPartnerHandler")
	}
	return &PartnerHandler{Intake: intake, Memberships: memberships, Ledger: ledger}
}

// SubmitListing handles POST /v1/partner/listings.  The body's
// dealership_id or independent flag selects the membership scope when
// the partner holds several.
func (h *PartnerHandler) SubmitListing(c echo.Context) error {
	var p service.ListingPayload
	if err := bind(c, &p); err != nil {
		return err
	}
	l, err := h.Intake.SubmitPartnerListing(c.Request().Context(), middleware.ActorID(c), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

// UpdatePartnerListing handles PATCH /v1/partner/partner-listings/:id.
func (h *PartnerHandler) UpdatePartnerListing(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var patch service.PartnerListingPatch
	if err := bind(c, &patch); err != nil {
		return err
	}
	p, err := h.Intake.UpdatePartnerListing(c.Request().Context(), middleware.ActorID(c), id, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// Apply handles POST /v1/partner/memberships.  Omitting dealership_id
// applies for an independent membership.
func (h *PartnerHandler) Apply(c echo.Context) error {
	var body struct {
		DealershipID *uint64 `json:"dealership_id"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	m, err := h.Memberships.ApplyForMembership(c.Request().Context(), middleware.ActorID(c), body.DealershipID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

// ListMemberships handles GET /v1/partner/memberships.
func (h *PartnerHandler) ListMemberships(c echo.Context) error {
	ms, err := h.Memberships.ListMemberships(c.Request().Context(), middleware.ActorID(c), false)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"memberships": nonNil(ms)})
}

// ListCommissions handles GET /v1/commissions.  Admins see every row,
// everyone else their own.
func (h *PartnerHandler) ListCommissions(c echo.Context) error {
	cs, err := h.Ledger.ListCommissions(c.Request().Context(), middleware.ActorID(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"commissions": nonNil(cs)})
}
