package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/middleware"
	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/service"
)

// DealerHandler serves the dealership owner's routes: own listings, the
// dealership's partner network, leads and the sales ledger.
type DealerHandler struct {
	Intake      *service.Intake
	Memberships *service.Memberships
	Ledger      *service.Ledger
}

func NewDealerHandler(intake *service.Intake, memberships *service.Memberships, ledger *service.Ledger) *DealerHandler {
	if intake == nil || memberships == nil || ledger == nil {
		panic("nil service passed to NewDealerHandler")
	}
	return &DealerHandler{Intake: intake, Memberships: memberships, Ledger: ledger}
}

// CreateDealership handles POST /v1/dealer/dealership.
func (h *DealerHandler) CreateDealership(c echo.Context) error {
	var in service.DealershipInput
	if err := bind(c, &in); err != nil {
		return err
	}
	d, err := h.Memberships.CreateDealership(c.Request().Context(), middleware.ActorID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

// SubmitListing handles POST /v1/dealer/listings.
func (h *DealerHandler) SubmitListing(c echo.Context) error {
	var p service.ListingPayload
	if err := bind(c, &p); err != nil {
		return err
	}
	l, err := h.Intake.SubmitDealerListing(c.Request().Context(), middleware.ActorID(c), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

// GetPendingListing handles GET /v1/pending-listings/:id for dealers and
// partners alike.
func (h *DealerHandler) GetPendingListing(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	l, err := h.Intake.GetPendingListing(c.Request().Context(), middleware.ActorID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

// UpdatePendingListing handles PUT /v1/pending-listings/:id.
func (h *DealerHandler) UpdatePendingListing(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var p service.ListingPayload
	if err := bind(c, &p); err != nil {
		return err
	}
	l, err := h.Intake.UpdatePendingListing(c.Request().Context(), middleware.ActorID(c), id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

// ListMemberships handles GET /v1/dealer/memberships: the partners that
// applied to or belong to the caller's dealership.
func (h *DealerHandler) ListMemberships(c echo.Context) error {
	ms, err := h.Memberships.ListMemberships(c.Request().Context(), middleware.ActorID(c), true)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"memberships": nonNil(ms)})
}

// SetMembershipApproval handles PUT /v1/memberships/:id/approval.
func (h *DealerHandler) SetMembershipApproval(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Approved bool `json:"approved"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	m, err := h.Memberships.SetMembershipApproval(c.Request().Context(), middleware.ActorID(c), id, body.Approved)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// SetCommissionRate handles PUT /v1/memberships/:id/commission-rate.
func (h *DealerHandler) SetCommissionRate(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		RateBps int `json:"rate_bps"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	m, err := h.Ledger.SetCommissionRate(c.Request().Context(), middleware.ActorID(c), id, body.RateBps)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

// ListLeads handles GET /v1/dealer/leads?listing_id=.  Without a listing
// id every lead on the caller's listings is returned.
func (h *DealerHandler) ListLeads(c echo.Context) error {
	listingID, err := queryInt64(c, "listing_id")
	if err != nil {
		return err
	}
	var id uint64
	if listingID != nil && *listingID > 0 {
		id = uint64(*listingID)
	}
	leads, err := h.Ledger.ListLeads(c.Request().Context(), middleware.ActorID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"leads": nonNil(leads)})
}

// UpdateLeadStatus handles PUT /v1/dealer/leads/:id/status.
func (h *DealerHandler) UpdateLeadStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body struct {
		Status model.LeadStatus `json:"status"`
	}
	if err := bind(c, &body); err != nil {
		return err
	}
	l, err := h.Ledger.UpdateLeadStatus(c.Request().Context(), middleware.ActorID(c), id, body.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

// OpenTransaction handles POST /v1/dealer/transactions.
func (h *DealerHandler) OpenTransaction(c echo.Context) error {
	var in service.OpenTransactionInput
	if err := bind(c, &in); err != nil {
		return err
	}
	tx, err := h.Ledger.OpenTransaction(c.Request().Context(), middleware.ActorID(c), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tx)
}

// GetTransaction handles GET /v1/dealer/transactions/:id.
func (h *DealerHandler) GetTransaction(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	tx, err := h.Ledger.GetTransaction(c.Request().Context(), middleware.ActorID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tx)
}

// TransitionTransaction handles POST /v1/dealer/transactions/:id/:action
// for action confirm, cancel or complete.
func (h *DealerHandler) TransitionTransaction(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	actor := middleware.ActorID(c)
	switch c.Param("action") {
	case "confirm":
		tx, err := h.Ledger.ConfirmTransaction(ctx, actor, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, tx)
	case "cancel":
		tx, err := h.Ledger.CancelTransaction(ctx, actor, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, tx)
	case "complete":
		res, err := h.Ledger.CompleteTransaction(ctx, actor, id)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, echo.Map{"transaction": res.Transaction, "commission": res.Commission})
	}
	return echo.ErrNotFound
}

// nonNil keeps empty lists rendering as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
