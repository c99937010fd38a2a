package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/middleware"
	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/service"
)

// AdminHandler serves the review queue and the admin-only ledger actions.
type AdminHandler struct {
	Intake   *service.Intake
	Approval *service.Approval
	Ledger   *service.Ledger
}

func NewAdminHandler(intake *service.Intake, approval *service.Approval, ledger *service.Ledger) *AdminHandler {
	if intake == nil || approval == nil || ledger == nil {
		panic("nil service passed to NewAdminHandler")
	}
	return &AdminHandler{Intake: intake, Approval: approval, Ledger: ledger}
}

// ReviewQueue handles GET /v1/admin/pending-listings?status=&limit=&offset=.
func (h *AdminHandler) ReviewQueue(c echo.Context) error {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		return err
	}
	status := model.ApprovalStatus(c.QueryParam("status"))
	ls, err := h.Intake.ListPendingForReview(c.Request().Context(), middleware.ActorID(c), status, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"listings": nonNil(ls)})
}

type decisionBody struct {
	Decision  model.Decision          `json:"decision"`
	Note      *string                 `json:"note"`
	Overrides model.DecisionOverrides `json:"overrides"`
}

// Decide handles POST /v1/admin/pending-listings/:id/decision.
func (h *AdminHandler) Decide(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var body decisionBody
	if err := bind(c, &body); err != nil {
		return err
	}
	res, err := h.Approval.Decide(c.Request().Context(), model.DecisionCommand{
		ListingID: id,
		AdminID:   middleware.ActorID(c),
		Decision:  body.Decision,
		Note:      body.Note,
		Overrides: body.Overrides,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"listing": res.Listing, "car_listing": res.CarListing})
}

// EditListing handles PUT /v1/admin/pending-listings/:id.
func (h *AdminHandler) EditListing(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var p service.ListingPayload
	if err := bind(c, &p); err != nil {
		return err
	}
	l, err := h.Approval.AdminEditListing(c.Request().Context(), middleware.ActorID(c), id, p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

// PromotePartnerListing handles POST /v1/admin/partner-listings/:id/promote.
func (h *AdminHandler) PromotePartnerListing(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	p, car, err := h.Approval.PromotePartnerListing(c.Request().Context(), middleware.ActorID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"partner_listing": p, "car_listing": car})
}

// MarkCommissionPaid handles POST /v1/admin/commissions/:id/pay.
func (h *AdminHandler) MarkCommissionPaid(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	cm, err := h.Ledger.MarkCommissionPaid(c.Request().Context(), middleware.ActorID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cm)
}
