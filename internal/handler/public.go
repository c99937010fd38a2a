package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/middleware"
	"github.com/iliyamo/dealer-syndication/internal/repository"
	"github.com/iliyamo/dealer-syndication/internal/service"
)

// PublicHandler serves the marketplace browse routes, lead capture and
// the automated ingestion channel.  Browse routes accept an optional
// token; without one the caller only sees the public pool.
type PublicHandler struct {
	Market *service.Marketplace
	Ledger *service.Ledger
	Intake *service.Intake
}

func NewPublicHandler(market *service.Marketplace, ledger *service.Ledger, intake *service.Intake) *PublicHandler {
	if market == nil || ledger == nil || intake == nil {
		panic("nil service passed to NewPublicHandler")
	}
	return &PublicHandler{Market: market, Ledger: ledger, Intake: intake}
}

// listingFilter reads make, model, min_price, max_price, pool, sort,
// limit and offset from the query string.
func listingFilter(c echo.Context) (service.ListingFilter, error) {
	var f service.ListingFilter
	var err error
	f.Make = strings.TrimSpace(c.QueryParam("make"))
	f.Model = strings.TrimSpace(c.QueryParam("model"))
	if f.MinPriceCents, err = queryInt64(c, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPriceCents, err = queryInt64(c, "max_price"); err != nil {
		return f, err
	}
	if f.Limit, err = queryInt(c, "limit", 50); err != nil {
		return f, err
	}
	if f.Limit < 1 || f.Limit > 200 {
		return f, apperr.Field("limit", "must be between 1 and 200")
	}
	if f.Offset, err = queryInt(c, "offset", 0); err != nil {
		return f, err
	}
	if f.Offset < 0 || f.Offset+f.Limit > repository.MaxCandidates {
		return f, apperr.Field("offset", fmt.Sprintf("must be between 0 and %d", repository.MaxCandidates-f.Limit))
	}
	f.Sort = c.QueryParam("sort")
	if raw := c.QueryParam("pool"); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			switch pool := service.Pool(strings.TrimSpace(p)); pool {
			case service.PoolOwner, service.PoolPublic, service.PoolNetwork:
				f.Pools = append(f.Pools, pool)
			default:
				return f, apperr.Field("pool", "must be owner, public or network")
			}
		}
	}
	return f, nil
}

// ListListings handles GET /v1/listings.
func (h *PublicHandler) ListListings(c echo.Context) error {
	f, err := listingFilter(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	v, err := h.Market.ViewerFor(ctx, middleware.ActorID(c))
	if err != nil {
		return err
	}
	set, err := h.Market.VisibleListings(ctx, v, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, set)
}

// GetListing handles GET /v1/listings/:id.
func (h *PublicHandler) GetListing(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	v, err := h.Market.ViewerFor(ctx, middleware.ActorID(c))
	if err != nil {
		return err
	}
	l, err := h.Market.GetListing(ctx, v, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, l)
}

// RecordLead handles POST /v1/listings/:id/leads.  Buyers need no
// account; a tipper referral is carried as source_type and source_id.
func (h *PublicHandler) RecordLead(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in service.LeadInput
	if err := bind(c, &in); err != nil {
		return err
	}
	in.ListingID = id
	lead, err := h.Ledger.RecordLead(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, lead)
}

// Ingest handles POST /v1/ingest/listings.
func (h *PublicHandler) Ingest(c echo.Context) error {
	var p service.ListingPayload
	if err := bind(c, &p); err != nil {
		return err
	}
	pl, err := h.Intake.IngestAutomated(c.Request().Context(), middleware.IngestKey(c), p)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, pl)
}
