package service

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/dealer-syndication/internal/analysis"
	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/logging"
	"github.com/iliyamo/dealer-syndication/internal/metrics"
	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/queue"
	"github.com/iliyamo/dealer-syndication/internal/repository"
	"github.com/iliyamo/dealer-syndication/internal/validation"
)

// DecisionResult is the decided listing plus the car listing an
// approval promoted it into, if any.
type DecisionResult struct {
	Listing    model.PendingListing `json:"listing"`
	CarListing *model.CarListing    `json:"car_listing,omitempty"`
}

// Approval owns the pending → approved | rejected transition and admin
// promotion of partner listings.
type Approval struct {
	resolver *Resolver
	pending  PendingListingStore
	partners PartnerListingStore
	analyzer Analyzer
	notifier
}

// NewApproval wires the approval service.  analyzer may be nil when no
// analysis webhook is configured.
func NewApproval(resolver *Resolver, pending PendingListingStore, partners PartnerListingStore, analyzer Analyzer, events EventPublisher, views ViewInvalidator) *Approval {
	return &Approval{resolver: resolver, pending: pending, partners: partners, analyzer: analyzer,
		notifier: notifier{events: events, views: views}}
}

type overrideRules struct {
	PriceCents *int64  `json:"price_cents" validate:"omitempty,min=0"`
	Mileage    *int    `json:"mileage" validate:"omitempty,min=0"`
	Condition  *string `json:"condition" validate:"omitempty,max=40"`
	Note       *string `json:"note" validate:"omitempty,max=1000"`
}

func (o overrideRules) empty() bool {
	return o.PriceCents == nil && o.Mileage == nil && o.Condition == nil
}

func validateDecision(cmd *model.DecisionCommand) (model.ApprovalStatus, error) {
	status, ok := cmd.Decision.Status()
	if !ok {
		return "", apperr.Field("decision", "must be one of [approve reject]")
	}
	ov := &cmd.Overrides
	if ov.Condition != nil {
		c := strings.ToLower(strings.TrimSpace(*ov.Condition))
		ov.Condition = &c
	}
	rules := overrideRules{PriceCents: ov.PriceCents, Mileage: ov.Mileage, Condition: ov.Condition, Note: cmd.Note}
	if err := validation.ValidateStruct(rules); err != nil {
		return "", err
	}
	if status == model.ApprovalRejected && (!rules.empty() || ov.IsPublic != nil || ov.IsSharedWithNetwork != nil || ov.IsSpecialOffer != nil) {
		return "", apperr.Field("overrides", "only apply to an approval")
	}
	return status, nil
}

// Decide applies an admin decision to a pending listing.  The write is a
// compare-and-set on the pending status; an approval of a public listing
// promotes it to a car listing in the same transaction, and the analysis
// webhook runs before that transaction commits.
func (a *Approval) Decide(ctx context.Context, cmd model.DecisionCommand) (DecisionResult, error) {
	status, err := validateDecision(&cmd)
	if err != nil {
		return DecisionResult{}, err
	}
	if _, err := a.resolver.requireAdmin(ctx, cmd.AdminID); err != nil {
		return DecisionResult{}, err
	}
	cur, err := a.pending.GetPendingListing(ctx, cmd.ListingID)
	if err != nil {
		return DecisionResult{}, pendingNotFound(err, cmd.ListingID)
	}
	if cur.ApprovalStatus.Terminal() {
		metrics.ListingDecisions.WithLabelValues(string(cmd.Decision), "invalid_state").Inc()
		return DecisionResult{}, apperr.InvalidState("listing %d is already %s", cmd.ListingID, cur.ApprovalStatus)
	}

	var hook repository.BeforeCommit
	if status == model.ApprovalApproved {
		hook = a.analyze
	}
	listing, car, err := a.pending.Decide(ctx, cmd, hook)
	if err != nil {
		outcome := "error"
		if errors.Is(err, repository.ErrConflict) {
			outcome = "conflict"
			metrics.ConflictsTotal.WithLabelValues("decide").Inc()
			err = apperr.Conflict("listing %d was decided concurrently; re-fetch before retrying", cmd.ListingID)
		}
		metrics.ListingDecisions.WithLabelValues(string(cmd.Decision), outcome).Inc()
		return DecisionResult{}, err
	}

	metrics.ListingDecisions.WithLabelValues(string(cmd.Decision), "ok").Inc()
	if car != nil {
		metrics.ListingsPromoted.WithLabelValues(string(model.SourcePending)).Inc()
	}
	a.invalidate(ctx)
	a.publish(ctx, cmd.AdminID, queue.EventListingDecided, queue.ListingDecided{
		ListingID: listing.ID, Status: string(listing.ApprovalStatus), CarListingID: listing.CarListingID,
	})
	logging.Ctx(ctx).Info().Uint64("listing_id", listing.ID).Str("status", string(listing.ApprovalStatus)).
		Bool("promoted", car != nil).Msg("listing decided")
	return DecisionResult{Listing: listing, CarListing: car}, nil
}

// analyze is the before-commit hook of an approval.  Any failure aborts
// the transaction.
func (a *Approval) analyze(ctx context.Context, l model.PendingListing, car *model.CarListing) error {
	if a.analyzer == nil {
		return nil
	}
	req := analysis.Request{Vehicle: l.Vehicle}
	switch {
	case l.ID != 0:
		req.Kind, req.ListingID, req.DealershipID = "pending", l.ID, l.DealershipID
	case car != nil:
		req.Kind, req.ListingID = "partner", car.SourceID
		req.Vehicle = car.Vehicle
	}
	if car != nil {
		req.CarListingID = &car.ID
	}
	res, err := a.analyzer.Analyze(ctx, req)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUpstream {
			return err
		}
		return apperr.Upstream(err, false, "listing analysis failed")
	}
	logging.Ctx(ctx).Debug().Uint64("listing_id", req.ListingID).Bool("accepted", res.Accepted).
		Str("verdict", res.Verdict).Msg("listing analysed")
	return nil
}

// AdminEditListing rewrites the vehicle and the special-offer and sharing
// flags of a pending or approved listing, mirroring them onto its car
// listing.  Rejected listings are read-only.
func (a *Approval) AdminEditListing(ctx context.Context, adminID, id uint64, p ListingPayload) (model.PendingListing, error) {
	if _, err := a.resolver.requireAdmin(ctx, adminID); err != nil {
		return model.PendingListing{}, err
	}
	cur, err := a.pending.GetPendingListing(ctx, id)
	if err != nil {
		return model.PendingListing{}, pendingNotFound(err, id)
	}
	if cur.ApprovalStatus == model.ApprovalRejected {
		return model.PendingListing{}, apperr.InvalidState("listing %d was rejected and is read-only", id)
	}
	v, f, err := normalize(p)
	if err != nil {
		return model.PendingListing{}, err
	}
	l, err := a.pending.AdminUpdate(ctx, id, adminID, v, f.IsSpecialOffer, f.IsSharedWithNetwork)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrForbidden):
			return model.PendingListing{}, apperr.Forbidden("admin role required")
		case errors.Is(err, repository.ErrConflict):
			return model.PendingListing{}, apperr.InvalidState("listing %d was rejected and is read-only", id)
		}
		return model.PendingListing{}, err
	}
	a.invalidate(ctx)
	return l, nil
}

// PromotePartnerListing copies a partner listing into the car listings.
// It happens at most once per partner listing.
func (a *Approval) PromotePartnerListing(ctx context.Context, adminID, id uint64) (model.PartnerListing, model.CarListing, error) {
	if _, err := a.resolver.requireAdmin(ctx, adminID); err != nil {
		return model.PartnerListing{}, model.CarListing{}, err
	}
	cur, err := a.partners.GetPartnerListing(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PartnerListing{}, model.CarListing{}, apperr.NotFound("partner listing %d not found", id)
		}
		return model.PartnerListing{}, model.CarListing{}, err
	}
	if cur.IsAddedToMainListings {
		return model.PartnerListing{}, model.CarListing{}, apperr.InvalidState("partner listing %d is already promoted", id)
	}
	p, car, err := a.partners.PromotePartnerListing(ctx, id, adminID, a.analyze)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.ConflictsTotal.WithLabelValues("promote").Inc()
			return model.PartnerListing{}, model.CarListing{}, apperr.Conflict("partner listing %d was promoted concurrently", id)
		}
		return model.PartnerListing{}, model.CarListing{}, err
	}
	metrics.ListingsPromoted.WithLabelValues(string(model.SourcePartner)).Inc()
	a.invalidate(ctx)
	a.publish(ctx, adminID, queue.EventListingDecided, queue.ListingDecided{
		ListingID: p.ID, Status: "promoted", CarListingID: &car.ID,
	})
	return p, car, nil
}
