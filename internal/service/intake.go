package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/logging"
	"github.com/iliyamo/dealer-syndication/internal/metrics"
	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/queue"
	"github.com/iliyamo/dealer-syndication/internal/repository"
	"github.com/iliyamo/dealer-syndication/internal/validation"
)

// ListingPayload is the vehicle schema shared by all three intake
// channels.  DealershipID and Independent select the membership scope of
// a partner submission; Status only applies to automated ingestion.
type ListingPayload struct {
	DealershipID        *uint64  `json:"dealership_id,omitempty"`
	Independent         bool     `json:"independent,omitempty"`
	VIN                 string   `json:"vin" validate:"max=32"`
	Make                string   `json:"make" validate:"required,max=80"`
	Model               string   `json:"model" validate:"required,max=80"`
	Year                int      `json:"year" validate:"min=0,max=2100"`
	PriceCents          int64    `json:"price_cents" validate:"min=0"`
	Mileage             int      `json:"mileage" validate:"min=0"`
	Condition           string   `json:"condition" validate:"max=40"`
	MediaURLs           []string `json:"media_urls" validate:"max=50,dive,mediaurl"`
	Features            []string `json:"features" validate:"max=100,dive,max=120"`
	IsSpecialOffer      bool     `json:"is_special_offer"`
	IsSharedWithNetwork bool     `json:"is_shared_with_network"`
	IsPublic            bool     `json:"is_public"`
	Status              string   `json:"status,omitempty" validate:"omitempty,oneof=available reserved sold"`
}

// Submission is one of DealerSubmission, PartnerSubmission or
// AutomatedSubmission.
type Submission interface {
	Channel() model.Channel
}

type DealerSubmission struct {
	ActorID uint64
	Payload ListingPayload
}

type PartnerSubmission struct {
	ActorID uint64
	Payload ListingPayload
}

type AutomatedSubmission struct {
	APIKey  string
	Payload ListingPayload
}

func (DealerSubmission) Channel() model.Channel    { return model.ChannelDealer }
func (PartnerSubmission) Channel() model.Channel   { return model.ChannelPartner }
func (AutomatedSubmission) Channel() model.Channel { return model.ChannelAutomated }

// IntakeResult holds the single record a submission created.
type IntakeResult struct {
	Channel model.Channel         `json:"channel"`
	Pending *model.PendingListing `json:"pending_listing,omitempty"`
	Partner *model.PartnerListing `json:"partner_listing,omitempty"`
}

// IngestCredential is the static bearer token of the automated channel
// and the partner every ingested row belongs to.
type IngestCredential struct {
	APIKey    string
	PartnerID uint64
}

// Intake validates and stores new listings from every channel.
type Intake struct {
	resolver *Resolver
	pending  PendingListingStore
	partners PartnerListingStore
	cred     IngestCredential
	notifier
}

func NewIntake(resolver *Resolver, pending PendingListingStore, partners PartnerListingStore, cred IngestCredential, events EventPublisher, views ViewInvalidator) *Intake {
	return &Intake{resolver: resolver, pending: pending, partners: partners, cred: cred,
		notifier: notifier{events: events, views: views}}
}

// normalize trims and canonicalises the payload, validates it and splits
// it into the stored vehicle and flags.
func normalize(p ListingPayload) (model.Vehicle, model.VisibilityFlags, error) {
	p.VIN = strings.ToUpper(strings.TrimSpace(p.VIN))
	p.Make = strings.TrimSpace(p.Make)
	p.Model = strings.TrimSpace(p.Model)
	p.Condition = strings.ToLower(strings.TrimSpace(p.Condition))
	p.Status = strings.ToLower(strings.TrimSpace(p.Status))
	media := make([]string, 0, len(p.MediaURLs))
	for _, u := range p.MediaURLs {
		media = append(media, strings.TrimSpace(u))
	}
	p.MediaURLs = media
	p.Features = dedupe(p.Features)

	if err := validation.ValidateStruct(p); err != nil {
		return model.Vehicle{}, model.VisibilityFlags{}, err
	}
	v := model.Vehicle{
		VIN: p.VIN, Make: p.Make, Model: p.Model, Year: p.Year,
		PriceCents: p.PriceCents, Mileage: p.Mileage, Condition: p.Condition,
		MediaURLs: p.MediaURLs, Features: p.Features,
	}
	f := model.VisibilityFlags{
		IsSpecialOffer:      p.IsSpecialOffer,
		IsSharedWithNetwork: p.IsSharedWithNetwork,
		IsPublic:            p.IsPublic,
	}
	return v, f, nil
}

// dedupe trims features, drops empties and repeats, keeping first order.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// Submit dispatches a submission to its channel.  Each successful call
// creates exactly one record.
func (in *Intake) Submit(ctx context.Context, s Submission) (IntakeResult, error) {
	var (
		res IntakeResult
		err error
	)
	switch s := s.(type) {
	case DealerSubmission:
		res, err = in.submitDealer(ctx, s)
	case PartnerSubmission:
		res, err = in.submitPartner(ctx, s)
	case AutomatedSubmission:
		res, err = in.ingest(ctx, s)
	default:
		return IntakeResult{}, apperr.New(apperr.KindInternal, "unknown submission %T", s)
	}
	if err != nil {
		metrics.IntakeRejected.WithLabelValues(string(s.Channel()), string(apperr.KindOf(err))).Inc()
		return IntakeResult{}, err
	}
	res.Channel = s.Channel()
	metrics.ListingsSubmitted.WithLabelValues(string(res.Channel)).Inc()

	ev := queue.ListingSubmitted{Channel: string(res.Channel)}
	var actorID uint64
	if res.Pending != nil {
		ev.ListingID, ev.Kind, actorID = res.Pending.ID, "pending", res.Pending.CreatedBy
	} else if res.Partner != nil {
		ev.ListingID, ev.Kind, actorID = res.Partner.ID, "partner", res.Partner.PartnerID
	}
	in.publish(ctx, actorID, queue.EventListingSubmitted, ev)
	logging.Ctx(ctx).Info().Str("channel", ev.Channel).Uint64("listing_id", ev.ListingID).Msg("listing submitted")
	return res, nil
}

// SubmitDealerListing creates a pending listing under the dealership the
// actor owns.
func (in *Intake) SubmitDealerListing(ctx context.Context, actorID uint64, p ListingPayload) (model.PendingListing, error) {
	res, err := in.Submit(ctx, DealerSubmission{ActorID: actorID, Payload: p})
	if err != nil {
		return model.PendingListing{}, err
	}
	return *res.Pending, nil
}

// SubmitPartnerListing creates a pending listing under one of the
// actor's approved memberships.
func (in *Intake) SubmitPartnerListing(ctx context.Context, actorID uint64, p ListingPayload) (model.PendingListing, error) {
	res, err := in.Submit(ctx, PartnerSubmission{ActorID: actorID, Payload: p})
	if err != nil {
		return model.PendingListing{}, err
	}
	return *res.Pending, nil
}

// IngestAutomated stores a partner listing from the automated feed.
func (in *Intake) IngestAutomated(ctx context.Context, apiKey string, p ListingPayload) (model.PartnerListing, error) {
	res, err := in.Submit(ctx, AutomatedSubmission{APIKey: apiKey, Payload: p})
	if err != nil {
		return model.PartnerListing{}, err
	}
	return *res.Partner, nil
}

func (in *Intake) submitDealer(ctx context.Context, s DealerSubmission) (IntakeResult, error) {
	ac, err := in.resolver.authenticate(ctx, s.ActorID)
	if err != nil {
		return IntakeResult{}, err
	}
	if ac.Role != model.RoleDealer {
		return IntakeResult{}, apperr.Unauthorized("dealer role required")
	}
	if ac.Dealership == nil {
		return IntakeResult{}, apperr.Forbidden("actor %d owns no dealership", s.ActorID)
	}
	v, f, err := normalize(s.Payload)
	if err != nil {
		return IntakeResult{}, err
	}
	l := model.PendingListing{CreatedBy: s.ActorID, Vehicle: v, VisibilityFlags: f}
	if err := in.pending.CreatePendingForDealer(ctx, s.ActorID, &l); err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			return IntakeResult{}, apperr.Forbidden("actor %d owns no dealership", s.ActorID)
		}
		return IntakeResult{}, err
	}
	return IntakeResult{Pending: &l}, nil
}

// selectMembership picks the approved membership a partner submission
// is filed under.
func selectMembership(approved []model.PartnerMembership, p ListingPayload) (model.PartnerMembership, error) {
	if len(approved) == 0 {
		return model.PartnerMembership{}, apperr.Forbidden("no approved partner membership")
	}
	if p.DealershipID == nil && !p.Independent {
		if len(approved) > 1 {
			return model.PartnerMembership{}, apperr.Field("dealership_id",
				"is required when the partner holds several approved memberships")
		}
		return approved[0], nil
	}
	if p.DealershipID != nil && p.Independent {
		return model.PartnerMembership{}, apperr.Field("independent", "cannot be combined with dealership_id")
	}
	for _, m := range approved {
		if m.InScope(p.DealershipID) {
			return m, nil
		}
	}
	return model.PartnerMembership{}, apperr.Forbidden("no approved membership in the requested scope")
}

func (in *Intake) submitPartner(ctx context.Context, s PartnerSubmission) (IntakeResult, error) {
	ac, err := in.resolver.authenticate(ctx, s.ActorID)
	if err != nil {
		return IntakeResult{}, err
	}
	if ac.Role != model.RoleTipper && ac.Role != model.RoleDealer {
		return IntakeResult{}, apperr.Unauthorized("partner role required")
	}
	m, err := selectMembership(ac.ApprovedMemberships(), s.Payload)
	if err != nil {
		return IntakeResult{}, err
	}
	v, f, err := normalize(s.Payload)
	if err != nil {
		return IntakeResult{}, err
	}
	l := model.PendingListing{CreatedBy: s.ActorID, Vehicle: v, VisibilityFlags: f}
	if err := in.pending.CreatePendingForPartner(ctx, m.ID, s.ActorID, &l); err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			return IntakeResult{}, apperr.Forbidden("membership %d is no longer approved", m.ID)
		}
		return IntakeResult{}, err
	}
	return IntakeResult{Pending: &l}, nil
}

// Authorized reports whether key matches the ingestion credential.
func (c IngestCredential) Authorized(key string) bool {
	if c.APIKey == "" || c.PartnerID == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(c.APIKey)) == 1
}

func (in *Intake) ingest(ctx context.Context, s AutomatedSubmission) (IntakeResult, error) {
	if !in.cred.Authorized(s.APIKey) {
		return IntakeResult{}, apperr.Unauthorized("invalid ingestion credential")
	}
	v, _, err := normalize(s.Payload)
	if err != nil {
		return IntakeResult{}, err
	}
	status := model.AvailabilityStatus(strings.ToLower(strings.TrimSpace(s.Payload.Status)))
	if status == "" {
		status = model.StatusAvailable
	}
	p := model.PartnerListing{PartnerID: in.cred.PartnerID, Vehicle: v, Status: status}
	if err := in.partners.InsertPartnerListing(ctx, &p); err != nil {
		return IntakeResult{}, err
	}
	return IntakeResult{Partner: &p}, nil
}

// UpdatePendingListing lets the creator revise a listing while it is
// still pending.
func (in *Intake) UpdatePendingListing(ctx context.Context, actorID, id uint64, p ListingPayload) (model.PendingListing, error) {
	if _, err := in.resolver.authenticate(ctx, actorID); err != nil {
		return model.PendingListing{}, err
	}
	cur, err := in.pending.GetPendingListing(ctx, id)
	if err != nil {
		return model.PendingListing{}, pendingNotFound(err, id)
	}
	if cur.CreatedBy != actorID {
		return model.PendingListing{}, apperr.Forbidden("only the creator may edit listing %d", id)
	}
	if cur.ApprovalStatus.Terminal() {
		return model.PendingListing{}, apperr.InvalidState("listing %d is already %s", id, cur.ApprovalStatus)
	}
	v, f, err := normalize(p)
	if err != nil {
		return model.PendingListing{}, err
	}
	if err := in.pending.UpdatePendingByCreator(ctx, id, actorID, v, f); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.ConflictsTotal.WithLabelValues("update_pending").Inc()
			return model.PendingListing{}, apperr.Conflict("listing %d changed concurrently; re-fetch and retry", id)
		}
		return model.PendingListing{}, err
	}
	return in.pending.GetPendingListing(ctx, id)
}

// PartnerListingPatch toggles the partner-controlled fields of a partner
// listing.
type PartnerListingPatch struct {
	IsPublic *bool   `json:"is_public"`
	Status   *string `json:"status" validate:"omitempty,oneof=available reserved sold"`
}

// UpdatePartnerListing applies patch to a partner listing owned by the
// actor.
func (in *Intake) UpdatePartnerListing(ctx context.Context, actorID, id uint64, patch PartnerListingPatch) (model.PartnerListing, error) {
	if _, err := in.resolver.authenticate(ctx, actorID); err != nil {
		return model.PartnerListing{}, err
	}
	if err := validation.ValidateStruct(patch); err != nil {
		return model.PartnerListing{}, err
	}
	cur, err := in.partners.GetPartnerListing(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PartnerListing{}, apperr.NotFound("partner listing %d not found", id)
		}
		return model.PartnerListing{}, err
	}
	if cur.PartnerID != actorID {
		return model.PartnerListing{}, apperr.Forbidden("partner listing %d belongs to another partner", id)
	}
	var status *model.AvailabilityStatus
	if patch.Status != nil {
		s := model.AvailabilityStatus(*patch.Status)
		status = &s
	}
	if err := in.partners.UpdatePartnerListingByOwner(ctx, id, actorID, patch.IsPublic, status); err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			return model.PartnerListing{}, apperr.Forbidden("partner listing %d belongs to another partner", id)
		}
		return model.PartnerListing{}, err
	}
	in.invalidate(ctx)
	return in.partners.GetPartnerListing(ctx, id)
}

// GetPendingListing returns a listing to its creator, the owning
// dealership or an admin.
func (in *Intake) GetPendingListing(ctx context.Context, actorID, id uint64) (model.PendingListing, error) {
	ac, err := in.resolver.authenticate(ctx, actorID)
	if err != nil {
		return model.PendingListing{}, err
	}
	l, err := in.pending.GetPendingListing(ctx, id)
	if err != nil {
		return model.PendingListing{}, pendingNotFound(err, id)
	}
	if !ac.IsAdmin() && l.CreatedBy != actorID && !ac.OwnsDealership(l.DealershipID) {
		return model.PendingListing{}, apperr.Forbidden("listing %d is outside your tenancy", id)
	}
	return l, nil
}

// ListPendingForReview pages through the admin review queue.
func (in *Intake) ListPendingForReview(ctx context.Context, adminID uint64, status model.ApprovalStatus, limit, offset int) ([]model.PendingListing, error) {
	if _, err := in.resolver.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if status == "" {
		status = model.ApprovalPending
	}
	switch status {
	case model.ApprovalPending, model.ApprovalApproved, model.ApprovalRejected:
	default:
		return nil, apperr.Field("status", "must be one of [pending approved rejected]")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		return nil, apperr.Field("offset", "must be >= 0")
	}
	out, err := in.pending.ListPendingByStatus(ctx, status, limit, offset)
	if out == nil && err == nil {
		out = []model.PendingListing{}
	}
	return out, err
}

func pendingNotFound(err error, id uint64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("listing %d not found", id)
	}
	return err
}
