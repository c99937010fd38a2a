package service

import (
	"context"
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

// LeadInput is a buyer's expression of interest in a car listing.
type LeadInput struct {
	ListingID  uint64  `json:"listing_id" validate:"required"`
	Name       string  `json:"name" validate:"required,max=120"`
	Email      string  `json:"email" validate:"required,email,max=190"`
	Phone      string  `json:"phone" validate:"max=40"`
	Message    string  `json:"message" validate:"max=2000"`
	SourceType string  `json:"source_type" validate:"omitempty,oneof=organic tipper"`
	SourceID   *uint64 `json:"source_id"`
}

// Ledger records leads and transactions and derives commissions from
// them.
type Ledger struct {
	resolver     *Resolver
	cars         CarListingStore
	leads        LeadStore
	transactions TransactionStore
	commissions  CommissionStore
	memberships  MembershipStore
	notifier
}

func NewLedger(resolver *Resolver, cars CarListingStore, leads LeadStore, transactions TransactionStore,
	commissions CommissionStore, memberships MembershipStore, events EventPublisher, views ViewInvalidator) *Ledger {
	return &Ledger{resolver: resolver, cars: cars, leads: leads, transactions: transactions,
		commissions: commissions, memberships: memberships, notifier: notifier{events: events, views: views}}
}

// RecordLead appends a lead.  A tipper lead must name the approved
// membership that referred it; an organic lead must not name one.
func (l *Ledger) RecordLead(ctx context.Context, in LeadInput) (model.Lead, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Message = strings.TrimSpace(in.Message)
	if in.SourceType == "" {
		in.SourceType = string(model.SourceOrganic)
	}
	if err := validation.ValidateStruct(in); err != nil {
		return model.Lead{}, err
	}
	source := model.SourceType(in.SourceType)
	switch {
	case source == model.SourceTipper && in.SourceID == nil:
		return model.Lead{}, apperr.Field("source_id", "is required for tipper leads")
	case source == model.SourceOrganic && in.SourceID != nil:
		return model.Lead{}, apperr.Field("source_id", "must be empty for organic leads")
	}
	if _, err := l.car(ctx, in.ListingID); err != nil {
		return model.Lead{}, err
	}

	lead := model.Lead{
		ListingID: in.ListingID, Name: in.Name, Email: in.Email, Phone: in.Phone,
		Message: in.Message, SourceType: source, SourceID: in.SourceID,
	}
	if err := l.leads.InsertLead(ctx, &lead); err != nil {
		switch {
		case errors.Is(err, repository.ErrSourceRejected):
			return model.Lead{}, apperr.Field("source_id", "must reference an approved partner membership")
		case errors.Is(err, repository.ErrNotFound):
			return model.Lead{}, apperr.NotFound("listing %d not found", in.ListingID)
		}
		return model.Lead{}, err
	}
	metrics.LeadsRecorded.WithLabelValues(string(lead.SourceType)).Inc()
	l.publish(ctx, 0, queue.EventLeadRecorded, queue.LeadRecorded{
		LeadID: lead.ID, ListingID: lead.ListingID, SourceType: string(lead.SourceType), SourceID: lead.SourceID,
	})
	return lead, nil
}

func (l *Ledger) car(ctx context.Context, id uint64) (model.CarListing, error) {
	c, err := l.cars.GetCarListing(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.CarListing{}, apperr.NotFound("listing %d not found", id)
		}
		return model.CarListing{}, err
	}
	return c, nil
}

// manage loads a car listing and checks the actor may run its sales.
// Listings without a dealership, which includes promoted partner
// listings, are run by admins only.
func (l *Ledger) manage(ctx context.Context, actorID, listingID uint64) (ActorContext, model.CarListing, error) {
	ac, err := l.resolver.authenticate(ctx, actorID)
	if err != nil {
		return ActorContext{}, model.CarListing{}, err
	}
	c, err := l.car(ctx, listingID)
	if err != nil {
		return ActorContext{}, model.CarListing{}, err
	}
	if !ac.IsAdmin() && !ac.OwnsDealership(c.DealershipID) {
		return ActorContext{}, model.CarListing{}, apperr.Forbidden("listing %d belongs to another dealership", listingID)
	}
	return ac, c, nil
}

// ListLeads returns the leads on the actor's listings, or on one listing
// when listingID is non-zero.
func (l *Ledger) ListLeads(ctx context.Context, actorID, listingID uint64) ([]model.Lead, error) {
	var (
		out []model.Lead
		err error
	)
	if listingID != 0 {
		if _, _, err := l.manage(ctx, actorID, listingID); err != nil {
			return nil, err
		}
		out, err = l.leads.ListLeadsByListing(ctx, listingID)
	} else {
		if _, err := l.resolver.authenticate(ctx, actorID); err != nil {
			return nil, err
		}
		out, err = l.leads.ListLeadsForOwner(ctx, actorID)
	}
	if out == nil && err == nil {
		out = []model.Lead{}
	}
	return out, err
}

// UpdateLeadStatus advances a lead along new → contacted → closed.
func (l *Ledger) UpdateLeadStatus(ctx context.Context, actorID, id uint64, to model.LeadStatus) (model.Lead, error) {
	lead, err := l.leads.GetLead(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Lead{}, apperr.NotFound("lead %d not found", id)
		}
		return model.Lead{}, err
	}
	if _, _, err := l.manage(ctx, actorID, lead.ListingID); err != nil {
		return model.Lead{}, err
	}
	switch to {
	case model.LeadNew, model.LeadContacted, model.LeadClosed:
	default:
		return model.Lead{}, apperr.Field("status", "must be one of [new contacted closed]")
	}
	if !lead.Status.CanAdvanceTo(to) {
		return model.Lead{}, apperr.InvalidState("lead %d cannot move from %s to %s", id, lead.Status, to)
	}
	if err := l.leads.AdvanceLeadStatus(ctx, id, actorID, lead.Status, to); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.ConflictsTotal.WithLabelValues("lead_status").Inc()
			return model.Lead{}, apperr.Conflict("lead %d changed concurrently", id)
		}
		return model.Lead{}, err
	}
	lead.Status = to
	return lead, nil
}

// OpenTransactionInput starts a sale on a car listing.
type OpenTransactionInput struct {
	ListingID        uint64  `json:"listing_id" validate:"required"`
	AgreedPriceCents int64   `json:"agreed_price_cents" validate:"gt=0"`
	LeadID           *uint64 `json:"lead_id"`
}

// OpenTransaction claims the listing's single active-sale slot.
func (l *Ledger) OpenTransaction(ctx context.Context, actorID uint64, in OpenTransactionInput) (model.Transaction, error) {
	if err := validation.ValidateStruct(in); err != nil {
		return model.Transaction{}, err
	}
	_, car, err := l.manage(ctx, actorID, in.ListingID)
	if err != nil {
		return model.Transaction{}, err
	}
	if car.Status == model.StatusSold {
		return model.Transaction{}, apperr.InvalidState("listing %d is already sold", car.ID)
	}
	if in.LeadID != nil {
		lead, err := l.leads.GetLead(ctx, *in.LeadID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return model.Transaction{}, err
		}
		if err != nil || lead.ListingID != in.ListingID {
			return model.Transaction{}, apperr.Field("lead_id", "must reference a lead on this listing")
		}
	}
	t := model.Transaction{ListingID: in.ListingID, LeadID: in.LeadID, AgreedPriceCents: in.AgreedPriceCents, CreatedBy: actorID}
	if err := l.transactions.OpenTransaction(ctx, actorID, &t); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			metrics.ConflictsTotal.WithLabelValues("open_transaction").Inc()
			return model.Transaction{}, apperr.Conflict("listing %d already has an active transaction", in.ListingID)
		}
		return model.Transaction{}, err
	}
	metrics.TransactionTransitions.WithLabelValues(string(model.TxPending)).Inc()
	return t, nil
}

// transaction loads a transaction the actor may manage.
func (l *Ledger) transaction(ctx context.Context, actorID, id uint64) (model.Transaction, error) {
	t, err := l.transactions.GetTransaction(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Transaction{}, apperr.NotFound("transaction %d not found", id)
		}
		return model.Transaction{}, err
	}
	if _, _, err := l.manage(ctx, actorID, t.ListingID); err != nil {
		return model.Transaction{}, err
	}
	return t, nil
}

func (l *Ledger) GetTransaction(ctx context.Context, actorID, id uint64) (model.Transaction, error) {
	return l.transaction(ctx, actorID, id)
}

// ConfirmTransaction moves a pending transaction to confirmed.
func (l *Ledger) ConfirmTransaction(ctx context.Context, actorID, id uint64) (model.Transaction, error) {
	t, err := l.transaction(ctx, actorID, id)
	if err != nil {
		return model.Transaction{}, err
	}
	if t.Status != model.TxPending {
		return model.Transaction{}, apperr.InvalidState("transaction %d is %s", id, t.Status)
	}
	if err := l.transactions.ConfirmTransaction(ctx, id, actorID); err != nil {
		return model.Transaction{}, l.lostTransition(err, "confirm_transaction", id)
	}
	metrics.TransactionTransitions.WithLabelValues(string(model.TxConfirmed)).Inc()
	return l.transactions.GetTransaction(ctx, id)
}

// CancelTransaction cancels an active transaction and frees the listing.
func (l *Ledger) CancelTransaction(ctx context.Context, actorID, id uint64) (model.Transaction, error) {
	t, err := l.transaction(ctx, actorID, id)
	if err != nil {
		return model.Transaction{}, err
	}
	if !t.Status.Active() {
		return model.Transaction{}, apperr.InvalidState("transaction %d is %s", id, t.Status)
	}
	if err := l.transactions.CancelTransaction(ctx, id, actorID); err != nil {
		return model.Transaction{}, l.lostTransition(err, "cancel_transaction", id)
	}
	metrics.TransactionTransitions.WithLabelValues(string(model.TxCancelled)).Inc()
	return l.transactions.GetTransaction(ctx, id)
}

// CompletionResult is a completed transaction and the commission it
// produced, nil for organic sales.
type CompletionResult struct {
	Transaction model.Transaction `json:"transaction"`
	Commission  *model.Commission `json:"commission,omitempty"`
}

// CompleteTransaction finalises a sale.  Exactly one caller wins a race
// to complete; the others get a conflict.
func (l *Ledger) CompleteTransaction(ctx context.Context, actorID, id uint64) (CompletionResult, error) {
	t, err := l.transaction(ctx, actorID, id)
	if err != nil {
		return CompletionResult{}, err
	}
	if !t.Status.Active() {
		return CompletionResult{}, apperr.InvalidState("transaction %d is %s", id, t.Status)
	}
	done, commission, err := l.transactions.CompleteTransaction(ctx, id, actorID)
	if err != nil {
		return CompletionResult{}, l.lostTransition(err, "complete_transaction", id)
	}
	metrics.TransactionTransitions.WithLabelValues(string(model.TxCompleted)).Inc()
	l.invalidate(ctx)
	l.publish(ctx, actorID, queue.EventTransactionCompleted, queue.TransactionCompleted{
		TransactionID: done.ID, ListingID: done.ListingID, AgreedPriceCents: done.AgreedPriceCents,
	})
	if commission != nil {
		metrics.CommissionAmountCents.WithLabelValues(string(model.CommissionPending)).Add(float64(commission.AmountCents))
		l.publish(ctx, actorID, queue.EventCommissionCreated, commissionEvent(*commission))
	}
	logging.Ctx(ctx).Info().Uint64("transaction_id", done.ID).Bool("commissioned", commission != nil).Msg("transaction completed")
	return CompletionResult{Transaction: done, Commission: commission}, nil
}

func (l *Ledger) lostTransition(err error, op string, id uint64) error {
	if errors.Is(err, repository.ErrConflict) {
		metrics.ConflictsTotal.WithLabelValues(op).Inc()
		return apperr.Conflict("transaction %d changed concurrently; re-fetch before retrying", id)
	}
	return err
}

func commissionEvent(c model.Commission) queue.CommissionEvent {
	return queue.CommissionEvent{CommissionID: c.ID, TransactionID: c.TransactionID, PartnerID: c.PartnerID,
		AmountCents: c.AmountCents, RateBps: c.RateBps}
}

// MarkCommissionPaid settles a pending commission.  Paying twice is an
// invalid state, not a no-op.
func (l *Ledger) MarkCommissionPaid(ctx context.Context, adminID, id uint64) (model.Commission, error) {
	if _, err := l.resolver.requireAdmin(ctx, adminID); err != nil {
		return model.Commission{}, err
	}
	c, err := l.commissions.GetCommission(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Commission{}, apperr.NotFound("commission %d not found", id)
		}
		return model.Commission{}, err
	}
	if c.Status == model.CommissionPaid {
		return model.Commission{}, apperr.InvalidState("commission %d is already paid", id)
	}
	if err := l.commissions.MarkCommissionPaid(ctx, id, adminID); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Commission{}, apperr.InvalidState("commission %d is already paid", id)
		}
		return model.Commission{}, err
	}
	paid, err := l.commissions.GetCommission(ctx, id)
	if err != nil {
		return model.Commission{}, err
	}
	metrics.CommissionAmountCents.WithLabelValues(string(model.CommissionPaid)).Add(float64(paid.AmountCents))
	l.publish(ctx, adminID, queue.EventCommissionPaid, commissionEvent(paid))
	return paid, nil
}

// ListCommissions returns every commission to an admin and the actor's
// own commissions to anyone else.
func (l *Ledger) ListCommissions(ctx context.Context, actorID uint64) ([]model.Commission, error) {
	ac, err := l.resolver.authenticate(ctx, actorID)
	if err != nil {
		return nil, err
	}
	var partner *uint64
	if !ac.IsAdmin() {
		partner = &actorID
	}
	out, err := l.commissions.ListCommissions(ctx, partner)
	if out == nil && err == nil {
		out = []model.Commission{}
	}
	return out, err
}

// SetCommissionRate changes a membership's rate for future completions.
// Existing commission rows keep the rate they were created with.
func (l *Ledger) SetCommissionRate(ctx context.Context, actorID, membershipID uint64, bps int) (model.PartnerMembership, error) {
	if bps < 0 || bps > 10000 {
		return model.PartnerMembership{}, apperr.Field("commission_rate_bps", "must be between 0 and 10000")
	}
	if _, err := l.resolver.authenticate(ctx, actorID); err != nil {
		return model.PartnerMembership{}, err
	}
	if _, err := l.memberships.GetMembership(ctx, membershipID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PartnerMembership{}, apperr.NotFound("membership %d not found", membershipID)
		}
		return model.PartnerMembership{}, err
	}
	if err := l.memberships.SetCommissionRate(ctx, membershipID, actorID, bps); err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			return model.PartnerMembership{}, apperr.Forbidden("membership %d is outside your dealership", membershipID)
		}
		return model.PartnerMembership{}, err
	}
	return l.memberships.GetMembership(ctx, membershipID)
}
