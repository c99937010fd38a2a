// Package service implements the marketplace core: tenancy resolution,
// listing intake, the approval state machine, visibility pools and the
// attribution ledger.  Services depend on the narrow store interfaces
// below; the MySQL repositories satisfy them in production and in-memory
// fakes do in tests.  Every invariant that must survive concurrent
// requests is enforced by a conditional write inside the store, never by
// an in-process lock.
package service

import (
	"context"

	"github.com/iliyamo/dealer-syndication/internal/analysis"
	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/queue"
	"github.com/iliyamo/dealer-syndication/internal/repository"
)

type ActorStore interface {
	GetActor(ctx context.Context, id uint64) (model.Actor, error)
	UpsertActor(ctx context.Context, a model.Actor) error
}

type DealershipStore interface {
	CreateDealership(ctx context.Context, d *model.Dealership) error
	GetDealership(ctx context.Context, id uint64) (model.Dealership, error)
	GetDealershipByOwner(ctx context.Context, ownerID uint64) (model.Dealership, error)
}

type MembershipStore interface {
	CreateMembership(ctx context.Context, m *model.PartnerMembership) error
	GetMembership(ctx context.Context, id uint64) (model.PartnerMembership, error)
	ListMembershipsByPartner(ctx context.Context, partnerID uint64) ([]model.PartnerMembership, error)
	ListMembershipsByDealership(ctx context.Context, dealershipID uint64) ([]model.PartnerMembership, error)
	SetMembershipApproval(ctx context.Context, id, actorID uint64, approved bool) error
	SetCommissionRate(ctx context.Context, id, actorID uint64, bps int) error
}

type PendingListingStore interface {
	CreatePendingForDealer(ctx context.Context, ownerID uint64, l *model.PendingListing) error
	CreatePendingForPartner(ctx context.Context, membershipID, partnerID uint64, l *model.PendingListing) error
	GetPendingListing(ctx context.Context, id uint64) (model.PendingListing, error)
	ListPendingByStatus(ctx context.Context, status model.ApprovalStatus, limit, offset int) ([]model.PendingListing, error)
	ListPendingByDealership(ctx context.Context, dealershipID uint64, q repository.ListingQuery) ([]model.PendingListing, error)
	ListNetworkCandidates(ctx context.Context, q repository.ListingQuery) ([]model.PendingListing, error)
	UpdatePendingByCreator(ctx context.Context, id, creatorID uint64, v model.Vehicle, f model.VisibilityFlags) error
	Decide(ctx context.Context, cmd model.DecisionCommand, before repository.BeforeCommit) (model.PendingListing, *model.CarListing, error)
	AdminUpdate(ctx context.Context, id, adminID uint64, v model.Vehicle, specialOffer, shared bool) (model.PendingListing, error)
}

type PartnerListingStore interface {
	InsertPartnerListing(ctx context.Context, p *model.PartnerListing) error
	GetPartnerListing(ctx context.Context, id uint64) (model.PartnerListing, error)
	ListPartnerListingsByPartner(ctx context.Context, partnerID uint64, q repository.ListingQuery) ([]model.PartnerListing, error)
	ListPublicPartnerListings(ctx context.Context, q repository.ListingQuery) ([]model.PartnerListing, error)
	UpdatePartnerListingByOwner(ctx context.Context, id, partnerID uint64, isPublic *bool, status *model.AvailabilityStatus) error
	PromotePartnerListing(ctx context.Context, id, adminID uint64, before repository.BeforeCommit) (model.PartnerListing, model.CarListing, error)
}

type CarListingStore interface {
	GetCarListing(ctx context.Context, id uint64) (model.CarListing, error)
	ListAvailableCarListings(ctx context.Context, q repository.ListingQuery) ([]model.CarListing, error)
}

type LeadStore interface {
	InsertLead(ctx context.Context, l *model.Lead) error
	GetLead(ctx context.Context, id uint64) (model.Lead, error)
	ListLeadsByListing(ctx context.Context, listingID uint64) ([]model.Lead, error)
	ListLeadsForOwner(ctx context.Context, ownerID uint64) ([]model.Lead, error)
	AdvanceLeadStatus(ctx context.Context, id, actorID uint64, from, to model.LeadStatus) error
}

type TransactionStore interface {
	OpenTransaction(ctx context.Context, actorID uint64, t *model.Transaction) error
	GetTransaction(ctx context.Context, id uint64) (model.Transaction, error)
	ConfirmTransaction(ctx context.Context, id, actorID uint64) error
	CancelTransaction(ctx context.Context, id, actorID uint64) error
	CompleteTransaction(ctx context.Context, id, actorID uint64) (model.Transaction, *model.Commission, error)
}

type CommissionStore interface {
	GetCommission(ctx context.Context, id uint64) (model.Commission, error)
	ListCommissions(ctx context.Context, partnerID *uint64) ([]model.Commission, error)
	MarkCommissionPaid(ctx context.Context, id, adminID uint64) error
}

// EventPublisher is satisfied by *queue.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// Analyzer is satisfied by *analysis.Client.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (analysis.Result, error)
}

// ViewInvalidator drops cached public views.  It is satisfied by the
// response cache middleware.
type ViewInvalidator interface {
	Invalidate(ctx context.Context) error
}
