package model

import "time"

// ApprovalStatus is the lifecycle state of a pending listing.  The only
// legal transitions are pending→approved and pending→rejected.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// Decision is the verdict an admin applies to a pending listing.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Status returns the approval status a decision transitions to.
func (d Decision) Status() (ApprovalStatus, bool) {
	switch d {
	case DecisionApprove:
		return ApprovalApproved, true
	case DecisionReject:
		return ApprovalRejected, true
	}
	return "", false
}

// Channel identifies which intake path produced a record.
type Channel string

const (
	ChannelDealer    Channel = "dealer"
	ChannelPartner   Channel = "partner"
	ChannelAutomated Channel = "automated"
)

// AvailabilityStatus is the dealer-facing availability of a partner or
// car listing.
type AvailabilityStatus string

const (
	StatusAvailable AvailabilityStatus = "available"
	StatusReserved  AvailabilityStatus = "reserved"
	StatusSold      AvailabilityStatus = "sold"
)

// Vehicle holds the canonical vehicle attributes shared by every
// listing table.  Prices are in minor currency units.
type Vehicle struct {
	VIN        string   `json:"vin,omitempty"`
	Make       string   `json:"make"`
	Model      string   `json:"model"`
	Year       int      `json:"year"`
	PriceCents int64    `json:"price_cents"`
	Mileage    int      `json:"mileage"`
	Condition  string   `json:"condition,omitempty"`
	MediaURLs  []string `json:"media_urls"`
	Features   []string `json:"features"`
}

// VisibilityFlags are the owner-controlled flags that gate promotion.
type VisibilityFlags struct {
	IsSpecialOffer      bool `json:"is_special_offer"`
	IsSharedWithNetwork bool `json:"is_shared_with_network"`
	IsPublic            bool `json:"is_public"`
}

// PendingListing is a listing awaiting, or past, an admin decision.
// Once decided it is immutable to its creator.
type PendingListing struct {
	ID             uint64         `json:"id"`
	DealershipID   *uint64        `json:"dealership_id"`
	CreatedBy      uint64         `json:"created_by"`
	Channel        Channel        `json:"channel"`
	Vehicle        Vehicle        `json:"vehicle"`
	VisibilityFlags
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	DecidedBy      *uint64        `json:"decided_by,omitempty"`
	DecidedAt      *time.Time     `json:"decided_at,omitempty"`
	DecisionNote   *string        `json:"decision_note,omitempty"`
	CarListingID   *uint64        `json:"car_listing_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// PartnerListing originates from the automated ingestion channel or a
// partner's own catalogue.  IsAddedToMainListings only ever flips from
// false to true.
type PartnerListing struct {
	ID                    uint64             `json:"id"`
	PartnerID             uint64             `json:"partner_id"`
	Vehicle               Vehicle            `json:"vehicle"`
	Status                AvailabilityStatus `json:"status"`
	IsPublic              bool               `json:"is_public"`
	IsAddedToMainListings bool               `json:"is_added_to_main_listings"`
	CarListingID          *uint64            `json:"car_listing_id,omitempty"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// SourceKind records which table a car listing was promoted from.
type SourceKind string

const (
	SourcePending SourceKind = "pending"
	SourcePartner SourceKind = "partner"
)

// CarListing is the promoted marketplace entity.  It is only created by
// an approval with is_public set, or by explicit admin promotion of a
// partner listing.
type CarListing struct {
	ID                  uint64             `json:"id"`
	DealershipID        *uint64            `json:"dealership_id"`
	SourceKind          SourceKind         `json:"source_kind"`
	SourceID            uint64             `json:"source_id"`
	Vehicle             Vehicle            `json:"vehicle"`
	IsSpecialOffer      bool               `json:"is_special_offer"`
	Status              AvailabilityStatus `json:"status"`
	ActiveTransactionID *uint64            `json:"-"`
	CreatedAt           time.Time          `json:"created_at"`
}

// DecisionOverrides are admin-supplied corrections applied atomically
// with an approval.  Nil fields leave the stored value unchanged.
type DecisionOverrides struct {
	PriceCents          *int64  `json:"price_cents,omitempty"`
	Mileage             *int    `json:"mileage,omitempty"`
	Condition           *string `json:"condition,omitempty"`
	IsPublic            *bool   `json:"is_public,omitempty"`
	IsSharedWithNetwork *bool   `json:"is_shared_with_network,omitempty"`
	IsSpecialOffer      *bool   `json:"is_special_offer,omitempty"`
}

// Apply returns a copy of l with the overrides applied.
func (o DecisionOverrides) Apply(l PendingListing) PendingListing {
	if o.PriceCents != nil {
		l.Vehicle.PriceCents = *o.PriceCents
	}
	if o.Mileage != nil {
		l.Vehicle.Mileage = *o.Mileage
	}
	if o.Condition != nil {
		l.Vehicle.Condition = *o.Condition
	}
	if o.IsPublic != nil {
		l.IsPublic = *o.IsPublic
	}
	if o.IsSharedWithNetwork != nil {
		l.IsSharedWithNetwork = *o.IsSharedWithNetwork
	}
	if o.IsSpecialOffer != nil {
		l.IsSpecialOffer = *o.IsSpecialOffer
	}
	return l
}

// DecisionCommand is the full input of one approval transition.
type DecisionCommand struct {
	ListingID uint64
	AdminID   uint64
	Decision  Decision
	Note      *string
	Overrides DecisionOverrides
}

// PromoteFromPending builds the car listing an approved, public pending
// listing is promoted into.
func PromoteFromPending(l PendingListing) CarListing {
	return CarListing{
		DealershipID:   l.DealershipID,
		SourceKind:     SourcePending,
		SourceID:       l.ID,
		Vehicle:        l.Vehicle,
		IsSpecialOffer: l.IsSpecialOffer,
		Status:         StatusAvailable,
	}
}

// PromoteFromPartner builds the car listing for an admin-promoted
// partner listing.  Partner listings carry no dealership.
func PromoteFromPartner(p PartnerListing) CarListing {
	status := p.Status
	if status == "" {
		status = StatusAvailable
	}
	return CarListing{
		SourceKind: SourcePartner,
		SourceID:   p.ID,
		Vehicle:    p.Vehicle,
		Status:     status,
	}
}
