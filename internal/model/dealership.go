package model

import "time"

// Dealership is the tenant root.  Each dealership has exactly one
// owning actor who holds write authority over its listings and
// partner memberships.
type Dealership struct {
	ID        uint64    `json:"id"`         // dealerships.id
	OwnerID   uint64    `json:"owner_id"`   // dealerships.owner_id (unique)
	Name      string    `json:"name"`       // dealerships.name
	City      string    `json:"city"`       // dealerships.city
	CreatedAt time.Time `json:"created_at"` // dealerships.created_at
}

// PartnerMembership links a partner (sub-dealer or tipper) to a
// dealership, or to the independent scope when DealershipID is nil.
// Memberships are created pending by the partner and approved by the
// dealership owner.  They are never deleted; revocation sets
// IsApproved back to false.
//
// CommissionRateBps is the partner's current commission rate in basis
// points (500 = 5%).  It is read at transaction completion and frozen
// into the resulting commission row.
type PartnerMembership struct {
	ID                uint64    `json:"id"`
	DealershipID      *uint64   `json:"dealership_id"`
	PartnerID         uint64    `json:"partner_id"`
	IsApproved        bool      `json:"is_approved"`
	CommissionRateBps int       `json:"commission_rate_bps"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// InScope reports whether the membership is scoped to dealershipID
// (nil meaning the independent scope).
func (m PartnerMembership) InScope(dealershipID *uint64) bool {
	return SameScope(m.DealershipID, dealershipID)
}

// SameScope compares two nullable dealership references.
func SameScope(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
