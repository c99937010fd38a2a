package model

import "time"

// SourceType tells whether a lead came in organically or through a
// referring tipper.
type SourceType string

const (
	SourceOrganic SourceType = "organic"
	SourceTipper  SourceType = "tipper"
)

// LeadStatus progresses monotonically new → contacted → closed.
type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadClosed    LeadStatus = "closed"
)

var leadRank = map[LeadStatus]int{LeadNew: 0, LeadContacted: 1, LeadClosed: 2}

// CanAdvanceTo reports whether a lead may move from s to next.
func (s LeadStatus) CanAdvanceTo(next LeadStatus) bool {
	from, ok := leadRank[s]
	to, ok2 := leadRank[next]
	return ok && ok2 && to > from
}

// Lead is an append-only record of buyer interest in a car listing.
// SourceID references a partner membership and is set iff SourceType
// is tipper.
type Lead struct {
	ID         uint64     `json:"id"`
	ListingID  uint64     `json:"listing_id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone,omitempty"`
	Message    string     `json:"message,omitempty"`
	SourceType SourceType `json:"source_type"`
	SourceID   *uint64    `json:"source_id,omitempty"`
	Status     LeadStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TransactionStatus is the sale lifecycle.  pending and confirmed are
// the active states; at most one active transaction exists per listing.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxConfirmed TransactionStatus = "confirmed"
	TxCompleted TransactionStatus = "completed"
	TxCancelled TransactionStatus = "cancelled"
)

// Active reports whether the transaction holds the listing's sale slot.
func (s TransactionStatus) Active() bool { return s == TxPending || s == TxConfirmed }

// Transaction records an agreed sale of a car listing.
type Transaction struct {
	ID               uint64            `json:"id"`
	ListingID        uint64            `json:"listing_id"`
	LeadID           *uint64           `json:"lead_id,omitempty"`
	AgreedPriceCents int64             `json:"agreed_price_cents"`
	Status           TransactionStatus `json:"status"`
	CreatedBy        uint64            `json:"created_by"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// CommissionStatus moves one way: pending → paid.
type CommissionStatus string

const (
	CommissionPending CommissionStatus = "pending"
	CommissionPaid    CommissionStatus = "paid"
)

// Commission is the immutable audit record of what a tipper earned on a
// completed transaction.  RateBps is the rate in force at completion.
type Commission struct {
	ID            uint64           `json:"id"`
	TransactionID uint64           `json:"transaction_id"`
	MembershipID  uint64           `json:"membership_id"`
	PartnerID     uint64           `json:"partner_id"`
	RateBps       int              `json:"rate_bps"`
	AmountCents   int64            `json:"amount_cents"`
	Status        CommissionStatus `json:"status"`
	PaidAt        *time.Time       `json:"paid_at,omitempty"`
	PaidBy        *uint64          `json:"paid_by,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// CommissionAmount computes price × rate, rounding half away from zero to
// the nearest minor unit.
func CommissionAmount(priceCents int64, rateBps int) int64 {
	p := priceCents * int64(rateBps)
	if p < 0 {
		return -((-p + 5000) / 10000)
	}
	return (p + 5000) / 10000
}

// AttributeSale picks the partner membership credited with a sale.  The
// transaction's own lead wins when it is a tipper lead; otherwise the
// earliest tipper lead on the listing is used.  leads must be ordered by
// id.  A nil result means the sale is organic.
func AttributeSale(t Transaction, leads []Lead) *uint64 {
	if t.LeadID != nil {
		for _, l := range leads {
			if l.ID == *t.LeadID {
				if l.SourceType == SourceTipper && l.SourceID != nil {
					id := *l.SourceID
					return &id
				}
				return nil
			}
		}
	}
	for _, l := range leads {
		if l.ListingID == t.ListingID && l.SourceType == SourceTipper && l.SourceID != nil {
			id := *l.SourceID
			return &id
		}
	}
	return nil
}
