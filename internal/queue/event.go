// Package queue defines the marketplace domain events exchanged over
// RabbitMQ, the publisher used by the service layer and the audit
// consumer that appends every event to a log file.
package queue

import "time"

// QueueName is the durable queue every marketplace event is routed to.
const QueueName = "marketplace.events"

// Event types.
const (
	EventListingSubmitted     = "listing.submitted"
	EventListingDecided       = "listing.decided"
	EventLeadRecorded         = "lead.recorded"
	EventTransactionCompleted = "transaction.completed"
	EventCommissionCreated    = "commission.created"
	EventCommissionPaid       = "commission.paid"
)

// Event is the envelope published for every state change.  Data holds
// one of the payload structs below.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	RequestID  string    `json:"request_id,omitempty"`
	ActorID    uint64    `json:"actor_id,omitempty"`
	Data       any       `json:"data"`
}

// ListingSubmitted is emitted by every intake channel.
type ListingSubmitted struct {
	Channel   string `json:"channel"`
	ListingID uint64 `json:"listing_id"`
	Kind      string `json:"kind"` // pending or partner
}

// ListingDecided is emitted after an approval transition commits, and
// after a partner listing is promoted.
type ListingDecided struct {
	ListingID    uint64  `json:"listing_id"`
	Status       string  `json:"status"`
	CarListingID *uint64 `json:"car_listing_id,omitempty"`
}

// LeadRecorded is emitted for each appended lead.
type LeadRecorded struct {
	LeadID     uint64  `json:"lead_id"`
	ListingID  uint64  `json:"listing_id"`
	SourceType string  `json:"source_type"`
	SourceID   *uint64 `json:"source_id,omitempty"`
}

// TransactionCompleted is emitted when a sale completes.
type TransactionCompleted struct {
	TransactionID    uint64 `json:"transaction_id"`
	ListingID        uint64 `json:"listing_id"`
	AgreedPriceCents int64  `json:"agreed_price_cents"`
}

// CommissionEvent carries both commission.created and commission.paid.
type CommissionEvent struct {
	CommissionID  uint64 `json:"commission_id"`
	TransactionID uint64 `json:"transaction_id"`
	PartnerID     uint64 `json:"partner_id"`
	AmountCents   int64  `json:"amount_cents"`
	RateBps       int    `json:"rate_bps"`
}
