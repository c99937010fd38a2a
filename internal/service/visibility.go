package service

import (
	"sort"
	"time"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/repository"
)

// Viewer is the tenancy projection the visibility rules evaluate
// against.  The zero Viewer is an anonymous visitor.
type Viewer struct {
	ActorID             uint64
	Authenticated       bool
	OwnedDealershipID   *uint64
	MemberDealershipIDs []uint64
	NetworkMember       bool
}

// home reports whether dealership id is one the viewer owns or holds an
// approved membership with.
func (v Viewer) home(id *uint64) bool {
	if id == nil {
		return false
	}
	if v.OwnedDealershipID != nil && *v.OwnedDealershipID == *id {
		return true
	}
	for _, m := range v.MemberDealershipIDs {
		if m == *id {
			return true
		}
	}
	return false
}

// homeIDs lists the dealerships home reports true for.
func (v Viewer) homeIDs() []uint64 {
	ids := append([]uint64(nil), v.MemberDealershipIDs...)
	if v.OwnedDealershipID != nil {
		ids = append(ids, *v.OwnedDealershipID)
	}
	return ids
}

func (v Viewer) owns(id *uint64) bool {
	return v.OwnedDealershipID != nil && id != nil && *v.OwnedDealershipID == *id
}

// Visibility is the set of pools a listing belongs to for one viewer.
type Visibility struct {
	Owner   bool `json:"owner"`
	Public  bool `json:"public"`
	Network bool `json:"network"`
}

func (v Visibility) Any() bool { return v.Owner || v.Public || v.Network }

// PendingVisibility: the owning dealership sees every status; approved
// listings shared with the network are visible to approved partners of
// other dealerships.  A pending listing is never public itself; its car
// listing is.
func PendingVisibility(l model.PendingListing, v Viewer) Visibility {
	return Visibility{
		Owner: v.owns(l.DealershipID),
		Network: l.ApprovalStatus == model.ApprovalApproved &&
			l.IsSharedWithNetwork &&
			v.NetworkMember &&
			!v.home(l.DealershipID),
	}
}

// PartnerVisibility: the partner sees its own catalogue; public rows are
// on the marketplace until promoted, after which the car listing stands
// in for them.
func PartnerVisibility(p model.PartnerListing, v Viewer) Visibility {
	return Visibility{
		Owner:  v.Authenticated && p.PartnerID == v.ActorID,
		Public: p.IsPublic && !p.IsAddedToMainListings,
	}
}

// CarVisibility: available car listings are public; the owning
// dealership also sees sold ones.
func CarVisibility(c model.CarListing, v Viewer) Visibility {
	return Visibility{
		Owner:  v.owns(c.DealershipID),
		Public: c.Status == model.StatusAvailable,
	}
}

// ListingView is the uniform shape the three listing tables are
// rendered into.
type ListingView struct {
	Kind           string        `json:"kind"` // car, pending or partner
	ID             uint64        `json:"id"`
	DealershipID   *uint64       `json:"dealership_id,omitempty"`
	Vehicle        model.Vehicle `json:"vehicle"`
	IsSpecialOffer bool          `json:"is_special_offer"`
	Status         string        `json:"status"`
	CarListingID   *uint64       `json:"car_listing_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

func carView(c model.CarListing) ListingView {
	return ListingView{Kind: "car", ID: c.ID, DealershipID: c.DealershipID, Vehicle: c.Vehicle,
		IsSpecialOffer: c.IsSpecialOffer, Status: string(c.Status), CarListingID: &c.ID, CreatedAt: c.CreatedAt}
}

func pendingView(l model.PendingListing) ListingView {
	return ListingView{Kind: "pending", ID: l.ID, DealershipID: l.DealershipID, Vehicle: l.Vehicle,
		IsSpecialOffer: l.IsSpecialOffer, Status: string(l.ApprovalStatus), CarListingID: l.CarListingID, CreatedAt: l.CreatedAt}
}

func partnerView(p model.PartnerListing) ListingView {
	return ListingView{Kind: "partner", ID: p.ID, Vehicle: p.Vehicle,
		Status: string(p.Status), CarListingID: p.CarListingID, CreatedAt: p.CreatedAt}
}

// Sort keys accepted by SortViews.
const (
	SortPriceAsc  = repository.SortPriceAsc
	SortPriceDesc = repository.SortPriceDesc
	SortNewest    = repository.SortNewest
)

// SortViews orders views in place by key.  An empty key keeps the load
// order.  Ties break on kind then id so the order is deterministic.
func SortViews(views []ListingView, key string) error {
	var less func(a, b ListingView) bool
	switch key {
	case "":
		return nil
	case SortPriceAsc:
		less = func(a, b ListingView) bool { return a.Vehicle.PriceCents < b.Vehicle.PriceCents }
	case SortPriceDesc:
		less = func(a, b ListingView) bool { return a.Vehicle.PriceCents > b.Vehicle.PriceCents }
	case SortNewest:
		less = func(a, b ListingView) bool { return a.CreatedAt.After(b.CreatedAt) }
	default:
		return apperr.Field("sort", "must be one of [price_asc price_desc newest]")
	}
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ID < b.ID
	})
	return nil
}
