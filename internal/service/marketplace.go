package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/repository"
)

// Pool names a visibility pool.
type Pool string

const (
	PoolOwner   Pool = "owner"
	PoolPublic  Pool = "public"
	PoolNetwork Pool = "network"
)

// ListingFilter narrows a VisibleListings call.  Empty Pools means all
// three.  Limit is the page size and defaults to DefaultPageSize.
type ListingFilter struct {
	repository.ListingQuery
	Pools  []Pool
	Offset int
}

// DefaultPageSize is the page size used when a filter sets no limit.
const DefaultPageSize = 50

func (f ListingFilter) wants(p Pool) bool {
	if len(f.Pools) == 0 {
		return true
	}
	for _, x := range f.Pools {
		if x == p {
			return true
		}
	}
	return false
}

// VisibleSet is one viewer's listings, per pool.
type VisibleSet struct {
	Owner   []ListingView `json:"owner"`
	Public  []ListingView `json:"public"`
	Network []ListingView `json:"network"`
}

// Marketplace answers visibility queries.
type Marketplace struct {
	resolver *Resolver
	pending  PendingListingStore
	partners PartnerListingStore
	cars     CarListingStore
}

func NewMarketplace(resolver *Resolver, pending PendingListingStore, partners PartnerListingStore, cars CarListingStore) *Marketplace {
	return &Marketplace{resolver: resolver, pending: pending, partners: partners, cars: cars}
}

// ViewerFor resolves an authenticated actor into a Viewer.  Actor id 0
// is the anonymous viewer.
func (m *Marketplace) ViewerFor(ctx context.Context, actorID uint64) (Viewer, error) {
	if actorID == 0 {
		return Viewer{}, nil
	}
	ac, err := m.resolver.authenticate(ctx, actorID)
	if err != nil {
		return Viewer{}, err
	}
	return ac.Viewer(), nil
}

// VisibleListings loads the candidates of each requested pool
// concurrently and keeps only what the visibility rules admit for v.
func (m *Marketplace) VisibleListings(ctx context.Context, v Viewer, f ListingFilter) (VisibleSet, error) {
	if f.Offset < 0 {
		return VisibleSet{}, apperr.Field("offset", "must be >= 0")
	}
	if err := SortViews(nil, f.Sort); err != nil {
		return VisibleSet{}, err
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	// Each pool query is ordered like the final page, so its first
	// offset+limit rows hold every row the page can contain.
	q := f.ListingQuery
	q.Limit = f.Offset + f.Limit
	if q.Limit > repository.MaxCandidates {
		return VisibleSet{}, apperr.Field("offset", fmt.Sprintf("offset + limit must not exceed %d", repository.MaxCandidates))
	}
	var set VisibleSet
	g, gctx := errgroup.WithContext(ctx)

	if f.wants(PoolOwner) && v.Authenticated {
		g.Go(func() error {
			var out []ListingView
			if v.OwnedDealershipID != nil {
				ls, err := m.pending.ListPendingByDealership(gctx, *v.OwnedDealershipID, q)
				if err != nil {
					return err
				}
				for _, l := range ls {
					if PendingVisibility(l, v).Owner {
						out = append(out, pendingView(l))
					}
				}
			}
			ps, err := m.partners.ListPartnerListingsByPartner(gctx, v.ActorID, q)
			if err != nil {
				return err
			}
			for _, p := range ps {
				if PartnerVisibility(p, v).Owner {
					out = append(out, partnerView(p))
				}
			}
			set.Owner = out
			return nil
		})
	}

	if f.wants(PoolPublic) {
		g.Go(func() error {
			var out []ListingView
			cars, err := m.cars.ListAvailableCarListings(gctx, q)
			if err != nil {
				return err
			}
			for _, c := range cars {
				if CarVisibility(c, v).Public {
					out = append(out, carView(c))
				}
			}
			ps, err := m.partners.ListPublicPartnerListings(gctx, q)
			if err != nil {
				return err
			}
			for _, p := range ps {
				if PartnerVisibility(p, v).Public {
					out = append(out, partnerView(p))
				}
			}
			set.Public = out
			return nil
		})
	}

	if f.wants(PoolNetwork) && v.NetworkMember {
		g.Go(func() error {
			var out []ListingView
			nq := q
			nq.ExcludeDealerships = v.homeIDs()
			ls, err := m.pending.ListNetworkCandidates(gctx, nq)
			if err != nil {
				return err
			}
			for _, l := range ls {
				if PendingVisibility(l, v).Network {
					out = append(out, pendingView(l))
				}
			}
			set.Network = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return VisibleSet{}, err
	}
	for _, pool := range []*[]ListingView{&set.Owner, &set.Public, &set.Network} {
		if err := SortViews(*pool, f.Sort); err != nil {
			return VisibleSet{}, err
		}
		*pool = page(*pool, f.Offset, f.Limit)
	}
	return set, nil
}

func page(views []ListingView, offset, limit int) []ListingView {
	if views == nil {
		views = []ListingView{}
	}
	if offset >= len(views) {
		return []ListingView{}
	}
	views = views[offset:]
	if limit > 0 && limit < len(views) {
		views = views[:limit]
	}
	return views
}

// GetListing returns a car listing if v may see it.  Listings outside
// every pool are reported as not found.
func (m *Marketplace) GetListing(ctx context.Context, v Viewer, id uint64) (ListingView, error) {
	c, err := m.cars.GetCarListing(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ListingView{}, apperr.NotFound("listing %d not found", id)
		}
		return ListingView{}, err
	}
	if !CarVisibility(c, v).Any() {
		return ListingView{}, apperr.NotFound("listing %d not found", id)
	}
	return carView(c), nil
}
