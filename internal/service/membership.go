package service

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/logging"
	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/repository"
	"github.com/iliyamo/dealer-syndication/internal/validation"
)

// DealershipInput names a new dealership.
type DealershipInput struct {
	Name string `json:"name" validate:"required,max=120"`
	City string `json:"city" validate:"max=80"`
}

// Memberships manages dealerships and the partner memberships attached
// to them.
type Memberships struct {
	resolver    *Resolver
	dealerships DealershipStore
	memberships MembershipStore
	notifier
}

func NewMemberships(resolver *Resolver, dealerships DealershipStore, memberships MembershipStore, views ViewInvalidator) *Memberships {
	return &Memberships{resolver: resolver, dealerships: dealerships, memberships: memberships,
		notifier: notifier{views: views}}
}

// CreateDealership registers the single dealership a dealer may own.
func (m *Memberships) CreateDealership(ctx context.Context, ownerID uint64, in DealershipInput) (model.Dealership, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.City = strings.TrimSpace(in.City)
	if err := validation.ValidateStruct(in); err != nil {
		return model.Dealership{}, err
	}
	ac, err := m.resolver.authenticate(ctx, ownerID)
	if err != nil {
		return model.Dealership{}, err
	}
	if ac.Role != model.RoleDealer {
		return model.Dealership{}, apperr.Forbidden("dealer role required")
	}
	d := model.Dealership{OwnerID: ownerID, Name: in.Name, City: in.City}
	if err := m.dealerships.CreateDealership(ctx, &d); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Dealership{}, apperr.Conflict("actor %d already owns a dealership", ownerID)
		}
		return model.Dealership{}, err
	}
	forget(ctx, ownerID)
	logging.Ctx(ctx).Info().Uint64("dealership_id", d.ID).Uint64("owner_id", ownerID).Msg("dealership created")
	return d, nil
}

// ApplyForMembership files a pending membership for partnerID, scoped to
// dealershipID or, when nil, to the independent scope.
func (m *Memberships) ApplyForMembership(ctx context.Context, partnerID uint64, dealershipID *uint64) (model.PartnerMembership, error) {
	ac, err := m.resolver.authenticate(ctx, partnerID)
	if err != nil {
		return model.PartnerMembership{}, err
	}
	if ac.Role != model.RoleTipper && ac.Role != model.RoleDealer {
		return model.PartnerMembership{}, apperr.Forbidden("partner role required")
	}
	if dealershipID != nil {
		if _, err := m.dealerships.GetDealership(ctx, *dealershipID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return model.PartnerMembership{}, apperr.NotFound("dealership %d not found", *dealershipID)
			}
			return model.PartnerMembership{}, err
		}
		if ac.OwnsDealership(dealershipID) {
			return model.PartnerMembership{}, apperr.Field("dealership_id", "cannot be your own dealership")
		}
	}
	for _, existing := range ac.Memberships {
		if existing.InScope(dealershipID) {
			return model.PartnerMembership{}, apperr.Conflict("membership %d already covers this scope", existing.ID)
		}
	}
	pm := model.PartnerMembership{DealershipID: dealershipID, PartnerID: partnerID}
	if err := m.memberships.CreateMembership(ctx, &pm); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.PartnerMembership{}, apperr.Conflict("a membership already covers this scope")
		}
		return model.PartnerMembership{}, err
	}
	forget(ctx, partnerID)
	return pm, nil
}

// ListMemberships returns the actor's own memberships, or with
// forDealership the ones filed against the dealership the actor owns.
func (m *Memberships) ListMemberships(ctx context.Context, actorID uint64, forDealership bool) ([]model.PartnerMembership, error) {
	ac, err := m.resolver.authenticate(ctx, actorID)
	if err != nil {
		return nil, err
	}
	out := ac.Memberships
	if forDealership {
		if ac.Dealership == nil {
			return nil, apperr.Forbidden("actor %d owns no dealership", actorID)
		}
		if out, err = m.memberships.ListMembershipsByDealership(ctx, ac.Dealership.ID); err != nil {
			return nil, err
		}
	}
	if out == nil {
		out = []model.PartnerMembership{}
	}
	return out, nil
}

// SetMembershipApproval approves or revokes a membership.  The dealership
// owner decides for its own memberships, an admin for independent ones.
func (m *Memberships) SetMembershipApproval(ctx context.Context, actorID, membershipID uint64, approved bool) (model.PartnerMembership, error) {
	if _, err := m.resolver.authenticate(ctx, actorID); err != nil {
		return model.PartnerMembership{}, err
	}
	cur, err := m.memberships.GetMembership(ctx, membershipID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.PartnerMembership{}, apperr.NotFound("membership %d not found", membershipID)
		}
		return model.PartnerMembership{}, err
	}
	if err := m.memberships.SetMembershipApproval(ctx, membershipID, actorID, approved); err != nil {
		if errors.Is(err, repository.ErrForbidden) {
			return model.PartnerMembership{}, apperr.Forbidden("membership %d is outside your authority", membershipID)
		}
		return model.PartnerMembership{}, err
	}
	forget(ctx, cur.PartnerID)
	// Network visibility depends on approval.
	m.invalidate(ctx)
	return m.memberships.GetMembership(ctx, membershipID)
}
