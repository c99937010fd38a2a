package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/repository"
)

// ActorContext is everything the core needs to authorize one actor:
// role, owned dealership (nil when none) and every membership the actor
// holds as a partner.
type ActorContext struct {
	ActorID     uint64
	Role        model.Role
	Dealership  *model.Dealership
	Memberships []model.PartnerMembership
}

func (a ActorContext) IsAdmin() bool { return a.Role == model.RoleAdmin }

// ApprovedMemberships filters Memberships to the approved ones.
func (a ActorContext) ApprovedMemberships() []model.PartnerMembership {
	var out []model.PartnerMembership
	for _, m := range a.Memberships {
		if m.IsApproved {
			out = append(out, m)
		}
	}
	return out
}

// OwnsDealership reports whether the actor owns dealership id.
func (a ActorContext) OwnsDealership(id *uint64) bool {
	return a.Dealership != nil && id != nil && a.Dealership.ID == *id
}

// Viewer projects the context onto the inputs of the visibility rules.
func (a ActorContext) Viewer() Viewer {
	v := Viewer{ActorID: a.ActorID, Authenticated: true}
	if a.Dealership != nil {
		id := a.Dealership.ID
		v.OwnedDealershipID = &id
	}
	for _, m := range a.ApprovedMemberships() {
		v.NetworkMember = true
		if m.DealershipID != nil {
			v.MemberDealershipIDs = append(v.MemberDealershipIDs, *m.DealershipID)
		}
	}
	return v
}

// Resolver loads ActorContexts.  Results are memoised per request when
// the context carries a request cache (see WithRequestCache) and are
// never shared across requests.
type Resolver struct {
	actors      ActorStore
	dealerships DealershipStore
	memberships MembershipStore
}

func NewResolver(actors ActorStore, dealerships DealershipStore, memberships MembershipStore) *Resolver {
	return &Resolver{actors: actors, dealerships: dealerships, memberships: memberships}
}

type requestCacheKey struct{}

type requestCache struct {
	mu     sync.Mutex
	actors map[uint64]ActorContext
}

// WithRequestCache installs an empty per-request memo for ResolveActor.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheKey{}, &requestCache{actors: map[uint64]ActorContext{}})
}

func cacheFrom(ctx context.Context) *requestCache {
	c, _ := ctx.Value(requestCacheKey{}).(*requestCache)
	return c
}

// forget drops a memoised actor after a write that changes its tenancy.
func forget(ctx context.Context, actorID uint64) {
	if c := cacheFrom(ctx); c != nil {
		c.mu.Lock()
		delete(c.actors, actorID)
		c.mu.Unlock()
	}
}

// ResolveActor returns the actor's role, owned dealership and memberships.
// Unknown actors yield a not_found error; a missing dealership is not an
// error.
func (r *Resolver) ResolveActor(ctx context.Context, actorID uint64) (ActorContext, error) {
	cache := cacheFrom(ctx)
	if cache != nil {
		cache.mu.Lock()
		ac, ok := cache.actors[actorID]
		cache.mu.Unlock()
		if ok {
			return ac, nil
		}
	}

	actor, err := r.actors.GetActor(ctx, actorID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ActorContext{}, apperr.NotFound("actor %d not found", actorID)
		}
		return ActorContext{}, err
	}
	ac := ActorContext{ActorID: actor.ID, Role: actor.Role}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := r.dealerships.GetDealershipByOwner(gctx, actorID)
		switch {
		case err == nil:
			ac.Dealership = &d
		case errors.Is(err, repository.ErrNotFound):
		default:
			return err
		}
		return nil
	})
	g.Go(func() error {
		ms, err := r.memberships.ListMembershipsByPartner(gctx, actorID)
		ac.Memberships = ms
		return err
	})
	if err := g.Wait(); err != nil {
		return ActorContext{}, err
	}

	if cache != nil {
		cache.mu.Lock()
		cache.actors[actorID] = ac
		cache.mu.Unlock()
	}
	return ac, nil
}

// authenticate resolves the actor and maps an unknown id to unauthorized:
// a verified token whose subject was never synced is not an identity the
// core recognises.
func (r *Resolver) authenticate(ctx context.Context, actorID uint64) (ActorContext, error) {
	ac, err := r.ResolveActor(ctx, actorID)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return ActorContext{}, apperr.Unauthorized("actor %d is not registered", actorID)
	}
	return ac, err
}

// requireAdmin resolves actorID and fails with forbidden unless the
// stored role is ADMIN.
func (r *Resolver) requireAdmin(ctx context.Context, actorID uint64) (ActorContext, error) {
	ac, err := r.authenticate(ctx, actorID)
	if err != nil {
		return ActorContext{}, err
	}
	if !ac.IsAdmin() {
		return ActorContext{}, apperr.Forbidden("admin role required")
	}
	return ac, nil
}

// SyncActor upserts the actor row from verified identity-provider claims.
func (r *Resolver) SyncActor(ctx context.Context, id uint64, email string, role model.Role) (model.Actor, error) {
	role = model.Role(strings.ToUpper(string(role)))
	if id == 0 {
		return model.Actor{}, apperr.Unauthorized("missing subject")
	}
	if !role.Valid() {
		return model.Actor{}, apperr.Field("role", "must be one of [BUYER DEALER TIPPER ADMIN]")
	}
	if err := r.actors.UpsertActor(ctx, model.Actor{ID: id, Email: email, Role: role}); err != nil {
		return model.Actor{}, err
	}
	forget(ctx, id)
	return r.actors.GetActor(ctx, id)
}
