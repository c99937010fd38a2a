package service

import (
	"context"
	"testing"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/model"
)

const (
	adminID      uint64 = 1
	dealerA      uint64 = 2
	dealerB      uint64 = 3
	tipperID     uint64 = 4
	buyerID      uint64 = 5
	dealerNoShop uint64 = 6

	dealershipA uint64 = 20
	dealershipB uint64 = 30
	tipperAtB   uint64 = 40

	ingestKey = "feed-secret"
)

type fixture struct {
	store    *memStore
	events   *recordedEvents
	views    *countingInvalidator
	resolver *Resolver
	intake   *Intake
	approval *Approval
	market   *Marketplace
	ledger   *Ledger
	members  *Memberships
}

func newFixture(t *testing.T, analyzer Analyzer) *fixture {
	t.Helper()
	s := newMemStore()
	for id, role := range map[uint64]model.Role{
		adminID: model.RoleAdmin, dealerA: model.RoleDealer, dealerB: model.RoleDealer,
		tipperID: model.RoleTipper, buyerID: model.RoleBuyer, dealerNoShop: model.RoleDealer,
	} {
		s.actors[id] = model.Actor{ID: id, Role: role}
	}
	s.dealerships[dealershipA] = model.Dealership{ID: dealershipA, OwnerID: dealerA, Name: "North Motors"}
	s.dealerships[dealershipB] = model.Dealership{ID: dealershipB, OwnerID: dealerB, Name: "South Autos"}
	s.memberships[tipperAtB] = model.PartnerMembership{
		ID: tipperAtB, DealershipID: u64(dealershipB), PartnerID: tipperID, IsApproved: true, CommissionRateBps: 500,
	}

	f := &fixture{store: s, events: &recordedEvents{}, views: &countingInvalidator{}}
	f.resolver = NewResolver(s, s, s)
	f.intake = NewIntake(f.resolver, s, s, IngestCredential{APIKey: ingestKey, PartnerID: tipperID}, f.events, f.views)
	f.approval = NewApproval(f.resolver, s, s, analyzer, f.events, f.views)
	f.market = NewMarketplace(f.resolver, s, s, s)
	f.ledger = NewLedger(f.resolver, s, s, s, s, s, f.events, f.views)
	f.members = NewMemberships(f.resolver, s, s, f.views)
	return f
}

func u64(v uint64) *uint64 { return &v }

func boolp(v bool) *bool { return &v }

func payload() ListingPayload {
	return ListingPayload{Make: "Toyota", Model: "Corolla", Year: 2019, PriceCents: 1_500_000, Mileage: 42_000}
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("error kind = %q (%v), want %q", got, err, kind)
	}
}

// publicCar submits a public listing for dealer and approves it.
func (f *fixture) publicCar(t *testing.T, dealer uint64, p ListingPayload) model.CarListing {
	t.Helper()
	ctx := context.Background()
	p.IsPublic = true
	l, err := f.intake.SubmitDealerListing(ctx, dealer, p)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, err := f.approval.Decide(ctx, model.DecisionCommand{ListingID: l.ID, AdminID: adminID, Decision: model.DecisionApprove})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if res.CarListing == nil {
		t.Fatal("approval of a public listing must promote it")
	}
	return *res.CarListing
}
