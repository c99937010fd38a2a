package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/dealer-syndication/internal/analysis"
	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/queue"
	"github.com/iliyamo/dealer-syndication/internal/repository"
)

// memStore implements every store interface over maps.  Methods hold the
// mutex across their predicate and write, so each is atomic the way the
// conditional SQL statements are.
type memStore struct {
	mu          sync.Mutex
	seq         uint64
	actors      map[uint64]model.Actor
	dealerships map[uint64]model.Dealership
	memberships map[uint64]model.PartnerMembership
	pending     map[uint64]model.PendingListing
	partners    map[uint64]model.PartnerListing
	cars        map[uint64]model.CarListing
	leads       map[uint64]model.Lead
	txs         map[uint64]model.Transaction
	commissions map[uint64]model.Commission

	actorReads int
}

func newMemStore() *memStore {
	return &memStore{
		seq:         1000,
		actors:      map[uint64]model.Actor{},
		dealerships: map[uint64]model.Dealership{},
		memberships: map[uint64]model.PartnerMembership{},
		pending:     map[uint64]model.PendingListing{},
		partners:    map[uint64]model.PartnerListing{},
		cars:        map[uint64]model.CarListing{},
		leads:       map[uint64]model.Lead{},
		txs:         map[uint64]model.Transaction{},
		commissions: map[uint64]model.Commission{},
	}
}

func (s *memStore) next() uint64 {
	s.seq++
	return s.seq
}

func (s *memStore) isAdmin(id uint64) bool { return s.actors[id].Role == model.RoleAdmin }

func (s *memStore) owns(actorID uint64, dealershipID *uint64) bool {
	if dealershipID == nil {
		return false
	}
	d, ok := s.dealerships[*dealershipID]
	return ok && d.OwnerID == actorID
}

func (s *memStore) mayManage(actorID uint64, c model.CarListing) bool {
	return s.owns(actorID, c.DealershipID) || s.isAdmin(actorID)
}

func matches(q repository.ListingQuery, v model.Vehicle) bool {
	if q.Make != "" && !strings.EqualFold(q.Make, v.Make) {
		return false
	}
	if q.Model != "" && !strings.EqualFold(q.Model, v.Model) {
		return false
	}
	if q.MinPriceCents != nil && v.PriceCents < *q.MinPriceCents {
		return false
	}
	if q.MaxPriceCents != nil && v.PriceCents > *q.MaxPriceCents {
		return false
	}
	return true
}

func sortedIDs[T any](m map[uint64]T) []uint64 {
	ids := make([]uint64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// actors

func (s *memStore) GetActor(_ context.Context, id uint64) (model.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actorReads++
	a, ok := s.actors[id]
	if !ok {
		return model.Actor{}, repository.ErrNotFound
	}
	return a, nil
}

func (s *memStore) UpsertActor(_ context.Context, a model.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.actors[a.ID]; ok {
		a.CreatedAt = cur.CreatedAt
	} else {
		a.CreatedAt = time.Now()
	}
	s.actors[a.ID] = a
	return nil
}

// dealerships

func (s *memStore) CreateDealership(_ context.Context, d *model.Dealership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.dealerships {
		if x.OwnerID == d.OwnerID {
			return repository.ErrDuplicate
		}
	}
	d.ID, d.CreatedAt = s.next(), time.Now()
	s.dealerships[d.ID] = *d
	return nil
}

func (s *memStore) GetDealership(_ context.Context, id uint64) (model.Dealership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dealerships[id]
	if !ok {
		return model.Dealership{}, repository.ErrNotFound
	}
	return d, nil
}

func (s *memStore) GetDealershipByOwner(_ context.Context, ownerID uint64) (model.Dealership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dealerships {
		if d.OwnerID == ownerID {
			return d, nil
		}
	}
	return model.Dealership{}, repository.ErrNotFound
}

// memberships

func (s *memStore) CreateMembership(_ context.Context, m *model.PartnerMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, x := range s.memberships {
		if x.PartnerID == m.PartnerID && model.SameScope(x.DealershipID, m.DealershipID) {
			return repository.ErrDuplicate
		}
	}
	m.ID, m.IsApproved, m.CreatedAt = s.next(), false, time.Now()
	s.memberships[m.ID] = *m
	return nil
}

func (s *memStore) GetMembership(_ context.Context, id uint64) (model.PartnerMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[id]
	if !ok {
		return model.PartnerMembership{}, repository.ErrNotFound
	}
	return m, nil
}

func (s *memStore) listMemberships(keep func(model.PartnerMembership) bool) []model.PartnerMembership {
	var out []model.PartnerMembership
	for _, id := range sortedIDs(s.memberships) {
		if m := s.memberships[id]; keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func (s *memStore) ListMembershipsByPartner(_ context.Context, partnerID uint64) ([]model.PartnerMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listMemberships(func(m model.PartnerMembership) bool { return m.PartnerID == partnerID }), nil
}

func (s *memStore) ListMembershipsByDealership(_ context.Context, dealershipID uint64) ([]model.PartnerMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listMemberships(func(m model.PartnerMembership) bool {
		return m.DealershipID != nil && *m.DealershipID == dealershipID
	}), nil
}

func (s *memStore) SetMembershipApproval(_ context.Context, id, actorID uint64, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[id]
	if !ok || !(s.owns(actorID, m.DealershipID) || (m.DealershipID == nil && s.isAdmin(actorID))) {
		return repository.ErrForbidden
	}
	m.IsApproved = approved
	s.memberships[id] = m
	return nil
}

func (s *memStore) SetCommissionRate(_ context.Context, id, actorID uint64, bps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[id]
	if !ok || !(s.owns(actorID, m.DealershipID) || s.isAdmin(actorID)) {
		return repository.ErrForbidden
	}
	m.CommissionRateBps = bps
	s.memberships[id] = m
	return nil
}

// pending listings

func (s *memStore) insertPending(l *model.PendingListing, dealershipID *uint64, ch model.Channel) {
	l.ID, l.DealershipID, l.Channel = s.next(), dealershipID, ch
	l.ApprovalStatus = model.ApprovalPending
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	s.pending[l.ID] = *l
}

func (s *memStore) CreatePendingForDealer(_ context.Context, ownerID uint64, l *model.PendingListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dealerships {
		if d.OwnerID == ownerID {
			id := d.ID
			s.insertPending(l, &id, model.ChannelDealer)
			return nil
		}
	}
	return repository.ErrForbidden
}

func (s *memStore) CreatePendingForPartner(_ context.Context, membershipID, partnerID uint64, l *model.PendingListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[membershipID]
	if !ok || m.PartnerID != partnerID || !m.IsApproved {
		return repository.ErrForbidden
	}
	s.insertPending(l, m.DealershipID, model.ChannelPartner)
	return nil
}

func (s *memStore) GetPendingListing(_ context.Context, id uint64) (model.PendingListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.pending[id]
	if !ok {
		return model.PendingListing{}, repository.ErrNotFound
	}
	return l, nil
}

func (s *memStore) listPending(q repository.ListingQuery, keep func(model.PendingListing) bool) []model.PendingListing {
	var out []model.PendingListing
	for _, id := range sortedIDs(s.pending) {
		if l := s.pending[id]; keep(l) && matches(q, l.Vehicle) {
			out = append(out, l)
		}
	}
	return out
}

func pendingKey(l model.PendingListing) (int64, time.Time, uint64) {
	return l.Vehicle.PriceCents, l.CreatedAt, l.ID
}

func partnerKey(p model.PartnerListing) (int64, time.Time, uint64) {
	return p.Vehicle.PriceCents, p.CreatedAt, p.ID
}

func carKey(c model.CarListing) (int64, time.Time, uint64) {
	return c.Vehicle.PriceCents, c.CreatedAt, c.ID
}

// window orders rows the way ListingQuery renders ORDER BY and keeps the
// first q.Limit of them.
func window[T any](q repository.ListingQuery, rows []T, key func(T) (int64, time.Time, uint64)) []T {
	sort.SliceStable(rows, func(i, j int) bool {
		pi, ci, ii := key(rows[i])
		pj, cj, ij := key(rows[j])
		switch q.Sort {
		case repository.SortPriceAsc:
			if pi != pj {
				return pi < pj
			}
		case repository.SortPriceDesc:
			if pi != pj {
				return pi > pj
			}
		case repository.SortNewest:
			if !ci.Equal(cj) {
				return ci.After(cj)
			}
		default:
			return ii > ij
		}
		return ii < ij
	})
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = 200
	case limit > repository.MaxCandidates:
		limit = repository.MaxCandidates
	}
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

func excluded(q repository.ListingQuery, id *uint64) bool {
	if id == nil {
		return false
	}
	for _, x := range q.ExcludeDealerships {
		if x == *id {
			return true
		}
	}
	return false
}

func (s *memStore) ListPendingByStatus(_ context.Context, status model.ApprovalStatus, limit, offset int) ([]model.PendingListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.listPending(repository.ListingQuery{}, func(l model.PendingListing) bool { return l.ApprovalStatus == status })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *memStore) ListPendingByDealership(_ context.Context, dealershipID uint64, q repository.ListingQuery) ([]model.PendingListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return window(q, s.listPending(q, func(l model.PendingListing) bool {
		return l.DealershipID != nil && *l.DealershipID == dealershipID && !excluded(q, l.DealershipID)
	}), pendingKey), nil
}

func (s *memStore) ListNetworkCandidates(_ context.Context, q repository.ListingQuery) ([]model.PendingListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return window(q, s.listPending(q, func(l model.PendingListing) bool {
		return l.ApprovalStatus == model.ApprovalApproved && l.IsSharedWithNetwork && !excluded(q, l.DealershipID)
	}), pendingKey), nil
}

func (s *memStore) UpdatePendingByCreator(_ context.Context, id, creatorID uint64, v model.Vehicle, f model.VisibilityFlags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.pending[id]
	if !ok || l.CreatedBy != creatorID || l.ApprovalStatus != model.ApprovalPending {
		return repository.ErrConflict
	}
	l.Vehicle, l.VisibilityFlags = v, f
	s.pending[id] = l
	return nil
}

// Decide releases the lock while the hook runs, then re-checks the
// pending status before writing, like the CAS inside a transaction.
func (s *memStore) Decide(ctx context.Context, cmd model.DecisionCommand, before repository.BeforeCommit) (model.PendingListing, *model.CarListing, error) {
	s.mu.Lock()
	l, ok := s.pending[cmd.ListingID]
	if !ok || l.ApprovalStatus != model.ApprovalPending || !s.isAdmin(cmd.AdminID) {
		s.mu.Unlock()
		return model.PendingListing{}, nil, repository.ErrConflict
	}
	status, _ := cmd.Decision.Status()
	l = cmd.Overrides.Apply(l)
	now := time.Now()
	admin := cmd.AdminID
	l.ApprovalStatus, l.DecidedBy, l.DecidedAt, l.DecisionNote = status, &admin, &now, cmd.Note

	var car *model.CarListing
	if status == model.ApprovalApproved && l.IsPublic {
		c := model.PromoteFromPending(l)
		c.ID, c.CreatedAt = s.next(), now
		car = &c
		l.CarListingID = &c.ID
	}
	s.mu.Unlock()

	if before != nil {
		if err := before(ctx, l, car); err != nil {
			return model.PendingListing{}, nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[l.ID].ApprovalStatus != model.ApprovalPending {
		return model.PendingListing{}, nil, repository.ErrConflict
	}
	s.pending[l.ID] = l
	if car != nil {
		s.cars[car.ID] = *car
	}
	return l, car, nil
}

func (s *memStore) AdminUpdate(_ context.Context, id, adminID uint64, v model.Vehicle, specialOffer, shared bool) (model.PendingListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.pending[id]
	if !ok || !s.isAdmin(adminID) {
		return model.PendingListing{}, repository.ErrForbidden
	}
	if l.ApprovalStatus == model.ApprovalRejected {
		return model.PendingListing{}, repository.ErrConflict
	}
	l.Vehicle, l.IsSpecialOffer, l.IsSharedWithNetwork = v, specialOffer, shared
	s.pending[id] = l
	for cid, c := range s.cars {
		if c.SourceKind == model.SourcePending && c.SourceID == id {
			c.Vehicle, c.IsSpecialOffer = v, specialOffer
			s.cars[cid] = c
		}
	}
	return l, nil
}

// partner listings

func (s *memStore) InsertPartnerListing(_ context.Context, p *model.PartnerListing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID, p.CreatedAt = s.next(), time.Now()
	s.partners[p.ID] = *p
	return nil
}

func (s *memStore) GetPartnerListing(_ context.Context, id uint64) (model.PartnerListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[id]
	if !ok {
		return model.PartnerListing{}, repository.ErrNotFound
	}
	return p, nil
}

func (s *memStore) listPartners(q repository.ListingQuery, keep func(model.PartnerListing) bool) []model.PartnerListing {
	var out []model.PartnerListing
	for _, id := range sortedIDs(s.partners) {
		if p := s.partners[id]; keep(p) && matches(q, p.Vehicle) {
			out = append(out, p)
		}
	}
	return out
}

func (s *memStore) ListPartnerListingsByPartner(_ context.Context, partnerID uint64, q repository.ListingQuery) ([]model.PartnerListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return window(q, s.listPartners(q, func(p model.PartnerListing) bool { return p.PartnerID == partnerID }), partnerKey), nil
}

func (s *memStore) ListPublicPartnerListings(_ context.Context, q repository.ListingQuery) ([]model.PartnerListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return window(q, s.listPartners(q, func(p model.PartnerListing) bool { return p.IsPublic && !p.IsAddedToMainListings }), partnerKey), nil
}

func (s *memStore) UpdatePartnerListingByOwner(_ context.Context, id, partnerID uint64, isPublic *bool, status *model.AvailabilityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[id]
	if !ok || p.PartnerID != partnerID {
		return repository.ErrForbidden
	}
	if isPublic != nil {
		p.IsPublic = *isPublic
	}
	if status != nil {
		p.Status = *status
	}
	s.partners[id] = p
	return nil
}

func (s *memStore) PromotePartnerListing(ctx context.Context, id, adminID uint64, before repository.BeforeCommit) (model.PartnerListing, model.CarListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.partners[id]
	if !ok || p.IsAddedToMainListings || !s.isAdmin(adminID) {
		return model.PartnerListing{}, model.CarListing{}, repository.ErrConflict
	}
	c := model.PromoteFromPartner(p)
	c.ID, c.CreatedAt = s.next(), time.Now()
	p.IsAddedToMainListings, p.CarListingID = true, &c.ID
	if before != nil {
		if err := before(ctx, model.PendingListing{}, &c); err != nil {
			return model.PartnerListing{}, model.CarListing{}, err
		}
	}
	s.partners[id] = p
	s.cars[c.ID] = c
	return p, c, nil
}

// car listings

func (s *memStore) GetCarListing(_ context.Context, id uint64) (model.CarListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cars[id]
	if !ok {
		return model.CarListing{}, repository.ErrNotFound
	}
	return c, nil
}

func (s *memStore) ListAvailableCarListings(_ context.Context, q repository.ListingQuery) ([]model.CarListing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CarListing
	for _, id := range sortedIDs(s.cars) {
		if c := s.cars[id]; c.Status == model.StatusAvailable && matches(q, c.Vehicle) {
			out = append(out, c)
		}
	}
	return window(q, out, carKey), nil
}

// leads

func (s *memStore) InsertLead(_ context.Context, l *model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, carOK := s.cars[l.ListingID]
	if l.SourceType == model.SourceTipper {
		if l.SourceID == nil || !carOK || !s.memberships[*l.SourceID].IsApproved {
			return repository.ErrSourceRejected
		}
	} else if !carOK {
		return repository.ErrNotFound
	}
	l.ID, l.Status, l.CreatedAt = s.next(), model.LeadNew, time.Now()
	s.leads[l.ID] = *l
	return nil
}

func (s *memStore) GetLead(_ context.Context, id uint64) (model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return model.Lead{}, repository.ErrNotFound
	}
	return l, nil
}

func (s *memStore) leadsWhere(keep func(model.Lead) bool) []model.Lead {
	var out []model.Lead
	for _, id := range sortedIDs(s.leads) {
		if l := s.leads[id]; keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func (s *memStore) ListLeadsByListing(_ context.Context, listingID uint64) ([]model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leadsWhere(func(l model.Lead) bool { return l.ListingID == listingID }), nil
}

func (s *memStore) ListLeadsForOwner(_ context.Context, ownerID uint64) ([]model.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leadsWhere(func(l model.Lead) bool { return s.owns(ownerID, s.cars[l.ListingID].DealershipID) }), nil
}

func (s *memStore) AdvanceLeadStatus(_ context.Context, id, actorID uint64, from, to model.LeadStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok || l.Status != from || !s.mayManage(actorID, s.cars[l.ListingID]) {
		return repository.ErrConflict
	}
	l.Status = to
	s.leads[id] = l
	return nil
}

// transactions

func (s *memStore) OpenTransaction(_ context.Context, actorID uint64, t *model.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cars[t.ListingID]
	if !ok || c.ActiveTransactionID != nil || c.Status != model.StatusAvailable || !s.mayManage(actorID, c) {
		return repository.ErrConflict
	}
	t.ID, t.Status, t.CreatedAt = s.next(), model.TxPending, time.Now()
	s.txs[t.ID] = *t
	id := t.ID
	c.ActiveTransactionID = &id
	s.cars[c.ID] = c
	return nil
}

func (s *memStore) GetTransaction(_ context.Context, id uint64) (model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return model.Transaction{}, repository.ErrNotFound
	}
	return t, nil
}

func (s *memStore) ConfirmTransaction(_ context.Context, id, actorID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok || t.Status != model.TxPending || !s.mayManage(actorID, s.cars[t.ListingID]) {
		return repository.ErrConflict
	}
	t.Status = model.TxConfirmed
	s.txs[id] = t
	return nil
}

func (s *memStore) CancelTransaction(_ context.Context, id, actorID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok || !t.Status.Active() || !s.mayManage(actorID, s.cars[t.ListingID]) {
		return repository.ErrConflict
	}
	t.Status = model.TxCancelled
	s.txs[id] = t
	c := s.cars[t.ListingID]
	c.ActiveTransactionID = nil
	s.cars[c.ID] = c
	return nil
}

func (s *memStore) CompleteTransaction(_ context.Context, id, actorID uint64) (model.Transaction, *model.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok || !t.Status.Active() || !s.mayManage(actorID, s.cars[t.ListingID]) {
		return model.Transaction{}, nil, repository.ErrConflict
	}
	c := s.cars[t.ListingID]
	if c.ActiveTransactionID == nil || *c.ActiveTransactionID != t.ID {
		return model.Transaction{}, nil, repository.ErrConflict
	}
	now := time.Now()
	t.Status, t.CompletedAt = model.TxCompleted, &now
	c.Status, c.ActiveTransactionID = model.StatusSold, nil

	var commission *model.Commission
	leads := s.leadsWhere(func(l model.Lead) bool { return l.ListingID == t.ListingID })
	if mid := model.AttributeSale(t, leads); mid != nil {
		for _, x := range s.commissions {
			if x.TransactionID == t.ID {
				return model.Transaction{}, nil, repository.ErrConflict
			}
		}
		m := s.memberships[*mid]
		cm := model.Commission{
			ID: s.next(), TransactionID: t.ID, MembershipID: m.ID, PartnerID: m.PartnerID,
			RateBps: m.CommissionRateBps, AmountCents: model.CommissionAmount(t.AgreedPriceCents, m.CommissionRateBps),
			Status: model.CommissionPending, CreatedAt: now,
		}
		s.commissions[cm.ID] = cm
		commission = &cm
	}
	s.txs[id] = t
	s.cars[c.ID] = c
	return t, commission, nil
}

// commissions

func (s *memStore) GetCommission(_ context.Context, id uint64) (model.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commissions[id]
	if !ok {
		return model.Commission{}, repository.ErrNotFound
	}
	return c, nil
}

func (s *memStore) ListCommissions(_ context.Context, partnerID *uint64) ([]model.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Commission
	for _, id := range sortedIDs(s.commissions) {
		if c := s.commissions[id]; partnerID == nil || c.PartnerID == *partnerID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) MarkCommissionPaid(_ context.Context, id, adminID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commissions[id]
	if !ok || c.Status != model.CommissionPending || !s.isAdmin(adminID) {
		return repository.ErrConflict
	}
	now := time.Now()
	c.Status, c.PaidAt, c.PaidBy = model.CommissionPaid, &now, &adminID
	s.commissions[id] = c
	return nil
}

// collaborators

type recordedEvents struct {
	mu     sync.Mutex
	events []queue.Event
}

func (r *recordedEvents) Publish(_ context.Context, ev queue.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type countingInvalidator struct {
	mu sync.Mutex
	n  int
}

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return nil
}

func (c *countingInvalidator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type analyzerFunc func(ctx context.Context, req analysis.Request) (analysis.Result, error)

func (f analyzerFunc) Analyze(ctx context.Context, req analysis.Request) (analysis.Result, error) {
	return f(ctx, req)
}
