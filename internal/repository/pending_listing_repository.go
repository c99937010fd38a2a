package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

// PendingListingRepo owns pending_listings and the approval transaction
// that may promote a row into car_listings.
type PendingListingRepo struct{ DB *sql.DB }

func NewPendingListingRepo(db *sql.DB) *PendingListingRepo { return &PendingListingRepo{DB: db} }

// BeforeCommit runs inside a promotion transaction after every write has
// succeeded.  A non-nil error rolls the whole decision back.  car is nil
// when nothing was promoted.
type BeforeCommit func(ctx context.Context, listing model.PendingListing, car *model.CarListing) error

const pendingCols = "p.id, p.dealership_id, p.created_by, p.channel, " +
	"p.vin, p.make, p.model, p.year, p.price_cents, p.mileage, p.vehicle_condition, p.media_urls, p.features, " +
	"p.approval_status, p.is_special_offer, p.is_shared_with_network, p.is_public, " +
	"p.decided_by, p.decided_at, p.decision_note, p.car_listing_id, p.created_at, p.updated_at"

func scanPending(s rowScanner) (model.PendingListing, error) {
	var (
		l                      model.PendingListing
		vs                     vehicleScan
		dealer, decidedBy, car sql.NullInt64
		decidedAt              sql.NullTime
		note                   sql.NullString
	)
	dest := []any{&l.ID, &dealer, &l.CreatedBy, &l.Channel}
	dest = append(dest, vs.dest(&l.Vehicle)...)
	dest = append(dest, &l.ApprovalStatus, &l.IsSpecialOffer, &l.IsSharedWithNetwork, &l.IsPublic,
		&decidedBy, &decidedAt, &note, &car, &l.CreatedAt, &l.UpdatedAt)
	if err := s.Scan(dest...); err != nil {
		return model.PendingListing{}, err
	}
	if err := vs.decode(&l.Vehicle); err != nil {
		return model.PendingListing{}, err
	}
	l.DealershipID = idPtr(dealer)
	l.DecidedBy = idPtr(decidedBy)
	l.DecidedAt = timePtr(decidedAt)
	l.DecisionNote = strPtr(note)
	l.CarListingID = idPtr(car)
	return l, nil
}

func getPending(ctx context.Context, q querier, id uint64) (model.PendingListing, error) {
	l, err := scanPending(q.QueryRowContext(ctx, "SELECT "+pendingCols+" FROM pending_listings p WHERE p.id=?", id))
	if err != nil {
		return model.PendingListing{}, notFound(err, "get pending listing")
	}
	return l, nil
}

// insertSelect writes l with the dealership taken from the tenancy row
// selected by from.  The tenancy predicate and the insert are one
// statement, so a missing or unapproved scope inserts nothing.
func (r *PendingListingRepo) insertSelect(ctx context.Context, l *model.PendingListing, scopeCol, from string, fromArgs ...any) error {
	vargs, err := vehicleArgs(l.Vehicle)
	if err != nil {
		return err
	}
	args := append([]any{l.CreatedBy, string(l.Channel)}, vargs...)
	args = append(args, l.IsSpecialOffer, l.IsSharedWithNetwork, l.IsPublic)
	args = append(args, fromArgs...)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO pending_listings (dealership_id, created_by, channel, "+vehicleColumns+", is_special_offer, is_shared_with_network, is_public) "+
			"SELECT "+scopeCol+", ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ? "+from,
		args...)
	if err != nil {
		return errors.Wrap(err, "insert pending listing")
	}
	if err := affected(res, ErrForbidden); err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "pending listing id")
	}
	created, err := getPending(ctx, r.DB, uint64(id))
	if err != nil {
		return err
	}
	*l = created
	return nil
}

// CreatePendingForDealer inserts l under the dealership owned by ownerID.
// ErrForbidden means the owner has no dealership.
func (r *PendingListingRepo) CreatePendingForDealer(ctx context.Context, ownerID uint64, l *model.PendingListing) error {
	l.Channel = model.ChannelDealer
	return r.insertSelect(ctx, l, "d.id", "FROM dealerships d WHERE d.owner_id = ?", ownerID)
}

// CreatePendingForPartner inserts l under the scope of membershipID, only
// while that membership belongs to partnerID and is approved.
func (r *PendingListingRepo) CreatePendingForPartner(ctx context.Context, membershipID, partnerID uint64, l *model.PendingListing) error {
	l.Channel = model.ChannelPartner
	return r.insertSelect(ctx, l, "pm.dealership_id",
		"FROM partner_memberships pm WHERE pm.id = ? AND pm.partner_id = ? AND pm.is_approved = 1",
		membershipID, partnerID)
}

// GetPendingListing fetches a listing by id in any status.
func (r *PendingListingRepo) GetPendingListing(ctx context.Context, id uint64) (model.PendingListing, error) {
	return getPending(ctx, r.DB, id)
}

// ListPendingByStatus pages through listings in one approval status,
// oldest first, for the admin review queue.
func (r *PendingListingRepo) ListPendingByStatus(ctx context.Context, status model.ApprovalStatus, limit, offset int) ([]model.PendingListing, error) {
	return r.list(ctx,
		"SELECT "+pendingCols+" FROM pending_listings p WHERE p.approval_status = ? ORDER BY p.id LIMIT ? OFFSET ?",
		[]any{string(status), limit, offset})
}

// ListPendingByDealership returns a dealership's listings in every status
// for the owner view.
func (r *PendingListingRepo) ListPendingByDealership(ctx context.Context, dealershipID uint64, q ListingQuery) ([]model.PendingListing, error) {
	clause, args := q.clause("p", []string{"p.dealership_id = ?"}, []any{dealershipID})
	return r.list(ctx, "SELECT "+pendingCols+" FROM pending_listings p"+clause, args)
}

// ListNetworkCandidates returns approved listings shared with the partner
// network.  Per-viewer exclusion happens in the caller.
func (r *PendingListingRepo) ListNetworkCandidates(ctx context.Context, q ListingQuery) ([]model.PendingListing, error) {
	clause, args := q.clause("p", []string{"p.approval_status = 'approved'", "p.is_shared_with_network = 1"}, nil)
	return r.list(ctx, "SELECT "+pendingCols+" FROM pending_listings p"+clause, args)
}

func (r *PendingListingRepo) list(ctx context.Context, q string, args []any) ([]model.PendingListing, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list pending listings")
	}
	defer rows.Close()
	var out []model.PendingListing
	for rows.Next() {
		l, err := scanPending(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan pending listing")
		}
		out = append(out, l)
	}
	return out, errors.Wrap(rows.Err(), "iterate pending listings")
}

// UpdatePendingByCreator replaces the vehicle and flags of a listing while
// it is still pending and only for its creator.  ErrConflict means the
// predicate did not hold.
func (r *PendingListingRepo) UpdatePendingByCreator(ctx context.Context, id, creatorID uint64, v model.Vehicle, f model.VisibilityFlags) error {
	vargs, err := vehicleArgs(v)
	if err != nil {
		return err
	}
	args := append(vargs, f.IsSpecialOffer, f.IsSharedWithNetwork, f.IsPublic, id, creatorID)
	res, err := r.DB.ExecContext(ctx, `
UPDATE pending_listings SET
  vin=?, make=?, model=?, year=?, price_cents=?, mileage=?, vehicle_condition=?, media_urls=?, features=?,
  is_special_offer=?, is_shared_with_network=?, is_public=?
WHERE id=? AND created_by=? AND approval_status='pending'`, args...)
	if err != nil {
		return errors.Wrap(err, "update pending listing")
	}
	return affected(res, ErrConflict)
}

func opt[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// Decide applies an approval transition as a compare-and-set on
// approval_status = 'pending'.  The admin predicate is part of the same
// UPDATE.  When the result is approved and public, a car listing is
// inserted in the same transaction.  before runs last; if it fails the
// listing stays pending.
func (r *PendingListingRepo) Decide(ctx context.Context, cmd model.DecisionCommand, before BeforeCommit) (model.PendingListing, *model.CarListing, error) {
	status, ok := cmd.Decision.Status()
	if !ok {
		return model.PendingListing{}, nil, errors.Errorf("unknown decision %q", cmd.Decision)
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.PendingListing{}, nil, errors.Wrap(err, "begin decide")
	}
	defer rollback(tx)

	o := cmd.Overrides
	res, err := tx.ExecContext(ctx, `
UPDATE pending_listings SET
  approval_status = ?,
  price_cents = COALESCE(?, price_cents),
  mileage = COALESCE(?, mileage),
  vehicle_condition = COALESCE(?, vehicle_condition),
  is_public = COALESCE(?, is_public),
  is_shared_with_network = COALESCE(?, is_shared_with_network),
  is_special_offer = COALESCE(?, is_special_offer),
  decided_by = ?, decided_at = UTC_TIMESTAMP(), decision_note = ?
WHERE id = ? AND approval_status = 'pending' AND `+isAdminPredicate,
		string(status), opt(o.PriceCents), opt(o.Mileage), opt(o.Condition),
		opt(o.IsPublic), opt(o.IsSharedWithNetwork), opt(o.IsSpecialOffer),
		cmd.AdminID, opt(cmd.Note), cmd.ListingID, cmd.AdminID)
	if err != nil {
		return model.PendingListing{}, nil, errors.Wrap(err, "decide pending listing")
	}
	if err := affected(res, ErrConflict); err != nil {
		return model.PendingListing{}, nil, err
	}

	l, err := getPending(ctx, tx, cmd.ListingID)
	if err != nil {
		return model.PendingListing{}, nil, err
	}

	var car *model.CarListing
	if l.ApprovalStatus == model.ApprovalApproved && l.IsPublic {
		c := model.PromoteFromPending(l)
		if err := insertCarListing(ctx, tx, &c); err != nil {
			return model.PendingListing{}, nil, err
		}
		if _, err := tx.ExecContext(ctx, "UPDATE pending_listings SET car_listing_id=? WHERE id=?", c.ID, l.ID); err != nil {
			return model.PendingListing{}, nil, errors.Wrap(err, "link car listing")
		}
		l.CarListingID = &c.ID
		car = &c
	}

	if before != nil {
		if err := before(ctx, l, car); err != nil {
			return model.PendingListing{}, nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.PendingListing{}, nil, errors.Wrap(err, "commit decide")
	}
	return l, car, nil
}

// AdminUpdate edits a listing's vehicle attributes and non-gating flags
// and mirrors them onto the promoted car listing, if any.  ErrForbidden
// means the actor is not an admin (or the row vanished).
func (r *PendingListingRepo) AdminUpdate(ctx context.Context, id, adminID uint64, v model.Vehicle, specialOffer, shared bool) (model.PendingListing, error) {
	vargs, err := vehicleArgs(v)
	if err != nil {
		return model.PendingListing{}, err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.PendingListing{}, errors.Wrap(err, "begin admin update")
	}
	defer rollback(tx)

	args := append(append([]any{}, vargs...), specialOffer, shared, id, adminID)
	res, err := tx.ExecContext(ctx, `
UPDATE pending_listings SET
  vin=?, make=?, model=?, year=?, price_cents=?, mileage=?, vehicle_condition=?, media_urls=?, features=?,
  is_special_offer=?, is_shared_with_network=?
WHERE id=? AND approval_status <> 'rejected' AND `+isAdminPredicate, args...)
	if err != nil {
		return model.PendingListing{}, errors.Wrap(err, "admin update pending listing")
	}
	if err := affected(res, ErrConflict); err != nil {
		return model.PendingListing{}, err
	}

	args = append(append([]any{}, vargs...), specialOffer, id)
	if _, err := tx.ExecContext(ctx, `
UPDATE car_listings SET
  vin=?, make=?, model=?, year=?, price_cents=?, mileage=?, vehicle_condition=?, media_urls=?, features=?,
  is_special_offer=?
WHERE source_kind='pending' AND source_id=?`, args...); err != nil {
		return model.PendingListing{}, errors.Wrap(err, "mirror car listing")
	}

	l, err := getPending(ctx, tx, id)
	if err != nil {
		return model.PendingListing{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.PendingListing{}, errors.Wrap(err, "commit admin update")
	}
	return l, nil
}
