package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

// PartnerListingRepo owns partner_listings, the catalogue fed by
// automated ingestion.
type PartnerListingRepo struct{ DB *sql.DB }

func NewPartnerListingRepo(db *sql.DB) *PartnerListingRepo { return &PartnerListingRepo{DB: db} }

const partnerCols = "pl.id, pl.partner_id, " +
	"pl.vin, pl.make, pl.model, pl.year, pl.price_cents, pl.mileage, pl.vehicle_condition, pl.media_urls, pl.features, " +
	"pl.status, pl.is_public, pl.is_added_to_main_listings, pl.car_listing_id, pl.created_at, pl.updated_at"

func scanPartner(s rowScanner) (model.PartnerListing, error) {
	var (
		p   model.PartnerListing
		vs  vehicleScan
		car sql.NullInt64
	)
	dest := []any{&p.ID, &p.PartnerID}
	dest = append(dest, vs.dest(&p.Vehicle)...)
	dest = append(dest, &p.Status, &p.IsPublic, &p.IsAddedToMainListings, &car, &p.CreatedAt, &p.UpdatedAt)
	if err := s.Scan(dest...); err != nil {
		return model.PartnerListing{}, err
	}
	if err := vs.decode(&p.Vehicle); err != nil {
		return model.PartnerListing{}, err
	}
	p.CarListingID = idPtr(car)
	return p, nil
}

func getPartner(ctx context.Context, q querier, id uint64) (model.PartnerListing, error) {
	p, err := scanPartner(q.QueryRowContext(ctx, "SELECT "+partnerCols+" FROM partner_listings pl WHERE pl.id=?", id))
	if err != nil {
		return model.PartnerListing{}, notFound(err, "get partner listing")
	}
	return p, nil
}

// InsertPartnerListing stores an ingested listing.
func (r *PartnerListingRepo) InsertPartnerListing(ctx context.Context, p *model.PartnerListing) error {
	vargs, err := vehicleArgs(p.Vehicle)
	if err != nil {
		return err
	}
	args := append([]any{p.PartnerID}, vargs...)
	args = append(args, string(p.Status), p.IsPublic)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO partner_listings (partner_id, "+vehicleColumns+", status, is_public) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)",
		args...)
	if err != nil {
		return errors.Wrap(err, "insert partner listing")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "partner listing id")
	}
	created, err := getPartner(ctx, r.DB, uint64(id))
	if err != nil {
		return err
	}
	*p = created
	return nil
}

// GetPartnerListing fetches a partner listing by id.
func (r *PartnerListingRepo) GetPartnerListing(ctx context.Context, id uint64) (model.PartnerListing, error) {
	return getPartner(ctx, r.DB, id)
}

// ListPartnerListingsByPartner returns a partner's own catalogue.
func (r *PartnerListingRepo) ListPartnerListingsByPartner(ctx context.Context, partnerID uint64, q ListingQuery) ([]model.PartnerListing, error) {
	clause, args := q.clause("pl", []string{"pl.partner_id = ?"}, []any{partnerID})
	return r.list(ctx, "SELECT "+partnerCols+" FROM partner_listings pl"+clause, args)
}

// ListPublicPartnerListings returns public, not-yet-promoted partner
// listings.
func (r *PartnerListingRepo) ListPublicPartnerListings(ctx context.Context, q ListingQuery) ([]model.PartnerListing, error) {
	clause, args := q.clause("pl", []string{"pl.is_public = 1", "pl.is_added_to_main_listings = 0"}, nil)
	return r.list(ctx, "SELECT "+partnerCols+" FROM partner_listings pl"+clause, args)
}

func (r *PartnerListingRepo) list(ctx context.Context, q string, args []any) ([]model.PartnerListing, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list partner listings")
	}
	defer rows.Close()
	var out []model.PartnerListing
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan partner listing")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "iterate partner listings")
}

// UpdatePartnerListingByOwner sets is_public and/or status on a row owned
// by partnerID.  Nil fields are left unchanged.  ErrForbidden means no row
// matched.
func (r *PartnerListingRepo) UpdatePartnerListingByOwner(ctx context.Context, id, partnerID uint64, isPublic *bool, status *model.AvailabilityStatus) error {
	var st any
	if status != nil {
		st = string(*status)
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE partner_listings SET is_public = COALESCE(?, is_public), status = COALESCE(?, status) WHERE id = ? AND partner_id = ?",
		opt(isPublic), st, id, partnerID)
	if err != nil {
		return errors.Wrap(err, "update partner listing")
	}
	return affected(res, ErrForbidden)
}

// PromotePartnerListing flips is_added_to_main_listings 0→1 and inserts the
// car listing in one transaction.  The flag never flips back, so a second
// call yields ErrConflict.
func (r *PartnerListingRepo) PromotePartnerListing(ctx context.Context, id, adminID uint64, before BeforeCommit) (model.PartnerListing, model.CarListing, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.PartnerListing{}, model.CarListing{}, errors.Wrap(err, "begin promote")
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx,
		"UPDATE partner_listings SET is_added_to_main_listings = 1 WHERE id = ? AND is_added_to_main_listings = 0 AND "+isAdminPredicate,
		id, adminID)
	if err != nil {
		return model.PartnerListing{}, model.CarListing{}, errors.Wrap(err, "promote partner listing")
	}
	if err := affected(res, ErrConflict); err != nil {
		return model.PartnerListing{}, model.CarListing{}, err
	}
	p, err := getPartner(ctx, tx, id)
	if err != nil {
		return model.PartnerListing{}, model.CarListing{}, err
	}
	car := model.PromoteFromPartner(p)
	if err := insertCarListing(ctx, tx, &car); err != nil {
		return model.PartnerListing{}, model.CarListing{}, err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE partner_listings SET car_listing_id=? WHERE id=?", car.ID, id); err != nil {
		return model.PartnerListing{}, model.CarListing{}, errors.Wrap(err, "link car listing")
	}
	p.CarListingID = &car.ID
	if before != nil {
		if err := before(ctx, model.PendingListing{}, &car); err != nil {
			return model.PartnerListing{}, model.CarListing{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.PartnerListing{}, model.CarListing{}, errors.Wrap(err, "commit promote")
	}
	return p, car, nil
}
