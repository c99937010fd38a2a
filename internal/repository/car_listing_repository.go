package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

// CarListingRepo reads the promoted marketplace listings.  Rows are only
// ever inserted by the approval and promotion transactions.
type CarListingRepo struct{ DB *sql.DB }

func NewCarListingRepo(db *sql.DB) *CarListingRepo { return &CarListingRepo{DB: db} }

const carCols = "c.id, c.dealership_id, c.source_kind, c.source_id, " +
	"c.vin, c.make, c.model, c.year, c.price_cents, c.mileage, c.vehicle_condition, c.media_urls, c.features, " +
	"c.is_special_offer, c.status, c.active_transaction_id, c.created_at"

func scanCar(s rowScanner) (model.CarListing, error) {
	var (
		c              model.CarListing
		vs             vehicleScan
		dealer, active sql.NullInt64
	)
	dest := []any{&c.ID, &dealer, &c.SourceKind, &c.SourceID}
	dest = append(dest, vs.dest(&c.Vehicle)...)
	dest = append(dest, &c.IsSpecialOffer, &c.Status, &active, &c.CreatedAt)
	if err := s.Scan(dest...); err != nil {
		return model.CarListing{}, err
	}
	if err := vs.decode(&c.Vehicle); err != nil {
		return model.CarListing{}, err
	}
	c.DealershipID = idPtr(dealer)
	c.ActiveTransactionID = idPtr(active)
	return c, nil
}

// insertCarListing writes c inside the caller's transaction and reads the
// row back to pick up defaults.
func insertCarListing(ctx context.Context, q querier, c *model.CarListing) error {
	vargs, err := vehicleArgs(c.Vehicle)
	if err != nil {
		return err
	}
	args := append([]any{nullable(c.DealershipID), string(c.SourceKind), c.SourceID}, vargs...)
	args = append(args, c.IsSpecialOffer, string(c.Status))
	res, err := q.ExecContext(ctx,
		"INSERT INTO car_listings (dealership_id, source_kind, source_id, "+vehicleColumns+", is_special_offer, status) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)",
		args...)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return errors.Wrap(err, "insert car listing")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "car listing id")
	}
	created, err := scanCar(q.QueryRowContext(ctx, "SELECT "+carCols+" FROM car_listings c WHERE c.id=?", id))
	if err != nil {
		return errors.Wrap(err, "reload car listing")
	}
	*c = created
	return nil
}

// GetCarListing fetches a car listing by id.
func (r *CarListingRepo) GetCarListing(ctx context.Context, id uint64) (model.CarListing, error) {
	c, err := scanCar(r.DB.QueryRowContext(ctx, "SELECT "+carCols+" FROM car_listings c WHERE c.id=?", id))
	if err != nil {
		return model.CarListing{}, notFound(err, "get car listing")
	}
	return c, nil
}

// ListAvailableCarListings returns the public pool candidates.
func (r *CarListingRepo) ListAvailableCarListings(ctx context.Context, q ListingQuery) ([]model.CarListing, error) {
	clause, args := q.clause("c", []string{"c.status = 'available'"}, nil)
	return r.list(ctx, "SELECT "+carCols+" FROM car_listings c"+clause, args)
}

func (r *CarListingRepo) list(ctx context.Context, q string, args []any) ([]model.CarListing, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list car listings")
	}
	defer rows.Close()
	var out []model.CarListing
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan car listing")
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate car listings")
}
