package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

// DealershipRepo provides access to the dealerships table.  Each owner
// holds at most one dealership (uq_dealerships_owner).
type DealershipRepo struct{ DB *sql.DB }

func NewDealershipRepo(db *sql.DB) *DealershipRepo { return &DealershipRepo{DB: db} }

const dealershipCols = "id, owner_id, name, city, created_at"

// CreateDealership inserts d for its owner.  A second dealership for the
// same owner yields ErrDuplicate.
func (r *DealershipRepo) CreateDealership(ctx context.Context, d *model.Dealership) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO dealerships (owner_id, name, city) VALUES (?,?,?)",
		d.OwnerID, d.Name, d.City)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "insert dealership")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "dealership id")
	}
	created, err := r.GetDealership(ctx, uint64(id))
	if err != nil {
		return err
	}
	*d = created
	return nil
}

// GetDealership fetches a dealership by id.
func (r *DealershipRepo) GetDealership(ctx context.Context, id uint64) (model.Dealership, error) {
	return r.one(ctx, "SELECT "+dealershipCols+" FROM dealerships WHERE id=?", id)
}

// GetDealershipByOwner returns the dealership owned by ownerID, or
// ErrNotFound.
func (r *DealershipRepo) GetDealershipByOwner(ctx context.Context, ownerID uint64) (model.Dealership, error) {
	return r.one(ctx, "SELECT "+dealershipCols+" FROM dealerships WHERE owner_id=?", ownerID)
}

func (r *DealershipRepo) one(ctx context.Context, q string, arg any) (model.Dealership, error) {
	var d model.Dealership
	err := r.DB.QueryRowContext(ctx, q, arg).Scan(&d.ID, &d.OwnerID, &d.Name, &d.City, &d.CreatedAt)
	if err != nil {
		return model.Dealership{}, notFound(err, "get dealership")
	}
	return d, nil
}
