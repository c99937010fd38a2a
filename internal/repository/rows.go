package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

// vehicleColumns lists the vehicle attributes shared by pending_listings,
// partner_listings and car_listings, in scan order.
const vehicleColumns = `vin, make, model, year, price_cents, mileage, vehicle_condition, media_urls, features`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// vehicleArgs returns the bind values for vehicleColumns.
func vehicleArgs(v model.Vehicle) ([]any, error) {
	media, err := json.Marshal(nonNil(v.MediaURLs))
	if err != nil {
		return nil, errors.Wrap(err, "encode media_urls")
	}
	features, err := json.Marshal(nonNil(v.Features))
	if err != nil {
		return nil, errors.Wrap(err, "encode features")
	}
	return []any{v.VIN, v.Make, v.Model, v.Year, v.PriceCents, v.Mileage, v.Condition, media, features}, nil
}

// vehicleScan holds the raw JSON columns while a row is being scanned.
type vehicleScan struct {
	media    []byte
	features []byte
}

func (s *vehicleScan) dest(v *model.Vehicle) []any {
	return []any{&v.VIN, &v.Make, &v.Model, &v.Year, &v.PriceCents, &v.Mileage, &v.Condition, &s.media, &s.features}
}

func (s *vehicleScan) decode(v *model.Vehicle) error {
	v.MediaURLs, v.Features = []string{}, []string{}
	if len(s.media) > 0 {
		if err := json.Unmarshal(s.media, &v.MediaURLs); err != nil {
			return errors.Wrap(err, "decode media_urls")
		}
	}
	if len(s.features) > 0 {
		if err := json.Unmarshal(s.features, &v.Features); err != nil {
			return errors.Wrap(err, "decode features")
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func idPtr(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

// nullable converts an optional id into a bind value.
func nullable(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}

// isAdminPredicate is appended to writes that only an admin may perform.
// It binds one argument: the acting actor id.
const isAdminPredicate = `EXISTS (SELECT 1 FROM actors adm WHERE adm.id = ? AND adm.role = 'ADMIN')`

// mayManageListing scopes a write on car_listings (aliased c) to the
// owner of the listing's dealership or an admin.  It binds the actor id
// twice.
const mayManageListing = `(c.dealership_id IN (SELECT d.id FROM dealerships d WHERE d.owner_id = ?) OR ` + isAdminPredicate + `)`
