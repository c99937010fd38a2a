package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

// LeadRepo stores buyer leads.  Leads are append-only apart from their
// contact status.
type LeadRepo struct{ DB *sql.DB }

func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{DB: db} }

const leadCols = "l.id, l.listing_id, l.name, l.email, l.phone, l.message, l.source_type, l.source_id, l.status, l.created_at"

func scanLead(s rowScanner) (model.Lead, error) {
	var (
		l       model.Lead
		message sql.NullString
		source  sql.NullInt64
	)
	if err := s.Scan(&l.ID, &l.ListingID, &l.Name, &l.Email, &l.Phone, &message, &l.SourceType, &source, &l.Status, &l.CreatedAt); err != nil {
		return model.Lead{}, err
	}
	l.Message = message.String
	l.SourceID = idPtr(source)
	return l, nil
}

// InsertLead appends a lead.  The listing must exist, and a tipper lead
// is only written while its source membership is approved; both checks
// live in the INSERT … SELECT.  A tipper lead that matched nothing yields
// ErrSourceRejected, an organic one ErrNotFound.
func (r *LeadRepo) InsertLead(ctx context.Context, l *model.Lead) error {
	args := []any{l.Name, l.Email, l.Phone, l.Message, string(l.SourceType), nullable(l.SourceID)}
	q := "INSERT INTO leads (listing_id, name, email, phone, message, source_type, source_id) " +
		"SELECT c.id, ?, ?, ?, ?, ?, ? FROM car_listings c"
	none := ErrNotFound
	if l.SourceType == model.SourceTipper {
		q += " JOIN partner_memberships pm ON pm.id = ? AND pm.is_approved = 1"
		args = append(args, nullable(l.SourceID))
		none = ErrSourceRejected
	}
	q += " WHERE c.id = ?"
	args = append(args, l.ListingID)

	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return errors.Wrap(err, "insert lead")
	}
	if err := affected(res, none); err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "lead id")
	}
	created, err := r.GetLead(ctx, uint64(id))
	if err != nil {
		return err
	}
	*l = created
	return nil
}

// GetLead fetches a lead by id.
func (r *LeadRepo) GetLead(ctx context.Context, id uint64) (model.Lead, error) {
	l, err := scanLead(r.DB.QueryRowContext(ctx, "SELECT "+leadCols+" FROM leads l WHERE l.id=?", id))
	if err != nil {
		return model.Lead{}, notFound(err, "get lead")
	}
	return l, nil
}

// ListLeadsByListing returns the leads of one listing ordered by id.
func (r *LeadRepo) ListLeadsByListing(ctx context.Context, listingID uint64) ([]model.Lead, error) {
	return listLeads(ctx, r.DB, "SELECT "+leadCols+" FROM leads l WHERE l.listing_id=? ORDER BY l.id", listingID)
}

// ListLeadsForOwner returns the leads on every car listing of the
// dealership owned by ownerID, newest first.
func (r *LeadRepo) ListLeadsForOwner(ctx context.Context, ownerID uint64) ([]model.Lead, error) {
	return listLeads(ctx, r.DB, "SELECT "+leadCols+` FROM leads l
JOIN car_listings c ON c.id = l.listing_id
JOIN dealerships d ON d.id = c.dealership_id
WHERE d.owner_id = ? ORDER BY l.id DESC`, ownerID)
}

func listLeads(ctx context.Context, q querier, query string, args ...any) ([]model.Lead, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list leads")
	}
	defer rows.Close()
	var out []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan lead")
		}
		out = append(out, l)
	}
	return out, errors.Wrap(rows.Err(), "iterate leads")
}

// AdvanceLeadStatus moves a lead from one status to the next, scoped to
// the listing's dealership owner or an admin.  ErrConflict means the
// lead was not in status from or the actor lacks authority.
func (r *LeadRepo) AdvanceLeadStatus(ctx context.Context, id, actorID uint64, from, to model.LeadStatus) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE leads l
JOIN car_listings c ON c.id = l.listing_id
SET l.status = ?
WHERE l.id = ? AND l.status = ? AND `+mayManageListing,
		string(to), id, string(from), actorID, actorID)
	if err != nil {
		return errors.Wrap(err, "advance lead status")
	}
	return affected(res, ErrConflict)
}
