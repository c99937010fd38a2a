package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

// MembershipRepo manages partner_memberships.  Rows are never deleted;
// revocation flips is_approved back to 0.
type MembershipRepo struct{ DB *sql.DB }

func NewMembershipRepo(db *sql.DB) *MembershipRepo { return &MembershipRepo{DB: db} }

const membershipCols = "id, dealership_id, partner_id, is_approved, commission_rate_bps, created_at, updated_at"

func scanMembership(s rowScanner) (model.PartnerMembership, error) {
	var (
		m      model.PartnerMembership
		dealer sql.NullInt64
	)
	if err := s.Scan(&m.ID, &dealer, &m.PartnerID, &m.IsApproved, &m.CommissionRateBps, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return model.PartnerMembership{}, err
	}
	m.DealershipID = idPtr(dealer)
	return m, nil
}

// CreateMembership inserts a pending membership unless the partner
// already holds one in the same scope, in which case it returns
// ErrDuplicate.
func (r *MembershipRepo) CreateMembership(ctx context.Context, m *model.PartnerMembership) error {
	res, err := r.DB.ExecContext(ctx, `
INSERT INTO partner_memberships (dealership_id, partner_id, is_approved, commission_rate_bps)
SELECT ?, ?, 0, ? FROM DUAL
WHERE NOT EXISTS (SELECT 1 FROM partner_memberships x WHERE x.partner_id = ? AND x.dealership_id <=> ?)`,
		nullable(m.DealershipID), m.PartnerID, m.CommissionRateBps, m.PartnerID, nullable(m.DealershipID))
	if err != nil {
		return errors.Wrap(err, "insert membership")
	}
	if err := affected(res, ErrDuplicate); err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "membership id")
	}
	created, err := r.GetMembership(ctx, uint64(id))
	if err != nil {
		return err
	}
	*m = created
	return nil
}

// GetMembership fetches a membership by id.
func (r *MembershipRepo) GetMembership(ctx context.Context, id uint64) (model.PartnerMembership, error) {
	m, err := scanMembership(r.DB.QueryRowContext(ctx,
		"SELECT "+membershipCols+" FROM partner_memberships WHERE id=?", id))
	if err != nil {
		return model.PartnerMembership{}, notFound(err, "get membership")
	}
	return m, nil
}

// ListMembershipsByPartner returns every membership of partnerID,
// approved or not, ordered by id.
func (r *MembershipRepo) ListMembershipsByPartner(ctx context.Context, partnerID uint64) ([]model.PartnerMembership, error) {
	return r.list(ctx, "SELECT "+membershipCols+" FROM partner_memberships WHERE partner_id=? ORDER BY id", partnerID)
}

// ListMembershipsByDealership returns the memberships scoped to a
// dealership, for its owner's review queue.
func (r *MembershipRepo) ListMembershipsByDealership(ctx context.Context, dealershipID uint64) ([]model.PartnerMembership, error) {
	return r.list(ctx, "SELECT "+membershipCols+" FROM partner_memberships WHERE dealership_id=? ORDER BY id", dealershipID)
}

func (r *MembershipRepo) list(ctx context.Context, q string, arg any) ([]model.PartnerMembership, error) {
	rows, err := r.DB.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, errors.Wrap(err, "list memberships")
	}
	defer rows.Close()
	var out []model.PartnerMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan membership")
		}
		out = append(out, m)
	}
	return out, errors.Wrap(rows.Err(), "iterate memberships")
}

// membershipAuthority restricts a write on partner_memberships (pm,
// left-joined to dealerships d) to the owning dealer, or to an admin
// for independent memberships.  Binds the actor id twice.
const membershipAuthority = `(d.owner_id = ? OR (pm.dealership_id IS NULL AND ` + isAdminPredicate + `))`

// SetMembershipApproval toggles is_approved.  The authority check is part
// of the UPDATE; ErrForbidden means no row matched.
func (r *MembershipRepo) SetMembershipApproval(ctx context.Context, id, actorID uint64, approved bool) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE partner_memberships pm
LEFT JOIN dealerships d ON d.id = pm.dealership_id
SET pm.is_approved = ?
WHERE pm.id = ? AND `+membershipAuthority,
		approved, id, actorID, actorID)
	if err != nil {
		return errors.Wrap(err, "set membership approval")
	}
	return affected(res, ErrForbidden)
}

// SetCommissionRate changes the rate used for future completions.  The
// dealership owner or any admin may set it; existing commission rows are
// untouched.
func (r *MembershipRepo) SetCommissionRate(ctx context.Context, id, actorID uint64, bps int) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE partner_memberships pm
LEFT JOIN dealerships d ON d.id = pm.dealership_id
SET pm.commission_rate_bps = ?
WHERE pm.id = ? AND (d.owner_id = ? OR `+isAdminPredicate+`)`,
		bps, id, actorID, actorID)
	if err != nil {
		return errors.Wrap(err, "set commission rate")
	}
	return affected(res, ErrForbidden)
}
