package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

// CommissionRepo reads and settles commission rows.  Rows are created
// only by TransactionRepo.CompleteTransaction.
type CommissionRepo struct{ DB *sql.DB }

func NewCommissionRepo(db *sql.DB) *CommissionRepo { return &CommissionRepo{DB: db} }

const commissionCols = "cm.id, cm.transaction_id, cm.membership_id, cm.partner_id, cm.rate_bps, cm.amount_cents, cm.status, cm.paid_at, cm.paid_by, cm.created_at"

func scanCommission(s rowScanner) (model.Commission, error) {
	var (
		c      model.Commission
		paidAt sql.NullTime
		paidBy sql.NullInt64
	)
	if err := s.Scan(&c.ID, &c.TransactionID, &c.MembershipID, &c.PartnerID, &c.RateBps, &c.AmountCents, &c.Status, &paidAt, &paidBy, &c.CreatedAt); err != nil {
		return model.Commission{}, err
	}
	c.PaidAt = timePtr(paidAt)
	c.PaidBy = idPtr(paidBy)
	return c, nil
}

// insertCommission reads the membership's current rate and writes the
// commission for t.  The unique key on transaction_id turns a second
// attempt into ErrConflict.
func insertCommission(ctx context.Context, q querier, t model.Transaction, membershipID uint64) (model.Commission, error) {
	var (
		partnerID uint64
		rate      int
	)
	err := q.QueryRowContext(ctx,
		"SELECT partner_id, commission_rate_bps FROM partner_memberships WHERE id = ?", membershipID).
		Scan(&partnerID, &rate)
	if err != nil {
		return model.Commission{}, notFound(err, "read commission rate")
	}
	amount := model.CommissionAmount(t.AgreedPriceCents, rate)
	res, err := q.ExecContext(ctx,
		"INSERT INTO commissions (transaction_id, membership_id, partner_id, rate_bps, amount_cents, status) VALUES (?,?,?,?,?,'pending')",
		t.ID, membershipID, partnerID, rate, amount)
	if err != nil {
		if isDuplicate(err) {
			return model.Commission{}, ErrConflict
		}
		return model.Commission{}, errors.Wrap(err, "insert commission")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Commission{}, errors.Wrap(err, "commission id")
	}
	return getCommission(ctx, q, uint64(id))
}

func getCommission(ctx context.Context, q querier, id uint64) (model.Commission, error) {
	c, err := scanCommission(q.QueryRowContext(ctx, "SELECT "+commissionCols+" FROM commissions cm WHERE cm.id=?", id))
	if err != nil {
		return model.Commission{}, notFound(err, "get commission")
	}
	return c, nil
}

// GetCommission fetches a commission by id.
func (r *CommissionRepo) GetCommission(ctx context.Context, id uint64) (model.Commission, error) {
	return getCommission(ctx, r.DB, id)
}

// ListCommissions returns every commission, or only partnerID's when set.
func (r *CommissionRepo) ListCommissions(ctx context.Context, partnerID *uint64) ([]model.Commission, error) {
	q := "SELECT " + commissionCols + " FROM commissions cm"
	var args []any
	if partnerID != nil {
		q += " WHERE cm.partner_id = ?"
		args = append(args, *partnerID)
	}
	q += " ORDER BY cm.id DESC"
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list commissions")
	}
	defer rows.Close()
	var out []model.Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan commission")
		}
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate commissions")
}

// MarkCommissionPaid settles a pending commission.  ErrConflict means the
// row was not pending or the actor is not an admin.
func (r *CommissionRepo) MarkCommissionPaid(ctx context.Context, id, adminID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE commissions SET status = 'paid', paid_at = UTC_TIMESTAMP(), paid_by = ? WHERE id = ? AND status = 'pending' AND "+isAdminPredicate,
		adminID, id, adminID)
	if err != nil {
		return errors.Wrap(err, "mark commission paid")
	}
	return affected(res, ErrConflict)
}
