package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

// TransactionRepo records sales.  At most one active (pending or
// confirmed) transaction may exist per car listing; the guard is the
// car_listings.active_transaction_id column, claimed by compare-and-set.
type TransactionRepo struct{ DB *sql.DB }

func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{DB: db} }

const txCols = "t.id, t.listing_id, t.lead_id, t.agreed_price_cents, t.status, t.created_by, t.completed_at, t.created_at, t.updated_at"

func scanTransaction(s rowScanner) (model.Transaction, error) {
	var (
		t         model.Transaction
		lead      sql.NullInt64
		completed sql.NullTime
	)
	if err := s.Scan(&t.ID, &t.ListingID, &lead, &t.AgreedPriceCents, &t.Status, &t.CreatedBy, &completed, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Transaction{}, err
	}
	t.LeadID = idPtr(lead)
	t.CompletedAt = timePtr(completed)
	return t, nil
}

func getTransaction(ctx context.Context, q querier, id uint64) (model.Transaction, error) {
	t, err := scanTransaction(q.QueryRowContext(ctx, "SELECT "+txCols+" FROM transactions t WHERE t.id=?", id))
	if err != nil {
		return model.Transaction{}, notFound(err, "get transaction")
	}
	return t, nil
}

// GetTransaction fetches a transaction by id.
func (r *TransactionRepo) GetTransaction(ctx context.Context, id uint64) (model.Transaction, error) {
	return getTransaction(ctx, r.DB, id)
}

// OpenTransaction inserts t as pending and claims the listing's sale
// slot in the same transaction.  ErrConflict means another transaction
// holds the slot, the listing is no longer available, or the actor may
// not manage it.
func (r *TransactionRepo) OpenTransaction(ctx context.Context, actorID uint64, t *model.Transaction) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin open transaction")
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx,
		"INSERT INTO transactions (listing_id, lead_id, agreed_price_cents, status, created_by) VALUES (?,?,?,'pending',?)",
		t.ListingID, nullable(t.LeadID), t.AgreedPriceCents, actorID)
	if err != nil {
		return errors.Wrap(err, "insert transaction")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "transaction id")
	}

	res, err = tx.ExecContext(ctx, `
UPDATE car_listings c SET c.active_transaction_id = ?
WHERE c.id = ? AND c.active_transaction_id IS NULL AND c.status = 'available' AND `+mayManageListing,
		id, t.ListingID, actorID, actorID)
	if err != nil {
		return errors.Wrap(err, "claim listing")
	}
	if err := affected(res, ErrConflict); err != nil {
		return err
	}

	created, err := getTransaction(ctx, tx, uint64(id))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit open transaction")
	}
	*t = created
	return nil
}

// ConfirmTransaction moves pending→confirmed.
func (r *TransactionRepo) ConfirmTransaction(ctx context.Context, id, actorID uint64) error {
	res, err := r.DB.ExecContext(ctx, `
UPDATE transactions t
JOIN car_listings c ON c.id = t.listing_id
SET t.status = 'confirmed'
WHERE t.id = ? AND t.status = 'pending' AND `+mayManageListing,
		id, actorID, actorID)
	if err != nil {
		return errors.Wrap(err, "confirm transaction")
	}
	return affected(res, ErrConflict)
}

// CancelTransaction moves an active transaction to cancelled and frees the
// listing's sale slot.
func (r *TransactionRepo) CancelTransaction(ctx context.Context, id, actorID uint64) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin cancel transaction")
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
UPDATE transactions t
JOIN car_listings c ON c.id = t.listing_id
SET t.status = 'cancelled'
WHERE t.id = ? AND t.status IN ('pending','confirmed') AND `+mayManageListing,
		id, actorID, actorID)
	if err != nil {
		return errors.Wrap(err, "cancel transaction")
	}
	if err := affected(res, ErrConflict); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE car_listings SET active_transaction_id = NULL WHERE active_transaction_id = ?", id); err != nil {
		return errors.Wrap(err, "release listing")
	}
	return errors.Wrap(tx.Commit(), "commit cancel transaction")
}

// CompleteTransaction finalises a sale in one database transaction: the
// status compare-and-set, marking the car listing sold, resolving the
// attribution source and inserting at most one commission at the
// membership's current rate.  The returned commission is nil for organic
// sales.
func (r *TransactionRepo) CompleteTransaction(ctx context.Context, id, actorID uint64) (model.Transaction, *model.Commission, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Transaction{}, nil, errors.Wrap(err, "begin complete transaction")
	}
	defer rollback(tx)

	res, err := tx.ExecContext(ctx, `
UPDATE transactions t
JOIN car_listings c ON c.id = t.listing_id
SET t.status = 'completed', t.completed_at = UTC_TIMESTAMP()
WHERE t.id = ? AND t.status IN ('pending','confirmed') AND `+mayManageListing,
		id, actorID, actorID)
	if err != nil {
		return model.Transaction{}, nil, errors.Wrap(err, "complete transaction")
	}
	if err := affected(res, ErrConflict); err != nil {
		return model.Transaction{}, nil, err
	}

	t, err := getTransaction(ctx, tx, id)
	if err != nil {
		return model.Transaction{}, nil, err
	}

	res, err = tx.ExecContext(ctx,
		"UPDATE car_listings SET status = 'sold', active_transaction_id = NULL WHERE id = ? AND active_transaction_id = ?",
		t.ListingID, t.ID)
	if err != nil {
		return model.Transaction{}, nil, errors.Wrap(err, "mark listing sold")
	}
	if err := affected(res, ErrConflict); err != nil {
		return model.Transaction{}, nil, err
	}

	leads, err := listLeads(ctx, tx, "SELECT "+leadCols+" FROM leads l WHERE l.listing_id=? ORDER BY l.id", t.ListingID)
	if err != nil {
		return model.Transaction{}, nil, err
	}
	var commission *model.Commission
	if membershipID := model.AttributeSale(t, leads); membershipID != nil {
		c, err := insertCommission(ctx, tx, t, *membershipID)
		if err != nil {
			return model.Transaction{}, nil, err
		}
		commission = &c
	}

	if err := tx.Commit(); err != nil {
		return model.Transaction{}, nil, errors.Wrap(err, "commit complete transaction")
	}
	return t, commission, nil
}
