package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"

	"github.com/iliyamo/dealer-syndication/internal/model"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newMock(t *testing.T) (sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
		db.Close()
	})
	return mock, db
}

func q(s string) string { return regexp.QuoteMeta(s) }

var pendingColumns = []string{
	"id", "dealership_id", "created_by", "channel",
	"vin", "make", "model", "year", "price_cents", "mileage", "vehicle_condition", "media_urls", "features",
	"approval_status", "is_special_offer", "is_shared_with_network", "is_public",
	"decided_by", "decided_at", "decision_note", "car_listing_id", "created_at", "updated_at",
}

func pendingRow(id uint64, status string, public bool) *sqlmock.Rows {
	return sqlmock.NewRows(pendingColumns).AddRow(
		id, uint64(7), uint64(70), "dealer",
		"VIN1", "Audi", "A4", 2021, int64(3_000_000), 12000, "used", []byte(`["https://img/1.jpg"]`), []byte(`["awd"]`),
		status, false, true, public,
		nil, nil, nil, nil, now, now,
	)
}

var carColumns = []string{
	"id", "dealership_id", "source_kind", "source_id",
	"vin", "make", "model", "year", "price_cents", "mileage", "vehicle_condition", "media_urls", "features",
	"is_special_offer", "status", "active_transaction_id", "created_at",
}

func carRow(id, source uint64) *sqlmock.Rows {
	return sqlmock.NewRows(carColumns).AddRow(
		id, uint64(7), "pending", source,
		"VIN1", "Audi", "A4", 2021, int64(3_000_000), 12000, "used", []byte(`[]`), []byte(`[]`),
		false, "available", nil, now,
	)
}

func TestCreatePendingForDealer_NoDealershipIsForbidden(t *testing.T) {
	mock, db := newMock(t)
	repo := NewPendingListingRepo(db)

	mock.ExpectExec(q("INSERT INTO pending_listings") + ".*" + q("FROM dealerships d WHERE d.owner_id = ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	l := &model.PendingListing{CreatedBy: 70, Vehicle: model.Vehicle{Make: "Audi", Model: "A4"}}
	if err := repo.CreatePendingForDealer(context.Background(), 70, l); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCreatePendingForPartner_ReloadsRow(t *testing.T) {
	mock, db := newMock(t)
	repo := NewPendingListingRepo(db)

	mock.ExpectExec(q("FROM partner_memberships pm WHERE pm.id = ? AND pm.partner_id = ? AND pm.is_approved = 1")).
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectQuery(q("FROM pending_listings p WHERE p.id=?")).WithArgs(uint64(11)).
		WillReturnRows(pendingRow(11, "pending", false))

	l := &model.PendingListing{CreatedBy: 70}
	if err := repo.CreatePendingForPartner(context.Background(), 3, 70, l); err != nil {
		t.Fatal(err)
	}
	if l.ID != 11 || l.DealershipID == nil || *l.DealershipID != 7 {
		t.Fatalf("unexpected reload: %+v", l)
	}
	if len(l.Vehicle.MediaURLs) != 1 || l.Vehicle.Features[0] != "awd" {
		t.Fatalf("json columns not decoded: %+v", l.Vehicle)
	}
}

func TestDecide_LostRaceIsConflict(t *testing.T) {
	mock, db := newMock(t)
	repo := NewPendingListingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("WHERE id = ? AND approval_status = 'pending' AND EXISTS")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	cmd := model.DecisionCommand{ListingID: 11, AdminID: 1, Decision: model.DecisionApprove}
	_, _, err := repo.Decide(context.Background(), cmd, nil)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDecide_ApprovePublicPromotesInsideTransaction(t *testing.T) {
	mock, db := newMock(t)
	repo := NewPendingListingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE pending_listings SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM pending_listings p WHERE p.id=?")).WillReturnRows(pendingRow(11, "approved", true))
	mock.ExpectExec(q("INSERT INTO car_listings")).WillReturnResult(sqlmock.NewResult(40, 1))
	mock.ExpectQuery(q("FROM car_listings c WHERE c.id=?")).WillReturnRows(carRow(40, 11))
	mock.ExpectExec(q("UPDATE pending_listings SET car_listing_id=? WHERE id=?")).
		WithArgs(uint64(40), uint64(11)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var hooked *model.CarListing
	cmd := model.DecisionCommand{ListingID: 11, AdminID: 1, Decision: model.DecisionApprove}
	l, car, err := repo.Decide(context.Background(), cmd, func(_ context.Context, _ model.PendingListing, c *model.CarListing) error {
		hooked = c
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if car == nil || car.ID != 40 || hooked == nil || hooked.ID != 40 {
		t.Fatalf("expected promoted car 40, got %+v (hook %+v)", car, hooked)
	}
	if l.CarListingID == nil || *l.CarListingID != 40 {
		t.Fatalf("pending listing not linked: %+v", l.CarListingID)
	}
}

func TestDecide_HookFailureRollsBack(t *testing.T) {
	mock, db := newMock(t)
	repo := NewPendingListingRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("UPDATE pending_listings SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM pending_listings p WHERE p.id=?")).WillReturnRows(pendingRow(11, "approved", false))
	mock.ExpectRollback()

	boom := errors.New("webhook down")
	cmd := model.DecisionCommand{ListingID: 11, AdminID: 1, Decision: model.DecisionApprove}
	_, _, err := repo.Decide(context.Background(), cmd, func(context.Context, model.PendingListing, *model.CarListing) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
}

func TestOpenTransaction_GuardCollisionIsConflict(t *testing.T) {
	mock, db := newMock(t)
	repo := NewTransactionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("INSERT INTO transactions")).WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectExec(q("c.active_transaction_id IS NULL AND c.status = 'available'")).
		WithArgs(int64(5), uint64(40), uint64(70), uint64(70)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tr := &model.Transaction{ListingID: 40, AgreedPriceCents: 3_000_000}
	if err := repo.OpenTransaction(context.Background(), 70, tr); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

var txColumns = []string{"id", "listing_id", "lead_id", "agreed_price_cents", "status", "created_by", "completed_at", "created_at", "updated_at"}
var leadColumns = []string{"id", "listing_id", "name", "email", "phone", "message", "source_type", "source_id", "status", "created_at"}
var commissionColumns = []string{"id", "transaction_id", "membership_id", "partner_id", "rate_bps", "amount_cents", "status", "paid_at", "paid_by", "created_at"}

func TestCompleteTransaction_AttributesFirstTipperLead(t *testing.T) {
	mock, db := newMock(t)
	repo := NewTransactionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("SET t.status = 'completed'")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM transactions t WHERE t.id=?")).WillReturnRows(
		sqlmock.NewRows(txColumns).AddRow(uint64(5), uint64(40), nil, int64(3_000_000), "completed", uint64(70), now, now, now))
	mock.ExpectExec(q("UPDATE car_listings SET status = 'sold', active_transaction_id = NULL")).
		WithArgs(uint64(40), uint64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM leads l WHERE l.listing_id=? ORDER BY l.id")).WillReturnRows(
		sqlmock.NewRows(leadColumns).
			AddRow(uint64(1), uint64(40), "a", "a@x.io", "", nil, "organic", nil, "new", now).
			AddRow(uint64(2), uint64(40), "b", "b@x.io", "", nil, "tipper", uint64(9), "new", now).
			AddRow(uint64(3), uint64(40), "c", "c@x.io", "", nil, "tipper", uint64(10), "new", now))
	mock.ExpectQuery(q("SELECT partner_id, commission_rate_bps FROM partner_memberships WHERE id = ?")).
		WithArgs(uint64(9)).WillReturnRows(sqlmock.NewRows([]string{"partner_id", "commission_rate_bps"}).AddRow(uint64(90), 500))
	mock.ExpectExec(q("INSERT INTO commissions")).
		WithArgs(uint64(5), uint64(9), uint64(90), 500, int64(150_000)).
		WillReturnResult(sqlmock.NewResult(77, 1))
	mock.ExpectQuery(q("FROM commissions cm WHERE cm.id=?")).WillReturnRows(
		sqlmock.NewRows(commissionColumns).AddRow(uint64(77), uint64(5), uint64(9), uint64(90), 500, int64(150_000), "pending", nil, nil, now))
	mock.ExpectCommit()

	tr, c, err := repo.CompleteTransaction(context.Background(), 5, 70)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Status != model.TxCompleted {
		t.Fatalf("status = %s", tr.Status)
	}
	if c == nil || c.AmountCents != 150_000 || c.MembershipID != 9 {
		t.Fatalf("unexpected commission %+v", c)
	}
}

func TestCompleteTransaction_DuplicateCommissionIsConflict(t *testing.T) {
	mock, db := newMock(t)
	repo := NewTransactionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(q("SET t.status = 'completed'")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM transactions t WHERE t.id=?")).WillReturnRows(
		sqlmock.NewRows(txColumns).AddRow(uint64(5), uint64(40), uint64(2), int64(1_000), "completed", uint64(70), now, now, now))
	mock.ExpectExec(q("UPDATE car_listings SET status = 'sold'")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(q("FROM leads l WHERE l.listing_id=?")).WillReturnRows(
		sqlmock.NewRows(leadColumns).AddRow(uint64(2), uint64(40), "b", "b@x.io", "", nil, "tipper", uint64(9), "new", now))
	mock.ExpectQuery(q("SELECT partner_id, commission_rate_bps")).
		WillReturnRows(sqlmock.NewRows([]string{"partner_id", "commission_rate_bps"}).AddRow(uint64(90), 250))
	mock.ExpectExec(q("INSERT INTO commissions")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '5' for key 'uq_commissions_transaction'"})
	mock.ExpectRollback()

	if _, _, err := repo.CompleteTransaction(context.Background(), 5, 70); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestInsertLead_TipperRequiresApprovedMembership(t *testing.T) {
	mock, db := newMock(t)
	repo := NewLeadRepo(db)

	src := uint64(9)
	mock.ExpectExec(q("JOIN partner_memberships pm ON pm.id = ? AND pm.is_approved = 1 WHERE c.id = ?")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	l := &model.Lead{ListingID: 40, Name: "b", Email: "b@x.io", SourceType: model.SourceTipper, SourceID: &src}
	if err := repo.InsertLead(context.Background(), l); !errors.Is(err, ErrSourceRejected) {
		t.Fatalf("expected ErrSourceRejected, got %v", err)
	}
}

func TestSetMembershipApproval_ScopedToOwner(t *testing.T) {
	mock, db := newMock(t)
	repo := NewMembershipRepo(db)

	mock.ExpectExec(q("LEFT JOIN dealerships d ON d.id = pm.dealership_id")).
		WithArgs(true, uint64(3), uint64(71), uint64(71)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetMembershipApproval(context.Background(), 3, 71, true); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestMarkCommissionPaid_NotPendingIsConflict(t *testing.T) {
	mock, db := newMock(t)
	repo := NewCommissionRepo(db)

	mock.ExpectExec(q("WHERE id = ? AND status = 'pending'")).
		WithArgs(uint64(1), uint64(77), uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkCommissionPaid(context.Background(), 77, 1); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestCreateDealership_DuplicateOwner(t *testing.T) {
	mock, db := newMock(t)
	repo := NewDealershipRepo(db)

	mock.ExpectExec(q("INSERT INTO dealerships")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '70' for key 'uq_dealerships_owner'"})

	if err := repo.CreateDealership(context.Background(), &model.Dealership{OwnerID: 70, Name: "North"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestGetActor_NotFound(t *testing.T) {
	mock, db := newMock(t)
	repo := NewActorRepo(db)

	mock.ExpectQuery(q("FROM actors WHERE id=?")).WillReturnRows(sqlmock.NewRows([]string{"id", "email", "role", "created_at"}))

	if _, err := repo.GetActor(context.Background(), 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListingQueryClause(t *testing.T) {
	floor := int64(100)
	clause, args := ListingQuery{Make: "Audi", MinPriceCents: &floor, Limit: 5000}.
		clause("c", []string{"c.status = 'available'"}, nil)
	want := " WHERE c.status = 'available' AND LOWER(c.make) LIKE ? AND c.price_cents >= ? ORDER BY c.id DESC LIMIT ?"
	if clause != want {
		t.Fatalf("clause = %q", clause)
	}
	if len(args) != 3 || args[0] != "%audi%" || args[2] != maxCandidateLimit {
		t.Fatalf("args = %v", args)
	}
}

func TestListingQueryClauseOrdersBeforeLimit(t *testing.T) {
	tests := []struct {
		sort string
		want string
	}{
		{SortPriceAsc, " ORDER BY p.price_cents ASC, p.id ASC LIMIT ?"},
		{SortPriceDesc, " ORDER BY p.price_cents DESC, p.id ASC LIMIT ?"},
		{SortNewest, " ORDER BY p.created_at DESC, p.id ASC LIMIT ?"},
		{"", " ORDER BY p.id DESC LIMIT ?"},
	}
	for _, tt := range tests {
		clause, _ := ListingQuery{Sort: tt.sort, Limit: 3}.clause("p", nil, nil)
		if !strings.HasSuffix(clause, tt.want) {
			t.Fatalf("sort %q: clause = %q", tt.sort, clause)
		}
	}

	clause, args := ListingQuery{ExcludeDealerships: []uint64{7, 9}, Limit: 3}.
		clause("p", []string{"p.is_shared_with_network = 1"}, nil)
	want := " WHERE p.is_shared_with_network = 1 AND (p.dealership_id IS NULL OR p.dealership_id NOT IN (?,?)) ORDER BY p.id DESC LIMIT ?"
	if clause != want {
		t.Fatalf("clause = %q", clause)
	}
	if len(args) != 3 || args[0] != uint64(7) || args[1] != uint64(9) || args[2] != 3 {
		t.Fatalf("args = %v", args)
	}
}

func TestCreateMembership_SameScopeIsDuplicate(t *testing.T) {
	mock, db := newMock(t)
	repo := NewMembershipRepo(db)

	mock.ExpectExec(q("WHERE NOT EXISTS (SELECT 1 FROM partner_memberships x WHERE x.partner_id = ? AND x.dealership_id <=> ?)")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CreateMembership(context.Background(), &model.PartnerMembership{PartnerID: 9})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestIsDuplicate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql 1062", &mysql.MySQLError{Number: 1062}, true},
		{"wrapped 1062", pkgerrors.Wrap(&mysql.MySQLError{Number: 1062}, "insert"), true},
		{"other mysql error", &mysql.MySQLError{Number: 1452}, false},
		{"text mentioning 1062", errors.New("listing 1062 not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDuplicate(tt.err); got != tt.want {
				t.Fatalf("isDuplicate(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
