package database

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestStatementsCoverEveryRelation(t *testing.T) {
	stmts := Statements()
	tables := []string{
		"actors", "dealerships", "partner_memberships", "car_listings",
		"pending_listings", "partner_listings", "leads", "transactions", "commissions",
	}
	if len(stmts) != len(tables) {
		t.Fatalf("expected %d statements, got %d", len(tables), len(stmts))
	}
	for i, table := range tables {
		if !strings.HasPrefix(stmts[i], "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Errorf("statement %d should create %s, got %.60q", i, table, stmts[i])
		}
	}
}

func TestMigrateStopsOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS actors").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS dealerships").WillReturnError(errors.New("denied"))

	err = Migrate(context.Background(), db)
	if err == nil || !strings.Contains(err.Error(), "schema statement 2") {
		t.Fatalf("expected failure on statement 2, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
