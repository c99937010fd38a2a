package repository

import (
	"context"
	"database/sql"
	"strings"
)

// ListingQuery defines filters applied to candidate listings before the
// visibility rules run.  Limit caps the candidates loaded per pool and is
// applied after ordering by Sort.
type ListingQuery struct {
	Make          string
	Model         string
	MinPriceCents *int64
	MaxPriceCents *int64
	Limit         int
	Sort          string

	// ExcludeDealerships drops rows of these dealerships.  Rows without a
	// dealership are kept.
	ExcludeDealerships []uint64
}

// Sort keys.  The empty key lists newest ids first.
const (
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNewest    = "newest"
)

// MaxCandidates is the most rows a single listing query will load.
const MaxCandidates = maxCandidateLimit

const (
	defaultCandidateLimit = 200
	maxCandidateLimit     = 1000
)

func (q ListingQuery) limit() int {
	switch {
	case q.Limit <= 0:
		return defaultCandidateLimit
	case q.Limit > maxCandidateLimit:
		return maxCandidateLimit
	}
	return q.Limit
}

// filters appends the vehicle filters for table alias a.
func (q ListingQuery) filters(a string, where []string, args []any) ([]string, []any) {
	if q.Make != "" {
		where = append(where, "LOWER("+a+".make) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Make)+"%")
	}
	if q.Model != "" {
		where = append(where, "LOWER("+a+".model) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Model)+"%")
	}
	if q.MinPriceCents != nil {
		where = append(where, a+".price_cents >= ?")
		args = append(args, *q.MinPriceCents)
	}
	if q.MaxPriceCents != nil {
		where = append(where, a+".price_cents <= ?")
		args = append(args, *q.MaxPriceCents)
	}
	if n := len(q.ExcludeDealerships); n > 0 {
		marks := strings.TrimSuffix(strings.Repeat("?,", n), ",")
		where = append(where, "("+a+".dealership_id IS NULL OR "+a+".dealership_id NOT IN ("+marks+"))")
		for _, id := range q.ExcludeDealerships {
			args = append(args, id)
		}
	}
	return where, args
}

// orderBy renders the ORDER BY list for table alias a.  Ties break on id
// ascending, matching the in-memory sort of merged pools.
func (q ListingQuery) orderBy(a string) string {
	switch q.Sort {
	case SortPriceAsc:
		return a + ".price_cents ASC, " + a + ".id ASC"
	case SortPriceDesc:
		return a + ".price_cents DESC, " + a + ".id ASC"
	case SortNewest:
		return a + ".created_at DESC, " + a + ".id ASC"
	}
	return a + ".id DESC"
}

// clause renders "WHERE ... ORDER BY ... LIMIT n".
func (q ListingQuery) clause(a string, where []string, args []any) (string, []any) {
	where, args = q.filters(a, where, args)
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}
	args = append(args, q.limit())
	return " WHERE " + cond + " ORDER BY " + q.orderBy(a) + " LIMIT ?", args
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
