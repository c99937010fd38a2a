package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dealer-syndication/internal/handler"
	"github.com/iliyamo/dealer-syndication/internal/model"
	"github.com/iliyamo/dealer-syndication/internal/service"
	"github.com/iliyamo/dealer-syndication/internal/utils"
)

const secret = "router-secret"

// newServer wires the routes over services without stores.  Every
// request below is decided by middleware or input parsing before a
// store would be touched.
func newServer(t *testing.T) *echo.Echo {
	t.Helper()
	resolver := service.NewResolver(nil, nil, nil)
	intake := service.NewIntake(resolver, nil, nil, service.IngestCredential{}, nil, nil)
	approval := service.NewApproval(resolver, nil, nil, nil, nil, nil)
	ledger := service.NewLedger(resolver, nil, nil, nil, nil, nil, nil, nil)
	members := service.NewMemberships(resolver, nil, nil, nil)
	market := service.NewMarketplace(resolver, nil, nil, nil)

	return New(Handlers{
		Actor:   handler.NewActorHandler(resolver),
		Public:  handler.NewPublicHandler(market, ledger, intake),
		Dealer:  handler.NewDealerHandler(intake, members, ledger),
		Partner: handler.NewPartnerHandler(intake, members, ledger),
		Admin:   handler.NewAdminHandler(intake, approval, ledger),
	}, Middleware{JWTSecret: secret})
}

func token(t *testing.T, sub uint64, role model.Role) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, sub, role, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + tok.Token
}

func TestRouteGating(t *testing.T) {
	e := newServer(t)
	dealer := token(t, 2, model.RoleDealer)
	tipper := token(t, 4, model.RoleTipper)
	buyer := token(t, 5, model.RoleBuyer)

	tests := []struct {
		name   string
		method string
		path   string
		auth   string
		body   string
		status int
		kind   string
	}{
		{"health", http.MethodGet, "/healthz", "", "", http.StatusOK, ""},
		{"metrics", http.MethodGet, "/metrics", "", "", http.StatusOK, ""},
		{"admin needs token", http.MethodGet, "/v1/admin/pending-listings", "", "", http.StatusUnauthorized, "unauthorized"},
		{"admin rejects dealer", http.MethodGet, "/v1/admin/pending-listings", dealer, "", http.StatusForbidden, "forbidden"},
		{"dealer rejects tipper", http.MethodPost, "/v1/dealer/listings", tipper, "{}", http.StatusForbidden, "forbidden"},
		{"partner rejects buyer", http.MethodPost, "/v1/partner/listings", buyer, "{}", http.StatusForbidden, "forbidden"},
		{"shared rejects buyer", http.MethodGet, "/v1/pending-listings/1", buyer, "", http.StatusForbidden, "forbidden"},
		{"bad path id", http.MethodGet, "/v1/pending-listings/abc", dealer, "", http.StatusUnprocessableEntity, "validation_error"},
		{"ingest needs credential", http.MethodPost, "/v1/ingest/listings", "", "{}", http.StatusUnauthorized, "unauthorized"},
		{"listings bad pool", http.MethodGet, "/v1/listings?pool=everything", "", "", http.StatusUnprocessableEntity, "validation_error"},
		{"listings bad limit", http.MethodGet, "/v1/listings?limit=0", "", "", http.StatusUnprocessableEntity, "validation_error"},
		{"listings bad token", http.MethodGet, "/v1/listings", "Bearer forged", "", http.StatusUnauthorized, "unauthorized"},
		{"malformed body", http.MethodPost, "/v1/dealer/listings", dealer, "{", http.StatusUnprocessableEntity, "validation_error"},
		{"unknown transaction action", http.MethodPost, "/v1/dealer/transactions/1/refund", dealer, "", http.StatusNotFound, "not_found"},
		{"unknown route", http.MethodGet, "/v1/nowhere", "", "", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body *strings.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			} else {
				body = strings.NewReader("")
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			if tt.auth != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.auth)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if tt.kind != "" && !strings.Contains(rec.Body.String(), `"error":"`+tt.kind+`"`) {
				t.Fatalf("body = %s, want kind %s", rec.Body, tt.kind)
			}
			if rec.Header().Get(echo.HeaderXRequestID) == "" {
				t.Fatal("every response carries a request id")
			}
		})
	}
}
