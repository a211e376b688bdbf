package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/stonebridge/drawledger/pkg/accrual"
	"github.com/stonebridge/drawledger/pkg/cache"
	"github.com/stonebridge/drawledger/pkg/models"
	"github.com/stonebridge/drawledger/pkg/store"
)

func setupTestServer(t *testing.T) (*Server, *mux.Router) {
	t.Helper()
	dbFile := filepath.Join(t.TempDir(), "test_api.db")

	s, err := store.NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	server := NewServer(s, cache.NewMemoryCache())
	return server, server.routes()
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body any, wantStatus int, out any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d (%s)", method, path, wantStatus, rr.Code, rr.Body.String())
	}
	if out != nil {
		if err := json.NewDecoder(rr.Body).Decode(out); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
}

func createLoanAndDraw(t *testing.T, router *mux.Router) models.Loan {
	t.Helper()

	var loan models.Loan
	doJSON(t, router, "POST", "/loans", map[string]any{
		"project_key":          "proj-77",
		"loan_amount":          "100000",
		"interest_rate_annual": "0.12",
		"maturity_date":        "2025-01-01",
	}, http.StatusCreated, &loan)

	var draw models.Draw
	doJSON(t, router, "POST", fmt.Sprintf("/loans/%s/draws", loan.ID), map[string]any{
		"amount":       "100000",
		"request_date": "2024-01-01",
	}, http.StatusCreated, &draw)

	doJSON(t, router, "POST", fmt.Sprintf("/draws/%s/fund", draw.ID), map[string]any{
		"funded_date": "2024-01-01",
	}, http.StatusOK, nil)

	return loan
}

func TestAPI_CreateAndGetLoan(t *testing.T) {
	_, router := setupTestServer(t)

	var created models.Loan
	doJSON(t, router, "POST", "/loans", map[string]any{
		"project_key": "proj-1",
		"loan_amount": "250000",
	}, http.StatusCreated, &created)

	if !created.InterestRateAnnual.Equal(decimal.RequireFromString("0.11")) {
		t.Errorf("Expected default rate applied, got %s", created.InterestRateAnnual)
	}

	var fetched models.Loan
	doJSON(t, router, "GET", "/loans/"+created.ID.String(), nil, http.StatusOK, &fetched)
	if fetched.ID != created.ID {
		t.Errorf("Expected loan %s, got %s", created.ID, fetched.ID)
	}
}

func TestAPI_CreateLoanRejectsBadTerms(t *testing.T) {
	_, router := setupTestServer(t)

	doJSON(t, router, "POST", "/loans", map[string]any{
		"project_key": "proj-1",
		"loan_amount": "0",
	}, http.StatusBadRequest, nil)
}

func TestAPI_LoanNotFound(t *testing.T) {
	_, router := setupTestServer(t)

	doJSON(t, router, "GET", "/loans/00000000-0000-0000-0000-000000000000", nil, http.StatusNotFound, nil)
}

func TestAPI_LedgerAndSummary(t *testing.T) {
	_, router := setupTestServer(t)
	loan := createLoanAndDraw(t, router)

	var rows []accrual.LedgerRow
	doJSON(t, router, "GET", fmt.Sprintf("/loans/%s/ledger?as_of=2024-01-31", loan.ID), nil, http.StatusOK, &rows)
	if len(rows) < 2 {
		t.Fatalf("Expected draw + as-of rows, got %d", len(rows))
	}
	if rows[0].Kind != accrual.RowDraw {
		t.Errorf("Expected first row to be the draw, got %s", rows[0].Kind)
	}

	var sum accrual.Summary
	doJSON(t, router, "GET", fmt.Sprintf("/loans/%s/summary?as_of=2024-01-31", loan.ID), nil, http.StatusOK, &sum)
	if !sum.TotalInterest.Round(2).Equal(decimal.RequireFromString("986.30")) {
		t.Errorf("Expected 30-day interest 986.30, got %s", sum.TotalInterest.Round(2))
	}
	if !sum.Principal.Equal(decimal.NewFromInt(100000)) {
		t.Errorf("Expected principal 100000, got %s", sum.Principal)
	}
}

func TestAPI_Payoff(t *testing.T) {
	_, router := setupTestServer(t)
	loan := createLoanAndDraw(t, router)

	var payoff accrual.PayoffBreakdown
	doJSON(t, router, "GET", fmt.Sprintf("/loans/%s/payoff?date=2024-01-31", loan.ID), nil, http.StatusOK, &payoff)

	if !payoff.TotalPayoff.Round(2).Equal(decimal.RequireFromString("103986.30")) {
		t.Errorf("Expected total payoff 103986.30, got %s", payoff.TotalPayoff.Round(2))
	}
	if payoff.Urgency != accrual.UrgencyNormal {
		t.Errorf("Expected normal urgency a year from maturity, got %s", payoff.Urgency)
	}

	// A what-if date past maturity is the same call with a later date.
	doJSON(t, router, "GET", fmt.Sprintf("/loans/%s/payoff?date=2025-02-01", loan.ID), nil, http.StatusOK, &payoff)
	if payoff.Urgency != accrual.UrgencyCritical {
		t.Errorf("Expected critical urgency past maturity, got %s", payoff.Urgency)
	}
}

func TestAPI_PayoffBadDate(t *testing.T) {
	_, router := setupTestServer(t)
	loan := createLoanAndDraw(t, router)

	doJSON(t, router, "GET", fmt.Sprintf("/loans/%s/payoff?date=31-01-2024", loan.ID), nil, http.StatusBadRequest, nil)
}

func TestAPI_FeeSchedule(t *testing.T) {
	_, router := setupTestServer(t)
	loan := createLoanAndDraw(t, router)

	var entries []accrual.FeeScheduleEntry
	doJSON(t, router, "GET", fmt.Sprintf("/loans/%s/schedule?months=13", loan.ID), nil, http.StatusOK, &entries)
	if len(entries) != 13 {
		t.Fatalf("Expected 13 entries, got %d", len(entries))
	}
	if entries[12].RateDisplay != "3.75%" || !entries[12].IsExtension {
		t.Errorf("Expected month 13 at 3.75%% extension, got %s (ext=%v)", entries[12].RateDisplay, entries[12].IsExtension)
	}
}

func TestAPI_DrawValidation(t *testing.T) {
	_, router := setupTestServer(t)

	var loan models.Loan
	doJSON(t, router, "POST", "/loans", map[string]any{
		"project_key": "proj-9",
		"loan_amount": "50000",
	}, http.StatusCreated, &loan)

	doJSON(t, router, "POST", fmt.Sprintf("/loans/%s/draws", loan.ID), map[string]any{
		"amount": "-5",
	}, http.StatusBadRequest, nil)
}

func TestAPI_DeleteLoan(t *testing.T) {
	_, router := setupTestServer(t)
	loan := createLoanAndDraw(t, router)

	req := httptest.NewRequest("DELETE", "/loans/"+loan.ID.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", rr.Code)
	}

	doJSON(t, router, "GET", "/loans/"+loan.ID.String(), nil, http.StatusNotFound, nil)
}
