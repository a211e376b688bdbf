package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/stonebridge/drawledger/pkg/accrual"
	"github.com/stonebridge/drawledger/pkg/cache"
	"github.com/stonebridge/drawledger/pkg/config"
	"github.com/stonebridge/drawledger/pkg/ledger"
	"github.com/stonebridge/drawledger/pkg/models"
	"github.com/stonebridge/drawledger/pkg/store"
)

const dateLayout = "2006-01-02"

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage // Keep a reference to the storage to close it
}

func NewServer(s store.Storage, c cache.Cache) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, c),
		storage: s,
	}
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}", s.updateLoanHandler).Methods("PUT")
	router.HandleFunc("/loans/{id}", s.deleteLoanHandler).Methods("DELETE")

	router.HandleFunc("/loans/{id}/draws", s.listDrawsHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/draws", s.createDrawHandler).Methods("POST")
	router.HandleFunc("/draws/{id}/fund", s.fundDrawHandler).Methods("POST")

	router.HandleFunc("/loans/{id}/ledger", s.ledgerHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/summary", s.summaryHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/payoff", s.payoffHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/schedule", s.scheduleHandler).Methods("GET")

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, accrual.ErrInvalidTerms), errors.Is(err, accrual.ErrInvalidDraw):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(mux.Vars(r)["id"])
}

// parseDateParam reads a YYYY-MM-DD query parameter, returning fallback
// when absent.
func parseDateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date %q, want YYYY-MM-DD", name, raw)
	}
	return d, nil
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

type loanRequest struct {
	ProjectKey          string           `json:"project_key"`
	LoanAmount          decimal.Decimal  `json:"loan_amount"`
	InterestRateAnnual  *decimal.Decimal `json:"interest_rate_annual,omitempty"`
	OriginationFeePct   *decimal.Decimal `json:"origination_fee_pct,omitempty"`
	FeeEscalationPct    *decimal.Decimal `json:"fee_escalation_pct,omitempty"`
	BaseFeeMonths       *int             `json:"base_fee_months,omitempty"`
	ExtensionStartMonth *int             `json:"extension_start_month,omitempty"`
	LoanTermMonths      *int             `json:"loan_term_months,omitempty"`
	DocumentFee         *decimal.Decimal `json:"document_fee,omitempty"`
	StartDate           *string          `json:"start_date,omitempty"`
	MaturityDate        *string          `json:"maturity_date,omitempty"`
}

func (req *loanRequest) params() (ledger.LoanParams, error) {
	p := ledger.LoanParams{
		ProjectKey:          req.ProjectKey,
		LoanAmount:          req.LoanAmount,
		InterestRateAnnual:  req.InterestRateAnnual,
		OriginationFeePct:   req.OriginationFeePct,
		FeeEscalationPct:    req.FeeEscalationPct,
		BaseFeeMonths:       req.BaseFeeMonths,
		ExtensionStartMonth: req.ExtensionStartMonth,
		LoanTermMonths:      req.LoanTermMonths,
		DocumentFee:         req.DocumentFee,
	}
	if req.StartDate != nil {
		d, err := time.Parse(dateLayout, *req.StartDate)
		if err != nil {
			return p, fmt.Errorf("invalid start_date %q", *req.StartDate)
		}
		p.StartDate = &d
	}
	if req.MaturityDate != nil {
		d, err := time.Parse(dateLayout, *req.MaturityDate)
		if err != nil {
			return p, fmt.Errorf("invalid maturity_date %q", *req.MaturityDate)
		}
		p.MaturityDate = &d
	}
	return p, nil
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	params, err := req.params()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.CreateLoan(params)
	if err != nil {
		log.Printf("Error creating loan: %v\n", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, loan)
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	loan, err := s.ledger.GetLoan(loanID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := s.ledger.GetAllLoans()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) updateLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	var loan models.Loan
	if err := json.NewDecoder(r.Body).Decode(&loan); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	loan.ID = loanID // Ensure ID from URL is used

	if err := s.ledger.UpdateLoan(&loan); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) deleteLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	if err := s.ledger.DeleteLoan(loanID); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listDrawsHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	draws, err := s.ledger.GetDraws(loanID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, draws)
}

func (s *Server) createDrawHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Amount      decimal.Decimal `json:"amount"`
		RequestDate string          `json:"request_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	requestDate := today()
	if req.RequestDate != "" {
		requestDate, err = time.Parse(dateLayout, req.RequestDate)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid request_date %q", req.RequestDate), http.StatusBadRequest)
			return
		}
	}

	draw, err := s.ledger.AddDraw(loanID, req.Amount, requestDate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, draw)
}

func (s *Server) fundDrawHandler(w http.ResponseWriter, r *http.Request) {
	drawID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid draw ID", http.StatusBadRequest)
		return
	}

	var req struct {
		FundedDate string `json:"funded_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fundedDate := today()
	if req.FundedDate != "" {
		fundedDate, err = time.Parse(dateLayout, req.FundedDate)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid funded_date %q", req.FundedDate), http.StatusBadRequest)
			return
		}
	}

	draw, err := s.ledger.FundDraw(drawID, fundedDate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, draw)
}

func (s *Server) ledgerHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	asOf, err := parseDateParam(r, "as_of", today())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var payoffDate *time.Time
	if pd, err := parseDateParam(r, "payoff_date", time.Time{}); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	} else if !pd.IsZero() {
		payoffDate = &pd
	}

	rows, err := s.ledger.LedgerRows(loanID, asOf, payoffDate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) summaryHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	asOf, err := parseDateParam(r, "as_of", today())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := s.ledger.Summarize(loanID, asOf)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) payoffHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	evalDate, err := parseDateParam(r, "date", today())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	breakdown, err := s.ledger.Payoff(loanID, evalDate)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, breakdown)
}

func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseID(r)
	if err != nil {
		http.Error(w, "Invalid loan ID", http.StatusBadRequest)
		return
	}

	months := 24
	if raw := r.URL.Query().Get("months"); raw != "" {
		months, err = strconv.Atoi(raw)
		if err != nil || months < 1 {
			http.Error(w, "months must be a positive integer", http.StatusBadRequest)
			return
		}
	}

	entries, err := s.ledger.FeeSchedule(loanID, months)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sqliteStore, err := store.NewSQLiteStore(cfg.Server.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	var quoteCache cache.Cache
	if cfg.Redis.Addr != "" {
		quoteCache = cache.NewRedisCache(cfg.Redis.Addr)
		log.Printf("Using redis quote cache at %s", cfg.Redis.Addr)
	} else {
		quoteCache = cache.NewMemoryCache()
	}

	server := NewServer(sqliteStore, quoteCache)

	log.Printf("Server starting on %s", cfg.Server.ListenAddr)
	log.Fatal(http.ListenAndServe(cfg.Server.ListenAddr, server.routes()))
}
