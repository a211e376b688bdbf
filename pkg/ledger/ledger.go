package ledger

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/stonebridge/drawledger/pkg/accrual"
	"github.com/stonebridge/drawledger/pkg/cache"
	"github.com/stonebridge/drawledger/pkg/models"
	"github.com/stonebridge/drawledger/pkg/store"
)

var (
	ledgerBuilds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawledger_ledger_builds_total",
		Help: "Number of accrual ledgers built.",
	})
	payoffComputations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawledger_payoff_computations_total",
		Help: "Number of payoff breakdowns computed (cache misses included).",
	})
	payoffCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drawledger_payoff_cache_hits_total",
		Help: "Number of payoff quotes served from cache.",
	})
)

// Ledger handles the business logic for loans, draws and accrual queries.
type Ledger struct {
	storage store.Storage
	cache   cache.Cache
}

// NewLedger creates a new Ledger with the given storage and quote cache.
func NewLedger(s store.Storage, c cache.Cache) *Ledger {
	return &Ledger{storage: s, cache: c}
}

// LoanParams carries the raw loan-record fields for create and update.
// Nil pointers pick up the engine defaults at resolution time; resolved
// values are what get persisted.
type LoanParams struct {
	ProjectKey          string
	LoanAmount          decimal.Decimal
	InterestRateAnnual  *decimal.Decimal
	OriginationFeePct   *decimal.Decimal
	FeeEscalationPct    *decimal.Decimal
	BaseFeeMonths       *int
	ExtensionStartMonth *int
	LoanTermMonths      *int
	DocumentFee         *decimal.Decimal
	StartDate           *time.Time
	MaturityDate        *time.Time
}

// CreateLoan validates the supplied terms, fills in defaults, and stores
// the resolved loan record.
func (l *Ledger) CreateLoan(p LoanParams) (*models.Loan, error) {
	terms, err := accrual.ResolveTerms(accrual.TermsInput{
		LoanAmount:             &p.LoanAmount,
		AnnualInterestRate:     p.InterestRateAnnual,
		BaseFeeRate:            p.OriginationFeePct,
		FeeEscalationIncrement: p.FeeEscalationPct,
		BaseFeeMonths:          p.BaseFeeMonths,
		ExtensionStartMonth:    p.ExtensionStartMonth,
		LoanTermMonths:         p.LoanTermMonths,
		DocumentFee:            p.DocumentFee,
		MaturityDate:           p.MaturityDate,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	loan := &models.Loan{
		ID:                  uuid.New(),
		ProjectKey:          p.ProjectKey,
		LoanAmount:          terms.LoanAmount,
		InterestRateAnnual:  terms.AnnualInterestRate,
		OriginationFeePct:   terms.BaseFeeRate,
		FeeEscalationPct:    terms.FeeEscalationIncrement,
		BaseFeeMonths:       terms.BaseFeeMonths,
		ExtensionStartMonth: terms.ExtensionStartMonth,
		LoanTermMonths:      terms.LoanTermMonths,
		DocumentFee:         terms.DocumentFee,
		StartDate:           p.StartDate,
		MaturityDate:        p.MaturityDate,
		Status:              models.LoanStatusActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := l.storage.CreateLoan(loan); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}
	return loan, nil
}

// GetLoan retrieves a loan by its ID.
func (l *Ledger) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return l.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (l *Ledger) GetAllLoans() ([]*models.Loan, error) {
	return l.storage.GetAllLoans()
}

// UpdateLoan re-validates the loan's terms and updates the record.
func (l *Ledger) UpdateLoan(loan *models.Loan) error {
	if _, err := accrual.ResolveTerms(accrual.TermsInput{
		LoanAmount:         &loan.LoanAmount,
		AnnualInterestRate: &loan.InterestRateAnnual,
		BaseFeeRate:        &loan.OriginationFeePct,
	}); err != nil {
		return err
	}
	loan.UpdatedAt = time.Now().UTC()
	return l.storage.UpdateLoan(loan)
}

// DeleteLoan deletes a loan and its draws.
func (l *Ledger) DeleteLoan(id uuid.UUID) error {
	return l.storage.DeleteLoan(id)
}

// AddDraw records a new pending draw request against a loan.
func (l *Ledger) AddDraw(loanID uuid.UUID, amount decimal.Decimal, requestDate time.Time) (*models.Draw, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("%w: amount must be positive, got %s", accrual.ErrInvalidDraw, amount)
	}

	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}

	existing, err := l.storage.GetDrawsForLoan(loan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to number draw: %w", err)
	}

	draw := &models.Draw{
		ID:          uuid.New(),
		LoanID:      loan.ID,
		DrawNumber:  len(existing) + 1,
		Amount:      amount,
		Status:      models.DrawStatusPending,
		RequestDate: requestDate,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.storage.CreateDraw(draw); err != nil {
		return nil, fmt.Errorf("failed to store draw: %w", err)
	}
	return draw, nil
}

// FundDraw moves a draw to funded status as of fundedDate. Funding the
// first draw starts the loan's fee clock, so the loan row is touched to
// age out any cached quotes.
func (l *Ledger) FundDraw(drawID uuid.UUID, fundedDate time.Time) (*models.Draw, error) {
	draw, err := l.storage.GetDraw(drawID)
	if err != nil {
		return nil, err
	}
	if draw.Status == models.DrawStatusFunded {
		return nil, fmt.Errorf("%w: draw #%d already funded", accrual.ErrInvalidDraw, draw.DrawNumber)
	}

	draw.Status = models.DrawStatusFunded
	draw.FundedDate = &fundedDate
	if err := l.storage.UpdateDraw(draw); err != nil {
		return nil, fmt.Errorf("failed to update draw: %w", err)
	}

	loan, err := l.storage.GetLoan(draw.LoanID)
	if err != nil {
		return nil, err
	}
	loan.UpdatedAt = time.Now().UTC()
	if err := l.storage.UpdateLoan(loan); err != nil {
		log.Printf("Warning: failed to touch loan %s after funding draw: %v", loan.ID, err)
	}

	return draw, nil
}

// GetDraws returns all draws for a loan, oldest first.
func (l *Ledger) GetDraws(loanID uuid.UUID) ([]*models.Draw, error) {
	return l.storage.GetDrawsForLoan(loanID)
}

// FeeClockStart returns the date fee escalation counts from: the loan's
// explicit start-date override if set, otherwise the funded date of the
// earliest funded draw. Nil means the clock has not started.
func (l *Ledger) FeeClockStart(loan *models.Loan, funded []*models.Draw) *time.Time {
	if loan.StartDate != nil {
		return loan.StartDate
	}
	var earliest *time.Time
	for _, d := range funded {
		if d.FundedDate == nil {
			continue
		}
		if earliest == nil || d.FundedDate.Before(*earliest) {
			earliest = d.FundedDate
		}
	}
	return earliest
}

// LedgerRows builds the accrual ledger for a loan as of asOf, with an
// optional trailing payoff row.
func (l *Ledger) LedgerRows(loanID uuid.UUID, asOf time.Time, payoffDate *time.Time) ([]accrual.LedgerRow, error) {
	terms, clock, events, err := l.accrualInputs(loanID)
	if err != nil {
		return nil, err
	}
	ledgerBuilds.Inc()
	return accrual.BuildLedger(terms, clock, events, asOf, payoffDate), nil
}

// Summarize reduces the loan's ledger as of asOf into headline totals.
func (l *Ledger) Summarize(loanID uuid.UUID, asOf time.Time) (accrual.Summary, error) {
	rows, err := l.LedgerRows(loanID, asOf, nil)
	if err != nil {
		return accrual.Summary{}, err
	}
	return accrual.Summarize(rows), nil
}

// Payoff computes the payoff breakdown for a loan as of evalDate. Quotes
// are cached keyed by loan, date and the loan's updated-at stamp; any
// mutation to the loan or its draws touches the loan row and so retires
// the key.
func (l *Ledger) Payoff(loanID uuid.UUID, evalDate time.Time) (accrual.PayoffBreakdown, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return accrual.PayoffBreakdown{}, err
	}

	key := fmt.Sprintf("payoff:%s:%s:%d", loan.ID, evalDate.Format("2006-01-02"), loan.UpdatedAt.UnixNano())
	if cached, ok := l.cache.Get(key); ok {
		var b accrual.PayoffBreakdown
		if err := json.Unmarshal([]byte(cached), &b); err == nil {
			payoffCacheHits.Inc()
			return b, nil
		}
	}

	terms, clock, events, err := l.accrualInputsForLoan(loan)
	if err != nil {
		return accrual.PayoffBreakdown{}, err
	}

	payoffComputations.Inc()
	breakdown := accrual.ComputePayoff(terms, clock, events, evalDate)

	if encoded, err := json.Marshal(breakdown); err == nil {
		if err := l.cache.Set(key, string(encoded)); err != nil {
			log.Printf("Warning: failed to cache payoff quote for loan %s: %v", loan.ID, err)
		}
	}
	return breakdown, nil
}

// FeeSchedule enumerates the forward fee schedule for display. Before the
// fee clock starts, the schedule is anchored at the loan's creation date.
func (l *Ledger) FeeSchedule(loanID uuid.UUID, horizonMonths int) ([]accrual.FeeScheduleEntry, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}
	funded, err := l.storage.GetFundedDrawsForLoan(loan.ID)
	if err != nil {
		return nil, err
	}

	anchor := loan.CreatedAt
	if clock := l.FeeClockStart(loan, funded); clock != nil {
		anchor = *clock
	}
	return accrual.GenerateSchedule(termsFromLoan(loan), horizonMonths, anchor), nil
}

func (l *Ledger) accrualInputs(loanID uuid.UUID) (accrual.LoanTerms, *time.Time, []accrual.DrawEvent, error) {
	loan, err := l.storage.GetLoan(loanID)
	if err != nil {
		return accrual.LoanTerms{}, nil, nil, err
	}
	return l.accrualInputsForLoan(loan)
}

func (l *Ledger) accrualInputsForLoan(loan *models.Loan) (accrual.LoanTerms, *time.Time, []accrual.DrawEvent, error) {
	funded, err := l.storage.GetFundedDrawsForLoan(loan.ID)
	if err != nil {
		return accrual.LoanTerms{}, nil, nil, err
	}

	events := make([]accrual.DrawEvent, 0, len(funded))
	for _, d := range funded {
		if d.FundedDate == nil {
			continue
		}
		events = append(events, accrual.DrawEvent{
			Amount:   d.Amount,
			Date:     *d.FundedDate,
			Sequence: d.DrawNumber,
		})
	}

	return termsFromLoan(loan), l.FeeClockStart(loan, funded), events, nil
}

// termsFromLoan rehydrates engine terms from the resolved values on the
// loan record.
func termsFromLoan(loan *models.Loan) accrual.LoanTerms {
	return accrual.LoanTerms{
		LoanAmount:             loan.LoanAmount,
		AnnualInterestRate:     loan.InterestRateAnnual,
		BaseFeeRate:            loan.OriginationFeePct,
		FeeEscalationIncrement: loan.FeeEscalationPct,
		BaseFeeMonths:          loan.BaseFeeMonths,
		ExtensionStartMonth:    loan.ExtensionStartMonth,
		LoanTermMonths:         loan.LoanTermMonths,
		DocumentFee:            loan.DocumentFee,
		MaturityDate:           loan.MaturityDate,
	}
}
