package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusPaidOff   LoanStatus = "paid_off"
	LoanStatusDefaulted LoanStatus = "defaulted"
)

type Loan struct {
	ID                  uuid.UUID       `json:"id"`
	ProjectKey          string          `json:"project_key"` // Link to external project/borrower system
	LoanAmount          decimal.Decimal `json:"loan_amount"`
	InterestRateAnnual  decimal.Decimal `json:"interest_rate_annual"` // APR as a fraction, e.g. 0.11
	OriginationFeePct   decimal.Decimal `json:"origination_fee_pct"`  // Base fee rate as a fraction
	FeeEscalationPct    decimal.Decimal `json:"fee_escalation_pct"`   // Per-month increment once past the base period
	BaseFeeMonths       int             `json:"base_fee_months"`
	ExtensionStartMonth int             `json:"extension_start_month"`
	LoanTermMonths      int             `json:"loan_term_months"`
	DocumentFee         decimal.Decimal `json:"document_fee"`
	StartDate           *time.Time      `json:"start_date,omitempty"` // Explicit fee-clock override; usually nil
	MaturityDate        *time.Time      `json:"maturity_date,omitempty"`
	Status              LoanStatus      `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

type DrawStatus string

const (
	DrawStatusPending  DrawStatus = "pending"
	DrawStatusApproved DrawStatus = "approved"
	DrawStatusFunded   DrawStatus = "funded"
	DrawStatusRejected DrawStatus = "rejected"
)

// Draw is a disbursement of loan funds against an approved budget.
// Only funded draws accrue interest; FundedDate is nil until the draw
// reaches funded status.
type Draw struct {
	ID          uuid.UUID       `json:"id"`
	LoanID      uuid.UUID       `json:"loan_id"`
	DrawNumber  int             `json:"draw_number"` // Display ordinal within the loan
	Amount      decimal.Decimal `json:"amount"`
	Status      DrawStatus      `json:"status"`
	RequestDate time.Time       `json:"request_date"`
	FundedDate  *time.Time      `json:"funded_date,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
