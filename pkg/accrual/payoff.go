package accrual

import (
	"time"

	"github.com/shopspring/decimal"
)

// Urgency classifies how close an evaluation date sits to maturity. It
// drives display only, never computation.
type Urgency string

const (
	UrgencyCritical Urgency = "critical" // past maturity
	UrgencyWarning  Urgency = "warning"  // within 30 days
	UrgencyInfo     Urgency = "info"     // within 60 days
	UrgencyNormal   Urgency = "normal"
)

// PayoffBreakdown is the full dollar accounting required to retire the loan
// as of EvaluationDate.
type PayoffBreakdown struct {
	EvaluationDate  time.Time       `json:"evaluation_date"`
	Principal       decimal.Decimal `json:"principal"`
	AccruedInterest decimal.Decimal `json:"accrued_interest"`
	OriginationFee  decimal.Decimal `json:"origination_fee"`
	DocumentFee     decimal.Decimal `json:"document_fee"`
	TotalPayoff     decimal.Decimal `json:"total_payoff"`
	PerDiem         decimal.Decimal `json:"per_diem"` // cost of one more day at the current balance
	FeeRateInEffect decimal.Decimal `json:"fee_rate_in_effect"`
	MonthNumber     int             `json:"month_number"`
	IsExtension     bool            `json:"is_extension"`
	DaysToMaturity  *int            `json:"days_to_maturity,omitempty"`
	Urgency         Urgency         `json:"urgency"`
}

// ComputePayoff prices a full payoff as of evalDate: principal and accrued
// interest from the ledger, the origination fee at the fee rate in effect
// for the current fee-clock month, and the fixed document fee.
func ComputePayoff(terms LoanTerms, feeClockStart *time.Time, draws []DrawEvent, evalDate time.Time) PayoffBreakdown {
	ledger := BuildLedger(terms, feeClockStart, draws, evalDate, nil)
	sum := Summarize(ledger)

	month := 1
	if feeClockStart != nil {
		month = MonthNumber(*feeClockStart, evalDate)
	}
	fee := FeeRateAtMonth(terms, month)

	originationFee := sum.Principal.Mul(fee.Rate)
	total := sum.Principal.Add(sum.TotalInterest).Add(originationFee).Add(terms.DocumentFee)
	perDiem := sum.Principal.Add(sum.TotalInterest).Mul(terms.AnnualInterestRate).Div(daysInYear)

	b := PayoffBreakdown{
		EvaluationDate:  evalDate,
		Principal:       sum.Principal,
		AccruedInterest: sum.TotalInterest,
		OriginationFee:  originationFee,
		DocumentFee:     terms.DocumentFee,
		TotalPayoff:     total,
		PerDiem:         perDiem,
		FeeRateInEffect: fee.Rate,
		MonthNumber:     month,
		IsExtension:     fee.IsExtension,
		Urgency:         UrgencyNormal,
	}

	if terms.MaturityDate != nil {
		days := wholeDaysBetween(evalDate, *terms.MaturityDate)
		if terms.MaturityDate.Before(evalDate) {
			days = -wholeDaysBetween(*terms.MaturityDate, evalDate)
		}
		b.DaysToMaturity = &days
		b.Urgency = classifyUrgency(days)
	}
	return b
}

// ProjectPayoff re-prices the payoff as of targetDate, for forward
// projections and what-if dates. It is exactly equivalent to calling
// ComputePayoff at targetDate with the same terms and draws.
func ProjectPayoff(terms LoanTerms, feeClockStart *time.Time, draws []DrawEvent, targetDate time.Time) PayoffBreakdown {
	return ComputePayoff(terms, feeClockStart, draws, targetDate)
}

func classifyUrgency(daysToMaturity int) Urgency {
	switch {
	case daysToMaturity < 0:
		return UrgencyCritical
	case daysToMaturity <= 30:
		return UrgencyWarning
	case daysToMaturity <= 60:
		return UrgencyInfo
	default:
		return UrgencyNormal
	}
}
