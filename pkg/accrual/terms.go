// Package accrual implements the interest-accrual and payoff engine for
// construction loans. Every function is a pure, deterministic function of
// its inputs: callers pass resolved terms, a funded-draw list and an
// evaluation date, and get back fresh ledger rows, summaries or payoff
// breakdowns. Nothing here touches storage or holds state.
package accrual

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidTerms indicates a loan record that cannot be resolved into
	// usable terms (negative rate, non-positive amount).
	ErrInvalidTerms = errors.New("invalid loan terms")
	// ErrInvalidDraw indicates a draw with a non-positive amount.
	ErrInvalidDraw = errors.New("invalid draw")
)

var daysInYear = decimal.NewFromInt(365)

// Defaults applied by ResolveTerms when the raw record leaves a field unset.
var (
	DefaultAnnualInterestRate     = decimal.NewFromFloat(0.11)
	DefaultBaseFeeRate            = decimal.NewFromFloat(0.02)
	DefaultFeeEscalationIncrement = decimal.NewFromFloat(0.0025)
	DefaultDocumentFee            = decimal.NewFromInt(1000)
)

const (
	DefaultBaseFeeMonths  = 6
	DefaultLoanTermMonths = 12
)

// LoanTerms is the canonical, fully-defaulted view of a loan record.
// Immutable once resolved; the rest of the engine takes it by value.
type LoanTerms struct {
	LoanAmount             decimal.Decimal
	AnnualInterestRate     decimal.Decimal
	BaseFeeRate            decimal.Decimal
	FeeEscalationIncrement decimal.Decimal
	BaseFeeMonths          int
	ExtensionStartMonth    int
	LoanTermMonths         int
	DocumentFee            decimal.Decimal
	MaturityDate           *time.Time
}

// TermsInput carries the raw loan-record fields. Nil pointers mean "not
// supplied" and pick up the documented defaults.
type TermsInput struct {
	LoanAmount             *decimal.Decimal
	AnnualInterestRate     *decimal.Decimal
	BaseFeeRate            *decimal.Decimal
	FeeEscalationIncrement *decimal.Decimal
	BaseFeeMonths          *int
	ExtensionStartMonth    *int
	LoanTermMonths         *int
	DocumentFee            *decimal.Decimal
	MaturityDate           *time.Time
}

// ResolveTerms normalizes a raw loan record into LoanTerms, applying
// defaults for missing fields. The extension period defaults to the month
// after the nominal loan term and is never allowed to begin before the
// base-fee period ends.
func ResolveTerms(in TermsInput) (LoanTerms, error) {
	t := LoanTerms{
		AnnualInterestRate:     DefaultAnnualInterestRate,
		BaseFeeRate:            DefaultBaseFeeRate,
		FeeEscalationIncrement: DefaultFeeEscalationIncrement,
		BaseFeeMonths:          DefaultBaseFeeMonths,
		LoanTermMonths:         DefaultLoanTermMonths,
		DocumentFee:            DefaultDocumentFee,
		MaturityDate:           in.MaturityDate,
	}

	if in.LoanAmount != nil {
		if in.LoanAmount.LessThanOrEqual(decimal.Zero) {
			return LoanTerms{}, fmt.Errorf("%w: loan amount must be positive, got %s", ErrInvalidTerms, in.LoanAmount)
		}
		t.LoanAmount = *in.LoanAmount
	}
	if in.AnnualInterestRate != nil {
		if in.AnnualInterestRate.IsNegative() {
			return LoanTerms{}, fmt.Errorf("%w: negative interest rate %s", ErrInvalidTerms, in.AnnualInterestRate)
		}
		t.AnnualInterestRate = *in.AnnualInterestRate
	}
	if in.BaseFeeRate != nil {
		if in.BaseFeeRate.IsNegative() {
			return LoanTerms{}, fmt.Errorf("%w: negative fee rate %s", ErrInvalidTerms, in.BaseFeeRate)
		}
		t.BaseFeeRate = *in.BaseFeeRate
	}
	if in.FeeEscalationIncrement != nil {
		t.FeeEscalationIncrement = *in.FeeEscalationIncrement
	}
	if in.BaseFeeMonths != nil && *in.BaseFeeMonths >= 1 {
		t.BaseFeeMonths = *in.BaseFeeMonths
	}
	if in.LoanTermMonths != nil && *in.LoanTermMonths >= 1 {
		t.LoanTermMonths = *in.LoanTermMonths
	}
	if in.DocumentFee != nil && !in.DocumentFee.IsNegative() {
		t.DocumentFee = *in.DocumentFee
	}

	t.ExtensionStartMonth = t.LoanTermMonths + 1
	if in.ExtensionStartMonth != nil && *in.ExtensionStartMonth >= 1 {
		t.ExtensionStartMonth = *in.ExtensionStartMonth
	}
	if t.ExtensionStartMonth < t.BaseFeeMonths {
		t.ExtensionStartMonth = t.BaseFeeMonths
	}

	return t, nil
}
