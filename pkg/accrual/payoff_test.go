package accrual

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func payoffTestTerms(t *testing.T, maturity *time.Time) LoanTerms {
	t.Helper()
	rate := decimal.RequireFromString("0.12")
	amount := decimal.NewFromInt(100000)
	terms, err := ResolveTerms(TermsInput{
		LoanAmount:         &amount,
		AnnualInterestRate: &rate,
		MaturityDate:       maturity,
	})
	if err != nil {
		t.Fatalf("ResolveTerms failed: %v", err)
	}
	return terms
}

func TestComputePayoffConcrete(t *testing.T) {
	terms := payoffTestTerms(t, nil)
	clock := date(2024, time.January, 1)
	draws := []DrawEvent{{Amount: decimal.NewFromInt(100000), Date: clock, Sequence: 1}}

	b := ComputePayoff(terms, &clock, draws, date(2024, time.January, 31))

	if !b.AccruedInterest.Round(2).Equal(decimal.RequireFromString("986.30")) {
		t.Errorf("expected accrued interest 986.30, got %s", b.AccruedInterest.Round(2))
	}
	if !b.OriginationFee.Equal(decimal.NewFromInt(2000)) {
		t.Errorf("expected origination fee 2000, got %s", b.OriginationFee)
	}
	if !b.DocumentFee.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("expected document fee 1000, got %s", b.DocumentFee)
	}
	if !b.TotalPayoff.Round(2).Equal(decimal.RequireFromString("103986.30")) {
		t.Errorf("expected total payoff 103986.30, got %s", b.TotalPayoff.Round(2))
	}
	if b.MonthNumber != 1 || b.IsExtension {
		t.Errorf("expected month 1 at base rate, got month %d extension=%v", b.MonthNumber, b.IsExtension)
	}

	// Per diem = (principal + interest) * 0.12/365
	wantPerDiem := decimal.NewFromInt(100000).Add(b.AccruedInterest).
		Mul(decimal.RequireFromString("0.12")).Div(decimal.NewFromInt(365))
	if !b.PerDiem.Round(2).Equal(wantPerDiem.Round(2)) {
		t.Errorf("expected per diem %s, got %s", wantPerDiem.Round(2), b.PerDiem.Round(2))
	}
}

func TestComputePayoffEscalatedFee(t *testing.T) {
	terms := payoffTestTerms(t, nil)
	clock := date(2024, time.January, 1)
	draws := []DrawEvent{{Amount: decimal.NewFromInt(100000), Date: clock, Sequence: 1}}

	// Month 8 of the fee clock: base 0.02 + 2 * 0.0025.
	b := ComputePayoff(terms, &clock, draws, date(2024, time.August, 10))
	if b.MonthNumber != 8 {
		t.Fatalf("expected fee month 8, got %d", b.MonthNumber)
	}
	if !b.FeeRateInEffect.Equal(decimal.RequireFromString("0.025")) {
		t.Errorf("expected fee rate 0.025, got %s", b.FeeRateInEffect)
	}
	if !b.OriginationFee.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("expected origination fee 2500, got %s", b.OriginationFee)
	}
	if b.IsExtension {
		t.Error("month 8 should not be the extension period")
	}
}

func TestPayoffMonotonicity(t *testing.T) {
	terms := payoffTestTerms(t, nil)
	clock := date(2024, time.January, 1)
	draws := []DrawEvent{
		{Amount: decimal.NewFromInt(40000), Date: date(2024, time.January, 1), Sequence: 1},
		{Amount: decimal.NewFromInt(60000), Date: date(2024, time.March, 10), Sequence: 2},
	}

	prev := ComputePayoff(terms, &clock, draws, date(2024, time.April, 1)).TotalPayoff
	for _, d := range []time.Time{
		date(2024, time.May, 1),
		date(2024, time.July, 15),
		date(2024, time.October, 1),
		date(2025, time.March, 1),
	} {
		cur := ComputePayoff(terms, &clock, draws, d).TotalPayoff
		if cur.LessThan(prev) {
			t.Errorf("payoff decreased over time at %s: %s < %s", d.Format("2006-01-02"), cur, prev)
		}
		prev = cur
	}
}

func TestProjectionMatchesDirectEvaluation(t *testing.T) {
	terms := payoffTestTerms(t, nil)
	clock := date(2024, time.January, 1)
	draws := []DrawEvent{
		{Amount: decimal.NewFromInt(30000), Date: date(2024, time.January, 1), Sequence: 1},
		{Amount: decimal.NewFromInt(70000), Date: date(2024, time.February, 20), Sequence: 2},
	}

	for _, target := range []time.Time{
		date(2024, time.January, 10),
		date(2024, time.June, 30),
		date(2025, time.February, 1),
	} {
		direct := ComputePayoff(terms, &clock, draws, target)
		projected := ProjectPayoff(terms, &clock, draws, target)
		if !projected.TotalPayoff.Equal(direct.TotalPayoff) ||
			!projected.AccruedInterest.Equal(direct.AccruedInterest) ||
			!projected.OriginationFee.Equal(direct.OriginationFee) ||
			projected.MonthNumber != direct.MonthNumber {
			t.Errorf("projection at %s disagrees with direct evaluation: %+v vs %+v",
				target.Format("2006-01-02"), projected, direct)
		}
	}
}

func TestPayoffNoFeeClock(t *testing.T) {
	terms := payoffTestTerms(t, nil)

	// No funded draws and no clock: base rate, nothing accrued.
	b := ComputePayoff(terms, nil, nil, date(2024, time.June, 1))
	if !b.Principal.IsZero() || !b.AccruedInterest.IsZero() {
		t.Errorf("expected zero principal and interest, got %s / %s", b.Principal, b.AccruedInterest)
	}
	if b.MonthNumber != 1 {
		t.Errorf("expected fallback month 1, got %d", b.MonthNumber)
	}
	if !b.FeeRateInEffect.Equal(decimal.RequireFromString("0.02")) {
		t.Errorf("expected base fee rate, got %s", b.FeeRateInEffect)
	}
	// Document fee still applies to the quote.
	if !b.TotalPayoff.Equal(terms.DocumentFee) {
		t.Errorf("expected total payoff %s, got %s", terms.DocumentFee, b.TotalPayoff)
	}
}

func TestPayoffUrgency(t *testing.T) {
	maturity := date(2024, time.December, 31)
	terms := payoffTestTerms(t, &maturity)
	clock := date(2024, time.January, 1)
	draws := []DrawEvent{{Amount: decimal.NewFromInt(10000), Date: clock, Sequence: 1}}

	tests := []struct {
		eval time.Time
		want Urgency
	}{
		{date(2024, time.June, 1), UrgencyNormal},
		{date(2024, time.November, 5), UrgencyInfo},     // 56 days out
		{date(2024, time.December, 15), UrgencyWarning}, // 16 days out
		{date(2024, time.December, 31), UrgencyWarning}, // maturity day
		{date(2025, time.January, 10), UrgencyCritical}, // past maturity
	}

	for _, tc := range tests {
		b := ComputePayoff(terms, &clock, draws, tc.eval)
		if b.Urgency != tc.want {
			t.Errorf("urgency at %s: expected %s, got %s", tc.eval.Format("2006-01-02"), tc.want, b.Urgency)
		}
	}

	b := ComputePayoff(terms, &clock, draws, date(2025, time.January, 10))
	if b.DaysToMaturity == nil || *b.DaysToMaturity != -10 {
		t.Errorf("expected days to maturity -10 past maturity, got %v", b.DaysToMaturity)
	}
}

func TestPayoffNoMaturityIsNormal(t *testing.T) {
	terms := payoffTestTerms(t, nil)
	clock := date(2024, time.January, 1)

	b := ComputePayoff(terms, &clock, nil, date(2026, time.January, 1))
	if b.Urgency != UrgencyNormal {
		t.Errorf("expected normal urgency without a maturity date, got %s", b.Urgency)
	}
	if b.DaysToMaturity != nil {
		t.Errorf("expected nil days to maturity, got %d", *b.DaysToMaturity)
	}
}
