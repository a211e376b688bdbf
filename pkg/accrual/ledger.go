package accrual

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// RowKind classifies a ledger row.
type RowKind string

const (
	RowDraw          RowKind = "draw"
	RowMonthBoundary RowKind = "month_boundary"
	RowAsOf          RowKind = "as_of"
	RowPayoff        RowKind = "payoff"
)

// DrawEvent is a funded disbursement as the engine sees it. Sequence is the
// display ordinal and tie-breaker for same-day draws; it plays no part in
// the arithmetic.
type DrawEvent struct {
	Amount   decimal.Decimal
	Date     time.Time
	Sequence int
}

// LedgerRow is one line of the accrual ledger. Rows are generated fresh on
// every query and never persisted.
type LedgerRow struct {
	Date               time.Time       `json:"date"`
	Kind               RowKind         `json:"kind"`
	Description        string          `json:"description"`
	DrawAmount         decimal.Decimal `json:"draw_amount"`
	Days               int             `json:"days"` // whole days since the previous row
	Interest           decimal.Decimal `json:"interest"`
	CumulativeInterest decimal.Decimal `json:"cumulative_interest"`
	Principal          decimal.Decimal `json:"principal"`
	Balance            decimal.Decimal `json:"balance"`
}

// event kinds carry a merge priority so that a draw landing on a month
// boundary is booked before the boundary row, and the as-of/payoff rows
// always close the ledger.
type event struct {
	date     time.Time
	kind     RowKind
	priority int
	draw     *DrawEvent
	month    int // boundary rows only
}

// BuildLedger reconstructs the day-by-day accrual timeline for a loan:
// one row per funded draw, one per fee-clock month boundary, a closing
// as-of row, and optionally a payoff row beyond it.
//
// Interest is simple daily interest on outstanding principal only
// (principal × APR/365 × days); accrued interest never itself accrues.
// Draws dated after asOf are treated as not yet funded and excluded.
// With no fee clock and no draws there is nothing to anchor month
// boundaries to, so none are emitted.
func BuildLedger(terms LoanTerms, feeClockStart *time.Time, draws []DrawEvent, asOf time.Time, payoffDate *time.Time) []LedgerRow {
	funded := make([]DrawEvent, 0, len(draws))
	for _, d := range draws {
		if !d.Date.After(asOf) {
			funded = append(funded, d)
		}
	}
	sort.SliceStable(funded, func(i, j int) bool {
		if funded[i].Date.Equal(funded[j].Date) {
			return funded[i].Sequence < funded[j].Sequence
		}
		return funded[i].Date.Before(funded[j].Date)
	})

	events := make([]event, 0, len(funded)+16)
	for i := range funded {
		events = append(events, event{date: funded[i].Date, kind: RowDraw, priority: 0, draw: &funded[i]})
	}

	// Month boundaries are fee-clock anniversaries. Fall back to the first
	// funded draw when no clock has started; a boundary landing exactly on
	// asOf is covered by the as-of row instead.
	var clock time.Time
	switch {
	case feeClockStart != nil:
		clock = *feeClockStart
	case len(funded) > 0:
		clock = funded[0].Date
	}
	if !clock.IsZero() {
		for m := 1; ; m++ {
			boundary := clock.AddDate(0, m, 0)
			if !boundary.Before(asOf) {
				break
			}
			events = append(events, event{date: boundary, kind: RowMonthBoundary, priority: 1, month: m})
		}
	}

	events = append(events, event{date: asOf, kind: RowAsOf, priority: 2})
	if payoffDate != nil && !payoffDate.Equal(asOf) {
		events = append(events, event{date: *payoffDate, kind: RowPayoff, priority: 3})
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].date.Equal(events[j].date) {
			return events[i].priority < events[j].priority
		}
		return events[i].date.Before(events[j].date)
	})

	dailyRate := terms.AnnualInterestRate.Div(daysInYear)

	rows := make([]LedgerRow, 0, len(events))
	principal := decimal.Zero
	cumInterest := decimal.Zero
	prev := events[0].date

	for _, e := range events {
		days := wholeDaysBetween(prev, e.date)
		interest := principal.Mul(dailyRate).Mul(decimal.NewFromInt(int64(days)))
		cumInterest = cumInterest.Add(interest)

		row := LedgerRow{
			Date:       e.date,
			Kind:       e.kind,
			DrawAmount: decimal.Zero,
			Days:       days,
			Interest:   interest,
		}
		switch e.kind {
		case RowDraw:
			principal = principal.Add(e.draw.Amount)
			row.DrawAmount = e.draw.Amount
			row.Description = fmt.Sprintf("Draw #%d", e.draw.Sequence)
		case RowMonthBoundary:
			row.Description = fmt.Sprintf("Month %d", e.month)
		case RowAsOf:
			row.Description = "Current"
		case RowPayoff:
			row.Description = "Payoff"
		}
		row.CumulativeInterest = cumInterest
		row.Principal = principal
		row.Balance = principal.Add(cumInterest)

		rows = append(rows, row)
		prev = e.date
	}

	return rows
}

// wholeDaysBetween counts midnight-to-midnight days from a to b, ignoring
// any time-of-day component. Negative spans clamp to zero.
func wholeDaysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(bd.Sub(ad).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
