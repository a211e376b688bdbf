package accrual

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeRate is the origination/finance fee rate in effect for a given month
// of the fee clock.
type FeeRate struct {
	Rate        decimal.Decimal `json:"rate"`
	IsExtension bool            `json:"is_extension"`
}

// FeeScheduleEntry is one month of the forward fee schedule, for display.
type FeeScheduleEntry struct {
	Month       int             `json:"month"`
	Date        time.Time       `json:"date"`
	Rate        decimal.Decimal `json:"rate"`
	RateDisplay string          `json:"rate_display"`
	IsExtension bool            `json:"is_extension"`
}

// FeeRateAtMonth returns the fee rate for a 1-indexed fee-clock month.
// Months at or below the base period carry the base rate; past it the rate
// climbs by the escalation increment each month, with no upper cap. The
// extension flag trips once the configured extension month is reached.
func FeeRateAtMonth(terms LoanTerms, month int) FeeRate {
	if month < 1 {
		month = 1
	}
	rate := terms.BaseFeeRate
	if month > terms.BaseFeeMonths {
		elapsed := int64(month - terms.BaseFeeMonths)
		rate = terms.BaseFeeRate.Add(terms.FeeEscalationIncrement.Mul(decimal.NewFromInt(elapsed)))
	}
	return FeeRate{
		Rate:        rate,
		IsExtension: month >= terms.ExtensionStartMonth,
	}
}

// GenerateSchedule enumerates the fee schedule for months 1..horizonMonths.
// Each entry is dated at the fee-clock anniversary for that month.
func GenerateSchedule(terms LoanTerms, horizonMonths int, feeClockStart time.Time) []FeeScheduleEntry {
	entries := make([]FeeScheduleEntry, 0, horizonMonths)
	for m := 1; m <= horizonMonths; m++ {
		fr := FeeRateAtMonth(terms, m)
		entries = append(entries, FeeScheduleEntry{
			Month:       m,
			Date:        feeClockStart.AddDate(0, m, 0),
			Rate:        fr.Rate,
			RateDisplay: fr.Rate.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%",
			IsExtension: fr.IsExtension,
		})
	}
	return entries
}

// MonthNumber returns the 1-indexed fee-clock month containing asOf.
// Partial months count in full: the day after the first monthly anniversary
// is already month 2. A zero clock yields month 1.
func MonthNumber(feeClockStart, asOf time.Time) int {
	if feeClockStart.IsZero() || asOf.Before(feeClockStart) {
		return 1
	}
	months := (asOf.Year()-feeClockStart.Year())*12 + int(asOf.Month()) - int(feeClockStart.Month())
	if asOf.Day() < feeClockStart.Day() {
		months--
	}
	if months < 0 {
		months = 0
	}
	return months + 1
}
