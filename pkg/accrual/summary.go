package accrual

import "github.com/shopspring/decimal"

// Summary is the reduction of a ledger into headline totals.
type Summary struct {
	Principal            decimal.Decimal `json:"principal"`
	TotalInterest        decimal.Decimal `json:"total_interest"`
	TotalBalance         decimal.Decimal `json:"total_balance"`
	TotalDays            int             `json:"total_days"`
	TotalDraws           int             `json:"total_draws"`
	MaxBalance           decimal.Decimal `json:"max_balance"`
	AverageDailyInterest decimal.Decimal `json:"average_daily_interest"`
}

// Summarize reduces a ledger to totals. An empty ledger yields an all-zero
// summary, and a zero-day ledger reports zero average daily interest rather
// than failing.
func Summarize(rows []LedgerRow) Summary {
	s := Summary{
		Principal:            decimal.Zero,
		TotalInterest:        decimal.Zero,
		TotalBalance:         decimal.Zero,
		MaxBalance:           decimal.Zero,
		AverageDailyInterest: decimal.Zero,
	}
	if len(rows) == 0 {
		return s
	}

	last := rows[len(rows)-1]
	s.Principal = last.Principal
	s.TotalInterest = last.CumulativeInterest
	s.TotalBalance = last.Balance

	for _, r := range rows {
		s.TotalDays += r.Days
		if r.Kind == RowDraw {
			s.TotalDraws++
		}
		if r.Balance.GreaterThan(s.MaxBalance) {
			s.MaxBalance = r.Balance
		}
	}

	if s.TotalDays > 0 {
		s.AverageDailyInterest = s.TotalInterest.Div(decimal.NewFromInt(int64(s.TotalDays)))
	}
	return s
}
