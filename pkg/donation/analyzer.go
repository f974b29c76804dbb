package donation

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omerasipi/Es-Selam-Banko/pkg/camt"
)

// DefaultMinimumMonthly is the monthly average below which a donor is flagged
var DefaultMinimumMonthly = decimal.RequireFromString("30.00")

// DonorSummary holds the donations of one donor
type DonorSummary struct {
	Name           string             `json:"name"`
	TotalAmount    decimal.Decimal    `json:"totalAmount"`
	MonthlyAverage decimal.Decimal    `json:"monthlyAverage"`
	BelowMinimum   bool               `json:"belowMinimum"`
	Donations      []camt.Transaction `json:"donations"`
}

// Analysis is the result of analyzing a set of transactions
type Analysis struct {
	Donors             []DonorSummary  `json:"donors"`
	TotalDonations     decimal.Decimal `json:"totalDonations"`
	DonorsBelowMinimum int             `json:"donorsBelowMinimum"`
	AnalyzedAt         time.Time       `json:"analyzedAt"`
}

// Analyzer computes donation analyses. It holds no state between calls.
type Analyzer struct {
	minimum decimal.Decimal
	now     func() time.Time
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithMinimumMonthly sets the minimum monthly average
func WithMinimumMonthly(amount decimal.Decimal) Option {
	return func(a *Analyzer) {
		a.minimum = amount
	}
}

// WithClock sets the clock used for AnalyzedAt
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// NewAnalyzer creates an analyzer with a 30.00 minimum
func NewAnalyzer(opts ...Option) *Analyzer {
	a := &Analyzer{
		minimum: DefaultMinimumMonthly,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Minimum returns the configured minimum monthly average
func (a *Analyzer) Minimum() decimal.Decimal {
	return a.minimum
}

// Analyze groups the credit transactions by debtor and summarizes each donor.
// Donors are sorted by name; donations keep their input order.
func (a *Analyzer) Analyze(txs []camt.Transaction) *Analysis {
	byDonor := make(map[string][]camt.Transaction)
	var names []string
	for _, tx := range txs {
		if tx.Type != camt.Credit {
			continue
		}
		if _, ok := byDonor[tx.DebtorName]; !ok {
			names = append(names, tx.DebtorName)
		}
		byDonor[tx.DebtorName] = append(byDonor[tx.DebtorName], tx)
	}
	sort.Strings(names)

	analysis := &Analysis{
		Donors:         make([]DonorSummary, 0, len(names)),
		TotalDonations: decimal.Zero,
		AnalyzedAt:     a.now(),
	}
	for _, name := range names {
		s := a.summarize(name, byDonor[name])
		analysis.Donors = append(analysis.Donors, s)
		analysis.TotalDonations = analysis.TotalDonations.Add(s.TotalAmount)
		if s.BelowMinimum {
			analysis.DonorsBelowMinimum++
		}
	}
	return analysis
}

// Report analyzes the transactions dated within [from, to]. A zero bound is
// open.
func (a *Analyzer) Report(txs []camt.Transaction, from, to time.Time) *Analysis {
	return a.Analyze(FilterRange(txs, from, to))
}

// FilterRange returns the transactions whose calendar day lies within
// [from, to]. A zero bound is open.
func FilterRange(txs []camt.Transaction, from, to time.Time) []camt.Transaction {
	from, to = day(from), day(to)
	out := make([]camt.Transaction, 0, len(txs))
	for _, tx := range txs {
		d := day(tx.Date)
		if !from.IsZero() && d.Before(from) {
			continue
		}
		if !to.IsZero() && d.After(to) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func (a *Analyzer) summarize(name string, donations []camt.Transaction) DonorSummary {
	total := decimal.Zero
	for _, d := range donations {
		total = total.Add(d.Amount)
	}
	avg := MonthlyAverage(total, donations)
	return DonorSummary{
		Name:           name,
		TotalAmount:    total,
		MonthlyAverage: avg,
		BelowMinimum:   avg.LessThan(a.minimum),
		Donations:      donations,
	}
}

// MonthlyAverage divides total by the number of calendar months spanned by
// the donations, rounding half-up to two decimal places
func MonthlyAverage(total decimal.Decimal, donations []camt.Transaction) decimal.Decimal {
	if len(donations) == 0 {
		return decimal.Zero
	}
	first, last := donations[0].Date, donations[0].Date
	for _, d := range donations[1:] {
		if d.Date.Before(first) {
			first = d.Date
		}
		if d.Date.After(last) {
			last = d.Date
		}
	}
	months := MonthsSpanned(first, last)
	return total.DivRound(decimal.NewFromInt(int64(months)), 2)
}

// MonthsSpanned counts the calendar months from first to last, both included
func MonthsSpanned(first, last time.Time) int {
	return (last.Year()-first.Year())*12 + int(last.Month()) - int(first.Month()) + 1
}

func day(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
