package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

type CountItem struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type MonthlyCount struct {
	Year        int     `json:"year"`
	Month       int     `json:"month"`
	Count       int     `json:"count"`
	TotalAmount float64 `json:"total_amount"`
}

type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// countItems turns a key->count map into a slice ordered by key.
func countItems(m map[string]int) []CountItem {
	out := make([]CountItem, 0, len(m))
	for k, v := range m {
		out = append(out, CountItem{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

type monthKey struct{ year, month int }

type monthAcc struct {
	count int
	total decimal.Decimal
}

func monthlyCounts(acc map[monthKey]*monthAcc) []MonthlyCount {
	out := make([]MonthlyCount, 0, len(acc))
	for k, v := range acc {
		out = append(out, MonthlyCount{Year: k.year, Month: k.month, Count: v.count, TotalAmount: v.total.Round(2).InexactFloat64()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// sixMonthsBefore returns the lower bound of the monthly breakdown window.
func sixMonthsBefore(now time.Time) time.Time {
	return now.AddDate(0, -6, 0)
}

func percentage(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part)).Mul(hundred).Div(decimal.NewFromInt(int64(whole))).Round(2).InexactFloat64()
}

func average(total decimal.Decimal, n int) float64 {
	if n == 0 {
		return 0
	}
	return total.Div(decimal.NewFromInt(int64(n))).Round(2).InexactFloat64()
}

type CustomerStats struct {
	Total       int         `json:"total"`
	NewThisWeek int         `json:"new_this_week"`
	ByStatus    []CountItem `json:"by_status"`
	BySource    []CountItem `json:"by_source"`
}

func ComputeCustomerStats(customers []Customer, now time.Time) CustomerStats {
	weekAgo := now.AddDate(0, 0, -7)
	status := map[string]int{}
	source := map[string]int{}
	stats := CustomerStats{Total: len(customers)}
	for _, c := range customers {
		status[string(c.Status)]++
		source[string(c.Source)]++
		if !c.CreatedAt.Before(weekAgo) {
			stats.NewThisWeek++
		}
	}
	stats.ByStatus = countItems(status)
	stats.BySource = countItems(source)
	return stats
}

type ProposalStats struct {
	ByStatus       []CountItem    `json:"by_status"`
	Monthly        []MonthlyCount `json:"monthly"`
	AcceptanceRate float64        `json:"acceptance_rate"`
	TotalAmount    float64        `json:"total_amount"`
	AverageAmount  float64        `json:"average_amount"`
}

// ComputeProposalStats aggregates proposals. The acceptance rate is accepted over every
// proposal that reached the customer (sent, negotiating, accepted, rejected).
func ComputeProposalStats(proposals []Proposal, now time.Time) ProposalStats {
	status := map[string]int{}
	months := map[monthKey]*monthAcc{}
	since := sixMonthsBefore(now)
	total := decimal.Zero
	decided, accepted := 0, 0
	for _, p := range proposals {
		status[string(p.Status)]++
		grand := grandTotal(p.Items, p.Discount)
		total = total.Add(grand)
		switch p.Status {
		case ProposalAccepted:
			accepted++
			decided++
		case ProposalSent, ProposalNegotiating, ProposalRejected:
			decided++
		}
		if !p.CreatedAt.Before(since) {
			k := monthKey{p.CreatedAt.Year(), int(p.CreatedAt.Month())}
			if months[k] == nil {
				months[k] = &monthAcc{}
			}
			months[k].count++
			months[k].total = months[k].total.Add(grand)
		}
	}
	return ProposalStats{
		ByStatus:       countItems(status),
		Monthly:        monthlyCounts(months),
		AcceptanceRate: percentage(accepted, decided),
		TotalAmount:    total.Round(2).InexactFloat64(),
		AverageAmount:  average(total, len(proposals)),
	}
}

type InvoiceStats struct {
	ByStatus           []CountItem    `json:"by_status"`
	Monthly            []MonthlyCount `json:"monthly"`
	PaidPercentage     float64        `json:"paid_percentage"`
	PartialPercentage  float64        `json:"partial_percentage"`
	OverduePercentage  float64        `json:"overdue_percentage"`
	TotalAmount        float64        `json:"total_amount"`
	AverageAmount      float64        `json:"average_amount"`
	AveragePaymentDays int            `json:"average_payment_days"`
}

// ComputeInvoiceStats aggregates invoices using their derived status at now. Payment days
// run from the issue date to the latest payment of each paid invoice, rounded up per invoice.
func ComputeInvoiceStats(invoices []Invoice, now time.Time) InvoiceStats {
	status := map[string]int{}
	months := map[monthKey]*monthAcc{}
	since := sixMonthsBefore(now)
	total := decimal.Zero
	paid, partial, overdue := 0, 0, 0
	paymentDays, paidWithPayments := 0, 0
	for i := range invoices {
		inv := &invoices[i]
		st := inv.Status(now)
		status[string(st)]++
		grand := grandTotal(inv.Items, inv.Discount)
		total = total.Add(grand)
		switch st {
		case InvoicePaid:
			paid++
			if last, ok := latestPayment(inv.Payments); ok {
				paymentDays += ceilDays(last.Sub(inv.IssueDate))
				paidWithPayments++
			}
		case InvoicePartiallyPaid:
			partial++
		case InvoiceOverdue:
			overdue++
		}
		if !inv.CreatedAt.Before(since) {
			k := monthKey{inv.CreatedAt.Year(), int(inv.CreatedAt.Month())}
			if months[k] == nil {
				months[k] = &monthAcc{}
			}
			months[k].count++
			months[k].total = months[k].total.Add(grand)
		}
	}
	avgDays := 0
	if paidWithPayments > 0 {
		avgDays = int(decimal.NewFromInt(int64(paymentDays)).Div(decimal.NewFromInt(int64(paidWithPayments))).Round(0).IntPart())
	}
	return InvoiceStats{
		ByStatus:           countItems(status),
		Monthly:            monthlyCounts(months),
		PaidPercentage:     percentage(paid, len(invoices)),
		PartialPercentage:  percentage(partial, len(invoices)),
		OverduePercentage:  percentage(overdue, len(invoices)),
		TotalAmount:        total.Round(2).InexactFloat64(),
		AverageAmount:      average(total, len(invoices)),
		AveragePaymentDays: avgDays,
	}
}

func latestPayment(payments []Payment) (time.Time, bool) {
	var last time.Time
	for _, p := range payments {
		if p.Date.After(last) {
			last = p.Date
		}
	}
	return last, !last.IsZero()
}

func ceilDays(d time.Duration) int {
	if d < 0 {
		d = -d
	}
	days := int(d / (24 * time.Hour))
	if d%(24*time.Hour) != 0 {
		days++
	}
	return days
}

type EventStats struct {
	Total    int          `json:"total"`
	ByType   []CountItem  `json:"by_type"`
	ByStatus []CountItem  `json:"by_status"`
	ByDate   []DailyCount `json:"by_date"`
}

// ComputeEventStats aggregates events; the per-day breakdown covers events starting in the
// last 30 days (and later).
func ComputeEventStats(events []Event, now time.Time) EventStats {
	types := map[string]int{}
	status := map[string]int{}
	days := map[string]int{}
	since := now.AddDate(0, 0, -30)
	for _, e := range events {
		types[string(e.Type)]++
		status[string(e.Status)]++
		if !e.StartDate.Before(since) {
			days[e.StartDate.Format("2006-01-02")]++
		}
	}
	byDate := make([]DailyCount, 0, len(days))
	for d, n := range days {
		byDate = append(byDate, DailyCount{Date: d, Count: n})
	}
	sort.Slice(byDate, func(i, j int) bool { return byDate[i].Date < byDate[j].Date })
	return EventStats{
		Total:    len(events),
		ByType:   countItems(types),
		ByStatus: countItems(status),
		ByDate:   byDate,
	}
}
