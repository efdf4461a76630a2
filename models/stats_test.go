package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeCustomerStats(t *testing.T) {
	customers := []Customer{
		{Status: CustomerLead, Source: SourceWebsite, CreatedAt: testNow.Add(-time.Hour)},
		{Status: CustomerLead, Source: SourceReferral, CreatedAt: testNow.AddDate(0, 0, -6)},
		{Status: CustomerActive, Source: SourceWebsite, CreatedAt: testNow.AddDate(0, 0, -8)},
	}
	stats := ComputeCustomerStats(customers, testNow)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.NewThisWeek)
	assert.Equal(t, []CountItem{{Key: "active", Count: 1}, {Key: "lead", Count: 2}}, stats.ByStatus)
	assert.Equal(t, []CountItem{{Key: "referral", Count: 1}, {Key: "website", Count: 2}}, stats.BySource)
}

func TestComputeProposalStats(t *testing.T) {
	item := []LineItem{{Name: "a", Quantity: 1, UnitPrice: 100, TaxRate: 0}}
	proposals := []Proposal{
		{Status: ProposalDraft, Items: item, CreatedAt: testNow},
		{Status: ProposalSent, Items: item, CreatedAt: testNow},
		{Status: ProposalAccepted, Items: item, CreatedAt: testNow.AddDate(0, -1, 0)},
		{Status: ProposalRejected, Items: item, CreatedAt: testNow.AddDate(0, -1, 0)},
		{Status: ProposalAccepted, Items: item, CreatedAt: testNow.AddDate(-1, 0, 0)},
	}
	stats := ComputeProposalStats(proposals, testNow)

	// 2 accepted out of 4 that reached the customer
	assert.Equal(t, 50.0, stats.AcceptanceRate)
	assert.Equal(t, 500.0, stats.TotalAmount)
	assert.Equal(t, 100.0, stats.AverageAmount)
	assert.Equal(t, []MonthlyCount{
		{Year: 2026, Month: 9, Count: 2, TotalAmount: 200},
		{Year: 2026, Month: 10, Count: 2, TotalAmount: 200},
	}, stats.Monthly)
}

func TestComputeProposalStatsEmpty(t *testing.T) {
	stats := ComputeProposalStats(nil, testNow)
	assert.Equal(t, 0.0, stats.AcceptanceRate)
	assert.Equal(t, 0.0, stats.AverageAmount)
	assert.Empty(t, stats.ByStatus)
}

func TestComputeInvoiceStats(t *testing.T) {
	items := []LineItem{{Name: "a", Quantity: 1, UnitPrice: 100, TaxRate: 0}}
	issue := testNow.AddDate(0, 0, -10)
	invoices := []Invoice{
		{State: InvoiceSent, Items: items, IssueDate: issue, DueDate: testNow.AddDate(0, 0, 5), CreatedAt: issue,
			Payments: []Payment{{Amount: 100, Date: issue.Add(36 * time.Hour)}}},
		{State: InvoiceSent, Items: items, IssueDate: issue, DueDate: testNow.AddDate(0, 0, 5), CreatedAt: issue,
			Payments: []Payment{{Amount: 40, Date: issue}}},
		{State: InvoiceSent, Items: items, IssueDate: issue, DueDate: testNow.AddDate(0, 0, -1), CreatedAt: issue},
		{State: InvoiceDraft, Items: items, IssueDate: issue, DueDate: testNow.AddDate(0, 0, 5), CreatedAt: issue},
	}
	stats := ComputeInvoiceStats(invoices, testNow)

	assert.Equal(t, 25.0, stats.PaidPercentage)
	assert.Equal(t, 25.0, stats.PartialPercentage)
	assert.Equal(t, 25.0, stats.OverduePercentage)
	assert.Equal(t, 400.0, stats.TotalAmount)
	assert.Equal(t, 100.0, stats.AverageAmount)
	assert.Equal(t, 2, stats.AveragePaymentDays)
	assert.Equal(t, []CountItem{
		{Key: "draft", Count: 1},
		{Key: "overdue", Count: 1},
		{Key: "paid", Count: 1},
		{Key: "partially_paid", Count: 1},
	}, stats.ByStatus)
}

func TestComputeEventStats(t *testing.T) {
	events := []Event{
		{Type: EventMeeting, Status: EventPlanned, StartDate: testNow},
		{Type: EventMeeting, Status: EventCompleted, StartDate: testNow.AddDate(0, 0, -2)},
		{Type: EventCall, Status: EventPlanned, StartDate: testNow.AddDate(0, 0, -40)},
	}
	stats := ComputeEventStats(events, testNow)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, []CountItem{{Key: "call", Count: 1}, {Key: "meeting", Count: 2}}, stats.ByType)
	assert.Equal(t, []DailyCount{{Date: "2026-10-17", Count: 1}, {Date: "2026-10-19", Count: 1}}, stats.ByDate)
}
