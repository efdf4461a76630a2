package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []ProposalStatus{ProposalDraft, ProposalSent, ProposalNegotiating, ProposalAccepted, ProposalRejected, ProposalCancelled}
	allowed := map[ProposalStatus]map[ProposalStatus]bool{
		ProposalDraft:       {ProposalSent: true, ProposalNegotiating: true, ProposalAccepted: true, ProposalRejected: true, ProposalCancelled: true},
		ProposalSent:        {ProposalNegotiating: true, ProposalAccepted: true, ProposalRejected: true, ProposalCancelled: true},
		ProposalNegotiating: {ProposalSent: true, ProposalAccepted: true, ProposalRejected: true, ProposalCancelled: true},
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[from][to], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestProposalTransitionTo(t *testing.T) {
	t.Run("follows the machine", func(t *testing.T) {
		p := &Proposal{Status: ProposalDraft}
		require.NoError(t, p.TransitionTo(ProposalSent))
		require.NoError(t, p.TransitionTo(ProposalNegotiating))
		require.NoError(t, p.TransitionTo(ProposalAccepted))
		assert.Equal(t, ProposalAccepted, p.Status)
	})

	t.Run("final states reject changes", func(t *testing.T) {
		for _, final := range []ProposalStatus{ProposalAccepted, ProposalRejected, ProposalCancelled} {
			p := &Proposal{Status: final}
			assert.ErrorIs(t, p.TransitionTo(ProposalDraft), ErrInvalidTransition)
			assert.Equal(t, final, p.Status)
		}
	})

	t.Run("sent cannot go back to draft", func(t *testing.T) {
		p := &Proposal{Status: ProposalSent}
		assert.ErrorIs(t, p.TransitionTo(ProposalDraft), ErrInvalidTransition)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		p := &Proposal{Status: ProposalRejected}
		assert.NoError(t, p.TransitionTo(ProposalRejected))
	})

	t.Run("converted proposals are frozen", func(t *testing.T) {
		p := &Proposal{Status: ProposalAccepted, ConvertedToInvoice: true}
		assert.ErrorIs(t, p.TransitionTo(ProposalAccepted), ErrProposalConverted)
		assert.ErrorIs(t, p.CheckEditable(), ErrProposalConverted)
	})
}

func TestProposalToInvoice(t *testing.T) {
	p := &Proposal{
		Id:         "pro-1",
		CustomerId: "cus-1",
		Status:     ProposalAccepted,
		Items:      []LineItem{{Name: "a", Quantity: 1, UnitPrice: 100, TaxRate: 18}},
		Discount:   10,
		Currency:   CurrencyEUR,
		Notes:      "n",
		Terms:      "t",
	}
	inv := p.ToInvoice("usr-1", testNow, testNow.AddDate(0, 0, 15))

	assert.Equal(t, "cus-1", inv.CustomerId)
	assert.Equal(t, "usr-1", inv.CreatedById)
	assert.Equal(t, InvoiceDraft, inv.State)
	assert.Equal(t, CurrencyEUR, inv.Currency)
	require.NotNil(t, inv.ProposalId)
	assert.Equal(t, "pro-1", *inv.ProposalId)
	assert.Equal(t, p.Totals(), inv.Totals())

	inv.Items[0].UnitPrice = 1
	assert.Equal(t, 100.0, p.Items[0].UnitPrice)
}
