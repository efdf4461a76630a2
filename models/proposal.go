package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ProposalStatus string

const (
	ProposalDraft       ProposalStatus = "draft"
	ProposalSent        ProposalStatus = "sent"
	ProposalNegotiating ProposalStatus = "negotiating"
	ProposalAccepted    ProposalStatus = "accepted"
	ProposalRejected    ProposalStatus = "rejected"
	ProposalCancelled   ProposalStatus = "cancelled"
)

// proposalTransitions lists the allowed next states; final states have none.
var proposalTransitions = map[ProposalStatus][]ProposalStatus{
	ProposalDraft:       {ProposalSent, ProposalNegotiating, ProposalAccepted, ProposalRejected, ProposalCancelled},
	ProposalSent:        {ProposalNegotiating, ProposalAccepted, ProposalRejected, ProposalCancelled},
	ProposalNegotiating: {ProposalSent, ProposalAccepted, ProposalRejected, ProposalCancelled},
}

type Proposal struct {
	Id                 string                        `json:"id" gorm:"primaryKey;size:36"`
	Number             string                        `json:"number" gorm:"size:32;uniqueIndex;not null"`
	CustomerId         string                        `json:"customer_id" gorm:"size:36;index;not null"`
	Customer           *Customer                     `json:"customer,omitempty" gorm:"foreignKey:CustomerId"`
	IssueDate          time.Time                     `json:"issue_date"`
	ValidUntil         time.Time                     `json:"valid_until" gorm:"not null"`
	Status             ProposalStatus                `json:"status" gorm:"size:20;index;not null"`
	Items              datatypes.JSONSlice[LineItem] `json:"items"`
	Notes              string                        `json:"notes"`
	Terms              string                        `json:"terms"`
	Discount           float64                       `json:"discount"`
	Currency           Currency                      `json:"currency" gorm:"size:3;not null"`
	CreatedById        string                        `json:"created_by_id" gorm:"size:36;not null"`
	CreatedBy          *User                         `json:"created_by,omitempty" gorm:"foreignKey:CreatedById"`
	ConvertedToInvoice bool                          `json:"converted_to_invoice"`
	InvoiceId          *string                       `json:"invoice_id,omitempty" gorm:"size:36"`
	CreatedAt          time.Time                     `json:"created_at"`
	UpdatedAt          time.Time                     `json:"updated_at"`
}

func (proposal *Proposal) BeforeCreate(tx *gorm.DB) (err error) {
	if proposal.Id == "" {
		proposal.Id = uuid.NewString()
	}
	if proposal.Status == "" {
		proposal.Status = ProposalDraft
	}
	if proposal.Currency == "" {
		proposal.Currency = CurrencyTRY
	}
	return
}

func (proposal *Proposal) Totals() Totals {
	return ComputeTotals(proposal.Items, proposal.Discount)
}

// CanTransition reports whether the proposal machine allows from -> to.
func CanTransition(from, to ProposalStatus) bool {
	for _, next := range proposalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the proposal to next. Requesting the current status is a no-op.
func (proposal *Proposal) TransitionTo(next ProposalStatus) error {
	if proposal.ConvertedToInvoice {
		return ErrProposalConverted
	}
	if next == proposal.Status {
		return nil
	}
	if !CanTransition(proposal.Status, next) {
		return ErrInvalidTransition
	}
	proposal.Status = next
	return nil
}

// CheckEditable rejects any change to a converted proposal.
func (proposal *Proposal) CheckEditable() error {
	if proposal.ConvertedToInvoice {
		return ErrProposalConverted
	}
	return nil
}

// ToInvoice builds the invoice a converted proposal turns into. The caller assigns the
// number and persists both documents.
func (proposal *Proposal) ToInvoice(createdBy string, issue, due time.Time) Invoice {
	items := make([]LineItem, len(proposal.Items))
	copy(items, proposal.Items)
	id := proposal.Id
	return Invoice{
		CustomerId:  proposal.CustomerId,
		IssueDate:   issue,
		DueDate:     due,
		State:       InvoiceDraft,
		Items:       items,
		Notes:       proposal.Notes,
		Terms:       proposal.Terms,
		Discount:    proposal.Discount,
		Currency:    proposal.Currency,
		CreatedById: createdBy,
		ProposalId:  &id,
	}
}

type ProposalView struct {
	*Proposal
	Totals
}

func (proposal *Proposal) View() ProposalView {
	return ProposalView{Proposal: proposal, Totals: proposal.Totals()}
}
