package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceSent          InvoiceStatus = "sent"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceOverdue       InvoiceStatus = "overdue"
	InvoiceCancelled     InvoiceStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCreditCard   PaymentMethod = "credit_card"
	PaymentCheck        PaymentMethod = "check"
	PaymentOther        PaymentMethod = "other"
)

// Invoice is a billed commercial document. Only the explicit lifecycle marker (State) is
// persisted; the reported status and every money total are derived on read.
type Invoice struct {
	Id             string                        `json:"id" gorm:"primaryKey;size:36"`
	Number         string                        `json:"number" gorm:"size:32;uniqueIndex;not null"`
	CustomerId     string                        `json:"customer_id" gorm:"size:36;index;not null"`
	Customer       *Customer                     `json:"customer,omitempty" gorm:"foreignKey:CustomerId"`
	IssueDate      time.Time                     `json:"issue_date"`
	DueDate        time.Time                     `json:"due_date" gorm:"not null"`
	State          InvoiceStatus                 `json:"-" gorm:"column:state;size:20;not null"`
	Items          datatypes.JSONSlice[LineItem] `json:"items"`
	Notes          string                        `json:"notes"`
	Terms          string                        `json:"terms"`
	Discount       float64                       `json:"discount"`
	Currency       Currency                      `json:"currency" gorm:"size:3;not null"`
	CreatedById    string                        `json:"created_by_id" gorm:"size:36;not null"`
	CreatedBy      *User                         `json:"created_by,omitempty" gorm:"foreignKey:CreatedById"`
	ProposalId     *string                       `json:"proposal_id,omitempty" gorm:"size:36;index"`
	Payments       []Payment                     `json:"payments" gorm:"foreignKey:InvoiceId;constraint:OnDelete:CASCADE"`
	ReminderSentAt *time.Time                    `json:"reminder_sent_at,omitempty"`
	Version        int                           `json:"-" gorm:"not null;default:1"`
	CreatedAt      time.Time                     `json:"created_at"`
	UpdatedAt      time.Time                     `json:"updated_at"`
}

// Payment is an immutable ledger entry against an invoice.
type Payment struct {
	Id           string        `json:"id" gorm:"primaryKey;size:36"`
	InvoiceId    string        `json:"invoice_id" gorm:"size:36;index:idx_payments_invoice_date,priority:1;not null"`
	Date         time.Time     `json:"date" gorm:"index:idx_payments_invoice_date,priority:2"`
	Amount       float64       `json:"amount" gorm:"type:numeric(12,2);not null"`
	Method       PaymentMethod `json:"method" gorm:"size:20;not null"`
	Notes        string        `json:"notes"`
	RecordedById string        `json:"recorded_by_id" gorm:"size:36;not null"`
	CreatedAt    time.Time     `json:"created_at"`
}

func (invoice *Invoice) BeforeCreate(tx *gorm.DB) (err error) {
	if invoice.Id == "" {
		invoice.Id = uuid.NewString()
	}
	if invoice.State == "" {
		invoice.State = InvoiceDraft
	}
	if invoice.Currency == "" {
		invoice.Currency = CurrencyTRY
	}
	return
}

func (payment *Payment) BeforeCreate(tx *gorm.DB) (err error) {
	if payment.Id == "" {
		payment.Id = uuid.NewString()
	}
	return
}

// Totals recomputes the document totals from the current line items.
func (invoice *Invoice) Totals() Totals {
	return ComputeTotals(invoice.Items, invoice.Discount)
}

func (invoice *Invoice) paidTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, p := range invoice.Payments {
		sum = sum.Add(decimal.NewFromFloat(p.Amount))
	}
	return sum.Round(2)
}

func (invoice *Invoice) PaidTotal() float64 {
	return invoice.paidTotal().InexactFloat64()
}

func (invoice *Invoice) DueAmount() float64 {
	return grandTotal(invoice.Items, invoice.Discount).Sub(invoice.paidTotal()).InexactFloat64()
}

// IsPaid reports whether the ledger covers a positive grand total. A zero-total invoice is
// never paid, matching DeriveInvoiceStatus.
func (invoice *Invoice) IsPaid() bool {
	grand := grandTotal(invoice.Items, invoice.Discount)
	return grand.IsPositive() && invoice.paidTotal().GreaterThanOrEqual(grand)
}

func (invoice *Invoice) IsOverdue(now time.Time) bool {
	return !invoice.IsPaid() && now.After(invoice.DueDate)
}

// AddPayment appends p to the ledger after checking that it is positive and does not push
// the paid total above the grand total. On error the ledger is left unchanged.
func (invoice *Invoice) AddPayment(p Payment) error {
	amount := decimal.NewFromFloat(p.Amount).Round(2)
	if !amount.IsPositive() {
		return ErrInvalidPaymentAmount
	}
	grand := grandTotal(invoice.Items, invoice.Discount)
	paid := invoice.paidTotal()
	if paid.Add(amount).GreaterThan(grand) {
		return &OverpaymentError{DueAmount: grand.Sub(paid).InexactFloat64()}
	}
	p.Amount = amount.InexactFloat64()
	p.InvoiceId = invoice.Id
	invoice.Payments = append(invoice.Payments, p)
	return nil
}

// Status derives the lifecycle status at instant now.
func (invoice *Invoice) Status(now time.Time) InvoiceStatus {
	return DeriveInvoiceStatus(invoice.State, invoice.paidTotal(), grandTotal(invoice.Items, invoice.Discount), invoice.DueDate, now)
}

// DeriveInvoiceStatus is the invoice state machine evaluated as a pure function of the
// persisted marker, the ledger and the clock.
//
// cancelled is terminal. With nothing paid the marker decides between draft and sent;
// a partial payment yields partially_paid and a full payment paid. Anything not paid or
// cancelled becomes overdue once now is past the due date. A zero-total invoice is never
// reported as paid.
func DeriveInvoiceStatus(state InvoiceStatus, paid, grand decimal.Decimal, due, now time.Time) InvoiceStatus {
	if state == InvoiceCancelled {
		return InvoiceCancelled
	}
	var status InvoiceStatus
	switch {
	case grand.IsPositive() && paid.GreaterThanOrEqual(grand):
		return InvoicePaid
	case paid.IsPositive():
		status = InvoicePartiallyPaid
	case state == InvoiceDraft:
		status = InvoiceDraft
	default:
		status = InvoiceSent
	}
	if now.After(due) {
		return InvoiceOverdue
	}
	return status
}

// ApplyStatusChange validates a user-requested status edit and updates the persisted
// marker. Only draft, sent and cancelled can be requested explicitly.
func (invoice *Invoice) ApplyStatusChange(requested InvoiceStatus, now time.Time) error {
	current := invoice.Status(now)
	if requested == current {
		return nil
	}
	if current == InvoiceCancelled {
		return ErrInvoiceCancelled
	}
	if current == InvoicePaid && requested != InvoiceCancelled {
		return ErrPaidInvoiceLocked
	}
	switch requested {
	case InvoiceDraft, InvoiceSent, InvoiceCancelled:
		invoice.State = requested
		return nil
	case InvoicePartiallyPaid, InvoicePaid, InvoiceOverdue:
		return ErrDerivedStatus
	default:
		return ErrInvalidTransition
	}
}

// CanDelete rejects deletion of fully paid invoices.
func (invoice *Invoice) CanDelete(now time.Time) error {
	if invoice.Status(now) == InvoicePaid {
		return ErrPaidInvoiceDelete
	}
	return nil
}

// CheckCoversPayments rejects item/discount edits that would drop the grand total below
// what has already been paid.
func (invoice *Invoice) CheckCoversPayments() error {
	if invoice.paidTotal().GreaterThan(grandTotal(invoice.Items, invoice.Discount)) {
		return ErrTotalBelowPaid
	}
	return nil
}

// DaysOverdue counts started days since the due date.
func (invoice *Invoice) DaysOverdue(now time.Time) int {
	if !now.After(invoice.DueDate) {
		return 0
	}
	return ceilDays(now.Sub(invoice.DueDate))
}

// InvoiceView is the read representation of an invoice with every derived field.
type InvoiceView struct {
	*Invoice
	Totals
	Status    InvoiceStatus `json:"status"`
	PaidTotal float64       `json:"paid_total"`
	DueAmount float64       `json:"due_amount"`
	IsPaid    bool          `json:"is_paid"`
	IsOverdue bool          `json:"is_overdue"`
}

func (invoice *Invoice) View(now time.Time) InvoiceView {
	if invoice.Payments == nil {
		invoice.Payments = []Payment{}
	}
	return InvoiceView{
		Invoice:   invoice,
		Totals:    invoice.Totals(),
		Status:    invoice.Status(now),
		PaidTotal: invoice.PaidTotal(),
		DueAmount: invoice.DueAmount(),
		IsPaid:    invoice.IsPaid(),
		IsOverdue: invoice.IsOverdue(now),
	}
}
