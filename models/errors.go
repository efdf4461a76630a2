package models

import (
	"errors"
	"fmt"
)

// Business-rule violations. They are client errors and map to 400 responses.
var (
	ErrInvalidPaymentAmount = errors.New("payment amount must be greater than zero")
	ErrOverpayment          = errors.New("payment amount exceeds the remaining due amount")
	ErrTotalBelowPaid       = errors.New("invoice total cannot be lower than the amount already paid")
	ErrPaidInvoiceLocked    = errors.New("a paid invoice can only be cancelled")
	ErrPaidInvoiceDelete    = errors.New("paid invoices cannot be deleted, cancel them instead")
	ErrInvoiceCancelled     = errors.New("a cancelled invoice cannot change status")
	ErrDerivedStatus        = errors.New("status is derived from payments and due date and cannot be set")
	ErrProposalConverted    = errors.New("proposal has been converted to an invoice and cannot be changed")
	ErrProposalNotAccepted  = errors.New("only accepted proposals can be converted to an invoice")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrEventEndBeforeStart  = errors.New("event end date cannot be before its start date")
	ErrInvoiceNotOverdue    = errors.New("reminders can only be sent for unpaid overdue invoices")
)

var ruleViolations = []error{
	ErrInvalidPaymentAmount,
	ErrOverpayment,
	ErrTotalBelowPaid,
	ErrPaidInvoiceLocked,
	ErrPaidInvoiceDelete,
	ErrInvoiceCancelled,
	ErrDerivedStatus,
	ErrProposalConverted,
	ErrProposalNotAccepted,
	ErrInvalidTransition,
	ErrEventEndBeforeStart,
	ErrInvoiceNotOverdue,
}

// IsRuleViolation reports whether err is (or wraps) one of the business-rule errors above.
func IsRuleViolation(err error) bool {
	for _, target := range ruleViolations {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// OverpaymentError is returned by Invoice.AddPayment when a payment would push the paid
// total above the grand total. DueAmount is the amount still payable.
type OverpaymentError struct {
	DueAmount float64
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("%s (due amount: %.2f)", ErrOverpayment.Error(), e.DueAmount)
}

func (e *OverpaymentError) Unwrap() error {
	return ErrOverpayment
}
