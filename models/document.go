package models

import (
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is applied to line items that do not specify one.
const DefaultTaxRate = 18.0

type Currency string

const (
	CurrencyTRY Currency = "TRY"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

var hundred = decimal.NewFromInt(100)

// LineItem is one priced row of a proposal or invoice. Items are stored as an ordered
// JSON array on the owning document.
type LineItem struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TaxRate     float64 `json:"tax_rate"`
	Discount    float64 `json:"discount"`
}

func (li LineItem) subtotal() decimal.Decimal {
	return decimal.NewFromInt(int64(li.Quantity)).Mul(decimal.NewFromFloat(li.UnitPrice))
}

func (li LineItem) discountAmount() decimal.Decimal {
	return li.subtotal().Mul(decimal.NewFromFloat(li.Discount)).Div(hundred)
}

func (li LineItem) taxAmount() decimal.Decimal {
	return li.subtotal().Sub(li.discountAmount()).Mul(decimal.NewFromFloat(li.TaxRate)).Div(hundred)
}

// Total is (quantity*unitPrice)*(1-discount/100)*(1+taxRate/100), rounded to cents.
func (li LineItem) Total() float64 {
	return li.subtotal().Sub(li.discountAmount()).Add(li.taxAmount()).Round(2).InexactFloat64()
}

// Totals are the derived money figures of a commercial document.
type Totals struct {
	Subtotal             float64 `json:"subtotal"`
	ItemDiscountTotal    float64 `json:"item_discount_total"`
	GeneralDiscountTotal float64 `json:"general_discount_total"`
	DiscountTotal        float64 `json:"discount_total"`
	TaxTotal             float64 `json:"tax_total"`
	GrandTotal           float64 `json:"grand_total"`
}

type totals struct {
	subtotal, itemDiscount, generalDiscount, tax, grand decimal.Decimal
}

func computeTotals(items []LineItem, discount float64) totals {
	var t totals
	for _, item := range items {
		t.subtotal = t.subtotal.Add(item.subtotal())
		t.itemDiscount = t.itemDiscount.Add(item.discountAmount())
		t.tax = t.tax.Add(item.taxAmount())
	}
	afterItemDiscounts := t.subtotal.Sub(t.itemDiscount)
	t.generalDiscount = afterItemDiscounts.Mul(decimal.NewFromFloat(discount)).Div(hundred)
	t.grand = afterItemDiscounts.Sub(t.generalDiscount).Add(t.tax)
	return t
}

// ComputeTotals aggregates line items and a document-level discount percentage.
// The tax total is computed on item-discounted amounts; the document discount reduces the
// pre-tax amount only.
func ComputeTotals(items []LineItem, discount float64) Totals {
	t := computeTotals(items, discount)
	return Totals{
		Subtotal:             t.subtotal.Round(2).InexactFloat64(),
		ItemDiscountTotal:    t.itemDiscount.Round(2).InexactFloat64(),
		GeneralDiscountTotal: t.generalDiscount.Round(2).InexactFloat64(),
		DiscountTotal:        t.itemDiscount.Add(t.generalDiscount).Round(2).InexactFloat64(),
		TaxTotal:             t.tax.Round(2).InexactFloat64(),
		GrandTotal:           t.grand.Round(2).InexactFloat64(),
	}
}

// grandTotal returns the cent-rounded grand total used for ledger comparisons.
func grandTotal(items []LineItem, discount float64) decimal.Decimal {
	return computeTotals(items, discount).grand.Round(2)
}
