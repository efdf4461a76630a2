package controllers

import (
	"fmt"
	"strings"

	"crm-backend/models"
	"crm-backend/services"
	"crm-backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// LineItemDTO is the request shape of a line item. Omitted tax rates fall back to the
// default rate.
type LineItemDTO struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Quantity    int      `json:"quantity" validate:"required,min=1"`
	UnitPrice   *float64 `json:"unit_price" validate:"required,min=0"`
	TaxRate     *float64 `json:"tax_rate" validate:"omitempty,min=0,max=100"`
	Discount    *float64 `json:"discount" validate:"omitempty,min=0,max=100"`
}

func toLineItems(dtos []LineItemDTO) []models.LineItem {
	items := make([]models.LineItem, 0, len(dtos))
	for _, d := range dtos {
		item := models.LineItem{
			Name:        d.Name,
			Description: d.Description,
			Quantity:    d.Quantity,
			UnitPrice:   utils.Round2(*d.UnitPrice),
			TaxRate:     models.DefaultTaxRate,
		}
		if d.TaxRate != nil {
			item.TaxRate = *d.TaxRate
		}
		if d.Discount != nil {
			item.Discount = *d.Discount
		}
		items = append(items, item)
	}
	return items
}

// SendDocumentDTO is the body of the send-email endpoints.
type SendDocumentDTO struct {
	CustomMessage string `json:"custom_message"`
}

func pdfItems(items []models.LineItem) []services.PDFItem {
	out := make([]services.PDFItem, 0, len(items))
	for _, it := range items {
		out = append(out, services.PDFItem{
			Name:        it.Name,
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TaxRate:     it.TaxRate,
			Discount:    it.Discount,
			Total:       it.Total(),
		})
	}
	return out
}

func pdfParty(customer *models.Customer) services.PDFParty {
	if customer == nil {
		return services.PDFParty{}
	}
	a := customer.Address
	var parts []string
	for _, p := range []string{a.Street, strings.TrimSpace(a.ZipCode + " " + a.City), a.State, a.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return services.PDFParty{
		Name:    customer.FullName(),
		Company: customer.Company,
		Email:   customer.Email,
		Phone:   customer.Phone,
		Address: strings.Join(parts, ", "),
	}
}

func (ctl *Controller) proposalPDF(p *models.Proposal) services.PDFDocument {
	t := p.Totals()
	return services.PDFDocument{
		Title:         "PROPOSAL",
		Number:        p.Number,
		Status:        string(p.Status),
		IssueDate:     p.IssueDate,
		DateLabel:     "Valid until",
		SecondDate:    p.ValidUntil,
		Currency:      string(p.Currency),
		Company:       ctl.Config.App.CompanyName,
		Customer:      pdfParty(p.Customer),
		Items:         pdfItems(p.Items),
		Subtotal:      t.Subtotal,
		DiscountTotal: t.DiscountTotal,
		TaxTotal:      t.TaxTotal,
		GrandTotal:    t.GrandTotal,
		Notes:         p.Notes,
		Terms:         p.Terms,
	}
}

func (ctl *Controller) invoicePDF(inv *models.Invoice) services.PDFDocument {
	v := inv.View(ctl.now())
	paid, due := v.PaidTotal, v.DueAmount
	return services.PDFDocument{
		Title:         "INVOICE",
		Number:        inv.Number,
		Status:        string(v.Status),
		IssueDate:     inv.IssueDate,
		DateLabel:     "Due date",
		SecondDate:    inv.DueDate,
		Currency:      string(inv.Currency),
		Company:       ctl.Config.App.CompanyName,
		Customer:      pdfParty(inv.Customer),
		Items:         pdfItems(inv.Items),
		Subtotal:      v.Subtotal,
		DiscountTotal: v.DiscountTotal,
		TaxTotal:      v.TaxTotal,
		GrandTotal:    v.GrandTotal,
		PaidTotal:     &paid,
		DueAmount:     &due,
		Notes:         inv.Notes,
		Terms:         inv.Terms,
	}
}

// writePDF renders doc, keeps a copy under the PDF directory and either streams it
// (?download=true) or returns the stored path.
func (ctl *Controller) writePDF(c *fiber.Ctx, doc services.PDFDocument, filename string) error {
	data, err := ctl.PDF.Render(doc)
	if err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	path, err := services.SavePDF(ctl.Config.App.PDFDir, filename, data)
	if err != nil {
		ctl.Log.Warn("storing pdf failed", zap.String("file", filename), zap.Error(err))
	}
	if c.QueryBool("download") {
		c.Set(fiber.HeaderContentType, "application/pdf")
		c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
		return c.Send(data)
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"message":  "pdf generated",
		"pdf_path": path,
	})
}

func (ctl *Controller) documentEmail(customer *models.Customer, number string, amount float64, currency models.Currency) services.DocumentEmail {
	return services.DocumentEmail{
		CustomerName: customer.FullName(),
		Number:       number,
		Amount:       amount,
		Currency:     string(currency),
		Company:      ctl.Config.App.CompanyName,
		BankName:     ctl.Config.App.BankName,
		BankIBAN:     ctl.Config.App.BankIBAN,
	}
}
