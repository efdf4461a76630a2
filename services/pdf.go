package services

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type PDFItem struct {
	Name        string
	Description string
	Quantity    int
	UnitPrice   float64
	TaxRate     float64
	Discount    float64
	Total       float64
}

type PDFParty struct {
	Name    string
	Company string
	Email   string
	Phone   string
	Address string
}

// PDFDocument is everything printed on a proposal or invoice. DateLabel/SecondDate carry
// "Valid until" for proposals and "Due date" for invoices.
type PDFDocument struct {
	Title      string
	Number     string
	Status     string
	IssueDate  time.Time
	DateLabel  string
	SecondDate time.Time
	Currency   string
	Company    string
	Customer   PDFParty
	Items      []PDFItem

	Subtotal      float64
	DiscountTotal float64
	TaxTotal      float64
	GrandTotal    float64
	PaidTotal     *float64
	DueAmount     *float64

	Notes string
	Terms string
}

// Renderer turns documents into PDF bytes.
type Renderer interface {
	Render(doc PDFDocument) ([]byte, error)
}

type MarotoRenderer struct{}

func NewMarotoRenderer() *MarotoRenderer {
	return &MarotoRenderer{}
}

var (
	bold      = props.Text{Style: fontstyle.Bold, Size: 9}
	boldRight = props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
	normal    = props.Text{Size: 9}
	right     = props.Text{Size: 9, Align: align.Right}
	small     = props.Text{Size: 8}
)

func (r *MarotoRenderer) Render(doc PDFDocument) ([]byte, error) {
	cfg := config.NewBuilder().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()
	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(6, doc.Company, props.Text{Size: 14, Style: fontstyle.Bold}),
		text.NewCol(6, doc.Title, props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Right}),
	)
	m.AddRow(6, col.New(6), text.NewCol(6, "No: "+doc.Number, boldRight))
	m.AddRow(5, col.New(6), text.NewCol(6, "Date: "+doc.IssueDate.Format("02.01.2006"), right))
	m.AddRow(5, col.New(6), text.NewCol(6, doc.DateLabel+": "+doc.SecondDate.Format("02.01.2006"), right))
	if doc.Status != "" {
		m.AddRow(5, col.New(6), text.NewCol(6, "Status: "+doc.Status, right))
	}
	m.AddRows(line.NewRow(4))

	m.AddRow(6, text.NewCol(12, "Customer", bold))
	for _, v := range []string{doc.Customer.Name, doc.Customer.Company, doc.Customer.Email, doc.Customer.Phone, doc.Customer.Address} {
		if v != "" {
			m.AddRow(5, text.NewCol(12, v, normal))
		}
	}
	m.AddRows(line.NewRow(4))

	m.AddRow(7,
		text.NewCol(4, "Item", bold),
		text.NewCol(1, "Qty", boldRight),
		text.NewCol(2, "Unit price", boldRight),
		text.NewCol(1, "Tax %", boldRight),
		text.NewCol(1, "Disc. %", boldRight),
		text.NewCol(3, "Total", boldRight),
	)
	for _, item := range doc.Items {
		m.AddRow(6,
			text.NewCol(4, item.Name, normal),
			text.NewCol(1, fmt.Sprintf("%d", item.Quantity), right),
			text.NewCol(2, money(item.UnitPrice, doc.Currency), right),
			text.NewCol(1, fmt.Sprintf("%.0f", item.TaxRate), right),
			text.NewCol(1, fmt.Sprintf("%.0f", item.Discount), right),
			text.NewCol(3, money(item.Total, doc.Currency), right),
		)
		if item.Description != "" {
			m.AddRow(5, text.NewCol(12, item.Description, small))
		}
	}
	m.AddRows(line.NewRow(4))

	totals := [][2]string{
		{"Subtotal", money(doc.Subtotal, doc.Currency)},
		{"Discount", money(doc.DiscountTotal, doc.Currency)},
		{"Tax", money(doc.TaxTotal, doc.Currency)},
		{"Grand total", money(doc.GrandTotal, doc.Currency)},
	}
	if doc.PaidTotal != nil {
		totals = append(totals, [2]string{"Paid", money(*doc.PaidTotal, doc.Currency)})
	}
	if doc.DueAmount != nil {
		totals = append(totals, [2]string{"Amount due", money(*doc.DueAmount, doc.Currency)})
	}
	for _, t := range totals {
		m.AddRow(6, col.New(6), text.NewCol(3, t[0], bold), text.NewCol(3, t[1], right))
	}

	if doc.Notes != "" {
		m.AddRow(8, text.NewCol(12, "Notes", props.Text{Style: fontstyle.Bold, Size: 9, Top: 3}))
		m.AddRow(10, text.NewCol(12, doc.Notes, normal))
	}
	if doc.Terms != "" {
		m.AddRow(8, text.NewCol(12, "Terms", props.Text{Style: fontstyle.Bold, Size: 9, Top: 3}))
		m.AddRow(10, text.NewCol(12, doc.Terms, normal))
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate %s pdf: %w", doc.Number, err)
	}
	return out.GetBytes(), nil
}

func money(v float64, currency string) string {
	return fmt.Sprintf("%.2f %s", v, currency)
}

// SavePDF writes data to dir/name, creating dir when needed, and returns the file path.
func SavePDF(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
