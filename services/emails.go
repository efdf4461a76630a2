package services

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const layoutStart = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">`

var emailTemplates = template.Must(template.New("emails").Funcs(template.FuncMap{
	"date":  func(t time.Time) string { return t.Format("02.01.2006") },
	"clock": func(t time.Time) string { return t.Format("02.01.2006 15:04") },
	"money": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}).Parse(`
{{define "password_reset"}}` + layoutStart + `
<h2>Hello {{.Name}},</h2>
<p>We received a request to reset your password. Use the link below within 30 minutes:</p>
<p><a href="{{.URL}}">{{.URL}}</a></p>
<p>If you did not request this, you can ignore this email.</p>
</div>{{end}}

{{define "proposal"}}` + layoutStart + `
<h2>Dear {{.CustomerName}},</h2>
<p>Please find attached our proposal <strong>{{.Number}}</strong>.</p>
<p>Amount: <strong>{{money .Amount}} {{.Currency}}</strong></p>
<p>Valid until: <strong>{{date .Date}}</strong></p>
{{if .Message}}<p>{{.Message}}</p>{{end}}
<p>Do not hesitate to contact us with any questions about this proposal.</p>
<p>Kind regards,<br>{{.Company}}</p>
</div>{{end}}

{{define "invoice"}}` + layoutStart + `
<h2>Dear {{.CustomerName}},</h2>
<p>Please find attached invoice <strong>{{.Number}}</strong>.</p>
<p>Amount: <strong>{{money .Amount}} {{.Currency}}</strong></p>
<p>Due date: <strong>{{date .Date}}</strong></p>
{{if .Message}}<p>{{.Message}}</p>{{end}}
<p>Do not hesitate to contact us with any questions about this invoice.</p>
<p>Kind regards,<br>{{.Company}}</p>
</div>{{end}}

{{define "payment_reminder"}}` + layoutStart + `
<h2>Dear {{.CustomerName}},</h2>
<p>This is a payment reminder for invoice <strong>{{.Number}}</strong>.</p>
<p>Amount due: <strong>{{money .Amount}} {{.Currency}}</strong></p>
<p>Due date: <strong>{{date .Date}}</strong></p>
<p style="color: red;">Overdue: <strong>{{.DaysOverdue}} days</strong></p>
<p>Please settle the outstanding amount as soon as possible.</p>
{{if .BankIBAN}}<p>Bank: {{.BankName}}<br>IBAN: {{.BankIBAN}}<br>Account holder: {{.Company}}</p>{{end}}
<p>Kind regards,<br>{{.Company}}</p>
</div>{{end}}

{{define "event"}}` + layoutStart + `
<h2>{{.Heading}}</h2>
<p><strong>{{.Title}}</strong></p>
<p>Start: {{clock .Start}}<br>End: {{clock .End}}</p>
{{if .Location}}<p>Location: {{.Location}}</p>{{end}}
{{if .Description}}<p>{{.Description}}</p>{{end}}
<p>{{.Company}}</p>
</div>{{end}}
`))

type PasswordResetEmail struct {
	Name string
	URL  string
}

// DocumentEmail is the data of proposal, invoice and reminder mails. Date is the validity
// date for proposals and the due date for invoices.
type DocumentEmail struct {
	CustomerName string
	Number       string
	Amount       float64
	Currency     string
	Date         time.Time
	Message      string
	DaysOverdue  int
	Company      string
	BankName     string
	BankIBAN     string
}

type EventEmail struct {
	Heading     string
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Company     string
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", name, err)
	}
	return buf.String(), nil
}

func PasswordResetMessage(to string, data PasswordResetEmail) (Message, error) {
	html, err := render("password_reset", data)
	return Message{To: []string{to}, Subject: "CRM - Password reset request (valid for 30 minutes)", HTML: html}, err
}

func ProposalMessage(to string, data DocumentEmail, pdf []byte) (Message, error) {
	html, err := render("proposal", data)
	return Message{
		To:          []string{to},
		Subject:     "Proposal: " + data.Number,
		HTML:        html,
		Attachments: pdfAttachment("Proposal_"+data.Number+".pdf", pdf),
	}, err
}

func InvoiceMessage(to string, data DocumentEmail, pdf []byte) (Message, error) {
	html, err := render("invoice", data)
	return Message{
		To:          []string{to},
		Subject:     "Invoice: " + data.Number,
		HTML:        html,
		Attachments: pdfAttachment("Invoice_"+data.Number+".pdf", pdf),
	}, err
}

func PaymentReminderMessage(to string, data DocumentEmail, pdf []byte) (Message, error) {
	html, err := render("payment_reminder", data)
	return Message{
		To:          []string{to},
		Subject:     "Payment reminder: Invoice " + data.Number,
		HTML:        html,
		Attachments: pdfAttachment("Invoice_"+data.Number+".pdf", pdf),
	}, err
}

func EventMessage(to []string, subject string, data EventEmail) (Message, error) {
	html, err := render("event", data)
	return Message{To: to, Subject: subject, HTML: html}, err
}

func pdfAttachment(name string, pdf []byte) []Attachment {
	if len(pdf) == 0 {
		return nil
	}
	return []Attachment{{Filename: name, Content: pdf}}
}
