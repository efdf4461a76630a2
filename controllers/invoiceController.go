package controllers

import (
	"errors"
	"time"

	"crm-backend/middlewares"
	"crm-backend/models"
	"crm-backend/services"
	"crm-backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errInvoiceConflict = fiber.NewError(fiber.StatusConflict, "invoice was modified by another request, please retry")

type CreateInvoiceDTO struct {
	CustomerId string        `json:"customer_id" validate:"required,uuid"`
	IssueDate  *time.Time    `json:"issue_date"`
	DueDate    time.Time     `json:"due_date" validate:"required"`
	Status     string        `json:"status" validate:"omitempty,oneof=draft sent"`
	Items      []LineItemDTO `json:"items" validate:"required,min=1,dive"`
	Notes      string        `json:"notes"`
	Terms      string        `json:"terms"`
	Discount   float64       `json:"discount" validate:"min=0,max=100"`
	Currency   string        `json:"currency" validate:"omitempty,oneof=TRY USD EUR GBP"`
}

type UpdateInvoiceDTO struct {
	CustomerId *string        `json:"customer_id" validate:"omitempty,uuid"`
	IssueDate  *time.Time     `json:"issue_date"`
	DueDate    *time.Time     `json:"due_date"`
	Status     *string        `json:"status" validate:"omitempty,oneof=draft sent partially_paid paid overdue cancelled"`
	Items      *[]LineItemDTO `json:"items" validate:"omitempty,min=1,dive"`
	Notes      *string        `json:"notes"`
	Terms      *string        `json:"terms"`
	Discount   *float64       `json:"discount" validate:"omitempty,min=0,max=100"`
	Currency   *string        `json:"currency" validate:"omitempty,oneof=TRY USD EUR GBP"`
}

// onlyCancels reports whether dto requests cancellation and nothing else.
func (dto *UpdateInvoiceDTO) onlyCancels() bool {
	return dto.Status != nil && models.InvoiceStatus(*dto.Status) == models.InvoiceCancelled &&
		dto.CustomerId == nil && dto.IssueDate == nil && dto.DueDate == nil && dto.Items == nil &&
		dto.Notes == nil && dto.Terms == nil && dto.Discount == nil && dto.Currency == nil
}

type PaymentDTO struct {
	Date   *time.Time `json:"date"`
	Amount float64    `json:"amount" validate:"required,gt=0"`
	Method string     `json:"method" validate:"required,oneof=cash bank_transfer credit_card check other"`
	Notes  string     `json:"notes"`
}

// invoiceFilter holds the list filters that depend on derived fields.
type invoiceFilter struct {
	status    models.InvoiceStatus
	minAmount *float64
	maxAmount *float64
	isPaid    *bool
	isOverdue *bool
}

func (f invoiceFilter) active() bool {
	return f.status != "" || f.minAmount != nil || f.maxAmount != nil || f.isPaid != nil || f.isOverdue != nil
}

func (f invoiceFilter) match(v models.InvoiceView) bool {
	if f.status != "" && v.Status != f.status {
		return false
	}
	if f.isPaid != nil && v.IsPaid != *f.isPaid {
		return false
	}
	if f.isOverdue != nil && v.IsOverdue != *f.isOverdue {
		return false
	}
	return amountInRange(v.GrandTotal, f.minAmount, f.maxAmount)
}

func (ctl *Controller) GetInvoices(c *fiber.Ctx) error {
	page := utils.ParsePage(c.Query("page"), c.Query("limit"))
	now := ctl.now()
	q := ctl.db(c).Model(&models.Invoice{})

	if v := c.Query("customer"); v != "" {
		q = q.Where("customer_id = ?", v)
	}
	from, err := queryDate(c, "start_date")
	if err != nil {
		return err
	}
	if from != nil {
		q = q.Where("issue_date >= ?", *from)
	}
	to, err := queryDate(c, "end_date")
	if err != nil {
		return err
	}
	if to != nil {
		q = q.Where("issue_date <= ?", endOfDay(*to))
	}
	if v := c.Query("search"); v != "" {
		like := utils.LikePattern(v)
		q = q.Where("LOWER(number) LIKE ?"+likeEscape+" OR LOWER(notes) LIKE ?"+likeEscape, like, like)
	}
	order := sortClause(c, documentSortFields, "created_at DESC")
	q = q.Session(&gorm.Session{})

	filter := invoiceFilter{
		status:    models.InvoiceStatus(c.Query("status")),
		minAmount: utils.ParseFloatPtr(c.Query("min_amount")),
		maxAmount: utils.ParseFloatPtr(c.Query("max_amount")),
		isPaid:    utils.ParseBoolPtr(c.Query("is_paid")),
		isOverdue: utils.ParseBoolPtr(c.Query("is_overdue")),
	}
	load := func(tx *gorm.DB, dst *[]models.Invoice) error {
		return tx.Preload("Customer").Preload("CreatedBy").Preload("Payments").Order(order).Find(dst).Error
	}

	// Status and money are derived, so those filters run after loading.
	if filter.active() {
		var all []models.Invoice
		if err := load(q, &all); err != nil {
			return err
		}
		views := make([]models.InvoiceView, 0, len(all))
		for i := range all {
			if v := all[i].View(now); filter.match(v) {
				views = append(views, v)
			}
		}
		start, end := page.Window(len(views))
		return list(c, views[start:end], end-start, int64(len(views)), page)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}
	var invoices []models.Invoice
	if err := load(q.Offset(page.Offset()).Limit(page.Limit), &invoices); err != nil {
		return err
	}
	views := make([]models.InvoiceView, len(invoices))
	for i := range invoices {
		views[i] = invoices[i].View(now)
	}
	return list(c, views, len(views), total, page)
}

func (ctl *Controller) GetInvoiceStats(c *fiber.Ctx) error {
	var invoices []models.Invoice
	if err := ctl.db(c).Preload("Payments").Find(&invoices).Error; err != nil {
		return err
	}
	return ok(c, models.ComputeInvoiceStats(invoices, ctl.now()))
}

func (ctl *Controller) findInvoice(c *fiber.Ctx) (*models.Invoice, error) {
	var invoice models.Invoice
	err := ctl.db(c).Preload("Customer").Preload("CreatedBy").
		Preload("Payments", func(tx *gorm.DB) *gorm.DB { return tx.Order("date ASC") }).
		First(&invoice, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("invoice")
		}
		return nil, err
	}
	return &invoice, nil
}

// lockInvoice loads the :id invoice with its ledger inside tx, row-locked where supported.
func lockInvoice(c *fiber.Ctx, tx *gorm.DB) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := forUpdate(tx).First(&invoice, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("invoice")
		}
		return nil, err
	}
	if err := tx.Where("invoice_id = ?", invoice.Id).Order("date ASC").Find(&invoice.Payments).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// saveInvoice writes every column of invoice guarded by its version.
func saveInvoice(tx *gorm.DB, invoice *models.Invoice) error {
	current := invoice.Version
	invoice.Version++
	res := tx.Model(invoice).Where("version = ?", current).
		Select("*").Omit(clause.Associations, "id", "created_at").
		Updates(invoice)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errInvoiceConflict
	}
	return nil
}

func (ctl *Controller) GetInvoice(c *fiber.Ctx) error {
	invoice, err := ctl.findInvoice(c)
	if err != nil {
		return err
	}
	return ok(c, invoice.View(ctl.now()))
}

func (ctl *Controller) CreateInvoice(c *fiber.Ctx) error {
	var dto CreateInvoiceDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizeDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}
	customer, err := ctl.loadCustomer(c, dto.CustomerId)
	if err != nil {
		return err
	}

	now := ctl.now()
	invoice := models.Invoice{
		CustomerId:  customer.Id,
		IssueDate:   now,
		DueDate:     dto.DueDate,
		State:       models.InvoiceStatus(dto.Status),
		Items:       toLineItems(dto.Items),
		Notes:       dto.Notes,
		Terms:       dto.Terms,
		Discount:    dto.Discount,
		Currency:    models.Currency(dto.Currency),
		CreatedById: currentUser(c).Id,
	}
	if dto.IssueDate != nil {
		invoice.IssueDate = *dto.IssueDate
	}

	err = models.CreateWithNumber(ctl.db(c),
		func(tx *gorm.DB) (err error) {
			invoice.Id = ""
			invoice.Number, err = models.NextNumber(tx, &models.Invoice{}, "number", models.InvoicePrefix, now)
			return err
		},
		func(tx *gorm.DB) error { return tx.Create(&invoice).Error },
	)
	if err != nil {
		return err
	}
	invoice.Customer = customer
	return created(c, invoice.View(now))
}

// UpdateInvoice edits an invoice. Cancelled invoices are frozen, requested status changes
// go through the lifecycle rules and the new total must still cover the payments.
func (ctl *Controller) UpdateInvoice(c *fiber.Ctx) error {
	var dto UpdateInvoiceDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizePtrDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}

	now := ctl.now()
	err := ctl.db(c).Transaction(func(tx *gorm.DB) error {
		invoice, err := lockInvoice(c, tx)
		if err != nil {
			return err
		}
		if invoice.Status(now) == models.InvoiceCancelled {
			if dto.onlyCancels() {
				return nil
			}
			return models.ErrInvoiceCancelled
		}

		if dto.CustomerId != nil && *dto.CustomerId != invoice.CustomerId {
			var n int64
			if err := tx.Model(&models.Customer{}).Where("id = ?", *dto.CustomerId).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return notFound("customer")
			}
			invoice.CustomerId = *dto.CustomerId
		}
		if dto.IssueDate != nil {
			invoice.IssueDate = *dto.IssueDate
		}
		if dto.DueDate != nil {
			invoice.DueDate = *dto.DueDate
		}
		if dto.Items != nil {
			invoice.Items = toLineItems(*dto.Items)
		}
		if dto.Notes != nil {
			invoice.Notes = *dto.Notes
		}
		if dto.Terms != nil {
			invoice.Terms = *dto.Terms
		}
		if dto.Discount != nil {
			invoice.Discount = *dto.Discount
		}
		if dto.Currency != nil {
			invoice.Currency = models.Currency(*dto.Currency)
		}
		if err := invoice.CheckCoversPayments(); err != nil {
			return err
		}
		if dto.Status != nil {
			if err := invoice.ApplyStatusChange(models.InvoiceStatus(*dto.Status), now); err != nil {
				return err
			}
		}
		return saveInvoice(tx, invoice)
	})
	if err != nil {
		return err
	}

	invoice, err := ctl.findInvoice(c)
	if err != nil {
		return err
	}
	return ok(c, invoice.View(now))
}

func (ctl *Controller) DeleteInvoice(c *fiber.Ctx) error {
	now := ctl.now()
	err := ctl.db(c).Transaction(func(tx *gorm.DB) error {
		invoice, err := lockInvoice(c, tx)
		if err != nil {
			return err
		}
		if err := invoice.CanDelete(now); err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", invoice.Id).Delete(&models.Payment{}).Error; err != nil {
			return err
		}
		return tx.Delete(invoice).Error
	})
	if err != nil {
		return err
	}
	return message(c, "invoice deleted")
}

func (ctl *Controller) GenerateInvoicePDF(c *fiber.Ctx) error {
	invoice, err := ctl.findInvoice(c)
	if err != nil {
		return err
	}
	if invoice.Customer == nil {
		return notFound("customer")
	}
	return ctl.writePDF(c, ctl.invoicePDF(invoice), "invoice_"+invoice.Number+".pdf")
}

// SendInvoiceEmail mails the invoice PDF to the customer. A draft invoice becomes sent.
func (ctl *Controller) SendInvoiceEmail(c *fiber.Ctx) error {
	var dto SendDocumentDTO
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&dto); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	invoice, err := ctl.findInvoice(c)
	if err != nil {
		return err
	}
	if invoice.Customer == nil {
		return notFound("customer")
	}
	if invoice.State == models.InvoiceCancelled {
		return models.ErrInvoiceCancelled
	}

	pdf, err := ctl.PDF.Render(ctl.invoicePDF(invoice))
	if err != nil {
		return err
	}
	data := ctl.documentEmail(invoice.Customer, invoice.Number, invoice.Totals().GrandTotal, invoice.Currency)
	data.Date = invoice.DueDate
	data.Message = dto.CustomMessage
	msg, err := services.InvoiceMessage(invoice.Customer.Email, data, pdf)
	if err != nil {
		return err
	}
	ctx, cancel := sideEffectCtx(c)
	defer cancel()
	if err := ctl.Mailer.Send(ctx, msg); err != nil {
		ctl.Log.Error("invoice mail failed", zap.String("invoice_id", invoice.Id), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "could not send the invoice email")
	}

	if invoice.State == models.InvoiceDraft {
		err := ctl.db(c).Model(&models.Invoice{}).
			Where("id = ? AND state = ?", invoice.Id, models.InvoiceDraft).
			Updates(map[string]any{"state": models.InvoiceSent, "version": gorm.Expr("version + 1")}).Error
		if err != nil {
			return err
		}
	}
	return message(c, "invoice sent by email")
}

// SendPaymentReminder mails an overdue notice for an unpaid invoice past its due date.
func (ctl *Controller) SendPaymentReminder(c *fiber.Ctx) error {
	invoice, err := ctl.findInvoice(c)
	if err != nil {
		return err
	}
	now := ctl.now()
	if invoice.State == models.InvoiceCancelled || invoice.IsPaid() || !invoice.IsOverdue(now) {
		return models.ErrInvoiceNotOverdue
	}
	if invoice.Customer == nil {
		return notFound("customer")
	}

	pdf, err := ctl.PDF.Render(ctl.invoicePDF(invoice))
	if err != nil {
		return err
	}
	data := ctl.documentEmail(invoice.Customer, invoice.Number, invoice.DueAmount(), invoice.Currency)
	data.Date = invoice.DueDate
	data.DaysOverdue = invoice.DaysOverdue(now)
	msg, err := services.PaymentReminderMessage(invoice.Customer.Email, data, pdf)
	if err != nil {
		return err
	}
	ctx, cancel := sideEffectCtx(c)
	defer cancel()
	if err := ctl.Mailer.Send(ctx, msg); err != nil {
		ctl.Log.Error("payment reminder mail failed", zap.String("invoice_id", invoice.Id), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "could not send the payment reminder")
	}

	if err := ctl.db(c).Model(invoice).Update("reminder_sent_at", now).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":      true,
		"message":      "payment reminder sent",
		"days_overdue": data.DaysOverdue,
	})
}

// AddPayment appends a payment to the invoice ledger. Appends on the same invoice are
// serialized by the row lock and the version check.
func (ctl *Controller) AddPayment(c *fiber.Ctx) error {
	var dto PaymentDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}

	now := ctl.now()
	err := ctl.db(c).Transaction(func(tx *gorm.DB) error {
		invoice, err := lockInvoice(c, tx)
		if err != nil {
			return err
		}
		if invoice.State == models.InvoiceCancelled {
			return models.ErrInvoiceCancelled
		}
		payment := models.Payment{
			Date:         now,
			Amount:       dto.Amount,
			Method:       models.PaymentMethod(dto.Method),
			Notes:        dto.Notes,
			RecordedById: currentUser(c).Id,
		}
		if dto.Date != nil {
			payment.Date = *dto.Date
		}
		if err := invoice.AddPayment(payment); err != nil {
			return err
		}
		if err := tx.Create(&invoice.Payments[len(invoice.Payments)-1]).Error; err != nil {
			return err
		}
		res := tx.Model(&models.Invoice{}).
			Where("id = ? AND version = ?", invoice.Id, invoice.Version).
			Updates(map[string]any{"version": gorm.Expr("version + 1"), "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errInvoiceConflict
		}
		return nil
	})
	if err != nil {
		return err
	}

	invoice, err := ctl.findInvoice(c)
	if err != nil {
		return err
	}
	return created(c, invoice.View(now))
}
