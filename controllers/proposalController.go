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

// InvoiceDueDays is the default payment term of an invoice converted from a proposal.
const InvoiceDueDays = 15

type CreateProposalDTO struct {
	CustomerId string        `json:"customer_id" validate:"required,uuid"`
	IssueDate  *time.Time    `json:"issue_date"`
	ValidUntil time.Time     `json:"valid_until" validate:"required"`
	Items      []LineItemDTO `json:"items" validate:"required,min=1,dive"`
	Notes      string        `json:"notes"`
	Terms      string        `json:"terms"`
	Discount   float64       `json:"discount" validate:"min=0,max=100"`
	Currency   string        `json:"currency" validate:"omitempty,oneof=TRY USD EUR GBP"`
}

type UpdateProposalDTO struct {
	CustomerId *string        `json:"customer_id" validate:"omitempty,uuid"`
	IssueDate  *time.Time     `json:"issue_date"`
	ValidUntil *time.Time     `json:"valid_until"`
	Status     *string        `json:"status" validate:"omitempty,oneof=draft sent negotiating accepted rejected cancelled"`
	Items      *[]LineItemDTO `json:"items" validate:"omitempty,min=1,dive"`
	Notes      *string        `json:"notes"`
	Terms      *string        `json:"terms"`
	Discount   *float64       `json:"discount" validate:"omitempty,min=0,max=100"`
	Currency   *string        `json:"currency" validate:"omitempty,oneof=TRY USD EUR GBP"`
}

type ConvertProposalDTO struct {
	DueDate *time.Time `json:"due_date"`
}

var documentSortFields = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"issue_date": "issue_date",
	"number":     "number",
	"status":     "status",
}

func proposalViews(proposals []models.Proposal) []models.ProposalView {
	views := make([]models.ProposalView, len(proposals))
	for i := range proposals {
		views[i] = proposals[i].View()
	}
	return views
}

// amountInRange checks a grand total against optional min/max bounds.
func amountInRange(amount float64, min, max *float64) bool {
	if min != nil && amount < *min {
		return false
	}
	if max != nil && amount > *max {
		return false
	}
	return true
}

func (ctl *Controller) GetProposals(c *fiber.Ctx) error {
	page := utils.ParsePage(c.Query("page"), c.Query("limit"))
	q := ctl.db(c).Model(&models.Proposal{})

	if v := c.Query("customer"); v != "" {
		q = q.Where("customer_id = ?", v)
	}
	if v := c.Query("status"); v != "" {
		q = q.Where("status = ?", v)
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

	// Totals are not stored, so amount bounds are applied after loading.
	minAmount := utils.ParseFloatPtr(c.Query("min_amount"))
	maxAmount := utils.ParseFloatPtr(c.Query("max_amount"))
	if minAmount != nil || maxAmount != nil {
		var all []models.Proposal
		if err := q.Preload("Customer").Preload("CreatedBy").Order(order).Find(&all).Error; err != nil {
			return err
		}
		filtered := all[:0]
		for _, p := range all {
			if amountInRange(p.Totals().GrandTotal, minAmount, maxAmount) {
				filtered = append(filtered, p)
			}
		}
		start, end := page.Window(len(filtered))
		views := proposalViews(filtered[start:end])
		return list(c, views, len(views), int64(len(filtered)), page)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}
	var proposals []models.Proposal
	err = q.Preload("Customer").Preload("CreatedBy").Order(order).
		Offset(page.Offset()).Limit(page.Limit).
		Find(&proposals).Error
	if err != nil {
		return err
	}
	views := proposalViews(proposals)
	return list(c, views, len(views), total, page)
}

func (ctl *Controller) GetProposalStats(c *fiber.Ctx) error {
	var proposals []models.Proposal
	if err := ctl.db(c).Select("id", "status", "items", "discount", "created_at").Find(&proposals).Error; err != nil {
		return err
	}
	return ok(c, models.ComputeProposalStats(proposals, ctl.now()))
}

func (ctl *Controller) findProposal(c *fiber.Ctx) (*models.Proposal, error) {
	var proposal models.Proposal
	err := ctl.db(c).Preload("Customer").Preload("CreatedBy").
		First(&proposal, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("proposal")
		}
		return nil, err
	}
	return &proposal, nil
}

func (ctl *Controller) GetProposal(c *fiber.Ctx) error {
	proposal, err := ctl.findProposal(c)
	if err != nil {
		return err
	}
	return ok(c, proposal.View())
}

func (ctl *Controller) CreateProposal(c *fiber.Ctx) error {
	var dto CreateProposalDTO
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
	proposal := models.Proposal{
		CustomerId:  customer.Id,
		IssueDate:   now,
		ValidUntil:  dto.ValidUntil,
		Status:      models.ProposalDraft,
		Items:       toLineItems(dto.Items),
		Notes:       dto.Notes,
		Terms:       dto.Terms,
		Discount:    dto.Discount,
		Currency:    models.Currency(dto.Currency),
		CreatedById: currentUser(c).Id,
	}
	if dto.IssueDate != nil {
		proposal.IssueDate = *dto.IssueDate
	}

	err = models.CreateWithNumber(ctl.db(c),
		func(tx *gorm.DB) (err error) {
			proposal.Id = ""
			proposal.Number, err = models.NextNumber(tx, &models.Proposal{}, "number", models.ProposalPrefix, now)
			return err
		},
		func(tx *gorm.DB) error { return tx.Create(&proposal).Error },
	)
	if err != nil {
		return err
	}
	proposal.Customer = customer
	return created(c, proposal.View())
}

// UpdateProposal edits a proposal under the lifecycle rules: converted proposals are
// frozen and status changes follow the proposal state machine.
func (ctl *Controller) UpdateProposal(c *fiber.Ctx) error {
	var dto UpdateProposalDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizePtrDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}

	now := ctl.now()
	var proposal models.Proposal
	err := ctl.db(c).Transaction(func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&proposal, "id = ?", c.Params("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("proposal")
			}
			return err
		}
		if err := proposal.CheckEditable(); err != nil {
			return err
		}

		if dto.CustomerId != nil && *dto.CustomerId != proposal.CustomerId {
			var n int64
			if err := tx.Model(&models.Customer{}).Where("id = ?", *dto.CustomerId).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return notFound("customer")
			}
			proposal.CustomerId = *dto.CustomerId
		}
		if dto.IssueDate != nil {
			proposal.IssueDate = *dto.IssueDate
		}
		if dto.ValidUntil != nil {
			proposal.ValidUntil = *dto.ValidUntil
		}
		if dto.Items != nil {
			proposal.Items = toLineItems(*dto.Items)
		}
		if dto.Notes != nil {
			proposal.Notes = *dto.Notes
		}
		if dto.Terms != nil {
			proposal.Terms = *dto.Terms
		}
		if dto.Discount != nil {
			proposal.Discount = *dto.Discount
		}
		if dto.Currency != nil {
			proposal.Currency = models.Currency(*dto.Currency)
		}

		accepted := false
		if dto.Status != nil {
			next := models.ProposalStatus(*dto.Status)
			accepted = next == models.ProposalAccepted && proposal.Status != models.ProposalAccepted
			if err := proposal.TransitionTo(next); err != nil {
				return err
			}
		}

		if err := tx.Omit(clause.Associations).Save(&proposal).Error; err != nil {
			return err
		}
		if accepted {
			return tx.Model(&models.Customer{}).Where("id = ?", proposal.CustomerId).Update("last_contact", now).Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	updated, err := ctl.findProposal(c)
	if err != nil {
		return err
	}
	return ok(c, updated.View())
}

func (ctl *Controller) DeleteProposal(c *fiber.Ctx) error {
	err := ctl.db(c).Transaction(func(tx *gorm.DB) error {
		var proposal models.Proposal
		if err := forUpdate(tx).First(&proposal, "id = ?", c.Params("id")).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("proposal")
			}
			return err
		}
		if err := proposal.CheckEditable(); err != nil {
			return err
		}
		return tx.Delete(&proposal).Error
	})
	if err != nil {
		return err
	}
	return message(c, "proposal deleted")
}

func (ctl *Controller) GenerateProposalPDF(c *fiber.Ctx) error {
	proposal, err := ctl.findProposal(c)
	if err != nil {
		return err
	}
	if proposal.Customer == nil {
		return notFound("customer")
	}
	return ctl.writePDF(c, ctl.proposalPDF(proposal), "proposal_"+proposal.Number+".pdf")
}

// SendProposalEmail mails the proposal PDF to the customer. A draft proposal becomes sent.
func (ctl *Controller) SendProposalEmail(c *fiber.Ctx) error {
	var dto SendDocumentDTO
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&dto); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}
	proposal, err := ctl.findProposal(c)
	if err != nil {
		return err
	}
	if proposal.Customer == nil {
		return notFound("customer")
	}

	pdf, err := ctl.PDF.Render(ctl.proposalPDF(proposal))
	if err != nil {
		return err
	}
	data := ctl.documentEmail(proposal.Customer, proposal.Number, proposal.Totals().GrandTotal, proposal.Currency)
	data.Date = proposal.ValidUntil
	data.Message = dto.CustomMessage
	msg, err := services.ProposalMessage(proposal.Customer.Email, data, pdf)
	if err != nil {
		return err
	}
	ctx, cancel := sideEffectCtx(c)
	defer cancel()
	if err := ctl.Mailer.Send(ctx, msg); err != nil {
		ctl.Log.Error("proposal mail failed", zap.String("proposal_id", proposal.Id), zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "could not send the proposal email")
	}

	if proposal.Status == models.ProposalDraft && !proposal.ConvertedToInvoice {
		err := ctl.db(c).Model(&models.Proposal{}).
			Where("id = ? AND status = ?", proposal.Id, models.ProposalDraft).
			Update("status", models.ProposalSent).Error
		if err != nil {
			return err
		}
	}
	return message(c, "proposal sent by email")
}

// ConvertProposal turns an accepted proposal into a draft invoice exactly once.
func (ctl *Controller) ConvertProposal(c *fiber.Ctx) error {
	var dto ConvertProposalDTO
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&dto); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	now := ctl.now()
	due := now.AddDate(0, 0, InvoiceDueDays)
	if dto.DueDate != nil {
		due = *dto.DueDate
	}

	var invoice models.Invoice
	err := models.CreateWithNumber(ctl.db(c),
		func(tx *gorm.DB) error {
			var proposal models.Proposal
			if err := forUpdate(tx).First(&proposal, "id = ?", c.Params("id")).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return notFound("proposal")
				}
				return err
			}
			if proposal.ConvertedToInvoice {
				return models.ErrProposalConverted
			}
			if proposal.Status != models.ProposalAccepted {
				return models.ErrProposalNotAccepted
			}
			invoice = proposal.ToInvoice(currentUser(c).Id, now, due)
			number, err := models.NextNumber(tx, &models.Invoice{}, "number", models.InvoicePrefix, now)
			if err != nil {
				return err
			}
			invoice.Number = number
			return nil
		},
		func(tx *gorm.DB) error {
			if err := tx.Create(&invoice).Error; err != nil {
				return err
			}
			return tx.Model(&models.Proposal{}).Where("id = ?", c.Params("id")).
				Updates(map[string]any{"converted_to_invoice": true, "invoice_id": invoice.Id}).Error
		},
	)
	if err != nil {
		return err
	}
	return created(c, invoice.View(now))
}
