package controllers

import (
	"errors"
	"time"

	"crm-backend/middlewares"
	"crm-backend/models"
	"crm-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CreateInteractionDTO struct {
	CustomerId   string                       `json:"customer_id" validate:"required,uuid"`
	Type         string                       `json:"type" validate:"required,oneof=phone email meeting note other"`
	Description  string                       `json:"description" validate:"required"`
	Date         *time.Time                   `json:"date"`
	NextFollowUp *time.Time                   `json:"next_follow_up"`
	Status       string                       `json:"status" validate:"omitempty,oneof=pending completed scheduled"`
	Documents    []models.InteractionDocument `json:"documents" validate:"omitempty,dive"`
}

type UpdateInteractionDTO struct {
	Type         *string                       `json:"type" validate:"omitempty,oneof=phone email meeting note other"`
	Description  *string                       `json:"description" validate:"omitempty,min=1"`
	Date         *time.Time                    `json:"date"`
	NextFollowUp *time.Time                    `json:"next_follow_up"`
	Status       *string                       `json:"status" validate:"omitempty,oneof=pending completed scheduled"`
	Documents    *[]models.InteractionDocument `json:"documents"`
}

func (ctl *Controller) GetInteractions(c *fiber.Ctx) error {
	page := utils.ParsePage(c.Query("page"), c.Query("limit"))
	q := ctl.db(c).Model(&models.Interaction{})

	if v := c.Query("customer"); v != "" {
		q = q.Where("customer_id = ?", v)
	}
	if v := c.Query("type"); v != "" {
		q = q.Where("type = ?", v)
	}
	if v := c.Query("status"); v != "" {
		q = q.Where("status = ?", v)
	}
	if v := c.Query("user"); v != "" {
		q = q.Where("created_by_id = ?", v)
	}
	from, err := queryDate(c, "start_date")
	if err != nil {
		return err
	}
	if from != nil {
		q = q.Where("date >= ?", *from)
	}
	to, err := queryDate(c, "end_date")
	if err != nil {
		return err
	}
	if to != nil {
		q = q.Where("date <= ?", endOfDay(*to))
	}
	if v := c.Query("search"); v != "" {
		q = q.Where("LOWER(description) LIKE ?"+likeEscape, utils.LikePattern(v))
	}

	// reused for count and page
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}

	var interactions []models.Interaction
	err = q.Preload("Customer").Preload("CreatedBy").
		Order("date DESC").
		Offset(page.Offset()).Limit(page.Limit).
		Find(&interactions).Error
	if err != nil {
		return err
	}
	return list(c, interactions, len(interactions), total, page)
}

// GetFollowUps lists the open interactions whose follow-up falls on the current day.
func (ctl *Controller) GetFollowUps(c *fiber.Ctx) error {
	now := ctl.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var interactions []models.Interaction
	err := ctl.db(c).
		Where("next_follow_up >= ? AND next_follow_up <= ?", start, endOfDay(start)).
		Where("status <> ?", models.InteractionCompleted).
		Preload("Customer").Preload("CreatedBy").
		Order("next_follow_up ASC").
		Find(&interactions).Error
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "count": len(interactions), "data": interactions})
}

func (ctl *Controller) GetCustomerInteractions(c *fiber.Ctx) error {
	customer, err := ctl.loadCustomer(c, c.Params("customerId"))
	if err != nil {
		return err
	}

	var interactions []models.Interaction
	err = ctl.db(c).Where("customer_id = ?", customer.Id).
		Preload("CreatedBy").
		Order("date DESC").
		Find(&interactions).Error
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "count": len(interactions), "data": interactions})
}

func (ctl *Controller) GetInteraction(c *fiber.Ctx) error {
	var interaction models.Interaction
	err := ctl.db(c).Preload("Customer").Preload("CreatedBy").
		First(&interaction, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("interaction")
		}
		return err
	}
	return ok(c, interaction)
}

// CreateInteraction records a contact with the caller as author and stamps the customer's
// last_contact.
func (ctl *Controller) CreateInteraction(c *fiber.Ctx) error {
	var dto CreateInteractionDTO
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
	interaction := models.Interaction{
		CustomerId:   customer.Id,
		Type:         models.InteractionType(dto.Type),
		Description:  dto.Description,
		CreatedById:  currentUser(c).Id,
		NextFollowUp: dto.NextFollowUp,
		Status:       models.InteractionStatus(dto.Status),
		Documents:    datatypes.JSONSlice[models.InteractionDocument](dto.Documents),
	}
	if dto.Date != nil {
		interaction.Date = *dto.Date
	} else {
		interaction.Date = now
	}

	err = ctl.db(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&interaction).Error; err != nil {
			return err
		}
		return tx.Model(customer).Update("last_contact", now).Error
	})
	if err != nil {
		return err
	}
	return created(c, interaction)
}

func (ctl *Controller) UpdateInteraction(c *fiber.Ctx) error {
	var dto UpdateInteractionDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizePtrDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}

	interaction, err := ctl.ownedInteraction(c)
	if err != nil {
		return err
	}

	updates := utils.UpdatesFromPtrDTO(&dto, nil)
	if dto.Documents != nil {
		updates["documents"] = datatypes.JSONSlice[models.InteractionDocument](*dto.Documents)
	}
	if len(updates) > 0 {
		if err := ctl.db(c).Model(interaction).Updates(updates).Error; err != nil {
			return err
		}
	}
	if err := ctl.db(c).Preload("Customer").Preload("CreatedBy").First(interaction, "id = ?", interaction.Id).Error; err != nil {
		return err
	}
	return ok(c, interaction)
}

func (ctl *Controller) DeleteInteraction(c *fiber.Ctx) error {
	interaction, err := ctl.ownedInteraction(c)
	if err != nil {
		return err
	}
	if err := ctl.db(c).Delete(interaction).Error; err != nil {
		return err
	}
	return message(c, "interaction deleted")
}

// ownedInteraction loads the :id interaction and checks that the caller wrote it or is admin.
func (ctl *Controller) ownedInteraction(c *fiber.Ctx) (*models.Interaction, error) {
	var interaction models.Interaction
	if err := ctl.db(c).First(&interaction, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("interaction")
		}
		return nil, err
	}
	user := currentUser(c)
	if interaction.CreatedById != user.Id && user.Role != models.RoleAdmin {
		return nil, forbidden()
	}
	return &interaction, nil
}
