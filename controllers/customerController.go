package controllers

import (
	"errors"
	"strings"
	"time"

	"crm-backend/middlewares"
	"crm-backend/models"
	"crm-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CreateCustomerDTO struct {
	FirstName     string         `json:"first_name" validate:"required,max=50"`
	LastName      string         `json:"last_name" validate:"required,max=50"`
	Email         string         `json:"email" validate:"required,email" normalize:"lower"`
	Phone         string         `json:"phone"`
	Company       string         `json:"company"`
	Position      string         `json:"position"`
	Address       models.Address `json:"address"`
	Status        string         `json:"status" validate:"omitempty,oneof=active lead inactive lost"`
	Source        string         `json:"source" validate:"omitempty,oneof=website referral social_media advertising other"`
	Tags          []string       `json:"tags" validate:"omitempty,dive,required"`
	Notes         string         `json:"notes"`
	AssignedTo    *string        `json:"assigned_to" validate:"omitempty,uuid"`
	CustomerValue int            `json:"customer_value" validate:"min=0,max=5"`
	LastContact   *time.Time     `json:"last_contact"`
}

type UpdateCustomerDTO struct {
	FirstName     *string         `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName      *string         `json:"last_name" validate:"omitempty,min=1,max=50"`
	Email         *string         `json:"email" validate:"omitempty,email" normalize:"lower"`
	Phone         *string         `json:"phone"`
	Company       *string         `json:"company"`
	Position      *string         `json:"position"`
	Address       *models.Address `json:"address"`
	Status        *string         `json:"status" validate:"omitempty,oneof=active lead inactive lost"`
	Source        *string         `json:"source" validate:"omitempty,oneof=website referral social_media advertising other"`
	Tags          *[]string       `json:"tags" validate:"omitempty,dive,required"`
	Notes         *string         `json:"notes"`
	AssignedTo    *string         `json:"assigned_to" validate:"omitempty,uuid"`
	CustomerValue *int            `json:"customer_value" validate:"omitempty,min=0,max=5"`
	LastContact   *time.Time      `json:"last_contact"`
}

var customerSortFields = map[string]string{
	"created_at":     "created_at",
	"updated_at":     "updated_at",
	"first_name":     "first_name",
	"last_name":      "last_name",
	"email":          "email",
	"company":        "company",
	"status":         "status",
	"customer_value": "customer_value",
	"last_contact":   "last_contact",
}

// jsonArrayContains matches a JSON string array column holding value.
func jsonArrayContains(column, value string) (string, string) {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "CAST(" + column + " AS TEXT) LIKE ?" + likeEscape, `%"` + r.Replace(value) + `"%`
}

func (ctl *Controller) GetCustomers(c *fiber.Ctx) error {
	page := utils.ParsePage(c.Query("page"), c.Query("limit"))
	q := ctl.db(c).Model(&models.Customer{})

	if v := c.Query("status"); v != "" {
		q = q.Where("status = ?", v)
	}
	if v := c.Query("source"); v != "" {
		q = q.Where("source = ?", v)
	}
	if v := c.Query("assigned_to"); v != "" {
		q = q.Where("assigned_to_id = ?", v)
	}
	if v := c.Query("customer_value"); v != "" {
		q = q.Where("customer_value = ?", utils.ParseIntDefault(v, 0))
	}
	if v := c.Query("tags"); v != "" {
		or := ctl.DB.Where("1 = 0")
		for _, tag := range strings.Split(v, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				clause, arg := jsonArrayContains("tags", tag)
				or = or.Or(clause, arg)
			}
		}
		q = q.Where(or)
	}
	if v := c.Query("search"); v != "" {
		like := utils.LikePattern(v)
		q = q.Where(
			"LOWER(first_name) LIKE ?"+likeEscape+" OR LOWER(last_name) LIKE ?"+likeEscape+
				" OR LOWER(email) LIKE ?"+likeEscape+" OR LOWER(company) LIKE ?"+likeEscape+
				" OR LOWER(phone) LIKE ?"+likeEscape,
			like, like, like, like, like,
		)
	}

	// reused for count and page
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}

	var customers []models.Customer
	err := q.Preload("AssignedTo").
		Order(sortClause(c, customerSortFields, "created_at DESC")).
		Offset(page.Offset()).Limit(page.Limit).
		Find(&customers).Error
	if err != nil {
		return err
	}
	return list(c, customers, len(customers), total, page)
}

func (ctl *Controller) GetCustomerStats(c *fiber.Ctx) error {
	var customers []models.Customer
	if err := ctl.db(c).Select("id", "status", "source", "created_at").Find(&customers).Error; err != nil {
		return err
	}
	return ok(c, models.ComputeCustomerStats(customers, ctl.now()))
}

func (ctl *Controller) GetCustomer(c *fiber.Ctx) error {
	var customer models.Customer
	err := ctl.db(c).
		Preload("AssignedTo").
		Preload("Interactions", func(tx *gorm.DB) *gorm.DB { return tx.Order("date DESC") }).
		Preload("Interactions.CreatedBy").
		First(&customer, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("customer")
		}
		return err
	}
	return ok(c, customer)
}

func (ctl *Controller) CreateCustomer(c *fiber.Ctx) error {
	var dto CreateCustomerDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizeDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}

	assigned := dto.AssignedTo
	if assigned == nil || *assigned == "" {
		id := currentUser(c).Id
		assigned = &id
	} else if err := ctl.ensureUser(c, *assigned); err != nil {
		return err
	}

	customer := models.Customer{
		FirstName:     dto.FirstName,
		LastName:      dto.LastName,
		Email:         dto.Email,
		Phone:         dto.Phone,
		Company:       dto.Company,
		Position:      dto.Position,
		Address:       dto.Address,
		Status:        models.CustomerStatus(dto.Status),
		Source:        models.CustomerSource(dto.Source),
		Tags:          datatypes.JSONSlice[string](dto.Tags),
		Notes:         dto.Notes,
		AssignedToId:  assigned,
		CustomerValue: dto.CustomerValue,
		LastContact:   dto.LastContact,
	}
	if err := ctl.db(c).Create(&customer).Error; err != nil {
		return err
	}
	return created(c, customer)
}

// UpdateCustomer applies a partial update. Any update counts as contact with the customer,
// so last_contact moves to now unless the request sets it.
func (ctl *Controller) UpdateCustomer(c *fiber.Ctx) error {
	var dto UpdateCustomerDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizePtrDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}

	var customer models.Customer
	if err := ctl.db(c).First(&customer, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("customer")
		}
		return err
	}
	if dto.AssignedTo != nil && *dto.AssignedTo != "" {
		if err := ctl.ensureUser(c, *dto.AssignedTo); err != nil {
			return err
		}
	}

	updates := utils.UpdatesFromPtrDTO(&dto, map[string]string{"assigned_to": "assigned_to_id"})
	if dto.Tags != nil {
		updates["tags"] = datatypes.JSONSlice[string](*dto.Tags)
	}
	if dto.AssignedTo != nil && *dto.AssignedTo == "" {
		updates["assigned_to_id"] = nil
	}
	if dto.LastContact == nil {
		updates["last_contact"] = ctl.now()
	}
	if err := ctl.db(c).Model(&customer).Updates(updates).Error; err != nil {
		return err
	}

	if err := ctl.db(c).Preload("AssignedTo").First(&customer, "id = ?", customer.Id).Error; err != nil {
		return err
	}
	return ok(c, customer)
}

// DeleteCustomer removes the customer together with its interactions.
func (ctl *Controller) DeleteCustomer(c *fiber.Ctx) error {
	id := c.Params("id")
	err := ctl.db(c).Transaction(func(tx *gorm.DB) error {
		var customer models.Customer
		if err := tx.First(&customer, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFound("customer")
			}
			return err
		}
		if err := tx.Where("customer_id = ?", id).Delete(&models.Interaction{}).Error; err != nil {
			return err
		}
		return tx.Delete(&customer).Error
	})
	if err != nil {
		return err
	}
	return message(c, "customer deleted")
}

func (ctl *Controller) ensureUser(c *fiber.Ctx, id string) error {
	var n int64
	if err := ctl.db(c).Model(&models.User{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return notFound("assigned user")
	}
	return nil
}

// loadCustomer checks that a referenced customer exists.
func (ctl *Controller) loadCustomer(c *fiber.Ctx, id string) (*models.Customer, error) {
	var customer models.Customer
	if err := ctl.db(c).First(&customer, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("customer")
		}
		return nil, err
	}
	return &customer, nil
}
