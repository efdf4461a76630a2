package controllers

import (
	"errors"

	"crm-backend/middlewares"
	"crm-backend/models"
	"crm-backend/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// UpdateProfileDTO lists the only fields a user may change on their own account.
type UpdateProfileDTO struct {
	FirstName  *string `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName   *string `json:"last_name" validate:"omitempty,min=1,max=50"`
	Email      *string `json:"email" validate:"omitempty,email" normalize:"lower"`
	Phone      *string `json:"phone"`
	Department *string `json:"department"`
	Avatar     *string `json:"avatar"`
}

type ChangePasswordDTO struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6"`
}

type UpdateRoleDTO struct {
	Role models.Role `json:"role" validate:"required,oneof=admin manager user"`
}

func (ctl *Controller) UpdateProfile(c *fiber.Ctx) error {
	var dto UpdateProfileDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizePtrDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}

	user := currentUser(c)
	updates := utils.UpdatesFromPtrDTO(&dto, nil)
	if len(updates) > 0 {
		if err := ctl.db(c).Model(user).Updates(updates).Error; err != nil {
			return err
		}
	}
	if err := ctl.db(c).First(user, "id = ?", user.Id).Error; err != nil {
		return err
	}
	return ok(c, user)
}

func (ctl *Controller) ChangePassword(c *fiber.Ctx) error {
	var dto ChangePasswordDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}

	user := currentUser(c)
	if err := user.ComparePassword(dto.CurrentPassword); err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "current password is incorrect")
	}
	if err := user.SetPassword(dto.NewPassword); err != nil {
		return err
	}
	if err := ctl.db(c).Model(user).Update("password", user.Password).Error; err != nil {
		return err
	}
	return ctl.authResponse(c, fiber.StatusOK, user)
}

func (ctl *Controller) GetUsers(c *fiber.Ctx) error {
	var users []models.User
	if err := ctl.db(c).Order("created_at DESC").Find(&users).Error; err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "count": len(users), "data": users})
}

func (ctl *Controller) UpdateUserRole(c *fiber.Ctx) error {
	var dto UpdateRoleDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}

	var user models.User
	if err := ctl.db(c).First(&user, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("user")
		}
		return err
	}
	user.Role = dto.Role
	if err := ctl.db(c).Model(&user).Update("role", user.Role).Error; err != nil {
		return err
	}
	return ok(c, user)
}
