package controllers

import (
	"errors"

	"crm-backend/middlewares"
	"crm-backend/models"
	"crm-backend/services"
	"crm-backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RegisterDTO struct {
	FirstName       string `json:"first_name" validate:"required,max=50"`
	LastName        string `json:"last_name" validate:"required,max=50"`
	Email           string `json:"email" validate:"required,email" normalize:"lower"`
	Password        string `json:"password" validate:"required,min=6"`
	PasswordConfirm string `json:"password_confirm" validate:"omitempty,eqfield=Password"`
	Department      string `json:"department"`
	Phone           string `json:"phone"`
}

type LoginDTO struct {
	Email    string `json:"email" validate:"required,email" normalize:"lower"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordDTO struct {
	Email string `json:"email" validate:"required,email" normalize:"lower"`
}

type ResetPasswordDTO struct {
	Password string `json:"password" validate:"required,min=6"`
}

type GoogleCallbackDTO struct {
	Code string `json:"code" validate:"required"`
}

func (ctl *Controller) authResponse(c *fiber.Ctx, status int, user *models.User) error {
	token, err := middlewares.GenerateJWT(ctl.Config.Auth, user, ctl.now())
	if err != nil {
		return err
	}
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"token":   token,
		"data":    user,
	})
}

// Register creates an active account. The very first account becomes admin; every later
// one starts as a plain user and is promoted through the role endpoint.
func (ctl *Controller) Register(c *fiber.Ctx) error {
	var dto RegisterDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizeDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}

	user := models.User{
		FirstName:  dto.FirstName,
		LastName:   dto.LastName,
		Email:      dto.Email,
		Department: dto.Department,
		Phone:      dto.Phone,
		Role:       models.RoleUser,
		IsActive:   true,
	}
	if err := user.SetPassword(dto.Password); err != nil {
		return err
	}

	err := ctl.db(c).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.User{}).Where("email = ?", user.Email).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return fiber.NewError(fiber.StatusBadRequest, "email already exists")
		}
		var users int64
		if err := tx.Model(&models.User{}).Count(&users).Error; err != nil {
			return err
		}
		if users == 0 {
			user.Role = models.RoleAdmin
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		return err
	}
	return ctl.authResponse(c, fiber.StatusCreated, &user)
}

func (ctl *Controller) Login(c *fiber.Ctx) error {
	var dto LoginDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizeDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}

	var user models.User
	if err := ctl.db(c).Where("email = ?", dto.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}
	if err := user.ComparePassword(dto.Password); err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}
	if !user.IsActive {
		return fiber.NewError(fiber.StatusUnauthorized, "account is deactivated")
	}

	now := ctl.now()
	user.LastLogin = &now
	if err := ctl.db(c).Model(&user).Update("last_login", now).Error; err != nil {
		return err
	}
	return ctl.authResponse(c, fiber.StatusOK, &user)
}

// ForgotPassword mails a reset link. When the mail cannot be sent the token is discarded
// again so no unusable token stays active.
func (ctl *Controller) ForgotPassword(c *fiber.Ctx) error {
	var dto ForgotPasswordDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizeDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}

	var user models.User
	if err := ctl.db(c).Where("email = ?", dto.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFound("user with this email")
		}
		return err
	}

	token, err := user.CreatePasswordResetToken(ctl.now())
	if err != nil {
		return err
	}
	if err := ctl.saveResetToken(c, &user); err != nil {
		return err
	}

	msg, err := services.PasswordResetMessage(user.Email, services.PasswordResetEmail{
		Name: user.FullName(),
		URL:  ctl.Config.App.FrontendURL + "/reset-password/" + token,
	})
	if err == nil {
		ctx, cancel := sideEffectCtx(c)
		defer cancel()
		err = ctl.Mailer.Send(ctx, msg)
	}
	if err != nil {
		ctl.Log.Error("password reset mail failed", zap.String("user_id", user.Id), zap.Error(err))
		user.ClearPasswordResetToken()
		if serr := ctl.saveResetToken(c, &user); serr != nil {
			ctl.Log.Error("clearing reset token failed", zap.String("user_id", user.Id), zap.Error(serr))
		}
		return fiber.NewError(fiber.StatusInternalServerError, "could not send the password reset email")
	}
	return message(c, "password reset link sent to your email address")
}

func (ctl *Controller) saveResetToken(c *fiber.Ctx, user *models.User) error {
	return ctl.db(c).Model(user).Select("reset_password_token", "reset_password_expire").Updates(user).Error
}

func (ctl *Controller) ResetPassword(c *fiber.Ctx) error {
	var dto ResetPasswordDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}

	var user models.User
	err := ctl.db(c).
		Where("reset_password_token = ? AND reset_password_expire > ?", models.HashResetToken(c.Params("token")), ctl.now()).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusBadRequest, "invalid or expired token")
		}
		return err
	}

	if err := user.SetPassword(dto.Password); err != nil {
		return err
	}
	user.ClearPasswordResetToken()
	if err := ctl.db(c).Model(&user).Select("password", "reset_password_token", "reset_password_expire").Updates(&user).Error; err != nil {
		return err
	}
	return ctl.authResponse(c, fiber.StatusOK, &user)
}

func (ctl *Controller) Me(c *fiber.Ctx) error {
	return ok(c, currentUser(c))
}

func (ctl *Controller) GoogleAuthURL(c *fiber.Ctx) error {
	if ctl.Calendar == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "google calendar integration is not configured")
	}
	return c.JSON(fiber.Map{"success": true, "url": ctl.Calendar.AuthURL(currentUser(c).Id)})
}

func (ctl *Controller) GoogleCallback(c *fiber.Ctx) error {
	if ctl.Calendar == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "google calendar integration is not configured")
	}
	var dto GoogleCallbackDTO
	if err := middlewares.BindAndValidate(c, &dto); err != nil {
		return err
	}

	tok, err := ctl.Calendar.Exchange(c.UserContext(), dto.Code)
	if err != nil {
		ctl.Log.Warn("google code exchange failed", zap.Error(err))
		return fiber.NewError(fiber.StatusBadRequest, "could not connect google calendar")
	}

	user := currentUser(c)
	now := ctl.now()
	updates := map[string]any{
		"google_access_token":     tok.AccessToken,
		"google_calendar_enabled": true,
		"google_last_synced_at":   now,
	}
	// Google only returns a refresh token on first consent.
	if tok.RefreshToken != "" {
		updates["google_refresh_token"] = tok.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		updates["google_token_expiry"] = tok.Expiry
	}
	if err := ctl.db(c).Model(user).Updates(updates).Error; err != nil {
		return err
	}
	return message(c, "google calendar connected")
}

func (ctl *Controller) GoogleDisconnect(c *fiber.Ctx) error {
	user := currentUser(c)
	user.DisconnectGoogle()
	err := ctl.db(c).Model(user).
		Select("google_access_token", "google_refresh_token", "google_token_expiry", "google_calendar_enabled").
		Updates(user).Error
	if err != nil {
		return err
	}
	return message(c, "google calendar disconnected")
}
