package controllers

import (
	"context"
	"strings"
	"time"

	"crm-backend/config"
	"crm-backend/middlewares"
	"crm-backend/models"
	"crm-backend/services"
	"crm-backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Controller carries the dependencies shared by every handler.
type Controller struct {
	DB       *gorm.DB
	Mailer   services.Mailer
	PDF      services.Renderer
	Calendar services.Calendar
	Log      *zap.Logger
	Config   *config.Config
	Now      func() time.Time
}

func New(db *gorm.DB, mailer services.Mailer, pdf services.Renderer, cal services.Calendar, log *zap.Logger, cfg *config.Config) *Controller {
	return &Controller{
		DB:       db,
		Mailer:   mailer,
		PDF:      pdf,
		Calendar: cal,
		Log:      log,
		Config:   cfg,
		Now:      time.Now,
	}
}

func (ctl *Controller) now() time.Time {
	return ctl.Now().UTC()
}

// db returns a session bound to the request context.
func (ctl *Controller) db(c *fiber.Ctx) *gorm.DB {
	return ctl.DB.WithContext(c.UserContext())
}

// sideEffectCtx detaches a side effect (mail, calendar) from request cancellation but
// bounds it in time.
func sideEffectCtx(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.UserContext()), 30*time.Second)
}

func currentUser(c *fiber.Ctx) *models.User {
	return middlewares.CurrentUser(c)
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(fiber.Map{"success": true, "data": data})
}

func created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": data})
}

func message(c *fiber.Ctx, msg string) error {
	return c.JSON(fiber.Map{"success": true, "message": msg})
}

// list writes a paginated envelope: count is the size of this page.
func list(c *fiber.Ctx, data any, count int, total int64, page utils.Page) error {
	return c.JSON(fiber.Map{
		"success":     true,
		"count":       count,
		"total":       total,
		"page":        page.Page,
		"total_pages": page.TotalPages(total),
		"data":        data,
	})
}

func notFound(what string) error {
	return fiber.NewError(fiber.StatusNotFound, what+" not found")
}

func forbidden() error {
	return fiber.NewError(fiber.StatusForbidden, "you are not allowed to access this resource")
}

// queryDate parses an optional date query parameter.
func queryDate(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := utils.ParseDate(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+key)
	}
	return &t, nil
}

// endOfDay widens a plain date upper bound to the whole day.
func endOfDay(t time.Time) time.Time {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Add(24*time.Hour - time.Nanosecond)
	}
	return t
}

const likeEscape = ` ESCAPE '\'`

// forUpdate row-locks the selected rows on databases that support it.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// sortClause accepts both "field:dir" and a bare field with a separate sort_order.
func sortClause(c *fiber.Ctx, allowed map[string]string, def string) string {
	raw := c.Query("sort_by")
	if raw != "" && !strings.Contains(raw, ":") {
		raw += ":" + c.Query("sort_order", "desc")
	}
	return utils.ParseSort(raw, allowed, def)
}
