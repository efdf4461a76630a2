package controllers

import (
	"context"
	"errors"
	"time"

	"crm-backend/middlewares"
	"crm-backend/models"
	"crm-backend/services"
	"crm-backend/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncWindow is how far ahead the manual calendar sync looks.
const SyncWindow = 7 * 24 * time.Hour

type ReminderDTO struct {
	Minutes int    `json:"minutes" validate:"min=0"`
	Type    string `json:"type" validate:"omitempty,oneof=email push in_app"`
}

type AttendeeDTO struct {
	Name   string `json:"name"`
	Email  string `json:"email" validate:"required,email" normalize:"lower"`
	Status string `json:"status" validate:"omitempty,oneof=invited accepted declined tentative"`
}

type CreateEventDTO struct {
	Title             string        `json:"title" validate:"required,max=200"`
	Description       string        `json:"description"`
	Type              string        `json:"type" validate:"required,oneof=meeting appointment call email task other"`
	StartDate         time.Time     `json:"start_date" validate:"required"`
	EndDate           time.Time     `json:"end_date" validate:"required"`
	AllDay            bool          `json:"all_day"`
	Status            string        `json:"status" validate:"omitempty,oneof=planned completed cancelled postponed"`
	Color             string        `json:"color" validate:"omitempty,hexcolor"`
	Location          string        `json:"location"`
	CustomerId        *string       `json:"customer_id" validate:"omitempty,uuid"`
	Reminders         []ReminderDTO `json:"reminders" validate:"omitempty,dive"`
	Attendees         []AttendeeDTO `json:"attendees" validate:"omitempty,dive"`
	SyncWithGoogle    *bool         `json:"sync_with_google"`
	SendNotifications bool          `json:"send_notifications"`
}

type UpdateEventDTO struct {
	Title         *string        `json:"title" validate:"omitempty,min=1,max=200"`
	Description   *string        `json:"description"`
	Type          *string        `json:"type" validate:"omitempty,oneof=meeting appointment call email task other"`
	StartDate     *time.Time     `json:"start_date"`
	EndDate       *time.Time     `json:"end_date"`
	AllDay        *bool          `json:"all_day"`
	Status        *string        `json:"status" validate:"omitempty,oneof=planned completed cancelled postponed"`
	Color         *string        `json:"color" validate:"omitempty,hexcolor"`
	Location      *string        `json:"location"`
	CustomerId    *string        `json:"customer_id" validate:"omitempty,uuid"`
	Reminders     *[]ReminderDTO `json:"reminders" validate:"omitempty,dive"`
	Attendees     *[]AttendeeDTO `json:"attendees" validate:"omitempty,dive"`
	NotifyChanges bool           `json:"notify_changes"`
}

// SyncResult reports the outcome of mirroring one event.
type SyncResult struct {
	Id      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

var eventSortFields = map[string]string{
	"start_date": "start_date",
	"end_date":   "end_date",
	"created_at": "created_at",
	"title":      "title",
	"type":       "type",
	"status":     "status",
}

func toReminders(dtos []ReminderDTO) datatypes.JSONSlice[models.Reminder] {
	out := make(datatypes.JSONSlice[models.Reminder], 0, len(dtos))
	for _, d := range dtos {
		ch := models.ReminderChannel(d.Type)
		if ch == "" {
			ch = models.ChannelEmail
		}
		out = append(out, models.Reminder{Minutes: d.Minutes, Type: ch})
	}
	return out
}

func toAttendees(dtos []AttendeeDTO) datatypes.JSONSlice[models.Attendee] {
	out := make(datatypes.JSONSlice[models.Attendee], 0, len(dtos))
	for _, d := range dtos {
		st := models.AttendeeStatus(d.Status)
		if st == "" {
			st = models.AttendeeInvited
		}
		out = append(out, models.Attendee{Name: d.Name, Email: d.Email, Status: st})
	}
	return out
}

// scopeEvents limits a query to the caller's events unless the caller is admin.
func scopeEvents(q *gorm.DB, user *models.User) *gorm.DB {
	if user.Role == models.RoleAdmin {
		return q
	}
	return q.Where("user_id = ?", user.Id)
}

func (ctl *Controller) GetEvents(c *fiber.Ctx) error {
	page := utils.ParsePage(c.Query("page"), c.Query("limit"))
	user := currentUser(c)
	q := scopeEvents(ctl.db(c).Model(&models.Event{}), user)

	if v := c.Query("user"); v != "" && user.Role == models.RoleAdmin {
		q = q.Where("user_id = ?", v)
	}
	if v := c.Query("type"); v != "" {
		q = q.Where("type = ?", v)
	}
	if v := c.Query("status"); v != "" {
		q = q.Where("status = ?", v)
	}
	if v := c.Query("customer"); v != "" {
		q = q.Where("customer_id = ?", v)
	}
	from, err := queryDate(c, "start_date")
	if err != nil {
		return err
	}
	if from != nil {
		q = q.Where("start_date >= ?", *from)
	}
	to, err := queryDate(c, "end_date")
	if err != nil {
		return err
	}
	if to != nil {
		q = q.Where("end_date <= ?", endOfDay(*to))
	}
	if v := c.Query("search"); v != "" {
		like := utils.LikePattern(v)
		q = q.Where(
			"LOWER(title) LIKE ?"+likeEscape+" OR LOWER(description) LIKE ?"+likeEscape+" OR LOWER(location) LIKE ?"+likeEscape,
			like, like, like,
		)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}
	var events []models.Event
	err = q.Preload("Customer").Preload("User").
		Order(sortClause(c, eventSortFields, "start_date ASC")).
		Offset(page.Offset()).Limit(page.Limit).
		Find(&events).Error
	if err != nil {
		return err
	}
	return list(c, events, len(events), total, page)
}

func (ctl *Controller) GetEventStats(c *fiber.Ctx) error {
	var events []models.Event
	err := scopeEvents(ctl.db(c), currentUser(c)).
		Select("id", "type", "status", "start_date").
		Find(&events).Error
	if err != nil {
		return err
	}
	return ok(c, models.ComputeEventStats(events, ctl.now()))
}

// ownedEvent loads the :id event with its owner and checks access.
func (ctl *Controller) ownedEvent(c *fiber.Ctx) (*models.Event, error) {
	var event models.Event
	err := ctl.db(c).Preload("Customer").Preload("User").
		First(&event, "id = ?", c.Params("id")).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound("event")
		}
		return nil, err
	}
	user := currentUser(c)
	if event.UserId != user.Id && user.Role != models.RoleAdmin {
		return nil, forbidden()
	}
	return &event, nil
}

func (ctl *Controller) GetEvent(c *fiber.Ctx) error {
	event, err := ctl.ownedEvent(c)
	if err != nil {
		return err
	}
	return ok(c, event)
}

func (ctl *Controller) CreateEvent(c *fiber.Ctx) error {
	var dto CreateEventDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizeDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}

	user := currentUser(c)
	event := models.Event{
		Title:       dto.Title,
		Description: dto.Description,
		Type:        models.EventType(dto.Type),
		StartDate:   dto.StartDate,
		EndDate:     dto.EndDate,
		AllDay:      dto.AllDay,
		Status:      models.EventStatus(dto.Status),
		Color:       dto.Color,
		Location:    dto.Location,
		UserId:      user.Id,
		Reminders:   toReminders(dto.Reminders),
		Attendees:   toAttendees(dto.Attendees),
	}
	if err := event.Validate(); err != nil {
		return err
	}
	if dto.CustomerId != nil && *dto.CustomerId != "" {
		customer, err := ctl.loadCustomer(c, *dto.CustomerId)
		if err != nil {
			return err
		}
		event.CustomerId = &customer.Id
	}
	if err := ctl.db(c).Create(&event).Error; err != nil {
		return err
	}

	if dto.SyncWithGoogle == nil || *dto.SyncWithGoogle {
		ctx, cancel := sideEffectCtx(c)
		defer cancel()
		if tok := ctl.calendarToken(ctx, user); tok != nil {
			ctl.mirrorEvent(ctx, tok, &event)
		}
	}
	if dto.SendNotifications {
		ctl.notifyAttendees(c, &event, "Event invitation: ", "You are invited to an event")
	}
	return created(c, event)
}

func (ctl *Controller) UpdateEvent(c *fiber.Ctx) error {
	var dto UpdateEventDTO
	if err := c.BodyParser(&dto); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	utils.NormalizePtrDTO(&dto)
	if err := middlewares.ValidateStruct(&dto); err != nil {
		return err
	}

	event, err := ctl.ownedEvent(c)
	if err != nil {
		return err
	}
	if dto.Title != nil {
		event.Title = *dto.Title
	}
	if dto.Description != nil {
		event.Description = *dto.Description
	}
	if dto.Type != nil {
		event.Type = models.EventType(*dto.Type)
	}
	if dto.StartDate != nil {
		event.StartDate = *dto.StartDate
	}
	if dto.EndDate != nil {
		event.EndDate = *dto.EndDate
	}
	if dto.AllDay != nil {
		event.AllDay = *dto.AllDay
	}
	if dto.Status != nil {
		event.Status = models.EventStatus(*dto.Status)
	}
	if dto.Color != nil {
		event.Color = *dto.Color
	}
	if dto.Location != nil {
		event.Location = *dto.Location
	}
	if dto.CustomerId != nil {
		if *dto.CustomerId == "" {
			event.CustomerId = nil
			event.Customer = nil
		} else {
			customer, err := ctl.loadCustomer(c, *dto.CustomerId)
			if err != nil {
				return err
			}
			event.CustomerId = &customer.Id
			event.Customer = customer
		}
	}
	if dto.Reminders != nil {
		event.Reminders = toReminders(*dto.Reminders)
	}
	if dto.Attendees != nil {
		event.Attendees = toAttendees(*dto.Attendees)
	}

	if err := ctl.db(c).Omit(clause.Associations).Save(event).Error; err != nil {
		return err
	}

	if event.GoogleCalendarId != "" {
		ctx, cancel := sideEffectCtx(c)
		defer cancel()
		if tok := ctl.calendarToken(ctx, event.User); tok != nil {
			ctl.mirrorEvent(ctx, tok, event)
		}
	}
	if dto.NotifyChanges {
		ctl.notifyAttendees(c, event, "Event updated: ", "An event you are invited to has changed")
	}
	return ok(c, event)
}

func (ctl *Controller) DeleteEvent(c *fiber.Ctx) error {
	event, err := ctl.ownedEvent(c)
	if err != nil {
		return err
	}

	if event.GoogleCalendarId != "" {
		ctx, cancel := sideEffectCtx(c)
		defer cancel()
		if tok := ctl.calendarToken(ctx, event.User); tok != nil {
			if err := ctl.Calendar.DeleteEvent(ctx, tok, event.GoogleCalendarId); err != nil {
				ctl.Log.Warn("google calendar delete failed", zap.String("event_id", event.Id), zap.Error(err))
			}
		}
	}
	if c.QueryBool("notify_cancellation") {
		ctl.notifyAttendees(c, event, "Event cancelled: ", "An event you were invited to has been cancelled")
	}

	if err := ctl.db(c).Delete(event).Error; err != nil {
		return err
	}
	return message(c, "event deleted")
}

// SyncGoogleCalendar mirrors the caller's events of the coming week and reports the
// outcome per event.
func (ctl *Controller) SyncGoogleCalendar(c *fiber.Ctx) error {
	user := currentUser(c)
	if ctl.Calendar == nil || !user.HasGoogleCalendar() {
		return fiber.NewError(fiber.StatusBadRequest, "google calendar is not connected")
	}

	now := ctl.now()
	var events []models.Event
	err := ctl.db(c).
		Where("user_id = ? AND start_date >= ? AND start_date <= ?", user.Id, now, now.Add(SyncWindow)).
		Order("start_date ASC").
		Find(&events).Error
	if err != nil {
		return err
	}

	ctx, cancel := sideEffectCtx(c)
	defer cancel()
	tok := ctl.calendarToken(ctx, user)
	if tok == nil {
		return fiber.NewError(fiber.StatusBadRequest, "google calendar authorization has expired, reconnect your account")
	}

	results := make([]SyncResult, 0, len(events))
	for i := range events {
		if err := ctl.syncEvent(ctx, tok, &events[i]); err != nil {
			results = append(results, SyncResult{Id: events[i].Id, Status: "error", Message: err.Error()})
			continue
		}
		results = append(results, SyncResult{Id: events[i].Id, Status: "success"})
	}

	if err := ctl.DB.WithContext(ctx).Model(user).Update("google_last_synced_at", now).Error; err != nil {
		ctl.Log.Warn("stamping calendar sync failed", zap.String("user_id", user.Id), zap.Error(err))
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "events synchronized with google calendar",
		"count":   len(events),
		"data":    results,
	})
}

// calendarToken returns a usable token for user, or nil when the user has no linked
// calendar or the token cannot be refreshed. Refreshed tokens are stored back.
func (ctl *Controller) calendarToken(ctx context.Context, user *models.User) *oauth2.Token {
	if ctl.Calendar == nil || user == nil || !user.HasGoogleCalendar() {
		return nil
	}
	tok, err := ctl.Calendar.Refresh(ctx, services.TokenFromUser(user))
	if err != nil {
		ctl.Log.Warn("google token refresh failed", zap.String("user_id", user.Id), zap.Error(err))
		return nil
	}
	if tok.AccessToken != user.GoogleAccessToken {
		updates := map[string]any{"google_access_token": tok.AccessToken}
		if !tok.Expiry.IsZero() {
			updates["google_token_expiry"] = tok.Expiry
		}
		if err := ctl.DB.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			ctl.Log.Warn("storing refreshed google token failed", zap.String("user_id", user.Id), zap.Error(err))
		}
	}
	return tok
}

// syncEvent creates or updates the Google copy of event and records a new Google id.
func (ctl *Controller) syncEvent(ctx context.Context, tok *oauth2.Token, event *models.Event) error {
	if event.GoogleCalendarId != "" {
		return ctl.Calendar.UpdateEvent(ctx, tok, event)
	}
	id, err := ctl.Calendar.CreateEvent(ctx, tok, event)
	if err != nil {
		return err
	}
	event.GoogleCalendarId = id
	return ctl.DB.WithContext(ctx).Model(event).Update("google_calendar_id", id).Error
}

// mirrorEvent is syncEvent for request handlers: failures are logged, never returned.
func (ctl *Controller) mirrorEvent(ctx context.Context, tok *oauth2.Token, event *models.Event) {
	if err := ctl.syncEvent(ctx, tok, event); err != nil {
		ctl.Log.Warn("google calendar sync failed", zap.String("event_id", event.Id), zap.Error(err))
	}
}

// notifyAttendees mails every attendee separately so addresses are not shared between them.
func (ctl *Controller) notifyAttendees(c *fiber.Ctx, event *models.Event, subjectPrefix, heading string) {
	if len(event.Attendees) == 0 {
		return
	}
	msg, err := services.EventMessage(nil, subjectPrefix+event.Title, services.EventEmail{
		Heading:     heading,
		Title:       event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       event.StartDate,
		End:         event.EndDate,
		Company:     ctl.Config.App.CompanyName,
	})
	if err != nil {
		ctl.Log.Warn("event notification failed", zap.String("event_id", event.Id), zap.Error(err))
		return
	}
	ctx, cancel := sideEffectCtx(c)
	defer cancel()
	for _, a := range event.Attendees {
		msg.To = []string{a.Email}
		if err := ctl.Mailer.Send(ctx, msg); err != nil {
			ctl.Log.Warn("event notification failed",
				zap.String("event_id", event.Id), zap.String("attendee", a.Email), zap.Error(err))
		}
	}
}
