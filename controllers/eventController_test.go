package controllers_test

import (
	"context"
	"testing"
	"time"

	"crm-backend/models"
	"crm-backend/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/oauth2"
)

func eventBody(start time.Time) map[string]any {
	return map[string]any{
		"title":            "Quarterly review",
		"type":             "meeting",
		"start_date":       date(start),
		"end_date":         date(start.Add(time.Hour)),
		"reminders":        []map[string]any{{"minutes": 30}},
		"sync_with_google": false,
	}
}

func TestEventAccessControl(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice@example.com", models.RoleUser)
	bob := env.user("bob@example.com", models.RoleUser)
	admin := env.user("admin@example.com", models.RoleAdmin)

	r := env.request(fiber.MethodPost, "/api/events", env.token(alice), eventBody(time.Now().Add(48*time.Hour)))
	require.Equal(t, fiber.StatusCreated, r.status, string(r.raw))
	id := r.data()["id"].(string)
	assert.Equal(t, "planned", r.data()["status"])
	assert.Equal(t, models.DefaultEventColor, r.data()["color"])
	reminders := r.data()["reminders"].([]any)
	require.Len(t, reminders, 1)
	assert.Equal(t, "email", reminders[0].(map[string]any)["type"])

	env.request(fiber.MethodPost, "/api/events", env.token(bob), eventBody(time.Now().Add(72*time.Hour)))

	denied := env.request(fiber.MethodGet, "/api/events/"+id, env.token(bob), nil)
	assert.Equal(t, fiber.StatusForbidden, denied.status)
	denied = env.request(fiber.MethodPut, "/api/events/"+id, env.token(bob), map[string]any{"title": "mine"})
	assert.Equal(t, fiber.StatusForbidden, denied.status)
	denied = env.request(fiber.MethodDelete, "/api/events/"+id, env.token(bob), nil)
	assert.Equal(t, fiber.StatusForbidden, denied.status)

	asAdmin := env.request(fiber.MethodGet, "/api/events/"+id, env.token(admin), nil)
	assert.Equal(t, fiber.StatusOK, asAdmin.status)

	own := env.request(fiber.MethodGet, "/api/events", env.token(bob), nil)
	assert.EqualValues(t, 1, own.body["total"])
	all := env.request(fiber.MethodGet, "/api/events", env.token(admin), nil)
	assert.EqualValues(t, 2, all.body["total"])
	filtered := env.request(fiber.MethodGet, "/api/events?user="+alice.Id, env.token(admin), nil)
	assert.EqualValues(t, 1, filtered.body["total"])
	ignored := env.request(fiber.MethodGet, "/api/events?user="+alice.Id, env.token(bob), nil)
	assert.EqualValues(t, 1, ignored.body["total"])
	assert.Equal(t, bob.Id, ignored.list()[0].(map[string]any)["user_id"])

	stats := env.request(fiber.MethodGet, "/api/events/stats", env.token(bob), nil)
	assert.EqualValues(t, 1, stats.data()["total"])

	upd := env.request(fiber.MethodPut, "/api/events/"+id, env.token(alice), map[string]any{"status": "completed", "color": "#e74c3c"})
	require.Equal(t, fiber.StatusOK, upd.status, string(upd.raw))
	assert.Equal(t, "completed", upd.data()["status"])

	backwards := env.request(fiber.MethodPut, "/api/events/"+id, env.token(alice), map[string]any{"end_date": date(time.Now())})
	assert.Equal(t, fiber.StatusBadRequest, backwards.status)
	assert.Equal(t, models.ErrEventEndBeforeStart.Error(), backwards.body["message"])

	del := env.request(fiber.MethodDelete, "/api/events/"+id, env.token(alice), nil)
	assert.Equal(t, fiber.StatusOK, del.status)
}

func TestCreateEventValidation(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(env.user("alice@example.com", models.RoleUser))

	body := eventBody(time.Now())
	body["end_date"] = date(time.Now().Add(-time.Hour))
	r := env.request(fiber.MethodPost, "/api/events", tok, body)
	assert.Equal(t, fiber.StatusBadRequest, r.status)

	body = eventBody(time.Now())
	body["color"] = "blue"
	r = env.request(fiber.MethodPost, "/api/events", tok, body)
	assert.Equal(t, fiber.StatusBadRequest, r.status)

	body = eventBody(time.Now())
	body["attendees"] = []map[string]any{{"email": "not-an-email"}}
	r = env.request(fiber.MethodPost, "/api/events", tok, body)
	assert.Equal(t, fiber.StatusBadRequest, r.status)
}

func TestEventGoogleMirroring(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice@example.com", models.RoleUser)
	require.NoError(t, env.db.Model(alice).Updates(map[string]any{
		"google_access_token":     "access",
		"google_refresh_token":    "refresh",
		"google_calendar_enabled": true,
	}).Error)
	tok := env.token(alice)

	cal := newCalendarMock(t)
	env.ctl.Calendar = cal
	fresh := &oauth2.Token{AccessToken: "access-2", RefreshToken: "refresh", Expiry: time.Now().Add(time.Hour)}
	cal.EXPECT().Refresh(gomock.Any(), gomock.Any()).Return(fresh, nil).AnyTimes()
	cal.EXPECT().CreateEvent(gomock.Any(), fresh, gomock.Any()).Return("g-1", nil)
	cal.EXPECT().UpdateEvent(gomock.Any(), fresh, gomock.Any()).Return(nil)
	cal.EXPECT().DeleteEvent(gomock.Any(), fresh, "g-1").Return(nil)

	body := eventBody(time.Now().Add(24 * time.Hour))
	delete(body, "sync_with_google")
	r := env.request(fiber.MethodPost, "/api/events", tok, body)
	require.Equal(t, fiber.StatusCreated, r.status, string(r.raw))
	id := r.data()["id"].(string)
	assert.Equal(t, "g-1", r.data()["google_calendar_id"])

	var stored models.User
	require.NoError(t, env.db.First(&stored, "id = ?", alice.Id).Error)
	assert.Equal(t, "access-2", stored.GoogleAccessToken)

	sync := env.request(fiber.MethodPost, "/api/events/sync-google-calendar", tok, nil)
	require.Equal(t, fiber.StatusOK, sync.status, string(sync.raw))
	assert.EqualValues(t, 1, sync.body["count"])
	results := sync.list()
	require.Len(t, results, 1)
	assert.Equal(t, "success", results[0].(map[string]any)["status"])

	del := env.request(fiber.MethodDelete, "/api/events/"+id, tok, nil)
	assert.Equal(t, fiber.StatusOK, del.status)
}

func TestSyncRequiresLinkedCalendar(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(env.user("alice@example.com", models.RoleUser))

	r := env.request(fiber.MethodPost, "/api/events/sync-google-calendar", tok, nil)
	assert.Equal(t, fiber.StatusBadRequest, r.status)
}

func TestEventInvitationsAreSentPerAttendee(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(env.user("alice@example.com", models.RoleUser))

	var recipients [][]string
	env.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg services.Message) error {
		recipients = append(recipients, msg.To)
		assert.Equal(t, "Event invitation: Quarterly review", msg.Subject)
		return nil
	}).Times(2)

	body := eventBody(time.Now().Add(48 * time.Hour))
	body["attendees"] = []map[string]any{
		{"name": "Grace", "email": "Grace@Example.com"},
		{"name": "Ada", "email": "ada@example.com"},
	}
	body["send_notifications"] = true
	r := env.request(fiber.MethodPost, "/api/events", tok, body)
	require.Equal(t, fiber.StatusCreated, r.status, string(r.raw))

	assert.Equal(t, [][]string{{"grace@example.com"}, {"ada@example.com"}}, recipients)
}
